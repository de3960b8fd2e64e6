/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"gotest.tools/assert"

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/evt"
	"mynewt.apache.org/gattsim/gattx/gattutil"
)

type fakeCmd struct {
	name string
	args []interface{}
}

// fakeXport records commands and answers them with events chosen by the
// test.
type fakeXport struct {
	autoConnect bool
	hook        func(name string, args ...interface{}) []evt.ClientEvent

	d      *gattutil.Dispatcher
	cmds   []fakeCmd
	closed bool
	mtx    sync.Mutex
}

func (x *fakeXport) Start(sink evt.ClientSink) error {
	x.d = gattutil.NewDispatcher("fake", func(val interface{}) {
		sink.OnClientEvent(val.(evt.ClientEvent))
	})
	return nil
}

func (x *fakeXport) cmd(name string, args ...interface{}) error {
	x.mtx.Lock()
	if x.closed {
		x.mtx.Unlock()
		return gattutil.NewClosedError("closed")
	}
	x.cmds = append(x.cmds, fakeCmd{name, args})
	hook := x.hook
	x.mtx.Unlock()

	if hook != nil {
		for _, e := range hook(name, args...) {
			x.d.Post(e)
		}
	}
	return nil
}

func (x *fakeXport) inject(e evt.ClientEvent) {
	x.d.Post(e)
}

func (x *fakeXport) cmdNames() []string {
	x.mtx.Lock()
	defer x.mtx.Unlock()

	var names []string
	for _, c := range x.cmds {
		names = append(names, c.name)
	}
	return names
}

func (x *fakeXport) isClosed() bool {
	x.mtx.Lock()
	defer x.mtx.Unlock()

	return x.closed
}

func (x *fakeXport) AutoConnect() bool { return x.autoConnect }
func (x *fakeXport) Connect() error    { return x.cmd("connect") }
func (x *fakeXport) Disconnect() error { return x.cmd("disconnect") }

func (x *fakeXport) Close() error {
	x.mtx.Lock()
	defer x.mtx.Unlock()

	x.closed = true
	return nil
}

func (x *fakeXport) DiscoverServices() error   { return x.cmd("discover") }
func (x *fakeXport) ClearServicesCache() error { return x.cmd("clear_cache") }
func (x *fakeXport) RequestMtu(mtu int) error  { return x.cmd("mtu", mtu) }
func (x *fakeXport) ReadRemoteRssi() error     { return x.cmd("rssi") }
func (x *fakeXport) ReadPhy() error            { return x.cmd("read_phy") }

func (x *fakeXport) SetPreferredPhy(txPhy bledefs.BlePhy,
	rxPhy bledefs.BlePhy, opt bledefs.PhyOption) error {

	return x.cmd("set_phy", txPhy, rxPhy, opt)
}

func (x *fakeXport) ReadCharacteristic(chr *bledefs.BleChr) error {
	return x.cmd("read_chr", chr)
}

func (x *fakeXport) WriteCharacteristic(chr *bledefs.BleChr, value []byte,
	wt bledefs.WriteType) error {

	return x.cmd("write_chr", chr, value, wt)
}

func (x *fakeXport) ReadDescriptor(dsc *bledefs.BleDsc) error {
	return x.cmd("read_dsc", dsc)
}

func (x *fakeXport) WriteDescriptor(dsc *bledefs.BleDsc, value []byte) error {
	return x.cmd("write_dsc", dsc, value)
}

func (x *fakeXport) SetCharacteristicNotification(chr *bledefs.BleChr,
	enable bool) error {

	return x.cmd("set_notify", chr, enable)
}

func testSvcs() []*bledefs.BleSvc {
	svcs := []*bledefs.BleSvc{
		&bledefs.BleSvc{
			Uuid: bledefs.MustParseUuid("0x180d"),
			Chrs: []*bledefs.BleChr{
				&bledefs.BleChr{
					Uuid:  bledefs.MustParseUuid("0x2a37"),
					Flags: bledefs.BLE_GATT_F_NOTIFY,
					Dscs: []*bledefs.BleDsc{
						&bledefs.BleDsc{
							Uuid: bledefs.NewBleUuid16(bledefs.CccdUuid16),
						},
					},
				},
				&bledefs.BleChr{
					Uuid:  bledefs.MustParseUuid("0x2a39"),
					Flags: bledefs.BLE_GATT_F_WRITE,
				},
			},
		},
	}
	numbered, _ := bledefs.AssignHandles(svcs, 1)
	return numbered
}

func connectedHook(svcs []*bledefs.BleSvc) func(string,
	...interface{}) []evt.ClientEvent {

	return func(name string, args ...interface{}) []evt.ClientEvent {
		switch name {
		case "connect":
			return []evt.ClientEvent{
				&evt.ConnectionStateChanged{
					Status:   bledefs.CONN_STATUS_SUCCESS,
					NewState: bledefs.CONN_STATE_CONNECTING,
				},
				&evt.ConnectionStateChanged{
					Status:   bledefs.CONN_STATUS_SUCCESS,
					NewState: bledefs.CONN_STATE_CONNECTED,
				},
			}

		case "discover":
			return []evt.ClientEvent{
				&evt.ServicesDiscovered{
					Services: svcs,
					Status:   bledefs.GATT_SUCCESS,
				},
			}

		default:
			return nil
		}
	}
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func poll(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func newTestClient(t *testing.T, x *fakeXport) *GattClient {
	c := NewGattClient(x)
	assert.NilError(t, c.Start())
	return c
}

func connectClient(t *testing.T, x *fakeXport) *GattClient {
	x.hook = connectedHook(testSvcs())
	c := newTestClient(t, x)

	s, err := c.Connect(testCtx(t))
	assert.NilError(t, err)
	assert.Equal(t, s.State, bledefs.CONN_STATE_CONNECTED)

	_, err = c.WaitForServices(testCtx(t))
	assert.NilError(t, err)

	return c
}

func TestConnectTriggersDiscovery(t *testing.T) {
	x := &fakeXport{hook: connectedHook(testSvcs())}
	c := newTestClient(t, x)
	w := c.WatchState()
	defer w.Stop()

	assert.Assert(t, c.Services() == nil)

	s, err := c.Connect(testCtx(t))
	assert.NilError(t, err)
	assert.Equal(t, s, bledefs.StateWithStatus{
		State:  bledefs.CONN_STATE_CONNECTED,
		Status: bledefs.CONN_STATUS_SUCCESS,
	})

	svcs, err := c.WaitForServices(testCtx(t))
	assert.NilError(t, err)
	assert.Equal(t, len(svcs.Services()), 1)
	assert.DeepEqual(t, x.cmdNames(), []string{"connect", "discover"})
	assert.Equal(t, c.DiscoveryStatus(), bledefs.GATT_SUCCESS)

	var states []bledefs.ConnectionState
	for i := 0; i < 3; i++ {
		s, err := w.Next(testCtx(t))
		assert.NilError(t, err)
		states = append(states, s.State)
	}
	assert.DeepEqual(t, states, []bledefs.ConnectionState{
		bledefs.CONN_STATE_DISCONNECTED,
		bledefs.CONN_STATE_CONNECTING,
		bledefs.CONN_STATE_CONNECTED,
	})

	// Already connected; no second command.
	_, err = c.Connect(testCtx(t))
	assert.NilError(t, err)
	assert.Equal(t, len(x.cmdNames()), 2)
}

func TestFailedConnectResolvesDisconnected(t *testing.T) {
	x := &fakeXport{
		hook: func(name string, args ...interface{}) []evt.ClientEvent {
			if name != "connect" {
				return nil
			}
			return []evt.ClientEvent{&evt.ConnectionStateChanged{
				Status:   bledefs.CONN_STATUS_TIMEOUT,
				NewState: bledefs.CONN_STATE_DISCONNECTED,
			}}
		},
	}
	c := newTestClient(t, x)

	s, err := c.Connect(testCtx(t))
	assert.NilError(t, err)
	assert.Equal(t, s.State, bledefs.CONN_STATE_DISCONNECTED)
	assert.Equal(t, s.Status, bledefs.CONN_STATUS_TIMEOUT)

	// Timeout counts as link loss, but autoConnect is off.
	poll(t, x.isClosed)
	assert.Assert(t, c.Released())
}

func TestDisconnectHandleRelease(t *testing.T) {
	tests := []struct {
		name        string
		status      bledefs.ConnectionStatus
		autoConnect bool
		released    bool
	}{
		{"link loss, auto connect", bledefs.CONN_STATUS_LINK_LOSS, true, false},
		{"link loss, no auto connect", bledefs.CONN_STATUS_LINK_LOSS, false, true},
		{"local, auto connect", bledefs.CONN_STATUS_TERMINATE_LOCAL_HOST, true, true},
		{"peer, no auto connect", bledefs.CONN_STATUS_TERMINATE_PEER_USER, false, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			x := &fakeXport{autoConnect: tc.autoConnect}
			c := connectClient(t, x)

			x.inject(&evt.ConnectionStateChanged{
				Status:   tc.status,
				NewState: bledefs.CONN_STATE_DISCONNECTED,
			})

			// A marker event processed after the disconnect.
			x.inject(&evt.MtuChanged{Mtu: 99, Status: bledefs.GATT_SUCCESS})
			poll(t, func() bool { return c.Mtu() == 99 })

			assert.Equal(t, c.State().State, bledefs.CONN_STATE_DISCONNECTED)
			assert.Equal(t, x.isClosed(), tc.released)
			assert.Equal(t, c.Released(), tc.released)
		})
	}
}

func TestServiceChangedRediscovers(t *testing.T) {
	x := &fakeXport{}
	c := connectClient(t, x)
	first := c.Services()

	x.inject(&evt.ServiceChanged{})
	poll(t, func() bool { return c.Services() != first })

	assert.DeepEqual(t, x.cmdNames(),
		[]string{"connect", "discover", "discover"})
	assert.Equal(t, c.State().State, bledefs.CONN_STATE_CONNECTED)
}

func TestFailedDiscoveryKeepsTree(t *testing.T) {
	x := &fakeXport{}
	c := connectClient(t, x)
	first := c.Services()

	x.inject(&evt.ServicesDiscovered{Status: bledefs.GATT_ERROR})
	poll(t, func() bool { return c.DiscoveryStatus() == bledefs.GATT_ERROR })
	assert.Equal(t, c.Services(), first)
}

func TestConcurrentMtuRequestsResolveInOrder(t *testing.T) {
	x := &fakeXport{}
	c := connectClient(t, x)

	issue := func(mtu int) <-chan bledefs.MtuResult {
		ch := make(chan bledefs.MtuResult, 1)
		go func() {
			r, err := c.RequestMtu(testCtx(t), mtu)
			assert.Check(t, err == nil)
			ch <- r
		}()
		return ch
	}

	ch100 := issue(100)
	poll(t, func() bool { return c.corr.Len() == 1 })
	ch200 := issue(200)
	poll(t, func() bool { return c.corr.Len() == 2 })

	x.inject(&evt.MtuChanged{Mtu: 100, Status: bledefs.GATT_SUCCESS})
	x.inject(&evt.MtuChanged{Mtu: 200, Status: bledefs.GATT_SUCCESS})

	// Each caller receives the MTU it asked for, regardless of which
	// goroutine is scheduled first.
	assert.Equal(t, (<-ch200).Mtu, 200)
	assert.Equal(t, (<-ch100).Mtu, 100)
	assert.Equal(t, c.Mtu(), 200)
}

func TestCancelledRequestDoesNotStealResult(t *testing.T) {
	x := &fakeXport{}
	c := connectClient(t, x)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.ReadRssi(ctx)
		errCh <- err
	}()
	poll(t, func() bool { return c.corr.Len() == 1 })
	cancel()
	assert.Equal(t, <-errCh, context.Canceled)

	resCh := make(chan bledefs.RssiResult, 1)
	go func() {
		r, _ := c.ReadRssi(testCtx(t))
		resCh <- r
	}()
	poll(t, func() bool { return c.corr.Len() == 2 })

	x.inject(&evt.ReadRemoteRssi{Rssi: -10, Status: bledefs.GATT_SUCCESS})
	x.inject(&evt.ReadRemoteRssi{Rssi: -20, Status: bledefs.GATT_SUCCESS})

	r := <-resCh
	assert.Equal(t, r.Rssi, -20)
	assert.Assert(t, r.IsSuccess())
}

func TestDisconnectAbortsOutstanding(t *testing.T) {
	x := &fakeXport{}
	c := connectClient(t, x)

	errCh := make(chan error, 1)
	go func() {
		_, err := c.SetPhy(testCtx(t), bledefs.BLE_PHY_2M, bledefs.BLE_PHY_2M,
			bledefs.BLE_PHY_OPT_S2)
		errCh <- err
	}()
	poll(t, func() bool { return c.corr.Len() == 1 })

	x.inject(&evt.ConnectionStateChanged{
		Status:   bledefs.CONN_STATUS_LINK_LOSS,
		NewState: bledefs.CONN_STATE_DISCONNECTED,
	})

	err := <-errCh
	assert.Assert(t, gattutil.IsBleDisconnected(err))
}

func TestFailedMtuKeepsValue(t *testing.T) {
	x := &fakeXport{
		hook: func(name string, args ...interface{}) []evt.ClientEvent {
			if name != "mtu" {
				return nil
			}
			return []evt.ClientEvent{&evt.MtuChanged{
				Mtu:    args[0].(int),
				Status: bledefs.GATT_REQUEST_NOT_SUPPORTED,
			}}
		},
	}
	c := newTestClient(t, x)

	r, err := c.RequestMtu(testCtx(t), 185)
	assert.NilError(t, err)
	assert.Equal(t, r.Status, bledefs.GATT_REQUEST_NOT_SUPPORTED)
	assert.Assert(t, !r.IsSuccess())
	assert.Equal(t, c.Mtu(), bledefs.BLE_ATT_MTU_DFLT)
}

func TestReliableWriteCompletesWrite(t *testing.T) {
	x := &fakeXport{}
	c := connectClient(t, x)

	ch := c.Services().FindCharacteristic(bledefs.MustParseUuid("0x2a39"),
		bledefs.ANY_INSTANCE)
	assert.Assert(t, ch != nil)

	resCh := make(chan bledefs.WriteResult, 1)
	go func() {
		r, _ := ch.Write(testCtx(t), []byte{0x01}, bledefs.BLE_WRITE_TYPE_DEFAULT)
		resCh <- r
	}()
	poll(t, func() bool { return c.corr.Len() == 1 })

	x.inject(&evt.ReliableWriteCompleted{Status: bledefs.GATT_SUCCESS})
	r := <-resCh
	assert.Assert(t, r.IsSuccess())
}

func TestEnableNotifications(t *testing.T) {
	x := &fakeXport{}
	svcs := testSvcs()
	hook := connectedHook(svcs)
	x.hook = func(name string, args ...interface{}) []evt.ClientEvent {
		if name == "write_dsc" {
			return []evt.ClientEvent{&evt.DescriptorWrite{
				Dsc:    args[0].(*bledefs.BleDsc),
				Status: bledefs.GATT_SUCCESS,
			}}
		}
		return hook(name, args...)
	}
	c := newTestClient(t, x)
	_, err := c.Connect(testCtx(t))
	assert.NilError(t, err)
	tree, err := c.WaitForServices(testCtx(t))
	assert.NilError(t, err)

	ch := tree.FindCharacteristic(bledefs.MustParseUuid("0x2a37"),
		bledefs.ANY_INSTANCE)
	w := ch.Notifications()
	defer w.Stop()

	r, err := ch.EnableNotifications(testCtx(t))
	assert.NilError(t, err)
	assert.Assert(t, r.IsSuccess())

	x.mtx.Lock()
	last := x.cmds[len(x.cmds)-1]
	x.mtx.Unlock()
	assert.Equal(t, last.name, "write_dsc")
	assert.DeepEqual(t, last.args[1].([]byte), []byte{0x01, 0x00})

	x.inject(&evt.CharacteristicChanged{Chr: svcs[0].Chrs[1], Value: []byte{9}})
	x.inject(&evt.CharacteristicChanged{Chr: svcs[0].Chrs[0], Value: []byte{7}})

	val, err := w.Next(testCtx(t))
	assert.NilError(t, err)
	assert.DeepEqual(t, val, []byte{7})
}
