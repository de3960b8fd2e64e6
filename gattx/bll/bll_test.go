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

package bll

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/JuulLabs-OSS/ble"
	"github.com/pkg/errors"
	"gotest.tools/assert"

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/client"
	"mynewt.apache.org/gattsim/gattx/gattutil"
)

const testUuid128 = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"

type fakeClient struct {
	ble.Client

	profile *ble.Profile
	rssi    int
	maxMtu  int

	values map[uint16][]byte
	errs   map[uint16]error
	subs   map[uint16]ble.NotificationHandler
	disc   chan struct{}
	once   sync.Once
	mtx    sync.Mutex
}

func testProfile() *ble.Profile {
	cccd := &ble.Descriptor{
		UUID:   ble.UUID16(0x2902),
		Handle: 4,
	}
	hr := &ble.Characteristic{
		UUID:        ble.UUID16(0x2a37),
		Property:    ble.CharRead | ble.CharNotify,
		Handle:      2,
		ValueHandle: 3,
		Descriptors: []*ble.Descriptor{cccd},
		CCCD:        cccd,
	}
	rx := &ble.Characteristic{
		UUID:        ble.MustParse(testUuid128),
		Property:    ble.CharWrite | ble.CharRead,
		Handle:      5,
		ValueHandle: 6,
	}

	return &ble.Profile{
		Services: []*ble.Service{{
			UUID:            ble.UUID16(0x180d),
			Handle:          1,
			EndHandle:       6,
			Characteristics: []*ble.Characteristic{hr, rx},
		}},
	}
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		profile: testProfile(),
		rssi:    -55,
		maxMtu:  247,
		values: map[uint16][]byte{
			3: []byte{0x00, 0x48},
		},
		errs: map[uint16]error{},
		subs: map[uint16]ble.NotificationHandler{},
		disc: make(chan struct{}),
	}
}

func (fc *fakeClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	return fc.profile, nil
}

func (fc *fakeClient) ReadCharacteristic(
	c *ble.Characteristic) ([]byte, error) {

	fc.mtx.Lock()
	defer fc.mtx.Unlock()

	if err := fc.errs[c.ValueHandle]; err != nil {
		return nil, err
	}
	return fc.values[c.ValueHandle], nil
}

func (fc *fakeClient) WriteCharacteristic(c *ble.Characteristic,
	value []byte, noRsp bool) error {

	fc.mtx.Lock()
	defer fc.mtx.Unlock()

	fc.values[c.ValueHandle] = value
	return nil
}

func (fc *fakeClient) ReadDescriptor(d *ble.Descriptor) ([]byte, error) {
	fc.mtx.Lock()
	defer fc.mtx.Unlock()

	return fc.values[d.Handle], nil
}

func (fc *fakeClient) WriteDescriptor(d *ble.Descriptor, v []byte) error {
	fc.mtx.Lock()
	defer fc.mtx.Unlock()

	fc.values[d.Handle] = v
	return nil
}

func (fc *fakeClient) ReadRSSI() int {
	return fc.rssi
}

func (fc *fakeClient) ExchangeMTU(rxMtu int) (int, error) {
	if rxMtu > fc.maxMtu {
		return fc.maxMtu, nil
	}
	return rxMtu, nil
}

func (fc *fakeClient) Subscribe(c *ble.Characteristic, ind bool,
	h ble.NotificationHandler) error {

	fc.mtx.Lock()
	defer fc.mtx.Unlock()

	fc.subs[c.ValueHandle] = h
	return nil
}

func (fc *fakeClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	fc.mtx.Lock()
	defer fc.mtx.Unlock()

	delete(fc.subs, c.ValueHandle)
	return nil
}

func (fc *fakeClient) sub(handle uint16) ble.NotificationHandler {
	fc.mtx.Lock()
	defer fc.mtx.Unlock()

	return fc.subs[handle]
}

func (fc *fakeClient) CancelConnection() error {
	fc.once.Do(func() { close(fc.disc) })
	return nil
}

func (fc *fakeClient) Disconnected() <-chan struct{} {
	return fc.disc
}

// fakeDialer hands out a fresh fake client per connection attempt.
type fakeDialer struct {
	clients []*fakeClient
	mtx     sync.Mutex
}

func (fd *fakeDialer) dial(ctx context.Context,
	f ble.AdvFilter) (ble.Client, error) {

	fd.mtx.Lock()
	defer fd.mtx.Unlock()

	fc := newFakeClient()
	fd.clients = append(fd.clients, fc)
	return fc, nil
}

func (fd *fakeDialer) last() *fakeClient {
	fd.mtx.Lock()
	defer fd.mtx.Unlock()

	return fd.clients[len(fd.clients)-1]
}

func (fd *fakeDialer) count() int {
	fd.mtx.Lock()
	defer fd.mtx.Unlock()

	return len(fd.clients)
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTestClient(t *testing.T, cfg XportCfg,
	dial Dialer) *client.GattClient {

	gc := client.NewGattClient(NewBllXportWithDialer(cfg, dial))
	assert.NilError(t, gc.Start())
	t.Cleanup(gc.Close)
	return gc
}

func connect(t *testing.T, ctx context.Context,
	gc *client.GattClient) *client.ClientServices {

	res, err := gc.Connect(ctx)
	assert.NilError(t, err)
	assert.Equal(t, res.State, bledefs.CONN_STATE_CONNECTED)

	svcs, err := gc.WaitForServices(ctx)
	assert.NilError(t, err)
	return svcs
}

func waitState(t *testing.T, ctx context.Context, w *client.StateWatcher,
	state bledefs.ConnectionState) bledefs.StateWithStatus {

	for {
		s, err := w.Next(ctx)
		assert.NilError(t, err)
		if s.State == state {
			return s
		}
	}
}

func TestUuidConversion(t *testing.T) {
	u16, err := UuidFromBllUuid(ble.UUID16(0x2a37))
	assert.NilError(t, err)
	assert.Equal(t, u16, bledefs.MustParseUuid("0x2a37"))
	assert.DeepEqual(t, BllUuidFromUuid(u16), ble.UUID16(0x2a37))

	u128, err := UuidFromBllUuid(ble.MustParse(testUuid128))
	assert.NilError(t, err)
	assert.Equal(t, u128.String(), testUuid128)
	assert.DeepEqual(t, BllUuidFromUuid(u128), ble.MustParse(testUuid128))

	_, err = UuidFromBllUuid(ble.UUID{0x01, 0x02, 0x03})
	assert.ErrorContains(t, err, "Invalid UUID")
}

func TestStatusFromErr(t *testing.T) {
	assert.Equal(t, statusFromErr(nil), bledefs.GATT_SUCCESS)
	assert.Equal(t, statusFromErr(ble.ATTError(0x02)),
		bledefs.GATT_READ_NOT_PERMITTED)
	assert.Equal(t, statusFromErr(errors.Wrap(ble.ATTError(0x07), "read")),
		bledefs.GATT_INVALID_OFFSET)
	assert.Equal(t, statusFromErr(errors.New("hci timeout")),
		bledefs.GATT_FAILURE)
}

func TestProfileTable(t *testing.T) {
	svcs, m, err := profileTable(testProfile())
	assert.NilError(t, err)
	assert.Equal(t, len(svcs), 1)

	svc := svcs[0]
	assert.Equal(t, svc.InstanceId, 1)
	assert.Equal(t, len(svc.Chrs), 2)

	hr := svc.Chrs[0]
	assert.Equal(t, hr.InstanceId, 3)
	assert.Equal(t, hr.Flags, bledefs.BLE_GATT_F_READ|bledefs.BLE_GATT_F_NOTIFY)
	assert.Assert(t, hr.Cccd() != nil)
	assert.Equal(t, hr.Cccd().InstanceId, 4)

	assert.Assert(t, m.chrs[hr.Id()] != nil)
	assert.Assert(t, m.dscs[hr.Cccd().Id()] != nil)
}

func TestCommandsNeedLink(t *testing.T) {
	fd := &fakeDialer{}
	bx := NewBllXportWithDialer(NewXportCfg(), fd.dial)

	err := bx.ReadRemoteRssi()
	assert.Assert(t, gattutil.IsXport(err))

	gc := client.NewGattClient(bx)
	assert.NilError(t, gc.Start())
	defer gc.Close()

	err = bx.ReadRemoteRssi()
	assert.Assert(t, gattutil.IsNotConnected(err))
}

func TestClientReadWrite(t *testing.T) {
	ctx := testCtx(t)
	fd := &fakeDialer{}
	gc := newTestClient(t, NewXportCfg(), fd.dial)
	svcs := connect(t, ctx, gc)

	hr := svcs.FindCharacteristic(bledefs.MustParseUuid("0x2a37"),
		bledefs.ANY_INSTANCE)
	assert.Assert(t, hr != nil)

	rr, err := hr.Read(ctx)
	assert.NilError(t, err)
	assert.Equal(t, rr.Status, bledefs.GATT_SUCCESS)
	assert.DeepEqual(t, rr.Value, []byte{0x00, 0x48})

	rx := svcs.FindCharacteristic(bledefs.MustParseUuid(testUuid128),
		bledefs.ANY_INSTANCE)
	assert.Assert(t, rx != nil)

	wr, err := rx.Write(ctx, []byte("hi"), bledefs.BLE_WRITE_TYPE_DEFAULT)
	assert.NilError(t, err)
	assert.Equal(t, wr.Status, bledefs.GATT_SUCCESS)

	rr, err = rx.Read(ctx)
	assert.NilError(t, err)
	assert.DeepEqual(t, rr.Value, []byte("hi"))

	fc := fd.last()
	fc.mtx.Lock()
	fc.errs[6] = ble.ATTError(0x02)
	fc.mtx.Unlock()

	rr, err = rx.Read(ctx)
	assert.NilError(t, err)
	assert.Equal(t, rr.Status, bledefs.GATT_READ_NOT_PERMITTED)
}

func TestClientNotifications(t *testing.T) {
	ctx := testCtx(t)
	fd := &fakeDialer{}
	gc := newTestClient(t, NewXportCfg(), fd.dial)
	svcs := connect(t, ctx, gc)

	hr := svcs.FindCharacteristic(bledefs.MustParseUuid("0x2a37"),
		bledefs.ANY_INSTANCE)
	nw := hr.Notifications()
	defer nw.Stop()

	res, err := hr.EnableNotifications(ctx)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, bledefs.GATT_SUCCESS)

	h := fd.last().sub(3)
	assert.Assert(t, h != nil)

	buf := []byte{0x00, 0x3c}
	h(buf)
	buf[1] = 0xff

	val, err := nw.Next(ctx)
	assert.NilError(t, err)
	assert.DeepEqual(t, val, []byte{0x00, 0x3c})

	_, err = hr.DisableNotifications(ctx)
	assert.NilError(t, err)
	assert.Assert(t, fd.last().sub(3) == nil)
}

func TestClientNegotiation(t *testing.T) {
	ctx := testCtx(t)
	fd := &fakeDialer{}
	gc := newTestClient(t, NewXportCfg(), fd.dial)
	connect(t, ctx, gc)

	mr, err := gc.RequestMtu(ctx, 512)
	assert.NilError(t, err)
	assert.Equal(t, mr.Mtu, 247)
	assert.Equal(t, gc.Mtu(), 247)

	rr, err := gc.ReadRssi(ctx)
	assert.NilError(t, err)
	assert.Equal(t, rr.Rssi, -55)

	pr, err := gc.SetPhy(ctx, bledefs.BLE_PHY_2M, bledefs.BLE_PHY_2M,
		bledefs.BLE_PHY_OPT_NO_PREFERRED)
	assert.NilError(t, err)
	assert.Equal(t, pr.Status, bledefs.GATT_REQUEST_NOT_SUPPORTED)
}

func TestLocalDisconnect(t *testing.T) {
	ctx := testCtx(t)
	fd := &fakeDialer{}
	gc := newTestClient(t, NewXportCfg(), fd.dial)
	connect(t, ctx, gc)

	assert.NilError(t, gc.Disconnect(ctx))
	assert.Equal(t, gc.State().Status,
		bledefs.CONN_STATUS_TERMINATE_LOCAL_HOST)
}

func TestPeerDisconnect(t *testing.T) {
	ctx := testCtx(t)
	fd := &fakeDialer{}
	gc := newTestClient(t, NewXportCfg(), fd.dial)
	connect(t, ctx, gc)

	w := gc.WatchState()
	defer w.Stop()

	fd.last().CancelConnection()
	s := waitState(t, ctx, w, bledefs.CONN_STATE_DISCONNECTED)
	assert.Equal(t, s.Status, bledefs.CONN_STATUS_LINK_LOSS)

	deadline := time.Now().Add(2 * time.Second)
	for !gc.Released() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Assert(t, gc.Released())
}

func TestAutoReconnect(t *testing.T) {
	ctx := testCtx(t)
	fd := &fakeDialer{}

	cfg := NewXportCfg()
	cfg.AutoConnect = true
	gc := newTestClient(t, cfg, fd.dial)
	connect(t, ctx, gc)

	w := gc.WatchState()
	defer w.Stop()

	fd.last().CancelConnection()
	s := waitState(t, ctx, w, bledefs.CONN_STATE_DISCONNECTED)
	assert.Equal(t, s.Status, bledefs.CONN_STATUS_LINK_LOSS)

	waitState(t, ctx, w, bledefs.CONN_STATE_CONNECTED)
	assert.Equal(t, fd.count(), 2)
	assert.Assert(t, !gc.Released())
}

func TestDialTimeout(t *testing.T) {
	ctx := testCtx(t)

	cfg := NewXportCfg()
	cfg.ConnTimeout = 20 * time.Millisecond
	gc := newTestClient(t, cfg, func(ctx context.Context,
		f ble.AdvFilter) (ble.Client, error) {

		<-ctx.Done()
		return nil, errors.Wrap(ctx.Err(), "can't dial")
	})

	res, err := gc.Connect(ctx)
	assert.NilError(t, err)
	assert.Equal(t, res.State, bledefs.CONN_STATE_DISCONNECTED)
	assert.Equal(t, res.Status, bledefs.CONN_STATUS_TIMEOUT)
}
