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

package sim

import (
	"context"
	"testing"
	"time"

	"gotest.tools/assert"

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/evt"
	"mynewt.apache.org/gattsim/gattx/gattutil"
)

// eventLog is a sink for either side that queues every event it receives.
type eventLog struct {
	mb *gattutil.Mailbox
}

func newEventLog() *eventLog {
	return &eventLog{mb: gattutil.NewMailbox()}
}

func (l *eventLog) OnClientEvent(e evt.ClientEvent) { l.mb.Push(e) }
func (l *eventLog) OnServerEvent(e evt.ServerEvent) { l.mb.Push(e) }

func (l *eventLog) next(t *testing.T) interface{} {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	v, err := l.mb.Pop(ctx)
	assert.NilError(t, err)
	return v
}

func testSvcs() []*bledefs.BleSvc {
	return []*bledefs.BleSvc{
		&bledefs.BleSvc{
			Uuid:    bledefs.MustParseUuid("0x180d"),
			SvcType: bledefs.BLE_SVC_TYPE_PRIMARY,
			Chrs: []*bledefs.BleChr{
				&bledefs.BleChr{
					Uuid: bledefs.MustParseUuid("0x2a37"),
					Flags: bledefs.BLE_GATT_F_READ |
						bledefs.BLE_GATT_F_WRITE |
						bledefs.BLE_GATT_F_NOTIFY,
					Value: []byte{0x00, 0x48},
					Dscs: []*bledefs.BleDsc{
						&bledefs.BleDsc{
							Uuid: bledefs.NewBleUuid16(bledefs.CccdUuid16),
						},
					},
				},
				&bledefs.BleChr{
					Uuid:  bledefs.MustParseUuid("0x2a39"),
					Flags: bledefs.BLE_GATT_F_WRITE_NO_RSP,
				},
			},
		},
	}
}

func newTestSim(t *testing.T) *Simulator {
	s := NewSimulator()
	t.Cleanup(func() { s.Shutdown() })
	return s
}

type testLink struct {
	s      *Simulator
	srv    *bledefs.ServerDevice
	svcs   []*bledefs.BleSvc
	srvLog *eventLog
	client *bledefs.ClientDevice
	cliLog *eventLog
}

func (l *testLink) chr(idx int) *bledefs.BleChr {
	return l.svcs[0].Chrs[idx]
}

// newTestLink registers a server and connects one client to it.  Setup
// events are consumed; the server's numbered table is kept in l.svcs.
func newTestLink(t *testing.T, opts ConnectOptions) *testLink {
	l := &testLink{
		s:      newTestSim(t),
		srvLog: newEventLog(),
		cliLog: newEventLog(),
	}

	svcs := testSvcs()
	var err error
	l.srv, err = l.s.RegisterServerWithServices(l.srvLog, svcs)
	assert.NilError(t, err)
	for range svcs {
		e := l.srvLog.next(t).(*evt.ServiceAdded)
		l.svcs = append(l.svcs, e.Svc)
	}

	l.client, err = l.s.ConnectToServer(l.srv, l.cliLog, opts)
	assert.NilError(t, err)
	l.srvLog.next(t)

	assert.NilError(t, l.s.Connect(l.client))
	l.cliLog.next(t)
	l.cliLog.next(t)

	return l
}

func TestRegisterServer(t *testing.T) {
	t.Parallel()

	s := newTestSim(t)
	assert.NilError(t, s.AddServices(testSvcs()))

	w := s.WatchAdvertised()
	defer w.Stop()

	log := newEventLog()
	dev, err := s.RegisterServer(log)
	assert.NilError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	adv, err := w.Next(ctx)
	assert.NilError(t, err)
	assert.Equal(t, adv, dev)

	// Every service was echoed before the server went on the air.
	assert.Equal(t, log.mb.Len(), 1)
	e := log.next(t).(*evt.ServiceAdded)
	assert.Equal(t, e.Status, bledefs.GATT_SUCCESS)
	assert.Equal(t, e.Svc.Uuid, bledefs.MustParseUuid("0x180d"))

	assert.DeepEqual(t, s.AdvertisedServers(), []*bledefs.ServerDevice{dev})
}

func TestDefaultTableHandles(t *testing.T) {
	t.Parallel()

	s := newTestSim(t)
	svcs := testSvcs()
	assert.NilError(t, s.AddServices(svcs))

	logA := newEventLog()
	_, err := s.RegisterServer(logA)
	assert.NilError(t, err)
	a := logA.next(t).(*evt.ServiceAdded).Svc

	// svc=1, chr=2 (value 3), cccd=4, chr=5 (value 6).
	assert.Equal(t, a.InstanceId, 1)
	assert.Equal(t, a.Chrs[0].InstanceId, 3)
	assert.Equal(t, a.Chrs[0].Dscs[0].InstanceId, 4)
	assert.Equal(t, a.Chrs[1].InstanceId, 6)

	// The caller's tree is never numbered in place.
	assert.Equal(t, svcs[0].InstanceId, 0)
	assert.Equal(t, svcs[0].Chrs[0].InstanceId, 0)
	assert.Equal(t, svcs[0].Chrs[0].Dscs[0].InstanceId, 0)

	// Growing the default table leaves registered servers alone.
	assert.NilError(t, s.AddServices([]*bledefs.BleSvc{
		&bledefs.BleSvc{Uuid: bledefs.MustParseUuid("0x180f")},
	}))
	assert.Equal(t, a.InstanceId, 1)
	assert.Equal(t, a.Chrs[1].InstanceId, 6)

	logB := newEventLog()
	_, err = s.RegisterServer(logB)
	assert.NilError(t, err)
	b0 := logB.next(t).(*evt.ServiceAdded).Svc
	b1 := logB.next(t).(*evt.ServiceAdded).Svc
	assert.Assert(t, b0 != a)
	assert.Equal(t, b0.Chrs[1].InstanceId, 6)
	assert.Equal(t, b1.InstanceId, 7)
}

func TestConnectSequence(t *testing.T) {
	t.Parallel()

	s := newTestSim(t)
	srvLog := newEventLog()
	srv, err := s.RegisterServerWithServices(srvLog, testSvcs())
	assert.NilError(t, err)
	srvLog.next(t)

	cliLog := newEventLog()
	client, err := s.ConnectToServer(srv, cliLog, ConnectOptions{
		Phy: bledefs.BLE_PHY_2M,
	})
	assert.NilError(t, err)

	e := srvLog.next(t).(*evt.ClientConnectionStateChanged)
	assert.Equal(t, e.Device, client)
	assert.Equal(t, e.NewState, bledefs.CONN_STATE_CONNECTED)
	assert.Equal(t, e.Status, bledefs.CONN_STATUS_SUCCESS)

	// The client hears nothing until it connects.
	assert.Equal(t, cliLog.mb.Len(), 0)

	assert.NilError(t, s.Connect(client))
	c1 := cliLog.next(t).(*evt.ConnectionStateChanged)
	assert.Equal(t, c1.NewState, bledefs.CONN_STATE_CONNECTING)
	c2 := cliLog.next(t).(*evt.ConnectionStateChanged)
	assert.Equal(t, c2.NewState, bledefs.CONN_STATE_CONNECTED)
	assert.Equal(t, c2.Status, bledefs.CONN_STATUS_SUCCESS)

	p, err := s.ConnectionParams(client)
	assert.NilError(t, err)
	assert.DeepEqual(t, p, ConnectionParams{
		TxPhy:     bledefs.BLE_PHY_2M,
		RxPhy:     bledefs.BLE_PHY_2M,
		PhyOption: bledefs.BLE_PHY_OPT_NO_PREFERRED,
		Mtu:       0,
		Rssi:      DFLT_RSSI,
	})
}

func TestUnknownServer(t *testing.T) {
	t.Parallel()

	s := newTestSim(t)
	_, err := s.ConnectToServer(bledefs.NewServerDevice("ghost"),
		newEventLog(), ConnectOptions{})
	assert.Assert(t, gattutil.IsUnknownDevice(err))
}

func TestRequestIdsResolveOnce(t *testing.T) {
	t.Parallel()

	l := newTestLink(t, ConnectOptions{})
	chr := l.chr(0)

	assert.NilError(t, l.s.ReadCharacteristic(l.client, chr))
	assert.NilError(t, l.s.ReadCharacteristic(l.client, chr))

	r1 := l.srvLog.next(t).(*evt.CharacteristicReadRequest)
	r2 := l.srvLog.next(t).(*evt.CharacteristicReadRequest)
	assert.Assert(t, r1.RequestId != r2.RequestId)
	assert.Equal(t, r1.Chr, chr)
	assert.Equal(t, l.s.NumOutstanding(), 2)

	err := l.s.SendResponse(l.srv, l.client, r1.RequestId,
		bledefs.GATT_SUCCESS, 0, []byte{0x07})
	assert.NilError(t, err)

	rsp := l.cliLog.next(t).(*evt.CharacteristicRead)
	assert.Equal(t, rsp.Chr, chr)
	assert.DeepEqual(t, rsp.Value, []byte{0x07})
	assert.Equal(t, rsp.Status, bledefs.GATT_SUCCESS)

	err = l.s.SendResponse(l.srv, l.client, r1.RequestId,
		bledefs.GATT_SUCCESS, 0, []byte{0x08})
	assert.Assert(t, gattutil.IsRequestNotFound(err))
	assert.Equal(t, l.s.NumOutstanding(), 1)
}

func TestResponseKinds(t *testing.T) {
	t.Parallel()

	l := newTestLink(t, ConnectOptions{})
	chr := l.chr(0)
	dsc := chr.Dscs[0]

	assert.NilError(t, l.s.WriteCharacteristic(l.client, chr, []byte{1},
		bledefs.BLE_WRITE_TYPE_DEFAULT))
	cw := l.srvLog.next(t).(*evt.CharacteristicWriteRequest)
	assert.Equal(t, cw.ResponseNeeded, true)
	assert.NilError(t, l.s.SendResponse(l.srv, l.client, cw.RequestId,
		bledefs.GATT_WRITE_NOT_PERMITTED, 0, []byte{}))
	chrWrite := l.cliLog.next(t).(*evt.CharacteristicWrite)
	assert.Equal(t, chrWrite.Status, bledefs.GATT_WRITE_NOT_PERMITTED)

	assert.NilError(t, l.s.ReadDescriptor(l.client, dsc))
	dr := l.srvLog.next(t).(*evt.DescriptorReadRequest)
	assert.NilError(t, l.s.SendResponse(l.srv, l.client, dr.RequestId,
		bledefs.GATT_SUCCESS, 0, []byte{1, 0}))
	dscRead := l.cliLog.next(t).(*evt.DescriptorRead)
	assert.Equal(t, dscRead.Dsc, dsc)
	assert.DeepEqual(t, dscRead.Value, []byte{1, 0})

	assert.NilError(t, l.s.WriteDescriptor(l.client, dsc, []byte{1, 0}))
	dw := l.srvLog.next(t).(*evt.DescriptorWriteRequest)
	assert.Equal(t, dw.ResponseNeeded, true)
	assert.NilError(t, l.s.SendResponse(l.srv, l.client, dw.RequestId,
		bledefs.GATT_SUCCESS, 0, []byte{1, 0}))
	dscWrite := l.cliLog.next(t).(*evt.DescriptorWrite)
	assert.Equal(t, dscWrite.Dsc, dsc)
	assert.Equal(t, dscWrite.Status, bledefs.GATT_SUCCESS)
}

// A server that answers a write with a nil value acknowledges a reliable
// write; the client gets no characteristic write event.
func TestNilResponseCompletesReliableWrite(t *testing.T) {
	t.Parallel()

	l := newTestLink(t, ConnectOptions{})
	chr := l.chr(0)

	assert.NilError(t, l.s.WriteCharacteristic(l.client, chr, []byte{0x01},
		bledefs.BLE_WRITE_TYPE_DEFAULT))

	req := l.srvLog.next(t).(*evt.CharacteristicWriteRequest)
	assert.Equal(t, req.Chr, chr)
	assert.DeepEqual(t, req.Value, []byte{0x01})
	assert.Equal(t, req.Device, l.client)

	assert.NilError(t, l.s.SendResponse(l.srv, l.client, req.RequestId,
		bledefs.GATT_SUCCESS, 0, nil))

	e := l.cliLog.next(t).(*evt.ReliableWriteCompleted)
	assert.Equal(t, e.Status, bledefs.GATT_SUCCESS)
	assert.Equal(t, l.s.NumOutstanding(), 0)
}

func TestWriteNoResponse(t *testing.T) {
	t.Parallel()

	l := newTestLink(t, ConnectOptions{})
	chr := l.chr(1)

	assert.NilError(t, l.s.WriteCharacteristic(l.client, chr, []byte{0x05},
		bledefs.BLE_WRITE_TYPE_NO_RESPONSE))

	req := l.srvLog.next(t).(*evt.CharacteristicWriteRequest)
	assert.Equal(t, req.ResponseNeeded, false)

	e := l.cliLog.next(t).(*evt.CharacteristicWrite)
	assert.Equal(t, e.Chr, chr)
	assert.Equal(t, e.Status, bledefs.GATT_SUCCESS)
	assert.Equal(t, l.s.NumOutstanding(), 0)

	err := l.s.SendResponse(l.srv, l.client, req.RequestId,
		bledefs.GATT_SUCCESS, 0, []byte{})
	assert.Assert(t, gattutil.IsRequestNotFound(err))
}

func TestNotifyRequiresSubscription(t *testing.T) {
	t.Parallel()

	l := newTestLink(t, ConnectOptions{})
	chr := l.chr(0)

	assert.NilError(t, l.s.NotifyCharacteristicChanged(l.srv, l.client, chr,
		false, []byte{0x01}))

	// The RSSI event would queue behind a delivered notification.
	assert.NilError(t, l.s.ReadRemoteRssi(l.client))
	_, ok := l.cliLog.next(t).(*evt.ReadRemoteRssi)
	assert.Assert(t, ok)

	assert.NilError(t, l.s.SetCharacteristicNotification(l.client, chr, true))
	assert.NilError(t, l.s.NotifyCharacteristicChanged(l.srv, l.client, chr,
		false, []byte{0x02}))

	e := l.cliLog.next(t).(*evt.CharacteristicChanged)
	assert.Equal(t, e.Chr, chr)
	assert.DeepEqual(t, e.Value, []byte{0x02})

	assert.NilError(t, l.s.SetCharacteristicNotification(l.client, chr,
		false))
	assert.NilError(t, l.s.NotifyCharacteristicChanged(l.srv, l.client, chr,
		false, []byte{0x03}))
	assert.NilError(t, l.s.ReadRemoteRssi(l.client))
	_, ok = l.cliLog.next(t).(*evt.ReadRemoteRssi)
	assert.Assert(t, ok)
}

func TestPhyNegotiation(t *testing.T) {
	t.Parallel()

	l := newTestLink(t, ConnectOptions{})

	assert.NilError(t, l.s.SetPreferredPhy(l.client, bledefs.BLE_PHY_2M,
		bledefs.BLE_PHY_2M, bledefs.BLE_PHY_OPT_S2))

	up := l.cliLog.next(t).(*evt.PhyUpdate)
	assert.Equal(t, up.TxPhy, bledefs.BLE_PHY_2M)
	assert.Equal(t, up.Status, bledefs.GATT_SUCCESS)

	sup := l.srvLog.next(t).(*evt.ServerPhyUpdate)
	assert.Equal(t, sup.Device, l.client)
	assert.Equal(t, sup.RxPhy, bledefs.BLE_PHY_2M)

	assert.NilError(t, l.s.ServerReadPhy(l.srv, l.client))
	rd := l.srvLog.next(t).(*evt.ServerPhyRead)
	assert.Equal(t, rd.TxPhy, bledefs.BLE_PHY_2M)
	assert.Equal(t, rd.RxPhy, bledefs.BLE_PHY_2M)

	// And back from the server side.
	assert.NilError(t, l.s.ServerSetPreferredPhy(l.srv, l.client,
		bledefs.BLE_PHY_CODED, bledefs.BLE_PHY_CODED, bledefs.BLE_PHY_OPT_S8))
	l.srvLog.next(t)
	l.cliLog.next(t)

	assert.NilError(t, l.s.ReadPhy(l.client))
	crd := l.cliLog.next(t).(*evt.PhyRead)
	assert.Equal(t, crd.TxPhy, bledefs.BLE_PHY_CODED)
	assert.Equal(t, crd.RxPhy, bledefs.BLE_PHY_CODED)

	p, err := l.s.ConnectionParams(l.client)
	assert.NilError(t, err)
	assert.Equal(t, p.PhyOption, bledefs.BLE_PHY_OPT_S8)
}

func TestRequestMtu(t *testing.T) {
	t.Parallel()

	l := newTestLink(t, ConnectOptions{})

	assert.NilError(t, l.s.RequestMtu(l.client, 185))
	e := l.cliLog.next(t).(*evt.MtuChanged)
	assert.Equal(t, e.Mtu, 185)
	assert.Equal(t, e.Status, bledefs.GATT_SUCCESS)

	se := l.srvLog.next(t).(*evt.ServerMtuChanged)
	assert.Equal(t, se.Mtu, 185)

	assert.NilError(t, l.s.RequestMtu(l.client, 9000))
	e = l.cliLog.next(t).(*evt.MtuChanged)
	assert.Equal(t, e.Mtu, bledefs.BLE_ATT_MTU_MAX)
}

func TestRssi(t *testing.T) {
	t.Parallel()

	l := newTestLink(t, ConnectOptions{})

	assert.NilError(t, l.s.ReadRemoteRssi(l.client))
	e := l.cliLog.next(t).(*evt.ReadRemoteRssi)
	assert.Equal(t, e.Rssi, DFLT_RSSI)

	assert.NilError(t, l.s.SetRssi(l.client, -60))
	assert.NilError(t, l.s.ReadRemoteRssi(l.client))
	e = l.cliLog.next(t).(*evt.ReadRemoteRssi)
	assert.Equal(t, e.Rssi, -60)
}

func TestDisconnect(t *testing.T) {
	t.Parallel()

	l := newTestLink(t, ConnectOptions{})
	assert.NilError(t, l.s.ReadCharacteristic(l.client, l.chr(0)))
	req := l.srvLog.next(t).(*evt.CharacteristicReadRequest)

	assert.NilError(t, l.s.Disconnect(l.client))

	e1 := l.cliLog.next(t).(*evt.ConnectionStateChanged)
	assert.Equal(t, e1.NewState, bledefs.CONN_STATE_DISCONNECTING)
	e2 := l.cliLog.next(t).(*evt.ConnectionStateChanged)
	assert.Equal(t, e2.NewState, bledefs.CONN_STATE_DISCONNECTED)
	assert.Equal(t, e2.Status, bledefs.CONN_STATUS_TERMINATE_LOCAL_HOST)

	se := l.srvLog.next(t).(*evt.ClientConnectionStateChanged)
	assert.Equal(t, se.NewState, bledefs.CONN_STATE_DISCONNECTED)

	// The request died with the link.
	err := l.s.SendResponse(l.srv, l.client, req.RequestId,
		bledefs.GATT_SUCCESS, 0, []byte{})
	assert.Assert(t, gattutil.IsRequestNotFound(err))

	err = l.s.ReadCharacteristic(l.client, l.chr(0))
	assert.Assert(t, gattutil.IsNotConnected(err))
}

func TestCancelConnection(t *testing.T) {
	t.Parallel()

	l := newTestLink(t, ConnectOptions{})
	assert.NilError(t, l.s.CancelConnection(l.srv, l.client))

	e := l.cliLog.next(t).(*evt.ConnectionStateChanged)
	assert.Equal(t, e.NewState, bledefs.CONN_STATE_DISCONNECTED)
	assert.Equal(t, e.Status, bledefs.CONN_STATUS_TERMINATE_PEER_USER)
	assert.Assert(t, !e.Status.IsLinkLoss())

	se := l.srvLog.next(t).(*evt.ClientConnectionStateChanged)
	assert.Equal(t, se.Status, bledefs.CONN_STATUS_TERMINATE_LOCAL_HOST)
}

func TestLinkLossAndReconnect(t *testing.T) {
	t.Parallel()

	l := newTestLink(t, ConnectOptions{AutoConnect: true})
	assert.NilError(t, l.s.SimulateLinkLoss(l.client))

	e := l.cliLog.next(t).(*evt.ConnectionStateChanged)
	assert.Equal(t, e.Status, bledefs.CONN_STATUS_LINK_LOSS)
	assert.Assert(t, e.Status.IsLinkLoss())
	se := l.srvLog.next(t).(*evt.ClientConnectionStateChanged)
	assert.Equal(t, se.Status, bledefs.CONN_STATUS_LINK_LOSS)

	assert.NilError(t, l.s.SimulateReconnect(l.client))
	se = l.srvLog.next(t).(*evt.ClientConnectionStateChanged)
	assert.Equal(t, se.NewState, bledefs.CONN_STATE_CONNECTED)
	e = l.cliLog.next(t).(*evt.ConnectionStateChanged)
	assert.Equal(t, e.NewState, bledefs.CONN_STATE_CONNECTED)
}

func TestReconnectNeedsAutoConnect(t *testing.T) {
	t.Parallel()

	l := newTestLink(t, ConnectOptions{})
	assert.NilError(t, l.s.SimulateLinkLoss(l.client))

	err := l.s.SimulateReconnect(l.client)
	assert.Assert(t, gattutil.IsNotConnected(err))
}

func TestServiceChanged(t *testing.T) {
	t.Parallel()

	l := newTestLink(t, ConnectOptions{})
	assert.NilError(t, l.s.SimulateServiceChanged(l.srv))

	_, ok := l.cliLog.next(t).(*evt.ServiceChanged)
	assert.Assert(t, ok)
}

func TestPerServerTables(t *testing.T) {
	t.Parallel()

	s := newTestSim(t)

	other := []*bledefs.BleSvc{
		&bledefs.BleSvc{Uuid: bledefs.MustParseUuid("0x180f")},
	}

	srvA, err := s.RegisterServerWithServices(newEventLog(), testSvcs())
	assert.NilError(t, err)
	srvB, err := s.RegisterServerWithServices(newEventLog(), other)
	assert.NilError(t, err)

	discover := func(srv *bledefs.ServerDevice) []*bledefs.BleSvc {
		log := newEventLog()
		client, err := s.ConnectToServer(srv, log, ConnectOptions{})
		assert.NilError(t, err)
		assert.NilError(t, s.Connect(client))
		log.next(t)
		log.next(t)

		assert.NilError(t, s.DiscoverServices(client))
		e := log.next(t).(*evt.ServicesDiscovered)
		assert.Equal(t, e.Status, bledefs.GATT_SUCCESS)
		return e.Services
	}

	assert.Equal(t, discover(srvA)[0].Uuid, bledefs.MustParseUuid("0x180d"))
	want, _ := bledefs.AssignHandles(other, 1)
	assert.DeepEqual(t, discover(srvB), want)
	assert.Equal(t, other[0].InstanceId, 0)
}

func TestMultiplePeers(t *testing.T) {
	t.Parallel()

	l := newTestLink(t, ConnectOptions{})

	log2 := newEventLog()
	client2, err := l.s.ConnectToServer(l.srv, log2, ConnectOptions{})
	assert.NilError(t, err)
	assert.Assert(t, client2 != l.client)
	l.srvLog.next(t)

	clients, err := l.s.Clients(l.srv)
	assert.NilError(t, err)
	assert.Equal(t, len(clients), 2)

	assert.NilError(t, l.s.Connect(client2))
	assert.NilError(t, l.s.SetPreferredPhy(client2, bledefs.BLE_PHY_2M,
		bledefs.BLE_PHY_1M, bledefs.BLE_PHY_OPT_NO_PREFERRED))

	p1, err := l.s.ConnectionParams(l.client)
	assert.NilError(t, err)
	p2, err := l.s.ConnectionParams(client2)
	assert.NilError(t, err)
	assert.Equal(t, p1.TxPhy, bledefs.BLE_PHY_1M)
	assert.Equal(t, p2.TxPhy, bledefs.BLE_PHY_2M)
}

func TestCloseCleanupPrune(t *testing.T) {
	t.Parallel()

	l := newTestLink(t, ConnectOptions{})
	assert.NilError(t, l.s.Close(l.client))

	se := l.srvLog.next(t).(*evt.ClientConnectionStateChanged)
	assert.Equal(t, se.NewState, bledefs.CONN_STATE_DISCONNECTED)

	err := l.s.Connect(l.client)
	assert.Assert(t, gattutil.IsClosed(err))
	assert.Equal(t, l.s.NumConnections(), 1)

	n, err := l.s.Prune()
	assert.NilError(t, err)
	assert.Equal(t, n, 1)
	assert.Equal(t, l.s.NumConnections(), 0)

	err = l.s.Connect(l.client)
	assert.Assert(t, gattutil.IsUnknownDevice(err))

	err = l.s.Cleanup(l.client)
	assert.Assert(t, gattutil.IsUnknownDevice(err))
}

func TestCleanupLiveConnection(t *testing.T) {
	t.Parallel()

	l := newTestLink(t, ConnectOptions{})
	assert.NilError(t, l.s.ReadCharacteristic(l.client, l.chr(0)))
	l.srvLog.next(t)
	assert.Equal(t, l.s.NumOutstanding(), 1)

	assert.NilError(t, l.s.Cleanup(l.client))
	assert.Equal(t, l.s.NumOutstanding(), 0)
	assert.Equal(t, l.s.NumConnections(), 0)

	clients, err := l.s.Clients(l.srv)
	assert.NilError(t, err)
	assert.Equal(t, len(clients), 0)
}

func TestUnregisterServer(t *testing.T) {
	t.Parallel()

	l := newTestLink(t, ConnectOptions{})
	assert.NilError(t, l.s.UnregisterServer(l.srv))
	assert.Equal(t, len(l.s.AdvertisedServers()), 0)

	e := l.cliLog.next(t).(*evt.ConnectionStateChanged)
	assert.Equal(t, e.NewState, bledefs.CONN_STATE_DISCONNECTED)
	assert.Equal(t, e.Status, bledefs.CONN_STATUS_TIMEOUT)

	// Reconnecting to a vanished server fails in-band.
	assert.NilError(t, l.s.Connect(l.client))
	e = l.cliLog.next(t).(*evt.ConnectionStateChanged)
	assert.Equal(t, e.NewState, bledefs.CONN_STATE_CONNECTING)
	e = l.cliLog.next(t).(*evt.ConnectionStateChanged)
	assert.Equal(t, e.NewState, bledefs.CONN_STATE_DISCONNECTED)
	assert.Equal(t, e.Status, bledefs.CONN_STATUS_TIMEOUT)
}

func TestShutdown(t *testing.T) {
	t.Parallel()

	s := NewSimulator()
	assert.NilError(t, s.Shutdown())

	_, err := s.RegisterServer(newEventLog())
	assert.Assert(t, gattutil.IsClosed(err))
}

func TestRequestHolder(t *testing.T) {
	h := NewRequestHolder()
	a := bledefs.NewClientDevice("a")
	b := bledefs.NewClientDevice("b")
	chr := &bledefs.BleChr{}

	r1 := h.Add(REQ_CHR_READ, a, chr, nil)
	r2 := h.Add(REQ_CHR_READ, b, chr, nil)
	id := h.NextId()
	assert.Assert(t, r1.Id < r2.Id && r2.Id < id)

	_, err := h.Take(r1.Id, b)
	assert.Assert(t, gattutil.IsRequestNotFound(err))

	r, err := h.Take(r1.Id, a)
	assert.NilError(t, err)
	assert.Equal(t, r, r1)

	assert.Equal(t, h.DropClient(b), 1)
	assert.Equal(t, h.Len(), 0)
}

func TestResponseEventPanicsOnUnknownKind(t *testing.T) {
	defer func() {
		assert.Assert(t, recover() != nil)
	}()

	responseEvent(&PendingRequest{Kind: RequestKind(99)},
		bledefs.GATT_SUCCESS, []byte{})
}
