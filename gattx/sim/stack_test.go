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
	"mynewt.apache.org/gattsim/gattx/client"
	"mynewt.apache.org/gattsim/gattx/server"
)

type testStack struct {
	s   *Simulator
	gs  *server.GattServer
	gc  *client.GattClient
	ctx context.Context
}

func newTestStack(t *testing.T, opts ConnectOptions) *testStack {
	s := newTestSim(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	w := s.WatchAdvertised()
	defer w.Stop()

	gs := server.NewGattServer(NewServerXport(s, testSvcs()))
	assert.NilError(t, gs.Start())

	dev, err := w.Next(ctx)
	assert.NilError(t, err)

	gc := client.NewGattClient(NewClientXport(s, dev, opts))
	assert.NilError(t, gc.Start())

	return &testStack{
		s:   s,
		gs:  gs,
		gc:  gc,
		ctx: ctx,
	}
}

func (ts *testStack) connect(t *testing.T) *client.ClientServices {
	res, err := ts.gc.Connect(ts.ctx)
	assert.NilError(t, err)
	assert.Equal(t, res.State, bledefs.CONN_STATE_CONNECTED)

	svcs, err := ts.gc.WaitForServices(ts.ctx)
	assert.NilError(t, err)
	return svcs
}

func TestStackReadWrite(t *testing.T) {
	t.Parallel()

	ts := newTestStack(t, ConnectOptions{})
	svcs := ts.connect(t)

	ch := svcs.FindCharacteristic(bledefs.MustParseUuid("0x2a37"),
		bledefs.ANY_INSTANCE)
	assert.Assert(t, ch != nil)

	rr, err := ch.Read(ts.ctx)
	assert.NilError(t, err)
	assert.Equal(t, rr.Status, bledefs.GATT_SUCCESS)
	assert.DeepEqual(t, rr.Value, []byte{0x00, 0x48})

	conns, err := ts.gs.WaitForConnections(ts.ctx, 1)
	assert.NilError(t, err)
	sch := conns[0].FindCharacteristic(ch.Chr().Uuid, ch.Chr().InstanceId)
	assert.Assert(t, sch != nil)

	writes := sch.Writes()
	defer writes.Stop()

	wr, err := ch.Write(ts.ctx, []byte{0x00, 0x50},
		bledefs.BLE_WRITE_TYPE_DEFAULT)
	assert.NilError(t, err)
	assert.Equal(t, wr.Status, bledefs.GATT_SUCCESS)

	val, err := writes.Next(ts.ctx)
	assert.NilError(t, err)
	assert.DeepEqual(t, val, []byte{0x00, 0x50})
	assert.DeepEqual(t, sch.Value(), []byte{0x00, 0x50})
}

func TestStackNotifications(t *testing.T) {
	t.Parallel()

	ts := newTestStack(t, ConnectOptions{})
	svcs := ts.connect(t)

	ch := svcs.FindCharacteristic(bledefs.MustParseUuid("0x2a37"),
		bledefs.ANY_INSTANCE)
	nw := ch.Notifications()
	defer nw.Stop()

	res, err := ch.EnableNotifications(ts.ctx)
	assert.NilError(t, err)
	assert.Equal(t, res.Status, bledefs.GATT_SUCCESS)

	_, err = ts.gs.WaitForConnections(ts.ctx, 1)
	assert.NilError(t, err)
	assert.NilError(t, ts.gs.Notify(ch.Chr().Id(), []byte{0x00, 0x3c}))

	val, err := nw.Next(ts.ctx)
	assert.NilError(t, err)
	assert.DeepEqual(t, val, []byte{0x00, 0x3c})
}

func TestStackNegotiation(t *testing.T) {
	t.Parallel()

	ts := newTestStack(t, ConnectOptions{Rssi: -42})
	ts.connect(t)

	mr, err := ts.gc.RequestMtu(ts.ctx, 185)
	assert.NilError(t, err)
	assert.Equal(t, mr.Mtu, 185)
	assert.Equal(t, mr.Status, bledefs.GATT_SUCCESS)
	assert.Equal(t, ts.gc.Mtu(), 185)

	rr, err := ts.gc.ReadRssi(ts.ctx)
	assert.NilError(t, err)
	assert.Equal(t, rr.Rssi, -42)

	pr, err := ts.gc.SetPhy(ts.ctx, bledefs.BLE_PHY_2M, bledefs.BLE_PHY_2M,
		bledefs.BLE_PHY_OPT_S2)
	assert.NilError(t, err)
	assert.Equal(t, pr.Phy, bledefs.PhyInfo{
		TxPhy: bledefs.BLE_PHY_2M,
		RxPhy: bledefs.BLE_PHY_2M,
	})

	pr, err = ts.gc.ReadPhy(ts.ctx)
	assert.NilError(t, err)
	assert.Equal(t, pr.Phy.RxPhy, bledefs.BLE_PHY_2M)
}

func TestStackDisconnectReleases(t *testing.T) {
	t.Parallel()

	ts := newTestStack(t, ConnectOptions{})
	ts.connect(t)

	assert.NilError(t, ts.gc.Disconnect(ts.ctx))
	assert.Equal(t, ts.gc.State().Status,
		bledefs.CONN_STATUS_TERMINATE_LOCAL_HOST)

	deadline := time.Now().Add(2 * time.Second)
	for !ts.gc.Released() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	assert.Assert(t, ts.gc.Released())
}

func TestStackLinkLossRetainsAutoConnect(t *testing.T) {
	t.Parallel()

	ts := newTestStack(t, ConnectOptions{AutoConnect: true})
	ts.connect(t)

	xp := ts.gc.Xport().(*ClientXport)
	w := ts.gc.WatchState()
	defer w.Stop()

	assert.NilError(t, ts.s.SimulateLinkLoss(xp.Device()))
	for {
		st, err := w.Next(ts.ctx)
		assert.NilError(t, err)
		if st.State == bledefs.CONN_STATE_DISCONNECTED {
			assert.Equal(t, st.Status, bledefs.CONN_STATUS_LINK_LOSS)
			break
		}
	}
	assert.Assert(t, !ts.gc.Released())

	// The platform restores the link and discovery runs again.
	sw := ts.gc.WatchServices()
	defer sw.Stop()
	sw.Next(ts.ctx)

	assert.NilError(t, ts.s.SimulateReconnect(xp.Device()))
	svcs, err := sw.Next(ts.ctx)
	assert.NilError(t, err)
	assert.Assert(t, svcs != nil)
	assert.Equal(t, ts.gc.State().State, bledefs.CONN_STATE_CONNECTED)
}
