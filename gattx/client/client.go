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

	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/evt"
	"mynewt.apache.org/gattsim/gattx/gattutil"
	"mynewt.apache.org/gattsim/gattx/xport"
)

// GattClient drives one link to a peripheral.  Its state changes only in
// response to events from the transport; calls issue commands and wait for
// the event that answers them.
type GattClient struct {
	xp   xport.ClientXport
	corr *Correlator

	// bledefs.StateWithStatus
	state *gattutil.Watchable

	// *ClientServices; nil until the first successful discovery.
	svcs *gattutil.Watchable

	// int
	mtu *gattutil.Watchable

	// bledefs.PhyInfo
	phy *gattutil.Watchable

	discStatus bledefs.OperationStatus
	started    bool
	released   bool
	mtx        sync.Mutex
}

func NewGattClient(xp xport.ClientXport) *GattClient {
	return &GattClient{
		xp:   xp,
		corr: NewCorrelator(),
		state: gattutil.NewWatchable(bledefs.StateWithStatus{
			State:  bledefs.CONN_STATE_DISCONNECTED,
			Status: bledefs.CONN_STATUS_SUCCESS,
		}),
		svcs: gattutil.NewWatchable((*ClientServices)(nil)),
		mtu:  gattutil.NewWatchable(bledefs.BLE_ATT_MTU_DFLT),
		phy: gattutil.NewWatchable(bledefs.PhyInfo{
			TxPhy: bledefs.BLE_PHY_1M,
			RxPhy: bledefs.BLE_PHY_1M,
		}),
	}
}

// Start attaches the client to its transport.  No events are processed
// before Start.
func (c *GattClient) Start() error {
	c.mtx.Lock()
	if c.started {
		c.mtx.Unlock()
		return gattutil.NewAlreadyError("gatt client already started")
	}
	c.started = true
	c.mtx.Unlock()

	return c.xp.Start(c)
}

func (c *GattClient) Xport() xport.ClientXport {
	return c.xp
}

// OnClientEvent implements evt.ClientSink.
func (c *GattClient) OnClientEvent(e evt.ClientEvent) {
	log.Debugf("gatt client rx: %s", e.String())
	e.Dispatch(clientHandler{c})
}

func (c *GattClient) State() bledefs.StateWithStatus {
	return c.state.Get().(bledefs.StateWithStatus)
}

func (c *GattClient) WatchState() *StateWatcher {
	return &StateWatcher{newWatcher(c.state)}
}

// Services returns the most recently discovered service tree, or nil if
// discovery has not yet succeeded.
func (c *GattClient) Services() *ClientServices {
	return c.svcs.Get().(*ClientServices)
}

func (c *GattClient) WatchServices() *ServicesWatcher {
	return &ServicesWatcher{newWatcher(c.svcs)}
}

// WaitForServices blocks until a service tree is available.
func (c *GattClient) WaitForServices(
	ctx context.Context) (*ClientServices, error) {

	val, err := c.svcs.WaitFor(ctx, func(v interface{}) bool {
		return v.(*ClientServices) != nil
	})
	if err != nil {
		return nil, err
	}

	return val.(*ClientServices), nil
}

// DiscoveryStatus reports the status of the most recent discovery.
func (c *GattClient) DiscoveryStatus() bledefs.OperationStatus {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.discStatus
}

func (c *GattClient) Mtu() int {
	return c.mtu.Get().(int)
}

func (c *GattClient) WatchMtu() *MtuWatcher {
	return &MtuWatcher{newWatcher(c.mtu)}
}

// Phy returns the PHY most recently read or negotiated.
func (c *GattClient) Phy() bledefs.PhyInfo {
	return c.phy.Get().(bledefs.PhyInfo)
}

// Released indicates whether the client has released its transport handle.
func (c *GattClient) Released() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.released
}

func (c *GattClient) release() {
	c.mtx.Lock()
	if c.released {
		c.mtx.Unlock()
		return
	}
	c.released = true
	c.mtx.Unlock()

	log.Debugf("gatt client releasing transport handle")
	if err := c.xp.Close(); err != nil {
		log.Debugf("error closing transport: %s", err.Error())
	}
}

// await issues a command and waits for the event that answers it.
func (c *GattClient) await(ctx context.Context, key ListenerKey,
	issue func() error) (interface{}, error) {

	l := c.corr.AddListener(key)
	if err := issue(); err != nil {
		c.corr.RemoveListener(l)
		return nil, err
	}

	select {
	case res := <-l.ResultChan:
		return res, nil

	case err := <-l.ErrChan:
		return nil, err

	case <-ctx.Done():
		c.corr.Abandon(l)
		return nil, ctx.Err()
	}
}

// Connect brings the link up.  A failed attempt is not an error: the result
// carries the DISCONNECTED state and the failure status.
func (c *GattClient) Connect(
	ctx context.Context) (bledefs.StateWithStatus, error) {

	if cur := c.State(); cur.State == bledefs.CONN_STATE_CONNECTED {
		return cur, nil
	}

	log.Debugf("connect - start")
	res, err := c.await(ctx, OpKey(OP_CONNECT), c.xp.Connect)
	if err != nil {
		return bledefs.StateWithStatus{}, err
	}

	s := res.(bledefs.StateWithStatus)
	log.Debugf("connect - end: %s", s)
	return s, nil
}

// Disconnect takes the link down and waits until the transport reports it
// disconnected.
func (c *GattClient) Disconnect(ctx context.Context) error {
	w := c.WatchState()
	defer w.Stop()

	log.Debugf("disconnect - start")
	if err := c.xp.Disconnect(); err != nil {
		return err
	}

	for {
		s, err := w.Next(ctx)
		if err != nil {
			return err
		}
		if s.State == bledefs.CONN_STATE_DISCONNECTED {
			log.Debugf("disconnect - end: %s", s)
			return nil
		}
	}
}

// DiscoverServices re-runs discovery.  The new tree is published on the
// services stream.
func (c *GattClient) DiscoverServices() error {
	return c.xp.DiscoverServices()
}

func (c *GattClient) ClearServicesCache() error {
	return c.xp.ClearServicesCache()
}

func (c *GattClient) RequestMtu(ctx context.Context,
	mtu int) (bledefs.MtuResult, error) {

	log.Debugf("request mtu - start, mtu: %d", mtu)
	res, err := c.await(ctx, OpKey(OP_MTU), func() error {
		return c.xp.RequestMtu(mtu)
	})
	if err != nil {
		return bledefs.MtuResult{}, err
	}

	r := res.(bledefs.MtuResult)
	log.Debugf("request mtu - end, mtu: %d status: %s", r.Mtu, r.Status)
	return r, nil
}

func (c *GattClient) ReadRssi(ctx context.Context) (bledefs.RssiResult, error) {
	log.Debugf("read rssi - start")
	res, err := c.await(ctx, OpKey(OP_RSSI), c.xp.ReadRemoteRssi)
	if err != nil {
		return bledefs.RssiResult{}, err
	}

	r := res.(bledefs.RssiResult)
	log.Debugf("read rssi - end, rssi: %d status: %s", r.Rssi, r.Status)
	return r, nil
}

func (c *GattClient) SetPhy(ctx context.Context, txPhy bledefs.BlePhy,
	rxPhy bledefs.BlePhy, opt bledefs.PhyOption) (bledefs.PhyResult, error) {

	log.Debugf("set phy - start, tx: %s rx: %s opt: %s", txPhy, rxPhy, opt)
	res, err := c.await(ctx, OpKey(OP_PHY), func() error {
		return c.xp.SetPreferredPhy(txPhy, rxPhy, opt)
	})
	if err != nil {
		return bledefs.PhyResult{}, err
	}

	r := res.(bledefs.PhyResult)
	log.Debugf("set phy - end, %s status: %s", r.Phy, r.Status)
	return r, nil
}

func (c *GattClient) ReadPhy(ctx context.Context) (bledefs.PhyResult, error) {
	log.Debugf("read phy - start")
	res, err := c.await(ctx, OpKey(OP_PHY), c.xp.ReadPhy)
	if err != nil {
		return bledefs.PhyResult{}, err
	}

	r := res.(bledefs.PhyResult)
	log.Debugf("read phy - end, %s status: %s", r.Phy, r.Status)
	return r, nil
}

func (c *GattClient) readChr(ctx context.Context,
	chr *bledefs.BleChr) (bledefs.ReadResult, error) {

	log.Debugf("read %s - start", chr)
	res, err := c.await(ctx, AttrKey(OP_CHR_READ, chr.Id()), func() error {
		return c.xp.ReadCharacteristic(chr)
	})
	if err != nil {
		return bledefs.ReadResult{}, err
	}

	r := res.(bledefs.ReadResult)
	log.Debugf("read %s - end, status: %s", chr, r.Status)
	return r, nil
}

func (c *GattClient) writeChr(ctx context.Context, chr *bledefs.BleChr,
	value []byte, wt bledefs.WriteType) (bledefs.WriteResult, error) {

	log.Debugf("write %s - start, type: %s", chr, wt)
	res, err := c.await(ctx, AttrKey(OP_CHR_WRITE, chr.Id()), func() error {
		return c.xp.WriteCharacteristic(chr, value, wt)
	})
	if err != nil {
		return bledefs.WriteResult{}, err
	}

	r := res.(bledefs.WriteResult)
	log.Debugf("write %s - end, status: %s", chr, r.Status)
	return r, nil
}

func (c *GattClient) readDsc(ctx context.Context,
	dsc *bledefs.BleDsc) (bledefs.ReadResult, error) {

	res, err := c.await(ctx, AttrKey(OP_DSC_READ, dsc.Id()), func() error {
		return c.xp.ReadDescriptor(dsc)
	})
	if err != nil {
		return bledefs.ReadResult{}, err
	}

	return res.(bledefs.ReadResult), nil
}

func (c *GattClient) writeDsc(ctx context.Context, dsc *bledefs.BleDsc,
	value []byte) (bledefs.WriteResult, error) {

	res, err := c.await(ctx, AttrKey(OP_DSC_WRITE, dsc.Id()), func() error {
		return c.xp.WriteDescriptor(dsc, value)
	})
	if err != nil {
		return bledefs.WriteResult{}, err
	}

	return res.(bledefs.WriteResult), nil
}

// Close releases the transport handle and every watcher.
func (c *GattClient) Close() {
	c.corr.Fail(gattutil.NewClosedError("gatt client closed"))
	c.release()

	c.state.Close()
	c.svcs.Close()
	c.mtu.Close()
	c.phy.Close()
}
