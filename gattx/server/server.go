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

package server

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/evt"
	"mynewt.apache.org/gattsim/gattx/gattutil"
	"mynewt.apache.org/gattsim/gattx/xport"
)

// GattServer serves an attribute table to any number of connected clients.
// Each client gets its own set of service wrappers, so characteristic values
// are tracked per connection.
type GattServer struct {
	xp xport.ServerXport

	svcs  []*bledefs.BleSvc
	conns map[*bledefs.ClientDevice]*ServerConnection

	// []*ServerConnection snapshot.
	connList *gattutil.Watchable

	started bool
	mtx     sync.Mutex
}

// ServerConnection is the server's view of one connected client.
type ServerConnection struct {
	srv  *GattServer
	dev  *bledefs.ClientDevice
	svcs []*ServerService

	mtu int
	phy bledefs.PhyInfo

	// Request ids answered during the current dispatch.
	answered map[int]struct{}
	mtx      sync.Mutex
}

func NewGattServer(xp xport.ServerXport) *GattServer {
	return &GattServer{
		xp:       xp,
		conns:    map[*bledefs.ClientDevice]*ServerConnection{},
		connList: gattutil.NewWatchable([]*ServerConnection(nil)),
	}
}

func (s *GattServer) Start() error {
	s.mtx.Lock()
	if s.started {
		s.mtx.Unlock()
		return gattutil.NewAlreadyError("gatt server already started")
	}
	s.started = true
	s.mtx.Unlock()

	return s.xp.Start(s)
}

// OnServerEvent implements evt.ServerSink.
func (s *GattServer) OnServerEvent(e evt.ServerEvent) {
	log.Debugf("gatt server rx: %s", e.String())
	e.Dispatch(serverHandler{s})
}

// Services returns the services the transport has confirmed as added.
func (s *GattServer) Services() []*bledefs.BleSvc {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return append([]*bledefs.BleSvc(nil), s.svcs...)
}

func (s *GattServer) Connections() []*ServerConnection {
	return s.connList.Get().([]*ServerConnection)
}

func (s *GattServer) Connection(dev *bledefs.ClientDevice) *ServerConnection {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	return s.conns[dev]
}

// WaitForConnections blocks until at least count clients are connected.
func (s *GattServer) WaitForConnections(ctx context.Context,
	count int) ([]*ServerConnection, error) {

	val, err := s.connList.WaitFor(ctx, func(v interface{}) bool {
		return len(v.([]*ServerConnection)) >= count
	})
	if err != nil {
		return nil, err
	}

	return val.([]*ServerConnection), nil
}

// Notify sets the value of the identified characteristic for every
// connected client.
func (s *GattServer) Notify(chrId bledefs.AttrId, value []byte) error {
	for _, conn := range s.Connections() {
		ch := conn.FindCharacteristic(chrId.Uuid, chrId.InstanceId)
		if ch == nil {
			return gattutil.FmtUnknownDeviceError(
				"no characteristic %s for %s", chrId, conn.dev)
		}

		if err := ch.SetValue(value); err != nil {
			return err
		}
	}

	return nil
}

func (s *GattServer) publishConns() {
	list := make([]*ServerConnection, 0, len(s.conns))
	for _, c := range s.conns {
		list = append(list, c)
	}
	s.connList.Set(list)
}

func (s *GattServer) addConn(dev *bledefs.ClientDevice) *ServerConnection {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if c := s.conns[dev]; c != nil {
		return c
	}

	c := &ServerConnection{
		srv: s,
		dev: dev,
		mtu: bledefs.BLE_ATT_MTU_DFLT,
	}
	for _, svc := range s.svcs {
		c.svcs = append(c.svcs, newServerService(c, svc))
	}

	s.conns[dev] = c
	s.publishConns()

	return c
}

func (s *GattServer) removeConn(dev *bledefs.ClientDevice) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if _, ok := s.conns[dev]; ok {
		delete(s.conns, dev)
		s.publishConns()
	}
}

func (s *GattServer) Close() error {
	s.connList.Close()
	return s.xp.Close()
}

func (c *ServerConnection) Device() *bledefs.ClientDevice {
	return c.dev
}

func (c *ServerConnection) Services() []*ServerService {
	return c.svcs
}

func (c *ServerConnection) Mtu() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.mtu
}

func (c *ServerConnection) Phy() bledefs.PhyInfo {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.phy
}

func (c *ServerConnection) FindService(uuid bledefs.BleUuid,
	instanceId int) *ServerService {

	for _, s := range c.svcs {
		if s.svc.Id().Matches(uuid, instanceId) {
			return s
		}
	}

	return nil
}

func (c *ServerConnection) FindCharacteristic(uuid bledefs.BleUuid,
	instanceId int) *ServerCharacteristic {

	for _, s := range c.svcs {
		if ch := s.FindCharacteristic(uuid, instanceId); ch != nil {
			return ch
		}
	}

	return nil
}

func (c *ServerConnection) ReadPhy() error {
	return c.srv.xp.ReadPhy(c.dev)
}

func (c *ServerConnection) SetPreferredPhy(txPhy bledefs.BlePhy,
	rxPhy bledefs.BlePhy, opt bledefs.PhyOption) error {

	return c.srv.xp.SetPreferredPhy(c.dev, txPhy, rxPhy, opt)
}

// Disconnect terminates the link from the server side.
func (c *ServerConnection) Disconnect() error {
	return c.srv.xp.CancelConnection(c.dev)
}

func (c *ServerConnection) respond(requestId int,
	status bledefs.OperationStatus, offset int, value []byte) {

	c.mtx.Lock()
	if c.answered != nil {
		c.answered[requestId] = struct{}{}
	}
	c.mtx.Unlock()

	err := c.srv.xp.SendResponse(c.dev, requestId, status, offset, value)
	if err != nil {
		log.Warnf("failed to answer request %d from %s: %s",
			requestId, c.dev, err.Error())
	}
}

// onRequest broadcasts a request to every service.  A request no
// attribute claims is answered with REQUEST_NOT_SUPPORTED; the client must
// get a response for every request that needs one.
func (c *ServerConnection) onRequest(e evt.ServerEvent, requestId int,
	rspNeeded bool) {

	c.mtx.Lock()
	c.answered = map[int]struct{}{}
	c.mtx.Unlock()

	for _, s := range c.svcs {
		s.OnEvent(e)
	}

	c.mtx.Lock()
	_, ok := c.answered[requestId]
	c.answered = nil
	c.mtx.Unlock()

	if !ok && rspNeeded {
		log.Debugf("no attribute claimed request %d", requestId)
		c.respond(requestId, bledefs.GATT_REQUEST_NOT_SUPPORTED, 0, []byte{})
	}
}

// ValueWatcher receives values written to a characteristic by its client.
type ValueWatcher struct {
	bc *gattutil.Bcaster
	mb *gattutil.Mailbox
}

func (w *ValueWatcher) Next(ctx context.Context) ([]byte, error) {
	val, err := w.mb.Pop(ctx)
	if err != nil {
		return nil, err
	}
	return val.([]byte), nil
}

func (w *ValueWatcher) Stop() {
	w.bc.StopListening(w.mb)
}
