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

// Package sim is an in-process stand-in for a BLE stack.  It emits the same
// event sequences a platform stack would, driven by method calls instead of
// radio traffic.
package sim

import (
	"context"
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set"
	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/evt"
	"mynewt.apache.org/gattsim/gattx/gattutil"
	"mynewt.apache.org/gattsim/gattx/task"
)

const DFLT_RSSI = 50

// ConnectionParams are the negotiated parameters of one link.  An Mtu of 0
// means none has been negotiated.
type ConnectionParams struct {
	TxPhy     bledefs.BlePhy
	RxPhy     bledefs.BlePhy
	PhyOption bledefs.PhyOption
	Mtu       int
	Rssi      int
}

type ConnectOptions struct {
	// Zero means 1M.
	Phy bledefs.BlePhy

	// Whether the simulated platform reconnects after link loss.
	AutoConnect bool

	// Zero means DFLT_RSSI.
	Rssi int

	// Name for the minted client device.
	Name string
}

type serverRec struct {
	dev   *bledefs.ServerDevice
	sink  evt.ServerSink
	out   *gattutil.Dispatcher
	svcs  []*bledefs.BleSvc
	conns []*connRec
}

type connRec struct {
	client *bledefs.ClientDevice
	srv    *serverRec
	sink   evt.ClientSink
	out    *gattutil.Dispatcher
	params ConnectionParams
	opts   ConnectOptions

	// AttrIds of characteristics with notifications enabled.
	notify mapset.Set

	state bledefs.ConnectionState

	// Whether the server currently considers this client connected.
	linked bool
	closed bool
}

// Simulator owns a set of virtual servers and the clients connected to
// them.  Instances share nothing.  Every registry is touched only from the
// simulator's task queue.
type Simulator struct {
	q task.TaskQueue

	servers  map[*bledefs.ServerDevice]*serverRec
	conns    map[*bledefs.ClientDevice]*connRec
	dfltSvcs []*bledefs.BleSvc
	reqs     *RequestHolder

	adv    []*bledefs.ServerDevice
	advBc  gattutil.Bcaster
	advMtx sync.Mutex
}

func NewSimulator() *Simulator {
	s := &Simulator{
		q:       task.NewTaskQueue("sim"),
		servers: map[*bledefs.ServerDevice]*serverRec{},
		conns:   map[*bledefs.ClientDevice]*connRec{},
		reqs:    NewRequestHolder(),
	}

	if err := s.q.Start(64); err != nil {
		panic(err.Error())
	}

	return s
}

func (s *Simulator) run(fn func() error) error {
	err := s.q.Run(fn)
	if err == task.InactiveError {
		return gattutil.NewClosedError("simulator shut down")
	}
	return err
}

func newOutbox(name string, fn func(val interface{})) *gattutil.Dispatcher {
	return gattutil.NewDispatcher(name, func(val interface{}) {
		if f, ok := val.(func()); ok {
			f()
		} else {
			fn(val)
		}
	})
}

func (r *serverRec) emit(e evt.ServerEvent) {
	log.Debugf("sim: %s <- %s", r.dev, e.String())
	r.out.Post(e)
}

func (c *connRec) emit(e evt.ClientEvent) {
	if c.closed {
		log.Debugf("sim: %s closed; dropping %s", c.client, e.String())
		return
	}

	log.Debugf("sim: %s <- %s", c.client, e.String())
	c.out.Post(e)
}

func (c *connRec) setState(state bledefs.ConnectionState,
	status bledefs.ConnectionStatus) {

	c.state = state
	c.emit(&evt.ConnectionStateChanged{
		Status:   status,
		NewState: state,
	})
}

// link tells the server the client is connected.
func (c *connRec) link() {
	if c.linked || c.srv == nil {
		return
	}

	c.linked = true
	c.srv.emit(&evt.ClientConnectionStateChanged{
		Device:   c.client,
		Status:   bledefs.CONN_STATUS_SUCCESS,
		NewState: bledefs.CONN_STATE_CONNECTED,
	})
}

func (c *connRec) unlink(status bledefs.ConnectionStatus) {
	if !c.linked || c.srv == nil {
		return
	}

	c.linked = false
	c.srv.emit(&evt.ClientConnectionStateChanged{
		Device:   c.client,
		Status:   status,
		NewState: bledefs.CONN_STATE_DISCONNECTED,
	})
}

func (s *Simulator) server(dev *bledefs.ServerDevice) (*serverRec, error) {
	r := s.servers[dev]
	if r == nil {
		return nil, gattutil.FmtUnknownDeviceError("unknown server: %s", dev)
	}
	return r, nil
}

// conn looks up an open client connection.
func (s *Simulator) conn(client *bledefs.ClientDevice) (*connRec, error) {
	c := s.conns[client]
	if c == nil {
		return nil, gattutil.FmtUnknownDeviceError("unknown client: %s",
			client)
	}
	if c.closed {
		return nil, gattutil.FmtClosedError("client closed: %s", client)
	}
	return c, nil
}

// connectedConn looks up a client connection that is up.
func (s *Simulator) connectedConn(
	client *bledefs.ClientDevice) (*connRec, error) {

	c, err := s.conn(client)
	if err != nil {
		return nil, err
	}
	if c.state != bledefs.CONN_STATE_CONNECTED {
		return nil, gattutil.FmtNotConnectedError("client not connected: %s",
			client)
	}
	return c, nil
}

// AddServices appends to the attribute table given to servers registered
// without one.  The simulator numbers its own copy with ATT handles;
// servers already registered keep the table they were given.
func (s *Simulator) AddServices(svcs []*bledefs.BleSvc) error {
	return s.run(func() error {
		all := make([]*bledefs.BleSvc, 0, len(s.dfltSvcs)+len(svcs))
		all = append(all, s.dfltSvcs...)
		all = append(all, svcs...)
		s.dfltSvcs, _ = bledefs.AssignHandles(all, 1)
		return nil
	})
}

func (s *Simulator) RegisterServer(
	sink evt.ServerSink) (*bledefs.ServerDevice, error) {

	return s.RegisterServerWithServices(sink, nil)
}

// RegisterServerWithServices mints a server device serving svcs, or the
// default table if svcs is nil.  The server receives a successful
// ServiceAdded per service; once it has consumed them the device is
// advertised.
func (s *Simulator) RegisterServerWithServices(sink evt.ServerSink,
	svcs []*bledefs.BleSvc) (*bledefs.ServerDevice, error) {

	var dev *bledefs.ServerDevice

	err := s.run(func() error {
		if svcs == nil {
			svcs = s.dfltSvcs
		} else {
			svcs, _ = bledefs.AssignHandles(svcs, 1)
		}

		dev = bledefs.NewServerDevice(fmt.Sprintf("sim%d", len(s.servers)))
		r := &serverRec{
			dev:  dev,
			sink: sink,
			svcs: svcs,
		}
		r.out = newOutbox(dev.String(), func(val interface{}) {
			sink.OnServerEvent(val.(evt.ServerEvent))
		})
		s.servers[dev] = r

		for _, svc := range svcs {
			r.emit(&evt.ServiceAdded{
				Svc:    svc,
				Status: bledefs.GATT_SUCCESS,
			})
		}
		r.out.Post(func() {
			s.q.Enqueue(func() error {
				if s.servers[dev] != nil {
					s.advertise(dev)
				}
				return nil
			})
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return dev, nil
}

// UnregisterServer takes a server off the air.  Its clients lose their
// links with a supervision timeout.
func (s *Simulator) UnregisterServer(dev *bledefs.ServerDevice) error {
	return s.run(func() error {
		r, err := s.server(dev)
		if err != nil {
			return err
		}

		for _, c := range r.conns {
			s.dropLink(c, bledefs.CONN_STATUS_TIMEOUT,
				bledefs.CONN_STATUS_TIMEOUT)
			c.srv = nil
		}

		delete(s.servers, dev)
		s.unadvertise(dev)
		r.out.Stop()
		return nil
	})
}

func (s *Simulator) advertise(dev *bledefs.ServerDevice) {
	s.advMtx.Lock()
	defer s.advMtx.Unlock()

	s.adv = append(s.adv, dev)
	s.advBc.Send(dev)
}

func (s *Simulator) unadvertise(dev *bledefs.ServerDevice) {
	s.advMtx.Lock()
	defer s.advMtx.Unlock()

	for i, d := range s.adv {
		if d == dev {
			s.adv = append(s.adv[:i], s.adv[i+1:]...)
			return
		}
	}
}

func (s *Simulator) AdvertisedServers() []*bledefs.ServerDevice {
	s.advMtx.Lock()
	defer s.advMtx.Unlock()

	return append([]*bledefs.ServerDevice(nil), s.adv...)
}

// AdvertWatcher reports advertised servers: those already on the air, then
// each new one.
type AdvertWatcher struct {
	bc *gattutil.Bcaster
	mb *gattutil.Mailbox
}

func (s *Simulator) WatchAdvertised() *AdvertWatcher {
	s.advMtx.Lock()
	defer s.advMtx.Unlock()

	mb := s.advBc.Listen()
	for _, d := range s.adv {
		mb.Push(d)
	}

	return &AdvertWatcher{
		bc: &s.advBc,
		mb: mb,
	}
}

func (w *AdvertWatcher) Next(
	ctx context.Context) (*bledefs.ServerDevice, error) {

	val, err := w.mb.Pop(ctx)
	if err != nil {
		return nil, err
	}
	return val.(*bledefs.ServerDevice), nil
}

func (w *AdvertWatcher) Stop() {
	w.bc.StopListening(w.mb)
}

// ConnectToServer mints a client device for a new link to server and tells
// the server the client connected.  The client itself learns of the link
// through Connect.
func (s *Simulator) ConnectToServer(server *bledefs.ServerDevice,
	sink evt.ClientSink,
	opts ConnectOptions) (*bledefs.ClientDevice, error) {

	var client *bledefs.ClientDevice

	err := s.run(func() error {
		r, err := s.server(server)
		if err != nil {
			return err
		}

		phy := opts.Phy
		if phy == 0 {
			phy = bledefs.BLE_PHY_1M
		}
		rssi := opts.Rssi
		if rssi == 0 {
			rssi = DFLT_RSSI
		}

		client = bledefs.NewClientDevice(opts.Name)
		c := &connRec{
			client: client,
			srv:    r,
			sink:   sink,
			opts:   opts,
			notify: mapset.NewThreadUnsafeSet(),
			state:  bledefs.CONN_STATE_DISCONNECTED,
			params: ConnectionParams{
				TxPhy:     phy,
				RxPhy:     phy,
				PhyOption: bledefs.BLE_PHY_OPT_NO_PREFERRED,
				Rssi:      rssi,
			},
		}
		c.out = newOutbox(client.String(), func(val interface{}) {
			sink.OnClientEvent(val.(evt.ClientEvent))
		})

		r.conns = append(r.conns, c)
		s.conns[client] = c

		c.link()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return client, nil
}

// Connect brings the client's side of the link up.  If the server has gone
// away the attempt fails with a supervision timeout.
func (s *Simulator) Connect(client *bledefs.ClientDevice) error {
	return s.run(func() error {
		c, err := s.conn(client)
		if err != nil {
			return err
		}

		if c.state == bledefs.CONN_STATE_CONNECTED {
			c.emit(&evt.ConnectionStateChanged{
				Status:   bledefs.CONN_STATUS_SUCCESS,
				NewState: bledefs.CONN_STATE_CONNECTED,
			})
			return nil
		}

		c.setState(bledefs.CONN_STATE_CONNECTING, bledefs.CONN_STATUS_SUCCESS)
		if c.srv == nil {
			c.setState(bledefs.CONN_STATE_DISCONNECTED,
				bledefs.CONN_STATUS_TIMEOUT)
			return nil
		}

		c.link()
		c.setState(bledefs.CONN_STATE_CONNECTED, bledefs.CONN_STATUS_SUCCESS)
		return nil
	})
}

// dropLink takes a link down on both ends.  Outstanding requests and
// notification subscriptions die with the link.
func (s *Simulator) dropLink(c *connRec, clientStatus bledefs.ConnectionStatus,
	serverStatus bledefs.ConnectionStatus) {

	if n := s.reqs.DropClient(c.client); n > 0 {
		log.Debugf("sim: dropped %d outstanding requests from %s", n,
			c.client)
	}
	c.notify.Clear()

	c.unlink(serverStatus)
	if c.state != bledefs.CONN_STATE_DISCONNECTED {
		c.setState(bledefs.CONN_STATE_DISCONNECTED, clientStatus)
	}
}

// Disconnect is the client-initiated disconnect.
func (s *Simulator) Disconnect(client *bledefs.ClientDevice) error {
	return s.run(func() error {
		c, err := s.conn(client)
		if err != nil {
			return err
		}

		if c.state == bledefs.CONN_STATE_DISCONNECTED {
			return nil
		}

		c.setState(bledefs.CONN_STATE_DISCONNECTING,
			bledefs.CONN_STATUS_SUCCESS)
		s.dropLink(c, bledefs.CONN_STATUS_TERMINATE_LOCAL_HOST,
			bledefs.CONN_STATUS_SUCCESS)
		return nil
	})
}

// CancelConnection is the server-initiated disconnect.
func (s *Simulator) CancelConnection(server *bledefs.ServerDevice,
	client *bledefs.ClientDevice) error {

	return s.run(func() error {
		c, err := s.serverConn(server, client)
		if err != nil {
			return err
		}

		if c.state == bledefs.CONN_STATE_DISCONNECTED && !c.linked {
			return nil
		}

		s.dropLink(c, bledefs.CONN_STATUS_TERMINATE_PEER_USER,
			bledefs.CONN_STATUS_TERMINATE_LOCAL_HOST)
		return nil
	})
}

// SimulateLinkLoss drops the link as if the radio lost contact.
func (s *Simulator) SimulateLinkLoss(client *bledefs.ClientDevice) error {
	return s.run(func() error {
		c, err := s.connectedConn(client)
		if err != nil {
			return err
		}

		s.dropLink(c, bledefs.CONN_STATUS_LINK_LOSS,
			bledefs.CONN_STATUS_LINK_LOSS)
		return nil
	})
}

// SimulateReconnect restores a link lost while the client was configured
// for auto-connect, as the platform would when the server comes back into
// range.
func (s *Simulator) SimulateReconnect(client *bledefs.ClientDevice) error {
	return s.run(func() error {
		c, err := s.conn(client)
		if err != nil {
			return err
		}

		if !c.opts.AutoConnect {
			return gattutil.FmtNotConnectedError(
				"client does not auto-connect: %s", client)
		}
		if c.state != bledefs.CONN_STATE_DISCONNECTED || c.srv == nil {
			return nil
		}

		c.link()
		c.setState(bledefs.CONN_STATE_CONNECTED, bledefs.CONN_STATUS_SUCCESS)
		return nil
	})
}

// SimulateServiceChanged tells every connected client of server that its
// attribute table changed.
func (s *Simulator) SimulateServiceChanged(
	server *bledefs.ServerDevice) error {

	return s.run(func() error {
		r, err := s.server(server)
		if err != nil {
			return err
		}

		for _, c := range r.conns {
			if c.state == bledefs.CONN_STATE_CONNECTED {
				c.emit(&evt.ServiceChanged{})
			}
		}
		return nil
	})
}

func (s *Simulator) SetRssi(client *bledefs.ClientDevice, rssi int) error {
	return s.run(func() error {
		c, err := s.conn(client)
		if err != nil {
			return err
		}

		c.params.Rssi = rssi
		return nil
	})
}

// Close releases the client handle.  No further events reach the client and
// its commands fail.  A live link is dropped.
func (s *Simulator) Close(client *bledefs.ClientDevice) error {
	return s.run(func() error {
		c, err := s.conn(client)
		if err != nil {
			return err
		}

		c.closed = true
		s.reqs.DropClient(client)
		c.notify.Clear()
		c.unlink(bledefs.CONN_STATUS_SUCCESS)
		c.state = bledefs.CONN_STATE_DISCONNECTED
		c.out.Stop()

		return nil
	})
}

func (s *Simulator) removeConn(c *connRec) {
	if !c.closed {
		c.closed = true
		c.unlink(bledefs.CONN_STATUS_SUCCESS)
		c.out.Stop()
	}

	s.reqs.DropClient(c.client)
	delete(s.conns, c.client)

	if c.srv != nil {
		for i, rc := range c.srv.conns {
			if rc == c {
				c.srv.conns = append(c.srv.conns[:i], c.srv.conns[i+1:]...)
				break
			}
		}
	}
}

// Cleanup removes every trace of a client connection from the registries.
// Afterwards the client is unknown to the simulator.
func (s *Simulator) Cleanup(client *bledefs.ClientDevice) error {
	return s.run(func() error {
		c := s.conns[client]
		if c == nil {
			return gattutil.FmtUnknownDeviceError("unknown client: %s",
				client)
		}

		s.removeConn(c)
		return nil
	})
}

// Prune cleans up every closed connection.  Returns the number removed.
func (s *Simulator) Prune() (int, error) {
	n := 0
	err := s.run(func() error {
		for _, c := range s.conns {
			if c.closed {
				s.removeConn(c)
				n++
			}
		}
		return nil
	})

	return n, err
}

// Shutdown stops the simulator.  Every later call fails with a ClosedError.
func (s *Simulator) Shutdown() error {
	s.run(func() error {
		for _, c := range s.conns {
			c.out.Stop()
		}
		for _, r := range s.servers {
			r.out.Stop()
		}
		return nil
	})

	s.advMtx.Lock()
	s.advBc.Clear()
	s.advMtx.Unlock()

	return s.q.Stop(gattutil.NewClosedError("simulator shut down"))
}

// ConnectionParams returns a snapshot of a link's negotiated parameters.
func (s *Simulator) ConnectionParams(
	client *bledefs.ClientDevice) (ConnectionParams, error) {

	var p ConnectionParams
	err := s.run(func() error {
		c := s.conns[client]
		if c == nil {
			return gattutil.FmtUnknownDeviceError("unknown client: %s",
				client)
		}

		p = c.params
		return nil
	})

	return p, err
}

// Clients returns the client devices registered against server, connected
// or not.
func (s *Simulator) Clients(
	server *bledefs.ServerDevice) ([]*bledefs.ClientDevice, error) {

	var clients []*bledefs.ClientDevice
	err := s.run(func() error {
		r, err := s.server(server)
		if err != nil {
			return err
		}

		for _, c := range r.conns {
			clients = append(clients, c.client)
		}
		return nil
	})

	return clients, err
}

func (s *Simulator) NumConnections() int {
	n := 0
	s.run(func() error {
		n = len(s.conns)
		return nil
	})
	return n
}

func (s *Simulator) NumOutstanding() int {
	n := 0
	s.run(func() error {
		n = s.reqs.Len()
		return nil
	})
	return n
}
