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
	"sync"

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/evt"
	"mynewt.apache.org/gattsim/gattx/gattutil"
	"mynewt.apache.org/gattsim/gattx/xport"
)

// ClientXport is a client transport backed by a simulator.  Start mints the
// client device and attaches it to the server.
type ClientXport struct {
	sim    *Simulator
	server *bledefs.ServerDevice
	opts   ConnectOptions

	dev *bledefs.ClientDevice
	mtx sync.Mutex
}

func NewClientXport(sim *Simulator, server *bledefs.ServerDevice,
	opts ConnectOptions) *ClientXport {

	return &ClientXport{
		sim:    sim,
		server: server,
		opts:   opts,
	}
}

func (x *ClientXport) Start(sink evt.ClientSink) error {
	x.mtx.Lock()
	defer x.mtx.Unlock()

	if x.dev != nil {
		return gattutil.NewAlreadyError("sim client transport already started")
	}

	dev, err := x.sim.ConnectToServer(x.server, sink, x.opts)
	if err != nil {
		return err
	}

	x.dev = dev
	return nil
}

// Device returns the minted client device, or nil before Start.
func (x *ClientXport) Device() *bledefs.ClientDevice {
	x.mtx.Lock()
	defer x.mtx.Unlock()

	return x.dev
}

func (x *ClientXport) device() (*bledefs.ClientDevice, error) {
	dev := x.Device()
	if dev == nil {
		return nil, gattutil.NewXportError("sim client transport not started")
	}
	return dev, nil
}

func (x *ClientXport) do(fn func(dev *bledefs.ClientDevice) error) error {
	dev, err := x.device()
	if err != nil {
		return err
	}
	return fn(dev)
}

func (x *ClientXport) AutoConnect() bool {
	return x.opts.AutoConnect
}

func (x *ClientXport) Connect() error {
	return x.do(x.sim.Connect)
}

func (x *ClientXport) Disconnect() error {
	return x.do(x.sim.Disconnect)
}

func (x *ClientXport) Close() error {
	return x.do(x.sim.Close)
}

func (x *ClientXport) DiscoverServices() error {
	return x.do(x.sim.DiscoverServices)
}

func (x *ClientXport) ClearServicesCache() error {
	return x.do(x.sim.ClearServicesCache)
}

func (x *ClientXport) RequestMtu(mtu int) error {
	return x.do(func(dev *bledefs.ClientDevice) error {
		return x.sim.RequestMtu(dev, mtu)
	})
}

func (x *ClientXport) ReadRemoteRssi() error {
	return x.do(x.sim.ReadRemoteRssi)
}

func (x *ClientXport) ReadPhy() error {
	return x.do(x.sim.ReadPhy)
}

func (x *ClientXport) SetPreferredPhy(txPhy bledefs.BlePhy,
	rxPhy bledefs.BlePhy, opt bledefs.PhyOption) error {

	return x.do(func(dev *bledefs.ClientDevice) error {
		return x.sim.SetPreferredPhy(dev, txPhy, rxPhy, opt)
	})
}

func (x *ClientXport) ReadCharacteristic(chr *bledefs.BleChr) error {
	return x.do(func(dev *bledefs.ClientDevice) error {
		return x.sim.ReadCharacteristic(dev, chr)
	})
}

func (x *ClientXport) WriteCharacteristic(chr *bledefs.BleChr, value []byte,
	writeType bledefs.WriteType) error {

	return x.do(func(dev *bledefs.ClientDevice) error {
		return x.sim.WriteCharacteristic(dev, chr, value, writeType)
	})
}

func (x *ClientXport) ReadDescriptor(dsc *bledefs.BleDsc) error {
	return x.do(func(dev *bledefs.ClientDevice) error {
		return x.sim.ReadDescriptor(dev, dsc)
	})
}

func (x *ClientXport) WriteDescriptor(dsc *bledefs.BleDsc,
	value []byte) error {

	return x.do(func(dev *bledefs.ClientDevice) error {
		return x.sim.WriteDescriptor(dev, dsc, value)
	})
}

func (x *ClientXport) SetCharacteristicNotification(chr *bledefs.BleChr,
	enable bool) error {

	return x.do(func(dev *bledefs.ClientDevice) error {
		return x.sim.SetCharacteristicNotification(dev, chr, enable)
	})
}

// ServerXport is a server transport backed by a simulator.  Start registers
// a new server device.
type ServerXport struct {
	sim  *Simulator
	svcs []*bledefs.BleSvc

	dev *bledefs.ServerDevice
	mtx sync.Mutex
}

// NewServerXport creates a server transport that serves svcs, or the
// simulator's default table if svcs is nil.
func NewServerXport(sim *Simulator, svcs []*bledefs.BleSvc) *ServerXport {
	return &ServerXport{
		sim:  sim,
		svcs: svcs,
	}
}

func (x *ServerXport) Start(sink evt.ServerSink) error {
	x.mtx.Lock()
	defer x.mtx.Unlock()

	if x.dev != nil {
		return gattutil.NewAlreadyError("sim server transport already started")
	}

	dev, err := x.sim.RegisterServerWithServices(sink, x.svcs)
	if err != nil {
		return err
	}

	x.dev = dev
	return nil
}

func (x *ServerXport) Device() *bledefs.ServerDevice {
	x.mtx.Lock()
	defer x.mtx.Unlock()

	return x.dev
}

func (x *ServerXport) device() (*bledefs.ServerDevice, error) {
	dev := x.Device()
	if dev == nil {
		return nil, gattutil.NewXportError("sim server transport not started")
	}
	return dev, nil
}

func (x *ServerXport) SendResponse(client *bledefs.ClientDevice,
	requestId int, status bledefs.OperationStatus, offset int,
	value []byte) error {

	dev, err := x.device()
	if err != nil {
		return err
	}
	return x.sim.SendResponse(dev, client, requestId, status, offset, value)
}

func (x *ServerXport) NotifyCharacteristicChanged(
	client *bledefs.ClientDevice, chr *bledefs.BleChr, confirm bool,
	value []byte) error {

	dev, err := x.device()
	if err != nil {
		return err
	}
	return x.sim.NotifyCharacteristicChanged(dev, client, chr, confirm, value)
}

func (x *ServerXport) ReadPhy(client *bledefs.ClientDevice) error {
	dev, err := x.device()
	if err != nil {
		return err
	}
	return x.sim.ServerReadPhy(dev, client)
}

func (x *ServerXport) SetPreferredPhy(client *bledefs.ClientDevice,
	txPhy bledefs.BlePhy, rxPhy bledefs.BlePhy, opt bledefs.PhyOption) error {

	dev, err := x.device()
	if err != nil {
		return err
	}
	return x.sim.ServerSetPreferredPhy(dev, client, txPhy, rxPhy, opt)
}

func (x *ServerXport) CancelConnection(client *bledefs.ClientDevice) error {
	dev, err := x.device()
	if err != nil {
		return err
	}
	return x.sim.CancelConnection(dev, client)
}

func (x *ServerXport) Close() error {
	dev, err := x.device()
	if err != nil {
		return err
	}
	return x.sim.UnregisterServer(dev)
}

var _ xport.ClientXport = &ClientXport{}
var _ xport.ServerXport = &ServerXport{}
