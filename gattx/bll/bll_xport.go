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

// Package bll implements a client transport over the host's native BLE
// support.
package bll

import (
	"context"
	"sync"
	"time"

	"github.com/JuulLabs-OSS/ble"
	"github.com/JuulLabs-OSS/ble/examples/lib/dev"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/evt"
	"mynewt.apache.org/gattsim/gattx/gattutil"
	"mynewt.apache.org/gattsim/gattx/task"
	"mynewt.apache.org/gattsim/gattx/xport"
)

type XportCfg struct {
	CtlrName string

	// Selects the peer to connect to.
	AdvFilter ble.AdvFilter

	ConnTimeout time.Duration

	// Reconnect after link loss.
	AutoConnect bool
}

func NewXportCfg() XportCfg {
	return XportCfg{
		CtlrName:    "default",
		ConnTimeout: 10 * time.Second,
	}
}

// Dialer connects to the first advertiser accepted by the filter.
type Dialer func(ctx context.Context, f ble.AdvFilter) (ble.Client, error)

// InitDevice opens the named host controller and makes it the library's
// default device.
func InitDevice(ctlrName string) error {
	d, err := dev.NewDevice(ctlrName)
	if err != nil {
		return errors.Wrapf(err, "failed to open controller \"%s\"", ctlrName)
	}

	ble.SetDefaultDevice(d)
	return nil
}

func StopDevice() error {
	return ble.Stop()
}

// BllXport is a client transport over a ble.Client.  The library's calls
// block, so every command runs on a task queue and reports its outcome as
// an event.
type BllXport struct {
	cfg  XportCfg
	dial Dialer

	q   task.TaskQueue
	out *gattutil.Dispatcher

	cln       ble.Client
	attrs     attrMap
	localDisc bool
	closed    bool
	mtx       sync.Mutex
}

func NewBllXport(cfg XportCfg) *BllXport {
	return NewBllXportWithDialer(cfg, func(ctx context.Context,
		f ble.AdvFilter) (ble.Client, error) {

		return ble.Connect(ctx, f)
	})
}

func NewBllXportWithDialer(cfg XportCfg, dial Dialer) *BllXport {
	return &BllXport{
		cfg:   cfg,
		dial:  dial,
		q:     task.NewTaskQueue("bll"),
		attrs: newAttrMap(),
	}
}

var _ xport.ClientXport = &BllXport{}

func (bx *BllXport) Start(sink evt.ClientSink) error {
	bx.mtx.Lock()
	defer bx.mtx.Unlock()

	if bx.out != nil {
		return gattutil.NewAlreadyError("bll transport already started")
	}

	if err := bx.q.Start(16); err != nil {
		return err
	}

	bx.out = gattutil.NewDispatcher("bll", func(val interface{}) {
		sink.OnClientEvent(val.(evt.ClientEvent))
	})

	return nil
}

func (bx *BllXport) emit(e evt.ClientEvent) {
	bx.mtx.Lock()
	out := bx.out
	closed := bx.closed
	bx.mtx.Unlock()

	if out == nil || closed {
		return
	}

	log.Debugf("bll: rx %s", e.String())
	out.Post(e)
}

func (bx *BllXport) AutoConnect() bool {
	return bx.cfg.AutoConnect
}

func (bx *BllXport) checkOpen() error {
	if bx.out == nil {
		return gattutil.NewXportError("bll transport not started")
	}
	if bx.closed {
		return gattutil.NewClosedError("bll transport closed")
	}
	return nil
}

// client returns the connected library client.
func (bx *BllXport) client() (ble.Client, error) {
	bx.mtx.Lock()
	defer bx.mtx.Unlock()

	if err := bx.checkOpen(); err != nil {
		return nil, err
	}
	if bx.cln == nil {
		return nil, gattutil.NewNotConnectedError("bll transport disconnected")
	}

	return bx.cln, nil
}

// enqueue runs fn on the task queue without waiting for it.
func (bx *BllXport) enqueue(fn func()) {
	bx.q.Enqueue(func() error {
		fn()
		return nil
	})
}

func (bx *BllXport) Connect() error {
	bx.mtx.Lock()
	if err := bx.checkOpen(); err != nil {
		bx.mtx.Unlock()
		return err
	}
	connected := bx.cln != nil
	bx.mtx.Unlock()

	if connected {
		bx.emit(&evt.ConnectionStateChanged{
			Status:   bledefs.CONN_STATUS_SUCCESS,
			NewState: bledefs.CONN_STATE_CONNECTED,
		})
		return nil
	}

	bx.emit(&evt.ConnectionStateChanged{
		Status:   bledefs.CONN_STATUS_SUCCESS,
		NewState: bledefs.CONN_STATE_CONNECTING,
	})

	bx.enqueue(bx.connect)
	return nil
}

func (bx *BllXport) connect() {
	log.Debugf("Connecting to peer")

	ctx, cancel := context.WithTimeout(context.Background(),
		bx.cfg.ConnTimeout)
	defer cancel()

	cln, err := bx.dial(ctx, bx.cfg.AdvFilter)
	if err != nil {
		status := bledefs.CONN_STATUS_UNKNOWN
		if errors.Cause(err) == context.DeadlineExceeded {
			status = bledefs.CONN_STATUS_TIMEOUT
		}

		log.Debugf("Failed to connect to peer: %s", err.Error())
		bx.emit(&evt.ConnectionStateChanged{
			Status:   status,
			NewState: bledefs.CONN_STATE_DISCONNECTED,
		})
		return
	}

	bx.mtx.Lock()
	if bx.closed {
		bx.mtx.Unlock()
		cln.CancelConnection()
		return
	}
	bx.cln = cln
	bx.localDisc = false
	bx.mtx.Unlock()

	go bx.listenDisconnect(cln)

	bx.emit(&evt.ConnectionStateChanged{
		Status:   bledefs.CONN_STATUS_SUCCESS,
		NewState: bledefs.CONN_STATE_CONNECTED,
	})
}

func (bx *BllXport) listenDisconnect(cln ble.Client) {
	<-cln.Disconnected()

	bx.mtx.Lock()
	if bx.cln != cln {
		bx.mtx.Unlock()
		return
	}
	bx.cln = nil
	bx.attrs = newAttrMap()
	local := bx.localDisc
	closed := bx.closed
	bx.mtx.Unlock()

	if closed {
		return
	}

	status := bledefs.CONN_STATUS_LINK_LOSS
	if local {
		status = bledefs.CONN_STATUS_TERMINATE_LOCAL_HOST
	}

	bx.emit(&evt.ConnectionStateChanged{
		Status:   status,
		NewState: bledefs.CONN_STATE_DISCONNECTED,
	})

	if !local && bx.cfg.AutoConnect {
		log.Debugf("Link lost; reconnecting")
		if err := bx.Connect(); err != nil {
			log.Debugf("Failed to reconnect: %s", err.Error())
		}
	}
}

func (bx *BllXport) Disconnect() error {
	cln, err := bx.client()
	if err != nil {
		return err
	}

	bx.mtx.Lock()
	bx.localDisc = true
	bx.mtx.Unlock()

	bx.emit(&evt.ConnectionStateChanged{
		Status:   bledefs.CONN_STATUS_SUCCESS,
		NewState: bledefs.CONN_STATE_DISCONNECTING,
	})

	bx.enqueue(func() {
		if err := cln.CancelConnection(); err != nil {
			log.Debugf("Failed to cancel connection: %s", err.Error())
		}
	})
	return nil
}

func (bx *BllXport) Close() error {
	bx.mtx.Lock()
	if err := bx.checkOpen(); err != nil {
		bx.mtx.Unlock()
		return err
	}
	bx.closed = true
	cln := bx.cln
	bx.cln = nil
	bx.mtx.Unlock()

	if cln != nil {
		go cln.CancelConnection()
	}

	bx.out.Stop()
	return bx.q.StopNoWait(gattutil.NewClosedError("bll transport closed"))
}

func (bx *BllXport) DiscoverServices() error {
	cln, err := bx.client()
	if err != nil {
		return err
	}

	bx.enqueue(func() {
		log.Debugf("Discovering profile")

		var svcs []*bledefs.BleSvc
		p, err := cln.DiscoverProfile(true)
		if err == nil {
			var m attrMap
			svcs, m, err = profileTable(p)
			if err == nil {
				bx.mtx.Lock()
				bx.attrs = m
				bx.mtx.Unlock()
			}
		}

		if err != nil {
			log.Debugf("Profile discovery failed: %s", err.Error())
		}

		bx.emit(&evt.ServicesDiscovered{
			Services: svcs,
			Status:   statusFromErr(err),
		})
	})
	return nil
}

// ClearServicesCache is a no-op; discovery always refreshes the profile.
func (bx *BllXport) ClearServicesCache() error {
	_, err := bx.client()
	return err
}

func (bx *BllXport) RequestMtu(mtu int) error {
	cln, err := bx.client()
	if err != nil {
		return err
	}

	bx.enqueue(func() {
		got, err := exchangeMtu(cln, mtu)
		bx.emit(&evt.MtuChanged{
			Mtu:    got,
			Status: statusFromErr(err),
		})
	})
	return nil
}

func (bx *BllXport) ReadRemoteRssi() error {
	cln, err := bx.client()
	if err != nil {
		return err
	}

	bx.enqueue(func() {
		bx.emit(&evt.ReadRemoteRssi{
			Rssi:   cln.ReadRSSI(),
			Status: bledefs.GATT_SUCCESS,
		})
	})
	return nil
}

// ReadPhy is not supported by the library.
func (bx *BllXport) ReadPhy() error {
	if _, err := bx.client(); err != nil {
		return err
	}

	bx.emit(&evt.PhyRead{
		Status: bledefs.GATT_REQUEST_NOT_SUPPORTED,
	})
	return nil
}

// SetPreferredPhy is not supported by the library.
func (bx *BllXport) SetPreferredPhy(txPhy bledefs.BlePhy,
	rxPhy bledefs.BlePhy, opt bledefs.PhyOption) error {

	if _, err := bx.client(); err != nil {
		return err
	}

	bx.emit(&evt.PhyUpdate{
		Status: bledefs.GATT_REQUEST_NOT_SUPPORTED,
	})
	return nil
}

func (bx *BllXport) lookupChr(
	chr *bledefs.BleChr) (ble.Client, *ble.Characteristic, error) {

	cln, err := bx.client()
	if err != nil {
		return nil, nil, err
	}

	bx.mtx.Lock()
	defer bx.mtx.Unlock()

	bc := bx.attrs.chrs[chr.Id()]
	if bc == nil {
		return nil, nil, gattutil.FmtXportError(
			"characteristic not discovered: %s", chr)
	}

	return cln, bc, nil
}

func (bx *BllXport) lookupDsc(
	dsc *bledefs.BleDsc) (ble.Client, *ble.Descriptor, error) {

	cln, err := bx.client()
	if err != nil {
		return nil, nil, err
	}

	bx.mtx.Lock()
	defer bx.mtx.Unlock()

	bd := bx.attrs.dscs[dsc.Id()]
	if bd == nil {
		return nil, nil, gattutil.FmtXportError(
			"descriptor not discovered: %s", dsc)
	}

	return cln, bd, nil
}

func (bx *BllXport) ReadCharacteristic(chr *bledefs.BleChr) error {
	cln, bc, err := bx.lookupChr(chr)
	if err != nil {
		return err
	}

	bx.enqueue(func() {
		val, err := cln.ReadCharacteristic(bc)
		bx.emit(&evt.CharacteristicRead{
			Chr:    chr,
			Value:  val,
			Status: statusFromErr(err),
		})
	})
	return nil
}

func (bx *BllXport) WriteCharacteristic(chr *bledefs.BleChr, value []byte,
	writeType bledefs.WriteType) error {

	cln, bc, err := bx.lookupChr(chr)
	if err != nil {
		return err
	}

	noRsp := writeType == bledefs.BLE_WRITE_TYPE_NO_RESPONSE
	bx.enqueue(func() {
		err := cln.WriteCharacteristic(bc, value, noRsp)
		bx.emit(&evt.CharacteristicWrite{
			Chr:    chr,
			Status: statusFromErr(err),
		})
	})
	return nil
}

func (bx *BllXport) ReadDescriptor(dsc *bledefs.BleDsc) error {
	cln, bd, err := bx.lookupDsc(dsc)
	if err != nil {
		return err
	}

	bx.enqueue(func() {
		val, err := cln.ReadDescriptor(bd)
		bx.emit(&evt.DescriptorRead{
			Dsc:    dsc,
			Value:  val,
			Status: statusFromErr(err),
		})
	})
	return nil
}

func (bx *BllXport) WriteDescriptor(dsc *bledefs.BleDsc, value []byte) error {
	cln, bd, err := bx.lookupDsc(dsc)
	if err != nil {
		return err
	}

	bx.enqueue(func() {
		err := cln.WriteDescriptor(bd, value)
		bx.emit(&evt.DescriptorWrite{
			Dsc:    dsc,
			Status: statusFromErr(err),
		})
	})
	return nil
}

// SetCharacteristicNotification subscribes through the library, which also
// writes the peer's CCCD.
func (bx *BllXport) SetCharacteristicNotification(chr *bledefs.BleChr,
	enable bool) error {

	cln, bc, err := bx.lookupChr(chr)
	if err != nil {
		return err
	}

	ind := chr.Flags&bledefs.BLE_GATT_F_NOTIFY == 0 &&
		chr.Flags&bledefs.BLE_GATT_F_INDICATE != 0

	bx.enqueue(func() {
		var err error
		if enable {
			err = cln.Subscribe(bc, ind, func(data []byte) {
				val := make([]byte, len(data))
				copy(val, data)
				bx.emit(&evt.CharacteristicChanged{
					Chr:   chr,
					Value: val,
				})
			})
		} else {
			err = cln.Unsubscribe(bc, ind)
		}

		if err != nil {
			log.Warnf("Failed to set notifications for %s: %s", chr,
				err.Error())
		}
	})
	return nil
}
