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
	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/evt"
)

type serverHandler struct {
	s *GattServer
}

func (h serverHandler) conn(dev *bledefs.ClientDevice) *ServerConnection {
	c := h.s.Connection(dev)
	if c == nil {
		log.Debugf("event for unknown client %s", dev)
	}
	return c
}

func (h serverHandler) OnServiceAdded(e *evt.ServiceAdded) {
	if !e.Status.IsSuccess() {
		log.Warnf("failed to add %s: %s", e.Svc, e.Status)
		return
	}

	h.s.mtx.Lock()
	h.s.svcs = append(h.s.svcs, e.Svc)
	h.s.mtx.Unlock()
}

func (h serverHandler) OnClientConnectionStateChanged(
	e *evt.ClientConnectionStateChanged) {

	switch e.NewState {
	case bledefs.CONN_STATE_CONNECTED:
		h.s.addConn(e.Device)
	case bledefs.CONN_STATE_DISCONNECTED:
		h.s.removeConn(e.Device)
	}
}

func (h serverHandler) OnCharacteristicReadRequest(
	e *evt.CharacteristicReadRequest) {

	if c := h.conn(e.Device); c != nil {
		c.onRequest(e, e.RequestId, true)
	}
}

func (h serverHandler) OnCharacteristicWriteRequest(
	e *evt.CharacteristicWriteRequest) {

	if c := h.conn(e.Device); c != nil {
		c.onRequest(e, e.RequestId, e.ResponseNeeded)
	}
}

func (h serverHandler) OnDescriptorReadRequest(e *evt.DescriptorReadRequest) {
	if c := h.conn(e.Device); c != nil {
		c.onRequest(e, e.RequestId, true)
	}
}

func (h serverHandler) OnDescriptorWriteRequest(
	e *evt.DescriptorWriteRequest) {

	if c := h.conn(e.Device); c != nil {
		c.onRequest(e, e.RequestId, e.ResponseNeeded)
	}
}

func (h serverHandler) setPhy(dev *bledefs.ClientDevice, txPhy bledefs.BlePhy,
	rxPhy bledefs.BlePhy, status bledefs.OperationStatus) {

	c := h.conn(dev)
	if c == nil || !status.IsSuccess() {
		return
	}

	c.mtx.Lock()
	c.phy = bledefs.PhyInfo{TxPhy: txPhy, RxPhy: rxPhy}
	c.mtx.Unlock()
}

func (h serverHandler) OnServerPhyRead(e *evt.ServerPhyRead) {
	h.setPhy(e.Device, e.TxPhy, e.RxPhy, e.Status)
}

func (h serverHandler) OnServerPhyUpdate(e *evt.ServerPhyUpdate) {
	h.setPhy(e.Device, e.TxPhy, e.RxPhy, e.Status)
}

func (h serverHandler) OnServerMtuChanged(e *evt.ServerMtuChanged) {
	if c := h.conn(e.Device); c != nil {
		c.mtx.Lock()
		c.mtu = e.Mtu
		c.mtx.Unlock()
	}
}
