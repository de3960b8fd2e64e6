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
	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/evt"
	"mynewt.apache.org/gattsim/gattx/gattutil"
)

// clientHandler is the client's event state machine.  It runs on the
// transport's delivery goroutine; it is the only writer of the client's
// state, service tree and MTU slots.
type clientHandler struct {
	c *GattClient
}

func (h clientHandler) OnConnectionStateChanged(e *evt.ConnectionStateChanged) {
	c := h.c

	s := bledefs.StateWithStatus{
		State:  e.NewState,
		Status: e.Status,
	}
	log.Debugf("gatt client state: %s", s)
	c.state.Set(s)

	switch e.NewState {
	case bledefs.CONN_STATE_CONNECTED:
		c.corr.ResolveAll(OpKey(OP_CONNECT), s)

		if err := c.xp.DiscoverServices(); err != nil {
			log.Warnf("failed to start service discovery: %s", err.Error())
		}

	case bledefs.CONN_STATE_DISCONNECTED:
		c.corr.ResolveAll(OpKey(OP_CONNECT), s)

		n := c.corr.Fail(gattutil.NewBleDisconnectedError(e.Status,
			"link disconnected; status="+e.Status.String()))
		if n > 0 {
			log.Debugf("aborted %d outstanding operations", n)
		}

		// After link loss the platform reconnects on its own if it was asked
		// to; the handle must survive for that.
		if !e.Status.IsLinkLoss() || !c.xp.AutoConnect() {
			c.release()
		}
	}
}

func (h clientHandler) OnMtuChanged(e *evt.MtuChanged) {
	if e.Status.IsSuccess() {
		h.c.mtu.Set(e.Mtu)
	}

	h.c.corr.Resolve(OpKey(OP_MTU), bledefs.MtuResult{
		BleResult: bledefs.BleResult{Status: e.Status},
		Mtu:       e.Mtu,
	})
}

func (h clientHandler) onPhy(txPhy bledefs.BlePhy, rxPhy bledefs.BlePhy,
	status bledefs.OperationStatus) {

	phy := bledefs.PhyInfo{
		TxPhy: txPhy,
		RxPhy: rxPhy,
	}
	if status.IsSuccess() {
		h.c.phy.Set(phy)
	}

	h.c.corr.Resolve(OpKey(OP_PHY), bledefs.PhyResult{
		BleResult: bledefs.BleResult{Status: status},
		Phy:       phy,
	})
}

func (h clientHandler) OnPhyRead(e *evt.PhyRead) {
	h.onPhy(e.TxPhy, e.RxPhy, e.Status)
}

func (h clientHandler) OnPhyUpdate(e *evt.PhyUpdate) {
	h.onPhy(e.TxPhy, e.RxPhy, e.Status)
}

func (h clientHandler) OnReadRemoteRssi(e *evt.ReadRemoteRssi) {
	h.c.corr.Resolve(OpKey(OP_RSSI), bledefs.RssiResult{
		BleResult: bledefs.BleResult{Status: e.Status},
		Rssi:      e.Rssi,
	})
}

func (h clientHandler) OnServiceChanged(e *evt.ServiceChanged) {
	log.Debugf("peer attribute table changed; rediscovering")
	if err := h.c.xp.DiscoverServices(); err != nil {
		log.Warnf("failed to start service discovery: %s", err.Error())
	}
}

func (h clientHandler) OnServicesDiscovered(e *evt.ServicesDiscovered) {
	c := h.c

	c.mtx.Lock()
	c.discStatus = e.Status
	c.mtx.Unlock()

	if !e.Status.IsSuccess() {
		log.Debugf("service discovery failed: %s", e.Status)
		return
	}

	c.svcs.Set(newClientServices(c, e.Services))
}

func (h clientHandler) OnCharacteristicRead(e *evt.CharacteristicRead) {
	h.c.corr.Resolve(AttrKey(OP_CHR_READ, e.Chr.Id()), bledefs.ReadResult{
		BleResult: bledefs.BleResult{Status: e.Status},
		Value:     e.Value,
	})
}

func (h clientHandler) OnCharacteristicWrite(e *evt.CharacteristicWrite) {
	h.c.corr.Resolve(AttrKey(OP_CHR_WRITE, e.Chr.Id()), bledefs.WriteResult{
		BleResult: bledefs.BleResult{Status: e.Status},
	})
}

func (h clientHandler) OnCharacteristicChanged(e *evt.CharacteristicChanged) {
	if svcs := h.c.Services(); svcs != nil {
		svcs.onCharacteristicChanged(e)
	}
}

func (h clientHandler) OnDescriptorRead(e *evt.DescriptorRead) {
	h.c.corr.Resolve(AttrKey(OP_DSC_READ, e.Dsc.Id()), bledefs.ReadResult{
		BleResult: bledefs.BleResult{Status: e.Status},
		Value:     e.Value,
	})
}

func (h clientHandler) OnDescriptorWrite(e *evt.DescriptorWrite) {
	h.c.corr.Resolve(AttrKey(OP_DSC_WRITE, e.Dsc.Id()), bledefs.WriteResult{
		BleResult: bledefs.BleResult{Status: e.Status},
	})
}

// A reliable write acknowledgement names no attribute; it completes the
// oldest outstanding write.
func (h clientHandler) OnReliableWriteCompleted(e *evt.ReliableWriteCompleted) {
	ok := h.c.corr.ResolveOldest([]OpType{OP_CHR_WRITE, OP_DSC_WRITE},
		bledefs.WriteResult{
			BleResult: bledefs.BleResult{Status: e.Status},
		})
	if !ok {
		log.Debugf("reliable write completed with no write outstanding")
	}
}
