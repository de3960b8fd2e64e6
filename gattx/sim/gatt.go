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
	"fmt"

	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/evt"
	"mynewt.apache.org/gattsim/gattx/gattutil"
)

// serverConn looks up a client connection on behalf of the server it is
// attached to.
func (s *Simulator) serverConn(server *bledefs.ServerDevice,
	client *bledefs.ClientDevice) (*connRec, error) {

	if _, err := s.server(server); err != nil {
		return nil, err
	}

	c := s.conns[client]
	if c == nil || c.srv == nil || c.srv.dev != server {
		return nil, gattutil.FmtUnknownDeviceError(
			"%s is not a client of %s", client, server)
	}
	return c, nil
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

func clampMtu(mtu int) int {
	if mtu < bledefs.BLE_ATT_MTU_DFLT {
		return bledefs.BLE_ATT_MTU_DFLT
	}
	if mtu > bledefs.BLE_ATT_MTU_MAX {
		return bledefs.BLE_ATT_MTU_MAX
	}
	return mtu
}

// responseEvent maps an answered request to the event its client expects.
func responseEvent(req *PendingRequest, status bledefs.OperationStatus,
	value []byte) evt.ClientEvent {

	switch req.Kind {
	case REQ_CHR_READ:
		return &evt.CharacteristicRead{
			Chr:    req.Chr,
			Value:  value,
			Status: status,
		}

	case REQ_CHR_WRITE:
		return &evt.CharacteristicWrite{
			Chr:    req.Chr,
			Status: status,
		}

	case REQ_DSC_READ:
		return &evt.DescriptorRead{
			Dsc:    req.Dsc,
			Value:  value,
			Status: status,
		}

	case REQ_DSC_WRITE:
		return &evt.DescriptorWrite{
			Dsc:    req.Dsc,
			Status: status,
		}

	default:
		panic(fmt.Sprintf("unmodeled request kind: %s", req.Kind))
	}
}

// SendResponse answers the outstanding request with the specified id.  The
// request alone identifies the attribute.  A nil value acknowledges a
// reliable write instead.
func (s *Simulator) SendResponse(server *bledefs.ServerDevice,
	client *bledefs.ClientDevice, requestId int,
	status bledefs.OperationStatus, offset int, value []byte) error {

	return s.run(func() error {
		c, err := s.serverConn(server, client)
		if err != nil {
			return err
		}

		req, err := s.reqs.Take(requestId, client)
		if err != nil {
			return err
		}

		if value == nil {
			c.emit(&evt.ReliableWriteCompleted{Status: status})
		} else {
			c.emit(responseEvent(req, status, copyBytes(value)))
		}
		return nil
	})
}

// NotifyCharacteristicChanged delivers a new value to the client iff it has
// notifications enabled for chr.  Confirmation of indications is immediate.
func (s *Simulator) NotifyCharacteristicChanged(server *bledefs.ServerDevice,
	client *bledefs.ClientDevice, chr *bledefs.BleChr, confirm bool,
	value []byte) error {

	return s.run(func() error {
		c, err := s.serverConn(server, client)
		if err != nil {
			return err
		}
		if c.state != bledefs.CONN_STATE_CONNECTED {
			return gattutil.FmtNotConnectedError("client not connected: %s",
				client)
		}

		if !c.notify.Contains(chr.Id()) {
			log.Debugf("sim: %s not subscribed to %s; dropping", client, chr)
			return nil
		}

		c.emit(&evt.CharacteristicChanged{
			Chr:   chr,
			Value: copyBytes(value),
		})
		return nil
	})
}

func (s *Simulator) ReadPhy(client *bledefs.ClientDevice) error {
	return s.run(func() error {
		c, err := s.connectedConn(client)
		if err != nil {
			return err
		}

		c.emit(&evt.PhyRead{
			TxPhy:  c.params.TxPhy,
			RxPhy:  c.params.RxPhy,
			Status: bledefs.GATT_SUCCESS,
		})
		return nil
	})
}

func (s *Simulator) ServerReadPhy(server *bledefs.ServerDevice,
	client *bledefs.ClientDevice) error {

	return s.run(func() error {
		c, err := s.serverConn(server, client)
		if err != nil {
			return err
		}

		c.srv.emit(&evt.ServerPhyRead{
			Device: client,
			TxPhy:  c.params.TxPhy,
			RxPhy:  c.params.RxPhy,
			Status: bledefs.GATT_SUCCESS,
		})
		return nil
	})
}

// updatePhy applies a PHY preference and reports it to both ends.  The
// server sees the client's tx as its rx.
func (s *Simulator) updatePhy(c *connRec, txPhy bledefs.BlePhy,
	rxPhy bledefs.BlePhy, opt bledefs.PhyOption) {

	c.params.TxPhy = txPhy
	c.params.RxPhy = rxPhy
	c.params.PhyOption = opt

	c.emit(&evt.PhyUpdate{
		TxPhy:  txPhy,
		RxPhy:  rxPhy,
		Status: bledefs.GATT_SUCCESS,
	})
	c.srv.emit(&evt.ServerPhyUpdate{
		Device: c.client,
		TxPhy:  txPhy,
		RxPhy:  rxPhy,
		Status: bledefs.GATT_SUCCESS,
	})
}

func (s *Simulator) SetPreferredPhy(client *bledefs.ClientDevice,
	txPhy bledefs.BlePhy, rxPhy bledefs.BlePhy,
	opt bledefs.PhyOption) error {

	return s.run(func() error {
		c, err := s.connectedConn(client)
		if err != nil {
			return err
		}

		s.updatePhy(c, txPhy, rxPhy, opt)
		return nil
	})
}

func (s *Simulator) ServerSetPreferredPhy(server *bledefs.ServerDevice,
	client *bledefs.ClientDevice, txPhy bledefs.BlePhy,
	rxPhy bledefs.BlePhy, opt bledefs.PhyOption) error {

	return s.run(func() error {
		c, err := s.serverConn(server, client)
		if err != nil {
			return err
		}
		if c.state != bledefs.CONN_STATE_CONNECTED {
			return gattutil.FmtNotConnectedError("client not connected: %s",
				client)
		}

		s.updatePhy(c, txPhy, rxPhy, opt)
		return nil
	})
}

// RequestMtu negotiates a new MTU.  The peer accepts any value the ATT
// bearer allows.
func (s *Simulator) RequestMtu(client *bledefs.ClientDevice, mtu int) error {
	return s.run(func() error {
		c, err := s.connectedConn(client)
		if err != nil {
			return err
		}

		mtu = clampMtu(mtu)
		c.params.Mtu = mtu

		c.emit(&evt.MtuChanged{
			Mtu:    mtu,
			Status: bledefs.GATT_SUCCESS,
		})
		c.srv.emit(&evt.ServerMtuChanged{
			Device: client,
			Mtu:    mtu,
		})
		return nil
	})
}

func (s *Simulator) ReadRemoteRssi(client *bledefs.ClientDevice) error {
	return s.run(func() error {
		c, err := s.connectedConn(client)
		if err != nil {
			return err
		}

		c.emit(&evt.ReadRemoteRssi{
			Rssi:   c.params.Rssi,
			Status: bledefs.GATT_SUCCESS,
		})
		return nil
	})
}

// DiscoverServices reports the attribute table of the client's server.
func (s *Simulator) DiscoverServices(client *bledefs.ClientDevice) error {
	return s.run(func() error {
		c, err := s.connectedConn(client)
		if err != nil {
			return err
		}

		c.emit(&evt.ServicesDiscovered{
			Services: c.srv.svcs,
			Status:   bledefs.GATT_SUCCESS,
		})
		return nil
	})
}

// ClearServicesCache is accepted; the simulator caches nothing.
func (s *Simulator) ClearServicesCache(client *bledefs.ClientDevice) error {
	return s.run(func() error {
		_, err := s.conn(client)
		return err
	})
}

func (s *Simulator) ReadCharacteristic(client *bledefs.ClientDevice,
	chr *bledefs.BleChr) error {

	return s.run(func() error {
		c, err := s.connectedConn(client)
		if err != nil {
			return err
		}

		req := s.reqs.Add(REQ_CHR_READ, client, chr, nil)
		c.srv.emit(&evt.CharacteristicReadRequest{
			Device:    client,
			RequestId: req.Id,
			Chr:       chr,
		})
		return nil
	})
}

// WriteCharacteristic forwards a write to the server.  A write without
// response is acknowledged to the client at once and never becomes
// outstanding.
func (s *Simulator) WriteCharacteristic(client *bledefs.ClientDevice,
	chr *bledefs.BleChr, value []byte, writeType bledefs.WriteType) error {

	return s.run(func() error {
		c, err := s.connectedConn(client)
		if err != nil {
			return err
		}

		rspNeeded := writeType != bledefs.BLE_WRITE_TYPE_NO_RESPONSE

		var id int
		if rspNeeded {
			id = s.reqs.Add(REQ_CHR_WRITE, client, chr, nil).Id
		} else {
			id = s.reqs.NextId()
		}

		c.srv.emit(&evt.CharacteristicWriteRequest{
			Device:         client,
			RequestId:      id,
			Chr:            chr,
			ResponseNeeded: rspNeeded,
			Value:          copyBytes(value),
		})

		if !rspNeeded {
			c.emit(&evt.CharacteristicWrite{
				Chr:    chr,
				Status: bledefs.GATT_SUCCESS,
			})
		}
		return nil
	})
}

func (s *Simulator) ReadDescriptor(client *bledefs.ClientDevice,
	dsc *bledefs.BleDsc) error {

	return s.run(func() error {
		c, err := s.connectedConn(client)
		if err != nil {
			return err
		}

		req := s.reqs.Add(REQ_DSC_READ, client, nil, dsc)
		c.srv.emit(&evt.DescriptorReadRequest{
			Device:    client,
			RequestId: req.Id,
			Dsc:       dsc,
		})
		return nil
	})
}

func (s *Simulator) WriteDescriptor(client *bledefs.ClientDevice,
	dsc *bledefs.BleDsc, value []byte) error {

	return s.run(func() error {
		c, err := s.connectedConn(client)
		if err != nil {
			return err
		}

		req := s.reqs.Add(REQ_DSC_WRITE, client, nil, dsc)
		c.srv.emit(&evt.DescriptorWriteRequest{
			Device:         client,
			RequestId:      req.Id,
			Dsc:            dsc,
			ResponseNeeded: true,
			Value:          copyBytes(value),
		})
		return nil
	})
}

func (s *Simulator) SetCharacteristicNotification(
	client *bledefs.ClientDevice, chr *bledefs.BleChr, enable bool) error {

	return s.run(func() error {
		c, err := s.conn(client)
		if err != nil {
			return err
		}

		if enable {
			c.notify.Add(chr.Id())
		} else {
			c.notify.Remove(chr.Id())
		}
		return nil
	})
}
