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
	"sync"

	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/evt"
	"mynewt.apache.org/gattsim/gattx/gattutil"
)

// ServerService wraps one service of the attribute table for one connected
// client.
type ServerService struct {
	svc  *bledefs.BleSvc
	chrs []*ServerCharacteristic
}

// ServerCharacteristic holds the current value of one characteristic as seen
// by one client and answers that client's requests for it.
type ServerCharacteristic struct {
	evt.NopServerHandler

	conn   *ServerConnection
	chr    *bledefs.BleChr
	dscs   []*ServerDescriptor
	value  []byte
	writes gattutil.Bcaster
	mtx    sync.Mutex
}

type ServerDescriptor struct {
	evt.NopServerHandler

	conn  *ServerConnection
	dsc   *bledefs.BleDsc
	value []byte
	mtx   sync.Mutex
}

func copyBytes(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}

func newServerService(conn *ServerConnection,
	svc *bledefs.BleSvc) *ServerService {

	s := &ServerService{svc: svc}
	for _, chr := range svc.Chrs {
		ch := &ServerCharacteristic{
			conn:  conn,
			chr:   chr,
			value: copyBytes(chr.Value),
		}
		for _, dsc := range chr.Dscs {
			ch.dscs = append(ch.dscs, &ServerDescriptor{
				conn:  conn,
				dsc:   dsc,
				value: copyBytes(dsc.Value),
			})
		}
		s.chrs = append(s.chrs, ch)
	}

	return s
}

func (s *ServerService) Svc() *bledefs.BleSvc {
	return s.svc
}

func (s *ServerService) Characteristics() []*ServerCharacteristic {
	return s.chrs
}

// FindCharacteristic returns the first characteristic with the specified
// UUID, or nil.  Unless instanceId is bledefs.ANY_INSTANCE, only the
// characteristic with that instance id can match.
func (s *ServerService) FindCharacteristic(uuid bledefs.BleUuid,
	instanceId int) *ServerCharacteristic {

	for _, ch := range s.chrs {
		if ch.chr.Id().Matches(uuid, instanceId) {
			return ch
		}
	}

	return nil
}

// OnEvent hands the event to every characteristic; each one decides whether
// the event concerns it.
func (s *ServerService) OnEvent(e evt.ServerEvent) {
	for _, ch := range s.chrs {
		e.Dispatch(ch)
	}
}

func (ch *ServerCharacteristic) Chr() *bledefs.BleChr {
	return ch.chr
}

func (ch *ServerCharacteristic) Descriptors() []*ServerDescriptor {
	return ch.dscs
}

func (ch *ServerCharacteristic) FindDescriptor(uuid bledefs.BleUuid,
	instanceId int) *ServerDescriptor {

	for _, d := range ch.dscs {
		if d.dsc.Id().Matches(uuid, instanceId) {
			return d
		}
	}

	return nil
}

func (ch *ServerCharacteristic) Value() []byte {
	ch.mtx.Lock()
	defer ch.mtx.Unlock()

	return copyBytes(ch.value)
}

// SetValue stores a new value and sends it to the client.  The transport
// drops the notification if the client has not enabled it.
func (ch *ServerCharacteristic) SetValue(value []byte) error {
	ch.mtx.Lock()
	ch.value = copyBytes(value)
	ch.mtx.Unlock()

	confirm := ch.chr.Flags&bledefs.BLE_GATT_F_NOTIFY == 0 &&
		ch.chr.Flags&bledefs.BLE_GATT_F_INDICATE != 0

	return ch.conn.srv.xp.NotifyCharacteristicChanged(ch.conn.dev, ch.chr,
		confirm, value)
}

// Writes subscribes to values written by the client.
func (ch *ServerCharacteristic) Writes() *ValueWatcher {
	return &ValueWatcher{
		bc: &ch.writes,
		mb: ch.writes.Listen(),
	}
}

const writeFlags = bledefs.BLE_GATT_F_WRITE |
	bledefs.BLE_GATT_F_WRITE_NO_RSP |
	bledefs.BLE_GATT_F_AUTH_SIGN_WRITE |
	bledefs.BLE_GATT_F_RELIABLE_WRITE

func (ch *ServerCharacteristic) OnCharacteristicReadRequest(
	e *evt.CharacteristicReadRequest) {

	if e.Chr.Id() != ch.chr.Id() {
		return
	}

	if ch.chr.Flags&bledefs.BLE_GATT_F_READ == 0 {
		ch.conn.respond(e.RequestId, bledefs.GATT_READ_NOT_PERMITTED,
			e.Offset, []byte{})
		return
	}

	val := ch.Value()
	if e.Offset > len(val) {
		ch.conn.respond(e.RequestId, bledefs.GATT_INVALID_OFFSET, e.Offset,
			[]byte{})
		return
	}

	ch.conn.respond(e.RequestId, bledefs.GATT_SUCCESS, e.Offset,
		val[e.Offset:])
}

func (ch *ServerCharacteristic) OnCharacteristicWriteRequest(
	e *evt.CharacteristicWriteRequest) {

	if e.Chr.Id() != ch.chr.Id() {
		return
	}

	if ch.chr.Flags&writeFlags == 0 {
		if e.ResponseNeeded {
			ch.conn.respond(e.RequestId, bledefs.GATT_WRITE_NOT_PERMITTED,
				e.Offset, []byte{})
		}
		return
	}

	ch.mtx.Lock()
	status := bledefs.GATT_SUCCESS
	switch {
	case e.Offset > len(ch.value):
		status = bledefs.GATT_INVALID_OFFSET
	case e.Offset+len(e.Value) > bledefs.BLE_ATT_ATTR_MAX_LEN:
		status = bledefs.GATT_INVALID_ATTRIBUTE_LENGTH
	}
	if status != bledefs.GATT_SUCCESS {
		ch.mtx.Unlock()
		if e.ResponseNeeded {
			ch.conn.respond(e.RequestId, status, e.Offset, []byte{})
		}
		return
	}
	ch.value = append(ch.value[:e.Offset], e.Value...)
	written := copyBytes(ch.value)
	ch.mtx.Unlock()

	log.Debugf("%s written by %s: %x", ch.chr, ch.conn.dev, written)
	ch.writes.Send(written)

	if e.ResponseNeeded {
		ch.conn.respond(e.RequestId, bledefs.GATT_SUCCESS, e.Offset,
			copyBytes(e.Value))
	}
}

func (ch *ServerCharacteristic) OnDescriptorReadRequest(
	e *evt.DescriptorReadRequest) {

	for _, d := range ch.dscs {
		d.OnDescriptorReadRequest(e)
	}
}

func (ch *ServerCharacteristic) OnDescriptorWriteRequest(
	e *evt.DescriptorWriteRequest) {

	for _, d := range ch.dscs {
		d.OnDescriptorWriteRequest(e)
	}
}

func (d *ServerDescriptor) Dsc() *bledefs.BleDsc {
	return d.dsc
}

func (d *ServerDescriptor) Value() []byte {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	return copyBytes(d.value)
}

func (d *ServerDescriptor) OnDescriptorReadRequest(
	e *evt.DescriptorReadRequest) {

	if e.Dsc.Id() != d.dsc.Id() {
		return
	}

	val := d.Value()
	if e.Offset > len(val) {
		d.conn.respond(e.RequestId, bledefs.GATT_INVALID_OFFSET, e.Offset,
			[]byte{})
		return
	}

	d.conn.respond(e.RequestId, bledefs.GATT_SUCCESS, e.Offset,
		val[e.Offset:])
}

func (d *ServerDescriptor) OnDescriptorWriteRequest(
	e *evt.DescriptorWriteRequest) {

	if e.Dsc.Id() != d.dsc.Id() {
		return
	}

	d.mtx.Lock()
	d.value = copyBytes(e.Value)
	d.mtx.Unlock()

	if e.ResponseNeeded {
		d.conn.respond(e.RequestId, bledefs.GATT_SUCCESS, e.Offset,
			copyBytes(e.Value))
	}
}
