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

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/evt"
	"mynewt.apache.org/gattsim/gattx/gattutil"
)

// ClientServices is one discovered attribute table.  It is immutable; each
// discovery publishes a new tree.
type ClientServices struct {
	raw  []*bledefs.BleSvc
	svcs []*ClientService
}

type ClientService struct {
	svc  *bledefs.BleSvc
	chrs []*ClientCharacteristic
}

type ClientCharacteristic struct {
	c      *GattClient
	chr    *bledefs.BleChr
	dscs   []*ClientDescriptor
	notifs gattutil.Bcaster
}

type ClientDescriptor struct {
	c   *GattClient
	dsc *bledefs.BleDsc
}

func newClientServices(c *GattClient,
	svcs []*bledefs.BleSvc) *ClientServices {

	cs := &ClientServices{
		raw: svcs,
	}

	for _, svc := range svcs {
		s := &ClientService{svc: svc}
		for _, chr := range svc.Chrs {
			ch := &ClientCharacteristic{
				c:   c,
				chr: chr,
			}
			for _, dsc := range chr.Dscs {
				ch.dscs = append(ch.dscs, &ClientDescriptor{
					c:   c,
					dsc: dsc,
				})
			}
			s.chrs = append(s.chrs, ch)
		}
		cs.svcs = append(cs.svcs, s)
	}

	return cs
}

func (cs *ClientServices) Services() []*ClientService {
	return cs.svcs
}

// Raw returns the attribute table the tree was built from.
func (cs *ClientServices) Raw() []*bledefs.BleSvc {
	return cs.raw
}

func (cs *ClientServices) FindService(uuid bledefs.BleUuid,
	instanceId int) *ClientService {

	for _, s := range cs.svcs {
		if s.svc.Id().Matches(uuid, instanceId) {
			return s
		}
	}

	return nil
}

// FindCharacteristic searches every service.
func (cs *ClientServices) FindCharacteristic(uuid bledefs.BleUuid,
	instanceId int) *ClientCharacteristic {

	for _, s := range cs.svcs {
		if ch := s.FindCharacteristic(uuid, instanceId); ch != nil {
			return ch
		}
	}

	return nil
}

func (cs *ClientServices) onCharacteristicChanged(
	e *evt.CharacteristicChanged) {

	for _, s := range cs.svcs {
		for _, ch := range s.chrs {
			ch.onChanged(e)
		}
	}
}

func (s *ClientService) Svc() *bledefs.BleSvc {
	return s.svc
}

func (s *ClientService) Characteristics() []*ClientCharacteristic {
	return s.chrs
}

func (s *ClientService) FindCharacteristic(uuid bledefs.BleUuid,
	instanceId int) *ClientCharacteristic {

	for _, ch := range s.chrs {
		if ch.chr.Id().Matches(uuid, instanceId) {
			return ch
		}
	}

	return nil
}

func (ch *ClientCharacteristic) Chr() *bledefs.BleChr {
	return ch.chr
}

func (ch *ClientCharacteristic) Descriptors() []*ClientDescriptor {
	return ch.dscs
}

func (ch *ClientCharacteristic) FindDescriptor(uuid bledefs.BleUuid,
	instanceId int) *ClientDescriptor {

	for _, d := range ch.dscs {
		if d.dsc.Id().Matches(uuid, instanceId) {
			return d
		}
	}

	return nil
}

func (ch *ClientCharacteristic) Read(
	ctx context.Context) (bledefs.ReadResult, error) {

	return ch.c.readChr(ctx, ch.chr)
}

func (ch *ClientCharacteristic) Write(ctx context.Context, value []byte,
	wt bledefs.WriteType) (bledefs.WriteResult, error) {

	return ch.c.writeChr(ctx, ch.chr, value, wt)
}

// Notifications subscribes to change events for this characteristic.  Only
// events arriving while notifications are enabled are delivered.
func (ch *ClientCharacteristic) Notifications() *NotificationWatcher {
	return &NotificationWatcher{
		bc: &ch.notifs,
		mb: ch.notifs.Listen(),
	}
}

func (ch *ClientCharacteristic) EnableNotifications(
	ctx context.Context) (bledefs.WriteResult, error) {

	return ch.setNotify(ctx, true)
}

func (ch *ClientCharacteristic) DisableNotifications(
	ctx context.Context) (bledefs.WriteResult, error) {

	return ch.setNotify(ctx, false)
}

// setNotify toggles local delivery and, if the characteristic has a CCCD,
// writes it so the peer starts or stops sending.
func (ch *ClientCharacteristic) setNotify(ctx context.Context,
	enable bool) (bledefs.WriteResult, error) {

	if err := ch.c.xp.SetCharacteristicNotification(ch.chr,
		enable); err != nil {

		return bledefs.WriteResult{}, err
	}

	cccd := ch.chr.Cccd()
	if cccd == nil {
		return bledefs.WriteResult{
			BleResult: bledefs.BleResult{Status: bledefs.GATT_SUCCESS},
		}, nil
	}

	val := []byte{0x00, 0x00}
	if enable {
		if ch.chr.Flags&bledefs.BLE_GATT_F_NOTIFY != 0 {
			val[0] = 0x01
		} else if ch.chr.Flags&bledefs.BLE_GATT_F_INDICATE != 0 {
			val[0] = 0x02
		}
	}

	return ch.c.writeDsc(ctx, cccd, val)
}

func (ch *ClientCharacteristic) onChanged(e *evt.CharacteristicChanged) {
	if e.Chr.Id() != ch.chr.Id() {
		return
	}

	val := make([]byte, len(e.Value))
	copy(val, e.Value)
	ch.notifs.Send(val)
}

func (d *ClientDescriptor) Dsc() *bledefs.BleDsc {
	return d.dsc
}

func (d *ClientDescriptor) Read(
	ctx context.Context) (bledefs.ReadResult, error) {

	return d.c.readDsc(ctx, d.dsc)
}

func (d *ClientDescriptor) Write(ctx context.Context,
	value []byte) (bledefs.WriteResult, error) {

	return d.c.writeDsc(ctx, d.dsc, value)
}
