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

// Package evt defines the event vocabulary shared by every transport: the
// events a client-side stack reports to a central and the events a
// server-side stack reports to a peripheral.  Both are closed sets; the
// handler interfaces have one method per variant, so adding a variant is a
// compile error in every handler that does not cover it.
package evt

import (
	"fmt"

	"mynewt.apache.org/gattsim/gattx/bledefs"
)

type ClientHandler interface {
	OnConnectionStateChanged(e *ConnectionStateChanged)
	OnMtuChanged(e *MtuChanged)
	OnPhyRead(e *PhyRead)
	OnPhyUpdate(e *PhyUpdate)
	OnReadRemoteRssi(e *ReadRemoteRssi)
	OnServiceChanged(e *ServiceChanged)
	OnServicesDiscovered(e *ServicesDiscovered)

	OnCharacteristicRead(e *CharacteristicRead)
	OnCharacteristicWrite(e *CharacteristicWrite)
	OnCharacteristicChanged(e *CharacteristicChanged)
	OnDescriptorRead(e *DescriptorRead)
	OnDescriptorWrite(e *DescriptorWrite)
	OnReliableWriteCompleted(e *ReliableWriteCompleted)
}

// ClientEvent is one event delivered to a central.
type ClientEvent interface {
	Dispatch(h ClientHandler)
	String() string

	clientEvent()
}

// ClientSink consumes client events.  Transports call OnClientEvent from a
// single goroutine per sink, in emission order.
type ClientSink interface {
	OnClientEvent(e ClientEvent)
}

// ClientSinkFunc adapts a function to the ClientSink interface.
type ClientSinkFunc func(e ClientEvent)

func (f ClientSinkFunc) OnClientEvent(e ClientEvent) {
	f(e)
}

type ConnectionStateChanged struct {
	Status   bledefs.ConnectionStatus
	NewState bledefs.ConnectionState
}

type MtuChanged struct {
	Mtu    int
	Status bledefs.OperationStatus
}

type PhyRead struct {
	TxPhy  bledefs.BlePhy
	RxPhy  bledefs.BlePhy
	Status bledefs.OperationStatus
}

type PhyUpdate struct {
	TxPhy  bledefs.BlePhy
	RxPhy  bledefs.BlePhy
	Status bledefs.OperationStatus
}

type ReadRemoteRssi struct {
	Rssi   int
	Status bledefs.OperationStatus
}

// ServiceChanged indicates the peer's attribute table has changed and any
// discovered services are stale.
type ServiceChanged struct{}

type ServicesDiscovered struct {
	Services []*bledefs.BleSvc
	Status   bledefs.OperationStatus
}

type CharacteristicRead struct {
	Chr    *bledefs.BleChr
	Value  []byte
	Status bledefs.OperationStatus
}

type CharacteristicWrite struct {
	Chr    *bledefs.BleChr
	Status bledefs.OperationStatus
}

// CharacteristicChanged is an unsolicited notification or indication.
type CharacteristicChanged struct {
	Chr   *bledefs.BleChr
	Value []byte
}

type DescriptorRead struct {
	Dsc    *bledefs.BleDsc
	Value  []byte
	Status bledefs.OperationStatus
}

type DescriptorWrite struct {
	Dsc    *bledefs.BleDsc
	Status bledefs.OperationStatus
}

type ReliableWriteCompleted struct {
	Status bledefs.OperationStatus
}

func (e *ConnectionStateChanged) Dispatch(h ClientHandler) { h.OnConnectionStateChanged(e) }
func (e *MtuChanged) Dispatch(h ClientHandler)             { h.OnMtuChanged(e) }
func (e *PhyRead) Dispatch(h ClientHandler)                { h.OnPhyRead(e) }
func (e *PhyUpdate) Dispatch(h ClientHandler)              { h.OnPhyUpdate(e) }
func (e *ReadRemoteRssi) Dispatch(h ClientHandler)         { h.OnReadRemoteRssi(e) }
func (e *ServiceChanged) Dispatch(h ClientHandler)         { h.OnServiceChanged(e) }
func (e *ServicesDiscovered) Dispatch(h ClientHandler)     { h.OnServicesDiscovered(e) }
func (e *CharacteristicRead) Dispatch(h ClientHandler)     { h.OnCharacteristicRead(e) }
func (e *CharacteristicWrite) Dispatch(h ClientHandler)    { h.OnCharacteristicWrite(e) }
func (e *CharacteristicChanged) Dispatch(h ClientHandler)  { h.OnCharacteristicChanged(e) }
func (e *DescriptorRead) Dispatch(h ClientHandler)         { h.OnDescriptorRead(e) }
func (e *DescriptorWrite) Dispatch(h ClientHandler)        { h.OnDescriptorWrite(e) }
func (e *ReliableWriteCompleted) Dispatch(h ClientHandler) { h.OnReliableWriteCompleted(e) }

func (*ConnectionStateChanged) clientEvent() {}
func (*MtuChanged) clientEvent()             {}
func (*PhyRead) clientEvent()                {}
func (*PhyUpdate) clientEvent()              {}
func (*ReadRemoteRssi) clientEvent()         {}
func (*ServiceChanged) clientEvent()         {}
func (*ServicesDiscovered) clientEvent()     {}
func (*CharacteristicRead) clientEvent()     {}
func (*CharacteristicWrite) clientEvent()    {}
func (*CharacteristicChanged) clientEvent()  {}
func (*DescriptorRead) clientEvent()         {}
func (*DescriptorWrite) clientEvent()        {}
func (*ReliableWriteCompleted) clientEvent() {}

func (e *ConnectionStateChanged) String() string {
	return fmt.Sprintf("connection_state_changed state=%s status=%s",
		e.NewState, e.Status)
}

func (e *MtuChanged) String() string {
	return fmt.Sprintf("mtu_changed mtu=%d status=%s", e.Mtu, e.Status)
}

func (e *PhyRead) String() string {
	return fmt.Sprintf("phy_read tx=%s rx=%s status=%s",
		e.TxPhy, e.RxPhy, e.Status)
}

func (e *PhyUpdate) String() string {
	return fmt.Sprintf("phy_update tx=%s rx=%s status=%s",
		e.TxPhy, e.RxPhy, e.Status)
}

func (e *ReadRemoteRssi) String() string {
	return fmt.Sprintf("read_remote_rssi rssi=%d status=%s",
		e.Rssi, e.Status)
}

func (e *ServiceChanged) String() string {
	return "service_changed"
}

func (e *ServicesDiscovered) String() string {
	return fmt.Sprintf("services_discovered count=%d status=%s",
		len(e.Services), e.Status)
}

func (e *CharacteristicRead) String() string {
	return fmt.Sprintf("characteristic_read %s value=%x status=%s",
		e.Chr, e.Value, e.Status)
}

func (e *CharacteristicWrite) String() string {
	return fmt.Sprintf("characteristic_write %s status=%s", e.Chr, e.Status)
}

func (e *CharacteristicChanged) String() string {
	return fmt.Sprintf("characteristic_changed %s value=%x", e.Chr, e.Value)
}

func (e *DescriptorRead) String() string {
	return fmt.Sprintf("descriptor_read %s value=%x status=%s",
		e.Dsc, e.Value, e.Status)
}

func (e *DescriptorWrite) String() string {
	return fmt.Sprintf("descriptor_write %s status=%s", e.Dsc, e.Status)
}

func (e *ReliableWriteCompleted) String() string {
	return fmt.Sprintf("reliable_write_completed status=%s", e.Status)
}
