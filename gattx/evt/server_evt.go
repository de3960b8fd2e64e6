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

package evt

import (
	"fmt"

	"mynewt.apache.org/gattsim/gattx/bledefs"
)

type ServerHandler interface {
	OnServiceAdded(e *ServiceAdded)
	OnClientConnectionStateChanged(e *ClientConnectionStateChanged)
	OnCharacteristicReadRequest(e *CharacteristicReadRequest)
	OnCharacteristicWriteRequest(e *CharacteristicWriteRequest)
	OnDescriptorReadRequest(e *DescriptorReadRequest)
	OnDescriptorWriteRequest(e *DescriptorWriteRequest)
	OnServerPhyRead(e *ServerPhyRead)
	OnServerPhyUpdate(e *ServerPhyUpdate)
	OnServerMtuChanged(e *ServerMtuChanged)
}

// ServerEvent is one event delivered to a peripheral.
type ServerEvent interface {
	Dispatch(h ServerHandler)
	String() string

	serverEvent()
}

// ServerSink consumes server events.  Transports call OnServerEvent from a
// single goroutine per sink, in emission order.
type ServerSink interface {
	OnServerEvent(e ServerEvent)
}

type ServerSinkFunc func(e ServerEvent)

func (f ServerSinkFunc) OnServerEvent(e ServerEvent) {
	f(e)
}

type ServiceAdded struct {
	Svc    *bledefs.BleSvc
	Status bledefs.OperationStatus
}

type ClientConnectionStateChanged struct {
	Device   *bledefs.ClientDevice
	Status   bledefs.ConnectionStatus
	NewState bledefs.ConnectionState
}

type CharacteristicReadRequest struct {
	Device    *bledefs.ClientDevice
	RequestId int
	Offset    int
	Chr       *bledefs.BleChr
}

type CharacteristicWriteRequest struct {
	Device         *bledefs.ClientDevice
	RequestId      int
	Chr            *bledefs.BleChr
	PreparedWrite  bool
	ResponseNeeded bool
	Offset         int
	Value          []byte
}

type DescriptorReadRequest struct {
	Device    *bledefs.ClientDevice
	RequestId int
	Offset    int
	Dsc       *bledefs.BleDsc
}

type DescriptorWriteRequest struct {
	Device         *bledefs.ClientDevice
	RequestId      int
	Dsc            *bledefs.BleDsc
	PreparedWrite  bool
	ResponseNeeded bool
	Offset         int
	Value          []byte
}

type ServerPhyRead struct {
	Device *bledefs.ClientDevice
	TxPhy  bledefs.BlePhy
	RxPhy  bledefs.BlePhy
	Status bledefs.OperationStatus
}

type ServerPhyUpdate struct {
	Device *bledefs.ClientDevice
	TxPhy  bledefs.BlePhy
	RxPhy  bledefs.BlePhy
	Status bledefs.OperationStatus
}

type ServerMtuChanged struct {
	Device *bledefs.ClientDevice
	Mtu    int
}

func (e *ServiceAdded) Dispatch(h ServerHandler)                 { h.OnServiceAdded(e) }
func (e *ClientConnectionStateChanged) Dispatch(h ServerHandler) { h.OnClientConnectionStateChanged(e) }
func (e *CharacteristicReadRequest) Dispatch(h ServerHandler)    { h.OnCharacteristicReadRequest(e) }
func (e *CharacteristicWriteRequest) Dispatch(h ServerHandler)   { h.OnCharacteristicWriteRequest(e) }
func (e *DescriptorReadRequest) Dispatch(h ServerHandler)        { h.OnDescriptorReadRequest(e) }
func (e *DescriptorWriteRequest) Dispatch(h ServerHandler)       { h.OnDescriptorWriteRequest(e) }
func (e *ServerPhyRead) Dispatch(h ServerHandler)                { h.OnServerPhyRead(e) }
func (e *ServerPhyUpdate) Dispatch(h ServerHandler)              { h.OnServerPhyUpdate(e) }
func (e *ServerMtuChanged) Dispatch(h ServerHandler)             { h.OnServerMtuChanged(e) }

func (*ServiceAdded) serverEvent()                 {}
func (*ClientConnectionStateChanged) serverEvent() {}
func (*CharacteristicReadRequest) serverEvent()    {}
func (*CharacteristicWriteRequest) serverEvent()   {}
func (*DescriptorReadRequest) serverEvent()        {}
func (*DescriptorWriteRequest) serverEvent()       {}
func (*ServerPhyRead) serverEvent()                {}
func (*ServerPhyUpdate) serverEvent()              {}
func (*ServerMtuChanged) serverEvent()             {}

func (e *ServiceAdded) String() string {
	return fmt.Sprintf("service_added %s status=%s", e.Svc, e.Status)
}

func (e *ClientConnectionStateChanged) String() string {
	return fmt.Sprintf("client_connection_state_changed %s state=%s "+
		"status=%s", e.Device, e.NewState, e.Status)
}

func (e *CharacteristicReadRequest) String() string {
	return fmt.Sprintf("characteristic_read_request %s id=%d %s offset=%d",
		e.Device, e.RequestId, e.Chr, e.Offset)
}

func (e *CharacteristicWriteRequest) String() string {
	return fmt.Sprintf("characteristic_write_request %s id=%d %s "+
		"rsp_needed=%t offset=%d value=%x",
		e.Device, e.RequestId, e.Chr, e.ResponseNeeded, e.Offset, e.Value)
}

func (e *DescriptorReadRequest) String() string {
	return fmt.Sprintf("descriptor_read_request %s id=%d %s offset=%d",
		e.Device, e.RequestId, e.Dsc, e.Offset)
}

func (e *DescriptorWriteRequest) String() string {
	return fmt.Sprintf("descriptor_write_request %s id=%d %s "+
		"rsp_needed=%t offset=%d value=%x",
		e.Device, e.RequestId, e.Dsc, e.ResponseNeeded, e.Offset, e.Value)
}

func (e *ServerPhyRead) String() string {
	return fmt.Sprintf("server_phy_read %s tx=%s rx=%s status=%s",
		e.Device, e.TxPhy, e.RxPhy, e.Status)
}

func (e *ServerPhyUpdate) String() string {
	return fmt.Sprintf("server_phy_update %s tx=%s rx=%s status=%s",
		e.Device, e.TxPhy, e.RxPhy, e.Status)
}

func (e *ServerMtuChanged) String() string {
	return fmt.Sprintf("server_mtu_changed %s mtu=%d", e.Device, e.Mtu)
}
