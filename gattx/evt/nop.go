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

// NopClientHandler ignores every client event.  Embed it in a handler that
// only cares about a few variants.
type NopClientHandler struct{}

func (NopClientHandler) OnConnectionStateChanged(e *ConnectionStateChanged) {}
func (NopClientHandler) OnMtuChanged(e *MtuChanged)                         {}
func (NopClientHandler) OnPhyRead(e *PhyRead)                               {}
func (NopClientHandler) OnPhyUpdate(e *PhyUpdate)                           {}
func (NopClientHandler) OnReadRemoteRssi(e *ReadRemoteRssi)                 {}
func (NopClientHandler) OnServiceChanged(e *ServiceChanged)                 {}
func (NopClientHandler) OnServicesDiscovered(e *ServicesDiscovered)         {}
func (NopClientHandler) OnCharacteristicRead(e *CharacteristicRead)         {}
func (NopClientHandler) OnCharacteristicWrite(e *CharacteristicWrite)       {}
func (NopClientHandler) OnCharacteristicChanged(e *CharacteristicChanged)   {}
func (NopClientHandler) OnDescriptorRead(e *DescriptorRead)                 {}
func (NopClientHandler) OnDescriptorWrite(e *DescriptorWrite)               {}
func (NopClientHandler) OnReliableWriteCompleted(e *ReliableWriteCompleted) {}

// NopServerHandler ignores every server event.
type NopServerHandler struct{}

func (NopServerHandler) OnServiceAdded(e *ServiceAdded)                                 {}
func (NopServerHandler) OnClientConnectionStateChanged(e *ClientConnectionStateChanged) {}
func (NopServerHandler) OnCharacteristicReadRequest(e *CharacteristicReadRequest)       {}
func (NopServerHandler) OnCharacteristicWriteRequest(e *CharacteristicWriteRequest)     {}
func (NopServerHandler) OnDescriptorReadRequest(e *DescriptorReadRequest)               {}
func (NopServerHandler) OnDescriptorWriteRequest(e *DescriptorWriteRequest)             {}
func (NopServerHandler) OnServerPhyRead(e *ServerPhyRead)                               {}
func (NopServerHandler) OnServerPhyUpdate(e *ServerPhyUpdate)                           {}
func (NopServerHandler) OnServerMtuChanged(e *ServerMtuChanged)                         {}
