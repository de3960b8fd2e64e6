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

package bledefs

import (
	"fmt"

	"github.com/google/uuid"
)

// ServerDevice is the peripheral end of a link.  Devices compare by
// identity: two devices with identical fields are still distinct.
type ServerDevice struct {
	Id   uuid.UUID
	Name string
	Addr BleAddr
}

// ClientDevice is the central end of a link.
type ClientDevice struct {
	Id   uuid.UUID
	Name string
	Addr BleAddr
}

func randAddr(id uuid.UUID) BleAddr {
	ba := BleAddr{}
	copy(ba.Bytes[:], id[:6])

	// Static random address; the two most significant bits are set.
	ba.Bytes[0] |= 0xc0
	return ba
}

func NewServerDevice(name string) *ServerDevice {
	id := uuid.New()
	return &ServerDevice{
		Id:   id,
		Name: name,
		Addr: randAddr(id),
	}
}

func NewClientDevice(name string) *ClientDevice {
	id := uuid.New()
	return &ClientDevice{
		Id:   id,
		Name: name,
		Addr: randAddr(id),
	}
}

func (d *ServerDevice) String() string {
	if d == nil {
		return "server(nil)"
	}
	return fmt.Sprintf("server(%s,%s)", d.Name, d.Addr.String())
}

func (d *ClientDevice) String() string {
	if d == nil {
		return "client(nil)"
	}
	return fmt.Sprintf("client(%s,%s)", d.Name, d.Addr.String())
}
