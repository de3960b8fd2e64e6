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

package xport

import (
	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/evt"
)

// Represents the central side of one link to a peripheral.  Commands only
// queue work; every protocol outcome, successful or not, arrives later as an
// event on the sink passed to Start.  Implementations deliver events for the
// sink from a single goroutine in emission order, and the sink may issue
// further commands from its handler.
//
// A command returns an error only for misuse:
//     * gattutil.ClosedError: the handle has been released.
//     * gattutil.NotConnectedError: the link is not up.
//     * other error
type ClientXport interface {
	// Registers the event sink and starts event delivery.  Must be called
	// exactly once, before any other command.
	Start(sink evt.ClientSink) error

	// Indicates whether the platform reconnects by itself after link loss.
	AutoConnect() bool

	Connect() error
	Disconnect() error

	// Releases the handle.  No further events are delivered.
	Close() error

	DiscoverServices() error
	ClearServicesCache() error
	RequestMtu(mtu int) error
	ReadRemoteRssi() error
	ReadPhy() error
	SetPreferredPhy(txPhy bledefs.BlePhy, rxPhy bledefs.BlePhy,
		opt bledefs.PhyOption) error

	ReadCharacteristic(chr *bledefs.BleChr) error
	WriteCharacteristic(chr *bledefs.BleChr, value []byte,
		writeType bledefs.WriteType) error
	ReadDescriptor(dsc *bledefs.BleDsc) error
	WriteDescriptor(dsc *bledefs.BleDsc, value []byte) error

	// Enables or disables local delivery of change events for chr.  This
	// does not write the peer's CCCD.
	SetCharacteristicNotification(chr *bledefs.BleChr, enable bool) error
}

// Represents the peripheral side of a stack: the attribute table it serves
// and the links clients hold to it.
type ServerXport interface {
	Start(sink evt.ServerSink) error

	// Answers the read or write request with the specified id.  A nil value
	// acknowledges a reliable write rather than a single attribute.
	SendResponse(dev *bledefs.ClientDevice, requestId int,
		status bledefs.OperationStatus, offset int, value []byte) error

	NotifyCharacteristicChanged(dev *bledefs.ClientDevice,
		chr *bledefs.BleChr, confirm bool, value []byte) error

	ReadPhy(dev *bledefs.ClientDevice) error
	SetPreferredPhy(dev *bledefs.ClientDevice, txPhy bledefs.BlePhy,
		rxPhy bledefs.BlePhy, opt bledefs.PhyOption) error

	// Terminates the link to dev from the peripheral side.
	CancelConnection(dev *bledefs.ClientDevice) error

	Close() error
}
