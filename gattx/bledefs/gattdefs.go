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
	"encoding/json"
	"fmt"
)

type ConnectionState int

const (
	CONN_STATE_DISCONNECTED  ConnectionState = 0
	CONN_STATE_CONNECTING    ConnectionState = 1
	CONN_STATE_CONNECTED     ConnectionState = 2
	CONN_STATE_DISCONNECTING ConnectionState = 3
)

var ConnectionStateStringMap = map[ConnectionState]string{
	CONN_STATE_DISCONNECTED:  "disconnected",
	CONN_STATE_CONNECTING:    "connecting",
	CONN_STATE_CONNECTED:     "connected",
	CONN_STATE_DISCONNECTING: "disconnecting",
}

func ConnectionStateToString(state ConnectionState) string {
	s := ConnectionStateStringMap[state]
	if s == "" {
		return "???"
	}

	return s
}

func ConnectionStateFromString(s string) (ConnectionState, error) {
	for state, name := range ConnectionStateStringMap {
		if s == name {
			return state, nil
		}
	}

	return ConnectionState(0),
		fmt.Errorf("Invalid ConnectionState string: %s", s)
}

func (s ConnectionState) String() string {
	return ConnectionStateToString(s)
}

func (s ConnectionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(ConnectionStateToString(s))
}

func (s *ConnectionState) UnmarshalJSON(data []byte) error {
	var err error

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	*s, err = ConnectionStateFromString(str)
	return err
}

// ConnectionStatus is the reason attached to a connection state transition.
// The non-negative values are the corresponding HCI disconnect reasons.
type ConnectionStatus int

const (
	CONN_STATUS_CANCELLED            ConnectionStatus = -2
	CONN_STATUS_UNKNOWN              ConnectionStatus = -1
	CONN_STATUS_SUCCESS              ConnectionStatus = 0
	CONN_STATUS_LINK_LOSS            ConnectionStatus = 0x08
	CONN_STATUS_TERMINATE_PEER_USER  ConnectionStatus = 0x13
	CONN_STATUS_TERMINATE_LOCAL_HOST ConnectionStatus = 0x16
	CONN_STATUS_NOT_SUPPORTED        ConnectionStatus = 0x1a
	CONN_STATUS_TIMEOUT              ConnectionStatus = 0x3e
)

var ConnectionStatusStringMap = map[ConnectionStatus]string{
	CONN_STATUS_CANCELLED:            "cancelled",
	CONN_STATUS_UNKNOWN:              "unknown",
	CONN_STATUS_SUCCESS:              "success",
	CONN_STATUS_LINK_LOSS:            "link_loss",
	CONN_STATUS_TERMINATE_PEER_USER:  "terminate_peer_user",
	CONN_STATUS_TERMINATE_LOCAL_HOST: "terminate_local_host",
	CONN_STATUS_NOT_SUPPORTED:        "not_supported",
	CONN_STATUS_TIMEOUT:              "timeout",
}

func ConnectionStatusToString(status ConnectionStatus) string {
	s := ConnectionStatusStringMap[status]
	if s == "" {
		return "???"
	}

	return s
}

func ConnectionStatusFromString(s string) (ConnectionStatus, error) {
	for status, name := range ConnectionStatusStringMap {
		if s == name {
			return status, nil
		}
	}

	return ConnectionStatus(0),
		fmt.Errorf("Invalid ConnectionStatus string: %s", s)
}

func (s ConnectionStatus) String() string {
	return ConnectionStatusToString(s)
}

func (s ConnectionStatus) IsSuccess() bool {
	return s == CONN_STATUS_SUCCESS
}

// IsLinkLoss reports whether the status describes an unexpected loss of the
// link rather than a deliberate disconnect.
func (s ConnectionStatus) IsLinkLoss() bool {
	switch s {
	case CONN_STATUS_SUCCESS,
		CONN_STATUS_TERMINATE_LOCAL_HOST,
		CONN_STATUS_TERMINATE_PEER_USER,
		CONN_STATUS_CANCELLED:

		return false

	default:
		return true
	}
}

func (s ConnectionStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(ConnectionStatusToString(s))
}

func (s *ConnectionStatus) UnmarshalJSON(data []byte) error {
	var err error

	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	*s, err = ConnectionStatusFromString(str)
	return err
}

// OperationStatus is a GATT status code.  Codes outside the known set are
// carried verbatim.
type OperationStatus int

const (
	GATT_SUCCESS                     OperationStatus = 0x00
	GATT_READ_NOT_PERMITTED          OperationStatus = 0x02
	GATT_WRITE_NOT_PERMITTED         OperationStatus = 0x03
	GATT_INSUFFICIENT_AUTHENTICATION OperationStatus = 0x05
	GATT_REQUEST_NOT_SUPPORTED       OperationStatus = 0x06
	GATT_INVALID_OFFSET              OperationStatus = 0x07
	GATT_INSUFFICIENT_AUTHORIZATION  OperationStatus = 0x08
	GATT_INVALID_ATTRIBUTE_LENGTH    OperationStatus = 0x0d
	GATT_INSUFFICIENT_ENCRYPTION     OperationStatus = 0x0f
	GATT_ERROR                       OperationStatus = 0x85
	GATT_CONNECTION_CONGESTED        OperationStatus = 0x8f
	GATT_FAILURE                     OperationStatus = 0x101
)

var OperationStatusStringMap = map[OperationStatus]string{
	GATT_SUCCESS:                     "success",
	GATT_READ_NOT_PERMITTED:          "read_not_permitted",
	GATT_WRITE_NOT_PERMITTED:         "write_not_permitted",
	GATT_INSUFFICIENT_AUTHENTICATION: "insufficient_authentication",
	GATT_REQUEST_NOT_SUPPORTED:       "request_not_supported",
	GATT_INVALID_OFFSET:              "invalid_offset",
	GATT_INSUFFICIENT_AUTHORIZATION:  "insufficient_authorization",
	GATT_INVALID_ATTRIBUTE_LENGTH:    "invalid_attribute_length",
	GATT_INSUFFICIENT_ENCRYPTION:     "insufficient_encryption",
	GATT_ERROR:                       "gatt_error",
	GATT_CONNECTION_CONGESTED:        "connection_congested",
	GATT_FAILURE:                     "failure",
}

func OperationStatusToString(status OperationStatus) string {
	s := OperationStatusStringMap[status]
	if s == "" {
		return fmt.Sprintf("unknown(%d)", int(status))
	}

	return s
}

func OperationStatusFromString(s string) (OperationStatus, error) {
	for status, name := range OperationStatusStringMap {
		if s == name {
			return status, nil
		}
	}

	return OperationStatus(0),
		fmt.Errorf("Invalid OperationStatus string: %s", s)
}

func (s OperationStatus) String() string {
	return OperationStatusToString(s)
}

func (s OperationStatus) IsSuccess() bool {
	return s == GATT_SUCCESS
}

func (s OperationStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(s))
}

type BlePhy int

const (
	BLE_PHY_1M    BlePhy = 1
	BLE_PHY_2M    BlePhy = 2
	BLE_PHY_CODED BlePhy = 3
)

var BlePhyStringMap = map[BlePhy]string{
	BLE_PHY_1M:    "1m",
	BLE_PHY_2M:    "2m",
	BLE_PHY_CODED: "coded",
}

func BlePhyToString(phy BlePhy) string {
	s := BlePhyStringMap[phy]
	if s == "" {
		return "???"
	}

	return s
}

func BlePhyFromString(s string) (BlePhy, error) {
	for phy, name := range BlePhyStringMap {
		if s == name {
			return phy, nil
		}
	}

	return BlePhy(0), fmt.Errorf("Invalid BlePhy string: %s", s)
}

func (p BlePhy) String() string {
	return BlePhyToString(p)
}

func (p BlePhy) MarshalJSON() ([]byte, error) {
	return json.Marshal(BlePhyToString(p))
}

func (p *BlePhy) UnmarshalJSON(data []byte) error {
	var err error

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	*p, err = BlePhyFromString(s)
	return err
}

// PhyOption is the preferred coding for the LE coded PHY.
type PhyOption int

const (
	BLE_PHY_OPT_NO_PREFERRED PhyOption = 0
	BLE_PHY_OPT_S2           PhyOption = 1
	BLE_PHY_OPT_S8           PhyOption = 2
)

var PhyOptionStringMap = map[PhyOption]string{
	BLE_PHY_OPT_NO_PREFERRED: "no_preferred",
	BLE_PHY_OPT_S2:           "s2",
	BLE_PHY_OPT_S8:           "s8",
}

func PhyOptionToString(opt PhyOption) string {
	s := PhyOptionStringMap[opt]
	if s == "" {
		return "???"
	}

	return s
}

func PhyOptionFromString(s string) (PhyOption, error) {
	for opt, name := range PhyOptionStringMap {
		if s == name {
			return opt, nil
		}
	}

	return PhyOption(0), fmt.Errorf("Invalid PhyOption string: %s", s)
}

func (o PhyOption) String() string {
	return PhyOptionToString(o)
}

func (o PhyOption) MarshalJSON() ([]byte, error) {
	return json.Marshal(PhyOptionToString(o))
}

func (o *PhyOption) UnmarshalJSON(data []byte) error {
	var err error

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	*o, err = PhyOptionFromString(s)
	return err
}

type WriteType int

const (
	BLE_WRITE_TYPE_NO_RESPONSE WriteType = 1
	BLE_WRITE_TYPE_DEFAULT     WriteType = 2
	BLE_WRITE_TYPE_SIGNED      WriteType = 4
)

var WriteTypeStringMap = map[WriteType]string{
	BLE_WRITE_TYPE_NO_RESPONSE: "no_response",
	BLE_WRITE_TYPE_DEFAULT:     "default",
	BLE_WRITE_TYPE_SIGNED:      "signed",
}

func WriteTypeToString(wt WriteType) string {
	s := WriteTypeStringMap[wt]
	if s == "" {
		return "???"
	}

	return s
}

func WriteTypeFromString(s string) (WriteType, error) {
	for wt, name := range WriteTypeStringMap {
		if s == name {
			return wt, nil
		}
	}

	return WriteType(0), fmt.Errorf("Invalid WriteType string: %s", s)
}

func (wt WriteType) String() string {
	return WriteTypeToString(wt)
}

type PhyInfo struct {
	TxPhy BlePhy
	RxPhy BlePhy
}

func (p PhyInfo) String() string {
	return fmt.Sprintf("tx=%s rx=%s", p.TxPhy, p.RxPhy)
}

// StateWithStatus is one connection state transition.
type StateWithStatus struct {
	State  ConnectionState
	Status ConnectionStatus
}

func (s StateWithStatus) String() string {
	return fmt.Sprintf("%s (%s)", s.State, s.Status)
}

// BleResult carries the status of an asynchronous operation.  The payload of
// an embedding result type is only meaningful on success.
type BleResult struct {
	Status OperationStatus
}

func (r BleResult) IsSuccess() bool {
	return r.Status.IsSuccess()
}

type MtuResult struct {
	BleResult
	Mtu int
}

type RssiResult struct {
	BleResult
	Rssi int
}

type PhyResult struct {
	BleResult
	Phy PhyInfo
}

type ReadResult struct {
	BleResult
	Value []byte
}

type WriteResult struct {
	BleResult
}
