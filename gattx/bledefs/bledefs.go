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
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const BLE_ATT_ATTR_MAX_LEN = 512

const BLE_ATT_MTU_DFLT = 23
const BLE_ATT_MTU_MAX = 517

// Client characteristic configuration descriptor.
const CccdUuid16 BleUuid16 = 0x2902

// Wildcard instance id for attribute lookups.
const ANY_INSTANCE = -1

type BleAddr struct {
	Bytes [6]byte
}

func ParseBleAddr(s string) (BleAddr, error) {
	ba := BleAddr{}

	toks := strings.Split(strings.ToLower(s), ":")
	if len(toks) != 6 {
		return ba, fmt.Errorf("invalid BLE addr string: %s", s)
	}

	for i, t := range toks {
		u64, err := strconv.ParseUint(t, 16, 8)
		if err != nil {
			return ba, err
		}
		ba.Bytes[i] = byte(u64)
	}

	return ba, nil
}

func (ba BleAddr) String() string {
	var buf bytes.Buffer
	buf.Grow(len(ba.Bytes) * 3)

	for i, b := range ba.Bytes {
		if i != 0 {
			buf.WriteString(":")
		}
		fmt.Fprintf(&buf, "%02x", b)
	}

	return buf.String()
}

type BleUuid16 uint16

func (bu16 BleUuid16) String() string {
	return fmt.Sprintf("0x%04x", uint16(bu16))
}

func ParseUuid16(s string) (BleUuid16, error) {
	val, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return BleUuid16(0), fmt.Errorf("Invalid UUID: %s", s)
	}

	return BleUuid16(val), nil
}

type BleUuid128 [16]byte

func (bu128 BleUuid128) String() string {
	var buf bytes.Buffer
	buf.Grow(len(bu128)*2 + 4)

	for i, b := range bu128 {
		switch i {
		case 4, 6, 8, 10:
			buf.WriteString("-")
		}

		fmt.Fprintf(&buf, "%02x", b)
	}

	return buf.String()
}

func ParseUuid128(s string) (BleUuid128, error) {
	var bu128 BleUuid128

	if len(s) != 36 {
		return bu128, fmt.Errorf("Invalid UUID: %s", s)
	}

	boff := 0
	for i := 0; i < 36; {
		switch i {
		case 8, 13, 18, 23:
			if s[i] != '-' {
				return bu128, fmt.Errorf("Invalid UUID: %s", s)
			}
			i++

		default:
			u64, err := strconv.ParseUint(s[i:i+2], 16, 8)
			if err != nil {
				return bu128, fmt.Errorf("Invalid UUID: %s", s)
			}
			bu128[boff] = byte(u64)
			i += 2
			boff++
		}
	}

	return bu128, nil
}

// BleUuid is comparable; it can be used directly as a map key.
type BleUuid struct {
	// Set to 0 if the 128-bit UUID should be used.
	U16 BleUuid16

	// Zero if the 16-bit UUID should be used.
	U128 BleUuid128
}

func NewBleUuid16(u16 BleUuid16) BleUuid {
	return BleUuid{U16: u16}
}

func (bu BleUuid) String() string {
	if bu.U16 != 0 {
		return bu.U16.String()
	} else {
		return bu.U128.String()
	}
}

func ParseUuid(uuidStr string) (BleUuid, error) {
	bu := BleUuid{}
	var err error

	// First, try to parse as a 16-bit UUID.
	bu.U16, err = ParseUuid16(uuidStr)
	if err == nil && bu.U16 != 0 {
		return bu, nil
	}

	// Try to parse as a 128-bit UUID.
	bu.U16 = 0
	bu.U128, err = ParseUuid128(uuidStr)
	if err == nil {
		return bu, nil
	}

	return bu, err
}

func MustParseUuid(uuidStr string) BleUuid {
	bu, err := ParseUuid(uuidStr)
	if err != nil {
		panic(err.Error())
	}

	return bu
}

func (bu BleUuid) MarshalJSON() ([]byte, error) {
	if bu.U16 != 0 {
		return json.Marshal(bu.U16)
	} else {
		return json.Marshal(bu.U128.String())
	}
}

func (bu *BleUuid) UnmarshalJSON(data []byte) error {
	var err error

	// If the value is a string, try to parse a UUID from it.
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*bu, err = ParseUuid(s)
		return err
	}

	// Not a string; maybe it's a raw 16-bit number.
	if err = json.Unmarshal(data, &bu.U16); err != nil {
		return err
	}

	return nil
}

func CompareUuids(a BleUuid, b BleUuid) int {
	if a.U16 != 0 || b.U16 != 0 {
		return int(a.U16) - int(b.U16)
	} else {
		return bytes.Compare(a.U128[:], b.U128[:])
	}
}

type BleSvcType int

const (
	BLE_SVC_TYPE_PRIMARY BleSvcType = iota
	BLE_SVC_TYPE_SECONDARY
)

var BleSvcTypeStringMap = map[BleSvcType]string{
	BLE_SVC_TYPE_PRIMARY:   "primary",
	BLE_SVC_TYPE_SECONDARY: "secondary",
}

func BleSvcTypeToString(svcType BleSvcType) string {
	s := BleSvcTypeStringMap[svcType]
	if s == "" {
		return "???"
	}

	return s
}

func BleSvcTypeFromString(s string) (BleSvcType, error) {
	for svcType, name := range BleSvcTypeStringMap {
		if s == name {
			return svcType, nil
		}
	}

	return BleSvcType(0),
		fmt.Errorf("Invalid BleSvcType string: %s", s)
}

type BleChrFlags int

const (
	BLE_GATT_F_BROADCAST       BleChrFlags = 0x0001
	BLE_GATT_F_READ            BleChrFlags = 0x0002
	BLE_GATT_F_WRITE_NO_RSP    BleChrFlags = 0x0004
	BLE_GATT_F_WRITE           BleChrFlags = 0x0008
	BLE_GATT_F_NOTIFY          BleChrFlags = 0x0010
	BLE_GATT_F_INDICATE        BleChrFlags = 0x0020
	BLE_GATT_F_AUTH_SIGN_WRITE BleChrFlags = 0x0040
	BLE_GATT_F_RELIABLE_WRITE  BleChrFlags = 0x0080
)

var BleChrFlagsStringMap = map[BleChrFlags]string{
	BLE_GATT_F_BROADCAST:       "broadcast",
	BLE_GATT_F_READ:            "read",
	BLE_GATT_F_WRITE_NO_RSP:    "write_no_rsp",
	BLE_GATT_F_WRITE:           "write",
	BLE_GATT_F_NOTIFY:          "notify",
	BLE_GATT_F_INDICATE:        "indicate",
	BLE_GATT_F_AUTH_SIGN_WRITE: "auth_sign_write",
	BLE_GATT_F_RELIABLE_WRITE:  "reliable_write",
}

func BleChrFlagFromString(s string) (BleChrFlags, error) {
	for flag, name := range BleChrFlagsStringMap {
		if s == name {
			return flag, nil
		}
	}

	return BleChrFlags(0),
		fmt.Errorf("Invalid BleChrFlags string: %s", s)
}

func (f BleChrFlags) String() string {
	var names []string
	for i := uint(0); i < 8; i++ {
		bit := BleChrFlags(1 << i)
		if f&bit != 0 {
			names = append(names, BleChrFlagsStringMap[bit])
		}
	}

	return strings.Join(names, "|")
}

type BleAttFlags int

const (
	BLE_ATT_F_READ         BleAttFlags = 0x01
	BLE_ATT_F_WRITE        BleAttFlags = 0x02
	BLE_ATT_F_READ_ENC     BleAttFlags = 0x04
	BLE_ATT_F_READ_AUTHEN  BleAttFlags = 0x08
	BLE_ATT_F_READ_AUTHOR  BleAttFlags = 0x10
	BLE_ATT_F_WRITE_ENC    BleAttFlags = 0x20
	BLE_ATT_F_WRITE_AUTHEN BleAttFlags = 0x40
	BLE_ATT_F_WRITE_AUTHOR BleAttFlags = 0x80
)
