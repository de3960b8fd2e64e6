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

package bll

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"time"

	"github.com/JuulLabs-OSS/ble"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/gattsim/gattx/bledefs"
)

func UuidFromBllUuid(bllUuid ble.UUID) (bledefs.BleUuid, error) {
	uuid := bledefs.BleUuid{}

	switch len(bllUuid) {
	case 2:
		uuid.U16 = bledefs.BleUuid16(binary.LittleEndian.Uint16(bllUuid))
		return uuid, nil

	case 16:
		for i, b := range bllUuid {
			uuid.U128[15-i] = b
		}
		return uuid, nil

	default:
		return uuid, fmt.Errorf("Invalid UUID: %#v", bllUuid)
	}
}

func BllUuidFromUuid(uuid bledefs.BleUuid) ble.UUID {
	if uuid.U16 != 0 {
		return ble.UUID16(uint16(uuid.U16))
	}

	// ble.UUID stores bytes little-endian.
	u := make(ble.UUID, 16)
	for i, b := range uuid.U128 {
		u[15-i] = b
	}
	return u
}

// statusFromErr maps a library error to a GATT status.  ATT error responses
// carry their own code; anything else is a generic failure.
func statusFromErr(err error) bledefs.OperationStatus {
	if err == nil {
		return bledefs.GATT_SUCCESS
	}

	if ae, ok := errors.Cause(err).(ble.ATTError); ok {
		return bledefs.OperationStatus(ae)
	}

	return bledefs.GATT_FAILURE
}

// profileTable converts a discovered profile to an attribute table.
// Instance ids are the ATT handles the library reports.
func profileTable(p *ble.Profile) ([]*bledefs.BleSvc, attrMap, error) {
	m := newAttrMap()
	svcs := []*bledefs.BleSvc{}

	for _, s := range p.Services {
		uuid, err := UuidFromBllUuid(s.UUID)
		if err != nil {
			return nil, m, err
		}

		svc := &bledefs.BleSvc{
			Uuid:       uuid,
			InstanceId: int(s.Handle),
			SvcType:    bledefs.BLE_SVC_TYPE_PRIMARY,
		}

		for _, c := range s.Characteristics {
			uuid, err := UuidFromBllUuid(c.UUID)
			if err != nil {
				return nil, m, err
			}

			chr := &bledefs.BleChr{
				Uuid:       uuid,
				InstanceId: int(c.ValueHandle),
				Flags:      bledefs.BleChrFlags(c.Property),
			}
			m.chrs[chr.Id()] = c

			for _, d := range c.Descriptors {
				uuid, err := UuidFromBllUuid(d.UUID)
				if err != nil {
					return nil, m, err
				}

				dsc := &bledefs.BleDsc{
					Uuid:       uuid,
					InstanceId: int(d.Handle),
				}
				m.dscs[dsc.Id()] = d
				chr.Dscs = append(chr.Dscs, dsc)
			}

			svc.Chrs = append(svc.Chrs, chr)
		}

		svcs = append(svcs, svc)
	}

	return svcs, m, nil
}

type attrMap struct {
	chrs map[bledefs.AttrId]*ble.Characteristic
	dscs map[bledefs.AttrId]*ble.Descriptor
}

func newAttrMap() attrMap {
	return attrMap{
		chrs: map[bledefs.AttrId]*ble.Characteristic{},
		dscs: map[bledefs.AttrId]*ble.Descriptor{},
	}
}

func exchangeMtu(cln ble.Client, preferredMtu int) (int, error) {
	log.Debugf("Exchanging MTU")

	// On macOS the exchange request is a no-op; the library assumes the OS
	// already exchanged MTUs on its own.  A reported value of 23 means it
	// hasn't happened yet, so wait and requery.
	var mtu int
	for i := 0; i < 3; i++ {
		var err error
		mtu, err = cln.ExchangeMTU(preferredMtu)
		if err != nil {
			return 0, err
		}

		if runtime.GOOS != "darwin" {
			break
		}

		if mtu != bledefs.BLE_ATT_MTU_DFLT {
			break
		}

		log.Debugf("macOS reports an MTU of 23.  " +
			"Assume exchange hasn't completed; wait and requery.")
		time.Sleep(time.Second)
	}

	log.Debugf("Exchanged MTU; ATT MTU = %d", mtu)
	return mtu, nil
}
