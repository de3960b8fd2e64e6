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

package config

import (
	"fmt"
	"time"

	"github.com/JuulLabs-OSS/ble"
	"github.com/spf13/cast"

	"mynewt.apache.org/gattsim/gattsim/gsutil"
	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/bll"
	"mynewt.apache.org/newt/util"
)

type BllConfig struct {
	CtlrName string
	PeerId   string
	PeerName string

	// Connection timeout, in seconds.
	ConnTimeout float64

	AutoConnect bool
}

func NewBllConfig() *BllConfig {
	return &BllConfig{
		ConnTimeout: gsutil.Timeout,
	}
}

func einvalBllConnString(f string, args ...interface{}) error {
	suffix := fmt.Sprintf(f, args...)
	return util.FmtNewtError("Invalid BLE connstring; %s", suffix)
}

func ParseBllConnString(cs string) (*BllConfig, error) {
	bc := NewBllConfig()

	kvs, err := splitConnString(cs)
	if err != nil {
		return nil, einvalBllConnString("%s", err.Error())
	}

	for _, kv := range kvs {
		k, v := kv[0], kv[1]

		switch k {
		case "ctlr_name":
			bc.CtlrName = v
		case "peer_id":
			addr, err := bledefs.ParseBleAddr(v)
			if err != nil {
				return nil, einvalBllConnString("Invalid peer_id: %s", v)
			}
			bc.PeerId = addr.String()
		case "peer_name":
			bc.PeerName = v
		case "conn_timeout":
			bc.ConnTimeout, err = cast.ToFloat64E(v)
			if err != nil || bc.ConnTimeout <= 0 {
				return nil, einvalBllConnString("Invalid conn_timeout: %s", v)
			}
		case "auto_connect":
			bc.AutoConnect, err = cast.ToBoolE(v)
			if err != nil {
				return nil, einvalBllConnString("Invalid auto_connect: %s", v)
			}
		default:
			return nil, einvalBllConnString("Unrecognized key: %s", k)
		}
	}

	return bc, nil
}

func BuildBllXportCfg(bc *BllConfig) (bll.XportCfg, error) {
	if gsutil.DeviceName != "" {
		bc.PeerName = gsutil.DeviceName
	}

	xc := bll.NewXportCfg()
	if bc.CtlrName != "" {
		xc.CtlrName = bc.CtlrName
	}

	if bc.PeerName != "" {
		name := bc.PeerName
		xc.AdvFilter = func(a ble.Advertisement) bool {
			return a.LocalName() == name
		}
	} else if bc.PeerId != "" {
		id := bc.PeerId
		xc.AdvFilter = func(a ble.Advertisement) bool {
			return a.Addr().String() == id
		}
	} else {
		return xc, util.NewNewtError("bll transport lacks a peer specifier")
	}

	xc.AutoConnect = bc.AutoConnect
	if bc.ConnTimeout > 0 {
		xc.ConnTimeout = time.Duration(bc.ConnTimeout * float64(time.Second))
	}

	return xc, nil
}
