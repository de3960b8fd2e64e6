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
	"strings"

	"github.com/spf13/cast"

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/scenario"
	"mynewt.apache.org/newt/util"
)

func einvalSimConnString(f string, args ...interface{}) error {
	suffix := fmt.Sprintf(f, args...)
	return util.FmtNewtError("Invalid sim connstring; %s", suffix)
}

// splitConnString breaks a connstring into its key=value pairs.
func splitConnString(cs string) ([][2]string, error) {
	if strings.TrimSpace(cs) == "" {
		return nil, nil
	}

	var kvs [][2]string
	for _, p := range strings.Split(cs, ",") {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("expected comma-separated "+
				"key=value pairs; no '=' in: %s", p)
		}
		kvs = append(kvs, [2]string{
			strings.TrimSpace(kv[0]),
			strings.TrimSpace(kv[1]),
		})
	}

	return kvs, nil
}

// ApplySimConnString overrides the connect options in cs with the settings
// in a sim connstring.
func ApplySimConnString(cs *scenario.ConnectSpec, connString string) error {
	kvs, err := splitConnString(connString)
	if err != nil {
		return einvalSimConnString("%s", err.Error())
	}

	for _, kv := range kvs {
		k, v := kv[0], kv[1]

		switch k {
		case "phy":
			if _, err := bledefs.BlePhyFromString(v); err != nil {
				return einvalSimConnString("Invalid phy: %s", v)
			}
			cs.Phy = v
		case "auto_connect":
			cs.AutoConnect, err = cast.ToBoolE(v)
			if err != nil {
				return einvalSimConnString("Invalid auto_connect: %s", v)
			}
		case "mtu":
			cs.Mtu, err = cast.ToIntE(v)
			if err != nil || cs.Mtu < 0 {
				return einvalSimConnString("Invalid mtu: %s", v)
			}
		case "rssi":
			cs.Rssi, err = cast.ToIntE(v)
			if err != nil {
				return einvalSimConnString("Invalid rssi: %s", v)
			}
		case "name":
			cs.Name = v
		default:
			return einvalSimConnString("Unrecognized key: %s", k)
		}
	}

	return nil
}
