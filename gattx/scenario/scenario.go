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

// Package scenario describes a simulated session in YAML and runs it.
package scenario

import (
	"encoding/hex"
	"io/ioutil"
	"strings"

	"github.com/bradfitz/slice"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/sim"
)

// Client steps.
const (
	STEP_CONNECT        = "connect"
	STEP_REQUEST_MTU    = "request_mtu"
	STEP_READ_RSSI      = "read_rssi"
	STEP_SET_PHY        = "set_phy"
	STEP_READ_PHY       = "read_phy"
	STEP_READ           = "read"
	STEP_WRITE          = "write"
	STEP_READ_DSC       = "read_descriptor"
	STEP_WRITE_DSC      = "write_descriptor"
	STEP_ENABLE_NOTIFY  = "enable_notifications"
	STEP_DISABLE_NOTIFY = "disable_notifications"
	STEP_WAIT_NOTIFY    = "wait_notification"
	STEP_DISCONNECT     = "disconnect"
)

// Server steps.  These drive the simulator and are skipped when the client
// runs against another transport.
const (
	STEP_NOTIFY            = "notify"
	STEP_LINK_LOSS         = "link_loss"
	STEP_RECONNECT         = "reconnect"
	STEP_SERVICE_CHANGED   = "service_changed"
	STEP_SERVER_DISCONNECT = "server_disconnect"
	STEP_SET_RSSI          = "set_rssi"
)

var clientSteps = map[string]struct{}{
	STEP_CONNECT:        struct{}{},
	STEP_REQUEST_MTU:    struct{}{},
	STEP_READ_RSSI:      struct{}{},
	STEP_SET_PHY:        struct{}{},
	STEP_READ_PHY:       struct{}{},
	STEP_READ:           struct{}{},
	STEP_WRITE:          struct{}{},
	STEP_READ_DSC:       struct{}{},
	STEP_WRITE_DSC:      struct{}{},
	STEP_ENABLE_NOTIFY:  struct{}{},
	STEP_DISABLE_NOTIFY: struct{}{},
	STEP_WAIT_NOTIFY:    struct{}{},
	STEP_DISCONNECT:     struct{}{},
}

var serverSteps = map[string]struct{}{
	STEP_NOTIFY:            struct{}{},
	STEP_LINK_LOSS:         struct{}{},
	STEP_RECONNECT:         struct{}{},
	STEP_SERVICE_CHANGED:   struct{}{},
	STEP_SERVER_DISCONNECT: struct{}{},
	STEP_SET_RSSI:          struct{}{},
}

func IsServerStep(op string) bool {
	_, ok := serverSteps[op]
	return ok
}

// StepOps returns the name of every step, sorted.
func StepOps() []string {
	ops := make([]string, 0, len(clientSteps)+len(serverSteps))
	for op, _ := range clientSteps {
		ops = append(ops, op)
	}
	for op, _ := range serverSteps {
		ops = append(ops, op)
	}
	slice.Sort(ops, func(i int, j int) bool {
		return ops[i] < ops[j]
	})

	return ops
}

type ConnectSpec struct {
	Phy         string `yaml:"phy,omitempty"`
	AutoConnect bool   `yaml:"auto_connect,omitempty"`
	Rssi        int    `yaml:"rssi,omitempty"`
	Name        string `yaml:"name,omitempty"`

	// Requested right after the connect step.  Zero keeps the default.
	Mtu int `yaml:"mtu,omitempty"`
}

// Options converts the connect settings to simulator options.
func (cs ConnectSpec) Options() (sim.ConnectOptions, error) {
	opts := sim.ConnectOptions{
		AutoConnect: cs.AutoConnect,
		Rssi:        cs.Rssi,
		Name:        cs.Name,
	}

	if cs.Phy != "" {
		phy, err := bledefs.BlePhyFromString(cs.Phy)
		if err != nil {
			return opts, err
		}
		opts.Phy = phy
	}

	return opts, nil
}

type DscSpec struct {
	Uuid  string `yaml:"uuid"`
	Value string `yaml:"value,omitempty"`
}

type ChrSpec struct {
	Uuid  string    `yaml:"uuid"`
	Flags []string  `yaml:"flags"`
	Value string    `yaml:"value,omitempty"`
	Dscs  []DscSpec `yaml:"descriptors,omitempty"`
}

type SvcSpec struct {
	Uuid string    `yaml:"uuid"`
	Type string    `yaml:"type,omitempty"`
	Chrs []ChrSpec `yaml:"characteristics"`
}

type Step struct {
	Op string `yaml:"op"`

	// Target characteristic and, for descriptor steps, descriptor.  A nil
	// instance matches any.
	Chr  string `yaml:"chr,omitempty"`
	Inst *int   `yaml:"inst,omitempty"`
	Dsc  string `yaml:"dsc,omitempty"`

	// Hex-encoded payload and expected value.
	Value  string `yaml:"value,omitempty"`
	Expect string `yaml:"expect,omitempty"`

	// Expected operation status.  Empty means success.
	Status string `yaml:"status,omitempty"`

	NoResponse bool   `yaml:"no_response,omitempty"`
	Mtu        int    `yaml:"mtu,omitempty"`
	Rssi       int    `yaml:"rssi,omitempty"`
	TxPhy      string `yaml:"tx_phy,omitempty"`
	RxPhy      string `yaml:"rx_phy,omitempty"`
	PhyOpt     string `yaml:"phy_opt,omitempty"`
}

func (s Step) String() string {
	parts := []string{s.Op}
	if s.Chr != "" {
		parts = append(parts, s.Chr)
	}
	if s.Dsc != "" {
		parts = append(parts, s.Dsc)
	}
	return strings.Join(parts, " ")
}

type Scenario struct {
	Name     string      `yaml:"name"`
	Connect  ConnectSpec `yaml:"connect"`
	Services []SvcSpec   `yaml:"services"`
	Steps    []Step      `yaml:"steps"`
}

func Parse(data []byte) (*Scenario, error) {
	sc := &Scenario{}
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, errors.Wrap(err, "invalid scenario")
	}

	if err := sc.Validate(); err != nil {
		return nil, err
	}

	return sc, nil
}

func Load(path string) (*Scenario, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read scenario %s", path)
	}

	sc, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return sc, nil
}

func (sc *Scenario) Validate() error {
	if _, err := sc.Connect.Options(); err != nil {
		return err
	}

	if _, err := BuildServices(sc.Services); err != nil {
		return err
	}

	for i, s := range sc.Steps {
		if _, ok := clientSteps[s.Op]; !ok && !IsServerStep(s.Op) {
			return errors.Errorf("step %d: unknown op \"%s\"", i, s.Op)
		}

		for _, h := range []string{s.Value, s.Expect} {
			if _, err := hex.DecodeString(h); err != nil {
				return errors.Wrapf(err, "step %d: invalid hex", i)
			}
		}
	}

	return nil
}

func parseHex(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid hex \"%s\"", s)
	}
	return b, nil
}

// BuildServices converts service specs to an attribute table.  A
// characteristic that notifies or indicates gets a CCCD if none is listed.
func BuildServices(specs []SvcSpec) ([]*bledefs.BleSvc, error) {
	var svcs []*bledefs.BleSvc

	for _, ss := range specs {
		uuid, err := bledefs.ParseUuid(ss.Uuid)
		if err != nil {
			return nil, err
		}

		svc := &bledefs.BleSvc{
			Uuid:    uuid,
			SvcType: bledefs.BLE_SVC_TYPE_PRIMARY,
		}
		if ss.Type != "" {
			svc.SvcType, err = bledefs.BleSvcTypeFromString(ss.Type)
			if err != nil {
				return nil, err
			}
		}

		for _, cs := range ss.Chrs {
			chr, err := buildChr(cs)
			if err != nil {
				return nil, errors.Wrapf(err, "service %s", ss.Uuid)
			}
			svc.Chrs = append(svc.Chrs, chr)
		}

		svcs = append(svcs, svc)
	}

	return svcs, nil
}

func buildChr(cs ChrSpec) (*bledefs.BleChr, error) {
	uuid, err := bledefs.ParseUuid(cs.Uuid)
	if err != nil {
		return nil, err
	}

	chr := &bledefs.BleChr{Uuid: uuid}
	for _, f := range cs.Flags {
		flag, err := bledefs.BleChrFlagFromString(f)
		if err != nil {
			return nil, err
		}
		chr.Flags |= flag
	}

	if chr.Value, err = parseHex(cs.Value); err != nil {
		return nil, err
	}

	for _, ds := range cs.Dscs {
		uuid, err := bledefs.ParseUuid(ds.Uuid)
		if err != nil {
			return nil, err
		}

		dsc := &bledefs.BleDsc{Uuid: uuid}
		if dsc.Value, err = parseHex(ds.Value); err != nil {
			return nil, err
		}
		chr.Dscs = append(chr.Dscs, dsc)
	}

	sub := bledefs.BLE_GATT_F_NOTIFY | bledefs.BLE_GATT_F_INDICATE
	if chr.Flags&sub != 0 && chr.Cccd() == nil {
		chr.Dscs = append(chr.Dscs, &bledefs.BleDsc{
			Uuid: bledefs.NewBleUuid16(bledefs.CccdUuid16),
		})
	}

	return chr, nil
}
