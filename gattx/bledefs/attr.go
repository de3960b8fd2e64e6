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
)

// AttrId is the identity of an attribute within one device's attribute
// table.  UUIDs are not unique across a table; the instance id
// disambiguates duplicates.
type AttrId struct {
	Uuid       BleUuid
	InstanceId int
}

func (id AttrId) String() string {
	return fmt.Sprintf("%s#%d", id.Uuid.String(), id.InstanceId)
}

// Matches reports whether the attribute has the specified UUID and instance
// id.  ANY_INSTANCE matches every instance.
func (id AttrId) Matches(uuid BleUuid, instanceId int) bool {
	if CompareUuids(id.Uuid, uuid) != 0 {
		return false
	}

	return instanceId == ANY_INSTANCE || instanceId == id.InstanceId
}

type BleDsc struct {
	Uuid       BleUuid
	InstanceId int
	AttFlags   BleAttFlags
	Value      []byte
}

func (d *BleDsc) Id() AttrId {
	return AttrId{d.Uuid, d.InstanceId}
}

func (d *BleDsc) String() string {
	return "dsc " + d.Id().String()
}

type BleChr struct {
	Uuid       BleUuid
	InstanceId int
	Flags      BleChrFlags
	AttFlags   BleAttFlags
	Value      []byte
	Dscs       []*BleDsc
}

func (c *BleChr) Id() AttrId {
	return AttrId{c.Uuid, c.InstanceId}
}

func (c *BleChr) String() string {
	return "chr " + c.Id().String()
}

func (c *BleChr) FindDsc(uuid BleUuid, instanceId int) *BleDsc {
	for _, d := range c.Dscs {
		if d.Id().Matches(uuid, instanceId) {
			return d
		}
	}

	return nil
}

// Cccd returns the characteristic's client characteristic configuration
// descriptor, or nil if it has none.
func (c *BleChr) Cccd() *BleDsc {
	return c.FindDsc(NewBleUuid16(CccdUuid16), ANY_INSTANCE)
}

type BleSvc struct {
	Uuid       BleUuid
	InstanceId int
	SvcType    BleSvcType
	Chrs       []*BleChr
}

func (s *BleSvc) Id() AttrId {
	return AttrId{s.Uuid, s.InstanceId}
}

func (s *BleSvc) String() string {
	return "svc " + s.Id().String()
}

func (s *BleSvc) FindChr(uuid BleUuid, instanceId int) *BleChr {
	for _, c := range s.Chrs {
		if c.Id().Matches(uuid, instanceId) {
			return c
		}
	}

	return nil
}

func FindSvc(svcs []*BleSvc, uuid BleUuid, instanceId int) *BleSvc {
	for _, s := range svcs {
		if s.Id().Matches(uuid, instanceId) {
			return s
		}
	}

	return nil
}

// FindChrById searches every service for the characteristic with the
// specified identity.
func FindChrById(svcs []*BleSvc, id AttrId) *BleChr {
	for _, s := range svcs {
		if c := s.FindChr(id.Uuid, id.InstanceId); c != nil {
			return c
		}
	}

	return nil
}

func FindDscById(svcs []*BleSvc, id AttrId) *BleDsc {
	for _, s := range svcs {
		for _, c := range s.Chrs {
			if d := c.FindDsc(id.Uuid, id.InstanceId); d != nil {
				return d
			}
		}
	}

	return nil
}

// AssignHandles returns a copy of svcs numbered the way an ATT server lays
// out its table: one handle per service declaration, two per characteristic
// (declaration and value), and one per descriptor.  Each attribute's
// instance id is set to its handle; a characteristic takes its value
// handle.  svcs itself is left untouched and attribute values are shared
// with it.  Also returns the next free handle.
func AssignHandles(svcs []*BleSvc, first int) ([]*BleSvc, int) {
	h := first
	out := make([]*BleSvc, len(svcs))
	for i, s := range svcs {
		svc := *s
		svc.InstanceId = h
		h++

		if s.Chrs != nil {
			svc.Chrs = make([]*BleChr, len(s.Chrs))
		}
		for j, c := range s.Chrs {
			chr := *c
			chr.InstanceId = h + 1
			h += 2

			if c.Dscs != nil {
				chr.Dscs = make([]*BleDsc, len(c.Dscs))
			}
			for k, d := range c.Dscs {
				dsc := *d
				dsc.InstanceId = h
				h++
				chr.Dscs[k] = &dsc
			}
			svc.Chrs[j] = &chr
		}
		out[i] = &svc
	}

	return out, h
}
