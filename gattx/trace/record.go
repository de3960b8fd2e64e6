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

// Package trace records the command and event stream of a client transport
// and replays it without a peer.
package trace

import (
	"bytes"
	"fmt"
	"reflect"

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/evt"
	"mynewt.apache.org/gattsim/gattx/gattutil"
)

type Direction int

const (
	DIR_CMD Direction = iota
	DIR_EVT
)

func (d Direction) String() string {
	if d == DIR_CMD {
		return "cmd"
	}
	return "evt"
}

// Command names.
const (
	OP_CONNECT     = "connect"
	OP_DISCONNECT  = "disconnect"
	OP_DISCOVER    = "discover_services"
	OP_CLEAR_CACHE = "clear_services_cache"
	OP_REQUEST_MTU = "request_mtu"
	OP_READ_RSSI   = "read_rssi"
	OP_READ_PHY    = "read_phy"
	OP_SET_PHY     = "set_phy"
	OP_READ_CHR    = "read_chr"
	OP_WRITE_CHR   = "write_chr"
	OP_READ_DSC    = "read_dsc"
	OP_WRITE_DSC   = "write_dsc"
	OP_SET_NOTIFY  = "set_notify"
)

// Event names.
const (
	EV_CONN_STATE      = "conn_state"
	EV_MTU_CHANGED     = "mtu_changed"
	EV_PHY_READ        = "phy_read"
	EV_PHY_UPDATE      = "phy_update"
	EV_RSSI            = "rssi"
	EV_SERVICE_CHANGED = "service_changed"
	EV_DISCOVERED      = "services_discovered"
	EV_CHR_READ        = "chr_read"
	EV_CHR_WRITE       = "chr_write"
	EV_CHR_CHANGED     = "chr_changed"
	EV_DSC_READ        = "dsc_read"
	EV_DSC_WRITE       = "dsc_write"
	EV_RELIABLE_WRITE  = "reliable_write"
)

type AttrRef struct {
	Uuid string `codec:"uuid"`
	Inst int    `codec:"inst"`
}

func newAttrRef(id bledefs.AttrId) *AttrRef {
	return &AttrRef{
		Uuid: id.Uuid.String(),
		Inst: id.InstanceId,
	}
}

func (r *AttrRef) Id() (bledefs.AttrId, error) {
	uuid, err := bledefs.ParseUuid(r.Uuid)
	if err != nil {
		return bledefs.AttrId{}, err
	}

	return bledefs.AttrId{
		Uuid:       uuid,
		InstanceId: r.Inst,
	}, nil
}

type DscRecord struct {
	Uuid string `codec:"uuid"`
	Inst int    `codec:"inst"`
}

type ChrRecord struct {
	Uuid  string      `codec:"uuid"`
	Inst  int         `codec:"inst"`
	Flags int         `codec:"flags"`
	Dscs  []DscRecord `codec:"dscs,omitempty"`
}

type SvcRecord struct {
	Uuid string      `codec:"uuid"`
	Inst int         `codec:"inst"`
	Type int         `codec:"type"`
	Chrs []ChrRecord `codec:"chrs,omitempty"`
}

// Record is one command or event.  Only the fields the operation uses are
// set.
type Record struct {
	Seq       int         `codec:"seq"`
	Dir       Direction   `codec:"dir"`
	Op        string      `codec:"op"`
	Status    int         `codec:"status,omitempty"`
	State     int         `codec:"state,omitempty"`
	Attr      *AttrRef    `codec:"attr,omitempty"`
	Value     []byte      `codec:"value,omitempty"`
	Num       int         `codec:"num,omitempty"`
	TxPhy     int         `codec:"tx_phy,omitempty"`
	RxPhy     int         `codec:"rx_phy,omitempty"`
	PhyOpt    int         `codec:"phy_opt,omitempty"`
	WriteType int         `codec:"write_type,omitempty"`
	Enable    bool        `codec:"enable,omitempty"`
	Services  []SvcRecord `codec:"services,omitempty"`
}

func (r Record) String() string {
	s := fmt.Sprintf("%s %s", r.Dir, r.Op)
	if r.Attr != nil {
		s += fmt.Sprintf(" %s#%d", r.Attr.Uuid, r.Attr.Inst)
	}
	return s
}

// Matches reports whether two records describe the same operation,
// ignoring sequence numbers.
func (r Record) Matches(o Record) bool {
	if !bytes.Equal(r.Value, o.Value) {
		return false
	}

	r.Seq, o.Seq = 0, 0
	r.Value, o.Value = nil, nil
	return reflect.DeepEqual(r, o)
}

func cmdRecord(op string) Record {
	return Record{Dir: DIR_CMD, Op: op}
}

func chrCmdRecord(op string, chr *bledefs.BleChr) Record {
	r := cmdRecord(op)
	r.Attr = newAttrRef(chr.Id())
	return r
}

func dscCmdRecord(op string, dsc *bledefs.BleDsc) Record {
	r := cmdRecord(op)
	r.Attr = newAttrRef(dsc.Id())
	return r
}

func svcRecords(svcs []*bledefs.BleSvc) []SvcRecord {
	var srs []SvcRecord
	for _, s := range svcs {
		sr := SvcRecord{
			Uuid: s.Uuid.String(),
			Inst: s.InstanceId,
			Type: int(s.SvcType),
		}
		for _, c := range s.Chrs {
			cr := ChrRecord{
				Uuid:  c.Uuid.String(),
				Inst:  c.InstanceId,
				Flags: int(c.Flags),
			}
			for _, d := range c.Dscs {
				cr.Dscs = append(cr.Dscs, DscRecord{
					Uuid: d.Uuid.String(),
					Inst: d.InstanceId,
				})
			}
			sr.Chrs = append(sr.Chrs, cr)
		}
		srs = append(srs, sr)
	}

	return srs
}

func svcTable(srs []SvcRecord) ([]*bledefs.BleSvc, error) {
	svcs := []*bledefs.BleSvc{}
	for _, sr := range srs {
		uuid, err := bledefs.ParseUuid(sr.Uuid)
		if err != nil {
			return nil, err
		}
		s := &bledefs.BleSvc{
			Uuid:       uuid,
			InstanceId: sr.Inst,
			SvcType:    bledefs.BleSvcType(sr.Type),
		}

		for _, cr := range sr.Chrs {
			uuid, err := bledefs.ParseUuid(cr.Uuid)
			if err != nil {
				return nil, err
			}
			c := &bledefs.BleChr{
				Uuid:       uuid,
				InstanceId: cr.Inst,
				Flags:      bledefs.BleChrFlags(cr.Flags),
			}

			for _, dr := range cr.Dscs {
				uuid, err := bledefs.ParseUuid(dr.Uuid)
				if err != nil {
					return nil, err
				}
				c.Dscs = append(c.Dscs, &bledefs.BleDsc{
					Uuid:       uuid,
					InstanceId: dr.Inst,
				})
			}
			s.Chrs = append(s.Chrs, c)
		}
		svcs = append(svcs, s)
	}

	return svcs, nil
}

// EventRecord converts a transport event to its record.
func EventRecord(e evt.ClientEvent) Record {
	r := Record{Dir: DIR_EVT}

	switch e := e.(type) {
	case *evt.ConnectionStateChanged:
		r.Op = EV_CONN_STATE
		r.Status = int(e.Status)
		r.State = int(e.NewState)

	case *evt.MtuChanged:
		r.Op = EV_MTU_CHANGED
		r.Num = e.Mtu
		r.Status = int(e.Status)

	case *evt.PhyRead:
		r.Op = EV_PHY_READ
		r.TxPhy = int(e.TxPhy)
		r.RxPhy = int(e.RxPhy)
		r.Status = int(e.Status)

	case *evt.PhyUpdate:
		r.Op = EV_PHY_UPDATE
		r.TxPhy = int(e.TxPhy)
		r.RxPhy = int(e.RxPhy)
		r.Status = int(e.Status)

	case *evt.ReadRemoteRssi:
		r.Op = EV_RSSI
		r.Num = e.Rssi
		r.Status = int(e.Status)

	case *evt.ServiceChanged:
		r.Op = EV_SERVICE_CHANGED

	case *evt.ServicesDiscovered:
		r.Op = EV_DISCOVERED
		r.Services = svcRecords(e.Services)
		r.Status = int(e.Status)

	case *evt.CharacteristicRead:
		r.Op = EV_CHR_READ
		r.Attr = newAttrRef(e.Chr.Id())
		r.Value = e.Value
		r.Status = int(e.Status)

	case *evt.CharacteristicWrite:
		r.Op = EV_CHR_WRITE
		r.Attr = newAttrRef(e.Chr.Id())
		r.Status = int(e.Status)

	case *evt.CharacteristicChanged:
		r.Op = EV_CHR_CHANGED
		r.Attr = newAttrRef(e.Chr.Id())
		r.Value = e.Value

	case *evt.DescriptorRead:
		r.Op = EV_DSC_READ
		r.Attr = newAttrRef(e.Dsc.Id())
		r.Value = e.Value
		r.Status = int(e.Status)

	case *evt.DescriptorWrite:
		r.Op = EV_DSC_WRITE
		r.Attr = newAttrRef(e.Dsc.Id())
		r.Status = int(e.Status)

	case *evt.ReliableWriteCompleted:
		r.Op = EV_RELIABLE_WRITE
		r.Status = int(e.Status)

	default:
		panic(fmt.Sprintf("unrecordable event: %T", e))
	}

	return r
}

// eventDecoder rebuilds events from records.  Attribute references resolve
// against the most recently discovered service table.
type eventDecoder struct {
	svcs []*bledefs.BleSvc
}

func (d *eventDecoder) chr(r Record) (*bledefs.BleChr, error) {
	if r.Attr == nil {
		return nil, gattutil.FmtTraceMismatchError(
			"record %d (%s) lacks an attribute", r.Seq, r.Op)
	}

	id, err := r.Attr.Id()
	if err != nil {
		return nil, err
	}

	chr := bledefs.FindChrById(d.svcs, id)
	if chr == nil {
		return nil, gattutil.FmtTraceMismatchError(
			"record %d (%s) references undiscovered characteristic %s",
			r.Seq, r.Op, id)
	}
	return chr, nil
}

func (d *eventDecoder) dsc(r Record) (*bledefs.BleDsc, error) {
	if r.Attr == nil {
		return nil, gattutil.FmtTraceMismatchError(
			"record %d (%s) lacks an attribute", r.Seq, r.Op)
	}

	id, err := r.Attr.Id()
	if err != nil {
		return nil, err
	}

	dsc := bledefs.FindDscById(d.svcs, id)
	if dsc == nil {
		return nil, gattutil.FmtTraceMismatchError(
			"record %d (%s) references undiscovered descriptor %s",
			r.Seq, r.Op, id)
	}
	return dsc, nil
}

func (d *eventDecoder) decode(r Record) (evt.ClientEvent, error) {
	status := bledefs.OperationStatus(r.Status)

	switch r.Op {
	case EV_CONN_STATE:
		return &evt.ConnectionStateChanged{
			Status:   bledefs.ConnectionStatus(r.Status),
			NewState: bledefs.ConnectionState(r.State),
		}, nil

	case EV_MTU_CHANGED:
		return &evt.MtuChanged{Mtu: r.Num, Status: status}, nil

	case EV_PHY_READ:
		return &evt.PhyRead{
			TxPhy:  bledefs.BlePhy(r.TxPhy),
			RxPhy:  bledefs.BlePhy(r.RxPhy),
			Status: status,
		}, nil

	case EV_PHY_UPDATE:
		return &evt.PhyUpdate{
			TxPhy:  bledefs.BlePhy(r.TxPhy),
			RxPhy:  bledefs.BlePhy(r.RxPhy),
			Status: status,
		}, nil

	case EV_RSSI:
		return &evt.ReadRemoteRssi{Rssi: r.Num, Status: status}, nil

	case EV_SERVICE_CHANGED:
		return &evt.ServiceChanged{}, nil

	case EV_DISCOVERED:
		var svcs []*bledefs.BleSvc
		if status.IsSuccess() {
			var err error
			svcs, err = svcTable(r.Services)
			if err != nil {
				return nil, err
			}
			d.svcs = svcs
		}
		return &evt.ServicesDiscovered{Services: svcs, Status: status}, nil

	case EV_CHR_READ:
		chr, err := d.chr(r)
		if err != nil {
			return nil, err
		}
		return &evt.CharacteristicRead{
			Chr:    chr,
			Value:  r.Value,
			Status: status,
		}, nil

	case EV_CHR_WRITE:
		chr, err := d.chr(r)
		if err != nil {
			return nil, err
		}
		return &evt.CharacteristicWrite{Chr: chr, Status: status}, nil

	case EV_CHR_CHANGED:
		chr, err := d.chr(r)
		if err != nil {
			return nil, err
		}
		return &evt.CharacteristicChanged{Chr: chr, Value: r.Value}, nil

	case EV_DSC_READ:
		dsc, err := d.dsc(r)
		if err != nil {
			return nil, err
		}
		return &evt.DescriptorRead{
			Dsc:    dsc,
			Value:  r.Value,
			Status: status,
		}, nil

	case EV_DSC_WRITE:
		dsc, err := d.dsc(r)
		if err != nil {
			return nil, err
		}
		return &evt.DescriptorWrite{Dsc: dsc, Status: status}, nil

	case EV_RELIABLE_WRITE:
		return &evt.ReliableWriteCompleted{Status: status}, nil

	default:
		return nil, gattutil.FmtTraceMismatchError(
			"record %d has unknown event \"%s\"", r.Seq, r.Op)
	}
}
