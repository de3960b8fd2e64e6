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

package trace

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/evt"
	"mynewt.apache.org/gattsim/gattx/xport"
)

// RecordingXport wraps a client transport and records every command issued
// to it and every event it delivers.
type RecordingXport struct {
	inner xport.ClientXport

	recs []Record
	seq  int
	mtx  sync.Mutex
}

var _ xport.ClientXport = &RecordingXport{}

func NewRecordingXport(inner xport.ClientXport) *RecordingXport {
	return &RecordingXport{
		inner: inner,
	}
}

func (rx *RecordingXport) add(r Record) int {
	rx.mtx.Lock()
	defer rx.mtx.Unlock()

	rx.seq++
	r.Seq = rx.seq
	log.Debugf("trace: %s", r)
	rx.recs = append(rx.recs, r)
	return r.Seq
}

// issue records a command, then runs it.  A command the transport rejects
// produces no events, so its record is withdrawn.
func (rx *RecordingXport) issue(r Record, fn func() error) error {
	seq := rx.add(r)
	if err := fn(); err != nil {
		rx.mtx.Lock()
		defer rx.mtx.Unlock()

		for i := len(rx.recs) - 1; i >= 0; i-- {
			if rx.recs[i].Seq == seq {
				rx.recs = append(rx.recs[:i], rx.recs[i+1:]...)
				break
			}
		}
		return err
	}

	return nil
}

// Trace returns a snapshot of everything recorded so far.
func (rx *RecordingXport) Trace() *Trace {
	rx.mtx.Lock()
	defer rx.mtx.Unlock()

	recs := make([]Record, len(rx.recs))
	copy(recs, rx.recs)

	return &Trace{
		Version:     TRACE_VERSION,
		AutoConnect: rx.inner.AutoConnect(),
		Records:     recs,
	}
}

func (rx *RecordingXport) Start(sink evt.ClientSink) error {
	return rx.inner.Start(evt.ClientSinkFunc(func(e evt.ClientEvent) {
		rx.add(EventRecord(e))
		sink.OnClientEvent(e)
	}))
}

func (rx *RecordingXport) AutoConnect() bool {
	return rx.inner.AutoConnect()
}

func (rx *RecordingXport) Close() error {
	return rx.inner.Close()
}

func (rx *RecordingXport) Connect() error {
	return rx.issue(cmdRecord(OP_CONNECT), rx.inner.Connect)
}

func (rx *RecordingXport) Disconnect() error {
	return rx.issue(cmdRecord(OP_DISCONNECT), rx.inner.Disconnect)
}

func (rx *RecordingXport) DiscoverServices() error {
	return rx.issue(cmdRecord(OP_DISCOVER), rx.inner.DiscoverServices)
}

func (rx *RecordingXport) ClearServicesCache() error {
	return rx.issue(cmdRecord(OP_CLEAR_CACHE), rx.inner.ClearServicesCache)
}

func (rx *RecordingXport) RequestMtu(mtu int) error {
	r := cmdRecord(OP_REQUEST_MTU)
	r.Num = mtu
	return rx.issue(r, func() error {
		return rx.inner.RequestMtu(mtu)
	})
}

func (rx *RecordingXport) ReadRemoteRssi() error {
	return rx.issue(cmdRecord(OP_READ_RSSI), rx.inner.ReadRemoteRssi)
}

func (rx *RecordingXport) ReadPhy() error {
	return rx.issue(cmdRecord(OP_READ_PHY), rx.inner.ReadPhy)
}

func (rx *RecordingXport) SetPreferredPhy(txPhy bledefs.BlePhy,
	rxPhy bledefs.BlePhy, opt bledefs.PhyOption) error {

	return rx.issue(setPhyRecord(txPhy, rxPhy, opt), func() error {
		return rx.inner.SetPreferredPhy(txPhy, rxPhy, opt)
	})
}

func (rx *RecordingXport) ReadCharacteristic(chr *bledefs.BleChr) error {
	return rx.issue(chrCmdRecord(OP_READ_CHR, chr), func() error {
		return rx.inner.ReadCharacteristic(chr)
	})
}

func (rx *RecordingXport) WriteCharacteristic(chr *bledefs.BleChr,
	value []byte, writeType bledefs.WriteType) error {

	return rx.issue(writeChrRecord(chr, value, writeType), func() error {
		return rx.inner.WriteCharacteristic(chr, value, writeType)
	})
}

func (rx *RecordingXport) ReadDescriptor(dsc *bledefs.BleDsc) error {
	return rx.issue(dscCmdRecord(OP_READ_DSC, dsc), func() error {
		return rx.inner.ReadDescriptor(dsc)
	})
}

func (rx *RecordingXport) WriteDescriptor(dsc *bledefs.BleDsc,
	value []byte) error {

	r := dscCmdRecord(OP_WRITE_DSC, dsc)
	r.Value = value
	return rx.issue(r, func() error {
		return rx.inner.WriteDescriptor(dsc, value)
	})
}

func (rx *RecordingXport) SetCharacteristicNotification(chr *bledefs.BleChr,
	enable bool) error {

	r := chrCmdRecord(OP_SET_NOTIFY, chr)
	r.Enable = enable
	return rx.issue(r, func() error {
		return rx.inner.SetCharacteristicNotification(chr, enable)
	})
}

func setPhyRecord(txPhy bledefs.BlePhy, rxPhy bledefs.BlePhy,
	opt bledefs.PhyOption) Record {

	r := cmdRecord(OP_SET_PHY)
	r.TxPhy = int(txPhy)
	r.RxPhy = int(rxPhy)
	r.PhyOpt = int(opt)
	return r
}

func writeChrRecord(chr *bledefs.BleChr, value []byte,
	writeType bledefs.WriteType) Record {

	r := chrCmdRecord(OP_WRITE_CHR, chr)
	r.Value = value
	r.WriteType = int(writeType)
	return r
}
