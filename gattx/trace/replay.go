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
	"mynewt.apache.org/gattsim/gattx/gattutil"
	"mynewt.apache.org/gattsim/gattx/xport"
)

// ReplayXport plays a recorded trace back as a client transport.  Each
// command must match the next recorded command; the events recorded after
// it are then delivered.  Events recorded before the first command are
// delivered at Start.
type ReplayXport struct {
	t   *Trace
	pos int
	dec eventDecoder

	out    *gattutil.Dispatcher
	closed bool
	mtx    sync.Mutex
}

var _ xport.ClientXport = &ReplayXport{}

func NewReplayXport(t *Trace) *ReplayXport {
	return &ReplayXport{
		t: t,
	}
}

func (rp *ReplayXport) Start(sink evt.ClientSink) error {
	rp.mtx.Lock()
	defer rp.mtx.Unlock()

	if rp.out != nil {
		return gattutil.NewAlreadyError("replay transport already started")
	}

	rp.out = gattutil.NewDispatcher("replay", func(val interface{}) {
		sink.OnClientEvent(val.(evt.ClientEvent))
	})

	return rp.flushEvents()
}

// Remaining is the number of records not yet replayed.
func (rp *ReplayXport) Remaining() int {
	rp.mtx.Lock()
	defer rp.mtx.Unlock()

	return len(rp.t.Records) - rp.pos
}

// flushEvents delivers every event up to the next command.  The caller
// holds the lock.
func (rp *ReplayXport) flushEvents() error {
	for rp.pos < len(rp.t.Records) {
		r := rp.t.Records[rp.pos]
		if r.Dir != DIR_EVT {
			break
		}

		e, err := rp.dec.decode(r)
		if err != nil {
			return err
		}

		log.Debugf("replay: %s", r)
		rp.out.Post(e)
		rp.pos++
	}

	return nil
}

func (rp *ReplayXport) expect(r Record) error {
	rp.mtx.Lock()
	defer rp.mtx.Unlock()

	if rp.out == nil {
		return gattutil.NewXportError("replay transport not started")
	}
	if rp.closed {
		return gattutil.NewClosedError("replay transport closed")
	}

	if rp.pos >= len(rp.t.Records) {
		return gattutil.FmtTraceMismatchError(
			"unexpected command \"%s\"; trace exhausted", r)
	}

	want := rp.t.Records[rp.pos]
	if want.Dir != DIR_CMD || !want.Matches(r) {
		return gattutil.FmtTraceMismatchError(
			"record %d: have \"%s\", want \"%s\"", want.Seq, r, want)
	}

	rp.pos++
	return rp.flushEvents()
}

func (rp *ReplayXport) AutoConnect() bool {
	return rp.t.AutoConnect
}

func (rp *ReplayXport) Close() error {
	rp.mtx.Lock()
	defer rp.mtx.Unlock()

	if rp.out == nil || rp.closed {
		return gattutil.NewClosedError("replay transport closed")
	}

	rp.closed = true
	rp.out.Stop()
	return nil
}

func (rp *ReplayXport) Connect() error {
	return rp.expect(cmdRecord(OP_CONNECT))
}

func (rp *ReplayXport) Disconnect() error {
	return rp.expect(cmdRecord(OP_DISCONNECT))
}

func (rp *ReplayXport) DiscoverServices() error {
	return rp.expect(cmdRecord(OP_DISCOVER))
}

func (rp *ReplayXport) ClearServicesCache() error {
	return rp.expect(cmdRecord(OP_CLEAR_CACHE))
}

func (rp *ReplayXport) RequestMtu(mtu int) error {
	r := cmdRecord(OP_REQUEST_MTU)
	r.Num = mtu
	return rp.expect(r)
}

func (rp *ReplayXport) ReadRemoteRssi() error {
	return rp.expect(cmdRecord(OP_READ_RSSI))
}

func (rp *ReplayXport) ReadPhy() error {
	return rp.expect(cmdRecord(OP_READ_PHY))
}

func (rp *ReplayXport) SetPreferredPhy(txPhy bledefs.BlePhy,
	rxPhy bledefs.BlePhy, opt bledefs.PhyOption) error {

	return rp.expect(setPhyRecord(txPhy, rxPhy, opt))
}

func (rp *ReplayXport) ReadCharacteristic(chr *bledefs.BleChr) error {
	return rp.expect(chrCmdRecord(OP_READ_CHR, chr))
}

func (rp *ReplayXport) WriteCharacteristic(chr *bledefs.BleChr,
	value []byte, writeType bledefs.WriteType) error {

	return rp.expect(writeChrRecord(chr, value, writeType))
}

func (rp *ReplayXport) ReadDescriptor(dsc *bledefs.BleDsc) error {
	return rp.expect(dscCmdRecord(OP_READ_DSC, dsc))
}

func (rp *ReplayXport) WriteDescriptor(dsc *bledefs.BleDsc,
	value []byte) error {

	r := dscCmdRecord(OP_WRITE_DSC, dsc)
	r.Value = value
	return rp.expect(r)
}

func (rp *ReplayXport) SetCharacteristicNotification(chr *bledefs.BleChr,
	enable bool) error {

	r := chrCmdRecord(OP_SET_NOTIFY, chr)
	r.Enable = enable
	return rp.expect(r)
}
