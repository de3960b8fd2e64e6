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
	"bytes"
	"context"
	"testing"
	"time"

	"gotest.tools/assert"

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/client"
	"mynewt.apache.org/gattsim/gattx/gattutil"
	"mynewt.apache.org/gattsim/gattx/server"
	"mynewt.apache.org/gattsim/gattx/sim"
	"mynewt.apache.org/gattsim/gattx/xport"
)

func testSvcs() []*bledefs.BleSvc {
	return []*bledefs.BleSvc{
		&bledefs.BleSvc{
			Uuid:    bledefs.MustParseUuid("0x180f"),
			SvcType: bledefs.BLE_SVC_TYPE_PRIMARY,
			Chrs: []*bledefs.BleChr{
				&bledefs.BleChr{
					Uuid: bledefs.MustParseUuid("0x2a19"),
					Flags: bledefs.BLE_GATT_F_READ |
						bledefs.BLE_GATT_F_WRITE,
					Value: []byte{0x64},
				},
			},
		},
	}
}

func testCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// recordSession runs a short session against the simulator and returns
// what the recorder saw.
func recordSession(t *testing.T, ctx context.Context) *Trace {
	s := sim.NewSimulator()
	defer s.Shutdown()

	w := s.WatchAdvertised()
	defer w.Stop()

	gs := server.NewGattServer(sim.NewServerXport(s, testSvcs()))
	assert.NilError(t, gs.Start())

	dev, err := w.Next(ctx)
	assert.NilError(t, err)

	rx := NewRecordingXport(sim.NewClientXport(s, dev, sim.ConnectOptions{}))
	gc := client.NewGattClient(rx)
	assert.NilError(t, gc.Start())
	defer gc.Close()

	runSession(t, ctx, gc)
	return rx.Trace()
}

func runSession(t *testing.T, ctx context.Context, gc *client.GattClient) {
	res, err := gc.Connect(ctx)
	assert.NilError(t, err)
	assert.Equal(t, res.State, bledefs.CONN_STATE_CONNECTED)

	svcs, err := gc.WaitForServices(ctx)
	assert.NilError(t, err)

	ch := svcs.FindCharacteristic(bledefs.MustParseUuid("0x2a19"),
		bledefs.ANY_INSTANCE)
	assert.Assert(t, ch != nil)

	rr, err := ch.Read(ctx)
	assert.NilError(t, err)
	assert.DeepEqual(t, rr.Value, []byte{0x64})

	wr, err := ch.Write(ctx, []byte{0x32}, bledefs.BLE_WRITE_TYPE_DEFAULT)
	assert.NilError(t, err)
	assert.Equal(t, wr.Status, bledefs.GATT_SUCCESS)

	mr, err := gc.RequestMtu(ctx, 100)
	assert.NilError(t, err)
	assert.Equal(t, mr.Mtu, 100)

	assert.NilError(t, gc.Disconnect(ctx))
}

func TestRecordCapturesCommandsAndEvents(t *testing.T) {
	ctx := testCtx(t)
	tr := recordSession(t, ctx)

	assert.Equal(t, tr.Version, TRACE_VERSION)

	var ops []string
	for i, r := range tr.Records {
		assert.Equal(t, r.Seq, i+1)
		if r.Dir == DIR_CMD {
			ops = append(ops, r.Op)
		}
	}
	assert.DeepEqual(t, ops, []string{
		OP_CONNECT,
		OP_DISCOVER,
		OP_READ_CHR,
		OP_WRITE_CHR,
		OP_REQUEST_MTU,
		OP_DISCONNECT,
	})

	last := tr.Records[len(tr.Records)-1]
	assert.Equal(t, last.Op, EV_CONN_STATE)
	assert.Equal(t, bledefs.ConnectionState(last.State),
		bledefs.CONN_STATE_DISCONNECTED)
}

func TestEncodeDecode(t *testing.T) {
	ctx := testCtx(t)
	tr := recordSession(t, ctx)

	var buf bytes.Buffer
	assert.NilError(t, Encode(&buf, tr))

	got, err := Decode(bytes.NewReader(buf.Bytes()))
	assert.NilError(t, err)
	assert.Equal(t, len(got.Records), len(tr.Records))
	for i, r := range got.Records {
		assert.Assert(t, r.Matches(tr.Records[i]), "record %d", i)
	}

	// A flipped bit fails the checksum.
	data := buf.Bytes()
	data[len(data)/2] ^= 0x01
	_, err = Decode(bytes.NewReader(data))
	assert.ErrorContains(t, err, "checksum")

	_, err = Decode(bytes.NewReader([]byte{0x01}))
	assert.ErrorContains(t, err, "too short")
}

func TestReplayReproducesSession(t *testing.T) {
	ctx := testCtx(t)
	tr := recordSession(t, ctx)

	var buf bytes.Buffer
	assert.NilError(t, Encode(&buf, tr))
	tr, err := Decode(&buf)
	assert.NilError(t, err)

	rp := NewReplayXport(tr)
	gc := client.NewGattClient(rp)
	assert.NilError(t, gc.Start())
	defer gc.Close()

	runSession(t, ctx, gc)
	assert.Equal(t, rp.Remaining(), 0)
}

func TestReplayMismatch(t *testing.T) {
	ctx := testCtx(t)
	tr := recordSession(t, ctx)

	rp := NewReplayXport(tr)
	var x xport.ClientXport = rp

	assert.Assert(t, gattutil.IsXport(x.Connect()))

	gc := client.NewGattClient(rp)
	assert.NilError(t, gc.Start())
	defer gc.Close()

	_, err := gc.RequestMtu(ctx, 100)
	assert.Assert(t, gattutil.IsTraceMismatch(err))
	assert.Equal(t, rp.Remaining(), len(tr.Records))
}

func TestDump(t *testing.T) {
	ctx := testCtx(t)
	tr := recordSession(t, ctx)

	var buf bytes.Buffer
	Dump(&buf, tr)

	out := buf.String()
	assert.Assert(t, bytes.Contains(buf.Bytes(), []byte("cmd read_chr")), out)
	assert.Assert(t, bytes.Contains(buf.Bytes(),
		[]byte("evt chr_read attr=0x2a19#3 value=64")), out)
	assert.Assert(t, bytes.Contains(buf.Bytes(), []byte("num=100")), out)
	assert.Assert(t, bytes.Contains(buf.Bytes(), []byte("svc 0x180f#1")), out)
}
