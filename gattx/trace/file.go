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
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"github.com/bradfitz/slice"
	"github.com/fatih/structs"
	"github.com/joaojeronimo/go-crc16"
	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"
)

const TRACE_VERSION = 1

// Trace is a recorded session.  On disk it is CBOR followed by a big-endian
// CRC16 of the CBOR bytes.
type Trace struct {
	Version     int      `codec:"version"`
	AutoConnect bool     `codec:"auto_connect"`
	Records     []Record `codec:"records"`
}

func Encode(w io.Writer, t *Trace) error {
	body := []byte{}
	enc := codec.NewEncoderBytes(&body, new(codec.CborHandle))
	if err := enc.Encode(t); err != nil {
		return errors.Wrap(err, "failed to encode trace")
	}

	crc := make([]byte, 2)
	binary.BigEndian.PutUint16(crc, crc16.Crc16(body))

	if _, err := w.Write(append(body, crc...)); err != nil {
		return errors.Wrap(err, "failed to write trace")
	}

	return nil
}

func Decode(r io.Reader) (*Trace, error) {
	data, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read trace")
	}

	if len(data) < 2 {
		return nil, errors.Errorf("trace too short: %d bytes", len(data))
	}

	body := data[:len(data)-2]
	want := binary.BigEndian.Uint16(data[len(data)-2:])
	if got := crc16.Crc16(body); got != want {
		return nil, errors.Errorf(
			"trace checksum mismatch: have=0x%04x want=0x%04x", got, want)
	}

	t := &Trace{}
	dec := codec.NewDecoderBytes(body, new(codec.CborHandle))
	if err := dec.Decode(t); err != nil {
		return nil, errors.Wrap(err, "failed to decode trace")
	}

	if t.Version != TRACE_VERSION {
		return nil, errors.Errorf("unsupported trace version: %d", t.Version)
	}

	return t, nil
}

func WriteFile(path string, t *Trace) error {
	var buf bytes.Buffer
	if err := Encode(&buf, t); err != nil {
		return err
	}

	if err := ioutil.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return errors.Wrapf(err, "failed to write trace file %s", path)
	}
	return nil
}

func ReadFile(path string) (*Trace, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read trace file %s", path)
	}

	return Decode(bytes.NewReader(data))
}

// RecordFields flattens a record to its set fields, keyed by wire name.
func RecordFields(r Record) map[string]interface{} {
	s := structs.New(r)
	s.TagName = "codec"
	return s.Map()
}

func formatField(v interface{}) string {
	switch v := v.(type) {
	case []byte:
		return hex.EncodeToString(v)
	case map[string]interface{}:
		return fmt.Sprintf("%s#%v", v["uuid"], v["inst"])
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Dump writes one line per record, with its fields in name order.
func Dump(w io.Writer, t *Trace) {
	fmt.Fprintf(w, "version=%d auto_connect=%t records=%d\n",
		t.Version, t.AutoConnect, len(t.Records))

	for _, r := range t.Records {
		m := RecordFields(r)
		delete(m, "seq")
		delete(m, "dir")
		delete(m, "op")
		delete(m, "services")

		keys := make([]string, 0, len(m))
		for k, _ := range m {
			keys = append(keys, k)
		}
		slice.Sort(keys, func(i int, j int) bool {
			return keys[i] < keys[j]
		})

		parts := []string{fmt.Sprintf("%4d %s %s", r.Seq, r.Dir, r.Op)}
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", k, formatField(m[k])))
		}
		fmt.Fprintln(w, strings.Join(parts, " "))

		for _, s := range r.Services {
			fmt.Fprintf(w, "       svc %s#%d\n", s.Uuid, s.Inst)
			for _, c := range s.Chrs {
				fmt.Fprintf(w, "         chr %s#%d flags=0x%02x\n",
					c.Uuid, c.Inst, c.Flags)
				for _, d := range c.Dscs {
					fmt.Fprintf(w, "           dsc %s#%d\n", d.Uuid, d.Inst)
				}
			}
		}
	}
}
