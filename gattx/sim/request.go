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

package sim

import (
	"fmt"

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/gattutil"
)

type RequestKind int

const (
	REQ_CHR_READ RequestKind = iota
	REQ_CHR_WRITE
	REQ_DSC_READ
	REQ_DSC_WRITE
)

var requestKindStringMap = map[RequestKind]string{
	REQ_CHR_READ:  "chr_read",
	REQ_CHR_WRITE: "chr_write",
	REQ_DSC_READ:  "dsc_read",
	REQ_DSC_WRITE: "dsc_write",
}

func (k RequestKind) String() string {
	s := requestKindStringMap[k]
	if s == "" {
		return fmt.Sprintf("unknown(%d)", int(k))
	}
	return s
}

// PendingRequest is a client attribute request the server has not answered
// yet.  Exactly one of Chr and Dsc is set, according to Kind.
type PendingRequest struct {
	Id     int
	Kind   RequestKind
	Client *bledefs.ClientDevice
	Chr    *bledefs.BleChr
	Dsc    *bledefs.BleDsc
}

func (r *PendingRequest) String() string {
	var attr fmt.Stringer = r.Chr
	if r.Dsc != nil {
		attr = r.Dsc
	}
	return fmt.Sprintf("req(%d,%s,%s,%s)", r.Id, r.Kind, r.Client, attr)
}

// RequestHolder issues request ids and stores outstanding requests.  Ids are
// never reused for the lifetime of the holder.  Not thread safe; the
// simulator only touches it from its task queue.
type RequestHolder struct {
	seq  *gattutil.SeqGen
	reqs map[int]*PendingRequest
}

func NewRequestHolder() *RequestHolder {
	return &RequestHolder{
		seq:  gattutil.NewSeqGen(1),
		reqs: map[int]*PendingRequest{},
	}
}

// NextId returns a fresh id without storing a request.  Used for requests
// that need no response.
func (h *RequestHolder) NextId() int {
	return h.seq.Next()
}

func (h *RequestHolder) Add(kind RequestKind, client *bledefs.ClientDevice,
	chr *bledefs.BleChr, dsc *bledefs.BleDsc) *PendingRequest {

	r := &PendingRequest{
		Id:     h.seq.Next(),
		Kind:   kind,
		Client: client,
		Chr:    chr,
		Dsc:    dsc,
	}
	h.reqs[r.Id] = r

	return r
}

// Take removes and returns the request with the specified id.  The request
// must have been issued by client.
func (h *RequestHolder) Take(id int,
	client *bledefs.ClientDevice) (*PendingRequest, error) {

	r := h.reqs[id]
	if r == nil || r.Client != client {
		return nil, gattutil.NewRequestNotFoundError(id)
	}

	delete(h.reqs, id)
	return r, nil
}

// DropClient removes every request issued by client and returns the number
// removed.
func (h *RequestHolder) DropClient(client *bledefs.ClientDevice) int {
	n := 0
	for id, r := range h.reqs {
		if r.Client == client {
			delete(h.reqs, id)
			n++
		}
	}

	return n
}

func (h *RequestHolder) Len() int {
	return len(h.reqs)
}
