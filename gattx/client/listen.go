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

package client

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"mynewt.apache.org/gattsim/gattx/bledefs"
)

type OpType int

const (
	OP_CONNECT OpType = iota
	OP_MTU
	OP_RSSI
	OP_PHY
	OP_CHR_READ
	OP_CHR_WRITE
	OP_DSC_READ
	OP_DSC_WRITE
)

var OpTypeStringMap = map[OpType]string{
	OP_CONNECT:   "connect",
	OP_MTU:       "mtu",
	OP_RSSI:      "rssi",
	OP_PHY:       "phy",
	OP_CHR_READ:  "chr_read",
	OP_CHR_WRITE: "chr_write",
	OP_DSC_READ:  "dsc_read",
	OP_DSC_WRITE: "dsc_write",
}

func OpTypeToString(op OpType) string {
	s := OpTypeStringMap[op]
	if s == "" {
		return "???"
	}

	return s
}

func (op OpType) String() string {
	return OpTypeToString(op)
}

// Identifies which event answers a pending operation: the operation type
// and, for attribute operations, the target attribute.
type ListenerKey struct {
	Op   OpType
	Attr bledefs.AttrId
}

var noAttr = bledefs.AttrId{InstanceId: bledefs.ANY_INSTANCE}

// Listener for a connection-level operation.
func OpKey(op OpType) ListenerKey {
	return ListenerKey{
		Op:   op,
		Attr: noAttr,
	}
}

// Listener for an operation on a single attribute.
func AttrKey(op OpType, attr bledefs.AttrId) ListenerKey {
	return ListenerKey{
		Op:   op,
		Attr: attr,
	}
}

func (k ListenerKey) String() string {
	if k.Attr == noAttr {
		return k.Op.String()
	}
	return k.Op.String() + " " + k.Attr.String()
}

type Listener struct {
	ResultChan chan interface{}
	ErrChan    chan error

	key       ListenerKey
	seq       int
	abandoned bool
}

func newListener(key ListenerKey, seq int) *Listener {
	return &Listener{
		ResultChan: make(chan interface{}, 1),
		ErrChan:    make(chan error, 1),
		key:        key,
		seq:        seq,
	}
}

func (l *Listener) Key() ListenerKey {
	return l.key
}

// Correlator pairs asynchronous results with the calls that asked for them.
// Listeners sharing a key form a FIFO queue; each result resolves the oldest
// listener for its key, so concurrent callers of the same operation are
// answered in issue order and never replace one another.
type Correlator struct {
	queues  map[ListenerKey][]*Listener
	nextSeq int
	mtx     sync.Mutex
}

func NewCorrelator() *Correlator {
	return &Correlator{
		queues: map[ListenerKey][]*Listener{},
	}
}

func (c *Correlator) AddListener(key ListenerKey) *Listener {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	l := newListener(key, c.nextSeq)
	c.nextSeq++

	c.queues[key] = append(c.queues[key], l)
	return l
}

func (c *Correlator) removeNoLock(l *Listener) bool {
	q := c.queues[l.key]
	for i, other := range q {
		if other == l {
			q = append(q[:i], q[i+1:]...)
			if len(q) == 0 {
				delete(c.queues, l.key)
			} else {
				c.queues[l.key] = q
			}
			return true
		}
	}

	return false
}

// RemoveListener unregisters a listener whose request was never issued.
func (c *Correlator) RemoveListener(l *Listener) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	return c.removeNoLock(l)
}

// Abandon marks a listener whose caller stopped waiting.  The listener stays
// queued so that the result answering its request is consumed and dropped
// instead of resolving a later caller.
func (c *Correlator) Abandon(l *Listener) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	l.abandoned = true
}

func (c *Correlator) popNoLock(key ListenerKey) *Listener {
	q := c.queues[key]
	if len(q) == 0 {
		return nil
	}

	l := q[0]
	if len(q) == 1 {
		delete(c.queues, key)
	} else {
		c.queues[key] = q[1:]
	}

	return l
}

func deliver(l *Listener, result interface{}) {
	if l.abandoned {
		log.Debugf("dropping result for abandoned %s listener", l.key)
		return
	}

	l.ResultChan <- result
}

// Resolve hands result to the oldest listener for key.  Returns false if no
// listener was waiting.
func (c *Correlator) Resolve(key ListenerKey, result interface{}) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	l := c.popNoLock(key)
	if l == nil {
		return false
	}

	deliver(l, result)
	return true
}

// ResolveAll hands result to every listener for key.
func (c *Correlator) ResolveAll(key ListenerKey, result interface{}) int {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	count := 0
	for {
		l := c.popNoLock(key)
		if l == nil {
			return count
		}

		deliver(l, result)
		count++
	}
}

// ResolveOldest hands result to the oldest listener, across all attributes,
// whose operation is one of ops.
func (c *Correlator) ResolveOldest(ops []OpType, result interface{}) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	var oldest *Listener
	for key, q := range c.queues {
		for _, op := range ops {
			if key.Op == op && (oldest == nil || q[0].seq < oldest.seq) {
				oldest = q[0]
			}
		}
	}

	if oldest == nil {
		return false
	}

	c.popNoLock(oldest.key)
	deliver(oldest, result)
	return true
}

// Fail aborts every listener except those for the specified operations.
func (c *Correlator) Fail(err error, except ...OpType) int {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	count := 0
	for key, q := range c.queues {
		skip := false
		for _, op := range except {
			if key.Op == op {
				skip = true
			}
		}
		if skip {
			continue
		}

		for _, l := range q {
			if !l.abandoned {
				l.ErrChan <- err
			}
			count++
		}
		delete(c.queues, key)
	}

	return count
}

// Len returns the number of queued listeners, abandoned ones included.
func (c *Correlator) Len() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	n := 0
	for _, q := range c.queues {
		n += len(q)
	}

	return n
}
