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

package gattutil

import (
	"context"
	"sync"
)

// Mailbox is an unbounded FIFO.  Push never blocks, so a producer holding a
// lock can hand values to a consumer that may call back into the producer.
type Mailbox struct {
	items  []interface{}
	sig    chan struct{}
	closed bool
	mtx    sync.Mutex
}

func NewMailbox() *Mailbox {
	return &Mailbox{
		sig: make(chan struct{}, 1),
	}
}

// Push appends a value.  Returns false if the mailbox is closed.
func (m *Mailbox) Push(val interface{}) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.closed {
		return false
	}

	m.items = append(m.items, val)
	select {
	case m.sig <- struct{}{}:
	default:
	}

	return true
}

func (m *Mailbox) TryPop() (interface{}, bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if len(m.items) == 0 {
		return nil, false
	}

	val := m.items[0]
	m.items[0] = nil
	m.items = m.items[1:]
	return val, true
}

// Pop removes the oldest value, waiting for one if the mailbox is empty.
// Values queued before Close are still returned; after that, Pop fails with
// a ClosedError.
func (m *Mailbox) Pop(ctx context.Context) (interface{}, error) {
	for {
		if val, ok := m.TryPop(); ok {
			return val, nil
		}

		m.mtx.Lock()
		closed := m.closed
		m.mtx.Unlock()

		if closed {
			// A push may have raced the close check.
			if val, ok := m.TryPop(); ok {
				return val, nil
			}
			return nil, NewClosedError("mailbox closed")
		}

		select {
		case <-m.sig:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (m *Mailbox) Len() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	return len(m.items)
}

func (m *Mailbox) Close() {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if !m.closed {
		m.closed = true
		close(m.sig)
	}
}
