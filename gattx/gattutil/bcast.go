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
	"sync"
)

// Bcaster fans each sent value out to every listener.  Listeners stay
// registered until they are removed or the broadcaster is cleared.
type Bcaster struct {
	mbs []*Mailbox
	mtx sync.Mutex
}

func (b *Bcaster) Listen() *Mailbox {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	mb := NewMailbox()
	b.mbs = append(b.mbs, mb)

	return mb
}

func (b *Bcaster) StopListening(mb *Mailbox) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	for i, m := range b.mbs {
		if m == mb {
			b.mbs = append(b.mbs[:i], b.mbs[i+1:]...)
			break
		}
	}

	mb.Close()
}

func (b *Bcaster) Send(val interface{}) {
	b.mtx.Lock()
	mbs := b.mbs
	b.mtx.Unlock()

	for _, mb := range mbs {
		mb.Push(val)
	}
}

func (b *Bcaster) NumListeners() int {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	return len(b.mbs)
}

// Clear closes and removes every listener.
func (b *Bcaster) Clear() {
	b.mtx.Lock()
	mbs := b.mbs
	b.mbs = nil
	b.mtx.Unlock()

	for _, mb := range mbs {
		mb.Close()
	}
}

func (b *Bcaster) SendAndClear(val interface{}) {
	b.Send(val)
	b.Clear()
}
