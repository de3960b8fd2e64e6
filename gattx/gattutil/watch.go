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

// Watchable is a single-writer value slot with any number of readers.  A
// watcher receives the current value first and then every subsequent Set,
// in order.
type Watchable struct {
	val interface{}
	bc  Bcaster
	mtx sync.Mutex
}

func NewWatchable(initial interface{}) *Watchable {
	return &Watchable{
		val: initial,
	}
}

func (w *Watchable) Get() interface{} {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	return w.val
}

func (w *Watchable) Set(val interface{}) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	w.val = val
	w.bc.Send(val)
}

func (w *Watchable) Watch() *Mailbox {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	mb := w.bc.Listen()
	mb.Push(w.val)
	return mb
}

func (w *Watchable) Unwatch(mb *Mailbox) {
	w.bc.StopListening(mb)
}

// WaitFor blocks until the slot holds a value satisfying pred.
func (w *Watchable) WaitFor(ctx context.Context,
	pred func(val interface{}) bool) (interface{}, error) {

	mb := w.Watch()
	defer w.Unwatch(mb)

	for {
		val, err := mb.Pop(ctx)
		if err != nil {
			return nil, err
		}
		if pred(val) {
			return val, nil
		}
	}
}

// Close releases every watcher.
func (w *Watchable) Close() {
	w.bc.Clear()
}
