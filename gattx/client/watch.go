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
	"context"

	"mynewt.apache.org/gattsim/gattx/bledefs"
	"mynewt.apache.org/gattsim/gattx/gattutil"
)

// Watcher receives the current value of a client slot and then every
// change, in order.
type Watcher struct {
	src *gattutil.Watchable
	mb  *gattutil.Mailbox
}

func newWatcher(src *gattutil.Watchable) Watcher {
	return Watcher{
		src: src,
		mb:  src.Watch(),
	}
}

func (w *Watcher) next(ctx context.Context) (interface{}, error) {
	return w.mb.Pop(ctx)
}

func (w *Watcher) Stop() {
	w.src.Unwatch(w.mb)
}

type StateWatcher struct {
	Watcher
}

func (w *StateWatcher) Next(
	ctx context.Context) (bledefs.StateWithStatus, error) {

	val, err := w.next(ctx)
	if err != nil {
		return bledefs.StateWithStatus{}, err
	}
	return val.(bledefs.StateWithStatus), nil
}

type MtuWatcher struct {
	Watcher
}

func (w *MtuWatcher) Next(ctx context.Context) (int, error) {
	val, err := w.next(ctx)
	if err != nil {
		return 0, err
	}
	return val.(int), nil
}

type ServicesWatcher struct {
	Watcher
}

func (w *ServicesWatcher) Next(ctx context.Context) (*ClientServices, error) {
	val, err := w.next(ctx)
	if err != nil {
		return nil, err
	}
	return val.(*ClientServices), nil
}

// NotificationWatcher receives the values of change events for one
// characteristic.
type NotificationWatcher struct {
	bc *gattutil.Bcaster
	mb *gattutil.Mailbox
}

func (w *NotificationWatcher) Next(ctx context.Context) ([]byte, error) {
	val, err := w.mb.Pop(ctx)
	if err != nil {
		return nil, err
	}
	return val.([]byte), nil
}

func (w *NotificationWatcher) Stop() {
	w.bc.StopListening(w.mb)
}
