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

	log "github.com/sirupsen/logrus"
)

// Dispatcher hands posted values to a callback from a single goroutine, in
// the order they were posted.  The callback may post to the same
// dispatcher.
type Dispatcher struct {
	name string
	mb   *Mailbox
	fn   func(val interface{})
	done chan struct{}
}

func NewDispatcher(name string, fn func(val interface{})) *Dispatcher {
	d := &Dispatcher{
		name: name,
		mb:   NewMailbox(),
		fn:   fn,
		done: make(chan struct{}),
	}

	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.done)

	for {
		val, err := d.mb.Pop(context.Background())
		if err != nil {
			log.Debugf("dispatcher \"%s\" stopped", d.name)
			return
		}

		d.fn(val)
	}
}

// Post queues a value for delivery.  Returns false if the dispatcher has
// been stopped.
func (d *Dispatcher) Post(val interface{}) bool {
	return d.mb.Push(val)
}

// Stop prevents further posts.  Values already queued are still delivered.
func (d *Dispatcher) Stop() {
	d.mb.Close()
}

// Done is closed once every queued value has been delivered after Stop.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}
