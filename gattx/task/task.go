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

package task

import (
	"fmt"
	"sync"
)

// One job for the queue goroutine.
type job struct {
	fn func() error
	ch chan error
}

// TaskQueue runs jobs one at a time on a dedicated goroutine.  Every piece
// of state touched only from jobs is thereby serialized without further
// locking.
type TaskQueue struct {
	jobCh  chan job
	stopCh chan struct{}
	active bool
	name   string
	mtx    sync.Mutex
	wg     sync.WaitGroup
}

func NewTaskQueue(name string) TaskQueue {
	return TaskQueue{
		name: name,
	}
}

var InactiveError = fmt.Errorf("inactive task queue")

// Enqueue pushes fn onto the queue.  The job's result is sent over the
// returned channel.
func (q *TaskQueue) Enqueue(fn func() error) chan error {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	j := job{
		fn: fn,
		ch: make(chan error, 1),
	}

	if !q.active {
		j.ch <- InactiveError
	} else {
		q.jobCh <- j
	}

	return j.ch
}

// Run enqueues fn and waits for it to complete.  Calling Run from inside a
// job deadlocks.
func (q *TaskQueue) Run(fn func() error) error {
	return <-q.Enqueue(fn)
}

// Start launches the queue goroutine.  depth is the number of jobs that can
// be queued before Enqueue blocks.
func (q *TaskQueue) Start(depth int) error {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if q.active {
		return fmt.Errorf("Task queue started twice \"%s\"", q.name)
	}
	q.active = true

	jobCh := make(chan job, depth)
	q.jobCh = jobCh

	stopCh := make(chan struct{})
	q.stopCh = stopCh

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()

		for {
			select {
			case j, ok := <-jobCh:
				if ok {
					err := j.fn()
					j.ch <- err
					close(j.ch)
				}

			case <-stopCh:
				return
			}
		}
	}()

	return nil
}

// Stop fails every queued job with cause and waits for the queue goroutine
// to exit.  Calling Stop from inside a job deadlocks; use StopNoWait there.
func (q *TaskQueue) Stop(cause error) error {
	if err := q.StopNoWait(cause); err != nil {
		return err
	}

	q.wg.Wait()
	return nil
}

// StopNoWait fails every queued job with cause and signals the queue
// goroutine to exit without waiting for it.
func (q *TaskQueue) StopNoWait(cause error) error {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	if !q.active {
		return fmt.Errorf("Task queue stopped twice \"%s\"", q.name)
	}

	close(q.stopCh)

	close(q.jobCh)
	for {
		next, ok := <-q.jobCh
		if !ok {
			break
		}

		next.ch <- cause
		close(next.ch)
	}

	q.active = false

	return nil
}

func (q *TaskQueue) Active() bool {
	q.mtx.Lock()
	defer q.mtx.Unlock()

	return q.active
}

func (q *TaskQueue) Name() string {
	return q.name
}
