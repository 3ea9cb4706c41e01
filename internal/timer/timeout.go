// Licensed to the Apache Software Foundation (ASF) under one
// or more contributor license agreements.  See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership.  The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License.  You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing,
// software distributed under the License is distributed on an
// "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
// KIND, either express or implied.  See the License for the
// specific language governing permissions and limitations
// under the License.

package timer

import (
	"sync/atomic"
	"time"
)

// Task is something the wheel can run when its Timeout expires.
type Task interface {
	Run(timeout *Timeout) error
}

// Rearmer is implemented by recurring tasks. The wheel calls Rearm on its
// own goroutine when the timeout expires, before the run is handed to the
// worker pool, so the next run is scheduled even if this one is dropped.
type Rearmer interface {
	Rearm(timeout *Timeout)
}

// Timeout is a single scheduled execution of a Task.
type Timeout struct {
	task      Task
	deadline  time.Time
	tick      int64
	cancelled atomic.Bool
}

func newTimeout(task Task, deadline time.Time) *Timeout {
	return &Timeout{
		task:     task,
		deadline: deadline,
	}
}

func (t *Timeout) Task() Task {
	return t.task
}

func (t *Timeout) Deadline() time.Time {
	return t.deadline
}

func (t *Timeout) IsCancelled() bool {
	return t.cancelled.Load()
}

// Cancel reports whether this call cancelled the timeout.
func (t *Timeout) Cancel() bool {
	return t.cancelled.CompareAndSwap(false, true)
}
