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
	"fmt"
	"sync"
	"time"

	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
	jobserr "github.com/dashing-contrib/dashing-jobs/internal/types/err"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

// Scheduler runs recurring tasks on a TimerWheel.
//
// Each expiry re-arms the next run at the previous deadline plus the period
// before the task starts, so a tick that outlives the period overlaps with the
// next one. Task errors are logged by the wheel and the next tick still runs.
type Scheduler struct {
	wheel  *TimerWheel
	logger logger.Logger

	mu    sync.Mutex
	tasks map[string][]*cyclicTask
}

var _ runnable.Scheduler = (*Scheduler)(nil)

func NewScheduler(wheel *TimerWheel, log logger.Logger) *Scheduler {
	return &Scheduler{
		wheel:  wheel,
		logger: log.WithName("scheduler").WithValues("kind", "wheel"),
		tasks:  make(map[string][]*cyclicTask),
	}
}

// Every implements runnable.Scheduler.
func (s *Scheduler) Every(period time.Duration, opts runnable.ScheduleOptions, task func() error) error {
	if period <= 0 {
		return fmt.Errorf("period must be positive, got %v", period)
	}
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if s.wheel.IsStopped() {
		return jobserr.SchedulerStopped
	}

	ct := &cyclicTask{
		name:   opts.Name,
		period: period,
		fn:     task,
		wheel:  s.wheel,
	}

	ct.mu.Lock()
	timeout := s.wheel.NewTimeout(ct, opts.FirstIn)
	if timeout == nil {
		ct.mu.Unlock()
		return jobserr.SchedulerStopped
	}
	ct.current = timeout
	ct.mu.Unlock()

	s.mu.Lock()
	s.tasks[opts.Name] = append(s.tasks[opts.Name], ct)
	s.mu.Unlock()

	s.logger.Info("scheduled cyclic task",
		"name", opts.Name,
		"period", period,
		"firstRun", timeout.Deadline())

	return nil
}

// Cancel stops every task registered under name and reports whether any was
// found.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	tasks := s.tasks[name]
	delete(s.tasks, name)
	s.mu.Unlock()

	for _, ct := range tasks {
		ct.cancel()
	}

	if len(tasks) > 0 {
		s.logger.Info("cancelled cyclic task", "name", name)
	}
	return len(tasks) > 0
}

// Start starts the underlying wheel.
func (s *Scheduler) Start() error {
	return s.wheel.Start()
}

// Stop cancels all tasks and stops the wheel.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	s.mu.Unlock()

	for _, name := range names {
		s.Cancel(name)
	}
	return s.wheel.Stop()
}

// cyclicTask re-arms itself on the wheel on every expiry.
type cyclicTask struct {
	name   string
	period time.Duration
	fn     func() error
	wheel  *TimerWheel

	mu        sync.Mutex
	current   *Timeout
	cancelled bool
}

// Rearm schedules the next run at the previous deadline plus the period.
func (ct *cyclicTask) Rearm(timeout *Timeout) {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if ct.cancelled {
		return
	}
	if next := ct.wheel.NewTimeoutAt(ct, timeout.Deadline().Add(ct.period)); next != nil {
		ct.current = next
	}
}

func (ct *cyclicTask) Run(*Timeout) error {
	ct.mu.Lock()
	cancelled := ct.cancelled
	ct.mu.Unlock()
	if cancelled {
		return nil
	}

	if err := ct.fn(); err != nil {
		return fmt.Errorf("tick of %q failed: %w", ct.name, err)
	}
	return nil
}

func (ct *cyclicTask) cancel() {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.cancelled = true
	if ct.current != nil {
		ct.current.Cancel()
	}
}
