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

package cron

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
	jobserr "github.com/dashing-contrib/dashing-jobs/internal/types/err"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

// Scheduler runs recurring tasks on robfig/cron.
//
// A task that is still running when its next activation comes is skipped,
// so ticks of one registration never overlap. Periods are rounded up to
// whole seconds. Errors and panics are logged and the next tick still runs.
type Scheduler struct {
	cron   *cron.Cron
	logger logger.Logger

	mu      sync.Mutex
	regs    map[string][]*registration
	started bool
	stopped bool

	// firstRuns tracks first ticks, which run outside cron
	firstRuns sync.WaitGroup
}

type registration struct {
	name    string
	period  time.Duration
	firstIn time.Duration
	job     cron.Job

	timer     *time.Timer
	entry     cron.EntryID
	cancelled bool
}

var _ runnable.Scheduler = (*Scheduler)(nil)

func NewScheduler(log logger.Logger) *Scheduler {
	l := log.WithName("scheduler").WithValues("kind", "cron")
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(l)),
		logger: l,
		regs:   make(map[string][]*registration),
	}
}

// Every implements runnable.Scheduler. Registrations made before Start are
// armed when the scheduler starts.
func (s *Scheduler) Every(period time.Duration, opts runnable.ScheduleOptions, task func() error) error {
	if period <= 0 {
		return fmt.Errorf("period must be positive, got %v", period)
	}
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}

	name := opts.Name
	job := cron.NewChain(
		cron.Recover(s.logger),
		cron.SkipIfStillRunning(s.logger),
	).Then(cron.FuncJob(func() {
		if err := task(); err != nil {
			s.logger.Error(err, "tick failed", "name", name)
		}
	}))

	reg := &registration{
		name:    name,
		period:  period,
		firstIn: opts.FirstIn,
		job:     job,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return jobserr.SchedulerStopped
	}
	s.regs[name] = append(s.regs[name], reg)
	if s.started {
		s.arm(reg)
	}

	s.logger.Info("scheduled cyclic task", "name", name, "period", period, "firstIn", opts.FirstIn)
	return nil
}

// arm waits firstIn, registers the periodic entry and runs the first tick.
// Must be called with s.mu held.
func (s *Scheduler) arm(reg *registration) {
	reg.timer = time.AfterFunc(reg.firstIn, func() {
		s.mu.Lock()
		if reg.cancelled || s.stopped {
			s.mu.Unlock()
			return
		}
		reg.entry = s.cron.Schedule(cron.Every(reg.period), reg.job)
		s.firstRuns.Add(1)
		s.mu.Unlock()

		defer s.firstRuns.Done()
		reg.job.Run()
	})
}

func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return jobserr.SchedulerStopped
	}
	if s.started {
		return nil
	}
	s.started = true

	for _, regs := range s.regs {
		for _, reg := range regs {
			s.arm(reg)
		}
	}
	s.cron.Start()
	s.logger.Info("cron scheduler started", "registrations", len(s.regs))
	return nil
}

// Cancel removes every registration under name and reports whether any was
// found. A tick already running is not interrupted.
func (s *Scheduler) Cancel(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	regs := s.regs[name]
	delete(s.regs, name)
	for _, reg := range regs {
		s.cancel(reg)
	}
	return len(regs) > 0
}

func (s *Scheduler) cancel(reg *registration) {
	reg.cancelled = true
	if reg.timer != nil {
		reg.timer.Stop()
	}
	if reg.entry != 0 {
		s.cron.Remove(reg.entry)
	}
}

// Stop cancels all registrations and waits for running ticks.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	for name, regs := range s.regs {
		for _, reg := range regs {
			s.cancel(reg)
		}
		delete(s.regs, name)
	}
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.firstRuns.Wait()
	s.logger.Info("cron scheduler stopped")
	return nil
}

// Entries is the number of periodic entries currently held by cron.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}
