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

package runnable

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dashing-contrib/dashing-jobs/internal/metrics"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

// ScheduleOptions carries the scheduling keys handed to a Scheduler.
type ScheduleOptions struct {
	// FirstIn delays the first run.
	FirstIn time.Duration
	// Name identifies the registration in logs, usually the event.
	Name string
}

// Scheduler runs task every period after an initial delay. How errors
// returned by task are surfaced, and whether runs may overlap, is up to the
// implementation.
type Scheduler interface {
	Every(period time.Duration, opts ScheduleOptions, task func() error) error
}

// EventSink publishes a named event.
type EventSink interface {
	SendEvent(name string, payload Payload) error
}

// SetupFunc runs once, synchronously, before a job is registered.
type SetupFunc func() error

// Runner validates job options and registers jobs with a Scheduler. It holds
// no per-tick state.
type Runner struct {
	scheduler Scheduler
	sink      EventSink
	logger    logger.Logger

	mu     sync.Mutex
	events []string
}

func NewRunner(scheduler Scheduler, sink EventSink, log logger.Logger) *Runner {
	return &Runner{
		scheduler: scheduler,
		sink:      sink,
		logger:    log.WithName("runner"),
	}
}

// Run validates options, runs setup if given and registers job with the
// scheduler. A ConfigurationError means nothing was registered.
func (r *Runner) Run(job Job, options Options, setup SetupFunc) error {
	if job == nil {
		return &ConfigurationError{Key: "job", Err: errors.New("job is nil")}
	}
	if r.scheduler == nil || r.sink == nil {
		return errors.New("runner requires a scheduler and an event sink")
	}

	settings, err := Resolve(options)
	if err != nil {
		r.logger.Error(err, "rejecting job options")
		return err
	}

	if setup != nil {
		if err := setup(); err != nil {
			return fmt.Errorf("setup of job %q failed: %w", settings.Event, err)
		}
	}

	opts := ScheduleOptions{FirstIn: settings.FirstIn, Name: settings.Event}
	if err := r.scheduler.Every(settings.Every, opts, r.newTick(job, settings)); err != nil {
		return fmt.Errorf("failed to schedule job %q: %w", settings.Event, err)
	}

	r.mu.Lock()
	r.events = append(r.events, settings.Event)
	r.mu.Unlock()
	metrics.JobsRegistered.Inc()

	r.logger.Info("registered job",
		"event", settings.Event,
		"every", settings.Every,
		"firstIn", settings.FirstIn)

	return nil
}

// Jobs returns the events registered so far, sorted.
func (r *Runner) Jobs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.events))
	copy(out, r.events)
	sort.Strings(out)
	return out
}

// newTick builds the scheduled callback: metrics, then state, then dispatch.
// Errors are returned to the scheduler untouched.
func (r *Runner) newTick(job Job, settings *Settings) func() error {
	event := settings.Event
	user := settings.User

	return func() error {
		start := time.Now()

		current, err := job.Metrics(user)
		if err != nil {
			metrics.ObserveTick(event, metrics.ResultJobError, time.Since(start))
			return err
		}

		state := job.ValidateState(current, user)
		payload := NewPayload(current, state)

		if err := r.sink.SendEvent(event, payload); err != nil {
			metrics.ObserveTick(event, metrics.ResultSinkFail, time.Since(start))
			return err
		}

		metrics.ObserveTick(event, metrics.ResultSuccess, time.Since(start))
		r.logger.V(1).Info("dispatched event", "event", event, "state", state)
		return nil
	}
}
