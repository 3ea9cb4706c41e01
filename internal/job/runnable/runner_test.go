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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

type registration struct {
	period time.Duration
	opts   ScheduleOptions
	task   func() error
}

type fakeScheduler struct {
	mu    sync.Mutex
	regs  []registration
	err   error
	calls []string
}

func (f *fakeScheduler) Every(period time.Duration, opts ScheduleOptions, task func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "every")
	if f.err != nil {
		return f.err
	}
	f.regs = append(f.regs, registration{period: period, opts: opts, task: task})
	return nil
}

type sentEvent struct {
	name    string
	payload Payload
}

type recordingSink struct {
	mu     sync.Mutex
	events []sentEvent
	err    error
}

func (s *recordingSink) SendEvent(name string, payload Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, sentEvent{name: name, payload: payload})
	return nil
}

type temperatureJob struct {
	BaseJob
	seen []UserOptions
}

func (j *temperatureJob) Metrics(opts UserOptions) (MetricsResult, error) {
	j.seen = append(j.seen, opts)
	return MetricsResult{"temperature": 72}, nil
}

func (j *temperatureJob) ValidateState(MetricsResult, UserOptions) State {
	return StateWarning
}

func newTestRunner() (*Runner, *fakeScheduler, *recordingSink) {
	sched := &fakeScheduler{}
	sink := &recordingSink{}
	return NewRunner(sched, sink, logger.Discard()), sched, sink
}

func TestRunRejectsMissingEvent(t *testing.T) {
	cases := map[string]Options{
		"absent":     {"every": "10s"},
		"nil":        {"event": nil},
		"empty":      {"event": ""},
		"blank":      {"event": "   "},
		"not string": {"event": 42},
	}

	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			runner, sched, _ := newTestRunner()
			setupCalled := false

			err := runner.Run(BaseJob{}, opts, func() error {
				setupCalled = true
				return nil
			})

			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))
			assert.ErrorIs(t, err, ErrEventRequired)
			assert.Contains(t, err.Error(), "event identifier is required")
			assert.Empty(t, sched.calls)
			assert.False(t, setupCalled)
			assert.Empty(t, runner.Jobs())
		})
	}
}

func TestRunRejectsNilJob(t *testing.T) {
	runner, sched, _ := newTestRunner()

	err := runner.Run(nil, Options{"event": "x"}, nil)

	assert.True(t, IsConfigurationError(err))
	assert.Empty(t, sched.calls)
}

func TestRunRejectsBadIntervals(t *testing.T) {
	cases := []Options{
		{"event": "x", "every": "soon"},
		{"event": "x", "every": 0},
		{"event": "x", "every": "-5s"},
		{"event": "x", "first_in": "-1s"},
		{"event": "x", "every": true},
		{"event": "x", "first_in": false},
		{"event": "x", "first_in": []any{1}},
	}

	for _, opts := range cases {
		runner, sched, _ := newTestRunner()
		err := runner.Run(BaseJob{}, opts, nil)
		assert.True(t, IsConfigurationError(err), "options %v", opts)
		assert.Empty(t, sched.calls)
	}
}

func TestRunUsesDefaults(t *testing.T) {
	runner, sched, _ := newTestRunner()

	require.NoError(t, runner.Run(BaseJob{}, Options{"event": "welcome"}, nil))

	require.Len(t, sched.regs, 1)
	assert.Equal(t, 30*time.Second, sched.regs[0].period)
	assert.Equal(t, time.Duration(0), sched.regs[0].opts.FirstIn)
	assert.Equal(t, "welcome", sched.regs[0].opts.Name)
	assert.Equal(t, []string{"welcome"}, runner.Jobs())
}

func TestRunUsesCallerIntervals(t *testing.T) {
	runner, sched, _ := newTestRunner()

	require.NoError(t, runner.Run(BaseJob{}, Options{"event": "welcome", "every": "1m", "first_in": "5s"}, nil))
	require.NoError(t, runner.Run(BaseJob{}, Options{"event": "daily", "every": "1d", "first_in": 2}, nil))

	require.Len(t, sched.regs, 2)
	assert.Equal(t, time.Minute, sched.regs[0].period)
	assert.Equal(t, 5*time.Second, sched.regs[0].opts.FirstIn)
	assert.Equal(t, 24*time.Hour, sched.regs[1].period)
	assert.Equal(t, 2*time.Second, sched.regs[1].opts.FirstIn)
}

func TestRunDoesNotMutateCallerOptions(t *testing.T) {
	runner, _, _ := newTestRunner()
	opts := Options{"event": "welcome", "every": "10s", "host": "db1", "tags": map[string]any{"env": "prod"}}
	snapshot := Options{"event": "welcome", "every": "10s", "host": "db1", "tags": map[string]any{"env": "prod"}}

	require.NoError(t, runner.Run(BaseJob{}, opts, nil))

	assert.Equal(t, snapshot, opts)
	assert.Equal(t, Options{"every": DefaultEvery, "first_in": 0}, DefaultOptions())
}

func TestTickDispatchesMetricsWithState(t *testing.T) {
	runner, sched, sink := newTestRunner()
	job := &temperatureJob{}

	require.NoError(t, runner.Run(job, Options{"event": "thermostat", "room": "lab"}, nil))
	require.Len(t, sched.regs, 1)
	require.NoError(t, sched.regs[0].task())

	require.Len(t, sink.events, 1)
	assert.Equal(t, "thermostat", sink.events[0].name)
	assert.Equal(t, Payload{"temperature": 72, "state": "warning"}, sink.events[0].payload)

	require.Len(t, job.seen, 1)
	assert.Equal(t, UserOptions{"room": "lab"}, job.seen[0])
}

func TestTickWithDefaultJob(t *testing.T) {
	runner, sched, sink := newTestRunner()

	require.NoError(t, runner.Run(BaseJob{}, Options{"event": "heartbeat"}, nil))
	require.NoError(t, sched.regs[0].task())

	require.Len(t, sink.events, 1)
	assert.Equal(t, Payload{"state": "ok"}, sink.events[0].payload)
}

func TestTickForwardsCustomState(t *testing.T) {
	runner, sched, sink := newTestRunner()
	job := Funcs{StateFunc: func(MetricsResult, UserOptions) State { return "maintenance" }}

	require.NoError(t, runner.Run(job, Options{"event": "db"}, nil))
	require.NoError(t, sched.regs[0].task())

	assert.Equal(t, "maintenance", sink.events[0].payload[StateKey])
}

func TestTickPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("metrics", func(t *testing.T) {
		runner, sched, sink := newTestRunner()
		stateCalled := false
		job := Funcs{
			MetricsFunc: func(UserOptions) (MetricsResult, error) { return nil, boom },
			StateFunc: func(MetricsResult, UserOptions) State {
				stateCalled = true
				return StateOK
			},
		}

		require.NoError(t, runner.Run(job, Options{"event": "e"}, nil))
		assert.ErrorIs(t, sched.regs[0].task(), boom)
		assert.False(t, stateCalled)
		assert.Empty(t, sink.events)
	})

	t.Run("sink", func(t *testing.T) {
		runner, sched, sink := newTestRunner()
		sink.err = boom

		require.NoError(t, runner.Run(BaseJob{}, Options{"event": "e"}, nil))
		assert.ErrorIs(t, sched.regs[0].task(), boom)
	})
}

func TestSetupRunsOnceBeforeRegistration(t *testing.T) {
	runner, sched, _ := newTestRunner()
	var order []string
	setupCount := 0

	err := runner.Run(BaseJob{}, Options{"event": "e", "first_in": "1h"}, func() error {
		setupCount++
		order = append(order, "setup")
		assert.Empty(t, sched.calls, "setup must run before registration")
		return nil
	})
	require.NoError(t, err)
	order = append(order, sched.calls...)

	assert.Equal(t, 1, setupCount)
	assert.Equal(t, []string{"setup", "every"}, order)
}

func TestSetupErrorPreventsRegistration(t *testing.T) {
	runner, sched, _ := newTestRunner()

	err := runner.Run(BaseJob{}, Options{"event": "e"}, func() error { return errors.New("no connection") })

	require.Error(t, err)
	assert.False(t, IsConfigurationError(err))
	assert.Empty(t, sched.calls)
}

func TestSchedulerErrorIsReturned(t *testing.T) {
	runner, sched, _ := newTestRunner()
	sched.err = errors.New("stopped")

	err := runner.Run(BaseJob{}, Options{"event": "e"}, nil)

	assert.ErrorIs(t, err, sched.err)
	assert.Empty(t, runner.Jobs())
}

func TestJobsDoNotShareUserOptions(t *testing.T) {
	runner, sched, _ := newTestRunner()
	opts := Options{"event": "a", "limit": 5, "labels": map[string]any{"k": "v"}}
	first := &temperatureJob{}
	second := &temperatureJob{}

	require.NoError(t, runner.Run(first, opts, nil))
	opts2 := MergeOptions(opts, Options{"event": "b"})
	require.NoError(t, runner.Run(second, opts2, nil))

	require.NoError(t, sched.regs[0].task())
	first.seen[0]["limit"] = 99
	first.seen[0]["labels"].(map[string]any)["k"] = "changed"
	require.NoError(t, sched.regs[1].task())

	assert.Equal(t, 5, second.seen[0]["limit"])
	assert.Equal(t, "v", second.seen[0]["labels"].(map[string]any)["k"])
	assert.Equal(t, "v", opts["labels"].(map[string]any)["k"])
}

func TestRunnerWithoutCollaborators(t *testing.T) {
	runner := NewRunner(nil, nil, logger.Discard())

	err := runner.Run(BaseJob{}, Options{"event": "e"}, nil)

	require.Error(t, err)
	assert.False(t, IsConfigurationError(err))
}

func TestFuncsJob(t *testing.T) {
	runner, sched, sink := newTestRunner()

	job := Funcs{
		MetricsFunc: func(opts UserOptions) (MetricsResult, error) {
			return MetricsResult{"queue": opts.String("queue", "")}, nil
		},
	}
	require.NoError(t, runner.Run(job, Options{"event": "backlog", "queue": "emails"}, nil))
	require.Len(t, sched.regs, 1)
	require.NoError(t, sched.regs[0].task())

	require.Len(t, sink.events, 1)
	assert.Equal(t, Payload{"queue": "emails", "state": "ok"}, sink.events[0].payload)

	metrics, err := Funcs{}.Metrics(nil)
	require.NoError(t, err)
	assert.Empty(t, metrics)
	assert.Equal(t, StateCritical, Funcs{StateFunc: func(MetricsResult, UserOptions) State {
		return StateCritical
	}}.ValidateState(nil, nil))
}
