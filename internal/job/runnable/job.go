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

// Package runnable defines the contract of a recurring monitoring job and the
// Runner that validates its options, registers it with a Scheduler and turns
// every tick into an event for an EventSink.
//
// A concrete job embeds BaseJob and overrides Metrics, ValidateState or both:
//
//	type diskJob struct{ runnable.BaseJob }
//
//	func (diskJob) Metrics(opts runnable.UserOptions) (runnable.MetricsResult, error) {
//		return runnable.MetricsResult{"used": 72}, nil
//	}
package runnable

// State is the health label derived from a tick's metrics. The three
// constants are the canonical vocabulary; any other string is forwarded as is.
type State string

const (
	StateOK       State = "ok"
	StateWarning  State = "warning"
	StateCritical State = "critical"
)

// StateKey is the payload key carrying the State.
const StateKey = "state"

// MetricsResult is the output of one metrics computation. It is never retained
// across ticks.
type MetricsResult map[string]any

// Payload is what crosses the boundary to the EventSink.
type Payload map[string]any

// Job is the capability set a concrete job implements.
type Job interface {
	// Metrics computes the values of the current tick from the job-specific options.
	Metrics(opts UserOptions) (MetricsResult, error)
	// ValidateState classifies the metrics of the current tick.
	ValidateState(metrics MetricsResult, opts UserOptions) State
}

// BaseJob supplies the default behavior: no metrics and an unconditional OK.
type BaseJob struct{}

func (BaseJob) Metrics(UserOptions) (MetricsResult, error) {
	return MetricsResult{}, nil
}

func (BaseJob) ValidateState(MetricsResult, UserOptions) State {
	return StateOK
}

// Funcs adapts plain functions to a Job. A nil field falls back to BaseJob.
type Funcs struct {
	MetricsFunc func(opts UserOptions) (MetricsResult, error)
	StateFunc   func(metrics MetricsResult, opts UserOptions) State
}

func (f Funcs) Metrics(opts UserOptions) (MetricsResult, error) {
	if f.MetricsFunc == nil {
		return BaseJob{}.Metrics(opts)
	}
	return f.MetricsFunc(opts)
}

func (f Funcs) ValidateState(metrics MetricsResult, opts UserOptions) State {
	if f.StateFunc == nil {
		return BaseJob{}.ValidateState(metrics, opts)
	}
	return f.StateFunc(metrics, opts)
}

// NewPayload copies metrics and sets StateKey. A "state" metric, if any, is
// overwritten.
func NewPayload(metrics MetricsResult, state State) Payload {
	payload := make(Payload, len(metrics)+1)
	for k, v := range metrics {
		payload[k] = v
	}
	payload[StateKey] = string(state)
	return payload
}
