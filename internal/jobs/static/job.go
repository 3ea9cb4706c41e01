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

// Package static emits configured metrics unchanged. It is handy for demos
// and for checking a sink end to end.
package static

import (
	"fmt"

	"github.com/spf13/cast"

	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
	"github.com/dashing-contrib/dashing-jobs/internal/jobs"
	"github.com/dashing-contrib/dashing-jobs/internal/jobs/threshold"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

const (
	Type = "static"

	KeyMetrics = "metrics"
	KeyState   = "state"
	// KeyClassify names the metric compared against warning/critical when
	// no fixed state is set.
	KeyClassify = "classify"
)

func init() {
	jobs.Register(Type, func(logger.Logger) runnable.Job { return Job{} })
}

type Job struct{}

func (Job) Prepare(opts runnable.UserOptions) error {
	if raw, ok := opts[KeyMetrics]; ok && raw != nil {
		if _, err := cast.ToStringMapE(raw); err != nil {
			return fmt.Errorf("option %q must be a mapping: %w", KeyMetrics, err)
		}
	}
	_, err := threshold.FromOptions(opts, threshold.DefaultKeys)
	return err
}

func (Job) Metrics(opts runnable.UserOptions) (runnable.MetricsResult, error) {
	raw, ok := opts[KeyMetrics]
	if !ok || raw == nil {
		return runnable.MetricsResult{}, nil
	}
	m, err := cast.ToStringMapE(raw)
	if err != nil {
		return nil, fmt.Errorf("option %q must be a mapping: %w", KeyMetrics, err)
	}
	return runnable.MetricsResult(runnable.UserOptions(m).Clone()), nil
}

func (Job) ValidateState(metrics runnable.MetricsResult, opts runnable.UserOptions) runnable.State {
	if state := opts.String(KeyState, ""); state != "" {
		return runnable.State(state)
	}
	if key := opts.String(KeyClassify, ""); key != "" {
		th, err := threshold.FromOptions(opts, threshold.DefaultKeys)
		if err != nil {
			return runnable.StateCritical
		}
		return th.ClassifyMetric(metrics, key)
	}
	return runnable.StateOK
}
