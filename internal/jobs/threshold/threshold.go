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

// Package threshold classifies a numeric reading against warning and
// critical limits.
package threshold

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
)

type Direction string

const (
	// Above breaches when the value is at or over the limit.
	Above Direction = "above"
	// Below breaches when the value is at or under the limit.
	Below Direction = "below"
)

// Keys names the options a Thresholds is read from.
type Keys struct {
	Warning   string
	Critical  string
	Direction string
}

var DefaultKeys = Keys{Warning: "warning", Critical: "critical", Direction: "direction"}

// Prefixed returns keys like cpu_warning, cpu_critical, cpu_direction.
func Prefixed(prefix string) Keys {
	return Keys{
		Warning:   prefix + "_warning",
		Critical:  prefix + "_critical",
		Direction: prefix + "_direction",
	}
}

type Thresholds struct {
	Warning   *float64
	Critical  *float64
	Direction Direction
}

// FromOptions reads thresholds; absent limits stay nil.
func FromOptions(opts runnable.UserOptions, keys Keys) (Thresholds, error) {
	t := Thresholds{Direction: Above}

	var err error
	if t.Warning, err = limit(opts, keys.Warning); err != nil {
		return t, err
	}
	if t.Critical, err = limit(opts, keys.Critical); err != nil {
		return t, err
	}

	if opts.Has(keys.Direction) {
		switch d := Direction(strings.ToLower(opts.String(keys.Direction, ""))); d {
		case Above, Below:
			t.Direction = d
		default:
			return t, fmt.Errorf("option %q must be above or below, got %v", keys.Direction, opts[keys.Direction])
		}
	}
	return t, nil
}

func limit(opts runnable.UserOptions, key string) (*float64, error) {
	raw, ok := opts[key]
	if !ok || raw == nil {
		return nil, nil
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return nil, fmt.Errorf("option %q must be a number: %w", key, err)
	}
	return &v, nil
}

func (t Thresholds) breached(value, limit float64) bool {
	if t.Direction == Below {
		return value <= limit
	}
	return value >= limit
}

// Classify maps value to critical, warning or ok, checking critical first.
func (t Thresholds) Classify(value float64) runnable.State {
	if t.Critical != nil && t.breached(value, *t.Critical) {
		return runnable.StateCritical
	}
	if t.Warning != nil && t.breached(value, *t.Warning) {
		return runnable.StateWarning
	}
	return runnable.StateOK
}

// ClassifyMetric classifies metrics[key]. A missing or non-numeric value is
// ok when no limit is set and critical otherwise.
func (t Thresholds) ClassifyMetric(metrics runnable.MetricsResult, key string) runnable.State {
	value, err := cast.ToFloat64E(metrics[key])
	if metrics[key] == nil || err != nil {
		if t.Warning == nil && t.Critical == nil {
			return runnable.StateOK
		}
		return runnable.StateCritical
	}
	return t.Classify(value)
}

var severity = map[runnable.State]int{
	runnable.StateOK:       0,
	runnable.StateWarning:  1,
	runnable.StateCritical: 2,
}

// Worst returns the most severe of the canonical states given.
func Worst(states ...runnable.State) runnable.State {
	worst := runnable.StateOK
	for _, s := range states {
		if severity[s] > severity[worst] {
			worst = s
		}
	}
	return worst
}
