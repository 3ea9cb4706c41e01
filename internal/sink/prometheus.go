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

package sink

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cast"

	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
)

var canonicalStates = []runnable.State{runnable.StateOK, runnable.StateWarning, runnable.StateCritical}

// PrometheusSink exposes the latest payload of every event as gauges.
// Numeric values land in dashing_event_value, the state in
// dashing_event_state with 1 on the current state and 0 elsewhere.
type PrometheusSink struct {
	values *prometheus.GaugeVec
	states *prometheus.GaugeVec

	mu   sync.Mutex
	last map[string]string
}

func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	values, err := registerGaugeVec(reg, prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "dashing",
			Subsystem: "event",
			Name:      "value",
			Help:      "Latest numeric payload value per event and metric.",
		},
		[]string{"event", "metric"},
	))
	if err != nil {
		return nil, err
	}
	states, err := registerGaugeVec(reg, prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "dashing",
			Subsystem: "event",
			Name:      "state",
			Help:      "Current state per event, 1 for the active state.",
		},
		[]string{"event", "state"},
	))
	if err != nil {
		return nil, err
	}
	return &PrometheusSink{values: values, states: states, last: make(map[string]string)}, nil
}

func registerGaugeVec(reg prometheus.Registerer, g *prometheus.GaugeVec) (*prometheus.GaugeVec, error) {
	if err := reg.Register(g); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return g, nil
}

func (s *PrometheusSink) SendEvent(name string, payload runnable.Payload) error {
	for k, v := range payload {
		if k == runnable.StateKey {
			continue
		}
		if f, ok := numeric(v); ok {
			s.values.WithLabelValues(name, k).Set(f)
		}
	}

	state := cast.ToString(payload[runnable.StateKey])
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range canonicalStates {
		if string(c) != state {
			s.states.WithLabelValues(name, string(c)).Set(0)
		}
	}
	if prev, ok := s.last[name]; ok && prev != state {
		s.states.WithLabelValues(name, prev).Set(0)
	}
	s.states.WithLabelValues(name, state).Set(1)
	s.last[name] = state
	return nil
}

func numeric(v any) (float64, bool) {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		f, err := cast.ToFloat64E(v)
		return f, err == nil
	default:
		return 0, false
	}
}

func (s *PrometheusSink) Close() error { return nil }
