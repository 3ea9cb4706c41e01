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

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	Namespace = "dashing"
	Subsystem = "jobs"
)

// Tick results
const (
	ResultSuccess  = "success"
	ResultJobError = "job_error"
	ResultSinkFail = "sink_error"
)

var (
	// TickTotal counts ticks per event and outcome
	TickTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "tick_total",
			Help:      "Total number of job ticks",
		},
		[]string{"event", "result"},
	)

	// TickDuration tracks how long a tick takes from metrics to dispatch
	TickDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "tick_duration_seconds",
			Help:      "Duration of job ticks in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"event"},
	)

	// JobsRegistered is the number of jobs registered with a scheduler
	JobsRegistered = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "registered",
			Help:      "Number of registered recurring jobs",
		},
	)

	// Up indicates if the process is up
	Up = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: Subsystem,
			Name:      "up",
			Help:      "1 if the job server is up, 0 otherwise",
		},
	)
)

func init() {
	prometheus.MustRegister(TickTotal)
	prometheus.MustRegister(TickDuration)
	prometheus.MustRegister(JobsRegistered)
	prometheus.MustRegister(Up)
	Up.Set(1)
}

// ObserveTick records the outcome of one tick.
func ObserveTick(event, result string, elapsed time.Duration) {
	TickTotal.WithLabelValues(event, result).Inc()
	TickDuration.WithLabelValues(event).Observe(elapsed.Seconds())
}
