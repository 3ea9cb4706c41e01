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

// Package prometheus reads one series from a Prometheus exposition
// endpoint.
package prometheus

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/dashing-contrib/dashing-jobs/internal/constants"
	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
	"github.com/dashing-contrib/dashing-jobs/internal/jobs"
	"github.com/dashing-contrib/dashing-jobs/internal/jobs/threshold"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

const (
	Type = "prometheus"

	MetricValue   = constants.MetricValue
	MetricSeries  = "series"
	MetricScrapeT = "scrape_ms"

	AggregateFirst = "first"
	AggregateSum   = "sum"
	AggregateMax   = "max"
	AggregateMin   = "min"
	AggregateAvg   = "avg"

	defaultTimeout = 10 * time.Second
)

func init() {
	jobs.Register(Type, func(log logger.Logger) runnable.Job { return New(log) })
}

type Options struct {
	URL       string            `mapstructure:"url"`
	Metric    string            `mapstructure:"metric"`
	Labels    map[string]string `mapstructure:"labels"`
	Aggregate string            `mapstructure:"aggregate"`
	Timeout   time.Duration     `mapstructure:"timeout"`
}

func parseOptions(opts runnable.UserOptions) (*Options, error) {
	o := &Options{}
	if err := opts.Decode(o); err != nil {
		return nil, fmt.Errorf("invalid prometheus options: %w", err)
	}
	if o.URL == "" || o.Metric == "" {
		return nil, fmt.Errorf("prometheus job requires options %q and %q", "url", "metric")
	}
	o.Aggregate = strings.ToLower(o.Aggregate)
	switch o.Aggregate {
	case "":
		o.Aggregate = AggregateFirst
	case AggregateFirst, AggregateSum, AggregateMax, AggregateMin, AggregateAvg:
	default:
		return nil, fmt.Errorf("unknown aggregate %q", o.Aggregate)
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return o, nil
}

type Job struct {
	logger logger.Logger
	client *http.Client
}

func New(log logger.Logger) *Job {
	return &Job{logger: log, client: &http.Client{}}
}

func (j *Job) Prepare(opts runnable.UserOptions) error {
	if _, err := parseOptions(opts); err != nil {
		return err
	}
	_, err := threshold.FromOptions(opts, threshold.DefaultKeys)
	return err
}

func (j *Job) Metrics(opts runnable.UserOptions) (runnable.MetricsResult, error) {
	o, err := parseOptions(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/plain;version=0.0.4")

	start := time.Now()
	resp, err := j.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", o.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape %s: unexpected status %d", o.URL, resp.StatusCode)
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", o.URL, err)
	}
	elapsed := time.Since(start).Milliseconds()

	values := Select(families[o.Metric], o.Labels)
	if len(values) == 0 {
		return nil, fmt.Errorf("no series of %s matches %v", o.Metric, o.Labels)
	}
	return runnable.MetricsResult{
		MetricValue:   aggregate(o.Aggregate, values),
		MetricSeries:  len(values),
		MetricScrapeT: elapsed,
	}, nil
}

// Select returns the values of the series in mf carrying every label in
// match, in exposition order.
func Select(mf *dto.MetricFamily, match map[string]string) []float64 {
	if mf == nil {
		return nil
	}
	var values []float64
	for _, m := range mf.GetMetric() {
		if !matches(m, match) {
			continue
		}
		if v, ok := sampleValue(m); ok {
			values = append(values, v)
		}
	}
	return values
}

func matches(m *dto.Metric, match map[string]string) bool {
	if len(match) == 0 {
		return true
	}
	labels := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	for k, v := range match {
		if labels[k] != v {
			return false
		}
	}
	return true
}

func sampleValue(m *dto.Metric) (float64, bool) {
	switch {
	case m.Gauge != nil:
		return m.Gauge.GetValue(), true
	case m.Counter != nil:
		return m.Counter.GetValue(), true
	case m.Untyped != nil:
		return m.Untyped.GetValue(), true
	case m.Summary != nil:
		return m.Summary.GetSampleSum(), true
	case m.Histogram != nil:
		return m.Histogram.GetSampleSum(), true
	default:
		return 0, false
	}
}

func aggregate(kind string, values []float64) float64 {
	switch kind {
	case AggregateSum, AggregateAvg:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		if kind == AggregateAvg {
			return sum / float64(len(values))
		}
		return sum
	case AggregateMax:
		out := math.Inf(-1)
		for _, v := range values {
			out = math.Max(out, v)
		}
		return out
	case AggregateMin:
		out := math.Inf(1)
		for _, v := range values {
			out = math.Min(out, v)
		}
		return out
	default:
		return values[0]
	}
}

func (j *Job) ValidateState(metrics runnable.MetricsResult, opts runnable.UserOptions) runnable.State {
	th, err := threshold.FromOptions(opts, threshold.DefaultKeys)
	if err != nil {
		return runnable.StateCritical
	}
	return th.ClassifyMetric(metrics, MetricValue)
}

func (j *Job) Close() error {
	j.client.CloseIdleConnections()
	return nil
}
