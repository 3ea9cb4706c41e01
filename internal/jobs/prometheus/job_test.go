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

package prometheus

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

const exposition = `# HELP queue_depth Items waiting.
# TYPE queue_depth gauge
queue_depth{queue="mail",region="eu"} 12
queue_depth{queue="mail",region="us"} 30
queue_depth{queue="billing",region="eu"} 3
# HELP requests_total Requests served.
# TYPE requests_total counter
requests_total 1027
`

func scrapeTarget(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte(exposition))
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestMetricsFirstSeries(t *testing.T) {
	job := New(logger.Discard())
	opts := runnable.UserOptions{"url": scrapeTarget(t), "metric": "requests_total"}
	require.NoError(t, job.Prepare(opts))

	metrics, err := job.Metrics(opts)
	require.NoError(t, err)
	assert.Equal(t, 1027.0, metrics[MetricValue])
	assert.Equal(t, 1, metrics[MetricSeries])
	assert.NoError(t, job.Close())
}

func TestMetricsLabelsAndAggregate(t *testing.T) {
	url := scrapeTarget(t)
	job := New(logger.Discard())

	cases := []struct {
		labels    map[string]any
		aggregate string
		want      float64
		series    int
	}{
		{labels: map[string]any{"queue": "mail", "region": "us"}, want: 30, series: 1},
		{labels: map[string]any{"queue": "mail"}, aggregate: "sum", want: 42, series: 2},
		{labels: map[string]any{"region": "eu"}, aggregate: "max", want: 12, series: 2},
		{labels: map[string]any{"region": "eu"}, aggregate: "min", want: 3, series: 2},
		{aggregate: "avg", want: 15, series: 3},
	}
	for _, tc := range cases {
		opts := runnable.UserOptions{"url": url, "metric": "queue_depth", "aggregate": tc.aggregate}
		if tc.labels != nil {
			opts["labels"] = tc.labels
		}
		metrics, err := job.Metrics(opts)
		require.NoError(t, err, tc)
		assert.Equal(t, tc.want, metrics[MetricValue], tc)
		assert.Equal(t, tc.series, metrics[MetricSeries], tc)
	}
}

func TestMetricsNoMatch(t *testing.T) {
	job := New(logger.Discard())
	_, err := job.Metrics(runnable.UserOptions{"url": scrapeTarget(t), "metric": "queue_depth", "labels": map[string]any{"queue": "none"}})
	assert.ErrorContains(t, err, "no series")

	_, err = job.Metrics(runnable.UserOptions{"url": scrapeTarget(t), "metric": "missing_metric"})
	assert.Error(t, err)
}

func TestMetricsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	_, err := New(logger.Discard()).Metrics(runnable.UserOptions{"url": srv.URL, "metric": "x"})
	assert.ErrorContains(t, err, "404")
}

func TestValidateState(t *testing.T) {
	job := New(logger.Discard())
	opts := runnable.UserOptions{"warning": 20, "critical": 40}
	assert.Equal(t, runnable.StateOK, job.ValidateState(runnable.MetricsResult{MetricValue: 3.0}, opts))
	assert.Equal(t, runnable.StateWarning, job.ValidateState(runnable.MetricsResult{MetricValue: 30.0}, opts))
	assert.Equal(t, runnable.StateCritical, job.ValidateState(runnable.MetricsResult{MetricValue: 42.0}, opts))

	opts["direction"] = "below"
	assert.Equal(t, runnable.StateCritical, job.ValidateState(runnable.MetricsResult{MetricValue: 3.0}, opts))
}

func TestPrepareErrors(t *testing.T) {
	job := New(logger.Discard())
	assert.Error(t, job.Prepare(runnable.UserOptions{"url": "http://x"}))
	assert.Error(t, job.Prepare(runnable.UserOptions{"url": "http://x", "metric": "m", "aggregate": "median"}))
	assert.Error(t, job.Prepare(runnable.UserOptions{"url": "http://x", "metric": "m", "direction": "up"}))
}
