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

// Package http probes an HTTP endpoint and reports availability, status
// and latency.
package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dashing-contrib/dashing-jobs/internal/constants"
	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
	"github.com/dashing-contrib/dashing-jobs/internal/jobs"
	"github.com/dashing-contrib/dashing-jobs/internal/jobs/threshold"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

const (
	Type = "http"

	MetricUp           = "up"
	MetricStatusCode   = "status_code"
	MetricResponseTime = constants.MetricResponseTime
	MetricBodyBytes    = "body_bytes"
	MetricKeywordCount = "keyword_count"
	MetricError        = constants.MetricError

	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 10 << 20
)

var latencyKeys = threshold.Keys{Warning: "warning_ms", Critical: "critical_ms", Direction: "direction"}

func init() {
	jobs.Register(Type, func(log logger.Logger) runnable.Job { return New(log) })
}

type Options struct {
	URL                string            `mapstructure:"url"`
	Method             string            `mapstructure:"method"`
	Body               string            `mapstructure:"body"`
	Headers            map[string]string `mapstructure:"headers"`
	Timeout            time.Duration     `mapstructure:"timeout"`
	Username           string            `mapstructure:"username"`
	Password           string            `mapstructure:"password"`
	BearerToken        string            `mapstructure:"bearer_token"`
	ExpectedStatus     int               `mapstructure:"expected_status"`
	Keyword            string            `mapstructure:"keyword"`
	InsecureSkipVerify bool              `mapstructure:"insecure_skip_verify"`
}

func parseOptions(opts runnable.UserOptions) (*Options, error) {
	o := &Options{}
	if err := opts.Decode(o); err != nil {
		return nil, fmt.Errorf("invalid http options: %w", err)
	}
	if o.URL == "" {
		return nil, fmt.Errorf("http job requires option %q", "url")
	}
	if !strings.HasPrefix(o.URL, "http://") && !strings.HasPrefix(o.URL, "https://") {
		o.URL = "http://" + o.URL
	}
	o.Method = strings.ToUpper(o.Method)
	if o.Method == "" {
		o.Method = http.MethodGet
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return o, nil
}

// Job is an availability probe. A transport failure is reported as a
// reading with up=0 rather than an error, so dashboards show the outage.
type Job struct {
	logger logger.Logger

	mu     sync.Mutex
	client *http.Client
}

func New(log logger.Logger) *Job {
	return &Job{logger: log}
}

func (j *Job) Prepare(opts runnable.UserOptions) error {
	o, err := parseOptions(opts)
	if err != nil {
		return err
	}
	if _, err := threshold.FromOptions(opts, latencyKeys); err != nil {
		return err
	}
	j.httpClient(o)
	return nil
}

func (j *Job) httpClient(o *Options) *http.Client {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.client == nil {
		j.client = &http.Client{
			Transport: &http.Transport{
				Proxy:           http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{InsecureSkipVerify: o.InsecureSkipVerify},
			},
		}
	}
	return j.client
}

func (j *Job) Metrics(opts runnable.UserOptions) (runnable.MetricsResult, error) {
	o, err := parseOptions(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.Timeout)
	defer cancel()
	req, err := newRequest(ctx, o)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := j.httpClient(o).Do(req)
	if err != nil {
		j.logger.V(1).Info("probe failed", "url", o.URL, "error", err.Error())
		return runnable.MetricsResult{
			MetricUp:           0,
			MetricStatusCode:   0,
			MetricResponseTime: time.Since(start).Milliseconds(),
			MetricError:        err.Error(),
		}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", o.URL, err)
	}

	result := runnable.MetricsResult{
		MetricUp:           1,
		MetricStatusCode:   resp.StatusCode,
		MetricResponseTime: elapsed,
		MetricBodyBytes:    len(body),
	}
	if o.Keyword != "" {
		result[MetricKeywordCount] = strings.Count(string(body), o.Keyword)
	}
	return result, nil
}

func newRequest(ctx context.Context, o *Options) (*http.Request, error) {
	var body io.Reader
	if o.Body != "" {
		body = strings.NewReader(o.Body)
	}
	req, err := http.NewRequestWithContext(ctx, o.Method, o.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range o.Headers {
		req.Header.Set(k, v)
	}
	switch {
	case o.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+o.BearerToken)
	case o.Username != "":
		req.SetBasicAuth(o.Username, o.Password)
	}
	return req, nil
}

func (j *Job) ValidateState(metrics runnable.MetricsResult, opts runnable.UserOptions) runnable.State {
	status, _ := metrics[MetricStatusCode].(int)
	if status == 0 {
		return runnable.StateCritical
	}
	if expected := opts.Int("expected_status", 0); expected > 0 {
		if status != expected {
			return runnable.StateCritical
		}
	} else if status >= http.StatusBadRequest {
		return runnable.StateCritical
	}
	if count, ok := metrics[MetricKeywordCount].(int); ok && count == 0 {
		return runnable.StateCritical
	}

	th, err := threshold.FromOptions(opts, latencyKeys)
	if err != nil {
		return runnable.StateCritical
	}
	return th.ClassifyMetric(metrics, MetricResponseTime)
}

func (j *Job) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.client != nil {
		j.client.CloseIdleConnections()
	}
	return nil
}
