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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
	jobserr "github.com/dashing-contrib/dashing-jobs/internal/types/err"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

const (
	defaultDashboardTimeout = 10 * time.Second
	authTokenKey            = "auth_token"
)

type DashboardConfig struct {
	// URL is the dashboard base, e.g. http://localhost:3030.
	URL       string
	AuthToken string
	Timeout   time.Duration
	// RateLimit caps requests per second, zero disables it.
	RateLimit float64
	Burst     int
}

// DashboardSink pushes events to the widget API of a Dashing dashboard:
// POST {url}/widgets/{event} with the payload and auth token as JSON.
type DashboardSink struct {
	base      string
	authToken string
	timeout   time.Duration
	client    *http.Client
	limiter   *rate.Limiter
	logger    logger.Logger
}

func NewDashboardSink(cfg DashboardConfig, log logger.Logger) (*DashboardSink, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid dashboard url %q", cfg.URL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultDashboardTimeout
	}
	s := &DashboardSink{
		base:      strings.TrimRight(cfg.URL, "/"),
		authToken: cfg.AuthToken,
		timeout:   cfg.Timeout,
		client:    &http.Client{Timeout: cfg.Timeout},
		logger:    log.WithName("sink").WithValues("sink", TypeDashboard),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return s, nil
}

func (s *DashboardSink) SendEvent(name string, payload runnable.Payload) error {
	body := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	body[authTokenKey] = s.authToken

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: %w", jobserr.UnsupportedPayload, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("dashboard rate limit: %w", err)
		}
	}

	endpoint := s.base + "/widgets/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", jobserr.SinkRequestFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: POST %s returned %d", jobserr.SinkRequestFailed, endpoint, resp.StatusCode)
	}
	s.logger.V(1).Info("event pushed", "event", name, "status", resp.StatusCode)
	return nil
}

func (s *DashboardSink) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
