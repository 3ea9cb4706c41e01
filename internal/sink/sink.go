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

// Package sink holds the event sinks a Runner publishes payloads to.
package sink

import (
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
	"github.com/dashing-contrib/dashing-jobs/internal/types/config"
	jobserr "github.com/dashing-contrib/dashing-jobs/internal/types/err"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

const (
	TypeLog        = "log"
	TypeDashboard  = "dashboard"
	TypeGRPC       = "grpc"
	TypePrometheus = "prometheus"
)

// Sink is an EventSink that may hold connections.
type Sink interface {
	runnable.EventSink
	Close() error
}

// New builds one sink from its configuration.
func New(cfg config.SinkConfig, reg prometheus.Registerer, log logger.Logger) (Sink, error) {
	switch strings.ToLower(cfg.Type) {
	case TypeLog, "":
		return NewLogSink(log), nil
	case TypeDashboard:
		return NewDashboardSink(DashboardConfig{
			URL:       cfg.URL,
			AuthToken: cfg.AuthToken,
			Timeout:   cfg.Timeout,
			RateLimit: cfg.RateLimit,
			Burst:     cfg.Burst,
		}, log)
	case TypeGRPC:
		return NewGRPCSink(GRPCConfig{
			Address:  cfg.Address,
			Encoding: cfg.Encoding,
			Timeout:  cfg.Timeout,
		}, log)
	case TypePrometheus:
		return NewPrometheusSink(reg)
	default:
		return nil, fmt.Errorf("%w: %q", jobserr.UnknownSinkType, cfg.Type)
	}
}

// NewFromConfig builds every configured sink. A single sink is returned as
// is, several are wrapped in a MultiSink.
func NewFromConfig(cfgs []config.SinkConfig, reg prometheus.Registerer, log logger.Logger) (Sink, error) {
	if len(cfgs) == 0 {
		return nil, jobserr.NoSinksConfigured
	}
	sinks := make([]Sink, 0, len(cfgs))
	for i, cfg := range cfgs {
		s, err := New(cfg, reg, log)
		if err != nil {
			closeErr := NewMultiSink(sinks...).Close()
			return nil, errors.Join(fmt.Errorf("sinks[%d]: %w", i, err), closeErr)
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return NewMultiSink(sinks...), nil
}
