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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dashing-contrib/dashing-jobs/internal/types/component"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

const DefaultPort = 9464

// JobLister reports the registered event identifiers.
type JobLister interface {
	Jobs() []string
}

type Config struct {
	Port     int
	Gatherer prometheus.Gatherer
	Jobs     JobLister
	Logger   logger.Logger
}

// Server serves /metrics, /healthz and /jobs.
type Server struct {
	addr     string
	gatherer prometheus.Gatherer
	jobs     JobLister
	logger   logger.Logger
	srv      *http.Server

	mu       sync.Mutex
	listener net.Listener
}

func NewServer(cfg *Config) *Server {
	port := cfg.Port
	if port <= 0 {
		port = DefaultPort
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		addr:     fmt.Sprintf(":%d", port),
		gatherer: gatherer,
		jobs:     cfg.Jobs,
		logger:   cfg.Logger.WithName("metrics"),
	}
	s.srv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router builds the chi mux.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", s.handleHealth)
	r.Get("/jobs", s.handleJobs)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleJobs(w http.ResponseWriter, _ *http.Request) {
	jobs := []string{}
	if s.jobs != nil {
		jobs = append(jobs, s.jobs.Jobs()...)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"jobs": jobs, "count": len(jobs)}); err != nil {
		s.logger.Error(err, "failed to encode jobs")
	}
}

// Start listens and blocks until ctx is done or the server fails.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("metrics listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()
	Up.Set(1)
	s.logger.Info("metrics server listening", "addr", lis.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return nil
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	}
}

// Addr is the bound address once Start has run.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *Server) Info() component.Info {
	return component.Info{Name: "metrics"}
}

func (s *Server) Close() error {
	Up.Set(0)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
