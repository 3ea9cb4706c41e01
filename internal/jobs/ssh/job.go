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

// Package ssh runs a command on a remote host and reports the first number
// it prints.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/dashing-contrib/dashing-jobs/internal/constants"
	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
	"github.com/dashing-contrib/dashing-jobs/internal/jobs"
	"github.com/dashing-contrib/dashing-jobs/internal/jobs/threshold"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

const (
	Type = "ssh"

	MetricValue        = constants.MetricValue
	MetricExitStatus   = "exit_status"
	MetricOutput       = "output"
	MetricResponseTime = constants.MetricResponseTime

	defaultTimeout = 10 * time.Second
	maxOutput      = 256
)

var numberPattern = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?(?:[eE][-+]?\d+)?`)

func init() {
	jobs.Register(Type, func(log logger.Logger) runnable.Job { return New(log) })
}

type Options struct {
	Endpoint `mapstructure:",squash"`
	Command  string        `mapstructure:"command"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Proxy    *Endpoint     `mapstructure:"proxy"`
}

func parseOptions(opts runnable.UserOptions) (*Options, error) {
	o := &Options{}
	if err := opts.Decode(o); err != nil {
		return nil, fmt.Errorf("invalid ssh options: %w", err)
	}
	if o.Host == "" || o.Command == "" {
		return nil, fmt.Errorf("ssh job requires options %q and %q", "host", "command")
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	return o, nil
}

// Job keeps one connection open across ticks and redials when it breaks.
type Job struct {
	logger logger.Logger
	dial   func(ctx context.Context, o *Options) (*ssh.Client, error)

	mu     sync.Mutex
	client *ssh.Client
}

func New(log logger.Logger) *Job {
	j := &Job{logger: log}
	j.dial = func(ctx context.Context, o *Options) (*ssh.Client, error) {
		return Dial(ctx, o.Endpoint, o.Proxy, o.Timeout, j.logger)
	}
	return j
}

func (j *Job) Prepare(opts runnable.UserOptions) error {
	o, err := parseOptions(opts)
	if err != nil {
		return err
	}
	if _, err := ClientConfig(o.Endpoint, o.Timeout); err != nil {
		return err
	}
	_, err = threshold.FromOptions(opts, threshold.DefaultKeys)
	return err
}

func (j *Job) session(ctx context.Context, o *Options) (*ssh.Session, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.client != nil {
		if s, err := j.client.NewSession(); err == nil {
			return s, nil
		}
		j.client.Close()
		j.client = nil
	}
	client, err := j.dial(ctx, o)
	if err != nil {
		return nil, err
	}
	j.client = client
	return client.NewSession()
}

func (j *Job) Metrics(opts runnable.UserOptions) (runnable.MetricsResult, error) {
	o, err := parseOptions(opts)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.Timeout)
	defer cancel()

	start := time.Now()
	session, err := j.session(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("ssh %s: %w", o.address(), err)
	}
	defer session.Close()

	var stdout bytes.Buffer
	session.Stdout = &stdout
	done := make(chan error, 1)
	go func() { done <- session.Run(o.Command) }()

	exitStatus := 0
	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return nil, fmt.Errorf("ssh %s: command timed out after %s", o.address(), o.Timeout)
	case err := <-done:
		var exitErr *ssh.ExitError
		switch {
		case err == nil:
		case errors.As(err, &exitErr):
			exitStatus = exitErr.ExitStatus()
		default:
			return nil, fmt.Errorf("ssh %s: %w", o.address(), err)
		}
	}

	output := stdout.String()
	result := runnable.MetricsResult{
		MetricExitStatus:   exitStatus,
		MetricResponseTime: time.Since(start).Milliseconds(),
		MetricOutput:       truncate(output, maxOutput),
	}
	if v, ok := FirstNumber(output); ok {
		result[MetricValue] = v
	}
	return result, nil
}

// FirstNumber returns the first decimal number found in s.
func FirstNumber(s string) (float64, bool) {
	match := numberPattern.FindString(s)
	if match == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(match, 64)
	return v, err == nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (j *Job) ValidateState(metrics runnable.MetricsResult, opts runnable.UserOptions) runnable.State {
	if status, _ := metrics[MetricExitStatus].(int); status != 0 {
		return runnable.StateCritical
	}
	th, err := threshold.FromOptions(opts, threshold.DefaultKeys)
	if err != nil {
		return runnable.StateCritical
	}
	return th.ClassifyMetric(metrics, MetricValue)
}

func (j *Job) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.client == nil {
		return nil
	}
	err := j.client.Close()
	j.client = nil
	return err
}
