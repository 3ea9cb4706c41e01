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

// Package jobs turns configured job entries into scheduled runnable jobs.
// Job types register a factory in init; importing internal/jobs/builtin
// pulls in every bundled type.
package jobs

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
	"github.com/dashing-contrib/dashing-jobs/internal/types/config"
	jobserr "github.com/dashing-contrib/dashing-jobs/internal/types/err"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

// Factory builds a fresh job instance.
type Factory func(log logger.Logger) runnable.Job

// Preparer is implemented by jobs that validate options or open resources
// once before their first tick.
type Preparer interface {
	Prepare(opts runnable.UserOptions) error
}

// JobRunner schedules a job, see runnable.Runner.
type JobRunner interface {
	Run(job runnable.Job, options runnable.Options, setup runnable.SetupFunc) error
}

// OptionResolver rewrites raw option values, e.g. expanding placeholders.
type OptionResolver func(options map[string]any) (map[string]any, error)

type Registration struct {
	Type    string
	Factory Factory
	Enabled bool
}

type RegistrationOption func(*Registration)

func WithDisabled() RegistrationOption {
	return func(reg *Registration) {
		reg.Enabled = false
	}
}

type Registry struct {
	mu            sync.RWMutex
	registrations map[string]*Registration
}

var global = NewRegistry()

// Default is the process-wide registry job types add themselves to.
func Default() *Registry {
	return global
}

// Register adds a factory to the default registry.
func Register(jobType string, factory Factory, options ...RegistrationOption) {
	global.RegisterFactory(jobType, factory, options...)
}

func NewRegistry() *Registry {
	return &Registry{registrations: make(map[string]*Registration)}
}

func (r *Registry) RegisterFactory(jobType string, factory Factory, options ...RegistrationOption) {
	reg := &Registration{Type: jobType, Factory: factory, Enabled: true}
	for _, opt := range options {
		opt(reg)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrations[jobType] = reg
}

func (r *Registry) SetEnabled(jobType string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.registrations[jobType]; ok {
		reg.Enabled = enabled
		return true
	}
	return false
}

// Types lists the enabled job types in order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.registrations))
	for t, reg := range r.registrations {
		if reg.Enabled {
			types = append(types, t)
		}
	}
	sort.Strings(types)
	return types
}

func (r *Registry) Create(jobType string, log logger.Logger) (runnable.Job, error) {
	r.mu.RLock()
	reg, ok := r.registrations[jobType]
	r.mu.RUnlock()
	if !ok || !reg.Enabled {
		return nil, fmt.Errorf("%w: %q", jobserr.UnknownJobType, jobType)
	}
	job := reg.Factory(log.WithName("job").WithValues("type", jobType))
	if job == nil {
		return nil, fmt.Errorf("factory for %q returned nil", jobType)
	}
	return job, nil
}

// Launched holds the jobs started by Launch.
type Launched struct {
	Events  []string
	closers []io.Closer
}

// Close releases resources held by jobs that implement io.Closer.
func (l *Launched) Close() error {
	var errs []error
	for _, c := range l.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Launch creates and runs every configured job. It stops at the first
// failure; jobs launched before it stay scheduled and are returned.
func (r *Registry) Launch(runner JobRunner, cfgs []config.JobConfig, resolve OptionResolver, log logger.Logger) (*Launched, error) {
	launched := &Launched{}
	for i, cfg := range cfgs {
		job, err := r.Create(cfg.Type, log)
		if err != nil {
			return launched, fmt.Errorf("jobs[%d]: %w", i, err)
		}

		raw := cfg.Options
		if resolve != nil {
			if raw, err = resolve(cfg.Options); err != nil {
				return launched, fmt.Errorf("jobs[%d]: %w", i, err)
			}
		}
		options := runnable.Options(raw)

		if err := runner.Run(job, options, setupFor(job, options)); err != nil {
			if c, ok := job.(io.Closer); ok {
				_ = c.Close()
			}
			return launched, fmt.Errorf("jobs[%d] (%s): %w", i, cfg.Type, err)
		}
		if event, ok := options[runnable.KeyEvent].(string); ok {
			launched.Events = append(launched.Events, event)
		}
		if c, ok := job.(io.Closer); ok {
			launched.closers = append(launched.closers, c)
		}
	}
	return launched, nil
}

func setupFor(job runnable.Job, options runnable.Options) runnable.SetupFunc {
	p, ok := job.(Preparer)
	if !ok {
		return nil
	}
	return func() error {
		settings, err := runnable.Resolve(options)
		if err != nil {
			return err
		}
		return p.Prepare(settings.User)
	}
}
