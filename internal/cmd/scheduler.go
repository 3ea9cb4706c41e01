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

package cmd

import (
	"context"
	"fmt"
	"sync"
	"time"

	cfgloader "github.com/dashing-contrib/dashing-jobs/internal/config"
	"github.com/dashing-contrib/dashing-jobs/internal/cron"
	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
	"github.com/dashing-contrib/dashing-jobs/internal/timer"
	"github.com/dashing-contrib/dashing-jobs/internal/types/component"
	configtypes "github.com/dashing-contrib/dashing-jobs/internal/types/config"
	jobserr "github.com/dashing-contrib/dashing-jobs/internal/types/err"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

type schedulerBackend interface {
	runnable.Scheduler
	Start() error
	Stop() error
}

// schedulerRunner adapts a scheduler backend to the server's runner
// lifecycle. Jobs registered before Start fire once it starts.
type schedulerRunner struct {
	backend schedulerBackend
	kind    string
	logger  logger.Logger

	closeOnce sync.Once
	closeErr  error
}

var _ runnable.Scheduler = (*schedulerRunner)(nil)

func newScheduler(cfg configtypes.SchedulerConfig, log logger.Logger) (*schedulerRunner, error) {

	var backend schedulerBackend
	switch cfg.Kind {
	case cfgloader.SchedulerKindWheel, "":
		wheel := timer.NewTimerWheelWithConfig(timer.Config{
			TickDuration:  cfg.Tick,
			WheelSize:     cfg.WheelSize,
			MaxConcurrent: cfg.MaxConcurrent,
		}, log)
		backend = timer.NewScheduler(wheel, log)
	case cfgloader.SchedulerKindCron:
		backend = cron.NewScheduler(log)
	default:
		return nil, fmt.Errorf("%w: %q", jobserr.UnknownScheduler, cfg.Kind)
	}

	return &schedulerRunner{
		backend: backend,
		kind:    kindOrDefault(cfg.Kind),
		logger:  log,
	}, nil
}

func (s *schedulerRunner) Every(period time.Duration, opts runnable.ScheduleOptions, task func() error) error {
	return s.backend.Every(period, opts, task)
}

func (s *schedulerRunner) Start(ctx context.Context) error {
	if err := s.backend.Start(); err != nil {
		return err
	}
	s.logger.Info("scheduler running", "kind", s.kind)
	<-ctx.Done()
	return nil
}

func (s *schedulerRunner) Info() component.Info {
	return component.Info{Name: "scheduler"}
}

func (s *schedulerRunner) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.backend.Stop()
	})
	return s.closeErr
}

func kindOrDefault(kind string) string {
	if kind == "" {
		return cfgloader.SchedulerKindWheel
	}
	return kind
}
