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
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	bannerouter "github.com/dashing-contrib/dashing-jobs/internal/banner"
	cfgloader "github.com/dashing-contrib/dashing-jobs/internal/config"
	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
	"github.com/dashing-contrib/dashing-jobs/internal/jobs"
	_ "github.com/dashing-contrib/dashing-jobs/internal/jobs/builtin"
	"github.com/dashing-contrib/dashing-jobs/internal/metrics"
	"github.com/dashing-contrib/dashing-jobs/internal/sink"
	"github.com/dashing-contrib/dashing-jobs/internal/types/component"
	configtypes "github.com/dashing-contrib/dashing-jobs/internal/types/config"
	jobserr "github.com/dashing-contrib/dashing-jobs/internal/types/err"
	loggertypes "github.com/dashing-contrib/dashing-jobs/internal/types/logger"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
	"github.com/dashing-contrib/dashing-jobs/internal/util/param"
)

var (
	cfgPath string
)

type Runner[I component.Info] interface {
	Start(ctx context.Context) error
	Info() I
	Close() error
}

func ServerCommand() *cobra.Command {

	cmd := &cobra.Command{
		Use:     "server",
		Aliases: []string{"srv", "s"},
		Short:   "Run the configured dashboard jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return server(cmd.Context(), cfgPath, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "dashing-jobs.yaml", "config file path")
	return cmd
}

func getConfigByPath(path string, out io.Writer) (*configtypes.Config, error) {

	loader := cfgloader.New(path, logger.DefaultLogger(out, loggertypes.LogLevelInfo))
	cfg, err := loader.LoadConfig()
	if err != nil {
		return nil, err
	}

	if err := loader.ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loggerByCfg(cfg configtypes.LogConfig, out io.Writer) (logger.Logger, error) {

	logging := cfgloader.Logging(cfg)
	if cfg.File != "" {
		return logger.FileLogger(cfg.File, logging)
	}
	return logger.NewLogger(out, logging), nil
}

func server(ctx context.Context, path string, out io.Writer) error {

	cfg, err := getConfigByPath(path, out)
	if err != nil {
		return err
	}

	log, err := loggerByCfg(cfg.Server.Log, out)
	if err != nil {
		return err
	}
	log = log.WithValues("server", cfg.Server.Name)

	sched, err := newScheduler(cfg.Scheduler, log)
	if err != nil {
		return err
	}

	events, err := sink.NewFromConfig(cfg.Sinks, prometheus.DefaultRegisterer, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := events.Close(); err != nil {
			log.Error(err, "close sinks failed")
		}
	}()

	replacer, err := param.NewReplacer(cfg.SecretKey)
	if err != nil {
		return err
	}

	runner := runnable.NewRunner(sched, events, log)
	launched, err := jobs.Default().Launch(runner, cfg.Jobs, replacer.Resolve, log)
	defer func() {
		if err := launched.Close(); err != nil {
			log.Error(err, "close jobs failed")
		}
	}()
	if err != nil {
		_ = sched.Close()
		return err
	}

	runners := []Runner[component.Info]{sched}
	metricsPort := 0
	if cfg.Metrics.Enabled {
		metricsPort = cfg.Metrics.Port
		runners = append(runners, metrics.NewServer(&metrics.Config{
			Port:     cfg.Metrics.Port,
			Gatherer: prometheus.DefaultGatherer,
			Jobs:     runner,
			Logger:   log,
		}))
	}

	banner := bannerouter.New(&bannerouter.Config{Out: out, Logger: log})
	if err := banner.PrintBanner(bannerouter.Vars{
		Name:        cfg.Server.Name,
		Scheduler:   cfg.Scheduler.Kind,
		Jobs:        len(launched.Events),
		MetricsPort: metricsPort,
	}); err != nil {
		return err
	}

	return startRunners(ctx, log, runners...)
}

// startRunners runs every runner until one fails, ctx is cancelled or the
// process receives SIGINT/SIGTERM, then closes all of them.
func startRunners(ctx context.Context, log logger.Logger, runners ...Runner[component.Info]) error {

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	for _, r := range runners {
		r := r
		g.Go(func() error {
			log.Info("starting runner", "runner", r.Info().Name)
			if err := r.Start(gctx); err != nil {
				return fmt.Errorf("%s: %w", r.Info().Name, err)
			}
			return nil
		})
	}

	<-gctx.Done()
	for _, r := range runners {
		if err := r.Close(); err != nil {
			log.Error(err, "error closing runner", "runner", r.Info().Name)
		}
	}

	if err := g.Wait(); err != nil {
		log.Error(jobserr.ServerStop, "runner error", "error", err)
		return err
	}
	if err := ctx.Err(); err != nil {
		log.Info("context cancelled")
		return err
	}
	log.Info("received shutdown signal")
	return nil
}

// IsShutdown reports whether err only says the server was asked to stop.
func IsShutdown(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}
