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

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dashing-contrib/dashing-jobs/internal/constants"
	"github.com/dashing-contrib/dashing-jobs/internal/types/config"
	jobserr "github.com/dashing-contrib/dashing-jobs/internal/types/err"
	loggertypes "github.com/dashing-contrib/dashing-jobs/internal/types/logger"
	"github.com/dashing-contrib/dashing-jobs/internal/util/crypto"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

const (
	DefaultName          = constants.DefaultName
	DefaultMetricsPort   = 9464
	SchedulerKindWheel   = "wheel"
	SchedulerKindCron    = "cron"
	defaultSchedulerKind = SchedulerKindWheel
)

type Loader struct {
	cfgPath string
	logger  logger.Logger
}

func New(cfgPath string, log logger.Logger) *Loader {

	return &Loader{
		cfgPath: cfgPath,
		logger:  log.WithName("config"),
	}
}

// LoadConfig reads the YAML file and applies DASHING_JOBS_* overrides.
func (l *Loader) LoadConfig() (*config.Config, error) {

	if l.cfgPath == "" {
		return nil, jobserr.ConfigPathIsEmpty
	}

	file, err := os.Open(l.cfgPath)
	if err != nil {
		l.logger.Error(err, "open config file failed", "path", l.cfgPath)
		return nil, err
	}
	defer func(file *os.File) {
		if err := file.Close(); err != nil {
			l.logger.Error(err, "close config file failed")
		}
	}(file)

	var cfg config.Config
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", l.cfgPath, err)
	}

	if err := NewEnvOverrides(os.LookupEnv).Apply(&cfg); err != nil {
		return nil, err
	}
	l.logger.V(1).Info("config loaded", "path", l.cfgPath, "jobs", len(cfg.Jobs), "sinks", len(cfg.Sinks))
	return &cfg, nil
}

// ValidateConfig fills defaults and rejects configurations that cannot run.
func (l *Loader) ValidateConfig(cfg *config.Config) error {

	if cfg == nil {
		return jobserr.ConfigIsNil
	}

	if cfg.Server.Name == "" {
		cfg.Server.Name = DefaultName
	}

	if cfg.Server.Log.Level == "" {
		cfg.Server.Log.Level = string(loggertypes.LogLevelInfo)
	}
	levels := map[string]string{"log.level": cfg.Server.Log.Level}
	for component, level := range cfg.Server.Log.Components {
		levels["log.components."+component] = level
	}
	for key, level := range levels {
		if !validLevel(level) {
			return fmt.Errorf("%s: unknown log level %q", key, level)
		}
	}

	cfg.Scheduler.Kind = strings.ToLower(cfg.Scheduler.Kind)
	switch cfg.Scheduler.Kind {
	case "":
		cfg.Scheduler.Kind = defaultSchedulerKind
	case SchedulerKindWheel, SchedulerKindCron:
	default:
		return fmt.Errorf("%w: %q", jobserr.UnknownScheduler, cfg.Scheduler.Kind)
	}

	if len(cfg.Sinks) == 0 {
		l.logger.Info("no sinks configured, events go to the log")
		cfg.Sinks = []config.SinkConfig{{Type: "log"}}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = DefaultMetricsPort
	}

	if cfg.SecretKey != "" {
		if _, err := crypto.NewAESCipher(cfg.SecretKey); err != nil {
			return fmt.Errorf("secret_key: %w", err)
		}
	}

	if len(cfg.Jobs) == 0 {
		return jobserr.NoJobsConfigured
	}
	var errs []error
	for i, job := range cfg.Jobs {
		if job.Type == "" {
			errs = append(errs, fmt.Errorf("jobs[%d]: type is required", i))
		}
	}
	return errors.Join(errs...)
}

func validLevel(level string) bool {
	switch loggertypes.LogLevel(strings.ToLower(level)) {
	case loggertypes.LogLevelTrace, loggertypes.LogLevelDebug, loggertypes.LogLevelInfo,
		loggertypes.LogLevelWarn, loggertypes.LogLevelError:
		return true
	}
	return false
}

// Logging converts the log section into per-component levels.
func Logging(cfg config.LogConfig) *loggertypes.JobsLogging {

	logging := loggertypes.DefaultJobsLogging()
	if cfg.Level != "" {
		logging.Level[loggertypes.LogComponentDefault] = loggertypes.LogLevel(strings.ToLower(cfg.Level))
	}
	for component, level := range cfg.Components {
		logging.Level[loggertypes.LogComponent(component)] = loggertypes.LogLevel(strings.ToLower(level))
	}
	return logging
}
