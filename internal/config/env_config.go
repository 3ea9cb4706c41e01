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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dashing-contrib/dashing-jobs/internal/types/config"
)

// EnvPrefix starts every variable EnvOverrides reads.
const EnvPrefix = "DASHING_JOBS_"

// EnvOverrides lets the environment override single settings of a loaded
// file, e.g. DASHING_JOBS_LOG_LEVEL=debug.
type EnvOverrides struct {
	lookup func(string) (string, bool)
}

func NewEnvOverrides(lookup func(string) (string, bool)) *EnvOverrides {
	return &EnvOverrides{lookup: lookup}
}

func (e *EnvOverrides) get(name string) (string, bool) {
	v, ok := e.lookup(EnvPrefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// Apply writes every set variable into cfg.
func (e *EnvOverrides) Apply(cfg *config.Config) error {

	if v, ok := e.get("NAME"); ok {
		cfg.Server.Name = v
	}
	if v, ok := e.get("LOG_LEVEL"); ok {
		cfg.Server.Log.Level = v
	}
	if v, ok := e.get("LOG_FILE"); ok {
		cfg.Server.Log.File = v
	}
	if v, ok := e.get("SCHEDULER"); ok {
		cfg.Scheduler.Kind = v
	}
	if v, ok := e.get("SCHEDULER_TICK"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sSCHEDULER_TICK: %w", EnvPrefix, err)
		}
		cfg.Scheduler.Tick = d
	}
	if v, ok := e.get("METRICS_ENABLED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sMETRICS_ENABLED: %w", EnvPrefix, err)
		}
		cfg.Metrics.Enabled = b
	}
	if v, ok := e.get("METRICS_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMETRICS_PORT: %w", EnvPrefix, err)
		}
		cfg.Metrics.Port = port
	}
	if v, ok := e.get("SECRET_KEY"); ok {
		cfg.SecretKey = v
	}
	return nil
}
