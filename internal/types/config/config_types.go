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
	"time"
)

type Config struct {
	Server    ServerSection   `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Sinks     []SinkConfig    `yaml:"sinks"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	// SecretKey decrypts ENC(...) option values, 16 bytes.
	SecretKey string      `yaml:"secret_key"`
	Jobs      []JobConfig `yaml:"jobs"`
}

type ServerSection struct {
	Name string    `yaml:"name"`
	Log  LogConfig `yaml:"log"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
	// Components overrides the level per logger name, e.g. runner: debug.
	Components map[string]string `yaml:"components"`
}

type SchedulerConfig struct {
	Kind          string        `yaml:"kind"`
	Tick          time.Duration `yaml:"tick"`
	WheelSize     int           `yaml:"wheel_size"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

type SinkConfig struct {
	Type      string        `yaml:"type"`
	URL       string        `yaml:"url"`
	AuthToken string        `yaml:"auth_token"`
	Address   string        `yaml:"address"`
	Encoding  string        `yaml:"encoding"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	Burst     int           `yaml:"burst"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type JobConfig struct {
	Type    string         `yaml:"type"`
	Options map[string]any `yaml:"options"`
}
