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

// Package database pings a SQL database and reads one scalar.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/spf13/cast"
	_ "modernc.org/sqlite"

	"github.com/dashing-contrib/dashing-jobs/internal/constants"
	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
	"github.com/dashing-contrib/dashing-jobs/internal/jobs"
	"github.com/dashing-contrib/dashing-jobs/internal/jobs/threshold"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

const (
	Type = "database"

	PlatformMySQL     = "mysql"
	PlatformMariaDB   = "mariadb"
	PlatformPostgres  = "postgres"
	PlatformSQLServer = "sqlserver"
	PlatformSQLite    = "sqlite"

	MetricValue     = constants.MetricValue
	MetricQueryTime = "query_time_ms"

	defaultQuery   = "SELECT 1"
	defaultTimeout = 30 * time.Second
)

func init() {
	jobs.Register(Type, func(log logger.Logger) runnable.Job { return New(log) })
}

type Options struct {
	Platform string        `mapstructure:"platform"`
	DSN      string        `mapstructure:"dsn"`
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Database string        `mapstructure:"database"`
	Query    string        `mapstructure:"query"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func parseOptions(opts runnable.UserOptions) (*Options, error) {
	o := &Options{}
	if err := opts.Decode(o); err != nil {
		return nil, fmt.Errorf("invalid database options: %w", err)
	}
	platform, err := normalizePlatform(o.Platform)
	if err != nil {
		return nil, err
	}
	o.Platform = platform
	if o.Query == "" {
		o.Query = defaultQuery
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.DSN == "" {
		dsn, err := buildDSN(o)
		if err != nil {
			return nil, err
		}
		o.DSN = dsn
	}
	return o, nil
}

func normalizePlatform(p string) (string, error) {
	switch strings.ToLower(p) {
	case PlatformMySQL, PlatformMariaDB:
		return PlatformMySQL, nil
	case PlatformPostgres, "postgresql", "pg":
		return PlatformPostgres, nil
	case PlatformSQLServer, "mssql":
		return PlatformSQLServer, nil
	case PlatformSQLite, "sqlite3":
		return PlatformSQLite, nil
	case "":
		return "", fmt.Errorf("database job requires option %q", "platform")
	default:
		return "", fmt.Errorf("unsupported database platform: %s", p)
	}
}

// buildDSN assembles a driver DSN from host, port and credentials.
func buildDSN(o *Options) (string, error) {
	if o.Platform == PlatformSQLite {
		if o.Database == "" {
			return "", fmt.Errorf("sqlite requires option %q or %q", "dsn", "database")
		}
		return o.Database, nil
	}
	if o.Host == "" {
		return "", fmt.Errorf("option %q is required when %q is not set", "host", "dsn")
	}

	switch o.Platform {
	case PlatformMySQL:
		port := defaultPort(o.Port, "3306")
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&charset=utf8mb4&timeout=%s",
			o.Username, o.Password, o.Host, port, o.Database, o.Timeout), nil
	case PlatformPostgres:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(o.Username, o.Password),
			Host:     o.Host + ":" + defaultPort(o.Port, "5432"),
			Path:     "/" + o.Database,
			RawQuery: "sslmode=disable",
		}
		return u.String(), nil
	default:
		u := url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(o.Username, o.Password),
			Host:     o.Host + ":" + defaultPort(o.Port, "1433"),
			RawQuery: url.Values{"database": {o.Database}, "trustServerCertificate": {"true"}}.Encode(),
		}
		return u.String(), nil
	}
}

func defaultPort(port, def string) string {
	if port == "" {
		return def
	}
	return port
}

func driverName(platform string) string {
	if platform == PlatformPostgres {
		return "postgres"
	}
	return platform
}

// Job holds a connection pool opened on first use.
type Job struct {
	logger logger.Logger
	open   func(driver, dsn string) (*sql.DB, error)

	mu sync.Mutex
	db *sql.DB
}

func New(log logger.Logger) *Job {
	return &Job{logger: log, open: sql.Open}
}

func (j *Job) Prepare(opts runnable.UserOptions) error {
	o, err := parseOptions(opts)
	if err != nil {
		return err
	}
	if _, err := threshold.FromOptions(opts, threshold.DefaultKeys); err != nil {
		return err
	}
	_, err = j.pool(o)
	return err
}

func (j *Job) pool(o *Options) (*sql.DB, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db != nil {
		return j.db, nil
	}
	db, err := j.open(driverName(o.Platform), o.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxIdleTime(5 * time.Minute)
	j.db = db
	return db, nil
}

func (j *Job) Metrics(opts runnable.UserOptions) (runnable.MetricsResult, error) {
	o, err := parseOptions(opts)
	if err != nil {
		return nil, err
	}
	db, err := j.pool(o)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.Timeout)
	defer cancel()

	start := time.Now()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping %s database: %w", o.Platform, err)
	}
	var raw any
	if err := db.QueryRowContext(ctx, o.Query).Scan(&raw); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	elapsed := time.Since(start).Milliseconds()

	j.logger.V(1).Info("query completed", "platform", o.Platform, "elapsed_ms", elapsed)
	return runnable.MetricsResult{
		MetricValue:     scalar(raw),
		MetricQueryTime: elapsed,
	}, nil
}

// scalar turns a scanned column into a float when it is numeric and a
// string otherwise.
func scalar(raw any) any {
	switch v := raw.(type) {
	case nil:
		return nil
	case []byte:
		raw = string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	}
	if f, err := cast.ToFloat64E(raw); err == nil {
		if _, isBool := raw.(bool); !isBool {
			return f
		}
	}
	return cast.ToString(raw)
}

func (j *Job) ValidateState(metrics runnable.MetricsResult, opts runnable.UserOptions) runnable.State {
	th, err := threshold.FromOptions(opts, threshold.DefaultKeys)
	if err != nil {
		return runnable.StateCritical
	}
	return th.ClassifyMetric(metrics, MetricValue)
}

func (j *Job) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	return err
}
