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

package database

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

func mockedJob(t *testing.T) (*Job, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	job := New(logger.Discard())
	job.open = func(driver, dsn string) (*sql.DB, error) {
		return db, nil
	}
	t.Cleanup(func() { _ = job.Close() })
	return job, mock
}

func TestMetricsScalarQuery(t *testing.T) {
	job, mock := mockedJob(t)
	opts := runnable.UserOptions{
		"platform": "postgresql", "host": "db", "username": "u", "password": "p", "database": "app",
		"query": "SELECT count(*) FROM jobs WHERE failed", "warning": 5, "critical": 20,
	}

	mock.ExpectPing()
	mock.ExpectQuery(`SELECT count\(\*\) FROM jobs WHERE failed`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	metrics, err := job.Metrics(opts)
	require.NoError(t, err)
	assert.Equal(t, 12.0, metrics[MetricValue])
	assert.Contains(t, metrics, MetricQueryTime)
	assert.Equal(t, runnable.StateWarning, job.ValidateState(metrics, opts))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMetricsPingFailure(t *testing.T) {
	job, mock := mockedJob(t)
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	_, err := job.Metrics(runnable.UserOptions{"platform": "mysql", "dsn": "user@tcp(db)/app"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMetricsQueryFailure(t *testing.T) {
	job, mock := mockedJob(t)
	mock.ExpectPing()
	mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("syntax error"))

	_, err := job.Metrics(runnable.UserOptions{"platform": "mysql", "dsn": "user@tcp(db)/app"})
	assert.ErrorContains(t, err, "syntax error")
}

func TestMetricsNonNumericValue(t *testing.T) {
	job, mock := mockedJob(t)
	mock.ExpectPing()
	mock.ExpectQuery("SELECT version()").WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow([]byte("8.0.36")))

	opts := runnable.UserOptions{"platform": "mysql", "dsn": "x", "query": "SELECT version()"}
	metrics, err := job.Metrics(opts)
	require.NoError(t, err)
	assert.Equal(t, "8.0.36", metrics[MetricValue])
	assert.Equal(t, runnable.StateOK, job.ValidateState(metrics, opts))
}

func TestMetricsSQLite(t *testing.T) {
	job := New(logger.Discard())
	defer job.Close()

	opts := runnable.UserOptions{"platform": "sqlite", "dsn": ":memory:", "query": "SELECT 40 + 2", "critical": 40}
	require.NoError(t, job.Prepare(opts))

	metrics, err := job.Metrics(opts)
	require.NoError(t, err)
	assert.Equal(t, 42.0, metrics[MetricValue])
	assert.Equal(t, runnable.StateCritical, job.ValidateState(metrics, opts))
}

func TestBuildDSN(t *testing.T) {
	cases := []struct {
		opts runnable.UserOptions
		want string
	}{
		{
			opts: runnable.UserOptions{"platform": "mariadb", "host": "db", "username": "root", "password": "pw", "database": "app", "timeout": "5s"},
			want: "root:pw@tcp(db:3306)/app?parseTime=true&charset=utf8mb4&timeout=5s",
		},
		{
			opts: runnable.UserOptions{"platform": "postgres", "host": "db", "port": 6543, "username": "u", "password": "p w", "database": "app"},
			want: "postgres://u:p%20w@db:6543/app?sslmode=disable",
		},
		{
			opts: runnable.UserOptions{"platform": "mssql", "host": "db", "username": "sa", "password": "pw", "database": "app"},
			want: "sqlserver://sa:pw@db:1433?database=app&trustServerCertificate=true",
		},
		{
			opts: runnable.UserOptions{"platform": "sqlite3", "database": "/var/lib/app.db"},
			want: "/var/lib/app.db",
		},
	}
	for _, tc := range cases {
		o, err := parseOptions(tc.opts)
		require.NoError(t, err)
		assert.Equal(t, tc.want, o.DSN)
	}
}

func TestParseOptionsErrors(t *testing.T) {
	for _, opts := range []runnable.UserOptions{
		{},
		{"platform": "oracle", "host": "db"},
		{"platform": "mysql"},
		{"platform": "sqlite"},
	} {
		_, err := parseOptions(opts)
		assert.Error(t, err, opts)
	}
}

func TestScalar(t *testing.T) {
	assert.Nil(t, scalar(nil))
	assert.Equal(t, 3.0, scalar(int64(3)))
	assert.Equal(t, 2.5, scalar([]byte("2.5")))
	assert.Equal(t, "true", scalar(true))
	assert.Equal(t, "ok", scalar("ok"))
}
