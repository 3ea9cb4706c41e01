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

package system

import (
	"context"
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v4/load"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

type fakeSampler struct {
	reading *Reading
	err     error
	path    string
}

func (f *fakeSampler) Sample(_ context.Context, path string, _ time.Duration) (*Reading, error) {
	f.path = path
	return f.reading, f.err
}

func gib(n uint64) uint64 { return n << 30 }

func newFakeJob(r *Reading) (*Job, *fakeSampler) {
	s := &fakeSampler{reading: r}
	j := New(logger.Discard())
	j.sampler = s
	return j, s
}

func TestMetricsConvertsSizes(t *testing.T) {
	job, sampler := newFakeJob(&Reading{
		CPUPercent:    12.5,
		MemoryPercent: 50,
		MemoryUsed:    gib(8),
		MemoryTotal:   gib(16),
		DiskPercent:   75,
		DiskUsed:      gib(300),
		DiskTotal:     gib(400),
		Load:          &load.AvgStat{Load1: 0.5, Load5: 0.4, Load15: 0.3},
	})

	metrics, err := job.Metrics(runnable.UserOptions{"path": "/data", "conversions": []any{"memory_total=GB->MB"}})
	require.NoError(t, err)
	assert.Equal(t, "/data", sampler.path)
	assert.Equal(t, 12.5, metrics[MetricCPUPercent])
	assert.Equal(t, 8.0, metrics[MetricMemoryUsed])
	assert.Equal(t, 16384.0, metrics[MetricMemoryTotal])
	assert.Equal(t, 300.0, metrics[MetricDiskUsed])
	assert.Equal(t, 0.5, metrics[MetricLoad1])
	assert.Equal(t, "GB", metrics["unit"])

	metrics, err = job.Metrics(runnable.UserOptions{"unit": "mib"})
	require.NoError(t, err)
	assert.Equal(t, 8192.0, metrics[MetricMemoryUsed])
	assert.Equal(t, "MIB", metrics["unit"])
}

func TestMetricsWithoutLoad(t *testing.T) {
	job, _ := newFakeJob(&Reading{})
	metrics, err := job.Metrics(runnable.UserOptions{})
	require.NoError(t, err)
	assert.NotContains(t, metrics, MetricLoad1)
}

func TestMetricsSamplerError(t *testing.T) {
	job, sampler := newFakeJob(nil)
	sampler.err = errors.New("no /proc")
	_, err := job.Metrics(runnable.UserOptions{})
	assert.ErrorContains(t, err, "no /proc")
}

func TestMetricsBadConversion(t *testing.T) {
	job, _ := newFakeJob(&Reading{})
	_, err := job.Metrics(runnable.UserOptions{"conversions": []any{"swap=B->GB"}})
	assert.ErrorContains(t, err, "swap")

	_, err = job.Metrics(runnable.UserOptions{"conversions": []any{"cpu_percent=B->s"}})
	assert.Error(t, err)
}

func TestValidateStateWorstWins(t *testing.T) {
	job := New(logger.Discard())
	opts := runnable.UserOptions{
		"cpu_warning": 70, "cpu_critical": 90,
		"memory_warning": 80,
		"disk_critical": 95,
	}
	metrics := runnable.MetricsResult{MetricCPUPercent: 10.0, MetricMemoryPercent: 20.0, MetricDiskPercent: 30.0}
	assert.Equal(t, runnable.StateOK, job.ValidateState(metrics, opts))

	metrics[MetricMemoryPercent] = 85.0
	assert.Equal(t, runnable.StateWarning, job.ValidateState(metrics, opts))

	metrics[MetricDiskPercent] = 99.0
	assert.Equal(t, runnable.StateCritical, job.ValidateState(metrics, opts))
}

func TestPrepare(t *testing.T) {
	job := New(logger.Discard())
	assert.NoError(t, job.Prepare(runnable.UserOptions{"cpu_warning": 50}))
	assert.Error(t, job.Prepare(runnable.UserOptions{"unit": "furlong"}))
	assert.Error(t, job.Prepare(runnable.UserOptions{"conversions": []any{"bad"}}))
	assert.Error(t, job.Prepare(runnable.UserOptions{"disk_direction": "left"}))
}

func TestHostSampler(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("host sampling is exercised on unix hosts")
	}
	job := New(logger.Discard())
	metrics, err := job.Metrics(runnable.UserOptions{"sample": "50ms"})
	require.NoError(t, err)
	assert.Greater(t, metrics[MetricMemoryTotal].(float64), 0.0)
	assert.Greater(t, metrics[MetricDiskTotal].(float64), 0.0)
	assert.Equal(t, runnable.StateOK, job.ValidateState(metrics, runnable.UserOptions{}))
}
