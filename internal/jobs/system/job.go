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

// Package system reports CPU, memory, disk and load of the local host.
package system

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
	"github.com/dashing-contrib/dashing-jobs/internal/jobs"
	"github.com/dashing-contrib/dashing-jobs/internal/jobs/threshold"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
	"github.com/dashing-contrib/dashing-jobs/internal/util/unit"
)

const (
	Type = "system"

	MetricCPUPercent    = "cpu_percent"
	MetricMemoryPercent = "memory_percent"
	MetricMemoryUsed    = "memory_used"
	MetricMemoryTotal   = "memory_total"
	MetricDiskPercent   = "disk_percent"
	MetricDiskUsed      = "disk_used"
	MetricDiskTotal     = "disk_total"
	MetricLoad1         = "load1"
	MetricLoad5         = "load5"
	MetricLoad15        = "load15"

	defaultPath   = "/"
	defaultUnit   = "GB"
	defaultSample = 200 * time.Millisecond
)

// classified lists the percent metrics and the option prefix of their limits.
var classified = map[string]string{
	MetricCPUPercent:    "cpu",
	MetricMemoryPercent: "memory",
	MetricDiskPercent:   "disk",
}

func init() {
	jobs.Register(Type, func(log logger.Logger) runnable.Job { return New(log) })
}

type Options struct {
	Path        string        `mapstructure:"path"`
	Unit        string        `mapstructure:"unit"`
	Sample      time.Duration `mapstructure:"sample"`
	Conversions []string      `mapstructure:"conversions"`
}

func parseOptions(opts runnable.UserOptions) (*Options, []*unit.Conversion, error) {
	o := &Options{}
	if err := opts.Decode(o); err != nil {
		return nil, nil, fmt.Errorf("invalid system options: %w", err)
	}
	if o.Path == "" {
		o.Path = defaultPath
	}
	if o.Unit == "" {
		o.Unit = defaultUnit
	}
	if o.Sample <= 0 {
		o.Sample = defaultSample
	}
	if _, err := unit.Convert(1, "B", o.Unit); err != nil {
		return nil, nil, fmt.Errorf("option %q: %w", "unit", err)
	}
	conversions := make([]*unit.Conversion, 0, len(o.Conversions))
	for _, s := range o.Conversions {
		c, err := unit.ParseConversion(s)
		if err != nil {
			return nil, nil, err
		}
		conversions = append(conversions, c)
	}
	return o, conversions, nil
}

// Reading is one raw sample of the host, sizes in bytes.
type Reading struct {
	CPUPercent    float64
	MemoryPercent float64
	MemoryUsed    uint64
	MemoryTotal   uint64
	DiskPercent   float64
	DiskUsed      uint64
	DiskTotal     uint64
	Load          *load.AvgStat
}

// Sampler takes a Reading.
type Sampler interface {
	Sample(ctx context.Context, path string, interval time.Duration) (*Reading, error)
}

type hostSampler struct{}

func (hostSampler) Sample(ctx context.Context, path string, interval time.Duration) (*Reading, error) {
	percents, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return nil, fmt.Errorf("cpu: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("memory: %w", err)
	}
	du, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("disk %s: %w", path, err)
	}

	r := &Reading{
		MemoryPercent: vm.UsedPercent,
		MemoryUsed:    vm.Used,
		MemoryTotal:   vm.Total,
		DiskPercent:   du.UsedPercent,
		DiskUsed:      du.Used,
		DiskTotal:     du.Total,
	}
	if len(percents) > 0 {
		r.CPUPercent = percents[0]
	}
	// load averages are not available everywhere
	if avg, err := load.AvgWithContext(ctx); err == nil {
		r.Load = avg
	}
	return r, nil
}

type Job struct {
	logger  logger.Logger
	sampler Sampler
}

func New(log logger.Logger) *Job {
	return &Job{logger: log, sampler: hostSampler{}}
}

func (j *Job) Prepare(opts runnable.UserOptions) error {
	if _, _, err := parseOptions(opts); err != nil {
		return err
	}
	for _, prefix := range classified {
		if _, err := threshold.FromOptions(opts, threshold.Prefixed(prefix)); err != nil {
			return err
		}
	}
	return nil
}

func (j *Job) Metrics(opts runnable.UserOptions) (runnable.MetricsResult, error) {
	o, conversions, err := parseOptions(opts)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.Sample+10*time.Second)
	defer cancel()

	r, err := j.sampler.Sample(ctx, o.Path, o.Sample)
	if err != nil {
		return nil, err
	}

	size := func(bytes uint64) float64 {
		v, _ := unit.Convert(float64(bytes), "B", o.Unit)
		return v
	}
	result := runnable.MetricsResult{
		MetricCPUPercent:    r.CPUPercent,
		MetricMemoryPercent: r.MemoryPercent,
		MetricMemoryUsed:    size(r.MemoryUsed),
		MetricMemoryTotal:   size(r.MemoryTotal),
		MetricDiskPercent:   r.DiskPercent,
		MetricDiskUsed:      size(r.DiskUsed),
		MetricDiskTotal:     size(r.DiskTotal),
		"unit":              strings.ToUpper(o.Unit),
	}
	if r.Load != nil {
		result[MetricLoad1] = r.Load.Load1
		result[MetricLoad5] = r.Load.Load5
		result[MetricLoad15] = r.Load.Load15
	}

	for _, c := range conversions {
		v, ok := result[c.Field].(float64)
		if !ok {
			return nil, fmt.Errorf("cannot convert %q: no such numeric metric", c.Field)
		}
		if result[c.Field], err = c.Apply(v); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// ValidateState reports the worst state among the percent metrics.
func (j *Job) ValidateState(metrics runnable.MetricsResult, opts runnable.UserOptions) runnable.State {
	states := make([]runnable.State, 0, len(classified))
	for metric, prefix := range classified {
		th, err := threshold.FromOptions(opts, threshold.Prefixed(prefix))
		if err != nil {
			return runnable.StateCritical
		}
		states = append(states, th.ClassifyMetric(metrics, metric))
	}
	return threshold.Worst(states...)
}
