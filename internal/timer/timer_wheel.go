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

package timer

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

const (
	// DefaultWheelSize default wheel size (512 slots)
	DefaultWheelSize = 512
	// DefaultTickDuration default tick duration
	DefaultTickDuration = 100 * time.Millisecond
	// DefaultMaxConcurrent bounds the tasks running at the same time
	DefaultMaxConcurrent = 64
)

// Config tunes a TimerWheel. Zero fields take the defaults.
type Config struct {
	TickDuration  time.Duration
	WheelSize     int
	MaxConcurrent int
}

// TimerWheel is a hashed wheel timer. Every tick it expires the bucket of the
// current slot and runs the due tasks on their own goroutines.
type TimerWheel struct {
	tickDuration time.Duration
	wheelSize    int
	wheel        []*bucket
	startTime    time.Time
	workerPool   chan struct{}

	// lastTick is the last tick whose bucket has been expired
	mutex    sync.Mutex
	lastTick int64

	started atomic.Bool
	stopped atomic.Bool
	// running is only added to under mutex while ctx is live
	running sync.WaitGroup
	dropped atomic.Int64

	logger logger.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// bucket is a slot in the timer wheel
type bucket struct {
	timeouts *list.List
	mutex    sync.Mutex
}

func newBucket() *bucket {
	return &bucket{
		timeouts: list.New(),
	}
}

func (b *bucket) addTimeout(timeout *Timeout) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if timeout.IsCancelled() {
		return
	}

	b.timeouts.PushBack(timeout)
}

// expire removes and returns the timeouts due at or before tick. Cancelled
// timeouts are dropped on the way.
func (b *bucket) expire(tick int64) []*Timeout {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	var expired []*Timeout
	for e := b.timeouts.Front(); e != nil; {
		timeout := e.Value.(*Timeout)
		next := e.Next()

		if timeout.IsCancelled() {
			b.timeouts.Remove(e)
		} else if timeout.tick <= tick {
			expired = append(expired, timeout)
			b.timeouts.Remove(e)
		}

		e = next
	}

	return expired
}

func (b *bucket) len() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.timeouts.Len()
}

func NewTimerWheel(log logger.Logger) *TimerWheel {
	return NewTimerWheelWithConfig(Config{}, log)
}

func NewTimerWheelWithConfig(cfg Config, log logger.Logger) *TimerWheel {
	if cfg.TickDuration <= 0 {
		cfg.TickDuration = DefaultTickDuration
	}
	if cfg.WheelSize <= 0 {
		cfg.WheelSize = DefaultWheelSize
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}

	ctx, cancel := context.WithCancel(context.Background())

	tw := &TimerWheel{
		tickDuration: cfg.TickDuration,
		wheelSize:    cfg.WheelSize,
		wheel:        make([]*bucket, cfg.WheelSize),
		startTime:    time.Now(),
		workerPool:   make(chan struct{}, cfg.MaxConcurrent),
		logger:       log.WithName("scheduler").WithValues("kind", "wheel"),
		ctx:          ctx,
		cancel:       cancel,
	}

	for i := 0; i < cfg.WheelSize; i++ {
		tw.wheel[i] = newBucket()
	}

	return tw
}

func (tw *TimerWheel) Start() error {
	if tw.stopped.Load() {
		return fmt.Errorf("timer wheel is stopped")
	}
	if !tw.started.CompareAndSwap(false, true) {
		return nil
	}

	tw.logger.Info("starting timer wheel", "tickDuration", tw.tickDuration, "wheelSize", tw.wheelSize)

	go tw.run()

	return nil
}

// Stop halts the wheel and waits for running tasks to return.
func (tw *TimerWheel) Stop() error {
	if !tw.stopped.CompareAndSwap(false, true) {
		return nil
	}

	tw.logger.Info("stopping timer wheel")
	tw.mutex.Lock()
	tw.cancel()
	tw.mutex.Unlock()
	tw.running.Wait()

	return nil
}

// NewTimeout schedules task to run after delay. It returns nil once the
// wheel is stopped.
func (tw *TimerWheel) NewTimeout(task Task, delay time.Duration) *Timeout {
	return tw.NewTimeoutAt(task, time.Now().Add(delay))
}

// NewTimeoutAt schedules task for deadline. A deadline in the past fires on
// the next tick.
func (tw *TimerWheel) NewTimeoutAt(task Task, deadline time.Time) *Timeout {
	if tw.stopped.Load() {
		tw.logger.Info("timer wheel is stopped, cannot schedule new timeout")
		return nil
	}

	timeout := newTimeout(task, deadline)

	tw.mutex.Lock()
	defer tw.mutex.Unlock()

	tick := tw.tickOf(deadline)
	if tick <= tw.lastTick {
		tick = tw.lastTick + 1
	}
	timeout.tick = tick

	tw.wheel[tick%int64(tw.wheelSize)].addTimeout(timeout)

	tw.logger.V(1).Info("scheduled new timeout",
		"deadline", deadline,
		"tick", tick)

	return timeout
}

func (tw *TimerWheel) run() {
	defer tw.logger.Info("timer wheel stopped")

	ticker := time.NewTicker(tw.tickDuration)
	defer ticker.Stop()

	for {
		select {
		case <-tw.ctx.Done():
			return
		case now := <-ticker.C:
			tw.advance(now)
		}
	}
}

// advance expires every bucket between the last processed tick and now, so a
// late ticker does not skip slots.
func (tw *TimerWheel) advance(now time.Time) {
	current := int64(now.Sub(tw.startTime) / tw.tickDuration)

	tw.mutex.Lock()
	from := tw.lastTick + 1
	if current < from {
		tw.mutex.Unlock()
		return
	}
	if current-from >= int64(tw.wheelSize) {
		from = current - int64(tw.wheelSize) + 1
	}
	tw.lastTick = current
	tw.mutex.Unlock()

	for tick := from; tick <= current; tick++ {
		for _, timeout := range tw.wheel[tick%int64(tw.wheelSize)].expire(current) {
			tw.execute(timeout)
		}
	}
}

func (tw *TimerWheel) execute(timeout *Timeout) {
	if timeout.IsCancelled() || tw.ctx.Err() != nil {
		return
	}

	// re-arm before the pool check so a dropped run keeps its successor
	if r, ok := timeout.Task().(Rearmer); ok {
		r.Rearm(timeout)
	}

	tw.mutex.Lock()
	if tw.ctx.Err() != nil {
		tw.mutex.Unlock()
		return
	}
	select {
	case tw.workerPool <- struct{}{}:
		tw.running.Add(1)
		tw.mutex.Unlock()
	default:
		tw.mutex.Unlock()
		tw.dropped.Add(1)
		tw.logger.Info("worker pool is full, dropping timeout task", "deadline", timeout.Deadline())
		return
	}

	go func() {
		defer func() {
			<-tw.workerPool
			tw.running.Done()
			if r := recover(); r != nil {
				tw.logger.Info("panic in timeout execution", "error", r)
			}
		}()

		if err := timeout.Task().Run(timeout); err != nil {
			tw.logger.Error(err, "error executing timeout task")
		}
	}()
}

// tickOf rounds deadline up to the tick that covers it.
func (tw *TimerWheel) tickOf(deadline time.Time) int64 {
	elapsed := deadline.Sub(tw.startTime)
	tick := int64(elapsed / tw.tickDuration)
	if elapsed%tw.tickDuration != 0 {
		tick++
	}
	return tick
}

func (tw *TimerWheel) IsStarted() bool {
	return tw.started.Load()
}

func (tw *TimerWheel) IsStopped() bool {
	return tw.stopped.Load()
}

func (tw *TimerWheel) Stats() TimerWheelStats {
	tw.mutex.Lock()
	current := tw.lastTick
	tw.mutex.Unlock()

	stats := TimerWheelStats{
		WheelSize:    tw.wheelSize,
		TickDuration: tw.tickDuration,
		CurrentTick:  current,
		StartTime:    tw.startTime,
		Running:      len(tw.workerPool),
		Dropped:      tw.dropped.Load(),
	}

	for _, b := range tw.wheel {
		stats.PendingTimeouts += b.len()
	}

	return stats
}

// TimerWheelStats contains statistics about the timer wheel
type TimerWheelStats struct {
	WheelSize       int           `json:"wheelSize"`
	TickDuration    time.Duration `json:"tickDuration"`
	CurrentTick     int64         `json:"currentTick"`
	StartTime       time.Time     `json:"startTime"`
	PendingTimeouts int           `json:"pendingTimeouts"`
	Running         int           `json:"running"`

	// Dropped counts expiries skipped because the worker pool was full
	Dropped int64 `json:"dropped"`
}
