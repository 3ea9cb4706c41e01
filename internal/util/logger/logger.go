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

package logger

import (
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dashing-contrib/dashing-jobs/internal/types/logger"
)

// Logger is a logr.Logger backed by zap that keeps enough state to derive
// per-component children with their own level.
type Logger struct {
	logr.Logger
	out           io.Writer
	logging       *logger.JobsLogging
	sugaredLogger *zap.SugaredLogger
}

func NewLogger(w io.Writer, logging *logger.JobsLogging) Logger {

	if logging == nil {
		logging = logger.DefaultJobsLogging()
	}
	zl := initZapLogger(w, logging, logging.Level[logger.LogComponentDefault])

	return Logger{
		Logger:        zapr.NewLogger(zl),
		out:           w,
		logging:       logging,
		sugaredLogger: zl.Sugar(),
	}
}

// FileLogger appends to file, creating it when missing.
func FileLogger(file string, logging *logger.JobsLogging) (Logger, error) {

	writer, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Logger{}, err
	}

	return NewLogger(writer, logging), nil
}

func DefaultLogger(out io.Writer, level logger.LogLevel) Logger {

	logging := logger.DefaultJobsLogging()
	zl := initZapLogger(out, logging, level)

	return Logger{
		Logger:        zapr.NewLogger(zl),
		out:           out,
		logging:       logging,
		sugaredLogger: zl.Sugar(),
	}
}

// Discard returns a Logger that drops everything. Handy in tests.
func Discard() Logger {

	return DefaultLogger(io.Discard, logger.LogLevelError)
}

// WithName returns a new Logger instance with the specified name element added
// to the Logger's name. The level configured for that component, if any,
// replaces the default level.
func (l Logger) WithName(name string) Logger {

	if l.logging == nil {
		l.logging = logger.DefaultJobsLogging()
	}
	if l.out == nil {
		l.out = io.Discard
	}

	logLevel := l.logging.Level[logger.LogComponent(name)]
	zl := initZapLogger(l.out, l.logging, logLevel)

	return Logger{
		Logger:        zapr.NewLogger(zl).WithName(name),
		logging:       l.logging,
		out:           l.out,
		sugaredLogger: zl.Sugar().Named(name),
	}
}

// WithValues returns a new Logger instance with additional key/value pairs.
func (l Logger) WithValues(keysAndValues ...interface{}) Logger {

	l.Logger = l.Logger.WithValues(keysAndValues...)
	return l
}

// Sugar exposes the printf-style zap API for the same sink and level.
func (l Logger) Sugar() *zap.SugaredLogger {

	return l.sugaredLogger
}

func initZapLogger(w io.Writer, logging *logger.JobsLogging, level logger.LogLevel) *zap.Logger {

	parseLevel, err := zapcore.ParseLevel(string(logging.EffectiveLevel(level)))
	if err != nil {
		// "trace" is not a zap level
		parseLevel = zapcore.DebugLevel
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()), zapcore.AddSync(w), zap.NewAtomicLevelAt(parseLevel))

	return zap.New(core, zap.AddCaller())
}
