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

package sink

import (
	"bytes"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
	"github.com/dashing-contrib/dashing-jobs/internal/types/config"
	jobserr "github.com/dashing-contrib/dashing-jobs/internal/types/err"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

type stubSink struct {
	err    error
	events []string
	closed bool
}

func (s *stubSink) SendEvent(name string, _ runnable.Payload) error {
	s.events = append(s.events, name)
	return s.err
}

func (s *stubSink) Close() error {
	s.closed = true
	return nil
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSink(logger.NewLogger(&buf, nil))

	require.NoError(t, s.SendEvent("temperature", runnable.Payload{"temperature": 72, "state": "warning"}))
	out := buf.String()
	assert.Contains(t, out, `"event": "temperature"`)
	assert.Contains(t, out, `"temperature": 72`)
	assert.Contains(t, out, `"state": "warning"`)
	assert.NoError(t, s.Close())
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	first := &stubSink{err: boom}
	second := &stubSink{}
	m := NewMultiSink(first, second)

	err := m.SendEvent("queue", runnable.Payload{"state": "ok"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"queue"}, first.events)
	assert.Equal(t, []string{"queue"}, second.events, "a failing sink must not stop the others")

	require.NoError(t, m.Close())
	assert.True(t, first.closed)
	assert.True(t, second.closed)
}

func TestNewFromConfig(t *testing.T) {
	log := logger.Discard()

	_, err := NewFromConfig(nil, prometheus.NewRegistry(), log)
	assert.ErrorIs(t, err, jobserr.NoSinksConfigured)

	single, err := NewFromConfig([]config.SinkConfig{{Type: "log"}}, prometheus.NewRegistry(), log)
	require.NoError(t, err)
	assert.IsType(t, &LogSink{}, single)

	multi, err := NewFromConfig([]config.SinkConfig{
		{Type: "log"},
		{Type: "prometheus"},
		{Type: "dashboard", URL: "http://localhost:3030", AuthToken: "token"},
		{Type: "grpc", Address: "localhost:9090", Encoding: "arrow"},
	}, prometheus.NewRegistry(), log)
	require.NoError(t, err)
	require.IsType(t, MultiSink{}, multi)
	assert.Len(t, multi.(MultiSink), 4)
	assert.NoError(t, multi.Close())
}

func TestNewFromConfigErrors(t *testing.T) {
	log := logger.Discard()

	_, err := NewFromConfig([]config.SinkConfig{{Type: "carrier-pigeon"}}, prometheus.NewRegistry(), log)
	assert.ErrorIs(t, err, jobserr.UnknownSinkType)

	_, err = NewFromConfig([]config.SinkConfig{{Type: "log"}, {Type: "dashboard", URL: "::not a url"}}, prometheus.NewRegistry(), log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sinks[1]")

	_, err = New(config.SinkConfig{Type: "grpc"}, prometheus.NewRegistry(), log)
	assert.Error(t, err)

	_, err = New(config.SinkConfig{Type: "grpc", Address: "localhost:1", Encoding: "xml"}, prometheus.NewRegistry(), log)
	assert.Error(t, err)
}
