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

package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

type commandHandler func(cmd string) (string, uint32)

func startServer(t *testing.T, handle commandHandler) (string, string) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pw []byte) (*ssh.Permissions, error) {
			if c.User() == "dash" && string(pw) == "secret" {
				return nil, nil
			}
			return nil, fmt.Errorf("denied")
		},
	}
	cfg.AddHostKey(signer)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = lis.Close() })

	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, cfg, handle)
		}
	}()

	host, port, err := net.SplitHostPort(lis.Addr().String())
	require.NoError(t, err)
	return host, port
}

func serveConn(conn net.Conn, cfg *ssh.ServerConfig, handle commandHandler) {
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		_ = conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "unsupported")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer ch.Close()
			for req := range requests {
				if req.Type != "exec" {
					_ = req.Reply(false, nil)
					continue
				}
				var payload struct{ Command string }
				_ = ssh.Unmarshal(req.Payload, &payload)
				_ = req.Reply(true, nil)

				out, status := handle(payload.Command)
				_, _ = ch.Write([]byte(out))
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
				return
			}
		}()
	}
}

func TestMetricsRunsCommand(t *testing.T) {
	host, port := startServer(t, func(cmd string) (string, uint32) {
		if cmd == "cat /proc/loadavg" {
			return "0.42 0.30 0.25 1/123 4567\n", 0
		}
		return "unknown command", 127
	})

	job := New(logger.Discard())
	opts := runnable.UserOptions{
		"host": host, "port": port, "username": "dash", "password": "secret",
		"command": "cat /proc/loadavg", "warning": 0.4, "critical": 2,
	}
	require.NoError(t, job.Prepare(opts))
	defer job.Close()

	metrics, err := job.Metrics(opts)
	require.NoError(t, err)
	assert.Equal(t, 0.42, metrics[MetricValue])
	assert.Equal(t, 0, metrics[MetricExitStatus])
	assert.Equal(t, "0.42 0.30 0.25 1/123 4567", metrics[MetricOutput])
	assert.Equal(t, runnable.StateWarning, job.ValidateState(metrics, opts))

	opts["command"] = "nope"
	metrics, err = job.Metrics(opts)
	require.NoError(t, err)
	assert.Equal(t, 127, metrics[MetricExitStatus])
	assert.NotContains(t, metrics, MetricValue)
	assert.Equal(t, runnable.StateCritical, job.ValidateState(metrics, opts))
}

func TestMetricsReusesConnection(t *testing.T) {
	host, port := startServer(t, func(string) (string, uint32) { return "7", 0 })

	job := New(logger.Discard())
	var dials atomic.Int32
	dial := job.dial
	job.dial = func(ctx context.Context, o *Options) (*ssh.Client, error) {
		dials.Add(1)
		return dial(ctx, o)
	}

	opts := runnable.UserOptions{"host": host, "port": port, "username": "dash", "password": "secret", "command": "x"}
	for i := 0; i < 3; i++ {
		metrics, err := job.Metrics(opts)
		require.NoError(t, err)
		assert.Equal(t, 7.0, metrics[MetricValue])
	}
	assert.Equal(t, int32(1), dials.Load())

	require.NoError(t, job.Close())
	_, err := job.Metrics(opts)
	require.NoError(t, err)
	assert.Equal(t, int32(2), dials.Load())
	require.NoError(t, job.Close())
}

func TestMetricsAuthFailure(t *testing.T) {
	host, port := startServer(t, func(string) (string, uint32) { return "", 0 })
	job := New(logger.Discard())
	_, err := job.Metrics(runnable.UserOptions{"host": host, "port": port, "username": "dash", "password": "wrong", "command": "x", "timeout": "2s"})
	assert.Error(t, err)
}

func TestPrepareErrors(t *testing.T) {
	job := New(logger.Discard())
	assert.ErrorContains(t, job.Prepare(runnable.UserOptions{"host": "h"}), `"command"`)
	assert.ErrorContains(t, job.Prepare(runnable.UserOptions{"host": "h", "command": "c", "username": "u"}), "password or private key")
	assert.Error(t, job.Prepare(runnable.UserOptions{"host": "h", "command": "c", "password": "p", "warning": "high"}))
}

func TestParsePrivateKey(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	key := string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))

	signer, err := ParsePrivateKey(key)
	require.NoError(t, err)
	assert.Equal(t, ssh.KeyAlgoED25519, signer.PublicKey().Type())

	cfg, err := ClientConfig(Endpoint{Host: "h", Username: "u", PrivateKey: key, Password: "ignored"}, 0)
	require.NoError(t, err)
	assert.Len(t, cfg.Auth, 1)

	_, err = ParsePrivateKey("not a key")
	assert.Error(t, err)
	_, err = ParsePrivateKey(string(pem.EncodeToMemory(&pem.Block{Type: "DSA PRIVATE KEY", Bytes: []byte{1}})))
	assert.ErrorContains(t, err, "unsupported")
}

func TestFirstNumber(t *testing.T) {
	cases := map[string]float64{
		"42":                 42,
		"load: 1.5 2.0":      1.5,
		"temp=-3.25C":        -3.25,
		"Filesystem 87% /":   87,
		"value 1e3 requests": 1000,
	}
	for in, want := range cases {
		got, ok := FirstNumber(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := FirstNumber("no digits")
	assert.False(t, ok)
}

func TestParseOptionsProxy(t *testing.T) {
	o, err := parseOptions(runnable.UserOptions{
		"host": "db1", "port": 2222, "command": "uptime", "password": "p",
		"proxy": map[string]any{"host": "bastion", "username": "jump", "password": "j"},
	})
	require.NoError(t, err)
	assert.Equal(t, "db1:2222", o.address())
	require.NotNil(t, o.Proxy)
	assert.Equal(t, "bastion:22", o.Proxy.address())
	assert.Equal(t, defaultTimeout, o.Timeout)
}
