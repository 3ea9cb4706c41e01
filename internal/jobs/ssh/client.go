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
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

// Endpoint is one SSH hop.
type Endpoint struct {
	Host       string `mapstructure:"host"`
	Port       string `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	PrivateKey string `mapstructure:"private_key"`
}

func (e Endpoint) address() string {
	port := e.Port
	if port == "" {
		port = "22"
	}
	return net.JoinHostPort(e.Host, port)
}

// ClientConfig builds the client configuration for e. Private keys win
// over passwords.
func ClientConfig(e Endpoint, timeout time.Duration) (*ssh.ClientConfig, error) {
	cfg := &ssh.ClientConfig{
		User:            e.Username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}
	switch {
	case strings.TrimSpace(e.PrivateKey) != "":
		signer, err := ParsePrivateKey(e.PrivateKey)
		if err != nil {
			return nil, err
		}
		cfg.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	case e.Password != "":
		cfg.Auth = []ssh.AuthMethod{ssh.Password(e.Password)}
	default:
		return nil, fmt.Errorf("either password or private key must be provided for %s", e.address())
	}
	return cfg, nil
}

// ParsePrivateKey accepts PKCS#1, PKCS#8, SEC 1 and OpenSSH PEM keys.
func ParsePrivateKey(key string) (ssh.Signer, error) {
	block, _ := pem.Decode([]byte(key))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block from private key")
	}

	var (
		raw any
		err error
	)
	switch block.Type {
	case "RSA PRIVATE KEY":
		raw, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		raw, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		raw, err = x509.ParseECPrivateKey(block.Bytes)
	case "OPENSSH PRIVATE KEY":
		raw, err = ssh.ParseRawPrivateKey([]byte(key))
	default:
		return nil, fmt.Errorf("unsupported private key type: %s", block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	signer, err := ssh.NewSignerFromKey(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer from private key: %w", err)
	}
	return signer, nil
}

// Dial connects to target, through proxy when it has a host.
func Dial(ctx context.Context, target Endpoint, proxy *Endpoint, timeout time.Duration, log logger.Logger) (*ssh.Client, error) {
	targetCfg, err := ClientConfig(target, timeout)
	if err != nil {
		return nil, err
	}
	if proxy == nil || proxy.Host == "" {
		return dialDirect(ctx, target.address(), targetCfg)
	}

	proxyCfg, err := ClientConfig(*proxy, timeout)
	if err != nil {
		return nil, fmt.Errorf("proxy: %w", err)
	}
	log.V(1).Info("dialing through proxy", "proxy", proxy.address(), "target", target.address())

	proxyClient, err := dialDirect(ctx, proxy.address(), proxyCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to proxy %s: %w", proxy.address(), err)
	}
	conn, err := proxyClient.Dial("tcp", target.address())
	if err != nil {
		proxyClient.Close()
		return nil, fmt.Errorf("failed to dial %s via proxy: %w", target.address(), err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, target.address(), targetCfg)
	if err != nil {
		conn.Close()
		proxyClient.Close()
		return nil, fmt.Errorf("failed to establish SSH connection to %s: %w", target.address(), err)
	}
	client := ssh.NewClient(c, chans, reqs)
	go func() {
		_ = client.Wait()
		proxyClient.Close()
	}()
	return client, nil
}

func dialDirect(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}
