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
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dashing-contrib/dashing-jobs/internal/job/runnable"
	"github.com/dashing-contrib/dashing-jobs/internal/sink/arrow"
	jobserr "github.com/dashing-contrib/dashing-jobs/internal/types/err"
	"github.com/dashing-contrib/dashing-jobs/internal/util/logger"
)

const (
	EncodingStruct = "struct"
	EncodingArrow  = "arrow"

	defaultGRPCTimeout = 5 * time.Second
)

type GRPCConfig struct {
	Address string
	// Encoding is struct (default) or arrow.
	Encoding string
	Timeout  time.Duration
}

// GRPCSink forwards events to a remote EventService.
type GRPCSink struct {
	conn     grpc.ClientConnInterface
	closer   func() error
	encoding string
	timeout  time.Duration
	encoder  *arrow.Encoder
	logger   logger.Logger
}

// NewGRPCSink dials cfg.Address lazily; the first event opens the connection.
func NewGRPCSink(cfg GRPCConfig, log logger.Logger) (*GRPCSink, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("grpc sink address is empty")
	}
	conn, err := grpc.NewClient(cfg.Address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for %s: %w", cfg.Address, err)
	}
	s, err := NewGRPCSinkWithConn(conn, cfg, log)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	s.closer = conn.Close
	return s, nil
}

// NewGRPCSinkWithConn uses an existing connection, which the caller closes.
func NewGRPCSinkWithConn(conn grpc.ClientConnInterface, cfg GRPCConfig, log logger.Logger) (*GRPCSink, error) {
	encoding := strings.ToLower(cfg.Encoding)
	switch encoding {
	case "":
		encoding = EncodingStruct
	case EncodingStruct, EncodingArrow:
	default:
		return nil, fmt.Errorf("unknown grpc sink encoding %q", cfg.Encoding)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultGRPCTimeout
	}
	return &GRPCSink{
		conn:     conn,
		encoding: encoding,
		timeout:  cfg.Timeout,
		encoder:  arrow.NewEncoder(),
		logger:   log.WithName("sink").WithValues("sink", TypeGRPC, "encoding", encoding),
	}, nil
}

func (s *GRPCSink) SendEvent(name string, payload runnable.Payload) error {
	id := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, HeaderEvent, name, HeaderEventID, id)

	var (
		method string
		req    proto.Message
	)
	switch s.encoding {
	case EncodingArrow:
		data, err := s.encoder.Encode(name, payload, time.Now())
		if err != nil {
			return fmt.Errorf("%w: %w", jobserr.UnsupportedPayload, err)
		}
		method, req = MethodSendEventArrow, wrapperspb.Bytes(data)
	default:
		st, err := eventStruct(name, id, payload)
		if err != nil {
			return err
		}
		method, req = MethodSendEvent, st
	}

	if err := s.conn.Invoke(ctx, method, req, &emptypb.Empty{}); err != nil {
		return fmt.Errorf("%w: %s: %w", jobserr.SinkRequestFailed, method, err)
	}
	s.logger.V(1).Info("event sent", "event", name, "eventID", id)
	return nil
}

func (s *GRPCSink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

// eventStruct normalizes the payload through JSON so values structpb cannot
// hold directly (durations, typed slices) still travel.
func eventStruct(name, id string, payload runnable.Payload) (*structpb.Struct, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", jobserr.UnsupportedPayload, err)
	}
	var normalized map[string]any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return nil, fmt.Errorf("%w: %w", jobserr.UnsupportedPayload, err)
	}
	st, err := structpb.NewStruct(map[string]any{
		fieldEvent:   name,
		fieldEventID: id,
		fieldPayload: normalized,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", jobserr.UnsupportedPayload, err)
	}
	return st, nil
}
