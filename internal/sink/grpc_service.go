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
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dashing-contrib/dashing-jobs/internal/sink/arrow"
)

const (
	ServiceName          = "dashing.v1.EventService"
	MethodSendEvent      = "/dashing.v1.EventService/SendEvent"
	MethodSendEventArrow = "/dashing.v1.EventService/SendEventArrow"

	HeaderEvent   = "x-dashing-event"
	HeaderEventID = "x-dashing-event-id"

	fieldEvent   = "event"
	fieldEventID = "event_id"
	fieldPayload = "payload"
)

// Event is what an EventService receives, whatever the wire encoding.
type Event struct {
	Name    string
	ID      string
	Time    time.Time
	Payload map[string]any
}

// EventHandler consumes events arriving at an EventService.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *Event) error
}

// RegisterEventService exposes h as dashing.v1.EventService on s.
func RegisterEventService(s grpc.ServiceRegistrar, h EventHandler) {
	s.RegisterService(&eventServiceDesc, h)
}

var eventServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EventHandler)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SendEvent", Handler: sendEventHandler},
		{MethodName: "SendEventArrow", Handler: sendEventArrowHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dashing/v1/event.proto",
}

func sendEventHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req any) (any, error) {
		event, err := eventFromStruct(req.(*structpb.Struct))
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		event.Time = time.Now()
		return dispatch(ctx, srv, event)
	}
	if interceptor == nil {
		return handle(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodSendEvent}, handle)
}

func sendEventArrowHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	handle := func(ctx context.Context, req any) (any, error) {
		decoded, err := arrow.Decode(req.(*wrapperspb.BytesValue).GetValue())
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		event := &Event{Name: decoded.Event, Time: decoded.Time, Payload: decoded.Payload}
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(HeaderEventID); len(ids) > 0 {
				event.ID = ids[0]
			}
		}
		return dispatch(ctx, srv, event)
	}
	if interceptor == nil {
		return handle(ctx, in)
	}
	return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodSendEventArrow}, handle)
}

func dispatch(ctx context.Context, srv any, event *Event) (any, error) {
	if event.Name == "" {
		return nil, status.Error(codes.InvalidArgument, "event name is empty")
	}
	if err := srv.(EventHandler).HandleEvent(ctx, event); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

func eventFromStruct(st *structpb.Struct) (*Event, error) {
	fields := st.GetFields()
	event := &Event{
		Name: fields[fieldEvent].GetStringValue(),
		ID:   fields[fieldEventID].GetStringValue(),
	}
	payload := fields[fieldPayload].GetStructValue()
	if payload == nil {
		return nil, fmt.Errorf("%s is missing or not an object", fieldPayload)
	}
	event.Payload = payload.AsMap()
	return event, nil
}
