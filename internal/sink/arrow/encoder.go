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

// Package arrow encodes event payloads as Arrow IPC streams holding a
// single record batch with one row.
package arrow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/ipc"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/spf13/cast"
)

const (
	MetadataEvent = "event"
	MetadataTime  = "time"
	MetadataType  = "type"

	TypeNumber = "number"
	TypeBool   = "bool"
	TypeString = "string"
	TypeJSON   = "json"
)

// Encoder turns payloads into Arrow IPC bytes. Every payload key becomes a
// nullable string column; the original value kind is kept in the field
// metadata so Decode can restore it.
type Encoder struct {
	mem memory.Allocator
}

func NewEncoder() *Encoder {
	return &Encoder{mem: memory.NewGoAllocator()}
}

// Encode writes payload as one record batch. Columns are sorted by key.
func (e *Encoder) Encode(event string, payload map[string]any, at time.Time) ([]byte, error) {
	record, err := e.record(event, payload, at)
	if err != nil {
		return nil, err
	}
	defer record.Release()

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, ipc.WithSchema(record.Schema()), ipc.WithAllocator(e.mem))
	if err := writer.Write(record); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("failed to write record batch: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close arrow writer: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *Encoder) record(event string, payload map[string]any, at time.Time) (arrow.Record, error) {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]arrow.Field, len(keys))
	values := make([]string, len(keys))
	for i, k := range keys {
		kind, text, err := encodeValue(payload[k])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		fields[i] = arrow.Field{
			Name:     k,
			Type:     arrow.BinaryTypes.String,
			Nullable: true,
			Metadata: arrow.MetadataFrom(map[string]string{MetadataType: kind}),
		}
		values[i] = text
	}

	schemaMetadata := arrow.MetadataFrom(map[string]string{
		MetadataEvent: event,
		MetadataTime:  strconv.FormatInt(at.UnixMilli(), 10),
	})
	schema := arrow.NewSchema(fields, &schemaMetadata)

	columns := make([]arrow.Array, len(fields))
	for i := range fields {
		b := array.NewStringBuilder(e.mem)
		if payload[keys[i]] == nil {
			b.AppendNull()
		} else {
			b.Append(values[i])
		}
		columns[i] = b.NewArray()
		b.Release()
	}
	defer func() {
		for _, c := range columns {
			c.Release()
		}
	}()

	return array.NewRecord(schema, columns, 1), nil
}

func encodeValue(v any) (kind, text string, err error) {
	switch val := v.(type) {
	case nil:
		return TypeString, "", nil
	case string:
		return TypeString, val, nil
	case bool:
		return TypeBool, strconv.FormatBool(val), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		f, err := cast.ToFloat64E(val)
		if err != nil {
			return "", "", err
		}
		return TypeNumber, strconv.FormatFloat(f, 'g', -1, 64), nil
	case time.Duration:
		return TypeString, val.String(), nil
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return "", "", err
		}
		return TypeJSON, string(data), nil
	}
}

// Decoded is the result of reading an encoded event back.
type Decoded struct {
	Event   string
	Time    time.Time
	Payload map[string]any
}

// Decode reads the first record batch of an IPC stream produced by Encode.
func Decode(data []byte) (*Decoded, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open arrow stream: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		return nil, fmt.Errorf("arrow stream holds no record batch")
	}
	record := reader.Record()
	schema := record.Schema()

	out := &Decoded{Payload: make(map[string]any, len(schema.Fields()))}
	md := schema.Metadata()
	if i := md.FindKey(MetadataEvent); i >= 0 {
		out.Event = md.Values()[i]
	}
	if i := md.FindKey(MetadataTime); i >= 0 {
		if ms, err := strconv.ParseInt(md.Values()[i], 10, 64); err == nil {
			out.Time = time.UnixMilli(ms)
		}
	}

	for i, field := range schema.Fields() {
		col, ok := record.Column(i).(*array.String)
		if !ok {
			return nil, fmt.Errorf("column %q is %s, want string", field.Name, record.Column(i).DataType())
		}
		if record.NumRows() == 0 || col.IsNull(0) {
			out.Payload[field.Name] = nil
			continue
		}
		kind := TypeString
		if j := field.Metadata.FindKey(MetadataType); j >= 0 {
			kind = field.Metadata.Values()[j]
		}
		value, err := decodeValue(kind, col.Value(0))
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name, err)
		}
		out.Payload[field.Name] = value
	}
	return out, nil
}

func decodeValue(kind, text string) (any, error) {
	switch kind {
	case TypeNumber:
		return strconv.ParseFloat(text, 64)
	case TypeBool:
		return strconv.ParseBool(text)
	case TypeJSON:
		var v any
		if err := json.Unmarshal([]byte(text), &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return text, nil
	}
}
