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

package runnable

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cast"
)

// Recognized option keys.
const (
	KeyEvent   = "event"
	KeyEvery   = "every"
	KeyFirstIn = "first_in"
)

// DefaultEvery is the tick period used when the caller does not supply one.
const DefaultEvery = "30s"

// Options is the flat mapping a caller configures a job with.
type Options map[string]any

// UserOptions is Options without the scheduling keys. It is handed to every
// tick and must be treated as read-only.
type UserOptions map[string]any

// Settings is the typed result of resolving Options.
type Settings struct {
	Event   string
	Every   time.Duration
	FirstIn time.Duration
	User    UserOptions
}

// DefaultOptions returns a fresh copy of the scheduling defaults.
func DefaultOptions() Options {
	return Options{
		KeyEvery:   DefaultEvery,
		KeyFirstIn: 0,
	}
}

// MergeOptions returns a new mapping holding base overlaid with override.
// Neither argument is modified; nested maps and slices are copied too.
func MergeOptions(base, override Options) Options {
	merged := make(Options, len(base)+len(override))
	for k, v := range base {
		merged[k] = cloneValue(v)
	}
	for k, v := range override {
		merged[k] = cloneValue(v)
	}
	return merged
}

// Resolve validates options, merges them over DefaultOptions and splits the
// scheduling keys from the job-specific ones.
func Resolve(options Options) (*Settings, error) {
	event, err := eventName(options)
	if err != nil {
		return nil, err
	}

	merged := MergeOptions(DefaultOptions(), options)

	everyValue := merged[KeyEvery]
	if everyValue == nil {
		everyValue = DefaultEvery
	}
	every, err := ParseInterval(everyValue)
	if err != nil {
		return nil, &ConfigurationError{Key: KeyEvery, Err: err}
	}
	if every <= 0 {
		return nil, &ConfigurationError{Key: KeyEvery, Err: fmt.Errorf("interval must be positive, got %v", everyValue)}
	}

	firstIn, err := ParseInterval(merged[KeyFirstIn])
	if err != nil {
		return nil, &ConfigurationError{Key: KeyFirstIn, Err: err}
	}
	if firstIn < 0 {
		return nil, &ConfigurationError{Key: KeyFirstIn, Err: fmt.Errorf("delay must not be negative, got %v", merged[KeyFirstIn])}
	}

	delete(merged, KeyEvent)
	delete(merged, KeyEvery)
	delete(merged, KeyFirstIn)

	return &Settings{
		Event:   event,
		Every:   every,
		FirstIn: firstIn,
		User:    UserOptions(merged),
	}, nil
}

func eventName(options Options) (string, error) {
	raw, ok := options[KeyEvent]
	if !ok || raw == nil {
		return "", &ConfigurationError{Key: KeyEvent, Err: ErrEventRequired}
	}
	event, ok := raw.(string)
	if !ok {
		return "", &ConfigurationError{Key: KeyEvent, Err: fmt.Errorf("%w: must be a string, got %T", ErrEventRequired, raw)}
	}
	if strings.TrimSpace(event) == "" {
		return "", &ConfigurationError{Key: KeyEvent, Err: ErrEventRequired}
	}
	return event, nil
}

var intervalPart = regexp.MustCompile(`(\d+(?:\.\d+)?)(ms|s|m|h|d|w)`)

// ParseInterval converts an option value into a duration. It accepts
// time.Duration, numbers (seconds), numeric strings (seconds), Go duration
// strings and the day/week suffixes "d" and "w" ("1d12h", "2w"). nil is zero.
func ParseInterval(value any) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		return parseIntervalString(v)
	case bool:
		return 0, fmt.Errorf("invalid interval %v: not a duration", v)
	}

	seconds, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %v: %w", value, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func parseIntervalString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty interval")
	}
	if seconds, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(seconds * float64(time.Second)), nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	matches := intervalPart.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return 0, fmt.Errorf("invalid interval %q", s)
	}

	var total time.Duration
	next := 0
	for _, m := range matches {
		if m[0] != next {
			return 0, fmt.Errorf("invalid interval %q", s)
		}
		next = m[1]

		n, err := strconv.ParseFloat(s[m[2]:m[3]], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid interval %q: %w", s, err)
		}
		total += time.Duration(n * float64(unitOf(s[m[4]:m[5]])))
	}
	if next != len(s) {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	return total, nil
}

func unitOf(suffix string) time.Duration {
	switch suffix {
	case "ms":
		return time.Millisecond
	case "s":
		return time.Second
	case "m":
		return time.Minute
	case "h":
		return time.Hour
	case "d":
		return 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Clone returns a deep copy of the options.
func (o UserOptions) Clone() UserOptions {
	out := make(UserOptions, len(o))
	for k, v := range o {
		out[k] = cloneValue(v)
	}
	return out
}

// Has reports whether key is present with a non-nil value.
func (o UserOptions) Has(key string) bool {
	v, ok := o[key]
	return ok && v != nil
}

func (o UserOptions) String(key, def string) string {
	if !o.Has(key) {
		return def
	}
	s, err := cast.ToStringE(o[key])
	if err != nil {
		return def
	}
	return s
}

func (o UserOptions) Int(key string, def int) int {
	if !o.Has(key) {
		return def
	}
	i, err := cast.ToIntE(o[key])
	if err != nil {
		return def
	}
	return i
}

func (o UserOptions) Float(key string, def float64) float64 {
	if !o.Has(key) {
		return def
	}
	f, err := cast.ToFloat64E(o[key])
	if err != nil {
		return def
	}
	return f
}

func (o UserOptions) Bool(key string, def bool) bool {
	if !o.Has(key) {
		return def
	}
	b, err := cast.ToBoolE(o[key])
	if err != nil {
		return def
	}
	return b
}

// Duration reads key with ParseInterval semantics.
func (o UserOptions) Duration(key string, def time.Duration) time.Duration {
	if !o.Has(key) {
		return def
	}
	d, err := ParseInterval(o[key])
	if err != nil {
		return def
	}
	return d
}

// Decode fills out (a pointer to a struct tagged with `mapstructure`) from the
// options. Values are weakly typed and durations follow ParseInterval.
func (o UserOptions) Decode(out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       durationHook,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]any(o))
}

var durationType = reflect.TypeOf(time.Duration(0))

func durationHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	return ParseInterval(data)
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, item := range typed {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
