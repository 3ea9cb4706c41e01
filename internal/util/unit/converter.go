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

// Package unit converts readings between byte, bit and time units.
package unit

import (
	"fmt"
	"strings"
)

// Conversion rewrites one metric from one unit to another.
type Conversion struct {
	Field string
	From  string
	To    string
}

// ParseConversion reads "field=from->to", e.g. "memory_used=B->GB".
func ParseConversion(s string) (*Conversion, error) {
	field, units, ok := strings.Cut(s, "=")
	if !ok || strings.Contains(units, "=") {
		return nil, fmt.Errorf("invalid unit conversion %q, want field=from->to", s)
	}
	from, to, ok := strings.Cut(units, "->")
	if !ok || strings.Contains(to, "->") {
		return nil, fmt.Errorf("invalid unit conversion %q, want field=from->to", s)
	}
	c := &Conversion{
		Field: strings.TrimSpace(field),
		From:  strings.TrimSpace(from),
		To:    strings.TrimSpace(to),
	}
	if c.Field == "" || c.From == "" || c.To == "" {
		return nil, fmt.Errorf("invalid unit conversion %q, want field=from->to", s)
	}
	return c, nil
}

// Apply converts value with the conversion's units.
func (c *Conversion) Apply(value float64) (float64, error) {
	return Convert(value, c.From, c.To)
}

const (
	kib = 1024
	kb  = 1000
)

// Byte units are binary multiples; "KB" and "KiB" both mean 1024 bytes.
var byteUnits = map[string]float64{
	"B":   1,
	"KB":  kib,
	"MB":  kib * kib,
	"GB":  kib * kib * kib,
	"TB":  kib * kib * kib * kib,
	"PB":  kib * kib * kib * kib * kib,
	"KIB": kib,
	"MIB": kib * kib,
	"GIB": kib * kib * kib,
	"TIB": kib * kib * kib * kib,
	"PIB": kib * kib * kib * kib * kib,
}

// Bit units are decimal multiples and must be spelled with "bit".
var bitUnits = map[string]float64{
	"BIT":  1,
	"KBIT": kb,
	"MBIT": kb * kb,
	"GBIT": kb * kb * kb,
	"TBIT": kb * kb * kb * kb,
}

var timeUnits = map[string]float64{
	"NS":  1,
	"US":  1e3,
	"MS":  1e6,
	"S":   1e9,
	"MIN": 60e9,
	"H":   3600e9,
	"D":   86400e9,
}

// Convert converts value between two units of the same family. Unit names
// are case-insensitive.
func Convert(value float64, from, to string) (float64, error) {
	f, t := strings.ToUpper(from), strings.ToUpper(to)
	if f == t {
		return value, nil
	}
	for _, family := range []map[string]float64{byteUnits, bitUnits, timeUnits} {
		fromFactor, ok := family[f]
		if !ok {
			continue
		}
		toFactor, ok := family[t]
		if !ok {
			break
		}
		return value * fromFactor / toFactor, nil
	}
	return 0, fmt.Errorf("unsupported unit conversion from %s to %s", from, to)
}
