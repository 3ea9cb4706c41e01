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

package unit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConversion(t *testing.T) {
	c, err := ParseConversion("memory_used=B->GB")
	require.NoError(t, err)
	assert.Equal(t, &Conversion{Field: "memory_used", From: "B", To: "GB"}, c)

	c, err = ParseConversion(" uptime = s -> h ")
	require.NoError(t, err)
	assert.Equal(t, &Conversion{Field: "uptime", From: "s", To: "h"}, c)

	for _, bad := range []string{"memory", "memory=B", "=B->GB", "a=b=c->d", "m=B->MB->GB", "m= ->GB"} {
		_, err := ParseConversion(bad)
		assert.Error(t, err, bad)
	}
}

func TestConvert(t *testing.T) {
	cases := []struct {
		value    float64
		from, to string
		want     float64
	}{
		{1073741824, "B", "GB", 1},
		{1, "GiB", "MB", 1024},
		{2048, "kb", "MiB", 2},
		{5, "Gbit", "Mbit", 5000},
		{1500, "ms", "s", 1.5},
		{2, "h", "min", 120},
		{1, "d", "h", 24},
		{42, "B", "b", 42},
	}
	for _, tc := range cases {
		got, err := Convert(tc.value, tc.from, tc.to)
		require.NoError(t, err, "%s->%s", tc.from, tc.to)
		assert.InDelta(t, tc.want, got, 1e-9, "%s->%s", tc.from, tc.to)
	}
}

func TestConvertMismatchedFamilies(t *testing.T) {
	for _, pair := range [][2]string{{"B", "s"}, {"MB", "Mbit"}, {"parsec", "m"}, {"ms", "KB"}} {
		_, err := Convert(1, pair[0], pair[1])
		assert.Error(t, err, pair)
	}
}

func TestConversionApply(t *testing.T) {
	c, err := ParseConversion("disk_used=MB->GB")
	require.NoError(t, err)
	got, err := c.Apply(512)
	require.NoError(t, err)
	assert.Equal(t, 0.5, got)
}
