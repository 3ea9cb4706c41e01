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

// Package constants holds names shared by the bundled jobs, so widgets can
// bind to the same payload keys whatever produced them.
package constants

const (
	DefaultName = "dashing-jobs"
)

// Common metric keys
const (
	// MetricValue is the headline number of a job, the one thresholds compare
	MetricValue = "value"
	// MetricResponseTime is the round trip of a probe in milliseconds
	MetricResponseTime = "response_time_ms"
	// MetricError carries the failure message of a probe that still reports
	MetricError = "error"
)
