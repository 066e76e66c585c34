// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics is the instrumentation seam of the engine. Hot paths call
// through the MetricHandle interface; the OTel implementation and the noop
// implementation are interchangeable at wiring time.
package metrics

import "context"

// PoolMetricHandle covers the thread pool's counters. The sizing gauges are
// not part of it; they poll a PoolSizes.
type PoolMetricHandle interface {
	TasksCompletedCount(ctx context.Context, inc int64)
	TasksRejectedCount(ctx context.Context, inc int64)
	TaskPanicsCount(ctx context.Context, inc int64)
}

// MetricHandle is what engine components accept.
type MetricHandle interface {
	PoolMetricHandle
}

// PoolSizes is polled by gauge instruments on collection.
type PoolSizes interface {
	Capacity() int64
	TotalSize() int64
	IdleSize() int64
	PendingSize() int64
}
