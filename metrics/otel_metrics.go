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

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var poolMeter = otel.Meter("taskengine/pool")

// otelMetrics records engine metrics through the global OTel meter
// provider.
type otelMetrics struct {
	tasksCompleted metric.Int64Counter
	tasksRejected  metric.Int64Counter
	taskPanics     metric.Int64Counter
}

// NewOTelMetrics returns a MetricHandle backed by the global OTel meter
// provider.
func NewOTelMetrics() (MetricHandle, error) {
	tasksCompleted, err := poolMeter.Int64Counter(
		"pool/tasks_completed",
		metric.WithDescription("The cumulative number of tasks executed to completion."),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks_completed counter: %w", err)
	}

	tasksRejected, err := poolMeter.Int64Counter(
		"pool/tasks_rejected",
		metric.WithDescription("The cumulative number of task submissions rejected by capacity."),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks_rejected counter: %w", err)
	}

	taskPanics, err := poolMeter.Int64Counter(
		"pool/task_panics",
		metric.WithDescription("The cumulative number of panics recovered from user tasks."),
		metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("failed to create task_panics counter: %w", err)
	}

	return &otelMetrics{
		tasksCompleted: tasksCompleted,
		tasksRejected:  tasksRejected,
		taskPanics:     taskPanics,
	}, nil
}

// RegisterPoolGauges registers asynchronous gauges polling the given pool
// sizes on every collection.
func RegisterPoolGauges(sizes PoolSizes) error {
	capacity, err := poolMeter.Int64ObservableGauge(
		"pool/capacity",
		metric.WithDescription("The pool's target worker count."))
	if err != nil {
		return fmt.Errorf("failed to create capacity gauge: %w", err)
	}

	total, err := poolMeter.Int64ObservableGauge(
		"pool/total_workers",
		metric.WithDescription("The pool's current worker count."))
	if err != nil {
		return fmt.Errorf("failed to create total_workers gauge: %w", err)
	}

	idle, err := poolMeter.Int64ObservableGauge(
		"pool/idle_workers",
		metric.WithDescription("The pool's idle worker count."))
	if err != nil {
		return fmt.Errorf("failed to create idle_workers gauge: %w", err)
	}

	pending, err := poolMeter.Int64ObservableGauge(
		"pool/pending_tasks",
		metric.WithDescription("The number of tasks waiting in the installed task manager."))
	if err != nil {
		return fmt.Errorf("failed to create pending_tasks gauge: %w", err)
	}

	_, err = poolMeter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(capacity, sizes.Capacity())
			o.ObserveInt64(total, sizes.TotalSize())
			o.ObserveInt64(idle, sizes.IdleSize())
			o.ObserveInt64(pending, sizes.PendingSize())
			return nil
		},
		capacity, total, idle, pending)
	if err != nil {
		return fmt.Errorf("failed to register pool gauges: %w", err)
	}
	return nil
}

func (o *otelMetrics) TasksCompletedCount(ctx context.Context, inc int64) {
	o.tasksCompleted.Add(ctx, inc)
}

func (o *otelMetrics) TasksRejectedCount(ctx context.Context, inc int64) {
	o.tasksRejected.Add(ctx, inc)
}

func (o *otelMetrics) TaskPanicsCount(ctx context.Context, inc int64) {
	o.taskPanics.Add(ctx, inc)
}
