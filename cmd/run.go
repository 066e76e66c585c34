// Copyright 2024 Google Inc. All Rights Reserved.
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

package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/taskengine/taskengine/cfg"
	"github.com/taskengine/taskengine/internal/locker"
	"github.com/taskengine/taskengine/internal/logger"
	"github.com/taskengine/taskengine/manager"
	"github.com/taskengine/taskengine/metrics"
	"github.com/taskengine/taskengine/pool"
)

// Run starts the engine described by config and blocks until the process
// receives SIGINT or SIGTERM, then drains and tears the pool down.
func Run(config *cfg.Config) error {
	if config.Debug.ExitOnInvariantViolation {
		locker.EnableInvariantsCheck()
	}
	if config.Debug.LogMutex {
		locker.EnableDebugMessages()
	}

	err := logger.Setup(logger.Config{
		FilePath: string(config.Logging.FilePath),
		Format:   string(config.Logging.Format),
		Severity: string(config.Logging.Severity),
		LogRotate: logger.RotateConfig{
			MaxFileSizeMB:   int(config.Logging.LogRotate.MaxFileSizeMb),
			BackupFileCount: int(config.Logging.LogRotate.BackupFileCount),
			Compress:        config.Logging.LogRotate.Compress,
		},
	})
	if err != nil {
		return fmt.Errorf("error while setting up the logger: %w", err)
	}

	metricHandle := metrics.MetricHandle(metrics.NewNoopMetrics())
	var metricsServer *http.Server
	if config.Metrics.PrometheusPort > 0 {
		exporter, err := otelprom.New()
		if err != nil {
			return fmt.Errorf("error while creating the prometheus exporter: %w", err)
		}
		otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter)))

		if metricHandle, err = metrics.NewOTelMetrics(); err != nil {
			return fmt.Errorf("error while creating the metric handle: %w", err)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", config.Metrics.PrometheusPort),
			Handler: mux,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("metrics server failed: %v", err)
			}
		}()
		logger.Infof("serving metrics on port %d", config.Metrics.PrometheusPort)
	}

	queue := manager.NewTaskQueue(0, config.Execution.QueueCapacity, timeutil.RealClock())
	p := pool.New(config.Execution.Capacity, queue, metricHandle)
	if config.Metrics.PrometheusPort > 0 {
		if err := metrics.RegisterPoolGauges(p.Proxy()); err != nil {
			p.Destroy()
			return fmt.Errorf("error while registering pool gauges: %w", err)
		}
	}
	logger.Infof("%s: pool running with capacity %d", config.AppName, config.Execution.Capacity)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Infof("shutting down, draining pending tasks")
	p.Destroy()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("metrics server shutdown: %v", err)
		}
	}
	return nil
}
