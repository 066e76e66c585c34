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

package cfg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Execution: ExecutionConfig{
			Capacity:      4,
			QueueCapacity: 0,
		},
		Logging: LoggingConfig{
			Format:   JSONFormat,
			Severity: InfoLevel,
			LogRotate: LogRotateLoggingConfig{
				BackupFileCount: 10,
				Compress:        true,
				MaxFileSizeMb:   512,
			},
		},
		Metrics: MetricsConfig{
			PrometheusPort: 0,
		},
	}
}

func TestValidateConfigSuccessful(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "capacity_one", mutate: func(c *Config) { c.Execution.Capacity = 1 }},
		{name: "bounded_queue", mutate: func(c *Config) { c.Execution.QueueCapacity = 100 }},
		{name: "retain_all_backups", mutate: func(c *Config) { c.Logging.LogRotate.BackupFileCount = 0 }},
		{name: "max_prometheus_port", mutate: func(c *Config) { c.Metrics.PrometheusPort = 65535 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := validConfig()
			tc.mutate(config)

			assert.NoError(t, ValidateConfig(config))
		})
	}
}

func TestValidateConfigUnsuccessful(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "zero_capacity", mutate: func(c *Config) { c.Execution.Capacity = 0 }},
		{name: "negative_capacity", mutate: func(c *Config) { c.Execution.Capacity = -3 }},
		{name: "negative_queue_capacity", mutate: func(c *Config) { c.Execution.QueueCapacity = -1 }},
		{name: "zero_max_file_size", mutate: func(c *Config) { c.Logging.LogRotate.MaxFileSizeMb = 0 }},
		{name: "negative_backup_count", mutate: func(c *Config) { c.Logging.LogRotate.BackupFileCount = -1 }},
		{name: "negative_prometheus_port", mutate: func(c *Config) { c.Metrics.PrometheusPort = -1 }},
		{name: "prometheus_port_too_large", mutate: func(c *Config) { c.Metrics.PrometheusPort = 65536 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config := validConfig()
			tc.mutate(config)

			assert.Error(t, ValidateConfig(config))
		})
	}
}
