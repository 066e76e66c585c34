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

// Package cfg holds the engine configuration surface: the Config object,
// its custom field types, flag binding, and validation.
package cfg

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	AppName string `yaml:"app-name" mapstructure:"app-name"`

	Debug DebugConfig `yaml:"debug" mapstructure:"debug"`

	Execution ExecutionConfig `yaml:"execution" mapstructure:"execution"`

	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

type DebugConfig struct {
	ExitOnInvariantViolation bool `yaml:"exit-on-invariant-violation" mapstructure:"exit-on-invariant-violation"`

	LogMutex bool `yaml:"log-mutex" mapstructure:"log-mutex"`
}

type ExecutionConfig struct {
	// Capacity is the target worker count of the pool.
	Capacity int64 `yaml:"capacity" mapstructure:"capacity"`

	// QueueCapacity bounds the pending task count of the default queue.
	// Zero means unbounded.
	QueueCapacity int64 `yaml:"queue-capacity" mapstructure:"queue-capacity"`
}

type LoggingConfig struct {
	FilePath ResolvedPath `yaml:"file-path" mapstructure:"file-path"`

	Format LogFormat `yaml:"format" mapstructure:"format"`

	Severity LogSeverity `yaml:"severity" mapstructure:"severity"`

	LogRotate LogRotateLoggingConfig `yaml:"log-rotate" mapstructure:"log-rotate"`
}

type LogRotateLoggingConfig struct {
	BackupFileCount int64 `yaml:"backup-file-count" mapstructure:"backup-file-count"`

	Compress bool `yaml:"compress" mapstructure:"compress"`

	MaxFileSizeMb int64 `yaml:"max-file-size-mb" mapstructure:"max-file-size-mb"`
}

type MetricsConfig struct {
	// PrometheusPort exposes a /metrics endpoint on the given port. Zero
	// disables the endpoint.
	PrometheusPort int64 `yaml:"prometheus-port" mapstructure:"prometheus-port"`
}

// BindFlags declares every engine flag on flagSet and binds each one into v
// keyed by its config path.
func BindFlags(v *viper.Viper, flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("app-name", "", "", "The application name reported in logs.")

	err = v.BindPFlag("app-name", flagSet.Lookup("app-name"))
	if err != nil {
		return err
	}

	flagSet.BoolP("debug_invariants", "", false, "Exit when internal invariants are violated.")

	err = v.BindPFlag("debug.exit-on-invariant-violation", flagSet.Lookup("debug_invariants"))
	if err != nil {
		return err
	}

	flagSet.BoolP("debug_mutex", "", false, "Print debug messages when a mutex is held too long.")

	err = v.BindPFlag("debug.log-mutex", flagSet.Lookup("debug_mutex"))
	if err != nil {
		return err
	}

	flagSet.Int64P("capacity", "", 4, "The target number of workers executing tasks concurrently.")

	err = v.BindPFlag("execution.capacity", flagSet.Lookup("capacity"))
	if err != nil {
		return err
	}

	flagSet.Int64P("queue-capacity", "", 0, "The maximum number of pending tasks accepted by the default queue. 0 means unbounded.")

	err = v.BindPFlag("execution.queue-capacity", flagSet.Lookup("queue-capacity"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-file", "", "", "The file for storing logs. When not provided, logs are printed to stdout in the configured log format.")

	err = v.BindPFlag("logging.file-path", flagSet.Lookup("log-file"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-format", "", "json", "The format of the log file: 'text' or 'json'.")

	err = v.BindPFlag("logging.format", flagSet.Lookup("log-format"))
	if err != nil {
		return err
	}

	flagSet.StringP("log-severity", "", "info", "Specifies the logging severity expressed as one of [trace, debug, info, warning, error, off]")

	err = v.BindPFlag("logging.severity", flagSet.Lookup("log-severity"))
	if err != nil {
		return err
	}

	flagSet.Int64P("log-rotate-backup-file-count", "", 10, "The maximum number of backup log files to retain after rotation. 0 retains all backup files.")

	err = v.BindPFlag("logging.log-rotate.backup-file-count", flagSet.Lookup("log-rotate-backup-file-count"))
	if err != nil {
		return err
	}

	flagSet.BoolP("log-rotate-compress", "", true, "Controls whether rotated log files should be compressed using gzip.")

	err = v.BindPFlag("logging.log-rotate.compress", flagSet.Lookup("log-rotate-compress"))
	if err != nil {
		return err
	}

	flagSet.Int64P("log-rotate-max-file-size-mb", "", 512, "The maximum size in megabytes that a log file can reach before it is rotated.")

	err = v.BindPFlag("logging.log-rotate.max-file-size-mb", flagSet.Lookup("log-rotate-max-file-size-mb"))
	if err != nil {
		return err
	}

	flagSet.Int64P("prometheus-port", "", 0, "Expose Prometheus metrics on this port. 0 disables the endpoint.")

	err = v.BindPFlag("metrics.prometheus-port", flagSet.Lookup("prometheus-port"))
	if err != nil {
		return err
	}

	return nil
}
