// Copyright 2023 Google Inc. All Rights Reserved.
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

// Package logger provides the process-wide structured logger. Severity and
// output destination are configured once at startup; everything else goes
// through the package-level helpers.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelTrace and LevelOff extend slog's built-in levels: TRACE logs
// everything, OFF suppresses everything.
const (
	LevelTrace = slog.Level(-8)
	LevelOff   = slog.Level(12)
)

var (
	defaultLoggerFactory *loggerFactory
	defaultLogger        *slog.Logger
)

// init wires the default logger to stdout at INFO so that code running
// before Setup still logs sensibly.
func init() {
	defaultLoggerFactory = &loggerFactory{
		writer: os.Stdout,
		format: "text",
	}
	defaultLoggerFactory.level.Set(slog.LevelInfo)
	defaultLogger = defaultLoggerFactory.newLogger()
}

// Config controls the destination, format, and verbosity of the default
// logger.
type Config struct {
	// FilePath is the log file. Empty means stdout.
	FilePath string

	// Format is "text" or "json".
	Format string

	// Severity is one of TRACE, DEBUG, INFO, WARNING, ERROR, OFF.
	Severity string

	// Rotation of the log file, ignored when FilePath is empty.
	LogRotate RotateConfig
}

// RotateConfig mirrors the knobs of the underlying rotation package.
type RotateConfig struct {
	MaxFileSizeMB   int
	BackupFileCount int
	Compress        bool
}

// Setup replaces the default logger according to config. It must be called
// before any goroutines that log are started.
func Setup(config Config) error {
	var w io.Writer = os.Stdout
	if config.FilePath != "" {
		w = &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.LogRotate.MaxFileSizeMB,
			MaxBackups: config.LogRotate.BackupFileCount,
			Compress:   config.LogRotate.Compress,
		}
	}

	f := &loggerFactory{
		writer: w,
		format: config.Format,
	}
	if err := setLoggingLevel(config.Severity, &f.level); err != nil {
		return err
	}

	defaultLoggerFactory = f
	defaultLogger = f.newLogger()
	return nil
}

// SetLogSeverity changes the verbosity of the default logger in place.
func SetLogSeverity(severity string) error {
	return setLoggingLevel(severity, &defaultLoggerFactory.level)
}

// Default returns the default slog logger, for callers that want to attach
// their own attributes.
func Default() *slog.Logger {
	return defaultLogger
}

// Tracef logs at TRACE severity in Printf style.
func Tracef(format string, v ...any) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, v...))
}

// Debugf logs at DEBUG severity in Printf style.
func Debugf(format string, v ...any) {
	defaultLogger.Debug(fmt.Sprintf(format, v...))
}

// Infof logs at INFO severity in Printf style.
func Infof(format string, v ...any) {
	defaultLogger.Info(fmt.Sprintf(format, v...))
}

// Warnf logs at WARNING severity in Printf style.
func Warnf(format string, v ...any) {
	defaultLogger.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs at ERROR severity in Printf style.
func Errorf(format string, v ...any) {
	defaultLogger.Error(fmt.Sprintf(format, v...))
}

// Fatal logs at ERROR severity and exits the process. Reserved for
// irrecoverable startup failures.
func Fatal(format string, v ...any) {
	Errorf(format, v...)
	os.Exit(1)
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

func setLoggingLevel(severity string, programLevel *slog.LevelVar) error {
	switch severity {
	// Logs having severity >= the configured value will be logged.
	case "TRACE":
		programLevel.Set(LevelTrace)
	case "DEBUG":
		programLevel.Set(slog.LevelDebug)
	case "", "INFO":
		programLevel.Set(slog.LevelInfo)
	case "WARNING":
		programLevel.Set(slog.LevelWarn)
	case "ERROR":
		programLevel.Set(slog.LevelError)
	case "OFF":
		programLevel.Set(LevelOff)
	default:
		return fmt.Errorf("unknown log severity: %q", severity)
	}
	return nil
}

type loggerFactory struct {
	writer io.Writer
	format string
	level  slog.LevelVar
}

func (f *loggerFactory) newLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     &f.level,
		AddSource: true,
	}

	var h slog.Handler
	if f.format == "json" {
		h = slog.NewJSONHandler(f.writer, opts)
	} else {
		h = slog.NewTextHandler(f.writer, opts)
	}
	return slog.New(h)
}
