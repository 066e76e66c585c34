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

package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// swapDefaultLogger points the default logger at an in-memory buffer and
// restores the previous logger when the test finishes.
func swapDefaultLogger(t *testing.T, format, severity string) *bytes.Buffer {
	t.Helper()
	prevFactory, prevLogger := defaultLoggerFactory, defaultLogger
	t.Cleanup(func() {
		defaultLoggerFactory = prevFactory
		defaultLogger = prevLogger
	})

	var buf bytes.Buffer
	f := &loggerFactory{
		writer: &buf,
		format: format,
	}
	require.NoError(t, setLoggingLevel(severity, &f.level))
	defaultLoggerFactory = f
	defaultLogger = f.newLogger()
	return &buf
}

func TestSeverityFiltersLowerLevels(t *testing.T) {
	buf := swapDefaultLogger(t, "text", "WARNING")

	Tracef("trace %d", 1)
	Debugf("debug %d", 2)
	Infof("info %d", 3)
	Warnf("warn %d", 4)
	Errorf("error %d", 5)

	out := buf.String()
	assert.NotContains(t, out, "trace 1")
	assert.NotContains(t, out, "debug 2")
	assert.NotContains(t, out, "info 3")
	assert.Contains(t, out, "warn 4")
	assert.Contains(t, out, "error 5")
}

func TestOffSuppressesEverything(t *testing.T) {
	buf := swapDefaultLogger(t, "text", "OFF")

	Errorf("should not appear")

	assert.Empty(t, buf.String())
}

func TestTraceLogsEverything(t *testing.T) {
	buf := swapDefaultLogger(t, "text", "TRACE")

	Tracef("finest detail")

	assert.Contains(t, buf.String(), "finest detail")
}

func TestJSONFormatEmitsStructuredRecords(t *testing.T) {
	buf := swapDefaultLogger(t, "json", "INFO")

	Infof("hello %s", "world")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "hello world", record["msg"])
	assert.Equal(t, "INFO", record["level"])
}

func TestSetLogSeverityAdjustsTheLevelInPlace(t *testing.T) {
	buf := swapDefaultLogger(t, "text", "ERROR")

	Infof("before")
	require.NoError(t, SetLogSeverity("INFO"))
	Infof("after")

	out := buf.String()
	assert.NotContains(t, out, "before")
	assert.Contains(t, out, "after")
}

func TestSetLogSeverityRejectsUnknownValues(t *testing.T) {
	swapDefaultLogger(t, "text", "INFO")

	assert.Error(t, SetLogSeverity("noisy"))
}

func TestSetupRejectsUnknownSeverity(t *testing.T) {
	prevFactory, prevLogger := defaultLoggerFactory, defaultLogger
	t.Cleanup(func() {
		defaultLoggerFactory = prevFactory
		defaultLogger = prevLogger
	})

	assert.Error(t, Setup(Config{Severity: "noisy"}))
}

func TestSetupEmptySeverityDefaultsToInfo(t *testing.T) {
	var level slog.LevelVar

	require.NoError(t, setLoggingLevel("", &level))

	assert.Equal(t, slog.LevelInfo, level.Level())
}
