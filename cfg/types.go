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
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// LogSeverity represents one of the supported severity levels, ordered by
// severityRanking.
type LogSeverity string

const (
	TraceLevel   LogSeverity = "TRACE"
	DebugLevel   LogSeverity = "DEBUG"
	InfoLevel    LogSeverity = "INFO"
	WarningLevel LogSeverity = "WARNING"
	ErrorLevel   LogSeverity = "ERROR"
	OffLevel     LogSeverity = "OFF"
)

var severityRanking = map[LogSeverity]int{
	TraceLevel:   0,
	DebugLevel:   1,
	InfoLevel:    2,
	WarningLevel: 3,
	ErrorLevel:   4,
	OffLevel:     5,
}

// Rank returns the severity's position in the ordering, with TRACE the
// lowest.
func (l LogSeverity) Rank() int {
	return severityRanking[l]
}

func (l *LogSeverity) UnmarshalText(text []byte) error {
	severity := LogSeverity(strings.ToUpper(string(text)))
	if _, ok := severityRanking[severity]; !ok {
		return fmt.Errorf("invalid severity level: %s", text)
	}
	*l = severity
	return nil
}

func (l LogSeverity) MarshalText() ([]byte, error) {
	return []byte(l), nil
}

// LogFormat selects the handler encoding for log output.
type LogFormat string

const (
	TextFormat LogFormat = "text"
	JSONFormat LogFormat = "json"
)

func (f *LogFormat) UnmarshalText(text []byte) error {
	format := LogFormat(strings.ToLower(string(text)))
	if !slices.Contains([]LogFormat{TextFormat, JSONFormat}, format) {
		return fmt.Errorf("invalid log format: %s", text)
	}
	*f = format
	return nil
}

func (f LogFormat) MarshalText() ([]byte, error) {
	return []byte(f), nil
}

// ResolvedPath is a file path with ~ and relative segments expanded at
// parse time.
type ResolvedPath string

func (p *ResolvedPath) UnmarshalText(text []byte) error {
	path := string(text)
	if path == "" {
		*p = ""
		return nil
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	*p = ResolvedPath(abs)
	return nil
}

func (p ResolvedPath) MarshalText() ([]byte, error) {
	return []byte(p), nil
}
