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

// Package cmd wires the engine's command-line surface: flag and config-file
// parsing, validation, and the run loop of the taskengine binary.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskengine/taskengine/cfg"
)

const version = "0.1.0"

// NewRootCmd builds the root command. Flag values are bound into a fresh
// viper instance so that explicitly set flags override config-file values,
// which in turn override flag defaults.
func NewRootCmd(run func(*cfg.Config) error) (*cobra.Command, error) {
	var configFile string

	v := viper.New()
	rootCmd := &cobra.Command{
		Use:   "taskengine [flags]",
		Short: "Run a task execution engine serving a bounded worker pool",
		Long: `taskengine runs a worker pool fed by a FIFO task queue, with structured
logging and optional Prometheus metrics. Capacity and queueing behavior are
controlled by flags or a YAML config file.`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := resolveConfig(v, configFile)
			if err != nil {
				return err
			}
			return run(config)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config-file", "", "The path to the YAML config file.")
	if err := cfg.BindFlags(v, rootCmd.PersistentFlags()); err != nil {
		return nil, fmt.Errorf("error while binding flags: %w", err)
	}
	return rootCmd, nil
}

// resolveConfig merges the config file (if any) under the bound flag values
// and unmarshals the result into a validated Config.
func resolveConfig(v *viper.Viper, configFile string) (*cfg.Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error while reading the config file: %w", err)
		}
	}

	var config cfg.Config
	if err := v.Unmarshal(&config, viper.DecodeHook(cfg.DecodeHook())); err != nil {
		return nil, fmt.Errorf("error while unmarshaling the config: %w", err)
	}
	if err := cfg.ValidateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

func Execute() {
	rootCmd, err := NewRootCmd(Run)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error building the root command: %v\n", err)
		os.Exit(1)
	}
	if err = rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
