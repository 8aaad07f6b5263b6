// Copyright 2025 Tom Barlow
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

// Package config loads and validates stride run configuration from YAML
// files and environment variables. Environment variables take precedence
// over file-based configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/expr-lang/expr"
	"gopkg.in/yaml.v3"

	"github.com/strideml/stride/pkg/trainer"
)

// ErrInvalidConfig is returned when configuration validation fails.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config represents the complete stride configuration.
type Config struct {
	Run        RunConfig        `yaml:"run"`
	Data       DataConfig       `yaml:"data"`
	Log        LogConfig        `yaml:"log"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Store      StoreConfig      `yaml:"store"`
	EarlyStop  EarlyStopConfig  `yaml:"early_stop"`
}

// RunConfig configures the training run limits and hardware assumptions.
type RunConfig struct {
	// MaxEpochs is the epoch limit. -1 means unbounded.
	// Environment: STRIDE_MAX_EPOCHS
	// Default: 1000
	MaxEpochs int `yaml:"max_epochs"`

	// MinEpochs is the minimum epochs before an early-stop request is honored.
	// 0 disables the guard.
	MinEpochs int `yaml:"min_epochs"`

	// MaxSteps is the optimizer-step limit. -1 means unbounded.
	// Environment: STRIDE_MAX_STEPS
	// Default: -1
	MaxSteps int `yaml:"max_steps"`

	// MinSteps is the minimum steps before an early-stop request is honored.
	// 0 disables the guard.
	MinSteps int `yaml:"min_steps"`

	// Accelerator is the device kind: cpu, gpu, or tpu.
	// Default: cpu
	Accelerator string `yaml:"accelerator"`

	// InterBatchParallelism requests the parallel prefetching fetcher.
	// Only supported on gpu.
	InterBatchParallelism bool `yaml:"inter_batch_parallelism"`
}

// DataConfig configures the synthetic data source used by the CLI runner.
type DataConfig struct {
	// BatchesPerEpoch is the number of batches each epoch yields.
	// Default: 64
	BatchesPerEpoch int `yaml:"batches_per_epoch"`

	// ReloadEveryEpochs reloads the training source every N epochs.
	// 0 means reload only once, at run start.
	ReloadEveryEpochs int `yaml:"reload_every_epochs"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Environment: LOG_LEVEL
	// Default: info
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	// Environment: LOG_FORMAT
	// Default: text
	Format string `yaml:"format"`

	// AddSource adds source file and line information to logs.
	// Environment: LOG_SOURCE
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig configures the Prometheus metrics endpoint and tracing.
type MetricsConfig struct {
	// Addr is the listen address for /metrics (e.g. ":9090").
	// Empty disables the endpoint.
	// Environment: STRIDE_METRICS_ADDR
	Addr string `yaml:"addr,omitempty"`

	// TraceStdout writes completed spans to stdout.
	TraceStdout bool `yaml:"trace_stdout"`
}

// CheckpointConfig configures run checkpointing.
type CheckpointConfig struct {
	// Dir is the checkpoint directory. Empty disables checkpointing.
	// Environment: STRIDE_CHECKPOINT_DIR
	Dir string `yaml:"dir,omitempty"`
}

// StoreConfig configures the run-history store.
type StoreConfig struct {
	// Path is the SQLite database path. Empty disables run history.
	// Environment: STRIDE_STORE_PATH
	Path string `yaml:"path,omitempty"`
}

// EarlyStopConfig configures metric-driven early stopping.
type EarlyStopConfig struct {
	// When is an expression over epoch-end metrics; when it evaluates
	// to true a stop is requested (e.g. "loss < 0.01").
	// Empty disables early stopping.
	When string `yaml:"when,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			MaxEpochs:   1000,
			MinEpochs:   0,
			MaxSteps:    trainer.Unbounded,
			MinSteps:    0,
			Accelerator: "cpu",
		},
		Data: DataConfig{
			BatchesPerEpoch: 64,
		},
		Log: LogConfig{
			Level:     "info",
			Format:    "text",
			AddSource: false,
		},
	}
}

// Limits returns the run limits as a trainer.Limits value.
func (c *Config) Limits() trainer.Limits {
	return trainer.Limits{
		MaxEpochs: c.Run.MaxEpochs,
		MinEpochs: c.Run.MinEpochs,
		MaxSteps:  c.Run.MaxSteps,
		MinSteps:  c.Run.MinSteps,
	}
}

// Accelerator returns the configured accelerator kind.
func (c *Config) Accelerator() trainer.AcceleratorKind {
	return trainer.AcceleratorKind(c.Run.Accelerator)
}

// Load loads configuration from environment variables and optionally from a
// YAML file. Environment variables take precedence over file-based
// configuration. If configPath is empty, only environment variables are used.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults fills in zero values with sensible defaults. This allows
// minimal configs (e.g. just run limits) to work without specifying all
// fields explicitly.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Run.Accelerator == "" {
		c.Run.Accelerator = defaults.Run.Accelerator
	}
	if c.Data.BatchesPerEpoch == 0 {
		c.Data.BatchesPerEpoch = defaults.Data.BatchesPerEpoch
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("STRIDE_MAX_EPOCHS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Run.MaxEpochs = n
		}
	}
	if val := os.Getenv("STRIDE_MAX_STEPS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Run.MaxSteps = n
		}
	}
	if val := os.Getenv("STRIDE_CHECKPOINT_DIR"); val != "" {
		c.Checkpoint.Dir = val
	}
	if val := os.Getenv("STRIDE_STORE_PATH"); val != "" {
		c.Store.Path = val
	}
	if val := os.Getenv("STRIDE_METRICS_ADDR"); val != "" {
		c.Metrics.Addr = val
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if err := c.Limits().Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	validAccelerators := map[string]bool{"cpu": true, "gpu": true, "tpu": true}
	if !validAccelerators[c.Run.Accelerator] {
		errs = append(errs, fmt.Sprintf("run.accelerator must be one of [cpu, gpu, tpu], got %q", c.Run.Accelerator))
	}

	if c.Data.BatchesPerEpoch < 0 {
		errs = append(errs, fmt.Sprintf("data.batches_per_epoch must be non-negative, got %d", c.Data.BatchesPerEpoch))
	}
	if c.Data.ReloadEveryEpochs < 0 {
		errs = append(errs, fmt.Sprintf("data.reload_every_epochs must be non-negative, got %d", c.Data.ReloadEveryEpochs))
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, warning, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if c.EarlyStop.When != "" {
		if _, err := expr.Compile(c.EarlyStop.When, expr.AsBool(), expr.AllowUndefinedVariables()); err != nil {
			errs = append(errs, fmt.Sprintf("early_stop.when is not a valid expression: %v", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}

	return nil
}
