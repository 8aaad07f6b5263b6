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

// Package run implements the stride run command: it drives a training run
// with a synthetic workload, exercising checkpoint/resume, early stopping,
// metrics export, and cooperative interrupts.
package run

import (
	"github.com/spf13/cobra"

	"github.com/strideml/stride/internal/commands/shared"
	"github.com/strideml/stride/internal/config"
)

// NewCommand creates the run command
func NewCommand() *cobra.Command {
	var (
		maxEpochs int
		maxSteps  int
		batches   int
		resume    string
		watch     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a training run",
		Long: `Run executes a training run over a synthetic workload.

The run is bounded by the configured epoch and step limits and exits
gracefully on SIGINT/SIGTERM at the next epoch boundary, saving a
checkpoint that a later invocation can pick up with --resume.

Stop conditions:
  max_epochs / max_steps   Hard upper bounds (-1 = unbounded)
  min_epochs / min_steps   Defer early-stop requests until both are met
  early_stop.when          Expression over epoch-end metrics (e.g. "loss < 0.01")

Mid-run overrides:
  --watch                  Re-read the config file on change and apply the
                           step limits to the running controller`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(shared.GetConfigPath())
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("max-epochs") {
				cfg.Run.MaxEpochs = maxEpochs
			}
			if cmd.Flags().Changed("max-steps") {
				cfg.Run.MaxSteps = maxSteps
			}
			if cmd.Flags().Changed("batches") {
				cfg.Data.BatchesPerEpoch = batches
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return execute(cmd.Context(), executorOptions{
				cfg:        cfg,
				configPath: shared.GetConfigPath(),
				resume:     resume,
				watch:      watch,
			})
		},
	}

	cmd.Flags().IntVar(&maxEpochs, "max-epochs", 0, "Override the epoch limit (-1 = unbounded)")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Override the step limit (-1 = unbounded)")
	cmd.Flags().IntVar(&batches, "batches", 0, "Override the batches per epoch (0 skips the run)")
	cmd.Flags().StringVar(&resume, "resume", "", "Resume an interrupted run by ID")
	cmd.Flags().BoolVar(&watch, "watch", false, "Apply step-limit overrides from config file changes")

	return cmd
}
