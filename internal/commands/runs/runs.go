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

// Package runs implements the stride runs command for inspecting run
// history and interrupted runs.
package runs

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/strideml/stride/internal/checkpoint"
	"github.com/strideml/stride/internal/commands/shared"
	"github.com/strideml/stride/internal/config"
	"github.com/strideml/stride/internal/store"
)

// NewCommand creates the runs command
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect training run history",
	}
	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newInterruptedCommand())
	return cmd
}

func newListCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent training runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(shared.GetConfigPath())
			if err != nil {
				return err
			}
			if cfg.Store.Path == "" {
				return fmt.Errorf("run history is disabled; set store.path in config or STRIDE_STORE_PATH")
			}

			s, err := store.Open(cfg.Store.Path)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if shared.GetJSON() {
				data, err := json.MarshalIndent(runs, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RUN ID\tSTARTED\tDURATION\tEPOCHS\tSTEPS\tSTOP REASON")
			for _, run := range runs {
				duration := "-"
				if !run.FinishedAt.IsZero() {
					duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					run.ID,
					run.StartedAt.Local().Format(time.DateTime),
					duration,
					run.Epochs,
					run.Steps,
					run.StopReason,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show")
	return cmd
}

func newInterruptedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "interrupted",
		Short: "List interrupted runs with saved checkpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(shared.GetConfigPath())
			if err != nil {
				return err
			}

			manager, err := checkpoint.NewManager(cfg.Checkpoint.Dir)
			if err != nil {
				return err
			}
			if !manager.Enabled() {
				return fmt.Errorf("checkpointing is disabled; set checkpoint.dir in config or STRIDE_CHECKPOINT_DIR")
			}

			runIDs, err := manager.ListInterrupted(cmd.Context())
			if err != nil {
				return err
			}

			if shared.GetJSON() {
				data, err := json.MarshalIndent(runIDs, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(data))
				return nil
			}

			if len(runIDs) == 0 {
				cmd.Println("No interrupted runs.")
				return nil
			}
			for _, id := range runIDs {
				cmd.Println(id)
			}
			return nil
		},
	}
}
