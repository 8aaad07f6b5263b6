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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	runcmd "github.com/strideml/stride/internal/commands/run"
	runscmd "github.com/strideml/stride/internal/commands/runs"
	"github.com/strideml/stride/internal/commands/shared"
	versioncmd "github.com/strideml/stride/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	shared.SetVersion(version, commit, buildDate)

	rootCmd := &cobra.Command{
		Use:   "stride",
		Short: "stride is an iterative training runner",
		Long: `Stride drives bounded, resumable training runs: epoch and step limits,
early stopping over epoch-end metrics, checkpointed interrupts, and
Prometheus metrics export.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	verbose, quiet, jsonOut, configPath := shared.RegisterFlagPointers()
	rootCmd.PersistentFlags().BoolVarP(verbose, "verbose", "v", false, "Show detailed output")
	rootCmd.PersistentFlags().BoolVarP(quiet, "quiet", "q", false, "Suppress non-error output")
	rootCmd.PersistentFlags().BoolVar(jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVarP(configPath, "config", "c", "", "Config file path")

	rootCmd.AddCommand(runcmd.NewCommand())
	rootCmd.AddCommand(runscmd.NewCommand())
	rootCmd.AddCommand(versioncmd.NewCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
