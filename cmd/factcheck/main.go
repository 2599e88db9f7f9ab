// Copyright (C) 2025 Agentra AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command factcheck runs the Agentra verification engine, either as an
// HTTP service (serve) or as a one-shot CLI check (check).
//
// Configuration comes from the environment; a .env file in the working
// directory is loaded when present. See services/verifier/config for the
// full variable list.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/agentra-ai/factcheck/pkg/logging"
)

var logger *logging.Logger

var rootCmd = &cobra.Command{
	Use:   "factcheck",
	Short: "Evidence-triangulating fact checker",
	Long: `factcheck verifies claims against live web evidence: it plans
subclaims and search queries with a reasoning model, retrieves and ranks
evidence through a rate-limited search gateway, triangulates per-source
entailment votes, and fuses everything into a final verdict with full
retrieval and reasoning traces.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		// A missing .env is fine; the environment may be set directly.
		_ = godotenv.Load()

		logger = logging.New(logging.Config{
			Service: "factcheck",
			LogDir:  os.Getenv("FACTCHECK_LOG_DIR"),
		})
	}
}
