// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command drift is the CLI companion to the driftd daemon: inspect and
// mutate replicated documents, prove offline convergence on snapshot
// files, watch sync folders, and back snapshots up to GCS.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianDrift/pkg/ux"
)

var (
	rootCmd = &cobra.Command{
		Use:   "drift",
		Short: "A CLI to manage Aleutian Drift replicated documents",
		Long: `Drift is a tool for working with local-first replicated documents:
inspecting daemon state, merging snapshot files offline, and moving
snapshots between replicas and backup storage.`,
	}

	// serverURL targets the local daemon; every online command uses it.
	serverURL string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server",
		"http://localhost:8890", "Base URL of the driftd daemon")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(backupCmd)
}

func main() {
	ux.InitPersonality()
	if err := rootCmd.Execute(); err != nil {
		ux.Error(err.Error())
		os.Exit(1)
	}
}
