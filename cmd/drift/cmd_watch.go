// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianDrift/pkg/ux"
	"github.com/AleutianAI/AleutianDrift/services/drift/filesync"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Watch a sync folder and report snapshot changes",
	Long: `Watch a shared sync folder and print every batched snapshot change
as it lands. Handy for confirming a file-sync tool (Dropbox, Syncthing,
rsync) is actually delivering peer snapshots.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}

		watcher, err := filesync.NewWatcher(dir, printChanges, nil)
		if err != nil {
			return err
		}
		if err := watcher.Start(); err != nil {
			return err
		}
		defer watcher.Stop()

		ux.Title("Watching " + dir)
		ux.Muted("Press Ctrl+C to stop")

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		ux.Info("Stopped")
		return nil
	},
}

func printChanges(changes []filesync.SnapshotChange) {
	for _, change := range changes {
		if change.Removed {
			ux.FileStatus(change.Path, ux.IconPending, "removed")
			continue
		}
		ux.FileStatus(change.Path, ux.IconSuccess, "snapshot updated: "+change.Doc)
	}
}
