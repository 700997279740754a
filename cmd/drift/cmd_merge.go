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
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianDrift/pkg/ux"
	"github.com/AleutianAI/AleutianDrift/services/drift"
	"github.com/AleutianAI/AleutianDrift/services/drift/crdt"
	"github.com/AleutianAI/AleutianDrift/services/drift/storage"
)

var mergeOut string

var mergeCmd = &cobra.Command{
	Use:   "merge <file-a> <file-b>",
	Short: "Merge two snapshot files offline and verify convergence",
	Long: `Merge two envelope snapshot files of the same document without a
daemon. Both merge orders are computed and compared, so the output
doubles as a convergence check: if A+B and B+A disagree, something is
wrong with the snapshots.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		snapA, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		snapB, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}

		ab, err := mergeSnapshots(snapA, snapB)
		if err != nil {
			return fmt.Errorf("merge %s + %s: %w", args[0], args[1], err)
		}
		ba, err := mergeSnapshots(snapB, snapA)
		if err != nil {
			return fmt.Errorf("merge %s + %s: %w", args[1], args[0], err)
		}

		viewAB, err := json.Marshal(ab.view)
		if err != nil {
			return err
		}
		viewBA, err := json.Marshal(ba.view)
		if err != nil {
			return err
		}
		if string(viewAB) != string(viewBA) {
			ux.Error("Merge is order-dependent; snapshots are inconsistent")
			ux.Muted(fmt.Sprintf("A+B: %s", viewAB))
			ux.Muted(fmt.Sprintf("B+A: %s", viewBA))
			return fmt.Errorf("merged views differ between orders")
		}

		pretty, err := json.MarshalIndent(ab.view, "", "  ")
		if err != nil {
			return err
		}
		ux.Success("Snapshots converge in both merge orders")
		ux.Box(fmt.Sprintf("Merged view (%s)", ab.kind), string(pretty))

		if mergeOut != "" {
			if err := os.WriteFile(mergeOut, ab.snapshot, 0600); err != nil {
				return err
			}
			ux.Info(fmt.Sprintf("Merged snapshot written to %s", mergeOut))
		}
		return nil
	},
}

func init() {
	mergeCmd.Flags().StringVarP(&mergeOut, "out", "o", "",
		"Write the merged snapshot envelope to a file")
}

type mergeResult struct {
	kind     drift.Kind
	view     any
	snapshot []byte
}

// mergeSnapshots folds two envelope snapshots into a throwaway local
// replica and returns the converged state.
func mergeSnapshots(first, second []byte) (*mergeResult, error) {
	ctx := context.Background()
	svc := drift.NewService(crdt.NewReplicaID(), storage.NewMemory(), nil)

	const name = "merged"
	if err := svc.MergeSnapshot(ctx, name, first); err != nil {
		return nil, err
	}
	if err := svc.MergeSnapshot(ctx, name, second); err != nil {
		return nil, err
	}

	view, kind, err := svc.View(name)
	if err != nil {
		return nil, err
	}
	snapshot, err := svc.Snapshot(ctx, name)
	if err != nil {
		return nil, err
	}
	return &mergeResult{kind: kind, view: view, snapshot: snapshot}, nil
}
