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
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianDrift/pkg/ux"
	"github.com/AleutianAI/AleutianDrift/services/drift/crdt"
	"github.com/AleutianAI/AleutianDrift/services/drift/crdt/sequence"
)

var benchN int

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure local sequence append and merge throughput",
	Long: `Run a local micro-benchmark: append N elements into a replicated
sequence on two replicas, then merge them and time both phases. Useful
for sizing documents before putting them behind a sync folder.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		spinner := ux.NewSpinner(fmt.Sprintf("Appending %d elements on two replicas", benchN))
		spinner.Start()

		a := sequence.NewRGA[string](crdt.NewReplicaID())
		b := sequence.NewRGA[string](crdt.NewReplicaID())

		start := time.Now()
		for i := 0; i < benchN; i++ {
			a.Append("a")
			b.Append("b")
		}
		appendDur := time.Since(start)
		spinner.UpdateMessage("Merging replicas")

		start = time.Now()
		if err := a.Merge(b); err != nil {
			spinner.StopWithError("Merge failed")
			return err
		}
		mergeDur := time.Since(start)
		spinner.StopWithSuccess("Benchmark complete")

		opsPerSec := float64(2*benchN) / appendDur.Seconds()
		content := fmt.Sprintf(
			"Appends:   %d x 2 replicas in %v (%.0f ops/s)\n"+
				"Merge:     %d elements in %v\n"+
				"Converged: %d visible elements",
			benchN, appendDur.Round(time.Microsecond), opsPerSec,
			2*benchN, mergeDur.Round(time.Microsecond),
			len(a.Slice()))
		ux.Box("Sequence Benchmark", content)
		return nil
	},
}

func init() {
	benchCmd.Flags().IntVarP(&benchN, "count", "n", 5000,
		"Elements to append per replica")
}
