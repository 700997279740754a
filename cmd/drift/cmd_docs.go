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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianDrift/pkg/ux"
	"github.com/AleutianAI/AleutianDrift/services/drift"
	"github.com/AleutianAI/AleutianDrift/services/drift/crdt"
	"github.com/AleutianAI/AleutianDrift/services/drift/storage"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents on the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Replica   string          `json:"replica"`
			Documents []drift.DocInfo `json:"documents"`
		}
		if err := getJSON("/v1/drift/docs", &resp); err != nil {
			return err
		}

		ux.Title("Documents")
		ux.Muted(fmt.Sprintf("Replica: %s", resp.Replica))
		if len(resp.Documents) == 0 {
			ux.Info("No documents yet. Create one with: drift create <name> <kind>")
			return nil
		}
		for _, doc := range resp.Documents {
			fmt.Printf("  %-32s %s\n", doc.Name, doc.Kind)
		}
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:   "create <name> <kind>",
	Short: "Create a document on the daemon",
	Long: `Create a replicated document of the given kind.

Kinds: ` + kindList(),
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := json.Marshal(map[string]string{
			"name": args[0],
			"kind": args[1],
		})
		if err != nil {
			return err
		}
		resp, err := httpClient.Post(serverURL+"/v1/drift/docs",
			"application/json", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to reach daemon at %s: %w", serverURL, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			return apiError(resp)
		}
		ux.Success(fmt.Sprintf("Created %s document %q", args[1], args[0]))
		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <name-or-file>",
	Short: "Show the resolved view of a document",
	Long: `Show the materialized value of a document. The argument is either a
document name on the daemon, or the path of a snapshot envelope file
(inspected locally without a daemon).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if info, err := os.Stat(args[0]); err == nil && !info.IsDir() {
			return inspectSnapshotFile(args[0])
		}

		var resp struct {
			Name  string          `json:"name"`
			Kind  string          `json:"kind"`
			Value json.RawMessage `json:"value"`
		}
		if err := getJSON("/v1/drift/docs/"+args[0], &resp); err != nil {
			return err
		}

		var pretty bytes.Buffer
		if err := json.Indent(&pretty, resp.Value, "", "  "); err != nil {
			pretty.Write(resp.Value)
		}
		ux.Box(fmt.Sprintf("%s (%s)", resp.Name, resp.Kind), pretty.String())
		return nil
	},
}

// inspectSnapshotFile decodes an envelope file into a throwaway replica
// and prints its materialized view.
func inspectSnapshotFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	svc := drift.NewService(crdt.NewReplicaID(), storage.NewMemory(), nil)
	const name = "inspected"
	if err := svc.MergeSnapshot(context.Background(), name, data); err != nil {
		return fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	view, kind, err := svc.View(name)
	if err != nil {
		return err
	}
	pretty, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return err
	}
	ux.Box(fmt.Sprintf("%s (%s)", path, kind), string(pretty))
	return nil
}

// getJSON fetches a daemon endpoint and decodes the body into out.
func getJSON(path string, out any) error {
	resp, err := httpClient.Get(serverURL + path)
	if err != nil {
		return fmt.Errorf("failed to reach daemon at %s: %w", serverURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// apiError turns a non-2xx daemon response into an error, preferring the
// JSON error message when one is present.
func apiError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return fmt.Errorf("daemon returned %s: %s", resp.Status, body.Error)
	}
	return fmt.Errorf("daemon returned %s", resp.Status)
}

func kindList() string {
	kinds := drift.Kinds()
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, " ")
}
