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
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianDrift/pkg/ux"
	"github.com/AleutianAI/AleutianDrift/services/drift/config"
	"github.com/AleutianAI/AleutianDrift/services/drift/storage/gcs"
)

var (
	backupBucket      string
	backupPrefix      string
	backupCredentials string

	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Move document snapshots to and from GCS",
	}

	backupPushCmd = &cobra.Command{
		Use:   "push <name>",
		Short: "Upload a document snapshot to the backup bucket",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			resp, err := httpClient.Get(serverURL + "/v1/drift/docs/" + name + "/snapshot")
			if err != nil {
				return fmt.Errorf("failed to reach daemon at %s: %w", serverURL, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return apiError(resp)
			}
			var snapshot bytes.Buffer
			if _, err := snapshot.ReadFrom(resp.Body); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			client, err := newBackupClient(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.UploadSnapshot(ctx, name, snapshot.Bytes()); err != nil {
				return fmt.Errorf("upload failed: %w", err)
			}
			ux.Success(fmt.Sprintf("Pushed %q to gs://%s/%s", name, backupBucket, backupPrefix))
			return nil
		},
	}

	backupPullCmd = &cobra.Command{
		Use:   "pull <name>",
		Short: "Download a backed-up snapshot and merge it into the daemon",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			client, err := newBackupClient(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			snapshot, found, err := client.DownloadSnapshot(ctx, name)
			if err != nil {
				return fmt.Errorf("download failed: %w", err)
			}
			if !found {
				return fmt.Errorf("no backup for %q in gs://%s/%s", name, backupBucket, backupPrefix)
			}

			resp, err := httpClient.Post(
				serverURL+"/v1/drift/docs/"+name+"/merge",
				"application/json", bytes.NewReader(snapshot))
			if err != nil {
				return fmt.Errorf("failed to reach daemon at %s: %w", serverURL, err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return apiError(resp)
			}
			ux.Success(fmt.Sprintf("Pulled %q and merged it into the daemon", name))
			return nil
		},
	}

	backupListCmd = &cobra.Command{
		Use:   "list",
		Short: "List backed-up snapshots in the bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			client, err := newBackupClient(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			names, err := client.ListSnapshots(ctx)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				ux.Info("No backups found")
				return nil
			}
			ux.Box(fmt.Sprintf("Backups in gs://%s/%s", backupBucket, backupPrefix),
				strings.Join(names, "\n"))
			return nil
		},
	}
)

func init() {
	backupCmd.PersistentFlags().StringVar(&backupBucket, "bucket", "",
		"GCS bucket name (required)")
	backupCmd.PersistentFlags().StringVar(&backupPrefix, "prefix", "drift",
		"Object prefix inside the bucket")
	backupCmd.PersistentFlags().StringVar(&backupCredentials, "credentials", "",
		"Path to a service account key (default: application default credentials)")

	backupCmd.AddCommand(backupPushCmd)
	backupCmd.AddCommand(backupPullCmd)
	backupCmd.AddCommand(backupListCmd)
}

func newBackupClient(ctx context.Context) (*gcs.Client, error) {
	// Flags win; the backup section of ~/.aleutian/drift.yaml fills the
	// gaps so daemon and CLI share one backup target.
	if backupBucket == "" {
		if cfg, err := config.LoadDefault(); err == nil && cfg.Backup.Bucket != "" {
			backupBucket = cfg.Backup.Bucket
			if cfg.Backup.Prefix != "" {
				backupPrefix = cfg.Backup.Prefix
			}
			if backupCredentials == "" {
				backupCredentials = cfg.Backup.CredentialsFile
			}
		}
	}
	if backupBucket == "" {
		return nil, fmt.Errorf("--bucket is required (or set backup.bucket in %s)", config.DefaultPath())
	}
	return gcs.NewClient(ctx, backupBucket, backupPrefix, backupCredentials)
}
