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
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianDrift/pkg/ux"
	"github.com/AleutianAI/AleutianDrift/services/drift/transport"
)

var syncPoll time.Duration

var syncCmd = &cobra.Command{
	Use:   "sync <name> <peer-url>",
	Short: "Sync a document with a peer daemon",
	Long: `Bridge a document between the local daemon and a peer daemon. Both
ends exchange snapshot envelopes over their websocket sync endpoints
until one side disconnects or Ctrl+C stops the bridge.

The peer URL is the peer daemon's base URL (http:// or ws://); the
document endpoint is derived from it.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		localURL := syncEndpoint(serverURL, name)
		peerURL := syncEndpoint(args[1], name)

		ctx, cancel := signal.NotifyContext(context.Background(),
			syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		local, err := transport.Dial(ctx, localURL)
		if err != nil {
			return fmt.Errorf("failed to reach daemon at %s: %w", serverURL, err)
		}
		defer local.Close()

		peer, err := transport.Dial(ctx, peerURL)
		if err != nil {
			return fmt.Errorf("failed to reach peer at %s: %w", args[1], err)
		}
		defer peer.Close()

		ux.Title("Syncing " + name)
		ux.Muted("Local: " + localURL)
		ux.Muted("Peer:  " + peerURL)
		ux.Muted("Press Ctrl+C to stop")

		err = transport.Relay(ctx, local, peer, syncPoll)
		switch {
		case errors.Is(err, context.Canceled):
			ux.Info("Stopped")
			return nil
		case errors.Is(err, transport.ErrClosed), errors.Is(err, transport.ErrNotConnected):
			ux.Info("Peer disconnected")
			return nil
		default:
			return err
		}
	},
}

func init() {
	syncCmd.Flags().DurationVar(&syncPoll, "poll", 50*time.Millisecond,
		"How often buffered frames are forwarded")
}

// syncEndpoint turns a daemon base URL into the websocket sync endpoint
// for a document.
func syncEndpoint(base, name string) string {
	u := strings.TrimSuffix(base, "/")
	switch {
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	}
	return u + "/ws/drift/" + name
}
