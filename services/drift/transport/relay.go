// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

import (
	"context"
	"time"
)

const defaultRelayPoll = 50 * time.Millisecond

// Relay shuttles frames between two transports until either side
// closes, a send fails, or the context is canceled.
//
// Description:
//
//	Each tick, frames buffered on one side are forwarded to the other,
//	in both directions. Duplicate or reordered delivery is fine; the
//	endpoints merge snapshots, so forwarding is fire-and-forget.
//
// Inputs:
//
//	ctx - Cancel to stop the relay; its error is returned.
//	a, b - The two endpoints. Relay does not close them.
//	poll - Inbox polling interval. Zero or negative selects a default.
//
// Outputs:
//
//	error - ctx.Err() on cancellation, ErrClosed when a side has shut
//	down cleanly, or the first send/receive failure.
func Relay(ctx context.Context, a, b Transport, poll time.Duration) error {
	if poll <= 0 {
		poll = defaultRelayPoll
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := forward(a, b); err != nil {
			return err
		}
		if err := forward(b, a); err != nil {
			return err
		}
	}
}

func forward(from, to Transport) error {
	frames, err := from.Receive()
	if err != nil {
		return err
	}
	for _, frame := range frames {
		if err := to.Send(frame); err != nil {
			return err
		}
	}
	return nil
}
