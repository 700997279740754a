// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"sync"
	"time"
)

// DefaultHistoryLimit bounds the conflict log. Old entries roll off;
// totals in Stats keep counting.
const DefaultHistoryLimit = 100

// Record is one logged conflict and its outcome.
type Record struct {
	DocumentID   string    `json:"document_id"`
	ConflictType string    `json:"conflict_type"`
	Strategy     Strategy  `json:"-"`
	StrategyName string    `json:"strategy"`
	At           time.Time `json:"at"`
	Resolved     bool      `json:"resolved"`
	Err          string    `json:"error,omitempty"`
}

// Stats summarizes the log since creation, including entries that have
// rolled off the bounded window.
type Stats struct {
	Total      int            `json:"total"`
	Resolved   int            `json:"resolved"`
	Failed     int            `json:"failed"`
	ByStrategy map[string]int `json:"by_strategy"`
}

// ConflictLog is a bounded, concurrency-safe ring of conflict records.
type ConflictLog struct {
	mu      sync.Mutex
	limit   int
	entries []Record
	next    int
	full    bool
	stats   Stats
}

// NewConflictLog creates a log that retains at most limit records.
// A non-positive limit falls back to DefaultHistoryLimit.
func NewConflictLog(limit int) *ConflictLog {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &ConflictLog{
		limit:   limit,
		entries: make([]Record, limit),
		stats:   Stats{ByStrategy: make(map[string]int)},
	}
}

// record appends one entry, evicting the oldest when full.
func (l *ConflictLog) record(rec Record) {
	rec.StrategyName = rec.Strategy.String()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = rec
	l.next = (l.next + 1) % l.limit
	if l.next == 0 {
		l.full = true
	}

	l.stats.Total++
	if rec.Resolved {
		l.stats.Resolved++
	} else {
		l.stats.Failed++
	}
	l.stats.ByStrategy[rec.StrategyName]++
}

// Records returns the retained entries, oldest first.
func (l *ConflictLog) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.full {
		out := make([]Record, l.next)
		copy(out, l.entries[:l.next])
		return out
	}
	out := make([]Record, 0, l.limit)
	out = append(out, l.entries[l.next:]...)
	out = append(out, l.entries[:l.next]...)
	return out
}

// Stats returns cumulative counts since the log was created.
func (l *ConflictLog) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	by := make(map[string]int, len(l.stats.ByStrategy))
	for k, v := range l.stats.ByStrategy {
		by[k] = v
	}
	return Stats{
		Total:      l.stats.Total,
		Resolved:   l.stats.Resolved,
		Failed:     l.stats.Failed,
		ByStrategy: by,
	}
}
