// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	_, found, err := store.Get(ctx, "doc/missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "doc/a", []byte("alpha")))
	value, found, err := store.Get(ctx, "doc/a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("alpha"), value)

	// The returned slice is a copy.
	value[0] = 'X'
	again, _, err := store.Get(ctx, "doc/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("alpha"), again)
}

func TestMemoryKeysAndRemove(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	require.NoError(t, store.Set(ctx, "doc/b", []byte("1")))
	require.NoError(t, store.Set(ctx, "doc/a", []byte("2")))
	require.NoError(t, store.Set(ctx, "meta/x", []byte("3")))

	keys, err := store.Keys(ctx, "doc/")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc/a", "doc/b"}, keys)

	all, err := store.Keys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, store.Remove(ctx, "doc/a"))
	require.NoError(t, store.Remove(ctx, "doc/a")) // no-op
	_, found, err := store.Get(ctx, "doc/a")
	require.NoError(t, err)
	assert.False(t, found)
}
