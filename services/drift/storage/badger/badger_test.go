// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, found, err := store.Get(ctx, "doc/missing")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.Set(ctx, "doc/a", []byte("alpha")))
	value, found, err := store.Get(ctx, "doc/a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("alpha"), value)

	require.NoError(t, store.Set(ctx, "doc/a", []byte("beta")))
	value, _, err = store.Get(ctx, "doc/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("beta"), value)
}

func TestStoreKeysAndRemove(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

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

func TestStoreHonorsContext(t *testing.T) {
	store := openTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := store.Get(ctx, "doc/a")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, store.Set(ctx, "doc/a", []byte("x")), context.Canceled)
}
