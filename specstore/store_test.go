// Copyright (C) 2026 Substrate Labs (eng@substratelabs.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package specstore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/substratelabs/atlas/verify"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := &Doc{
		Kind:   KindPlaybook,
		SpecID: "migrate-safely",
		Title:  "Migrating models safely",
		Body:   json.RawMessage(`{"steps":["run impact first"]}`),
	}
	require.NoError(t, s.Put(ctx, doc))

	got, err := s.Get(ctx, KindPlaybook, "migrate-safely")
	require.NoError(t, err)
	assert.Equal(t, doc.Title, got.Title)
	assert.NotZero(t, got.UpdatedAtMilli)

	_, err = s.Get(ctx, KindPlaybook, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Validation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, doc := range []*Doc{
		{Kind: "", SpecID: "x"},
		{Kind: "k", SpecID: ""},
		{Kind: "a/b", SpecID: "x"},
	} {
		assert.ErrorIs(t, s.Put(ctx, doc), ErrInvalidDoc, "doc %+v", doc)
	}
}

func TestStore_SeedAndSearch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, created, "5 invariants plus 1 schema")

	// Seeding again must not overwrite or duplicate.
	again, err := s.Seed(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)

	invariants, err := s.List(ctx, KindInvariant)
	require.NoError(t, err)
	assert.Len(t, invariants, 5)

	hits, err := s.Search(ctx, "anchor")
	require.NoError(t, err)
	var found bool
	for _, doc := range hits {
		if doc.SpecID == verify.InvAnchorOrdering {
			found = true
		}
	}
	assert.True(t, found, "search for anchor missed the anchor invariant: %+v", hits)

	_, err = s.Search(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidDoc)
}

func TestStore_SeedPreservesEdits(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Seed(ctx)
	require.NoError(t, err)

	edited := &Doc{
		Kind:   KindInvariant,
		SpecID: verify.InvRelIDsUnique,
		Title:  "Edited locally",
	}
	require.NoError(t, s.Put(ctx, edited))
	_, err = s.Seed(ctx)
	require.NoError(t, err)

	got, err := s.Get(ctx, KindInvariant, verify.InvRelIDsUnique)
	require.NoError(t, err)
	assert.Equal(t, "Edited locally", got.Title, "seed must not overwrite a local edit")
}
