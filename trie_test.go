// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

package flux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterAddMatchLiteral(t *testing.T) {
	r := NewRouter[string]()
	r.Add(mustParse(t, "foo.bar"), "p1")

	assert.Contains(t, r.Match(mustParse(t, "foo.bar")), "p1")
	assert.NotContains(t, r.Match(mustParse(t, "foo.baz")), "p1")
}

func TestRouterDeepMaskMatchesDescendants(t *testing.T) {
	r := NewRouter[string]()
	r.Add(mustParse(t, "com.*"), "p1")

	for _, target := range []string{"com", "com.x", "com.x.y"} {
		t.Run(target, func(t *testing.T) {
			assert.Contains(t, r.Match(mustParse(t, target)), "p1")
		})
	}
	assert.NotContains(t, r.Match(mustParse(t, "other")), "p1")
}

func TestRouterMatchWithParams(t *testing.T) {
	r := NewRouter[string]()
	r.Add(mustParse(t, "orders[id=$oid].items[id=$iid].price"), "P")

	matches := r.MatchWithParams(mustParse(t, "orders[id=42].items[id=7].price"))
	require.Len(t, matches, 1)
	assert.Equal(t, "P", matches[0].Payload)
	require.Contains(t, matches[0].Params, "oid")
	require.Contains(t, matches[0].Params, "iid")
	assert.Equal(t, int64(42), matches[0].Params["oid"].Literal)
	assert.Equal(t, int64(7), matches[0].Params["iid"].Literal)
}

func TestRouterIndexPlaceholderCapture(t *testing.T) {
	r := NewRouter[string]()
	r.Add(mustParse(t, "legs[$i].name"), "P")

	matches := r.MatchWithParams(mustParse(t, "legs[3].name"))
	require.Len(t, matches, 1)
	assert.Equal(t, int64(3), matches[0].Params["i"].Literal)
}

func TestRouterRemovePayload(t *testing.T) {
	r := NewRouter[string]()
	mask := mustParse(t, "a.b.c")
	r.Add(mask, "p1")
	require.Contains(t, r.Match(mustParse(t, "a.b.c")), "p1")

	r.RemovePayload("p1")
	assert.NotContains(t, r.Match(mustParse(t, "a.b.c")), "p1")
}

func TestRouterRemoveSinglePayload(t *testing.T) {
	r := NewRouter[string]()
	mask := mustParse(t, "a.b")
	r.Add(mask, "p1")
	r.Add(mask, "p2")

	r.Remove(mask, "p1")
	got := r.Match(mustParse(t, "a.b"))
	assert.NotContains(t, got, "p1")
	assert.Contains(t, got, "p2")
}

func TestRouterAddIdempotent(t *testing.T) {
	r := NewRouter[string]()
	mask := mustParse(t, "a.b")
	r.Add(mask, "p1")
	r.Add(mask, "p1")
	got := r.Match(mustParse(t, "a.b"))
	assert.Len(t, got, 1)
}

func TestRouterCollectByPrefix(t *testing.T) {
	r := NewRouter[string]()
	r.Add(mustParse(t, "a.b.c"), "p1")
	r.Add(mustParse(t, "a.b.d"), "p2")
	r.Add(mustParse(t, "a.x"), "p3")

	got := r.CollectByPrefix(mustParse(t, "a.b"))
	assert.ElementsMatch(t, []string{"p1", "p2"}, got)
}

func TestRouterCollectByPrefixRejectsWildcardPrefix(t *testing.T) {
	r := NewRouter[string]()
	r.Add(mustParse(t, "a.*.c"), "p1")
	got := r.CollectByPrefix(mustParse(t, "a.*"))
	assert.Nil(t, got)
}

func TestRouterMatchIncludingPrefix(t *testing.T) {
	r := NewRouter[string]()
	r.Add(mustParse(t, "a"), "self")
	r.Add(mustParse(t, "a.b"), "below")

	got := r.MatchIncludingPrefix(mustParse(t, "a"))
	assert.ElementsMatch(t, []string{"self", "below"}, got)
}

func TestRouterMatchIncludingPrefixWithParamsInheritsCaptures(t *testing.T) {
	r := NewRouter[string]()
	r.Add(mustParse(t, "orders[id=$oid]"), "self")
	r.Add(mustParse(t, "orders[id=$oid].items"), "below")

	got := r.MatchIncludingPrefixWithParams(mustParse(t, "orders[id=7]"))
	require.Len(t, got, 2)
	for _, m := range got {
		require.Contains(t, m.Params, "oid")
		assert.Equal(t, int64(7), m.Params["oid"].Literal)
	}
}

func TestRouterCollectByPrefixIsCached(t *testing.T) {
	r := NewRouter[string]()
	r.Add(mustParse(t, "a.b.c"), "p1")

	first := r.CollectByPrefix(mustParse(t, "a.b"))
	assert.Contains(t, first, "p1")

	r.Add(mustParse(t, "a.b.d"), "p2")
	second := r.CollectByPrefix(mustParse(t, "a.b"))
	assert.ElementsMatch(t, []string{"p1", "p2"}, second)
}

func TestRouterCacheSurvivesStructuralChange(t *testing.T) {
	r := NewRouter[string]()
	target := mustParse(t, "a.b")
	r.Add(mustParse(t, "a.b"), "p1")
	// Warm the cache.
	assert.Contains(t, r.Match(target), "p1")

	r.Add(mustParse(t, "a.b"), "p2")
	got := r.Match(target)
	assert.Contains(t, got, "p1")
	assert.Contains(t, got, "p2")
}

func TestRouterEncodingDistinguishesKeyAndIndex(t *testing.T) {
	r := NewRouter[string]()
	r.Add(mustParse(t, "rows[3]"), "byIndex")
	r.Add(mustParse(t, "rows.3"), "byKey")

	gotIndex := r.Match(mustParse(t, "rows[3]"))
	assert.Contains(t, gotIndex, "byIndex")
	assert.NotContains(t, gotIndex, "byKey")
}

func TestRouterParamLiteralTypeDistinguished(t *testing.T) {
	r := NewRouter[string]()
	r.Add(mustParse(t, "n[id=42].m"), "int")
	r.Add(mustParse(t, `n[id="42"].m`), "str")

	got := r.Match(mustParse(t, "n[id=42].m"))
	assert.Contains(t, got, "int")
	assert.NotContains(t, got, "str")
}
