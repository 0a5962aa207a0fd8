// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

package fluxconfig

import (
	"strings"
	"testing"

	"github.com/fluxgraph/flux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
phases:
  - name: render
    traversal: dirty-only
    routes: ["ui.*"]
  - name: audit
    traversal: all
    routes: ["*"]
    filter: 'type == "signal"'
`

func TestLoadDecodesPhases(t *testing.T) {
	cfg, err := Load(strings.NewReader(sample))
	require.NoError(t, err)
	require.Len(t, cfg.Phases, 2)
	assert.Equal(t, "render", cfg.Phases[0].Name)
	assert.Equal(t, []string{"ui.*"}, cfg.Phases[0].Routes)
	assert.Equal(t, `type == "signal"`, cfg.Phases[1].Filter)
}

func TestBuildResolvesExecutorsAndTraversal(t *testing.T) {
	cfg, err := Load(strings.NewReader(sample))
	require.NoError(t, err)

	defs, err := cfg.Build(map[string]Executor{
		"render": {Each: func(flux.PhaseContext) {}},
		"audit":  {All: func([]flux.PhaseContext) {}},
	})
	require.NoError(t, err)
	require.Len(t, defs, 2)

	assert.Equal(t, flux.TraversalDirtyOnly, defs[0].Traversal)
	assert.NotNil(t, defs[0].Each)
	assert.Equal(t, flux.TraversalAll, defs[1].Traversal)
	assert.NotNil(t, defs[1].All)
	assert.NotNil(t, defs[1].Filter)
}

func TestBuildCollectsEveryError(t *testing.T) {
	cfg := &Config{Phases: []PhaseSpec{
		{Name: "a", Traversal: "not-a-traversal", Routes: []string{"*"}},
		{Name: "b", Traversal: "dirty-only"}, // no executor registered
		{Traversal: "dirty-only"},            // missing name
	}}

	_, err := cfg.Build(nil)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "unknown traversal")
	assert.Contains(t, msg, "no executor registered")
	assert.Contains(t, msg, "missing a name")
}

func TestBuildRejectsBothExecutors(t *testing.T) {
	cfg := &Config{Phases: []PhaseSpec{{Name: "p", Traversal: "all", Routes: []string{"*"}}}}
	_, err := cfg.Build(map[string]Executor{
		"p": {Each: func(flux.PhaseContext) {}, All: func([]flux.PhaseContext) {}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one of Each/All")
}

func TestBuildPropagatesMalformedFilter(t *testing.T) {
	cfg := &Config{Phases: []PhaseSpec{
		{Name: "p", Traversal: "all", Routes: []string{"*"}, Filter: "type =="},
	}}
	_, err := cfg.Build(map[string]Executor{"p": {All: func([]flux.PhaseContext) {}}})
	require.Error(t, err)
}
