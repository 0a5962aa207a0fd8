// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

package exprfilter

import (
	"testing"

	"github.com/fluxgraph/flux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterAdmitsByType(t *testing.T) {
	f, err := New(`type == "signal"`)
	require.NoError(t, err)

	nf := f.NodeFilter()
	g := flux.NewGraph()
	n, err := g.AddNode("s1", 0)
	require.NoError(t, err)
	n.Type = "signal"
	assert.True(t, nf(n))

	n.Type = "effect"
	assert.False(t, nf(n))
}

func TestFilterAdmitsByWeightAndDepth(t *testing.T) {
	f := MustNew("weight > 5 && depth == 0")
	g := flux.NewGraph()
	n, err := g.AddNode("n1", 10)
	require.NoError(t, err)

	assert.True(t, f.NodeFilter()(n))
}

func TestFilterReadsMetadata(t *testing.T) {
	f := MustNew(`priority == "high"`)
	g := flux.NewGraph()
	n, err := g.AddNode("n1", 0)
	require.NoError(t, err)
	n.Meta = map[string]any{"priority": "high"}

	assert.True(t, f.NodeFilter()(n))

	n.Meta = map[string]any{"priority": "low"}
	assert.False(t, f.NodeFilter()(n))
}

func TestFilterFailsClosedOnUndefinedIdentifier(t *testing.T) {
	f := MustNew("missing == 1")
	g := flux.NewGraph()
	n, err := g.AddNode("n1", 0)
	require.NoError(t, err)

	ok, err := f.Evaluate(n)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.False(t, f.NodeFilter()(n))
}

func TestNewRejectsMalformedExpression(t *testing.T) {
	_, err := New("type ==")
	assert.Error(t, err)
}
