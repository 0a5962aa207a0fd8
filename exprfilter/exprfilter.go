// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

// Package exprfilter implements a flux.NodeFilter backed by a govaluate expression string,
// evaluated against a node's type tag and metadata. It gives callers that declare phases
// declaratively (see the sibling fluxconfig package) a way to express the "nodes: predicate"
// phase field of spec §6 as serializable text instead of a Go closure.
package exprfilter

import (
	"fmt"

	"github.com/Knetic/govaluate"
	"github.com/fluxgraph/flux"
)

// Filter wraps a compiled govaluate expression and evaluates it against a node's parameters on
// every call, mirroring how graft's calc operator compiles once and evaluates per invocation.
type Filter struct {
	expr   *govaluate.EvaluableExpression
	source string
}

// New compiles expr. Supported parameter names, available to the expression by bare
// identifier, are "type" (the node's Type tag, a string), "weight" (float64), "depth"
// (float64), and, when Meta is a map[string]any, one entry per Meta key holding that key's
// value unchanged (a Meta key named type, weight or depth does not replace the built-in). Any
// other Meta shape leaves those identifiers undefined, which govaluate reports as an
// evaluation error rather than a compile error.
func New(expr string) (*Filter, error) {
	compiled, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return nil, fmt.Errorf("exprfilter: compiling %q: %w", expr, err)
	}
	return &Filter{expr: compiled, source: expr}, nil
}

// MustNew is New, panicking on error. Mirrors flux.MustNew's convenience-constructor pattern.
func MustNew(expr string) *Filter {
	f, err := New(expr)
	if err != nil {
		panic(fmt.Sprintf("exprfilter: %v", err))
	}
	return f
}

// String returns the original expression source.
func (f *Filter) String() string { return f.source }

// NodeFilter adapts f into a flux.NodeFilter. A node is admitted only when the expression
// evaluates to a boolean true; an evaluation error (e.g. a referenced Meta key is absent)
// rejects the node rather than panicking, since a phase's filter runs on every notify for
// every candidate node and must never abort a drain.
func (f *Filter) NodeFilter() flux.NodeFilter {
	return func(n *flux.Node) bool {
		ok, err := f.Evaluate(n)
		return err == nil && ok
	}
}

// Evaluate runs the expression against n's parameters directly, for callers that want the
// error rather than the fail-closed flux.NodeFilter adaptation.
func (f *Filter) Evaluate(n *flux.Node) (bool, error) {
	params := parametersFor(n)
	result, err := f.expr.Evaluate(params)
	if err != nil {
		return false, fmt.Errorf("exprfilter: evaluating %q: %w", f.source, err)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("exprfilter: expression %q did not evaluate to a boolean, got %T", f.source, result)
	}
	return b, nil
}

func parametersFor(n *flux.Node) map[string]any {
	params := map[string]any{
		"type":   n.Type,
		"weight": float64(n.Weight),
		"depth":  float64(n.Depth()),
	}
	if meta, ok := n.Meta.(map[string]any); ok {
		for k, v := range meta {
			if _, reserved := params[k]; reserved {
				continue
			}
			params[k] = v
		}
	}
	return params
}
