// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

package flux

// NodeFilter is a predicate over a node, used to admit or reject candidates for a phase. It is
// the function form of the "node-filter" concept in spec §4.5; WithNodeTypes builds one from a
// type list.
type NodeFilter func(*Node) bool

// PhaseEvent describes one matched mutation delivered to a node for a given phase tick.
type PhaseEvent struct {
	// Path is the mutation's original path string, as passed to the notify pipeline.
	Path string
	// Canonical is the normalised path string, with dynamic components widened to wildcards.
	Canonical string
	// CanonicalPath is the parsed form of Canonical.
	CanonicalPath Path
	// Entries holds, for each Param segment of the original path, the resolved capture.
	Entries []ResolvedEntry
}

// ResolvedEntry is one captured Param binding of a mutation path.
type ResolvedEntry struct {
	ContainerKey string
	ParamKey     string
	Value        ParamValue
	Index        int
}

// PhaseContext is handed to a phase's Each or All executor for a single dirty node.
type PhaseContext struct {
	Phase  string
	Node   *Node
	Events []PhaseEvent
}

// PhaseDef is the caller-supplied definition of a phase, consumed by DefinePhases.
type PhaseDef struct {
	Name      string
	Traversal TraversalPolicy
	Routes    []string // mask strings, parsed via Parse
	Filter    NodeFilter

	// Exactly one of Each/All must be set.
	Each func(ctx PhaseContext)
	All  func(ctxs []PhaseContext)
}

// Phase is the resolved, validated form of a PhaseDef, carrying its assigned bit index.
type Phase struct {
	Name      string
	Index     int
	Traversal TraversalPolicy
	Routes    []Path
	Filter    NodeFilter
	Each      func(ctx PhaseContext)
	All       func(ctxs []PhaseContext)
}

// IsBatched reports whether the phase uses the All executor contract.
func (p *Phase) IsBatched() bool { return p.All != nil }

// maxDefinablePhases is a sanity cap on the number of phases a single app may define: the
// bitmask/set dedup scheme in Node has no hard limit, but an unbounded phase table is almost
// always a configuration mistake rather than a real topology.
const maxDefinablePhases = 1 << 20

// PhaseTable is the resolved, ordered phase list plus the phase-router that maps a mask to the
// phase names interested in it.
type PhaseTable struct {
	phases []*Phase
	byName map[string]*Phase
	router *Router[string]
}

// DefinePhases replaces the phase table: it validates names for uniqueness, assigns each phase
// a bit index equal to its position, and rebuilds the phase-router.
func DefinePhases(defs []PhaseDef) (*PhaseTable, error) {
	if len(defs) > maxDefinablePhases {
		return nil, ErrTooManyPhases
	}

	t := &PhaseTable{
		byName: make(map[string]*Phase, len(defs)),
		router: NewRouter[string](),
	}

	for i, d := range defs {
		if d.Each == nil && d.All == nil {
			return nil, &ConflictError{Kind: "phase", Subject: d.Name, Reason: "neither each nor all executor set"}
		}
		if d.Each != nil && d.All != nil {
			return nil, &ConflictError{Kind: "phase", Subject: d.Name, Reason: "both each and all executors set"}
		}
		if _, dup := t.byName[d.Name]; dup {
			return nil, &ConflictError{Kind: "phase", Subject: d.Name, Reason: "duplicate phase name"}
		}

		routes := make([]Path, 0, len(d.Routes))
		for _, r := range d.Routes {
			p, err := Parse(r)
			if err != nil {
				return nil, err
			}
			routes = append(routes, p)
		}

		phase := &Phase{
			Name:      d.Name,
			Index:     i,
			Traversal: d.Traversal,
			Routes:    routes,
			Filter:    d.Filter,
			Each:      d.Each,
			All:       d.All,
		}
		t.phases = append(t.phases, phase)
		t.byName[d.Name] = phase

		for _, r := range routes {
			t.router.Add(r, d.Name)
		}
	}

	return t, nil
}

// Phases returns the phase list in declared order.
func (t *PhaseTable) Phases() []*Phase { return t.phases }

// Lookup returns the phase registered under name.
func (t *PhaseTable) Lookup(name string) (*Phase, bool) {
	p, ok := t.byName[name]
	return p, ok
}

// PhasesForPath returns the names of every phase whose routes match path.
func (t *PhaseTable) PhasesForPath(path Path) []string {
	return t.router.Match(path)
}

// WithNodeTypes builds a NodeFilter that admits nodes whose type tag (read via typeOf) is one
// of types.
func WithNodeTypes(typeOf func(*Node) string, types ...string) NodeFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(n *Node) bool {
		_, ok := set[typeOf(n)]
		return ok
	}
}
