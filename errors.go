// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

package flux

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrWildcardPath is returned by CRUD operations on the adapter when the supplied path
	// contains a Wildcard segment. Wildcards are only valid as subscription masks.
	ErrWildcardPath = errors.New("flux: wildcard not allowed in a data path")
	// ErrNotSequence is returned when a Param segment is applied to a container that is not
	// an ordered sequence.
	ErrNotSequence = errors.New("flux: param or index segment requires a sequence")
	// ErrMissingContainer is returned by a write when a container on the path is absent and
	// auto-creation is disabled, when a container is not the kind the next segment needs (a
	// mapping for a key, a sequence for an index), or when an index is negative.
	ErrMissingContainer = errors.New("flux: missing container")
	// ErrParamTargetNotMap is returned when a Param leaf assignment target (or the supplied
	// value) is not a mapping.
	ErrParamTargetNotMap = errors.New("flux: param leaf target is not a mapping")
	// ErrParamElementMissing is returned when a Param element cannot be found and
	// auto-creation is disabled.
	ErrParamElementMissing = errors.New("flux: param element not found")
	// ErrInvalidPath is returned by Parse when the path expression is structurally invalid,
	// e.g. unbalanced brackets.
	ErrInvalidPath = errors.New("flux: invalid path expression")
	// ErrUnknownPhase identifies an unknown phase name. App.Dirty and App.DirtyCascade do not
	// return it: they log the unknown phase and ignore the call.
	ErrUnknownPhase = errors.New("flux: unknown phase")
	// ErrPhaseNameConflict is returned by DefinePhases when two phases share a name.
	ErrPhaseNameConflict = errors.New("flux: duplicate phase name")
	// ErrTooManyPhases is returned by DefinePhases when the number of phases exceeds
	// maxDefinablePhases, a sanity cap; the per-node dirty tracking in node.go has no hard limit.
	ErrTooManyPhases = errors.New("flux: too many phases for bitmask dedup")
	// ErrNodeExists is returned by AddNode when the id is already registered.
	ErrNodeExists = errors.New("flux: node already exists")
	// ErrNodeNotFound identifies a node id that does not resolve to a registered node. No
	// function in this package returns it; lookups report a missing node with nil or false.
	ErrNodeNotFound = errors.New("flux: node not found")
	// ErrSelfLoop identifies an edge whose parent and child are the same node. AddEdge reports
	// that case by returning false and does not return this value.
	ErrSelfLoop = errors.New("flux: self loop not allowed")
	// ErrCycle is the sentinel wrapped by CycleError.
	ErrCycle = errors.New("flux: edge would introduce a cycle")
)

// CycleError describes an AddEdge call that was rejected because it would have introduced a
// cycle into the dependency graph.
type CycleError struct {
	Parent NodeID
	Child  NodeID
	// Path is the cycle that would have been formed, from Child back to Parent.
	Path []NodeID
}

func (e *CycleError) Error() string {
	sb := new(strings.Builder)
	fmt.Fprintf(sb, "flux: edge %s -> %s rejected, cycle", e.Parent, e.Child)
	if len(e.Path) > 0 {
		sb.WriteString(": ")
		for i, id := range e.Path {
			if i > 0 {
				sb.WriteString(" -> ")
			}
			sb.WriteString(string(id))
		}
	}
	return sb.String()
}

// Unwrap returns the sentinel value ErrCycle.
func (e *CycleError) Unwrap() error {
	return ErrCycle
}

// ConflictError describes a structural conflict detected while registering a node or a phase.
type ConflictError struct {
	Kind    string
	Subject string
	Reason  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("flux: %s conflict for %q: %s", e.Kind, e.Subject, e.Reason)
}

// Unwrap returns ErrNodeExists or ErrPhaseNameConflict depending on Kind.
func (e *ConflictError) Unwrap() error {
	switch e.Kind {
	case "node":
		return ErrNodeExists
	case "phase":
		return ErrPhaseNameConflict
	default:
		return nil
	}
}
