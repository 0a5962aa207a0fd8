// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

// Package reactivity layers Signal/Computed/Effect/Watch over a *flux.App, the thin-node shape
// the design notes describe: each reactive primitive is a graph node in its own right, and
// re-evaluation is driven by the same dirty-bucket scheduler every other node uses. Signals and
// computed values are registered into two built-in phases, "__computed" and "__signals",
// returned by (*Reactor).Phases for the caller to merge into its own phase table.
//
// Dependency tracking between signals and computed values is automatic: reading a Signal or
// Computed while a Computed or Effect is evaluating records a graph edge from the thing read to
// the thing reading it. That bookkeeping lives entirely in Reactor's own compute-context stack —
// an explicit field on Reactor, not a package-level or goroutine-local global — so the core
// engine never has to know reactivity exists.
package reactivity

import (
	"reflect"
	"sync"

	"github.com/fluxgraph/flux"
	"github.com/google/uuid"
)

// Built-in phase names a Reactor registers its nodes into.
const (
	PhaseComputed = "__computed"
	PhaseSignals  = "__signals"
)

// Reactor owns the signal/computed/effect/watch registries for one App and mediates the
// compute-context stack used for automatic dependency tracking.
type Reactor struct {
	app *flux.App

	mu        sync.Mutex
	computeds map[flux.NodeID]*Computed
	effects   map[flux.NodeID]*Effect
	watches   map[flux.NodeID]*Watch

	stackMu sync.Mutex
	stack   []flux.NodeID
}

// NewReactor creates a Reactor bound to app. app should already exist; the caller merges
// Phases() into its own PhaseDef list before (or via App.DefinePhases after) constructing app,
// since signals and computed values need their phases present before any Set call can reach
// them.
func NewReactor(app *flux.App) *Reactor {
	return &Reactor{
		app:       app,
		computeds: make(map[flux.NodeID]*Computed),
		effects:   make(map[flux.NodeID]*Effect),
		watches:   make(map[flux.NodeID]*Watch),
	}
}

// Phases returns the built-in phase definitions for computed recomputation and effect/watch
// dispatch. Computed is listed first so that, within a single drain, every computed value
// reachable from a changed signal has already settled by the time effects and watches observing
// it run.
func (r *Reactor) Phases() []flux.PhaseDef {
	return []flux.PhaseDef{
		{
			Name:      PhaseComputed,
			Traversal: flux.TraversalDirtyAndDown,
			Routes:    []string{"*"},
			Each:      r.runComputed,
		},
		{
			Name:      PhaseSignals,
			Traversal: flux.TraversalDirtyAndDown,
			Routes:    []string{"*"},
			Each:      r.runSignalPhase,
		},
	}
}

// propagate cascades a changed node (a Signal or a Computed) into both built-in phases: the
// computed phase first, so dependent computed values recompute before any effect or watch that
// reads them runs in the signals phase.
func (r *Reactor) propagate(id flux.NodeID, invalidate bool) {
	r.app.DirtyCascade(PhaseComputed, id, false, nil)
	r.app.DirtyCascade(PhaseSignals, id, invalidate, nil)
}

func (r *Reactor) pushContext(id flux.NodeID) {
	r.stackMu.Lock()
	r.stack = append(r.stack, id)
	r.stackMu.Unlock()
}

func (r *Reactor) popContext() {
	r.stackMu.Lock()
	r.stack = r.stack[:len(r.stack)-1]
	r.stackMu.Unlock()
}

// trackRead records that the node currently on top of the compute-context stack, if any, reads
// id — wiring a parent(id) -> child(dependent) graph edge so a later change to id cascades to
// the dependent through DirtyCascade. Reads outside of any Computed/Effect evaluation (the stack
// is empty) are untracked, exactly like reading a signal at setup time.
func (r *Reactor) trackRead(id flux.NodeID) {
	r.stackMu.Lock()
	defer r.stackMu.Unlock()
	if len(r.stack) == 0 {
		return
	}
	dependent := r.stack[len(r.stack)-1]
	if dependent == id {
		return
	}
	r.app.AddEdge(id, dependent)
}

func (r *Reactor) runComputed(ctx flux.PhaseContext) {
	r.mu.Lock()
	c, ok := r.computeds[ctx.Node.ID]
	r.mu.Unlock()
	if !ok {
		return
	}
	c.recompute()
}

func (r *Reactor) runSignalPhase(ctx flux.PhaseContext) {
	r.mu.Lock()
	e, isEffect := r.effects[ctx.Node.ID]
	w, isWatch := r.watches[ctx.Node.ID]
	r.mu.Unlock()

	if isEffect {
		e.run()
	}
	if isWatch {
		for _, ev := range ctx.Events {
			w.fn(ev)
		}
	}
}

func valueChanged(old, new any, initialized bool) bool {
	if !initialized {
		return true
	}
	return !reflect.DeepEqual(old, new)
}

// Signal is a leaf reactive value: the source of truth other Computed/Effect/Watch values
// depend on.
type Signal struct {
	id flux.NodeID
	r  *Reactor

	mu    sync.RWMutex
	value any
}

// NewSignal registers a new Signal holding initial, as a graph node with no parents.
func (r *Reactor) NewSignal(initial any) (*Signal, error) {
	id := flux.NodeID(uuid.New().String())
	if _, err := r.app.AddNode(id, 0, "signal", nil); err != nil {
		return nil, err
	}
	return &Signal{id: id, r: r, value: initial}, nil
}

// ID returns the signal's graph node id.
func (s *Signal) ID() flux.NodeID { return s.id }

// Get returns the current value, recording a dependency edge if called while a Computed or
// Effect is evaluating.
func (s *Signal) Get() any {
	s.r.trackRead(s.id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Set assigns v and, if it differs from the current value, marks every dependent Computed and
// Effect/Watch dirty and invalidates the scheduler.
func (s *Signal) Set(v any) {
	s.mu.Lock()
	changed := valueChanged(s.value, v, true)
	s.value = v
	s.mu.Unlock()

	if changed {
		s.r.propagate(s.id, true)
	}
}

// Computed is a derived value recomputed from other Signals and Computeds it reads during its
// compute function. Dependencies are discovered automatically on every recompute, so a compute
// function that branches between different signals is re-wired correctly each time it runs.
type Computed struct {
	id      flux.NodeID
	r       *Reactor
	compute func() any

	mu          sync.RWMutex
	value       any
	initialized bool
}

// NewComputed registers a Computed and runs compute once immediately to establish its initial
// value and dependency edges.
func (r *Reactor) NewComputed(compute func() any) (*Computed, error) {
	id := flux.NodeID(uuid.New().String())
	if _, err := r.app.AddNode(id, 0, "computed", nil); err != nil {
		return nil, err
	}
	c := &Computed{id: id, r: r, compute: compute}

	r.mu.Lock()
	r.computeds[id] = c
	r.mu.Unlock()

	c.recompute()
	return c, nil
}

// ID returns the computed value's graph node id.
func (c *Computed) ID() flux.NodeID { return c.id }

// Get returns the last computed value, recording a dependency edge if called while another
// Computed or an Effect is evaluating.
func (c *Computed) Get() any {
	c.r.trackRead(c.id)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

func (c *Computed) recompute() {
	c.r.pushContext(c.id)
	newVal := c.compute()
	c.r.popContext()

	c.mu.Lock()
	changed := valueChanged(c.value, newVal, c.initialized)
	c.value = newVal
	c.initialized = true
	c.mu.Unlock()

	if changed {
		c.r.propagate(c.id, false)
	}
}

// Effect re-runs a side-effecting function whenever a Signal or Computed it reads changes,
// exactly like Computed but without a memoized return value.
type Effect struct {
	id flux.NodeID
	r  *Reactor
	fn func()
}

// NewEffect registers an Effect and runs fn once immediately to establish its dependency edges.
func (r *Reactor) NewEffect(fn func()) (*Effect, error) {
	id := flux.NodeID(uuid.New().String())
	if _, err := r.app.AddNode(id, 0, "effect", nil); err != nil {
		return nil, err
	}
	e := &Effect{id: id, r: r, fn: fn}

	r.mu.Lock()
	r.effects[id] = e
	r.mu.Unlock()

	e.run()
	return e, nil
}

// ID returns the effect's graph node id.
func (e *Effect) ID() flux.NodeID { return e.id }

func (e *Effect) run() {
	e.r.pushContext(e.id)
	defer e.r.popContext()
	e.fn()
}

// Watch subscribes to path mutations directly, the way App.Track does, rather than to a Signal
// or Computed through graph edges. It fires once per matching PhaseEvent, whose Entries hold the
// Param captures resolved from the mutated path itself; the captures the node-router binds for
// the watch's own masks are not carried into the event.
type Watch struct {
	id flux.NodeID
	r  *Reactor
	fn func(flux.PhaseEvent)
}

// NewWatch registers a Watch on masks and returns it. fn is called once per PhaseEvent produced
// by a mutation matching any of masks.
func (r *Reactor) NewWatch(fn func(flux.PhaseEvent), masks ...string) (*Watch, error) {
	id := flux.NodeID(uuid.New().String())
	if _, err := r.app.AddNode(id, 0, "watch", nil); err != nil {
		return nil, err
	}
	if err := r.app.Track(id, masks...); err != nil {
		r.app.RemoveNode(id)
		return nil, err
	}
	w := &Watch{id: id, r: r, fn: fn}

	r.mu.Lock()
	r.watches[id] = w
	r.mu.Unlock()

	return w, nil
}

// ID returns the watch's graph node id.
func (w *Watch) ID() flux.NodeID { return w.id }

// Close removes the watch's node and its path-mask registrations. Further mutations no longer
// reach fn.
func (w *Watch) Close() {
	w.r.mu.Lock()
	delete(w.r.watches, w.id)
	w.r.mu.Unlock()
	w.r.app.RemoveNode(w.id)
}
