// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

package flux

import (
	"fmt"
	"log/slog"
)

// App is the façade described in spec §2: it wires the pattern-trie routers, the dependency
// graph, the data adapter, the phase table, and the dirty-bucket scheduler into the single
// notify pipeline a consumer drives via Set/Merge/Delete and Track.
//
// Per spec §5, App implements a single-threaded cooperative model: there is one logical
// executor, and all core operations run to completion on it. App deliberately holds no
// internal lock, because a phase executor is free to call back into the app (e.g. Set) while
// a drain is in progress under the sync scheduler policy; a non-reentrant mutex such as
// sync.Mutex would deadlock on that call. Concurrent access from multiple goroutines is the caller's responsibility.
type App struct {
	cfg    *appConfig
	logger *slog.Logger

	graph      *Graph
	adapter    Adapter
	phases     *PhaseTable
	nodeRouter *Router[NodeID]
	queues     map[string]*DirtyQueue

	sched   *scheduler
	events  *emitter
	metrics *metrics
}

// New constructs an App from a phase table and options. It returns an error only when the
// phase definitions themselves are invalid (duplicate names, both-or-neither executor,
// malformed route masks).
func New(phaseDefs []PhaseDef, opts ...Option) (*App, error) {
	cfg := defaultAppConfig()
	for _, o := range opts {
		o(cfg)
	}

	table, err := DefinePhases(phaseDefs)
	if err != nil {
		return nil, err
	}

	adapter := cfg.adapter
	if adapter == nil {
		adapter = NewDefaultAdapter(cfg.adapterOpts)
	}

	app := &App{
		cfg:        cfg,
		logger:     cfg.logger,
		graph:      NewGraph(),
		adapter:    adapter,
		phases:     table,
		nodeRouter: NewRouter[NodeID](),
		queues:     make(map[string]*DirtyQueue, len(table.Phases())),
		events:     newEmitter(),
		metrics:    newMetrics(),
	}
	for _, p := range table.Phases() {
		app.queues[p.Name] = newDirtyQueue()
	}
	app.sched = newScheduler(cfg.schedulerKind, cfg.maxUPS, cfg.loop, app.runDrain)

	app.events.emit(EventPhasesReinit, table.Phases())
	return app, nil
}

// MustNew is New, panicking on error. Mirrors the MustRouter convenience constructor pattern.
func MustNew(phaseDefs []PhaseDef, opts ...Option) *App {
	app, err := New(phaseDefs, opts...)
	if err != nil {
		panic(fmt.Sprintf("flux: MustNew: %v", err))
	}
	return app
}

// DefinePhases replaces the app's phase table, rebuilding its dirty queues. Tracked nodes and
// graph state are untouched; a phases:reinit event is emitted.
func (a *App) DefinePhases(defs []PhaseDef) error {
	table, err := DefinePhases(defs)
	if err != nil {
		return err
	}

	a.phases = table
	a.queues = make(map[string]*DirtyQueue, len(table.Phases()))
	for _, p := range table.Phases() {
		a.queues[p.Name] = newDirtyQueue()
	}
	a.events.emit(EventPhasesReinit, table.Phases())
	return nil
}

// On registers a listener for the named event.
func (a *App) On(name EventName, l EventListener) {
	a.events.on(name, l)
}

// Metrics returns the rolling updates/events/nodes-processed-per-second rates.
func (a *App) Metrics() (updatesPerSecond, eventsPerSecond, nodesProcessedPerSecond float64) {
	return a.metrics.snapshot()
}

// --- Graph management -------------------------------------------------------------------

// AddNode registers a new node. typ and meta are caller-defined and never interpreted by App.
func (a *App) AddNode(id NodeID, weight int64, typ string, meta any) (*Node, error) {
	n, err := a.graph.AddNode(id, weight)
	if err != nil {
		return nil, err
	}
	n.Type = typ
	n.Meta = meta
	return n, nil
}

// RemoveNode detaches id from the graph and from every mask it was tracked against. If the
// node is currently sitting dirty in one or more phase queues, it is purged from them first so
// a later drain never hands an executor a node no longer in the graph.
func (a *App) RemoveNode(id NodeID) {
	if n := a.graph.GetNode(id); n != nil && n.anyDirty() {
		a.purgeDirtyNode(n)
	}
	a.graph.RemoveNode(id)
	a.nodeRouter.RemovePayload(id)
}

// purgeDirtyNode removes n from every phase queue it is currently enqueued in. Only called when
// n.anyDirty() already reports pending work, since otherwise no queue can hold it.
func (a *App) purgeDirtyNode(n *Node) {
	priority := priorityIndex(n.Depth(), n.Weight)
	for _, p := range a.phases.Phases() {
		if !n.isDirty(p.Index) {
			continue
		}
		if q, ok := a.queues[p.Name]; ok {
			q.removeNode(n, priority)
		}
		n.clearDirty(p.Index)
	}
}

// HasNode reports whether id is registered.
func (a *App) HasNode(id NodeID) bool {
	return a.graph.HasNode(id)
}

// GetNode returns the node registered under id, or nil.
func (a *App) GetNode(id NodeID) *Node {
	return a.graph.GetNode(id)
}

// AddEdge registers a parent -> child dependency. A rejected cycle attempt is logged and
// returns false rather than raising an error.
func (a *App) AddEdge(parent, child NodeID) bool {
	ok := a.graph.AddEdge(parent, child)
	if !ok {
		var path []NodeID
		if parent != child {
			// A self-loop has no cycle path to report beyond the node itself; any other
			// rejection means child already reaches parent, so reconstruct that path for the
			// log line.
			path = a.graph.findPath(child, parent)
		}
		err := &CycleError{Parent: parent, Child: child, Path: path}
		a.logCycleRejected(err)
	}
	return ok
}

// RemoveEdge detaches a parent -> child dependency.
func (a *App) RemoveEdge(parent, child NodeID) {
	a.graph.RemoveEdge(parent, child)
}

// Roots returns the current set of parentless node ids.
func (a *App) Roots() []NodeID {
	return a.graph.Roots()
}

// --- Tracking -----------------------------------------------------------------------------

// Track registers id as interested in every mutation matching any of masks. Masks may contain
// wildcards and placeholder params; they are resolved through the node-router, independent of
// any phase's own routes.
func (a *App) Track(id NodeID, masks ...string) error {
	parsed := make([]Path, 0, len(masks))
	for _, m := range masks {
		p, err := Parse(m)
		if err != nil {
			return err
		}
		parsed = append(parsed, p)
	}
	for _, p := range parsed {
		a.nodeRouter.Add(p, id)
	}
	a.events.emit(EventNodeTracked, id)
	return nil
}

// Untrack removes id's registration against masks.
func (a *App) Untrack(id NodeID, masks ...string) error {
	for _, m := range masks {
		p, err := Parse(m)
		if err != nil {
			return err
		}
		a.nodeRouter.Remove(p, id)
	}
	return nil
}

// --- Data operations ------------------------------------------------------------------------

// Get reads the value addressed by pathStr.
func (a *App) Get(pathStr string, vars map[string]any) (any, bool, error) {
	p, err := Parse(pathStr)
	if err != nil {
		return nil, false, err
	}
	return a.adapter.Get(p, vars)
}

// Set assigns value at pathStr and routes the resulting mutation through the notify pipeline.
func (a *App) Set(pathStr string, value any, vars map[string]any) error {
	p, err := Parse(pathStr)
	if err != nil {
		return err
	}
	if err := a.adapter.Set(p, value, vars); err != nil {
		return err
	}
	a.events.emit(EventNodesChanged, pathStr)
	a.notify(pathStr, vars)
	return nil
}

// Merge shallow-merges value at pathStr (falling back to Set when either side isn't a
// mapping) and routes the mutation through the notify pipeline.
func (a *App) Merge(pathStr string, value any, vars map[string]any) error {
	p, err := Parse(pathStr)
	if err != nil {
		return err
	}
	if err := a.adapter.Merge(p, value, vars); err != nil {
		return err
	}
	a.events.emit(EventNodesChanged, pathStr)
	a.notify(pathStr, vars)
	return nil
}

// Delete removes the element addressed by pathStr and routes the mutation through the notify
// pipeline.
func (a *App) Delete(pathStr string, vars map[string]any) error {
	p, err := Parse(pathStr)
	if err != nil {
		return err
	}
	if err := a.adapter.Delete(p, vars); err != nil {
		return err
	}
	a.events.emit(EventNodesChanged, pathStr)
	a.notify(pathStr, vars)
	return nil
}

// IndexOf returns the element index addressed by pathStr's final segment, or -1.
func (a *App) IndexOf(pathStr string, vars map[string]any) int {
	p, err := Parse(pathStr)
	if err != nil {
		return -1
	}
	return a.adapter.IndexOf(p, vars)
}

// --- Notify pipeline ------------------------------------------------------------------------

// notify implements the data-flow of spec §2: route the mutated path through the phase-router
// and node-router, expand the matched node set per each interested phase's traversal policy,
// and mark every expanded node dirty for that phase.
func (a *App) notify(pathStr string, vars map[string]any) {
	canonicalStr := Interpolate(pathStr, vars, true)
	canonicalPath, err := Parse(canonicalStr)
	if err != nil {
		return
	}

	a.metrics.recordUpdate()

	phaseNames := a.phases.PhasesForPath(canonicalPath)
	if len(phaseNames) == 0 {
		return
	}
	nodeMatches := a.nodeRouter.MatchWithParams(canonicalPath)
	if len(nodeMatches) == 0 {
		return
	}

	baseIDs := make([]NodeID, 0, len(nodeMatches))
	seen := make(map[NodeID]struct{}, len(nodeMatches))
	for _, m := range nodeMatches {
		if _, dup := seen[m.Payload]; dup {
			continue
		}
		seen[m.Payload] = struct{}{}
		baseIDs = append(baseIDs, m.Payload)
	}

	event := a.buildEvent(pathStr, canonicalStr, canonicalPath, vars)

	touched := make(map[NodeID]struct{})
	for _, name := range phaseNames {
		phase, ok := a.phases.Lookup(name)
		if !ok {
			continue
		}

		base := a.filterByPhase(phase, baseIDs)
		expanded := a.graph.ExpandByTraversal(base, phase.Traversal)

		for _, id := range expanded {
			n := a.graph.GetNode(id)
			if n == nil {
				continue
			}
			a.dirtyNode(phase, n, true, &event)
			if _, already := touched[id]; !already {
				a.events.emit(EventNodeNotified, id)
			}
			touched[id] = struct{}{}
		}
	}

	a.metrics.recordEvents(1)
	if len(touched) > 0 {
		a.events.emit(EventNodesNotified, len(touched))
	}
}

func (a *App) filterByPhase(phase *Phase, ids []NodeID) []NodeID {
	if phase.Filter == nil {
		return ids
	}
	out := make([]NodeID, 0, len(ids))
	for _, id := range ids {
		n := a.graph.GetNode(id)
		if n != nil && phase.Filter(n) {
			out = append(out, id)
		}
	}
	return out
}

// buildEvent constructs the PhaseEvent described in spec §3 for a single notify call: the
// original path string, its canonicalised form, and the resolved Param captures of the
// original (non-widened) path.
func (a *App) buildEvent(original, canonical string, canonicalPath Path, vars map[string]any) PhaseEvent {
	return PhaseEvent{
		Path:          original,
		Canonical:     canonical,
		CanonicalPath: canonicalPath,
		Entries:       a.resolveEntries(original, vars),
	}
}

func (a *App) resolveEntries(original string, vars map[string]any) []ResolvedEntry {
	p, err := Parse(original)
	if err != nil {
		return nil
	}

	var entries []ResolvedEntry
	containerKey := ""
	for i, seg := range p.Segments {
		if seg.Kind == SegKey {
			containerKey = seg.Key
		}
		if seg.Kind != SegParam || seg.Key == paramIndexKey {
			continue
		}
		val, ok := resolveEventParamValue(seg.Value, vars)
		if !ok {
			continue
		}
		prefix := Path{Segments: p.Segments[:i+1]}
		idx := a.adapter.IndexOf(prefix, vars)
		entries = append(entries, ResolvedEntry{
			ContainerKey: containerKey,
			ParamKey:     seg.Key,
			Value:        val,
			Index:        idx,
		})
	}
	return entries
}

func resolveEventParamValue(pv ParamValue, vars map[string]any) (ParamValue, bool) {
	if !pv.Placeholder {
		return pv, true
	}
	val, ok := vars[pv.Name]
	if !ok {
		return ParamValue{}, false
	}
	switch t := val.(type) {
	case string:
		return litString(t), true
	case int:
		return litInt(int64(t)), true
	case int64:
		return litInt(t), true
	case float64:
		return litInt(int64(t)), true
	case bool:
		return litBool(t), true
	default:
		return litString(fmt.Sprintf("%v", t)), true
	}
}

// Dirty marks id dirty for phaseName directly, bypassing path-based routing. This is the entry
// point the reactivity package uses to drive signal/effect/watch nodes from its own triggers.
func (a *App) Dirty(phaseName string, id NodeID, invalidate bool, event *PhaseEvent) {
	phase, ok := a.phases.Lookup(phaseName)
	if !ok {
		a.logUnknownPhase(phaseName, id)
		return
	}
	n := a.graph.GetNode(id)
	if n == nil {
		return
	}
	a.dirtyNode(phase, n, invalidate, event)
}

// DirtyCascade marks id dirty for phaseName and, like notify, expands that single node through
// the phase's own traversal policy before marking the result. It is the entry point the
// reactivity package uses to propagate a signal's change to whatever depends on it through graph
// edges rather than through a path mask matched by the node-router.
func (a *App) DirtyCascade(phaseName string, id NodeID, invalidate bool, event *PhaseEvent) {
	phase, ok := a.phases.Lookup(phaseName)
	if !ok {
		a.logUnknownPhase(phaseName, id)
		return
	}
	if !a.graph.HasNode(id) {
		return
	}

	expanded := a.graph.ExpandByTraversal([]NodeID{id}, phase.Traversal)
	for _, eid := range expanded {
		n := a.graph.GetNode(eid)
		if n == nil {
			continue
		}
		a.dirtyNode(phase, n, false, event)
	}
	if invalidate {
		a.sched.invalidate()
	}
}

// dirtyNode implements the seven-step algorithm of spec §4.6.
func (a *App) dirtyNode(phase *Phase, n *Node, invalidate bool, event *PhaseEvent) {
	if phase.Filter != nil && !phase.Filter(n) {
		return
	}

	q := a.queues[phase.Name]
	if !n.isDirty(phase.Index) {
		priority := priorityIndex(n.Depth(), n.Weight)
		q.enqueue(n, priority)
		n.markDirty(phase.Index)
	}
	if event != nil {
		q.appendEvent(n.ID, *event)
	}
	if invalidate {
		a.sched.invalidate()
	}
}

// Run forces an immediate drain, regardless of scheduler policy. Useful for tests and for
// "flush now" call sites.
func (a *App) Run() {
	a.runDrain()
}

// runDrain implements spec §4.6's drain algorithm across every phase in declared order. It may
// be invoked reentrantly (a phase executor calling Set while under sync scheduling); each
// reentrant call simply drains whatever is dirty at that moment, per spec §5.
func (a *App) runDrain() {
	processed := 0
	for _, phase := range a.phases.Phases() {
		q := a.queues[phase.Name]
		if q.isEmpty() {
			continue
		}

		if phase.IsBatched() {
			processed += a.drainBatched(phase, q)
		} else {
			processed += a.drainEach(phase, q)
		}
	}

	a.metrics.recordNodesProcessed(processed)
}

func (a *App) drainBatched(phase *Phase, q *DirtyQueue) int {
	priorities := q.orderedPriorities()
	ctxs := make([]PhaseContext, 0)
	for _, p := range priorities {
		for _, n := range q.buckets[p] {
			n.clearDirty(phase.Index)
			ctxs = append(ctxs, PhaseContext{
				Phase:  phase.Name,
				Node:   n,
				Events: q.eventsFor(n.ID),
			})
		}
	}
	q.clear()
	phase.All(ctxs)
	return len(ctxs)
}

func (a *App) drainEach(phase *Phase, q *DirtyQueue) int {
	// Drain the buckets present when the drain starts. A node an executor marks dirty again (its
	// phase bit is already clear) is enqueued into the emptied queue and runs in the next drain.
	batch := &DirtyQueue{buckets: q.buckets, heap: q.heap, events: q.events}
	q.buckets, q.heap = make(map[int64][]*Node), newIntHeap()
	processed := 0
	for {
		_, nodes, ok := batch.popBucket()
		if !ok {
			break
		}
		for _, n := range nodes {
			events := q.eventsFor(n.ID)
			delete(q.events, n.ID)
			if !n.isDirty(phase.Index) {
				continue // purged by RemoveNode while this drain was running
			}
			n.clearDirty(phase.Index)
			ctx := PhaseContext{
				Phase:  phase.Name,
				Node:   n,
				Events: events,
			}
			phase.Each(ctx)
			processed++
		}
	}
	return processed
}
