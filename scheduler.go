// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

package flux

import (
	"sync"
	"time"
)

// priorityScale dominates any legitimate weight so that priority index orders strictly by
// depth first, then by weight descending, per spec §4.6.
const priorityScale = int64(1) << 20

func priorityIndex(depth int, weight int64) int64 {
	return int64(depth)*priorityScale - weight
}

// DirtyQueue is the per-phase structure described in spec §3: priority-index buckets, a
// min-heap of occupied indices for ordered draining, and a per-node event list for the
// current tick.
type DirtyQueue struct {
	buckets map[int64][]*Node
	heap    *intHeap
	events  map[NodeID][]PhaseEvent
}

func newDirtyQueue() *DirtyQueue {
	return &DirtyQueue{
		buckets: make(map[int64][]*Node),
		heap:    newIntHeap(),
		events:  make(map[NodeID][]PhaseEvent),
	}
}

func (q *DirtyQueue) isEmpty() bool { return q.heap.len() == 0 }

// enqueue appends n to the bucket for priority, registering the bucket in the heap-dedup set
// if this is the first node at that priority this tick. Callers are responsible for only
// calling this once per (phase, node) per tick (see App.Dirty), since repeat calls would
// double-process the node at drain time.
func (q *DirtyQueue) enqueue(n *Node, priority int64) {
	q.buckets[priority] = append(q.buckets[priority], n)
	q.heap.pushUnique(priority)
}

// appendEvent records ev against id's per-tick event list. Unlike enqueue, this is safe (and
// expected) to call every time a matching mutation occurs, even if id is already dirty for
// this phase: per spec §4.6 step 3, event history always accumulates.
func (q *DirtyQueue) appendEvent(id NodeID, ev PhaseEvent) {
	q.events[id] = append(q.events[id], ev)
}

// popBucket removes and returns the lowest remaining priority bucket.
func (q *DirtyQueue) popBucket() (int64, []*Node, bool) {
	p, ok := q.heap.popMin()
	if !ok {
		return 0, nil, false
	}
	nodes := q.buckets[p]
	delete(q.buckets, p)
	return p, nodes, true
}

// orderedPriorities returns the occupied priority indices in ascending order without removing
// them, used by the "all" executor contract to build a snapshot before clearing the queue. It
// drains a throwaway heap built (Floyd-style) from the live one's contents rather than sorting a
// copy, so the ordering always agrees with what popBucket would actually produce.
func (q *DirtyQueue) orderedPriorities() []int64 {
	snapshot := newIntHeap()
	snapshot.build(q.heap.items)
	out := make([]int64, 0, snapshot.len())
	for {
		p, ok := snapshot.popMin()
		if !ok {
			break
		}
		out = append(out, p)
	}
	return out
}

func (q *DirtyQueue) eventsFor(id NodeID) []PhaseEvent { return q.events[id] }

// removeNode splices n out of whichever bucket holds it (e.g. when a node is removed from the
// graph while still dirty for this phase), drops its pending events, and drops the bucket's
// heap membership once it is left empty. Every bucket is searched, since n's depth, and so its
// priority, may have changed since it was enqueued; the priority argument is not consulted.
func (q *DirtyQueue) removeNode(n *Node, priority int64) {
	delete(q.events, n.ID)
	var bucket []*Node
	idx := -1
	for p, b := range q.buckets {
		for i, node := range b {
			if node == n {
				priority, bucket, idx = p, b, i
			}
		}
	}
	if idx < 0 {
		return
	}
	bucket = append(bucket[:idx], bucket[idx+1:]...)
	if len(bucket) == 0 {
		delete(q.buckets, priority)
		q.heap.remove(priority)
		return
	}
	q.buckets[priority] = bucket
}

func (q *DirtyQueue) clear() {
	q.buckets = make(map[int64][]*Node)
	q.heap.reset()
	q.events = make(map[NodeID][]PhaseEvent)
}

// SchedulerPolicy selects when Scheduler.invalidate actually runs the drain callback.
type SchedulerPolicy uint8

const (
	// PolicySync drains in the caller's stack frame, subject only to the max_ups throttle.
	PolicySync SchedulerPolicy = iota
	// PolicyMicrotask defers the drain to the earliest point after the current stack unwinds;
	// multiple invalidations before that point coalesce into one drain.
	PolicyMicrotask
	// PolicyFrame defers the drain to the next display-frame-like tick (~60Hz).
	PolicyFrame
)

const frameInterval = time.Second / 60

// scheduler implements the throttled, policy-driven drain dispatch described in spec §4.6. It
// owns no domain state; it only decides *when* to call drain.
type scheduler struct {
	mu sync.Mutex

	policy SchedulerPolicy
	drain  func()
	loop   bool

	minInterval time.Duration
	lastDrain   time.Time
	pending     bool
	timer       *time.Timer
}

func newScheduler(policy SchedulerPolicy, maxUPS int, loop bool, drain func()) *scheduler {
	if maxUPS <= 0 {
		maxUPS = 120
	}
	return &scheduler{
		policy:      policy,
		drain:       drain,
		loop:        loop,
		minInterval: time.Second / time.Duration(maxUPS),
	}
}

// invalidate requests a drain according to the configured policy. Multiple invalidations that
// land before the scheduled drain fires coalesce into a single drain call.
func (s *scheduler) invalidate() {
	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		return
	}

	now := time.Now()
	elapsed := now.Sub(s.lastDrain)
	wait := s.minInterval - elapsed
	if wait < 0 {
		wait = 0
	}

	switch s.policy {
	case PolicyFrame:
		if wait < frameInterval {
			wait = frameInterval
		}
	case PolicyMicrotask:
		// Microtask semantics require deferring past the end of the current call stack, even
		// when the throttle window is already open (e.g. on the very first invalidate, where
		// elapsed since the zero-value lastDrain trivially clears the throttle). Forcing a
		// minimal non-zero wait routes this invalidation through the timer/pending path below,
		// so any further invalidate()s issued later in the same stack coalesce with it instead
		// of each firing its own drain.
		if wait == 0 {
			wait = time.Microsecond
		}
	case PolicySync:
		// no additional floor beyond the throttle wait computed above: sync drains in the
		// caller's frame whenever the throttle window is open.
	}

	if wait == 0 {
		s.pending = false
		s.lastDrain = now
		s.mu.Unlock()
		s.fire()
		return
	}

	s.pending = true
	s.timer = time.AfterFunc(wait, s.fire)
	s.mu.Unlock()
}

func (s *scheduler) fire() {
	s.mu.Lock()
	s.pending = false
	s.lastDrain = time.Now()
	loop := s.loop
	s.mu.Unlock()

	s.drain()

	if loop {
		s.invalidate()
	}
}

// stop cancels any pending deferred drain.
func (s *scheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.pending = false
}
