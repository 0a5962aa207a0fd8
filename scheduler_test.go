// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

package flux

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityIndexOrdersDepthThenWeight(t *testing.T) {
	shallow := priorityIndex(0, 100)
	deepButHeavy := priorityIndex(1, 1_000_000)
	assert.Less(t, shallow, deepButHeavy, "any depth-0 node must sort before any depth-1 node")

	heavier := priorityIndex(0, 10)
	lighter := priorityIndex(0, 5)
	assert.Less(t, heavier, lighter, "within the same depth, higher weight sorts first (lower index)")
}

func TestSchedulerSyncDrainsImmediately(t *testing.T) {
	var drains int64
	s := newScheduler(PolicySync, 1_000_000, false, func() { atomic.AddInt64(&drains, 1) })
	s.invalidate()
	assert.Equal(t, int64(1), atomic.LoadInt64(&drains))
}

// TestSchedulerMicrotaskCoalesces issues several invalidations back to back and checks that
// they collapse into a single drain, per spec §8's "N sets in a single stack coalesce".
func TestSchedulerMicrotaskCoalesces(t *testing.T) {
	var drains int64
	s := newScheduler(PolicyMicrotask, 120, false, func() { atomic.AddInt64(&drains, 1) })

	s.invalidate()
	s.invalidate()
	s.invalidate()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&drains) >= 1
	}, time.Second, time.Millisecond)

	// Give any would-be extra drain a chance to fire before asserting there was only one.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), atomic.LoadInt64(&drains))
}

func TestSchedulerLoopModeReinvalidates(t *testing.T) {
	var drains int64
	s := newScheduler(PolicySync, 1000, true, func() { atomic.AddInt64(&drains, 1) })
	s.invalidate()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&drains) >= 3
	}, time.Second, time.Millisecond)
	s.stop()
}

func TestDirtyQueueOrdering(t *testing.T) {
	q := newDirtyQueue()
	n1 := newNode("a", 0)
	n2 := newNode("b", 0)
	q.enqueue(n1, 10)
	q.enqueue(n2, 5)

	p, nodes, ok := q.popBucket()
	require.True(t, ok)
	assert.Equal(t, int64(5), p)
	assert.Equal(t, []*Node{n2}, nodes)

	_, nodes, ok = q.popBucket()
	require.True(t, ok)
	assert.Equal(t, []*Node{n1}, nodes)

	_, _, ok = q.popBucket()
	assert.False(t, ok)
}
