// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

package flux

import "container/heap"

// intHeap is a reusable min-heap of int64 priority indices (depth*scale - weight values, per
// spec §4.3). There is no third-party min-heap in the adopted dependency stack, so this uses
// container/heap directly; see DESIGN.md for the standard-library justification.
type intHeap struct {
	items []int64
	// present dedups: the same priority index must never be pushed twice while it is still
	// occupied, since a bucket is either empty or non-empty, not counted.
	present map[int64]struct{}
}

func newIntHeap() *intHeap {
	return &intHeap{present: make(map[int64]struct{})}
}

func (h *intHeap) Len() int            { return len(h.items) }
func (h *intHeap) Less(i, j int) bool  { return h.items[i] < h.items[j] }
func (h *intHeap) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *intHeap) Push(x any)          { h.items = append(h.items, x.(int64)) }
func (h *intHeap) Pop() any {
	old := h.items
	n := len(old)
	v := old[n-1]
	h.items = old[:n-1]
	return v
}

// pushUnique pushes p onto the heap unless it is already present.
func (h *intHeap) pushUnique(p int64) {
	if _, ok := h.present[p]; ok {
		return
	}
	h.present[p] = struct{}{}
	heap.Push(h, p)
}

// peek returns the smallest priority index without removing it.
func (h *intHeap) peek() (int64, bool) {
	if len(h.items) == 0 {
		return 0, false
	}
	return h.items[0], true
}

// popMin removes and returns the smallest priority index.
func (h *intHeap) popMin() (int64, bool) {
	if len(h.items) == 0 {
		return 0, false
	}
	v := heap.Pop(h).(int64)
	delete(h.present, v)
	return v, true
}

// remove drops p from the heap's membership bookkeeping and removes p's entry from the heap,
// found by a linear scan. The items are left untouched when p is not in the heap.
func (h *intHeap) remove(p int64) {
	delete(h.present, p)
	for i, v := range h.items {
		if v == p {
			heap.Remove(h, i)
			return
		}
	}
}

func (h *intHeap) len() int { return len(h.items) }

// reset clears the heap's membership while keeping the backing array's capacity, so a
// DirtyQueue that builds a fresh heap every tick doesn't reallocate on every drain.
func (h *intHeap) reset() {
	h.items = h.items[:0]
	for k := range h.present {
		delete(h.present, k)
	}
}

// build repopulates the heap from items in O(n) via Floyd's bottom-up heapify, rather than
// pushing them one at a time (O(n log n)). Duplicate priorities in items collapse to a single
// membership entry, same as repeated pushUnique calls would.
func (h *intHeap) build(items []int64) {
	h.reset()
	for _, v := range items {
		if _, dup := h.present[v]; dup {
			continue
		}
		h.present[v] = struct{}{}
		h.items = append(h.items, v)
	}
	n := len(h.items)
	for i := n/2 - 1; i >= 0; i-- {
		h.siftDown(i, n)
	}
}

func (h *intHeap) siftDown(i, n int) {
	for {
		left := 2*i + 1
		if left >= n {
			return
		}
		smallest := left
		if right := left + 1; right < n && h.items[right] < h.items[left] {
			smallest = right
		}
		if h.items[i] <= h.items[smallest] {
			return
		}
		h.items[i], h.items[smallest] = h.items[smallest], h.items[i]
		i = smallest
	}
}

// replaceTop swaps the minimum element for newVal and sifts it into place, avoiding the
// pop-then-push pair a caller would otherwise need to move the root. It is a no-op if the heap
// is empty.
func (h *intHeap) replaceTop(newVal int64) {
	if len(h.items) == 0 {
		return
	}
	delete(h.present, h.items[0])
	h.items[0] = newVal
	if _, dup := h.present[newVal]; !dup {
		h.present[newVal] = struct{}{}
	}
	h.siftDown(0, len(h.items))
}
