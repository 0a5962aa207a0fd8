// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

package flux

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntHeapPushUniqueDedups(t *testing.T) {
	h := newIntHeap()
	h.pushUnique(5)
	h.pushUnique(5)
	h.pushUnique(3)
	assert.Equal(t, 2, h.len())
}

func TestIntHeapPopMinOrdersAscending(t *testing.T) {
	h := newIntHeap()
	for _, v := range []int64{9, 1, 5, 3, 7} {
		h.pushUnique(v)
	}

	var got []int64
	for {
		v, ok := h.popMin()
		if !ok {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []int64{1, 3, 5, 7, 9}, got)
}

func TestIntHeapBuildMatchesSequentialPush(t *testing.T) {
	built := newIntHeap()
	built.build([]int64{4, 2, 9, 1, 7, 2})

	pushed := newIntHeap()
	for _, v := range []int64{4, 2, 9, 1, 7, 2} {
		pushed.pushUnique(v)
	}

	assert.Equal(t, pushed.len(), built.len())
	for {
		wantV, wantOK := pushed.popMin()
		gotV, gotOK := built.popMin()
		require.Equal(t, wantOK, gotOK)
		if !wantOK {
			break
		}
		assert.Equal(t, wantV, gotV)
	}
}

func TestIntHeapReplaceTop(t *testing.T) {
	h := newIntHeap()
	h.build([]int64{3, 8, 5})

	h.replaceTop(1)
	v, ok := h.peek()
	require.True(t, ok)
	assert.Equal(t, int64(1), v)

	h.replaceTop(10)
	v, ok = h.peek()
	require.True(t, ok)
	assert.Equal(t, int64(5), v)
}

func TestIntHeapResetKeepsCapacityEmpty(t *testing.T) {
	h := newIntHeap()
	h.pushUnique(1)
	h.pushUnique(2)
	h.reset()
	assert.Equal(t, 0, h.len())
	_, ok := h.popMin()
	assert.False(t, ok)
}
