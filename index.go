// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

package flux

// IndexStrategy selects how the secondary array index described in spec §4.4 is populated.
type IndexStrategy uint8

const (
	// IndexEagerAllKeys builds buckets for every simple-typed field of every element on first
	// access to an array.
	IndexEagerAllKeys IndexStrategy = iota
	// IndexLazyKey builds buckets only for the key currently being queried.
	IndexLazyKey
)

// ensureIndexForKey makes sure arr.idx has a bucket for key, populating it according to
// strategy if the array hasn't been indexed for that key yet.
func ensureIndexForKey(arr *Value, key string, strategy IndexStrategy) {
	if arr == nil || !arr.IsSeq() {
		return
	}
	if arr.idx == nil {
		arr.idx = make(map[string]map[string]int)
		arr.idxBuilt = make(map[string]bool)
	}

	if strategy == IndexEagerAllKeys && !arr.idxEager {
		buildAllKeyBuckets(arr)
		arr.idxEager = true
		return
	}
	if arr.idxBuilt[key] {
		return
	}
	buildKeyBucket(arr, key)
	arr.idxBuilt[key] = true
}

func buildKeyBucket(arr *Value, key string) {
	bucket := make(map[string]int)
	for i, elem := range arr.seq {
		if !elem.IsMap() {
			continue
		}
		if v, ok := elem.m[key]; ok {
			bucket[paramValueKeyFor(v)] = i
		}
	}
	arr.idx[key] = bucket
}

func buildAllKeyBuckets(arr *Value) {
	keys := make(map[string]struct{})
	for _, elem := range arr.seq {
		if !elem.IsMap() {
			continue
		}
		for k := range elem.m {
			keys[k] = struct{}{}
		}
	}
	for k := range keys {
		buildKeyBucket(arr, k)
		arr.idxBuilt[k] = true
	}
}

// lookupIndex returns the last-seen element index for (key, value) if the array's index has a
// bucket for key containing it.
func lookupIndex(arr *Value, key string, valKey string) (int, bool) {
	if arr == nil || arr.idx == nil {
		return 0, false
	}
	bucket, ok := arr.idx[key]
	if !ok {
		return 0, false
	}
	idx, ok := bucket[valKey]
	if !ok || idx < 0 || idx >= len(arr.seq) {
		return 0, false
	}
	return idx, true
}

// upsertIndex records that (key, value) now resolves to idx, creating the bucket if needed.
func upsertIndex(arr *Value, key string, valKey string, idx int) {
	if arr == nil || !arr.IsSeq() {
		return
	}
	if arr.idx == nil {
		arr.idx = make(map[string]map[string]int)
		arr.idxBuilt = make(map[string]bool)
	}
	bucket, ok := arr.idx[key]
	if !ok {
		bucket = make(map[string]int)
		arr.idx[key] = bucket
	}
	bucket[valKey] = idx
}

// unsetIndexEntry removes a single (key, value) -> index mapping, used when an element is
// deleted under the "unset" array-delete policy.
func unsetIndexEntry(arr *Value, key string, valKey string) {
	if arr == nil || arr.idx == nil {
		return
	}
	if bucket, ok := arr.idx[key]; ok {
		delete(bucket, valKey)
	}
}

// invalidateIndexWholesale discards the entire secondary index for arr: required whenever a
// splice or a positional (Index) replacement could have changed many (key,value) -> index
// tuples at once.
func invalidateIndexWholesale(arr *Value) {
	if arr == nil {
		return
	}
	arr.idx = nil
	arr.idxBuilt = nil
	arr.idxEager = false
}

// insertIntoPresentBuckets updates already-built buckets to account for a newly pushed element
// at idx, without rebuilding from scratch.
func insertIntoPresentBuckets(arr *Value, idx int) {
	if arr == nil || arr.idx == nil || idx < 0 || idx >= len(arr.seq) {
		return
	}
	elem := arr.seq[idx]
	if !elem.IsMap() {
		return
	}
	for key, bucket := range arr.idx {
		if v, ok := elem.m[key]; ok {
			bucket[paramValueKeyFor(v)] = idx
		}
	}
}
