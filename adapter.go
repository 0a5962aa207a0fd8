// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

package flux

import "fmt"

// ArrayDeletePolicy selects how Adapter.Delete treats an Index/Param element removal.
type ArrayDeletePolicy uint8

const (
	// ArrayDeleteUnset leaves a hole (the element becomes Null) rather than shifting indices.
	ArrayDeleteUnset ArrayDeletePolicy = iota
	// ArrayDeleteSplice compacts the sequence, shifting subsequent elements down by one.
	ArrayDeleteSplice
)

// AdapterOptions configures a DefaultAdapter's CRUD and indexing behavior.
type AdapterOptions struct {
	ArrayDelete   ArrayDeletePolicy
	AutoCreate    bool
	IndexEnabled  bool
	IndexStrategy IndexStrategy
}

// DefaultAdapterOptions returns the defaults from spec §6.
func DefaultAdapterOptions() AdapterOptions {
	return AdapterOptions{
		ArrayDelete:   ArrayDeleteUnset,
		AutoCreate:    true,
		IndexEnabled:  true,
		IndexStrategy: IndexEagerAllKeys,
	}
}

// Adapter is the hierarchical data store interface the App façade drives. DefaultAdapter is
// the in-memory implementation; callers may inject their own via WithAdapter.
type Adapter interface {
	Get(path Path, vars map[string]any) (value any, found bool, err error)
	Set(path Path, value any, vars map[string]any) error
	Merge(path Path, value any, vars map[string]any) error
	Delete(path Path, vars map[string]any) error
	IndexOf(path Path, vars map[string]any) int
}

// DefaultAdapter is the in-memory hierarchical document described in spec §4.4.
type DefaultAdapter struct {
	opts AdapterOptions
	root *Value
}

// NewDefaultAdapter constructs an adapter with an empty Map document root.
func NewDefaultAdapter(opts AdapterOptions) *DefaultAdapter {
	return &DefaultAdapter{opts: opts, root: MapValue()}
}

func rebaseKey(seg Segment, vars map[string]any) string {
	if name, isVar := cutPrefixDollar(seg.Key); isVar {
		if val, ok := vars[name]; ok {
			return fmt.Sprintf("%v", val)
		}
	}
	return seg.Key
}

func cutPrefixDollar(s string) (string, bool) {
	if len(s) > 0 && s[0] == '$' {
		return s[1:], true
	}
	return "", false
}

// resolveParamMatchValue returns the *Value a Param segment should compare field values
// against: the literal from the path, or, for a placeholder, the value of vars[name].
func resolveParamMatchValue(pv ParamValue, vars map[string]any) (*Value, bool) {
	if !pv.Placeholder {
		switch t := pv.Literal.(type) {
		case string:
			return StringValue(t), true
		case int64:
			return IntValue(t), true
		case bool:
			return BoolValue(t), true
		default:
			return NullValue(), true
		}
	}
	val, ok := vars[pv.Name]
	if !ok {
		return nil, false
	}
	return fromGo(val), true
}

// resolveIndexPlaceholder resolves a "[$name]" segment to a concrete index using vars.
func resolveIndexPlaceholder(pv ParamValue, vars map[string]any) (int64, bool) {
	if !pv.Placeholder {
		return 0, false
	}
	val, ok := vars[pv.Name]
	if !ok {
		return 0, false
	}
	switch t := val.(type) {
	case int:
		return int64(t), true
	case int64:
		return t, true
	case float64:
		return int64(t), true
	default:
		return 0, false
	}
}

// findParamIndex locates the element of arr matching (key, matchVal), consulting the secondary
// index first when enabled, falling back to a linear scan (and lazily populating the index).
func (a *DefaultAdapter) findParamIndex(arr *Value, key string, matchVal *Value) (int, bool) {
	valKey := paramValueKeyFor(matchVal)

	if a.opts.IndexEnabled {
		ensureIndexForKey(arr, key, a.opts.IndexStrategy)
		if idx, ok := lookupIndex(arr, key, valKey); ok {
			elem := arr.seq[idx]
			if elem.IsMap() {
				if v, ok := elem.m[key]; ok && paramValueKeyFor(v) == valKey {
					return idx, true
				}
			}
		}
	}

	for i, elem := range arr.seq {
		if !elem.IsMap() {
			continue
		}
		if v, ok := elem.m[key]; ok && paramValueKeyFor(v) == valKey {
			if a.opts.IndexEnabled {
				upsertIndex(arr, key, valKey, i)
			}
			return i, true
		}
	}
	return 0, false
}

// Get walks path segment-by-segment against the document, starting from the root (or from
// vars-rebased positions for "$name" Key segments). found is false when an intermediate
// container or the leaf itself is simply absent; err is non-nil only for the hard structural
// errors of spec §4.4 (wildcard in a read path, Param access on a non-sequence).
func (a *DefaultAdapter) Get(path Path, vars map[string]any) (any, bool, error) {
	v, ok, err := a.walkGet(a.root, path.Segments, vars)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return toGo(v), true, nil
}

func (a *DefaultAdapter) walkGet(cur *Value, segs []Segment, vars map[string]any) (*Value, bool, error) {
	for _, seg := range segs {
		switch seg.Kind {
		case SegWildcard:
			return nil, false, ErrWildcardPath
		case SegKey:
			if !cur.IsMap() {
				return nil, false, nil
			}
			key := rebaseKey(seg, vars)
			child, ok := cur.m[key]
			if !ok {
				return nil, false, nil
			}
			cur = child
		case SegIndex:
			if !cur.IsSeq() {
				return nil, false, nil
			}
			if seg.Index < 0 || int(seg.Index) >= len(cur.seq) {
				return nil, false, nil
			}
			cur = cur.seq[seg.Index]
		case SegParam:
			if !cur.IsSeq() {
				return nil, false, ErrNotSequence
			}
			if seg.Key == paramIndexKey {
				idx, ok := resolveIndexPlaceholder(seg.Value, vars)
				if !ok || idx < 0 || int(idx) >= len(cur.seq) {
					return nil, false, nil
				}
				cur = cur.seq[idx]
				continue
			}
			matchVal, ok := resolveParamMatchValue(seg.Value, vars)
			if !ok {
				return nil, false, nil
			}
			idx, found := a.findParamIndex(cur, seg.Key, matchVal)
			if !found {
				return nil, false, nil
			}
			cur = cur.seq[idx]
		}
	}
	return cur, true, nil
}

// Set walks to the parent of the leaf named by path's final segment, creating intermediate
// containers when AutoCreate is enabled, then applies the leaf-kind-specific assignment rules
// of spec §4.4.
func (a *DefaultAdapter) Set(path Path, value any, vars map[string]any) error {
	if len(path.Segments) == 0 {
		a.root = fromGo(value)
		return nil
	}

	segs := path.Segments
	for _, s := range segs {
		if s.Kind == SegWildcard {
			return ErrWildcardPath
		}
	}

	parent, err := a.walkParent(segs[:len(segs)-1], vars, segs[len(segs)-1].Kind)
	if err != nil {
		return err
	}

	last := segs[len(segs)-1]
	switch last.Kind {
	case SegKey:
		if !parent.IsMap() {
			return ErrMissingContainer
		}
		key := rebaseKey(last, vars)
		parent.m[key] = fromGo(value)
		return nil

	case SegIndex:
		if !parent.IsSeq() {
			return ErrMissingContainer
		}
		idx := int(last.Index)
		if idx < 0 {
			return ErrMissingContainer
		}
		if idx >= len(parent.seq) {
			if !a.opts.AutoCreate {
				return ErrMissingContainer
			}
			for len(parent.seq) <= idx {
				parent.seq = append(parent.seq, NullValue())
			}
		}
		parent.seq[idx] = fromGo(value)
		invalidateIndexWholesale(parent)
		return nil

	case SegParam:
		if !parent.IsSeq() {
			return ErrNotSequence
		}
		return a.setParamLeaf(parent, last, value, vars)

	default:
		return ErrWildcardPath
	}
}

func (a *DefaultAdapter) setParamLeaf(arr *Value, seg Segment, value any, vars map[string]any) error {
	matchVal, ok := resolveParamMatchValue(seg.Value, vars)
	if !ok {
		return ErrParamElementMissing
	}

	valTree := fromGo(value)
	if !valTree.IsMap() {
		return ErrParamTargetNotMap
	}

	idx, found := a.findParamIndex(arr, seg.Key, matchVal)
	if !found {
		if !a.opts.AutoCreate {
			return ErrParamElementMissing
		}
		elem := MapValue()
		elem.m[seg.Key] = matchVal
		arr.seq = append(arr.seq, elem)
		idx = len(arr.seq) - 1
		if a.opts.IndexEnabled {
			upsertIndex(arr, seg.Key, paramValueKeyFor(matchVal), idx)
			insertIntoPresentBuckets(arr, idx)
		}
		return nil
	}

	target := arr.seq[idx]
	if !target.IsMap() {
		return ErrParamTargetNotMap
	}

	target.m = make(map[string]*Value, len(valTree.m)+1)
	for k, v := range valTree.m {
		target.m[k] = v
	}
	target.m[seg.Key] = matchVal

	if a.opts.IndexEnabled {
		upsertIndex(arr, seg.Key, paramValueKeyFor(matchVal), idx)
	}
	return nil
}

// walkParent descends through segs, auto-creating intermediate containers (a Map if the
// *following* segment is a Key, a Seq if it is an Index or Param) when AutoCreate is enabled.
// finalKind is the kind of the segment after the last element of segs, used to decide what
// kind of container segs' own last step should create if it is itself missing.
func (a *DefaultAdapter) walkParent(segs []Segment, vars map[string]any, finalKind SegmentKind) (*Value, error) {
	cur := a.root
	for i, seg := range segs {
		nextKind := finalKind
		if i+1 < len(segs) {
			nextKind = segs[i+1].Kind
		}

		switch seg.Kind {
		case SegWildcard:
			return nil, ErrWildcardPath
		case SegKey:
			key := rebaseKey(seg, vars)
			if !cur.IsMap() {
				return nil, ErrMissingContainer
			}
			child, ok := cur.m[key]
			if !ok {
				if !a.opts.AutoCreate {
					return nil, ErrMissingContainer
				}
				child = containerFor(nextKind)
				cur.m[key] = child
			}
			cur = child
		case SegIndex:
			if !cur.IsSeq() {
				return nil, ErrMissingContainer
			}
			idx := int(seg.Index)
			if idx < 0 {
				return nil, ErrMissingContainer
			}
			if idx >= len(cur.seq) {
				if !a.opts.AutoCreate {
					return nil, ErrMissingContainer
				}
				for len(cur.seq) <= idx {
					cur.seq = append(cur.seq, NullValue())
				}
			}
			if cur.seq[idx].IsNull() {
				cur.seq[idx] = containerFor(nextKind)
			}
			cur = cur.seq[idx]
		case SegParam:
			if !cur.IsSeq() {
				return nil, ErrNotSequence
			}
			matchVal, ok := resolveParamMatchValue(seg.Value, vars)
			if !ok {
				return nil, ErrParamElementMissing
			}
			idx, found := a.findParamIndex(cur, seg.Key, matchVal)
			if !found {
				if !a.opts.AutoCreate {
					return nil, ErrParamElementMissing
				}
				elem := MapValue()
				elem.m[seg.Key] = matchVal
				cur.seq = append(cur.seq, elem)
				idx = len(cur.seq) - 1
				if a.opts.IndexEnabled {
					upsertIndex(cur, seg.Key, paramValueKeyFor(matchVal), idx)
					insertIntoPresentBuckets(cur, idx)
				}
			}
			cur = cur.seq[idx]
		}
	}
	return cur, nil
}

func containerFor(kind SegmentKind) *Value {
	if kind == SegIndex || kind == SegParam {
		return SeqValue()
	}
	return MapValue()
}

// Merge performs a shallow key-wise merge when both the current value and the supplied value
// are mappings; otherwise it falls back to Set.
func (a *DefaultAdapter) Merge(path Path, value any, vars map[string]any) error {
	cur, ok, err := a.walkGet(a.root, path.Segments, vars)
	if err != nil {
		return err
	}
	valTree := fromGo(value)
	if ok && cur.IsMap() && valTree.IsMap() {
		for k, v := range valTree.m {
			cur.m[k] = v
		}
		return nil
	}
	return a.Set(path, value, vars)
}

// Delete removes the element addressed by path's final segment, following ArrayDelete for
// Index/Param removals.
func (a *DefaultAdapter) Delete(path Path, vars map[string]any) error {
	segs := path.Segments
	if len(segs) == 0 {
		a.root = MapValue()
		return nil
	}
	for _, s := range segs {
		if s.Kind == SegWildcard {
			return ErrWildcardPath
		}
	}

	parent, ok, err := a.walkGet(a.root, segs[:len(segs)-1], vars)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	last := segs[len(segs)-1]
	switch last.Kind {
	case SegKey:
		if parent.IsMap() {
			key := rebaseKey(last, vars)
			delete(parent.m, key)
		}
		return nil

	case SegIndex:
		if !parent.IsSeq() {
			return nil
		}
		idx := int(last.Index)
		if idx < 0 || idx >= len(parent.seq) {
			return nil
		}
		a.deleteAt(parent, idx)
		return nil

	case SegParam:
		if !parent.IsSeq() {
			return ErrNotSequence
		}
		matchVal, ok := resolveParamMatchValue(last.Value, vars)
		if !ok {
			return nil
		}
		idx, found := a.findParamIndex(parent, last.Key, matchVal)
		if !found {
			return nil
		}
		if a.opts.ArrayDelete == ArrayDeleteUnset {
			unsetIndexEntry(parent, last.Key, paramValueKeyFor(matchVal))
		}
		a.deleteAt(parent, idx)
		return nil

	default:
		return ErrWildcardPath
	}
}

func (a *DefaultAdapter) deleteAt(arr *Value, idx int) {
	switch a.opts.ArrayDelete {
	case ArrayDeleteSplice:
		arr.seq = append(arr.seq[:idx], arr.seq[idx+1:]...)
		invalidateIndexWholesale(arr)
	default: // ArrayDeleteUnset
		arr.seq[idx] = NullValue()
	}
}

// IndexOf returns the element index addressed by path's final Index or Param segment, or -1
// if any step cannot be resolved.
func (a *DefaultAdapter) IndexOf(path Path, vars map[string]any) int {
	segs := path.Segments
	if len(segs) == 0 {
		return -1
	}
	last := segs[len(segs)-1]
	if last.Kind == SegWildcard {
		// Open question #3 in spec §9: treated as "not applicable", not an error.
		return -1
	}

	parent, ok, err := a.walkGet(a.root, segs[:len(segs)-1], vars)
	if err != nil || !ok || !parent.IsSeq() {
		return -1
	}

	switch last.Kind {
	case SegIndex:
		idx := int(last.Index)
		if idx < 0 || idx >= len(parent.seq) {
			return -1
		}
		return idx
	case SegParam:
		if last.Key == paramIndexKey {
			idx, ok := resolveIndexPlaceholder(last.Value, vars)
			if !ok || idx < 0 || int(idx) >= len(parent.seq) {
				return -1
			}
			return int(idx)
		}
		matchVal, ok := resolveParamMatchValue(last.Value, vars)
		if !ok {
			return -1
		}
		idx, found := a.findParamIndex(parent, last.Key, matchVal)
		if !found {
			return -1
		}
		return idx
	default:
		return -1
	}
}
