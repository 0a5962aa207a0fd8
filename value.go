// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

package flux

import "fmt"

// ValueKind discriminates the tagged-variant leaf/container model described in spec §9: the
// document's leaves are dynamically typed, so a statically typed implementation exposes a
// tagged variant instead of reaching for `any` everywhere.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindSeq
	KindMap
	// KindOpaque wraps a host-defined payload the core never inspects.
	KindOpaque
)

// Value is one node of the document tree: either a leaf (Null/Bool/Int/Float/String/Opaque) or
// a container (Seq/Map).
type Value struct {
	kind ValueKind

	b  bool
	i  int64
	f  float64
	s  string
	op any

	seq []*Value
	m   map[string]*Value

	// Secondary array index, meaningful only when kind == KindSeq. See index.go.
	idx      map[string]map[string]int
	idxBuilt map[string]bool
	idxEager bool
}

func NullValue() *Value  { return &Value{kind: KindNull} }
func BoolValue(b bool) *Value { return &Value{kind: KindBool, b: b} }
func IntValue(i int64) *Value { return &Value{kind: KindInt, i: i} }
func FloatValue(f float64) *Value { return &Value{kind: KindFloat, f: f} }
func StringValue(s string) *Value { return &Value{kind: KindString, s: s} }
func OpaqueValue(v any) *Value    { return &Value{kind: KindOpaque, op: v} }

func SeqValue(items ...*Value) *Value {
	return &Value{kind: KindSeq, seq: items}
}

func MapValue() *Value {
	return &Value{kind: KindMap, m: make(map[string]*Value)}
}

func (v *Value) Kind() ValueKind { return v.kind }
func (v *Value) IsNull() bool    { return v == nil || v.kind == KindNull }
func (v *Value) IsMap() bool     { return v != nil && v.kind == KindMap }
func (v *Value) IsSeq() bool     { return v != nil && v.kind == KindSeq }

func (v *Value) Bool() bool     { return v.b }
func (v *Value) Int() int64     { return v.i }
func (v *Value) Float() float64 { return v.f }
func (v *Value) String() string {
	if v == nil {
		return ""
	}
	switch v.kind {
	case KindString:
		return v.s
	case KindInt:
		return fmt.Sprintf("%d", v.i)
	case KindFloat:
		return fmt.Sprintf("%v", v.f)
	case KindBool:
		return fmt.Sprintf("%v", v.b)
	default:
		return ""
	}
}
func (v *Value) Opaque() any { return v.op }

// Seq returns the backing slice of a Seq value. Callers must not retain it past a splice.
func (v *Value) Seq() []*Value { return v.seq }

// Map returns the backing map of a Map value.
func (v *Value) Map() map[string]*Value { return v.m }

// fromGo converts a native Go value into the tagged-variant tree. Maps and slices are
// converted recursively; unrecognised types become Opaque leaves.
func fromGo(v any) *Value {
	switch t := v.(type) {
	case nil:
		return NullValue()
	case *Value:
		return t
	case bool:
		return BoolValue(t)
	case int:
		return IntValue(int64(t))
	case int64:
		return IntValue(t)
	case float64:
		return FloatValue(t)
	case string:
		return StringValue(t)
	case map[string]any:
		out := MapValue()
		for k, e := range t {
			out.m[k] = fromGo(e)
		}
		return out
	case []any:
		items := make([]*Value, len(t))
		for i, e := range t {
			items[i] = fromGo(e)
		}
		return SeqValue(items...)
	default:
		return OpaqueValue(v)
	}
}

// toGo converts the tagged-variant tree back into plain Go values (map[string]any, []any, and
// native scalar types), the form CRUD callers receive from Get.
func toGo(v *Value) any {
	if v == nil {
		return nil
	}
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindOpaque:
		return v.op
	case KindSeq:
		out := make([]any, len(v.seq))
		for i, e := range v.seq {
			out[i] = toGo(e)
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = toGo(e)
		}
		return out
	default:
		return nil
	}
}

// paramValueKeyFor encodes a document-side leaf value the same way a ParamValue literal would
// encode, so that a Param segment's Value can be compared against a live field value.
func paramValueKeyFor(v *Value) string {
	if v == nil {
		return tokStr
	}
	switch v.kind {
	case KindString:
		return tokStr + v.s
	case KindInt:
		return tokInt + fmt.Sprintf("%d", v.i)
	case KindBool:
		return tokBool + fmt.Sprintf("%v", v.b)
	default:
		return tokStr + v.String()
	}
}
