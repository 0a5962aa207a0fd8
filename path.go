// Copyright 2024 The Flux Authors. All rights reserved.
// Use of this source code is governed by an Apache-2.0 license that can be
// found in the LICENSE file.

package flux

import (
	"fmt"
	"strconv"
	"strings"
)

// SegmentKind discriminates the four shapes a Segment can take.
type SegmentKind uint8

const (
	// SegKey is a named field step, e.g. "name" in "user.name".
	SegKey SegmentKind = iota
	// SegIndex is a non-negative integer index into an ordered sequence, e.g. "[3]".
	SegIndex
	// SegWildcard matches exactly one segment of any kind, or, when deep, any remaining tail.
	SegWildcard
	// SegParam matches the element of a sequence whose Key field equals Value (or, for a
	// placeholder Value, any element, capturing the actual value).
	SegParam
)

func (k SegmentKind) String() string {
	switch k {
	case SegKey:
		return "key"
	case SegIndex:
		return "index"
	case SegWildcard:
		return "wildcard"
	case SegParam:
		return "param"
	default:
		return "unknown"
	}
}

// paramIndexKey is the synthetic param key used for index-placeholders ("[$name]"), as
// described in spec §4.2 for the trie's paramAny map.
const paramIndexKey = "$index"

// ParamValue is either a literal (string, int64 or bool) or a placeholder ("$name" form).
// Placeholder values are always string-typed at parse time per spec §3: the literal value is
// carried in Name, Literal is unused.
type ParamValue struct {
	Placeholder bool
	Name        string // set when Placeholder is true
	Literal     any    // string | int64 | bool, set when Placeholder is false
}

func litString(s string) ParamValue  { return ParamValue{Literal: s} }
func litInt(i int64) ParamValue      { return ParamValue{Literal: i} }
func litBool(b bool) ParamValue      { return ParamValue{Literal: b} }
func placeholder(name string) ParamValue {
	return ParamValue{Placeholder: true, Name: name}
}

// Equal reports whether two ParamValue hold the same literal or the same placeholder name.
func (v ParamValue) Equal(o ParamValue) bool {
	if v.Placeholder != o.Placeholder {
		return false
	}
	if v.Placeholder {
		return v.Name == o.Name
	}
	return v.Literal == o.Literal
}

// String renders the value the way Serialize does: quoted strings, bare numbers/bools, "$name"
// placeholders.
func (v ParamValue) String() string {
	if v.Placeholder {
		return "$" + v.Name
	}
	switch t := v.Literal.(type) {
	case string:
		return strconv.Quote(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Segment is one step of a Path.
type Segment struct {
	Kind SegmentKind

	// Key is the field name for SegKey, and the param key for SegParam (or paramIndexKey for
	// an index-placeholder).
	Key string
	// Index is the sequence position for SegIndex.
	Index int64

	// AsIndex is true for an index-wildcard ("[*]"); false for a key-wildcard ("*" or ".*").
	AsIndex bool
	// Deep is true only for a trailing, non-index key-wildcard: it matches any remaining
	// tail, including the empty tail.
	Deep bool

	// Value holds the match criterion for SegParam.
	Value ParamValue
}

// Path is an ordered sequence of segments produced by Parse.
type Path struct {
	Segments []Segment
}

// String is an alias for Serialize(p), satisfying fmt.Stringer.
func (p Path) String() string {
	return Serialize(p)
}

// IsEmpty reports whether the path addresses the document root.
func (p Path) IsEmpty() bool {
	return len(p.Segments) == 0
}

// HasPlaceholder reports whether the path contains any placeholder Param or index-placeholder
// segment. Per spec §4.1, such masks cannot be passed to Match (the pair-matcher); only the
// trie (Router) understands placeholders.
func (p Path) HasPlaceholder() bool {
	for _, s := range p.Segments {
		if s.Kind == SegParam && s.Value.Placeholder {
			return true
		}
	}
	return false
}

// ParseOptions configures Parse and Interpolate.
type ParseOptions struct {
	// Vars resolves "$name" occurrences at parse time, exactly as Interpolate would.
	Vars map[string]any
	// WildcardDynamic controls what happens to a "$name" occurrence that Vars does not
	// resolve: true widens it to the matching wildcard form; false leaves the "$name" token
	// in place (a dangling placeholder in a bracket, or, in dot position, a literal key segment
	// "$name" that the adapter resolves from vars at call time).
	WildcardDynamic bool
}

// ParseOption configures a single Parse or Interpolate call.
type ParseOption func(*ParseOptions)

// WithVars supplies the variable bindings used to resolve "$name" occurrences.
func WithVars(vars map[string]any) ParseOption {
	return func(o *ParseOptions) { o.Vars = vars }
}

// WithWildcardDynamic controls whether an unresolved "$name" widens to a wildcard (true) or is
// left in place (false). Defaults to false.
func WithWildcardDynamic(enable bool) ParseOption {
	return func(o *ParseOptions) { o.WildcardDynamic = enable }
}

const (
	defaultPathCacheSize = 4096
)

var (
	pathCache     = newStrCache[Path](defaultPathCacheSize)
	segmentsCache = newStrCache[[]Segment](defaultPathCacheSize)
)

// Parse tokenizes s into a Path. The grammar is:
//
//	path        := segment ( '.' segment | bracket )*
//	segment     := IDENT | '*' | '$' IDENT
//	bracket     := '[' inner ']'
//	inner       := INTEGER | '*' | '$' IDENT | IDENT '=' value
//	value       := INTEGER | '"' STRING '"' | "'" STRING "'" | IDENT | '$' IDENT
//
// Parse never fails on structurally valid input; path semantics (e.g. whether a wildcard is
// legal in this position) are validated by callers such as the data adapter.
func Parse(s string, opts ...ParseOption) (Path, error) {
	var o ParseOptions
	for _, opt := range opts {
		opt(&o)
	}

	src := s
	if len(o.Vars) > 0 || o.WildcardDynamic {
		src = Interpolate(s, o.Vars, o.WildcardDynamic)
	}

	if cached, ok := pathCache.get(src); ok {
		return cached, nil
	}

	segs, err := tokenize(src)
	if err != nil {
		return Path{}, err
	}

	p := Path{Segments: segs}
	pathCache.put(src, p)
	return p, nil
}

// Interpolate substitutes "$name" occurrences in key, index and param-value positions with
// values from vars. A variable absent from vars is, when wildcardDynamic is true, rewritten to
// the appropriate wildcard form ("[*]" or "*"); when false, the "$name" token is left in place.
// After substitution, any bracketed segment that still contains an unresolved "$" is widened to
// "[*]" when wildcardDynamic is true.
func Interpolate(s string, vars map[string]any, wildcardDynamic bool) string {
	raw, err := splitRawSegments(s)
	if err != nil {
		// Leave malformed input untouched; Parse will surface the structural error.
		return s
	}

	var sb strings.Builder
	for i, r := range raw {
		out := interpolateRaw(r, vars, wildcardDynamic)
		if r.bracket {
			sb.WriteByte('[')
			sb.WriteString(out)
			sb.WriteByte(']')
			continue
		}
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(out)
	}
	return sb.String()
}

func interpolateRaw(r rawSegment, vars map[string]any, wildcardDynamic bool) string {
	text := r.text
	if !strings.Contains(text, "$") {
		return text
	}

	if !r.bracket {
		// Dot-segment: the whole token is "$name" or nothing (grammar disallows embedding a
		// variable inside a bareword key).
		name, ok := strings.CutPrefix(text, "$")
		if !ok {
			return text
		}
		if v, found := vars[name]; found {
			return fmt.Sprintf("%v", v)
		}
		if wildcardDynamic {
			return "*"
		}
		return text
	}

	// Bracket inner: resolve "$name" wherever it appears (index position, key=$name value
	// position, or bare "$name" index-placeholder), tracking quotes so we never touch a "$"
	// embedded in a quoted literal.
	resolved, sawUnresolved := resolveBracketVars(text, vars)
	if sawUnresolved && wildcardDynamic {
		return "*"
	}
	return resolved
}

// resolveBracketVars substitutes "$name" tokens appearing outside quotes inside a bracket's
// inner text. It reports whether any "$name" token remained unresolved.
func resolveBracketVars(inner string, vars map[string]any) (string, bool) {
	var sb strings.Builder
	i := 0
	unresolved := false
	for i < len(inner) {
		c := inner[i]
		switch {
		case c == '\'' || c == '"':
			end := scanQuoted(inner, i)
			sb.WriteString(inner[i:end])
			i = end
		case c == '$':
			j := i + 1
			for j < len(inner) && isIdentByte(inner[j]) {
				j++
			}
			name := inner[i+1 : j]
			if v, ok := vars[name]; ok && name != "" {
				sb.WriteString(fmt.Sprintf("%v", v))
			} else {
				sb.WriteString(inner[i:j])
				unresolved = true
			}
			i = j
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), unresolved
}

// scanQuoted returns the index just past the closing quote that matches inner[start], honoring
// backslash escapes.
func scanQuoted(s string, start int) int {
	q := s[start]
	i := start + 1
	for i < len(s) {
		if s[i] == '\\' && i+1 < len(s) {
			i += 2
			continue
		}
		if s[i] == q {
			return i + 1
		}
		i++
	}
	return len(s)
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '-' ||
		('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9')
}

// rawSegment is one top-level token of a path string, prior to semantic interpretation:
// either a dot-segment (bracket == false) or the inner text of a "[...]" bracket.
type rawSegment struct {
	text    string
	bracket bool
}

// splitRawSegments performs the balanced-bracket scan required by spec §4.1: brackets may
// contain quoted strings (which may themselves contain escaped quotes and '[' ']' '.' bytes),
// so a naive split on '.' or ']' is insufficient.
func splitRawSegments(s string) ([]rawSegment, error) {
	var out []rawSegment
	i := 0
	n := len(s)
	first := true
	for i < n {
		switch {
		case s[i] == '.':
			i++
			first = false
		case s[i] == '[':
			end, err := matchBracket(s, i)
			if err != nil {
				return nil, err
			}
			out = append(out, rawSegment{text: s[i+1 : end], bracket: true})
			i = end + 1
			first = false
		default:
			j := i
			for j < n && s[j] != '.' && s[j] != '[' {
				j++
			}
			if j == i && !first {
				return nil, fmt.Errorf("%w: empty segment at %d", ErrInvalidPath, i)
			}
			out = append(out, rawSegment{text: s[i:j], bracket: false})
			i = j
			first = false
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// matchBracket returns the index of the ']' balancing the '[' at s[open], honoring quoted
// strings (with backslash escapes) so that a ']' inside a quoted literal is not mistaken for
// the closing bracket.
func matchBracket(s string, open int) (int, error) {
	i := open + 1
	for i < len(s) {
		switch s[i] {
		case '\'', '"':
			i = scanQuoted(s, i)
		case ']':
			return i, nil
		default:
			i++
		}
	}
	return 0, fmt.Errorf("%w: unbalanced '[' at %d", ErrInvalidPath, open)
}

// tokenize converts raw top-level segments into typed Segment values.
func tokenize(s string) ([]Segment, error) {
	if cached, ok := segmentsCache.get(s); ok {
		return cached, nil
	}

	raw, err := splitRawSegments(s)
	if err != nil {
		return nil, err
	}

	segs := make([]Segment, 0, len(raw))
	for i, r := range raw {
		last := i == len(raw)-1
		seg, err := tokenizeOne(r, last)
		if err != nil {
			return nil, err
		}
		segs = append(segs, seg)
	}

	segmentsCache.put(s, segs)
	return segs, nil
}

func tokenizeOne(r rawSegment, last bool) (Segment, error) {
	if !r.bracket {
		return tokenizeDot(r.text, last)
	}
	return tokenizeBracket(r.text)
}

func tokenizeDot(text string, last bool) (Segment, error) {
	switch {
	case text == "*":
		return Segment{Kind: SegWildcard, AsIndex: false, Deep: last}, nil
	case strings.HasPrefix(text, "$"):
		// A raw, uninterpolated "$name" dot-segment is kept as a literal key segment so that
		// get/set can rebase the traversal cursor through it at call time (see adapter.go).
		// Interpolate is what widens an unresolved "$name" to a wildcard, and it runs before
		// tokenize when the caller opts into WithVars/WithWildcardDynamic.
		return Segment{Kind: SegKey, Key: text}, nil
	case text == "":
		return Segment{}, fmt.Errorf("%w: empty key segment", ErrInvalidPath)
	default:
		return Segment{Kind: SegKey, Key: text}, nil
	}
}

func tokenizeBracket(inner string) (Segment, error) {
	switch {
	case inner == "*":
		return Segment{Kind: SegWildcard, AsIndex: true, Deep: false}, nil
	case strings.HasPrefix(inner, "$"):
		name := inner[1:]
		if name == "" {
			return Segment{}, fmt.Errorf("%w: empty index placeholder name", ErrInvalidPath)
		}
		return Segment{Kind: SegParam, Key: paramIndexKey, Value: placeholder(name)}, nil
	case isAllDigits(inner):
		idx, err := strconv.ParseInt(inner, 10, 64)
		if err != nil {
			return Segment{}, fmt.Errorf("%w: invalid index %q", ErrInvalidPath, inner)
		}
		return Segment{Kind: SegIndex, Index: idx}, nil
	default:
		eq := strings.IndexByte(inner, '=')
		if eq < 0 {
			return Segment{}, fmt.Errorf("%w: malformed bracket %q", ErrInvalidPath, inner)
		}
		key := inner[:eq]
		if key == "" {
			return Segment{}, fmt.Errorf("%w: empty param key in %q", ErrInvalidPath, inner)
		}
		val, err := parseParamValue(inner[eq+1:])
		if err != nil {
			return Segment{}, err
		}
		return Segment{Kind: SegParam, Key: key, Value: val}, nil
	}
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	start := 0
	if s[0] == '-' {
		start = 1
	}
	if start == len(s) {
		return false
	}
	for i := start; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func parseParamValue(v string) (ParamValue, error) {
	switch {
	case v == "":
		return ParamValue{}, fmt.Errorf("%w: empty param value", ErrInvalidPath)
	case strings.HasPrefix(v, "$"):
		name := v[1:]
		if name == "" {
			return ParamValue{}, fmt.Errorf("%w: empty placeholder name", ErrInvalidPath)
		}
		return placeholder(name), nil
	case (v[0] == '"' || v[0] == '\'') && len(v) >= 2 && v[len(v)-1] == v[0]:
		unquoted, err := unescapeQuoted(v[1 : len(v)-1])
		if err != nil {
			return ParamValue{}, err
		}
		return litString(unquoted), nil
	case isAllDigits(v):
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return ParamValue{}, fmt.Errorf("%w: invalid numeric literal %q", ErrInvalidPath, v)
		}
		return litInt(n), nil
	case v == "true":
		return litBool(true), nil
	case v == "false":
		return litBool(false), nil
	default:
		return litString(v), nil
	}
}

func unescapeQuoted(s string) (string, error) {
	if !strings.Contains(s, "\\") {
		return s, nil
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			sb.WriteByte(s[i])
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String(), nil
}

// Serialize renders path back into surface syntax. It is deterministic and is the inverse of
// Parse for every well-formed path: Match(Parse(s), Parse(Serialize(Parse(s)))) holds in both
// directions.
func Serialize(p Path) string {
	var sb strings.Builder
	for i, s := range p.Segments {
		switch s.Kind {
		case SegKey:
			if i > 0 {
				sb.WriteByte('.')
			}
			sb.WriteString(s.Key)
		case SegWildcard:
			if s.AsIndex {
				sb.WriteString("[*]")
				continue
			}
			if i == 0 {
				sb.WriteByte('*')
			} else {
				sb.WriteString(".*")
			}
		case SegIndex:
			sb.WriteByte('[')
			sb.WriteString(strconv.FormatInt(s.Index, 10))
			sb.WriteByte(']')
		case SegParam:
			sb.WriteByte('[')
			if s.Key == paramIndexKey {
				sb.WriteString(s.Value.String())
			} else {
				sb.WriteString(s.Key)
				sb.WriteByte('=')
				sb.WriteString(s.Value.String())
			}
			sb.WriteByte(']')
		}
	}
	return sb.String()
}

// Match performs a stepwise comparison between mask and target, per spec §4.1. mask may not
// contain placeholder Param segments or index-placeholders; use the Router for those. Match
// never modifies its arguments and has no side effects.
func Match(mask, target Path) bool {
	return matchFrom(mask.Segments, target.Segments)
}

func matchFrom(mask, target []Segment) bool {
	if len(mask) == 0 {
		// An empty mask (e.g. from Parse("")) matches any (possibly empty) target. A lone "*"
		// mask (open question #2 in spec §9) matches everything including the empty path
		// through the deep-wildcard branch below.
		return true
	}

	m := mask[0]

	if m.Kind == SegWildcard && !m.AsIndex && m.Deep {
		// Deep key-wildcard: matches any remaining tail, including empty, and must be last.
		return true
	}

	if len(target) == 0 {
		return false
	}
	t := target[0]

	switch m.Kind {
	case SegWildcard:
		// A wildcard (deep-or-not, index-or-not) consumes exactly one target segment of any
		// kind, except that an index-wildcard should, by convention, only ever be written
		// against Index/Param targets; spec doesn't forbid matching it against a Key target,
		// so we allow it for robustness of a single-wildcard step.
		return matchFrom(mask[1:], target[1:])
	case SegKey:
		return t.Kind == SegKey && t.Key == m.Key && matchFrom(mask[1:], target[1:])
	case SegIndex:
		return t.Kind == SegIndex && t.Index == m.Index && matchFrom(mask[1:], target[1:])
	case SegParam:
		if m.Value.Placeholder {
			// Undefined per spec §9 Open Question #1: matching a placeholder mask against a
			// concrete pair is not meaningful through this function. Treat the key as
			// matching any param with the same key, to fail safe rather than panic.
			return t.Kind == SegParam && t.Key == m.Key && matchFrom(mask[1:], target[1:])
		}
		return t.Kind == SegParam && t.Key == m.Key && t.Value.Equal(m.Value) &&
			matchFrom(mask[1:], target[1:])
	default:
		return false
	}
}
