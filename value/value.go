// Package value implements the heterogeneous JSON value sum type used
// throughout the control layer: trait bodies, command parameters/results,
// and component state are all Values rather than ad-hoc map[string]any
// trees, so a single JSON codec and equality routine serves every consumer.
package value

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind identifies the concrete shape a Value holds.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Int
	Double
	String
	List
	Map
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Double:
		return "double"
	case String:
		return "string"
	case List:
		return "list"
	case Map:
		return "map"
	default:
		return "unknown"
	}
}

// Value is an immutable-by-convention JSON value. Callers that need to
// mutate a Map or List should use the With* helpers, which return a copy.
type Value struct {
	kind Kind
	b    bool
	i    int64
	d    float64
	s    string
	list []Value
	m    map[string]Value
}

// NullV is the null value.
var NullV = Value{kind: Null}

func BoolV(b bool) Value    { return Value{kind: Bool, b: b} }
func IntV(i int64) Value    { return Value{kind: Int, i: i} }
func DoubleV(d float64) Value { return Value{kind: Double, d: d} }
func StringV(s string) Value  { return Value{kind: String, s: s} }

func ListV(items ...Value) Value {
	c := make([]Value, len(items))
	copy(c, items)
	return Value{kind: List, list: c}
}

func MapV(m map[string]Value) Value {
	c := make(map[string]Value, len(m))
	for k, v := range m {
		c[k] = v
	}
	return Value{kind: Map, m: c}
}

func (v Value) Kind() Kind  { return v.kind }
func (v Value) IsNull() bool { return v.kind == Null }

func (v Value) Bool() (bool, bool) {
	if v.kind != Bool {
		return false, false
	}
	return v.b, true
}

func (v Value) Int() (int64, bool) {
	switch v.kind {
	case Int:
		return v.i, true
	case Double:
		return int64(v.d), true
	default:
		return 0, false
	}
}

func (v Value) Float() (float64, bool) {
	switch v.kind {
	case Double:
		return v.d, true
	case Int:
		return float64(v.i), true
	default:
		return 0, false
	}
}

func (v Value) Str() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.s, true
}

func (v Value) List() ([]Value, bool) {
	if v.kind != List {
		return nil, false
	}
	return v.list, true
}

func (v Value) Map() (map[string]Value, bool) {
	if v.kind != Map {
		return nil, false
	}
	return v.m, true
}

// Keys returns the sorted keys of a Map value, or nil otherwise.
func (v Value) Keys() []string {
	if v.kind != Map {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WithMapEntry returns a copy of v (which must be a Map, or Null which is
// treated as an empty Map) with key set to val.
func (v Value) WithMapEntry(key string, val Value) Value {
	m := map[string]Value{}
	if v.kind == Map {
		for k, existing := range v.m {
			m[k] = existing
		}
	}
	m[key] = val
	return MapV(m)
}

// Merge returns a copy of v with every key of patch applied on top
// (shallow at the top level, matching DictionaryValue::MergeDictionary).
func (v Value) Merge(patch Value) Value {
	out := map[string]Value{}
	if v.kind == Map {
		for k, existing := range v.m {
			out[k] = existing
		}
	}
	if patch.kind == Map {
		for k, val := range patch.m {
			out[k] = val
		}
	}
	return MapV(out)
}

// Clone deep-copies v. ListV and MapV copy only the top level of their
// argument, and copies of a Value share its List/Map storage, so nested
// Lists/Maps are otherwise shared; Clone copies every level.
func (v Value) Clone() Value {
	switch v.kind {
	case List:
		out := make([]Value, len(v.list))
		for i, item := range v.list {
			out[i] = item.Clone()
		}
		return Value{kind: List, list: out}
	case Map:
		out := make(map[string]Value, len(v.m))
		for k, item := range v.m {
			out[k] = item.Clone()
		}
		return Value{kind: Map, m: out}
	default:
		return v
	}
}

// Equal reports deep structural equality, independent of Map key order.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		// Numeric cross-kind equality (Int 2 == Double 2.0) matches JSON's
		// single number type.
		if (v.kind == Int || v.kind == Double) && (other.kind == Int || other.kind == Double) {
			a, _ := v.Float()
			b, _ := other.Float()
			return a == b
		}
		return false
	}
	switch v.kind {
	case Null:
		return true
	case Bool:
		return v.b == other.b
	case Int:
		return v.i == other.i
	case Double:
		return v.d == other.d
	case String:
		return v.s == other.s
	case List:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case Map:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, val := range v.m {
			ov, ok := other.m[k]
			if !ok || !val.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// -----------------------------------------------------------------------------
// JSON interop
// -----------------------------------------------------------------------------

// ParseJSON decodes raw JSON into a Value using gjson, which lets callers
// avoid round-tripping through map[string]any for every trait body, command
// payload, and cloud response the control layer touches.
func ParseJSON(data []byte) (Value, error) {
	if !gjson.ValidBytes(data) {
		return NullV, fmt.Errorf("invalid JSON")
	}
	return fromGJSON(gjson.ParseBytes(data)), nil
}

func fromGJSON(r gjson.Result) Value {
	switch r.Type {
	case gjson.Null:
		return NullV
	case gjson.False:
		return BoolV(false)
	case gjson.True:
		return BoolV(true)
	case gjson.Number:
		if r.Num == float64(int64(r.Num)) && !strings.ContainsAny(r.Raw, ".eE") {
			return IntV(int64(r.Num))
		}
		return DoubleV(r.Num)
	case gjson.String:
		return StringV(r.Str)
	case gjson.JSON:
		if r.IsArray() {
			var items []Value
			r.ForEach(func(_, val gjson.Result) bool {
				items = append(items, fromGJSON(val))
				return true
			})
			return ListV(items...)
		}
		m := map[string]Value{}
		r.ForEach(func(key, val gjson.Result) bool {
			m[key.String()] = fromGJSON(val)
			return true
		})
		return MapV(m)
	default:
		return NullV
	}
}

// FromAny converts a decoded encoding/json tree (map[string]any, []any,
// float64, string, bool, nil) into a Value. Used at boundaries that already
// went through encoding/json (e.g. struct tags on wire types).
func FromAny(a any) Value {
	switch t := a.(type) {
	case nil:
		return NullV
	case bool:
		return BoolV(t)
	case float64:
		if t == float64(int64(t)) {
			return IntV(int64(t))
		}
		return DoubleV(t)
	case int:
		return IntV(int64(t))
	case int64:
		return IntV(t)
	case string:
		return StringV(t)
	case []any:
		items := make([]Value, len(t))
		for i, v := range t {
			items[i] = FromAny(v)
		}
		return ListV(items...)
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, v := range t {
			m[k] = FromAny(v)
		}
		return MapV(m)
	default:
		return NullV
	}
}

// ToAny converts a Value back into a plain Go tree suitable for
// encoding/json.Marshal or sjson.SetBytes (see SetRawPath).
func (v Value) ToAny() any {
	switch v.kind {
	case Null:
		return nil
	case Bool:
		return v.b
	case Int:
		return v.i
	case Double:
		return v.d
	case String:
		return v.s
	case List:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.ToAny()
		}
		return out
	case Map:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.ToAny()
		}
		return out
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := ParseJSON(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// -----------------------------------------------------------------------------
// Path resolution: dot-separated names with optional "[i]" array indices,
// e.g. "sensors.cams[2].lens", resolved against a plain Value tree. The
// component tree does not use this resolver; it parses its own paths.
// -----------------------------------------------------------------------------

// PathElem is one dot-separated segment, optionally carrying an array index.
type PathElem struct {
	Name     string
	HasIndex bool
	Index    int
}

// SplitPath parses a dotted path into elements. An empty path yields nil.
func SplitPath(path string) ([]PathElem, error) {
	if path == "" {
		return nil, nil
	}
	parts := strings.Split(path, ".")
	out := make([]PathElem, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("empty path element")
		}
		name := p
		hasIndex := false
		idx := -1
		if b := strings.IndexByte(p, '['); b >= 0 {
			if p[len(p)-1] != ']' {
				return nil, fmt.Errorf("invalid array element syntax %q", p)
			}
			name = p[:b]
			idxStr := p[b+1 : len(p)-1]
			n, err := strconv.Atoi(strings.TrimSpace(idxStr))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid array index %q", idxStr)
			}
			hasIndex = true
			idx = n
		}
		if name == "" {
			return nil, fmt.Errorf("empty path element")
		}
		out = append(out, PathElem{Name: name, HasIndex: hasIndex, Index: idx})
	}
	return out, nil
}

// Get resolves a dotted path against a Value tree of nested Maps/Lists.
func Get(root Value, path string) (Value, error) {
	elems, err := SplitPath(path)
	if err != nil {
		return NullV, err
	}
	cur := root
	for _, e := range elems {
		m, ok := cur.Map()
		if !ok {
			return NullV, fmt.Errorf("type_mismatch: not an object at %q", e.Name)
		}
		next, ok := m[e.Name]
		if !ok {
			return NullV, fmt.Errorf("property_missing: %q", e.Name)
		}
		if e.HasIndex {
			list, ok := next.List()
			if !ok {
				return NullV, fmt.Errorf("type_mismatch: %q is not an array", e.Name)
			}
			if e.Index >= len(list) {
				return NullV, fmt.Errorf("property_missing: index %d out of range for %q", e.Index, e.Name)
			}
			next = list[e.Index]
		}
		cur = next
	}
	return cur, nil
}

// SetRawPath applies a single dotted-path set onto raw JSON bytes using
// sjson, used by callers (role-based state redaction) that build up
// wire-format JSON one property at a time rather than through a Value tree.
func SetRawPath(raw []byte, path string, v Value) ([]byte, error) {
	return sjsonSet(raw, path, v.ToAny())
}

// PrettyJSONBytes indents raw JSON for debug logging, used by callers
// (cloud PATCH body dumps) that already hold wire-format JSON rather than
// a Value tree.
func PrettyJSONBytes(raw []byte) []byte {
	return prettyPrint(raw)
}

// EscapeKey escapes the dots in a flat "trait.prop"-style key so it can be
// used as a single path segment with SetRawPath rather than being read as
// nested objects.
func EscapeKey(key string) string {
	return strings.ReplaceAll(key, ".", `\.`)
}
