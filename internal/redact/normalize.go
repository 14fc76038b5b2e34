package redact

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"unicode/utf8"
)

// Markers substituted for values that cannot be represented.
const (
	MarkerCircular  = "[Circular]"
	MarkerMaxDepth  = "[MaxDepth]"
	MarkerTruncated = "[Truncated]"
)

// Limits caps how much of a payload Normalize keeps.
type Limits struct {
	MaxDepth int // nesting levels below the root; <=0 means 32
	MaxNodes int // values visited; <=0 means 20000
}

func (l Limits) withDefaults() Limits {
	if l.MaxDepth <= 0 {
		l.MaxDepth = 32
	}
	if l.MaxNodes <= 0 {
		l.MaxNodes = 20000
	}
	return l
}

// Normalize converts v into a JSON tree built only from map[string]any, []any,
// string, json.Number, bool and nil.
//
// It never fails: cycles, unsupported kinds (channels, funcs, complex numbers),
// failing marshalers and values beyond the limits are replaced by string markers.
func Normalize(v any, lim Limits) (out any) {
	lim = lim.withDefaults()
	n := &normalizer{lim: lim}
	defer func() {
		if r := recover(); r != nil {
			out = fmt.Sprintf("[Unserializable %T]", v)
		}
	}()

	// Fast path: the value marshals cleanly.
	if b, err := json.Marshal(v); err == nil {
		if tree, ok := decodeJSON(b); ok {
			return n.capTree(tree, 0)
		}
	}
	return n.walk(reflect.ValueOf(v), 0, map[uintptr]bool{})
}

func decodeJSON(b []byte) (any, bool) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, false
	}
	return out, true
}

type normalizer struct {
	lim   Limits
	nodes int
}

// budget consumes one node and reports whether the walk may continue.
func (n *normalizer) budget() bool {
	n.nodes++
	return n.nodes <= n.lim.MaxNodes
}

// capTree applies the depth and node limits to an already-decoded JSON tree.
func (n *normalizer) capTree(v any, depth int) any {
	if !n.budget() {
		return MarkerTruncated
	}
	switch x := v.(type) {
	case map[string]any:
		if depth >= n.lim.MaxDepth {
			return MarkerMaxDepth
		}
		out := make(map[string]any, len(x))
		for _, k := range sortedKeys(x) {
			out[k] = n.capTree(x[k], depth+1)
		}
		return out
	case []any:
		if depth >= n.lim.MaxDepth {
			return MarkerMaxDepth
		}
		out := make([]any, len(x))
		for i := range x {
			out[i] = n.capTree(x[i], depth+1)
		}
		return out
	default:
		return v
	}
}

var (
	marshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
	rawType       = reflect.TypeOf(json.RawMessage(nil))
)

// walk converts values the fast path could not marshal. path holds the pointers
// on the current branch so repeated (but acyclic) references still render.
func (n *normalizer) walk(rv reflect.Value, depth int, path map[uintptr]bool) any {
	if !n.budget() {
		return MarkerTruncated
	}
	if !rv.IsValid() {
		return nil
	}

	// Interfaces and pointers: unwrap with cycle detection.
	for rv.Kind() == reflect.Interface || rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		if rv.Kind() == reflect.Pointer {
			if rv.CanInterface() && rv.Type().Implements(marshalerType) {
				return n.marshaled(rv, depth)
			}
			p := rv.Pointer()
			if path[p] {
				return MarkerCircular
			}
			path[p] = true
			defer delete(path, p)
		}
		rv = rv.Elem()
	}

	if rv.Type() == rawType {
		if rv.Len() == 0 {
			return nil
		}
		if tree, ok := decodeJSON(rv.Bytes()); ok {
			return n.capTree(tree, depth)
		}
		return string(rv.Bytes())
	}
	if rv.CanInterface() && rv.Type().Implements(marshalerType) {
		return n.marshaled(rv, depth)
	}

	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return json.Number(fmt.Sprint(rv.Int()))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return json.Number(fmt.Sprint(rv.Uint()))
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprint(f)
		}
		b, _ := json.Marshal(f)
		return json.Number(b)
	case reflect.String:
		return rv.String()
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return bytesLeaf(bytesOf(rv))
		}
		if depth >= n.lim.MaxDepth {
			return MarkerMaxDepth
		}
		if rv.Kind() == reflect.Slice {
			p := rv.Pointer()
			if p != 0 && path[p] && rv.Len() > 0 {
				return MarkerCircular
			}
		}
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = n.walk(rv.Index(i), depth+1, path)
		}
		return out
	case reflect.Map:
		if rv.IsNil() {
			return nil
		}
		if depth >= n.lim.MaxDepth {
			return MarkerMaxDepth
		}
		p := rv.Pointer()
		if path[p] {
			return MarkerCircular
		}
		path[p] = true
		defer delete(path, p)

		keys := rv.MapKeys()
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = fmt.Sprint(k)
		}
		idx := make([]int, len(keys))
		for i := range idx {
			idx[i] = i
		}
		sort.Slice(idx, func(a, b int) bool { return names[idx[a]] < names[idx[b]] })
		out := make(map[string]any, len(keys))
		for _, i := range idx {
			out[names[i]] = n.walk(rv.MapIndex(keys[i]), depth+1, path)
		}
		return out
	case reflect.Struct:
		if depth >= n.lim.MaxDepth {
			return MarkerMaxDepth
		}
		out := map[string]any{}
		n.structFields(rv, depth, path, out)
		return out
	default:
		return "[Unserializable " + rv.Type().String() + "]"
	}
}

// structFields writes exported fields of rv into out using json tag names.
// Embedded structs without a tag are flattened.
func (n *normalizer) structFields(rv reflect.Value, depth int, path map[uintptr]bool, out map[string]any) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, omitEmpty, skip := jsonName(f)
		if skip {
			continue
		}
		fv := rv.Field(i)
		if f.Anonymous && f.Tag.Get("json") == "" {
			ev := fv
			for ev.Kind() == reflect.Pointer {
				if ev.IsNil() {
					break
				}
				ev = ev.Elem()
			}
			if ev.Kind() == reflect.Struct {
				n.structFields(ev, depth, path, out)
				continue
			}
		}
		if !f.IsExported() {
			continue
		}
		if omitEmpty && fv.IsZero() {
			continue
		}
		out[name] = n.walk(fv, depth+1, path)
	}
}

func jsonName(f reflect.StructField) (name string, omitEmpty, skip bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false, true
	}
	name, opts, _ := strings.Cut(tag, ",")
	if name == "" {
		name = f.Name
	}
	return name, strings.Contains(opts, "omitempty"), false
}

func (n *normalizer) marshaled(rv reflect.Value, depth int) any {
	m, ok := rv.Interface().(json.Marshaler)
	if !ok {
		return "[Unserializable " + rv.Type().String() + "]"
	}
	b, err := safeMarshal(m)
	if err != nil {
		return "[Unserializable " + rv.Type().String() + "]"
	}
	tree, ok := decodeJSON(b)
	if !ok {
		return "[Unserializable " + rv.Type().String() + "]"
	}
	return n.capTree(tree, depth)
}

func safeMarshal(m json.Marshaler) (b []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("marshal panicked: %v", r)
		}
	}()
	return m.MarshalJSON()
}

func bytesOf(rv reflect.Value) []byte {
	if rv.Kind() == reflect.Slice {
		return rv.Bytes()
	}
	b := make([]byte, rv.Len())
	for i := range b {
		b[i] = byte(rv.Index(i).Uint())
	}
	return b
}

// bytesLeaf renders a binary blob as text when it is UTF-8, base64 otherwise.
func bytesLeaf(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return base64.StdEncoding.EncodeToString(b)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
