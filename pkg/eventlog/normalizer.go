package eventlog

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"

	iso8601date "github.com/madeneat/wplogify/pkg/ISO8601date"
	stringtools "github.com/madeneat/wplogify/pkg/stringTools"
)

// NormalizerConfig tells the normalizer which keys carry booleans and which
// carry references. Keys may be qualified with their source as
// "source.key"; a qualified entry wins over a bare one.
type NormalizerConfig struct {
	Location      *time.Location
	BooleanKeys   []string
	ReferenceKeys map[string]EntityKind
}

// Normalizer turns raw stored values into Values. It is read-only after
// construction and safe for concurrent use.
type Normalizer struct {
	loc      *time.Location
	boolKeys map[string]struct{}
	refKeys  map[string]EntityKind
}

func NewNormalizer(cfg NormalizerConfig) *Normalizer {
	n := &Normalizer{
		loc:      cfg.Location,
		boolKeys: make(map[string]struct{}, len(cfg.BooleanKeys)),
		refKeys:  make(map[string]EntityKind, len(cfg.ReferenceKeys)),
	}
	if n.loc == nil {
		n.loc = time.UTC
	}
	for _, k := range cfg.BooleanKeys {
		n.boolKeys[k] = struct{}{}
	}
	for k, kind := range cfg.ReferenceKeys {
		n.refKeys[k] = kind
	}
	return n
}

func (n *Normalizer) Location() *time.Location { return n.loc }

// Normalize never fails: anything it cannot type is kept as a string.
func (n *Normalizer) Normalize(raw any, key, source string) Value {
	if n.isBooleanKey(key, source) {
		if b, ok := asBool(raw); ok {
			return Bool(b)
		}
	}
	if kind, ok := n.referenceKind(key, source); ok {
		return n.reference(kind, raw)
	}
	return n.value(raw)
}

func (n *Normalizer) isBooleanKey(key, source string) bool {
	if source != "" {
		if _, ok := n.boolKeys[source+"."+key]; ok {
			return true
		}
	}
	_, ok := n.boolKeys[key]
	return ok
}

func (n *Normalizer) referenceKind(key, source string) (EntityKind, bool) {
	if source != "" {
		if kind, ok := n.refKeys[source+"."+key]; ok {
			return kind, true
		}
	}
	kind, ok := n.refKeys[key]
	return kind, ok
}

// reference wraps an identifier; zero and empty identifiers mean "none".
func (n *Normalizer) reference(kind EntityKind, raw any) Value {
	if ref, ok := raw.(*EntityReference); ok {
		return Ref(ref)
	}

	v := n.value(raw)
	switch v.kind {
	case ValueInt:
		if v.i == 0 {
			return Null()
		}
		return Ref(&EntityReference{kind: kind, key: IntKey(v.i)})
	case ValueString:
		if v.s == "" {
			return Null()
		}
		return Ref(&EntityReference{kind: kind, key: StringKey(v.s)})
	}
	return v
}

func (n *Normalizer) value(raw any) Value {
	switch v := raw.(type) {
	case nil:
		return Null()
	case Value:
		return v
	case *Value:
		if v == nil {
			return Null()
		}
		return *v
	case *EntityReference:
		return Ref(v)
	case bool:
		return Bool(v)
	case int:
		return Int(int64(v))
	case int8:
		return Int(int64(v))
	case int16:
		return Int(int64(v))
	case int32:
		return Int(int64(v))
	case int64:
		return Int(v)
	case uint:
		return unsignedValue(uint64(v))
	case uint8:
		return Int(int64(v))
	case uint16:
		return Int(int64(v))
	case uint32:
		return Int(int64(v))
	case uint64:
		return unsignedValue(v)
	case float32:
		return floatValue(float64(v))
	case float64:
		return floatValue(v)
	case json.Number:
		return n.fromString(v.String())
	case []byte:
		return n.fromString(string(v))
	case string:
		return n.fromString(v)
	case time.Time:
		return DateTime(v)
	case *time.Time:
		if v == nil {
			return Null()
		}
		return DateTime(*v)
	case phpArray:
		return n.fromPHPArray(v)
	case []any:
		items := make([]Value, len(v))
		for i, item := range v {
			items[i] = n.value(item)
		}
		return List(items...)
	case []string:
		items := make([]Value, len(v))
		for i, item := range v {
			items[i] = n.fromString(item)
		}
		return List(items...)
	case map[string]any:
		return n.fromMap(v)
	case fmt.Stringer:
		return String(v.String())
	}
	return String(fmt.Sprint(raw))
}

func (n *Normalizer) fromString(s string) Value {
	if stringtools.IsInteger(s) {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return Int(i)
		}
		return String(s)
	}
	if stringtools.IsDecimal(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Float(f)
		}
		return String(s)
	}
	if iso8601date.Looks(s) {
		if t, err := iso8601date.Parse(s, n.loc); err == nil {
			return DateTime(t)
		}
		return String(s)
	}
	if looksPHPSerialized(s) {
		if decoded, err := unserializePHP(s); err == nil {
			return n.value(decoded)
		}
	}
	return String(s)
}

// fromPHPArray turns a list-like array into a plain list and anything else
// into a list of [key, value] pairs in stored order.
func (n *Normalizer) fromPHPArray(a phpArray) Value {
	items := make([]Value, len(a))
	if a.sequential() {
		for i, e := range a {
			items[i] = n.value(e.value)
		}
		return List(items...)
	}
	for i, e := range a {
		items[i] = List(String(fmt.Sprint(e.key)), n.value(e.value))
	}
	return List(items...)
}

// fromMap does the same for decoded JSON objects, with keys sorted since a
// Go map has no order.
func (n *Normalizer) fromMap(m map[string]any) Value {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sequential := true
	for i := range keys {
		if _, ok := m[strconv.Itoa(i)]; !ok {
			sequential = false
			break
		}
	}

	items := make([]Value, len(keys))
	if sequential {
		for i := range keys {
			items[i] = n.value(m[strconv.Itoa(i)])
		}
		return List(items...)
	}

	sort.Strings(keys)
	for i, k := range keys {
		items[i] = List(String(k), n.value(m[k]))
	}
	return List(items...)
}

// floatValue folds whole numbers into Int so JSON-decoded 0 equals "0".
func floatValue(f float64) Value {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return Int(int64(f))
	}
	return Float(f)
}

func unsignedValue(u uint64) Value {
	if u > math.MaxInt64 {
		return String(strconv.FormatUint(u, 10))
	}
	return Int(int64(u))
}

func asBool(raw any) (bool, bool) {
	switch v := raw.(type) {
	case bool:
		return v, true
	case json.Number:
		return asBool(v.String())
	case []byte:
		return asBool(string(v))
	case string:
		if b := stringtools.ParseStringToBoolPtr(v); b != nil {
			return *b, true
		}
		return false, false
	}

	rv := reflect.ValueOf(raw)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		return n != 0, n == 0 || n == 1
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n := rv.Uint()
		return n != 0, n == 0 || n == 1
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		return f != 0, f == 0 || f == 1
	}
	return false, false
}
