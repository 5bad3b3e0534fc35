package eventlog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	iso8601date "github.com/madeneat/wplogify/pkg/ISO8601date"
)

// ValueKind is the discriminant of a Value.
type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueBool
	ValueInt
	ValueFloat
	ValueString
	ValueDateTime
	ValueReference
	ValueList
)

var valueKindNames = [...]string{
	ValueNull:      "null",
	ValueBool:      "bool",
	ValueInt:       "int",
	ValueFloat:     "float",
	ValueString:    "string",
	ValueDateTime:  "datetime",
	ValueReference: "ref",
	ValueList:      "list",
}

func (k ValueKind) String() string {
	if int(k) < len(valueKindNames) {
		return valueKindNames[k]
	}
	return "ValueKind(" + strconv.Itoa(int(k)) + ")"
}

func parseValueKind(s string) (ValueKind, error) {
	for k, name := range valueKindNames {
		if name == s {
			return ValueKind(k), nil
		}
	}
	return ValueNull, fmt.Errorf("eventlog: unknown value type %q", s)
}

// Value is a normalized property or meta value. The zero Value is null.
type Value struct {
	kind ValueKind
	b    bool
	i    int64
	f    float64
	s    string
	t    time.Time
	ref  *EntityReference
	list []Value
}

func Null() Value                { return Value{} }
func Bool(b bool) Value          { return Value{kind: ValueBool, b: b} }
func Int(i int64) Value          { return Value{kind: ValueInt, i: i} }
func Float(f float64) Value      { return Value{kind: ValueFloat, f: f} }
func String(s string) Value      { return Value{kind: ValueString, s: s} }
func DateTime(t time.Time) Value { return Value{kind: ValueDateTime, t: t} }

// Ref wraps a reference; a nil reference is Null.
func Ref(r *EntityReference) Value {
	if r == nil {
		return Null()
	}
	return Value{kind: ValueReference, ref: r}
}

func List(items ...Value) Value {
	return Value{kind: ValueList, list: append([]Value(nil), items...)}
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == ValueNull }

func (v Value) AsBool() (bool, bool)                  { return v.b, v.kind == ValueBool }
func (v Value) AsInt() (int64, bool)                  { return v.i, v.kind == ValueInt }
func (v Value) AsFloat() (float64, bool)              { return v.f, v.kind == ValueFloat }
func (v Value) AsString() (string, bool)              { return v.s, v.kind == ValueString }
func (v Value) AsDateTime() (time.Time, bool)         { return v.t, v.kind == ValueDateTime }
func (v Value) AsReference() (*EntityReference, bool) { return v.ref, v.kind == ValueReference }

// AsList returns a copy of the list items.
func (v Value) AsList() ([]Value, bool) {
	if v.kind != ValueList {
		return nil, false
	}
	return append([]Value(nil), v.list...), true
}

// Equal is structural equality. Values of different kinds are never equal,
// datetimes compare at whole-second precision and references compare by
// target, ignoring any cached name.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}

	switch v.kind {
	case ValueNull:
		return true
	case ValueBool:
		return v.b == o.b
	case ValueInt:
		return v.i == o.i
	case ValueFloat:
		return v.f == o.f
	case ValueString:
		return v.s == o.s
	case ValueDateTime:
		return v.t.Unix() == o.t.Unix()
	case ValueReference:
		return v.ref.SameTarget(o.ref)
	case ValueList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Equals reports whether a and b are structurally equal.
func Equals(a, b Value) bool { return a.Equal(b) }

// String renders the value for display.
func (v Value) String() string {
	switch v.kind {
	case ValueBool:
		if v.b {
			return "Yes"
		}
		return "No"
	case ValueInt:
		return strconv.FormatInt(v.i, 10)
	case ValueFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case ValueString:
		return v.s
	case ValueDateTime:
		return v.t.Format(iso8601date.SiteLayout)
	case ValueReference:
		return v.ref.String()
	case ValueList:
		parts := make([]string, len(v.list))
		for i, item := range v.list {
			parts[i] = item.String()
		}
		return strings.Join(parts, ", ")
	}
	return ""
}

// Raw returns the value as plain Go data, suitable for sanitizing or
// indexing. Datetimes become RFC 3339 strings.
func (v Value) Raw() any {
	switch v.kind {
	case ValueBool:
		return v.b
	case ValueInt:
		return v.i
	case ValueFloat:
		return v.f
	case ValueString:
		return v.s
	case ValueDateTime:
		return v.t.Format(time.RFC3339)
	case ValueReference:
		return map[string]any{"kind": string(v.ref.kind), "key": v.ref.key.String(), "name": v.ref.String()}
	case ValueList:
		items := make([]any, len(v.list))
		for i, item := range v.list {
			items[i] = item.Raw()
		}
		return items
	}
	return nil
}

type valueJSON struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (v Value) MarshalJSON() ([]byte, error) {
	out := valueJSON{Type: v.kind.String()}

	var (
		payload any
		err     error
	)
	switch v.kind {
	case ValueNull:
		return json.Marshal(out)
	case ValueBool:
		payload = v.b
	case ValueInt:
		payload = v.i
	case ValueFloat:
		payload = v.f
	case ValueString:
		payload = v.s
	case ValueDateTime:
		payload = v.t.Format(time.RFC3339)
	case ValueReference:
		payload = v.ref
	case ValueList:
		items := v.list
		if items == nil {
			items = []Value{}
		}
		payload = items
	}

	if out.Value, err = json.Marshal(payload); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var in valueJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	kind, err := parseValueKind(in.Type)
	if err != nil {
		return err
	}

	out := Value{kind: kind}
	switch kind {
	case ValueNull:
	case ValueBool:
		err = json.Unmarshal(in.Value, &out.b)
	case ValueInt:
		err = json.Unmarshal(in.Value, &out.i)
	case ValueFloat:
		err = json.Unmarshal(in.Value, &out.f)
	case ValueString:
		err = json.Unmarshal(in.Value, &out.s)
	case ValueDateTime:
		var s string
		if err = json.Unmarshal(in.Value, &s); err == nil {
			out.t, err = time.Parse(time.RFC3339, s)
		}
	case ValueReference:
		out.ref = &EntityReference{}
		err = json.Unmarshal(in.Value, out.ref)
	case ValueList:
		err = json.Unmarshal(in.Value, &out.list)
	}
	if err != nil {
		return fmt.Errorf("eventlog: decoding %s value: %w", in.Type, err)
	}

	*v = out
	return nil
}
