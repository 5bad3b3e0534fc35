package eventlog

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_EqualDifferentKinds(t *testing.T) {
	values := []Value{
		Null(),
		Bool(false),
		Int(0),
		Float(0),
		String(""),
		DateTime(time.Unix(0, 0)),
		Ref(MustReference(EntityPost, IntKey(1), "")),
		List(),
	}
	for i, a := range values {
		for j, b := range values {
			if i == j {
				assert.True(t, Equals(a, b), "%s should equal itself", a.Kind())
				continue
			}
			assert.False(t, Equals(a, b), "%s should not equal %s", a.Kind(), b.Kind())
		}
	}
}

func TestValue_DateTimeSecondPrecision(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	assert.True(t, Equals(DateTime(base), DateTime(base.Add(400*time.Millisecond))))
	assert.False(t, Equals(DateTime(base), DateTime(base.Add(time.Second))))
	assert.True(t, Equals(DateTime(base), DateTime(base.In(time.FixedZone("WIB", 7*3600)))))
}

func TestValue_ReferenceEqualityIgnoresName(t *testing.T) {
	a := Ref(MustReference(EntityTerm, IntKey(5), "News"))
	b := Ref(MustReference(EntityTerm, IntKey(5), "Renamed"))
	c := Ref(MustReference(EntityPost, IntKey(5), "News"))

	assert.True(t, Equals(a, b))
	assert.False(t, Equals(a, c))
	assert.True(t, Ref(nil).IsNull())
}

func TestValue_ListEquality(t *testing.T) {
	assert.True(t, Equals(List(Int(1), String("a")), List(Int(1), String("a"))))
	assert.False(t, Equals(List(Int(1), String("a")), List(String("a"), Int(1))))
	assert.False(t, Equals(List(Int(1)), List(Int(1), Int(2))))
}

func TestValue_String(t *testing.T) {
	loc := time.Date(2024, 3, 1, 14, 5, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{"null", Null(), ""},
		{"true", Bool(true), "Yes"},
		{"false", Bool(false), "No"},
		{"int", Int(-12), "-12"},
		{"float", Float(1.5), "1.5"},
		{"string", String("draft"), "draft"},
		{"list", List(String("a"), Int(2)), "a, 2"},
		{"ref named", Ref(MustReference(EntityUser, IntKey(3), "admin")), "admin"},
		{"ref fallback", Ref(MustReference(EntityPost, IntKey(12), "")), "Post 12"},
		{"datetime", DateTime(loc), "2024-03-01 14:05:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.value.String())
		})
	}
}

func TestValue_Accessors(t *testing.T) {
	n, ok := Int(7).AsInt()
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)

	_, ok = Int(7).AsString()
	assert.False(t, ok)

	items, ok := List(Int(1)).AsList()
	require.True(t, ok)
	items[0] = Int(2)
	again, _ := List(Int(1)).AsList()
	assert.Equal(t, int64(1), again[0].Raw())
}

func TestValue_JSON(t *testing.T) {
	when := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	original := List(
		Null(),
		Bool(true),
		Int(42),
		Float(2.25),
		String("x"),
		DateTime(when),
		Ref(MustReference(EntityPlugin, StringKey("akismet/akismet.php"), "Akismet")),
	)

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded Value
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, Equals(original, decoded))

	ref, ok := mustItem(t, decoded, 6).AsReference()
	require.True(t, ok)
	name, _ := ref.CachedName()
	assert.Equal(t, "Akismet", name)
	assert.False(t, ref.Key().IsNumeric())

	assert.Error(t, json.Unmarshal([]byte(`{"type":"blob"}`), &decoded))
}

func mustItem(t *testing.T, v Value, i int) Value {
	t.Helper()
	items, ok := v.AsList()
	require.True(t, ok)
	require.Greater(t, len(items), i)
	return items[i]
}
