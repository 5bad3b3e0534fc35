package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnserializePHP_Scalars(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"N;", nil},
		{"b:1;", true},
		{"b:0;", false},
		{"i:-42;", int64(-42)},
		{"d:0.5;", 0.5},
		{`s:5:"hello";`, "hello"},
		{`s:0:"";`, ""},
		{`s:7:"a;b:"c}";`, `a;b:"c}`},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := unserializePHP(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnserializePHP_ByteLength(t *testing.T) {
	got, err := unserializePHP(`s:5:"café";`)
	require.NoError(t, err)
	assert.Equal(t, "café", got)
}

func TestUnserializePHP_Arrays(t *testing.T) {
	got, err := unserializePHP(`a:2:{i:0;s:3:"foo";i:1;i:7;}`)
	require.NoError(t, err)
	arr, ok := got.(phpArray)
	require.True(t, ok)
	assert.True(t, arr.sequential())
	assert.Equal(t, phpArray{{int64(0), "foo"}, {int64(1), int64(7)}}, arr)

	got, err = unserializePHP(`a:2:{s:6:"editor";b:1;s:6:"author";a:1:{i:0;N;}}`)
	require.NoError(t, err)
	arr = got.(phpArray)
	assert.False(t, arr.sequential())
	assert.Equal(t, "editor", arr[0].key)
	assert.Equal(t, phpArray{{int64(0), nil}}, arr[1].value)
}

func TestUnserializePHP_Object(t *testing.T) {
	got, err := unserializePHP(`O:8:"stdClass":1:{s:4:"name";s:3:"Bob";}`)
	require.NoError(t, err)
	assert.Equal(t, phpArray{{"name", "Bob"}}, got)
}

func TestUnserializePHP_Malformed(t *testing.T) {
	for _, in := range []string{
		"",
		"i:12",
		"b:2;",
		"i:x;",
		`s:10:"short";`,
		`s:3:"abc"`,
		`s:4:"café";`,
		`a:1:{i:0;}`,
		`a:1:{d:1.5;i:0;}`,
		`a:1:{i:0;i:1;`,
		"i:1;i:2;",
		"x:1;",
		`s:9223372036854775807:"x";`,
		`a:1:{s:9223372036854775807:"x";i:0;}`,
		`a:999999999999999:{}`,
		`a:9223372036854775807:{i:0;i:1;}`,
	} {
		_, err := unserializePHP(in)
		assert.ErrorIs(t, err, errPHPSyntax, in)
	}
}

func TestNormalizer_MalformedSerializedStaysString(t *testing.T) {
	n := testNormalizer()
	for _, in := range []string{
		`s:9223372036854775807:"x";`,
		`a:999999999999999:{}`,
	} {
		var got Value
		require.NotPanics(t, func() { got = n.Normalize(in, "post_title", "wp_posts") }, in)
		assert.True(t, Equals(String(in), got), in)
	}
}

func TestLooksPHPSerialized(t *testing.T) {
	assert.True(t, looksPHPSerialized("N;"))
	assert.True(t, looksPHPSerialized(`a:0:{}`))
	assert.True(t, looksPHPSerialized(`s:1:"x";`))
	assert.False(t, looksPHPSerialized("hello"))
	assert.False(t, looksPHPSerialized("a:b"))
}
