package stringtools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStringToBoolPtr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want *bool
	}{
		{"1", ptr(true)},
		{"yes", ptr(true)},
		{"ON", ptr(true)},
		{"0", ptr(false)},
		{"", ptr(false)},
		{"off", ptr(false)},
		{"maybe", nil},
		{"2", nil},
	}
	for _, tt := range tests {
		got := ParseStringToBoolPtr(tt.in)
		if tt.want == nil {
			assert.Nil(t, got, tt.in)
			continue
		}
		require.NotNil(t, got, tt.in)
		assert.Equal(t, *tt.want, *got, tt.in)
	}
}

func TestIsInteger(t *testing.T) {
	t.Parallel()

	assert.True(t, IsInteger("0"))
	assert.True(t, IsInteger("42"))
	assert.True(t, IsInteger("-7"))
	assert.False(t, IsInteger("007"))
	assert.False(t, IsInteger("-0"))
	assert.False(t, IsInteger(""))
	assert.False(t, IsInteger("12a"))
	assert.False(t, IsInteger("1.5"))
}

func TestIsDecimal(t *testing.T) {
	t.Parallel()

	assert.True(t, IsDecimal("1.50"))
	assert.True(t, IsDecimal("-0.25"))
	assert.False(t, IsDecimal("1."))
	assert.False(t, IsDecimal("15"))
}

func TestEllipsis(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Hello", Ellipsis("Hello", 10))
	assert.Equal(t, "Hell…", Ellipsis("Hello world", 5))
}

func ptr[T any](v T) *T { return &v }
