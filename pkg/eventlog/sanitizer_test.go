package eventlog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizer_Mask(t *testing.T) {
	s := NewSanitizer([]string{"User_Pass"}, "", nil)

	assert.True(t, s.IsSensitive("user_pass"))
	assert.False(t, s.IsSensitive("user_login"))

	tests := []struct {
		in   Value
		want string
	}{
		{String("secretpassword"), "s***********rd"},
		{String("abcde"), "a***e"},
		{String("abcd"), "****"},
		{String(""), ""},
		{Int(1234), "****"},
		{Bool(true), "****"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.SanitizeValue(tt.in).String())
	}
	assert.True(t, s.SanitizeValue(Null()).IsNull())
}

func TestSanitizer_MaskIsRuneSafe(t *testing.T) {
	s := NewSanitizer(nil, RedactionMask, nil)
	assert.Equal(t, "p********r", s.SanitizeValue(String("pässwörter")).String())
}

func TestSanitizer_Hash(t *testing.T) {
	s := NewSanitizer([]string{"user_pass"}, RedactionHash, []byte("site-secret"))

	a := s.SanitizeValue(String("hunter2")).String()
	b := s.SanitizeValue(String("hunter2")).String()
	c := s.SanitizeValue(String("hunter3")).String()

	assert.True(t, strings.HasPrefix(a, "blake2b:"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	tooLong := NewSanitizer(nil, RedactionHash, []byte(strings.Repeat("k", 65)))
	assert.Equal(t, "h*****2", tooLong.SanitizeValue(String("hunter2")).String())
}

func TestSanitizer_ChangeSet(t *testing.T) {
	s := NewSanitizer([]string{"user_pass"}, RedactionMask, nil)
	set := NewPropertyChangeSet(
		ChangeProperty("user_pass", "wp_users", String("oldsecret1"), String("newsecret2")),
		ChangeProperty("user_email", "wp_users", String("a@example.com"), String("b@example.com")),
		SnapshotProperty("user_url", "wp_users", String("https://example.com")),
	)

	out := s.SanitizeChangeSet(set)
	pass, ok := out.Get("user_pass")
	require.True(t, ok)
	assert.Equal(t, "o********1", pass.OldValue.String())
	assert.Equal(t, "n********2", pass.NewValue.String())
	assert.Equal(t, "wp_users", pass.Source)

	email, _ := out.Get("user_email")
	assert.Equal(t, "b@example.com", email.NewValue.String())
	assert.Equal(t, []string{"user_pass", "user_email", "user_url"}, out.Keys())

	original, _ := set.Get("user_pass")
	assert.Equal(t, "oldsecret1", original.OldValue.String())

	assert.Nil(t, s.SanitizeChangeSet(nil))
}
