package encryptor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedHash(t *testing.T) {
	key := []byte("site-secret")

	a, err := KeyedHash("hunter2", key)
	require.NoError(t, err)
	b, err := KeyedHash("hunter2", key)
	require.NoError(t, err)
	c, err := KeyedHash("hunter2", []byte("other-secret"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, "blake2b:"))
	assert.Len(t, a, len("blake2b:")+64)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestKeyedHash_KeyTooLong(t *testing.T) {
	_, err := KeyedHash("x", make([]byte, 65))
	assert.Error(t, err)
}
