package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLNullString(t *testing.T) {
	assert.False(t, NewSQLNullString("").Valid)
	assert.Equal(t, "x", NewSQLNullString("x").String)
}

func TestLoadLocation(t *testing.T) {
	loc, err := LoadLocation("")
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)

	loc, err = LoadLocation("UTC+8")
	require.NoError(t, err)
	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, 8*3600, offset)

	loc, err = LoadLocation("UTC-5:30")
	require.NoError(t, err)
	_, offset = time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, -(5*3600 + 30*60), offset)

	_, err = LoadLocation("UTC+x")
	assert.Error(t, err)

	_, err = LoadLocation("Not/AZone")
	assert.Error(t, err)
}
