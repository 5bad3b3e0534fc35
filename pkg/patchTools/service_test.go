package patchtools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApply(t *testing.T) {
	before := map[string]any{"post_status": "draft", "post_title": "Hello"}

	after := Apply(before, []Data{
		{Field: "post_status", Value: "publish"},
		{Field: "", Value: "ignored"},
	})

	assert.Equal(t, "publish", after["post_status"])
	assert.Equal(t, "Hello", after["post_title"])
	assert.Equal(t, "draft", before["post_status"])
	assert.Len(t, after, 2)
}

func TestFromRequest(t *testing.T) {
	req := map[string]any{
		"id": "12",
		"data": []any{
			map[string]any{"field": "post_status", "value": "publish"},
			map[string]any{"field": "post_title"},
			"garbage",
		},
	}

	assert.Equal(t, []Data{{Field: "post_status", Value: "publish"}}, FromRequest(req))
	assert.Nil(t, FromRequest(map[string]any{}))
}
