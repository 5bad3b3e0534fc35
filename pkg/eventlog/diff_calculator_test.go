package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffCalculator_CalculateDiff(t *testing.T) {
	dc := NewDiffCalculator(testNormalizer(), []string{"post_modified"}, nil)

	before := map[string]any{
		"post_title":    "Hello",
		"post_status":   "draft",
		"menu_order":    "0",
		"post_modified": "2024-01-01 00:00:00",
		"ping_status":   "open",
	}
	after := map[string]any{
		"post_title":    "Hello world",
		"post_status":   "draft",
		"menu_order":    0,
		"post_modified": "2024-02-01 00:00:00",
		"post_excerpt":  "Short",
	}

	diffs := dc.CalculateDiff("wp_posts", before, after)
	require.Len(t, diffs, 3)

	assert.Equal(t, "ping_status", diffs[0].Key)
	assert.Equal(t, "open", diffs[0].OldValue.String())
	assert.True(t, diffs[0].NewValue.IsNull())

	assert.Equal(t, "post_excerpt", diffs[1].Key)
	assert.True(t, diffs[1].OldValue.IsNull())

	assert.Equal(t, "post_title", diffs[2].Key)
	assert.Equal(t, "wp_posts", diffs[2].Source)
	assert.Equal(t, "Hello world", diffs[2].NewValue.String())
}

func TestDiffCalculator_IncludedKeys(t *testing.T) {
	dc := NewDiffCalculator(testNormalizer(), []string{"Post_Password"}, []string{"post_title", "post_password"})

	assert.False(t, dc.IsKeyExcluded("POST_TITLE"))
	assert.True(t, dc.IsKeyExcluded("post_password"))
	assert.True(t, dc.IsKeyExcluded("post_content"))

	diffs := dc.CalculateDiff("", map[string]any{"post_title": "a", "post_content": "x"}, map[string]any{"post_title": "b", "post_content": "y"})
	require.Len(t, diffs, 1)
	assert.Equal(t, "post_title", diffs[0].Key)
}

func TestDiffCalculator_NilSnapshots(t *testing.T) {
	dc := NewDiffCalculator(testNormalizer(), nil, nil)

	assert.Empty(t, dc.CalculateDiff("", nil, nil))

	created := dc.CalculateDiff("", nil, map[string]any{"a": 1, "b": nil})
	require.Len(t, created, 1)
	assert.Equal(t, "a", created[0].Key)
}

func TestCalculateDiffStats(t *testing.T) {
	props := []Property{
		ChangeProperty("a", "", Null(), Int(1)),
		ChangeProperty("b", "", Int(1), Null()),
		ChangeProperty("c", "", Int(1), Int(2)),
		SnapshotProperty("d", "", Int(4)),
	}
	stats := CalculateDiffStats(props)
	assert.Equal(t, DiffStats{TotalFields: 4, AddedFields: 1, RemovedFields: 1, ChangedFields: 1, Snapshots: 1}, stats)
	assert.True(t, stats.HasSignificantChanges())

	assert.False(t, CalculateDiffStats(props[3:]).HasSignificantChanges())
}
