package eventlog

import (
	"sort"
	"strings"
)

// DiffCalculator computes property changes between before and after
// snapshots of one entity.
type DiffCalculator struct {
	normalizer   *Normalizer
	excludedKeys map[string]bool
	includedKeys map[string]bool
}

// NewDiffCalculator creates a calculator. Excluded keys are never reported;
// when includedKeys is non-empty only those keys are reported. Matching is
// case-insensitive.
func NewDiffCalculator(normalizer *Normalizer, excludedKeys, includedKeys []string) *DiffCalculator {
	return &DiffCalculator{
		normalizer:   normalizer,
		excludedKeys: lowerSet(excludedKeys),
		includedKeys: lowerSet(includedKeys),
	}
}

func lowerSet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[strings.ToLower(k)] = true
	}
	return set
}

// IsKeyExcluded reports whether changes to key are suppressed.
func (dc *DiffCalculator) IsKeyExcluded(key string) bool {
	lower := strings.ToLower(key)
	if dc.excludedKeys[lower] {
		return true
	}
	return len(dc.includedKeys) > 0 && !dc.includedKeys[lower]
}

// CalculateDiff walks the union of keys in sorted order and returns one
// change property per key whose normalized values differ. A key missing on
// one side is compared as null.
func (dc *DiffCalculator) CalculateDiff(source string, before, after map[string]any) []Property {
	keys := make([]string, 0, len(before)+len(after))
	seen := make(map[string]bool, len(before)+len(after))
	for _, m := range []map[string]any{before, after} {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}
	sort.Strings(keys)

	var diffs []Property
	for _, key := range keys {
		if dc.IsKeyExcluded(key) {
			continue
		}

		oldValue := dc.normalizer.Normalize(before[key], key, source)
		newValue := dc.normalizer.Normalize(after[key], key, source)
		if Equals(oldValue, newValue) {
			continue
		}
		diffs = append(diffs, ChangeProperty(key, source, oldValue, newValue))
	}

	return diffs
}

// DiffStats summarizes a list of properties.
type DiffStats struct {
	TotalFields   int
	ChangedFields int
	AddedFields   int
	RemovedFields int
	Snapshots     int
}

// CalculateDiffStats counts additions (null to value), removals (value to
// null), changes and snapshots.
func CalculateDiffStats(props []Property) DiffStats {
	stats := DiffStats{TotalFields: len(props)}

	for _, p := range props {
		switch {
		case p.IsSnapshot():
			stats.Snapshots++
		case p.OldValue.IsNull() && !p.NewValue.IsNull():
			stats.AddedFields++
		case !p.OldValue.IsNull() && p.NewValue.IsNull():
			stats.RemovedFields++
		default:
			stats.ChangedFields++
		}
	}

	return stats
}

// HasSignificantChanges returns true if anything other than snapshots is present.
func (ds DiffStats) HasSignificantChanges() bool {
	return ds.AddedFields > 0 || ds.ChangedFields > 0 || ds.RemovedFields > 0
}
