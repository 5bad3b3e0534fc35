package slicetools

// Unique returns the elements of slice with later duplicates removed,
// keeping the first occurrence of every key in its original position.
func Unique[T any, K comparable](slice []T, key func(T) K) []T {
	if len(slice) == 0 {
		return slice
	}

	seen := make(map[K]bool, len(slice))
	out := make([]T, 0, len(slice))
	for _, item := range slice {
		k := key(item)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, item)
	}

	return out
}
