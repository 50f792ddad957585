// Package transform holds the record-shaping rules of the data lake: the
// projections, deduplication policies and the fuzzy song-play join. It is
// pure: no storage, no logging.
package transform

// Policy selects which of several rows sharing a key survives.
type Policy int

const (
	// KeepFirst keeps the earliest row in input order.
	KeepFirst Policy = iota
	// KeepLast keeps the latest row in input order.
	KeepLast
)

// Dedup collapses rows sharing a key according to policy. The survivors are
// returned in order of each key's first appearance.
func Dedup[T any, K comparable](rows []T, key func(T) K, policy Policy) []T {
	return DedupFunc(rows, key, func(_, _ T) bool { return policy == KeepLast })
}

// DedupFunc collapses rows sharing a key; a later candidate replaces the
// current survivor when replace(current, candidate) is true.
func DedupFunc[T any, K comparable](rows []T, key func(T) K, replace func(cur, cand T) bool) []T {
	if len(rows) == 0 {
		return nil
	}

	pos := make(map[K]int, len(rows))
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		k := key(r)
		if i, ok := pos[k]; ok {
			if replace(out[i], r) {
				out[i] = r
			}
			continue
		}
		pos[k] = len(out)
		out = append(out, r)
	}
	return out
}
