package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Glob lists the objects under prefix whose key, relative to prefix, matches
// the doublestar pattern. Only the static leading directories of the pattern
// are listed, so "song_data/A/A/A/*.json" never walks the whole dataset.
func Glob(ctx context.Context, s Store, prefix, pattern string) ([]ObjectInfo, error) {
	pattern = strings.TrimPrefix(pattern, "/")
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("storage: bad glob pattern %q", pattern)
	}

	base, _ := doublestar.SplitPattern(pattern)
	if base == "." {
		base = ""
	}

	root := DirPrefix(prefix)
	objs, err := s.List(ctx, root+DirPrefix(base))
	if err != nil {
		return nil, err
	}

	var out []ObjectInfo
	for _, o := range objs {
		rel := strings.TrimPrefix(o.Key, root)
		ok, err := doublestar.Match(pattern, rel)
		if err != nil {
			return nil, fmt.Errorf("storage: match %q: %w", pattern, err)
		}
		if ok {
			out = append(out, o)
		}
	}
	return out, nil
}
