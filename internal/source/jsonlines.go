// Package source reads JSON-lines record sets from a storage.Store.
//
// A record set is every object under a root whose key matches a glob. Each
// object holds one or more concatenated JSON objects (one per line in the
// datasets this job reads). Files are decoded in parallel but results are
// always returned in key order, then record order, so downstream
// deduplication is deterministic.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"songplay_etl/internal/storage"
)

var (
	// ErrNoInput is returned when the glob matches no objects.
	ErrNoInput = errors.New("source: no input files matched")
	// ErrMalformedRecord wraps any decode or type error.
	ErrMalformedRecord = errors.New("source: malformed record")
)

// Result is a decoded record set.
type Result[T any] struct {
	Records []T
	Files   int
	Bytes   int64
}

// ReadJSONLines decodes every object under prefix matching pattern into T.
func ReadJSONLines[T any](ctx context.Context, s storage.Store, prefix, pattern string, workers int) (Result[T], error) {
	objs, err := storage.Glob(ctx, s, prefix, pattern)
	if err != nil {
		return Result[T]{}, err
	}
	if len(objs) == 0 {
		return Result[T]{}, fmt.Errorf("%w: %s under %q", ErrNoInput, pattern, prefix)
	}

	perFile := make([][]T, len(objs))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, obj := range objs {
		i, obj := i, obj
		g.Go(func() error {
			recs, err := decodeObject[T](gctx, s, obj.Key)
			if err != nil {
				return err
			}
			perFile[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result[T]{}, err
	}

	res := Result[T]{Files: len(objs)}
	total := 0
	for i := range perFile {
		total += len(perFile[i])
		res.Bytes += objs[i].Size
	}
	res.Records = make([]T, 0, total)
	for _, recs := range perFile {
		res.Records = append(res.Records, recs...)
	}
	return res, nil
}

func decodeObject[T any](ctx context.Context, s storage.Store, key string) ([]T, error) {
	rc, err := s.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return Decode[T](rc, key)
}

// Decode reads concatenated JSON objects from r. name is used in errors.
func Decode[T any](r io.Reader, name string) ([]T, error) {
	dec := json.NewDecoder(r)

	var out []T
	for n := 1; ; n++ {
		var rec T
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return out, nil
			}
			return nil, fmt.Errorf("%w: %s record %d: %v", ErrMalformedRecord, name, n, err)
		}
		out = append(out, rec)
	}
}
