// Package storage defines the object-store abstraction the ETL session reads
// from and writes to. Keys are always slash-separated and relative to the
// store's root; directory semantics are emulated by key prefixes.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("storage: object not found")

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// Store is implemented by the local filesystem and S3 backends.
type Store interface {
	// List returns every object whose key starts with prefix, sorted by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Open returns a reader over the object body.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Put writes body under key, replacing any existing object.
	Put(ctx context.Context, key string, body []byte, meta map[string]string) error
	// Stat returns ErrNotFound when key does not exist.
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// DeletePrefix removes every object under the directory prefix and
	// reports how many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Join joins key segments, ignoring empty ones.
func Join(parts ...string) string {
	var kept []string
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return path.Join(kept...)
}

// DirPrefix returns prefix with exactly one trailing slash, or "" for the root.
func DirPrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
