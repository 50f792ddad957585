// Package local implements storage.Store on a filesystem directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"songplay_etl/internal/storage"
)

// Store roots every key at a directory.
type Store struct {
	root string
	log  *zap.Logger
}

// New returns a store rooted at dir. The directory does not need to exist
// until something is written.
func New(dir string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{root: filepath.Clean(dir), log: log.With(zap.String("store", "local"), zap.String("root", dir))}
}

// Root returns the directory backing the store.
func (s *Store) Root() string { return s.root }

func (s *Store) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(key, "/")))
}

func (s *Store) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	// Walk from the deepest directory fully named by the prefix.
	dir := ""
	if i := strings.LastIndex(prefix, "/"); i >= 0 {
		dir = prefix[:i]
	}

	var out []storage.ObjectInfo
	err := filepath.WalkDir(s.path(dir), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, storage.ObjectInfo{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local: list %q: %w", prefix, err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *Store) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("local: open %q: %w", key, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("local: open %q: %w", key, err)
	}
	return f, nil
}

// Put writes to a temp file in the target directory and renames it into
// place, so readers never observe a partial object. meta is ignored.
func (s *Store) Put(_ context.Context, key string, body []byte, _ map[string]string) error {
	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("local: mkdir for %q: %w", key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return fmt.Errorf("local: create temp for %q: %w", key, err)
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("local: write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("local: close %q: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("local: rename %q: %w", key, err)
	}
	return nil
}

func (s *Store) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	info, err := os.Stat(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return storage.ObjectInfo{}, fmt.Errorf("local: stat %q: %w", key, storage.ErrNotFound)
		}
		return storage.ObjectInfo{}, fmt.Errorf("local: stat %q: %w", key, err)
	}
	if info.IsDir() {
		return storage.ObjectInfo{}, fmt.Errorf("local: stat %q: is a directory: %w", key, storage.ErrNotFound)
	}
	return storage.ObjectInfo{Key: key, Size: info.Size()}, nil
}

// DeletePrefix removes the directory named by prefix. Deleting the store
// root itself is refused.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	dir := storage.DirPrefix(prefix)
	if dir == "" {
		return 0, fmt.Errorf("local: refusing to delete store root %q", s.root)
	}

	objs, err := s.List(ctx, dir)
	if err != nil {
		return 0, err
	}
	if err := os.RemoveAll(s.path(dir)); err != nil {
		return 0, fmt.Errorf("local: delete %q: %w", prefix, err)
	}
	s.log.Debug("deleted prefix", zap.String("prefix", dir), zap.Int("objects", len(objs)))
	return len(objs), nil
}

var _ storage.Store = (*Store)(nil)
