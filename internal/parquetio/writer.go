// Package parquetio writes typed rows as Hive-partitioned parquet
// directories through a storage.Store.
//
// Every partition becomes one part file, encoded in memory, uploaded and
// then verified by size. A _SUCCESS marker is written once all parts of a
// table are in place. Writing a table always replaces its directory.
package parquetio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/xitongsys/parquet-go-source/buffer"
	plocal "github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"songplay_etl/internal/storage"
)

const (
	// SuccessMarker is written in a table directory after all its parts.
	SuccessMarker = "_SUCCESS"
	// DefaultPartition names the directory for an empty partition value.
	DefaultPartition = "__HIVE_DEFAULT_PARTITION__"

	writerParallelism = 4
)

// ErrVerifyFailed is returned when an uploaded part does not match what was
// encoded.
var ErrVerifyFailed = errors.New("parquetio: upload verification failed")

// Table describes how rows of T are laid out on storage.
type Table[T any] struct {
	// Name is the table directory under the output root.
	Name string
	// PartitionBy lists the partition column names, outermost first.
	PartitionBy []string
	// Partition returns the partition values of a row, aligned with PartitionBy.
	Partition func(T) []string
	// Schema is a pointer to a zero value of the parquet row struct.
	Schema any
	// Row converts a row to its parquet row struct (without partition columns).
	Row func(T) any
}

// Options configures a Writer.
type Options struct {
	Compression string
	RunID       string
	Workers     int
	// SpillDir, when set, encodes each part to a temp file there instead
	// of in memory.
	SpillDir string
}

// Writer encodes and uploads tables.
type Writer struct {
	store    storage.Store
	codec    parquet.CompressionCodec
	ext      string
	runID    string
	workers  int
	spillDir string
	log      *zap.Logger
}

// TableStats summarizes one table write.
type TableStats struct {
	Table      string `json:"table"`
	Rows       int    `json:"rows"`
	Files      int    `json:"files"`
	Bytes      int64  `json:"bytes"`
	Partitions int    `json:"partitions"`
}

// NewWriter validates the compression codec name and returns a writer.
func NewWriter(store storage.Store, opts Options, log *zap.Logger) (*Writer, error) {
	codec, ext, err := ParseCompression(opts.Compression)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	runID := opts.RunID
	if runID == "" {
		runID = "0"
	}
	return &Writer{
		store:    store,
		codec:    codec,
		ext:      ext,
		runID:    runID,
		workers:  opts.Workers,
		spillDir: opts.SpillDir,
		log:      log,
	}, nil
}

// ParseCompression maps a codec name to the parquet codec and the file
// extension infix used in part names.
func ParseCompression(name string) (parquet.CompressionCodec, string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "snappy":
		return parquet.CompressionCodec_SNAPPY, "snappy.parquet", nil
	case "gzip":
		return parquet.CompressionCodec_GZIP, "gz.parquet", nil
	case "zstd":
		return parquet.CompressionCodec_ZSTD, "zstd.parquet", nil
	case "none", "uncompressed":
		return parquet.CompressionCodec_UNCOMPRESSED, "parquet", nil
	default:
		return 0, "", fmt.Errorf("parquetio: unsupported compression %q", name)
	}
}

type partition[T any] struct {
	dir  string
	rows []T
}

// Write replaces the table directory under prefix with rows.
func Write[T any](ctx context.Context, w *Writer, prefix string, t Table[T], rows []T) (TableStats, error) {
	stats := TableStats{Table: t.Name, Rows: len(rows)}
	tableDir := storage.Join(prefix, t.Name)

	parts, err := groupPartitions(t, rows)
	if err != nil {
		return stats, err
	}

	removed, err := w.store.DeletePrefix(ctx, tableDir)
	if err != nil {
		return stats, fmt.Errorf("parquetio: clear %s: %w", tableDir, err)
	}
	if removed > 0 {
		w.log.Info("overwriting table", zap.String("table", t.Name), zap.Int("removed_objects", removed))
	}

	sizes := make([]int64, len(parts))
	g, gctx := errgroup.WithContext(ctx)
	if w.workers > 0 {
		g.SetLimit(w.workers)
	}
	for i, p := range parts {
		i, p := i, p
		g.Go(func() error {
			key := storage.Join(tableDir, p.dir, fmt.Sprintf("part-%05d-%s.%s", i, w.runID, w.ext))
			n, err := writePart(gctx, w, key, t, p.rows)
			if err != nil {
				return err
			}
			sizes[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	for _, n := range sizes {
		stats.Bytes += n
	}
	stats.Files = len(parts)
	if len(t.PartitionBy) > 0 {
		stats.Partitions = len(parts)
	}

	if err := w.store.Put(ctx, storage.Join(tableDir, SuccessMarker), nil, nil); err != nil {
		return stats, fmt.Errorf("parquetio: commit %s: %w", tableDir, err)
	}
	return stats, nil
}

func groupPartitions[T any](t Table[T], rows []T) ([]partition[T], error) {
	if len(t.PartitionBy) == 0 {
		// An unpartitioned table always gets one part so its schema is readable.
		return []partition[T]{{rows: rows}}, nil
	}

	byDir := make(map[string]int)
	var parts []partition[T]
	for _, r := range rows {
		vals := t.Partition(r)
		if len(vals) != len(t.PartitionBy) {
			return nil, fmt.Errorf("parquetio: table %s: %d partition values for %d columns", t.Name, len(vals), len(t.PartitionBy))
		}
		dir := PartitionDir(t.PartitionBy, vals)
		i, ok := byDir[dir]
		if !ok {
			i = len(parts)
			byDir[dir] = i
			parts = append(parts, partition[T]{dir: dir})
		}
		parts[i].rows = append(parts[i].rows, r)
	}

	sort.SliceStable(parts, func(i, j int) bool { return parts[i].dir < parts[j].dir })
	return parts, nil
}

func writePart[T any](ctx context.Context, w *Writer, key string, t Table[T], rows []T) (int64, error) {
	body, err := encodePart(w, key, t, rows)
	if err != nil {
		return 0, err
	}

	meta := map[string]string{
		"record-count": strconv.Itoa(len(rows)),
		"table":        t.Name,
	}
	if err := w.store.Put(ctx, key, body, meta); err != nil {
		return 0, err
	}

	info, err := w.store.Stat(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrVerifyFailed, key, err)
	}
	if info.Size != int64(len(body)) {
		return 0, fmt.Errorf("%w: %s: stored %d bytes, encoded %d", ErrVerifyFailed, key, info.Size, len(body))
	}

	w.log.Debug("wrote part", zap.String("key", key), zap.Int("rows", len(rows)), zap.Int("bytes", len(body)))
	return info.Size, nil
}

func encodePart[T any](w *Writer, key string, t Table[T], rows []T) ([]byte, error) {
	var (
		pf    source.ParquetFile
		mem   *buffer.BufferFile
		spill string
	)
	if w.spillDir == "" {
		mem = buffer.NewBufferFile()
		pf = mem
	} else {
		f, err := os.CreateTemp(w.spillDir, "part-*.parquet")
		if err != nil {
			return nil, fmt.Errorf("parquetio: spill file for %s: %w", key, err)
		}
		spill = f.Name()
		f.Close()
		defer os.Remove(spill)

		if pf, err = plocal.NewLocalFileWriter(spill); err != nil {
			return nil, fmt.Errorf("parquetio: open spill file for %s: %w", key, err)
		}
		defer pf.Close()
	}

	pw, err := writer.NewParquetWriter(pf, t.Schema, writerParallelism)
	if err != nil {
		return nil, fmt.Errorf("parquetio: new writer for %s: %w", key, err)
	}
	pw.CompressionType = w.codec

	for i, r := range rows {
		if err := pw.Write(t.Row(r)); err != nil {
			return nil, fmt.Errorf("parquetio: %s row %d: %w", key, i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("parquetio: finalize %s: %w", key, err)
	}

	if mem != nil {
		return mem.Bytes(), nil
	}
	if err := pf.Close(); err != nil {
		return nil, fmt.Errorf("parquetio: close spill file for %s: %w", key, err)
	}
	body, err := os.ReadFile(spill)
	if err != nil {
		return nil, fmt.Errorf("parquetio: read spill file for %s: %w", key, err)
	}
	return body, nil
}
