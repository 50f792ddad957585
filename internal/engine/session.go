// Package engine provides the session handle the pipelines run on. A
// Session owns storage resolution, parallel record-set reads, partitioned
// parquet writes, the time zone used for calendar fields and the run
// statistics. It is created once per process and passed explicitly to each
// pipeline function.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"songplay_etl/internal/metrics"
	"songplay_etl/internal/model"
	"songplay_etl/internal/parquetio"
	"songplay_etl/internal/source"
	"songplay_etl/internal/transform"
)

// Options configures a Session. Zero values select defaults.
type Options struct {
	Location          *time.Location
	Workers           int
	Compression       string
	DurationTolerance float64
	RunID             string
	// SpillDir, when set, stages encoded parts on local disk.
	SpillDir string
	// Job labels metrics.
	Job string
}

// Session is the explicit engine handle.
type Session struct {
	resolver Resolver
	opts     Options
	log      *zap.Logger
	stats    *statsRecorder
}

// New validates opts and starts a session.
func New(resolver Resolver, opts Options, log *zap.Logger) (*Session, error) {
	if resolver == nil {
		return nil, fmt.Errorf("engine: resolver is required")
	}
	if _, _, err := parquetio.ParseCompression(opts.Compression); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU() * 2
	}
	if opts.DurationTolerance <= 0 {
		opts.DurationTolerance = transform.DefaultDurationTolerance
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	if opts.Job == "" {
		opts.Job = "songplay_etl"
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Session{
		resolver: resolver,
		opts:     opts,
		log:      log.With(zap.String("run_id", opts.RunID)),
		stats:    newStatsRecorder(opts.RunID),
	}, nil
}

// Logger returns the session logger, tagged with the run id.
func (s *Session) Logger() *zap.Logger { return s.log }

// Location is the zone calendar fields are computed in.
func (s *Session) Location() *time.Location { return s.opts.Location }

// DurationTolerance is the song-play join bound in seconds.
func (s *Session) DurationTolerance() float64 { return s.opts.DurationTolerance }

// RunID names this run in part files and logs.
func (s *Session) RunID() string { return s.opts.RunID }

// Job is the metrics job label.
func (s *Session) Job() string { return s.opts.Job }

// Stats returns a snapshot of the run statistics so far.
func (s *Session) Stats() RunStats { return s.stats.snapshot() }

// ReadSongs loads the song metadata record set matching glob under root.
func (s *Session) ReadSongs(ctx context.Context, root, glob string) ([]model.SongRecord, error) {
	return read[model.SongRecord](ctx, s, "song_data", root, glob)
}

// ReadEvents loads the activity-log record set matching glob under root.
func (s *Session) ReadEvents(ctx context.Context, root, glob string) ([]model.LogEvent, error) {
	return read[model.LogEvent](ctx, s, "log_data", root, glob)
}

func read[T any](ctx context.Context, s *Session, dataset, root, glob string) ([]T, error) {
	start := time.Now()
	res, err := func() (source.Result[T], error) {
		st, prefix, err := s.resolver.Resolve(ctx, root)
		if err != nil {
			return source.Result[T]{}, err
		}
		return source.ReadJSONLines[T](ctx, st, prefix, glob, s.opts.Workers)
	}()
	metrics.RecordStep(s.opts.Job, "read_"+dataset, err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("engine: read %s from %s: %w", dataset, root, err)
	}

	s.stats.addInput(res.Files, res.Bytes, len(res.Records))
	metrics.RecordRows(s.opts.Job, dataset+"_read", len(res.Records))
	s.log.Info("loaded record set",
		zap.String("dataset", dataset),
		zap.String("root", root),
		zap.String("glob", glob),
		zap.Int("files", res.Files),
		zap.Int64("bytes", res.Bytes),
		zap.Int("rows", len(res.Records)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res.Records, nil
}

// Write replaces table t under root with rows. It blocks until every part
// and the commit marker are stored.
func Write[T any](ctx context.Context, s *Session, root string, t parquetio.Table[T], rows []T) error {
	start := time.Now()
	ts, err := func() (parquetio.TableStats, error) {
		st, prefix, err := s.resolver.Resolve(ctx, root)
		if err != nil {
			return parquetio.TableStats{}, err
		}
		w, err := parquetio.NewWriter(st, parquetio.Options{
			Compression: s.opts.Compression,
			RunID:       s.opts.RunID,
			Workers:     s.opts.Workers,
			SpillDir:    s.opts.SpillDir,
		}, s.log)
		if err != nil {
			return parquetio.TableStats{}, err
		}
		return parquetio.Write(ctx, w, prefix, t, rows)
	}()
	metrics.RecordStep(s.opts.Job, "write_"+t.Name, err, time.Since(start))
	if err != nil {
		return fmt.Errorf("engine: write table %s to %s: %w", t.Name, root, err)
	}

	s.stats.addTable(ts)
	metrics.RecordRows(s.opts.Job, t.Name+"_written", ts.Rows)
	s.log.Info("wrote table",
		zap.String("table", t.Name),
		zap.String("root", root),
		zap.Strings("partition_by", t.PartitionBy),
		zap.Int("rows", ts.Rows),
		zap.Int("files", ts.Files),
		zap.Int("partitions", ts.Partitions),
		zap.Int64("bytes", ts.Bytes),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// writeChecker is implemented by stores that can probe write access.
type writeChecker interface {
	CheckWrite(ctx context.Context, prefix string) error
}

// CheckOutput verifies that root is writable when its store supports a
// probe; local roots are not probed.
func (s *Session) CheckOutput(ctx context.Context, root string) error {
	st, prefix, err := s.resolver.Resolve(ctx, root)
	if err != nil {
		return err
	}
	wc, ok := st.(writeChecker)
	if !ok {
		return nil
	}
	if err := wc.CheckWrite(ctx, prefix); err != nil {
		return fmt.Errorf("engine: output %s: %w", root, err)
	}
	s.log.Info("output is writable", zap.String("root", root))
	return nil
}
