// Package pipeline wires the two ETL stages. Each stage reads its record
// sets through the session, derives its tables with package transform and
// writes them one after another; a failed step aborts the stage.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"songplay_etl/internal/engine"
	"songplay_etl/internal/metrics"
	"songplay_etl/internal/transform"
	"songplay_etl/internal/warehouse"
)

// Layout names the input globs and output table directories.
type Layout struct {
	SongGlob string
	LogGlob  string
	Tables   warehouse.Names
}

// DefaultLayout matches the published song and log datasets.
func DefaultLayout() Layout {
	return Layout{
		SongGlob: "song_data/A/A/A/*.json",
		LogGlob:  "log_data/*/*/*.json",
		Tables:   warehouse.DefaultNames(),
	}
}

// Pipeline runs the stages for one layout.
type Pipeline struct {
	layout Layout
}

// New returns a pipeline for layout.
func New(layout Layout) *Pipeline {
	return &Pipeline{layout: layout}
}

// ProcessSongData derives the songs and artists tables from the song
// metadata under input and writes them under output.
func (p *Pipeline) ProcessSongData(ctx context.Context, sess *engine.Session, input, output string) error {
	log := sess.Logger().With(zap.String("stage", "songs"))

	recs, err := sess.ReadSongs(ctx, input, p.layout.SongGlob)
	if err != nil {
		return err
	}

	songs := transform.Songs(recs)
	log.Info("derived songs", zap.Int("records", len(recs)), zap.Int("songs", len(songs)))
	if err := engine.Write(ctx, sess, output, warehouse.Songs(p.layout.Tables.Songs), songs); err != nil {
		return err
	}

	artists := transform.Artists(recs)
	log.Info("derived artists", zap.Int("artists", len(artists)))
	return engine.Write(ctx, sess, output, warehouse.Artists(p.layout.Tables.Artists), artists)
}

// ProcessLogData derives users, time and songplays from the activity log
// under input. The song catalog for the songplays join is read again from
// input rather than taken from ProcessSongData.
func (p *Pipeline) ProcessLogData(ctx context.Context, sess *engine.Session, input, output string) error {
	log := sess.Logger().With(zap.String("stage", "logs"))

	events, err := sess.ReadEvents(ctx, input, p.layout.LogGlob)
	if err != nil {
		return err
	}

	plays := transform.FilterPlays(events)
	log.Info("filtered song plays", zap.Int("events", len(events)), zap.Int("plays", len(plays)))

	users := transform.Users(plays)
	log.Info("derived users", zap.Int("users", len(users)))
	if err := engine.Write(ctx, sess, output, warehouse.Users(p.layout.Tables.Users), users); err != nil {
		return err
	}

	times := transform.TimeTable(plays, sess.Location())
	log.Info("derived time buckets", zap.Int("buckets", len(times)), zap.String("timezone", sess.Location().String()))
	if err := engine.Write(ctx, sess, output, warehouse.Time(p.layout.Tables.Time), times); err != nil {
		return err
	}

	catalog, err := sess.ReadSongs(ctx, input, p.layout.SongGlob)
	if err != nil {
		return err
	}

	start := time.Now()
	cat := transform.NewCatalog(catalog, sess.DurationTolerance())
	songplays := transform.SongPlays(plays, cat, sess.Location())
	metrics.RecordStep(sess.Job(), "join_songplays", nil, time.Since(start))
	log.Info("joined song plays",
		zap.Int("catalog_songs", cat.Len()),
		zap.Int("rows", len(songplays)),
		zap.Int("matched", transform.Matched(songplays)),
		zap.Float64("duration_tolerance", sess.DurationTolerance()),
	)
	return engine.Write(ctx, sess, output, warehouse.SongPlays(p.layout.Tables.SongPlays), songplays)
}
