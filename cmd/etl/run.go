package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"songplay_etl/internal/config"
	"songplay_etl/internal/engine"
	"songplay_etl/internal/logging"
	"songplay_etl/internal/metrics"
	"songplay_etl/internal/metrics/prompush"
	"songplay_etl/internal/pipeline"
)

func run(ctx context.Context, cmd *cobra.Command, cfgPath string, validateOnly bool) (err error) {
	cfg, err := config.Load(cfgPath, cmd.Flags())
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	input, output := cfg.Roots()
	if validateOnly {
		log.Info("configuration is valid", zap.String("mode", cfg.Mode), zap.String("input", input), zap.String("output", output))
		return nil
	}

	creds, err := config.LoadCredentials(cfg.Credentials, cfg.UsesS3())
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	setupMetrics(cfg.Metrics, log)
	defer func() {
		if ferr := metrics.Flush(); ferr != nil {
			log.Warn("metrics flush failed", zap.Error(ferr))
		}
	}()

	resolver := engine.NewStores(creds, engine.S3Options{
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		PathStyle: cfg.S3.PathStyle,
	}, log)
	sess, err := engine.New(resolver, engine.Options{
		Location:          loc,
		Workers:           cfg.Workers,
		Compression:       cfg.Compression,
		DurationTolerance: cfg.DurationTolerance,
		SpillDir:          cfg.SpillDir,
		Job:               cfg.Metrics.Job,
	}, log)
	if err != nil {
		return err
	}

	log = sess.Logger()
	log.Info("starting ETL",
		zap.String("mode", cfg.Mode),
		zap.String("input", input),
		zap.String("output", output),
		zap.Strings("stages", cfg.Stages),
		zap.Int("workers", cfg.Workers),
		zap.Stringer("credentials", creds),
	)

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	defer func() {
		stats := sess.Stats()
		if cfg.StatsPath != "" {
			if werr := engine.WriteStats(cfg.StatsPath, stats); werr != nil {
				log.Warn("failed to write run stats", zap.Error(werr))
			}
		}
		if err != nil {
			log.Error("ETL failed", zap.Error(err), zap.String("elapsed", stats.TotalExecutionTime))
			return
		}
		log.Info("ETL completed",
			zap.String("elapsed", stats.TotalExecutionTime),
			zap.Int("rows_written", stats.RowsWritten),
			zap.Int64("bytes_written", stats.BytesWritten),
		)
	}()

	if cfg.S3.CheckAccess {
		if err := sess.CheckOutput(ctx, output); err != nil {
			return err
		}
	}

	p := pipeline.New(pipeline.Layout{
		SongGlob: cfg.SongGlob,
		LogGlob:  cfg.LogGlob,
		Tables:   cfg.Tables,
	})

	if cfg.RunsStage(config.StageSongs) {
		if err := p.ProcessSongData(ctx, sess, input, output); err != nil {
			return stageError(config.StageSongs, err)
		}
	}
	if cfg.RunsStage(config.StageLogs) {
		if err := p.ProcessLogData(ctx, sess, input, output); err != nil {
			return stageError(config.StageLogs, err)
		}
	}
	return nil
}

func setupMetrics(cfg config.MetricsConfig, log *zap.Logger) {
	if cfg.PushgatewayURL == "" {
		log.Debug("metrics disabled")
		return
	}
	b, err := prompush.NewBackend(cfg.Job, cfg.PushgatewayURL)
	if err != nil {
		log.Warn("metrics backend unavailable, using nop", zap.Error(err))
		return
	}
	metrics.SetBackend(b)
	log.Info("metrics enabled", zap.String("pushgateway", cfg.PushgatewayURL), zap.String("job", cfg.Job))
}

func stageError(stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("stage %s: run timed out: %w", stage, err)
	}
	return fmt.Errorf("stage %s: %w", stage, err)
}
