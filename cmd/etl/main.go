// Command etl builds the song-play data lake: it reads the song and log
// datasets, derives the songs, artists, users, time and songplays tables
// and writes them as partitioned parquet. Run without arguments it uses
// etl.yaml (when present), ETL_* environment variables and the built-in
// defaults.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "etl: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgPath  string
		validate bool
	)

	cmd := &cobra.Command{
		Use:   "etl",
		Short: "Build the song-play parquet data lake from song and log JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd, cfgPath, validate)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.Flags()
	flags.StringVar(&cfgPath, "config", "", "YAML config file (default ./etl.yaml when present)")
	flags.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	flags.String("mode", "", "root preset: local or s3")
	flags.String("input", "", "input root URI, overrides the preset")
	flags.String("output", "", "output root URI, overrides the preset")
	flags.String("credentials", "", "credentials file (KEY=VALUE, optional [KEYS] header)")
	flags.String("song-glob", "", "song metadata glob relative to the input root")
	flags.String("log-glob", "", "activity log glob relative to the input root")
	flags.String("timezone", "", "IANA time zone for calendar fields")
	flags.Int("workers", 0, "parallel file reads and part writes")
	flags.String("compression", "", "parquet codec: snappy, gzip, zstd, uncompressed")
	flags.String("spill-dir", "", "stage encoded parquet parts in this directory instead of memory")
	flags.StringSlice("stages", nil, "stages to run: songs, logs")
	flags.String("stats-path", "", "run summary JSON path")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-format", "", "json or console")

	return cmd
}
