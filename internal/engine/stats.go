package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"songplay_etl/internal/parquetio"
)

// RunStats is the run summary written at exit.
type RunStats struct {
	RunID                   string                 `json:"run_id"`
	StartedAt               time.Time              `json:"started_at"`
	TotalExecutionTime      string                 `json:"total_execution_time"`
	InputFiles              int                    `json:"input_files"`
	InputBytes              int64                  `json:"input_bytes"`
	InputRows               int                    `json:"input_rows"`
	RowsWritten             int                    `json:"rows_written"`
	BytesWritten            int64                  `json:"bytes_written"`
	ProcessingThroughputMBs float64                `json:"processing_throughput_mb_per_sec"`
	Tables                  []parquetio.TableStats `json:"tables"`
}

type statsRecorder struct {
	mu    sync.Mutex
	stats RunStats
}

func newStatsRecorder(runID string) *statsRecorder {
	return &statsRecorder{stats: RunStats{RunID: runID, StartedAt: time.Now()}}
}

func (r *statsRecorder) addInput(files int, bytes int64, rows int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.InputFiles += files
	r.stats.InputBytes += bytes
	r.stats.InputRows += rows
}

func (r *statsRecorder) addTable(ts parquetio.TableStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Tables = append(r.stats.Tables, ts)
	r.stats.RowsWritten += ts.Rows
	r.stats.BytesWritten += ts.Bytes
}

func (r *statsRecorder) snapshot() RunStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := r.stats
	out.Tables = append([]parquetio.TableStats(nil), r.stats.Tables...)
	elapsed := time.Since(out.StartedAt)
	out.TotalExecutionTime = elapsed.Truncate(time.Millisecond).String()
	if secs := elapsed.Seconds(); secs > 0 {
		out.ProcessingThroughputMBs = float64(out.InputBytes) / 1e6 / secs
	}
	return out
}

// WriteStats writes stats as indented JSON to path.
func WriteStats(path string, stats RunStats) error {
	b, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("engine: serialize stats: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("engine: write stats %s: %w", path, err)
	}
	return nil
}
