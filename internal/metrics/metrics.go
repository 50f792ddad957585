// Package metrics records pipeline step timings and row counts through a
// pluggable backend. The default backend discards everything, so callers
// never need to check whether metrics are configured.
package metrics

import (
	"sync"
	"time"
)

// Labels are attached to every observation.
type Labels map[string]string

// Backend is implemented by concrete metric systems.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered metrics, for backends that need it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b. A nil b is ignored.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	mu.Lock()
	backend = b
	mu.Unlock()
}

// Reset restores the nop backend.
func Reset() {
	mu.Lock()
	backend = nopBackend{}
	mu.Unlock()
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the installed backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts a pipeline step execution and observes its duration.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}

	b := current()
	b.IncCounter("etl_step_total", 1, lbls)
	b.ObserveHistogram("etl_step_duration_seconds", d.Seconds(), lbls)
}

// RecordRows adds n to the row counter of kind (e.g. "songs_written",
// "log_events_read").
func RecordRows(job, kind string, n int) {
	if n <= 0 {
		return
	}
	current().IncCounter("etl_rows_total", float64(n), Labels{"job": job, "kind": kind})
}
