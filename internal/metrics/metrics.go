// Package metrics is the process-wide metrics seam.
//
// Pipeline code records through the package-level functions; cmd/ picks a
// backend (Pushgateway, Datadog, or none) at startup with SetBackend. The
// default backend drops everything.
package metrics

import "sync"

// Metric names recorded by the pipeline.
const (
	// FilesTotal counts processed files. Labels: pass, status (ok|failed).
	FilesTotal = "sparkify_files_total"
	// RecordsTotal counts source records. Labels: pass, kind
	// (parsed|skipped|plays|unresolved).
	RecordsTotal = "sparkify_records_total"
	// RowsTotal counts rows affected in the destination. Labels: table.
	RowsTotal = "sparkify_rows_total"
	// FileDurationSeconds observes wall time per file. Labels: pass, status.
	FileDurationSeconds = "sparkify_file_duration_seconds"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric events. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by backends that buffer and ship on demand.
type Flusher interface {
	Flush() error
}

type nop struct{}

func (nop) IncCounter(string, float64, Labels)       {}
func (nop) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nop{}
)

// SetBackend installs b as the process backend. nil restores the no-op.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nop{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush ships buffered metrics if the backend buffers; otherwise it is a no-op.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}
