// Package metrics is the process-wide metrics facade used by the loader.
//
// Core code calls the package functions; cmd/etl picks the backend once at
// startup. The default backend drops everything.
package metrics

import "sync"

// Labels are metric dimensions such as {"pass": "song", "status": "ok"}.
type Labels map[string]string

// Backend receives metric events. Implementations must be safe for
// concurrent use and must ignore metric names they do not know.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

// Metric names emitted by the loader.
const (
	StepTotal           = "etl_step_total"            // step, status
	StepDurationSeconds = "etl_step_duration_seconds" // step, status
	FilesTotal          = "etl_files_total"           // pass, status
	RecordsTotal        = "etl_records_total"         // kind
	RowErrorsTotal      = "etl_row_errors_total"      // table
	LookupsTotal        = "etl_lookups_total"         // result
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b. A nil b restores the nop backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
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

// Flush asks the installed backend to submit whatever it has buffered.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one finished step and observes its duration.
func RecordStep(step, status string, seconds float64) {
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, seconds, l)
}
