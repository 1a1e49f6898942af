// Package metrics is the backend-neutral metrics surface of a move.
//
// Core code records through the package functions; the CLI installs a
// concrete backend (Datadog, Pushgateway) with SetBackend. Until then every
// call is a no-op.
package metrics

import (
	"sync"
	"time"
)

// Metric names recorded by the planner.
const (
	MovesTotal      = "mvrec_moves_total"
	RowsTotal       = "mvrec_rows_total"
	MoveDurationSec = "mvrec_move_duration_seconds"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric observations. Implementations must be safe for
// concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush submits anything buffered.
	Flush() error
}

type nop struct{}

func (nop) IncCounter(string, float64, Labels)       {}
func (nop) ObserveHistogram(string, float64, Labels) {}
func (nop) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nop{}
)

// SetBackend installs b; nil restores the no-op backend.
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

// Flush flushes the installed backend.
func Flush() error { return current().Flush() }

// RecordMove records the outcome of one move. rows < 0 means the count is
// unknown and is not added.
func RecordMove(strategy, status, target string, rows int64, elapsed time.Duration) {
	l := Labels{"strategy": strategy, "status": status}
	IncCounter(MovesTotal, 1, l)
	ObserveHistogram(MoveDurationSec, elapsed.Seconds(), l)
	if rows > 0 {
		IncCounter(RowsTotal, float64(rows), Labels{"target": target})
	}
}
