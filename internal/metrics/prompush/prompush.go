// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package. A move is a batch job, so nothing is scraped;
// Flush pushes the whole registry once the move finishes.
package prompush

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/bluelabsio/records-mover-sub001/internal/errors"
	"github.com/bluelabsio/records-mover-sub001/internal/metrics"
)

// Backend keeps collectors in a private registry.
type Backend struct {
	reg    *prometheus.Registry
	pusher *push.Pusher

	moves    *prometheus.CounterVec
	rows     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewBackend pushes to the gateway at url under job.
func NewBackend(job, url string) (*Backend, error) {
	if url == "" {
		return nil, errors.New("prompush: empty pushgateway URL")
	}
	if job == "" {
		job = "mvrec"
	}
	b := &Backend{
		reg: prometheus.NewRegistry(),
		moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.MovesTotal,
			Help: "Moves finished, by strategy and status.",
		}, []string{"strategy", "status"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Rows moved, by target.",
		}, []string{"target"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.MoveDurationSec,
			Help:    "Wall time of a move.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 14),
		}, []string{"strategy", "status"}),
	}
	b.reg.MustRegister(b.moves, b.rows, b.duration)
	b.pusher = push.New(url, job).Gatherer(b.reg)
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	switch name {
	case metrics.MovesTotal:
		b.moves.WithLabelValues(labels["strategy"], labels["status"]).Add(delta)
	case metrics.RowsTotal:
		b.rows.WithLabelValues(labels["target"]).Add(delta)
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.MoveDurationSec || value < 0 {
		return
	}
	b.duration.WithLabelValues(labels["strategy"], labels["status"]).Observe(value)
}

// Flush replaces the job's group on the gateway with the registry contents.
func (b *Backend) Flush() error {
	return errors.Wrap(b.pusher.Push(), "push metrics")
}

var _ metrics.Backend = (*Backend)(nil)
