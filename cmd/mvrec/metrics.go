package main

import (
	"context"
	"time"

	"github.com/bluelabsio/records-mover-sub001/internal/config"
	"github.com/bluelabsio/records-mover-sub001/internal/logging"
	"github.com/bluelabsio/records-mover-sub001/internal/metrics"
	"github.com/bluelabsio/records-mover-sub001/internal/metrics/datadog"
	"github.com/bluelabsio/records-mover-sub001/internal/metrics/prompush"
)

// setupMetrics installs the configured backend. A backend that fails to
// start is logged and replaced by the no-op one; metrics never fail a move.
// The returned function flushes and uninstalls it.
func setupMetrics(ctx context.Context, m config.Metrics) func() {
	log := logging.Logger
	switch m.Backend {
	case "pushgateway":
		b, err := prompush.NewBackend(m.Job, m.PushgatewayURL)
		if err != nil {
			log.Warnw("metrics: failed to init prom push backend; using nop", "error", err)
			return func() {}
		}
		log.Infow("metrics enabled", "backend", m.Backend, "url", m.PushgatewayURL, "job", m.Job)
		metrics.SetBackend(b)
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Warnw("metrics: flush error", "error", err)
			}
			metrics.SetBackend(nil)
		}

	case "datadog":
		// The flush loop outlives an interrupt; Close does the last submit.
		b, err := datadog.NewBackend(context.WithoutCancel(ctx), datadog.Options{
			JobName:    m.Job,
			Tags:       datadog.ParseTagsCSV(m.Tags),
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			log.Warnw("metrics: failed to init datadog backend; using nop", "error", err)
			return func() {}
		}
		log.Infow("metrics enabled", "backend", m.Backend, "job", m.Job)
		metrics.SetBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				log.Warnw("metrics: datadog close error", "error", err)
			}
			metrics.SetBackend(nil)
		}

	case "", "none":
		return func() {}

	default:
		log.Warnw("metrics: unknown backend; metrics disabled", "backend", m.Backend)
		return func() {}
	}
}
