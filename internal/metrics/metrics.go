// Package metrics exposes the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "adsift"

var (
	// ClassifiedNodes counts message containers that reached a final state.
	// Labels: outcome (sponsored, keyword, clean)
	ClassifiedNodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "classifier",
		Name:      "nodes_total",
		Help:      "Message containers classified, by outcome",
	}, []string{"outcome"})

	// ClassifyPanics counts classifications that panicked and were recovered.
	ClassifyPanics = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "classifier",
		Name:      "panics_total",
		Help:      "Classifications recovered from a panic",
	})

	// ListFetches counts blacklist source fetches.
	// Labels: status (ok, invalid, failed, bad_payload)
	ListFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "lists",
		Name:      "fetches_total",
		Help:      "Blacklist source fetches, by result",
	}, []string{"status"})

	// ListFetchDuration measures one full keyword set build.
	// Labels: mode (tolerant, strict)
	ListFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "lists",
		Name:      "build_duration_seconds",
		Help:      "Time to build the keyword set from all sources",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"mode"})

	// KeywordsPublished is the size of the currently published keyword set.
	KeywordsPublished = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "lists",
		Name:      "keywords",
		Help:      "Keywords in the published set",
	})

	// QueuedBatches counts mutation batches deferred until keywords were ready.
	QueuedBatches = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "observer",
		Name:      "queued_batches_total",
		Help:      "Mutation batches deferred until the keyword set was published",
	})
)
