package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registered once on the default registry; every Engine shares them.
var (
	namespace = "cadence"
	subsystem = "sync"

	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "runs_total",
			Help:      "Sync runs by result (ok, error).",
		},
		[]string{"result"},
	)

	itemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_items_total",
			Help:      "Queue items processed by result (synced, failed, dropped).",
		},
		[]string{"store", "result"},
	)

	ritualsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "rituals_total",
			Help:      "Unsynced rituals pushed by result (synced, failed, rejected).",
		},
		[]string{"result"},
	)

	triggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "triggers_total",
			Help:      "Run triggers by reason and outcome (accepted, dropped).",
		},
		[]string{"reason", "outcome"},
	)

	queueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "queue_depth",
			Help:      "Items left in the sync queue after the last run.",
		},
	)

	runDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a sync run.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
