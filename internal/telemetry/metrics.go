package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EngineTicks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskauto",
		Subsystem: "engine",
		Name:      "ticks_total",
		Help:      "Total scheduler ticks executed.",
	})

	EngineFires = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "taskauto",
		Subsystem: "engine",
		Name:      "fires_total",
		Help:      "Per-automation fire cycle results, labelled by outcome.",
	}, []string{"outcome"})

	EngineTasksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "taskauto",
		Subsystem: "engine",
		Name:      "tasks_created_total",
		Help:      "Total tasks instantiated from approved templates.",
	})

	EngineFireDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "taskauto",
		Subsystem: "engine",
		Name:      "fire_duration_seconds",
		Help:      "Duration of a successful fire (instantiation plus commit).",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)
