package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clearledger/compliance-backend/internal/service/reporting"
)

// Metric definitions for the report engine.

var (
	// Execution pipeline metrics
	executionsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clc",
			Subsystem: "execution",
			Name:      "completed_total",
			Help:      "Total number of executions completed since start",
		},
	)

	executionsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clc",
			Subsystem: "execution",
			Name:      "failed_total",
			Help:      "Total number of executions failed since start",
		},
	)

	executionQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "clc",
			Subsystem: "execution",
			Name:      "queue_depth",
			Help:      "Executions waiting for a worker",
		},
	)

	poolWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "clc",
			Subsystem: "execution",
			Name:      "workers",
			Help:      "Configured execution worker count",
		},
	)

	// Database metrics
	dbConnectionPoolSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pgxpool",
			Name:      "connections",
			Help:      "Current number of connections in the pool",
		},
		[]string{"state"},
	)

	dbConnectionPoolMax = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pgxpool",
			Name:      "max_conns",
			Help:      "Maximum number of connections in the pool",
		},
	)
)

// MetricsHandler returns the Prometheus metrics handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// collectRuntimeMetrics samples pool and database gauges until the
// context is cancelled.
func collectRuntimeMetrics(ctx context.Context, db *pgxpool.Pool, pool *reporting.WorkerPool) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	// The pool reports cumulative totals; the counters are fed the
	// delta observed since the previous sample.
	var lastCompleted, lastFailed int64

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := pool.Status()
			executionsCompleted.Add(float64(status.Completed - lastCompleted))
			executionsFailed.Add(float64(status.Failed - lastFailed))
			lastCompleted = status.Completed
			lastFailed = status.Failed
			executionQueueDepth.Set(float64(status.Queued))
			poolWorkers.Set(float64(status.Workers))

			stat := db.Stat()
			dbConnectionPoolSize.WithLabelValues("acquired").Set(float64(stat.AcquiredConns()))
			dbConnectionPoolSize.WithLabelValues("idle").Set(float64(stat.IdleConns()))
			dbConnectionPoolSize.WithLabelValues("total").Set(float64(stat.TotalConns()))
			dbConnectionPoolMax.Set(float64(stat.MaxConns()))
		}
	}
}
