// Package metrics exposes refresh and query instrumentation in the
// Prometheus text format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inelson/kubesql/internal/models"
	"github.com/inelson/kubesql/pkg/api"
)

const namespace = "kubesql"

var (
	refreshCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cycles_total",
			Help:      "Refresh cycles by outcome.",
		},
		[]string{"outcome"},
	)

	refreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Time from fetch start to snapshot publish.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	fetchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Failed collection fetches by resource.",
		},
		[]string{"resource"},
	)

	snapshotRows = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_rows",
			Help:      "Rows per table in the live snapshot.",
		},
		[]string{"table"},
	)

	queries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Executed queries by outcome.",
		},
		[]string{"outcome"},
	)

	queryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Query execution time against the snapshot.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
	)
)

func init() {
	prometheus.MustRegister(refreshCycles)
	prometheus.MustRegister(refreshDuration)
	prometheus.MustRegister(fetchFailures)
	prometheus.MustRegister(snapshotRows)
	prometheus.MustRegister(queries)
	prometheus.MustRegister(queryDuration)
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// RefreshSucceeded records a published snapshot and its table sizes.
func RefreshSucceeded(d time.Duration, counts api.TableCounts) {
	refreshCycles.WithLabelValues("success").Inc()
	refreshDuration.Observe(d.Seconds())
	snapshotRows.WithLabelValues(string(models.KindPod)).Set(float64(counts.Pods))
	snapshotRows.WithLabelValues(string(models.KindNode)).Set(float64(counts.Nodes))
	snapshotRows.WithLabelValues(string(models.KindService)).Set(float64(counts.Services))
	snapshotRows.WithLabelValues("containers").Set(float64(counts.Containers))
}

// RefreshFailed records an abandoned cycle. resource is empty when the
// failure was not a fetch.
func RefreshFailed(resource string) {
	refreshCycles.WithLabelValues("failure").Inc()
	if resource != "" {
		fetchFailures.WithLabelValues(resource).Inc()
	}
}

func QueryExecuted(d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	queries.WithLabelValues(outcome).Inc()
	queryDuration.Observe(d.Seconds())
}
