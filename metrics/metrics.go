// Package metrics provides Prometheus metrics for bucketfs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Metadata cache metrics
	tierLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketfs_tier_lookups_total",
			Help: "Total number of short-lived tier lookups",
		},
		[]string{"result"},
	)

	tierErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bucketfs_tier_errors_total",
			Help: "Total number of short-lived tier errors treated as misses",
		},
	)

	durableReadsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bucketfs_durable_reads_total",
			Help: "Total number of metadata reads served by the durable table",
		},
	)

	singleFlightTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketfs_singleflight_total",
			Help: "Single-flight outcomes for metadata cache misses",
		},
		[]string{"outcome"},
	)

	durableQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bucketfs_durable_query_duration_seconds",
			Help:    "Durable metadata table query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	// URL policy metrics
	urlsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketfs_urls_generated_total",
			Help: "Total number of URLs generated by kind",
		},
		[]string{"kind"},
	)

	// Object store metrics
	waitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketfs_wait_until_exists_total",
			Help: "Outcomes of waiting for objects to become visible",
		},
		[]string{"outcome"},
	)

	liveHeadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bucketfs_live_heads_total",
			Help: "Live head requests made when bypassing the metadata cache",
		},
		[]string{"status"},
	)

	refreshedObjects = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bucketfs_refreshed_objects",
			Help: "Number of objects recorded by the last cache refresh",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordTierLookup records a short-lived tier hit or miss.
func RecordTierLookup(hit bool) {
	result := "hit"
	if !hit {
		result = "miss"
	}
	tierLookupsTotal.WithLabelValues(result).Inc()
}

// RecordTierError records a tier error that was downgraded to a miss.
func RecordTierError() {
	tierErrorsTotal.Inc()
}

// RecordDurableRead records a read that reached the durable table.
func RecordDurableRead() {
	durableReadsTotal.Inc()
}

// RecordSingleFlight records how a cache miss was satisfied:
// "leader", "shared" or "timeout".
func RecordSingleFlight(outcome string) {
	singleFlightTotal.WithLabelValues(outcome).Inc()
}

// RecordDurableQuery records a durable table query duration.
func RecordDurableQuery(query string, duration time.Duration) {
	durableQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// RecordURL records a generated URL of the given kind.
func RecordURL(kind string) {
	urlsGeneratedTotal.WithLabelValues(kind).Inc()
}

// RecordWait records the outcome of a wait-until-exists call.
func RecordWait(found bool) {
	outcome := "found"
	if !found {
		outcome = "exhausted"
	}
	waitsTotal.WithLabelValues(outcome).Inc()
}

// RecordLiveHead records a live head request.
func RecordLiveHead(status string) {
	liveHeadsTotal.WithLabelValues(status).Inc()
}

// SetRefreshedObjects sets the object count of the last refresh.
func SetRefreshedObjects(count int) {
	refreshedObjects.Set(float64(count))
}
