package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DBQueryDuration measures how long store queries take, labelled by
// operation ("list_products", "create_order", ...).
var DBQueryDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries in seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
	},
	[]string{"operation"},
)

// CacheRequests counts cache lookups by key namespace and result (hit/miss).
// The hit ratio per namespace is the first thing to look at when Postgres
// load spikes.
var CacheRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cache_requests_total",
		Help: "Cache lookups by key namespace and result",
	},
	[]string{"namespace", "result"},
)

// SyncJobs counts index sync job outcomes. "dropped" means retries were
// exhausted and the index is allowed to diverge until reconciliation.
var SyncJobs = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "index_sync_jobs_total",
		Help: "Index sync job outcomes by operation",
	},
	[]string{"op", "outcome"},
)
