package duskdb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metrics holds the paged engine's prometheus collectors, registered against
// a per-DB registry (see Options.Registerer) so independently-opened DBs
// never collide on metric names.
type metrics struct {
	commits        prometheus.Counter
	rollbacks      prometheus.Counter
	pagesAllocated prometheus.Counter
	commitSeconds  prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		commits: factory.NewCounter(prometheus.CounterOpts{
			Name: "duskdb_paged_commits_total",
			Help: "Number of committed write transactions.",
		}),
		rollbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "duskdb_paged_rollbacks_total",
			Help: "Number of rolled back write transactions.",
		}),
		pagesAllocated: factory.NewCounter(prometheus.CounterOpts{
			Name: "duskdb_paged_pages_allocated_total",
			Help: "Number of pages allocated across all transactions.",
		}),
		commitSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "duskdb_paged_commit_seconds",
			Help: "Latency of write-transaction commit.",
		}),
	}
}
