package logdb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	rotations    prometheus.Counter
	compactions  prometheus.Counter
	putSeconds   prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	factory := promauto.With(reg)
	return &metrics{
		rotations: factory.NewCounter(prometheus.CounterOpts{
			Name: "duskdb_log_rotations_total",
			Help: "Number of active segment rotations.",
		}),
		compactions: factory.NewCounter(prometheus.CounterOpts{
			Name: "duskdb_log_compactions_total",
			Help: "Number of frozen batches compacted by the merge worker.",
		}),
		putSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name: "duskdb_log_put_seconds",
			Help: "Latency of Put calls against the log engine.",
		}),
	}
}
