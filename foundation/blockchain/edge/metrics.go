package edge

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusFailovers     prometheus.Counter
	prometheusFramesIgnored prometheus.Counter
)

var prometheusMetricsOnce sync.Once

func init() {
	initPrometheusMetrics()
}

func initPrometheusMetrics() {
	prometheusMetricsOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusFailovers = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "edge",
			Name:      "failovers",
			Help:      "Number of times the edge moved to another core node",
		},
	)

	prometheusFramesIgnored = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "edge",
			Name:      "frames_ignored",
			Help:      "Number of frames received from senders that are not core nodes",
		},
	)
}
