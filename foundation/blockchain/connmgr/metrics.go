package connmgr

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusFramesReceived *prometheus.CounterVec
	prometheusFramesDropped  *prometheus.CounterVec
	prometheusSendFailures   prometheus.Counter
	prometheusCorePeers      prometheus.Gauge
	prometheusEdges          prometheus.Gauge
	prometheusUnsafeCoreList prometheus.Counter
)

var prometheusMetricsOnce sync.Once

func init() {
	initPrometheusMetrics()
}

func initPrometheusMetrics() {
	prometheusMetricsOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusFramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "connmgr",
			Name:      "frames_received",
			Help:      "Number of frames received by message type",
		},
		[]string{"type"},
	)

	prometheusFramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "connmgr",
			Name:      "frames_dropped",
			Help:      "Number of inbound frames dropped without a reply",
		},
		[]string{"reason"},
	)

	prometheusSendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "connmgr",
			Name:      "send_failures",
			Help:      "Number of failed outbound sends",
		},
	)

	prometheusCorePeers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "connmgr",
			Name:      "core_peers",
			Help:      "Number of known core peers",
		},
	)

	prometheusEdges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "connmgr",
			Name:      "edges",
			Help:      "Number of registered edge nodes",
		},
	)

	prometheusUnsafeCoreList = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "connmgr",
			Name:      "unsafe_core_list",
			Help:      "Number of core lists discarded by the acceptance policy",
		},
	)
}
