package state

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusChainHeight      prometheus.Gauge
	prometheusPoolSize         prometheus.Gauge
	prometheusBlocksMined      prometheus.Counter
	prometheusBlocksAccepted   prometheus.Counter
	prometheusBlocksRejected   *prometheus.CounterVec
	prometheusTxsRejected      *prometheus.CounterVec
	prometheusOrphansRecovered prometheus.Counter
	prometheusEnhanced         prometheus.Counter
)

var prometheusMetricsOnce sync.Once

func init() {
	initPrometheusMetrics()
}

func initPrometheusMetrics() {
	prometheusMetricsOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusChainHeight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "state",
			Name:      "chain_height",
			Help:      "Number of blocks in the local chain",
		},
	)

	prometheusPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "state",
			Name:      "pool_size",
			Help:      "Number of pending transactions",
		},
	)

	prometheusBlocksMined = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "state",
			Name:      "blocks_mined",
			Help:      "Number of blocks built by this node and appended to the chain",
		},
	)

	prometheusBlocksAccepted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "state",
			Name:      "blocks_accepted",
			Help:      "Number of blocks received from peers and appended to the chain",
		},
	)

	prometheusBlocksRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "state",
			Name:      "blocks_rejected",
			Help:      "Number of blocks received from peers and rejected",
		},
		[]string{"reason"},
	)

	prometheusTxsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "state",
			Name:      "txs_rejected",
			Help:      "Number of transactions refused admission to the pool",
		},
		[]string{"reason"},
	)

	prometheusOrphansRecovered = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "state",
			Name:      "orphan_txs_recovered",
			Help:      "Number of transactions returned to the pool from orphaned blocks",
		},
	)

	prometheusEnhanced = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "state",
			Name:      "enhanced_messages",
			Help:      "Number of distinct enhanced messages received",
		},
	)
}
