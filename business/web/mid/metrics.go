package mid

import (
	"context"
	"net/http"
	"sync"

	"github.com/ardanlabs/p2pledger/foundation/web"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	prometheusRequests prometheus.Counter
	prometheusErrors   prometheus.Counter
	prometheusPanics   prometheus.Counter
)

var prometheusMetricsOnce sync.Once

func init() {
	initPrometheusMetrics()
}

func initPrometheusMetrics() {
	prometheusMetricsOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "web",
			Name:      "requests",
			Help:      "Number of requests handled by the api",
		},
	)

	prometheusErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "web",
			Name:      "errors",
			Help:      "Number of requests that ended in an error",
		},
	)

	prometheusPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "web",
			Name:      "panics",
			Help:      "Number of handler panics recovered",
		},
	)
}

// Metrics updates program counters.
func Metrics() web.Middleware {

	// This is the actual middleware function to be executed.
	m := func(handler web.Handler) web.Handler {

		// Create the handler that will be attached in the middleware chain.
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

			// Call the next handler.
			err := handler(ctx, w, r)

			// Increment the request and errors counters.
			prometheusRequests.Inc()
			if err != nil {
				prometheusErrors.Inc()
			}

			// Return the error so it can be handled further up the chain.
			return err
		}

		return h
	}

	return m
}
