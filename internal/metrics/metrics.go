package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	SalesCommitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_committed_total",
			Help: "Sales committed, by channel",
		},
		[]string{"channel"},
	)

	SaleRevenueCents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sale_revenue_cents_total",
			Help: "Net value of committed sales in cents, by channel",
		},
		[]string{"channel"},
	)

	SaleCommitRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sale_commit_retries_total",
			Help: "Sale commits retried, by reason",
		},
		[]string{"reason"},
	)

	SalesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_rejected_total",
			Help: "Sales rejected during validation, by reason",
		},
		[]string{"reason"},
	)

	BundlesOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "meter_bundles_opened_total",
			Help: "Sealed bundles opened to fulfil meter cuts",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request count and latency. route maps a request to a
// low-cardinality label.
func Middleware(route func(*http.Request) string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		label := route(r)
		RequestCounter.WithLabelValues(r.Method, label, strconv.Itoa(rec.status)).Inc()
		RequestDuration.WithLabelValues(r.Method, label).Observe(time.Since(start).Seconds())
	})
}
