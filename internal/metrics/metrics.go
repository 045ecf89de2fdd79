// Package metrics exposes Prometheus collectors for the bridge service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	uowCommitsTotal            *prometheus.CounterVec
	webhookDeliveriesTotal     *prometheus.CounterVec
	eventsPublishedTotal       prometheus.Counter
	documentsRenderedTotal     *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		uowCommitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmbridge_uow_commits_total",
				Help: "Unit-of-work commit attempts, labeled by outcome.",
			},
			[]string{"status"},
		)
		webhookDeliveriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmbridge_webhook_deliveries_total",
				Help: "Webhook delivery attempts, labeled by outcome.",
			},
			[]string{"status"},
		)
		eventsPublishedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crmbridge_events_published_total",
				Help: "Events forwarded to the message topic.",
			},
		)
		documentsRenderedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmbridge_documents_rendered_total",
				Help: "PDF render attempts, labeled by outcome.",
			},
			[]string{"status"},
		)
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crmbridge_http_requests_total",
				Help: "Inbound HTTP requests, labeled by method and status.",
			},
			[]string{"method", "status"},
		)
		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crmbridge_http_request_duration_seconds",
				Help:    "Inbound HTTP request latency.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		)
	})
}

// ObserveCommit records a commit attempt outcome.
func ObserveCommit(status string) {
	if uowCommitsTotal != nil {
		uowCommitsTotal.WithLabelValues(status).Inc()
	}
}

// ObserveDelivery records a webhook delivery outcome.
func ObserveDelivery(status string) {
	if webhookDeliveriesTotal != nil {
		webhookDeliveriesTotal.WithLabelValues(status).Inc()
	}
}

// ObserveEventPublished counts a forwarded event.
func ObserveEventPublished() {
	if eventsPublishedTotal != nil {
		eventsPublishedTotal.Inc()
	}
}

// ObserveRender records a PDF render outcome.
func ObserveRender(status string) {
	if documentsRenderedTotal != nil {
		documentsRenderedTotal.WithLabelValues(status).Inc()
	}
}

// Handler returns the Prometheus scrape handler.
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

// Middleware instruments inbound HTTP requests.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if httpRequestsTotal != nil {
			httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		}
		if httpRequestDurationSeconds != nil {
			httpRequestDurationSeconds.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		}
	})
}
