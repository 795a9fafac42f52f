package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "metawatch", Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "metawatch", Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	BackendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "metawatch", Name: "backend_requests_total", Help: "Requests to the review backend."},
		[]string{"backend", "op", "status"},
	)
	BackendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "metawatch", Name: "backend_request_duration_seconds",
			Help:    "Review backend request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "metawatch", Name: "cache_events_total", Help: "Cache hits/misses/sets/dels."},
		[]string{"cache", "event"}, // event: hit|miss|set|del
	)
	Votes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "metawatch", Name: "votes_total", Help: "Votes cast."},
		[]string{"kind", "changed"},
	)
	Mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "metawatch", Name: "mutations_total", Help: "Review submits, updates and deletes."},
		[]string{"op", "result"},
	)
	SnapshotSize = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "metawatch", Name: "snapshot_reviews", Help: "Approved reviews in the in-memory snapshot."},
	)
)

// Serve exposes reg on a separate listener in the background. Empty addr disables it.
func Serve(addr string, reg *prometheus.Registry) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", MetricsHandler(reg))

	go func() {
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(HTTPRequests, HTTPLatency, BackendRequests, BackendLatency, CacheEvents, Votes, Mutations, SnapshotSize)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

// ObserveBackend records one store call. status is an HTTP code for the REST
// backend and "ok"/"error" for SQL backends.
func ObserveBackend(backend, op, status string, dur time.Duration) {
	BackendRequests.WithLabelValues(backend, op, status).Inc()
	BackendLatency.WithLabelValues(backend, op).Observe(dur.Seconds())
}

func ObserveCache(cache, event string) { // event: hit|miss|set|del
	CacheEvents.WithLabelValues(cache, event).Inc()
}

func ObserveVote(kind string, changed bool) {
	Votes.WithLabelValues(kind, strconv.FormatBool(changed)).Inc()
}

func ObserveMutation(op string, err error) {
	Mutations.WithLabelValues(op, Result(err)).Inc()
}

func Result(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
