package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "blockfix",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blockfix",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "blockfix",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	complaintsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blockfix",
			Subsystem: "complaints",
			Name:      "submitted_total",
			Help:      "Total number of complaints submitted.",
		},
	)

	votesCast = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blockfix",
			Subsystem: "complaints",
			Name:      "votes_total",
			Help:      "Total number of accepted votes.",
		},
	)

	voteAuditFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blockfix",
			Subsystem: "complaints",
			Name:      "vote_audit_failures_total",
			Help:      "Vote audit records that could not be written.",
		},
	)

	fundReleases = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blockfix",
			Subsystem: "funds",
			Name:      "releases_total",
			Help:      "Fund release attempts by outcome.",
		},
		[]string{"outcome"},
	)

	fundReleasedAmount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blockfix",
			Subsystem: "funds",
			Name:      "released_amount_total",
			Help:      "Cumulative amount debited from the pool.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		complaintsSubmitted,
		votesCast,
		voteAuditFailures,
		fundReleases,
		fundReleasedAmount,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordComplaintSubmitted counts an accepted submission.
func RecordComplaintSubmitted() {
	complaintsSubmitted.Inc()
}

// RecordVote counts an accepted vote.
func RecordVote() {
	votesCast.Inc()
}

// RecordVoteAuditFailure counts an audit row that failed to persist.
func RecordVoteAuditFailure() {
	voteAuditFailures.Inc()
}

// RecordFundRelease records a release attempt and, on success, the amount.
func RecordFundRelease(amount float64, released bool) {
	if released {
		fundReleases.WithLabelValues("released").Inc()
		fundReleasedAmount.Add(amount)
		return
	}
	fundReleases.WithLabelValues("insufficient_funds").Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses resource identifiers so metric label cardinality
// stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "api":
		if len(parts) == 1 {
			return "/api"
		}
		resource := parts[1]
		switch len(parts) {
		case 2:
			return "/api/" + resource
		case 3:
			return "/api/" + resource + "/:id"
		default:
			return "/api/" + resource + "/:id/" + parts[3]
		}
	default:
		return "/" + parts[0]
	}
}
