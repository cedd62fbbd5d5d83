// metrics/metrics.go
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Contact submission outcomes, used as the "result" label.
const (
	ResultSent     = "sent"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// reqDuration is a histogram of HTTP request durations in seconds, labeled
// by route pattern, method, and status code.
var reqDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name: "http_request_duration_seconds",
		Help: "Duration of HTTP requests.",
		// relay sends dominate the upper buckets
		Buckets: []float64{0.01, 0.1, 0.3, 1.2, 5, 15, 30},
	},
	[]string{"path", "method", "status"},
)

// contactSubmissions counts contact form submissions by outcome.
var contactSubmissions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "contact_submissions_total",
		Help: "Contact form submissions by outcome (sent, rejected, failed).",
	},
	[]string{"result"},
)

// relaySendDuration measures how long the outbound relay takes to accept a message.
var relaySendDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "contact_relay_send_duration_seconds",
		Help:    "Time spent dialing the mail relay and handing over one message.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
	},
)

func init() {
	// Pre-create every outcome so dashboards see zeros instead of gaps.
	for _, r := range []string{ResultSent, ResultRejected, ResultFailed} {
		contactSubmissions.WithLabelValues(r)
	}
}

// RegisterDefault registers the Go runtime and process collectors, the HTTP
// request histogram and the contact metrics. Call it once at startup.
//
// It panics (or exits via logger.Fatal) when registration fails for any
// reason other than the collector already being registered.
func RegisterDefault(logger *zap.Logger) {
	// Go runtime metrics
	mustRegister(logger, "Go collector", collectors.NewGoCollector())
	// Process metrics
	mustRegister(logger, "process collector", collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	// HTTP request histogram
	mustRegister(logger, "HTTP request histogram", reqDuration)
	mustRegister(logger, "contact submissions counter", contactSubmissions)
	mustRegister(logger, "relay send histogram", relaySendDuration)
}

func mustRegister(logger *zap.Logger, name string, c prometheus.Collector) {
	err := prometheus.Register(c)
	if err == nil {
		return
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		// tests and repeated startup calls
		return
	}
	if logger != nil {
		logger.Fatal("failed to register "+name, zap.Error(err))
	}
	// No logger available - panic to ensure the error isn't silently ignored
	panic("metrics: failed to register " + name + ": " + err.Error())
}

// ObserveContact records one contact submission outcome.
func ObserveContact(result string) {
	contactSubmissions.WithLabelValues(result).Inc()
}

// ObserveRelaySend records how long one relay hand-off took.
func ObserveRelaySend(d time.Duration) {
	relaySendDuration.Observe(d.Seconds())
}

// ContactCounter returns the counter child for result, for assertions with
// prometheus/testutil.
func ContactCounter(result string) prometheus.Counter {
	return contactSubmissions.WithLabelValues(result)
}

// maxPathLabelLength bounds the path label to keep cardinality finite.
const maxPathLabelLength = 256

// HTTPMetrics is a middleware that records request duration into the
// http_request_duration_seconds histogram, labeled with the chi route
// pattern rather than the raw path.
//
// Place it after the recoverer so panics are recorded as 500.
func HTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		// Default to HTTP/1.x if ProtoMajor is invalid (e.g., malformed request).
		protoMajor := r.ProtoMajor
		if protoMajor < 1 {
			protoMajor = 1
		}
		ww := middleware.NewWrapResponseWriter(w, protoMajor)

		next.ServeHTTP(ww, r)

		statusCode := ww.Status()
		if statusCode == 0 {
			// nothing written: net/http sends 200
			statusCode = http.StatusOK
		}
		// Clamp status code to valid HTTP range to prevent unbounded label cardinality.
		if statusCode < 100 || statusCode > 599 {
			statusCode = http.StatusInternalServerError
		}

		reqDuration.WithLabelValues(
			routeLabel(r),
			r.Method,
			strconv.Itoa(statusCode),
		).Observe(time.Since(start).Seconds())
	})
}

// routeLabel prefers the matched chi pattern; unmatched requests (404s) are
// collapsed into one label so scanners cannot inflate cardinality.
func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
		return "unmatched"
	}
	// Truncate extremely long paths; truncateUTF8 avoids splitting multi-byte characters.
	path := r.URL.Path
	if len(path) > maxPathLabelLength {
		path = truncateUTF8(path, maxPathLabelLength-3) + "..."
	}
	return path
}

// Handler returns an http.Handler that exposes the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// truncateUTF8 truncates s to at most maxBytes bytes without splitting a
// multi-byte rune.
func truncateUTF8(s string, maxBytes int) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	for maxBytes > 0 && !utf8.RuneStart(s[maxBytes]) {
		maxBytes--
	}
	return s[:maxBytes]
}
