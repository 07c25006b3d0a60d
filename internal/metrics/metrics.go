package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hatch_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hatch_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	// Chat metrics
	ChatRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hatch_chat_requests_total",
			Help: "Chat requests by outcome",
		},
		[]string{"outcome"}, // "completed", "stream_error", "rejected"
	)

	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hatch_tool_calls_total",
			Help: "Tool invocations by tool and status",
		},
		[]string{"tool", "status"},
	)

	ChatPersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hatch_chat_persist_failures_total",
			Help: "Assistant messages that could not be saved after a stream completed",
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and durations. Paths are reported as
// the matched route pattern to keep label cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}
