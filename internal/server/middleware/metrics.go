package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/creditgate/creditgate/internal/observability"
)

// HTTP metric names.
const (
	MetricRequestsTotal     = "http_requests_total"
	MetricRequestDurationMs = "http_request_duration_ms"
	MetricRequestSizeBytes  = "http_request_size_bytes"
	MetricResponseSizeBytes = "http_response_size_bytes"
	MetricErrorsTotal       = "http_errors_total"
)

// statusRecorder captures the status and body size written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	written     int64
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// EndpointPattern returns the chi route pattern, or a coarse bucket for paths
// chi did not match, so metric labels stay low-cardinality.
func EndpointPattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}

	path := r.URL.Path
	switch path {
	case "/health", "/health/live", "/health/ready", "/health/startup":
		return "/health/*"
	case "/version", "/metrics", "/v1/credits", "/":
		return path
	}

	switch {
	case strings.HasPrefix(path, "/admin/throttle/"):
		return "/admin/throttle/*"
	case strings.HasPrefix(path, "/admin/"):
		return "/admin/*"
	default:
		return "/unknown"
	}
}

// requestObservation is one completed request.
type requestObservation struct {
	method       string
	endpoint     string
	status       int
	duration     time.Duration
	requestSize  int64
	responseSize int64
}

func (o requestObservation) labels() map[string]string {
	return map[string]string{
		"method":   o.method,
		"endpoint": o.endpoint,
		"status":   strconv.Itoa(o.status),
	}
}

func (o requestObservation) errorType() string {
	switch {
	case o.status >= 500:
		return "server_error"
	case o.status >= 400:
		return "client_error"
	default:
		return ""
	}
}

// RequestMetrics records request counters, latency and sizes, and logs one
// line per request. Request and client IDs go to the log only.
func RequestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if observability.TelemetrySystem == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		obs := requestObservation{
			method:       r.Method,
			endpoint:     EndpointPattern(r),
			status:       recorder.status,
			duration:     time.Since(start),
			requestSize:  contentLength(r),
			responseSize: recorder.written,
		}
		emitRequestMetrics(obs)
		logRequest(r, w, obs)
	})
}

func contentLength(r *http.Request) int64 {
	if r.ContentLength > 0 {
		return r.ContentLength
	}
	if value := r.Header.Get("Content-Length"); value != "" {
		if size, err := strconv.ParseInt(value, 10, 64); err == nil {
			return size
		}
	}
	return 0
}

func emitRequestMetrics(obs requestObservation) {
	sys := observability.TelemetrySystem
	if sys == nil {
		return
	}

	labels := obs.labels()
	_ = sys.Counter(MetricRequestsTotal, 1, labels)
	_ = sys.Histogram(MetricRequestDurationMs, obs.duration, labels)

	sizeLabels := map[string]string{"method": obs.method, "endpoint": obs.endpoint}
	_ = sys.Gauge(MetricRequestSizeBytes, float64(obs.requestSize), sizeLabels)
	_ = sys.Gauge(MetricResponseSizeBytes, float64(obs.responseSize), sizeLabels)

	if errorType := obs.errorType(); errorType != "" {
		errorLabels := obs.labels()
		errorLabels["error_type"] = errorType
		_ = sys.Counter(MetricErrorsTotal, 1, errorLabels)
	}
}

func logRequest(r *http.Request, w http.ResponseWriter, obs requestObservation) {
	logger := observability.ServerLogger
	if logger == nil {
		return
	}

	fields := []zap.Field{
		zap.String("method", obs.method),
		zap.String("path", r.URL.Path),
		zap.String("endpoint", obs.endpoint),
		zap.Int("status", obs.status),
		zap.Duration("duration", obs.duration),
		zap.Int64("request_size", obs.requestSize),
		zap.Int64("response_size", obs.responseSize),
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("client", GetClientIdentity(r.Context())),
	}
	if retryAfter := w.Header().Get("Retry-After"); retryAfter != "" {
		fields = append(fields, zap.String("retry_after", retryAfter))
	}

	if obs.status >= 500 {
		logger.Warn("HTTP request failed", fields...)
		return
	}
	logger.Info("HTTP request completed", fields...)
}
