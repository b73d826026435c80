package integration

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditgate/creditgate/internal/config"
	"github.com/creditgate/creditgate/internal/core"
	"github.com/creditgate/creditgate/internal/core/engine"
	"github.com/creditgate/creditgate/internal/core/throttle"
	"github.com/creditgate/creditgate/internal/observability"
	"github.com/creditgate/creditgate/internal/server"
	"github.com/creditgate/creditgate/internal/server/handlers"
)

// cleanupMetrics tears down global telemetry state so each test starts clean.
// This matters in sandboxes where lingering exporters can block future binds.
func cleanupMetrics(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		_ = observability.ShutdownMetrics()
	})
}

// isPermissionError normalizes OS-specific permission errors (macOS/Linux/BSD)
// so we can gracefully skip when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EACCES) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}

	return false
}

// initMetricsOrSkip attempts to start the metrics exporter; if the environment
// forbids network binds we skip instead of failing the entire suite.
func initMetricsOrSkip(t *testing.T) {
	t.Helper()

	if err := observability.InitMetrics("test", 0, "test"); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}

	cleanupMetrics(t)
}

// approvalMap is an in-process approval store.
type approvalMap struct {
	mu      sync.Mutex
	records map[string]core.ApprovalRecord
}

func (m *approvalMap) Get(ctx context.Context, identity string) (*core.ApprovalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if record, ok := m.records[identity]; ok {
		return &record, nil
	}
	return nil, nil
}

func (m *approvalMap) Put(ctx context.Context, identity string, record core.ApprovalRecord) (*core.ApprovalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.records[identity]; ok {
		return &existing, nil
	}
	m.records[identity] = record
	return &record, nil
}

func (m *approvalMap) Ping(ctx context.Context) error {
	return nil
}

// newTestServer binds to IPv4 loopback explicitly (avoiding IPv6-only defaults)
// and skips when the sandbox refuses to open sockets.
func newTestServer(t *testing.T, limits throttle.Limits) (*httptest.Server, *http.Client) {
	t.Helper()

	cfg := &config.Config{}
	thr := throttle.New(limits)
	store := &approvalMap{records: map[string]core.ApprovalRecord{}}
	eng := engine.New(thr, store, engine.DefaultPolicy)

	hm := handlers.NewHealthManager("test")
	hm.RegisterChecker("approval_store", handlers.PingChecker{Target: store})

	srv := server.New(cfg, server.Dependencies{Credits: eng, Throttle: thr, Health: hm})

	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping server setup: %v", err)
		}
		require.NoError(t, err)
	}

	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: srv.Handler()},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts, ts.Client()
}

func postCredit(t *testing.T, client *http.Client, url, body string) int {
	t.Helper()
	resp, err := client.Post(url+"/v1/credits", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	return resp.StatusCode
}

func TestMetricsEndpoint_Integration(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info", "structured")

	initMetricsOrSkip(t)

	// Generous limits: every worker request goes through over one connection pool.
	ts, client := newTestServer(t, throttle.Limits{MaxRequestsPerWindow: 1000, Window: time.Minute, BlockDuration: time.Millisecond})
	serverURL := ts.URL

	const numRequests = 40
	const numWorkers = 8

	requestChan := make(chan int, numRequests)
	for i := 0; i < numRequests; i++ {
		requestChan <- i
	}
	close(requestChan)

	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for reqNum := range requestChan {
				var resp *http.Response
				var err error
				switch reqNum % 4 {
				case 0:
					resp, err = client.Get(serverURL + "/v1/credits")
				case 1:
					resp, err = client.Post(serverURL+"/v1/credits", "application/json",
						strings.NewReader(`{"business_kind":"SME","monthly_revenue":"1000","requested_amount":"150"}`))
				case 2:
					resp, err = client.Get(serverURL + "/missing")
				default:
					resp, err = client.Get(serverURL + "/health")
				}
				if err == nil {
					_ = resp.Body.Close()
				}
			}
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)

	resp, err := client.Get(serverURL + "/metrics")
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	metricsContent := string(body)
	assert.Contains(t, metricsContent, "test_http_requests_total", "Should have HTTP request metrics")
	assert.Contains(t, metricsContent, "test_http_request_duration_ms", "Should have duration metrics")
	assert.Contains(t, metricsContent, "test_credit_decisions_total", "Should have decision metrics")
	assert.True(t, elapsed < 5*time.Second, "Load test should complete in reasonable time")
	t.Logf("Load test completed: %d requests in %v (%.2f req/s)", numRequests, elapsed, float64(numRequests)/elapsed.Seconds())
}

func TestCredits_ThrottleOverRealListener(t *testing.T) {
	observability.InitServerLogger("test", "error", "structured")

	ts, client := newTestServer(t, throttle.Limits{MaxRequestsPerWindow: 2, Window: time.Minute, BlockDuration: time.Minute})

	unaffordable := `{"business_kind":"SME","monthly_revenue":"1000","requested_amount":"900"}`
	assert.Equal(t, http.StatusBadRequest, postCredit(t, client, ts.URL, unaffordable))

	// The rejection blocks the caller for BlockDuration.
	resp, err := client.Post(ts.URL+"/v1/credits", "application/json", strings.NewReader(unaffordable))
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestMetricsEndpoint_WithTelemetryDisabled(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info", "structured")

	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})

	ts, client := newTestServer(t, throttle.Limits{})
	serverURL := ts.URL

	resp, err := client.Get(serverURL + "/health")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Get(serverURL + "/metrics")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
