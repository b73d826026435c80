package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdmitter struct {
	admitted map[string]bool
	wait     time.Duration
	asked    []string
}

func (s *stubAdmitter) IsAdmitted(identity string) bool {
	s.asked = append(s.asked, identity)
	return s.admitted[identity]
}

func (s *stubAdmitter) RetryAfter(identity string) time.Duration {
	return s.wait
}

func TestAdmissionPassesAdmittedIdentity(t *testing.T) {
	admitter := &stubAdmitter{admitted: map[string]bool{"192.0.2.10": true}}

	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	})
	refuse := func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
		t.Fatal("admitted request must not be refused")
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/credits", nil)
	req.RemoteAddr = "192.0.2.10:4000"
	rec := httptest.NewRecorder()

	ClientIdentity(Admission(admitter, refuse)(next)).ServeHTTP(rec, req)

	assert.True(t, called)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, []string{"192.0.2.10"}, admitter.asked)
}

func TestAdmissionRefusesWithoutReadingBody(t *testing.T) {
	collector := setupTelemetry(t)
	admitter := &stubAdmitter{admitted: map[string]bool{}, wait: 42 * time.Second}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("refused request must not reach the handler")
	})

	var gotWait time.Duration
	refuse := func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
		gotWait = retryAfter
		w.WriteHeader(http.StatusTooManyRequests)
	}

	body := strings.NewReader(`{"business_kind":"SME"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/credits", body)
	req.RemoteAddr = "192.0.2.11:4000"
	rec := httptest.NewRecorder()

	ClientIdentity(Admission(admitter, refuse)(next)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 42*time.Second, gotWait)

	remaining, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, `{"business_kind":"SME"}`, string(remaining))

	assert.Greater(t, collector.CountMetricsByName("throttle_refusals_total"), 0)
}

func TestAdmissionWithoutAdmitter(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	Admission(nil, nil)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/v1/credits", nil))
	assert.True(t, called)
}
