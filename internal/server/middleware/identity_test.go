package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
)

func TestIdentityFromRemoteAddr(t *testing.T) {
	cases := map[string]string{
		"192.0.2.10:51234":   "192.0.2.10",
		"[2001:db8::1]:443":  "2001:db8::1",
		"198.51.100.7":       "198.51.100.7",
		"2001:db8::2":        "2001:db8::2",
		"[2001:db8::3]":      "2001:db8::3",
		"  203.0.113.9:80  ": "203.0.113.9",
	}
	for input, want := range cases {
		assert.Equal(t, want, identityFromRemoteAddr(input), "input %q", input)
	}
}

func captureIdentity(t *testing.T, handler func(http.Handler) http.Handler, req *http.Request) string {
	t.Helper()

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetClientIdentity(r.Context())
	})
	handler(next).ServeHTTP(httptest.NewRecorder(), req)
	return seen
}

func TestClientIdentityUsesRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/credits", nil)
	req.RemoteAddr = "192.0.2.10:51234"
	req.Header.Set("X-Forwarded-For", "10.0.0.1")

	assert.Equal(t, "192.0.2.10", captureIdentity(t, ClientIdentity, req))
}

func TestClientIdentityBehindRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/credits", nil)
	req.RemoteAddr = "192.0.2.10:51234"
	req.Header.Set("X-Forwarded-For", "10.0.0.1")

	chain := func(next http.Handler) http.Handler {
		return chimw.RealIP(ClientIdentity(next))
	}
	assert.Equal(t, "10.0.0.1", captureIdentity(t, chain, req))
}

func TestGetClientIdentityMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, GetClientIdentity(req.Context()))
}
