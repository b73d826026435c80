package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// AuthFailure identifies why BearerAuth refused a request.
type AuthFailure int

const (
	AuthMissing AuthFailure = iota
	AuthInvalid
	AuthRateLimited
)

// BearerAuth guards admin routes with a static token and a shared token-bucket
// limiter. Rate limiting runs before the token check so guessing is throttled
// too.
func BearerAuth(token string, limiter *rate.Limiter, fail func(w http.ResponseWriter, r *http.Request, reason AuthFailure)) func(http.Handler) http.Handler {
	expected := []byte(token)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && !limiter.Allow() {
				fail(w, r, AuthRateLimited)
				return
			}

			header := r.Header.Get("Authorization")
			scheme, presented, ok := strings.Cut(header, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(presented) == "" {
				fail(w, r, AuthMissing)
				return
			}

			if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(presented)), expected) != 1 {
				fail(w, r, AuthInvalid)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
