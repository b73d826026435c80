package middleware

import (
	"net/http"
	"time"

	"github.com/creditgate/creditgate/internal/metrics"
)

// Admitter decides whether an identity may proceed.
type Admitter interface {
	IsAdmitted(identity string) bool
	RetryAfter(identity string) time.Duration
}

// RefuseFunc writes the response for a refused request.
type RefuseFunc func(w http.ResponseWriter, r *http.Request, retryAfter time.Duration)

// Admission consults the throttle before the handler runs. Refused requests
// never reach the handler and their body is never read.
func Admission(admitter Admitter, refuse RefuseFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if admitter == nil {
				next.ServeHTTP(w, r)
				return
			}

			identity := GetClientIdentity(r.Context())
			if admitter.IsAdmitted(identity) {
				next.ServeHTTP(w, r)
				return
			}

			metrics.RecordThrottleRefusal(EndpointPattern(r))
			refuse(w, r, admitter.RetryAfter(identity))
		})
	}
}
