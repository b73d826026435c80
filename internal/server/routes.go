package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/creditgate/creditgate/internal/errors"
	"github.com/creditgate/creditgate/internal/observability"
	"github.com/creditgate/creditgate/internal/server/handlers"
	servermw "github.com/creditgate/creditgate/internal/server/middleware"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	health := s.deps.Health
	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", NewMetricsHandler(s.metricsPort))

	if s.deps.Credits != nil {
		credits := handlers.NewCreditsHandler(s.deps.Credits)

		var admitter servermw.Admitter
		if s.deps.Throttle != nil {
			admitter = s.deps.Throttle
		}
		s.router.With(servermw.Admission(admitter, refuseRateLimited)).Post(handlers.CreditsPath, credits.Create)
		s.router.Get(handlers.CreditsPath, credits.Get)
	}

	s.registerAdminRoutes()
}

// refuseRateLimited answers a throttled caller.
func refuseRateLimited(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(apperrors.RetryAfterSeconds(retryAfter)))
	HandleError(w, r, apperrors.NewRateLimitedError(retryAfter))
}

// registerAdminRoutes mounts /admin when an admin token is configured.
func (s *Server) registerAdminRoutes() {
	logger := observability.ServerLogger

	if !s.admin.Enabled() {
		if logger != nil {
			logger.Debug("Admin endpoints disabled (no CREDITGATE_ADMIN_TOKEN set)")
		}
		return
	}

	limiter := rate.NewLimiter(rate.Limit(s.admin.RateLimit), s.admin.RateBurst)
	auth := servermw.BearerAuth(s.admin.Token, limiter, refuseAdmin)

	signalHandler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: s.admin.Token,
		RateLimit: 10, // per minute
		RateBurst: 5,
		Manager:   nil, // default global manager
	})

	s.router.Route("/admin", func(r chi.Router) {
		r.Post("/signal", signalHandler.ServeHTTP)

		if s.deps.Throttle == nil {
			return
		}
		admin := handlers.NewAdminHandler(s.deps.Throttle)
		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Get("/throttle/{identity}", admin.ThrottleState)
			r.Post("/throttle/{identity}/reset", admin.ResetThrottle)
		})
	})

	if logger != nil {
		logger.Info("Admin endpoints enabled",
			zap.Strings("paths", []string{"/admin/signal", "/admin/throttle/{identity}"}),
			zap.String("auth", "bearer token"),
			zap.Float64("rate_limit_per_second", s.admin.RateLimit),
			zap.Int("rate_burst", s.admin.RateBurst))
		logger.Warn("Admin endpoints enabled - ensure this server is not exposed to public internet")
	}
}

func refuseAdmin(w http.ResponseWriter, r *http.Request, reason servermw.AuthFailure) {
	if reason == servermw.AuthRateLimited {
		refuseRateLimited(w, r, time.Second)
		return
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="creditgate-admin"`)
	HandleError(w, r, apperrors.NewUnauthorizedError("A valid admin bearer token is required"))
}
