package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/creditgate/creditgate/internal/core/throttle"
	apperrors "github.com/creditgate/creditgate/internal/errors"
	"github.com/creditgate/creditgate/internal/observability"
)

// ThrottleAdmin is the slice of the throttle exposed to operators.
type ThrottleAdmin interface {
	Snapshot(identity string) (throttle.Snapshot, bool)
	ResetFailures(identity string)
}

// AdminHandler serves /admin/throttle.
type AdminHandler struct {
	throttle ThrottleAdmin
}

func NewAdminHandler(t ThrottleAdmin) *AdminHandler {
	return &AdminHandler{throttle: t}
}

// ThrottleState returns the tracked state for {identity}.
func (h *AdminHandler) ThrottleState(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityParam(w, r)
	if !ok {
		return
	}

	snapshot, found := h.throttle.Snapshot(identity)
	if !found {
		respondWithError(w, r, apperrors.NewNotFoundError("Identity is not tracked by the throttle"))
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// ResetThrottle clears the failure counter for {identity} so a blocked caller
// can try again without waiting for an approval.
func (h *AdminHandler) ResetThrottle(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityParam(w, r)
	if !ok {
		return
	}

	h.throttle.ResetFailures(identity)
	snapshot, _ := h.throttle.Snapshot(identity)

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Throttle failures reset by admin",
			zap.String("client", identity))
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func identityParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity := strings.TrimSpace(chi.URLParam(r, "identity"))
	if identity == "" {
		respondWithError(w, r, apperrors.NewInvalidInputError("identity is required"))
		return "", false
	}
	return identity, true
}
