package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/creditgate/creditgate/internal/core"
	apperrors "github.com/creditgate/creditgate/internal/errors"
	"github.com/creditgate/creditgate/internal/observability"
	"github.com/creditgate/creditgate/internal/server/middleware"
)

// CreditsPath is the collection path, also used as the Location of created approvals.
const CreditsPath = "/v1/credits"

// maxCreditBodyBytes caps the request body; real requests are a few hundred bytes.
const maxCreditBodyBytes int64 = 64 << 10

// CreditService is the decision engine as seen by the HTTP layer.
type CreditService interface {
	Evaluate(ctx context.Context, identity string, raw core.RawCreditRequest) (*core.ApprovalRecord, error)
	Lookup(ctx context.Context, identity string) (*core.ApprovalRecord, error)
}

// CreditsHandler serves the credit line endpoints.
type CreditsHandler struct {
	service CreditService
}

// NewCreditsHandler creates the handler.
func NewCreditsHandler(service CreditService) *CreditsHandler {
	return &CreditsHandler{service: service}
}

// Create decides a credit line request for the calling identity. New approvals
// and replays both answer 201 with the stored record.
func (h *CreditsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var raw core.RawCreditRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCreditBodyBytes))
	if err := decoder.Decode(&raw); err != nil {
		message := "Request body must be a JSON credit request"
		if stderrors.Is(err, io.EOF) {
			message = "Request body is required"
		}
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, message))
		return
	}

	identity := middleware.GetClientIdentity(r.Context())
	record, err := h.service.Evaluate(r.Context(), identity, raw)
	if err != nil {
		respondWithError(w, r, apperrors.FromDecisionError(r.Context(), err))
		return
	}

	if observability.ServerLogger != nil {
		observability.ServerLogger.Debug("Credit request approved",
			zap.String("client", identity),
			zap.String("approval_id", record.ID))
	}

	w.Header().Set("Location", CreditsPath)
	writeJSON(w, http.StatusCreated, record)
}

// Get returns the calling identity's approval.
func (h *CreditsHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetClientIdentity(r.Context())
	record, err := h.service.Lookup(r.Context(), identity)
	if err != nil {
		respondWithError(w, r, apperrors.FromDecisionError(r.Context(), err))
		return
	}
	if record == nil {
		respondWithError(w, r, apperrors.NewNotFoundError("No credit line has been approved for this client"))
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
