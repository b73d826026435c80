package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/creditgate/creditgate/internal/core"
	"github.com/creditgate/creditgate/internal/core/throttle"
	"github.com/creditgate/creditgate/internal/metrics"
)

// ApprovalStore persists at most one approval per identity.
type ApprovalStore interface {
	// Get returns nil, nil when the identity has no approval.
	Get(ctx context.Context, identity string) (*core.ApprovalRecord, error)
	// Put stores record unless one exists already, and returns whichever record
	// is stored afterwards.
	Put(ctx context.Context, identity string, record core.ApprovalRecord) (*core.ApprovalRecord, error)
}

// FailureTracker is the part of the throttle the engine drives.
type FailureTracker interface {
	RecordFailure(identity string) error
	ResetFailures(identity string)
	CurrentFailureCount(identity string) int
}

// Engine decides credit requests.
type Engine struct {
	Throttle  FailureTracker
	Store     ApprovalStore
	Validator Validator
	Policy    Policy
	Logger    *logging.Logger
	NewID     func() string

	policyMu sync.RWMutex
	inFlight identityLocks
}

// New wires an engine with the default validator.
func New(tracker FailureTracker, store ApprovalStore, policy Policy) *Engine {
	return &Engine{
		Throttle:  tracker,
		Store:     store,
		Validator: RequestValidator{},
		Policy:    policy.withDefaults(),
	}
}

// Evaluate decides raw on behalf of identity.
//
// Identities at or over the attempt budget get core.ErrAttemptsExceeded without
// touching the store. An existing approval is replayed unchanged. Validation
// failures are returned as-is and not counted. Rejections count one failure and
// turn into core.ErrAttemptsExceeded when that failure exhausts the budget.
// Store faults are wrapped and never counted. Evaluations for the same identity
// run one at a time, so the attempts check and the final record or reset act as
// a single step.
func (e *Engine) Evaluate(ctx context.Context, identity string, raw core.RawCreditRequest) (*core.ApprovalRecord, error) {
	if e == nil || e.Store == nil || e.Throttle == nil {
		return nil, errors.New("decision engine not configured")
	}
	policy := e.CurrentPolicy()

	unlock := e.inFlight.lock(identity)
	defer unlock()

	if count := e.Throttle.CurrentFailureCount(identity); count >= policy.MaxAttempts {
		e.debug("credit request refused, attempts exhausted",
			zap.String("identity", identity), zap.Int("failures", count))
		metrics.RecordDecision(metrics.OutcomeAttemptsExceeded)
		return nil, core.ErrAttemptsExceeded
	}

	existing, err := e.Store.Get(ctx, identity)
	if err != nil {
		metrics.RecordDecision(metrics.OutcomeFault)
		return nil, fmt.Errorf("lookup approval: %w", err)
	}
	if existing != nil {
		e.debug("replaying approval", zap.String("identity", identity), zap.String("id", existing.ID))
		metrics.RecordDecision(metrics.OutcomeReplayed)
		return existing, nil
	}

	request, err := e.validator().Validate(raw)
	if err != nil {
		metrics.RecordDecision(metrics.OutcomeInvalid)
		return nil, err
	}

	recommended, err := RecommendedAmount(policy, request)
	if err != nil {
		return nil, e.fail(identity, err)
	}
	if !Affordable(recommended, request.RequestedAmount) {
		return nil, e.fail(identity, &core.RejectedError{
			Requested:   request.RequestedAmount,
			Recommended: recommended,
		})
	}

	record := core.ApprovalRecord{
		ID:             e.newID(),
		Status:         core.ApprovalStatusApproved,
		ApprovedAmount: request.RequestedAmount,
		CreatedAt:      request.RequestedAt.UTC(),
	}
	stored, err := e.Store.Put(ctx, identity, record)
	if err != nil {
		metrics.RecordDecision(metrics.OutcomeFault)
		return nil, fmt.Errorf("persist approval: %w", err)
	}
	e.Throttle.ResetFailures(identity)

	e.info("credit line approved",
		zap.String("identity", identity),
		zap.String("id", stored.ID),
		zap.String("approved_amount", stored.ApprovedAmount.String()),
		zap.String("business_kind", string(request.BusinessKind)))
	metrics.RecordDecision(metrics.OutcomeApproved)
	return stored, nil
}

// SetPolicy swaps the policy used by subsequent evaluations.
func (e *Engine) SetPolicy(policy Policy) {
	e.policyMu.Lock()
	defer e.policyMu.Unlock()
	e.Policy = policy.withDefaults()
}

// CurrentPolicy returns the effective policy.
func (e *Engine) CurrentPolicy() Policy {
	e.policyMu.RLock()
	defer e.policyMu.RUnlock()
	return e.Policy.withDefaults()
}

// Lookup returns the approval stored for identity, or nil.
func (e *Engine) Lookup(ctx context.Context, identity string) (*core.ApprovalRecord, error) {
	if e == nil || e.Store == nil {
		return nil, errors.New("decision engine not configured")
	}
	record, err := e.Store.Get(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("lookup approval: %w", err)
	}
	return record, nil
}

// fail counts one failure for identity and maps escalation onto
// core.ErrAttemptsExceeded.
func (e *Engine) fail(identity string, cause error) error {
	if errors.Is(e.Throttle.RecordFailure(identity), throttle.ErrBlocked) {
		e.warn("credit attempts exhausted",
			zap.String("identity", identity), zap.Error(cause))
		metrics.RecordEscalation()
		metrics.RecordDecision(metrics.OutcomeAttemptsExceeded)
		return core.ErrAttemptsExceeded
	}

	e.info("credit request rejected", zap.String("identity", identity), zap.Error(cause))
	metrics.RecordDecision(metrics.OutcomeRejected)
	return cause
}

func (e *Engine) validator() Validator {
	if e.Validator != nil {
		return e.Validator
	}
	return RequestValidator{}
}

func (e *Engine) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e *Engine) info(msg string, fields ...zap.Field) {
	if e.Logger != nil {
		e.Logger.Info(msg, fields...)
	}
}

func (e *Engine) warn(msg string, fields ...zap.Field) {
	if e.Logger != nil {
		e.Logger.Warn(msg, fields...)
	}
}

func (e *Engine) debug(msg string, fields ...zap.Field) {
	if e.Logger != nil {
		e.Logger.Debug(msg, fields...)
	}
}
