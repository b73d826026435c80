package engine

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/creditgate/creditgate/internal/core"
)

// Validator turns a raw request into a validated one.
type Validator interface {
	Validate(raw core.RawCreditRequest) (core.CreditRequest, error)
}

// RequestValidator is the default Validator.
type RequestValidator struct {
	Clock func() time.Time
}

// Validate normalizes the business kind, defaults requested_at to now (UTC) and
// enforces the field rules. Failures are *core.ValidationError.
func (v RequestValidator) Validate(raw core.RawCreditRequest) (core.CreditRequest, error) {
	kindValue := strings.TrimSpace(raw.BusinessKind)
	if kindValue == "" {
		return core.CreditRequest{}, core.NewValidationError("business_kind", "is required")
	}
	kind, ok := core.ParseBusinessKind(kindValue)
	if !ok {
		return core.CreditRequest{}, core.NewValidationError("business_kind", "is not a valid type")
	}

	if raw.MonthlyRevenue == nil {
		return core.CreditRequest{}, core.NewValidationError("monthly_revenue", "is required")
	}
	if raw.MonthlyRevenue.IsNegative() {
		return core.CreditRequest{}, core.NewValidationError("monthly_revenue", "must be greater than or equal to 0")
	}

	if raw.RequestedAmount == nil {
		return core.CreditRequest{}, core.NewValidationError("requested_amount", "is required")
	}
	if !raw.RequestedAmount.IsPositive() {
		return core.CreditRequest{}, core.NewValidationError("requested_amount", "must be greater than 0")
	}

	cash := decimal.Zero
	if kind == core.BusinessKindStartup {
		if raw.CashBalance == nil {
			return core.CreditRequest{}, core.NewValidationError("cash_balance", "is required")
		}
		if raw.CashBalance.IsNegative() {
			return core.CreditRequest{}, core.NewValidationError("cash_balance", "must be greater than or equal to 0")
		}
		cash = *raw.CashBalance
	}

	requestedAt := v.now()
	if raw.RequestedAt != nil && !raw.RequestedAt.IsZero() {
		requestedAt = raw.RequestedAt.UTC()
	}

	return core.CreditRequest{
		BusinessKind:    kind,
		CashBalance:     cash,
		MonthlyRevenue:  *raw.MonthlyRevenue,
		RequestedAmount: *raw.RequestedAmount,
		RequestedAt:     requestedAt,
	}, nil
}

func (v RequestValidator) now() time.Time {
	if v.Clock != nil {
		return v.Clock().UTC()
	}
	return time.Now().UTC()
}
