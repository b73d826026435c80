package engine

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/creditgate/creditgate/internal/core"
)

// Policy holds the affordability knobs.
type Policy struct {
	MaxAttempts         int
	CashBalanceRatio    decimal.Decimal
	MonthlyRevenueRatio decimal.Decimal
}

// DefaultPolicy matches the documented defaults.
var DefaultPolicy = Policy{
	MaxAttempts:         3,
	CashBalanceRatio:    decimal.NewFromInt(3),
	MonthlyRevenueRatio: decimal.NewFromInt(5),
}

// NewPolicy builds a policy from configuration values; non-positive values fall
// back to the defaults.
func NewPolicy(maxAttempts int, cashBalanceRatio, monthlyRevenueRatio float64) Policy {
	p := Policy{MaxAttempts: maxAttempts}
	if cashBalanceRatio > 0 {
		p.CashBalanceRatio = decimal.NewFromFloat(cashBalanceRatio)
	}
	if monthlyRevenueRatio > 0 {
		p.MonthlyRevenueRatio = decimal.NewFromFloat(monthlyRevenueRatio)
	}
	return p.withDefaults()
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if !p.CashBalanceRatio.IsPositive() {
		p.CashBalanceRatio = DefaultPolicy.CashBalanceRatio
	}
	if !p.MonthlyRevenueRatio.IsPositive() {
		p.MonthlyRevenueRatio = DefaultPolicy.MonthlyRevenueRatio
	}
	return p
}

// RecommendedAmount computes the largest affordable credit line.
//
// amount * (1/ratio) is evaluated as amount / ratio so that exact quotients stay
// exact (600 / 3 is 200, whereas 600 * 0.333... is not).
func RecommendedAmount(policy Policy, request core.CreditRequest) (decimal.Decimal, error) {
	policy = policy.withDefaults()
	revenueTerm := request.MonthlyRevenue.Div(policy.MonthlyRevenueRatio)

	switch request.BusinessKind {
	case core.BusinessKindSME:
		return revenueTerm, nil
	case core.BusinessKindStartup:
		cashTerm := request.CashBalance.Div(policy.CashBalanceRatio)
		return decimal.Max(cashTerm, revenueTerm), nil
	default:
		return decimal.Zero, fmt.Errorf("no affordability rule for business kind %q", request.BusinessKind)
	}
}

// Affordable reports whether the recommended amount covers the request. Equality
// approves.
func Affordable(recommended, requested decimal.Decimal) bool {
	return recommended.GreaterThanOrEqual(requested)
}
