package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BusinessKind identifies the applicant's business category.
type BusinessKind string

const (
	BusinessKindStartup BusinessKind = "STARTUP"
	BusinessKindSME     BusinessKind = "SME"
)

// ParseBusinessKind trims the value and matches it case-insensitively.
func ParseBusinessKind(value string) (BusinessKind, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	switch BusinessKind(normalized) {
	case BusinessKindStartup:
		return BusinessKindStartup, true
	case BusinessKindSME:
		return BusinessKindSME, true
	default:
		return "", false
	}
}

// ApprovalStatus is the status stamped on a persisted approval.
type ApprovalStatus string

// ApprovalStatusApproved is the only persisted status; rejections are never stored.
const ApprovalStatusApproved ApprovalStatus = "APPROVED"

// RawCreditRequest is the unvalidated request body.
type RawCreditRequest struct {
	BusinessKind    string           `json:"business_kind"`
	CashBalance     *decimal.Decimal `json:"cash_balance,omitempty"`
	MonthlyRevenue  *decimal.Decimal `json:"monthly_revenue,omitempty"`
	RequestedAmount *decimal.Decimal `json:"requested_amount,omitempty"`
	RequestedAt     *time.Time       `json:"requested_at,omitempty"`
}

// CreditRequest is a validated credit line request.
//
// CashBalance is only meaningful for startups and is zero otherwise.
type CreditRequest struct {
	BusinessKind    BusinessKind
	CashBalance     decimal.Decimal
	MonthlyRevenue  decimal.Decimal
	RequestedAmount decimal.Decimal
	RequestedAt     time.Time
}

// ApprovalRecord is the persisted outcome of an approved request.
type ApprovalRecord struct {
	ID             string          `json:"id" yaml:"id"`
	Status         ApprovalStatus  `json:"status" yaml:"status"`
	ApprovedAmount decimal.Decimal `json:"approved_amount" yaml:"approved_amount"`
	CreatedAt      time.Time       `json:"created_at" yaml:"created_at"`
}

// ApprovalEntry pairs an approval with the identity it belongs to.
type ApprovalEntry struct {
	Identity string         `json:"identity" yaml:"identity"`
	Record   ApprovalRecord `json:"approval" yaml:"approval"`
}

// CallerState is the per-identity throttle bookkeeping.
type CallerState struct {
	RecentRequests []time.Time
	BlockedSince   *time.Time
	FailedAttempts int
}
