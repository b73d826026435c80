package metrics

import (
	"github.com/creditgate/creditgate/internal/observability"
)

// Credit decision metrics
const (
	CreditDecisionsTotal   = "credit_decisions_total"
	CreditEscalationsTotal = "credit_escalations_total"
	ThrottleRefusalsTotal  = "throttle_refusals_total"
	ThrottleIdentities     = "throttle_tracked_identities"
	ThrottleSweepsTotal    = "throttle_sweeps_total"
	ThrottleLastSwept      = "throttle_last_swept_identities"
)

// Decision outcomes
const (
	OutcomeApproved         = "approved"
	OutcomeReplayed         = "replayed"
	OutcomeRejected         = "rejected"
	OutcomeInvalid          = "invalid"
	OutcomeAttemptsExceeded = "attempts_exceeded"
	OutcomeFault            = "fault"
)

// RecordDecision counts one Evaluate outcome.
func RecordDecision(outcome string) {
	count(CreditDecisionsTotal, map[string]string{"outcome": outcome})
}

// RecordEscalation counts a failure that exhausted the attempt budget.
func RecordEscalation() {
	count(CreditEscalationsTotal, nil)
}

// RecordThrottleRefusal counts a request refused at admission.
func RecordThrottleRefusal(route string) {
	count(ThrottleRefusalsTotal, map[string]string{"route": route})
}

// RecordThrottleSweep reports a janitor pass.
func RecordThrottleSweep(removed, remaining int) {
	if observability.TelemetrySystem == nil {
		return
	}
	count(ThrottleSweepsTotal, nil)
	_ = observability.TelemetrySystem.Gauge(ThrottleLastSwept, float64(removed), nil)
	_ = observability.TelemetrySystem.Gauge(ThrottleIdentities, float64(remaining), nil)
}
