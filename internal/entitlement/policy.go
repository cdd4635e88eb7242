package entitlement

import (
	"time"

	"clauselens/internal/types"
)

// Plan quota ceilings.
const (
	// TrialLimit is the lifetime analysis allowance for trial accounts.
	TrialLimit = 1

	// BasicLimit is the analysis allowance for basic accounts. The observed
	// system meters basic against the lifetime counter exactly like trial
	// (no monthly reset); that literal behavior is preserved here and pinned
	// by tests. The deny reason remains monthly_limit_reached.
	BasicLimit = 1

	// ProMonthlyLimit and ProYearlyLimit are per-period analysis ceilings.
	ProMonthlyLimit = 30
	ProYearlyLimit  = 4000
)

// Decision is the outcome of evaluating a gated action against a record.
// Exactly one of Allowed/Reason is meaningful: an allowed decision carries
// the updated record to persist, a denied one carries the machine-readable
// reason the caller uses to drive the upgrade prompt.
type Decision struct {
	Allowed bool
	Reason  types.ErrorCode

	// Updated is the post-consumption record state. Only set when Allowed.
	Updated *types.EntitlementRecord
}

// Allow builds an allowing decision carrying the updated record.
func Allow(updated *types.EntitlementRecord) Decision {
	return Decision{Allowed: true, Updated: updated}
}

// Deny builds a denying decision with the given reason. No counter effect.
func Deny(reason types.ErrorCode) Decision {
	return Decision{Reason: reason}
}

// PlanLimit returns the per-period ceiling for a pro sub-type.
func PlanLimit(sub types.ProSubType) int {
	switch sub {
	case types.ProSubMonthly:
		return ProMonthlyLimit
	case types.ProSubYearly:
		return ProYearlyLimit
	default:
		return 0
	}
}

// Evaluate is the pure quota policy: it maps (record, action, now) to a
// Decision without touching storage or failing. The input record is never
// mutated; allowed decisions carry a copy with counters advanced for the
// next persisted state.
//
// Rules, in order:
//   - download requires a pro plan; basic and trial deny with plan_required.
//   - trial and basic analyze against the lifetime counter.
//   - pro resolves the current period token first (rollover resets the
//     period count), then checks the per-period ceiling; both analyze and
//     download consume the same pro counters.
func Evaluate(record *types.EntitlementRecord, action types.Action, now time.Time) Decision {
	if record == nil {
		return Deny(types.ErrCodeInternalUnexpected)
	}

	if action == types.ActionDownload && record.PlanType != types.PlanPro {
		return Deny(types.ErrCodePlanRequired)
	}

	switch record.PlanType {
	case types.PlanTrial:
		if record.LifetimeAnalysisCount >= TrialLimit {
			return Deny(types.ErrCodeTrialExhausted)
		}
		updated := *record
		updated.LifetimeAnalysisCount++
		return Allow(&updated)

	case types.PlanBasic:
		if record.LifetimeAnalysisCount >= BasicLimit {
			return Deny(types.ErrCodeMonthlyLimitReached)
		}
		updated := *record
		updated.LifetimeAnalysisCount++
		return Allow(&updated)

	case types.PlanPro:
		anchor, count := ResolvePeriod(record.ProSubType, record.PeriodAnchor, record.PeriodCount, now)
		limit := PlanLimit(record.ProSubType)
		if limit > 0 && count >= limit {
			return Deny(types.ErrCodeProLimitReached)
		}
		updated := *record
		updated.PeriodAnchor = anchor
		updated.PeriodCount = count + 1
		if action == types.ActionAnalyze {
			updated.LifetimeAnalysisCount++
		}
		return Allow(&updated)

	default:
		// Unknown tiers fall back to the trial rule rather than erroring;
		// absence-as-default is the store's contract too.
		if record.LifetimeAnalysisCount >= TrialLimit {
			return Deny(types.ErrCodeTrialExhausted)
		}
		updated := *record
		updated.LifetimeAnalysisCount++
		return Allow(&updated)
	}
}

// Remaining reports the analyses left after an allowed decision, mirroring
// the API's remaining_analyses field: trial and basic are exhausted after
// their single run, pro reports the per-period headroom.
func Remaining(updated *types.EntitlementRecord) int {
	if updated == nil {
		return 0
	}
	if updated.PlanType != types.PlanPro {
		return 0
	}
	limit := PlanLimit(updated.ProSubType)
	if limit <= 0 {
		return 0
	}
	if remaining := limit - updated.PeriodCount; remaining > 0 {
		return remaining
	}
	return 0
}
