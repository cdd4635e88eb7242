// Package entitlement implements the usage-metering and entitlement engine:
// the pure quota policy evaluator, the billing-period rollover resolver, and
// the service that consumes quota against the durable store.
package entitlement

import (
	"fmt"
	"time"

	"clauselens/internal/types"
)

// PeriodToken identifies a billing window for periodic quota plans. Tokens
// are opaque: adjacent periods are distinguished purely by format equality
// ("2025-3" vs "2025-4"), never by elapsed duration, and consumers must not
// assume fixed width. The string form is also the serialized form stored in
// EntitlementRecord.PeriodAnchor.
type PeriodToken string

// String returns the serialized token.
func (t PeriodToken) String() string { return string(t) }

// CurrentPeriod derives the billing-period token for the given instant.
// Monthly subscriptions anchor on "{year}-{month}" (month unpadded), yearly
// on "{year}". Plans without a period concept yield the empty token.
func CurrentPeriod(sub types.ProSubType, now time.Time) PeriodToken {
	switch sub {
	case types.ProSubMonthly:
		return PeriodToken(fmt.Sprintf("%d-%d", now.Year(), int(now.Month())))
	case types.ProSubYearly:
		return PeriodToken(fmt.Sprintf("%d", now.Year()))
	default:
		return ""
	}
}

// ResolvePeriod normalizes a stored (anchor, count) pair for the current
// instant. When the stored anchor does not match the current token the
// period has rolled over and the count resets to zero. Deterministic, no
// side effects; both the analyze and download paths share it so their period
// semantics cannot drift apart.
func ResolvePeriod(sub types.ProSubType, anchor string, count int, now time.Time) (string, int) {
	token := CurrentPeriod(sub, now)
	if token == "" {
		return anchor, count
	}
	if anchor != token.String() {
		return token.String(), 0
	}
	return anchor, count
}
