// Package types defines the shared domain model for the ClauseLens service:
// entitlement records, payment orders, analysis results, and the error and
// context plumbing used across packages.
package types

import "time"

// PlanType is the billing tier of a user.
type PlanType string

const (
	PlanTrial PlanType = "trial"
	PlanBasic PlanType = "basic"
	PlanPro   PlanType = "pro"
)

// ProSubType distinguishes the pro billing cycles. It is meaningful only when
// PlanType is PlanPro; every other tier carries ProSubNone.
type ProSubType string

const (
	ProSubNone    ProSubType = ""
	ProSubMonthly ProSubType = "pro_monthly"
	ProSubYearly  ProSubType = "pro_yearly"
)

// BillingCycle is the requested payment cadence on an order.
type BillingCycle string

const (
	CycleMonth BillingCycle = "month"
	CycleYear  BillingCycle = "year"
)

// SubType returns the pro sub-type a cycle purchases.
func (c BillingCycle) SubType() ProSubType {
	if c == CycleYear {
		return ProSubYearly
	}
	return ProSubMonthly
}

// Action is a gated operation evaluated against a user's entitlement.
type Action string

const (
	ActionAnalyze  Action = "analyze"
	ActionDownload Action = "download"
)

// EntitlementRecord is the durable per-user entitlement state. Exactly one
// record exists per user (the store enforces upsert-by-user-id semantics);
// absent rows are synthesized as the trial default before evaluation.
//
// Version implements optimistic locking: every persisted mutation increments
// it, and conditional updates reject stale writers so concurrent requests at
// a quota boundary cannot both consume the last unit.
type EntitlementRecord struct {
	UserID string `json:"user_id"`

	PlanType   PlanType   `json:"plan_type"`
	ProSubType ProSubType `json:"pro_sub_type,omitempty"`

	// LifetimeAnalysisCount is incremented on every successful analysis
	// regardless of plan; trial and basic gating reads it directly.
	LifetimeAnalysisCount int `json:"lifetime_analysis_count"`

	// PeriodAnchor identifies the current billing period as an opaque token
	// ("2025-3" for monthly, "2025" for yearly). Empty when the plan has no
	// period concept. Tokens are compared for equality only; they are not
	// fixed-width and carry no calendar semantics.
	PeriodAnchor string `json:"period_anchor,omitempty"`

	// PeriodCount is the number of analyses consumed within PeriodAnchor.
	// Meaningful only for pro plans.
	PeriodCount int `json:"period_count"`

	Version   int64     `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DefaultEntitlement returns the canonical record synthesized for a user with
// no stored row: trial plan, all counters zero.
func DefaultEntitlement(userID string) *EntitlementRecord {
	return &EntitlementRecord{
		UserID:   userID,
		PlanType: PlanTrial,
	}
}

// IsPro reports whether the record is on a pro tier with a concrete sub-type.
func (r *EntitlementRecord) IsPro() bool {
	return r.PlanType == PlanPro && r.ProSubType != ProSubNone
}

// OrderStatus tracks a payment order through its lifecycle.
type OrderStatus string

const (
	OrderCreated   OrderStatus = "created"
	OrderCompleted OrderStatus = "completed"
)

// PaymentOrder is the local bookkeeping row for a gateway checkout order.
// It transitions to completed only after signature verification succeeds.
type PaymentOrder struct {
	OrderID      string       `json:"order_id"`
	UserID       string       `json:"user_id"`
	Plan         PlanType     `json:"plan"`
	BillingCycle BillingCycle `json:"billing_cycle"`
	Amount       int64        `json:"amount"`
	Currency     string       `json:"currency"`
	Status       OrderStatus  `json:"status"`
	PaymentID    string       `json:"payment_id,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Payment is the receipt row recorded after successful verification.
// Insertion is best-effort: the subscription is already active by the time
// this row is written.
type Payment struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	OrderID      string       `json:"order_id"`
	PaymentID    string       `json:"payment_id"`
	Amount       int64        `json:"amount"`
	Currency     string       `json:"currency"`
	Plan         PlanType     `json:"plan"`
	BillingCycle BillingCycle `json:"billing_cycle"`
	Status       string       `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`
}

// User is the minimal account record the service keeps alongside the
// identity provider's own state.
type User struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	SubscriptionPlan   PlanType  `json:"subscription_plan"`
	SubscriptionStatus string    `json:"subscription_status"`
	CreatedAt          time.Time `json:"created_at"`
}

// AnalysisResult is the structured output of the analysis provider. Risks is
// expected to lead with a risk-level token (LOW/MEDIUM/HIGH/CRITICAL) but is
// treated as best-effort text.
type AnalysisResult struct {
	Summary         string `json:"summary"`
	Risks           string `json:"risks"`
	Recommendations string `json:"recommendations"`
}

// Identity is the verified caller resolved by the identity provider from a
// bearer credential.
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
}
