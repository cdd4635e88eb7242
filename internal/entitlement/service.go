package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"clauselens/internal/types"
)

// Store is the persistence contract the service needs. Implemented by
// db.EntitlementRepo.
type Store interface {
	// GetOrCreate returns the user's record, inserting the canonical trial
	// default when no row exists. Idempotent.
	GetOrCreate(ctx context.Context, userID string) (*types.EntitlementRecord, error)

	// Update persists the record iff the stored version still equals
	// record.Version, incrementing the version on success. Returns an
	// AppError with ErrCodeConflictConcurrent when a concurrent writer won.
	Update(ctx context.Context, record *types.EntitlementRecord) error
}

// consumeMaxAttempts bounds the optimistic-concurrency retry loop. Two
// simultaneous requests at a quota boundary collide at most once per
// read-evaluate-write cycle, so a small bound suffices.
const consumeMaxAttempts = 3

// Service gates actions against the entitlement store. It closes the
// read-evaluate-write race with a version-guarded conditional update:
// quota is consumed before the gated action runs, and a stale write retries
// against a fresh read instead of double-spending the last unit.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time // injected for tests
}

// NewService creates an entitlement Service backed by the given store.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Consume evaluates the action for the user and, when allowed, persists the
// incremented counters before returning. The returned decision's Updated
// record reflects the state the caller should report.
//
// Failure policy: a denial is returned as data. Storage faults never deny a
// non-monetary action -- an unreadable record degrades to the trial default,
// and a write that still fails after retries is logged and swallowed
// (accepted quota-drift trade-off; the user keeps the result they were
// granted).
func (s *Service) Consume(ctx context.Context, userID string, action types.Action) (Decision, error) {
	for attempt := 1; ; attempt++ {
		record, err := s.store.GetOrCreate(ctx, userID)
		if err != nil {
			s.logger.Warn("entitlement read failed, using trial default",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
			record = types.DefaultEntitlement(userID)
		}

		decision := Evaluate(record, action, s.now())
		if !decision.Allowed {
			return decision, nil
		}

		err = s.store.Update(ctx, decision.Updated)
		if err == nil {
			return decision, nil
		}
		if isConcurrentConflict(err) && attempt < consumeMaxAttempts {
			continue
		}

		// Bookkeeping failure after the grant: log and continue.
		s.logger.Error("entitlement update failed, quota not recorded",
			slog.String("user_id", userID),
			slog.String("action", string(action)),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		return decision, nil
	}
}

// Current returns the user's record without consuming anything, defaulting
// to the trial record when the store has no row or is unavailable.
func (s *Service) Current(ctx context.Context, userID string) *types.EntitlementRecord {
	record, err := s.store.GetOrCreate(ctx, userID)
	if err != nil {
		s.logger.Warn("entitlement read failed, reporting trial default",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return types.DefaultEntitlement(userID)
	}
	return record
}

// CheckPlanTransition enforces the upgrade/downgrade rules at order-creation
// time, before any payment is attempted:
//   - pro_yearly subscribers may not purchase again (already_best_plan);
//   - pro_monthly subscribers may not re-purchase monthly
//     (no_upgrade_available) but may upgrade to yearly;
//   - non-pro subscribers may purchase any cycle.
func (s *Service) CheckPlanTransition(ctx context.Context, userID string, cycle types.BillingCycle) error {
	record := s.Current(ctx, userID)
	if record.PlanType != types.PlanPro {
		return nil
	}

	switch record.ProSubType {
	case types.ProSubYearly:
		return types.NewAppError(types.ErrCodeAlreadyBestPlan,
			"you already have a yearly Pro subscription; no further upgrades available", nil)
	case types.ProSubMonthly:
		if cycle == types.CycleMonth {
			return types.NewAppError(types.ErrCodeNoUpgradeAvailable,
				"you already have a monthly Pro subscription; you can only upgrade to yearly", nil)
		}
	}
	return nil
}

func isConcurrentConflict(err error) bool {
	var appErr *types.AppError
	return errors.As(err, &appErr) && appErr.Code == types.ErrCodeConflictConcurrent
}
