package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"clauselens/internal/types"
)

// EntitlementRepo provides data access for the entitlements table.
//
// Key invariants:
//   - GetOrCreate is the single place default records are materialized, so
//     no caller duplicates the trial-default logic.
//   - Update uses optimistic locking via the version column: a writer that
//     read version N only wins if the row is still at N. This is what keeps
//     two concurrent requests at a quota boundary from both consuming the
//     last unit.
//   - Activate resets the lifetime counter and clears the period fields;
//     the next policy evaluation stamps a fresh period token.
type EntitlementRepo struct {
	db DBTX
}

// NewEntitlementRepo creates a new EntitlementRepo backed by the given
// database connection (pool or transaction).
func NewEntitlementRepo(db DBTX) *EntitlementRepo {
	return &EntitlementRepo{db: db}
}

// entitlementColumns is the standard column set for entitlement queries.
// Used consistently across all query methods to avoid column drift.
const entitlementColumns = `user_id, plan_type, pro_sub_type, lifetime_analysis_count,
	period_anchor, period_count, version, updated_at`

// scanEntitlement scans a single entitlement row. The columns must match the
// order defined in entitlementColumns. pro_sub_type and period_anchor may be
// NULL in the database.
func scanEntitlement(row pgx.Row) (*types.EntitlementRecord, error) {
	var rec types.EntitlementRecord
	var (
		proSubType   *string
		periodAnchor *string
	)
	err := row.Scan(
		&rec.UserID,
		&rec.PlanType,
		&proSubType,
		&rec.LifetimeAnalysisCount,
		&periodAnchor,
		&rec.PeriodCount,
		&rec.Version,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if proSubType != nil {
		rec.ProSubType = types.ProSubType(*proSubType)
	}
	if periodAnchor != nil {
		rec.PeriodAnchor = *periodAnchor
	}
	return &rec, nil
}

// GetOrCreate returns the entitlement record for the user, inserting the
// canonical trial default when no row exists. The insert uses ON CONFLICT
// DO NOTHING followed by a re-read so concurrent first requests converge on
// a single row.
func (r *EntitlementRepo) GetOrCreate(ctx context.Context, userID string) (*types.EntitlementRecord, error) {
	rec, err := r.get(ctx, userID)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load entitlement record", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO entitlements (user_id, plan_type, lifetime_analysis_count, period_count, version, updated_at)
		 VALUES ($1, $2, 0, 0, 1, NOW())
		 ON CONFLICT (user_id) DO NOTHING`,
		userID, types.PlanTrial,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create default entitlement record", err)
	}

	rec, err = r.get(ctx, userID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to re-read entitlement record after create", err)
	}
	return rec, nil
}

func (r *EntitlementRepo) get(ctx context.Context, userID string) (*types.EntitlementRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+entitlementColumns+` FROM entitlements WHERE user_id = $1`,
		userID,
	)
	return scanEntitlement(row)
}

// Update persists the record iff the stored version still equals
// record.Version. On success the stored version is incremented and the
// passed record's Version is advanced to match. A row that moved underneath
// the caller yields ErrCodeConflictConcurrent so the caller can re-read and
// retry.
//
// An upsert (rather than a bare UPDATE) covers the degraded path where the
// caller evaluated against a synthesized default because the earlier read
// failed: version 0 means "no row read", and the insert arm materializes it.
func (r *EntitlementRepo) Update(ctx context.Context, record *types.EntitlementRecord) error {
	if record.Version == 0 {
		return r.upsertUnversioned(ctx, record)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE entitlements
		 SET plan_type = $1,
		     pro_sub_type = NULLIF($2, ''),
		     lifetime_analysis_count = $3,
		     period_anchor = NULLIF($4, ''),
		     period_count = $5,
		     version = version + 1,
		     updated_at = NOW()
		 WHERE user_id = $6
		   AND version = $7`,
		record.PlanType,
		string(record.ProSubType),
		record.LifetimeAnalysisCount,
		record.PeriodAnchor,
		record.PeriodCount,
		record.UserID,
		record.Version,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update entitlement record", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeConflictConcurrent,
			"entitlement record modified concurrently", nil)
	}

	record.Version++
	record.UpdatedAt = time.Now().UTC()
	return nil
}

// upsertUnversioned writes a record that was synthesized without a stored
// row. Last write wins; this is the accepted best-effort path when the
// store was unreadable at evaluation time.
func (r *EntitlementRepo) upsertUnversioned(ctx context.Context, record *types.EntitlementRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO entitlements
		   (user_id, plan_type, pro_sub_type, lifetime_analysis_count, period_anchor, period_count, version, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, NULLIF($5, ''), $6, 1, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
		   plan_type = EXCLUDED.plan_type,
		   pro_sub_type = EXCLUDED.pro_sub_type,
		   lifetime_analysis_count = EXCLUDED.lifetime_analysis_count,
		   period_anchor = EXCLUDED.period_anchor,
		   period_count = EXCLUDED.period_count,
		   version = entitlements.version + 1,
		   updated_at = NOW()`,
		record.UserID,
		record.PlanType,
		string(record.ProSubType),
		record.LifetimeAnalysisCount,
		record.PeriodAnchor,
		record.PeriodCount,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert entitlement record", err)
	}
	return nil
}

// Activate transitions the user's entitlement to the purchased pro plan:
// plan_type becomes pro, pro_sub_type follows the billing cycle, the
// lifetime counter resets to zero, and the period fields are cleared so the
// next evaluation establishes a fresh anchor. Unlike quota consumption this
// write is unconditional -- payment-provider truth outranks any concurrent
// local mutation.
func (r *EntitlementRepo) Activate(ctx context.Context, userID string, sub types.ProSubType) (*types.EntitlementRecord, error) {
	row := r.db.QueryRow(ctx,
		`INSERT INTO entitlements
		   (user_id, plan_type, pro_sub_type, lifetime_analysis_count, period_anchor, period_count, version, updated_at)
		 VALUES ($1, $2, $3, 0, NULL, 0, 1, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
		   plan_type = EXCLUDED.plan_type,
		   pro_sub_type = EXCLUDED.pro_sub_type,
		   lifetime_analysis_count = 0,
		   period_anchor = NULL,
		   period_count = 0,
		   version = entitlements.version + 1,
		   updated_at = NOW()
		 RETURNING `+entitlementColumns,
		userID, types.PlanPro, string(sub),
	)
	rec, err := scanEntitlement(row)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to activate subscription", err)
	}
	return rec, nil
}
