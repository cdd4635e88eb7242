package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"clauselens/internal/types"
)

// UserRepo provides data access for the users table. The service keeps only
// a thin account record beside the identity provider's own state; creation
// is idempotent and defaults new accounts to trial/inactive.
type UserRepo struct {
	db DBTX
}

// NewUserRepo creates a new UserRepo backed by the given database connection
// (pool or transaction).
func NewUserRepo(db DBTX) *UserRepo {
	return &UserRepo{db: db}
}

// EnsureUser inserts the user record if it does not already exist.
// Existing rows are left untouched (the email on file is not overwritten).
func (r *UserRepo) EnsureUser(ctx context.Context, id, email string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (id, email, subscription_plan, subscription_status, created_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (id) DO NOTHING`,
		id, email, types.PlanTrial, "inactive",
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create user record", err)
	}
	return nil
}

// GetByID returns the user with the given identifier, or
// ErrCodeAuthUserNotFound when no row exists.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*types.User, error) {
	var u types.User
	err := r.db.QueryRow(ctx,
		`SELECT id, email, subscription_plan, subscription_status, created_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.Email, &u.SubscriptionPlan, &u.SubscriptionStatus, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeAuthUserNotFound, "user not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load user", err)
	}
	return &u, nil
}
