package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"clauselens/internal/types"
)

// OrderRepo provides data access for the payment_orders and payments tables.
// Orders are created when a checkout order is requested and transition to
// completed only after signature verification succeeds.
type OrderRepo struct {
	db DBTX
}

// NewOrderRepo creates a new OrderRepo backed by the given database
// connection (pool or transaction).
func NewOrderRepo(db DBTX) *OrderRepo {
	return &OrderRepo{db: db}
}

const orderColumns = `order_id, user_id, plan, billing_cycle, amount, currency, status, payment_id, created_at, updated_at`

func scanOrder(row pgx.Row) (*types.PaymentOrder, error) {
	var o types.PaymentOrder
	var paymentID *string
	err := row.Scan(
		&o.OrderID,
		&o.UserID,
		&o.Plan,
		&o.BillingCycle,
		&o.Amount,
		&o.Currency,
		&o.Status,
		&paymentID,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if paymentID != nil {
		o.PaymentID = *paymentID
	}
	return &o, nil
}

// Create inserts a new order row with status created.
func (r *OrderRepo) Create(ctx context.Context, order *types.PaymentOrder) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO payment_orders
		   (order_id, user_id, plan, billing_cycle, amount, currency, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`,
		order.OrderID,
		order.UserID,
		order.Plan,
		order.BillingCycle,
		order.Amount,
		order.Currency,
		types.OrderCreated,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store payment order", err)
	}
	return nil
}

// GetByID returns the order with the given gateway order identifier.
// Returns ErrCodeOrderNotFound when no row exists.
func (r *OrderRepo) GetByID(ctx context.Context, orderID string) (*types.PaymentOrder, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM payment_orders WHERE order_id = $1`,
		orderID,
	)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeOrderNotFound, "payment order not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load payment order", err)
	}
	return order, nil
}

// MarkCompleted transitions the order to completed, recording the gateway
// payment identifier.
func (r *OrderRepo) MarkCompleted(ctx context.Context, orderID, paymentID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE payment_orders
		 SET status = $1, payment_id = $2, updated_at = NOW()
		 WHERE order_id = $3`,
		types.OrderCompleted, paymentID, orderID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark payment order completed", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeOrderNotFound, "payment order not found", nil)
	}
	return nil
}

// RecordPayment inserts the payment receipt row. Callers treat failures as
// best-effort bookkeeping: the subscription is already active by the time
// this runs.
func (r *OrderRepo) RecordPayment(ctx context.Context, p *types.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO payments
		   (id, user_id, order_id, payment_id, amount, currency, plan, billing_cycle, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())`,
		p.ID,
		p.UserID,
		p.OrderID,
		p.PaymentID,
		p.Amount,
		p.Currency,
		p.Plan,
		p.BillingCycle,
		p.Status,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record payment", err)
	}
	return nil
}
