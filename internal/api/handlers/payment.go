package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"clauselens/internal/core"
	"clauselens/internal/external"
	"clauselens/internal/types"
)

// --- Service Interfaces ---

// PaymentGateway abstracts the payment provider's order API and the local
// signature verification primitive. Implemented by external.GatewayClient.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount int64, currency string, notes map[string]string) (*external.GatewayOrder, error)
	VerifySignature(orderID, paymentID, signature string) bool
	KeyID() string
}

// OrderStore is the bookkeeping contract for payment orders and receipts.
// Implemented by db.OrderRepo.
type OrderStore interface {
	Create(ctx context.Context, order *types.PaymentOrder) error
	GetByID(ctx context.Context, orderID string) (*types.PaymentOrder, error)
	MarkCompleted(ctx context.Context, orderID, paymentID string) error
	RecordPayment(ctx context.Context, p *types.Payment) error
}

// SubscriptionActivator transitions an entitlement record to the purchased
// plan. Implemented by db.EntitlementRepo.
type SubscriptionActivator interface {
	Activate(ctx context.Context, userID string, sub types.ProSubType) (*types.EntitlementRecord, error)
}

// PlanTransitionChecker enforces the upgrade/downgrade rules before an
// order may even be created. Implemented by entitlement.Service.
type PlanTransitionChecker interface {
	CheckPlanTransition(ctx context.Context, userID string, cycle types.BillingCycle) error
}

// UserStore provides idempotent user-record creation. Implemented by
// db.UserRepo.
type UserStore interface {
	EnsureUser(ctx context.Context, id, email string) error
}

// --- Pricing ---

// Pro plan pricing in minor currency units (paise).
const (
	proMonthlyAmount = 9900  // Rs 99
	proYearlyAmount  = 99900 // Rs 999
	orderCurrency    = "INR"
)

// planAmount returns the charge for a pro billing cycle.
func planAmount(cycle types.BillingCycle) int64 {
	if cycle == types.CycleYear {
		return proYearlyAmount
	}
	return proMonthlyAmount
}

// --- Request/Response Models ---

// CreatePaymentRequest is the request body for POST /v1/payment/create.
// Only the pro plan is purchasable.
type CreatePaymentRequest struct {
	Plan         string `json:"plan" validate:"required,oneof=pro"`
	BillingCycle string `json:"billing_cycle" validate:"required,oneof=month year"`
}

// CreatePaymentResponse is the response for POST /v1/payment/create. KeyID
// is the gateway's public key the frontend checkout widget needs.
type CreatePaymentResponse struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	KeyID    string `json:"key_id"`
}

// VerifyPaymentRequest is the request body for POST /v1/payment/verify.
type VerifyPaymentRequest struct {
	OrderID   string `json:"order_id" validate:"required"`
	PaymentID string `json:"payment_id" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// VerifyPaymentResponse is the response for POST /v1/payment/verify.
type VerifyPaymentResponse struct {
	Success      bool                `json:"success"`
	Message      string              `json:"message"`
	Subscription SubscriptionSummary `json:"subscription"`
}

// SubscriptionSummary reports the activated subscription.
type SubscriptionSummary struct {
	Plan         types.PlanType     `json:"plan"`
	BillingCycle types.BillingCycle `json:"billing_cycle"`
	ExpiresAt    time.Time          `json:"expires_at"`
}

// --- Handler ---

// PaymentHandler implements the order-creation and verification flow.
//
// Failure semantics follow a single principle: payment-provider truth
// outranks local bookkeeping. Signature mismatch and missing orders are
// hard rejects with no state mutated; once the gateway has accepted a
// payment, local write failures around the activation itself are logged and
// swallowed rather than surfaced.
type PaymentHandler struct {
	gateway     PaymentGateway
	orders      OrderStore
	activator   SubscriptionActivator
	transitions PlanTransitionChecker
	users       UserStore
	validator   *core.Validator
	logger      *slog.Logger
	now         func() time.Time // injected for tests
}

// NewPaymentHandler creates a PaymentHandler with the provided dependencies.
func NewPaymentHandler(
	gateway PaymentGateway,
	orders OrderStore,
	activator SubscriptionActivator,
	transitions PlanTransitionChecker,
	users UserStore,
	v *core.Validator,
	l *slog.Logger,
) *PaymentHandler {
	if l == nil {
		l = slog.Default()
	}
	return &PaymentHandler{
		gateway:     gateway,
		orders:      orders,
		activator:   activator,
		transitions: transitions,
		users:       users,
		validator:   v,
		logger:      l,
		now:         time.Now,
	}
}

// RegisterRoutes mounts the payment endpoints on the v1 router.
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/payment", func(r chi.Router) {
		r.Post("/create", h.HandleCreate)
		r.Post("/verify", h.HandleVerify)
	})
}

// HandleCreate implements POST /v1/payment/create. Plan-transition rules
// are enforced here, before any order exists: a yearly subscriber cannot
// purchase again, a monthly subscriber can only upgrade to yearly.
func (h *PaymentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "user authentication required", nil))
		return
	}

	var req CreatePaymentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		core.Error(w, r, err)
		return
	}
	cycle := types.BillingCycle(req.BillingCycle)

	if err := h.transitions.CheckPlanTransition(r.Context(), actor.UserID, cycle); err != nil {
		core.Error(w, r, err)
		return
	}

	// Best-effort: the user row is bookkeeping, not a precondition for
	// taking payment.
	if err := h.users.EnsureUser(r.Context(), actor.UserID, actor.Email); err != nil {
		h.logger.Warn("could not ensure user record before payment",
			slog.String("user_id", actor.UserID),
			slog.String("error", err.Error()),
		)
	}

	amount := planAmount(cycle)
	order, err := h.gateway.CreateOrder(r.Context(), amount, orderCurrency, map[string]string{
		"user_id":       actor.UserID,
		"plan":          req.Plan,
		"billing_cycle": req.BillingCycle,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	// Best-effort: the order exists at the gateway regardless of whether
	// the local row lands. Verification will 404 if it is missing, which is
	// the accepted trade-off.
	if err := h.orders.Create(r.Context(), &types.PaymentOrder{
		OrderID:      order.ID,
		UserID:       actor.UserID,
		Plan:         types.PlanType(req.Plan),
		BillingCycle: cycle,
		Amount:       amount,
		Currency:     orderCurrency,
	}); err != nil {
		h.logger.Error("could not store payment order",
			slog.String("order_id", order.ID),
			slog.String("user_id", actor.UserID),
			slog.String("error", err.Error()),
		)
	}

	core.JSON(w, r, http.StatusOK, CreatePaymentResponse{
		OrderID:  order.ID,
		Amount:   amount,
		Currency: orderCurrency,
		KeyID:    h.gateway.KeyID(),
	})
}

// HandleVerify implements POST /v1/payment/verify: check the HMAC signature
// first (rejected regardless of whether the order exists), load the order,
// activate the subscription, then record the receipt.
func (h *PaymentHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyPaymentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		core.Error(w, r, err)
		return
	}

	if !h.gateway.VerifySignature(req.OrderID, req.PaymentID, req.Signature) {
		core.Error(w, r, types.NewAppError(types.ErrCodePaymentSignatureInvalid, "invalid payment signature", nil))
		return
	}

	order, err := h.orders.GetByID(r.Context(), req.OrderID)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	// Best-effort from here until activation: the gateway accepted the
	// payment, so local bookkeeping failures must not fail the user.
	if err := h.orders.MarkCompleted(r.Context(), req.OrderID, req.PaymentID); err != nil {
		h.logger.Error("could not mark payment order completed",
			slog.String("order_id", req.OrderID),
			slog.String("error", err.Error()),
		)
	}
	if err := h.users.EnsureUser(r.Context(), order.UserID, ""); err != nil {
		h.logger.Warn("could not ensure user record during verification",
			slog.String("user_id", order.UserID),
			slog.String("error", err.Error()),
		)
	}

	// Activation is the one local write that must succeed: without it the
	// user paid for a plan they do not have.
	if _, err := h.activator.Activate(r.Context(), order.UserID, order.BillingCycle.SubType()); err != nil {
		h.logger.Error("subscription activation failed",
			slog.String("order_id", req.OrderID),
			slog.String("user_id", order.UserID),
			slog.String("error", err.Error()),
		)
		core.Error(w, r, types.NewAppError(types.ErrCodeActivationFailed, "failed to activate subscription", err))
		return
	}

	if err := h.orders.RecordPayment(r.Context(), &types.Payment{
		UserID:       order.UserID,
		OrderID:      req.OrderID,
		PaymentID:    req.PaymentID,
		Amount:       order.Amount,
		Currency:     order.Currency,
		Plan:         order.Plan,
		BillingCycle: order.BillingCycle,
		Status:       "success",
	}); err != nil {
		h.logger.Warn("could not record payment receipt",
			slog.String("order_id", req.OrderID),
			slog.String("error", err.Error()),
		)
	}

	core.JSON(w, r, http.StatusOK, VerifyPaymentResponse{
		Success: true,
		Message: "payment verified and subscription activated",
		Subscription: SubscriptionSummary{
			Plan:         order.Plan,
			BillingCycle: order.BillingCycle,
			ExpiresAt:    subscriptionExpiry(h.now(), order.BillingCycle),
		},
	})
}

// subscriptionExpiry computes the subscription end date for the response.
// Quota enforcement itself never reads this; period tokens are the source
// of truth for metering.
func subscriptionExpiry(now time.Time, cycle types.BillingCycle) time.Time {
	if cycle == types.CycleYear {
		return now.AddDate(1, 0, 0)
	}
	return now.AddDate(0, 1, 0)
}
