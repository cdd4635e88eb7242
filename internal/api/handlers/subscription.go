package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"clauselens/internal/core"
	"clauselens/internal/types"
)

// SubscriptionResponse is the response for GET /v1/subscription. It defaults
// to trial/inactive when no record exists for the caller.
type SubscriptionResponse struct {
	Plan       types.PlanType   `json:"plan"`
	ProSubType types.ProSubType `json:"pro_sub_type,omitempty"`
	Status     string           `json:"status"`
}

// CreateUserRequest is the request body for POST /v1/users, called from the
// identity provider's sign-up flow before a session exists.
type CreateUserRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
}

// CreateUserResponse is the response for POST /v1/users.
type CreateUserResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SubscriptionHandler serves the caller's subscription snapshot and the
// idempotent user-record creation endpoint.
type SubscriptionHandler struct {
	gate      EntitlementGate
	users     UserStore
	validator *core.Validator
	logger    *slog.Logger
}

// NewSubscriptionHandler creates a SubscriptionHandler with the provided
// dependencies.
func NewSubscriptionHandler(gate EntitlementGate, users UserStore, v *core.Validator, l *slog.Logger) *SubscriptionHandler {
	if l == nil {
		l = slog.Default()
	}
	return &SubscriptionHandler{gate: gate, users: users, validator: v, logger: l}
}

// RegisterRoutes mounts the subscription and user endpoints on the v1 router.
func (h *SubscriptionHandler) RegisterRoutes(r chi.Router) {
	r.Get("/subscription", h.HandleGetSubscription)
	r.Post("/users", h.HandleCreateUser)
}

// HandleGetSubscription implements GET /v1/subscription.
func (h *SubscriptionHandler) HandleGetSubscription(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "user authentication required", nil))
		return
	}

	record := h.gate.Current(r.Context(), actor.UserID)

	status := "inactive"
	if record.IsPro() {
		status = "active"
	}

	core.JSON(w, r, http.StatusOK, SubscriptionResponse{
		Plan:       record.PlanType,
		ProSubType: record.ProSubType,
		Status:     status,
	})
}

// HandleCreateUser implements POST /v1/users. Creation is idempotent:
// an existing record is reported as success without modification.
func (h *SubscriptionHandler) HandleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.users.EnsureUser(r.Context(), req.UserID, req.Email); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, CreateUserResponse{
		Success: true,
		Message: "user record ready",
	})
}
