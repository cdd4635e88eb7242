// Package handlers contains the HTTP handler implementations for the
// ClauseLens API: the gated analyze and download actions, the payment
// create/verify flow, and the subscription/user endpoints.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"clauselens/internal/core"
	"clauselens/internal/entitlement"
	"clauselens/internal/external"
	"clauselens/internal/types"
)

// --- Service Interfaces ---
//
// Service contracts are defined locally in the handler file and injected via
// the constructor. This avoids coupling to concrete types and enables test
// mocking.

// EntitlementGate meters gated actions against the entitlement store.
// Implemented by entitlement.Service.
type EntitlementGate interface {
	// Consume evaluates and, when allowed, durably consumes quota for the
	// action before it is performed. Denials come back as data.
	Consume(ctx context.Context, userID string, action types.Action) (entitlement.Decision, error)

	// Current returns the user's record without consuming anything.
	Current(ctx context.Context, userID string) *types.EntitlementRecord
}

// Analyzer produces a structured analysis for a document.
// Implemented by external.AnalysisClient and external.FallbackProvider.
type Analyzer interface {
	Analyze(ctx context.Context, documentText string) (*types.AnalysisResult, error)
}

// --- Request/Response Models ---

// AnalyzeRequest is the request body for POST /v1/analyze.
type AnalyzeRequest struct {
	DocumentText string `json:"document_text" validate:"required"`
}

// AnalyzeResponse is the response for POST /v1/analyze.
type AnalyzeResponse struct {
	Analysis          *types.AnalysisResult `json:"analysis"`
	RemainingAnalyses int                   `json:"remaining_analyses"`
}

// --- Handler ---

// AnalyzeHandler gates document analysis behind the entitlement engine:
// load record, evaluate, consume quota, then delegate to the analysis
// provider. A provider failure degrades to the deterministic templated
// analysis rather than failing the request.
type AnalyzeHandler struct {
	gate      EntitlementGate
	analyzer  Analyzer
	validator *core.Validator
	logger    *slog.Logger
}

// NewAnalyzeHandler creates an AnalyzeHandler with the provided dependencies.
func NewAnalyzeHandler(gate EntitlementGate, analyzer Analyzer, v *core.Validator, l *slog.Logger) *AnalyzeHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AnalyzeHandler{gate: gate, analyzer: analyzer, validator: v, logger: l}
}

// RegisterRoutes mounts the analyze endpoint on the v1 router.
func (h *AnalyzeHandler) RegisterRoutes(r chi.Router) {
	r.Post("/analyze", h.HandleAnalyze)
}

// HandleAnalyze implements POST /v1/analyze.
func (h *AnalyzeHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "user authentication required", nil))
		return
	}

	var req AnalyzeRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		core.Error(w, r, err)
		return
	}

	decision, err := h.gate.Consume(r.Context(), actor.UserID, types.ActionAnalyze)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if !decision.Allowed {
		core.Error(w, r, types.NewAppError(decision.Reason, denialMessage(decision.Reason), nil))
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), req.DocumentText)
	if err != nil {
		// The quota was already consumed and the user gets a result either
		// way; malformed or unavailable provider output degrades to the
		// templated analysis.
		h.logger.Warn("analysis provider failed, serving fallback analysis",
			slog.String("user_id", actor.UserID),
			slog.String("error", err.Error()),
		)
		result = external.SampleAnalysis()
	}

	core.JSON(w, r, http.StatusOK, AnalyzeResponse{
		Analysis:          result,
		RemainingAnalyses: entitlement.Remaining(decision.Updated),
	})
}

// denialMessage maps a denial code to the human-readable message the
// upgrade prompt displays.
func denialMessage(code types.ErrorCode) string {
	switch code {
	case types.ErrCodeTrialExhausted:
		return "trial limit reached"
	case types.ErrCodeMonthlyLimitReached:
		return "monthly limit reached"
	case types.ErrCodeProLimitReached:
		return "pro plan usage limit reached"
	case types.ErrCodePlanRequired:
		return "pro plan required"
	default:
		return "action not permitted"
	}
}
