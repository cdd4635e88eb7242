package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"clauselens/internal/core"
	"clauselens/internal/types"
)

// DownloadRequest is the request body for POST /v1/download. Plan is the
// caller-asserted tier, honored only for the enterprise bypass; pro
// accounting always runs against the stored record.
type DownloadRequest struct {
	Analysis *types.AnalysisResult `json:"analysis" validate:"required"`
	Plan     string                `json:"plan,omitempty"`
}

// planEnterprise is accepted on download requests only; it is not a stored
// entitlement tier.
const planEnterprise = "enterprise"

// DownloadHandler assembles the plain-text analysis report for pro (and
// enterprise) users. Downloads consume the same pro-period quota as analyze
// so the two paths cannot drift apart.
type DownloadHandler struct {
	gate      EntitlementGate
	validator *core.Validator
	logger    *slog.Logger
	now       func() time.Time // injected for tests
}

// NewDownloadHandler creates a DownloadHandler with the provided dependencies.
func NewDownloadHandler(gate EntitlementGate, v *core.Validator, l *slog.Logger) *DownloadHandler {
	if l == nil {
		l = slog.Default()
	}
	return &DownloadHandler{gate: gate, validator: v, logger: l, now: time.Now}
}

// RegisterRoutes mounts the download endpoint on the v1 router.
func (h *DownloadHandler) RegisterRoutes(r chi.Router) {
	r.Post("/download", h.HandleDownload)
}

// HandleDownload implements POST /v1/download. The report is assembled
// locally from the three analysis fields; no external provider is involved.
func (h *DownloadHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	actor, ok := types.GetActor(r.Context())
	if !ok {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "user authentication required", nil))
		return
	}

	var req DownloadRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		core.Error(w, r, err)
		return
	}

	// Enterprise accounts are provisioned out of band and bypass the
	// stored-record quota; everyone else goes through the evaluator, which
	// denies non-pro tiers and meters pro-period consumption.
	if req.Plan != planEnterprise {
		decision, err := h.gate.Consume(r.Context(), actor.UserID, types.ActionDownload)
		if err != nil {
			core.Error(w, r, err)
			return
		}
		if !decision.Allowed {
			core.Error(w, r, types.NewAppError(decision.Reason, denialMessage(decision.Reason), nil))
			return
		}
	}

	report := buildReport(actor.UserID, req.Analysis, h.now())
	filename := fmt.Sprintf("legal-analysis-%d.txt", h.now().UnixMilli())

	w.Header().Set("Content-Type", "text/plain")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(report)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(report))
}

// buildReport renders the deterministic plain-text report: the three
// analysis sections plus the disclaimer footer.
func buildReport(userID string, analysis *types.AnalysisResult, now time.Time) string {
	return fmt.Sprintf(`LEGAL DOCUMENT ANALYSIS REPORT
Generated on: %s
User ID: %s

SUMMARY
%s

RISK ASSESSMENT
%s

RECOMMENDATIONS
%s

---
Generated by ClauseLens
For professional legal advice, please consult with a qualified attorney.`,
		now.Format("2006-01-02"),
		userID,
		analysis.Summary,
		analysis.Risks,
		analysis.Recommendations,
	)
}
