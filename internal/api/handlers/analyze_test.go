package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"clauselens/internal/core"
	"clauselens/internal/entitlement"
	"clauselens/internal/types"
)

// --- Mocks ---

// mockGate implements EntitlementGate for testing.
type mockGate struct {
	consumeFn func(ctx context.Context, userID string, action types.Action) (entitlement.Decision, error)
	currentFn func(ctx context.Context, userID string) *types.EntitlementRecord

	consumeCalls int
}

func (m *mockGate) Consume(ctx context.Context, userID string, action types.Action) (entitlement.Decision, error) {
	m.consumeCalls++
	if m.consumeFn != nil {
		return m.consumeFn(ctx, userID, action)
	}
	return entitlement.Decision{
		Allowed: true,
		Updated: &types.EntitlementRecord{
			UserID:      userID,
			PlanType:    types.PlanPro,
			ProSubType:  types.ProSubMonthly,
			PeriodCount: 1,
		},
	}, nil
}

func (m *mockGate) Current(ctx context.Context, userID string) *types.EntitlementRecord {
	if m.currentFn != nil {
		return m.currentFn(ctx, userID)
	}
	return types.DefaultEntitlement(userID)
}

// mockAnalyzer implements Analyzer for testing.
type mockAnalyzer struct {
	analyzeFn func(ctx context.Context, documentText string) (*types.AnalysisResult, error)

	calls []string
}

func (m *mockAnalyzer) Analyze(ctx context.Context, documentText string) (*types.AnalysisResult, error) {
	m.calls = append(m.calls, documentText)
	if m.analyzeFn != nil {
		return m.analyzeFn(ctx, documentText)
	}
	return &types.AnalysisResult{
		Summary:         "A standard service agreement.",
		Risks:           "No unusual risks identified.",
		Recommendations: "Review the termination clause.",
	}, nil
}

var (
	_ EntitlementGate = (*mockGate)(nil)
	_ Analyzer        = (*mockAnalyzer)(nil)
)

// --- Test Helpers ---

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testValidator() *core.Validator {
	return core.NewValidator(testLogger())
}

// contextWithActor creates a context with an authenticated Actor.
func contextWithActor(userID, email string) context.Context {
	ctx := types.WithRequestID(context.Background(), "req_test_123")
	return types.WithActor(ctx, types.Actor{UserID: userID, Email: email})
}

// makeRequest creates an HTTP request with the given method, path, JSON body,
// and context.
func makeRequest(method, path string, body interface{}, ctx context.Context) *http.Request {
	var reqBody *bytes.Buffer
	if body != nil {
		data, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if ctx != nil {
		req = req.WithContext(ctx)
	}
	return req
}

// parseJSONResponse decodes the response body into the given target.
func parseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse response body: %v\nbody: %s", err, rr.Body.String())
	}
}

// parseErrorResponse decodes the standard error envelope.
func parseErrorResponse(t *testing.T, rr *httptest.ResponseRecorder) core.ErrorDetail {
	t.Helper()
	var resp core.APIErrorResponse
	parseJSONResponse(t, rr, &resp)
	return resp.Error
}

func newTestAnalyzeHandler(gate EntitlementGate, analyzer Analyzer) *AnalyzeHandler {
	return NewAnalyzeHandler(gate, analyzer, testValidator(), testLogger())
}

// --- HandleAnalyze Tests ---

func TestHandleAnalyze_Success(t *testing.T) {
	gate := &mockGate{
		consumeFn: func(ctx context.Context, userID string, action types.Action) (entitlement.Decision, error) {
			if userID != "user-1" {
				t.Errorf("expected user-1, got %s", userID)
			}
			if action != types.ActionAnalyze {
				t.Errorf("expected analyze action, got %s", action)
			}
			return entitlement.Decision{
				Allowed: true,
				Updated: &types.EntitlementRecord{
					UserID:      userID,
					PlanType:    types.PlanPro,
					ProSubType:  types.ProSubMonthly,
					PeriodCount: 5,
				},
			}, nil
		},
	}
	analyzer := &mockAnalyzer{}
	h := newTestAnalyzeHandler(gate, analyzer)

	req := makeRequest(http.MethodPost, "/v1/analyze",
		AnalyzeRequest{DocumentText: "This agreement is made between the parties."},
		contextWithActor("user-1", "u@example.com"))
	rr := httptest.NewRecorder()
	h.HandleAnalyze(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp AnalyzeResponse
	parseJSONResponse(t, rr, &resp)
	if resp.Analysis == nil || resp.Analysis.Summary == "" {
		t.Fatal("expected a populated analysis")
	}
	// pro_monthly limit 30, 5 consumed.
	if resp.RemainingAnalyses != 25 {
		t.Errorf("expected 25 remaining, got %d", resp.RemainingAnalyses)
	}
	if len(analyzer.calls) != 1 || analyzer.calls[0] != "This agreement is made between the parties." {
		t.Errorf("analyzer received wrong document: %v", analyzer.calls)
	}
}

func TestHandleAnalyze_NoActor(t *testing.T) {
	h := newTestAnalyzeHandler(&mockGate{}, &mockAnalyzer{})

	req := makeRequest(http.MethodPost, "/v1/analyze", AnalyzeRequest{DocumentText: "x"}, nil)
	rr := httptest.NewRecorder()
	h.HandleAnalyze(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	detail := parseErrorResponse(t, rr)
	if detail.Code != string(types.ErrCodeAuthTokenMissing) {
		t.Errorf("unexpected error code %q", detail.Code)
	}
}

func TestHandleAnalyze_MissingDocument(t *testing.T) {
	gate := &mockGate{}
	h := newTestAnalyzeHandler(gate, &mockAnalyzer{})

	req := makeRequest(http.MethodPost, "/v1/analyze",
		map[string]string{}, contextWithActor("user-1", "u@example.com"))
	rr := httptest.NewRecorder()
	h.HandleAnalyze(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if gate.consumeCalls != 0 {
		t.Error("validation failure must not consume quota")
	}
}

func TestHandleAnalyze_DenialCarriesUpgradeFlag(t *testing.T) {
	tests := []struct {
		name     string
		reason   types.ErrorCode
		wantPro  bool
		wantUpgr bool
	}{
		{"trial exhausted", types.ErrCodeTrialExhausted, false, true},
		{"monthly limit", types.ErrCodeMonthlyLimitReached, false, true},
		{"pro limit", types.ErrCodeProLimitReached, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := &mockGate{
				consumeFn: func(ctx context.Context, userID string, action types.Action) (entitlement.Decision, error) {
					return entitlement.Deny(tt.reason), nil
				},
			}
			analyzer := &mockAnalyzer{}
			h := newTestAnalyzeHandler(gate, analyzer)

			req := makeRequest(http.MethodPost, "/v1/analyze",
				AnalyzeRequest{DocumentText: "doc"}, contextWithActor("user-1", ""))
			rr := httptest.NewRecorder()
			h.HandleAnalyze(rr, req)

			if rr.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d", rr.Code)
			}
			detail := parseErrorResponse(t, rr)
			if detail.Code != string(tt.reason) {
				t.Errorf("expected code %s, got %s", tt.reason, detail.Code)
			}
			if detail.RequiresUpgrade != tt.wantUpgr {
				t.Errorf("requires_upgrade = %v, want %v", detail.RequiresUpgrade, tt.wantUpgr)
			}
			if detail.ProLimitReached != tt.wantPro {
				t.Errorf("pro_limit_reached = %v, want %v", detail.ProLimitReached, tt.wantPro)
			}
			if len(analyzer.calls) != 0 {
				t.Error("denied request must not reach the analyzer")
			}
		})
	}
}

func TestHandleAnalyze_ConsumeErrorPropagates(t *testing.T) {
	gate := &mockGate{
		consumeFn: func(ctx context.Context, userID string, action types.Action) (entitlement.Decision, error) {
			return entitlement.Decision{}, types.NewAppError(types.ErrCodeInternalDB, "database unavailable", nil)
		},
	}
	h := newTestAnalyzeHandler(gate, &mockAnalyzer{})

	req := makeRequest(http.MethodPost, "/v1/analyze",
		AnalyzeRequest{DocumentText: "doc"}, contextWithActor("user-1", ""))
	rr := httptest.NewRecorder()
	h.HandleAnalyze(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestHandleAnalyze_ProviderFailureServesFallback(t *testing.T) {
	analyzer := &mockAnalyzer{
		analyzeFn: func(ctx context.Context, documentText string) (*types.AnalysisResult, error) {
			return nil, errors.New("provider timed out")
		},
	}
	h := newTestAnalyzeHandler(&mockGate{}, analyzer)

	req := makeRequest(http.MethodPost, "/v1/analyze",
		AnalyzeRequest{DocumentText: "doc"}, contextWithActor("user-1", ""))
	rr := httptest.NewRecorder()
	h.HandleAnalyze(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 with fallback analysis, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp AnalyzeResponse
	parseJSONResponse(t, rr, &resp)
	if resp.Analysis == nil || resp.Analysis.Summary == "" {
		t.Fatal("expected the fallback analysis in the response")
	}
}

func TestHandleAnalyze_NonProHasZeroRemaining(t *testing.T) {
	gate := &mockGate{
		consumeFn: func(ctx context.Context, userID string, action types.Action) (entitlement.Decision, error) {
			return entitlement.Decision{
				Allowed: true,
				Updated: &types.EntitlementRecord{
					UserID:                userID,
					PlanType:              types.PlanTrial,
					LifetimeAnalysisCount: 1,
				},
			}, nil
		},
	}
	h := newTestAnalyzeHandler(gate, &mockAnalyzer{})

	req := makeRequest(http.MethodPost, "/v1/analyze",
		AnalyzeRequest{DocumentText: "doc"}, contextWithActor("user-1", ""))
	rr := httptest.NewRecorder()
	h.HandleAnalyze(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp AnalyzeResponse
	parseJSONResponse(t, rr, &resp)
	if resp.RemainingAnalyses != 0 {
		t.Errorf("trial plan should report 0 remaining, got %d", resp.RemainingAnalyses)
	}
}
