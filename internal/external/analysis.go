package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"clauselens/internal/types"
)

// AnalysisProvider produces a structured plain-language analysis for a
// document. Implemented by AnalysisClient (chat-completions backend) and by
// the deterministic fallback used when no provider is configured.
type AnalysisProvider interface {
	Analyze(ctx context.Context, documentText string) (*types.AnalysisResult, error)
}

// AnalysisClient calls an OpenAI-style chat-completions endpoint and asks
// for strict-JSON output with summary, risks, and recommendations fields.
// Provider output is treated as best-effort text: malformed JSON is wrapped
// rather than rejected, and callers fall back to SampleAnalysis on error.
type AnalysisClient struct {
	base    *BaseClient
	baseURL string
	apiKey  types.SecretString
	model   string
	logger  *slog.Logger
}

// NewAnalysisClient creates an AnalysisClient for the given completions
// endpoint base URL, API key, and model name.
func NewAnalysisClient(base *BaseClient, baseURL string, apiKey types.SecretString, model string, logger *slog.Logger) *AnalysisClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalysisClient{base: base, baseURL: baseURL, apiKey: apiKey, model: model, logger: logger}
}

const analysisSystemPrompt = "You are a legal document analyst. Provide clear, concise analysis in plain English that non-lawyers can understand."

// analysisPrompt asks for a strict JSON object. Risks must lead with a
// risk-level token (LOW/MEDIUM/HIGH/CRITICAL).
const analysisPrompt = `Analyze the following legal document and provide a comprehensive analysis in simple, non-legal language.

Document:
%s

Please provide your response in the following JSON format:

{
  "summary": "A comprehensive summary in 5-10 complete sentences covering the document type and purpose, the parties and what they agree to, key terms, payment details, duration, obligations, termination, dispute resolution, and an overall assessment.",
  "risks": "Start with RISK LEVEL (LOW/MEDIUM/HIGH/CRITICAL) followed by a specific risk assessment in simple terms covering financial, legal, and business risks.",
  "recommendations": "Actionable recommendations for improvement: better terms, missing clauses, clearer language, and protective measures."
}

IMPORTANT: Write everything in simple, non-legal language that anyone can understand. Focus on practical implications and actionable advice.`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Analyze submits the document text and parses the model output. A reply
// that is not valid JSON is wrapped as a summary-only result rather than
// treated as a failure; an empty reply is an error so the caller can apply
// the deterministic fallback.
func (c *AnalysisClient) Analyze(ctx context.Context, documentText string) (*types.AnalysisResult, error) {
	payload := chatCompletionRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: analysisSystemPrompt},
			{Role: "user", Content: fmt.Sprintf(analysisPrompt, documentText)},
		},
		Temperature: 0.3,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal analysis request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build analysis request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey.Unmask())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamAnalysis, "analysis provider unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(types.ErrCodeUpstreamAnalysis,
			fmt.Sprintf("analysis provider returned %d", resp.StatusCode), nil)
	}

	var completion chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamAnalysis, "malformed analysis response", err)
	}
	if len(completion.Choices) == 0 {
		return nil, types.NewAppError(types.ErrCodeUpstreamAnalysis, "analysis provider returned no choices", nil)
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamAnalysis, "analysis provider returned empty output", nil)
	}

	return ParseAnalysisOutput(content, c.logger), nil
}

// ParseAnalysisOutput interprets raw model output. Valid JSON with the
// expected fields is returned as-is; anything else becomes a summary-only
// result with boilerplate risks/recommendations, matching the permissive
// contract that provider output is best-effort text.
func ParseAnalysisOutput(content string, logger *slog.Logger) *types.AnalysisResult {
	var result types.AnalysisResult
	if err := json.Unmarshal([]byte(content), &result); err == nil && result.Summary != "" {
		return &result
	}

	if logger != nil {
		logger.Warn("analysis output was not valid JSON, wrapping raw text")
	}
	return &types.AnalysisResult{
		Summary:         content,
		Risks:           "Analysis completed but formatting may be incomplete.",
		Recommendations: "Please review the document carefully.",
	}
}

// SampleAnalysis is the deterministic templated analysis used when the
// provider is unconfigured or fails. A resilience choice, not a correctness
// guarantee: the caller still gets a well-formed result.
func SampleAnalysis() *types.AnalysisResult {
	return &types.AnalysisResult{
		Summary: "This legal document appears to be a standard business contract between two parties for the provision of services. " +
			"The agreement outlines the scope of work, payment terms, and project timeline. " +
			"Key provisions include confidentiality clauses, intellectual property rights, and dispute resolution mechanisms. " +
			"Both parties have defined obligations and responsibilities throughout the project duration. " +
			"The agreement includes standard termination clauses and force majeure provisions. " +
			"Payment is structured in milestones with specific due dates and amounts. " +
			"Overall, this appears to be a well-structured commercial agreement with typical legal protections.",
		Risks: "MEDIUM RISK: The termination clause allows either party to terminate with 30 days notice, which may be too short for complex projects. " +
			"Payment terms lack late payment penalties, potentially causing cash flow issues. " +
			"The indemnification clause is broad and may expose parties to unexpected liabilities. " +
			"Intellectual property ownership is clearly defined but transfer mechanisms could be more detailed.",
		Recommendations: "Consider extending the termination notice period to 60-90 days for better project continuity. " +
			"Add late payment penalties and interest charges to payment terms. " +
			"Review and potentially narrow the scope of indemnification clauses. " +
			"Clarify intellectual property transfer procedures and timelines. " +
			"Include clear definitions for key terms to avoid misunderstandings.",
	}
}

// FallbackProvider always returns the deterministic sample analysis. Used
// when no analysis API key is configured.
type FallbackProvider struct{}

// Analyze implements AnalysisProvider.
func (FallbackProvider) Analyze(ctx context.Context, documentText string) (*types.AnalysisResult, error) {
	return SampleAnalysis(), nil
}
