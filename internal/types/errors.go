package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants.
// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationMissingField ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidPlan  ErrorCode = "validation_invalid_plan"
	ErrCodeValidationInvalidCycle ErrorCode = "validation_invalid_billing_cycle"
	ErrCodeValidationInvalidEmail ErrorCode = "validation_invalid_email"

	// Auth (401)
	ErrCodeAuthTokenMissing ErrorCode = "auth_token_missing"
	ErrCodeAuthTokenInvalid ErrorCode = "auth_token_invalid"
	ErrCodeAuthUserNotFound ErrorCode = "auth_user_not_found"

	// Entitlement denials (403). These are data, not faults: the response
	// body carries upgrade-routing flags alongside the code.
	ErrCodeTrialExhausted      ErrorCode = "trial_exhausted"
	ErrCodeMonthlyLimitReached ErrorCode = "monthly_limit_reached"
	ErrCodeProLimitReached     ErrorCode = "pro_limit_reached"
	ErrCodePlanRequired        ErrorCode = "plan_required"

	// Plan-transition violations (400), enforced at order creation.
	ErrCodeAlreadyBestPlan     ErrorCode = "already_best_plan"
	ErrCodeNoUpgradeAvailable  ErrorCode = "no_upgrade_available"

	// Payment integrity
	ErrCodePaymentSignatureInvalid ErrorCode = "payment_signature_invalid"
	ErrCodeOrderNotFound           ErrorCode = "order_not_found"
	ErrCodeActivationFailed        ErrorCode = "activation_failed"

	// Conflict (409)
	ErrCodeConflictConcurrent ErrorCode = "conflict_concurrent_modification"

	// Internal/Upstream (500/502)
	ErrCodeInternalDB          ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected  ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamGateway     ErrorCode = "upstream_payment_gateway_unavailable"
	ErrCodeUpstreamAnalysis    ErrorCode = "upstream_analysis_unavailable"
	ErrCodeUpstreamIdentity    ErrorCode = "upstream_identity_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
)

// denialCodes is the set of entitlement denial codes that map to 403.
var denialCodes = map[ErrorCode]bool{
	ErrCodeTrialExhausted:      true,
	ErrCodeMonthlyLimitReached: true,
	ErrCodeProLimitReached:     true,
	ErrCodePlanRequired:        true,
}

// IsDenial reports whether the code is an entitlement denial rather than a
// system fault. Denials flow back to the caller as structured responses that
// drive the upgrade prompt.
func (c ErrorCode) IsDenial() bool {
	return denialCodes[c]
}

// HTTPStatus maps an ErrorCode to its corresponding HTTP status code.
// Used by the API layer to translate AppErrors into HTTP responses.
// Returns 500 for unrecognized error codes as a safe default.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "auth_"):
		return http.StatusUnauthorized // 401
	case denialCodes[c]:
		return http.StatusForbidden // 403
	case c == ErrCodeAlreadyBestPlan, c == ErrCodeNoUpgradeAvailable:
		return http.StatusBadRequest // 400
	case c == ErrCodePaymentSignatureInvalid:
		return http.StatusBadRequest // 400
	case c == ErrCodeOrderNotFound:
		return http.StatusNotFound // 404
	case c == ErrCodeActivationFailed:
		return http.StatusInternalServerError // 500
	case strings.HasPrefix(s, "conflict_"):
		return http.StatusConflict // 409
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the standard application error type used throughout the service.
// All domain and handler errors should be expressed as AppError to enable
// consistent error formatting, HTTP status mapping, and error chain support.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
// This is useful for adding context without mutating the original error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error. This is the standard constructor for domain errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
