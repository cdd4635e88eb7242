package core

import (
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"clauselens/internal/types"
)

// Validator wraps go-playground/validator for request-body validation.
// Handlers call ValidateStruct after DecodeJSON; tag failures surface as a
// 400 validation error with per-field details.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{
		validate: validator.New(),
		logger:   logger,
	}
}

// ValidateStruct validates the given struct against its validate tags.
// Returns nil on success, or a *types.AppError (400) listing each failed
// field and the rule it violated.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return types.NewAppError(types.ErrCodeValidationMissingField, "invalid request", err)
	}

	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[strings.ToLower(fe.Field())] = fe.Tag()
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"request validation failed",
		err,
		details,
	)
}
