// Package config defines the global configuration structure for the
// ClauseLens service. Configuration is loaded once at process
// initialization and is immutable thereafter. It follows 12-Factor App
// principles by strictly separating code from configuration.
//
// Values are resolved from the OS environment, with a .env file as a
// development convenience. Any missing required value or invalid format
// causes startup to fail immediately (fail fast).
package config

import (
	"time"

	"clauselens/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	Identity IdentityConfig
	Analysis AnalysisConfig
	Payment  PaymentConfig
	Security SecurityConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        `envconfig:"PORT" default:"8080"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"29s"`
}

// DatabaseConfig holds database connection parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`
}

// IdentityConfig holds the external identity provider endpoint and service
// key. The provider owns sign-up/sign-in; the service only resolves bearer
// tokens against it.
type IdentityConfig struct {
	BaseURL    string       `envconfig:"IDENTITY_BASE_URL" validate:"required,url"`
	ServiceKey SecretString `envconfig:"IDENTITY_SERVICE_KEY" validate:"required"`
}

// AnalysisConfig holds the analysis provider credentials. APIKey may be
// empty, in which case the deterministic fallback analysis is served.
type AnalysisConfig struct {
	BaseURL string       `envconfig:"ANALYSIS_BASE_URL" default:"https://api.openai.com"`
	APIKey  SecretString `envconfig:"ANALYSIS_API_KEY"`
	Model   string       `envconfig:"ANALYSIS_MODEL" default:"gpt-4"`
	Timeout time.Duration `envconfig:"ANALYSIS_TIMEOUT" default:"60s"`
}

// PaymentConfig holds the payment gateway key pair. KeySecret is also the
// HMAC secret for checkout-completion signature verification.
type PaymentConfig struct {
	BaseURL   string       `envconfig:"PAYMENT_BASE_URL" default:"https://api.razorpay.com"`
	KeyID     string       `envconfig:"PAYMENT_KEY_ID" validate:"required"`
	KeySecret SecretString `envconfig:"PAYMENT_KEY_SECRET" validate:"required"`
}

// SecurityConfig holds CORS settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}
