package types

import "log/slog"

// redactedPlaceholder stands in for secret material in every rendered form.
const redactedPlaceholder = "[redacted]"

// SecretString wraps the credentials the service is configured with: the
// database URL, the identity service key, the analysis provider API key and
// the payment gateway key secret. Every rendering path (fmt verbs, JSON
// marshalling, slog attributes) yields the placeholder; the plaintext is
// reachable only through Unmask, at the point a credential is handed to the
// connection pool or an outbound request header.
type SecretString string

// String implements fmt.Stringer, so %s and %v render the placeholder.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON keeps secrets out of serialized config dumps and responses.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return []byte(`"` + redactedPlaceholder + `"`), nil
}

// LogValue implements slog.LogValuer, so a SecretString attribute logs the
// placeholder without going through the fmt path.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redactedPlaceholder)
}

// Unmask returns the plaintext. Call sites stay confined to the wiring that
// actually needs the credential: the pgx pool, basic auth on gateway calls,
// and the bearer and apikey headers on identity and analysis calls.
func (s SecretString) Unmask() string {
	return string(s)
}
