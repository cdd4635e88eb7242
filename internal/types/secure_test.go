package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

const testSecret = "rzp_live_supersecret_4242"

func TestSecretString_FmtVerbs(t *testing.T) {
	s := SecretString(testSecret)

	for _, verb := range []string{"%s", "%v", "%+v"} {
		result := fmt.Sprintf(verb, s)
		if strings.Contains(result, testSecret) {
			t.Errorf("fmt.Sprintf(%s) leaked the raw secret: %s", verb, result)
		}
		if result != redactedPlaceholder {
			t.Errorf("fmt.Sprintf(%s) = %q, want %q", verb, result, redactedPlaceholder)
		}
	}
}

func TestSecretString_MarshalJSON(t *testing.T) {
	type gatewayConfig struct {
		KeyID     string       `json:"key_id"`
		KeySecret SecretString `json:"key_secret"`
	}

	data, err := json.Marshal(gatewayConfig{KeyID: "key_test_id", KeySecret: SecretString(testSecret)})
	if err != nil {
		t.Fatalf("json.Marshal returned error: %v", err)
	}

	result := string(data)
	if strings.Contains(result, testSecret) {
		t.Errorf("json.Marshal leaked the raw secret: %s", result)
	}
	if !strings.Contains(result, redactedPlaceholder) {
		t.Errorf("json.Marshal missing the placeholder: %s", result)
	}
	if !strings.Contains(result, "key_test_id") {
		t.Errorf("json.Marshal should keep non-secret fields intact: %s", result)
	}
}

func TestSecretString_SlogAttribute(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logger.Info("gateway configured", slog.Any("key_secret", SecretString(testSecret)))

	out := buf.String()
	if strings.Contains(out, testSecret) {
		t.Errorf("slog output leaked the raw secret: %s", out)
	}
	if !strings.Contains(out, redactedPlaceholder) {
		t.Errorf("slog output missing the placeholder: %s", out)
	}
}

func TestSecretString_Unmask(t *testing.T) {
	if got := SecretString(testSecret).Unmask(); got != testSecret {
		t.Errorf("Unmask() = %q, want %q", got, testSecret)
	}
}

func TestSecretString_EmptyValue(t *testing.T) {
	s := SecretString("")

	if s.String() != redactedPlaceholder {
		t.Errorf("String() on empty secret = %q, want %q", s.String(), redactedPlaceholder)
	}
	if s.Unmask() != "" {
		t.Errorf("Unmask() on empty secret = %q, want empty", s.Unmask())
	}
}

func TestSecretString_Fprintf(t *testing.T) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "database_url=%s", SecretString(testSecret))
	if strings.Contains(buf.String(), testSecret) {
		t.Errorf("Fprintf leaked the raw secret: %s", buf.String())
	}
}
