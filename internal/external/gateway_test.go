package external

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clauselens/internal/types"
)

func newTestGatewayClient(t *testing.T, serverURL string) *GatewayClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"test-gateway",
		RetryPolicy{MaxRetries: 0, MinWait: time.Millisecond, MaxWait: 10 * time.Millisecond},
		"ClauseLens-Test/1.0",
		WithSleepFunc(noopSleep),
	)
	return NewGatewayClient(base, serverURL, "key_test_id", types.SecretString("key_test_secret"))
}

func signOrder(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCreateOrder(t *testing.T) {
	var gotAuthUser, gotAuthPass string
	var gotBody createOrderRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/orders" {
			t.Errorf("expected path /v1/orders, got %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		gotAuthUser, gotAuthPass, _ = r.BasicAuth()
		json.NewDecoder(r.Body).Decode(&gotBody)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"order_abc123","amount":9900,"currency":"INR"}`))
	}))
	defer server.Close()

	client := newTestGatewayClient(t, server.URL)

	order, err := client.CreateOrder(context.Background(), 9900, "INR", map[string]string{
		"user_id": "user-1",
		"plan":    "pro",
	})
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	if order.ID != "order_abc123" {
		t.Errorf("expected order id 'order_abc123', got '%s'", order.ID)
	}
	if order.Amount != 9900 {
		t.Errorf("expected amount 9900, got %d", order.Amount)
	}
	if gotAuthUser != "key_test_id" || gotAuthPass != "key_test_secret" {
		t.Errorf("expected basic auth with key pair, got %s:%s", gotAuthUser, gotAuthPass)
	}
	if gotBody.Amount != 9900 || gotBody.Currency != "INR" {
		t.Errorf("unexpected order payload: %+v", gotBody)
	}
	if gotBody.Receipt == "" {
		t.Error("expected a generated receipt")
	}
	if gotBody.Notes["user_id"] != "user-1" {
		t.Errorf("expected user attribution in notes, got %v", gotBody.Notes)
	}
}

func TestCreateOrder_GatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestGatewayClient(t, server.URL)

	order, err := client.CreateOrder(context.Background(), 9900, "INR", nil)
	if order != nil {
		t.Error("expected nil order on gateway error")
	}
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %T", err)
	}
	if appErr.Code != types.ErrCodeUpstreamGateway {
		t.Errorf("expected %s, got %s", types.ErrCodeUpstreamGateway, appErr.Code)
	}
}

func TestCreateOrder_MissingOrderID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"amount":9900,"currency":"INR"}`))
	}))
	defer server.Close()

	client := newTestGatewayClient(t, server.URL)

	_, err := client.CreateOrder(context.Background(), 9900, "INR", nil)
	if err == nil {
		t.Fatal("expected error for response without order id")
	}
}

func TestVerifyPaymentSignature(t *testing.T) {
	const secret = "key_test_secret"
	valid := signOrder(secret, "order_abc", "pay_xyz")

	tests := []struct {
		name      string
		orderID   string
		paymentID string
		signature string
		want      bool
	}{
		{
			name:    "valid signature accepted",
			orderID: "order_abc", paymentID: "pay_xyz", signature: valid,
			want: true,
		},
		{
			name:    "tampered signature rejected",
			orderID: "order_abc", paymentID: "pay_xyz",
			signature: valid[:len(valid)-1] + "0",
			want:      false,
		},
		{
			name:    "signature for a different order rejected",
			orderID: "order_other", paymentID: "pay_xyz", signature: valid,
			want: false,
		},
		{
			name:    "signature for a different payment rejected",
			orderID: "order_abc", paymentID: "pay_other", signature: valid,
			want: false,
		},
		{
			name:    "empty signature rejected",
			orderID: "order_abc", paymentID: "pay_xyz", signature: "",
			want: false,
		},
		{
			name:    "truncated signature rejected",
			orderID: "order_abc", paymentID: "pay_xyz", signature: valid[:10],
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifyPaymentSignature(secret, tt.orderID, tt.paymentID, tt.signature)
			if got != tt.want {
				t.Errorf("VerifyPaymentSignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifyPaymentSignature_WrongSecret(t *testing.T) {
	sig := signOrder("other_secret", "order_abc", "pay_xyz")
	if VerifyPaymentSignature("key_test_secret", "order_abc", "pay_xyz", sig) {
		t.Error("signature computed with a different secret must be rejected")
	}
}

func TestGatewayClient_VerifySignature(t *testing.T) {
	client := newTestGatewayClient(t, "http://unused")

	sig := signOrder("key_test_secret", "order_abc", "pay_xyz")
	if !client.VerifySignature("order_abc", "pay_xyz", sig) {
		t.Error("expected client to accept signature built with its own secret")
	}
	if client.VerifySignature("order_abc", "pay_xyz", "deadbeef") {
		t.Error("expected client to reject a bogus signature")
	}
}

func TestGatewayClient_KeyID(t *testing.T) {
	client := newTestGatewayClient(t, "http://unused")
	if client.KeyID() != "key_test_id" {
		t.Errorf("expected key id 'key_test_id', got '%s'", client.KeyID())
	}
}
