package external

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"clauselens/internal/types"
)

// GatewayClient talks to the payment gateway's order API. Checkout and
// payment capture happen on the gateway's side; the service only creates
// orders and later verifies the completion signature locally.
type GatewayClient struct {
	base      *BaseClient
	baseURL   string
	keyID     string
	keySecret types.SecretString
}

// NewGatewayClient creates a GatewayClient for the given gateway base URL
// and API key pair.
func NewGatewayClient(base *BaseClient, baseURL, keyID string, keySecret types.SecretString) *GatewayClient {
	return &GatewayClient{base: base, baseURL: baseURL, keyID: keyID, keySecret: keySecret}
}

// KeyID returns the public key identifier the frontend checkout needs.
func (c *GatewayClient) KeyID() string { return c.keyID }

// GatewayOrder is the gateway's view of a created order.
type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type createOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrder creates a gateway order for the given amount (minor units).
// The notes map carries user and plan attribution for reconciliation.
func (c *GatewayClient) CreateOrder(ctx context.Context, amount int64, currency string, notes map[string]string) (*GatewayOrder, error) {
	payload := createOrderRequest{
		Amount:   amount,
		Currency: currency,
		Receipt:  "receipt_" + uuid.NewString(),
		Notes:    notes,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal order request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build order request", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret.Unmask())
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGateway, "payment gateway unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, types.NewAppError(types.ErrCodeUpstreamGateway,
			fmt.Sprintf("payment gateway returned %d", resp.StatusCode), nil)
	}

	var order GatewayOrder
	if err := json.NewDecoder(resp.Body).Decode(&order); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGateway, "malformed gateway order response", err)
	}
	if order.ID == "" {
		return nil, types.NewAppError(types.ErrCodeUpstreamGateway, "gateway order response missing id", nil)
	}

	return &order, nil
}

// VerifySignature checks a checkout-completion signature: hex-encoded
// HMAC-SHA256 over "order_id|payment_id" with the gateway key secret.
// Constant-time comparison; no network call. Returns true only when the
// signature matches exactly.
func (c *GatewayClient) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifyPaymentSignature(c.keySecret.Unmask(), orderID, paymentID, signature)
}

// VerifyPaymentSignature is the pure verification primitive, exported so it
// can be exercised without a client.
func VerifyPaymentSignature(secret, orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
