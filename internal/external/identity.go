package external

import (
	"context"
	"encoding/json"
	"net/http"

	"clauselens/internal/types"
)

// IdentityClient resolves bearer credentials against the external identity
// provider. The provider owns sign-up, sign-in, and session issuance; this
// client only asks "who is this token" and returns the stable user id and
// email.
type IdentityClient struct {
	base    *BaseClient
	baseURL string
	apiKey  types.SecretString
}

// NewIdentityClient creates an IdentityClient for the given provider base
// URL (no trailing slash) and service API key.
func NewIdentityClient(base *BaseClient, baseURL string, apiKey types.SecretString) *IdentityClient {
	return &IdentityClient{base: base, baseURL: baseURL, apiKey: apiKey}
}

// identityUserResponse is the subset of the provider's user payload the
// service reads.
type identityUserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Resolve verifies the bearer token with the identity provider and returns
// the caller's identity. Any provider-side rejection maps to
// auth_token_invalid; transport failures surface as upstream errors.
func (c *IdentityClient) Resolve(ctx context.Context, token string) (*types.Identity, error) {
	if token == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenMissing, "bearer token is required", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build identity request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", c.apiKey.Unmask())

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamIdentity, "identity provider unavailable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "user not authenticated", nil)
	}

	var user identityUserResponse
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamIdentity, "malformed identity response", err)
	}
	if user.ID == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "user not authenticated", nil)
	}

	return &types.Identity{UserID: user.ID, Email: user.Email}, nil
}
