package upstream

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/iot-monitor/dashboard/internal/models"
)

// AuthClient performs the token lifecycle against the upstream API. It never
// retries on its own; retry-on-401 belongs to the shared resource transport.
type AuthClient struct {
	c *Client
}

// NewAuthClient wraps the shared client with the auth operations.
func NewAuthClient(c *Client) *AuthClient {
	return &AuthClient{c: c}
}

// Login posts credentials, persists the issued pair and derived role, and
// flips the authenticated stream to true.
func (a *AuthClient) Login(ctx context.Context, username, password string) (*models.TokenPair, error) {
	body := models.LoginRequest{Username: username, Password: password}
	status, data, err := a.c.request(ctx, http.MethodPost, "/token/", nil, body, false)
	if err != nil {
		return nil, normalizeAuthError(0, nil)
	}
	if status != http.StatusOK {
		return nil, normalizeAuthError(status, data)
	}

	var pair models.TokenPair
	if err := json.Unmarshal(data, &pair); err != nil {
		return nil, normalizeAuthError(status, nil)
	}

	a.c.tokens.SetTokens(pair.Access, pair.Refresh)
	// The role can come in the response body as well as in the token claim.
	if models.ValidRole(pair.Role) {
		a.c.tokens.SetRole(pair.Role)
	}
	return &pair, nil
}

// Register creates an account and authenticates immediately with the returned
// token pair. Validation failures come back as one joined field message.
func (a *AuthClient) Register(ctx context.Context, req models.RegisterRequest) (*models.RegisterResponse, error) {
	status, data, err := a.c.request(ctx, http.MethodPost, "/register/", nil, req, false)
	if err != nil {
		return nil, normalizeRegisterError(0, nil)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, normalizeRegisterError(status, data)
	}

	var resp models.RegisterResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, normalizeRegisterError(status, nil)
	}

	a.c.tokens.SetTokens(resp.Access, resp.Refresh)
	return &resp, nil
}

// Logout clears tokens and role and flips the authenticated stream to false.
// The upstream is not called; token invalidation is purely local.
func (a *AuthClient) Logout() {
	a.c.tokens.Clear()
}

// IsAuthenticated is a synchronous read of the cached state.
func (a *AuthClient) IsAuthenticated() bool {
	return a.c.tokens.IsAuthenticated()
}

// VerifyToken asks the upstream to validate the stored access token. A 401
// forces logout.
func (a *AuthClient) VerifyToken(ctx context.Context) error {
	tok := a.c.tokens.AccessToken()
	if tok == "" {
		return &Error{Status: 401, Message: MsgUnauthorized}
	}
	status, data, err := a.c.request(ctx, http.MethodPost, "/token/verify/", nil, map[string]string{"token": tok}, false)
	if err != nil {
		return normalizeAuthError(0, nil)
	}
	if status == http.StatusUnauthorized {
		a.Logout()
		return normalizeAuthError(status, data)
	}
	if status != http.StatusOK {
		return normalizeAuthError(status, data)
	}
	return nil
}

// RefreshAccessToken mints a new access token with the stored refresh token,
// retaining the existing refresh token. A 401 forces logout.
func (a *AuthClient) RefreshAccessToken(ctx context.Context) error {
	refresh := a.c.tokens.RefreshToken()
	if refresh == "" {
		return &Error{Status: 401, Message: MsgUnauthorized}
	}
	status, data, err := a.c.request(ctx, http.MethodPost, "/token/refresh/", nil, map[string]string{"refresh": refresh}, false)
	if err != nil {
		return normalizeAuthError(0, nil)
	}
	if status == http.StatusUnauthorized {
		a.Logout()
		return normalizeAuthError(status, data)
	}
	if status != http.StatusOK {
		return normalizeAuthError(status, data)
	}

	var pair struct {
		Access string `json:"access"`
	}
	if err := json.Unmarshal(data, &pair); err != nil || pair.Access == "" {
		return normalizeAuthError(status, nil)
	}
	a.c.tokens.SetAccessToken(pair.Access)
	return nil
}

// CurrentUser returns the authenticated account (/me/). A 401 forces logout.
func (a *AuthClient) CurrentUser(ctx context.Context) (*models.UserInfo, error) {
	var user models.UserInfo
	if err := a.c.doResource(ctx, http.MethodGet, "/me/", nil, nil, &user); err != nil {
		if ue, ok := err.(*Error); ok && ue.Status == 401 {
			a.Logout()
		}
		return nil, err
	}
	return &user, nil
}
