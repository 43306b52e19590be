// Package upstream wraps the monitoring REST API with typed clients. All
// failures are normalized into *Error before reaching callers; raw transport
// errors never escape this package.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/iot-monitor/dashboard/internal/token"
)

// Client is the shared HTTP layer under the typed resource clients. It
// attaches the bearer header, and transparently performs the single
// 401 → refresh → retry pass.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  *token.Store

	refreshMu  sync.Mutex
	refreshing bool
}

// NewClient creates the shared upstream client. baseURL is the REST base path
// including /api, without a trailing slash.
func NewClient(baseURL string, timeout time.Duration, tokens *token.Store) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// request performs one HTTP exchange and returns status plus body. A nil
// error with status 0 never happens; transport failures come back as status 0
// with a non-nil error.
func (c *Client) request(ctx context.Context, method, path string, query url.Values, body any, withAuth bool) (int, []byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if withAuth {
		// An absent token still yields a (empty) header value. This mirrors
		// the shipped frontend byte for byte; see DESIGN.md.
		if tok := c.tokens.AccessToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		} else {
			req.Header.Set("Authorization", "")
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, data, nil
}

// doResource runs an authenticated resource call with the retry-once policy:
// a 401 triggers one token refresh, then one replay of the original request.
// Out may be nil for calls with no response body (DELETE).
func (c *Client) doResource(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	status, data, err := c.request(ctx, method, path, query, body, true)
	if err != nil {
		return connectError()
	}

	if status == 401 && !strings.Contains(path, "/token/refresh/") && c.tryRefresh(ctx) {
		status, data, err = c.request(ctx, method, path, query, body, true)
		if err != nil {
			return connectError()
		}
	}

	if status < 200 || status >= 300 {
		return normalizeResourceError(status, data)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return &Error{Status: status, Message: fmt.Sprintf("Erro %d: resposta inválida do servidor", status)}
		}
	}
	return nil
}

// tryRefresh performs at most one concurrent token refresh. Returns true when
// a new access token was obtained. A failed refresh forces logout.
func (c *Client) tryRefresh(ctx context.Context) bool {
	c.refreshMu.Lock()
	if c.refreshing {
		c.refreshMu.Unlock()
		return false
	}
	c.refreshing = true
	c.refreshMu.Unlock()

	defer func() {
		c.refreshMu.Lock()
		c.refreshing = false
		c.refreshMu.Unlock()
	}()

	refresh := c.tokens.RefreshToken()
	if refresh == "" {
		return false
	}

	status, data, err := c.request(ctx, http.MethodPost, "/token/refresh/", nil, map[string]string{"refresh": refresh}, false)
	if err != nil || status != http.StatusOK {
		c.tokens.Clear()
		return false
	}

	var pair struct {
		Access string `json:"access"`
	}
	if err := json.Unmarshal(data, &pair); err != nil || pair.Access == "" {
		c.tokens.Clear()
		return false
	}
	c.tokens.SetAccessToken(pair.Access)
	return true
}

// Tokens exposes the token store to composed clients.
func (c *Client) Tokens() *token.Store {
	return c.tokens
}
