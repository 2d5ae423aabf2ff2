// Package auth implements authentication against the Navien cloud service.
//
// The cloud issues a short-lived access token plus a refresh token. The
// client persists token sets through an optional TokenStore so restarts
// can reuse valid tokens instead of performing a full password login.
//
// Failure classification matters to callers: ErrInvalidCredentials is
// permanent and must surface to the user, while network and server errors
// are retriable and map to the "not ready, retry later" setup outcome.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// defaultBaseURL is the production Navien cloud endpoint.
const defaultBaseURL = "https://nlus.naviensmartcontrol.com/api/v2.5"

// httpTimeout bounds every REST call to the cloud.
const httpTimeout = 30 * time.Second

// Logger is the minimal logging interface used by the auth client.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client authenticates against the Navien cloud and keeps the token set
// fresh.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	email    string
	password string
	baseURL  string

	httpClient *http.Client
	store      TokenStore // optional
	logger     Logger

	mu     sync.Mutex
	tokens *Tokens
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the cloud endpoint; used in tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithTokenStore enables token persistence across restarts.
func WithTokenStore(store TokenStore) Option {
	return func(c *Client) { c.store = store }
}

// WithLogger sets the logger.
func WithLogger(logger Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithHTTPClient overrides the HTTP client; used in tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates an authentication client for one cloud account.
func NewClient(email, password string, opts ...Option) *Client {
	c := &Client{
		email:      email,
		password:   password,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: httpTimeout},
		logger:     noopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Email returns the account email this client authenticates.
func (c *Client) Email() string {
	return c.email
}

// Authenticate establishes a valid token set, preferring stored tokens
// over a full login.
//
// Order of attempts:
//  1. Tokens already held in memory, if still valid
//  2. Tokens from the TokenStore, if present and still valid
//  3. Full email/password login
//
// Returns:
//   - error: ErrInvalidCredentials on rejection, or a wrapped (retriable)
//     network/server error
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tokens != nil && c.tokens.IsValid() {
		return nil
	}

	if c.store != nil {
		stored, err := c.store.Load(ctx, c.email)
		switch {
		case err == nil && stored.IsValid():
			c.logger.Info("restored stored tokens, skipping login",
				"expires_at", stored.ExpiresAt)
			c.tokens = stored
			return nil
		case err == nil:
			c.logger.Info("stored tokens expired, performing full login",
				"expires_at", stored.ExpiresAt)
		case !errors.Is(err, ErrNoStoredTokens):
			c.logger.Warn("failed to restore stored tokens, performing full login",
				"error", err)
		}
	}

	return c.loginLocked(ctx)
}

// EnsureValidToken refreshes or re-acquires tokens if the current set is
// missing or expired. Called before every transport connect so the MQTT
// handshake never runs with a stale credential.
func (c *Client) EnsureValidToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tokens != nil && c.tokens.IsValid() {
		return nil
	}

	// Prefer the refresh grant when we hold a refresh token.
	if c.tokens != nil && c.tokens.RefreshToken != "" {
		if err := c.refreshLocked(ctx); err == nil {
			return nil
		} else if !errors.Is(err, ErrTokenRefreshFailed) {
			// Network error: worth surfacing so the caller can retry the
			// whole operation rather than burning the refresh token.
			return err
		}
		c.logger.Warn("token refresh rejected, falling back to full login")
	}

	return c.loginLocked(ctx)
}

// AccessToken returns the current access token.
// Returns ErrNotAuthenticated if no login has succeeded yet.
func (c *Client) AccessToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tokens == nil || c.tokens.AccessToken == "" {
		return "", ErrNotAuthenticated
	}
	return c.tokens.AccessToken, nil
}

// CurrentTokens returns a copy of the current token set, or nil.
func (c *Client) CurrentTokens() *Tokens {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tokens == nil {
		return nil
	}
	cpy := *c.tokens
	return &cpy
}

// loginResponse is the wire shape of login and refresh responses.
type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	IDToken      string `json:"idToken"`
	ExpiresIn    int    `json:"expiresIn"` // seconds
}

// loginLocked performs the full email/password login. Caller holds c.mu.
func (c *Client) loginLocked(ctx context.Context) error {
	body := map[string]string{
		"userId":   c.email,
		"password": c.password,
	}

	resp, err := c.post(ctx, "/user/sign-in", body, "")
	if err != nil {
		return fmt.Errorf("login request: %w", err)
	}

	tokens, err := decodeTokens(resp)
	if err != nil {
		return err
	}

	c.tokens = tokens
	c.logger.Info("login successful", "expires_at", tokens.ExpiresAt)
	c.persistLocked(ctx)
	return nil
}

// refreshLocked exchanges the refresh token for a new token set.
// Caller holds c.mu.
func (c *Client) refreshLocked(ctx context.Context) error {
	body := map[string]string{
		"userId":       c.email,
		"refreshToken": c.tokens.RefreshToken,
	}

	resp, err := c.post(ctx, "/user/refresh-token", body, "")
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			// A rejected refresh token is not a credential problem;
			// the caller falls back to a full login.
			return ErrTokenRefreshFailed
		}
		return fmt.Errorf("refresh request: %w", err)
	}

	tokens, err := decodeTokens(resp)
	if err != nil {
		return err
	}

	// The cloud may omit a new refresh token; keep the old one.
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = c.tokens.RefreshToken
	}

	c.tokens = tokens
	c.logger.Debug("token refresh successful", "expires_at", tokens.ExpiresAt)
	c.persistLocked(ctx)
	return nil
}

// persistLocked saves the current token set if a store is configured.
// Persistence failures are logged, never propagated: a working in-memory
// token set must not be invalidated by a storage problem.
func (c *Client) persistLocked(ctx context.Context) {
	if c.store == nil || c.tokens == nil {
		return
	}
	if err := c.store.Save(ctx, c.email, *c.tokens); err != nil {
		c.logger.Warn("failed to persist tokens", "error", err)
	}
}

// post issues a JSON POST and returns the response body.
// 401/403 map to ErrInvalidCredentials; other non-2xx to wrapped errors.
func (c *Client) post(ctx context.Context, path string, body any, bearer string) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrInvalidCredentials
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("cloud returned status %d: %s", resp.StatusCode, truncate(data, 200))
	}

	return data, nil
}

// decodeTokens parses a login/refresh response into a Tokens value.
func decodeTokens(data []byte) (*Tokens, error) {
	var lr loginResponse
	if err := json.Unmarshal(data, &lr); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if lr.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access token")
	}

	return &Tokens{
		AccessToken:  lr.AccessToken,
		RefreshToken: lr.RefreshToken,
		IDToken:      lr.IDToken,
		ExpiresAt:    time.Now().Add(time.Duration(lr.ExpiresIn) * time.Second),
	}, nil
}

// truncate limits response bodies embedded in error messages.
func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
