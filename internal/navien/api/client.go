// Package api provides the REST client for the Navien cloud device API.
//
// The REST surface is small: after authentication it serves the account's
// device inventory. Live state and control flow over MQTT instead, handled
// by the transport package.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/openhwp/navibridge/internal/navien"
	"github.com/openhwp/navibridge/internal/navien/auth"
)

// defaultBaseURL is the production Navien cloud endpoint.
const defaultBaseURL = "https://nlus.naviensmartcontrol.com/api/v2.5"

// httpTimeout bounds every REST call to the cloud.
const httpTimeout = 30 * time.Second

// TokenSource supplies a bearer token for API requests.
// *auth.Client satisfies this.
type TokenSource interface {
	AccessToken() (string, error)
	EnsureValidToken(ctx context.Context) error
}

// Client calls the Navien cloud REST API.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the cloud endpoint; used in tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient overrides the HTTP client; used in tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a REST client that authenticates with the given
// token source.
func NewClient(tokens TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: httpTimeout},
		tokens:     tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// deviceListResponse is the wire shape of the device list endpoint.
type deviceListResponse struct {
	Devices []deviceEntry `json:"devices"`
}

type deviceEntry struct {
	MACAddress string `json:"macAddress"`
	Name       string `json:"deviceName"`
	// The vendor sends numeric codes; Device carries them as strings.
	ModelType int    `json:"modelType"`
	HomeSeq   int    `json:"homeSeq"`
	City      string `json:"city"`
	State     string `json:"state"`
}

// ListDevices returns the account's registered devices.
//
// Returns:
//   - []navien.Device: at least one device
//   - error: ErrNoDevices when the account has none; auth errors propagate
//     from the token source; network/server errors come back wrapped
func (c *Client) ListDevices(ctx context.Context) ([]navien.Device, error) {
	if err := c.tokens.EnsureValidToken(ctx); err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	var resp deviceListResponse
	if err := c.get(ctx, "/device/list", &resp); err != nil {
		return nil, err
	}

	if len(resp.Devices) == 0 {
		return nil, ErrNoDevices
	}

	devices := make([]navien.Device, 0, len(resp.Devices))
	for _, d := range resp.Devices {
		devices = append(devices, navien.Device{
			MACAddress: d.MACAddress,
			Name:       d.Name,
			ModelType:  strconv.Itoa(d.ModelType),
			HomeSeq:    strconv.Itoa(d.HomeSeq),
			City:       d.City,
			State:      d.State,
		})
	}

	return devices, nil
}

// get issues an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	token, err := c.tokens.AccessToken()
	if err != nil {
		return fmt.Errorf("obtaining access token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return auth.ErrNotAuthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("cloud returned status %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
