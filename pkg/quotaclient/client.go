// AngelaMos | 2026
// client.go

// Package quotaclient talks to the access gate over HTTP and keeps an
// optimistic local copy of the caller's usage for display.
package quotaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/carterperez-dev/legalquota/internal/quota"
)

const (
	DefaultTimeout    = 10 * time.Second
	FingerprintHeader = "X-Client-Fingerprint"
)

type Decision struct {
	Allowed               bool   `json:"allowed"`
	Action                string `json:"action"`
	Reason                string `json:"reason,omitempty"`
	RequiredTier          string `json:"required_tier,omitempty"`
	Tier                  string `json:"tier,omitempty"`
	DeclaredTarget        string `json:"declared_target,omitempty"`
	Used                  int    `json:"used"`
	Limit                 int    `json:"limit"`
	Unbounded             bool   `json:"unbounded"`
	SuppressUpgradePrompt bool   `json:"suppress_upgrade_prompt,omitempty"`
}

type Usage struct {
	AccountID string    `json:"account_id"`
	Tier      string    `json:"tier"`
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Unbounded bool      `json:"unbounded"`
	ReadAt    time.Time `json:"read_at"`
}

// APIError is a non-2xx answer from the service.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("quota api: %d %s: %s", e.Status, e.Code, e.Message)
}

// IsDenied reports whether err is a gate denial (402).
func IsDenied(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusPaymentRequired
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken authenticates requests as an account.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithFingerprint identifies an anonymous caller.
func WithFingerprint(fp string) Option {
	return func(c *Client) { c.fingerprint = fp }
}

// Client is safe for concurrent use.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	token       string
	fingerprint string

	mu    sync.Mutex
	snap  quota.Snapshot
	known bool
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type actionRequest struct {
	Action string `json:"action"`
}

type chargeResponse struct {
	Used     int  `json:"used"`
	Recorded bool `json:"recorded"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

// Check asks the gate whether action may run now. The decision carries an
// authoritative counter read and replaces the local copy.
func (c *Client) Check(ctx context.Context, action string) (Decision, error) {
	var d Decision
	if err := c.do(ctx, http.MethodPost, "/v1/gate/check", actionRequest{Action: action}, &d); err != nil {
		return Decision{}, err
	}

	c.reconcile(quota.Usage{Used: d.Used, Limit: d.Limit, Unbounded: d.Unbounded, ReadAt: time.Now()})
	return d, nil
}

// Charge records one successful action. The local copy counts it as pending
// until the server confirms; a failed charge stays pending until Refresh.
func (c *Client) Charge(ctx context.Context, action string) (int, error) {
	c.mu.Lock()
	c.snap.Charge()
	c.mu.Unlock()

	var resp chargeResponse
	if err := c.do(ctx, http.MethodPost, "/v1/gate/charge", actionRequest{Action: action}, &resp); err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.snap.Confirm(resp.Used)
	c.mu.Unlock()
	return resp.Used, nil
}

// Refresh reads the authoritative usage of the signed-in account. Pending
// charges are dropped and a lower counter after a reset is taken as is.
func (c *Client) Refresh(ctx context.Context) (Usage, error) {
	var u Usage
	if err := c.do(ctx, http.MethodGet, "/v1/quota", nil, &u); err != nil {
		return Usage{}, err
	}

	c.reconcile(quota.Usage{Used: u.Used, Limit: u.Limit, Unbounded: u.Unbounded, ReadAt: u.ReadAt})
	return u, nil
}

// MayAttempt is a display hint. Before the first read it defers to the gate.
func (c *Client) MayAttempt() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.known || c.snap.MayAttempt()
}

// Displayed is the usage a UI shows, including unconfirmed charges.
func (c *Client) Displayed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.Displayed()
}

func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.Pending
}

func (c *Client) reconcile(u quota.Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap.Reconcile(u)
	c.known = true
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.fingerprint != "" {
		req.Header.Set(FingerprintHeader, c.fingerprint)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: decode response (status %d): %w", method, path, resp.StatusCode, err)
	}

	if resp.StatusCode >= http.StatusBadRequest || !env.Success {
		apiErr := &APIError{Status: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", method, path, err)
	}
	return nil
}
