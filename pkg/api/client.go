// Package api wraps the platform's REST backend. The client attaches the
// session's bearer token to every request, retries transport timeouts with
// backoff, and coordinates token refresh so that any number of concurrent
// 401s produce exactly one refresh call.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ondelive/onde/internal/logging"
	"github.com/ondelive/onde/pkg/auth"
	"github.com/ondelive/onde/pkg/errors"
	"github.com/tidwall/gjson"
)

const (
	// maxTransportRetries bounds automatic retries of timed-out requests.
	maxTransportRetries = 2

	transportRetryBase = 500 * time.Millisecond
	refreshTimeout     = 10 * time.Second
)

// Options represents HTTP client options
type Options struct {
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// DefaultOptions returns default client options
func DefaultOptions() Options {
	return Options{
		Timeout: 30 * time.Second,
	}
}

// Client is the REST client. One instance per process; safe for concurrent
// use.
type Client struct {
	baseURL string
	http    *http.Client
	session *auth.Session
	logger  *logging.Logger

	// refresh singleton state. Requests that hit a 401 while a refresh is
	// in flight park on a waiter channel instead of racing a second
	// refresh.
	refreshMu  sync.Mutex
	refreshing bool
	waiters    []chan refreshResult
}

type refreshResult struct {
	token string
	err   error
}

// NewClient creates a new REST client bound to a session.
func NewClient(baseURL string, session *auth.Session, options Options) *Client {
	if options.Logger == nil {
		options.Logger = logging.New(logging.Config{Level: "info", Format: "text"})
	}

	httpClient := options.HTTPClient
	if httpClient == nil {
		timeout := options.Timeout
		if timeout <= 0 {
			timeout = DefaultOptions().Timeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		session: session,
		logger:  options.Logger.WithFields(map[string]any{"component": "api"}),
	}
}

// Session returns the session this client reads tokens from.
func (c *Client) Session() *auth.Session {
	return c.session
}

// Token returns the current access token, empty when unauthenticated.
func (c *Client) Token() string {
	return c.session.Token()
}

// Do performs a request against the backend, handling timeout retries and
// the single 401 refresh-and-replay cycle. A non-nil out receives the
// decoded JSON response body.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "MARSHAL_ERROR", "failed to encode request body")
		}
	}

	raw, err := c.DoRaw(ctx, method, path, payload)
	if err != nil {
		return err
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return errors.Wrap(err, errors.ErrorTypeProtocol, "DECODE_ERROR", "failed to decode response body")
		}
	}
	return nil
}

// DoRaw performs a request and returns the raw response body.
func (c *Client) DoRaw(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	status, raw, err := c.roundTrip(ctx, method, path, payload, c.session.Token())
	if err != nil {
		return nil, err
	}

	if status == http.StatusUnauthorized {
		token, refreshErr := c.refreshAccessToken(ctx)
		if refreshErr != nil {
			return nil, refreshErr
		}

		// Replay the original request once with the winning token.
		status, raw, err = c.roundTrip(ctx, method, path, payload, token)
		if err != nil {
			return nil, err
		}
	}

	if status < 200 || status > 299 {
		return nil, statusError(status, raw)
	}
	return raw, nil
}

// roundTrip sends one logical request, retrying transport timeouts with
// exponential backoff before surfacing them.
func (c *Client) roundTrip(ctx context.Context, method, path string, payload []byte, token string) (int, []byte, error) {
	for attempt := 0; ; attempt++ {
		status, raw, err := c.send(ctx, method, path, payload, token)
		if err == nil {
			return status, raw, nil
		}

		if !isTimeout(err) || attempt >= maxTransportRetries {
			if isTimeout(err) {
				return 0, nil, errors.Wrap(err, errors.ErrorTypeTimeout, "REQUEST_TIMEOUT", "request timed out")
			}
			return 0, nil, errors.Wrap(err, errors.ErrorTypeTransport, "REQUEST_FAILED", "request failed")
		}

		delay := transportRetryBase * time.Duration(1<<attempt)
		c.logger.Warn("request timed out, retrying",
			"method", method, "path", path, "attempt", attempt+1, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, nil, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "REQUEST_CANCELLED", "request cancelled")
		}
	}
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}

// refreshAccessToken runs the at-most-one-concurrent-refresh protocol and
// returns the token all queued requests should resume with.
func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	c.refreshMu.Lock()
	if c.refreshing {
		ch := make(chan refreshResult, 1)
		c.waiters = append(c.waiters, ch)
		c.refreshMu.Unlock()

		select {
		case res := <-ch:
			return res.token, res.err
		case <-ctx.Done():
			return "", errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "REFRESH_CANCELLED", "waiting for token refresh cancelled")
		}
	}
	c.refreshing = true
	c.refreshMu.Unlock()

	token, err := c.performRefresh(ctx)

	c.refreshMu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	c.refreshMu.Unlock()

	for _, ch := range waiters {
		ch <- refreshResult{token: token, err: err}
	}
	return token, err
}

// performRefresh calls the refresh endpoint directly, bypassing Do so the
// 401 handling cannot recurse.
func (c *Client) performRefresh(ctx context.Context) (string, error) {
	refreshToken := c.session.RefreshToken()
	if refreshToken == "" {
		c.session.Logout()
		return "", errors.New(errors.ErrorTypeSession, "NO_REFRESH_TOKEN", "no refresh token available")
	}

	payload, _ := json.Marshal(map[string]string{"refreshToken": refreshToken})

	refreshCtx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(refreshCtx, http.MethodPost, c.baseURL+"/auth/refresh-token", bytes.NewReader(payload))
	if err != nil {
		c.session.Logout()
		return "", errors.Wrap(err, errors.ErrorTypeSession, "REFRESH_FAILED", "token refresh failed")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.session.Logout()
		return "", errors.Wrap(err, errors.ErrorTypeSession, "REFRESH_FAILED", "token refresh failed")
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.session.Logout()
		return "", errors.New(errors.ErrorTypeSession, "REFRESH_FAILED",
			fmt.Sprintf("token refresh returned status %d", resp.StatusCode))
	}

	// Both field-name variants appear in the wild.
	token := gjson.GetBytes(raw, "token").String()
	if token == "" {
		token = gjson.GetBytes(raw, "access_Token").String()
	}
	if token == "" {
		c.session.Logout()
		return "", errors.New(errors.ErrorTypeSession, "REFRESH_FAILED", "refresh response carried no token")
	}

	c.session.SetToken(token)
	if rt := gjson.GetBytes(raw, "refreshToken").String(); rt != "" {
		c.session.SetRefreshToken(rt)
	}

	c.logger.Info("access token refreshed")
	return token, nil
}

// EnsureFreshToken refreshes the access token if it is expired or expiring
// soon. Used by the hub connection before invoking; best-effort for the
// caller, but failures are still reported.
func (c *Client) EnsureFreshToken(ctx context.Context) error {
	token := c.session.Token()
	if token == "" {
		return errors.New(errors.ErrorTypeSession, "NO_TOKEN", "no access token available")
	}

	if auth.IsExpired(token) || auth.IsExpiringSoon(token, auth.DefaultRefreshThreshold) {
		_, err := c.refreshAccessToken(ctx)
		return err
	}
	return nil
}

// ForceRefresh refreshes unconditionally and returns the new token.
func (c *Client) ForceRefresh(ctx context.Context) (string, error) {
	return c.refreshAccessToken(ctx)
}

// statusError maps a non-2xx response onto the error taxonomy.
func statusError(status int, body []byte) error {
	message := gjson.GetBytes(body, "message").String()
	if message == "" {
		message = fmt.Sprintf("request failed with status %d", status)
	}

	switch {
	case status == http.StatusUnauthorized:
		return errors.New(errors.ErrorTypeUnauthorized, "UNAUTHORIZED", message)
	case status == http.StatusNotFound:
		return errors.New(errors.ErrorTypeNotFound, "NOT_FOUND", message)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return errors.New(errors.ErrorTypeValidation, "INVALID_REQUEST", message)
	case status >= 500:
		return errors.New(errors.ErrorTypeInternal, "SERVER_ERROR", message)
	default:
		return errors.New(errors.ErrorTypeTransport, "UNEXPECTED_STATUS", message)
	}
}

// mustJSON encodes a request payload built from local structs; encoding
// them cannot fail.
func mustJSON(v any) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return payload
}

func isTimeout(err error) bool {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return stderrors.As(err, &ne) && ne.Timeout()
}
