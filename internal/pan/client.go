package pan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Retry and backoff defaults. All are construction-time configurable
// through Options.
const (
	defaultMaxRetries    = 5
	defaultBaseBackoff   = 500 * time.Millisecond
	defaultMaxBackoff    = 30 * time.Second
	defaultBackoffFactor = 2.0
	jitterFraction       = 0.25
	userAgent            = "pan123-go/0.1"

	// platformHeader is required on every request to the open platform.
	platformHeader = "open_platform"

	// httpTimeout bounds a single request round-trip.
	httpTimeout = 30 * time.Second
)

// TokenSource provides bearer tokens for authenticated requests. Defined at
// the consumer per Go convention "accept interfaces, return structs";
// Manager is the real implementation.
type TokenSource interface {
	// Token returns a currently valid access token, refreshing if needed.
	Token(ctx context.Context) (string, error)

	// Invalidate discards any cached credential so the next Token call
	// performs a fresh acquisition. Called when the server reports the
	// token invalid mid-flight.
	Invalidate()
}

// Options configures a Client. Zero fields take the package defaults.
type Options struct {
	MaxRetries    int
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
	BackoffFactor float64

	// RetryableCodes is the set of business codes the client retries with
	// backoff. Defaults to rate-limit, verify-pending, and token-invalid.
	RetryableCodes []int

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client issues requests against the 123pan open API. It attaches the
// current bearer token, applies retry with exponential backoff for
// transient and rate-limited failures, and normalizes every outcome into
// either a raw JSON payload or a typed error.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      TokenSource
	logger     *slog.Logger

	maxRetries     int
	baseBackoff    time.Duration
	maxBackoff     time.Duration
	backoffFactor  float64
	retryableCodes map[int]bool

	// sleepFunc is called to wait between retries. Defaults to timeSleep.
	// Tests override this to avoid real delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
}

// NewClient creates an API client. baseURL is typically
// "https://open-api.123pan.com". token may be nil only if every call uses
// the withoutAuth option (the token manager itself does this).
func NewClient(baseURL string, token TokenSource, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpTimeout}
	}

	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    httpClient,
		token:         token,
		logger:        logger,
		maxRetries:    opts.MaxRetries,
		baseBackoff:   opts.BaseBackoff,
		maxBackoff:    opts.MaxBackoff,
		backoffFactor: opts.BackoffFactor,
		sleepFunc:     timeSleep,
	}

	if c.maxRetries == 0 {
		c.maxRetries = defaultMaxRetries
	}

	if c.baseBackoff == 0 {
		c.baseBackoff = defaultBaseBackoff
	}

	if c.maxBackoff == 0 {
		c.maxBackoff = defaultMaxBackoff
	}

	if c.backoffFactor == 0 {
		c.backoffFactor = defaultBackoffFactor
	}

	codes := opts.RetryableCodes
	if codes == nil {
		codes = []int{CodeRateLimited, CodeVerifyPending, CodeTokenInvalid}
	}

	c.retryableCodes = make(map[int]bool, len(codes))
	for _, code := range codes {
		c.retryableCodes[code] = true
	}

	return c
}

// SetTokenSource wires the token source after construction. The token
// manager needs the client for the acquisition call, so the two are
// connected in this order.
func (c *Client) SetTokenSource(token TokenSource) {
	c.token = token
}

// callOptions collects per-call adjustments.
type callOptions struct {
	noAuth       bool
	noRetryCodes map[int]bool
}

// CallOption adjusts a single Do invocation.
type CallOption func(*callOptions)

// WithoutRetryOn excludes a business code from the client's retryable set
// for this call only. The upload engine uses this for the verify-pending
// code, which it retries itself with a fixed delay — the two retry
// authorities must not compound.
func WithoutRetryOn(code int) CallOption {
	return func(o *callOptions) {
		if o.noRetryCodes == nil {
			o.noRetryCodes = make(map[int]bool, 1)
		}

		o.noRetryCodes[code] = true
	}
}

// withoutAuth skips the bearer token. Only the token acquisition call
// needs this, since no token exists yet.
func withoutAuth() CallOption {
	return func(o *callOptions) {
		o.noAuth = true
	}
}

// Do executes one API call and returns the envelope's data payload.
// path is joined to the base URL unless it is already absolute (slice
// upload servers come as full URLs). body, when non-nil, is marshaled to
// JSON once and re-sent on every retry attempt.
func (c *Client) Do(
	ctx context.Context, method, path string, query url.Values, body any, opts ...CallOption,
) (json.RawMessage, error) {
	var co callOptions
	for _, opt := range opts {
		opt(&co)
	}

	reqURL := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		reqURL = c.baseURL + path
	}

	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var bodyBytes []byte
	if body != nil {
		var err error
		if bodyBytes, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("pan: encoding request body: %w", err)
		}
	}

	var attempt int
	for {
		data, err := c.doOnce(ctx, method, reqURL, bodyBytes, co)
		if err == nil {
			return data, nil
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("pan: request canceled: %w", ctx.Err())
		}

		retryable, refreshToken := c.classifyForRetry(err, co)
		if !retryable || attempt >= c.maxRetries {
			if attempt > 0 {
				c.logger.Error("request failed after retries",
					slog.String("method", method),
					slog.String("path", path),
					slog.Int("attempts", attempt+1),
					slog.String("error", err.Error()),
				)
			}

			return nil, err
		}

		if refreshToken && c.token != nil {
			c.logger.Info("token rejected by server, forcing refresh",
				slog.String("path", path),
			)
			c.token.Invalidate()
		}

		backoff := c.calcBackoff(attempt)
		c.logger.Warn("retrying request",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()),
		)

		if sleepErr := c.sleepFunc(ctx, backoff); sleepErr != nil {
			return nil, fmt.Errorf("pan: request canceled: %w", sleepErr)
		}

		attempt++
	}
}

// classifyForRetry reports whether err warrants another attempt, and
// whether the cached token must be refreshed first.
func (c *Client) classifyForRetry(err error, co callOptions) (retryable, refreshToken bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		code := apiErr.Code
		if code == 0 || co.noRetryCodes[code] || !c.retryableCodes[code] {
			return false, false
		}

		return true, code == CodeTokenInvalid
	}

	// No business code: credential rejections are fatal, everything else
	// network-shaped (connection, timeout, HTTP 5xx) retries.
	if errors.Is(err, ErrAuth) {
		return false, false
	}

	return errors.Is(err, ErrNetwork), false
}

// doOnce executes a single HTTP round-trip and classifies the outcome.
func (c *Client) doOnce(
	ctx context.Context, method, reqURL string, body []byte, co callOptions,
) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("pan: creating request: %w", err)
	}

	req.Header.Set("Platform", platformHeader)
	req.Header.Set("User-Agent", userAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if !co.noAuth {
		tok, tokErr := c.token.Token(ctx)
		if tokErr != nil {
			return nil, tokErr
		}

		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrNetwork, method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", ErrNetwork, readErr)
	}

	return c.classifyResponse(resp, respBody)
}

// classifyResponse turns one HTTP response into a payload or typed error.
func (c *Client) classifyResponse(resp *http.Response, body []byte) (json.RawMessage, error) {
	// Server errors are transient; surface them as network-class failures
	// so the retry loop picks them up.
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrNetwork, resp.StatusCode, truncate(body))
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		apiErr := &APIError{HTTPStatus: resp.StatusCode, Message: truncate(body)}

		// Error responses often still carry the envelope.
		var env envelope
		if json.Unmarshal(body, &env) == nil && env.Code != 0 {
			apiErr.Code = env.Code
			apiErr.Message = env.Message
		}

		if resp.StatusCode == http.StatusUnauthorized {
			apiErr.Err = ErrAuth
		}

		return nil, apiErr
	}

	// 2xx with an empty body covers endpoints with no content payload.
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, &APIError{
			HTTPStatus: resp.StatusCode,
			Message:    "non-JSON response: " + truncate(body),
		}
	}

	if env.Code != CodeOK {
		return nil, &APIError{
			Code:       env.Code,
			Message:    env.Message,
			HTTPStatus: resp.StatusCode,
			Err:        classifyCode(env.Code),
		}
	}

	return env.Data, nil
}

// calcBackoff computes exponential backoff with ±25% jitter.
func (c *Client) calcBackoff(attempt int) time.Duration {
	backoff := float64(c.baseBackoff) * math.Pow(c.backoffFactor, float64(attempt))
	if backoff > float64(c.maxBackoff) {
		backoff = float64(c.maxBackoff)
	}

	jitter := backoff * jitterFraction * (rand.Float64()*2 - 1) //nolint:gosec // jitter does not need crypto rand
	backoff += jitter

	return time.Duration(backoff)
}

// truncate caps a response body for inclusion in error messages.
func truncate(body []byte) string {
	const maxLen = 200

	s := string(bytes.TrimSpace(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}

	return s
}

// timeSleep waits for the given duration or until the context is canceled.
// It is the default sleepFunc for Client.
func timeSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
