// Package pan provides an HTTP client for the 123pan open platform API
// with token management, automatic retry, and error classification.
package pan

import (
	"errors"
	"fmt"
)

// Sentinel errors for outcome classification.
// Use errors.Is(err, pan.ErrAuth) to check.
var (
	// ErrAuth marks an unrecoverable credential rejection. Never retried.
	ErrAuth = errors.New("pan: authentication failed")

	// ErrNetwork marks a connectivity or timeout failure. The transport
	// retries these up to its ceiling before surfacing.
	ErrNetwork = errors.New("pan: network error")

	// ErrValidation marks malformed input caught before any network call.
	ErrValidation = errors.New("pan: validation error")

	// ErrUploadFailed marks a terminal upload state after the engine
	// exhausted its own retry ceilings.
	ErrUploadFailed = errors.New("pan: upload failed")
)

// Vendor business codes embedded in HTTP 200 response bodies. These are
// distinct from HTTP status codes; the envelope's code field carries them.
const (
	// CodeOK is the success code.
	CodeOK = 0

	// CodeTokenInvalid means the access token expired or was revoked.
	// The transport refreshes the token before retrying this one.
	CodeTokenInvalid = 401

	// CodeRateLimited means the caller exceeded the API QPS allowance.
	CodeRateLimited = 429

	// CodeVerifyPending means all slices arrived but the server-side
	// integrity check has not finished yet.
	CodeVerifyPending = 20103
)

// APIError is a vendor-level rejection: a non-zero business code in an
// otherwise successful HTTP response, or an HTTP error with a parseable
// envelope. The original code and message are preserved so failures can be
// correlated with vendor documentation.
type APIError struct {
	Code       int
	Message    string
	HTTPStatus int
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("pan: API error %d (HTTP %d): %s", e.Code, e.HTTPStatus, e.Message)
	}

	return fmt.Sprintf("pan: API error %d: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// BusinessCode extracts the vendor code from err, or -1 when err carries none.
func BusinessCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}

	return -1
}

// classifyCode maps a business code to a sentinel error for wrapping.
func classifyCode(code int) error {
	switch code {
	case CodeTokenInvalid:
		return ErrAuth
	default:
		return nil
	}
}
