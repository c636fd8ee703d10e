package pan

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIErrorUnwrap(t *testing.T) {
	err := &APIError{Code: CodeTokenInvalid, Message: "token invalid", Err: ErrAuth}

	assert.ErrorIs(t, err, ErrAuth)
	assert.NotErrorIs(t, err, ErrNetwork)

	wrapped := fmt.Errorf("calling list: %w", err)

	var apiErr *APIError
	assert.True(t, errors.As(wrapped, &apiErr))
	assert.Equal(t, CodeTokenInvalid, apiErr.Code)
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{Code: 429, Message: "too many requests", HTTPStatus: 200}
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "too many requests")
}
