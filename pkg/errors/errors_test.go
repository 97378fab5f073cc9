package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodeMapping(t *testing.T) {
	cases := []struct {
		err  *AppError
		want int
	}{
		{NotFound("waitlist entry", nil), http.StatusNotFound},
		{InvalidArgument("bad input", nil), http.StatusBadRequest},
		{Conflict("duplicate", nil), http.StatusConflict},
		{Unauthorized(nil), http.StatusUnauthorized},
		{Internal(errors.New("boom")), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.err.StatusCode(), tc.err.Message)
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Internal(cause)

	assert.Contains(t, err.Error(), "connection refused")
	assert.ErrorIs(t, err, cause)
}

func TestIsCode(t *testing.T) {
	err := Conflict("waitlist is at capacity", nil)

	assert.True(t, IsCode(err, ErrConflict))
	assert.False(t, IsCode(err, ErrNotFound))

	// Works through wrapping.
	wrapped := fmt.Errorf("enqueue: %w", err)
	assert.True(t, IsCode(wrapped, ErrConflict))

	assert.False(t, IsCode(errors.New("plain"), ErrConflict))
}
