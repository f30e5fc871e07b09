package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorIncludesInternal(t *testing.T) {
	err := Wrap(stdErrors.New("boom"), "failed")
	require.Equal(t, "failed: boom", err.Error())
	require.Equal(t, http.StatusInternalServerError, err.StatusCode)
}

func TestWithInternalCopiesAndStillMatches(t *testing.T) {
	cause := stdErrors.New("smtp down")
	with := ErrDeliveryFailed.WithInternal(cause)

	require.NotSame(t, ErrDeliveryFailed, with)
	require.Nil(t, ErrDeliveryFailed.Internal)
	require.ErrorIs(t, with, ErrDeliveryFailed)
	require.ErrorIs(t, with, cause)
	require.NotErrorIs(t, with, ErrTokenInvalid)
}

func TestFromError(t *testing.T) {
	require.Same(t, ErrNotFound, FromError(ErrNotFound))

	wrapped := fmt.Errorf("handler: %w", ErrTokenThrottled)
	require.Same(t, ErrTokenThrottled, FromError(wrapped))

	out := FromError(stdErrors.New("raw"))
	require.Equal(t, ErrInternalServer.Code, out.Code)
	require.NotNil(t, out.Internal)

	require.Nil(t, FromError(nil))
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("email is required")
	require.Equal(t, ErrBadRequest.Code, err.Code)
	require.Equal(t, "email is required", err.Message)
	require.Equal(t, http.StatusBadRequest, err.StatusCode)
	require.Equal(t, "Invalid request", ErrBadRequest.Message)
}

func TestTokenErrorStatuses(t *testing.T) {
	require.Equal(t, http.StatusBadRequest, ErrTokenInvalid.StatusCode)
	require.Equal(t, http.StatusTooManyRequests, ErrTokenThrottled.StatusCode)
	require.Equal(t, http.StatusNotFound, ErrAccountNotFound.StatusCode)
}
