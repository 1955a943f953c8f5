package apperr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"silexa/approvals/internal/apperr"
)

func TestNewAndIs(t *testing.T) {
	err := apperr.New(apperr.BadInput, "bad field %s", "x")
	assert.True(t, apperr.Is(err, apperr.BadInput))
	assert.False(t, apperr.Is(err, apperr.Forbidden))
	assert.Equal(t, apperr.BadInput, apperr.CodeOf(err))
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := apperr.Wrap(apperr.StoreUnavailable, cause, "write %s", "doc.json")

	var e *apperr.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, apperr.StoreUnavailable, e.Code)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "disk full")
}

func TestCodeOfNonAppErr(t *testing.T) {
	assert.Equal(t, apperr.Code(""), apperr.CodeOf(errors.New("plain")))
	assert.False(t, apperr.Is(errors.New("plain"), apperr.NotFound))
}

func TestRetryable(t *testing.T) {
	assert.True(t, apperr.Retryable(apperr.New(apperr.StoreUnavailable, "x")))
	assert.True(t, apperr.Retryable(apperr.New(apperr.Deadline, "x")))
	assert.False(t, apperr.Retryable(apperr.New(apperr.Forbidden, "x")))
	assert.False(t, apperr.Retryable(apperr.New(apperr.IllegalTransition, "x")))
	assert.False(t, apperr.Retryable(errors.New("plain")))
}
