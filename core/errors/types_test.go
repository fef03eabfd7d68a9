package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := New(CodeNotFound, CategoryValidation, "notification not found")
	assert.Equal(t, "[VALIDATION:NOT_FOUND] notification not found", err.Error())

	tagged := NewWithSource(CodeStorageError, CategoryStorage, "write failed", "sqlite")
	assert.Equal(t, "[STORAGE:STORAGE_ERROR] write failed (source: sqlite)", tagged.Error())
}

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(cause, CodeStorageError, CategoryStorage, "saving notification")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, err.Unwrap())
}

func TestWrapfFormatsMessage(t *testing.T) {
	err := Wrapf(nil, CodeProviderError, CategoryLifecycle, "provider %s %s failed", "system", "start")
	assert.Contains(t, err.Error(), "provider system start failed")
}

func TestIsMatchesByCodeAndCategory(t *testing.T) {
	err := Wrap(fmt.Errorf("row missing"), CodeNotFound, CategoryValidation, "lookup failed")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrRateLimited)

	// notification and interaction not-found share a code but not a category
	assert.NotErrorIs(t, err, ErrInteractionNotFound)
}

func TestIsMatchesWrappedSentinel(t *testing.T) {
	err := Wrapf(ErrUnknownIntent, CodeUnknownIntent, CategoryValidation, "unroutable intent %q", "telepathy")
	assert.ErrorIs(t, err, ErrUnknownIntent)
}

func TestAsExtractsHubError(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", New(CodeRateLimited, CategoryRateLimit, "slow down"))

	var hubErr *HubError
	require.True(t, As(wrapped, &hubErr))
	assert.Equal(t, CodeRateLimited, hubErr.Code)
}

func TestJoinAggregates(t *testing.T) {
	a := New(CodeProviderError, CategoryLifecycle, "provider a failed")
	b := New(CodeProviderError, CategoryLifecycle, "provider b failed")

	joined := Join(a, b)
	require.Error(t, joined)
	assert.ErrorIs(t, joined, a)
	assert.ErrorIs(t, joined, b)
	assert.Nil(t, Join(nil, nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, New(CodeNetworkError, CategoryNetwork, "").IsRetryable())
	assert.True(t, ErrQueueFull.IsRetryable())
	assert.False(t, ErrNotFound.IsRetryable())
	assert.False(t, ErrNotRecipient.IsRetryable())
}
