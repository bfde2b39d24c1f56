package migrate

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(ctx, func() error {
			calls++
			return nil
		}, 3, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("succeeds after failures", func(t *testing.T) {
		calls := 0
		err := RetryWithBackoff(ctx, func() error {
			calls++
			if calls < 3 {
				return errors.New("transient")
			}
			return nil
		}, 5, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("returns last error when exhausted", func(t *testing.T) {
		sentinel := errors.New("still broken")
		calls := 0
		err := RetryWithBackoff(ctx, func() error {
			calls++
			return sentinel
		}, 3, time.Millisecond)
		assert.ErrorIs(t, err, sentinel)
		assert.Equal(t, 3, calls)
	})

	t.Run("invalid attempts", func(t *testing.T) {
		err := RetryWithBackoff(ctx, func() error { return nil }, 0, time.Millisecond)
		assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
	})

	t.Run("cancellation stops the wait", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := RetryWithBackoff(cctx, func() error { return errors.New("x") }, 3, time.Hour)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestTrackerReport(t *testing.T) {
	var buf bytes.Buffer
	tracker := NewTracker(&buf)

	tracker.Report(50, 122)
	tracker.Report(122, 122)

	assert.Contains(t, buf.String(), "migrated 50/122 items (41%")
	assert.Contains(t, buf.String(), "migrated 122/122 items (100%")
}
