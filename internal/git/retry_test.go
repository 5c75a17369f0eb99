package git

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wferrors "waterflow.dev/waterflow/internal/errors"
)

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"push rejection", wferrors.ErrPushRejected, true},
		{"wrapped push rejection", fmt.Errorf("push development/1.0: %w", wferrors.ErrPushRejected), true},
		{"dns failure", &wferrors.GitCommandError{Stderr: "fatal: Could not resolve host: example.com"}, true},
		{"connection reset", &wferrors.GitCommandError{Stderr: "error: connection reset by peer"}, true},
		{"hung up remote", &wferrors.GitCommandError{Stderr: "fatal: The remote end hung up unexpectedly"}, true},
		{"merge conflict", wferrors.NewMergeFailedError("development/1.0", "feature/x"), false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.retryable, isRetryableError(tc.err))
		})
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("retries transient failures until success", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 2 {
				return wferrors.ErrPushRejected
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("stops immediately on permanent failures", func(t *testing.T) {
		calls := 0
		wantErr := wferrors.NewMergeFailedError("development/1.0", "feature/x")
		err := WithRetry(context.Background(), func() error {
			calls++
			return wantErr
		})
		assert.ErrorIs(t, err, wferrors.ErrMergeFailed)
		assert.Equal(t, 1, calls)
	})
}
