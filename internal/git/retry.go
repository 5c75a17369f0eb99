package git

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	wferrors "waterflow.dev/waterflow/internal/errors"
)

const remoteRetryMaxElapsed = 90 * time.Second

func newRemoteBackoff() backoff.BackOff {
	// BackOff implementations are stateful; always return a fresh instance.
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 15 * time.Second
	bo.MaxElapsedTime = remoteRetryMaxElapsed
	return bo
}

// isRetryableError returns true if the error is a transient failure of a
// remote git operation worth retrying.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, wferrors.ErrPushRejected) {
		return true
	}
	var cmdErr *wferrors.GitCommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	errStr := strings.ToLower(cmdErr.Stderr)
	if strings.Contains(errStr, "could not resolve host") {
		return true
	}
	if strings.Contains(errStr, "connection reset") {
		return true
	}
	if strings.Contains(errStr, "connection refused") {
		return true
	}
	if strings.Contains(errStr, "early eof") {
		return true
	}
	if strings.Contains(errStr, "the remote end hung up unexpectedly") {
		return true
	}
	if strings.Contains(errStr, "operation timed out") {
		return true
	}
	return false
}

// WithRetry executes a remote git operation with exponential backoff for
// transient failures. Non-retryable failures stop immediately.
func WithRetry(ctx context.Context, op func() error) error {
	bo := newRemoteBackoff()
	return backoff.Retry(func() error {
		err := op()
		if err != nil && isRetryableError(err) {
			return err // retryable, backoff will retry
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))
}

// PushWithRetry pushes branches, refreshing remote refs and retrying when the
// remote advanced concurrently. A push rejection is a retryable race, not a
// domain conflict.
func PushWithRetry(ctx context.Context, repo Repo, force bool, branches ...string) error {
	return WithRetry(ctx, func() error {
		err := repo.Push(ctx, force, branches...)
		if errors.Is(err, wferrors.ErrPushRejected) {
			_ = repo.Fetch(ctx)
		}
		return err
	})
}
