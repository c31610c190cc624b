package artifact

import (
	"context"
	"errors"
	"time"
)

const (
	retryAttempts       = 4
	retryInitialBackoff = 50 * time.Millisecond
	retryMaxBackoff     = 2 * time.Second
)

// WithRetry wraps a Store with bounded exponential backoff for transient
// I/O failures. Storage operations are idempotent by content key, so
// repeating them is safe. Caller errors (malformed refs, missing blobs)
// are not retried.
func WithRetry(inner Store) Store {
	return &retryStore{inner: inner}
}

type retryStore struct {
	inner Store
}

func (r *retryStore) Put(ctx context.Context, data []byte, contentType string) (Ref, error) {
	var (
		ref Ref
		err error
	)
	err = retry(ctx, func() error {
		ref, err = r.inner.Put(ctx, data, contentType)
		return err
	})
	return ref, err
}

func (r *retryStore) Get(ctx context.Context, ref Ref) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	err = retry(ctx, func() error {
		data, err = r.inner.Get(ctx, ref)
		return err
	})
	return data, err
}

func retry(ctx context.Context, op func() error) error {
	delay := retryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt == retryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= retryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}
	return true
}
