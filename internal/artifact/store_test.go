package artifact_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"overtone/internal/artifact"
)

func TestFSStorePutGetRoundTrip(t *testing.T) {
	store, err := artifact.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	ctx := context.Background()
	payload := []byte("audio bytes")
	ref, err := store.Put(ctx, payload, "audio/wav")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Fatalf("round trip mismatch: %q", got)
	}
}

func TestFSStorePutIsIdempotentByContent(t *testing.T) {
	store, err := artifact.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	ctx := context.Background()
	ref1, err := store.Put(ctx, []byte("same"), "audio/wav")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	ref2, err := store.Put(ctx, []byte("same"), "audio/wav")
	if err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	if ref1 != ref2 {
		t.Fatalf("expected identical refs, got %q and %q", ref1, ref2)
	}

	ref3, err := store.Put(ctx, []byte("different"), "audio/wav")
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if ref3 == ref1 {
		t.Fatal("different content must produce a different ref")
	}
}

func TestFSStoreGetMissingRef(t *testing.T) {
	store, err := artifact.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	ctx := context.Background()
	if _, err := store.Get(ctx, "art:0000000000000000000000000000000000000000000000000000000000000000"); !errors.Is(err, artifact.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := store.Get(ctx, "bogus"); err == nil {
		t.Fatal("expected error for malformed ref")
	}
}

type flakyStore struct {
	inner    artifact.Store
	failures int32
}

func (f *flakyStore) Put(ctx context.Context, data []byte, contentType string) (artifact.Ref, error) {
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return "", errors.New("transient store outage")
	}
	return f.inner.Put(ctx, data, contentType)
}

func (f *flakyStore) Get(ctx context.Context, ref artifact.Ref) ([]byte, error) {
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return nil, errors.New("transient store outage")
	}
	return f.inner.Get(ctx, ref)
}

func TestWithRetryRecoversTransientFailures(t *testing.T) {
	inner, err := artifact.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	store := artifact.WithRetry(&flakyStore{inner: inner, failures: 2})

	ctx := context.Background()
	ref, err := store.Put(ctx, []byte("payload"), "audio/wav")
	if err != nil {
		t.Fatalf("Put through retry failed: %v", err)
	}
	if _, err := inner.Get(ctx, ref); err != nil {
		t.Fatalf("blob missing after retried put: %v", err)
	}
}

func TestWithRetryDoesNotRetryNotFound(t *testing.T) {
	inner, err := artifact.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}
	store := artifact.WithRetry(inner)

	if _, err := store.Get(context.Background(), "art:1111111111111111111111111111111111111111111111111111111111111111"); !errors.Is(err, artifact.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
