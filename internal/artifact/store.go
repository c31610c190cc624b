package artifact

import (
	"context"
	"errors"
	"fmt"
)

// Ref identifies a stored artifact. Refs are stable strings of the form
// "art:<sha256>" so the same bytes always map to the same reference.
type Ref = string

// ErrNotFound indicates the referenced artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// Store is the persistence contract for audio blobs. Implementations
// must be safe for concurrent callers and idempotent by content key, so
// a retried Put can never corrupt or duplicate data.
type Store interface {
	Put(ctx context.Context, data []byte, contentType string) (Ref, error)
	Get(ctx context.Context, ref Ref) ([]byte, error)
}

// ParseRef validates an artifact reference and returns its content key.
func ParseRef(ref Ref) (string, error) {
	const prefix = "art:"
	if len(ref) <= len(prefix) || ref[:len(prefix)] != prefix {
		return "", fmt.Errorf("malformed artifact ref %q", ref)
	}
	return ref[len(prefix):], nil
}
