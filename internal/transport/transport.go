package transport

import (
	"context"
	"errors"
	"time"
)

// ErrEmpty is returned by Dequeue when no signal arrived within the
// blocking window.
var ErrEmpty = errors.New("transport: queue empty")

// Delivery is one wake-up signal carrying the ID of a job that may be
// ready to claim. Delivery is at-least-once: duplicates are expected
// and resolved by the job store, where a second claim of the same job
// simply fails.
type Delivery struct {
	JobID string
}

// Transport moves wake-up signals from submitters to workers. It is a
// latency optimization on top of polling, never the source of truth:
// losing every signal only delays work until the next poll tick.
type Transport interface {
	// Enqueue publishes a signal for the given job.
	Enqueue(ctx context.Context, jobID string) error

	// Dequeue blocks up to the given duration for the next signal.
	// Returns ErrEmpty on timeout.
	Dequeue(ctx context.Context, block time.Duration) (Delivery, error)

	// Ack confirms a delivery was handled.
	Ack(ctx context.Context, d Delivery) error

	// Nack returns a delivery to the queue for redelivery.
	Nack(ctx context.Context, d Delivery) error

	// Depth reports the number of undelivered signals, for metrics.
	Depth(ctx context.Context) (int64, error)

	Close() error
}
