package testsupport

import (
	"context"
	"testing"
	"time"

	"overtone/internal/config"
	"overtone/internal/ledger"
)

// MustOpenStore opens a ledger.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SubmitJob creates a queued job for tests using the provided store.
func SubmitJob(t testing.TB, store *ledger.Store, projectID string, op ledger.Operation) *ledger.Job {
	t.Helper()

	job, err := store.Submit(context.Background(), projectID, op, "art:input", "{}")
	if err != nil {
		t.Fatalf("store.Submit: %v", err)
	}
	return job
}

// WaitFor polls condition until it returns true or the deadline expires.
func WaitFor(t testing.TB, timeout time.Duration, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

// WaitForState polls the ledger until the job reaches the wanted state.
func WaitForState(t testing.TB, store *ledger.Store, jobID string, want ledger.State, timeout time.Duration) *ledger.Job {
	t.Helper()

	var last *ledger.Job
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, err := store.GetByID(context.Background(), jobID)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		last = job
		if job != nil && job.State == want {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	if last != nil {
		t.Fatalf("job %s did not reach %s within %s (last state %s)", jobID, want, timeout, last.State)
	}
	t.Fatalf("job %s not found within %s", jobID, timeout)
	return nil
}
