package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"overtone/internal/engine"
	"overtone/internal/ledger"
	"overtone/internal/testsupport"
	"overtone/internal/transport"
)

type fakeCanceller struct {
	cancelled []string
	result    bool
}

func (f *fakeCanceller) CancelJob(jobID string) bool {
	f.cancelled = append(f.cancelled, jobID)
	return f.result
}

func newDispatcher(t *testing.T) (*Dispatcher, *ledger.Store, *transport.MemoryTransport, *fakeCanceller) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	queue := transport.NewMemory()
	t.Cleanup(func() { queue.Close() })
	canceller := &fakeCanceller{}
	return New(store, queue, canceller, nil), store, queue, canceller
}

func TestSubmitCreatesJobAndSignal(t *testing.T) {
	d, store, queue, _ := newDispatcher(t)
	ctx := context.Background()

	job, err := d.Submit(ctx, SubmitRequest{
		ProjectID: "project-1",
		Operation: "process",
		Input:     "art:input",
		Settings:  engine.Settings{Normalize: true},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.State != ledger.StateQueued {
		t.Fatalf("state %s, want queued", job.State)
	}

	stored, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	settings, err := engine.ParseSettings(stored.SettingsJSON)
	if err != nil {
		t.Fatalf("parse stored settings: %v", err)
	}
	if !settings.Normalize {
		t.Fatal("settings snapshot lost normalize flag")
	}

	delivery, err := queue.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("expected a queue signal: %v", err)
	}
	if delivery.JobID != job.ID {
		t.Fatalf("signal names job %q, want %q", delivery.JobID, job.ID)
	}
}

func TestSubmitValidation(t *testing.T) {
	d, _, _, _ := newDispatcher(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  SubmitRequest
	}{
		{"missing project", SubmitRequest{Operation: "process", Input: "art:x"}},
		{"unknown operation", SubmitRequest{ProjectID: "p", Operation: "transcode", Input: "art:x"}},
		{"missing input", SubmitRequest{ProjectID: "p", Operation: "process"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := d.Submit(ctx, tc.req); err == nil {
				t.Fatal("submit succeeded")
			}
		})
	}
}

func TestSubmitEnforcesSingleInFlight(t *testing.T) {
	d, _, _, _ := newDispatcher(t)
	ctx := context.Background()

	req := SubmitRequest{ProjectID: "project-1", Operation: "process", Input: "art:input"}
	if _, err := d.Submit(ctx, req); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	_, err := d.Submit(ctx, req)
	if !errors.Is(err, ledger.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// A different project is unaffected.
	other := SubmitRequest{ProjectID: "project-2", Operation: "process", Input: "art:input"}
	if _, err := d.Submit(ctx, other); err != nil {
		t.Fatalf("other project submit: %v", err)
	}
}

func TestSubmitResolvesGenerationInput(t *testing.T) {
	d, store, _, _ := newDispatcher(t)
	ctx := context.Background()

	seed := testsupport.SubmitJob(t, store, "project-1", ledger.OpProcess)
	ok, err := store.Claim(ctx, seed.ID, "worker-0")
	if err != nil || !ok {
		t.Fatalf("claim seed: ok=%v err=%v", ok, err)
	}
	if err := store.Complete(ctx, seed.ID, "art:result"); err != nil {
		t.Fatalf("complete seed: %v", err)
	}
	gen, err := store.CreateGeneration(ctx, seed.ID, "take one")
	if err != nil {
		t.Fatalf("create generation: %v", err)
	}

	job, err := d.Submit(ctx, SubmitRequest{
		ProjectID: "project-1",
		Operation: "export",
		Input:     "gen:" + gen.ID,
		Settings:  engine.Settings{Format: engine.FormatWAV16},
	})
	if err != nil {
		t.Fatalf("submit against generation: %v", err)
	}
	if job.Input != "art:result" {
		t.Fatalf("input resolved to %q, want art:result", job.Input)
	}
}

func TestSubmitRejectsDeletedGeneration(t *testing.T) {
	d, store, _, _ := newDispatcher(t)
	ctx := context.Background()

	seed := testsupport.SubmitJob(t, store, "project-1", ledger.OpProcess)
	if ok, err := store.Claim(ctx, seed.ID, "worker-0"); err != nil || !ok {
		t.Fatalf("claim seed: ok=%v err=%v", ok, err)
	}
	if err := store.Complete(ctx, seed.ID, "art:result"); err != nil {
		t.Fatalf("complete seed: %v", err)
	}
	gen, err := store.CreateGeneration(ctx, seed.ID, "")
	if err != nil {
		t.Fatalf("create generation: %v", err)
	}
	if _, err := store.DeleteGeneration(ctx, gen.ID); err != nil {
		t.Fatalf("delete generation: %v", err)
	}

	_, err = d.Submit(ctx, SubmitRequest{
		ProjectID: "project-1",
		Operation: "export",
		Input:     "gen:" + gen.ID,
	})
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProjectProgress(t *testing.T) {
	d, store, _, _ := newDispatcher(t)
	ctx := context.Background()

	if _, err := d.ProjectProgress(ctx, "unknown"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown project, got %v", err)
	}

	job := testsupport.SubmitJob(t, store, "project-1", ledger.OpProcess)
	report, err := d.ProjectProgress(ctx, "project-1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if report.State != ledger.StateQueued || report.JobID != job.ID {
		t.Fatalf("unexpected report %+v", report)
	}

	if ok, err := store.Claim(ctx, job.ID, "worker-0"); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if err := store.UpdateProgress(ctx, job.ID, 40); err != nil {
		t.Fatalf("progress update: %v", err)
	}
	report, err = d.ProjectProgress(ctx, "project-1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if report.State != ledger.StateRunning || report.Percent != 40 {
		t.Fatalf("unexpected running report %+v", report)
	}

	if err := store.Complete(ctx, job.ID, "art:out"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	report, err = d.ProjectProgress(ctx, "project-1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if report.State != ledger.StateCompleted || report.Percent != 100 {
		t.Fatalf("unexpected completed report %+v", report)
	}
}

func TestEstimateETA(t *testing.T) {
	started := time.Now().Add(-30 * time.Second)
	job := &ledger.Job{Percent: 25, StartedAt: &started}

	eta := estimateETA(job, time.Now())
	// 25% in 30s extrapolates to ~90s remaining.
	if eta < 80 || eta > 100 {
		t.Fatalf("eta %g, want ~90", eta)
	}

	if eta := estimateETA(&ledger.Job{Percent: 0, StartedAt: &started}, time.Now()); eta != 0 {
		t.Fatalf("eta %g for zero progress, want 0", eta)
	}
}

func TestCancelQueuedJob(t *testing.T) {
	d, store, _, _ := newDispatcher(t)
	ctx := context.Background()

	job := testsupport.SubmitJob(t, store, "project-1", ledger.OpProcess)
	if err := d.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != ledger.StateFailed || got.ErrorCode != ledger.CodeCancelled {
		t.Fatalf("cancelled job state %s code %s", got.State, got.ErrorCode)
	}
}

func TestCancelRunningJobGoesToPool(t *testing.T) {
	d, store, _, canceller := newDispatcher(t)
	canceller.result = true
	ctx := context.Background()

	job := testsupport.SubmitJob(t, store, "project-1", ledger.OpProcess)
	if ok, err := store.Claim(ctx, job.ID, "worker-0"); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	if err := d.Cancel(ctx, job.ID); err != nil {
		t.Fatalf("cancel running: %v", err)
	}
	if len(canceller.cancelled) != 1 || canceller.cancelled[0] != job.ID {
		t.Fatalf("pool interrupts %v, want [%s]", canceller.cancelled, job.ID)
	}
}

func TestCancelTerminalJobFails(t *testing.T) {
	d, store, _, _ := newDispatcher(t)
	ctx := context.Background()

	job := testsupport.SubmitJob(t, store, "project-1", ledger.OpProcess)
	if ok, err := store.Claim(ctx, job.ID, "worker-0"); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if err := store.Complete(ctx, job.ID, "art:out"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if err := d.Cancel(ctx, job.ID); !errors.Is(err, ledger.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestRequeueSignalsQueue(t *testing.T) {
	d, store, queue, _ := newDispatcher(t)
	ctx := context.Background()

	job := testsupport.SubmitJob(t, store, "project-1", ledger.OpProcess)
	if ok, err := store.Claim(ctx, job.ID, "worker-0"); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	if err := d.Requeue(ctx, job.ID); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	got, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != ledger.StateQueued {
		t.Fatalf("state %s after requeue, want queued", got.State)
	}

	delivery, err := queue.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("expected signal after requeue: %v", err)
	}
	if delivery.JobID != job.ID {
		t.Fatalf("signal names %q, want %q", delivery.JobID, job.ID)
	}
}

func TestStaleRunningUsesTimeout(t *testing.T) {
	d, store, _, _ := newDispatcher(t)
	ctx := context.Background()

	job := testsupport.SubmitJob(t, store, "project-1", ledger.OpProcess)
	if ok, err := store.Claim(ctx, job.ID, "worker-0"); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}

	// Heartbeat is fresh, so nothing is stale yet.
	stale, err := d.StaleRunning(ctx, time.Minute)
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("stale count %d, want 0", len(stale))
	}

	stale, err = d.StaleRunning(ctx, -time.Minute)
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("stale count %d, want 1", len(stale))
	}
}
