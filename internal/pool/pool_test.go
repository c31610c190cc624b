package pool

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"overtone/internal/artifact"
	"overtone/internal/config"
	"overtone/internal/engine"
	"overtone/internal/ledger"
	"overtone/internal/logging"
	"overtone/internal/notifications"
	"overtone/internal/testsupport"
	"overtone/internal/transport"
)

type poolHarness struct {
	cfg       *config.Config
	store     *ledger.Store
	artifacts artifact.Store
	queue     *transport.MemoryTransport
	pool      *Pool
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *poolHarness {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)

	fsStore, err := artifact.NewFSStore(cfg.Paths.ArtifactDir)
	if err != nil {
		t.Fatalf("artifact store: %v", err)
	}
	artifacts := artifact.WithRetry(fsStore)

	queue := transport.NewMemory()
	t.Cleanup(func() { queue.Close() })

	eng := engine.New(float64(cfg.Engine.MaxInputSeconds))
	notifier := notifications.NewService(&cfg.Notifications)

	p := New(cfg, store, artifacts, eng, queue, notifier, logging.NewNop())
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start pool: %v", err)
	}
	t.Cleanup(p.Stop)

	return &poolHarness{cfg: cfg, store: store, artifacts: artifacts, queue: queue, pool: p}
}

func (h *poolHarness) putAudio(t *testing.T) artifact.Ref {
	t.Helper()

	data, err := engine.EncodeWAV(testsupport.Sine(440, 0.25, 48000), engine.FormatWAV32F)
	if err != nil {
		t.Fatalf("encode input: %v", err)
	}
	ref, err := h.artifacts.Put(context.Background(), data, engine.ContentTypeWAV)
	if err != nil {
		t.Fatalf("store input: %v", err)
	}
	return ref
}

func (h *poolHarness) submit(t *testing.T, projectID string, op ledger.Operation, input, settings string) *ledger.Job {
	t.Helper()

	job, err := h.store.Submit(context.Background(), projectID, op, input, settings)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := h.queue.Enqueue(context.Background(), job.ID); err != nil {
		t.Fatalf("enqueue signal: %v", err)
	}
	return job
}

func TestPoolCompletesJob(t *testing.T) {
	h := newHarness(t)
	input := h.putAudio(t)

	job := h.submit(t, "project-1", ledger.OpProcess, input, `{"normalize":true}`)
	done := testsupport.WaitForState(t, h.store, job.ID, ledger.StateCompleted, 10*time.Second)

	if !strings.HasPrefix(done.Output, "art:") {
		t.Fatalf("completed job output %q is not an artifact ref", done.Output)
	}
	if done.Percent != 100 {
		t.Fatalf("completed job progress %g, want 100", done.Percent)
	}

	output, err := h.artifacts.Get(context.Background(), done.Output)
	if err != nil {
		t.Fatalf("fetch output: %v", err)
	}
	if _, err := engine.DecodeWAV(output); err != nil {
		t.Fatalf("output is not valid audio: %v", err)
	}

	gens, err := h.store.GenerationsForProject(context.Background(), "project-1")
	if err != nil {
		t.Fatalf("list generations: %v", err)
	}
	if len(gens) != 1 {
		t.Fatalf("generation count %d, want 1", len(gens))
	}
	if gens[0].Artifact != done.Output {
		t.Fatalf("generation artifact %q, want %q", gens[0].Artifact, done.Output)
	}
}

func TestPoolFailsOnMissingArtifact(t *testing.T) {
	h := newHarness(t)

	missing := "art:" + strings.Repeat("0", 64)
	job := h.submit(t, "project-1", ledger.OpProcess, missing, "{}")
	failed := testsupport.WaitForState(t, h.store, job.ID, ledger.StateFailed, 10*time.Second)

	if failed.ErrorCode != ledger.CodeArtifactIO {
		t.Fatalf("error code %q, want %q", failed.ErrorCode, ledger.CodeArtifactIO)
	}
}

func TestPoolFailsOnInvalidRegion(t *testing.T) {
	h := newHarness(t)
	input := h.putAudio(t)

	job := h.submit(t, "project-1", ledger.OpInpaint, input, `{"regions":[{"start":5,"end":3}]}`)
	failed := testsupport.WaitForState(t, h.store, job.ID, ledger.StateFailed, 10*time.Second)

	if failed.ErrorCode != ledger.CodeInvalidRegion {
		t.Fatalf("error code %q, want %q", failed.ErrorCode, ledger.CodeInvalidRegion)
	}
}

func TestPoolProcessesManyProjects(t *testing.T) {
	h := newHarness(t, testsupport.WithWorkers(4, 1, 8))
	input := h.putAudio(t)

	var jobs []*ledger.Job
	for _, project := range []string{"p1", "p2", "p3", "p4", "p5"} {
		jobs = append(jobs, h.submit(t, project, ledger.OpProcess, input, `{"denoise":true}`))
	}
	for _, job := range jobs {
		testsupport.WaitForState(t, h.store, job.ID, ledger.StateCompleted, 15*time.Second)
	}
}

func TestPoolIgnoresDuplicateSignals(t *testing.T) {
	h := newHarness(t)
	input := h.putAudio(t)

	job := h.submit(t, "project-1", ledger.OpProcess, input, "{}")
	for i := 0; i < 3; i++ {
		if err := h.queue.Enqueue(context.Background(), job.ID); err != nil {
			t.Fatalf("duplicate enqueue: %v", err)
		}
	}
	done := testsupport.WaitForState(t, h.store, job.ID, ledger.StateCompleted, 10*time.Second)
	if done.WorkerID == "" {
		t.Fatal("completed job has no worker recorded")
	}
}

// stallingArtifacts delays the first Get until the caller's context
// expires, simulating a job stuck mid-fetch.
type stallingArtifacts struct {
	artifact.Store
	delay   time.Duration
	stalled atomic.Bool
}

func (s *stallingArtifacts) Get(ctx context.Context, ref artifact.Ref) ([]byte, error) {
	if s.stalled.CompareAndSwap(false, true) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	return s.Store.Get(ctx, ref)
}

func TestPoolTimesOutStuckJob(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1, 1, 1), testsupport.WithJobTimeout(1))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)

	fsStore, err := artifact.NewFSStore(cfg.Paths.ArtifactDir)
	if err != nil {
		t.Fatalf("artifact store: %v", err)
	}
	artifacts := &stallingArtifacts{Store: artifact.WithRetry(fsStore), delay: 30 * time.Second}

	queue := transport.NewMemory()
	t.Cleanup(func() { queue.Close() })

	eng := engine.New(float64(cfg.Engine.MaxInputSeconds))
	p := New(cfg, store, artifacts, eng, queue, notifications.NewService(&cfg.Notifications), logging.NewNop())
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start pool: %v", err)
	}
	t.Cleanup(p.Stop)

	data, err := engine.EncodeWAV(testsupport.Sine(440, 0.25, 48000), engine.FormatWAV32F)
	if err != nil {
		t.Fatalf("encode input: %v", err)
	}
	ref, err := fsStore.Put(context.Background(), data, engine.ContentTypeWAV)
	if err != nil {
		t.Fatalf("store input: %v", err)
	}

	stuck, err := store.Submit(context.Background(), "project-1", ledger.OpProcess, ref, "{}")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := queue.Enqueue(context.Background(), stuck.ID); err != nil {
		t.Fatalf("enqueue signal: %v", err)
	}

	failed := testsupport.WaitForState(t, store, stuck.ID, ledger.StateFailed, 10*time.Second)
	if failed.ErrorCode != ledger.CodeTimeout {
		t.Fatalf("error code %q, want %q", failed.ErrorCode, ledger.CodeTimeout)
	}

	// The slot must be free to claim again after the forced failure.
	next, err := store.Submit(context.Background(), "project-2", ledger.OpProcess, ref, "{}")
	if err != nil {
		t.Fatalf("submit follow-up: %v", err)
	}
	if err := queue.Enqueue(context.Background(), next.ID); err != nil {
		t.Fatalf("enqueue follow-up: %v", err)
	}
	testsupport.WaitForState(t, store, next.ID, ledger.StateCompleted, 10*time.Second)
}

func TestPoolDropsSignalForUnknownJob(t *testing.T) {
	h := newHarness(t)
	input := h.putAudio(t)

	// A delivery can name a job the ledger no longer knows, e.g. a redis
	// pending-list entry that outlived a ledger reset. The slot must ack
	// and drop it, not die on it.
	if err := h.queue.Enqueue(context.Background(), "no-such-job"); err != nil {
		t.Fatalf("enqueue stale signal: %v", err)
	}

	job := h.submit(t, "project-1", ledger.OpProcess, input, "{}")
	testsupport.WaitForState(t, h.store, job.ID, ledger.StateCompleted, 10*time.Second)

	testsupport.WaitFor(t, 5*time.Second, func() bool {
		depth, err := h.queue.Depth(context.Background())
		return err == nil && depth == 0
	})
}

func TestSetCapacityClamps(t *testing.T) {
	h := newHarness(t, testsupport.WithWorkers(2, 1, 4))

	if got := h.pool.SetCapacity(100); got != 4 {
		t.Fatalf("capacity %d, want clamp to 4", got)
	}
	if got := h.pool.SetCapacity(0); got != 1 {
		t.Fatalf("capacity %d, want clamp to 1", got)
	}
	if got := h.pool.Capacity(); got != 1 {
		t.Fatalf("capacity reads %d, want 1", got)
	}
}

func TestSlotsReportOccupancy(t *testing.T) {
	h := newHarness(t, testsupport.WithWorkers(2, 1, 4))

	slots := h.pool.Slots()
	if len(slots) != 4 {
		t.Fatalf("got %d slots, want 4", len(slots))
	}
	active := 0
	for i, slot := range slots {
		if slot.Slot != i {
			t.Fatalf("slot %d reports index %d", i, slot.Slot)
		}
		if slot.JobID != "" {
			t.Fatalf("idle slot %d carries job %s", i, slot.JobID)
		}
		if slot.Active {
			active++
		}
	}
	if active != 2 {
		t.Fatalf("%d active slots, want 2", active)
	}
}

func TestCancelJobUnknown(t *testing.T) {
	h := newHarness(t)

	if h.pool.CancelJob("no-such-job") {
		t.Fatal("cancel reported success for unknown job")
	}
}

func TestClassifyError(t *testing.T) {
	background := context.Background()
	expired, cancelExpired := context.WithTimeout(background, time.Nanosecond)
	defer cancelExpired()
	time.Sleep(time.Millisecond)

	cancelled, cancelNow := context.WithCancel(background)
	cancelNow()

	cases := []struct {
		name     string
		poolCtx  context.Context
		jobCtx   context.Context
		err      error
		wantCode string
	}{
		{"invalid region", background, background, &engine.InvalidRegionError{Reason: "end not after start"}, ledger.CodeInvalidRegion},
		{"unsupported format", background, background, &engine.UnsupportedFormatError{Format: "mp3"}, ledger.CodeUnsupportedFormat},
		{"deadline", background, expired, context.DeadlineExceeded, ledger.CodeTimeout},
		{"cancel after deadline", background, expired, context.Canceled, ledger.CodeTimeout},
		{"operator cancel", background, cancelled, context.Canceled, ledger.CodeCancelled},
		{"shutdown", cancelled, cancelled, context.Canceled, ledger.CodeShutdown},
		{"artifact missing", background, background, artifact.ErrNotFound, ledger.CodeArtifactIO},
		{"engine failure", background, background, errors.New("decode input: wav: file too short"), ledger.CodeEngineFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifyError(tc.poolCtx, tc.jobCtx, tc.err)
			if got.Code != tc.wantCode {
				t.Fatalf("code %q, want %q", got.Code, tc.wantCode)
			}
		})
	}
}
