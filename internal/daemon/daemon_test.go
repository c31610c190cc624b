package daemon_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"overtone/internal/api"
	"overtone/internal/daemon"
	"overtone/internal/engine"
	"overtone/internal/ledger"
	"overtone/internal/logging"
	"overtone/internal/testsupport"
)

func startDaemon(t *testing.T) (*daemon.Daemon, *api.Client) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	d, err := daemon.New(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	addr := d.APIAddr()
	if addr == "" {
		t.Fatal("daemon has no API address")
	}
	return d, api.NewClient(addr)
}

func seedArtifact(t *testing.T, d *daemon.Daemon) string {
	t.Helper()

	data, err := engine.EncodeWAV(testsupport.Sine(440, 0.25, 48000), engine.FormatWAV32F)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	ref, err := d.Artifacts().Put(context.Background(), data, engine.ContentTypeWAV)
	if err != nil {
		t.Fatalf("put artifact: %v", err)
	}
	return ref
}

func TestDaemonEndToEnd(t *testing.T) {
	d, client := startDaemon(t)
	ctx := context.Background()
	input := seedArtifact(t, d)

	job, err := client.Submit(ctx, api.SubmitRequest{
		ProjectID: "project-1",
		Operation: "process",
		Input:     input,
		Settings:  api.SettingsPayload{Normalize: true},
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.State != "queued" {
		t.Fatalf("submitted job state %q", job.State)
	}

	// A second submission for the same project is rejected while the
	// first is in flight.
	_, err = client.Submit(ctx, api.SubmitRequest{
		ProjectID: "project-1",
		Operation: "process",
		Input:     input,
	})
	if err == nil || !strings.Contains(err.Error(), "409") {
		t.Fatalf("expected 409 conflict, got %v", err)
	}

	testsupport.WaitFor(t, 15*time.Second, func() bool {
		report, err := client.Progress(ctx, "project-1")
		return err == nil && report.State == "completed"
	})

	final, err := client.Job(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if !strings.HasPrefix(final.Output, "art:") {
		t.Fatalf("output %q is not an artifact ref", final.Output)
	}

	gens, err := client.Generations(ctx, "project-1")
	if err != nil {
		t.Fatalf("generations: %v", err)
	}
	if len(gens) != 1 {
		t.Fatalf("generation count %d, want 1", len(gens))
	}

	if err := client.DeleteGeneration(ctx, gens[0].ID); err != nil {
		t.Fatalf("delete generation: %v", err)
	}
	if err := client.DeleteGeneration(ctx, gens[0].ID); err == nil {
		t.Fatal("second delete succeeded")
	}

	// The job survives generation deletion as an audit record.
	if _, err := client.Job(ctx, job.ID); err != nil {
		t.Fatalf("job lookup after generation delete: %v", err)
	}
}

func TestDaemonStatusAndMetrics(t *testing.T) {
	_, client := startDaemon(t)
	ctx := context.Background()

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.Running {
		t.Fatal("daemon reports not running")
	}
	if status.LedgerPath == "" || status.LockFilePath == "" {
		t.Fatalf("status missing paths: %+v", status)
	}

	testsupport.WaitFor(t, 5*time.Second, func() bool {
		metrics, err := client.Metrics(ctx)
		return err == nil && metrics.SampledAt != ""
	})
}

func TestDaemonCapacityEndpoint(t *testing.T) {
	_, client := startDaemon(t)
	ctx := context.Background()

	applied, err := client.SetCapacity(ctx, 100)
	if err != nil {
		t.Fatalf("set capacity: %v", err)
	}
	if applied != 8 {
		t.Fatalf("capacity %d, want clamp to 8", applied)
	}
}

func TestDaemonCancelQueuedJob(t *testing.T) {
	d, client := startDaemon(t)
	ctx := context.Background()

	// Park the pool so the job stays queued long enough to cancel.
	d.Pool().SetCapacity(0)
	input := seedArtifact(t, d)

	job, err := client.Submit(ctx, api.SubmitRequest{
		ProjectID: "project-1",
		Operation: "process",
		Input:     input,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := client.Cancel(ctx, job.ID); err != nil {
		// The pool may have finished the job before the cancel landed.
		t.Skipf("job already terminal: %v", err)
	}

	testsupport.WaitFor(t, 10*time.Second, func() bool {
		got, err := client.Job(ctx, job.ID)
		return err == nil && got.State == "failed" && got.ErrorCode == ledger.CodeCancelled
	})
}

func TestDaemonSingleInstanceLock(t *testing.T) {
	d, _ := startDaemon(t)

	cfg := testsupport.NewConfig(t)
	cfg.Paths.LogDir = d.LockDir()
	second, err := daemon.New(context.Background(), cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("second daemon.New: %v", err)
	}
	defer second.Close()

	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second daemon acquired the lock")
	}
}

func TestDaemonUnknownJobIs404(t *testing.T) {
	_, client := startDaemon(t)

	_, err := client.Job(context.Background(), "missing")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("expected 404, got %v", err)
	}
}
