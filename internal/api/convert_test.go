package api

import (
	"testing"
	"time"

	"overtone/internal/ledger"
)

func TestFromJob(t *testing.T) {
	created := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	started := created.Add(5 * time.Second)
	job := &ledger.Job{
		ID:           "job-1",
		ProjectID:    "project-1",
		Operation:    ledger.OpProcess,
		Input:        "art:abc",
		SettingsJSON: `{"normalize":true}`,
		State:        ledger.StateRunning,
		Percent:      42,
		WorkerID:     "worker-0",
		CreatedAt:    created,
		StartedAt:    &started,
	}

	out := FromJob(job)
	if out.ID != "job-1" || out.State != "running" || out.Operation != "process" {
		t.Fatalf("unexpected conversion %+v", out)
	}
	if out.Percent != 42 {
		t.Fatalf("percent %g, want 42", out.Percent)
	}
	if out.CreatedAt == "" || out.StartedAt == "" {
		t.Fatal("timestamps not formatted")
	}
	if out.FinishedAt != "" {
		t.Fatal("nil finished time produced a value")
	}
}

func TestSettingsPayloadRoundTrip(t *testing.T) {
	payload := SettingsPayload{
		Denoise:   true,
		Normalize: true,
		Regions:   []RegionPayload{{Start: 1.5, End: 2.5}},
		Format:    "wav16",
	}

	settings := payload.ToSettings()
	if !settings.Denoise || !settings.Normalize {
		t.Fatal("boolean stages lost in conversion")
	}
	if len(settings.Regions) != 1 || settings.Regions[0].Start != 1.5 {
		t.Fatalf("regions lost in conversion: %+v", settings.Regions)
	}
	if settings.Format != "wav16" {
		t.Fatalf("format %q, want wav16", settings.Format)
	}
}
