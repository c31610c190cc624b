package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"overtone/internal/daemon"
	"overtone/internal/engine"
	"overtone/internal/logging"
	"overtone/internal/testsupport"
)

func startCLIDaemon(t *testing.T) *daemon.Daemon {
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
	return d
}

func runCommand(t *testing.T, addr string, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	cmd := newRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(append([]string{"--addr", addr}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	d := startCLIDaemon(t)

	output, err := runCommand(t, d.APIAddr(), "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(output, "running") {
		t.Fatalf("status output missing daemon state: %q", output)
	}
}

func TestSubmitAndProgressCommands(t *testing.T) {
	d := startCLIDaemon(t)

	data, err := engine.EncodeWAV(testsupport.Sine(440, 0.25, 48000), engine.FormatWAV32F)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	ref, err := d.Artifacts().Put(context.Background(), data, engine.ContentTypeWAV)
	if err != nil {
		t.Fatalf("put artifact: %v", err)
	}

	output, err := runCommand(t, d.APIAddr(), "submit", "project-cli", "process", ref, "--normalize")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !strings.Contains(output, "queued for project project-cli") {
		t.Fatalf("unexpected submit output: %q", output)
	}

	output, err = runCommand(t, d.APIAddr(), "progress", "project-cli")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if !strings.Contains(output, "(process)") {
		t.Fatalf("unexpected progress output: %q", output)
	}
}

func TestSubmitRejectsBadRegion(t *testing.T) {
	d := startCLIDaemon(t)

	if _, err := runCommand(t, d.APIAddr(), "submit", "p", "inpaint", "art:x", "--region", "oops"); err == nil {
		t.Fatal("expected region parse error")
	}
}

func TestParseRegions(t *testing.T) {
	regions, err := parseRegions([]string{"1.5-2.5", "10-12"})
	if err != nil {
		t.Fatalf("parseRegions: %v", err)
	}
	if len(regions) != 2 || regions[0].Start != 1.5 || regions[0].End != 2.5 || regions[1].Start != 10 {
		t.Fatalf("unexpected regions: %+v", regions)
	}

	for _, bad := range []string{"", "3", "a-b", "1-"} {
		if _, err := parseRegions([]string{bad}); err == nil {
			t.Fatalf("parseRegions(%q) succeeded", bad)
		}
	}
}
