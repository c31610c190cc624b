package engine

import (
	"context"
	"fmt"
)

// Operation names accepted by Execute. Reprocess runs the same chain as
// process; the distinction only matters to the ledger.
const (
	OpProcess   = "process"
	OpReprocess = "reprocess"
	OpInpaint   = "inpaint"
	OpExport    = "export"
)

// ProgressFunc receives completion percentages in [0, 100]. Reports are
// monotonic within a single Execute call.
type ProgressFunc func(percent float64)

// Engine runs audio transforms. It performs no I/O and keeps no state
// between calls, so a single instance is safe for concurrent use across
// workers.
type Engine struct {
	maxInputSeconds float64
}

// New returns an engine. maxInputSeconds rejects oversized inputs
// before any work happens; zero disables the limit.
func New(maxInputSeconds float64) *Engine {
	return &Engine{maxInputSeconds: maxInputSeconds}
}

// Execute decodes the input, runs the named operation with the given
// settings, and returns the encoded result. The input bytes are never
// mutated. Cancellation is checked between stages.
func (e *Engine) Execute(ctx context.Context, op string, input []byte, settings Settings, progress ProgressFunc) ([]byte, error) {
	if progress == nil {
		progress = func(float64) {}
	}

	buf, err := DecodeWAV(input)
	if err != nil {
		return nil, fmt.Errorf("decode input: %w", err)
	}
	if e.maxInputSeconds > 0 && buf.Duration() > e.maxInputSeconds {
		return nil, fmt.Errorf("input duration %.1fs exceeds limit %.1fs", buf.Duration(), e.maxInputSeconds)
	}
	progress(5)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch op {
	case OpProcess, OpReprocess:
		if err := e.process(ctx, buf, settings, progress); err != nil {
			return nil, err
		}
	case OpInpaint:
		if err := e.inpaint(ctx, buf, settings, progress); err != nil {
			return nil, err
		}
	case OpExport:
		return e.export(buf, settings, progress)
	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := EncodeWAV(buf, FormatWAV32F)
	if err != nil {
		return nil, fmt.Errorf("encode output: %w", err)
	}
	progress(100)
	return out, nil
}

// process applies the enabled stages in their fixed order.
func (e *Engine) process(ctx context.Context, buf *Buffer, settings Settings, progress ProgressFunc) error {
	stages := []struct {
		enabled bool
		run     func(*Buffer)
	}{
		{settings.Denoise, denoise},
		{settings.Declip, declip},
		{settings.StereoEnhance, stereoEnhance},
		{settings.RemoveBackground, removeBackground},
		{settings.Normalize, normalize},
	}

	for i, stage := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if stage.enabled {
			stage.run(buf)
		}
		progress(5 + float64(i+1)*18)
	}
	return nil
}

func (e *Engine) inpaint(ctx context.Context, buf *Buffer, settings Settings, progress ProgressFunc) error {
	regions, err := ValidateRegions(settings.Regions, buf.Duration())
	if err != nil {
		return err
	}
	progress(20)
	if err := ctx.Err(); err != nil {
		return err
	}
	inpaintRegions(buf, regions)
	progress(90)
	return nil
}

func (e *Engine) export(buf *Buffer, settings Settings, progress ProgressFunc) ([]byte, error) {
	format := settings.Format
	if format == "" {
		format = FormatWAV16
	}
	progress(40)
	out, err := EncodeWAV(buf, format)
	if err != nil {
		return nil, err
	}
	progress(100)
	return out, nil
}
