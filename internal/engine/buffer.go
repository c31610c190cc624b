package engine

import (
	"errors"
	"fmt"
)

// Buffer holds decoded PCM audio as per-channel float64 samples in
// [-1, 1]. All engine operations consume and produce Buffers; the codec
// in wav.go converts to and from stored bytes.
type Buffer struct {
	SampleRate int
	Samples    [][]float64
}

// NewBuffer allocates a silent buffer.
func NewBuffer(channels, frames, sampleRate int) *Buffer {
	samples := make([][]float64, channels)
	for c := range samples {
		samples[c] = make([]float64, frames)
	}
	return &Buffer{SampleRate: sampleRate, Samples: samples}
}

// Channels returns the channel count.
func (b *Buffer) Channels() int {
	return len(b.Samples)
}

// Frames returns the per-channel sample count.
func (b *Buffer) Frames() int {
	if len(b.Samples) == 0 {
		return 0
	}
	return len(b.Samples[0])
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Clone returns a deep copy, leaving the source untouched.
func (b *Buffer) Clone() *Buffer {
	out := &Buffer{SampleRate: b.SampleRate, Samples: make([][]float64, len(b.Samples))}
	for c, ch := range b.Samples {
		out.Samples[c] = make([]float64, len(ch))
		copy(out.Samples[c], ch)
	}
	return out
}

// Validate rejects buffers the engine cannot process.
func (b *Buffer) Validate() error {
	if b == nil {
		return errors.New("buffer is nil")
	}
	if b.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", b.SampleRate)
	}
	if len(b.Samples) == 0 {
		return errors.New("buffer has no channels")
	}
	frames := len(b.Samples[0])
	if frames == 0 {
		return errors.New("buffer has no frames")
	}
	for c, ch := range b.Samples {
		if len(ch) != frames {
			return fmt.Errorf("channel %d length %d does not match %d", c, len(ch), frames)
		}
	}
	return nil
}

// Peak returns the largest absolute sample value across channels.
func (b *Buffer) Peak() float64 {
	peak := 0.0
	for _, ch := range b.Samples {
		for _, v := range ch {
			if v < 0 {
				v = -v
			}
			if v > peak {
				peak = v
			}
		}
	}
	return peak
}
