package engine

import "math"

// The processing chain runs in a fixed order regardless of which stages
// a job enables: denoise, declip, stereo enhance, background removal,
// normalize. Normalize always runs last so it sees the final peak.

const (
	denoiseThreshold   = 0.015
	declipThreshold    = 0.985
	stereoWidthFactor  = 1.35
	backgroundHPCutoff = 120.0
	normalizeTarget    = 0.95
)

func denoise(buf *Buffer) {
	// Soft noise gate: attenuate samples under the floor instead of
	// zeroing them, which would add its own distortion.
	for _, ch := range buf.Samples {
		for i, v := range ch {
			mag := math.Abs(v)
			if mag < denoiseThreshold {
				ch[i] = v * (mag / denoiseThreshold)
			}
		}
	}
}

func declip(buf *Buffer) {
	for _, ch := range buf.Samples {
		i := 0
		for i < len(ch) {
			if math.Abs(ch[i]) < declipThreshold {
				i++
				continue
			}
			start := i
			for i < len(ch) && math.Abs(ch[i]) >= declipThreshold {
				i++
			}
			repairClippedRun(ch, start, i)
		}
	}
}

// repairClippedRun replaces the samples in [start, end) with a cubic
// interpolation between the last clean sample on each side. Runs that
// touch the buffer edge keep their boundary value.
func repairClippedRun(ch []float64, start, end int) {
	left := 0.0
	if start > 0 {
		left = ch[start-1]
	} else if end < len(ch) {
		left = ch[end]
	}
	right := 0.0
	if end < len(ch) {
		right = ch[end]
	} else {
		right = left
	}
	n := end - start
	for i := 0; i < n; i++ {
		t := float64(i+1) / float64(n+1)
		// Smoothstep keeps the repaired span continuous at both ends.
		s := t * t * (3 - 2*t)
		ch[start+i] = left + (right-left)*s
	}
}

func stereoEnhance(buf *Buffer) {
	// Mid/side widening. Mono input has no side signal, so this is a
	// no-op for single-channel buffers.
	if buf.Channels() != 2 {
		return
	}
	l, r := buf.Samples[0], buf.Samples[1]
	for i := range l {
		mid := (l[i] + r[i]) / 2
		side := (l[i] - r[i]) / 2 * stereoWidthFactor
		l[i] = clamp(mid + side)
		r[i] = clamp(mid - side)
	}
}

func removeBackground(buf *Buffer) {
	// Single-pole high-pass to strip hum and rumble below the cutoff.
	rc := 1 / (2 * math.Pi * backgroundHPCutoff)
	dt := 1 / float64(buf.SampleRate)
	alpha := rc / (rc + dt)
	for _, ch := range buf.Samples {
		prevIn := ch[0]
		prevOut := ch[0]
		for i := 1; i < len(ch); i++ {
			out := alpha * (prevOut + ch[i] - prevIn)
			prevIn = ch[i]
			prevOut = out
			ch[i] = out
		}
		ch[0] = 0
	}
}

func normalize(buf *Buffer) {
	peak := buf.Peak()
	if peak == 0 {
		return
	}
	gain := normalizeTarget / peak
	for _, ch := range buf.Samples {
		for i := range ch {
			ch[i] *= gain
		}
	}
}
