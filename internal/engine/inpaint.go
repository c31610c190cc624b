package engine

import "math"

// inpaintRegions reconstructs each region from the audio on either side
// of it. The left and right context windows are crossfaded across the
// gap, which removes the damaged material while keeping the transition
// free of clicks. Region validation happens before this is called.
func inpaintRegions(buf *Buffer, regions []Region) {
	for _, region := range regions {
		start := int(region.Start * float64(buf.SampleRate))
		end := int(region.End * float64(buf.SampleRate))
		if end > buf.Frames() {
			end = buf.Frames()
		}
		if start >= end {
			continue
		}
		for _, ch := range buf.Samples {
			inpaintSpan(ch, start, end)
		}
	}
}

func inpaintSpan(ch []float64, start, end int) {
	n := end - start
	left := make([]float64, n)
	right := make([]float64, n)

	// Mirror context into the gap from each side. Short context near a
	// buffer edge repeats what is available.
	for i := 0; i < n; i++ {
		left[i] = contextSample(ch, start-1-i, start, end)
		right[i] = contextSample(ch, end+n-1-i, start, end)
	}

	for i := 0; i < n; i++ {
		t := float64(i) / float64(n)
		// Equal-power crossfade from left context into right context.
		gl := math.Cos(t * math.Pi / 2)
		gr := math.Sin(t * math.Pi / 2)
		ch[start+i] = clamp(left[i]*gl + right[i]*gr)
	}
}

// contextSample reads a sample outside the gap, reflecting out-of-range
// indexes back into the valid portions of the channel.
func contextSample(ch []float64, idx, gapStart, gapEnd int) float64 {
	if idx < 0 {
		idx = -idx
		if idx >= gapStart {
			idx = gapStart - 1
		}
	}
	if idx >= len(ch) {
		idx = 2*len(ch) - idx - 2
		if idx < gapEnd {
			idx = gapEnd
		}
	}
	if idx < 0 || idx >= len(ch) {
		return 0
	}
	if idx >= gapStart && idx < gapEnd {
		if gapStart > 0 {
			return ch[gapStart-1]
		}
		if gapEnd < len(ch) {
			return ch[gapEnd]
		}
		return 0
	}
	return ch[idx]
}
