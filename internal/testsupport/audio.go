package testsupport

import (
	"math"
	"math/rand"

	"overtone/internal/engine"
)

// Sine synthesizes a mono sine buffer for engine tests.
func Sine(freq float64, seconds float64, sampleRate int) *engine.Buffer {
	frames := int(seconds * float64(sampleRate))
	buf := engine.NewBuffer(1, frames, sampleRate)
	for i := 0; i < frames; i++ {
		buf.Samples[0][i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return buf
}

// StereoSine synthesizes a two-channel sine buffer with a slight phase
// offset between channels so stereo processing has material to work on.
func StereoSine(freq float64, seconds float64, sampleRate int) *engine.Buffer {
	frames := int(seconds * float64(sampleRate))
	buf := engine.NewBuffer(2, frames, sampleRate)
	for i := 0; i < frames; i++ {
		phase := 2 * math.Pi * freq * float64(i) / float64(sampleRate)
		buf.Samples[0][i] = 0.5 * math.Sin(phase)
		buf.Samples[1][i] = 0.5 * math.Sin(phase+0.2)
	}
	return buf
}

// Noise synthesizes deterministic pseudo-random noise.
func Noise(seed int64, seconds float64, sampleRate int) *engine.Buffer {
	rng := rand.New(rand.NewSource(seed))
	frames := int(seconds * float64(sampleRate))
	buf := engine.NewBuffer(1, frames, sampleRate)
	for i := 0; i < frames; i++ {
		buf.Samples[0][i] = rng.Float64()*2 - 1
	}
	return buf
}
