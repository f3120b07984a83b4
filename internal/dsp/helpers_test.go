package dsp

import (
	"math"
	"math/rand"
)

// Test configuration constants matching the detector defaults
const (
	testTimeSize   = 1024
	testSampleRate = 44100.0
)

// generateSineWave creates a sine wave at the specified frequency
func generateSineWave(frequency, sampleRate float64, numSamples int, amplitude float32) []float32 {
	samples := make([]float32, numSamples)
	for i := 0; i < numSamples; i++ {
		t := float64(i) / sampleRate
		samples[i] = amplitude * float32(math.Sin(2*math.Pi*frequency*t))
	}
	return samples
}

// generateSilence creates a buffer of silence (zeros)
func generateSilence(numSamples int) []float32 {
	return make([]float32, numSamples)
}

// generateNoise creates deterministic pseudo-random noise samples
func generateNoise(numSamples int, amplitude float32) []float32 {
	rng := rand.New(rand.NewSource(42))
	samples := make([]float32, numSamples)
	for i := range samples {
		samples[i] = amplitude * (2*rng.Float32() - 1)
	}
	return samples
}

func toFloat64(samples []float32) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = float64(s)
	}
	return out
}
