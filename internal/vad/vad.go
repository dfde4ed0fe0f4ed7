package vad

import (
	"encoding/binary"
	"math"
)

// DefaultThreshold is the RMS level on the int16 scale above which a frame counts as speech.
const DefaultThreshold = 500.0

// SpeechState is the classification of a single frame together with the metric behind it.
type SpeechState struct {
	IsSpeech bool
	RMS      float64
}

// Detector classifies little-endian 16-bit PCM frames by their RMS energy.
type Detector struct {
	threshold float64
}

func New(threshold float64) Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return Detector{threshold: threshold}
}

func (d Detector) Threshold() float64 {
	return d.threshold
}

// Classify returns the speech state for pcm. Empty or odd-length input is never speech.
func (d Detector) Classify(pcm []byte) SpeechState {
	if len(pcm) == 0 || len(pcm)%2 != 0 {
		return SpeechState{}
	}
	rms := RMS(pcm)
	return SpeechState{IsSpeech: rms > d.threshold, RMS: rms}
}

func (d Detector) IsSpeech(pcm []byte) bool {
	return d.Classify(pcm).IsSpeech
}

// RMS computes sqrt(mean(sample^2)) over the samples in pcm.
// A trailing odd byte is ignored.
func RMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}
