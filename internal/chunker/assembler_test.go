package chunker

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wads/tripscribe/internal/vad"
)

const testRate = 16000

// frame100ms returns 100ms of constant-valued PCM at testRate.
func frame100ms(value int16) []byte {
	return pcmOf(value, 100*time.Millisecond)
}

func pcmOf(value int16, d time.Duration) []byte {
	samples := int(d.Milliseconds()) * testRate / 1000
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(value))
	}
	return buf
}

func newTestAssembler(silenceFlush time.Duration) *Assembler {
	a := New(Config{
		SampleRate:   testRate,
		MinContext:   3000 * time.Millisecond,
		SilenceFlush: silenceFlush,
		MaxChunk:     45000 * time.Millisecond,
	}, vad.New(vad.DefaultThreshold))
	a.Start()
	return a
}

func TestFrameDurationMs(t *testing.T) {
	tests := []struct {
		name  string
		bytes int
		rate  int
		want  int64
	}{
		{name: "100ms at 16k", bytes: 3200, rate: 16000, want: 100},
		{name: "20ms at 48k", bytes: 1920, rate: 48000, want: 20},
		{name: "odd byte ignored", bytes: 3201, rate: 16000, want: 100},
		{name: "zero rate", bytes: 3200, rate: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FrameDurationMs(tt.bytes, tt.rate))
		})
	}
}

func TestBufferedDurationIsSumOfFrames(t *testing.T) {
	a := newTestAssembler(DefaultSilenceFlush)

	var want time.Duration
	for i := 0; i < 20; i++ {
		frame := frame100ms(2000)
		if i%3 == 0 {
			frame = pcmOf(2000, 40*time.Millisecond)
		}
		_, flushed := a.Push(frame)
		require.False(t, flushed)
		want += time.Duration(FrameDurationMs(len(frame), testRate)) * time.Millisecond
		assert.Equal(t, want, a.BufferedDuration())
	}
	assert.Equal(t, time.Duration(0), a.SilenceDuration())
}

func TestSilenceFlushWaitsForMinimumContext(t *testing.T) {
	a := newTestAssembler(2500 * time.Millisecond)

	var chunks []Chunk
	for i := 0; i < 30; i++ {
		if c, ok := a.Push(frame100ms(0)); ok {
			chunks = append(chunks, c)
			assert.Equal(t, 29, i, "flush must happen on the frame reaching the minimum context")
		}
	}
	require.Len(t, chunks, 1)
	assert.Equal(t, ReasonSilenceTimeout, chunks[0].Reason)
	assert.Equal(t, int64(3000), chunks[0].BufferedDurationMs)
	assert.Equal(t, int64(3000), chunks[0].SilenceTailMs)
	assert.False(t, chunks[0].HadSpeech)
	assert.Len(t, chunks[0].Data, 30*3200)

	_, flushed := a.Push(frame100ms(3000))
	assert.False(t, flushed)
	assert.Equal(t, time.Duration(0), a.SilenceDuration())
	assert.Equal(t, 100*time.Millisecond, a.BufferedDuration())

	for i := 0; i < 10; i++ {
		_, flushed := a.Push(frame100ms(0))
		assert.False(t, flushed)
	}
	assert.Equal(t, 1000*time.Millisecond, a.SilenceDuration())
}

func TestContinuousSpeechFlushesAtMaxChunk(t *testing.T) {
	a := newTestAssembler(DefaultSilenceFlush)

	var chunks []Chunk
	for i := 0; i < 1350; i++ {
		if c, ok := a.Push(frame100ms(4000)); ok {
			chunks = append(chunks, c)
		}
	}
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.Equal(t, ReasonMaxChunk, c.Reason)
		assert.Equal(t, int64(45000), c.BufferedDurationMs)
		assert.True(t, c.HadSpeech)
	}
}

func TestMaxChunkWinsWhenBothConditionsHold(t *testing.T) {
	a := New(Config{
		SampleRate:   testRate,
		MinContext:   3000 * time.Millisecond,
		SilenceFlush: 5000 * time.Millisecond,
		MaxChunk:     5000 * time.Millisecond,
	}, vad.New(0))
	a.Start()

	var got []Chunk
	for i := 0; i < 50; i++ {
		if c, ok := a.Append(frame100ms(0), false); ok {
			got = append(got, c)
		}
	}
	require.Len(t, got, 1)
	assert.Equal(t, ReasonMaxChunk, got[0].Reason)
}

func TestStopForcesFlushBelowMinimumContext(t *testing.T) {
	a := newTestAssembler(DefaultSilenceFlush)
	a.Push(frame100ms(2000))
	a.Push(frame100ms(0))

	c, ok := a.Stop()
	require.True(t, ok)
	assert.Equal(t, ReasonSessionEnd, c.Reason)
	assert.Equal(t, int64(200), c.BufferedDurationMs)
	assert.Equal(t, int64(100), c.SilenceTailMs)
	assert.True(t, c.Forced())
	assert.Equal(t, StateIdle, a.State())

	_, ok = a.Stop()
	assert.False(t, ok, "second stop is a no-op")
}

func TestStopWithEmptyBufferEmitsNothing(t *testing.T) {
	a := newTestAssembler(DefaultSilenceFlush)
	_, ok := a.Stop()
	assert.False(t, ok)
	assert.Equal(t, StateIdle, a.State())
}

func TestDeactivateDiscardsBuffer(t *testing.T) {
	a := newTestAssembler(DefaultSilenceFlush)
	for i := 0; i < 10; i++ {
		a.Push(frame100ms(2000))
	}
	a.Deactivate()

	assert.Equal(t, StateIdle, a.State())
	assert.Equal(t, time.Duration(0), a.BufferedDuration())
	_, ok := a.Stop()
	assert.False(t, ok)
}

func TestIdleIgnoresFrames(t *testing.T) {
	a := New(Config{SampleRate: testRate}, vad.New(0))
	_, ok := a.Push(frame100ms(2000))
	assert.False(t, ok)
	assert.Equal(t, time.Duration(0), a.BufferedDuration())

	a.Start()
	a.Push(frame100ms(2000))
	assert.Equal(t, StateAccumulating, a.State())
	assert.Equal(t, 100*time.Millisecond, a.BufferedDuration())
}
