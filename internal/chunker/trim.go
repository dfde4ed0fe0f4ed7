package chunker

import "time"

// TrimPolicy prepares a flushed chunk for the transcription queue: chunks that never
// contained speech are dropped and absolute silence around the speech is cut.
type TrimPolicy struct {
	SampleRate  int
	DropSilent  bool
	TrimSilence bool
	Frame       time.Duration
	PreRoll     time.Duration
	PostRoll    time.Duration
	MinTrimmed  time.Duration
}

// DefaultTrimPolicy returns the policy used when the config does not override it.
func DefaultTrimPolicy(sampleRate int) TrimPolicy {
	return TrimPolicy{
		SampleRate:  sampleRate,
		DropSilent:  true,
		TrimSilence: true,
		Frame:       20 * time.Millisecond,
		PreRoll:     200 * time.Millisecond,
		PostRoll:    200 * time.Millisecond,
		MinTrimmed:  700 * time.Millisecond,
	}
}

// Trimmed is the outcome of scanning a chunk for speech.
type Trimmed struct {
	Data              []byte
	HadSpeech         bool
	RemovedLeadingMs  int64
	RemovedTrailingMs int64
}

// Apply returns the bytes to enqueue for c, or false when the chunk should be dropped.
func (p TrimPolicy) Apply(c Chunk, vad Classifier) ([]byte, bool) {
	if len(c.Data) == 0 {
		return nil, false
	}
	if p.DropSilent && !c.Forced() && !c.HadSpeech {
		return nil, false
	}
	if !p.TrimSilence {
		return c.Data, true
	}

	t := p.Trim(c.Data, vad)
	if p.DropSilent && !c.Forced() && !t.HadSpeech {
		return nil, false
	}
	switch {
	case len(t.Data) > 0:
		return t.Data, true
	case c.Forced() && c.HadSpeech:
		return c.Data, true
	case !p.DropSilent:
		return c.Data, true
	}
	return nil, false
}

// Trim cuts leading and trailing non-speech from pcm, scanning it in Frame sized windows
// and keeping PreRoll/PostRoll around the speech. When the result would be shorter than
// MinTrimmed the whole input is kept.
func (p TrimPolicy) Trim(pcm []byte, vad Classifier) Trimmed {
	if len(pcm) == 0 {
		return Trimmed{}
	}

	frameBytes := DurationToBytes(p.Frame, p.SampleRate)
	if frameBytes < 2 {
		frameBytes = 2
	}
	if len(pcm) <= frameBytes {
		if vad.IsSpeech(pcm) {
			return Trimmed{Data: pcm, HadSpeech: true}
		}
		return Trimmed{RemovedTrailingMs: FrameDurationMs(len(pcm), p.SampleRate)}
	}

	first, last := -1, -1
	for cursor := 0; cursor < len(pcm); cursor += frameBytes {
		end := min(cursor+frameBytes, len(pcm))
		if vad.IsSpeech(pcm[cursor:end]) {
			if first < 0 {
				first = cursor
			}
			last = end
		}
	}
	if first < 0 {
		return Trimmed{RemovedLeadingMs: FrameDurationMs(len(pcm), p.SampleRate)}
	}

	start := max(first-DurationToBytes(p.PreRoll, p.SampleRate), 0)
	end := min(last+DurationToBytes(p.PostRoll, p.SampleRate), len(pcm))
	if FrameDurationMs(end-start, p.SampleRate) < p.MinTrimmed.Milliseconds() {
		start, end = 0, len(pcm)
	}

	return Trimmed{
		Data:              pcm[start:end],
		HadSpeech:         true,
		RemovedLeadingMs:  FrameDurationMs(start, p.SampleRate),
		RemovedTrailingMs: FrameDurationMs(len(pcm)-end, p.SampleRate),
	}
}
