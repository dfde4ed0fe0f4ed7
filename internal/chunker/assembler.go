package chunker

import (
	"sync"
	"time"
)

type FlushReason string

const (
	ReasonSilenceTimeout FlushReason = "silence_timeout"
	ReasonMaxChunk       FlushReason = "max_chunk_timeout"
	ReasonSessionEnd     FlushReason = "session_end"
)

const (
	DefaultMinContext   = 3000 * time.Millisecond
	DefaultSilenceFlush = 5000 * time.Millisecond
	DefaultMaxChunk     = 45000 * time.Millisecond
)

type State int

const (
	StateIdle State = iota
	StateAccumulating
)

func (s State) String() string {
	if s == StateAccumulating {
		return "accumulating"
	}
	return "idle"
}

// Classifier decides whether a PCM frame contains speech.
type Classifier interface {
	IsSpeech(pcm []byte) bool
}

// Chunk is a contiguous span of buffered audio emitted at a flush.
type Chunk struct {
	Data               []byte
	BufferedDurationMs int64
	SilenceTailMs      int64
	Reason             FlushReason
	HadSpeech          bool
}

func (c Chunk) Forced() bool {
	return c.Reason == ReasonSessionEnd
}

type Config struct {
	SampleRate   int
	MinContext   time.Duration
	SilenceFlush time.Duration
	MaxChunk     time.Duration
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 48000
	}
	if c.MinContext <= 0 {
		c.MinContext = DefaultMinContext
	}
	if c.SilenceFlush <= 0 {
		c.SilenceFlush = DefaultSilenceFlush
	}
	if c.MaxChunk <= 0 {
		c.MaxChunk = DefaultMaxChunk
	}
	return c
}

// Assembler accumulates frames of an active session and decides chunk boundaries.
// It is safe for use by one ingestion goroutine plus concurrent Stop/Deactivate calls.
type Assembler struct {
	mu  sync.Mutex
	cfg Config
	vad Classifier

	state      State
	buf        []byte
	bufferedMs int64
	silenceMs  int64
	hadSpeech  bool
}

func New(cfg Config, vad Classifier) *Assembler {
	return &Assembler{cfg: cfg.withDefaults(), vad: vad}
}

// Start begins a session with an empty buffer.
func (a *Assembler) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
	a.state = StateAccumulating
}

// Push classifies frame with the detector and appends it.
func (a *Assembler) Push(frame []byte) (Chunk, bool) {
	speech := a.vad != nil && a.vad.IsSpeech(frame)
	return a.Append(frame, speech)
}

// Append adds an already classified frame and reports a chunk when a flush triggers.
// Frames arriving while idle are ignored.
func (a *Assembler) Append(frame []byte, speech bool) (Chunk, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateAccumulating || len(frame) == 0 {
		return Chunk{}, false
	}

	a.buf = append(a.buf, frame...)
	frameMs := FrameDurationMs(len(frame), a.cfg.SampleRate)
	a.bufferedMs += frameMs
	if speech {
		a.silenceMs = 0
		a.hadSpeech = true
	} else {
		a.silenceMs += frameMs
	}

	if a.bufferedMs < a.cfg.MinContext.Milliseconds() {
		return Chunk{}, false
	}
	maxReached := a.bufferedMs >= a.cfg.MaxChunk.Milliseconds()
	silenceReached := a.silenceMs >= a.cfg.SilenceFlush.Milliseconds()
	switch {
	case maxReached:
		return a.flushLocked(ReasonMaxChunk), true
	case silenceReached:
		return a.flushLocked(ReasonSilenceTimeout), true
	}
	return Chunk{}, false
}

// Stop force-flushes whatever is buffered and returns to idle.
// An empty buffer yields no chunk; calling Stop while idle is a no-op.
func (a *Assembler) Stop() (Chunk, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateAccumulating {
		return Chunk{}, false
	}
	a.state = StateIdle
	if len(a.buf) == 0 {
		a.resetLocked()
		return Chunk{}, false
	}
	return a.flushLocked(ReasonSessionEnd), true
}

// Deactivate drops any buffered audio without emitting a chunk. It is used when the
// session stops being active without an explicit stop.
func (a *Assembler) Deactivate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = StateIdle
	a.resetLocked()
}

func (a *Assembler) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Assembler) BufferedDuration() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Duration(a.bufferedMs) * time.Millisecond
}

func (a *Assembler) SilenceDuration() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Duration(a.silenceMs) * time.Millisecond
}

func (a *Assembler) flushLocked(reason FlushReason) Chunk {
	c := Chunk{
		Data:               a.buf,
		BufferedDurationMs: a.bufferedMs,
		SilenceTailMs:      a.silenceMs,
		Reason:             reason,
		HadSpeech:          a.hadSpeech,
	}
	a.resetLocked()
	return c
}

func (a *Assembler) resetLocked() {
	a.buf = nil
	a.bufferedMs = 0
	a.silenceMs = 0
	a.hadSpeech = false
}

// FrameDurationMs returns the duration of n bytes of mono 16-bit PCM at sampleRate.
func FrameDurationMs(n, sampleRate int) int64 {
	if sampleRate <= 0 {
		return 0
	}
	return int64(n/2) * 1000 / int64(sampleRate)
}

// DurationToBytes is the inverse of FrameDurationMs, rounded down to whole samples.
func DurationToBytes(d time.Duration, sampleRate int) int {
	samples := d.Milliseconds() * int64(sampleRate) / 1000
	return int(samples) * 2
}
