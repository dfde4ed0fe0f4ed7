package transcriber

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wads/tripscribe/internal/language"
	"github.com/wads/tripscribe/internal/models/whisper"
)

// EngineID names one of the fixed set of transcription engines.
type EngineID string

const (
	EngineLocal              EngineID = "local"
	EnginePlatformContinuous EngineID = "platform-continuous"
	EnginePlatformInjected   EngineID = "platform-injected"
)

func ParseEngineID(s string) (EngineID, error) {
	switch id := EngineID(strings.ToLower(strings.TrimSpace(s))); id {
	case EngineLocal, EnginePlatformContinuous, EnginePlatformInjected:
		return id, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedEngine, s)
}

func (id EngineID) IsPlatform() bool {
	return id == EnginePlatformContinuous || id == EnginePlatformInjected
}

// Capabilities describes what an engine expects from its input.
type Capabilities struct {
	FixedRateInput     bool
	NeedsResampling    bool
	SupportsPartials   bool
	WholeUtteranceOnly bool
	TargetSampleRate   int
	MinSamples         int
}

// Audio is a buffer of mono 16-bit little-endian PCM.
type Audio struct {
	PCM        []byte
	SampleRate int
}

func (a Audio) Samples() int {
	return len(a.PCM) / 2
}

// Result is the normalized outcome of transcribing one chunk.
type Result struct {
	Text      string
	IsFinal   bool
	IsPartial bool
	Engine    EngineID
	Latency   time.Duration
	// Skipped is set when the input was below the engine minimum and nothing ran.
	Skipped bool
}

// PartialFunc receives interim text while a chunk is being transcribed.
type PartialFunc func(text string)

// Engine is one transcription backend. Calls are serialized by the Router.
type Engine interface {
	ID() EngineID
	Capabilities() Capabilities
	Init(ctx context.Context) error
	Transcribe(ctx context.Context, audio Audio, onPartial PartialFunc) (Result, error)
	Close() error
}

// Selection is what the user configured: engine, local model and recognizer language.
type Selection struct {
	Engine   EngineID
	Model    string
	Language string
}

// Factory builds an uninitialized engine for a selection.
type Factory interface {
	New(sel Selection) (Engine, error)
}

// EngineConfig carries everything the factory needs besides the selection.
type EngineConfig struct {
	CaptureRate    int
	ModelsDir      string
	Threads        int
	Recognizer     Recognizer
	SetupTimeout   time.Duration
	ResultTimeout  time.Duration
	RestartBackoff time.Duration
	Logger         *zap.SugaredLogger
}

const (
	DefaultSetupTimeout   = 2 * time.Second
	DefaultResultTimeout  = 18 * time.Second
	DefaultRestartBackoff = 300 * time.Millisecond

	localSampleRate   = 16000
	localMinSamples   = 16000
	platformMinSample = 24000
)

// EngineFactory is the switch-based Factory used by the daemon.
type EngineFactory struct {
	cfg EngineConfig
}

func NewEngineFactory(cfg EngineConfig) *EngineFactory {
	if cfg.CaptureRate <= 0 {
		cfg.CaptureRate = 48000
	}
	if cfg.SetupTimeout <= 0 {
		cfg.SetupTimeout = DefaultSetupTimeout
	}
	if cfg.ResultTimeout <= 0 {
		cfg.ResultTimeout = DefaultResultTimeout
	}
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = DefaultRestartBackoff
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &EngineFactory{cfg: cfg}
}

func (f *EngineFactory) New(sel Selection) (Engine, error) {
	tag := language.Normalize(sel.Language)

	switch sel.Engine {
	case EngineLocal:
		model := sel.Model
		if model == "" {
			model = whisper.DefaultModelID
		}
		path := whisper.ModelPath(f.cfg.ModelsDir, model)
		if path == "" {
			return nil, fmt.Errorf("%w: unknown whisper model %q", ErrModelNotInstalled, model)
		}
		return NewLocalEngine(path, language.Base(tag), f.cfg.Threads, f.cfg.Logger), nil

	case EnginePlatformContinuous, EnginePlatformInjected:
		if f.cfg.Recognizer == nil {
			return nil, fmt.Errorf("%s: no recognizer backend configured", sel.Engine)
		}
		rc := RecognizerConfig{SampleRate: f.cfg.CaptureRate, Language: tag}
		if sel.Engine == EnginePlatformContinuous {
			return newContinuousEngine(f.cfg.Recognizer, rc, f.cfg.RestartBackoff, f.cfg.ResultTimeout, f.cfg.Logger), nil
		}
		return newInjectedEngine(f.cfg.Recognizer, rc, f.cfg.SetupTimeout, f.cfg.ResultTimeout, f.cfg.Logger), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEngine, sel.Engine)
	}
}

func platformCapabilities(rate int, partials bool) Capabilities {
	return Capabilities{
		FixedRateInput:     true,
		NeedsResampling:    false,
		SupportsPartials:   partials,
		WholeUtteranceOnly: !partials,
		TargetSampleRate:   rate,
		MinSamples:         platformMinSample,
	}
}
