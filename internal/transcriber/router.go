package transcriber

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// NoFinalTranscript is reported when an engine returns without any text.
const NoFinalTranscript = "No final transcript generated."

// Router owns the single active engine. All engine calls happen under its lock, so
// switching engines waits for the in-flight chunk and never overlaps two engines.
type Router struct {
	mu       sync.Mutex
	factory  Factory
	fallback EngineID
	logger   *zap.SugaredLogger

	engine   Engine
	sel      Selection
	fellBack bool
	closed   bool
}

// NewRouter creates a router. fallback is the engine used once when the selected one
// fails to initialize; an empty fallback disables it.
func NewRouter(factory Factory, fallback EngineID, logger *zap.SugaredLogger) *Router {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Router{factory: factory, fallback: fallback, logger: logger}
}

// Start activates the selected engine, falling back to the platform engine when the
// selection cannot be initialized.
func (r *Router) Start(ctx context.Context, sel Selection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activateLocked(ctx, sel)
}

// Switch tears down the current engine and activates sel. It blocks until any
// in-flight transcription has finished. When sel cannot be started, the engine that
// was running before is started again and the error is returned.
func (r *Router) Switch(ctx context.Context, sel Selection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger.Infof("Router: switching engine %s -> %s", r.sel.Engine, sel.Engine)

	prev, prevFellBack, hadEngine := r.sel, r.fellBack, r.engine != nil
	err := r.activateLocked(ctx, sel)
	if err == nil || !hadEngine {
		return err
	}

	r.logger.Warnf("Router: switch to %s failed (%v), restoring %s", sel.Engine, err, prev.Engine)
	if restoreErr := r.activateLocked(ctx, prev); restoreErr != nil {
		return fmt.Errorf("%w; restoring %s: %v", err, prev.Engine, restoreErr)
	}
	r.fellBack = prevFellBack
	return err
}

func (r *Router) activateLocked(ctx context.Context, sel Selection) error {
	r.releaseLocked()
	r.closed = false
	r.fellBack = false

	engine, err := r.initEngine(ctx, sel)
	if err == nil {
		r.engine, r.sel = engine, sel
		return nil
	}
	if sel.Engine.IsPlatform() || r.fallback == "" || r.fallback == sel.Engine {
		return err
	}

	r.logger.Warnf("Router: %s unavailable (%v), falling back to %s", sel.Engine, err, r.fallback)
	fb := sel
	fb.Engine = r.fallback
	engine, fbErr := r.initEngine(ctx, fb)
	if fbErr != nil {
		return fmt.Errorf("%w; fallback %s: %v", err, r.fallback, fbErr)
	}
	r.engine, r.sel, r.fellBack = engine, fb, true
	return nil
}

func (r *Router) initEngine(ctx context.Context, sel Selection) (Engine, error) {
	engine, err := r.factory.New(sel)
	if err != nil {
		return nil, err
	}
	if err := engine.Init(ctx); err != nil {
		_ = engine.Close()
		return nil, err
	}
	r.logger.Infof("Router: engine %s active (model=%s language=%s)", engine.ID(), sel.Model, sel.Language)
	return engine, nil
}

func (r *Router) releaseLocked() {
	if r.engine == nil {
		return
	}
	if err := r.engine.Close(); err != nil {
		r.logger.Warnf("Router: closing %s: %v", r.engine.ID(), err)
	}
	r.engine = nil
}

// Transcribe runs one chunk of mono 16-bit PCM captured at rate through the active
// engine. Input below the engine minimum yields a Skipped result and no error.
// Cancellation of ctx is returned as ctx.Err(); every other failure is an *Error.
func (r *Router) Transcribe(ctx context.Context, pcm []byte, rate int, onPartial PartialFunc) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.engine == nil {
		return Result{}, newError(KindUnknown, "", ErrNotStarted)
	}
	engine := r.engine
	caps := engine.Capabilities()

	audio := Audio{PCM: pcm, SampleRate: rate}
	if caps.TargetSampleRate > 0 && rate != caps.TargetSampleRate {
		if !caps.NeedsResampling {
			return Result{}, r.stamp(engine, newError(KindAudio, fmt.Sprintf("engine expects %d Hz input, got %d Hz", caps.TargetSampleRate, rate), nil))
		}
		resampled, err := downsamplePCM(pcm, rate, caps.TargetSampleRate)
		if err != nil {
			return Result{}, r.stamp(engine, newError(KindAudio, "", err))
		}
		audio = Audio{PCM: resampled, SampleRate: caps.TargetSampleRate}
	}

	if audio.Samples() < caps.MinSamples {
		r.logger.Debugf("Router: skipping chunk with %d samples (minimum %d)", audio.Samples(), caps.MinSamples)
		return Result{Skipped: true, Engine: engine.ID()}, nil
	}

	start := time.Now()
	res, err := engine.Transcribe(ctx, audio, onPartial)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			return Result{}, ctx.Err()
		}
		return Result{}, r.stamp(engine, classify(err))
	}
	if res.Text == "" {
		return Result{}, r.stamp(engine, newError(KindNoMatch, NoFinalTranscript, nil))
	}

	res.IsFinal = true
	res.IsPartial = false
	res.Engine = engine.ID()
	res.Latency = latency
	return res, nil
}

// stamp returns a copy of e tagged with the engine that produced it.
func (r *Router) stamp(engine Engine, e *Error) *Error {
	out := *e
	out.Engine = engine.ID()
	return &out
}

// Active returns the ID of the running engine, or "" when none is.
func (r *Router) Active() EngineID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.engine == nil {
		return ""
	}
	return r.engine.ID()
}

// FellBack reports whether the last Start or Switch used the fallback engine.
func (r *Router) FellBack() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fellBack
}

// Selection returns the selection the active engine was built from.
func (r *Router) Selection() Selection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sel
}

// Close releases the active engine. It is safe to call more than once.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.releaseLocked()
	return nil
}
