package transcriber

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// sliceBytes is the size of a 100 ms slice of mono 16-bit PCM at rate.
func sliceBytes(rate int) int {
	n := rate / 10 * 2
	if n <= 0 {
		n = 3200
	}
	return n
}

func writeSlices(s Session, pcm []byte, size int) error {
	for off := 0; off < len(pcm); off += size {
		end := min(off+size, len(pcm))
		if err := s.Write(pcm[off:end]); err != nil {
			return err
		}
	}
	return nil
}

// injectedEngine opens a fresh recognition session for every chunk and feeds it
// through a pipe.
type injectedEngine struct {
	rec           Recognizer
	cfg           RecognizerConfig
	setupTimeout  time.Duration
	resultTimeout time.Duration
	logger        *zap.SugaredLogger
	ready         bool
}

func newInjectedEngine(rec Recognizer, cfg RecognizerConfig, setup, result time.Duration, logger *zap.SugaredLogger) *injectedEngine {
	return &injectedEngine{rec: rec, cfg: cfg, setupTimeout: setup, resultTimeout: result, logger: logger}
}

func (e *injectedEngine) ID() EngineID { return EnginePlatformInjected }

func (e *injectedEngine) Capabilities() Capabilities {
	return platformCapabilities(e.cfg.SampleRate, e.rec.SupportsPartials())
}

func (e *injectedEngine) Init(ctx context.Context) error {
	if e.rec == nil {
		return newError(KindUnknown, "no recognizer backend", nil)
	}
	e.ready = true
	e.logger.Infof("Injected engine: using %s at %d Hz language=%s", e.rec.Name(), e.cfg.SampleRate, e.cfg.Language)
	return nil
}

func (e *injectedEngine) Transcribe(ctx context.Context, audio Audio, onPartial PartialFunc) (Result, error) {
	if !e.ready {
		return Result{}, ErrNotStarted
	}

	setupCtx, cancel := context.WithTimeout(ctx, e.setupTimeout)
	session, err := e.rec.Open(setupCtx, e.cfg)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, classify(err)
	}
	defer session.Close()

	pr, pw := io.Pipe()
	defer pr.CloseWithError(errSessionClosed)

	go func() {
		_, err := pw.Write(audio.PCM)
		pw.CloseWithError(err)
	}()

	writeErr := make(chan error, 1)
	go func() {
		buf := make([]byte, sliceBytes(e.cfg.SampleRate))
		for {
			n, err := io.ReadFull(pr, buf)
			if n > 0 {
				if werr := session.Write(buf[:n]); werr != nil {
					writeErr <- werr
					return
				}
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				writeErr <- session.Flush()
				return
			}
			if err != nil {
				writeErr <- err
				return
			}
		}
	}()

	resultCtx, cancelResult := context.WithTimeout(ctx, e.resultTimeout)
	defer cancelResult()
	return awaitFinal(ctx, resultCtx, session.Events(), writeErr, onPartial)
}

func (e *injectedEngine) Close() error {
	e.ready = false
	return nil
}

// continuousEngine keeps one recognition session alive and restarts it after every
// result or error.
type continuousEngine struct {
	rec           Recognizer
	cfg           RecognizerConfig
	backoff       time.Duration
	resultTimeout time.Duration
	logger        *zap.SugaredLogger

	mu      sync.Mutex
	session Session
	openErr error
	ready   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newContinuousEngine(rec Recognizer, cfg RecognizerConfig, backoff, result time.Duration, logger *zap.SugaredLogger) *continuousEngine {
	return &continuousEngine{rec: rec, cfg: cfg, backoff: backoff, resultTimeout: result, logger: logger}
}

func (e *continuousEngine) ID() EngineID { return EnginePlatformContinuous }

func (e *continuousEngine) Capabilities() Capabilities {
	return platformCapabilities(e.cfg.SampleRate, e.rec.SupportsPartials())
}

func (e *continuousEngine) Init(ctx context.Context) error {
	if e.rec == nil {
		return newError(KindUnknown, "no recognizer backend", nil)
	}
	session, err := e.rec.Open(ctx, e.cfg)
	if err != nil {
		return classify(err)
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	ready := make(chan struct{})
	close(ready)

	e.mu.Lock()
	e.session, e.openErr, e.ready = session, nil, ready
	e.mu.Unlock()
	e.logger.Infof("Continuous engine: session open on %s at %d Hz", e.rec.Name(), e.cfg.SampleRate)
	return nil
}

// current waits for the live session, or for the restart in progress to finish.
func (e *continuousEngine) current(ctx context.Context) (Session, error) {
	e.mu.Lock()
	ready := e.ready
	e.mu.Unlock()
	if ready == nil {
		return nil, ErrNotStarted
	}

	select {
	case <-ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session, e.openErr
}

// restart closes the current session and opens a new one after the backoff.
func (e *continuousEngine) restart() {
	e.mu.Lock()
	if e.ctx == nil || e.ctx.Err() != nil {
		e.mu.Unlock()
		return
	}
	old := e.session
	e.session, e.openErr = nil, nil
	ready := make(chan struct{})
	e.ready = ready
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if old != nil {
			_ = old.Close()
		}

		var session Session
		err := errSessionClosed
		select {
		case <-time.After(e.backoff):
			session, err = e.rec.Open(e.ctx, e.cfg)
		case <-e.ctx.Done():
		}

		e.mu.Lock()
		e.session, e.openErr = session, err
		close(ready)
		e.mu.Unlock()
		if err != nil && e.ctx.Err() == nil {
			e.logger.Warnf("Continuous engine: restart failed: %v", err)
		}
	}()
}

func (e *continuousEngine) Transcribe(ctx context.Context, audio Audio, onPartial PartialFunc) (Result, error) {
	session, err := e.current(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		if errors.Is(err, ErrNotStarted) {
			return Result{}, err
		}
		e.restart()
		return Result{}, classify(err)
	}
	defer e.restart()

	if err := writeSlices(session, audio.PCM, sliceBytes(e.cfg.SampleRate)); err != nil {
		return Result{}, classify(err)
	}
	if err := session.Flush(); err != nil {
		return Result{}, classify(err)
	}

	resultCtx, cancel := context.WithTimeout(ctx, e.resultTimeout)
	defer cancel()
	return awaitFinal(ctx, resultCtx, session.Events(), nil, onPartial)
}

func (e *continuousEngine) Close() error {
	e.mu.Lock()
	cancel := e.cancel
	e.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	e.wg.Wait()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		_ = e.session.Close()
		e.session = nil
	}
	e.ready = nil
	return nil
}
