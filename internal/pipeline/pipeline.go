package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wads/tripscribe/internal/chunker"
	"github.com/wads/tripscribe/internal/language"
	"github.com/wads/tripscribe/internal/metrics"
	"github.com/wads/tripscribe/internal/queue"
	"github.com/wads/tripscribe/internal/recording"
	"github.com/wads/tripscribe/internal/transcriber"
	"github.com/wads/tripscribe/internal/vad"
)

type Status string

const (
	Idle      Status = "idle"
	Recording Status = "recording"
	Stopping  Status = "stopping"
)

// ReasonMissingAudio is recorded on items whose audio file can no longer be read.
const ReasonMissingAudio = "Missing persisted audio chunk file."

const DefaultDrainTimeout = 2 * time.Second

var (
	ErrAlreadyRunning = errors.New("trip already in progress")
	ErrNotRunning     = errors.New("no trip in progress")
)

// Trip identifies the session that produced a chunk. HostRef and PathRef are opaque
// references owned by the caller.
type Trip struct {
	ID      string
	HostRef string
	PathRef string
}

// Transcript is a finalized fragment of a trip.
type Transcript struct {
	ChunkID    string
	TripID     string
	HostRef    string
	PathRef    string
	Text       string
	Engine     transcriber.EngineID
	CreatedAt  time.Time
	DurationMs int64
	Latency    time.Duration
}

// Callbacks receive results from the dispatch worker. Nil callbacks are skipped.
type Callbacks struct {
	OnPartial func(text string)
	OnFinal   func(Transcript)
	OnError   func(*transcriber.Error)
}

// Router is the part of transcriber.Router the pipeline drives.
type Router interface {
	Start(ctx context.Context, sel transcriber.Selection) error
	Switch(ctx context.Context, sel transcriber.Selection) error
	Transcribe(ctx context.Context, pcm []byte, rate int, onPartial transcriber.PartialFunc) (transcriber.Result, error)
	FellBack() bool
	Selection() transcriber.Selection
	Close() error
}

type Config struct {
	Chunking     chunker.Config
	Trim         chunker.TrimPolicy
	VADThreshold float64
	Selection    transcriber.Selection
	DrainTimeout time.Duration
}

// Pipeline turns the frames of a trip into queued chunks and transcribes them on a
// single dispatch worker.
type Pipeline struct {
	cfg       Config
	logger    *zap.SugaredLogger
	queue     *queue.Queue
	router    Router
	metrics   *metrics.Metrics
	callbacks Callbacks
	detector  vad.Detector
	assembler *chunker.Assembler
	now       func() time.Time

	// lifecycle serializes Start, Stop, Deactivate and Configure
	lifecycle sync.Mutex

	mu     sync.Mutex
	status Status
	trip   Trip
	sel    transcriber.Selection

	// the worker never interrupts a chunk: halt stops it from polling again and
	// discard requeues the chunk it is finishing
	wake       chan struct{}
	draining   atomic.Bool
	halt       atomic.Bool
	discard    atomic.Bool
	workerDone chan struct{}
}

func New(cfg Config, q *queue.Queue, router Router, cb Callbacks, m *metrics.Metrics, logger *zap.SugaredLogger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if m == nil {
		m = metrics.New()
	}
	if cfg.Chunking.SampleRate <= 0 {
		cfg.Chunking.SampleRate = recording.DefaultConfig().SampleRate
	}
	if cfg.Trim.SampleRate <= 0 {
		cfg.Trim = chunker.DefaultTrimPolicy(cfg.Chunking.SampleRate)
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	detector := vad.New(cfg.VADThreshold)

	return &Pipeline{
		cfg:       cfg,
		logger:    logger,
		queue:     q,
		router:    router,
		metrics:   m,
		callbacks: cb,
		detector:  detector,
		assembler: chunker.New(cfg.Chunking, detector),
		now:       time.Now,
		status:    Idle,
		sel:       cfg.Selection,
		wake:      make(chan struct{}, 1),
	}
}

func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// CurrentTrip returns the active trip, if any.
func (p *Pipeline) CurrentTrip() (Trip, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trip, p.status != Idle
}

// Selection returns the configured engine selection. While a trip runs on the fallback
// engine, the router's selection differs from this one.
func (p *Pipeline) Selection() transcriber.Selection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sel
}

// ActiveEngine is the engine the router is running, which is the fallback after a failed start.
func (p *Pipeline) ActiveEngine() transcriber.EngineID {
	return p.router.Selection().Engine
}

func (p *Pipeline) Snapshot() queue.Snapshot {
	return p.queue.Snapshot()
}

// Configure selects the engine, local model and recognizer language. While a trip is
// running the router switches engines and every failed or in-flight item is requeued.
func (p *Pipeline) Configure(engineID, modelID, languageTag string) error {
	id, err := transcriber.ParseEngineID(engineID)
	if err != nil {
		return err
	}
	if languageTag != "" && !language.IsSupported(languageTag) {
		return fmt.Errorf("unsupported language %q", languageTag)
	}
	sel := transcriber.Selection{Engine: id, Model: modelID, Language: language.Normalize(languageTag)}

	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	prev := p.sel
	p.sel = sel
	running := p.status == Recording
	p.mu.Unlock()

	if !running {
		p.logger.Infof("Pipeline: configured engine=%s model=%s language=%s", sel.Engine, sel.Model, sel.Language)
		return nil
	}

	if err := p.router.Switch(context.Background(), sel); err != nil {
		p.mu.Lock()
		p.sel = prev
		p.mu.Unlock()
		return fmt.Errorf("switch engine: %w", err)
	}
	if p.router.FellBack() {
		p.metrics.RecordFallback()
	}
	n := p.queue.ResetAllToPending()
	p.logger.Infof("Pipeline: switched to %s, requeued %d items", p.router.Selection().Engine, n)
	p.signal()
	p.publish()
	return nil
}

// Start begins a trip. A blank trip ID is replaced with a new UUID.
func (p *Pipeline) Start(ctx context.Context, trip Trip) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	if p.status != Idle {
		p.mu.Unlock()
		return ErrAlreadyRunning
	}
	sel := p.sel
	p.mu.Unlock()

	if trip.ID == "" {
		trip.ID = uuid.NewString()
	}

	if err := p.router.Start(ctx, sel); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	if p.router.FellBack() {
		p.metrics.RecordFallback()
		p.logger.Warnf("Pipeline: %s unavailable, trip %s runs on %s", sel.Engine, trip.ID, p.router.Selection().Engine)
	}

	p.assembler.Start()
	p.draining.Store(false)
	p.halt.Store(false)
	p.discard.Store(false)
	done := make(chan struct{})

	p.mu.Lock()
	p.status = Recording
	p.trip = trip
	p.workerDone = done
	p.mu.Unlock()

	go p.worker(done)

	p.metrics.SetTripActive(true)
	p.logger.Infof("Pipeline: trip %s started (host=%s path=%s)", trip.ID, trip.HostRef, trip.PathRef)
	// pick up anything recovered from a previous run
	p.signal()
	p.publish()
	return nil
}

// Stop force-flushes the buffered audio, lets the worker drain the queue for at most
// the drain timeout and releases the engine. A chunk still being transcribed when the
// timeout expires is allowed to finish. Stopping an idle pipeline is a no-op.
func (p *Pipeline) Stop() error {
	return p.shutdown(true)
}

// Deactivate ends the trip without an explicit stop. Buffered audio is discarded and
// the worker stops after the chunk in flight, which goes back to pending whatever its
// result. Queued items stay in the queue.
func (p *Pipeline) Deactivate() {
	_ = p.shutdown(false)
}

func (p *Pipeline) shutdown(flush bool) error {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()

	p.mu.Lock()
	if p.status != Recording {
		p.mu.Unlock()
		return nil
	}
	p.status = Stopping
	trip := p.trip
	done := p.workerDone
	p.mu.Unlock()

	if flush {
		if chunk, ok := p.assembler.Stop(); ok {
			p.enqueue(trip, chunk)
		}
		p.draining.Store(true)
		p.signal()
		select {
		case <-done:
		case <-time.After(p.cfg.DrainTimeout):
			p.logger.Warnf("Pipeline: drain timed out after %v, finishing the chunk in flight", p.cfg.DrainTimeout)
		}
	} else {
		p.assembler.Deactivate()
		p.discard.Store(true)
	}

	p.halt.Store(true)
	p.signal()
	<-done

	if err := p.router.Close(); err != nil {
		p.logger.Warnf("Pipeline: closing router: %v", err)
	}

	p.mu.Lock()
	p.status = Idle
	p.workerDone = nil
	p.mu.Unlock()

	p.metrics.SetTripActive(false)
	p.publish()
	p.logger.Infof("Pipeline: trip %s ended (flushed=%t)", trip.ID, flush)
	return nil
}

// RetryFailed moves failed and in-flight items back to pending.
func (p *Pipeline) RetryFailed() int {
	n := p.queue.ResetAllToPending()
	if n > 0 {
		p.signal()
	}
	p.publish()
	return n
}

// RetryChunk moves one failed or in-flight item back to pending. id may be any unique
// prefix of the item id. It reports false when no such item is queued.
func (p *Pipeline) RetryChunk(id string) bool {
	id, ok := p.queue.ResolveID(id)
	if !ok || !p.queue.MarkRetry(id) {
		return false
	}
	p.logger.Infof("Pipeline: %s requeued", id)
	p.signal()
	p.publish()
	return true
}

// SubmitFrame runs one capture frame through the VAD and the assembler. Frames outside
// a recording trip are ignored.
func (p *Pipeline) SubmitFrame(frame recording.AudioFrame) {
	p.mu.Lock()
	if p.status != Recording {
		p.mu.Unlock()
		return
	}
	trip := p.trip
	p.mu.Unlock()

	speech := p.detector.IsSpeech(frame.Data)
	p.metrics.RecordFrame(speech)
	if chunk, ok := p.assembler.Append(frame.Data, speech); ok {
		p.enqueue(trip, chunk)
	}
}

// Run is the ingestion task: it submits frames until the channel closes or ctx ends.
func (p *Pipeline) Run(ctx context.Context, frames <-chan recording.AudioFrame) {
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			p.SubmitFrame(frame)
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) enqueue(trip Trip, chunk chunker.Chunk) {
	p.metrics.RecordChunkFlushed(string(chunk.Reason), chunk.BufferedDurationMs)

	data, keep := p.cfg.Trim.Apply(chunk, p.detector)
	if !keep {
		p.metrics.RecordChunkDropped()
		p.logger.Debugf("Pipeline: dropped %dms %s chunk without speech", chunk.BufferedDurationMs, chunk.Reason)
		return
	}

	durationMs := chunker.FrameDurationMs(len(data), p.cfg.Chunking.SampleRate)
	item, ok := p.queue.Enqueue(data, trip.ID, trip.HostRef, trip.PathRef, p.now(), durationMs)
	if !ok {
		p.logger.Warnf("Pipeline: failed to enqueue %dms chunk of trip %s", durationMs, trip.ID)
		return
	}
	p.logger.Debugf("Pipeline: queued %s (%dms, %s)", item.ID, durationMs, chunk.Reason)
	p.signal()
	p.publish()
}

// signal wakes the worker without blocking; one pending wake-up is enough.
func (p *Pipeline) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pipeline) publish() {
	s := p.queue.Snapshot()
	p.metrics.SetQueue(s.Pending, s.Processing, s.Failed)
}

func (p *Pipeline) worker(done chan struct{}) {
	defer close(done)
	for !p.halt.Load() {
		item, ok := p.queue.PollNextPending()
		if !ok {
			if p.draining.Load() {
				return
			}
			<-p.wake
			continue
		}
		p.publish()
		p.process(item)
		p.publish()
	}
}

func (p *Pipeline) process(item queue.Item) {
	audio, err := p.queue.ReadAudio(item)
	if err != nil {
		p.logger.Warnf("Pipeline: %s: %v", item.ID, err)
		p.queue.MarkFailed(item.ID, ReasonMissingAudio)
		p.report(&transcriber.Error{Kind: transcriber.KindAudio, Message: ReasonMissingAudio, Err: err})
		return
	}

	start := time.Now()
	res, err := p.router.Transcribe(context.Background(), audio, p.cfg.Chunking.SampleRate, p.partial)
	elapsed := time.Since(start)

	switch {
	case p.discard.Load():
		p.queue.MarkRetry(item.ID)
		p.logger.Infof("Pipeline: trip deactivated while %s was transcribed, requeued", item.ID)

	case err != nil:
		te := asError(err)
		p.queue.MarkFailed(item.ID, te.Error())
		p.metrics.RecordTranscriptionFailure(te.Kind.String(), elapsed)
		p.logger.Warnf("Pipeline: %s failed (attempt %d): %v", item.ID, item.Attempts, te)
		p.report(te)

	case res.Skipped:
		// below the engine minimum; dropped instead of failed so a retry never picks it up
		p.queue.MarkSucceeded(item.ID)
		p.metrics.RecordSkipped()
		p.logger.Debugf("Pipeline: %s below minimum length, dropped", item.ID)

	default:
		p.queue.MarkSucceeded(item.ID)
		p.metrics.RecordTranscriptionSuccess(string(res.Engine), elapsed)
		p.logger.Infof("Pipeline: %s transcribed by %s in %v", item.ID, res.Engine, res.Latency)
		if p.callbacks.OnFinal != nil {
			p.callbacks.OnFinal(Transcript{
				ChunkID:    item.ID,
				TripID:     item.SessionID,
				HostRef:    item.HostRef,
				PathRef:    item.PathRef,
				Text:       res.Text,
				Engine:     res.Engine,
				CreatedAt:  item.CreatedAt,
				DurationMs: item.DurationMs,
				Latency:    res.Latency,
			})
		}
	}
}

func (p *Pipeline) partial(text string) {
	if p.callbacks.OnPartial != nil {
		p.callbacks.OnPartial(text)
	}
}

func (p *Pipeline) report(e *transcriber.Error) {
	if p.callbacks.OnError != nil {
		p.callbacks.OnError(e)
	}
}

func asError(err error) *transcriber.Error {
	var te *transcriber.Error
	if errors.As(err, &te) {
		return te
	}
	return &transcriber.Error{Kind: transcriber.KindOf(err), Err: err}
}
