package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics contains the Prometheus collectors of the transcription pipeline
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion
	FramesProcessed prometheus.Counter
	SpeechFrames    prometheus.Counter
	TripActive      prometheus.Gauge

	// Chunking
	ChunksFlushed *prometheus.CounterVec
	ChunksDropped prometheus.Counter
	ChunkDuration prometheus.Histogram

	// Transcription
	TranscriptionSuccesses *prometheus.CounterVec
	TranscriptionFailures  *prometheus.CounterVec
	TranscriptionSkipped   prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	EngineFallbacks        prometheus.Counter

	// Queue
	QueueItems *prometheus.GaugeVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		FramesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "tripscribe_frames_processed_total",
			Help: "Total number of audio frames fed to the chunk assembler",
		}),
		SpeechFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "tripscribe_speech_frames_total",
			Help: "Total number of frames classified as speech",
		}),
		TripActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tripscribe_trip_active",
			Help: "1 while a trip is being recorded",
		}),

		ChunksFlushed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tripscribe_chunks_flushed_total",
			Help: "Total number of chunks emitted by the assembler",
		}, []string{"reason"}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "tripscribe_chunks_dropped_total",
			Help: "Total number of chunks dropped for containing no speech",
		}),
		ChunkDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tripscribe_chunk_duration_seconds",
			Help:    "Buffered duration of emitted chunks",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~1 minute
		}),

		TranscriptionSuccesses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tripscribe_transcription_successes_total",
			Help: "Total number of chunks transcribed",
		}, []string{"engine"}),
		TranscriptionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tripscribe_transcription_failures_total",
			Help: "Total number of failed transcriptions by error kind",
		}, []string{"kind"}),
		TranscriptionSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "tripscribe_transcription_skipped_total",
			Help: "Total number of chunks below the engine minimum length",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tripscribe_transcription_duration_seconds",
			Help:    "Duration of transcription calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}),
		EngineFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "tripscribe_engine_fallbacks_total",
			Help: "Total number of trips started on the fallback engine",
		}),

		QueueItems: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tripscribe_queue_items",
			Help: "Items in the durable chunk queue by status",
		}, []string{"status"}),
	}
}

// Registry exposes the private registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordFrame(speech bool) {
	m.FramesProcessed.Inc()
	if speech {
		m.SpeechFrames.Inc()
	}
}

func (m *Metrics) SetTripActive(active bool) {
	if active {
		m.TripActive.Set(1)
		return
	}
	m.TripActive.Set(0)
}

// RecordChunkFlushed records an assembled chunk and its buffered duration
func (m *Metrics) RecordChunkFlushed(reason string, durationMs int64) {
	m.ChunksFlushed.WithLabelValues(reason).Inc()
	m.ChunkDuration.Observe(float64(durationMs) / 1000)
}

func (m *Metrics) RecordChunkDropped() {
	m.ChunksDropped.Inc()
}

func (m *Metrics) RecordTranscriptionSuccess(engine string, d time.Duration) {
	m.TranscriptionSuccesses.WithLabelValues(engine).Inc()
	m.TranscriptionDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordTranscriptionFailure(kind string, d time.Duration) {
	m.TranscriptionFailures.WithLabelValues(kind).Inc()
	m.TranscriptionDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordSkipped() {
	m.TranscriptionSkipped.Inc()
}

func (m *Metrics) RecordFallback() {
	m.EngineFallbacks.Inc()
}

// SetQueue publishes the per-status queue counts
func (m *Metrics) SetQueue(pending, processing, failed int) {
	m.QueueItems.WithLabelValues("pending").Set(float64(pending))
	m.QueueItems.WithLabelValues("processing").Set(float64(processing))
	m.QueueItems.WithLabelValues("failed").Set(float64(failed))
}

// Handler serves the private registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.SugaredLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Metrics: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
