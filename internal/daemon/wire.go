package daemon

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/wads/tripscribe/internal/bus"
	"github.com/wads/tripscribe/internal/config"
	"github.com/wads/tripscribe/internal/metrics"
	"github.com/wads/tripscribe/internal/notify"
	"github.com/wads/tripscribe/internal/pipeline"
	"github.com/wads/tripscribe/internal/queue"
	"github.com/wads/tripscribe/internal/recording"
	"github.com/wads/tripscribe/internal/transcriber"
)

// Build assembles the daemon from the managed configuration: queue, engines, pipeline,
// capture and notifications.
func Build(mgr *config.Manager, logger *zap.SugaredLogger, version string) (*Daemon, error) {
	cfg := mgr.GetConfig()

	queueDir, err := cfg.QueueDir()
	if err != nil {
		return nil, err
	}
	q, err := queue.Open(queueDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open queue: %w", err)
	}

	// Platform engines stay unavailable without a key; the router reports it on use.
	rec, err := cfg.NewRecognizer(logger)
	if err != nil {
		logger.Warnf("Daemon: platform engines unavailable: %v", err)
	}
	engineCfg, err := cfg.ToEngineConfig(rec, logger)
	if err != nil {
		return nil, err
	}
	router := transcriber.NewRouter(transcriber.NewEngineFactory(engineCfg), cfg.FallbackEngine(), logger)

	notifier := notify.New(cfg.Notifications.Type, cfg.Notifications.Enabled, cfg.Notifications.Messages.Resolve(), logger)
	m := metrics.New()

	p := pipeline.New(cfg.ToPipelineConfig(), q, router, transcriptCallbacks(notifier, logger), m, logger)

	sockPath, err := bus.SockPath()
	if err != nil {
		return nil, err
	}
	pidPath, err := bus.PidPath()
	if err != nil {
		return nil, err
	}

	deps := Deps{
		Pipeline: p,
		NewSource: func() FrameSource {
			return recording.NewRecorder(mgr.GetConfig().ToRecordingConfig(), logger)
		},
		Notifier: notifier,
		Metrics:  m,
		Manager:  mgr,
		Logger:   logger,
		Version:  version,
		SockPath: sockPath,
		PidPath:  pidPath,
	}
	if cfg.Metrics.Enabled {
		deps.MetricsAddr = cfg.Metrics.Address
	}

	mgr.OnChange(func(old, updated *config.Config) {
		applyConfig(p, notifier, logger, old, updated)
	})

	return New(deps), nil
}

// transcriptCallbacks logs finalized fragments and surfaces transcription errors.
// Transcript storage belongs to the caller; the daemon only records them in the log.
func transcriptCallbacks(n notify.Notifier, logger *zap.SugaredLogger) pipeline.Callbacks {
	return pipeline.Callbacks{
		OnPartial: func(text string) {
			logger.Debugf("Transcript: partial %q", text)
		},
		OnFinal: func(t pipeline.Transcript) {
			logger.Infow("Transcript",
				"trip", t.TripID,
				"chunk", t.ChunkID,
				"engine", t.Engine,
				"duration_ms", t.DurationMs,
				"latency", t.Latency,
				"text", t.Text,
			)
		},
		OnError: func(e *transcriber.Error) {
			n.Send(notify.MsgTranscriptionFailed, e.Error())
		},
	}
}

// applyConfig pushes engine changes into the pipeline. Other sections take effect on
// the next trip or daemon restart.
func applyConfig(p *pipeline.Pipeline, n notify.Notifier, logger *zap.SugaredLogger, old, updated *config.Config) {
	if old.Engine.Engine != updated.Engine.Engine ||
		old.Engine.Model != updated.Engine.Model ||
		old.Engine.Language != updated.Engine.Language {
		if err := p.Configure(updated.Engine.Engine, updated.Engine.Model, updated.Engine.Language); err != nil {
			logger.Errorf("Daemon: applying engine config: %v", err)
			n.Error(fmt.Sprintf("Config not applied: %v", err))
			return
		}
	}
	n.Send(notify.MsgConfigReloaded, nil)
}
