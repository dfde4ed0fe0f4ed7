package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wads/tripscribe/internal/chunker"
	"github.com/wads/tripscribe/internal/language"
	"github.com/wads/tripscribe/internal/logging"
	"github.com/wads/tripscribe/internal/models/whisper"
	"github.com/wads/tripscribe/internal/pipeline"
	"github.com/wads/tripscribe/internal/recording"
	"github.com/wads/tripscribe/internal/transcriber"
)

func (c *Config) ToRecordingConfig() recording.Config {
	return recording.Config{
		SampleRate:        c.Recording.SampleRate,
		Channels:          c.Recording.Channels,
		Format:            c.Recording.Format,
		BufferSize:        c.Recording.BufferSize,
		Device:            c.Recording.Device,
		ChannelBufferSize: c.Recording.ChannelBufferSize,
	}
}

func (c *Config) ToChunkerConfig() chunker.Config {
	return chunker.Config{
		SampleRate:   c.Recording.SampleRate,
		MinContext:   c.Chunking.MinContext,
		SilenceFlush: c.Chunking.SilenceFlush,
		MaxChunk:     c.Chunking.MaxChunk,
	}
}

func (c *Config) ToTrimPolicy() chunker.TrimPolicy {
	p := chunker.DefaultTrimPolicy(c.Recording.SampleRate)
	p.TrimSilence = c.Chunking.TrimSilence
	p.DropSilent = c.Chunking.DropSilent
	return p
}

// ToSelection returns the engine, model and normalized language tag the user picked.
func (c *Config) ToSelection() transcriber.Selection {
	id, err := transcriber.ParseEngineID(c.Engine.Engine)
	if err != nil {
		id = transcriber.EngineLocal
	}
	return transcriber.Selection{
		Engine:   id,
		Model:    c.Engine.Model,
		Language: language.Normalize(c.Engine.Language),
	}
}

// FallbackEngine returns the configured fallback, or "" when fallback is disabled.
func (c *Config) FallbackEngine() transcriber.EngineID {
	id, err := transcriber.ParseEngineID(c.Engine.Fallback)
	if err != nil {
		return ""
	}
	return id
}

func (c *Config) ToPipelineConfig() pipeline.Config {
	return pipeline.Config{
		Chunking:     c.ToChunkerConfig(),
		Trim:         c.ToTrimPolicy(),
		VADThreshold: c.VAD.Threshold,
		Selection:    c.ToSelection(),
		DrainTimeout: c.Queue.DrainTimeout,
	}
}

// ToEngineConfig builds the factory config. A nil recognizer leaves the platform engines unavailable.
func (c *Config) ToEngineConfig(rec transcriber.Recognizer, logger *zap.SugaredLogger) (transcriber.EngineConfig, error) {
	modelsDir, err := whisper.ExpandDir(c.Engine.ModelsDir)
	if err != nil {
		return transcriber.EngineConfig{}, fmt.Errorf("resolve models dir: %w", err)
	}
	return transcriber.EngineConfig{
		CaptureRate:    c.Recording.SampleRate,
		ModelsDir:      modelsDir,
		Threads:        c.Engine.Threads,
		Recognizer:     rec,
		SetupTimeout:   c.Engine.SetupTimeout,
		ResultTimeout:  c.Engine.ResultTimeout,
		RestartBackoff: c.Engine.RestartBackoff,
		Logger:         logger,
	}, nil
}

// NewRecognizer builds the platform recognizer backend from engine.recognizer and the
// matching API key environment variable.
func (c *Config) NewRecognizer(logger *zap.SugaredLogger) (transcriber.Recognizer, error) {
	key := c.APIKey()
	if key == "" {
		return nil, fmt.Errorf("%s recognizer: %s is not set", c.Engine.Recognizer, c.APIKeyEnv())
	}
	switch c.Engine.Recognizer {
	case "deepgram":
		return transcriber.NewDeepgramRecognizer(c.Engine.RecognizerURL, key, c.Engine.RecognizerModel, logger), nil
	case "openai":
		return transcriber.NewOpenAIRecognizer(c.Engine.RecognizerURL, key, c.Engine.RecognizerModel, logger), nil
	}
	return nil, fmt.Errorf("unknown recognizer %q", c.Engine.Recognizer)
}

// QueueDir resolves queue.dir, defaulting to ~/.local/share/tripscribe/queue.
func (c *Config) QueueDir() (string, error) {
	dir := c.Queue.Dir
	if dir != "" && dir != "~" && !strings.HasPrefix(dir, "~/") {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if dir == "" {
		return filepath.Join(home, ".local", "share", "tripscribe", "queue"), nil
	}
	return filepath.Join(home, strings.TrimPrefix(dir, "~")), nil
}

func (c *Config) ToLoggingOptions(name string) []logging.Option {
	opts := []logging.Option{
		logging.Name(name),
		logging.Level(c.Logging.Level),
		logging.Console(c.Logging.Console),
		logging.Rotation(c.Logging.MaxSizeMB, c.Logging.MaxBackups),
	}
	dir := c.Logging.Dir
	if dir == "" {
		if d, err := logging.DefaultDir(); err == nil {
			dir = d
		}
	}
	if dir != "" {
		opts = append(opts, logging.Path(dir))
	}
	return opts
}
