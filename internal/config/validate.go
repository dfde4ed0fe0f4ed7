package config

import (
	"fmt"

	"github.com/wads/tripscribe/internal/language"
	"github.com/wads/tripscribe/internal/models/whisper"
	"github.com/wads/tripscribe/internal/transcriber"
)

func (c *Config) Validate() error {
	if c.Recording.SampleRate <= 0 {
		return fmt.Errorf("invalid recording.sample_rate: %d", c.Recording.SampleRate)
	}
	if c.Recording.Channels != 1 {
		return fmt.Errorf("invalid recording.channels: %d (only mono capture is supported)", c.Recording.Channels)
	}
	if c.Recording.BufferSize <= 0 || c.Recording.BufferSize%2 != 0 {
		return fmt.Errorf("invalid recording.buffer_size: %d (must be a positive even number of bytes)", c.Recording.BufferSize)
	}
	if c.Recording.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid recording.channel_buffer_size: %d", c.Recording.ChannelBufferSize)
	}
	switch c.Recording.Format {
	case "s16", "s16le":
	default:
		return fmt.Errorf("invalid recording.format: %q (must be s16)", c.Recording.Format)
	}

	if c.VAD.Threshold <= 0 {
		return fmt.Errorf("invalid vad.threshold: %v", c.VAD.Threshold)
	}

	if c.Chunking.MinContext <= 0 {
		return fmt.Errorf("invalid chunking.min_context: %v", c.Chunking.MinContext)
	}
	if c.Chunking.SilenceFlush <= 0 {
		return fmt.Errorf("invalid chunking.silence_flush: %v", c.Chunking.SilenceFlush)
	}
	if c.Chunking.MaxChunk < c.Chunking.MinContext {
		return fmt.Errorf("invalid chunking.max_chunk: %v (must be at least min_context %v)", c.Chunking.MaxChunk, c.Chunking.MinContext)
	}

	if err := c.validateEngine(); err != nil {
		return err
	}

	if c.Queue.DrainTimeout < 0 {
		return fmt.Errorf("invalid queue.drain_timeout: %v", c.Queue.DrainTimeout)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q (must be debug, info, warn or error)", c.Logging.Level)
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("invalid metrics.address: empty while metrics are enabled")
	}

	switch c.Notifications.Type {
	case "desktop", "log", "none":
	default:
		return fmt.Errorf("invalid notifications.type: %q (must be desktop, log or none)", c.Notifications.Type)
	}

	return nil
}

func (c *Config) validateEngine() error {
	engine, err := transcriber.ParseEngineID(c.Engine.Engine)
	if err != nil {
		return fmt.Errorf("invalid engine.engine: %w", err)
	}

	if c.Engine.Fallback != "" {
		fallback, err := transcriber.ParseEngineID(c.Engine.Fallback)
		if err != nil {
			return fmt.Errorf("invalid engine.fallback: %w", err)
		}
		if !fallback.IsPlatform() {
			return fmt.Errorf("invalid engine.fallback: %q (must be a platform engine)", c.Engine.Fallback)
		}
	}

	if whisper.GetModel(c.Engine.Model) == nil {
		return fmt.Errorf("invalid engine.model: %q (see tripscribe models)", c.Engine.Model)
	}
	if !language.IsSupported(c.Engine.Language) {
		return fmt.Errorf("invalid engine.language: %q (see tripscribe languages)", c.Engine.Language)
	}
	if c.Engine.Threads < 0 {
		return fmt.Errorf("invalid engine.threads: %d", c.Engine.Threads)
	}

	switch c.Engine.Recognizer {
	case "deepgram", "openai":
	default:
		return fmt.Errorf("invalid engine.recognizer: %q (must be deepgram or openai)", c.Engine.Recognizer)
	}

	// A missing key only breaks the fallback, which is reported when it is used.
	if engine.IsPlatform() && c.APIKey() == "" {
		return fmt.Errorf("%s engine requires an API key: set %s", engine, c.APIKeyEnv())
	}

	if c.Engine.SetupTimeout < 0 || c.Engine.ResultTimeout < 0 || c.Engine.RestartBackoff < 0 {
		return fmt.Errorf("invalid engine timeouts: durations must not be negative")
	}
	return nil
}
