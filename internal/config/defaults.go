package config

import (
	"github.com/wads/tripscribe/internal/chunker"
	"github.com/wads/tripscribe/internal/language"
	"github.com/wads/tripscribe/internal/models/whisper"
	"github.com/wads/tripscribe/internal/pipeline"
	"github.com/wads/tripscribe/internal/transcriber"
	"github.com/wads/tripscribe/internal/vad"
)

// DefaultConfig returns the configuration written on first start.
func DefaultConfig() *Config {
	return &Config{
		Recording: RecordingConfig{
			SampleRate:        48000,
			Channels:          1,
			Format:            "s16",
			BufferSize:        9600,
			Device:            "",
			ChannelBufferSize: 50,
		},
		VAD: VADConfig{
			Threshold: vad.DefaultThreshold,
		},
		Chunking: ChunkingConfig{
			MinContext:   chunker.DefaultMinContext,
			SilenceFlush: chunker.DefaultSilenceFlush,
			MaxChunk:     chunker.DefaultMaxChunk,
			TrimSilence:  true,
			DropSilent:   true,
		},
		Engine: EngineConfig{
			Engine:         string(transcriber.EngineLocal),
			Fallback:       string(transcriber.EnginePlatformContinuous),
			Model:          whisper.DefaultModelID,
			ModelsDir:      "",
			Threads:        0,
			Language:       language.Default.Tag,
			Recognizer:     "deepgram",
			SetupTimeout:   transcriber.DefaultSetupTimeout,
			ResultTimeout:  transcriber.DefaultResultTimeout,
			RestartBackoff: transcriber.DefaultRestartBackoff,
		},
		Queue: QueueConfig{
			Dir:          "",
			DrainTimeout: pipeline.DefaultDrainTimeout,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Dir:        "",
			Console:    false,
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: "127.0.0.1:9464",
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Type:    "desktop",
		},
	}
}

const defaultConfigTemplate = `# tripscribe configuration
# Edit values as needed - engine, model and language changes are applied without a daemon restart.

# Audio capture (PipeWire pw-record)
[recording]
  sample_rate = 48000          # Capture rate in Hz
  channels = 1                 # Only mono is supported
  format = "s16"               # 16-bit signed little-endian
  buffer_size = 9600           # Bytes per frame (9600 = 100 ms at 48 kHz)
  device = ""                  # PipeWire target (empty = default microphone)
  channel_buffer_size = 50     # Frames buffered between capture and the assembler

# Voice activity detection
[vad]
  threshold = 500.0            # RMS above which a frame counts as speech

# Chunk boundaries
[chunking]
  min_context = "3s"           # Never flush less audio than this, except at trip end
  silence_flush = "5s"         # Flush after this much trailing silence
  max_chunk = "45s"            # Hard cap on a chunk during continuous speech
  trim_silence = true          # Cut leading/trailing silence before queueing
  drop_silent = true           # Drop chunks that never contained speech

# Transcription engine
[engine]
  engine = "local"                   # "local", "platform-continuous" or "platform-injected"
  fallback = "platform-continuous"   # Used once when the local engine cannot start ("" = none)
  model = "tiny"                     # whisper.cpp model id (see: tripscribe models)
  models_dir = ""                    # Empty = ~/.local/share/tripscribe/models/whisper
  threads = 0                        # whisper-cli threads (0 = auto)
  language = "pt-BR"                 # Recognizer language tag (see: tripscribe languages)
  recognizer = "deepgram"            # Platform backend: "deepgram" (DEEPGRAM_API_KEY) or "openai" (OPENAI_API_KEY)
  recognizer_model = ""              # Empty = backend default
  recognizer_url = ""                # Empty = public endpoint
  setup_timeout = "2s"
  result_timeout = "18s"
  restart_backoff = "300ms"

# Durable chunk queue
[queue]
  dir = ""                     # Empty = ~/.local/share/tripscribe/queue
  drain_timeout = "2s"         # How long Stop waits for the queue to drain

[logging]
  level = "info"               # debug, info, warn, error
  dir = ""                     # Empty = ~/.cache/tripscribe/logs
  console = false              # Also log to stderr
  max_size_mb = 10
  max_backups = 3

[metrics]
  enabled = false
  address = "127.0.0.1:9464"   # Prometheus endpoint at /metrics

[notifications]
  enabled = true
  type = "desktop"             # "desktop", "log" or "none"
`
