package config

import (
	"reflect"
	"time"

	"github.com/wads/tripscribe/internal/notify"
)

type Config struct {
	Recording     RecordingConfig     `toml:"recording"`
	VAD           VADConfig           `toml:"vad"`
	Chunking      ChunkingConfig      `toml:"chunking"`
	Engine        EngineConfig        `toml:"engine"`
	Queue         QueueConfig         `toml:"queue"`
	Logging       LoggingConfig       `toml:"logging"`
	Metrics       MetricsConfig       `toml:"metrics"`
	Notifications NotificationsConfig `toml:"notifications"`
}

type RecordingConfig struct {
	SampleRate        int    `toml:"sample_rate"`
	Channels          int    `toml:"channels"`
	Format            string `toml:"format"`
	BufferSize        int    `toml:"buffer_size"`
	Device            string `toml:"device"`
	ChannelBufferSize int    `toml:"channel_buffer_size"`
}

type VADConfig struct {
	Threshold float64 `toml:"threshold"` // RMS on the int16 scale
}

type ChunkingConfig struct {
	MinContext   time.Duration `toml:"min_context"`
	SilenceFlush time.Duration `toml:"silence_flush"`
	MaxChunk     time.Duration `toml:"max_chunk"`
	TrimSilence  bool          `toml:"trim_silence"`
	DropSilent   bool          `toml:"drop_silent"`
}

type EngineConfig struct {
	Engine    string `toml:"engine"`   // "local", "platform-continuous", "platform-injected"
	Fallback  string `toml:"fallback"` // platform engine used when local fails to start, "" disables
	Model     string `toml:"model"`    // whisper.cpp model id for the local engine
	ModelsDir string `toml:"models_dir"`
	Threads   int    `toml:"threads"` // CPU threads for whisper-cli (0 = auto: NumCPU-1)
	Language  string `toml:"language"`

	Recognizer      string `toml:"recognizer"` // platform backend: "deepgram" or "openai"
	RecognizerModel string `toml:"recognizer_model"`
	RecognizerURL   string `toml:"recognizer_url"` // override the backend endpoint

	SetupTimeout   time.Duration `toml:"setup_timeout"`
	ResultTimeout  time.Duration `toml:"result_timeout"`
	RestartBackoff time.Duration `toml:"restart_backoff"`
}

type QueueConfig struct {
	Dir          string        `toml:"dir"`
	DrainTimeout time.Duration `toml:"drain_timeout"`
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	Dir        string `toml:"dir"`
	Console    bool   `toml:"console"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

type NotificationsConfig struct {
	Enabled  bool           `toml:"enabled"`
	Type     string         `toml:"type"` // "desktop", "log", "none"
	Messages MessagesConfig `toml:"messages"`
}

type MessageConfig struct {
	Title string `toml:"title"`
	Body  string `toml:"body"`
}

type MessagesConfig struct {
	TripStarted         MessageConfig `toml:"trip_started"`
	TripStopped         MessageConfig `toml:"trip_stopped"`
	EngineFallback      MessageConfig `toml:"engine_fallback"`
	TranscriptionFailed MessageConfig `toml:"transcription_failed"`
	QueueRetried        MessageConfig `toml:"queue_retried"`
	ConfigReloaded      MessageConfig `toml:"config_reloaded"`
}

// Resolve merges user config with defaults from MessageDefs
func (m *MessagesConfig) Resolve() map[notify.MessageType]notify.Message {
	result := make(map[notify.MessageType]notify.Message)

	v := reflect.ValueOf(m).Elem()
	t := v.Type()
	tagToField := make(map[string]int)
	for i := 0; i < t.NumField(); i++ {
		tagToField[t.Field(i).Tag.Get("toml")] = i
	}

	for _, def := range notify.MessageDefs {
		msg := notify.Message{
			Title:   def.DefaultTitle,
			Body:    def.DefaultBody,
			IsError: def.IsError,
		}
		if idx, ok := tagToField[def.ConfigKey]; ok {
			userMsg := v.Field(idx).Interface().(MessageConfig)
			if userMsg.Title != "" {
				msg.Title = userMsg.Title
			}
			if userMsg.Body != "" {
				msg.Body = userMsg.Body
			}
		}
		result[def.Type] = msg
	}
	return result
}
