package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type options struct {
	name       string
	path       string
	level      string
	console    bool
	maxSizeMB  int
	maxBackups int
}

// Option configures the application logger.
type Option func(*options)

func Name(name string) Option     { return func(o *options) { o.name = name } }
func Path(dir string) Option      { return func(o *options) { o.path = dir } }
func Level(level string) Option   { return func(o *options) { o.level = level } }
func Console(enabled bool) Option { return func(o *options) { o.console = enabled } }

// Rotation sets the lumberjack rotation limits for the log file.
func Rotation(maxSizeMB, maxBackups int) Option {
	return func(o *options) {
		o.maxSizeMB = maxSizeMB
		o.maxBackups = maxBackups
	}
}

// New builds a sugared zap logger writing JSON lines to a rotating file
// under the configured path and, optionally, human readable lines to stderr.
func New(opts ...Option) (*zap.SugaredLogger, error) {
	o := options{
		name:       "tripscribe",
		level:      "info",
		console:    true,
		maxSizeMB:  10,
		maxBackups: 3,
	}
	for _, opt := range opts {
		opt(&o)
	}

	lvl, err := zapcore.ParseLevel(o.level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", o.level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	if o.path != "" {
		if err := os.MkdirAll(o.path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(o.path, o.name+".log"),
			MaxSize:    o.maxSizeMB,
			MaxBackups: o.maxBackups,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), lvl))
	}
	if o.console || len(cores) == 0 {
		consoleCfg := encCfg
		consoleCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleCfg), zapcore.Lock(os.Stderr), lvl))
	}

	return zap.New(zapcore.NewTee(cores...)).Named(o.name).Sugar(), nil
}

// DefaultDir returns the directory used for log files when none is configured.
func DefaultDir() (string, error) {
	stateDir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user cache directory: %w", err)
	}
	return filepath.Join(stateDir, "tripscribe", "logs"), nil
}

// Nop returns a logger that discards everything.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
