package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// commandRunner executes name with args and returns its stdout and stderr.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, []byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// LocalEngine runs whisper.cpp's whisper-cli over a temporary 16 kHz WAV file.
type LocalEngine struct {
	modelPath string
	language  string
	threads   int
	logger    *zap.SugaredLogger

	binary   string
	lookPath func(string) (string, error)
	run      commandRunner
}

// NewLocalEngine creates a whisper-cli engine.
// modelPath: full path to the ggml model file
// lang: ISO 639-1 code, empty for auto-detect
// threads: number of CPU threads (0 lets whisper-cli decide)
func NewLocalEngine(modelPath, lang string, threads int, logger *zap.SugaredLogger) *LocalEngine {
	return &LocalEngine{
		modelPath: modelPath,
		language:  lang,
		threads:   threads,
		logger:    logger,
		lookPath:  exec.LookPath,
		run:       execRunner,
	}
}

func (e *LocalEngine) ID() EngineID { return EngineLocal }

func (e *LocalEngine) Capabilities() Capabilities {
	return Capabilities{
		FixedRateInput:     true,
		NeedsResampling:    true,
		SupportsPartials:   false,
		WholeUtteranceOnly: true,
		TargetSampleRate:   localSampleRate,
		MinSamples:         localMinSamples,
	}
}

// Init checks that the model asset and the whisper-cli binary are present.
func (e *LocalEngine) Init(ctx context.Context) error {
	info, err := os.Stat(e.modelPath)
	if err != nil || info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrModelNotInstalled, e.modelPath)
	}
	bin, err := e.lookPath("whisper-cli")
	if err != nil {
		return ErrBinaryNotFound
	}
	e.binary = bin
	e.logger.Infof("Local engine: using %s with model %s", bin, e.modelPath)
	return nil
}

func (e *LocalEngine) Transcribe(ctx context.Context, audio Audio, _ PartialFunc) (Result, error) {
	if e.binary == "" {
		return Result{}, ErrNotStarted
	}

	wavData, err := convertToWAV(audio.PCM, audio.SampleRate)
	if err != nil {
		return Result{}, newError(KindAudio, "", fmt.Errorf("convert to WAV: %w", err))
	}

	tmp, err := os.CreateTemp("", "tripscribe-*.wav")
	if err != nil {
		return Result{}, newError(KindAudio, "", fmt.Errorf("create temp file: %w", err))
	}
	tmpFile := tmp.Name()
	defer os.Remove(tmpFile)
	if _, err := tmp.Write(wavData); err != nil {
		tmp.Close()
		return Result{}, newError(KindAudio, "", fmt.Errorf("write temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		return Result{}, newError(KindAudio, "", fmt.Errorf("close temp file: %w", err))
	}

	lang := e.language
	if lang == "" {
		lang = "auto"
	}
	args := []string{
		"-m", e.modelPath,
		"-l", lang,
		"-nt", // no timestamps
		"-np", // no progress
		"-f", tmpFile,
	}
	if e.threads > 0 {
		args = append(args, "-t", fmt.Sprintf("%d", e.threads))
	}

	start := time.Now()
	stdout, stderr, err := e.run(ctx, e.binary, args...)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		e.logger.Warnf("Local engine: whisper-cli failed after %v: %v stderr=%s", duration, err, strings.TrimSpace(string(stderr)))
		return Result{}, newError(KindUnknown, "whisper-cli failed", err)
	}

	text := strings.TrimSpace(string(stdout))
	if strings.HasPrefix(text, "Error:") {
		return Result{}, newError(KindUnknown, strings.TrimSpace(strings.TrimPrefix(text, "Error:")), nil)
	}

	e.logger.Debugf("Local engine: transcribed %d samples in %v", audio.Samples(), duration)
	return Result{Text: text, IsFinal: true}, nil
}

// Close has nothing to release; whisper-cli runs per chunk.
func (e *LocalEngine) Close() error {
	e.binary = ""
	return nil
}
