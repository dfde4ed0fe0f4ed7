package transcriber

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func installedModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ggml-tiny.bin")
	require.NoError(t, os.WriteFile(path, []byte("ggml"), 0644))
	return path
}

func newTestLocalEngine(t *testing.T, modelPath string, run commandRunner) *LocalEngine {
	e := NewLocalEngine(modelPath, "pt", 4, zaptest.NewLogger(t).Sugar())
	e.lookPath = func(string) (string, error) { return "/usr/bin/whisper-cli", nil }
	e.run = run
	return e
}

func TestLocalEngine_InitMissingModel(t *testing.T) {
	e := newTestLocalEngine(t, "/nonexistent/ggml-tiny.bin", nil)
	err := e.Init(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelNotInstalled))
	assert.True(t, IsPermanent(err))
}

func TestLocalEngine_InitMissingBinary(t *testing.T) {
	e := newTestLocalEngine(t, installedModel(t), nil)
	e.lookPath = func(string) (string, error) { return "", errors.New("not found") }
	err := e.Init(context.Background())
	assert.ErrorIs(t, err, ErrBinaryNotFound)
}

func TestLocalEngine_Transcribe(t *testing.T) {
	var gotArgs []string
	var wavExisted bool
	e := newTestLocalEngine(t, installedModel(t), func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		gotArgs = args
		_, err := os.Stat(args[len(args)-3])
		wavExisted = err == nil
		return []byte("  bom dia pessoal \n"), nil, nil
	})
	require.NoError(t, e.Init(context.Background()))

	res, err := e.Transcribe(context.Background(), Audio{PCM: make([]byte, 32000), SampleRate: 16000}, nil)
	require.NoError(t, err)
	assert.Equal(t, "bom dia pessoal", res.Text)
	assert.True(t, res.IsFinal)
	assert.True(t, wavExisted)
	assert.Contains(t, strings.Join(gotArgs, " "), "-l pt -nt -np -f")
	assert.Equal(t, []string{"-t", "4"}, gotArgs[len(gotArgs)-2:])
}

func TestLocalEngine_ErrorOutput(t *testing.T) {
	e := newTestLocalEngine(t, installedModel(t), func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return []byte("Error: failed to decode audio"), nil, nil
	})
	require.NoError(t, e.Init(context.Background()))

	_, err := e.Transcribe(context.Background(), Audio{PCM: make([]byte, 32000), SampleRate: 16000}, nil)
	require.Error(t, err)
	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "failed to decode audio", te.Message)
}

func TestLocalEngine_NotInitialized(t *testing.T) {
	e := newTestLocalEngine(t, installedModel(t), nil)
	_, err := e.Transcribe(context.Background(), Audio{PCM: make([]byte, 32000), SampleRate: 16000}, nil)
	assert.ErrorIs(t, err, ErrNotStarted)
}
