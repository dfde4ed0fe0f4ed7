package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesRotatingFile(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Name("test-logger"), Path(dir), Level("debug"), Console(false))
	require.NoError(t, err)

	logger.Infof("Queue: enqueued %d items", 3)
	_ = logger.Sync()

	data, err := os.ReadFile(filepath.Join(dir, "test-logger.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Queue: enqueued 3 items")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Level("loud"), Console(false))
	assert.Error(t, err)
}

func TestNewFallsBackToConsole(t *testing.T) {
	logger, err := New(Console(false))
	require.NoError(t, err)
	assert.NotNil(t, logger)
}
