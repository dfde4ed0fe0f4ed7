package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ChangeFunc is called after a reload with the previous and the new configuration.
type ChangeFunc func(old, updated *Config)

type Manager struct {
	mu          sync.RWMutex
	path        string
	config      *Config
	subscribers []ChangeFunc
	logger      *zap.SugaredLogger
	watcher     *fsnotify.Watcher
	wg          sync.WaitGroup
}

// NewManager loads the config file at the default path.
func NewManager(logger *zap.SugaredLogger) (*Manager, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return NewManagerAt(path, logger)
}

func NewManagerAt(path string, logger *zap.SugaredLogger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	config, err := LoadFile(path)
	if err != nil {
		logger.Errorw("Config manager: failed to load initial configuration", "path", path, "error", err)
		return nil, err
	}

	if err := config.Validate(); err != nil {
		logger.Warnw("Config manager: validation warning", "error", err)
	}

	logger.Infow("Config manager: configuration loaded", "path", path)
	return &Manager{path: path, config: config, logger: logger}, nil
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Return a copy to prevent external modification
	configCopy := *m.config
	return &configCopy
}

// OnChange registers fn to run after every successful reload.
func (m *Manager) OnChange(fn ChangeFunc) {
	m.mu.Lock()
	m.subscribers = append(m.subscribers, fn)
	m.mu.Unlock()
}

func (m *Manager) StartWatching(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory: editors replace the file instead of writing it in place.
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		watcher.Close()
		return err
	}
	m.watcher = watcher

	m.wg.Add(1)
	go m.watchLoop(ctx)

	m.logger.Infow("Config manager: watching for changes", "path", m.path)
	return nil
}

func (m *Manager) Stop() {
	if m.watcher != nil {
		m.watcher.Close()
	}
	m.wg.Wait()
}

func (m *Manager) watchLoop(ctx context.Context) {
	defer m.wg.Done()
	configFileName := filepath.Base(m.path)

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != configFileName {
				continue
			}

			// Only react to Write and Create events (ignore Chmod, Remove, etc.)
			if event.Op&fsnotify.Write == fsnotify.Write || event.Op&fsnotify.Create == fsnotify.Create {
				m.logger.Infow("Config manager: file change detected, reloading", "file", event.Name)
				m.Reload()
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warnw("Config watcher error", "error", err)

		case <-ctx.Done():
			return
		}
	}
}

// Reload re-reads the file and notifies subscribers. Invalid files keep the current config.
func (m *Manager) Reload() bool {
	newConfig, err := LoadFile(m.path)
	if err != nil {
		m.logger.Warnw("Config manager: failed to reload config", "error", err)
		return false
	}

	if err := newConfig.Validate(); err != nil {
		m.logger.Warnw("Config manager: invalid config after reload", "error", err)
		return false
	}

	m.mu.Lock()
	old := m.config
	m.config = newConfig
	subscribers := append([]ChangeFunc(nil), m.subscribers...)
	m.mu.Unlock()

	m.logger.Infow("Config manager: configuration reloaded")
	for _, fn := range subscribers {
		oldCopy, newCopy := *old, *newConfig
		fn(&oldCopy, &newCopy)
	}
	return true
}
