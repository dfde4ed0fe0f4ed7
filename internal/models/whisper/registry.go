package whisper

import (
	"errors"
	"fmt"
	"os"
)

var ErrNotInstalled = errors.New("model not installed")

// IsInstalled returns true if the model file exists in dir and is not empty
func IsInstalled(dir, modelID string) bool {
	path := ModelPath(dir, modelID)
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// ListInstalled returns IDs of all catalog models present in dir
func ListInstalled(dir string) []string {
	var installed []string
	for _, m := range models {
		if IsInstalled(dir, m.ID) {
			installed = append(installed, m.ID)
		}
	}
	return installed
}

// InstalledPath returns the path to an installed model, or an error wrapping
// ErrNotInstalled when the file is missing.
func InstalledPath(dir, modelID string) (string, error) {
	path := ModelPath(dir, modelID)
	if path == "" {
		return "", fmt.Errorf("unknown whisper model: %s", modelID)
	}
	if !IsInstalled(dir, modelID) {
		return path, fmt.Errorf("%w: %s", ErrNotInstalled, path)
	}
	return path, nil
}
