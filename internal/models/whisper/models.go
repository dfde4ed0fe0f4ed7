package whisper

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultModelID is the model used when none is configured.
const DefaultModelID = "tiny"

// ModelInfo holds metadata for a ggml whisper model
type ModelInfo struct {
	ID           string // model identifier (e.g., "base.en-q5_1")
	Details      string // short description shown in listings
	Multilingual bool   // false for the .en variants
	Size         string // approximate download size
}

// Filename returns the ggml file name of the model (e.g., "ggml-tiny.bin")
func (m ModelInfo) Filename() string {
	return "ggml-" + m.ID + ".bin"
}

var models = []ModelInfo{
	{ID: "tiny", Details: "Multilingual, fastest", Multilingual: true, Size: "75MB"},
	{ID: "tiny.en", Details: "English only, fastest", Size: "75MB"},
	{ID: "tiny-q5_1", Details: "Multilingual, quantized q5_1", Multilingual: true, Size: "31MB"},
	{ID: "tiny.en-q5_1", Details: "English only, quantized q5_1", Size: "31MB"},
	{ID: "tiny-q8_0", Details: "Multilingual, quantized q8_0", Multilingual: true, Size: "42MB"},
	{ID: "tiny.en-q8_0", Details: "English only, quantized q8_0", Size: "42MB"},

	{ID: "base", Details: "Multilingual, better quality", Multilingual: true, Size: "142MB"},
	{ID: "base.en", Details: "English only, better quality", Size: "142MB"},
	{ID: "base-q5_1", Details: "Multilingual, quantized q5_1", Multilingual: true, Size: "57MB"},
	{ID: "base.en-q5_1", Details: "English only, quantized q5_1", Size: "57MB"},
	{ID: "base-q8_0", Details: "Multilingual, quantized q8_0", Multilingual: true, Size: "78MB"},
	{ID: "base.en-q8_0", Details: "English only, quantized q8_0", Size: "78MB"},

	{ID: "small", Details: "Multilingual, higher quality", Multilingual: true, Size: "466MB"},
	{ID: "small.en", Details: "English only, higher quality", Size: "466MB"},
	{ID: "small-q5_1", Details: "Multilingual, quantized q5_1", Multilingual: true, Size: "181MB"},
	{ID: "small.en-q5_1", Details: "English only, quantized q5_1", Size: "181MB"},
	{ID: "small-q8_0", Details: "Multilingual, quantized q8_0", Multilingual: true, Size: "252MB"},
	{ID: "small.en-q8_0", Details: "English only, quantized q8_0", Size: "252MB"},
	{ID: "small.en-tdrz", Details: "English only with tiny diarization", Size: "465MB"},

	{ID: "medium", Details: "Multilingual, highest quality", Multilingual: true, Size: "1.5GB"},
	{ID: "medium.en", Details: "English only, highest quality", Size: "1.5GB"},
	{ID: "medium-q5_0", Details: "Multilingual, quantized q5_0", Multilingual: true, Size: "514MB"},
	{ID: "medium.en-q5_0", Details: "English only, quantized q5_0", Size: "514MB"},
	{ID: "medium-q8_0", Details: "Multilingual, quantized q8_0", Multilingual: true, Size: "785MB"},
	{ID: "medium.en-q8_0", Details: "English only, quantized q8_0", Size: "785MB"},
}

var modelByID = func() map[string]ModelInfo {
	m := make(map[string]ModelInfo, len(models))
	for _, model := range models {
		m[model.ID] = model
	}
	return m
}()

// DefaultModelsDir returns the directory where whisper models are looked up
// when the config does not name one.
func DefaultModelsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "tripscribe", "models", "whisper"), nil
}

// ExpandDir resolves a leading ~ in a configured models directory.
func ExpandDir(dir string) (string, error) {
	if dir == "" {
		return DefaultModelsDir()
	}
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(dir, "~")), nil
	}
	return dir, nil
}

// ModelPath returns the full path of a model file inside dir.
// Returns empty string if model ID is unknown.
func ModelPath(dir, modelID string) string {
	info, ok := modelByID[modelID]
	if !ok {
		return ""
	}
	return filepath.Join(dir, info.Filename())
}

// GetModel returns model info by ID, or nil if not found
func GetModel(modelID string) *ModelInfo {
	info, ok := modelByID[modelID]
	if !ok {
		return nil
	}
	return &info
}

// ListModels returns the full catalog in display order
func ListModels() []ModelInfo {
	out := make([]ModelInfo, len(models))
	copy(out, models)
	return out
}

// SupportsLanguage reports whether the model can transcribe the given ISO 639-1 code
func (m ModelInfo) SupportsLanguage(code string) bool {
	return m.Multilingual || code == "" || code == "en"
}
