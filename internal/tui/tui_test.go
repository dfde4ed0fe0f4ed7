package tui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wads/tripscribe/internal/config"
	"github.com/wads/tripscribe/internal/deps"
	"github.com/wads/tripscribe/internal/queue"
)

func TestLanguageWarning(t *testing.T) {
	tests := []struct {
		model string
		tag   string
		warn  bool
	}{
		{"tiny", "pt-BR", false},
		{"tiny.en", "en-US", false},
		{"tiny.en", "pt-BR", true},
		{"base.en-q5_1", "de-DE", true},
		{"unknown", "pt-BR", false},
	}
	for _, tt := range tests {
		got := languageWarning(tt.model, tt.tag)
		if (got != "") != tt.warn {
			t.Errorf("languageWarning(%q, %q) = %q, want warning %v", tt.model, tt.tag, got, tt.warn)
		}
	}
}

func TestValidateDuration(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"3s", false},
		{" 500ms ", false},
		{"0s", true},
		{"-1s", true},
		{"three", true},
	}
	for _, tt := range tests {
		if err := validateDuration(tt.in); (err != nil) != tt.wantErr {
			t.Errorf("validateDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

func TestModelOptionsMarkInstalled(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ggml-base.bin"), []byte("model"), 0o644); err != nil {
		t.Fatal(err)
	}

	var installed []string
	for _, opt := range modelOptions(dir) {
		if strings.HasSuffix(opt.Key, "[installed]") {
			installed = append(installed, opt.Value)
		}
	}
	if len(installed) != 1 || installed[0] != "base" {
		t.Errorf("installed options = %v, want [base]", installed)
	}
}

func TestFormatLabels(t *testing.T) {
	t.Setenv(config.DeepgramAPIKeyEnv, "")
	cfg := config.DefaultConfig()

	if got := formatEngineLabel(cfg); got != "Engine: local (model tiny, fallback platform-continuous)" {
		t.Errorf("engine label = %q", got)
	}
	if got := formatLanguageLabel(cfg); got != "Language: Portuguese (Brazil) (pt-BR)" {
		t.Errorf("language label = %q", got)
	}
	if got := formatRecognizerLabel(cfg); !strings.Contains(got, "key missing") {
		t.Errorf("recognizer label = %q", got)
	}
	if got := formatMetricsLabel(cfg); got != "Metrics: disabled" {
		t.Errorf("metrics label = %q", got)
	}

	cfg.Engine.Fallback = ""
	if got := formatEngineLabel(cfg); !strings.HasSuffix(got, "fallback none)") {
		t.Errorf("engine label without fallback = %q", got)
	}
}

func TestSummaryWarnsAboutMissingKey(t *testing.T) {
	t.Setenv(config.DeepgramAPIKeyEnv, "")
	cfg := config.DefaultConfig()
	cfg.Engine.Engine = "platform-continuous"

	lines := summaryLines(cfg)
	if !strings.Contains(lines[len(lines)-1], config.DeepgramAPIKeyEnv) {
		t.Errorf("last summary line should mention the key, got %q", lines[len(lines)-1])
	}
}

func TestParseReply(t *testing.T) {
	fields := ParseReply("QUEUE pending=2 processing=1 failed=0 total=3")
	want := map[string]string{"pending": "2", "processing": "1", "failed": "0", "total": "3"}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("field %s = %q, want %q", k, fields[k], v)
		}
	}
	if _, ok := fields["QUEUE"]; ok {
		t.Error("prefix should not be parsed as a field")
	}
}

func TestRenderSnapshot(t *testing.T) {
	if got := RenderSnapshot(queue.Snapshot{}); !strings.Contains(got, "Queue is empty") {
		t.Errorf("empty snapshot = %q", got)
	}

	s := queue.Snapshot{
		Failed: 1,
		Items: []queue.Item{{
			ID:            "0123456789abcdef",
			SessionID:     "trip-42",
			CreatedAt:     time.Now(),
			DurationMs:    4200,
			Status:        queue.StatusFailed,
			Attempts:      2,
			FailureReason: "Network error",
		}},
	}
	out := RenderSnapshot(s)
	for _, want := range []string{"01234567", "trip-42", "4.2s", "FAILED", "Network error", "1 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("snapshot output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderLanguagesMarksCurrent(t *testing.T) {
	out := RenderLanguages("en_gb")
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "en-GB") && !strings.Contains(line, "*") {
			t.Errorf("current language not marked: %q", line)
		}
	}
}

func TestRenderDeps(t *testing.T) {
	out := RenderDeps([]deps.Status{
		{Name: "pw-record", Purpose: "audio capture", Required: true},
		{Name: "whisper-cli", Purpose: "local engine", Installed: true, Version: "1.7.4"},
		{Name: "notify-send", Purpose: "desktop notifications"},
	})
	for _, want := range []string{"pw-record", "1.7.4", "missing (optional)"} {
		if !strings.Contains(out, want) {
			t.Errorf("deps output missing %q:\n%s", want, out)
		}
	}
}
