package recording

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.SampleRate != 48000 {
		t.Errorf("default sample rate should be 48000, got %d", config.SampleRate)
	}
	if config.Channels != 1 {
		t.Errorf("default channels should be 1, got %d", config.Channels)
	}
	if config.Format != "s16" {
		t.Errorf("default format should be s16, got %s", config.Format)
	}
	// 100 ms of mono s16 at 48 kHz
	if config.BufferSize != 9600 {
		t.Errorf("default buffer size should be 9600, got %d", config.BufferSize)
	}
	if config.Device != "" {
		t.Errorf("default device should be empty, got %s", config.Device)
	}
}

func TestRecorderValidateConfig(t *testing.T) {
	valid := DefaultConfig()
	with := func(mod func(*Config)) Config {
		c := valid
		mod(&c)
		return c
	}

	tests := []struct {
		name        string
		config      Config
		expectError bool
	}{
		{name: "valid default config", config: valid},
		{name: "s16le alias", config: with(func(c *Config) { c.Format = "s16le" })},
		{name: "invalid sample rate", config: with(func(c *Config) { c.SampleRate = 0 }), expectError: true},
		{name: "negative sample rate", config: with(func(c *Config) { c.SampleRate = -1 }), expectError: true},
		{name: "stereo rejected", config: with(func(c *Config) { c.Channels = 2 }), expectError: true},
		{name: "zero buffer size", config: with(func(c *Config) { c.BufferSize = 0 }), expectError: true},
		{name: "odd buffer size", config: with(func(c *Config) { c.BufferSize = 9601 }), expectError: true},
		{name: "invalid channel buffer size", config: with(func(c *Config) { c.ChannelBufferSize = 0 }), expectError: true},
		{name: "float format", config: with(func(c *Config) { c.Format = "f32" }), expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := NewRecorder(tt.config, zaptest.NewLogger(t).Sugar())
			err := recorder.validateConfig()

			if tt.expectError && err == nil {
				t.Errorf("expected error for config %+v", tt.config)
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error for config %+v: %v", tt.config, err)
			}
		})
	}
}

func TestRecorderBuildPwRecordArgs(t *testing.T) {
	tests := []struct {
		name     string
		device   string
		expected []string
	}{
		{
			name:     "default device",
			expected: []string{"--format", "s16", "--rate", "48000", "--channels", "1", "-"},
		},
		{
			name:     "with device",
			device:   "alsa_input.usb-headset.mono-fallback",
			expected: []string{"--format", "s16", "--rate", "48000", "--channels", "1", "--target", "alsa_input.usb-headset.mono-fallback", "-"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.Device = tt.device
			args := NewRecorder(config, nil).buildPwRecordArgs()

			if len(args) != len(tt.expected) {
				t.Fatalf("args mismatch: got %v, expected %v", args, tt.expected)
			}
			for i, arg := range args {
				if arg != tt.expected[i] {
					t.Errorf("arg[%d] mismatch: got %q, expected %q", i, arg, tt.expected[i])
				}
			}
		})
	}
}

// fakeCapture makes the recorder read size zero bytes from head instead of pw-record.
func fakeCapture(t *testing.T, r *Recorder, size string) {
	t.Helper()
	if _, err := exec.LookPath("head"); err != nil {
		t.Skip("head not available")
	}
	r.check = func(context.Context) error { return nil }
	r.command = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		return exec.CommandContext(ctx, "head", "-c", size, "/dev/zero")
	}
}

func TestRecorderCaptureFrames(t *testing.T) {
	recorder := NewRecorder(DefaultConfig(), zaptest.NewLogger(t).Sugar())
	fakeCapture(t, recorder, "20000")

	frames, errs, err := recorder.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	var got []AudioFrame
	timeout := time.After(2 * time.Second)
loop:
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				break loop
			}
			got = append(got, frame)
		case <-timeout:
			t.Fatal("timeout waiting for frames")
		}
	}
	recorder.Wait()

	if err, ok := <-errs; ok && err != nil {
		t.Errorf("unexpected capture error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(got))
	}
	wantSizes := []int{9600, 9600, 800}
	for i, frame := range got {
		if len(frame.Data) != wantSizes[i] {
			t.Errorf("frame %d size = %d, want %d", i, len(frame.Data), wantSizes[i])
		}
		if frame.Seq != uint64(i+1) {
			t.Errorf("frame %d seq = %d, want %d", i, frame.Seq, i+1)
		}
		if frame.Timestamp.IsZero() {
			t.Errorf("frame %d has no timestamp", i)
		}
	}
	if recorder.IsRecording() {
		t.Error("recorder should not be recording after capture ended")
	}
}

func TestRecorderStopEndsCapture(t *testing.T) {
	recorder := NewRecorder(DefaultConfig(), zaptest.NewLogger(t).Sugar())
	fakeCapture(t, recorder, "100000000")

	frames, _, err := recorder.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, _, err := recorder.Start(context.Background()); err == nil {
		t.Error("Start should return error when already recording")
	}

	<-frames
	if err := recorder.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		for range frames {
		}
		recorder.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("capture did not stop")
	}
	if err := recorder.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}

func TestRecorderStartErrors(t *testing.T) {
	t.Run("pipewire unavailable", func(t *testing.T) {
		recorder := NewRecorder(DefaultConfig(), zaptest.NewLogger(t).Sugar())
		recorder.check = func(context.Context) error { return errors.New("no pw-cli") }

		if _, _, err := recorder.Start(context.Background()); err == nil {
			t.Error("Start should fail when PipeWire is unavailable")
		}
		if recorder.IsRecording() {
			t.Error("recorder should not be recording")
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		recorder := NewRecorder(Config{SampleRate: -1}, zaptest.NewLogger(t).Sugar())
		if _, _, err := recorder.Start(context.Background()); err == nil {
			t.Error("Start should return error with invalid config")
		}
	})

	t.Run("stop before start", func(t *testing.T) {
		recorder := NewRecorder(DefaultConfig(), nil)
		if err := recorder.Stop(); err != nil {
			t.Errorf("stop should not error when not recording: %v", err)
		}
	})
}
