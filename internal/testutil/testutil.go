// Package testutil holds fakes shared by the pipeline and daemon tests.
package testutil

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/wads/tripscribe/internal/notify"
	"github.com/wads/tripscribe/internal/recording"
	"github.com/wads/tripscribe/internal/transcriber"
)

// FrameBytes is the size of a 100 ms mono s16 frame at 16 kHz.
const FrameBytes = 3200

// LoudFrame returns 100 ms of constant-amplitude speech-like PCM at 16 kHz.
func LoudFrame() recording.AudioFrame {
	return ToneFrame(FrameBytes, 2000)
}

// SilentFrame returns 100 ms of digital silence at 16 kHz.
func SilentFrame() recording.AudioFrame {
	return recording.AudioFrame{Data: make([]byte, FrameBytes), Timestamp: time.Now()}
}

// ToneFrame fills size bytes with a constant little-endian sample.
func ToneFrame(size int, amplitude int16) recording.AudioFrame {
	b := make([]byte, size)
	for i := 0; i+1 < len(b); i += 2 {
		binary.LittleEndian.PutUint16(b[i:], uint16(amplitude))
	}
	return recording.AudioFrame{Data: b, Timestamp: time.Now()}
}

// WaitForCondition polls condition until it holds or fails the test after timeout.
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("Condition not met within %v", timeout)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// Source is a frame source fed by the test through Frames.
type Source struct {
	Frames   chan recording.AudioFrame
	Errs     chan error
	StartErr error

	once sync.Once
}

func NewSource() *Source {
	return &Source{Frames: make(chan recording.AudioFrame, 64), Errs: make(chan error)}
}

func (s *Source) Start(ctx context.Context) (<-chan recording.AudioFrame, <-chan error, error) {
	if s.StartErr != nil {
		return nil, nil, s.StartErr
	}
	return s.Frames, s.Errs, nil
}

// Stop closes both channels once, which ends the capture like a device going away.
func (s *Source) Stop() error {
	s.once.Do(func() {
		close(s.Frames)
		close(s.Errs)
	})
	return nil
}

func (s *Source) Wait() {}

// Router answers every chunk with Text as a final result.
type Router struct {
	Text string

	mu    sync.Mutex
	sel   transcriber.Selection
	calls int
}

func (r *Router) Start(ctx context.Context, sel transcriber.Selection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sel = sel
	return nil
}

func (r *Router) Switch(ctx context.Context, sel transcriber.Selection) error {
	return r.Start(ctx, sel)
}

func (r *Router) Transcribe(ctx context.Context, pcm []byte, rate int, onPartial transcriber.PartialFunc) (transcriber.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return transcriber.Result{Text: r.Text, IsFinal: true, Engine: r.sel.Engine}, nil
}

func (r *Router) FellBack() bool { return false }

func (r *Router) Selection() transcriber.Selection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sel
}

func (r *Router) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *Router) Close() error { return nil }

// Notifier records every notification as a short event string.
type Notifier struct {
	mu     sync.Mutex
	events []string
}

func (n *Notifier) add(e string) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

func (n *Notifier) TripChanged(on bool) {
	if on {
		n.add("trip:on")
	} else {
		n.add("trip:off")
	}
}

func (n *Notifier) Send(t notify.MessageType, arg any) { n.add("send") }
func (n *Notifier) Error(msg string)                   { n.add("error:" + msg) }

// Events returns a copy of the recorded events.
func (n *Notifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}
