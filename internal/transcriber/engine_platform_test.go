package transcriber

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSession struct {
	mu      sync.Mutex
	written []byte
	events  chan Event
	closed  bool
	flushes int
	onFlush func(s *fakeSession)
}

func (s *fakeSession) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	s.written = append(s.written, pcm...)
	return nil
}

func (s *fakeSession) Flush() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errSessionClosed
	}
	s.flushes++
	s.mu.Unlock()
	if s.onFlush != nil {
		s.onFlush(s)
	}
	return nil
}

// send delivers ev unless the session has been closed.
func (s *fakeSession) send(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.events <- ev
	}
}

func (s *fakeSession) Events() <-chan Event { return s.events }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeRecognizer struct {
	mu         sync.Mutex
	noPartials bool
	openErr    error
	onFlush    func(s *fakeSession)
	sessions   []*fakeSession
	configs    []RecognizerConfig
}

func (r *fakeRecognizer) Name() string { return "fake" }

func (r *fakeRecognizer) SupportsPartials() bool { return !r.noPartials }

func (r *fakeRecognizer) Open(ctx context.Context, cfg RecognizerConfig) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs = append(r.configs, cfg)
	if r.openErr != nil {
		return nil, r.openErr
	}
	s := &fakeSession{events: make(chan Event, 16), onFlush: r.onFlush}
	r.sessions = append(r.sessions, s)
	return s, nil
}

func (r *fakeRecognizer) opened() []*fakeSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*fakeSession(nil), r.sessions...)
}

func platformAudio(n int) Audio {
	return Audio{PCM: make([]byte, n*2), SampleRate: 48000}
}

func TestInjectedEngine_PartialsAndFinal(t *testing.T) {
	rec := &fakeRecognizer{onFlush: func(s *fakeSession) {
		s.send(Event{Text: "ola"})
		s.send(Event{Text: "ola mundo"})
		s.send(Event{Text: "ola mundo!", Final: true})
	}}
	e := newInjectedEngine(rec, RecognizerConfig{SampleRate: 48000, Language: "pt-BR"}, time.Second, time.Second, zaptest.NewLogger(t).Sugar())
	require.NoError(t, e.Init(context.Background()))

	var partials []string
	audio := platformAudio(30000)
	res, err := e.Transcribe(context.Background(), audio, func(text string) { partials = append(partials, text) })
	require.NoError(t, err)

	assert.Equal(t, "ola mundo!", res.Text)
	assert.True(t, res.IsFinal)
	assert.Equal(t, []string{"ola", "ola mundo"}, partials)

	sessions := rec.opened()
	require.Len(t, sessions, 1)
	assert.Len(t, sessions[0].written, len(audio.PCM))
	assert.Equal(t, 1, sessions[0].flushes)
	assert.True(t, sessions[0].isClosed())
}

func TestInjectedEngine_NewSessionPerChunk(t *testing.T) {
	rec := &fakeRecognizer{onFlush: func(s *fakeSession) { s.send(Event{Text: "ok", Final: true}) }}
	e := newInjectedEngine(rec, RecognizerConfig{SampleRate: 48000}, time.Second, time.Second, zaptest.NewLogger(t).Sugar())
	require.NoError(t, e.Init(context.Background()))

	for i := 0; i < 3; i++ {
		_, err := e.Transcribe(context.Background(), platformAudio(24000), nil)
		require.NoError(t, err)
	}
	assert.Len(t, rec.opened(), 3)
}

func TestInjectedEngine_NoMatchPromotion(t *testing.T) {
	tests := []struct {
		name     string
		onFlush  func(s *fakeSession)
		wantText string
		wantKind Kind
	}{
		{
			name: "timeout with partial",
			onFlush: func(s *fakeSession) {
				s.send(Event{Text: "parcial"})
			},
			wantText: "parcial",
		},
		{
			name: "empty final with partial",
			onFlush: func(s *fakeSession) {
				s.send(Event{Text: "quase"})
				s.send(Event{Final: true})
			},
			wantText: "quase",
		},
		{
			name: "no-match error with partial",
			onFlush: func(s *fakeSession) {
				s.send(Event{Text: "algo"})
				s.send(Event{Err: newError(KindNoMatch, "", nil)})
			},
			wantText: "algo",
		},
		{
			name:     "timeout without partial",
			onFlush:  func(s *fakeSession) {},
			wantKind: KindNoMatch,
		},
		{
			name: "server error is not promoted",
			onFlush: func(s *fakeSession) {
				s.send(Event{Text: "algo"})
				s.send(Event{Err: newError(KindServer, "", nil)})
			},
			wantKind: KindServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &fakeRecognizer{onFlush: tt.onFlush}
			e := newInjectedEngine(rec, RecognizerConfig{SampleRate: 48000}, time.Second, 100*time.Millisecond, zaptest.NewLogger(t).Sugar())
			require.NoError(t, e.Init(context.Background()))

			res, err := e.Transcribe(context.Background(), platformAudio(24000), nil)
			if tt.wantText != "" {
				require.NoError(t, err)
				assert.Equal(t, tt.wantText, res.Text)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantKind, KindOf(err))
		})
	}
}

func TestInjectedEngine_OpenFailure(t *testing.T) {
	rec := &fakeRecognizer{openErr: newError(KindPermission, "", nil)}
	e := newInjectedEngine(rec, RecognizerConfig{SampleRate: 48000}, time.Second, time.Second, zaptest.NewLogger(t).Sugar())
	require.NoError(t, e.Init(context.Background()))

	_, err := e.Transcribe(context.Background(), platformAudio(24000), nil)
	require.Error(t, err)
	assert.Equal(t, KindPermission, KindOf(err))
}

func TestInjectedEngine_ParentCancel(t *testing.T) {
	rec := &fakeRecognizer{}
	e := newInjectedEngine(rec, RecognizerConfig{SampleRate: 48000}, time.Second, 5*time.Second, zaptest.NewLogger(t).Sugar())
	require.NoError(t, e.Init(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)
	_, err := e.Transcribe(ctx, platformAudio(24000), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContinuousEngine_RestartsAfterEachResult(t *testing.T) {
	rec := &fakeRecognizer{onFlush: func(s *fakeSession) {
		s.send(Event{Text: "frase", Final: true})
	}}
	e := newContinuousEngine(rec, RecognizerConfig{SampleRate: 48000}, 10*time.Millisecond, time.Second, zaptest.NewLogger(t).Sugar())
	require.NoError(t, e.Init(context.Background()))
	defer e.Close()

	for i := 0; i < 2; i++ {
		res, err := e.Transcribe(context.Background(), platformAudio(24000), nil)
		require.NoError(t, err)
		assert.Equal(t, "frase", res.Text)
	}

	sessions := rec.opened()
	require.GreaterOrEqual(t, len(sessions), 2)
	assert.True(t, sessions[0].isClosed())
	assert.Len(t, sessions[0].written, 48000)
	assert.Len(t, sessions[1].written, 48000)
}

func TestContinuousEngine_RestartsAfterError(t *testing.T) {
	var calls int
	var mu sync.Mutex
	rec := &fakeRecognizer{onFlush: func(s *fakeSession) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			s.send(Event{Err: errors.New("boom")})
			return
		}
		s.send(Event{Text: "recuperado", Final: true})
	}}
	e := newContinuousEngine(rec, RecognizerConfig{SampleRate: 48000}, 10*time.Millisecond, time.Second, zaptest.NewLogger(t).Sugar())
	require.NoError(t, e.Init(context.Background()))
	defer e.Close()

	_, err := e.Transcribe(context.Background(), platformAudio(24000), nil)
	require.Error(t, err)
	assert.Equal(t, KindUnknown, KindOf(err))

	res, err := e.Transcribe(context.Background(), platformAudio(24000), nil)
	require.NoError(t, err)
	assert.Equal(t, "recuperado", res.Text)
}

func TestContinuousEngine_InitFailureAndClose(t *testing.T) {
	rec := &fakeRecognizer{openErr: newError(KindNetwork, "", nil)}
	e := newContinuousEngine(rec, RecognizerConfig{SampleRate: 48000}, 10*time.Millisecond, time.Second, zaptest.NewLogger(t).Sugar())
	err := e.Init(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindNetwork, KindOf(err))

	ok := &fakeRecognizer{}
	e = newContinuousEngine(ok, RecognizerConfig{SampleRate: 48000}, 10*time.Millisecond, time.Second, zaptest.NewLogger(t).Sugar())
	require.NoError(t, e.Init(context.Background()))
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.True(t, ok.opened()[0].isClosed())

	_, err = e.Transcribe(context.Background(), platformAudio(24000), nil)
	assert.ErrorIs(t, err, ErrNotStarted)
}
