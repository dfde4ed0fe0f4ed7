package transcriber

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/wads/tripscribe/internal/language"
)

// OpenAIRecognizer is a whole-utterance recognizer backed by the OpenAI transcription
// API. It produces no partial results.
type OpenAIRecognizer struct {
	client *openai.Client
	model  string
	logger *zap.SugaredLogger
}

// NewOpenAIRecognizer creates a recognizer. baseURL may be empty for the public API.
func NewOpenAIRecognizer(baseURL, apiKey, model string, logger *zap.SugaredLogger) *OpenAIRecognizer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIRecognizer{client: openai.NewClientWithConfig(cfg), model: model, logger: logger}
}

func (r *OpenAIRecognizer) Name() string { return "openai" }

// SupportsPartials is false: the transcription endpoint answers once per utterance.
func (r *OpenAIRecognizer) SupportsPartials() bool { return false }

func (r *OpenAIRecognizer) Open(ctx context.Context, cfg RecognizerConfig) (Session, error) {
	if cfg.SampleRate <= 0 {
		return nil, newError(KindAudio, "", fmt.Errorf("invalid sample rate %d", cfg.SampleRate))
	}
	model := r.model
	if cfg.Model != "" {
		model = cfg.Model
	}
	sctx, cancel := context.WithCancel(context.Background())
	return &openaiSession{
		r:      r,
		cfg:    cfg,
		model:  model,
		ctx:    sctx,
		cancel: cancel,
		events: make(chan Event, 4),
	}, nil
}

type openaiSession struct {
	r      *OpenAIRecognizer
	cfg    RecognizerConfig
	model  string
	ctx    context.Context
	cancel context.CancelFunc
	events chan Event

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
	wg     sync.WaitGroup
	once   sync.Once
}

func (s *openaiSession) Events() <-chan Event { return s.events }

func (s *openaiSession) Write(pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errSessionClosed
	}
	s.buf.Write(pcm)
	return nil
}

// Flush uploads everything written since the previous flush.
func (s *openaiSession) Flush() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errSessionClosed
	}
	pcm := append([]byte(nil), s.buf.Bytes()...)
	s.buf.Reset()
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		text, err := s.transcribe(pcm)
		ev := Event{Text: text, Final: true}
		if err != nil {
			ev = Event{Err: err}
		}
		select {
		case s.events <- ev:
		case <-s.ctx.Done():
		}
	}()
	return nil
}

func (s *openaiSession) transcribe(pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}
	wavData, err := convertToWAV(pcm, s.cfg.SampleRate)
	if err != nil {
		return "", newError(KindAudio, "", fmt.Errorf("convert to WAV: %w", err))
	}

	req := openai.AudioRequest{
		Model:    s.model,
		Reader:   bytes.NewReader(wavData),
		FilePath: "audio.wav",
		Language: language.Base(s.cfg.Language),
	}

	start := time.Now()
	resp, err := s.r.client.CreateTranscription(s.ctx, req)
	duration := time.Since(start)
	if err != nil {
		s.r.logger.Warnf("OpenAI: API call failed after %v: %v", duration, err)
		return "", classifyOpenAI(err)
	}
	s.r.logger.Debugf("OpenAI: transcribed %d bytes in %v", len(pcm), duration)
	return resp.Text, nil
}

func (s *openaiSession) Close() error {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		s.cancel()
		s.wg.Wait()
		close(s.events)
	})
	return nil
}

func classifyOpenAI(err error) *Error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return newError(classifyStatus(apiErr.HTTPStatusCode, apiErr.Message), apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return newError(classifyStatus(reqErr.HTTPStatusCode, string(reqErr.Body)), "", err)
	}
	return classify(err)
}
