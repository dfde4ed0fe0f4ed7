package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultDeepgramEndpoint = "wss://api.deepgram.com/v1/listen"

// DeepgramRecognizer streams audio to Deepgram's live websocket API.
type DeepgramRecognizer struct {
	endpoint string
	apiKey   string
	model    string
	logger   *zap.SugaredLogger
}

// NewDeepgramRecognizer creates a recognizer.
// endpoint: websocket URL, empty for the public API
// model: model ID (e.g., "nova-3")
func NewDeepgramRecognizer(endpoint, apiKey, model string, logger *zap.SugaredLogger) *DeepgramRecognizer {
	if endpoint == "" {
		endpoint = defaultDeepgramEndpoint
	}
	if model == "" {
		model = "nova-3"
	}
	return &DeepgramRecognizer{endpoint: endpoint, apiKey: apiKey, model: model, logger: logger}
}

func (r *DeepgramRecognizer) Name() string { return "deepgram" }

func (r *DeepgramRecognizer) SupportsPartials() bool { return true }

// deepgramControl is a text control message (Finalize, CloseStream, KeepAlive)
type deepgramControl struct {
	Type string `json:"type"`
}

// Deepgram WebSocket response types (incoming)
type deepgramWSResponse struct {
	Type         string            `json:"type"`
	Channel      *deepgramChannel  `json:"channel,omitempty"`
	Metadata     *deepgramMetadata `json:"metadata,omitempty"`
	Error        *deepgramError    `json:"error,omitempty"`
	IsFinal      bool              `json:"is_final,omitempty"`
	SpeechFinal  bool              `json:"speech_final,omitempty"`
	FromFinalize bool              `json:"from_finalize,omitempty"`
}

type deepgramChannel struct {
	Alternatives []deepgramAlternative `json:"alternatives,omitempty"`
}

type deepgramAlternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

type deepgramMetadata struct {
	RequestID string `json:"request_id"`
}

type deepgramError struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
}

func (r *DeepgramRecognizer) buildURL(cfg RecognizerConfig) (string, error) {
	u, err := url.Parse(r.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	model := r.model
	if cfg.Model != "" {
		model = cfg.Model
	}

	q := u.Query()
	q.Set("model", model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	q.Set("channels", "1")
	q.Set("interim_results", "true")
	q.Set("smart_format", "true")
	q.Set("punctuate", "true")
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Open dials a new live session. The dial is bounded by ctx.
func (r *DeepgramRecognizer) Open(ctx context.Context, cfg RecognizerConfig) (Session, error) {
	wsURL, err := r.buildURL(cfg)
	if err != nil {
		return nil, err
	}
	headers := http.Header{}
	headers.Set("Authorization", "Token "+r.apiKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			kind := classifyStatus(resp.StatusCode, string(body))
			return nil, newError(kind, "", fmt.Errorf("deepgram dial: status %d: %w", resp.StatusCode, err))
		}
		return nil, classify(fmt.Errorf("deepgram dial: %w", err))
	}

	s := &deepgramSession{
		conn:   conn,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
		logger: r.logger,
	}
	s.wg.Add(1)
	go s.readLoop()
	r.logger.Debugf("Deepgram: session opened rate=%d language=%s", cfg.SampleRate, cfg.Language)
	return s, nil
}

type deepgramSession struct {
	writeMu sync.Mutex
	conn    *websocket.Conn
	events  chan Event
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	logger  *zap.SugaredLogger

	// committed holds is_final segments of the current utterance
	committed []string
}

func (s *deepgramSession) Events() <-chan Event { return s.events }

func (s *deepgramSession) Write(pcm []byte) error {
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, pcm); err != nil {
		return newError(KindNetwork, "", fmt.Errorf("websocket write: %w", err))
	}
	return nil
}

func (s *deepgramSession) Flush() error {
	return s.control("Finalize")
}

func (s *deepgramSession) control(kind string) error {
	select {
	case <-s.done:
		return errSessionClosed
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(deepgramControl{Type: kind}); err != nil {
		return newError(KindNetwork, "", fmt.Errorf("websocket %s: %w", kind, err))
	}
	return nil
}

func (s *deepgramSession) Close() error {
	s.once.Do(func() {
		_ = s.control("CloseStream")
		close(s.done)
		s.writeMu.Lock()
		_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		s.conn.Close()
	})
	s.wg.Wait()
	return nil
}

func (s *deepgramSession) emit(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *deepgramSession) readLoop() {
	defer s.wg.Done()
	defer close(s.events)

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, io.EOF) {
				return
			}
			s.emit(Event{Err: newError(KindNetwork, "Recognizer server disconnected", err)})
			return
		}

		var resp deepgramWSResponse
		if err := json.Unmarshal(message, &resp); err != nil {
			s.logger.Warnf("Deepgram: parse error: %v", err)
			continue
		}

		switch resp.Type {
		case "Results":
			if !s.handleResults(resp) {
				return
			}
		case "Metadata":
			if resp.Metadata != nil {
				s.logger.Debugf("Deepgram: request_id=%s", resp.Metadata.RequestID)
			}
		case "Error":
			msg := "deepgram error"
			if resp.Error != nil {
				msg = resp.Error.Message
				if resp.Error.Description != "" {
					msg = fmt.Sprintf("%s: %s", msg, resp.Error.Description)
				}
			}
			if !s.emit(Event{Err: newError(KindServer, msg, nil)}) {
				return
			}
		}
	}
}

func (s *deepgramSession) handleResults(resp deepgramWSResponse) bool {
	transcript := ""
	if resp.Channel != nil && len(resp.Channel.Alternatives) > 0 {
		transcript = strings.TrimSpace(resp.Channel.Alternatives[0].Transcript)
	}

	if resp.IsFinal && transcript != "" {
		s.committed = append(s.committed, transcript)
	}
	if resp.FromFinalize {
		text := strings.Join(s.committed, " ")
		s.committed = nil
		return s.emit(Event{Text: text, Final: true})
	}

	parts := s.committed
	if !resp.IsFinal && transcript != "" {
		parts = append(append([]string(nil), s.committed...), transcript)
	}
	if len(parts) == 0 {
		return true
	}
	return s.emit(Event{Text: strings.Join(parts, " ")})
}
