package transcriber

import (
	"context"
	"errors"
	"strings"
)

// RecognizerConfig describes the audio and language of a recognition session.
type RecognizerConfig struct {
	SampleRate int
	Language   string
	Model      string
}

// Event is a partial or final result, or an error, delivered by a Session.
type Event struct {
	Text  string
	Final bool
	Err   error
}

// Session is one live recognition stream.
type Session interface {
	// Write feeds PCM at the configured sample rate.
	Write(pcm []byte) error
	// Flush marks the end of the current utterance; a final Event follows.
	Flush() error
	// Events is closed when the session ends.
	Events() <-chan Event
	Close() error
}

// Recognizer opens recognition sessions on a speech backend.
type Recognizer interface {
	Name() string
	// SupportsPartials reports whether sessions emit interim results before the final one.
	SupportsPartials() bool
	Open(ctx context.Context, cfg RecognizerConfig) (Session, error)
}

var errSessionClosed = errors.New("recognition session closed")

// awaitFinal collects events until a final result. A no-match or timeout outcome is
// promoted to a final result using the last partial text, when there is one. A nil
// writeErr channel is ignored.
func awaitFinal(parent, ctx context.Context, events <-chan Event, writeErr <-chan error, onPartial PartialFunc) (Result, error) {
	var lastPartial string
	promote := func(fallback *Error) (Result, error) {
		if lastPartial != "" {
			return Result{Text: lastPartial, IsFinal: true}, nil
		}
		return Result{}, fallback
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return promote(newError(KindNoMatch, "Recognizer session ended without a result", errSessionClosed))
			}
			if ev.Err != nil {
				te := classify(ev.Err)
				if te.Kind == KindNoMatch {
					return promote(te)
				}
				return Result{}, te
			}
			text := strings.TrimSpace(ev.Text)
			if ev.Final {
				if text == "" {
					return promote(newError(KindNoMatch, "No match", nil))
				}
				return Result{Text: text, IsFinal: true}, nil
			}
			if text != "" {
				lastPartial = text
				if onPartial != nil {
					onPartial(text)
				}
			}

		case err := <-writeErr:
			if err != nil {
				return Result{}, classify(err)
			}
			writeErr = nil

		case <-ctx.Done():
			if parent.Err() != nil {
				return Result{}, parent.Err()
			}
			return promote(newError(KindNoMatch, "Speech timeout", ctx.Err()))
		}
	}
}
