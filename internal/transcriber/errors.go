package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies a transcription failure independently of the backend that produced it.
type Kind int

const (
	KindUnknown Kind = iota
	KindAudio
	KindPermission
	KindLanguageUnsupported
	KindNetwork
	KindNoMatch
	KindServer
	KindBusy
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio-error"
	case KindPermission:
		return "permission-error"
	case KindLanguageUnsupported:
		return "language-unsupported"
	case KindNetwork:
		return "network-error"
	case KindNoMatch:
		return "no-match-or-timeout"
	case KindServer:
		return "server-error"
	case KindBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// Permanent reports whether the failure is a configuration problem that retrying the same
// chunk cannot fix.
func (k Kind) Permanent() bool {
	return k == KindPermission || k == KindLanguageUnsupported
}

// IsPermanent reports whether err is a configuration failure rather than a transient
// backend condition.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrModelNotInstalled) || errors.Is(err, ErrBinaryNotFound) {
		return true
	}
	return KindOf(err).Permanent()
}

var (
	ErrBinaryNotFound    = errors.New("whisper-cli not found: install whisper.cpp first")
	ErrModelNotInstalled = errors.New("model not installed")
	ErrUnsupportedEngine = errors.New("unsupported engine")
	ErrNotStarted        = errors.New("no active engine")
)

// Error is a classified transcription failure.
type Error struct {
	Kind    Kind
	Engine  EngineID
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = defaultMessage(e.Kind)
	}
	if e.Err != nil && e.Err.Error() != msg {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Engine != "" {
		return fmt.Sprintf("%s (%s)", msg, e.Engine)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of a classified error, classifying unclassified ones on the fly.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return classify(err).Kind
}

// classify turns an arbitrary backend error into an *Error.
func classify(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, ErrModelNotInstalled) {
		return newError(KindAudio, "Local model not installed", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(KindNetwork, "Network timeout", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return newError(KindNetwork, "Network timeout", err)
		}
		return newError(KindNetwork, "Network error", err)
	}
	return newError(KindUnknown, "", err)
}

// classifyStatus maps an HTTP status returned by a recognizer backend to a kind.
func classifyStatus(status int, body string) Kind {
	switch {
	case status == 401 || status == 403:
		return KindPermission
	case status == 429:
		return KindBusy
	case status == 400 && strings.Contains(strings.ToLower(body), "language"):
		return KindLanguageUnsupported
	case status == 408 || status == 504:
		return KindNetwork
	case status >= 500:
		return KindServer
	case status >= 400:
		return KindAudio
	}
	return KindUnknown
}

func defaultMessage(k Kind) string {
	switch k {
	case KindAudio:
		return "Audio recording error"
	case KindPermission:
		return "Insufficient permissions"
	case KindLanguageUnsupported:
		return "Language not supported"
	case KindNetwork:
		return "Network error"
	case KindNoMatch:
		return "No match"
	case KindServer:
		return "Recognizer server error"
	case KindBusy:
		return "Recognizer busy"
	default:
		return "Unknown recognizer error"
	}
}
