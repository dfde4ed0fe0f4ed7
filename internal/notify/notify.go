package notify

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

type MessageType int

const (
	MsgTripStarted MessageType = iota
	MsgTripStopped
	MsgEngineFallback
	MsgTranscriptionFailed
	MsgQueueRetried
	MsgConfigReloaded
)

type Message struct {
	Title   string
	Body    string
	IsError bool
}

// MessageDef describes one notification and the config key that overrides it.
// Bodies may contain a single %v verb filled from the Send argument.
type MessageDef struct {
	Type         MessageType
	ConfigKey    string
	DefaultTitle string
	DefaultBody  string
	IsError      bool
}

var MessageDefs = []MessageDef{
	{Type: MsgTripStarted, ConfigKey: "trip_started", DefaultTitle: "Tripscribe", DefaultBody: "Trip recording started"},
	{Type: MsgTripStopped, ConfigKey: "trip_stopped", DefaultTitle: "Tripscribe", DefaultBody: "Trip recording stopped"},
	{Type: MsgEngineFallback, ConfigKey: "engine_fallback", DefaultTitle: "Tripscribe", DefaultBody: "Local engine unavailable, using %v"},
	{Type: MsgTranscriptionFailed, ConfigKey: "transcription_failed", DefaultTitle: "Tripscribe Error", DefaultBody: "Transcription failed: %v", IsError: true},
	{Type: MsgQueueRetried, ConfigKey: "queue_retried", DefaultTitle: "Tripscribe", DefaultBody: "Requeued %v chunks"},
	{Type: MsgConfigReloaded, ConfigKey: "config_reloaded", DefaultTitle: "Tripscribe", DefaultBody: "Configuration reloaded"},
}

// DefaultMessages returns MessageDefs keyed by type, without user overrides.
func DefaultMessages() map[MessageType]Message {
	m := make(map[MessageType]Message, len(MessageDefs))
	for _, def := range MessageDefs {
		m[def.Type] = Message{Title: def.DefaultTitle, Body: def.DefaultBody, IsError: def.IsError}
	}
	return m
}

type Notifier interface {
	TripChanged(on bool)
	Send(t MessageType, arg any)
	Error(msg string)
}

// New returns the notifier for a notifications.type value; unknown types and
// disabled notifications get Nop.
func New(kind string, enabled bool, messages map[MessageType]Message, logger *zap.SugaredLogger) Notifier {
	if !enabled {
		return Nop{}
	}
	if messages == nil {
		messages = DefaultMessages()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	switch kind {
	case "desktop":
		return &Desktop{messages: messages, logger: logger, run: runNotifySend}
	case "log":
		return &Log{messages: messages, logger: logger}
	}
	return Nop{}
}

func render(messages map[MessageType]Message, t MessageType, arg any) (Message, bool) {
	msg, ok := messages[t]
	if !ok {
		return Message{}, false
	}
	if arg != nil {
		msg.Body = fmt.Sprintf(msg.Body, arg)
	}
	return msg, true
}

func tripMessage(on bool) MessageType {
	if on {
		return MsgTripStarted
	}
	return MsgTripStopped
}

// Desktop sends notifications through notify-send.
type Desktop struct {
	messages map[MessageType]Message
	logger   *zap.SugaredLogger
	run      func(args ...string) error
}

func runNotifySend(args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "notify-send", args...).Run()
}

func (d *Desktop) TripChanged(on bool) {
	d.Send(tripMessage(on), nil)
}

func (d *Desktop) Send(t MessageType, arg any) {
	msg, ok := render(d.messages, t, arg)
	if !ok {
		return
	}
	args := []string{"-a", "Tripscribe"}
	if msg.IsError {
		args = append(args, "-u", "critical")
	}
	args = append(args, msg.Title, msg.Body)
	if err := d.run(args...); err != nil {
		d.logger.Warnw("Failed to send notification", "error", err)
	}
}

func (d *Desktop) Error(msg string) {
	if err := d.run("-a", "Tripscribe", "-u", "critical", "Tripscribe Error", msg); err != nil {
		d.logger.Warnw("Failed to send error notification", "error", err)
	}
}

// Log writes notifications to the application log, for headless setups.
type Log struct {
	messages map[MessageType]Message
	logger   *zap.SugaredLogger
}

func (l *Log) TripChanged(on bool) {
	l.Send(tripMessage(on), nil)
}

func (l *Log) Send(t MessageType, arg any) {
	msg, ok := render(l.messages, t, arg)
	if !ok {
		return
	}
	if msg.IsError {
		l.logger.Errorw("Notification", "title", msg.Title, "body", msg.Body)
		return
	}
	l.logger.Infow("Notification", "title", msg.Title, "body", msg.Body)
}

func (l *Log) Error(msg string) {
	l.logger.Errorw("Notification", "title", "Tripscribe Error", "body", msg)
}

// Nop is a Notifier that does absolutely nothing.
// Useful in unit tests or headless builds.
type Nop struct{}

func (Nop) TripChanged(on bool)         {}
func (Nop) Send(t MessageType, arg any) {}
func (Nop) Error(msg string)            {}
