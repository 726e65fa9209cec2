package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"profilebus/internal/events"
)

// Notification is one event shown to an operator.
type Notification struct {
	Title      string
	Topic      string
	Event      events.Envelope
	ReceivedAt time.Time
}

// Sink renders notifications. Implementations must be safe for concurrent
// use; they are called from dispatch goroutines.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// Title returns the operator-facing headline for an event on topic.
func Title(topic string, env events.Envelope) string {
	switch topic {
	case events.TopicKeySubmission:
		return "Key Submission"
	case events.TopicProfileEvents:
		t := env.EventType()
		if t == "" {
			t = "Profile Event"
		}
		return "Profile Event: " + t
	case events.TopicProcessingResults:
		return "Processing Result"
	}
	if t := env.EventType(); t != "" {
		return t
	}
	return "Event"
}

// New builds a Notification for env received on topic.
func New(topic string, env events.Envelope) Notification {
	return Notification{
		Title:      Title(topic, env),
		Topic:      topic,
		Event:      env,
		ReceivedAt: time.Now(),
	}
}

// Timestamp is the event's own timestamp, or ReceivedAt when it has none.
func (n Notification) Timestamp() string {
	if ts := n.Event.Timestamp(); ts != "" {
		return ts
	}
	return n.ReceivedAt.Format(events.TimestampLayout)
}

// body is the indented JSON of the event. HTML is left unescaped; sinks
// that render markup escape it themselves.
func (n Notification) body() string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(n.Event); err != nil {
		return "<unprintable event>"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// LogSink writes notifications to a zerolog logger.
type LogSink struct {
	logger *zerolog.Logger
}

func NewLogSink(logger *zerolog.Logger) *LogSink {
	l := logger.With().Str("component", "notify").Logger()
	return &LogSink{logger: &l}
}

func (s *LogSink) Notify(_ context.Context, n Notification) error {
	s.logger.Info().
		Str("title", n.Title).
		Str("topic", n.Topic).
		Str("event_type", n.Event.EventType()).
		Str("received", n.Timestamp()).
		Interface("event", n.Event).
		Msg("event notification")
	return nil
}

// Multi delivers to every sink and joins their errors.
type Multi []Sink

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
