package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"profilebus/internal/events"
	"profilebus/internal/metrics"
)

// Stat keys reported by Stats.
const (
	StatKeysProcessed     = "keys_processed"
	StatProfilesProcessed = "profiles_processed"
	StatEventsPublished   = "events_published"
)

// ErrPublishFailed is returned when a derived result could not be published.
var ErrPublishFailed = errors.New("publish processing result failed")

// Publisher is the subset of events.Publisher the processor needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload events.Envelope) bool
}

// Processor derives results from raw events and republishes them to
// events.TopicProcessingResults.
type Processor struct {
	publisher Publisher
	logger    *zerolog.Logger
	now       func() time.Time

	mu    sync.Mutex
	stats map[string]int64
}

func New(publisher Publisher, logger *zerolog.Logger) *Processor {
	l := logger.With().Str("component", "processor").Logger()
	return &Processor{
		publisher: publisher,
		logger:    &l,
		now:       time.Now,
		stats: map[string]int64{
			StatKeysProcessed:     0,
			StatProfilesProcessed: 0,
			StatEventsPublished:   0,
		},
	}
}

// ProcessKeySubmission validates the submitted key and publishes a
// key_processed result.
func (p *Processor) ProcessKeySubmission(ctx context.Context, topic string, env events.Envelope) error {
	keyValue := env.String("key_value")
	p.logger.Info().Str("topic", topic).Str("token_name", env.String("token_name")).Msg("processing key submission")

	result := events.KeyProcessed{
		Original: env,
		Result: events.Envelope{
			"valid":        keyValue != "",
			"length":       utf8.RuneCountInString(keyValue),
			"token_name":   env.String("token_name"),
			"processed_at": p.timestamp(),
		},
	}
	if err := p.publish(ctx, result); err != nil {
		return err
	}

	p.incr(StatKeysProcessed)
	metrics.IncProcessed("key")
	p.logger.Info().Msg("published processing result for key submission")
	return nil
}

// ProcessProfileEvent acknowledges a profile_* event with a
// profile_processed result.
func (p *Processor) ProcessProfileEvent(ctx context.Context, topic string, env events.Envelope) error {
	eventType := env.EventType()
	p.logger.Info().Str("topic", topic).Str("event_type", eventType).Msg("processing profile event")

	result := events.ProfileProcessed{
		Original: env,
		Result: events.Envelope{
			"event_type":   eventType,
			"processed":    true,
			"processed_at": p.timestamp(),
		},
	}
	if err := p.publish(ctx, result); err != nil {
		return err
	}

	p.incr(StatProfilesProcessed)
	metrics.IncProcessed("profile")
	p.logger.Info().Str("event_type", eventType).Msg("published processing result for profile event")
	return nil
}

// Stats returns a snapshot of the counters.
func (p *Processor) Stats() map[string]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]int64, len(p.stats))
	for k, v := range p.stats {
		out[k] = v
	}
	return out
}

func (p *Processor) publish(ctx context.Context, ev events.Event) error {
	if !p.publisher.Publish(ctx, events.TopicProcessingResults, ev.Envelope()) {
		return fmt.Errorf("%w: %s to %s", ErrPublishFailed, ev.EventType(), events.TopicProcessingResults)
	}
	return nil
}

// incr bumps counter together with events_published.
func (p *Processor) incr(counter string) {
	p.mu.Lock()
	p.stats[counter]++
	p.stats[StatEventsPublished]++
	p.mu.Unlock()
}

func (p *Processor) timestamp() string {
	return p.now().Format(events.TimestampLayout)
}
