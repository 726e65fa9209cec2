package events

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"profilebus/internal/metrics"
)

// Publisher stamps, encodes and sends envelopes to Redis channels.
// It is safe for concurrent use.
type Publisher struct {
	client *redis.Client
	logger *zerolog.Logger
	now    func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// NewPublisher connects to the broker. An unreachable broker yields an
// error wrapping ErrConnection; no retry is attempted.
func NewPublisher(ctx context.Context, opts ConnOptions, logger *zerolog.Logger) (*Publisher, error) {
	client, err := connect(ctx, opts)
	if err != nil {
		logger.Error().Err(err).Str("addr", opts.Addr()).Msg("failed to connect to redis")
		return nil, err
	}
	p := NewPublisherFromClient(client, logger)
	p.logger.Info().Str("addr", opts.Addr()).Msg("connected to redis")
	return p, nil
}

// NewPublisherFromClient wraps an existing client. The Publisher takes
// ownership and closes it on Close.
func NewPublisherFromClient(client *redis.Client, logger *zerolog.Logger) *Publisher {
	l := logger.With().Str("component", "publisher").Logger()
	return &Publisher{
		client: client,
		logger: &l,
		now:    time.Now,
	}
}

// Publish sends payload to topic. A timestamp is added when the payload has
// none; the caller's map is left untouched. It reports whether the broker
// accepted the message, which does not depend on any subscriber existing.
// Failures are logged and reported as false.
func (p *Publisher) Publish(ctx context.Context, topic string, payload Envelope) bool {
	env := payload.Clone()
	if _, ok := env[FieldTimestamp]; !ok {
		env[FieldTimestamp] = p.now().Format(TimestampLayout)
	}

	data, err := Encode(env)
	if err != nil {
		p.logger.Error().Err(err).Str("topic", topic).Str("event_type", eventTypeOrUnknown(env)).Msg("failed to encode event")
		metrics.IncPublished(topic, "encode_error")
		return false
	}

	receivers, err := p.client.Publish(ctx, topic, data).Result()
	if err != nil {
		p.logger.Error().Err(err).Str("topic", topic).Str("event_type", eventTypeOrUnknown(env)).Msg("failed to publish event")
		metrics.IncPublished(topic, "transport_error")
		return false
	}

	p.logger.Info().
		Str("topic", topic).
		Str("event_type", eventTypeOrUnknown(env)).
		Int64("receivers", receivers).
		Msg("published event")
	metrics.IncPublished(topic, "ok")
	return true
}

// PublishEvent publishes a typed event.
func (p *Publisher) PublishEvent(ctx context.Context, topic string, ev Event) bool {
	return p.Publish(ctx, topic, ev.Envelope())
}

func (p *Publisher) PublishKeySubmitted(ctx context.Context, keyValue, tokenName, userID string) bool {
	return p.PublishEvent(ctx, TopicKeySubmission, KeySubmitted{KeyValue: keyValue, TokenName: tokenName, UserID: userID})
}

func (p *Publisher) PublishProfileCreated(ctx context.Context, profileID int64, data map[string]any) bool {
	return p.PublishEvent(ctx, TopicProfileEvents, ProfileCreated{ProfileID: profileID, Data: data})
}

func (p *Publisher) PublishProfileUpdated(ctx context.Context, profileID int64, data map[string]any) bool {
	return p.PublishEvent(ctx, TopicProfileEvents, ProfileUpdated{ProfileID: profileID, Data: data})
}

func (p *Publisher) PublishProfileDeleted(ctx context.Context, profileID int64) bool {
	return p.PublishEvent(ctx, TopicProfileEvents, ProfileDeleted{ProfileID: profileID})
}

// Ping checks the broker connection.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases the connection. Safe to call more than once.
func (p *Publisher) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.client.Close()
		p.logger.Info().Msg("redis connection closed")
	})
	return p.closeErr
}
