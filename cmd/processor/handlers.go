package main

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"profilebus/internal/events"
	"profilebus/internal/notify"
	"profilebus/internal/processor"
)

// routes wires each topic to the processor and then to the notification
// sink. Results on processing_results are only logged and shown.
func routes(proc *processor.Processor, sink notify.Sink, logger *zerolog.Logger) events.Routes {
	show := func(ctx context.Context, topic string, env events.Envelope) error {
		err := sink.Notify(ctx, notify.New(topic, env))
		if errors.Is(err, notify.ErrTooManyOpen) {
			return nil
		}
		return err
	}

	return events.Routes{
		events.TopicKeySubmission: func(ctx context.Context, topic string, env events.Envelope) error {
			logger.Info().Str("topic", topic).Msg("received key submission event")
			return errors.Join(
				proc.ProcessKeySubmission(ctx, topic, env),
				show(ctx, topic, env),
			)
		},
		events.TopicProfileEvents: func(ctx context.Context, topic string, env events.Envelope) error {
			logger.Info().Str("topic", topic).Str("event_type", env.EventType()).Msg("received profile event")
			return errors.Join(
				proc.ProcessProfileEvent(ctx, topic, env),
				show(ctx, topic, env),
			)
		},
		events.TopicProcessingResults: func(ctx context.Context, topic string, env events.Envelope) error {
			logger.Info().
				Str("event_type", env.EventType()).
				Interface("result", env["result"]).
				Msg("processing result received")
			return show(ctx, topic, env)
		},
	}
}
