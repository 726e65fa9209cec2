package events

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"profilebus/internal/metrics"
)

// dispatch runs h and contains any failure to this one message.
func (s *Subscriber) dispatch(ctx context.Context, topic string, env Envelope, h Handler) {
	logger := s.logger.With().
		Str("topic", topic).
		Str("event_type", eventTypeOrUnknown(env)).
		Str("dispatch_id", uuid.NewString()).
		Logger()

	metrics.HandlerStarted()
	defer metrics.HandlerFinished()

	start := time.Now()
	err := invoke(ctx, topic, env, h)
	elapsed := time.Since(start)
	metrics.ObserveHandlerDuration(topic, elapsed.Seconds())

	if err == nil {
		logger.Debug().Dur("elapsed", elapsed).Msg("event handled")
		return
	}

	var herr *HandlerError
	if !errors.As(err, &herr) {
		herr = &HandlerError{Topic: topic, EventType: env.EventType(), Err: err}
	}
	ev := logger.Error().Err(herr.Err).Bool("panicked", herr.Panicked).Dur("elapsed", elapsed)
	if herr.Stack != "" {
		ev = ev.Str("stack", herr.Stack)
	}
	ev.Msg("error in event handler")
	metrics.IncHandlerFailure(topic)

	if s.opts.OnHandlerError != nil {
		s.reportFailure(&logger, herr)
	}
}

// reportFailure runs the OnHandlerError callback; a panic there is logged
// and goes no further.
func (s *Subscriber) reportFailure(logger *zerolog.Logger, herr *HandlerError) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("handler error callback panicked")
		}
	}()
	s.opts.OnHandlerError(herr)
}

func invoke(ctx context.Context, topic string, env Envelope, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{
				Topic:     topic,
				EventType: env.EventType(),
				Err:       fmt.Errorf("%v", r),
				Panicked:  true,
				Stack:     string(debug.Stack()),
			}
		}
	}()

	if herr := h(ctx, topic, env); herr != nil {
		return &HandlerError{Topic: topic, EventType: env.EventType(), Err: herr}
	}
	return nil
}
