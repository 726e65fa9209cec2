package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"profilebus/internal/metrics"
)

// ErrTooManyOpen is returned when MaxOpen notifications are already in
// progress.
var ErrTooManyOpen = errors.New("too many notifications in progress")

// BoundedOptions limits a wrapped Sink.
type BoundedOptions struct {
	MaxOpen       int
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// Bounded caps concurrent and per-second deliveries to the wrapped sink.
// Notify returns within Timeout even when the wrapped sink ignores its
// context; such a delivery keeps its MaxOpen slot until it finishes.
type Bounded struct {
	next    Sink
	opts    BoundedOptions
	open    chan struct{}
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

func NewBounded(next Sink, opts BoundedOptions, logger *zerolog.Logger) *Bounded {
	if opts.MaxOpen <= 0 {
		opts.MaxOpen = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if opts.Burst <= 0 {
		opts.Burst = opts.MaxOpen
	}
	l := logger.With().Str("component", "notify").Logger()
	return &Bounded{
		next:    next,
		opts:    opts,
		open:    make(chan struct{}, opts.MaxOpen),
		limiter: rate.NewLimiter(limit, opts.Burst),
		logger:  &l,
	}
}

func (b *Bounded) Notify(ctx context.Context, n Notification) error {
	select {
	case b.open <- struct{}{}:
	default:
		b.logger.Warn().Str("title", n.Title).Int("max_open", b.opts.MaxOpen).Msg("too many notifications open, dropping")
		metrics.IncNotification("dropped")
		return ErrTooManyOpen
	}

	ctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	if err := b.limiter.Wait(ctx); err != nil {
		<-b.open
		metrics.IncNotification("rate_limited")
		return fmt.Errorf("notification rate limit: %w", err)
	}

	// The slot stays taken until the delivery returns, even when the
	// caller has already given up on it.
	done := make(chan error, 1)
	go func() {
		err := b.deliver(ctx, n)
		<-b.open
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			metrics.IncNotification("error")
			return err
		}
		metrics.IncNotification("ok")
		return nil
	case <-ctx.Done():
		b.logger.Warn().Str("title", n.Title).Dur("timeout", b.opts.Timeout).Msg("notification abandoned")
		metrics.IncNotification("timeout")
		return fmt.Errorf("notification %q: %w", n.Title, ctx.Err())
	}
}

func (b *Bounded) deliver(ctx context.Context, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notification sink panicked: %v", r)
		}
	}()
	return b.next.Notify(ctx, n)
}
