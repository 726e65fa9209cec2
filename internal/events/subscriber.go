package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"profilebus/internal/metrics"
)

// State is the Subscriber lifecycle stage.
type State int32

const (
	StateIdle State = iota
	StateListening
	StateStopping
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateStopping:
		return "stopping"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// SubscriberOptions tunes the receive loop and dispatch.
type SubscriberOptions struct {
	// StopTimeout bounds how long Stop waits for the receive loop to exit.
	StopTimeout time.Duration
	// PollInterval is the longest the loop blocks before re-checking the stop flag.
	PollInterval time.Duration
	// RetryDelay is the pause after a transient receive error.
	RetryDelay time.Duration
	// MaxInFlight caps concurrently running handlers; 0 means unbounded.
	// Messages arriving while the cap is reached are dropped.
	MaxInFlight int
	// OnHandlerError, when set, is called after a handler failure is logged.
	OnHandlerError func(*HandlerError)
}

// DefaultSubscriberOptions returns the defaults applied to zero fields.
func DefaultSubscriberOptions() SubscriberOptions {
	return SubscriberOptions{
		StopTimeout:  5 * time.Second,
		PollInterval: time.Second,
		RetryDelay:   time.Second,
	}
}

func (o SubscriberOptions) withDefaults() SubscriberOptions {
	def := DefaultSubscriberOptions()
	if o.StopTimeout <= 0 {
		o.StopTimeout = def.StopTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = def.RetryDelay
	}
	if o.MaxInFlight < 0 {
		o.MaxInFlight = 0
	}
	return o
}

// Subscriber listens on Redis channels and dispatches each message to its
// handler on a separate goroutine.
//
// A Subscriber accepts exactly one Subscribe or SubscribeTopics call; later
// calls return ErrAlreadySubscribed. Stop and Close are idempotent and may
// be called from a signal handler.
type Subscriber struct {
	client *redis.Client
	logger *zerolog.Logger
	opts   SubscriberOptions

	mu       sync.Mutex
	state    State
	pubsub   *redis.PubSub
	router   *router
	loopDone chan struct{}

	stopping  atomic.Bool
	stopCh    chan struct{}
	closeOnce sync.Once
	closeErr  error

	handlerCtx context.Context
	inflight   sync.WaitGroup
	sem        chan struct{}
}

// NewSubscriber connects to the broker. An unreachable broker yields an
// error wrapping ErrConnection.
func NewSubscriber(ctx context.Context, conn ConnOptions, opts SubscriberOptions, logger *zerolog.Logger) (*Subscriber, error) {
	client, err := connect(ctx, conn)
	if err != nil {
		logger.Error().Err(err).Str("addr", conn.Addr()).Msg("failed to connect to redis")
		return nil, err
	}
	s := NewSubscriberFromClient(client, opts, logger)
	s.logger.Info().Str("addr", conn.Addr()).Msg("connected to redis")
	return s, nil
}

// NewSubscriberFromClient wraps an existing client. The Subscriber takes
// ownership and closes it on Close.
func NewSubscriberFromClient(client *redis.Client, opts SubscriberOptions, logger *zerolog.Logger) *Subscriber {
	opts = opts.withDefaults()
	l := logger.With().Str("component", "subscriber").Logger()
	s := &Subscriber{
		client: client,
		logger: &l,
		opts:   opts,
		state:  StateIdle,
		stopCh: make(chan struct{}),
	}
	if opts.MaxInFlight > 0 {
		s.sem = make(chan struct{}, opts.MaxInFlight)
	}
	return s
}

// Subscribe registers handler for every topic in topics and starts the
// receive loop. It returns once the broker has confirmed the subscriptions.
func (s *Subscriber) Subscribe(ctx context.Context, topics []string, handler Handler) error {
	if handler == nil {
		return ErrNilHandler
	}
	return s.start(ctx, newBroadcastRouter(topics, handler))
}

// SubscribeTopics registers one handler per topic and starts the receive
// loop. Messages for topics without a handler are logged and dropped.
func (s *Subscriber) SubscribeTopics(ctx context.Context, routes Routes) error {
	for topic, h := range routes {
		if h == nil {
			return fmt.Errorf("%w for topic %q", ErrNilHandler, topic)
		}
	}
	return s.start(ctx, newTopicRouter(routes))
}

func (s *Subscriber) start(ctx context.Context, r *router) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle:
	case StateClosed:
		return ErrSubscriberClosed
	default:
		return ErrAlreadySubscribed
	}

	topics := r.topics()
	if len(topics) == 0 {
		return ErrNoTopics
	}

	s.router = r
	s.handlerCtx = context.WithoutCancel(ctx)

	ps := s.client.Subscribe(ctx, topics...)
	if err := s.awaitConfirmations(ctx, ps, len(topics)); err != nil {
		_ = ps.Close()
		s.router = nil
		return fmt.Errorf("subscribe %v: %w", topics, err)
	}
	for _, t := range topics {
		s.logger.Info().Str("topic", t).Msg("subscribed to topic")
	}

	s.pubsub = ps
	s.loopDone = make(chan struct{})
	s.state = StateListening
	go s.listen(ps, s.loopDone)

	s.logger.Info().Int("topics", len(topics)).Msg("event listener started")
	return nil
}

// awaitConfirmations reads until the broker has acknowledged n
// subscriptions. Payload messages that race ahead of a confirmation are
// dispatched normally.
func (s *Subscriber) awaitConfirmations(ctx context.Context, ps *redis.PubSub, n int) error {
	for confirmed := 0; confirmed < n; {
		msg, err := ps.ReceiveTimeout(ctx, s.opts.StopTimeout)
		if err != nil {
			return err
		}
		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind == "subscribe" {
				confirmed++
			}
		case *redis.Message:
			s.handleMessage(m)
		}
	}
	return nil
}

// listen is the receive loop. It is the only reader of ps.
func (s *Subscriber) listen(ps *redis.PubSub, done chan struct{}) {
	defer close(done)
	ctx := context.Background()

	for {
		if s.stopping.Load() {
			return
		}

		msg, err := ps.ReceiveTimeout(ctx, s.opts.PollInterval)
		if s.stopping.Load() {
			return
		}
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if errors.Is(err, redis.ErrClosed) {
				s.logger.Info().Msg("event stream closed")
				return
			}
			s.logger.Warn().Err(err).Msg("error in event listener, retrying")
			select {
			case <-s.stopCh:
				return
			case <-time.After(s.opts.RetryDelay):
			}
			continue
		}

		switch m := msg.(type) {
		case *redis.Message:
			s.handleMessage(m)
		case *redis.Subscription, *redis.Pong:
			// control replies carry no payload
		default:
			s.logger.Debug().Msgf("ignoring pubsub reply of type %T", msg)
		}
	}
}

func (s *Subscriber) handleMessage(m *redis.Message) {
	topic := m.Channel
	metrics.IncReceived(topic)

	env, err := Decode([]byte(m.Payload))
	if err != nil {
		s.logger.Error().Err(err).Str("topic", topic).Msg("failed to parse event")
		metrics.IncDropped(topic, "decode")
		return
	}
	s.logger.Info().Str("topic", topic).Str("event_type", eventTypeOrUnknown(env)).Msg("received event")

	h, ok := s.router.resolve(topic)
	if !ok {
		s.logger.Warn().Str("topic", topic).Msg("no handler registered for topic")
		metrics.IncDropped(topic, "unrouted")
		return
	}

	if s.sem != nil {
		select {
		case s.sem <- struct{}{}:
		default:
			s.logger.Warn().
				Str("topic", topic).
				Str("event_type", eventTypeOrUnknown(env)).
				Int("max_in_flight", s.opts.MaxInFlight).
				Msg("handler capacity reached, dropping event")
			metrics.IncDropped(topic, "overflow")
			return
		}
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		if s.sem != nil {
			defer func() { <-s.sem }()
		}
		s.dispatch(s.handlerCtx, topic, env, h)
	}()
}

// Stop sets the stop flag, unsubscribes every topic and waits up to
// StopTimeout for the receive loop to exit. It returns even when the loop
// is still running. Handlers already dispatched are not interrupted.
func (s *Subscriber) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateListening {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	ps, done := s.pubsub, s.loopDone
	s.mu.Unlock()

	s.stopping.Store(true)
	close(s.stopCh)

	if err := ps.Unsubscribe(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to unsubscribe")
	}

	timer := time.NewTimer(s.opts.StopTimeout)
	defer timer.Stop()
	select {
	case <-done:
		s.logger.Info().Msg("event subscriber stopped")
	case <-timer.C:
		s.logger.Warn().Dur("timeout", s.opts.StopTimeout).Msg("event listener did not exit in time")
	case <-ctx.Done():
		s.logger.Warn().Err(ctx.Err()).Msg("stop interrupted before event listener exited")
	}
	return nil
}

// Close stops the subscriber and releases the connection. Safe to call
// more than once.
func (s *Subscriber) Close() error {
	s.closeOnce.Do(func() {
		_ = s.Stop(context.Background())

		s.mu.Lock()
		ps := s.pubsub
		s.state = StateClosed
		s.mu.Unlock()

		var errs []error
		if ps != nil {
			if err := ps.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
				errs = append(errs, fmt.Errorf("close pubsub: %w", err))
			}
		}
		if err := s.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close client: %w", err))
		}
		s.closeErr = errors.Join(errs...)
		s.logger.Info().Msg("redis connection closed")
	})
	return s.closeErr
}

// State reports the current lifecycle stage.
func (s *Subscriber) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Wait blocks until the receive loop has exited and every dispatched
// handler has returned. Call it after Stop or Close; on a listening
// Subscriber it blocks until the loop ends.
func (s *Subscriber) Wait() {
	s.mu.Lock()
	done := s.loopDone
	s.mu.Unlock()
	if done != nil {
		<-done
	}
	s.inflight.Wait()
}
