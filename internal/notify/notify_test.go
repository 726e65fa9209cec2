package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"profilebus/internal/events"
)

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	args := m.Called(c)
	return args.Get(0).(tgbotapi.Message), args.Error(1)
}

// blockingSender never answers until release is closed.
type blockingSender struct {
	release chan struct{}
}

func (b blockingSender) Send(tgbotapi.Chattable) (tgbotapi.Message, error) {
	<-b.release
	return tgbotapi.Message{}, nil
}

type sinkFunc func(ctx context.Context, n Notification) error

func (f sinkFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

func TestTitle(t *testing.T) {
	tests := []struct {
		topic string
		env   events.Envelope
		want  string
	}{
		{events.TopicKeySubmission, events.Envelope{"event_type": "key_submitted"}, "Key Submission"},
		{events.TopicProfileEvents, events.Envelope{"event_type": "profile_deleted"}, "Profile Event: profile_deleted"},
		{events.TopicProfileEvents, events.Envelope{}, "Profile Event: Profile Event"},
		{events.TopicProcessingResults, events.Envelope{"event_type": "key_processed"}, "Processing Result"},
		{"user_actions", events.Envelope{"event_type": "button_clicked"}, "button_clicked"},
		{"misc", events.Envelope{}, "Event"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Title(tt.topic, tt.env), tt.topic)
	}
}

func TestNotificationTimestamp(t *testing.T) {
	received := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	n := Notification{Event: events.Envelope{"timestamp": "2024-01-01T10:00:00"}, ReceivedAt: received}
	assert.Equal(t, "2024-01-01T10:00:00", n.Timestamp())

	n.Event = events.Envelope{}
	assert.Equal(t, received.Format(events.TimestampLayout), n.Timestamp())
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	sink := NewLogSink(&logger)

	n := New(events.TopicProfileEvents, events.Envelope{"event_type": "profile_created", "profile_id": 1})
	require.NoError(t, sink.Notify(context.Background(), n))

	out := buf.String()
	assert.Contains(t, out, `"title":"Profile Event: profile_created"`)
	assert.Contains(t, out, `"topic":"profile_events"`)
	assert.Contains(t, out, `"profile_id":1`)
}

func TestMulti(t *testing.T) {
	var calls int
	ok := sinkFunc(func(context.Context, Notification) error { calls++; return nil })
	boom := errors.New("boom")
	bad := sinkFunc(func(context.Context, Notification) error { calls++; return boom })

	err := Multi{ok, bad, ok}.Notify(context.Background(), Notification{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)

	assert.NoError(t, Multi{ok}.Notify(context.Background(), Notification{}))
}

func TestTelegramSink(t *testing.T) {
	n := New(events.TopicKeySubmission, events.Envelope{"event_type": "key_submitted", "key_value": "<abc>"})

	t.Run("Success", func(t *testing.T) {
		sender := new(mockSender)
		sender.On("Send", mock.MatchedBy(func(c tgbotapi.Chattable) bool {
			msg, ok := c.(tgbotapi.MessageConfig)
			return ok &&
				msg.ChatID == 42 &&
				msg.ParseMode == tgbotapi.ModeHTML &&
				strings.Contains(msg.Text, "<b>Key Submission</b>") &&
				strings.Contains(msg.Text, "&lt;abc&gt;")
		})).Return(tgbotapi.Message{}, nil).Once()

		require.NoError(t, NewTelegramSink(sender, 42).Notify(context.Background(), n))
		sender.AssertExpectations(t)
	})

	t.Run("Failure", func(t *testing.T) {
		sender := new(mockSender)
		sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, &tgbotapi.Error{Code: 403, Message: "Forbidden"}).Once()

		err := NewTelegramSink(sender, 42).Notify(context.Background(), n)
		var tgErr *tgbotapi.Error
		require.True(t, errors.As(err, &tgErr))
		assert.Equal(t, 403, tgErr.Code)
		sender.AssertExpectations(t)
	})

	t.Run("RateLimitedRetriesOnce", func(t *testing.T) {
		sender := new(mockSender)
		limited := &tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 1}}
		sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, limited).Once()
		sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, nil).Once()

		require.NoError(t, NewTelegramSink(sender, 42).Notify(context.Background(), n))
		sender.AssertNumberOfCalls(t, "Send", 2)
	})

	t.Run("RateLimitedContextDone", func(t *testing.T) {
		sender := new(mockSender)
		limited := &tgbotapi.Error{Code: 429, ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 30}}
		sender.On("Send", mock.Anything).Return(tgbotapi.Message{}, limited).Once()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := NewTelegramSink(sender, 42).Notify(ctx, n)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		sender.AssertNumberOfCalls(t, "Send", 1)
	})
}

func TestNotificationBodyKeepsHTML(t *testing.T) {
	n := Notification{Event: events.Envelope{"key_value": "<abc>&"}}
	assert.Equal(t, "{\n  \"key_value\": \"<abc>&\"\n}", n.body())
	assert.Contains(t, formatMessage(n), "&lt;abc&gt;&amp;")
}

func TestFormatMessageTruncates(t *testing.T) {
	n := Notification{Title: "Big", Event: events.Envelope{"blob": strings.Repeat("x", 10000)}, ReceivedAt: time.Now()}
	assert.LessOrEqual(t, len(formatMessage(n)), maxMessageLen)
}

func TestBounded(t *testing.T) {
	logger := zerolog.New(io.Discard)

	t.Run("DropsBeyondMaxOpen", func(t *testing.T) {
		release := make(chan struct{})
		entered := make(chan struct{}, 1)
		blocking := sinkFunc(func(ctx context.Context, _ Notification) error {
			entered <- struct{}{}
			<-release
			return nil
		})
		b := NewBounded(blocking, BoundedOptions{MaxOpen: 1, Timeout: time.Second}, &logger)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, b.Notify(context.Background(), Notification{Title: "first"}))
		}()
		<-entered

		assert.ErrorIs(t, b.Notify(context.Background(), Notification{Title: "second"}), ErrTooManyOpen)

		close(release)
		wg.Wait()
		entered2 := make(chan struct{})
		b.next = sinkFunc(func(context.Context, Notification) error { close(entered2); return nil })
		assert.NoError(t, b.Notify(context.Background(), Notification{Title: "third"}))
		<-entered2
	})

	t.Run("Timeout", func(t *testing.T) {
		stuck := sinkFunc(func(ctx context.Context, _ Notification) error {
			<-ctx.Done()
			return ctx.Err()
		})
		b := NewBounded(stuck, BoundedOptions{Timeout: 30 * time.Millisecond}, &logger)

		start := time.Now()
		err := b.Notify(context.Background(), Notification{})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("RateLimit", func(t *testing.T) {
		ok := sinkFunc(func(context.Context, Notification) error { return nil })
		b := NewBounded(ok, BoundedOptions{RatePerSecond: 0.5, Burst: 1, Timeout: 50 * time.Millisecond}, &logger)

		assert.NoError(t, b.Notify(context.Background(), Notification{}))
		assert.Error(t, b.Notify(context.Background(), Notification{}))
	})

	t.Run("SenderIgnoresContext", func(t *testing.T) {
		sender := blockingSender{release: make(chan struct{})}
		b := NewBounded(NewTelegramSink(sender, 42), BoundedOptions{MaxOpen: 1, Timeout: 50 * time.Millisecond}, &logger)

		start := time.Now()
		err := b.Notify(context.Background(), Notification{Title: "hung"})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), time.Second)

		// the hung delivery still occupies the only slot
		assert.ErrorIs(t, b.Notify(context.Background(), Notification{Title: "next"}), ErrTooManyOpen)

		close(sender.release)
		require.Eventually(t, func() bool {
			return b.Notify(context.Background(), Notification{Title: "after"}) == nil
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("PanickingSink", func(t *testing.T) {
		boom := sinkFunc(func(context.Context, Notification) error { panic("boom") })
		b := NewBounded(boom, BoundedOptions{MaxOpen: 1, Timeout: time.Second}, &logger)

		assert.Error(t, b.Notify(context.Background(), Notification{}))
		b.next = sinkFunc(func(context.Context, Notification) error { return nil })
		assert.NoError(t, b.Notify(context.Background(), Notification{}))
	})
}
