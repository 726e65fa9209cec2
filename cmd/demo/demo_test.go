package main

import (
	"context"
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profilebus/internal/events"
)

func discardLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func TestDemoPublishesSequence(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	conn := events.ConnOptions{Host: mr.Host(), Port: port}

	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	pub, err := events.NewPublisher(ctx, conn, &logger)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := events.NewSubscriber(ctx, conn, events.SubscriberOptions{PollInterval: 50 * time.Millisecond}, &logger)
	require.NoError(t, err)
	defer sub.Close()

	type got struct{ topic, eventType string }
	ch := make(chan got, 16)
	topics := []string{events.TopicKeySubmission, events.TopicProfileEvents, "user_actions", "system_events"}
	require.NoError(t, sub.Subscribe(ctx, topics, func(_ context.Context, topic string, env events.Envelope) error {
		ch <- got{topic, env.EventType()}
		return nil
	}))

	d := &demo{pub: pub, logger: &logger}
	require.NoError(t, d.run(ctx))

	counts := map[got]int{}
	for i := 0; i < 8; i++ {
		select {
		case g := <-ch:
			counts[g]++
		case <-time.After(3 * time.Second):
			t.Fatalf("received %d of 8 events", i)
		}
	}
	assert.Equal(t, map[got]int{
		{events.TopicKeySubmission, events.TypeKeySubmitted}: 3,
		{events.TopicProfileEvents, events.TypeProfileCreated}: 1,
		{events.TopicProfileEvents, events.TypeProfileUpdated}: 1,
		{events.TopicProfileEvents, events.TypeProfileDeleted}: 1,
		{"user_actions", "button_clicked"}:                     1,
		{"system_events", "system_startup"}:                    1,
	}, counts)
}

func TestDemoReportsFailures(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	pub, err := events.NewPublisher(context.Background(), events.ConnOptions{Host: mr.Host(), Port: port}, discardLogger())
	require.NoError(t, err)
	require.NoError(t, pub.Close())

	d := &demo{pub: pub, logger: discardLogger()}
	assert.ErrorContains(t, d.run(context.Background()), "8 events were not published")
}

func TestDemoStopsOnCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	pub, err := events.NewPublisher(context.Background(), events.ConnOptions{Host: mr.Host(), Port: port}, discardLogger())
	require.NoError(t, err)
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	d := &demo{pub: pub, delay: time.Hour, logger: discardLogger()}
	assert.ErrorIs(t, d.run(ctx), context.DeadlineExceeded)
}
