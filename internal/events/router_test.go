package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouter(t *testing.T) {
	noop := func(context.Context, string, Envelope) error { return nil }

	t.Run("Broadcast", func(t *testing.T) {
		r := newBroadcastRouter([]string{"b", "a", "b", ""}, noop)
		assert.Equal(t, []string{"a", "b"}, r.topics())

		_, ok := r.resolve("a")
		assert.True(t, ok)
		_, ok = r.resolve("unlisted")
		assert.True(t, ok, "broadcast handler serves every delivered topic")
	})

	t.Run("PerTopic", func(t *testing.T) {
		r := newTopicRouter(Routes{
			TopicProfileEvents: noop,
			TopicKeySubmission: noop,
			"":                 noop,
		})
		assert.Equal(t, []string{TopicKeySubmission, TopicProfileEvents}, r.topics())

		_, ok := r.resolve(TopicKeySubmission)
		assert.True(t, ok)
		_, ok = r.resolve(TopicProcessingResults)
		assert.False(t, ok)
	})
}
