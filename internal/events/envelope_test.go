package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvelope_Helpers(t *testing.T) {
	env := Envelope{
		"event_type": "profile_updated",
		"number":     json.Number("42"),
		"int":        7,
		"float":      3.0,
		"fraction":   3.5,
		"text":       "12",
		"flag":       true,
		"nested":     map[string]any{"k": "v"},
	}

	t.Run("Int64", func(t *testing.T) {
		n, ok := env.Int64("number")
		assert.True(t, ok)
		assert.Equal(t, int64(42), n)

		n, ok = env.Int64("int")
		assert.True(t, ok)
		assert.Equal(t, int64(7), n)

		n, ok = env.Int64("float")
		assert.True(t, ok)
		assert.Equal(t, int64(3), n)

		_, ok = env.Int64("fraction")
		assert.False(t, ok)

		n, ok = env.Int64("text")
		assert.True(t, ok)
		assert.Equal(t, int64(12), n)

		_, ok = env.Int64("missing")
		assert.False(t, ok)
	})

	t.Run("Accessors", func(t *testing.T) {
		assert.Equal(t, "profile_updated", env.EventType())
		assert.Equal(t, "", env.Timestamp())
		assert.Equal(t, "", env.String("number"))
		assert.True(t, env.Bool("flag"))
		assert.Equal(t, Envelope{"k": "v"}, env.Map("nested"))
		assert.Nil(t, env.Map("text"))
	})

	t.Run("Clone", func(t *testing.T) {
		c := env.Clone()
		c["extra"] = 1
		_, ok := env["extra"]
		assert.False(t, ok)
	})
}

func TestParse(t *testing.T) {
	t.Run("KeySubmitted", func(t *testing.T) {
		ev := Parse(Envelope{"event_type": "key_submitted", "key_value": "abc", "token_name": "T1", "user_id": nil})
		assert.Equal(t, KeySubmitted{KeyValue: "abc", TokenName: "T1"}, ev)
		assert.Nil(t, ev.Envelope()["user_id"])
	})

	t.Run("ProfileCreated", func(t *testing.T) {
		ev := Parse(Envelope{
			"event_type":   "profile_created",
			"profile_id":   json.Number("5"),
			"profile_data": map[string]any{"token_name": "Demo"},
		})
		assert.Equal(t, ProfileCreated{ProfileID: 5, Data: map[string]any{"token_name": "Demo"}}, ev)
	})

	t.Run("ProfileDeleted", func(t *testing.T) {
		ev := Parse(Envelope{"event_type": "profile_deleted", "profile_id": json.Number("1")})
		assert.Equal(t, ProfileDeleted{ProfileID: 1}, ev)
	})

	t.Run("MissingIDFallsBack", func(t *testing.T) {
		env := Envelope{"event_type": "profile_deleted"}
		assert.Equal(t, Opaque{Env: env}, Parse(env))
	})

	t.Run("Unknown", func(t *testing.T) {
		env := Envelope{"event_type": "button_clicked", "button_name": "submit"}
		ev := Parse(env)
		assert.Equal(t, "button_clicked", ev.EventType())
		assert.Equal(t, env, ev.Envelope())
	})
}
