package events

// Event is a typed view of an envelope, discriminated by event_type.
type Event interface {
	EventType() string
	Envelope() Envelope
}

// KeySubmitted is published when a user submits a key for a token.
type KeySubmitted struct {
	KeyValue  string
	TokenName string
	UserID    string
}

func (KeySubmitted) EventType() string { return TypeKeySubmitted }

func (e KeySubmitted) Envelope() Envelope {
	var userID any
	if e.UserID != "" {
		userID = e.UserID
	}
	return Envelope{
		FieldEventType: TypeKeySubmitted,
		"key_value":    e.KeyValue,
		"token_name":   e.TokenName,
		"user_id":      userID,
	}
}

// ProfileCreated is published after a profile row is inserted.
type ProfileCreated struct {
	ProfileID int64
	Data      map[string]any
}

func (ProfileCreated) EventType() string { return TypeProfileCreated }

func (e ProfileCreated) Envelope() Envelope {
	return Envelope{
		FieldEventType: TypeProfileCreated,
		"profile_id":   e.ProfileID,
		"profile_data": e.Data,
	}
}

// ProfileUpdated is published after a profile row is updated.
type ProfileUpdated struct {
	ProfileID int64
	Data      map[string]any
}

func (ProfileUpdated) EventType() string { return TypeProfileUpdated }

func (e ProfileUpdated) Envelope() Envelope {
	return Envelope{
		FieldEventType: TypeProfileUpdated,
		"profile_id":   e.ProfileID,
		"profile_data": e.Data,
	}
}

// ProfileDeleted is published after a profile row is removed.
type ProfileDeleted struct {
	ProfileID int64
}

func (ProfileDeleted) EventType() string { return TypeProfileDeleted }

func (e ProfileDeleted) Envelope() Envelope {
	return Envelope{
		FieldEventType: TypeProfileDeleted,
		"profile_id":   e.ProfileID,
	}
}

// KeyProcessed carries the processor's verdict on a key submission.
type KeyProcessed struct {
	Original Envelope
	Result   Envelope
}

func (KeyProcessed) EventType() string { return TypeKeyProcessed }

func (e KeyProcessed) Envelope() Envelope {
	return Envelope{
		FieldEventType:   TypeKeyProcessed,
		"original_event": e.Original,
		"result":         e.Result,
	}
}

// ProfileProcessed carries the processor's acknowledgement of a profile event.
type ProfileProcessed struct {
	Original Envelope
	Result   Envelope
}

func (ProfileProcessed) EventType() string { return TypeProfileProcessed }

func (e ProfileProcessed) Envelope() Envelope {
	return Envelope{
		FieldEventType:   TypeProfileProcessed,
		"original_event": e.Original,
		"result":         e.Result,
	}
}

// Opaque wraps any envelope whose event_type has no typed variant.
type Opaque struct {
	Env Envelope
}

func (e Opaque) EventType() string { return e.Env.EventType() }

func (e Opaque) Envelope() Envelope { return e.Env }

// Parse returns the typed variant for env. Unknown event types, and known
// ones missing required fields, come back as Opaque.
func Parse(env Envelope) Event {
	switch env.EventType() {
	case TypeKeySubmitted:
		return KeySubmitted{
			KeyValue:  env.String("key_value"),
			TokenName: env.String("token_name"),
			UserID:    env.String("user_id"),
		}
	case TypeProfileCreated, TypeProfileUpdated:
		id, ok := env.Int64("profile_id")
		if !ok {
			break
		}
		data := map[string]any(env.Map("profile_data"))
		if env.EventType() == TypeProfileCreated {
			return ProfileCreated{ProfileID: id, Data: data}
		}
		return ProfileUpdated{ProfileID: id, Data: data}
	case TypeProfileDeleted:
		if id, ok := env.Int64("profile_id"); ok {
			return ProfileDeleted{ProfileID: id}
		}
	case TypeKeyProcessed:
		return KeyProcessed{Original: env.Map("original_event"), Result: env.Map("result")}
	case TypeProfileProcessed:
		return ProfileProcessed{Original: env.Map("original_event"), Result: env.Map("result")}
	}
	return Opaque{Env: env}
}
