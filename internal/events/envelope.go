package events

import (
	"encoding/json"
	"strconv"
)

// Well-known topics.
const (
	TopicKeySubmission     = "key_submission"
	TopicProfileEvents     = "profile_events"
	TopicProcessingResults = "processing_results"
)

// Event types carried in the event_type field.
const (
	TypeKeySubmitted     = "key_submitted"
	TypeProfileCreated   = "profile_created"
	TypeProfileUpdated   = "profile_updated"
	TypeProfileDeleted   = "profile_deleted"
	TypeKeyProcessed     = "key_processed"
	TypeProfileProcessed = "profile_processed"
)

const (
	FieldEventType = "event_type"
	FieldTimestamp = "timestamp"
)

// Envelope is the unit of data flowing through a topic: an open mapping
// that conventionally carries event_type and timestamp.
type Envelope map[string]any

// EventType returns the event_type field or "" when absent.
func (e Envelope) EventType() string {
	return e.String(FieldEventType)
}

// Timestamp returns the timestamp field or "" when absent.
func (e Envelope) Timestamp() string {
	return e.String(FieldTimestamp)
}

// String returns the string value stored under key.
func (e Envelope) String(key string) string {
	if s, ok := e[key].(string); ok {
		return s
	}
	return ""
}

// Bool returns the boolean value stored under key.
func (e Envelope) Bool(key string) bool {
	b, _ := e[key].(bool)
	return b
}

// Int64 returns the integer stored under key, accepting the numeric
// representations produced by Go callers and by Decode.
func (e Envelope) Int64(key string) (int64, bool) {
	switch v := e[key].(type) {
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), float64(int64(v)) == v
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Map returns the nested mapping stored under key, or nil.
func (e Envelope) Map(key string) Envelope {
	switch v := e[key].(type) {
	case Envelope:
		return v
	case map[string]any:
		return Envelope(v)
	}
	return nil
}

// Clone returns a shallow copy.
func (e Envelope) Clone() Envelope {
	out := make(Envelope, len(e)+1)
	for k, v := range e {
		out[k] = v
	}
	return out
}

func eventTypeOrUnknown(e Envelope) string {
	if t := e.EventType(); t != "" {
		return t
	}
	return "unknown"
}
