package events

import (
	"errors"
	"fmt"
)

var (
	ErrConnection        = errors.New("events: broker unreachable")
	ErrAlreadySubscribed = errors.New("events: subscriber already subscribed")
	ErrSubscriberClosed  = errors.New("events: subscriber closed")
	ErrNoTopics          = errors.New("events: no topics to subscribe")
	ErrNilHandler        = errors.New("events: nil handler")
)

// HandlerError is a failure raised inside a dispatched handler, either as a
// returned error or a recovered panic.
type HandlerError struct {
	Topic     string
	EventType string
	Err       error
	Panicked  bool
	Stack     string
}

func (e *HandlerError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("handler for %q (%s) panicked: %v", e.Topic, e.EventType, e.Err)
	}
	return fmt.Sprintf("handler for %q (%s): %v", e.Topic, e.EventType, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }
