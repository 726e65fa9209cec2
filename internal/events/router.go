package events

import (
	"context"
	"sort"
)

// Handler processes one envelope received on topic. Handlers run on their
// own goroutine; returned errors and panics are contained by the dispatcher.
type Handler func(ctx context.Context, topic string, env Envelope) error

// Routes maps a topic to the single handler serving it.
type Routes map[string]Handler

type router struct {
	broadcast Handler
	routes    Routes
	subjects  []string
}

// newBroadcastRouter routes every topic to h.
func newBroadcastRouter(topics []string, h Handler) *router {
	seen := make(map[string]struct{}, len(topics))
	subjects := make([]string, 0, len(topics))
	for _, t := range topics {
		if _, ok := seen[t]; ok || t == "" {
			continue
		}
		seen[t] = struct{}{}
		subjects = append(subjects, t)
	}
	sort.Strings(subjects)
	return &router{broadcast: h, subjects: subjects}
}

func newTopicRouter(routes Routes) *router {
	r := &router{routes: make(Routes, len(routes))}
	for topic, h := range routes {
		if topic == "" {
			continue
		}
		r.routes[topic] = h
		r.subjects = append(r.subjects, topic)
	}
	sort.Strings(r.subjects)
	return r
}

func (r *router) resolve(topic string) (Handler, bool) {
	if r.broadcast != nil {
		return r.broadcast, true
	}
	h, ok := r.routes[topic]
	return h, ok && h != nil
}

func (r *router) topics() []string {
	return r.subjects
}
