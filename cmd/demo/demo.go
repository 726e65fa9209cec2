package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"profilebus/internal/events"
)

type publisher interface {
	Publish(ctx context.Context, topic string, payload events.Envelope) bool
	PublishKeySubmitted(ctx context.Context, keyValue, tokenName, userID string) bool
	PublishProfileCreated(ctx context.Context, profileID int64, data map[string]any) bool
	PublishProfileUpdated(ctx context.Context, profileID int64, data map[string]any) bool
	PublishProfileDeleted(ctx context.Context, profileID int64) bool
}

type demo struct {
	pub    publisher
	delay  time.Duration
	logger *zerolog.Logger
	failed int
}

// run publishes the key, profile and custom event sequences, pausing delay
// between events and four times delay between sequences.
func (d *demo) run(ctx context.Context) error {
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"key submission events", d.keyEvents},
		{"profile events", d.profileEvents},
		{"custom events", d.customEvents},
	}
	for i, s := range steps {
		if i > 0 {
			if err := d.pause(ctx, 4*d.delay); err != nil {
				return err
			}
		}
		d.logger.Info().Msgf("=== %s ===", s.name)
		if err := s.fn(ctx); err != nil {
			return err
		}
	}
	if d.failed > 0 {
		return fmt.Errorf("%d events were not published", d.failed)
	}
	return nil
}

func (d *demo) keyEvents(ctx context.Context) error {
	keys := []struct{ key, token string }{
		{"sample_key_12345", "Demo Token 1"},
		{"another_key_67890", "Demo Token 2"},
		{"test_key_abcdef", "Production Token"},
	}
	for i, k := range keys {
		if i > 0 {
			if err := d.pause(ctx, d.delay); err != nil {
				return err
			}
		}
		d.check(d.pub.PublishKeySubmitted(ctx, k.key, k.token, ""), events.TypeKeySubmitted)
	}
	return nil
}

func (d *demo) profileEvents(ctx context.Context) error {
	d.check(d.pub.PublishProfileCreated(ctx, 1, map[string]any{
		"dll_path":   "/path/to/demo.dll",
		"token_name": "Demo Profile",
		"active":     true,
	}), events.TypeProfileCreated)
	if err := d.pause(ctx, d.delay); err != nil {
		return err
	}
	d.check(d.pub.PublishProfileUpdated(ctx, 1, map[string]any{
		"dll_path":   "/path/to/updated_demo.dll",
		"token_name": "Updated Demo Profile",
		"active":     true,
	}), events.TypeProfileUpdated)
	if err := d.pause(ctx, d.delay); err != nil {
		return err
	}
	d.check(d.pub.PublishProfileDeleted(ctx, 1), events.TypeProfileDeleted)
	return nil
}

func (d *demo) customEvents(ctx context.Context) error {
	d.check(d.pub.Publish(ctx, "user_actions", events.Envelope{
		"event_type":  "button_clicked",
		"button_name": "submit",
		"timestamp":   "2024-01-01T10:00:00",
	}), "button_clicked")
	if err := d.pause(ctx, d.delay); err != nil {
		return err
	}
	d.check(d.pub.Publish(ctx, "system_events", events.Envelope{
		"event_type": "system_startup",
		"mode":       "production",
		"configuration": map[string]any{
			"database": "connected",
			"redis":    "connected",
		},
	}), "system_startup")
	return nil
}

func (d *demo) check(ok bool, eventType string) {
	if !ok {
		d.failed++
		d.logger.Warn().Str("event_type", eventType).Msg("event not published")
	}
}

func (d *demo) pause(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
