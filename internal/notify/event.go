// Package notify turns auth lifecycle events into emails. Events are emitted
// after the durable write commits and are delivered out of band, so delivery
// failures never reach the operation that produced them.
package notify

import (
	"context"
	"errors"
	"time"
)

// Kind identifies the lifecycle transition an event reports.
type Kind string

const (
	KindWelcome         Kind = "welcome"
	KindLogin           Kind = "login"
	KindPasswordReset   Kind = "password_reset"
	KindPasswordChanged Kind = "password_changed"
)

// Event is a notification request. Token is only set for KindPasswordReset.
type Event struct {
	Kind       Kind      `json:"kind"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	Token      string    `json:"token,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Validate checks that the event can be rendered.
func (e Event) Validate() error {
	switch e.Kind {
	case KindWelcome, KindLogin, KindPasswordChanged:
	case KindPasswordReset:
		if e.Token == "" {
			return errors.New("password reset event without token")
		}
	default:
		return errors.New("unknown event kind: " + string(e.Kind))
	}
	if e.Email == "" {
		return errors.New("event without recipient")
	}
	return nil
}

// Notifier accepts events for delivery. Implementations must not block on
// the actual send.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Nop discards every event.
var Nop Notifier = NotifierFunc(func(context.Context, Event) error { return nil })
