package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bluehex/server/internal/logging"
	"github.com/bluehex/server/internal/observability"
)

// Mailer composes and sends the email for an event.
type Mailer struct {
	composer *Composer
	sender   Sender
	log      zerolog.Logger
	metrics  *observability.Metrics
}

// NewMailer creates a Mailer. metrics may be nil.
func NewMailer(composer *Composer, sender Sender, log zerolog.Logger, metrics *observability.Metrics) *Mailer {
	return &Mailer{
		composer: composer,
		sender:   sender,
		log:      log.With().Str("component", "mailer").Logger(),
		metrics:  metrics,
	}
}

// Deliver renders and sends the email for event. Failures are logged and
// returned for the caller to discard.
func (m *Mailer) Deliver(ctx context.Context, event Event) error {
	msg, err := m.composer.Compose(event)
	if err != nil {
		m.fail(event, err)
		return fmt.Errorf("compose %s email: %w", event.Kind, err)
	}
	if err := m.sender.Send(ctx, msg); err != nil {
		m.fail(event, err)
		return fmt.Errorf("send %s email: %w", event.Kind, err)
	}
	m.metrics.Notification(string(event.Kind), "delivered")
	m.log.Info().
		Str("kind", string(event.Kind)).
		Str("to", logging.MaskEmail(event.Email)).
		Msg("email sent")
	return nil
}

func (m *Mailer) fail(event Event, err error) {
	m.metrics.Notification(string(event.Kind), "failed")
	m.log.Error().
		Err(err).
		Str("kind", string(event.Kind)).
		Str("to", logging.MaskEmail(event.Email)).
		Msg("email delivery failed")
}
