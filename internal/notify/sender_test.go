package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	f.sent = append(f.sent, m...)
	return f.err
}

func TestSMTPSender_NotConfigured(t *testing.T) {
	s := NewSMTPSender(SMTPConfig{}, zerolog.Nop())
	err := s.Send(context.Background(), Message{To: "a@example.com"})
	assert.ErrorIs(t, err, ErrMailerNotConfigured)
}

func TestSMTPSender_BuildsMessage(t *testing.T) {
	dialer := &fakeDialer{}
	s := &SMTPSender{
		config: SMTPConfig{FromEmail: "noreply@example.com", FromName: "Bluehex", AdminEmail: "admin@example.com"},
		dialer: dialer,
		log:    zerolog.Nop(),
	}

	err := s.Send(context.Background(), Message{To: "alice@example.com", Subject: "Hello", Text: "hi", HTML: "<p>hi</p>"})
	require.NoError(t, err)
	require.Len(t, dialer.sent, 1)

	m := dialer.sent[0]
	assert.Equal(t, []string{"alice@example.com"}, m.GetHeader("To"))
	assert.Equal(t, []string{"admin@example.com"}, m.GetHeader("Bcc"))
	assert.Equal(t, []string{"Hello"}, m.GetHeader("Subject"))
	require.Len(t, m.GetHeader("From"), 1)
	assert.Contains(t, m.GetHeader("From")[0], "noreply@example.com")
}

func TestSMTPSender_NoRecipient(t *testing.T) {
	s := &SMTPSender{dialer: &fakeDialer{}, log: zerolog.Nop()}
	assert.Error(t, s.Send(context.Background(), Message{}))
}

func TestSMTPSender_DialError(t *testing.T) {
	boom := errors.New("connection refused")
	s := &SMTPSender{dialer: &fakeDialer{err: boom}, log: zerolog.Nop()}
	assert.ErrorIs(t, s.Send(context.Background(), Message{To: "a@example.com"}), boom)
}
