package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposer_ResetLink(t *testing.T) {
	c := NewComposer("Bluehex", "https://auth.example.com/")
	assert.Equal(t, "https://auth.example.com/reset-password?token=abc_DEF-123", c.ResetLink("abc_DEF-123"))
}

func TestComposer_PasswordReset(t *testing.T) {
	c := NewComposer("Bluehex", "https://auth.example.com")

	msg, err := c.Compose(Event{
		Kind:       KindPasswordReset,
		Email:      "alice@example.com",
		FirstName:  "Alice",
		Token:      "tok",
		OccurredAt: time.Now(),
	})
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, "Reset your Bluehex password", msg.Subject)
	assert.Contains(t, msg.Text, "Hi Alice,")
	assert.Contains(t, msg.Text, "https://auth.example.com/reset-password?token=tok")
	assert.Contains(t, msg.HTML, `href="https://auth.example.com/reset-password?token=tok"`)
}

func TestComposer_EscapesHTML(t *testing.T) {
	c := NewComposer("Bluehex", "https://auth.example.com")

	msg, err := c.Compose(Event{Kind: KindWelcome, Email: "x@example.com", FirstName: "<script>"})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
	assert.Contains(t, msg.HTML, "&lt;script&gt;")
}

func TestComposer_AllKinds(t *testing.T) {
	c := NewComposer("Bluehex", "https://auth.example.com")

	for _, kind := range []Kind{KindWelcome, KindLogin, KindPasswordChanged} {
		msg, err := c.Compose(Event{Kind: kind, Email: "x@example.com"})
		require.NoError(t, err, kind)
		assert.NotEmpty(t, msg.Subject, kind)
		assert.Contains(t, msg.Text, "Hi there,", kind)
		assert.NotContains(t, msg.Text, "token=", kind)
	}
}

func TestComposer_InvalidEvents(t *testing.T) {
	c := NewComposer("Bluehex", "https://auth.example.com")

	_, err := c.Compose(Event{Kind: KindPasswordReset, Email: "x@example.com"})
	assert.Error(t, err, "reset without token")

	_, err = c.Compose(Event{Kind: "sms", Email: "x@example.com"})
	assert.Error(t, err)

	_, err = c.Compose(Event{Kind: KindWelcome})
	assert.Error(t, err)
}
