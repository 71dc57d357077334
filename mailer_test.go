package activation_test

import (
	"context"
	"testing"

	activation "github.com/goliatone/go-activation"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailActivationLink(t *testing.T) {
	ctx := context.Background()
	outbox := &capturingMailer{}
	mailer := newTestMailer(t, outbox)

	userID := uuid.New()
	key := "abcdef0123456789abcdef0123456789abcdef01"

	err := mailer.MailActivationLink(ctx,
		&activation.User{ID: userID, Username: "alice", Email: "alice@example.com"},
		&activation.ActivationToken{UserID: &userID, Token: key},
	)
	require.NoError(t, err)

	sent := outbox.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "alice@example.com", sent[0].To)
	assert.Equal(t, "noreply@example.com", sent[0].From)
	assert.Equal(t, "Your account at Example", sent[0].Subject)
	assert.Contains(t, sent[0].Body, "https://example.com/activate/"+key)
	assert.Contains(t, sent[0].Body, "30 days")
}

func TestMailCredentials(t *testing.T) {
	ctx := context.Background()
	outbox := &capturingMailer{}
	mailer := newTestMailer(t, outbox)

	err := mailer.MailCredentials(ctx,
		&activation.User{Username: "bob", Email: "bob@example.com"},
		"swordfish-123",
	)
	require.NoError(t, err)

	sent := outbox.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "bob@example.com", sent[0].To)
	assert.Contains(t, sent[0].Body, "username: bob")
	assert.Contains(t, sent[0].Body, "password: swordfish-123")
}

// Header injection through a configured value must not survive into
// the subject line.
func TestMailSubjectStripsNewlines(t *testing.T) {
	ctx := context.Background()
	outbox := &capturingMailer{}

	mailer, err := activation.NewActivationMailer(outbox, &activation.ActivationConfig{
		SiteName:   "Example\r\nBcc: victim@example.com",
		MailSender: "noreply@example.com",
	})
	require.NoError(t, err)
	mailer = mailer.WithRenderer(stubRenderer{}).WithLogger(testLogger{})

	err = mailer.MailCredentials(ctx,
		&activation.User{Username: "bob", Email: "bob@example.com"},
		"swordfish-123",
	)
	require.NoError(t, err)

	sent := outbox.messages()
	require.Len(t, sent, 1)
	assert.NotContains(t, sent[0].Subject, "\n")
	assert.NotContains(t, sent[0].Subject, "\r")
}

func TestPrintMailer(t *testing.T) {
	mailer := activation.PrintMailer{Logger: testLogger{}}

	err := mailer.Send(context.Background(), activation.MailMessage{
		To:      "alice@example.com",
		Subject: "hello",
		Body:    "world",
	})
	assert.NoError(t, err)
}
