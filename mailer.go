package activation

import (
	"context"
	"fmt"
	"io"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-template"
)

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, msg MailMessage) error

// Send implements Mailer.
func (f MailerFunc) Send(ctx context.Context, msg MailMessage) error {
	if f == nil {
		return nil
	}
	return f(ctx, msg)
}

// TemplateRenderer renders a template source with the given context.
// go-template's Renderer satisfies it.
type TemplateRenderer interface {
	RenderString(tpl string, data any, out ...io.Writer) (string, error)
}

const subjectTemplate = `Your account at {{ site_name }}`

const activationBodyTemplate = `You are receiving this email because an account was created for you
at {{ site_name }}.

Visit the link below within {{ expiration_days }} days to choose a
password and activate the account:

{{ activation_url }}/{{ activation_key }}

If this was not meant for you, ignore this message and the account
will never become active.`

const credentialsBodyTemplate = `An account was created for you at {{ site_name }}.

You can sign in with the following credentials:

    username: {{ username }}
    password: {{ password }}`

// ActivationMailer composes the two outbound notices of the flow: the
// activation link notice for pending accounts and the credentials
// notice for accounts created with a known password.
type ActivationMailer struct {
	mailer   Mailer
	renderer TemplateRenderer
	config   Config
	logger   Logger
}

// NewActivationMailer creates a mailer with a default template renderer.
func NewActivationMailer(mailer Mailer, config Config) (*ActivationMailer, error) {
	renderer, err := template.NewRenderer()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize template renderer")
	}

	return &ActivationMailer{
		mailer:   mailer,
		renderer: renderer,
		config:   config,
		logger:   defLogger{},
	}, nil
}

// WithRenderer overrides the template renderer.
func (m *ActivationMailer) WithRenderer(renderer TemplateRenderer) *ActivationMailer {
	if renderer != nil {
		m.renderer = renderer
	}
	return m
}

// WithLogger overrides the logger used by the mailer.
func (m *ActivationMailer) WithLogger(logger Logger) *ActivationMailer {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// MailActivationLink sends the activation notice for a pending account.
func (m *ActivationMailer) MailActivationLink(ctx context.Context, user *User, token *ActivationToken) error {
	body, err := m.renderer.RenderString(activationBodyTemplate, map[string]any{
		"site_name":       m.config.GetSiteName(),
		"expiration_days": m.config.GetActivationDays(),
		"activation_url":  strings.TrimRight(m.config.GetActivationURL(), "/"),
		"activation_key":  token.Token,
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render activation email")
	}

	return m.send(ctx, user.Email, body)
}

// MailCredentials sends the credentials notice for an account created
// with an explicit password.
func (m *ActivationMailer) MailCredentials(ctx context.Context, user *User, password string) error {
	body, err := m.renderer.RenderString(credentialsBodyTemplate, map[string]any{
		"site_name": m.config.GetSiteName(),
		"username":  user.Username,
		"password":  password,
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render credentials email")
	}

	return m.send(ctx, user.Email, body)
}

func (m *ActivationMailer) send(ctx context.Context, to, body string) error {
	subject, err := m.renderer.RenderString(subjectTemplate, map[string]any{
		"site_name": m.config.GetSiteName(),
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render email subject")
	}

	msg := MailMessage{
		To:      to,
		From:    m.config.GetMailSender(),
		Subject: stripNewlines(subject),
		Body:    body,
	}

	if err := m.mailer.Send(ctx, msg); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to dispatch notification email")
	}

	return nil
}

// Email subjects must not contain newlines.
func stripNewlines(s string) string {
	return strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == '\n' || r == '\r'
	}), " ")
}

// PrintMailer writes messages to the logger, useful in development.
type PrintMailer struct {
	Logger Logger
}

// Send implements Mailer.
func (p PrintMailer) Send(_ context.Context, msg MailMessage) error {
	logger := p.Logger
	if logger == nil {
		logger = defLogger{}
	}
	logger.Info(fmt.Sprintf("mail to=%s subject=%q\n%s", msg.To, msg.Subject, msg.Body))
	return nil
}
