package channel

import (
	"context"
	"fmt"

	"github.com/rivetr/rivetr/internal/enum"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailChannel delivers notifications via SendGrid. One EmailChannel is
// constructed process-wide from the API key/from-address in config; the
// per-NotificationChannel row only supplies the recipient list.
type EmailChannel struct {
	fromEmail  string
	fromName   string
	client     *sendgrid.Client
	recipients []string
}

// EmailConfig holds the process-wide SendGrid credentials.
type EmailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewEmailChannel constructs an EmailChannel. recipients is used for any
// Message that carries no Recipients of its own; the dispatcher fills a
// Message's Recipients from the email NotificationChannel row's Config JSON.
func NewEmailChannel(cfg EmailConfig, recipients []string) (*EmailChannel, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sendgrid API key is required")
	}
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("from email is required")
	}
	return &EmailChannel{
		fromEmail:  cfg.FromEmail,
		fromName:   cfg.FromName,
		client:     sendgrid.NewSendClient(cfg.APIKey),
		recipients: recipients,
	}, nil
}

func (c *EmailChannel) Type() enum.ChannelType { return enum.ChannelTypeEmail }

func (c *EmailChannel) Send(ctx context.Context, msg Message) error {
	recipients := msg.Recipients
	if len(recipients) == 0 {
		recipients = c.recipients
	}
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	from := mail.NewEmail(c.fromName, c.fromEmail)

	personalization := mail.NewPersonalization()
	for _, recipient := range recipients {
		personalization.AddTos(mail.NewEmail("", recipient))
	}

	m := mail.NewV3Mail()
	m.SetFrom(from)
	m.Subject = msg.Subject
	m.AddPersonalizations(personalization)

	if msg.Body != "" {
		m.AddContent(mail.NewContent("text/plain", msg.Body))
	}
	if msg.HTMLBody != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTMLBody))
	}

	response, err := c.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}
	return nil
}

func (c *EmailChannel) Test(ctx context.Context, recipient string) error {
	if recipient == "" {
		recipient = c.fromEmail
	}
	return c.Send(ctx, Message{
		Subject:    "Rivetr - Notification Channel Test",
		Body:       "Your notification channel has been configured successfully. You will receive alerts at this address when a monitored threshold is breached.",
		Recipients: []string{recipient},
	})
}
