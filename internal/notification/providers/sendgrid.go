package providers

import (
	"context"
	"fmt"
	netmail "net/mail"

	"notification-platform/internal/common/logger"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// sendgridSender is satisfied by *sendgrid.Client.
type sendgridSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

type SendGridProvider struct {
	client sendgridSender
	logger logger.Logger
}

func NewSendGridProvider(apiKey string, log logger.Logger) (*SendGridProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	return &SendGridProvider{client: sendgrid.NewSendClient(apiKey), logger: log}, nil
}

func (p *SendGridProvider) Name() string { return "sendgrid" }

func (p *SendGridProvider) SendEmail(ctx context.Context, msg EmailMessage) (out DeliveryOutcome) {
	defer guard(p.Name(), &out)

	m := mail.NewV3Mail()
	m.SetFrom(toSendGridEmail(msg.From))
	m.Subject = msg.Subject
	if msg.ReplyTo != "" {
		m.SetReplyTo(toSendGridEmail(msg.ReplyTo))
	}

	personalization := mail.NewPersonalization()
	for _, addr := range msg.To {
		personalization.AddTos(toSendGridEmail(addr))
	}
	for _, addr := range msg.Cc {
		personalization.AddCCs(toSendGridEmail(addr))
	}
	for _, addr := range msg.Bcc {
		personalization.AddBCCs(toSendGridEmail(addr))
	}
	m.AddPersonalizations(personalization)

	// text/plain must precede text/html.
	if msg.Text != "" {
		m.AddContent(mail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		m.AddContent(mail.NewContent("text/html", msg.HTML))
	}
	if msg.Tag != "" {
		m.AddCategories(msg.Tag)
	}

	resp, err := p.client.SendWithContext(ctx, m)
	if err != nil {
		p.logger.Warn("SendGrid send failed", map[string]interface{}{"to": msg.To, "error": err})
		return failed(fmt.Errorf("sendgrid: %w", err))
	}
	if resp.StatusCode >= 300 {
		return failed(fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body))
	}

	var id string
	if values := resp.Headers["X-Message-Id"]; len(values) > 0 {
		id = values[0]
	}
	return succeeded(id)
}

func toSendGridEmail(s string) *mail.Email {
	if addr, err := netmail.ParseAddress(s); err == nil {
		return mail.NewEmail(addr.Name, addr.Address)
	}
	return mail.NewEmail("", s)
}
