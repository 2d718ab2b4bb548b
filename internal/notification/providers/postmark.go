package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	commonhttp "notification-platform/internal/common/http"
	"notification-platform/internal/common/logger"

	"github.com/mrz1836/postmark"
)

type PostmarkProvider struct {
	client *postmark.Client
	logger logger.Logger
}

func NewPostmarkProvider(serverToken, accountToken string, timeout time.Duration, log logger.Logger) (*PostmarkProvider, error) {
	if serverToken == "" {
		return nil, fmt.Errorf("postmark server token is required")
	}
	client := postmark.NewClient(serverToken, accountToken)
	client.HTTPClient = commonhttp.NewClient(timeout)
	return &PostmarkProvider{client: client, logger: log}, nil
}

func (p *PostmarkProvider) Name() string { return "postmark" }

func (p *PostmarkProvider) SendEmail(ctx context.Context, msg EmailMessage) (out DeliveryOutcome) {
	defer guard(p.Name(), &out)

	resp, err := p.client.SendEmail(ctx, postmark.Email{
		From:       msg.From,
		To:         strings.Join(msg.To, ","),
		Cc:         strings.Join(msg.Cc, ","),
		Bcc:        strings.Join(msg.Bcc, ","),
		ReplyTo:    msg.ReplyTo,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.HTML,
		TextBody:   msg.Text,
		TrackOpens: msg.HTML != "",
	})
	if err != nil {
		p.logger.Warn("Postmark send failed", map[string]interface{}{"to": msg.To, "error": err})
		return failed(fmt.Errorf("postmark: %w", err))
	}
	if resp.ErrorCode > 0 {
		return failed(fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return succeeded(resp.MessageID)
}
