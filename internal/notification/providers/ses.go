package providers

import (
	"context"
	"fmt"

	"notification-platform/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAPI is the subset of *ses.Client used here.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SESProvider struct {
	client SESAPI
	logger logger.Logger
}

func NewSESProvider(client SESAPI, log logger.Logger) *SESProvider {
	return &SESProvider{client: client, logger: log}
}

func (p *SESProvider) Name() string { return "ses" }

func (p *SESProvider) SendEmail(ctx context.Context, msg EmailMessage) (out DeliveryOutcome) {
	defer guard(p.Name(), &out)

	body := &types.Body{}
	if msg.Text != "" {
		body.Text = &types.Content{Data: aws.String(msg.Text), Charset: aws.String("UTF-8")}
	}
	if msg.HTML != "" {
		body.Html = &types.Content{Data: aws.String(msg.HTML), Charset: aws.String("UTF-8")}
	}

	input := &ses.SendEmailInput{
		Source: aws.String(msg.From),
		Destination: &types.Destination{
			ToAddresses:  msg.To,
			CcAddresses:  msg.Cc,
			BccAddresses: msg.Bcc,
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
			Body:    body,
		},
	}
	if msg.ReplyTo != "" {
		input.ReplyToAddresses = []string{msg.ReplyTo}
	}
	if msg.Tag != "" {
		input.Tags = []types.MessageTag{{Name: aws.String("type"), Value: aws.String(msg.Tag)}}
	}

	resp, err := p.client.SendEmail(ctx, input)
	if err != nil {
		p.logger.Warn("SES send failed", map[string]interface{}{"to": msg.To, "error": err})
		return failed(fmt.Errorf("ses: %w", err))
	}
	return succeeded(aws.ToString(resp.MessageId))
}
