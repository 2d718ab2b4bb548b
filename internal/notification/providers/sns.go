package providers

import (
	"context"
	"fmt"

	commonaws "notification-platform/internal/common/aws"
	"notification-platform/internal/common/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSAPI is the subset of *sns.Client used here.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type SNSProvider struct {
	client   SNSAPI
	senderID string
	logger   logger.Logger
}

func NewSNSProvider(client SNSAPI, senderID string, log logger.Logger) *SNSProvider {
	return &SNSProvider{client: client, senderID: senderID, logger: log}
}

func (p *SNSProvider) Name() string { return "sns" }

func (p *SNSProvider) SendSMS(ctx context.Context, msg SMSMessage) (out DeliveryOutcome) {
	defer guard(p.Name(), &out)

	resp, err := p.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(msg.To),
		Message:           aws.String(msg.Body),
		MessageAttributes: commonaws.SMSAttributes(p.senderID),
	})
	if err != nil {
		p.logger.Warn("SNS publish failed", map[string]interface{}{"to": msg.To, "error": err})
		return failed(fmt.Errorf("sns: %w", err))
	}
	return succeeded(aws.ToString(resp.MessageId))
}
