package providers

import (
	"context"
	"fmt"

	"notification-platform/internal/common/logger"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// twilioMessages is satisfied by *openapi.ApiService.
type twilioMessages interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

type TwilioProvider struct {
	api    twilioMessages
	from   string
	logger logger.Logger
}

func NewTwilioProvider(accountSID, authToken, from string, log logger.Logger) (*TwilioProvider, error) {
	if accountSID == "" || authToken == "" {
		return nil, fmt.Errorf("twilio account sid and auth token are required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioProvider{api: client.Api, from: from, logger: log}, nil
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) SendSMS(ctx context.Context, msg SMSMessage) (out DeliveryOutcome) {
	defer guard(p.Name(), &out)

	if err := ctx.Err(); err != nil {
		return failed(fmt.Errorf("context cancelled before sending sms: %w", err))
	}

	from := p.from
	if msg.From != "" {
		from = msg.From
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetFrom(from)
	params.SetBody(msg.Body)

	resp, err := p.api.CreateMessage(params)
	if err != nil {
		p.logger.Warn("Twilio send failed", map[string]interface{}{"to": msg.To, "error": err})
		return failed(fmt.Errorf("twilio: %w", err))
	}
	if resp.Sid == nil {
		return failed(fmt.Errorf("twilio: response without message sid"))
	}
	return succeeded(*resp.Sid)
}
