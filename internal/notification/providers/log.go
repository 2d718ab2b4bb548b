package providers

import (
	"context"

	"notification-platform/internal/common/logger"

	"github.com/google/uuid"
)

// LogProvider writes messages to the log and always succeeds. It serves
// both channels in local development.
type LogProvider struct {
	logger logger.Logger
}

func NewLogProvider(log logger.Logger) *LogProvider {
	return &LogProvider{logger: log}
}

func (p *LogProvider) Name() string { return "log" }

func (p *LogProvider) SendEmail(_ context.Context, msg EmailMessage) DeliveryOutcome {
	id := "log-" + uuid.NewString()
	p.logger.Info("Email (log provider)", map[string]interface{}{
		"messageId": id,
		"to":        msg.To,
		"subject":   msg.Subject,
	})
	return succeeded(id)
}

func (p *LogProvider) SendSMS(_ context.Context, msg SMSMessage) DeliveryOutcome {
	id := "log-" + uuid.NewString()
	p.logger.Info("SMS (log provider)", map[string]interface{}{
		"messageId": id,
		"to":        msg.To,
		"length":    len(msg.Body),
	})
	return succeeded(id)
}
