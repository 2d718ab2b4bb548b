package providers

import (
	"context"
	"fmt"
	"strings"

	commonaws "notification-platform/internal/common/aws"
	"notification-platform/internal/common/config"
	"notification-platform/internal/common/logger"
)

// NewEmailProvider builds the email provider named by cfg.Email.Provider.
// It is called once at startup.
func NewEmailProvider(ctx context.Context, cfg *config.Config, log logger.Logger) (EmailProvider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Email.Provider))
	log = log.WithFields(map[string]interface{}{"channel": "email", "provider": name})

	switch name {
	case "smtp":
		smtpCfg := cfg.Providers.SMTP
		return NewSMTPProvider(SMTPConfig{
			Host:     smtpCfg.Host,
			Port:     smtpCfg.Port,
			Username: smtpCfg.Username,
			Password: smtpCfg.Password,
			UseTLS:   smtpCfg.UseTLS,
			Timeout:  config.GetDuration(smtpCfg.Timeout),
		}, log)
	case "ses":
		client, err := commonaws.NewSESClient(ctx, cfg.Providers.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
		return NewSESProvider(client, log), nil
	case "sendgrid":
		return NewSendGridProvider(cfg.Providers.SendGrid.APIKey, log)
	case "postmark":
		pm := cfg.Providers.Postmark
		return NewPostmarkProvider(pm.ServerToken, pm.AccountToken, config.GetDuration(pm.Timeout), log)
	case "log":
		return NewLogProvider(log), nil
	}
	return nil, fmt.Errorf("unknown email provider %q (want smtp, ses, sendgrid, postmark or log)", cfg.Email.Provider)
}

// NewSMSProvider builds the SMS provider named by cfg.SMS.Provider.
func NewSMSProvider(ctx context.Context, cfg *config.Config, log logger.Logger) (SMSProvider, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.SMS.Provider))
	log = log.WithFields(map[string]interface{}{"channel": "sms", "provider": name})

	switch name {
	case "twilio":
		tw := cfg.Providers.Twilio
		return NewTwilioProvider(tw.AccountSID, tw.AuthToken, tw.PhoneNumber, log)
	case "sns":
		client, err := commonaws.NewSNSClient(ctx, cfg.Providers.AWS.Region)
		if err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
		return NewSNSProvider(client, cfg.Providers.AWS.DefaultSMSSenderID, log), nil
	case "log":
		return NewLogProvider(log), nil
	}
	return nil, fmt.Errorf("unknown sms provider %q (want twilio, sns or log)", cfg.SMS.Provider)
}
