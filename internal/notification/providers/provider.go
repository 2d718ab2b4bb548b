// Package providers delivers a rendered message through one external email or
// SMS service. Providers never return Go errors: every failure is reported in
// the DeliveryOutcome.
package providers

import (
	"context"
	"fmt"

	"notification-platform/internal/models"
)

type EmailMessage struct {
	From     string
	To       []string
	Cc       []string
	Bcc      []string
	ReplyTo  string
	Subject  string
	Text     string
	HTML     string
	Priority models.Priority
	Tag      string
}

type SMSMessage struct {
	From string
	To   string
	Body string
}

// DeliveryOutcome is what a provider reports for one send.
type DeliveryOutcome struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"messageId,omitempty"`
	Error             string `json:"error,omitempty"`
}

type EmailProvider interface {
	Name() string
	SendEmail(ctx context.Context, msg EmailMessage) DeliveryOutcome
}

type SMSProvider interface {
	Name() string
	SendSMS(ctx context.Context, msg SMSMessage) DeliveryOutcome
}

func succeeded(id string) DeliveryOutcome {
	return DeliveryOutcome{Success: true, ProviderMessageID: id}
}

func failed(err error) DeliveryOutcome {
	msg := models.UnknownProviderError
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return DeliveryOutcome{Success: false, Error: msg}
}

// guard turns a panic inside an SDK call into a failed outcome.
func guard(provider string, out *DeliveryOutcome) {
	if r := recover(); r != nil {
		*out = failed(fmt.Errorf("%s: panic during send: %v", provider, r))
	}
}
