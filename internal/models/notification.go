// internal/models/notification.go
package models

import (
	"strings"
	"time"
)

// Channel is the delivery medium of a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// Status is the lifecycle state of one send attempt.
type Status string

const (
	StatusPending     Status = "pending"
	StatusSent        Status = "sent"
	StatusDelivered   Status = "delivered"
	StatusFailed      Status = "failed"
	StatusRetry       Status = "retry"
	StatusBounced     Status = "bounced"
	StatusUndelivered Status = "undelivered"
)

// Valid reports whether s is a status the channel can hold. Email never
// reaches delivered/undelivered; SMS is never bounced.
func (s Status) Valid(ch Channel) bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed, StatusRetry:
		return true
	case StatusBounced:
		return ch == ChannelEmail
	case StatusDelivered, StatusUndelivered:
		return ch == ChannelSMS
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// UnknownProviderError is stored when a provider fails without a message.
const UnknownProviderError = "unknown provider error"

// NotificationRecord is the persisted trace of a single send attempt.
// Email records keep every To address comma-joined in Recipient.
type NotificationRecord struct {
	ID                string                 `json:"id"`
	Channel           Channel                `json:"channel"`
	UserID            string                 `json:"userId,omitempty"`
	Recipient         string                 `json:"recipient"`
	CC                []string               `json:"cc,omitempty"`
	BCC               []string               `json:"bcc,omitempty"`
	Sender            string                 `json:"from,omitempty"`
	Type              string                 `json:"type"`
	Subject           string                 `json:"subject,omitempty"`
	Content           string                 `json:"content"`
	HTMLContent       string                 `json:"htmlContent,omitempty"`
	Template          string                 `json:"template,omitempty"`
	TemplateData      map[string]interface{} `json:"templateData,omitempty"`
	Status            Status                 `json:"status"`
	Priority          Priority               `json:"priority"`
	Provider          string                 `json:"provider,omitempty"`
	ProviderMessageID string                 `json:"providerMessageId,omitempty"`
	ErrorMessage      string                 `json:"errorMessage,omitempty"`
	RetryCount        int                    `json:"retryCount"`
	ScheduledAt       *time.Time             `json:"scheduledAt,omitempty"`
	SentAt            *time.Time             `json:"sentAt,omitempty"`
	DeliveredAt       *time.Time             `json:"deliveredAt,omitempty"`
	BouncedAt         *time.Time             `json:"bouncedAt,omitempty"`
	Metadata          map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt         time.Time              `json:"createdAt"`
	UpdatedAt         time.Time              `json:"updatedAt"`
}

// Recipients splits Recipient back into addresses.
func (r *NotificationRecord) Recipients() []string {
	if r.Recipient == "" {
		return nil
	}
	parts := strings.Split(r.Recipient, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// JoinRecipients is the inverse of Recipients.
func JoinRecipients(to []string) string {
	return strings.Join(to, ",")
}

// MarkSent moves the record to sent. SentAt is always set with the status.
func (r *NotificationRecord) MarkSent(providerMessageID string, at time.Time) {
	r.Status = StatusSent
	r.ProviderMessageID = providerMessageID
	r.SentAt = &at
	r.ErrorMessage = ""
	r.UpdatedAt = at
}

// MarkFailed moves the record to failed with a non-empty error message and
// counts the attempt.
func (r *NotificationRecord) MarkFailed(errMsg string, at time.Time) {
	if strings.TrimSpace(errMsg) == "" {
		errMsg = UnknownProviderError
	}
	r.Status = StatusFailed
	r.ErrorMessage = errMsg
	r.RetryCount++
	r.UpdatedAt = at
}

// MarkDelivered records a provider delivery receipt (SMS).
func (r *NotificationRecord) MarkDelivered(at time.Time) {
	if r.SentAt == nil {
		r.SentAt = &at
	}
	r.Status = StatusDelivered
	r.DeliveredAt = &at
	r.UpdatedAt = at
}

// MarkBounced records a hard bounce (email).
func (r *NotificationRecord) MarkBounced(reason string, at time.Time) {
	r.Status = StatusBounced
	r.BouncedAt = &at
	if reason != "" {
		r.ErrorMessage = reason
	}
	r.UpdatedAt = at
}

// IsDue reports whether a scheduled pending record should be sent at now.
func (r *NotificationRecord) IsDue(now time.Time) bool {
	return r.Status == StatusPending && r.ScheduledAt != nil && !r.ScheduledAt.After(now)
}

// CheckInvariants verifies the status/timestamp coupling.
func (r *NotificationRecord) CheckInvariants() []string {
	var problems []string
	if (r.Status == StatusSent || r.Status == StatusDelivered) && r.SentAt == nil {
		problems = append(problems, "sent/delivered record without sentAt")
	}
	if r.Status == StatusFailed && r.ErrorMessage == "" {
		problems = append(problems, "failed record without errorMessage")
	}
	if r.Status == StatusDelivered && r.DeliveredAt == nil {
		problems = append(problems, "delivered record without deliveredAt")
	}
	if r.Status == StatusBounced && r.BouncedAt == nil {
		problems = append(problems, "bounced record without bouncedAt")
	}
	if r.Status != "" && !r.Status.Valid(r.Channel) {
		problems = append(problems, "status "+string(r.Status)+" is not valid for channel "+string(r.Channel))
	}
	return problems
}
