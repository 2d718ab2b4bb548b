package dispatch

import (
	"context"
	"strings"
	"time"

	apperrors "notification-platform/internal/common/errors"
	"notification-platform/internal/common/logger"
	"notification-platform/internal/models"
	"notification-platform/internal/notification/records"
	"notification-platform/internal/notification/templates"
)

// TemplateLookup resolves an active template by name.
type TemplateLookup interface {
	Get(ctx context.Context, name string) (*models.Template, bool, error)
}

// HistoryStore is the read side of the record store.
type HistoryStore interface {
	List(ctx context.Context, ch models.Channel, q records.HistoryQuery) ([]models.NotificationRecord, error)
	Count(ctx context.Context, ch models.Channel, q records.HistoryQuery) (int, error)
	CountSince(ctx context.Context, ch models.Channel, since time.Time) (int, error)
}

// CreateNotificationRequest is the channel-agnostic entry point. Type is the
// channel; Category ends up as the record's business type.
type CreateNotificationRequest struct {
	Type         models.Channel         `json:"type"`
	Recipient    string                 `json:"recipient"`
	Subject      string                 `json:"subject,omitempty"`
	Content      string                 `json:"content,omitempty"`
	Priority     models.Priority        `json:"priority,omitempty"`
	Template     string                 `json:"template,omitempty"`
	TemplateData map[string]interface{} `json:"templateData,omitempty"`
	ScheduledAt  *time.Time             `json:"scheduledAt,omitempty"`
	Category     string                 `json:"category,omitempty"`
	UserID       string                 `json:"userId,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

const defaultSubject = "Notification"

type NotificationService struct {
	email     *EmailService
	sms       *SMSService
	templates TemplateLookup
	records   RecordStore
	history   HistoryStore
	logger    logger.Logger
	now       func() time.Time
}

func NewNotificationService(email *EmailService, sms *SMSService, tmpl TemplateLookup, store interface {
	RecordStore
	HistoryStore
}, log logger.Logger) *NotificationService {
	return &NotificationService{
		email:     email,
		sms:       sms,
		templates: tmpl,
		records:   store,
		history:   store,
		logger:    log.WithFields(map[string]interface{}{"service": "notification"}),
		now:       time.Now,
	}
}

// Create resolves and renders the named template, then sends through the
// channel's single-send path. A future ScheduledAt stores a pending record
// for the scheduler instead of sending.
func (s *NotificationService) Create(ctx context.Context, req CreateNotificationRequest) (DeliveryResult, error) {
	if req.Type != models.ChannelEmail && req.Type != models.ChannelSMS {
		err := apperrors.NewUnsupportedChannelError(string(req.Type))
		return DeliveryResult{Success: false, Error: err.Message}, err
	}
	if strings.TrimSpace(req.Recipient) == "" {
		err := apperrors.NewValidationError("recipient is required")
		return DeliveryResult{Success: false, Error: err.Details}, err
	}

	subject, content, err := s.resolveContent(ctx, req)
	if err != nil {
		return DeliveryResult{Success: false, Error: apperrors.Normalize(err).Message}, err
	}

	if req.ScheduledAt != nil && req.ScheduledAt.After(s.now()) {
		return s.schedule(ctx, req, subject, content)
	}

	switch req.Type {
	case models.ChannelEmail:
		return s.email.Send(ctx, EmailRequest{
			To:           []string{req.Recipient},
			Subject:      subject,
			HTML:         content,
			Template:     req.Template,
			TemplateData: req.TemplateData,
			Priority:     req.Priority,
			Type:         req.Category,
			UserID:       req.UserID,
			Metadata:     req.Metadata,
		})
	default:
		return s.sms.Send(ctx, SMSRequest{
			To:           req.Recipient,
			Message:      content,
			Template:     req.Template,
			TemplateData: req.TemplateData,
			Priority:     req.Priority,
			Type:         req.Category,
			UserID:       req.UserID,
			Metadata:     req.Metadata,
		})
	}
}

// resolveContent renders the template when one is named and active. A
// missing template falls back to the request's own content; with no content
// at all it is TEMPLATE_NOT_FOUND.
func (s *NotificationService) resolveContent(ctx context.Context, req CreateNotificationRequest) (string, string, error) {
	subject, content := req.Subject, req.Content

	if req.Template != "" {
		tmpl, found, err := s.templates.Get(ctx, req.Template)
		if err != nil {
			return "", "", err
		}
		switch {
		case found:
			content = templates.Render(tmpl.Content, req.TemplateData)
			if tmpl.Subject != "" && req.Type == models.ChannelEmail {
				subject = templates.Render(tmpl.Subject, req.TemplateData)
			}
		case strings.TrimSpace(content) == "":
			return "", "", apperrors.NewTemplateNotFoundError(req.Template)
		default:
			s.logger.Warn("Template not found, using request content", map[string]interface{}{"template": req.Template})
		}
	}

	if strings.TrimSpace(content) == "" {
		return "", "", apperrors.NewValidationError("content is required when no template is given")
	}
	if subject == "" {
		subject = defaultSubject
	}
	return subject, content, nil
}

func (s *NotificationService) schedule(ctx context.Context, req CreateNotificationRequest, subject, content string) (DeliveryResult, error) {
	at := req.ScheduledAt.UTC()
	record := &models.NotificationRecord{
		Channel:      req.Type,
		UserID:       req.UserID,
		Recipient:    req.Recipient,
		Type:         req.Category,
		Content:      content,
		Template:     req.Template,
		TemplateData: req.TemplateData,
		Priority:     req.Priority,
		ScheduledAt:  &at,
		Metadata:     req.Metadata,
	}

	var err error
	if req.Type == models.ChannelEmail {
		err = EmailRequest{To: []string{req.Recipient}, Subject: subject, HTML: content, Priority: req.Priority}.Validate()
		record.Subject = subject
		record.HTMLContent = content
		record.Provider = s.email.ProviderName()
	} else {
		err = SMSRequest{To: req.Recipient, Message: content, Priority: req.Priority}.Validate()
		record.Provider = s.sms.ProviderName()
	}
	if err != nil {
		return DeliveryResult{Success: false, Error: apperrors.Normalize(err).Details}, err
	}

	if err := s.records.Create(ctx, record); err != nil {
		return DeliveryResult{Success: false, Error: apperrors.Normalize(err).Message}, err
	}
	s.logger.Info("Notification scheduled", map[string]interface{}{
		"notificationId": record.ID,
		"channel":        string(req.Type),
		"scheduledAt":    at,
	})
	return DeliveryResult{Success: true, NotificationID: record.ID, Scheduled: true}, nil
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

type History struct {
	Emails     []models.NotificationRecord `json:"emails"`
	SMS        []models.NotificationRecord `json:"sms"`
	Pagination Pagination                  `json:"pagination"`
}

// History returns the same page of both channels, newest first, and the
// combined total for the filter.
func (s *NotificationService) History(ctx context.Context, q records.HistoryQuery) (*History, error) {
	q = q.Normalize()

	emails, err := s.history.List(ctx, models.ChannelEmail, q)
	if err != nil {
		return nil, err
	}
	sms, err := s.history.List(ctx, models.ChannelSMS, q)
	if err != nil {
		return nil, err
	}
	emailTotal, err := s.history.Count(ctx, models.ChannelEmail, q)
	if err != nil {
		return nil, err
	}
	smsTotal, err := s.history.Count(ctx, models.ChannelSMS, q)
	if err != nil {
		return nil, err
	}

	return &History{
		Emails:     emails,
		SMS:        sms,
		Pagination: Pagination{Page: q.Page, Limit: q.Limit, Total: emailTotal + smsTotal},
	}, nil
}

type HealthStatus struct {
	Database      string         `json:"database"`
	Notifications map[string]int `json:"notifications,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// Health counts records created in the last 24 hours. A store error reports
// the database as disconnected instead of failing.
func (s *NotificationService) Health(ctx context.Context) HealthStatus {
	since := s.now().Add(-24 * time.Hour)

	emails, err := s.history.CountSince(ctx, models.ChannelEmail, since)
	if err == nil {
		var sms int
		sms, err = s.history.CountSince(ctx, models.ChannelSMS, since)
		if err == nil {
			return HealthStatus{
				Database:      "connected",
				Notifications: map[string]int{"emails_24h": emails, "sms_24h": sms},
			}
		}
	}
	return HealthStatus{Database: "disconnected", Error: err.Error()}
}
