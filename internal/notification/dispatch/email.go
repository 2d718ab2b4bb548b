package dispatch

import (
	"context"
	"strings"
	"time"

	apperrors "notification-platform/internal/common/errors"
	"notification-platform/internal/common/logger"
	"notification-platform/internal/common/metrics"
	"notification-platform/internal/common/observability"
	"notification-platform/internal/common/validation"
	"notification-platform/internal/models"
	"notification-platform/internal/notification/providers"
)

type EmailRequest struct {
	To           []string               `json:"to"`
	Cc           []string               `json:"cc,omitempty"`
	Bcc          []string               `json:"bcc,omitempty"`
	From         string                 `json:"from,omitempty"`
	ReplyTo      string                 `json:"replyTo,omitempty"`
	Subject      string                 `json:"subject"`
	Text         string                 `json:"text,omitempty"`
	HTML         string                 `json:"html,omitempty"`
	Template     string                 `json:"template,omitempty"`
	TemplateData map[string]interface{} `json:"templateData,omitempty"`
	Priority     models.Priority        `json:"priority,omitempty"`
	Type         string                 `json:"type,omitempty"`
	UserID       string                 `json:"userId,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks the request shape before any record is written.
func (r EmailRequest) Validate() error {
	var problems []string
	if len(r.To) == 0 {
		problems = append(problems, "at least one recipient is required")
	}
	for _, list := range []struct {
		field string
		addrs []string
	}{{"to", r.To}, {"cc", r.Cc}, {"bcc", r.Bcc}} {
		if err := validation.ValidateEmails(list.field, list.addrs); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if r.ReplyTo != "" && !validation.ValidateEmail(r.ReplyTo) {
		problems = append(problems, "replyTo is not a valid email address")
	}
	if strings.TrimSpace(r.Subject) == "" {
		problems = append(problems, "subject is required")
	}
	if r.Text == "" && r.HTML == "" {
		problems = append(problems, "text or html body is required")
	}
	if r.Priority != "" && !r.Priority.Valid() {
		problems = append(problems, "unknown priority "+string(r.Priority))
	}
	if len(problems) > 0 {
		return apperrors.NewValidationError(strings.Join(problems, "; "))
	}
	return nil
}

type EmailSettings struct {
	From       string
	BatchSize  int
	BatchDelay time.Duration
}

type EmailService struct {
	provider providers.EmailProvider
	settings EmailSettings
	recorder
	sleep sleeper
}

func NewEmailService(provider providers.EmailProvider, records RecordStore, settings EmailSettings, log logger.Logger, obs *observability.Observability) *EmailService {
	if settings.BatchSize <= 0 {
		settings.BatchSize = 10
	}
	return &EmailService{
		provider: provider,
		settings: settings,
		recorder: recorder{
			channel: models.ChannelEmail,
			records: records,
			logger:  log.WithFields(map[string]interface{}{"service": "email"}),
			obs:     obs,
			now:     time.Now,
		},
		sleep: sleepContext,
	}
}

func (s *EmailService) ProviderName() string { return s.provider.Name() }

// Send validates req, writes one record, calls the provider and marks the
// record sent or failed. A provider failure returns the failed result
// together with a PROVIDER_ERROR.
func (s *EmailService) Send(ctx context.Context, req EmailRequest) (DeliveryResult, error) {
	if err := req.Validate(); err != nil {
		return DeliveryResult{Success: false, Error: apperrors.Normalize(err).Details}, err
	}

	from := req.From
	if from == "" {
		from = s.settings.From
	}
	content := req.Text
	if content == "" {
		content = req.HTML
	}
	record := &models.NotificationRecord{
		Channel:      models.ChannelEmail,
		UserID:       req.UserID,
		Recipient:    models.JoinRecipients(req.To),
		CC:           req.Cc,
		BCC:          req.Bcc,
		Sender:       from,
		Type:         req.Type,
		Subject:      req.Subject,
		Content:      content,
		HTMLContent:  req.HTML,
		Template:     req.Template,
		TemplateData: req.TemplateData,
		Priority:     req.Priority,
		Provider:     s.provider.Name(),
		Metadata:     req.Metadata,
	}
	if req.ReplyTo != "" {
		if record.Metadata == nil {
			record.Metadata = map[string]interface{}{}
		}
		record.Metadata["replyTo"] = req.ReplyTo
	}

	if res, err := s.persist(ctx, record); err != nil {
		return res, err
	}
	return s.deliver(ctx, record)
}

// Deliver sends an already persisted record, used for scheduled sends.
func (s *EmailService) Deliver(ctx context.Context, record *models.NotificationRecord) (DeliveryResult, error) {
	if record.Sender == "" {
		record.Sender = s.settings.From
	}
	return s.deliver(ctx, record)
}

func (s *EmailService) deliver(ctx context.Context, record *models.NotificationRecord) (DeliveryResult, error) {
	msg := providers.EmailMessage{
		From:     record.Sender,
		To:       record.Recipients(),
		Cc:       record.CC,
		Bcc:      record.BCC,
		Subject:  record.Subject,
		HTML:     record.HTMLContent,
		Priority: record.Priority,
		Tag:      record.Type,
	}
	if record.Content != record.HTMLContent {
		msg.Text = record.Content
	}
	if replyTo, ok := record.Metadata["replyTo"].(string); ok {
		msg.ReplyTo = replyTo
	}

	start := time.Now()
	outcome := s.provider.SendEmail(ctx, msg)
	return s.finish(ctx, record, s.provider.Name(), outcome, time.Since(start))
}

// SendBulk sends reqs in batches of batchSize (the configured default when
// not positive) with the configured delay between batches. It never fails:
// every outcome lands in the aggregate.
func (s *EmailService) SendBulk(ctx context.Context, reqs []EmailRequest, batchSize int) BulkResult {
	if batchSize <= 0 {
		batchSize = s.settings.BatchSize
	}
	results := runBatches(ctx, reqs, batchPlan{
		size:  batchSize,
		delay: s.settings.BatchDelay,
		sleep: s.sleep,
		onBatch: func(int) {
			metrics.BulkBatches.WithLabelValues(string(models.ChannelEmail)).Inc()
		},
	}, func(ctx context.Context, req EmailRequest) DeliveryResult {
		res, _ := s.Send(ctx, req)
		return res
	}, func(_ EmailRequest, err error) DeliveryResult {
		return notAttempted(err)
	})

	out := aggregate(results)
	s.logger.Info("Bulk email finished", map[string]interface{}{
		"total":      out.Total,
		"successful": out.Successful,
		"failed":     out.Failed,
	})
	return out
}
