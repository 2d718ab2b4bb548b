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

type SMSRequest struct {
	To           string                 `json:"to"`
	Message      string                 `json:"message"`
	From         string                 `json:"from,omitempty"`
	Template     string                 `json:"template,omitempty"`
	TemplateData map[string]interface{} `json:"templateData,omitempty"`
	Priority     models.Priority        `json:"priority,omitempty"`
	Type         string                 `json:"type,omitempty"`
	UserID       string                 `json:"userId,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

func (r SMSRequest) Validate() error {
	var problems []string
	if !validation.ValidatePhone(r.To) {
		problems = append(problems, "to must be an E.164 phone number")
	}
	if strings.TrimSpace(r.Message) == "" {
		problems = append(problems, "message is required")
	}
	if r.Priority != "" && !r.Priority.Valid() {
		problems = append(problems, "unknown priority "+string(r.Priority))
	}
	if len(problems) > 0 {
		return apperrors.NewValidationError(strings.Join(problems, "; "))
	}
	return nil
}

type SMSSettings struct {
	BatchSize  int
	BatchDelay time.Duration
}

type SMSService struct {
	provider providers.SMSProvider
	settings SMSSettings
	recorder
	sleep sleeper
}

func NewSMSService(provider providers.SMSProvider, records RecordStore, settings SMSSettings, log logger.Logger, obs *observability.Observability) *SMSService {
	if settings.BatchSize <= 0 {
		settings.BatchSize = 5
	}
	return &SMSService{
		provider: provider,
		settings: settings,
		recorder: recorder{
			channel: models.ChannelSMS,
			records: records,
			logger:  log.WithFields(map[string]interface{}{"service": "sms"}),
			obs:     obs,
			now:     time.Now,
		},
		sleep: sleepContext,
	}
}

func (s *SMSService) ProviderName() string { return s.provider.Name() }

// Send mirrors EmailService.Send for a single phone number.
func (s *SMSService) Send(ctx context.Context, req SMSRequest) (DeliveryResult, error) {
	if err := req.Validate(); err != nil {
		return DeliveryResult{Success: false, Error: apperrors.Normalize(err).Details}, err
	}

	record := &models.NotificationRecord{
		Channel:      models.ChannelSMS,
		UserID:       req.UserID,
		Recipient:    strings.TrimSpace(req.To),
		Sender:       req.From,
		Type:         req.Type,
		Content:      req.Message,
		Template:     req.Template,
		TemplateData: req.TemplateData,
		Priority:     req.Priority,
		Provider:     s.provider.Name(),
		Metadata:     req.Metadata,
	}
	if res, err := s.persist(ctx, record); err != nil {
		return res, err
	}
	return s.Deliver(ctx, record)
}

// Deliver sends an already persisted record.
func (s *SMSService) Deliver(ctx context.Context, record *models.NotificationRecord) (DeliveryResult, error) {
	start := time.Now()
	outcome := s.provider.SendSMS(ctx, providers.SMSMessage{
		From: record.Sender,
		To:   record.Recipient,
		Body: record.Content,
	})
	return s.finish(ctx, record, s.provider.Name(), outcome, time.Since(start))
}

// SendBulk is EmailService.SendBulk for SMS, with smaller batches and a
// longer pause by default.
func (s *SMSService) SendBulk(ctx context.Context, reqs []SMSRequest, batchSize int) BulkResult {
	if batchSize <= 0 {
		batchSize = s.settings.BatchSize
	}
	results := runBatches(ctx, reqs, batchPlan{
		size:  batchSize,
		delay: s.settings.BatchDelay,
		sleep: s.sleep,
		onBatch: func(int) {
			metrics.BulkBatches.WithLabelValues(string(models.ChannelSMS)).Inc()
		},
	}, func(ctx context.Context, req SMSRequest) DeliveryResult {
		res, _ := s.Send(ctx, req)
		return res
	}, func(_ SMSRequest, err error) DeliveryResult {
		return notAttempted(err)
	})

	out := aggregate(results)
	s.logger.Info("Bulk SMS finished", map[string]interface{}{
		"total":      out.Total,
		"successful": out.Successful,
		"failed":     out.Failed,
	})
	return out
}
