// Package dispatch sends single and bulk notifications through the configured
// providers and keeps one record per send attempt.
package dispatch

import (
	"context"
	"time"

	apperrors "notification-platform/internal/common/errors"
	"notification-platform/internal/common/logger"
	"notification-platform/internal/common/metrics"
	"notification-platform/internal/common/observability"
	"notification-platform/internal/models"
	"notification-platform/internal/notification/providers"
)

// RecordStore is the persistence the dispatch services need.
type RecordStore interface {
	Create(ctx context.Context, r *models.NotificationRecord) error
	MarkSent(ctx context.Context, ch models.Channel, id, providerMessageID string, sentAt time.Time) error
	MarkFailed(ctx context.Context, ch models.Channel, id, errMsg string) error
}

// DeliveryResult is the single-send envelope returned to callers.
type DeliveryResult struct {
	Success        bool   `json:"success"`
	MessageID      string `json:"messageId,omitempty"`
	NotificationID string `json:"notificationId,omitempty"`
	Scheduled      bool   `json:"scheduled,omitempty"`
	Error          string `json:"error,omitempty"`
}

// BulkResult aggregates a bulk send. Successful+Failed always equals Total.
type BulkResult struct {
	Total      int              `json:"total"`
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Results    []DeliveryResult `json:"results"`
}

func aggregate(results []DeliveryResult) BulkResult {
	out := BulkResult{Total: len(results), Results: results}
	for _, r := range results {
		if r.Success {
			out.Successful++
		} else {
			out.Failed++
		}
	}
	return out
}

func notAttempted(err error) DeliveryResult {
	return DeliveryResult{Success: false, Error: "not attempted: " + err.Error()}
}

// recorder holds what both channel services share: the record store, the
// clock and the instrumentation around a provider call.
type recorder struct {
	channel models.Channel
	records RecordStore
	logger  logger.Logger
	obs     *observability.Observability
	now     func() time.Time
}

// finish applies a provider outcome to the stored record. The record update
// ignores caller cancellation.
func (r *recorder) finish(ctx context.Context, record *models.NotificationRecord, provider string, outcome providers.DeliveryOutcome, took time.Duration) (DeliveryResult, error) {
	ch := string(r.channel)
	metrics.SendDuration.WithLabelValues(ch, provider).Observe(took.Seconds())
	r.obs.RecordDispatch(ctx, ch, provider, outcome.Success, took)

	bookkeeping := context.WithoutCancel(ctx)
	log := r.logger.WithFields(map[string]interface{}{
		"notificationId": record.ID,
		"channel":        ch,
		"provider":       provider,
	})

	if outcome.Success {
		metrics.NotificationsSent.WithLabelValues(ch, provider).Inc()
		record.MarkSent(outcome.ProviderMessageID, r.now())
		if err := r.records.MarkSent(bookkeeping, r.channel, record.ID, outcome.ProviderMessageID, *record.SentAt); err != nil {
			log.Error("Sent but failed to update record", map[string]interface{}{"error": err})
		}
		log.Info("Notification sent", map[string]interface{}{"messageId": outcome.ProviderMessageID})
		return DeliveryResult{Success: true, MessageID: outcome.ProviderMessageID, NotificationID: record.ID}, nil
	}

	metrics.NotificationsFailed.WithLabelValues(ch, provider, string(apperrors.ErrCodeProviderError)).Inc()
	record.MarkFailed(outcome.Error, r.now())
	if err := r.records.MarkFailed(bookkeeping, r.channel, record.ID, record.ErrorMessage); err != nil {
		log.Error("Failed to record send failure", map[string]interface{}{"error": err})
	}
	log.Warn("Notification failed", map[string]interface{}{"error": record.ErrorMessage})
	return DeliveryResult{Success: false, NotificationID: record.ID, Error: record.ErrorMessage},
		apperrors.NewProviderError(provider, record.ErrorMessage)
}

// persist creates the pending record for a send attempt.
func (r *recorder) persist(ctx context.Context, record *models.NotificationRecord) (DeliveryResult, error) {
	if err := r.records.Create(ctx, record); err != nil {
		se := apperrors.Normalize(err)
		metrics.NotificationsFailed.WithLabelValues(string(r.channel), record.Provider, string(se.Code)).Inc()
		r.logger.Error("Failed to persist notification record", map[string]interface{}{
			"channel": string(r.channel),
			"error":   err,
		})
		return DeliveryResult{Success: false, Error: se.Message}, err
	}
	return DeliveryResult{}, nil
}
