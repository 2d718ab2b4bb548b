package dispatch

import (
	"context"
	"time"

	"notification-platform/internal/common/logger"
	"notification-platform/internal/models"

	"github.com/robfig/cron/v3"
)

// DueStore lists scheduled records whose time has come and claims them one
// at a time before they are sent.
type DueStore interface {
	ListDue(ctx context.Context, ch models.Channel, now time.Time, limit int) ([]models.NotificationRecord, error)
	Claim(ctx context.Context, ch models.Channel, id string) (bool, error)
}

type deliverer interface {
	Deliver(ctx context.Context, record *models.NotificationRecord) (DeliveryResult, error)
}

const (
	DefaultScheduleSpec  = "@every 30s"
	DefaultScheduleLimit = 100
)

// Scheduler periodically sends pending records whose scheduled_at has passed.
type Scheduler struct {
	store   DueStore
	senders map[models.Channel]deliverer
	spec    string
	limit   int
	cron    *cron.Cron
	logger  logger.Logger
	now     func() time.Time
}

func NewScheduler(store DueStore, email *EmailService, sms *SMSService, spec string, limit int, log logger.Logger) *Scheduler {
	if spec == "" {
		spec = DefaultScheduleSpec
	}
	if limit <= 0 {
		limit = DefaultScheduleLimit
	}
	return &Scheduler{
		store: store,
		senders: map[models.Channel]deliverer{
			models.ChannelEmail: email,
			models.ChannelSMS:   sms,
		},
		spec:   spec,
		limit:  limit,
		logger: log.WithFields(map[string]interface{}{"component": "scheduler"}),
		now:    time.Now,
	}
}

// Start registers the sweep and starts the cron loop. Overlapping ticks are
// skipped while a sweep is still running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.logger.Error("Scheduled sweep failed", map[string]interface{}{"error": err})
		}
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("Scheduler started", map[string]interface{}{"spec": s.spec, "limit": s.limit})
	return nil
}

// Stop halts the cron loop and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped", nil)
}

// RunOnce sends every due record on both channels and returns how many were
// attempted. A record is only sent after it was claimed, so a record whose
// status update failed after sending is not picked up again. A listing error
// on one channel does not stop the other.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	now := s.now()
	attempted := 0
	var firstErr error

	for _, ch := range []models.Channel{models.ChannelEmail, models.ChannelSMS} {
		due, err := s.store.ListDue(ctx, ch, now, s.limit)
		if err != nil {
			s.logger.Error("Failed to list due notifications", map[string]interface{}{"channel": string(ch), "error": err})
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sender := s.senders[ch]
		for i := range due {
			if ctx.Err() != nil {
				return attempted, ctx.Err()
			}
			claimed, err := s.store.Claim(ctx, ch, due[i].ID)
			if err != nil {
				s.logger.Error("Failed to claim scheduled notification", map[string]interface{}{
					"notificationId": due[i].ID,
					"channel":        string(ch),
					"error":          err,
				})
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if !claimed {
				continue
			}
			due[i].Status = models.StatusRetry
			attempted++
			if _, err := sender.Deliver(ctx, &due[i]); err != nil {
				s.logger.Warn("Scheduled notification failed", map[string]interface{}{
					"notificationId": due[i].ID,
					"channel":        string(ch),
					"error":          err,
				})
			}
		}
	}
	if attempted > 0 {
		s.logger.Info("Scheduled sweep finished", map[string]interface{}{"attempted": attempted})
	}
	return attempted, firstErr
}
