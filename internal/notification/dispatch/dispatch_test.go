package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "notification-platform/internal/common/errors"
	"notification-platform/internal/common/logger"
	"notification-platform/internal/models"
	"notification-platform/internal/notification/providers"
	"notification-platform/internal/notification/records"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Fakes
// ==========================

type fakeEmailProvider struct {
	mu    sync.Mutex
	sent  []providers.EmailMessage
	sendF func(msg providers.EmailMessage) providers.DeliveryOutcome
}

func (f *fakeEmailProvider) Name() string { return "fake" }

func (f *fakeEmailProvider) SendEmail(_ context.Context, msg providers.EmailMessage) providers.DeliveryOutcome {
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	if f.sendF != nil {
		return f.sendF(msg)
	}
	return providers.DeliveryOutcome{Success: true, ProviderMessageID: "msg-" + msg.To[0]}
}

type fakeSMSProvider struct {
	calls atomic.Int32
	sendF func(msg providers.SMSMessage) providers.DeliveryOutcome
}

func (f *fakeSMSProvider) Name() string { return "fake-sms" }

func (f *fakeSMSProvider) SendSMS(_ context.Context, msg providers.SMSMessage) providers.DeliveryOutcome {
	f.calls.Add(1)
	if f.sendF != nil {
		return f.sendF(msg)
	}
	return providers.DeliveryOutcome{Success: true, ProviderMessageID: "SM-" + msg.To}
}

type fakeStore struct {
	mu          sync.Mutex
	records     map[string]*models.NotificationRecord
	seq         int
	createErr   error
	countErr    error
	markSentErr error
	due         map[models.Channel][]models.NotificationRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[string]*models.NotificationRecord{}}
}

func (f *fakeStore) Create(_ context.Context, r *models.NotificationRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	r.ID = "rec-" + string(rune('a'+f.seq-1))
	r.Status = models.StatusPending
	cp := *r
	f.records[r.ID] = &cp
	return nil
}

func (f *fakeStore) MarkSent(_ context.Context, _ models.Channel, id, pid string, at time.Time) error {
	if f.markSentErr != nil {
		return f.markSentErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return apperrors.NewNotFoundError("notification", id)
	}
	r.MarkSent(pid, at)
	return nil
}

func (f *fakeStore) MarkFailed(_ context.Context, _ models.Channel, id, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return apperrors.NewNotFoundError("notification", id)
	}
	r.MarkFailed(msg, time.Now())
	return nil
}

func (f *fakeStore) List(_ context.Context, ch models.Channel, _ records.HistoryQuery) ([]models.NotificationRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.NotificationRecord
	for _, r := range f.records {
		if r.Channel == ch {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeStore) Count(ctx context.Context, ch models.Channel, q records.HistoryQuery) (int, error) {
	list, _ := f.List(ctx, ch, q)
	return len(list), nil
}

func (f *fakeStore) CountSince(ctx context.Context, ch models.Channel, _ time.Time) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.Count(ctx, ch, records.HistoryQuery{})
}

func (f *fakeStore) ListDue(_ context.Context, ch models.Channel, _ time.Time, _ int) ([]models.NotificationRecord, error) {
	return f.due[ch], nil
}

func (f *fakeStore) Claim(_ context.Context, _ models.Channel, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok || r.Status != models.StatusPending {
		return false, nil
	}
	r.Status = models.StatusRetry
	return true, nil
}

func (f *fakeStore) byStatus(s models.Status) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.records {
		if r.Status == s {
			n++
		}
	}
	return n
}

type fakeTemplates map[string]*models.Template

func (f fakeTemplates) Get(_ context.Context, name string) (*models.Template, bool, error) {
	t, ok := f[name]
	return t, ok, nil
}

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newEmailService(t *testing.T, p providers.EmailProvider, store RecordStore) *EmailService {
	svc := NewEmailService(p, store, EmailSettings{From: "noreply@example.com", BatchSize: 10}, logger.NewTestLogger(t), nil)
	svc.sleep = noSleep
	return svc
}

func newSMSService(t *testing.T, p providers.SMSProvider, store RecordStore) *SMSService {
	svc := NewSMSService(p, store, SMSSettings{BatchSize: 5}, logger.NewTestLogger(t), nil)
	svc.sleep = noSleep
	return svc
}

func emailReq(to string) EmailRequest {
	return EmailRequest{To: []string{to}, Subject: "Hola", HTML: "<p>hola</p>"}
}

// ==========================
// Batch runner
// ==========================

func TestRunBatches_KeepsOrderAndBatchSizes(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}
	var sizes []int
	var sleeps int

	out := runBatches(context.Background(), items, batchPlan{
		size:    3,
		delay:   time.Second,
		sleep:   func(context.Context, time.Duration) error { sleeps++; return nil },
		onBatch: func(n int) { sizes = append(sizes, n) },
	}, func(_ context.Context, n int) int { return n * 10 }, func(int, error) int { return -1 })

	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70}, out)
	assert.Equal(t, []int{3, 3, 1}, sizes)
	assert.Equal(t, 2, sleeps, "no pause after the last batch")
}

func TestRunBatches_StopsWhenCancelledBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var sent atomic.Int32

	out := runBatches(ctx, []string{"a", "b", "c", "d"}, batchPlan{
		size: 2,
		sleep: func(ctx context.Context, _ time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}, func(context.Context, string) string {
		sent.Add(1)
		return "ok"
	}, func(_ string, err error) string { return "skipped: " + err.Error() })

	assert.Equal(t, int32(2), sent.Load())
	assert.Equal(t, []string{"ok", "ok", "skipped: context canceled", "skipped: context canceled"}, out)
}

func TestRunBatches_AlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := runBatches(ctx, []int{1, 2}, batchPlan{size: 5}, func(context.Context, int) bool {
		t.Fatal("nothing should be sent")
		return true
	}, func(int, error) bool { return false })

	assert.Equal(t, []bool{false, false}, out)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

// ==========================
// Email
// ==========================

func TestEmailService_SendSuccess(t *testing.T) {
	p := &fakeEmailProvider{}
	store := newFakeStore()
	svc := newEmailService(t, p, store)

	res, err := svc.Send(context.Background(), EmailRequest{
		To:      []string{"ana@example.com", "luis@example.com"},
		Cc:      []string{"cc@example.com"},
		ReplyTo: "soporte@example.com",
		Subject: "Bienvenido",
		Text:    "hola",
		HTML:    "<b>hola</b>",
	})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "msg-ana@example.com", res.MessageID)
	require.NotEmpty(t, res.NotificationID)

	rec := store.records[res.NotificationID]
	assert.Equal(t, models.StatusSent, rec.Status)
	assert.NotNil(t, rec.SentAt)
	assert.Equal(t, "ana@example.com,luis@example.com", rec.Recipient)
	assert.Equal(t, "noreply@example.com", rec.Sender)

	require.Len(t, p.sent, 1)
	msg := p.sent[0]
	assert.Equal(t, []string{"ana@example.com", "luis@example.com"}, msg.To)
	assert.Equal(t, "noreply@example.com", msg.From)
	assert.Equal(t, "soporte@example.com", msg.ReplyTo)
	assert.Equal(t, "hola", msg.Text)
	assert.Equal(t, "<b>hola</b>", msg.HTML)
}

func TestEmailService_ProviderFailureMarksRecordFailed(t *testing.T) {
	p := &fakeEmailProvider{sendF: func(providers.EmailMessage) providers.DeliveryOutcome {
		return providers.DeliveryOutcome{Success: false}
	}}
	store := newFakeStore()
	svc := newEmailService(t, p, store)

	res, err := svc.Send(context.Background(), emailReq("ana@example.com"))

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeProviderError))
	assert.False(t, res.Success)
	assert.Equal(t, models.UnknownProviderError, res.Error)

	rec := store.records[res.NotificationID]
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Equal(t, models.UnknownProviderError, rec.ErrorMessage)
	assert.Empty(t, rec.CheckInvariants())
}

func TestEmailService_ValidationWritesNoRecord(t *testing.T) {
	tests := []struct {
		name string
		req  EmailRequest
		want string
	}{
		{"no recipients", EmailRequest{Subject: "s", Text: "t"}, "at least one recipient"},
		{"bad address", EmailRequest{To: []string{"nope"}, Subject: "s", Text: "t"}, "to"},
		{"no subject", EmailRequest{To: []string{"a@x.io"}, Text: "t"}, "subject is required"},
		{"no body", EmailRequest{To: []string{"a@x.io"}, Subject: "s"}, "text or html"},
		{"bad priority", EmailRequest{To: []string{"a@x.io"}, Subject: "s", Text: "t", Priority: "asap"}, "priority"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakeEmailProvider{}
			store := newFakeStore()
			svc := newEmailService(t, p, store)

			res, err := svc.Send(context.Background(), tt.req)

			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))
			assert.Contains(t, res.Error, tt.want)
			assert.Empty(t, store.records)
			assert.Empty(t, p.sent)
		})
	}
}

func TestEmailService_PersistFailureSkipsProvider(t *testing.T) {
	p := &fakeEmailProvider{}
	store := newFakeStore()
	store.createErr = apperrors.NewPersistenceError("create email notification", errors.New("db down"))
	svc := newEmailService(t, p, store)

	res, err := svc.Send(context.Background(), emailReq("ana@example.com"))

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePersistenceFailed))
	assert.False(t, res.Success)
	assert.Empty(t, p.sent)
}

func TestEmailService_SendBulk(t *testing.T) {
	p := &fakeEmailProvider{sendF: func(msg providers.EmailMessage) providers.DeliveryOutcome {
		if strings.HasPrefix(msg.To[0], "bad") {
			return providers.DeliveryOutcome{Success: false, Error: "mailbox unavailable"}
		}
		return providers.DeliveryOutcome{Success: true, ProviderMessageID: "id-" + msg.To[0]}
	}}
	store := newFakeStore()
	svc := newEmailService(t, p, store)

	var pauses []time.Duration
	svc.settings.BatchDelay = time.Second
	svc.sleep = func(_ context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}

	reqs := make([]EmailRequest, 12)
	for i := range reqs {
		reqs[i] = emailReq(string(rune('a'+i)) + "@example.com")
	}
	reqs[3] = emailReq("bad1@example.com")
	reqs[10] = emailReq("bad2@example.com")

	out := svc.SendBulk(context.Background(), reqs, 5)

	assert.Equal(t, 12, out.Total)
	assert.Equal(t, 10, out.Successful)
	assert.Equal(t, 2, out.Failed)
	require.Len(t, out.Results, 12)
	assert.False(t, out.Results[3].Success)
	assert.Equal(t, "mailbox unavailable", out.Results[3].Error)
	assert.False(t, out.Results[10].Success)
	assert.Equal(t, "id-a@example.com", out.Results[0].MessageID)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, pauses, "batches of 5, 5 and 2")

	assert.Len(t, store.records, 12, "one record per attempt")
	assert.Equal(t, 10, store.byStatus(models.StatusSent))
	assert.Equal(t, 2, store.byStatus(models.StatusFailed))
}

func TestEmailService_SendBulkDefaultsAndInvalidItems(t *testing.T) {
	p := &fakeEmailProvider{}
	store := newFakeStore()
	svc := newEmailService(t, p, store)

	out := svc.SendBulk(context.Background(), []EmailRequest{
		emailReq("a@example.com"),
		{To: []string{"broken"}},
		emailReq("b@example.com"),
	}, 0)

	assert.Equal(t, 3, out.Total)
	assert.Equal(t, 2, out.Successful)
	assert.Equal(t, 1, out.Failed)
	assert.Len(t, store.records, 2)
}

func TestEmailService_SendBulkCancelled(t *testing.T) {
	p := &fakeEmailProvider{}
	store := newFakeStore()
	svc := newEmailService(t, p, store)

	ctx, cancel := context.WithCancel(context.Background())
	svc.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	reqs := []EmailRequest{emailReq("a@example.com"), emailReq("b@example.com"), emailReq("c@example.com")}
	out := svc.SendBulk(ctx, reqs, 1)

	assert.Equal(t, 3, out.Total)
	assert.Equal(t, 1, out.Successful)
	assert.Equal(t, 2, out.Failed)
	assert.True(t, strings.HasPrefix(out.Results[1].Error, "not attempted"))
	assert.Len(t, store.records, 1)
}

func TestEmailService_BookkeepingSurvivesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &fakeEmailProvider{sendF: func(providers.EmailMessage) providers.DeliveryOutcome {
		cancel()
		return providers.DeliveryOutcome{Success: true, ProviderMessageID: "m1"}
	}}
	store := newFakeStore()
	svc := newEmailService(t, p, store)

	res, err := svc.Send(ctx, emailReq("ana@example.com"))

	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, store.records[res.NotificationID].Status)
}

// ==========================
// SMS
// ==========================

func TestSMSService_Send(t *testing.T) {
	p := &fakeSMSProvider{}
	store := newFakeStore()
	svc := newSMSService(t, p, store)

	res, err := svc.Send(context.Background(), SMSRequest{To: "+34600111222", Message: "Tu código es 1234"})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "SM-+34600111222", res.MessageID)
	assert.Equal(t, models.StatusSent, store.records[res.NotificationID].Status)
}

func TestSMSService_InvalidPhone(t *testing.T) {
	p := &fakeSMSProvider{}
	store := newFakeStore()
	svc := newSMSService(t, p, store)

	_, err := svc.Send(context.Background(), SMSRequest{To: "600111222", Message: "hola"})

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))
	assert.Zero(t, p.calls.Load())
	assert.Empty(t, store.records)
}

func TestSMSService_SendBulk(t *testing.T) {
	p := &fakeSMSProvider{sendF: func(msg providers.SMSMessage) providers.DeliveryOutcome {
		if msg.To == "+34600000003" {
			return providers.DeliveryOutcome{Success: false, Error: "unreachable"}
		}
		return providers.DeliveryOutcome{Success: true, ProviderMessageID: "SM1"}
	}}
	store := newFakeStore()
	svc := newSMSService(t, p, store)

	var reqs []SMSRequest
	for _, n := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		reqs = append(reqs, SMSRequest{To: "+3460000000" + n, Message: "hola"})
	}
	out := svc.SendBulk(context.Background(), reqs, 0)

	assert.Equal(t, BulkResult{Total: 7, Successful: 6, Failed: 1, Results: out.Results}, out)
	assert.Equal(t, "unreachable", out.Results[2].Error)
	assert.Equal(t, int32(7), p.calls.Load())
}

// ==========================
// Unified create
// ==========================

func newNotificationService(t *testing.T, tmpl fakeTemplates) (*NotificationService, *fakeEmailProvider, *fakeSMSProvider, *fakeStore) {
	ep := &fakeEmailProvider{}
	sp := &fakeSMSProvider{}
	store := newFakeStore()
	svc := NewNotificationService(newEmailService(t, ep, store), newSMSService(t, sp, store), tmpl, store, logger.NewTestLogger(t))
	return svc, ep, sp, store
}

func TestNotificationService_CreateRendersTemplate(t *testing.T) {
	tmpl := fakeTemplates{"welcome_email": {
		Name:    "welcome_email",
		Type:    models.ChannelEmail,
		Subject: "Bienvenido {{firstName}}",
		Content: "<p>Hola {{firstName}}, visita {{link}}</p>",
	}}
	svc, ep, _, _ := newNotificationService(t, tmpl)

	res, err := svc.Create(context.Background(), CreateNotificationRequest{
		Type:         models.ChannelEmail,
		Recipient:    "ana@example.com",
		Template:     "welcome_email",
		TemplateData: map[string]interface{}{"firstName": "Ana"},
	})

	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, ep.sent, 1)
	assert.Equal(t, "Bienvenido Ana", ep.sent[0].Subject)
	assert.Equal(t, "<p>Hola Ana, visita </p>", ep.sent[0].HTML)
}

func TestNotificationService_CreateSMSIgnoresTemplateSubject(t *testing.T) {
	tmpl := fakeTemplates{"otp": {Name: "otp", Type: models.ChannelSMS, Subject: "x", Content: "Código {{code}}"}}
	svc, _, sp, store := newNotificationService(t, tmpl)

	res, err := svc.Create(context.Background(), CreateNotificationRequest{
		Type:         models.ChannelSMS,
		Recipient:    "+34600111222",
		Template:     "otp",
		TemplateData: map[string]interface{}{"code": 4321},
	})

	require.NoError(t, err)
	assert.Equal(t, int32(1), sp.calls.Load())
	assert.Equal(t, "Código 4321", store.records[res.NotificationID].Content)
}

func TestNotificationService_CreateFallbacks(t *testing.T) {
	svc, ep, _, _ := newNotificationService(t, fakeTemplates{})

	res, err := svc.Create(context.Background(), CreateNotificationRequest{
		Type:      models.ChannelEmail,
		Recipient: "ana@example.com",
		Template:  "missing",
		Content:   "plain body",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "Notification", ep.sent[0].Subject)
	assert.Equal(t, "plain body", ep.sent[0].HTML)

	_, err = svc.Create(context.Background(), CreateNotificationRequest{
		Type:      models.ChannelEmail,
		Recipient: "ana@example.com",
		Template:  "missing",
	})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeTemplateNotFound))
}

func TestNotificationService_CreateUnsupportedChannel(t *testing.T) {
	svc, ep, sp, store := newNotificationService(t, fakeTemplates{})

	for _, ch := range []models.Channel{models.ChannelPush, "webhook"} {
		res, err := svc.Create(context.Background(), CreateNotificationRequest{Type: ch, Recipient: "x", Content: "y"})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnsupportedChannel))
		assert.False(t, res.Success)
	}
	assert.Empty(t, ep.sent)
	assert.Zero(t, sp.calls.Load())
	assert.Empty(t, store.records)
}

func TestNotificationService_CreateScheduled(t *testing.T) {
	svc, ep, _, store := newNotificationService(t, fakeTemplates{})
	at := time.Now().Add(time.Hour)

	res, err := svc.Create(context.Background(), CreateNotificationRequest{
		Type:        models.ChannelEmail,
		Recipient:   "ana@example.com",
		Subject:     "Recordatorio",
		Content:     "mañana",
		ScheduledAt: &at,
		Category:    "reminder",
	})

	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.True(t, res.Scheduled)
	assert.Empty(t, ep.sent)

	rec := store.records[res.NotificationID]
	assert.Equal(t, models.StatusPending, rec.Status)
	require.NotNil(t, rec.ScheduledAt)
	assert.Equal(t, "Recordatorio", rec.Subject)
	assert.Equal(t, "reminder", rec.Type)
	assert.Equal(t, "fake", rec.Provider)
}

func TestNotificationService_CreatePastScheduleSendsNow(t *testing.T) {
	svc, ep, _, _ := newNotificationService(t, fakeTemplates{})
	at := time.Now().Add(-time.Minute)

	res, err := svc.Create(context.Background(), CreateNotificationRequest{
		Type:        models.ChannelEmail,
		Recipient:   "ana@example.com",
		Content:     "now",
		ScheduledAt: &at,
	})

	require.NoError(t, err)
	assert.False(t, res.Scheduled)
	assert.Len(t, ep.sent, 1)
}

func TestNotificationService_HistoryAndHealth(t *testing.T) {
	svc, _, _, store := newNotificationService(t, fakeTemplates{})
	_, _ = svc.Create(context.Background(), CreateNotificationRequest{Type: models.ChannelEmail, Recipient: "a@example.com", Content: "x"})
	_, _ = svc.Create(context.Background(), CreateNotificationRequest{Type: models.ChannelSMS, Recipient: "+34600111222", Content: "x"})
	_, _ = svc.Create(context.Background(), CreateNotificationRequest{Type: models.ChannelSMS, Recipient: "+34600111223", Content: "x"})

	h, err := svc.History(context.Background(), records.HistoryQuery{Page: 0, Limit: 500})
	require.NoError(t, err)
	assert.Len(t, h.Emails, 1)
	assert.Len(t, h.SMS, 2)
	assert.Equal(t, Pagination{Page: 1, Limit: records.MaxPageSize, Total: 3}, h.Pagination)

	health := svc.Health(context.Background())
	assert.Equal(t, "connected", health.Database)
	assert.Equal(t, map[string]int{"emails_24h": 1, "sms_24h": 2}, health.Notifications)

	store.countErr = errors.New("connection refused")
	health = svc.Health(context.Background())
	assert.Equal(t, "disconnected", health.Database)
	assert.Equal(t, "connection refused", health.Error)
}

// ==========================
// Scheduler
// ==========================

func TestScheduler_RunOnceDeliversDueRecords(t *testing.T) {
	ep := &fakeEmailProvider{}
	sp := &fakeSMSProvider{sendF: func(providers.SMSMessage) providers.DeliveryOutcome {
		return providers.DeliveryOutcome{Success: false, Error: "carrier rejected"}
	}}
	store := newFakeStore()
	email := newEmailService(t, ep, store)
	sms := newSMSService(t, sp, store)

	past := time.Now().Add(-time.Minute)
	seed := func(r models.NotificationRecord) models.NotificationRecord {
		require.NoError(t, store.Create(context.Background(), &r))
		return *store.records[r.ID]
	}
	store.due = map[models.Channel][]models.NotificationRecord{
		models.ChannelEmail: {seed(models.NotificationRecord{Channel: models.ChannelEmail, Recipient: "a@example.com", Subject: "s", HTMLContent: "h", Content: "h", ScheduledAt: &past})},
		models.ChannelSMS:   {seed(models.NotificationRecord{Channel: models.ChannelSMS, Recipient: "+34600111222", Content: "c", ScheduledAt: &past})},
	}

	sched := NewScheduler(store, email, sms, "", 0, logger.NewTestLogger(t))
	n, err := sched.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, ep.sent, 1)
	assert.Equal(t, "noreply@example.com", ep.sent[0].From)
	assert.Equal(t, 1, store.byStatus(models.StatusSent))
	assert.Equal(t, 1, store.byStatus(models.StatusFailed))
}

func TestScheduler_DoesNotResendWhenStatusUpdateFails(t *testing.T) {
	ep := &fakeEmailProvider{}
	sp := &fakeSMSProvider{}
	store := newFakeStore()
	store.markSentErr = errors.New("connection reset")

	past := time.Now().Add(-time.Minute)
	email := models.NotificationRecord{Channel: models.ChannelEmail, Recipient: "a@example.com", Subject: "s", HTMLContent: "h", Content: "h", ScheduledAt: &past}
	sms := models.NotificationRecord{Channel: models.ChannelSMS, Recipient: "+34600111222", Content: "c", ScheduledAt: &past}
	require.NoError(t, store.Create(context.Background(), &email))
	require.NoError(t, store.Create(context.Background(), &sms))
	store.due = map[models.Channel][]models.NotificationRecord{
		models.ChannelEmail: {*store.records[email.ID]},
		models.ChannelSMS:   {*store.records[sms.ID]},
	}

	sched := NewScheduler(store, newEmailService(t, ep, store), newSMSService(t, sp, store), "", 0, logger.NewTestLogger(t))

	tests := []struct {
		name          string
		wantAttempted int
	}{
		{"first sweep sends", 2},
		{"second sweep skips claimed records", 0},
		{"third sweep skips claimed records", 0},
	}
	for _, tt := range tests {
		n, err := sched.RunOnce(context.Background())
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.wantAttempted, n, tt.name)
	}

	assert.Len(t, ep.sent, 1)
	assert.Equal(t, int32(1), sp.calls.Load())
	assert.Equal(t, 2, store.byStatus(models.StatusRetry))
}

func TestScheduler_SkipsRecordsClaimedElsewhere(t *testing.T) {
	ep := &fakeEmailProvider{}
	store := newFakeStore()

	past := time.Now().Add(-time.Minute)
	r := models.NotificationRecord{Channel: models.ChannelEmail, Recipient: "a@example.com", Subject: "s", HTMLContent: "h", Content: "h", ScheduledAt: &past}
	require.NoError(t, store.Create(context.Background(), &r))
	store.due = map[models.Channel][]models.NotificationRecord{models.ChannelEmail: {*store.records[r.ID]}}
	claimed, err := store.Claim(context.Background(), models.ChannelEmail, r.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	sched := NewScheduler(store, newEmailService(t, ep, store), newSMSService(t, &fakeSMSProvider{}, store), "", 0, logger.NewTestLogger(t))
	n, err := sched.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, ep.sent)
}

func TestScheduler_StartRejectsBadSpec(t *testing.T) {
	store := newFakeStore()
	sched := NewScheduler(store, newEmailService(t, &fakeEmailProvider{}, store), newSMSService(t, &fakeSMSProvider{}, store), "not a spec", 10, logger.NewNoOpLogger())

	assert.Error(t, sched.Start(context.Background()))
	sched.Stop()
}

func TestScheduler_StartStop(t *testing.T) {
	store := newFakeStore()
	sched := NewScheduler(store, newEmailService(t, &fakeEmailProvider{}, store), newSMSService(t, &fakeSMSProvider{}, store), "@every 1h", 10, logger.NewNoOpLogger())

	require.NoError(t, sched.Start(context.Background()))
	sched.Stop()
}
