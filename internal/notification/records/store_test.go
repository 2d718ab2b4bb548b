package records

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	apperrors "notification-platform/internal/common/errors"
	"notification-platform/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

var recordColumns = []string{"id", "user_id", "recipient", "cc", "bcc", "sender", "subject", "html_content", "type",
	"content", "template", "template_data", "status", "priority", "provider", "provider_message_id", "error_message",
	"retry_count", "scheduled_at", "sent_at", "delivered_at", "bounced_at", "metadata", "created_at", "updated_at"}

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewStore(db)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

// ==========================
// Create
// ==========================

func TestStore_CreateEmail(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`(?s)INSERT INTO email_notifications .*sender, cc, bcc, subject, html_content`).
		WithArgs(anyArgs(23)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := &models.NotificationRecord{
		Channel:      models.ChannelEmail,
		Recipient:    "ana@bjj.io",
		Subject:      "Hola",
		Content:      "<p>Hola</p>",
		TemplateData: map[string]interface{}{"name": "Ana"},
	}
	require.NoError(t, s.Create(context.Background(), r))

	assert.NotEmpty(t, r.ID)
	assert.Equal(t, models.StatusPending, r.Status)
	assert.Equal(t, models.PriorityNormal, r.Priority)
	assert.Equal(t, "email", r.Type)
	assert.Equal(t, fixedNow, r.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateSMS(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`(?s)INSERT INTO sms_notifications .*sender\)`).
		WithArgs(anyArgs(19)...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	r := &models.NotificationRecord{Channel: models.ChannelSMS, Recipient: "+5491155550000", Content: "hola", Type: "payment"}
	require.NoError(t, s.Create(context.Background(), r))

	assert.Equal(t, "payment", r.Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateRejects(t *testing.T) {
	s, mock := newTestStore(t)

	err := s.Create(context.Background(), &models.NotificationRecord{Channel: models.ChannelPush})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUnsupportedChannel))

	err = s.Create(context.Background(), &models.NotificationRecord{Channel: models.ChannelEmail, Status: models.StatusSent})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateDatabaseError(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`INSERT INTO email_notifications`).WillReturnError(errors.New("disk full"))

	err := s.Create(context.Background(), &models.NotificationRecord{Channel: models.ChannelEmail, Recipient: "a@b.io"})

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePersistenceFailed))
	assert.ErrorContains(t, err, "disk full")
}

// ==========================
// Status transitions
// ==========================

func TestStore_MarkSent(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`UPDATE email_notifications SET status = 'sent', provider_message_id = \$2, sent_at = \$3`).
		WithArgs("n-1", "msg-1", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.MarkSent(context.Background(), models.ChannelEmail, "n-1", "msg-1", fixedNow))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_MarkSentNotFound(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`UPDATE sms_notifications`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.MarkSent(context.Background(), models.ChannelSMS, "ghost", "m", fixedNow)

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestStore_MarkFailedDefaultsMessage(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`SET status = 'failed', error_message = \$2, retry_count = retry_count \+ 1`).
		WithArgs("n-2", models.UnknownProviderError, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.MarkFailed(context.Background(), models.ChannelSMS, "n-2", ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ReceiptTransitions(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectExec(`UPDATE sms_notifications SET status = 'delivered'`).WithArgs("s-1", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE sms_notifications SET status = 'undelivered'`).WithArgs("s-2", "carrier rejected", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE email_notifications SET status = 'bounced'`).WithArgs("e-1", fixedNow, "mailbox full").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.MarkDelivered(context.Background(), "s-1", fixedNow))
	require.NoError(t, s.MarkUndelivered(context.Background(), "s-2", "carrier rejected"))
	require.NoError(t, s.MarkBounced(context.Background(), "e-1", "mailbox full", fixedNow))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Queries
// ==========================

func emailRow(id string) []driver.Value {
	return []driver.Value{id, "u-1", "ana@bjj.io", "{coach@bjj.io}", "{}", "", "Hola", "<p>Hola</p>", "welcome",
		"Hola", "welcome_email", []byte(`{"name":"Ana"}`), "sent", "normal", "smtp", "msg-1", "", 0,
		nil, fixedNow, nil, nil, nil, fixedNow, fixedNow}
}

func TestStore_Get(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`FROM email_notifications WHERE id = \$1`).WithArgs("e-1").
		WillReturnRows(sqlmock.NewRows(recordColumns).AddRow(emailRow("e-1")...))

	r, err := s.Get(context.Background(), models.ChannelEmail, "e-1")

	require.NoError(t, err)
	assert.Equal(t, models.ChannelEmail, r.Channel)
	assert.Equal(t, models.StatusSent, r.Status)
	assert.Equal(t, []string{"coach@bjj.io"}, r.CC)
	assert.Equal(t, "Ana", r.TemplateData["name"])
	require.NotNil(t, r.SentAt)
	assert.Nil(t, r.ScheduledAt)
	assert.Empty(t, r.CheckInvariants())
}

func TestStore_GetNotFound(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`FROM sms_notifications`).WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), models.ChannelSMS, "nope")

	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestStore_ListWithFilters(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`FROM email_notifications WHERE type = \$1 AND status = \$2 ORDER BY created_at DESC LIMIT \$3 OFFSET \$4`).
		WithArgs("welcome", "sent", 10, 10).
		WillReturnRows(sqlmock.NewRows(recordColumns).AddRow(emailRow("e-1")...).AddRow(emailRow("e-2")...))

	list, err := s.List(context.Background(), models.ChannelEmail, HistoryQuery{Type: "welcome", Status: models.StatusSent, Page: 2, Limit: 10})

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "e-2", list[1].ID)
}

func TestStore_ListNormalizesPaging(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`FROM sms_notifications ORDER BY created_at DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(MaxPageSize, 0).
		WillReturnRows(sqlmock.NewRows(recordColumns))

	list, err := s.List(context.Background(), models.ChannelSMS, HistoryQuery{Page: -3, Limit: 5000})

	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_Counts(t *testing.T) {
	s, mock := newTestStore(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM email_notifications WHERE type = \$1`).WithArgs("order").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	since := fixedNow.Add(-24 * time.Hour)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sms_notifications WHERE created_at >= \$1`).WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := s.Count(context.Background(), models.ChannelEmail, HistoryQuery{Type: "order"})
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = s.CountSince(context.Background(), models.ChannelSMS, since)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStore_ListDue(t *testing.T) {
	s, mock := newTestStore(t)
	scheduled := fixedNow.Add(-time.Minute)
	row := emailRow("e-9")
	row[12] = "pending"
	row[18] = scheduled
	row[19] = nil
	mock.ExpectQuery(`WHERE status = 'pending' AND scheduled_at IS NOT NULL AND scheduled_at <= \$1`).
		WithArgs(fixedNow, 50).
		WillReturnRows(sqlmock.NewRows(recordColumns).AddRow(row...))

	due, err := s.ListDue(context.Background(), models.ChannelEmail, fixedNow, 50)

	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.True(t, due[0].IsDue(fixedNow))
}

func TestStore_Claim(t *testing.T) {
	tests := []struct {
		name     string
		result   driver.Result
		execErr  error
		want     bool
		wantCode apperrors.ErrorCode
	}{
		{name: "pending record is claimed", result: sqlmock.NewResult(0, 1), want: true},
		{name: "already claimed", result: sqlmock.NewResult(0, 0), want: false},
		{name: "database error", execErr: errors.New("connection reset"), wantCode: apperrors.ErrCodePersistenceFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newTestStore(t)
			exp := mock.ExpectExec(`UPDATE sms_notifications SET status = 'retry', updated_at = \$2 WHERE id = \$1 AND status = 'pending'`).
				WithArgs("s-1", fixedNow)
			if tt.execErr != nil {
				exp.WillReturnError(tt.execErr)
			} else {
				exp.WillReturnResult(tt.result)
			}

			claimed, err := s.Claim(context.Background(), models.ChannelSMS, "s-1")

			if tt.wantCode != "" {
				assert.True(t, apperrors.HasCode(err, tt.wantCode))
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, claimed)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHistoryQuery_Normalize(t *testing.T) {
	q := HistoryQuery{}.Normalize()
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, DefaultPageSize, q.Limit)
	assert.Equal(t, 0, q.offset())

	q = HistoryQuery{Page: 3, Limit: 20}.Normalize()
	assert.Equal(t, 40, q.offset())
}
