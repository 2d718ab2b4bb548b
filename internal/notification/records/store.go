// Package records persists one row per notification send attempt in the
// email_notifications and sms_notifications tables.
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"notification-platform/internal/common/database"
	apperrors "notification-platform/internal/common/errors"
	"notification-platform/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// HistoryQuery filters List and Count. Zero values mean "any".
type HistoryQuery struct {
	Type   string
	Status models.Status
	UserID string
	Page   int
	Limit  int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Normalize clamps paging to sane bounds.
func (q HistoryQuery) Normalize() HistoryQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	return q
}

func (q HistoryQuery) offset() int {
	return (q.Page - 1) * q.Limit
}

type Store struct {
	db  database.DBTX
	now func() time.Time
}

func NewStore(db database.DBTX) *Store {
	return &Store{db: db, now: time.Now}
}

func table(ch models.Channel) (string, error) {
	switch ch {
	case models.ChannelEmail:
		return "email_notifications", nil
	case models.ChannelSMS:
		return "sms_notifications", nil
	}
	return "", apperrors.NewUnsupportedChannelError(string(ch))
}

// selectColumns yields the same column shape for both tables so one scanner serves both.
func selectColumns(ch models.Channel) string {
	channelSpecific := `cc, bcc, COALESCE(sender, '') AS sender, subject, html_content`
	if ch == models.ChannelSMS {
		channelSpecific = `'{}'::text[] AS cc, '{}'::text[] AS bcc, COALESCE(sender, '') AS sender, '' AS subject, '' AS html_content`
	}
	return `id, COALESCE(user_id, ''), recipient, ` + channelSpecific + `, type, content,
		COALESCE(template, ''), template_data, status, priority, provider,
		COALESCE(provider_message_id, ''), COALESCE(error_message, ''), retry_count,
		scheduled_at, sent_at, delivered_at, bounced_at, metadata, created_at, updated_at`
}

// Create inserts r, assigning its ID, timestamps and pending status when unset.
func (s *Store) Create(ctx context.Context, r *models.NotificationRecord) error {
	tbl, err := table(r.Channel)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	r.ID = uuid.NewString()
	if r.Status == "" {
		r.Status = models.StatusPending
	}
	if r.Priority == "" {
		r.Priority = models.PriorityNormal
	}
	if r.Type == "" {
		r.Type = string(r.Channel)
	}
	r.CreatedAt = now
	r.UpdatedAt = now
	if problems := r.CheckInvariants(); len(problems) > 0 {
		return apperrors.NewValidationError(strings.Join(problems, "; "))
	}

	templateData, err := marshalJSON(r.TemplateData)
	if err != nil {
		return apperrors.NewValidationError("templateData: " + err.Error())
	}
	metadata, err := marshalJSON(r.Metadata)
	if err != nil {
		return apperrors.NewValidationError("metadata: " + err.Error())
	}

	common := []interface{}{
		r.ID, nullString(r.UserID), r.Recipient, r.Type, r.Content, nullString(r.Template), templateData,
		string(r.Status), string(r.Priority), r.Provider, nullString(r.ProviderMessageID), nullString(r.ErrorMessage),
		r.RetryCount, r.ScheduledAt, r.SentAt, metadata, r.CreatedAt, r.UpdatedAt,
	}
	const commonCols = `id, user_id, recipient, type, content, template, template_data, status, priority, provider,
		provider_message_id, error_message, retry_count, scheduled_at, sent_at, metadata, created_at, updated_at`

	var query string
	args := common
	if r.Channel == models.ChannelEmail {
		query = `INSERT INTO ` + tbl + ` (` + commonCols + `, sender, cc, bcc, subject, html_content)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`
		args = append(args, nullString(r.Sender), pq.Array(emptyIfNil(r.CC)), pq.Array(emptyIfNil(r.BCC)), r.Subject, r.HTMLContent)
	} else {
		query = `INSERT INTO ` + tbl + ` (` + commonCols + `, sender)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`
		args = append(args, nullString(r.Sender))
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewPersistenceError("create "+string(r.Channel)+" notification", err)
	}
	return nil
}

// MarkSent records provider acceptance. sent_at is always written with the status.
func (s *Store) MarkSent(ctx context.Context, ch models.Channel, id, providerMessageID string, sentAt time.Time) error {
	return s.update(ctx, ch, id, "mark sent",
		`status = 'sent', provider_message_id = $2, sent_at = $3, error_message = NULL, updated_at = $3`,
		nullString(providerMessageID), sentAt.UTC())
}

// MarkFailed records a failed attempt and increments retry_count.
func (s *Store) MarkFailed(ctx context.Context, ch models.Channel, id, errMsg string) error {
	if strings.TrimSpace(errMsg) == "" {
		errMsg = models.UnknownProviderError
	}
	return s.update(ctx, ch, id, "mark failed",
		`status = 'failed', error_message = $2, retry_count = retry_count + 1, updated_at = $3`,
		errMsg, s.now().UTC())
}

// MarkDelivered applies an SMS delivery receipt.
func (s *Store) MarkDelivered(ctx context.Context, id string, at time.Time) error {
	return s.update(ctx, models.ChannelSMS, id, "mark delivered",
		`status = 'delivered', delivered_at = $2, sent_at = COALESCE(sent_at, $2), updated_at = $2`,
		at.UTC())
}

// MarkUndelivered applies an SMS carrier rejection.
func (s *Store) MarkUndelivered(ctx context.Context, id, reason string) error {
	if reason == "" {
		reason = "undelivered"
	}
	return s.update(ctx, models.ChannelSMS, id, "mark undelivered",
		`status = 'undelivered', error_message = $2, updated_at = $3`,
		reason, s.now().UTC())
}

// MarkBounced applies an email bounce.
func (s *Store) MarkBounced(ctx context.Context, id, reason string, at time.Time) error {
	return s.update(ctx, models.ChannelEmail, id, "mark bounced",
		`status = 'bounced', bounced_at = $2, error_message = COALESCE(NULLIF($3, ''), error_message), updated_at = $2`,
		at.UTC(), reason)
}

// Claim moves a due record from pending to retry so that only one sweep
// sends it. It reports false when another sweep already took the record or
// it is no longer pending.
func (s *Store) Claim(ctx context.Context, ch models.Channel, id string) (bool, error) {
	tbl, err := table(ch)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE `+tbl+` SET status = 'retry', updated_at = $2 WHERE id = $1 AND status = 'pending'`,
		id, s.now().UTC())
	if err != nil {
		return false, apperrors.NewPersistenceError("claim notification", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, apperrors.NewPersistenceError("claim notification", err)
	}
	return n == 1, nil
}

func (s *Store) update(ctx context.Context, ch models.Channel, id, op, set string, args ...interface{}) error {
	tbl, err := table(ch)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE `+tbl+` SET `+set+` WHERE id = $1`, append([]interface{}{id}, args...)...)
	if err != nil {
		return apperrors.NewPersistenceError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewPersistenceError(op, err)
	}
	if n == 0 {
		return apperrors.NewNotFoundError(string(ch)+" notification", id)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, ch models.Channel, id string) (*models.NotificationRecord, error) {
	tbl, err := table(ch)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns(ch)+` FROM `+tbl+` WHERE id = $1`, id)
	r, err := scanRecord(row, ch)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFoundError(string(ch)+" notification", id)
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError("get notification", err)
	}
	return r, nil
}

// List returns one page of records, newest first.
func (s *Store) List(ctx context.Context, ch models.Channel, q HistoryQuery) ([]models.NotificationRecord, error) {
	tbl, err := table(ch)
	if err != nil {
		return nil, err
	}
	q = q.Normalize()
	where, args := q.where()
	args = append(args, q.Limit, q.offset())
	query := fmt.Sprintf(`SELECT %s FROM %s%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		selectColumns(ch), tbl, where, len(args)-1, len(args))

	return s.query(ctx, ch, "list notifications", query, args...)
}

// Count returns the number of records matching q's filters.
func (s *Store) Count(ctx context.Context, ch models.Channel, q HistoryQuery) (int, error) {
	tbl, err := table(ch)
	if err != nil {
		return 0, err
	}
	where, args := q.where()
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+tbl+where, args...).Scan(&n); err != nil {
		return 0, apperrors.NewPersistenceError("count notifications", err)
	}
	return n, nil
}

// CountSince counts records created at or after since.
func (s *Store) CountSince(ctx context.Context, ch models.Channel, since time.Time) (int, error) {
	tbl, err := table(ch)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+tbl+` WHERE created_at >= $1`, since.UTC()).Scan(&n); err != nil {
		return 0, apperrors.NewPersistenceError("count notifications", err)
	}
	return n, nil
}

// ListDue returns pending records whose scheduled_at has passed, oldest first.
func (s *Store) ListDue(ctx context.Context, ch models.Channel, now time.Time, limit int) ([]models.NotificationRecord, error) {
	tbl, err := table(ch)
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + selectColumns(ch) + ` FROM ` + tbl + `
		WHERE status = 'pending' AND scheduled_at IS NOT NULL AND scheduled_at <= $1
		ORDER BY scheduled_at ASC LIMIT $2`
	return s.query(ctx, ch, "list due notifications", query, now.UTC(), limit)
}

func (s *Store) query(ctx context.Context, ch models.Channel, op, query string, args ...interface{}) ([]models.NotificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewPersistenceError(op, err)
	}
	defer rows.Close()

	out := []models.NotificationRecord{}
	for rows.Next() {
		r, err := scanRecord(rows, ch)
		if err != nil {
			return nil, apperrors.NewPersistenceError(op, err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewPersistenceError(op, err)
	}
	return out, nil
}

func (q HistoryQuery) where() (string, []interface{}) {
	var (
		clauses []string
		args    []interface{}
	)
	add := func(col string, v interface{}) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if q.Type != "" {
		add("type", q.Type)
	}
	if q.Status != "" {
		add("status", string(q.Status))
	}
	if q.UserID != "" {
		add("user_id", q.UserID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner, ch models.Channel) (*models.NotificationRecord, error) {
	var (
		r                      models.NotificationRecord
		status, priority       string
		templateData, metadata []byte
	)
	err := row.Scan(&r.ID, &r.UserID, &r.Recipient, pq.Array(&r.CC), pq.Array(&r.BCC), &r.Sender, &r.Subject,
		&r.HTMLContent, &r.Type, &r.Content, &r.Template, &templateData, &status, &priority, &r.Provider,
		&r.ProviderMessageID, &r.ErrorMessage, &r.RetryCount, &r.ScheduledAt, &r.SentAt, &r.DeliveredAt,
		&r.BouncedAt, &metadata, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.Channel = ch
	r.Status = models.Status(status)
	r.Priority = models.Priority(priority)
	if len(templateData) > 0 {
		if err := json.Unmarshal(templateData, &r.TemplateData); err != nil {
			return nil, fmt.Errorf("decode template_data: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &r, nil
}

// marshalJSON encodes a JSONB column value; empty maps are stored as NULL.
func marshalJSON(v map[string]interface{}) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
