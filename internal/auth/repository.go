package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"notification-platform/internal/common/database"
	apperrors "notification-platform/internal/common/errors"
	"notification-platform/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const userColumns = `id, email, password_hash, first_name, last_name, COALESCE(phone, ''), role, status,
	email_verified, COALESCE(email_verification_token, ''), email_verification_expires,
	COALESCE(password_reset_token, ''), password_reset_expires, login_attempts, locked_until,
	last_login_at, created_at, updated_at`

// UserRepository is the postgres store for accounts. Emails are matched
// case-insensitively.
type UserRepository struct {
	db database.DBTX
}

func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts u, assigning its ID. A taken email is EMAIL_ALREADY_REGISTERED.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, phone, role, status,
			email_verified, email_verification_token, email_verification_expires, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName, nullable(u.Phone), u.Role, string(u.Status),
		u.EmailVerified, nullable(u.EmailVerificationToken), u.EmailVerificationExpires, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return apperrors.NewEmailAlreadyRegisteredError(u.Email)
		}
		return apperrors.NewPersistenceError("create user", err)
	}
	return nil
}

// GetByEmail returns nil without error when no account matches.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.one(ctx, "get user by email", `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, strings.TrimSpace(email))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.one(ctx, "get user", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) GetByVerificationToken(ctx context.Context, token string) (*models.User, error) {
	return r.one(ctx, "get user by verification token", `SELECT `+userColumns+` FROM users WHERE email_verification_token = $1`, token)
}

func (r *UserRepository) GetByResetToken(ctx context.Context, token string) (*models.User, error) {
	return r.one(ctx, "get user by reset token", `SELECT `+userColumns+` FROM users WHERE password_reset_token = $1`, token)
}

// Update writes every mutable column of u.
func (r *UserRepository) Update(ctx context.Context, u *models.User) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, first_name = $3, last_name = $4, phone = $5, role = $6,
			status = $7, email_verified = $8, email_verification_token = $9, email_verification_expires = $10,
			password_reset_token = $11, password_reset_expires = $12, login_attempts = $13, locked_until = $14,
			last_login_at = $15, updated_at = $16
		WHERE id = $1`,
		u.ID, u.PasswordHash, u.FirstName, u.LastName, nullable(u.Phone), u.Role,
		string(u.Status), u.EmailVerified, nullable(u.EmailVerificationToken), u.EmailVerificationExpires,
		nullable(u.PasswordResetToken), u.PasswordResetExpires, u.LoginAttempts, u.LockedUntil,
		u.LastLoginAt, u.UpdatedAt,
	)
	if err != nil {
		return apperrors.NewPersistenceError("update user", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperrors.NewNotFoundError("user", u.ID)
	}
	return nil
}

// failedLoginQuery counts a bad password in one statement so concurrent
// failures cannot overwrite each other. An expired lock restarts the count;
// reaching $3 sets locked_until to $4 and clears the counter.
const failedLoginQuery = `
	UPDATE users SET
		login_attempts = CASE
			WHEN (CASE WHEN locked_until <= $2 THEN 1 ELSE login_attempts + 1 END) >= $3 THEN 0
			ELSE (CASE WHEN locked_until <= $2 THEN 1 ELSE login_attempts + 1 END)
		END,
		locked_until = CASE
			WHEN (CASE WHEN locked_until <= $2 THEN 1 ELSE login_attempts + 1 END) >= $3 THEN $4::timestamptz
			WHEN locked_until <= $2 THEN NULL
			ELSE locked_until
		END,
		updated_at = $2
	WHERE id = $1
	RETURNING login_attempts, locked_until`

// RecordFailedLogin applies one failed attempt to the stored counters and
// returns their new values.
func (r *UserRepository) RecordFailedLogin(ctx context.Context, id string, now time.Time, maxAttempts int, lockout time.Duration) (int, *time.Time, error) {
	var (
		attempts int
		locked   sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, failedLoginQuery, id, now.UTC(), maxAttempts, now.Add(lockout).UTC()).
		Scan(&attempts, &locked)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, apperrors.NewNotFoundError("user", id)
	}
	if err != nil {
		return 0, nil, apperrors.NewPersistenceError("record failed login", err)
	}
	return attempts, timePtr(locked), nil
}

func (r *UserRepository) one(ctx context.Context, op, query string, args ...interface{}) (*models.User, error) {
	var (
		u                                    models.User
		status                               string
		verifyExp, resetExp, locked, lastLog sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Phone, &u.Role, &status,
		&u.EmailVerified, &u.EmailVerificationToken, &verifyExp,
		&u.PasswordResetToken, &resetExp, &u.LoginAttempts, &locked,
		&lastLog, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewPersistenceError(op, err)
	}
	u.Status = models.UserStatus(status)
	u.EmailVerificationExpires = timePtr(verifyExp)
	u.PasswordResetExpires = timePtr(resetExp)
	u.LockedUntil = timePtr(locked)
	u.LastLoginAt = timePtr(lastLog)
	return &u, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
