package models

import "time"

type UserStatus string

const (
	UserStatusPending   UserStatus = "pending"
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusDeleted   UserStatus = "deleted"
)

// User is the auth service's account record.
type User struct {
	ID                       string     `json:"id"`
	Email                    string     `json:"email"`
	PasswordHash             string     `json:"-"`
	FirstName                string     `json:"firstName"`
	LastName                 string     `json:"lastName"`
	Phone                    string     `json:"phone,omitempty"`
	Role                     string     `json:"role"`
	Status                   UserStatus `json:"status"`
	EmailVerified            bool       `json:"emailVerified"`
	EmailVerificationToken   string     `json:"-"`
	EmailVerificationExpires *time.Time `json:"-"`
	PasswordResetToken       string     `json:"-"`
	PasswordResetExpires     *time.Time `json:"-"`
	LoginAttempts            int        `json:"-"`
	LockedUntil              *time.Time `json:"-"`
	LastLoginAt              *time.Time `json:"lastLoginAt,omitempty"`
	CreatedAt                time.Time  `json:"createdAt"`
	UpdatedAt                time.Time  `json:"updatedAt"`
}

func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// IsLocked reports whether the lockout window is still open at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(now)
}

// RecordFailedLogin counts a bad password. Reaching maxAttempts locks the
// account for lockout and resets the counter. Returns true when this call locked it.
func (u *User) RecordFailedLogin(now time.Time, maxAttempts int, lockout time.Duration) bool {
	if u.LockedUntil != nil && !u.LockedUntil.After(now) {
		// Expired lock: start counting afresh.
		u.LockedUntil = nil
		u.LoginAttempts = 0
	}
	u.LoginAttempts++
	u.UpdatedAt = now
	if u.LoginAttempts >= maxAttempts {
		until := now.Add(lockout)
		u.LockedUntil = &until
		u.LoginAttempts = 0
		return true
	}
	return false
}

// RecordSuccessfulLogin clears lockout state and stamps LastLoginAt.
func (u *User) RecordSuccessfulLogin(now time.Time) {
	u.LoginAttempts = 0
	u.LockedUntil = nil
	u.LastLoginAt = &now
	u.UpdatedAt = now
}

// VerificationValid reports whether token matches an unexpired verification token.
func (u *User) VerificationValid(token string, now time.Time) bool {
	return token != "" && u.EmailVerificationToken == token &&
		u.EmailVerificationExpires != nil && u.EmailVerificationExpires.After(now)
}

// ResetValid reports whether token matches an unexpired password reset token.
func (u *User) ResetValid(token string, now time.Time) bool {
	return token != "" && u.PasswordResetToken == token &&
		u.PasswordResetExpires != nil && u.PasswordResetExpires.After(now)
}
