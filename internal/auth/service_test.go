package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "notification-platform/internal/common/errors"
	"notification-platform/internal/common/logger"
	"notification-platform/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const goodPassword = "Secreto#2024"

// ==========================
// Fakes
// ==========================

type fakeUsers struct {
	mu        sync.Mutex
	byID      map[string]*models.User
	nextID    int
	getErr    error
	updates   int
	failedErr error
}

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: map[string]*models.User{}} }

func (f *fakeUsers) Create(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u.ID = "u-" + string(rune('0'+f.nextID))
	cp := *u
	f.byID[u.ID] = &cp
	return nil
}

func (f *fakeUsers) find(match func(*models.User) bool) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.byID {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return strings.EqualFold(u.Email, strings.TrimSpace(email)) })
}

func (f *fakeUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.ID == id })
}

func (f *fakeUsers) GetByVerificationToken(_ context.Context, token string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.EmailVerificationToken == token })
}

func (f *fakeUsers) GetByResetToken(_ context.Context, token string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.PasswordResetToken == token })
}

func (f *fakeUsers) Update(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	cp := *u
	f.byID[u.ID] = &cp
	return nil
}

func (f *fakeUsers) RecordFailedLogin(_ context.Context, id string, now time.Time, maxAttempts int, lockout time.Duration) (int, *time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failedErr != nil {
		return 0, nil, f.failedErr
	}
	u, ok := f.byID[id]
	if !ok {
		return 0, nil, apperrors.NewNotFoundError("user", id)
	}
	u.RecordFailedLogin(now, maxAttempts, lockout)
	return u.LoginAttempts, u.LockedUntil, nil
}

func (f *fakeUsers) get(id string) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

type published struct {
	topic   string
	key     string
	payload map[string]interface{}
}

type fakePublisher struct {
	events []published
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, message interface{}, key string) error {
	f.events = append(f.events, published{topic: topic, key: key, payload: message.(map[string]interface{})})
	return f.err
}

type memoryRevocations struct{ ids map[string]time.Time }

func (m *memoryRevocations) Revoke(_ context.Context, jti string, exp time.Time) error {
	m.ids[jti] = exp
	return nil
}

func (m *memoryRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	_, ok := m.ids[jti]
	return ok, nil
}

type serviceFixture struct {
	svc     *Service
	users   *fakeUsers
	events  *fakePublisher
	revoked *memoryRevocations
	now     time.Time
}

func newServiceFixture(t *testing.T) *serviceFixture {
	tokens := newTestTokens(t)
	f := &serviceFixture{
		users:   newFakeUsers(),
		events:  &fakePublisher{},
		revoked: &memoryRevocations{ids: map[string]time.Time{}},
		now:     fixedNow,
	}
	f.svc = NewService(f.users, tokens, f.revoked, f.events, Settings{
		BcryptCost:  bcrypt.MinCost,
		FrontendURL: "https://app.bjj.io/",
	}, logger.NewTestLogger(t))
	f.svc.now = func() time.Time { return f.now }
	return f
}

// activeUser registers and verifies an account.
func (f *serviceFixture) activeUser(t *testing.T) *models.User {
	u, err := f.svc.Register(context.Background(), RegisterRequest{
		Email: "Ana@BJJ.io", Password: goodPassword, FirstName: "Ana", LastName: "Ruiz",
	})
	require.NoError(t, err)
	verified, err := f.svc.VerifyEmail(context.Background(), u.EmailVerificationToken)
	require.NoError(t, err)
	return verified
}

// ==========================
// Register / verify
// ==========================

func TestService_Register(t *testing.T) {
	f := newServiceFixture(t)

	u, err := f.svc.Register(context.Background(), RegisterRequest{
		Email: " Ana@BJJ.io ", Password: goodPassword, FirstName: "Ana", LastName: "Ruiz",
	})
	require.NoError(t, err)

	assert.Equal(t, "ana@bjj.io", u.Email)
	assert.Equal(t, models.UserStatusPending, u.Status)
	assert.False(t, u.EmailVerified)
	assert.NotEqual(t, goodPassword, u.PasswordHash)
	assert.Len(t, u.EmailVerificationToken, 64)
	require.NotNil(t, u.EmailVerificationExpires)
	assert.Equal(t, fixedNow.Add(24*time.Hour), *u.EmailVerificationExpires)

	require.Len(t, f.events.events, 1)
	ev := f.events.events[0]
	assert.Equal(t, TopicUserRegistered, ev.topic)
	assert.Equal(t, u.ID, ev.key)
	assert.Equal(t, "Ana Ruiz", ev.payload["name"])
	assert.Equal(t, u.EmailVerificationToken, ev.payload["verificationToken"])
}

func TestService_RegisterValidation(t *testing.T) {
	tests := []struct {
		name string
		req  RegisterRequest
		code apperrors.ErrorCode
	}{
		{"bad email", RegisterRequest{Email: "nope", Password: goodPassword}, apperrors.ErrCodeValidationFailed},
		{"short password", RegisterRequest{Email: "a@b.io", Password: "Ab1!"}, apperrors.ErrCodeValidationFailed},
		{"no uppercase", RegisterRequest{Email: "a@b.io", Password: "secreto#2024"}, apperrors.ErrCodeValidationFailed},
		{"letters only", RegisterRequest{Email: "a@b.io", Password: "SecretoLargo"}, apperrors.ErrCodeValidationFailed},
		{"bad phone", RegisterRequest{Email: "a@b.io", Password: goodPassword, Phone: "5550000"}, apperrors.ErrCodeValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t)
			_, err := f.svc.Register(context.Background(), tt.req)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
			assert.Empty(t, f.events.events)
		})
	}
}

func TestService_RegisterDuplicate(t *testing.T) {
	f := newServiceFixture(t)
	f.activeUser(t)

	_, err := f.svc.Register(context.Background(), RegisterRequest{Email: "ana@bjj.io", Password: goodPassword})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeEmailAlreadyRegistered))
}

func TestService_RegisterSurvivesPublishFailure(t *testing.T) {
	f := newServiceFixture(t)
	f.events.err = errors.New("broker down")

	_, err := f.svc.Register(context.Background(), RegisterRequest{Email: "ana@bjj.io", Password: goodPassword})
	assert.NoError(t, err)
}

func TestService_VerifyEmail(t *testing.T) {
	f := newServiceFixture(t)
	u := f.activeUser(t)

	assert.Equal(t, models.UserStatusActive, u.Status)
	assert.True(t, u.EmailVerified)
	assert.Empty(t, u.EmailVerificationToken)
	require.Len(t, f.events.events, 2)
	assert.Equal(t, TopicUserVerified, f.events.events[1].topic)
}

func TestService_VerifyEmailExpired(t *testing.T) {
	f := newServiceFixture(t)
	u, err := f.svc.Register(context.Background(), RegisterRequest{Email: "ana@bjj.io", Password: goodPassword})
	require.NoError(t, err)

	f.now = fixedNow.Add(25 * time.Hour)
	_, err = f.svc.VerifyEmail(context.Background(), u.EmailVerificationToken)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidToken))

	_, err = f.svc.VerifyEmail(context.Background(), "unknown")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidToken))
}

func TestService_ResendVerification(t *testing.T) {
	f := newServiceFixture(t)
	u, err := f.svc.Register(context.Background(), RegisterRequest{Email: "ana@bjj.io", Password: goodPassword})
	require.NoError(t, err)

	require.NoError(t, f.svc.ResendVerification(context.Background(), "ana@bjj.io"))
	assert.NotEqual(t, u.EmailVerificationToken, f.users.get(u.ID).EmailVerificationToken)
	assert.Len(t, f.events.events, 2)

	require.NoError(t, f.svc.ResendVerification(context.Background(), "ghost@bjj.io"))
	assert.Len(t, f.events.events, 2)
}

// ==========================
// Login
// ==========================

func TestService_LoginSuccess(t *testing.T) {
	f := newServiceFixture(t)
	u := f.activeUser(t)

	resp, err := f.svc.Login(context.Background(), LoginRequest{Email: "ANA@bjj.io", Password: goodPassword})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, u.ID, resp.User.ID)
	stored := f.users.get(u.ID)
	require.NotNil(t, stored.LastLoginAt)
	assert.Equal(t, fixedNow, *stored.LastLoginAt)
}

func TestService_LoginErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown email", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.Login(ctx, LoginRequest{Email: "ghost@bjj.io", Password: goodPassword})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidCredentials))
	})

	t.Run("suspended", func(t *testing.T) {
		f := newServiceFixture(t)
		u := f.activeUser(t)
		stored := f.users.get(u.ID)
		stored.Status = models.UserStatusSuspended
		_, err := f.svc.Login(ctx, LoginRequest{Email: u.Email, Password: goodPassword})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAccountInactive))
	})

	t.Run("unverified with correct password", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.Register(ctx, RegisterRequest{Email: "ana@bjj.io", Password: goodPassword})
		require.NoError(t, err)
		_, err = f.svc.Login(ctx, LoginRequest{Email: "ana@bjj.io", Password: goodPassword})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeEmailNotVerified))
	})

	t.Run("unverified with wrong password", func(t *testing.T) {
		f := newServiceFixture(t)
		_, err := f.svc.Register(ctx, RegisterRequest{Email: "ana@bjj.io", Password: goodPassword})
		require.NoError(t, err)
		_, err = f.svc.Login(ctx, LoginRequest{Email: "ana@bjj.io", Password: "Wrong#2024"})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidCredentials))
	})
}

func TestService_LoginLockout(t *testing.T) {
	f := newServiceFixture(t)
	u := f.activeUser(t)
	ctx := context.Background()
	bad := LoginRequest{Email: u.Email, Password: "Wrong#2024"}

	for i := 0; i < 4; i++ {
		_, err := f.svc.Login(ctx, bad)
		require.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidCredentials))
	}
	assert.Equal(t, 4, f.users.get(u.ID).LoginAttempts)

	_, err := f.svc.Login(ctx, bad)
	require.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidCredentials))
	stored := f.users.get(u.ID)
	require.NotNil(t, stored.LockedUntil)
	assert.Equal(t, fixedNow.Add(30*time.Minute), *stored.LockedUntil)
	assert.Equal(t, 0, stored.LoginAttempts)

	// Even the right password is refused while locked.
	_, err = f.svc.Login(ctx, LoginRequest{Email: u.Email, Password: goodPassword})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAccountLocked))

	f.now = fixedNow.Add(31 * time.Minute)
	_, err = f.svc.Login(ctx, LoginRequest{Email: u.Email, Password: goodPassword})
	require.NoError(t, err)
	assert.Nil(t, f.users.get(u.ID).LockedUntil)
}

func TestService_LoginFailureOnlyTouchesCounters(t *testing.T) {
	tests := []struct {
		name      string
		failedErr error
		wantCode  apperrors.ErrorCode
	}{
		{"counter updated", nil, apperrors.ErrCodeInvalidCredentials},
		{"store failure surfaces", apperrors.NewPersistenceError("record failed login", errors.New("timeout")), apperrors.ErrCodePersistenceFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t)
			u := f.activeUser(t)
			f.users.failedErr = tt.failedErr
			before := f.users.updates

			_, err := f.svc.Login(context.Background(), LoginRequest{Email: u.Email, Password: "Wrong#2024"})

			assert.True(t, apperrors.HasCode(err, tt.wantCode))
			assert.Equal(t, before, f.users.updates, "a failed login must not rewrite the whole user row")
		})
	}
}

// ==========================
// Tokens
// ==========================

func TestService_RefreshRotates(t *testing.T) {
	f := newServiceFixture(t)
	u := f.activeUser(t)
	ctx := context.Background()
	resp, err := f.svc.Login(ctx, LoginRequest{Email: u.Email, Password: goodPassword})
	require.NoError(t, err)

	pair, err := f.svc.Refresh(ctx, resp.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)

	_, err = f.svc.Refresh(ctx, resp.RefreshToken)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidToken))

	_, err = f.svc.Refresh(ctx, resp.AccessToken)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidToken))
}

func TestService_Logout(t *testing.T) {
	f := newServiceFixture(t)
	u := f.activeUser(t)
	ctx := context.Background()
	resp, err := f.svc.Login(ctx, LoginRequest{Email: u.Email, Password: goodPassword})
	require.NoError(t, err)

	_, err = f.svc.Authenticate(ctx, resp.AccessToken, tokenTypeAccess)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, resp.AccessToken))
	assert.Len(t, f.revoked.ids, 1)

	_, err = f.svc.Authenticate(ctx, resp.AccessToken, tokenTypeAccess)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidToken))
}

// ==========================
// Password reset
// ==========================

func TestService_ForgotAndResetPassword(t *testing.T) {
	f := newServiceFixture(t)
	u := f.activeUser(t)
	ctx := context.Background()

	require.NoError(t, f.svc.ForgotPassword(ctx, u.Email))
	ev := f.events.events[len(f.events.events)-1]
	assert.Equal(t, TopicUserPasswordReset, ev.topic)
	token := ev.payload["resetToken"].(string)
	assert.Equal(t, "https://app.bjj.io/reset-password?token="+token, ev.payload["resetLink"])
	assert.Equal(t, fixedNow.Add(time.Hour), *f.users.get(u.ID).PasswordResetExpires)

	require.NoError(t, f.svc.ResetPassword(ctx, token, "Nuevo#Clave9"))

	stored := f.users.get(u.ID)
	assert.Empty(t, stored.PasswordResetToken)
	assert.Nil(t, stored.PasswordResetExpires)

	_, err := f.svc.Login(ctx, LoginRequest{Email: u.Email, Password: "Nuevo#Clave9"})
	assert.NoError(t, err)
	_, err = f.svc.Login(ctx, LoginRequest{Email: u.Email, Password: goodPassword})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidCredentials))
}

func TestService_ForgotPasswordUnknownIsSilent(t *testing.T) {
	f := newServiceFixture(t)

	assert.NoError(t, f.svc.ForgotPassword(context.Background(), "ghost@bjj.io"))
	assert.Empty(t, f.events.events)
}

func TestService_ResetPasswordClearsLockout(t *testing.T) {
	f := newServiceFixture(t)
	u := f.activeUser(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _ = f.svc.Login(ctx, LoginRequest{Email: u.Email, Password: "Wrong#2024"})
	}
	require.NotNil(t, f.users.get(u.ID).LockedUntil)

	require.NoError(t, f.svc.ForgotPassword(ctx, u.Email))
	token := f.users.get(u.ID).PasswordResetToken
	require.NoError(t, f.svc.ResetPassword(ctx, token, "Nuevo#Clave9"))

	assert.Nil(t, f.users.get(u.ID).LockedUntil)
}

func TestService_ResetPasswordRejects(t *testing.T) {
	f := newServiceFixture(t)
	u := f.activeUser(t)
	ctx := context.Background()
	require.NoError(t, f.svc.ForgotPassword(ctx, u.Email))
	token := f.users.get(u.ID).PasswordResetToken

	err := f.svc.ResetPassword(ctx, token, "weak")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidationFailed))

	f.now = fixedNow.Add(2 * time.Hour)
	err = f.svc.ResetPassword(ctx, token, "Nuevo#Clave9")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidToken))
}

func TestService_ChangePassword(t *testing.T) {
	f := newServiceFixture(t)
	u := f.activeUser(t)
	ctx := context.Background()

	err := f.svc.ChangePassword(ctx, u.ID, "Wrong#2024", "Nuevo#Clave9")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidCredentials))

	require.NoError(t, f.svc.ChangePassword(ctx, u.ID, goodPassword, "Nuevo#Clave9"))
	_, err = f.svc.Login(ctx, LoginRequest{Email: u.Email, Password: "Nuevo#Clave9"})
	assert.NoError(t, err)

	_, err = f.svc.Profile(ctx, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestService_StoreFailurePropagates(t *testing.T) {
	f := newServiceFixture(t)
	f.users.getErr = apperrors.NewPersistenceError("get user", errors.New("db down"))

	_, err := f.svc.Login(context.Background(), LoginRequest{Email: "ana@bjj.io", Password: goodPassword})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodePersistenceFailed))
}
