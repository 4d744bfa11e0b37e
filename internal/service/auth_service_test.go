package service

import (
	"context"
	"testing"
	"time"

	"medstore/internal/auth"
	"medstore/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authFixture struct {
	store  *memStore
	mailer *recordingMailer
	svc    *AuthService
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	store := newMemStore()
	mailer := &recordingMailer{}
	tokens := auth.NewTokenManager("test-secret", time.Hour, 24*time.Hour)
	svc := NewAuthService(store, store, tokens, mailer, AuthOptions{
		VerificationTTL: 24 * time.Hour,
		ResetTTL:        time.Hour,
		ClientURL:       "http://localhost:5173",
	})
	svc.logger = nopLogger
	return &authFixture{store: store, mailer: mailer, svc: svc}
}

func registerRequest(email string) *RegisterRequest {
	return &RegisterRequest{
		Name:             "Bilal Ahmed",
		Email:            email,
		Password:         "s3cret-pass",
		Phone:            "03001234567",
		SecurityQuestion: "First pet?",
		SecurityAnswer:   "Tommy",
	}
}

func TestRegisterAndVerify(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	result, err := f.svc.Register(ctx, registerRequest("  Bilal@Example.com "))
	require.NoError(t, err)
	assert.Equal(t, "bilal@example.com", result.User.Email)
	assert.False(t, result.User.IsVerified)
	assert.NotEqual(t, "s3cret-pass", result.User.PasswordHash)
	require.Len(t, f.mailer.sent, 1)

	_, err = f.svc.Login(ctx, "bilal@example.com", "s3cret-pass")
	assert.ErrorIs(t, err, models.ErrUnverified)

	require.NoError(t, f.svc.VerifyEmail(ctx, result.VerificationToken))
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, result.VerificationToken), models.ErrInvalidInput)

	login, err := f.svc.Login(ctx, "BILAL@example.com", "s3cret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, login.Token)

	p, err := f.svc.ResolvePrincipal(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, p.ID)
	assert.True(t, p.IsVerified)
	assert.False(t, p.IsAdmin)
}

func TestRegisterValidation(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	short := registerRequest("a@example.com")
	short.Password = "short"
	_, err := f.svc.Register(ctx, short)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = f.svc.Register(ctx, registerRequest("a@example.com"))
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, registerRequest("A@example.com"))
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestLoginFailuresLookAlike(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, registerRequest("c@example.com"))
	require.NoError(t, err)

	_, wrongPassword := f.svc.Login(ctx, "c@example.com", "not-the-password")
	_, unknownEmail := f.svc.Login(ctx, "nobody@example.com", "s3cret-pass")

	assert.ErrorIs(t, wrongPassword, models.ErrUnauthorized)
	assert.ErrorIs(t, unknownEmail, models.ErrUnauthorized)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestSuspendedAccountIsRefused(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	result, err := f.svc.Register(ctx, registerRequest("d@example.com"))
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyEmail(ctx, result.VerificationToken))

	login, err := f.svc.Login(ctx, "d@example.com", "s3cret-pass")
	require.NoError(t, err)

	_, err = f.svc.SetAccountStatus(ctx, result.User.ID, models.AccountStatusSuspended)
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "d@example.com", "s3cret-pass")
	assert.ErrorIs(t, err, models.ErrForbidden)
	_, err = f.svc.ResolvePrincipal(ctx, login.Token)
	assert.ErrorIs(t, err, models.ErrForbidden)

	_, err = f.svc.SetAccountStatus(ctx, result.User.ID, "banished")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestResendVerification(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	first, err := f.svc.Register(ctx, registerRequest("e@example.com"))
	require.NoError(t, err)

	assert.NoError(t, f.svc.ResendVerification(ctx, "unknown@example.com"))
	require.NoError(t, f.svc.ResendVerification(ctx, "e@example.com"))
	assert.Len(t, f.mailer.sent, 2)

	// the first token was replaced
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, first.VerificationToken), models.ErrInvalidInput)
}

func TestPasswordReset(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	result, err := f.svc.Register(ctx, registerRequest("f@example.com"))
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyEmail(ctx, result.VerificationToken))

	question, err := f.svc.SecurityQuestion(ctx, "f@example.com")
	require.NoError(t, err)
	assert.Equal(t, "First pet?", question)

	_, err = f.svc.ForgotPassword(ctx, "f@example.com", "Rex")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	token, err := f.svc.ForgotPassword(ctx, "f@example.com", "  tommy ")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "short"), models.ErrInvalidInput)
	require.NoError(t, f.svc.ResetPassword(ctx, token, "brand-new-pass"))
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, token, "another-pass"), models.ErrInvalidInput)

	_, err = f.svc.Login(ctx, "f@example.com", "s3cret-pass")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = f.svc.Login(ctx, "f@example.com", "brand-new-pass")
	assert.NoError(t, err)
}

func TestChangePasswordAndProfile(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	result, err := f.svc.Register(ctx, registerRequest("g@example.com"))
	require.NoError(t, err)
	id := result.User.ID

	assert.ErrorIs(t, f.svc.ChangePassword(ctx, id, "wrong-pass", "next-password"), models.ErrInvalidInput)
	require.NoError(t, f.svc.ChangePassword(ctx, id, "s3cret-pass", "next-password"))

	city := "Karachi"
	empty := " "
	user, err := f.svc.UpdateProfile(ctx, id, ProfileUpdate{City: &city})
	require.NoError(t, err)
	assert.Equal(t, "Karachi", user.City)
	assert.Equal(t, "Bilal Ahmed", user.Name)

	_, err = f.svc.UpdateProfile(ctx, id, ProfileUpdate{Name: &empty})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestAdminPrincipal(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	created, err := f.svc.EnsureAdmin(ctx, "Owner", "Admin@AAZ.pk", "admin-password")
	require.NoError(t, err)
	assert.True(t, created)
	created, err = f.svc.EnsureAdmin(ctx, "Owner", "admin@aaz.pk", "admin-password")
	require.NoError(t, err)
	assert.False(t, created)

	_, err = f.svc.AdminLogin(ctx, "admin@aaz.pk", "nope")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	login, err := f.svc.AdminLogin(ctx, "admin@aaz.pk", "admin-password")
	require.NoError(t, err)

	p, err := f.svc.ResolvePrincipal(ctx, login.Token)
	require.NoError(t, err)
	assert.True(t, p.IsAdmin)
	assert.Equal(t, models.RoomAdmins, p.Room())

	me, err := f.svc.Me(ctx, p)
	require.NoError(t, err)
	assert.IsType(t, &models.Admin{}, me)
}

func TestResolvePrincipalRejectsGarbage(t *testing.T) {
	f := newAuthFixture(t)
	_, err := f.svc.ResolvePrincipal(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}
