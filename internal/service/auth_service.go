package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medstore/internal/auth"
	"medstore/internal/models"
	"medstore/internal/util"

	"go.uber.org/zap"
)

var errInvalidCredentials = fmt.Errorf("%w: invalid email or password", models.ErrUnauthorized)

// AuthOptions configures token lifetimes and mailed links
type AuthOptions struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
	ClientURL       string
}

// AuthService handles accounts, credentials and principal resolution
type AuthService struct {
	users  UserRepository
	admins AdminRepository
	tokens *auth.TokenManager
	mailer Mailer
	opts   AuthOptions
	logger *zap.Logger
	now    func() time.Time
}

// NewAuthService creates a new auth service
func NewAuthService(users UserRepository, admins AdminRepository, tokens *auth.TokenManager, mailer Mailer, opts AuthOptions) *AuthService {
	return &AuthService{
		users:  users,
		admins: admins,
		tokens: tokens,
		mailer: mailer,
		opts:   opts,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// RegisterRequest represents a customer sign-up
type RegisterRequest struct {
	Name             string `json:"name" binding:"required"`
	Email            string `json:"email" binding:"required,email"`
	Password         string `json:"password" binding:"required"`
	Phone            string `json:"phone"`
	Address          string `json:"address"`
	City             string `json:"city"`
	SecurityQuestion string `json:"security_question" binding:"required"`
	SecurityAnswer   string `json:"security_answer" binding:"required"`
}

// RegisterResult carries the new account and the token that was mailed
type RegisterResult struct {
	User              *models.User
	VerificationToken string
}

// LoginResult is returned to a signed-in customer
type LoginResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// AdminLoginResult is returned to a signed-in admin
type AdminLoginResult struct {
	Token string        `json:"token"`
	Admin *models.Admin `json:"admin"`
}

// ProfileUpdate holds the editable profile fields; nil leaves a field as is
type ProfileUpdate struct {
	Name    *string `json:"name"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
	City    *string `json:"city"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validatePassword(password string) error {
	if len(password) < auth.MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", models.ErrInvalidInput, auth.MinPasswordLength)
	}
	return nil
}

// Register creates an unverified customer and mails a verification link
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*RegisterResult, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Register")
	defer span.End()

	email := normalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if name == "" || email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: name and a valid email are required", models.ErrInvalidInput)
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.SecurityQuestion) == "" {
		return nil, fmt.Errorf("%w: security question is required", models.ErrInvalidInput)
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	answerHash, err := auth.HashAnswer(req.SecurityAnswer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	token, digest, err := auth.NewOpaqueToken()
	if err != nil {
		return nil, err
	}
	expires := s.now().Add(s.opts.VerificationTTL)

	user := &models.User{
		Name:                  name,
		Email:                 email,
		PasswordHash:          passwordHash,
		Phone:                 strings.TrimSpace(req.Phone),
		Address:               strings.TrimSpace(req.Address),
		City:                  strings.TrimSpace(req.City),
		SecurityQuestion:      strings.TrimSpace(req.SecurityQuestion),
		SecurityAnswerHash:    answerHash,
		VerificationTokenHash: &digest,
		VerificationExpiresAt: &expires,
		AccountStatus:         models.AccountStatusActive,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("User registered", zap.String("user_id", user.ID))
	s.sendVerification(ctx, user, token)

	return &RegisterResult{User: user, VerificationToken: token}, nil
}

// Login authenticates a customer. Unknown email and wrong password fail the same way.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Login")
	defer span.End()

	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, models.ErrNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, errInvalidCredentials
	}
	if !user.IsVerified {
		return nil, fmt.Errorf("%w: please verify your email before signing in", models.ErrUnverified)
	}
	if user.AccountStatus != models.AccountStatusActive {
		return nil, fmt.Errorf("%w: account is %s", models.ErrForbidden, user.AccountStatus)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, User: user}, nil
}

// AdminLogin authenticates a back-office account
func (s *AuthService) AdminLogin(ctx context.Context, email, password string) (*AdminLoginResult, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.AdminLogin")
	defer span.End()

	admin, err := s.admins.GetAdminByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, models.ErrNotFound) {
		return nil, errInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(admin.PasswordHash, password) {
		return nil, errInvalidCredentials
	}

	token, err := s.tokens.Issue(admin.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Admin signed in", zap.String("admin_id", admin.ID))
	return &AdminLoginResult{Token: token, Admin: admin}, nil
}

// VerifyEmail marks the holder of a verification token verified
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	user, err := s.users.GetUserByVerificationToken(ctx, auth.DigestToken(token))
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%w: invalid or expired verification token", models.ErrInvalidInput)
	}
	if err != nil {
		return err
	}

	user.IsVerified = true
	user.VerificationTokenHash = nil
	user.VerificationExpiresAt = nil
	return s.users.UpdateUser(ctx, user)
}

// ResendVerification mails a fresh verification token. Unknown or already
// verified addresses succeed silently.
func (s *AuthService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, models.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if user.IsVerified {
		return nil
	}

	token, digest, err := auth.NewOpaqueToken()
	if err != nil {
		return err
	}
	expires := s.now().Add(s.opts.VerificationTTL)
	user.VerificationTokenHash = &digest
	user.VerificationExpiresAt = &expires
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return err
	}

	s.sendVerification(ctx, user, token)
	return nil
}

// SecurityQuestion returns the recovery question of an account
func (s *AuthService) SecurityQuestion(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", err
	}
	return user.SecurityQuestion, nil
}

// ForgotPassword checks the security answer and issues a reset token
func (s *AuthService) ForgotPassword(ctx context.Context, email, answer string) (string, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.ForgotPassword")
	defer span.End()

	invalid := fmt.Errorf("%w: invalid email or security answer", models.ErrInvalidInput)

	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, models.ErrNotFound) {
		return "", invalid
	}
	if err != nil {
		return "", err
	}
	if !auth.CheckAnswer(user.SecurityAnswerHash, answer) {
		return "", invalid
	}

	token, digest, err := auth.NewOpaqueToken()
	if err != nil {
		return "", err
	}
	expires := s.now().Add(s.opts.ResetTTL)
	user.ResetTokenHash = &digest
	user.ResetExpiresAt = &expires
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return "", err
	}

	link := fmt.Sprintf("%s/reset-password/%s", s.opts.ClientURL, token)
	s.send(ctx, user.Email, "Reset your password",
		fmt.Sprintf("Hello %s,\n\nUse the link below to choose a new password. It expires in %s.\n\n%s\n",
			user.Name, s.opts.ResetTTL, link))

	return token, nil
}

// ResetPassword sets a new password for the holder of a reset token
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) error {
	if err := validatePassword(password); err != nil {
		return err
	}

	user, err := s.users.GetUserByResetToken(ctx, auth.DigestToken(token))
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%w: invalid or expired reset token", models.ErrInvalidInput)
	}
	if err != nil {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	user.ResetTokenHash = nil
	user.ResetExpiresAt = nil
	return s.users.UpdateUser(ctx, user)
}

// ResolvePrincipal maps a bearer token to an admin, or failing that a user
func (s *AuthService) ResolvePrincipal(ctx context.Context, token string) (*models.Principal, error) {
	subject, err := s.tokens.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrUnauthorized, err)
	}

	admin, err := s.admins.GetAdminByID(ctx, subject)
	if err == nil {
		return &models.Principal{
			ID:         admin.ID,
			Name:       admin.Name,
			Email:      admin.Email,
			IsAdmin:    true,
			IsVerified: true,
		}, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	user, err := s.users.GetUserByID(ctx, subject)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown subject", models.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if user.AccountStatus != models.AccountStatusActive {
		return nil, fmt.Errorf("%w: account is %s", models.ErrForbidden, user.AccountStatus)
	}

	return &models.Principal{
		ID:         user.ID,
		Name:       user.Name,
		Email:      user.Email,
		IsVerified: user.IsVerified,
	}, nil
}

// Me returns the full record of the caller
func (s *AuthService) Me(ctx context.Context, p *models.Principal) (interface{}, error) {
	if p.IsAdmin {
		return s.admins.GetAdminByID(ctx, p.ID)
	}
	return s.users.GetUserByID(ctx, p.ID)
}

// UpdateProfile edits the contact details of a customer
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*models.User, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name cannot be empty", models.ErrInvalidInput)
		}
		user.Name = name
	}
	if upd.Phone != nil {
		user.Phone = strings.TrimSpace(*upd.Phone)
	}
	if upd.Address != nil {
		user.Address = strings.TrimSpace(*upd.Address)
	}
	if upd.City != nil {
		user.City = strings.TrimSpace(*upd.City)
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword replaces the password after checking the current one
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(user.PasswordHash, current) {
		return fmt.Errorf("%w: current password is incorrect", models.ErrInvalidInput)
	}
	if err := validatePassword(next); err != nil {
		return err
	}

	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	return s.users.UpdateUser(ctx, user)
}

// ListUsers returns every customer account
func (s *AuthService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.users.ListUsers(ctx)
}

// DeleteUser removes a customer account
func (s *AuthService) DeleteUser(ctx context.Context, id string) error {
	if err := s.users.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logger.Info("User deleted", zap.String("user_id", id))
	return nil
}

// SetAccountStatus activates or suspends a customer account
func (s *AuthService) SetAccountStatus(ctx context.Context, id, status string) (*models.User, error) {
	switch status {
	case models.AccountStatusActive, models.AccountStatusInactive, models.AccountStatusSuspended:
	default:
		return nil, fmt.Errorf("%w: unknown account status %q", models.ErrInvalidInput, status)
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	user.AccountStatus = status
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// EnsureAdmin creates the bootstrap admin unless the email is taken
func (s *AuthService) EnsureAdmin(ctx context.Context, name, email, password string) (bool, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return false, nil
	}

	_, err := s.admins.GetAdminByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return false, err
	}
	if err := validatePassword(password); err != nil {
		return false, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}
	admin := &models.Admin{Name: name, Email: email, PasswordHash: hash, Role: models.RoleAdmin}
	if err := s.admins.CreateAdmin(ctx, admin); err != nil {
		return false, err
	}

	s.logger.Info("Bootstrap admin created", zap.String("email", email))
	return true, nil
}

func (s *AuthService) sendVerification(ctx context.Context, user *models.User, token string) {
	link := fmt.Sprintf("%s/verify-email/%s", s.opts.ClientURL, token)
	s.send(ctx, user.Email, "Verify your email",
		fmt.Sprintf("Hello %s,\n\nConfirm your email address to activate your account:\n\n%s\n\nThe link expires in %s.\n",
			user.Name, link, s.opts.VerificationTTL))
}

// send mails best effort; a failed delivery can be retried by the user
func (s *AuthService) send(ctx context.Context, to, subject, body string) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.Send(ctx, to, subject, body); err != nil {
		s.logger.Warn("Failed to send email", zap.String("subject", subject), zap.Error(err))
	}
}
