package store

import (
	"context"
	"fmt"

	"medstore/internal/models"

	"github.com/google/uuid"
)

// CreateUser inserts a new customer account
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.AccountStatus == "" {
		user.AccountStatus = models.AccountStatusActive
	}

	query := `
		INSERT INTO users (id, name, email, password_hash, phone, address, city, is_verified,
			security_question, security_answer_hash, verification_token_hash, verification_expires_at,
			account_status)
		VALUES (:id, :name, :email, :password_hash, :phone, :address, :city, :is_verified,
			:security_question, :security_answer_hash, :verification_token_hash, :verification_expires_at,
			:account_status)`

	if _, err := s.db.NamedExecContext(ctx, query, user); err != nil {
		return mapWriteErr(err, "email already registered")
	}
	return nil
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id); err != nil {
		return nil, notFound(err, "user "+id)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by normalized email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE email = $1", email); err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

// GetUserByVerificationToken finds the user holding an unexpired verification token digest
func (s *Store) GetUserByVerificationToken(ctx context.Context, digest string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `
		SELECT * FROM users
		WHERE verification_token_hash = $1 AND verification_expires_at > NOW()`, digest)
	if err != nil {
		return nil, notFound(err, "verification token")
	}
	return &user, nil
}

// GetUserByResetToken finds the user holding an unexpired reset token digest
func (s *Store) GetUserByResetToken(ctx context.Context, digest string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, `
		SELECT * FROM users
		WHERE reset_token_hash = $1 AND reset_expires_at > NOW()`, digest)
	if err != nil {
		return nil, notFound(err, "reset token")
	}
	return &user, nil
}

// UpdateUser writes back every mutable user field
func (s *Store) UpdateUser(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users SET
			name = :name,
			phone = :phone,
			address = :address,
			city = :city,
			password_hash = :password_hash,
			is_verified = :is_verified,
			verification_token_hash = :verification_token_hash,
			verification_expires_at = :verification_expires_at,
			reset_token_hash = :reset_token_hash,
			reset_expires_at = :reset_expires_at,
			account_status = :account_status,
			updated_at = NOW()
		WHERE id = :id`

	res, err := s.db.NamedExecContext(ctx, query, user)
	return expectOne(res, mapWriteErr(err, "user"), "user "+user.ID)
}

// ListUsers returns all customers, newest first
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	if err := s.db.SelectContext(ctx, &users, "SELECT * FROM users ORDER BY created_at DESC"); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// DeleteUser removes a customer account. Their orders are kept as guest orders.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	return expectOne(res, notFound(err, "user "+id), "user "+id)
}
