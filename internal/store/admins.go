package store

import (
	"context"

	"medstore/internal/models"

	"github.com/google/uuid"
)

// CreateAdmin inserts a back-office account
func (s *Store) CreateAdmin(ctx context.Context, admin *models.Admin) error {
	if admin.ID == "" {
		admin.ID = uuid.New().String()
	}
	if admin.Role == "" {
		admin.Role = models.RoleAdmin
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO admins (id, name, email, password_hash, role)
		VALUES (:id, :name, :email, :password_hash, :role)`, admin)
	return mapWriteErr(err, "admin email already registered")
}

// GetAdminByID retrieves an admin by ID
func (s *Store) GetAdminByID(ctx context.Context, id string) (*models.Admin, error) {
	var admin models.Admin
	if err := s.db.GetContext(ctx, &admin, "SELECT * FROM admins WHERE id = $1", id); err != nil {
		return nil, notFound(err, "admin "+id)
	}
	return &admin, nil
}

// GetAdminByEmail retrieves an admin by normalized email
func (s *Store) GetAdminByEmail(ctx context.Context, email string) (*models.Admin, error) {
	var admin models.Admin
	if err := s.db.GetContext(ctx, &admin, "SELECT * FROM admins WHERE email = $1", email); err != nil {
		return nil, notFound(err, "admin")
	}
	return &admin, nil
}
