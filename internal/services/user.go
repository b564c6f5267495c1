package services

import (
	"context"
	"strings"

	"event-checkout/internal/models"
)

// UserServiceInterface resolves authenticated principals to accounts.
type UserServiceInterface interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// UserService handles user lookups for the HTTP layer
type UserService struct {
	db    Store
	users UserRepository
}

// NewUserService creates a new user service
func NewUserService(db Store, users UserRepository) *UserService {
	return &UserService{db: db, users: users}
}

// GetUser loads the account behind a token or session subject.
func (s *UserService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, models.ErrUserNotFound
	}
	return s.users.GetByID(ctx, s.db, userID)
}
