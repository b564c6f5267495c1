package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"event-checkout/internal/database"
	"event-checkout/internal/models"
)

// UserRepository reads the account records checkout needs.
type UserRepository struct{}

func NewUserRepository() *UserRepository {
	return &UserRepository{}
}

func (r *UserRepository) GetByID(ctx context.Context, q database.Querier, id string) (*models.User, error) {
	query := `SELECT id, email, first_name, last_name FROM users WHERE id = $1`

	user := &models.User{}
	err := q.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.Email, &user.FirstName, &user.LastName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
