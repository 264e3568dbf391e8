// Package users declares the repository contract for user accounts and its
// PostgreSQL implementation.
package users

import (
	"context"

	"github.com/dmitrijs2005/taskmanager/internal/server/models"
)

type Repository interface {
	// Create inserts user and fills its ID and timestamps. A duplicate email
	// yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	UpdateAvatar(ctx context.Context, id int64, avatar string) error
	UpdatePasswordByEmail(ctx context.Context, email string, passwordHash string) error
}
