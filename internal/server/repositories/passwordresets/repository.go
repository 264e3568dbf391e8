// Package passwordresets declares the repository contract for stored
// one-time reset codes.
package passwordresets

import (
	"context"
	"time"

	"github.com/dmitrijs2005/taskmanager/internal/server/models"
)

// Repository defines operations on one-time reset codes.
type Repository interface {
	// Create stores a new code and fills its ID and timestamps.
	Create(ctx context.Context, reset *models.PasswordReset) (*models.PasswordReset, error)

	// FindLatestUnused returns the most recently created unused code for email,
	// or common.ErrorNotFound.
	FindLatestUnused(ctx context.Context, email string) (*models.PasswordReset, error)

	// MarkUsed flips used from false to true. It returns common.ErrorNotFound
	// when the row is gone or was already used, so a code is consumed at most once.
	MarkUsed(ctx context.Context, id int64) error

	// Delete removes one code by id. Deleting a missing row is not an error.
	Delete(ctx context.Context, id int64) error

	// DeleteByEmail removes every code issued for email.
	DeleteByEmail(ctx context.Context, email string) error

	// DeleteExpired purges codes whose expiry is before now and returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
