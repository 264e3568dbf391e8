// Package tasks declares the repository contract for tasks. Every read and
// write is scoped by the owning user id inside the query itself, so a task
// owned by someone else is indistinguishable from a missing one.
package tasks

import (
	"context"

	"github.com/dmitrijs2005/taskmanager/internal/server/models"
)

type Repository interface {
	// ListByUser returns the user's tasks in insertion order, each with its owner joined.
	ListByUser(ctx context.Context, userID int64) ([]*models.Task, error)
	Create(ctx context.Context, task *models.Task) (*models.Task, error)
	// GetForUser returns common.ErrorNotFound unless the task exists and is owned by userID.
	GetForUser(ctx context.Context, id, userID int64) (*models.Task, error)
	// UpdateForUser overwrites title and/or status; empty values keep the stored ones.
	UpdateForUser(ctx context.Context, id, userID int64, title, status string) (*models.Task, error)
	DeleteForUser(ctx context.Context, id, userID int64) error
}
