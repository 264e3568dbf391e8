package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/taskmanager/internal/common"
	"github.com/dmitrijs2005/taskmanager/internal/dbx"
	"github.com/dmitrijs2005/taskmanager/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64) ([]*models.Task, error) {
	query :=
		`SELECT t.id, t.title, t.status, t.user_id, t.created_at, t.updated_at, u.id, u.username, u.email
		 FROM tasks t JOIN users u ON u.id = t.user_id
		 WHERE t.user_id = $1
		 ORDER BY t.id
		 `

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Task, 0)
	for rows.Next() {
		task, err := scanWithOwner(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) Create(ctx context.Context, task *models.Task) (*models.Task, error) {
	query :=
		`INSERT INTO tasks (title, status, user_id)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query, task.Title, task.Status, task.UserID).
		Scan(&task.ID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return task, nil
}

func (r *PostgresRepository) GetForUser(ctx context.Context, id, userID int64) (*models.Task, error) {
	query :=
		`SELECT t.id, t.title, t.status, t.user_id, t.created_at, t.updated_at, u.id, u.username, u.email
		 FROM tasks t JOIN users u ON u.id = t.user_id
		 WHERE t.id = $1 AND t.user_id = $2
		 `

	task, err := scanWithOwner(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return task, nil
}

func (r *PostgresRepository) UpdateForUser(ctx context.Context, id, userID int64, title, status string) (*models.Task, error) {
	query :=
		`UPDATE tasks
		 SET title = COALESCE(NULLIF($1, ''), title),
		     status = COALESCE(NULLIF($2, ''), status),
		     updated_at = now()
		 WHERE id = $3 AND user_id = $4
		 RETURNING id, title, status, user_id, created_at, updated_at
		 `

	task := &models.Task{}
	err := r.db.QueryRowContext(ctx, query, title, status, id, userID).
		Scan(&task.ID, &task.Title, &task.Status, &task.UserID, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return task, nil
}

func (r *PostgresRepository) DeleteForUser(ctx context.Context, id, userID int64) error {
	query :=
		`DELETE FROM tasks
		 WHERE id = $1 AND user_id = $2
		 `

	res, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWithOwner(s scanner) (*models.Task, error) {
	task := &models.Task{User: &models.TaskOwner{}}
	err := s.Scan(&task.ID, &task.Title, &task.Status, &task.UserID, &task.CreatedAt, &task.UpdatedAt,
		&task.User.ID, &task.User.Username, &task.User.Email)
	if err != nil {
		return nil, err
	}
	return task, nil
}
