package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/taskmanager/internal/common"
	"github.com/dmitrijs2005/taskmanager/internal/logging"
	"github.com/dmitrijs2005/taskmanager/internal/server/models"
	"github.com/dmitrijs2005/taskmanager/internal/server/repositories/repomanager"
)

// TaskNotifier is told about every successful task mutation. Calls must
// not block.
type TaskNotifier interface {
	TaskCreated(userID int64, task *models.Task)
	TaskUpdated(userID int64, task *models.Task)
	TaskDeleted(userID int64, taskID int64)
}

// TaskService is CRUD over the caller's own tasks. Tasks of other users
// behave exactly like missing ones.
type TaskService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	notifier    TaskNotifier
	logger      logging.Logger
}

func NewTaskService(db *sql.DB, m repomanager.RepositoryManager, notifier TaskNotifier, logger logging.Logger) *TaskService {
	return &TaskService{db: db, repomanager: m, notifier: notifier, logger: logger}
}

func (s *TaskService) List(ctx context.Context, userID int64) ([]*models.Task, error) {
	tasks, err := s.repomanager.Tasks(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing tasks: %w", err)
	}
	return tasks, nil
}

// Create stores a task for userID. An empty status means todo.
func (s *TaskService) Create(ctx context.Context, userID int64, title, status string) (*models.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", common.ErrorValidation)
	}
	if status == "" {
		status = common.TaskStatusTodo
	}
	if err := validateStatus(status); err != nil {
		return nil, err
	}

	task, err := s.repomanager.Tasks(s.db).Create(ctx, &models.Task{Title: title, Status: status, UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("error creating task: %w", err)
	}

	s.notifier.TaskCreated(userID, task)
	return task, nil
}

func (s *TaskService) Get(ctx context.Context, userID, id int64) (*models.Task, error) {
	task, err := s.repomanager.Tasks(s.db).GetForUser(ctx, id, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading task: %w", err)
	}
	return task, nil
}

// Update changes only the non-empty fields.
func (s *TaskService) Update(ctx context.Context, userID, id int64, title, status string) (*models.Task, error) {
	title = strings.TrimSpace(title)
	if status != "" {
		if err := validateStatus(status); err != nil {
			return nil, err
		}
	}

	task, err := s.repomanager.Tasks(s.db).UpdateForUser(ctx, id, userID, title, status)
	if err != nil {
		return nil, fmt.Errorf("error updating task: %w", err)
	}

	s.notifier.TaskUpdated(userID, task)
	return task, nil
}

func (s *TaskService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.repomanager.Tasks(s.db).DeleteForUser(ctx, id, userID); err != nil {
		return fmt.Errorf("error deleting task: %w", err)
	}

	s.notifier.TaskDeleted(userID, id)
	return nil
}

func validateStatus(status string) error {
	switch status {
	case common.TaskStatusTodo, common.TaskStatusInProgress, common.TaskStatusDone:
		return nil
	}
	return fmt.Errorf("%w: status must be one of %s, %s, %s", common.ErrorValidation,
		common.TaskStatusTodo, common.TaskStatusInProgress, common.TaskStatusDone)
}
