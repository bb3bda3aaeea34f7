package service

import (
	"context"
	"errors"

	"taskapi/internal/domain"
	"taskapi/internal/repository"
)

// ErrTitleRequired is returned when a task would end up without a title.
var ErrTitleRequired = errors.New("title is required")

// TaskService coordinates owner-scoped task operations.
type TaskService interface {
	CreateTask(ctx context.Context, task *domain.Task) (string, error)
	GetTask(ctx context.Context, id, userID string) (*domain.Task, error)
	ListTasks(ctx context.Context, userID string, completed *bool) ([]domain.Task, error)
	UpdateTask(ctx context.Context, id, userID string, update domain.TaskUpdate) error
	DeleteTask(ctx context.Context, id, userID string) error
}

type taskService struct {
	tasks repository.TaskRepository
}

func NewTaskService(tasks repository.TaskRepository) TaskService {
	return &taskService{tasks: tasks}
}

func (s *taskService) CreateTask(ctx context.Context, task *domain.Task) (string, error) {
	if task.Title == "" {
		return "", ErrTitleRequired
	}
	return s.tasks.Create(ctx, task)
}

func (s *taskService) GetTask(ctx context.Context, id, userID string) (*domain.Task, error) {
	return s.tasks.Get(ctx, id, userID)
}

// ListTasks returns the user's tasks, newest first, optionally filtered by completion.
func (s *taskService) ListTasks(ctx context.Context, userID string, completed *bool) ([]domain.Task, error) {
	if completed != nil {
		return s.tasks.ListByCompletion(ctx, *completed, userID)
	}
	return s.tasks.List(ctx, userID)
}

func (s *taskService) UpdateTask(ctx context.Context, id, userID string, update domain.TaskUpdate) error {
	if update.Title != nil && *update.Title == "" {
		return ErrTitleRequired
	}
	return s.tasks.Update(ctx, id, userID, update)
}

func (s *taskService) DeleteTask(ctx context.Context, id, userID string) error {
	return s.tasks.Delete(ctx, id, userID)
}
