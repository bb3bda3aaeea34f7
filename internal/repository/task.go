package repository

import (
	"context"

	"taskapi/internal/domain"
)

// TaskRepository exposes owner-scoped persistence operations for tasks.
// A task that exists but belongs to someone else is reported as ErrNotFound.
type TaskRepository interface {
	Create(ctx context.Context, task *domain.Task) (string, error)
	Get(ctx context.Context, id, requesterID string) (*domain.Task, error)
	List(ctx context.Context, requesterID string) ([]domain.Task, error)
	ListByCompletion(ctx context.Context, completed bool, requesterID string) ([]domain.Task, error)
	Update(ctx context.Context, id, requesterID string, update domain.TaskUpdate) error
	Delete(ctx context.Context, id, requesterID string) error
}
