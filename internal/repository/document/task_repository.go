package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"taskapi/internal/docstore"
	"taskapi/internal/domain"
	"taskapi/internal/repository"
)

const tasksCollection = "tasks"

type taskDocument struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Completed   bool   `json:"completed"`
	DueDate     *int64 `json:"dueDate,omitempty"`
	UserID      string `json:"userId"`
	CreatedAt   int64  `json:"createdAt"`
}

type TaskRepository struct {
	store docstore.Gateway
	log   *logrus.Entry
}

func NewTaskRepository(store docstore.Gateway, logger *logrus.Logger) repository.TaskRepository {
	return &TaskRepository{
		store: store,
		log:   logger.WithField("component", "task-repository"),
	}
}

func (r *TaskRepository) Create(ctx context.Context, task *domain.Task) (string, error) {
	fields := docstore.Fields{
		"title":     task.Title,
		"completed": task.Completed,
		"userId":    task.UserID,
		"createdAt": docstore.ServerTimestamp,
	}
	if task.Description != "" {
		fields["description"] = task.Description
	}
	if task.DueDate != nil {
		fields["dueDate"] = *task.DueDate
	}

	id, err := r.store.Create(ctx, tasksCollection, fields)
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}
	task.ID = id
	return id, nil
}

func (r *TaskRepository) Get(ctx context.Context, id, requesterID string) (*domain.Task, error) {
	task, _, err := r.owned(ctx, id, requesterID)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func (r *TaskRepository) List(ctx context.Context, requesterID string) ([]domain.Task, error) {
	return r.list(ctx, docstore.Query{Collection: tasksCollection}.Where("userId", requesterID))
}

func (r *TaskRepository) ListByCompletion(ctx context.Context, completed bool, requesterID string) ([]domain.Task, error) {
	return r.list(ctx, docstore.Query{Collection: tasksCollection}.
		Where("userId", requesterID).
		Where("completed", completed))
}

// Update checks ownership, then writes conditionally on the version that was
// checked. A concurrent change in between surfaces as ErrConflict.
func (r *TaskRepository) Update(ctx context.Context, id, requesterID string, update domain.TaskUpdate) error {
	_, version, err := r.owned(ctx, id, requesterID)
	if err != nil {
		return err
	}

	fields := docstore.Fields{}
	if update.Title != nil {
		fields["title"] = *update.Title
	}
	if update.Description != nil {
		fields["description"] = *update.Description
	}
	if update.Completed != nil {
		fields["completed"] = *update.Completed
	}
	switch {
	case update.ClearDueDate:
		fields["dueDate"] = nil
	case update.DueDate != nil:
		// A supplied due date is stamped with the store clock, not the given value.
		fields["dueDate"] = docstore.ServerTimestamp
	}

	if err := r.store.Update(ctx, tasksCollection, id, version, fields); err != nil {
		return translate(err, "update task")
	}
	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, id, requesterID string) error {
	_, version, err := r.owned(ctx, id, requesterID)
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, tasksCollection, id, version); err != nil {
		return translate(err, "delete task")
	}
	return nil
}

// owned loads a task and hides it unless requesterID owns it.
func (r *TaskRepository) owned(ctx context.Context, id, requesterID string) (*domain.Task, string, error) {
	doc, err := r.store.Get(ctx, tasksCollection, id)
	if err != nil {
		return nil, "", translate(err, "get task")
	}
	task, err := decodeTask(*doc)
	if err != nil {
		return nil, "", err
	}
	if task.UserID != requesterID {
		r.log.WithFields(logrus.Fields{
			"task_id":   id,
			"requester": requesterID,
		}).Warn("unauthorized task access attempt")
		return nil, "", repository.ErrNotFound
	}
	return task, doc.Version, nil
}

func (r *TaskRepository) list(ctx context.Context, q docstore.Query) ([]domain.Task, error) {
	q.OrderBy = "createdAt"
	q.Descending = true

	docs, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	tasks := make([]domain.Task, 0, len(docs))
	for _, doc := range docs {
		task, err := decodeTask(doc)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, nil
}

func decodeTask(doc docstore.Document) (*domain.Task, error) {
	var d taskDocument
	if err := doc.Decode(&d); err != nil {
		return nil, err
	}
	task := &domain.Task{
		ID:          doc.ID,
		Title:       d.Title,
		Description: d.Description,
		Completed:   d.Completed,
		UserID:      d.UserID,
		CreatedAt:   docstore.FromMicros(d.CreatedAt),
	}
	if d.DueDate != nil {
		due := docstore.FromMicros(*d.DueDate)
		task.DueDate = &due
	}
	return task, nil
}

func translate(err error, op string) error {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return repository.ErrNotFound
	case errors.Is(err, docstore.ErrConflict):
		return fmt.Errorf("%s: %w", op, repository.ErrConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
