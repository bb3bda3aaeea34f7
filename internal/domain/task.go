package domain

import "time"

// Task is a to-do item owned by exactly one user.
type Task struct {
	ID          string
	Title       string
	Description string
	Completed   bool
	DueDate     *time.Time
	UserID      string
	CreatedAt   time.Time
}

// TaskUpdate carries the mutable task fields. Nil members are left untouched.
// Owner and creation time are deliberately absent.
type TaskUpdate struct {
	Title       *string
	Description *string
	Completed   *bool
	DueDate     *time.Time
	// ClearDueDate removes the due date; it wins over DueDate.
	ClearDueDate bool
}

// Empty reports whether the update carries no field changes.
func (u TaskUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Completed == nil && u.DueDate == nil && !u.ClearDueDate
}
