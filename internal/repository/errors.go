package repository

import "errors"

var (
	// ErrNotFound is returned when an entity is missing or not visible to the requester.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when the entity changed between the ownership check and the write.
	ErrConflict = errors.New("concurrent modification")
)
