package document

import (
	"context"
	"errors"
	"fmt"

	"taskapi/internal/docstore"
	"taskapi/internal/domain"
	"taskapi/internal/repository"
)

const usersCollection = "users"

type userDocument struct {
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
}

type UserRepository struct {
	store docstore.Gateway
}

func NewUserRepository(store docstore.Gateway) repository.UserRepository {
	return &UserRepository{store: store}
}

// Create inserts the user. Email uniqueness is the caller's responsibility:
// two concurrent registrations with the same email can both succeed.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) (string, error) {
	fields := docstore.Fields{
		"email":     user.Email,
		"createdAt": docstore.ServerTimestamp,
	}
	if user.PasswordHash != "" {
		fields["passwordHash"] = user.PasswordHash
	}

	id, err := r.store.Create(ctx, usersCollection, fields)
	if err != nil {
		return "", fmt.Errorf("create user: %w", err)
	}
	user.ID = id
	return id, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	docs, err := r.store.Query(ctx, docstore.Query{Collection: usersCollection}.Where("email", email))
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	if len(docs) == 0 {
		return nil, repository.ErrNotFound
	}
	return decodeUser(docs[0])
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	doc, err := r.store.Get(ctx, usersCollection, id)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return decodeUser(*doc)
}

func decodeUser(doc docstore.Document) (*domain.User, error) {
	var d userDocument
	if err := doc.Decode(&d); err != nil {
		return nil, err
	}
	return &domain.User{
		ID:           doc.ID,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		CreatedAt:    docstore.FromMicros(d.CreatedAt),
	}, nil
}
