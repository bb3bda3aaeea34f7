package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"taskapi/internal/domain"
	"taskapi/internal/repository"
)

var (
	// ErrEmailRequired indicates the request did not carry an email.
	ErrEmailRequired = errors.New("email is required")
	// ErrPasswordTooShort is returned when an optional password is set but too short.
	ErrPasswordTooShort = errors.New("password must be at least 8 characters")
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserAlreadyExists is returned when attempting to register with an existing email.
	ErrUserAlreadyExists = errors.New("user already exists")
)

// TokenIssuer signs bearer tokens for a user id.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

// Session is the outcome of a successful registration or login.
type Session struct {
	UserID string
	Token  string
}

// UserService describes user lifecycle operations.
type UserService interface {
	Register(ctx context.Context, email, password string) (*Session, error)
	Login(ctx context.Context, email, password string) (*Session, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

type userService struct {
	users  repository.UserRepository
	tokens TokenIssuer
	log    *logrus.Entry
}

func NewUserService(users repository.UserRepository, tokens TokenIssuer, logger *logrus.Logger) UserService {
	return &userService{
		users:  users,
		tokens: tokens,
		log:    logger.WithField("component", "user-service"),
	}
}

// Register creates a user unless the email is taken. The existence check and
// the insert are separate store calls, so concurrent registrations of the same
// email are not prevented.
func (s *userService) Register(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" {
		return nil, ErrEmailRequired
	}
	if password != "" && len(password) < 8 {
		return nil, ErrPasswordTooShort
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrUserAlreadyExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	user := &domain.User{Email: email}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		user.PasswordHash = string(hash)
	}

	id, err := s.users.Create(ctx, user)
	if err != nil {
		return nil, err
	}
	s.log.WithField("user_id", id).Info("user registered")
	return s.session(id)
}

// Login issues a token for the user with the given email. Accounts registered
// without a password authenticate on email alone.
func (s *userService) Login(ctx context.Context, email, password string) (*Session, error) {
	if strings.TrimSpace(email) == "" {
		return nil, ErrEmailRequired
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
			return nil, ErrInvalidCredentials
		}
	}
	return s.session(user.ID)
}

func (s *userService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *userService) session(userID string) (*Session, error) {
	token, err := s.tokens.Issue(userID)
	if err != nil {
		return nil, err
	}
	return &Session{UserID: userID, Token: token}, nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	return &domain.User{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}
}
