package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"driveguard/internal/domain"
	"driveguard/internal/repository"
	"driveguard/internal/token"
)

var (
	// ErrInvalidCredentials indicates that provided login credentials are
	// incorrect. An unknown email and a wrong password both map here so the
	// response never leaks whether an account exists.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailInUse is returned when signing up with an email that already has an account.
	ErrEmailInUse = errors.New("email is already in use")
	// ErrValidation is returned when a required signup field is missing.
	ErrValidation = errors.New("all fields are required")
)

// bcryptCost mirrors the work factor the mobile backend used.
const bcryptCost = 10

// AuthService describes account lifecycle operations.
type AuthService interface {
	Signup(ctx context.Context, username, email, password string) error
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

type authService struct {
	users  repository.UserRepository
	tokens *token.Service
	cost   int
}

func NewAuthService(users repository.UserRepository, tokens *token.Service) AuthService {
	return &authService{users: users, tokens: tokens, cost: bcryptCost}
}

// NewAuthServiceWithCost exists for tests, where the default bcrypt cost is
// too slow to hash per test case.
func NewAuthServiceWithCost(users repository.UserRepository, tokens *token.Service, cost int) AuthService {
	return &authService{users: users, tokens: tokens, cost: cost}
}

func (s *authService) Signup(ctx context.Context, username, email, password string) error {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if username == "" || email == "" || password == "" {
		return ErrValidation
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("lookup email: %w", err)
	}
	if existing != nil {
		return ErrEmailInUse
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
	}

	if err := s.users.Create(ctx, user); err != nil {
		// a concurrent signup can win the race between the lookup above and
		// this insert; the unique constraint is the authority
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return ErrEmailInUse
		}
		return err
	}
	return nil
}

func (s *authService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", nil, ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return "", nil, fmt.Errorf("lookup email: %w", err)
	}
	if user == nil {
		return "", nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	t, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}

	return t, sanitizeUser(user), nil
}

func (s *authService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", id)
	}
	return sanitizeUser(user), nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	return &domain.User{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
}
