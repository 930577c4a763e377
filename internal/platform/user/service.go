package user

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agrinova/agrinova/internal/anchor"
	"github.com/agrinova/agrinova/pkg/logger"
)

// Service handles user business logic
type Service struct {
	repo     Repository
	accounts AccountProvisioner
	log      *logger.Logger
}

// NewService creates a new user service
func NewService(repo Repository, accounts AccountProvisioner, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		accounts: accounts,
		log:      log.WithField("component", "user"),
	}
}

// Register registers a new user and provisions their ledger account. The
// account shares the user's ID and receives a freshly derived anchor
// address; the address is identity only, the key is discarded.
func (s *Service) Register(ctx context.Context, name, email, phone, password string) (*User, error) {
	exists, err := s.repo.Exists(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check if user exists: %w", err)
	}
	if exists {
		return nil, ErrUserAlreadyExists
	}

	address, _, err := anchor.GenerateAddress()
	if err != nil {
		return nil, fmt.Errorf("failed to derive anchor address: %w", err)
	}

	now := time.Now()
	u := &User{
		ID:            uuid.New(),
		Name:          name,
		Email:         email,
		Phone:         phone,
		AnchorAddress: address,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := u.SetPassword(password); err != nil {
		return nil, err
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if _, err := s.accounts.CreateAccount(ctx, u.ID, address); err != nil {
		return nil, fmt.Errorf("failed to provision ledger account: %w", err)
	}

	s.log.WithContext(ctx).Info("user registered", "user_id", u.ID, "anchor_address", address)
	return u, nil
}

// Login authenticates a user with email and password
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if err == ErrUserNotFound {
			// Don't reveal that the user doesn't exist
			return nil, ErrInvalidPassword
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := u.CheckPassword(password); err != nil {
		return nil, err
	}

	u.UpdateLastLogin()
	if err := s.repo.Update(ctx, u); err != nil {
		// Non-critical, login still succeeds
		s.log.WithContext(ctx).WithError(err).Warn("failed to update last login", "user_id", u.ID)
	}

	return u, nil
}

// GetByID retrieves a user by ID
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByEmail retrieves a user by email
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.repo.GetByEmail(ctx, email)
}
