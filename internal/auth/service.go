package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

var errMissingCredentials = shared.NewError(shared.ErrValidation, "Email and password are required")

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	hasher *PasswordHasher
	tokens *TokenService
}

// NewService constructs a new Service.
func NewService(repo Repository, hasher *PasswordHasher, tokens *TokenService) *Service {
	return &Service{repo: repo, hasher: hasher, tokens: tokens}
}

// Login verifies credentials and issues a session token.
//
// The password is checked before the active flag, so a deactivated account
// is only reported to a caller who already knows its password.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" {
		return nil, errMissingCredentials
	}
	user, err := s.repo.FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.hasher.burn(in.Password)
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Verify(user.PasswordHash, in.Password) {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrAccountInactive
	}
	return s.issue(user)
}

// Me returns the live profile of the authenticated caller.
func (s *Service) Me(ctx context.Context, id shared.Identity) (*Profile, error) {
	user, err := s.repo.FindByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewError(shared.ErrNotFound, "User not found")
		}
		return nil, err
	}
	p := user.profile()
	return &p, nil
}

// Refresh re-issues a token from the live user record, picking up a changed
// role. Deactivated or deleted users cannot refresh.
func (s *Service) Refresh(ctx context.Context, id shared.Identity) (*Session, error) {
	user, err := s.repo.FindByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrUnauthenticated
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, shared.ErrAccountInactive
	}
	return s.issue(user)
}

func (s *Service) issue(user *User) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(shared.Identity{UserID: user.ID, RoleID: user.RoleID, Email: user.Email})
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user.profile()}, nil
}
