package users

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-iam/internal/platform/db"
	"github.com/odyssey-erp/odyssey-iam/internal/shared"
)

var (
	errUserNotFound    = shared.NewError(shared.ErrNotFound, "User not found")
	errRoleNotFound    = shared.NewError(shared.ErrNotFound, "Role not found")
	errEmailTaken      = shared.NewError(shared.ErrConflict, "Email already exists")
	errMissingFields   = shared.NewError(shared.ErrValidation, "Email, password, name, and roleId are required")
	errDeleteSelf      = shared.NewError(shared.ErrValidation, "Cannot delete your own account")
	errEmptyField      = shared.NewError(shared.ErrValidation, "Email, password, name and roleId cannot be empty")
	errPasswordTooLong = shared.NewError(shared.ErrValidation, "Password must be at most 72 bytes")
)

// bcrypt only reads the first 72 bytes of a password and rejects longer input.
const maxPasswordBytes = 72

// PasswordHasher computes salted password hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	hasher PasswordHasher
	audit  shared.AuditRecorder
	logger *slog.Logger
}

// NewService builds Service instance. audit may be nil.
func NewService(repo RepositoryPort, hasher PasswordHasher, audit shared.AuditRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, hasher: hasher, audit: audit, logger: logger}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// GetUser fetches one user.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	u, err := s.repo.GetUser(ctx, id)
	if errors.Is(err, shared.ErrNotFound) {
		return User{}, errUserNotFound
	}
	return u, err
}

// CreateUser provisions an active user under an existing role.
func (s *Service) CreateUser(ctx context.Context, actorID string, in CreateInput) (User, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.RoleID = strings.TrimSpace(in.RoleID)
	if in.Email == "" || in.Password == "" || in.Name == "" || in.RoleID == "" {
		return User{}, errMissingFields
	}
	if len(in.Password) > maxPasswordBytes {
		return User{}, errPasswordTooLong
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, err
	}
	u := User{ID: uuid.NewString(), Email: in.Email, Name: in.Name, IsActive: true, Role: RoleRef{ID: in.RoleID}}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		taken, err := tx.EmailTaken(ctx, u.Email, "")
		if err != nil {
			return err
		}
		if taken {
			return errEmailTaken
		}
		exists, err := tx.RoleExists(ctx, u.Role.ID)
		if err != nil {
			return err
		}
		if !exists {
			return errRoleNotFound
		}
		return tx.InsertUser(ctx, &u, hash)
	})
	if err != nil {
		return User{}, writeError(err)
	}
	s.record(ctx, actorID, "user.create", u.ID, map[string]any{"email": u.Email, "role_id": u.Role.ID})
	return s.GetUser(ctx, u.ID)
}

// UpdateUser applies a partial update. A new password is rehashed; a new
// role must exist.
func (s *Service) UpdateUser(ctx context.Context, actorID, id string, in UpdateInput) (User, error) {
	for _, f := range []*string{in.Email, in.Name, in.RoleID, in.Password} {
		if f != nil && strings.TrimSpace(*f) == "" {
			return User{}, errEmptyField
		}
	}
	if in.Password != nil && len(*in.Password) > maxPasswordBytes {
		return User{}, errPasswordTooLong
	}
	var hash *string
	if in.Password != nil {
		h, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return User{}, err
		}
		hash = &h
	}
	meta := map[string]any{}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		u, err := tx.LockUser(ctx, id)
		if err != nil {
			return err
		}
		if in.Email != nil {
			email := strings.TrimSpace(*in.Email)
			taken, err := tx.EmailTaken(ctx, email, id)
			if err != nil {
				return err
			}
			if taken {
				return errEmailTaken
			}
			u.Email = email
			meta["email"] = email
		}
		if in.RoleID != nil {
			roleID := strings.TrimSpace(*in.RoleID)
			exists, err := tx.RoleExists(ctx, roleID)
			if err != nil {
				return err
			}
			if !exists {
				return errRoleNotFound
			}
			u.Role = RoleRef{ID: roleID}
			meta["role_id"] = roleID
		}
		if in.Name != nil {
			u.Name = strings.TrimSpace(*in.Name)
		}
		if in.IsActive != nil {
			u.IsActive = *in.IsActive
			meta["is_active"] = u.IsActive
		}
		if hash != nil {
			meta["password_changed"] = true
		}
		return tx.UpdateUser(ctx, &u, hash)
	})
	if err != nil {
		return User{}, writeError(err)
	}
	s.record(ctx, actorID, "user.update", id, meta)
	return s.GetUser(ctx, id)
}

// DeleteUser removes a user. Callers cannot delete themselves.
func (s *Service) DeleteUser(ctx context.Context, actorID, id string) error {
	if actorID != "" && actorID == id {
		return errDeleteSelf
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.LockUser(ctx, id); err != nil {
			return err
		}
		return tx.DeleteUser(ctx, id)
	})
	if err != nil {
		return writeError(err)
	}
	s.record(ctx, actorID, "user.delete", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actorID, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "user", EntityID: entityID, Meta: meta})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func writeError(err error) error {
	var domainErr *shared.Error
	switch {
	case errors.As(err, &domainErr):
		return err
	case errors.Is(err, shared.ErrNotFound):
		return errUserNotFound
	case db.IsUniqueViolation(err):
		return errEmailTaken
	case db.IsForeignKeyViolation(err) && db.ConstraintName(err) == db.UserRoleConstraint:
		return errRoleNotFound
	default:
		return err
	}
}
