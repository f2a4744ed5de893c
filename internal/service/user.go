package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/voicescript/collector/internal/auth"
	"github.com/voicescript/collector/internal/cache"
	"github.com/voicescript/collector/internal/model"
	"github.com/voicescript/collector/internal/repository"
)

// UserService manages accounts.
type UserService struct {
	repo   *repository.Repository
	cache  *cache.Cache
	logger *slog.Logger
}

// NewUserService creates a new UserService.
func NewUserService(repo *repository.Repository, c *cache.Cache, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{repo: repo, cache: c, logger: logger.With("component", "users")}
}

// CreateUserInput defines input for creating a user.
type CreateUserInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Role      model.Role
	Gender    string
	AgeGroup  string
}

// UpdateUserInput carries optional profile changes. Nil fields are left alone.
type UpdateUserInput struct {
	FirstName *string
	LastName  *string
	Email     *string
	Gender    *string
	AgeGroup  *string
}

// List returns all users, newest first.
func (s *UserService) List(ctx context.Context) ([]*model.User, error) {
	return s.repo.ListUsers(ctx)
}

// Get returns one user.
func (s *UserService) Get(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// Create adds a local account.
func (s *UserService) Create(ctx context.Context, in CreateUserInput) (*model.User, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, invalid("email", "email is required")
	}
	if in.Password == "" {
		return nil, invalid("password", "password is required")
	}
	role := in.Role
	if role == "" {
		role = model.RoleProvider
	}
	if !role.Valid() {
		return nil, invalid("role", "role must be provider, reviewer or admin")
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Email:        email,
		PasswordHash: &hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Role:         role,
		Gender:       in.Gender,
		AgeGroup:     in.AgeGroup,
		AuthProvider: model.AuthProviderLocal,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	s.logger.Info("user_created", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Update edits names, email and demographics.
func (s *UserService) Update(ctx context.Context, id int64, in UpdateUserInput) (*model.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	applyUserUpdate(user, in)
	if user.Email == "" {
		return nil, invalid("email", "email is required")
	}

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return nil, ErrUserExists
		case errors.Is(err, repository.ErrUserNotFound):
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateProfile lets a user edit their own names and demographics.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, in UpdateUserInput) (*model.User, error) {
	in.Email = nil
	return s.Update(ctx, userID, in)
}

// UpdateRole changes a role and revokes the user's sessions so the new
// role applies on next login.
func (s *UserService) UpdateRole(ctx context.Context, id int64, role model.Role) error {
	if !role.Valid() {
		return invalid("role", "role must be provider, reviewer or admin")
	}
	if err := s.repo.UpdateUserRole(ctx, id, role); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	s.revokeSessions(ctx, id)
	s.logger.Info("user_role_changed", "user_id", id, "role", role)
	return nil
}

// Delete removes a user. Admins cannot delete themselves.
func (s *UserService) Delete(ctx context.Context, actor *model.Principal, id int64) error {
	if actor != nil && actor.UserID == id {
		return ErrCannotDeleteSelf
	}
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	s.revokeSessions(ctx, id)
	s.logger.Info("user_deleted", "user_id", id)
	return nil
}

// RoleStats counts users per role.
func (s *UserService) RoleStats(ctx context.Context) (map[model.Role]int64, error) {
	return s.repo.CountUsersByRole(ctx)
}

func (s *UserService) revokeSessions(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.DeleteUserSessions(ctx, userID); err != nil {
		s.logger.Warn("session_revoke_failed", "user_id", userID, "error", err)
	}
}

func applyUserUpdate(u *model.User, in UpdateUserInput) {
	if in.FirstName != nil {
		u.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		u.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Email != nil {
		u.Email = normalizeEmail(*in.Email)
	}
	if in.Gender != nil {
		u.Gender = *in.Gender
	}
	if in.AgeGroup != nil {
		u.AgeGroup = *in.AgeGroup
	}
}
