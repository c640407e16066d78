package services

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tickethub/tickethub/app/models"
	"github.com/tickethub/tickethub/app/repositories"
	"github.com/tickethub/tickethub/pkg/logger"
)

// UserService handles admin changes to user accounts.
type UserService struct {
	users repositories.UserRepository
}

func NewUserService(users repositories.UserRepository) *UserService {
	return &UserService{users: users}
}

// UpdateUserRole sets the role of the user with id userID.
func (s *UserService) UpdateUserRole(ctx context.Context, userID, role string) (*models.User, error) {
	r, ok := models.ParseRole(role)
	if !ok {
		return nil, fail(ErrValidation, "Invalid role")
	}
	id, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fail(ErrNotFound, "User not found")
	}
	return s.setRole(ctx, id, r)
}

// UpdateRoleByEmail is UpdateUserRole keyed by email, for the CLI.
func (s *UserService) UpdateRoleByEmail(ctx context.Context, email, role string) (*models.User, error) {
	r, ok := models.ParseRole(role)
	if !ok {
		return nil, fail(ErrValidation, "Invalid role")
	}
	u, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, fail(ErrNotFound, "User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("update role: load user: %w", err)
	}
	return s.setRole(ctx, u.ID, r)
}

func (s *UserService) setRole(ctx context.Context, id primitive.ObjectID, role models.Role) (*models.User, error) {
	u, err := s.users.UpdateRole(ctx, id, role)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, fail(ErrNotFound, "User not found")
	}
	if err != nil {
		return nil, fmt.Errorf("update role: persist: %w", err)
	}
	logger.WithCtx(ctx).Info("user role changed", "user_id", id.Hex(), "role", role)
	return u, nil
}
