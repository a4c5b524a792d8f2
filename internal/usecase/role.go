package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/core/port"
	"github.com/arklim/rbac-auth-service/internal/repository"
)

// RoleInput carries the writable role fields.
type RoleInput struct {
	Name        string
	Description *string
}

// RoleService manages roles.
type RoleService struct {
	roles port.RoleRepository
	now   func() time.Time
}

// NewRoleService constructs a RoleService.
func NewRoleService(roles port.RoleRepository) *RoleService {
	return &RoleService{roles: roles, now: time.Now}
}

// List returns one page of roles ordered by name.
func (s *RoleService) List(ctx context.Context, filter domain.Filter, page domain.Page) (domain.PageResult[domain.Role], error) {
	result, err := s.roles.List(ctx, filter, page)
	if err != nil {
		return domain.PageResult[domain.Role]{}, fmt.Errorf("list roles: %w", err)
	}
	if result.Results == nil {
		result.Results = []domain.Role{}
	}
	return result, nil
}

func (s *RoleService) Get(ctx context.Context, id string) (*domain.Role, error) {
	id = strings.TrimSpace(id)
	if !validID(id) {
		return nil, ErrRoleNotFound
	}
	role, err := s.roles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("lookup role: %w", err)
	}
	return role, nil
}

// Create provisions a role with a unique name.
func (s *RoleService) Create(ctx context.Context, input RoleInput) (*domain.Role, error) {
	name, err := validateRoleName(input.Name)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	role := domain.Role{
		ID:          uuid.NewString(),
		Name:        name,
		Description: trimmedOrNil(input.Description),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.roles.Create(ctx, role); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("create role: %w", err)
	}
	return &role, nil
}

// Update rewrites the name and description of a role.
func (s *RoleService) Update(ctx context.Context, id string, input RoleInput) (*domain.Role, error) {
	role, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	name, err := validateRoleName(input.Name)
	if err != nil {
		return nil, err
	}
	role.Name = name
	role.Description = trimmedOrNil(input.Description)
	role.UpdatedAt = s.now().UTC()

	if err := s.roles.Update(ctx, *role); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, ErrDuplicateName
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("update role: %w", err)
	}
	return role, nil
}

// Delete removes a role; its grants and user assignments cascade.
func (s *RoleService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if !validID(id) {
		return ErrRoleNotFound
	}
	if err := s.roles.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("delete role: %w", err)
	}
	return nil
}

func validateRoleName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("%w: role name is required", ErrValidation)
	}
	if utf8.RuneCountInString(name) > domain.MaxRoleNameLength {
		return "", fmt.Errorf("%w: role name exceeds %d characters", ErrValidation, domain.MaxRoleNameLength)
	}
	return name, nil
}

func trimmedOrNil(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
