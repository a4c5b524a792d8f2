package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/core/port"
	"github.com/arklim/rbac-auth-service/internal/repository"
)

// PermissionInput carries the writable permission fields. An empty Codename defaults to Name.
type PermissionInput struct {
	Name     string
	Codename string
	ParentID *string
}

// PermissionService manages individual permissions outside menu reconciliation.
type PermissionService struct {
	permissions port.PermissionRepository
}

func NewPermissionService(permissions port.PermissionRepository) *PermissionService {
	return &PermissionService{permissions: permissions}
}

// List returns every permission ordered by name.
func (s *PermissionService) List(ctx context.Context) ([]domain.Permission, error) {
	permissions, err := s.permissions.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	if permissions == nil {
		permissions = []domain.Permission{}
	}
	return permissions, nil
}

func (s *PermissionService) Get(ctx context.Context, id string) (*domain.Permission, error) {
	id = strings.TrimSpace(id)
	if !validID(id) {
		return nil, ErrPermissionNotFound
	}
	permission, err := s.permissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPermissionNotFound
		}
		return nil, fmt.Errorf("lookup permission: %w", err)
	}
	return permission, nil
}

func (s *PermissionService) Create(ctx context.Context, input PermissionInput) (*domain.Permission, error) {
	permission := domain.Permission{ID: uuid.NewString()}
	if err := s.applyInput(ctx, &permission, input); err != nil {
		return nil, err
	}

	if err := s.permissions.Create(ctx, permission); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("create permission: %w", err)
	}
	return &permission, nil
}

func (s *PermissionService) Update(ctx context.Context, id string, input PermissionInput) (*domain.Permission, error) {
	permission, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyInput(ctx, permission, input); err != nil {
		return nil, err
	}

	if err := s.permissions.Update(ctx, *permission); err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			return nil, ErrDuplicateName
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrPermissionNotFound
		}
		return nil, fmt.Errorf("update permission: %w", err)
	}
	return permission, nil
}

// Delete removes a permission. Children are detached and role grants cascade.
func (s *PermissionService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if !validID(id) {
		return ErrPermissionNotFound
	}
	if err := s.permissions.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPermissionNotFound
		}
		return fmt.Errorf("delete permission: %w", err)
	}
	return nil
}

func (s *PermissionService) applyInput(ctx context.Context, permission *domain.Permission, input PermissionInput) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return fmt.Errorf("%w: permission name is required", ErrValidation)
	}
	if utf8.RuneCountInString(name) > domain.MaxPermissionNameLength {
		return fmt.Errorf("%w: permission name exceeds %d characters", ErrValidation, domain.MaxPermissionNameLength)
	}

	codename := strings.TrimSpace(input.Codename)
	if codename == "" {
		codename = name
	}
	if utf8.RuneCountInString(codename) > domain.MaxCodenameLength {
		return fmt.Errorf("%w: codename exceeds %d characters", ErrValidation, domain.MaxCodenameLength)
	}

	parentID := trimmedOrNil(input.ParentID)
	if parentID != nil {
		if *parentID == permission.ID {
			return fmt.Errorf("%w: permission cannot be its own parent", ErrValidation)
		}
		if !validID(*parentID) {
			return fmt.Errorf("%w: parent permission does not exist", ErrValidation)
		}
		if _, err := s.permissions.GetByID(ctx, *parentID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: parent permission does not exist", ErrValidation)
			}
			return fmt.Errorf("lookup parent permission: %w", err)
		}
	}

	permission.Name = name
	permission.Codename = codename
	permission.ParentID = parentID
	return nil
}
