package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/core/port"
	"github.com/arklim/rbac-auth-service/internal/infra/telemetry"
	"github.com/arklim/rbac-auth-service/internal/repository"
)

// GrantInput is a single-permission grant request. PermissionIDs is accepted only to reject it.
type GrantInput struct {
	RoleID        string
	PermissionID  string
	PermissionIDs []string
}

// RolePermissionService edits the permissions granted to a role.
type RolePermissionService struct {
	roles       port.RoleRepository
	permissions port.PermissionRepository
	tx          port.Transactor
	events      port.EventPublisher
	metrics     *telemetry.Metrics
	logger      *zap.Logger
	now         func() time.Time
}

// NewRolePermissionService constructs a RolePermissionService. events and metrics may be nil.
func NewRolePermissionService(
	roles port.RoleRepository,
	permissions port.PermissionRepository,
	tx port.Transactor,
	events port.EventPublisher,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *RolePermissionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RolePermissionService{
		roles:       roles,
		permissions: permissions,
		tx:          tx,
		events:      events,
		metrics:     metrics,
		logger:      logger,
		now:         time.Now,
	}
}

// Grant adds one permission to a role.
func (s *RolePermissionService) Grant(ctx context.Context, actorID string, input GrantInput) (domain.RolePermission, error) {
	roleID := strings.TrimSpace(input.RoleID)
	if roleID == "" {
		return domain.RolePermission{}, ErrRoleRequired
	}

	role, err := s.lookupRole(ctx, s.roles, roleID)
	if err != nil {
		return domain.RolePermission{}, err
	}

	permissionID := strings.TrimSpace(input.PermissionID)
	if permissionID == "" {
		if len(input.PermissionIDs) > 0 {
			return domain.RolePermission{}, ErrSinglePermissionOnly
		}
		return domain.RolePermission{}, ErrPermissionRequired
	}

	if !validID(permissionID) {
		return domain.RolePermission{}, ErrInvalidPermission
	}
	if _, err := s.permissions.GetByID(ctx, permissionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.RolePermission{}, ErrInvalidPermission
		}
		return domain.RolePermission{}, fmt.Errorf("lookup permission: %w", err)
	}

	grant := domain.RolePermission{ID: uuid.NewString(), RoleID: role.ID, PermissionID: permissionID}
	if err := s.roles.GrantPermission(ctx, grant); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.RolePermission{}, ErrPermissionAlreadyGranted
		}
		return domain.RolePermission{}, fmt.Errorf("grant permission: %w", err)
	}

	s.metrics.ObserveGrantChange("granted")
	s.publish(ctx, domain.RolePermissionsChangedEvent{
		RoleID:        role.ID,
		RoleName:      role.Name,
		PermissionIDs: []string{permissionID},
		ChangedBy:     actorID,
	})
	return grant, nil
}

// Replace swaps the full permission set of a role in one transaction. Duplicate ids are collapsed.
func (s *RolePermissionService) Replace(ctx context.Context, actorID, roleID string, permissionIDs []string) ([]domain.RolePermission, error) {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return nil, ErrRoleRequired
	}

	ids := uniqueTrimmed(permissionIDs)
	if len(ids) == 0 {
		return nil, ErrPermissionRequired
	}
	for _, id := range ids {
		if !validID(id) {
			return nil, ErrInvalidPermission
		}
	}

	var (
		role   *domain.Role
		grants []domain.RolePermission
	)
	err := s.tx.WithinTx(ctx, "", func(ctx context.Context, repos port.TxRepositories) error {
		var err error
		role, err = s.lookupRole(ctx, repos.Roles, roleID)
		if err != nil {
			return err
		}

		found, err := repos.Permissions.ListByIDs(ctx, ids)
		if err != nil {
			return fmt.Errorf("lookup permissions: %w", err)
		}
		if len(found) != len(ids) {
			return ErrInvalidPermission
		}

		grants = make([]domain.RolePermission, 0, len(ids))
		for _, id := range ids {
			grants = append(grants, domain.RolePermission{ID: uuid.NewString(), RoleID: role.ID, PermissionID: id})
		}
		if err := repos.Roles.ReplacePermissions(ctx, role.ID, grants); err != nil {
			return fmt.Errorf("replace role permissions: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveGrantChange("replaced")
	s.publish(ctx, domain.RolePermissionsChangedEvent{
		RoleID:        role.ID,
		RoleName:      role.Name,
		PermissionIDs: ids,
		Replaced:      true,
		ChangedBy:     actorID,
	})
	return grants, nil
}

// List returns the grants of a role. An unknown role yields an empty list.
func (s *RolePermissionService) List(ctx context.Context, roleID string) ([]domain.RolePermission, error) {
	roleID = strings.TrimSpace(roleID)
	if !validID(roleID) {
		return []domain.RolePermission{}, nil
	}
	grants, err := s.roles.ListPermissions(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("list role permissions: %w", err)
	}
	if grants == nil {
		grants = []domain.RolePermission{}
	}
	return grants, nil
}

func (s *RolePermissionService) lookupRole(ctx context.Context, roles port.RoleRepository, id string) (*domain.Role, error) {
	if !validID(id) {
		return nil, ErrRoleNotFound
	}
	role, err := roles.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("lookup role: %w", err)
	}
	return role, nil
}

func (s *RolePermissionService) publish(ctx context.Context, event domain.RolePermissionsChangedEvent) {
	if s.events == nil {
		return
	}
	event.EventID = newEventID()
	event.ChangedAt = s.now().UTC()
	if err := s.events.PublishRolePermissionsChanged(ctx, event); err != nil {
		s.logger.Warn("publish role permissions event failed", zap.String("role_id", event.RoleID), zap.Error(err))
	}
}

// validID reports whether id can name a stored entity.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func uniqueTrimmed(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, dup := seen[value]; dup {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
