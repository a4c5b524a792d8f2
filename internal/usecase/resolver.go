package usecase

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/core/port"
)

const tracerName = "github.com/arklim/rbac-auth-service/internal/usecase"

var tracer = otel.Tracer(tracerName)

// PermissionResolver computes the effective permission set of a user from its role grants.
type PermissionResolver struct {
	roles       port.RoleRepository
	permissions port.PermissionRepository
}

// NewPermissionResolver constructs a PermissionResolver.
func NewPermissionResolver(roles port.RoleRepository, permissions port.PermissionRepository) *PermissionResolver {
	return &PermissionResolver{roles: roles, permissions: permissions}
}

// Resolve returns the user's role names and one menu entry per distinct (permission, role) pair.
// A user without roles yields empty slices.
func (r *PermissionResolver) Resolve(ctx context.Context, userID string) (domain.EffectivePermissions, error) {
	ctx, span := tracer.Start(ctx, "PermissionResolver.Resolve", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	result := domain.EffectivePermissions{RoleNames: []string{}, Menu: []domain.MenuEntry{}}

	roles, err := r.roles.ListByUser(ctx, userID)
	if err != nil {
		return result, recordSpanError(span, fmt.Errorf("list user roles: %w", err))
	}
	for _, role := range roles {
		result.RoleNames = append(result.RoleNames, role.Name)
	}

	if len(roles) == 0 {
		return result, nil
	}

	menu, err := r.permissions.ListMenuByUser(ctx, userID)
	if err != nil {
		return result, recordSpanError(span, fmt.Errorf("list user menu: %w", err))
	}
	if menu != nil {
		result.Menu = menu
	}

	span.SetAttributes(
		attribute.Int("rbac.roles", len(result.RoleNames)),
		attribute.Int("rbac.menu_entries", len(result.Menu)),
	)
	return result, nil
}

// ListPermissions returns every permission reachable through the user's roles exactly once.
func (r *PermissionResolver) ListPermissions(ctx context.Context, userID string) ([]domain.PermissionSummary, error) {
	ctx, span := tracer.Start(ctx, "PermissionResolver.ListPermissions", trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	summaries, err := r.permissions.ListSummariesByUser(ctx, userID)
	if err != nil {
		return nil, recordSpanError(span, fmt.Errorf("list user permissions: %w", err))
	}
	if summaries == nil {
		summaries = []domain.PermissionSummary{}
	}
	return summaries, nil
}

func recordSpanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
