package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/core/port"
	"github.com/arklim/rbac-auth-service/internal/infra/telemetry"
)

// ReconciliationLockKey names the advisory lock serialising menu reconciliations.
const ReconciliationLockKey = "permission-tree-reconciliation"

var newEventID = uuid.NewString

type planAction int

const (
	planCreate planAction = iota
	planReparent
)

// planStep is one node of the walk. Parent is referenced by name because it may not exist yet.
type planStep struct {
	action     planAction
	name       string
	parentName *string
}

// MenuSynchronizer reconciles the permission table with a hierarchical menu definition.
type MenuSynchronizer struct {
	tx      port.Transactor
	events  port.EventPublisher
	metrics *telemetry.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewMenuSynchronizer constructs a MenuSynchronizer. events and metrics may be nil.
func NewMenuSynchronizer(tx port.Transactor, events port.EventPublisher, metrics *telemetry.Metrics, logger *zap.Logger) *MenuSynchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MenuSynchronizer{tx: tx, events: events, metrics: metrics, logger: logger, now: time.Now}
}

// Reconcile makes the permission tree isomorphic to menu, keyed by node name. Permissions absent
// from menu are deleted together with their role grants. The whole run is one transaction; on any
// failure nothing is written and ErrReconciliationAborted is returned.
func (m *MenuSynchronizer) Reconcile(ctx context.Context, actorID string, menu []domain.MenuNode) (domain.ReconcileResult, error) {
	ctx, span := tracer.Start(ctx, "MenuSynchronizer.Reconcile")
	defer span.End()

	if err := ValidateMenu(menu); err != nil {
		return domain.ReconcileResult{}, err
	}

	var result domain.ReconcileResult
	err := m.tx.WithinTx(ctx, ReconciliationLockKey, func(ctx context.Context, repos port.TxRepositories) error {
		applied, err := m.apply(ctx, repos.Permissions, menu)
		if err != nil {
			return err
		}
		result = applied
		return nil
	})
	m.metrics.ObserveReconciliation(result.Created, result.Reparented, result.Deleted, err)
	if err != nil {
		m.logger.Error("permission tree reconciliation aborted", zap.Error(err))
		return domain.ReconcileResult{}, recordSpanError(span, fmt.Errorf("%w: %v", ErrReconciliationAborted, err))
	}

	span.SetAttributes(
		attribute.Int("rbac.created", result.Created),
		attribute.Int("rbac.reparented", result.Reparented),
		attribute.Int("rbac.deleted", result.Deleted),
	)
	m.logger.Info("permission tree reconciled",
		zap.String("actor_id", actorID),
		zap.Int("created", result.Created),
		zap.Int("reparented", result.Reparented),
		zap.Int("deleted", result.Deleted),
		zap.Int("unchanged", result.Unchanged),
	)

	if m.events != nil && result.Changed() {
		event := domain.PermissionTreeReconciledEvent{
			EventID:      newEventID(),
			ActorID:      actorID,
			Result:       result,
			ReconciledAt: m.now().UTC(),
		}
		if err := m.events.PublishPermissionTreeReconciled(ctx, event); err != nil {
			m.logger.Warn("publish reconciliation event failed", zap.Error(err))
		}
	}
	return result, nil
}

func (m *MenuSynchronizer) apply(ctx context.Context, permissions port.PermissionRepository, menu []domain.MenuNode) (domain.ReconcileResult, error) {
	var result domain.ReconcileResult

	existing, err := permissions.List(ctx)
	if err != nil {
		return result, fmt.Errorf("snapshot permissions: %w", err)
	}
	byName := make(map[string]domain.Permission, len(existing))
	for _, permission := range existing {
		byName[permission.Name] = permission
	}

	processed := make(map[string]struct{})
	steps := planWalk(menu, nil, byName, nil, processed)

	stale := make([]string, 0)
	for _, permission := range existing {
		if _, ok := processed[permission.Name]; !ok {
			stale = append(stale, permission.ID)
		}
	}
	if len(stale) > 0 {
		deleted, err := permissions.DeleteByIDs(ctx, stale)
		if err != nil {
			return result, fmt.Errorf("delete stale permissions: %w", err)
		}
		result.Deleted = deleted
	}

	ids := make(map[string]string, len(steps))
	for _, step := range steps {
		var parentID *string
		if step.parentName != nil {
			id := ids[*step.parentName]
			parentID = &id
		}

		switch step.action {
		case planCreate:
			permission := domain.Permission{
				ID:       uuid.NewString(),
				Name:     step.name,
				Codename: step.name,
				ParentID: parentID,
			}
			if err := permissions.Create(ctx, permission); err != nil {
				return result, fmt.Errorf("create permission %q: %w", step.name, err)
			}
			ids[step.name] = permission.ID
			result.Created++
		case planReparent:
			current := byName[step.name]
			ids[step.name] = current.ID
			if current.HasParent(parentID) {
				result.Unchanged++
				continue
			}
			if err := permissions.UpdateParent(ctx, current.ID, parentID); err != nil {
				return result, fmt.Errorf("reparent permission %q: %w", step.name, err)
			}
			result.Reparented++
		}
	}

	return result, nil
}

// planWalk visits nodes depth first, parents before children, and appends one step per node:
// a reparent when the name is in known, a create otherwise. Visited names are recorded in processed.
func planWalk(nodes []domain.MenuNode, parentName *string, known map[string]domain.Permission, steps []planStep, processed map[string]struct{}) []planStep {
	for _, node := range nodes {
		name := strings.TrimSpace(node.Name)
		action := planCreate
		if _, ok := known[name]; ok {
			action = planReparent
		}
		steps = append(steps, planStep{action: action, name: name, parentName: parentName})
		processed[name] = struct{}{}

		if len(node.Children) > 0 {
			steps = planWalk(node.Children, &name, known, steps, processed)
		}
	}
	return steps
}

// ValidateMenu rejects empty, overlong and repeated node names.
func ValidateMenu(menu []domain.MenuNode) error {
	seen := make(map[string]struct{})
	return validateNodes(menu, seen)
}

func validateNodes(nodes []domain.MenuNode, seen map[string]struct{}) error {
	for _, node := range nodes {
		name := strings.TrimSpace(node.Name)
		if name == "" {
			return fmt.Errorf("%w: node name is required", ErrInvalidMenu)
		}
		if utf8.RuneCountInString(name) > domain.MaxPermissionNameLength {
			return fmt.Errorf("%w: node name %q exceeds %d characters", ErrInvalidMenu, name, domain.MaxPermissionNameLength)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: node name %q appears more than once", ErrInvalidMenu, name)
		}
		seen[name] = struct{}{}

		if err := validateNodes(node.Children, seen); err != nil {
			return err
		}
	}
	return nil
}
