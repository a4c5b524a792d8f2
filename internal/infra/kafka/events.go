package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/core/port"
	"github.com/arklim/rbac-auth-service/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types emitted by the service.
const (
	EventPermissionTreeReconciled = "rbac.permission_tree.reconciled"
	EventRolePermissionsGranted   = "rbac.role.permissions_granted"
	EventRolePermissionsReplaced  = "rbac.role.permissions_replaced"
	EventUserRolesAssigned        = "rbac.user.roles_assigned"
	EventUserRolesRevoked         = "rbac.user.roles_revoked"
	EventUserLoggedIn             = "rbac.user.logged_in"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID     string           `json:"event_id"`
	EventType   string           `json:"event_type"`
	AggregateID string           `json:"aggregate_id,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
	Version     string           `json:"version"`
	Payload     any              `json:"payload"`
	Metadata    envelopeMetadata `json:"metadata,omitempty"`
}

type roleRef struct {
	RoleID   string `json:"role_id"`
	RoleName string `json:"role_name"`
}

func roleRefs(assignments []domain.RoleAssignment) []roleRef {
	refs := make([]roleRef, 0, len(assignments))
	for _, assignment := range assignments {
		refs = append(refs, roleRef{RoleID: assignment.RoleID, RoleName: assignment.RoleName})
	}
	return refs
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, aggregateID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	envelope := eventEnvelope{
		EventID:     id,
		EventType:   eventType,
		AggregateID: aggregateID,
		Timestamp:   ts.UTC(),
		Version:     schemaVersion,
		Payload:     payload,
		Metadata:    metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(aggregateID),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishPermissionTreeReconciled publishes rbac.permission_tree.reconciled events.
func (p *EventPublisher) PublishPermissionTreeReconciled(ctx context.Context, event domain.PermissionTreeReconciledEvent) error {
	payload := struct {
		ActorID      string    `json:"actor_id,omitempty"`
		Created      int       `json:"created"`
		Reparented   int       `json:"reparented"`
		Deleted      int       `json:"deleted"`
		Unchanged    int       `json:"unchanged"`
		ReconciledAt time.Time `json:"reconciled_at"`
	}{
		ActorID:      event.ActorID,
		Created:      event.Result.Created,
		Reparented:   event.Result.Reparented,
		Deleted:      event.Result.Deleted,
		Unchanged:    event.Result.Unchanged,
		ReconciledAt: event.ReconciledAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventPermissionTreeReconciled, "permission_tree", event.ReconciledAt, payload)
}

// PublishRolePermissionsChanged publishes rbac.role.permissions_granted or rbac.role.permissions_replaced events.
func (p *EventPublisher) PublishRolePermissionsChanged(ctx context.Context, event domain.RolePermissionsChangedEvent) error {
	eventType := EventRolePermissionsGranted
	if event.Replaced {
		eventType = EventRolePermissionsReplaced
	}

	payload := struct {
		RoleID        string    `json:"role_id"`
		RoleName      string    `json:"role_name"`
		PermissionIDs []string  `json:"permission_ids"`
		ChangedBy     string    `json:"changed_by,omitempty"`
		ChangedAt     time.Time `json:"changed_at"`
	}{
		RoleID:        event.RoleID,
		RoleName:      event.RoleName,
		PermissionIDs: event.PermissionIDs,
		ChangedBy:     event.ChangedBy,
		ChangedAt:     event.ChangedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, eventType, event.RoleID, event.ChangedAt, payload)
}

// PublishUserRolesChanged publishes rbac.user.roles_assigned and rbac.user.roles_revoked events,
// one message per non-empty side of the change.
func (p *EventPublisher) PublishUserRolesChanged(ctx context.Context, event domain.UserRolesChangedEvent) error {
	if len(event.Added) > 0 {
		payload := struct {
			UserID     string    `json:"user_id"`
			RolesAdded []roleRef `json:"roles_added"`
			AssignedBy string    `json:"assigned_by,omitempty"`
			AssignedAt time.Time `json:"assigned_at"`
		}{
			UserID:     event.UserID,
			RolesAdded: roleRefs(event.Added),
			AssignedBy: event.ChangedBy,
			AssignedAt: event.ChangedAt.UTC(),
		}
		if err := p.publish(ctx, event.EventID, EventUserRolesAssigned, event.UserID, event.ChangedAt, payload); err != nil {
			return err
		}
	}

	if len(event.Removed) > 0 {
		payload := struct {
			UserID       string    `json:"user_id"`
			RolesRemoved []roleRef `json:"roles_removed"`
			RevokedBy    string    `json:"revoked_by,omitempty"`
			RevokedAt    time.Time `json:"revoked_at"`
		}{
			UserID:       event.UserID,
			RolesRemoved: roleRefs(event.Removed),
			RevokedBy:    event.ChangedBy,
			RevokedAt:    event.ChangedAt.UTC(),
		}
		// A second message for the same change gets its own id.
		id := event.EventID
		if len(event.Added) > 0 {
			id = ""
		}
		if err := p.publish(ctx, id, EventUserRolesRevoked, event.UserID, event.ChangedAt, payload); err != nil {
			return err
		}
	}

	return nil
}

// PublishUserLoggedIn publishes rbac.user.logged_in events.
func (p *EventPublisher) PublishUserLoggedIn(ctx context.Context, event domain.UserLoggedInEvent) error {
	payload := struct {
		UserID     string    `json:"user_id"`
		Username   string    `json:"username"`
		Method     string    `json:"method"`
		RoleNames  []string  `json:"role_names"`
		LoggedInAt time.Time `json:"logged_in_at"`
	}{
		UserID:     event.UserID,
		Username:   event.Username,
		Method:     event.Method,
		RoleNames:  event.RoleNames,
		LoggedInAt: event.LoggedInAt.UTC(),
	}

	return p.publish(ctx, event.EventID, EventUserLoggedIn, event.UserID, event.LoggedInAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
