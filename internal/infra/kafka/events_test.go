package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 4),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T) (*EventPublisher, *fakeAsyncProducer) {
	t.Helper()
	asyncProducer := newFakeAsyncProducer()
	producer := newProducer(asyncProducer, config.KafkaSettings{TopicPrefix: "rbac"}, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = producer.Close() })

	publisher := NewEventPublisher(producer, config.AppSettings{
		Name: "rbac-auth-service",
		Env:  "test",
	}, zaptest.NewLogger(t))
	return publisher, asyncProducer
}

func receiveEnvelope(t *testing.T, asyncProducer *fakeAsyncProducer) (*sarama.ProducerMessage, map[string]any) {
	t.Helper()
	select {
	case msg := <-asyncProducer.input:
		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}
		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}
		return msg, envelope
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
	}
	return nil, nil
}

func TestPublishPermissionTreeReconciled(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	reconciledAt := time.Date(2025, 3, 4, 9, 15, 0, 0, time.UTC)
	event := domain.PermissionTreeReconciledEvent{
		EventID:      "evt-1",
		ActorID:      "user-1",
		Result:       domain.ReconcileResult{Created: 2, Reparented: 1, Deleted: 3, Unchanged: 4},
		ReconciledAt: reconciledAt,
	}

	if err := publisher.PublishPermissionTreeReconciled(context.Background(), event); err != nil {
		t.Fatalf("PublishPermissionTreeReconciled returned error: %v", err)
	}

	msg, envelope := receiveEnvelope(t, asyncProducer)
	if msg.Topic != EventPermissionTreeReconciled {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
	if got := envelope["event_id"]; got != "evt-1" {
		t.Fatalf("unexpected event_id: %v", got)
	}
	if got := envelope["timestamp"]; got != reconciledAt.Format(time.RFC3339Nano) {
		t.Fatalf("unexpected timestamp: %v", got)
	}

	payload, ok := envelope["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload not a map: %T", envelope["payload"])
	}
	for field, want := range map[string]float64{"created": 2, "reparented": 1, "deleted": 3, "unchanged": 4} {
		if got, _ := payload[field].(float64); got != want {
			t.Fatalf("unexpected %s: %v", field, payload[field])
		}
	}

	metadata, ok := envelope["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("envelope metadata not a map: %T", envelope["metadata"])
	}
	if metadata["service"] != "rbac-auth-service" || metadata["environment"] != "test" {
		t.Fatalf("unexpected metadata: %v", metadata)
	}
}

func TestPublishRolePermissionsChangedSelectsTopic(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	granted := domain.RolePermissionsChangedEvent{
		RoleID:        "role-1",
		RoleName:      "editor",
		PermissionIDs: []string{"perm-1"},
		ChangedAt:     time.Now(),
	}
	if err := publisher.PublishRolePermissionsChanged(context.Background(), granted); err != nil {
		t.Fatalf("publish granted: %v", err)
	}
	msg, envelope := receiveEnvelope(t, asyncProducer)
	if msg.Topic != EventRolePermissionsGranted {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
	key, _ := msg.Key.Encode()
	if string(key) != "role-1" {
		t.Fatalf("messages should be keyed by role id, got %q", key)
	}
	if envelope["event_id"] == "" {
		t.Fatal("missing event ids should be generated")
	}

	granted.Replaced = true
	if err := publisher.PublishRolePermissionsChanged(context.Background(), granted); err != nil {
		t.Fatalf("publish replaced: %v", err)
	}
	msg, _ = receiveEnvelope(t, asyncProducer)
	if msg.Topic != EventRolePermissionsReplaced {
		t.Fatalf("unexpected topic: %s", msg.Topic)
	}
}

func TestPublishUserRolesChangedSplitsAssignmentsAndRevocations(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	event := domain.UserRolesChangedEvent{
		EventID:   "evt-roles",
		UserID:    "user-1",
		Added:     []domain.RoleAssignment{{RoleID: "r1", RoleName: "admin"}},
		Removed:   []domain.RoleAssignment{{RoleID: "r2", RoleName: "editor"}},
		ChangedBy: "user-2",
		ChangedAt: time.Now(),
	}
	if err := publisher.PublishUserRolesChanged(context.Background(), event); err != nil {
		t.Fatalf("PublishUserRolesChanged returned error: %v", err)
	}

	assigned, assignedEnvelope := receiveEnvelope(t, asyncProducer)
	revoked, revokedEnvelope := receiveEnvelope(t, asyncProducer)
	if assigned.Topic != EventUserRolesAssigned || revoked.Topic != EventUserRolesRevoked {
		t.Fatalf("unexpected topics: %s, %s", assigned.Topic, revoked.Topic)
	}
	if assignedEnvelope["event_id"] == revokedEnvelope["event_id"] {
		t.Fatal("each message needs a distinct event id")
	}

	payload := revokedEnvelope["payload"].(map[string]any)
	removed, ok := payload["roles_removed"].([]any)
	if !ok || len(removed) != 1 {
		t.Fatalf("unexpected roles_removed: %v", payload["roles_removed"])
	}
	if removed[0].(map[string]any)["role_name"] != "editor" {
		t.Fatalf("unexpected removed role: %v", removed[0])
	}
}

func TestPublishHonoursCancelledContext(t *testing.T) {
	asyncProducer := &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage),
		errors: make(chan *sarama.ProducerError),
	}
	producer := newProducer(asyncProducer, config.KafkaSettings{}, zaptest.NewLogger(t))
	defer producer.Close()
	publisher := NewEventPublisher(producer, config.AppSettings{}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := publisher.PublishUserLoggedIn(ctx, domain.UserLoggedInEvent{UserID: "user-1"})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTopicName(t *testing.T) {
	producer := &Producer{cfg: config.KafkaSettings{TopicPrefix: "rbac"}}
	if got := producer.TopicName("rbac.user.logged_in"); got != "rbac.user.logged_in" {
		t.Fatalf("prefixed event type should be kept, got %s", got)
	}
	if got := producer.TopicName("audit"); got != "rbac.audit" {
		t.Fatalf("unexpected topic: %s", got)
	}

	producer.cfg.TopicPrefix = ""
	if got := producer.TopicName("audit"); got != "audit" {
		t.Fatalf("unexpected topic without prefix: %s", got)
	}
}

func TestNewPublisherFallsBackToStub(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	publisher, closeFn, err := NewPublisher(config.KafkaSettings{}, config.AppSettings{}, zap.New(core))
	if err != nil {
		t.Fatalf("NewPublisher returned error: %v", err)
	}
	defer closeFn()

	if _, ok := publisher.(*StubPublisher); !ok {
		t.Fatalf("expected stub publisher, got %T", publisher)
	}

	event := domain.UserLoggedInEvent{UserID: "user-1", Method: "password"}
	if err := publisher.PublishUserLoggedIn(context.Background(), event); err != nil {
		t.Fatalf("stub publish returned error: %v", err)
	}
	if logs.FilterMessage("stub event published").FilterField(zap.String("event_type", EventUserLoggedIn)).Len() != 1 {
		t.Fatalf("expected stub log entry, got %v", logs.All())
	}
}
