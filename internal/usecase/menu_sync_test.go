package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
)

func newSynchronizer(store *memStore) (*MenuSynchronizer, *memTx, *recordingPublisher) {
	tx := &memTx{store: store}
	events := &recordingPublisher{}
	return NewMenuSynchronizer(tx, events, nil, nil), tx, events
}

func TestReconcileBuildsTreeFromEmptyTable(t *testing.T) {
	store := newMemStore()
	sync, tx, events := newSynchronizer(store)

	menu := []domain.MenuNode{{Name: "A", Children: []domain.MenuNode{{Name: "B"}}}}
	result, err := sync.Reconcile(context.Background(), userAlice, menu)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Created != 2 || result.Deleted != 0 || result.Reparented != 0 {
		t.Fatalf("unexpected result %#v", result)
	}

	a, okA := store.permissionByName("A")
	b, okB := store.permissionByName("B")
	if !okA || !okB {
		t.Fatal("expected both permissions to exist")
	}
	if a.ParentID != nil {
		t.Fatalf("A should be a root, got parent %v", *a.ParentID)
	}
	if b.ParentID == nil || *b.ParentID != a.ID {
		t.Fatal("B should be a child of A")
	}
	if a.Codename != "A" || b.Codename != "B" {
		t.Fatalf("codename should default to the name, got %q and %q", a.Codename, b.Codename)
	}
	if len(store.permissions) != 2 {
		t.Fatalf("expected exactly 2 permissions, got %d", len(store.permissions))
	}

	if len(tx.lockKeys) != 1 || tx.lockKeys[0] != ReconciliationLockKey {
		t.Fatalf("expected advisory lock %q, got %v", ReconciliationLockKey, tx.lockKeys)
	}
	if len(events.reconciled) != 1 || events.reconciled[0].Result.Created != 2 {
		t.Fatalf("expected one reconciliation event, got %#v", events.reconciled)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	store := newMemStore()
	sync, _, events := newSynchronizer(store)

	menu := []domain.MenuNode{
		{Name: "Dashboard", Children: []domain.MenuNode{{Name: "Analytics"}, {Name: "Workbench"}}},
		{Name: "System", Children: []domain.MenuNode{{Name: "Users", Children: []domain.MenuNode{{Name: "Roles"}}}}},
	}
	if _, err := sync.Reconcile(context.Background(), userAlice, menu); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	writesBefore := store.countCalls("permissions.Create") + store.countCalls("permissions.UpdateParent") + store.countCalls("permissions.DeleteByIDs")

	result, err := sync.Reconcile(context.Background(), userAlice, menu)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if result.Changed() {
		t.Fatalf("second run should not write, got %#v", result)
	}
	if result.Unchanged != 6 {
		t.Fatalf("expected 6 unchanged nodes, got %d", result.Unchanged)
	}
	writesAfter := store.countCalls("permissions.Create") + store.countCalls("permissions.UpdateParent") + store.countCalls("permissions.DeleteByIDs")
	if writesAfter != writesBefore {
		t.Fatalf("second run issued %d writes", writesAfter-writesBefore)
	}
	if len(events.reconciled) != 1 {
		t.Fatalf("unchanged run should not publish, got %d events", len(events.reconciled))
	}
}

func TestReconcileReparentsAndDeletesStalePermissions(t *testing.T) {
	store := newMemStore()
	store.addPermission(permDashboard, "Dashboard", nil)
	parent := permDashboard
	store.addPermission(permReports, "Reports", &parent)
	store.addPermission("00000000-0000-0000-0000-0000000000d3", "Legacy", nil)
	store.addRole(roleAdmin, "admin")
	store.grant(roleAdmin, permReports)
	store.grant(roleAdmin, "00000000-0000-0000-0000-0000000000d3")
	sync, _, _ := newSynchronizer(store)

	menu := []domain.MenuNode{{Name: "Reports", Children: []domain.MenuNode{{Name: "Dashboard"}, {Name: "Exports"}}}}
	result, err := sync.Reconcile(context.Background(), userAlice, menu)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Deleted != 1 || result.Created != 1 || result.Reparented != 2 {
		t.Fatalf("unexpected result %#v", result)
	}

	reports := store.permissions[permReports]
	dashboard := store.permissions[permDashboard]
	if reports.ParentID != nil {
		t.Fatal("Reports should have become a root")
	}
	if dashboard.ParentID == nil || *dashboard.ParentID != permReports {
		t.Fatal("Dashboard should now hang under Reports")
	}
	if _, ok := store.permissionByName("Legacy"); ok {
		t.Fatal("Legacy should be deleted")
	}
	if len(store.grants) != 1 {
		t.Fatalf("grants of deleted permissions should cascade, got %d", len(store.grants))
	}
	if reports.ID != permReports {
		t.Fatal("existing permissions keep their identity")
	}
}

func TestReconcileDeletesBeforeCreating(t *testing.T) {
	store := newMemStore()
	store.permissions["00000000-0000-0000-0000-0000000000d9"] = domain.Permission{
		ID:       "00000000-0000-0000-0000-0000000000d9",
		Name:     "Old name",
		Codename: "Settings",
	}
	sync, _, _ := newSynchronizer(store)

	if _, err := sync.Reconcile(context.Background(), userAlice, []domain.MenuNode{{Name: "Settings"}}); err != nil {
		t.Fatalf("reconcile should free the stale codename first: %v", err)
	}
	if _, ok := store.permissionByName("Settings"); !ok {
		t.Fatal("Settings should be created")
	}
}

func TestReconcileRollsBackOnFailure(t *testing.T) {
	store := newMemStore()
	store.addPermission(permDashboard, "Dashboard", nil)
	store.addPermission(permReports, "Reports", nil)
	store.failures["permissions.UpdateParent"] = errors.New("deadlock detected")
	sync, _, events := newSynchronizer(store)

	menu := []domain.MenuNode{{Name: "New", Children: []domain.MenuNode{{Name: "Dashboard"}}}}
	_, err := sync.Reconcile(context.Background(), userAlice, menu)
	if !errors.Is(err, ErrReconciliationAborted) {
		t.Fatalf("expected ErrReconciliationAborted, got %v", err)
	}

	if len(store.permissions) != 2 {
		t.Fatalf("rollback should restore the original table, got %d rows", len(store.permissions))
	}
	if _, ok := store.permissionByName("New"); ok {
		t.Fatal("partial create leaked past rollback")
	}
	if _, ok := store.permissionByName("Reports"); !ok {
		t.Fatal("partial delete leaked past rollback")
	}
	if len(events.reconciled) != 0 {
		t.Fatal("aborted runs must not publish")
	}
}

func TestReconcileRejectsInvalidMenusBeforeTouchingStore(t *testing.T) {
	cases := map[string][]domain.MenuNode{
		"empty name":     {{Name: " "}},
		"too long":       {{Name: strings.Repeat("x", 51)}},
		"duplicate name": {{Name: "A", Children: []domain.MenuNode{{Name: "B", Children: []domain.MenuNode{{Name: "A"}}}}}},
	}

	for name, menu := range cases {
		t.Run(name, func(t *testing.T) {
			store := newMemStore()
			sync, tx, _ := newSynchronizer(store)

			_, err := sync.Reconcile(context.Background(), userAlice, menu)
			if !errors.Is(err, ErrInvalidMenu) || !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrInvalidMenu, got %v", err)
			}
			if len(tx.lockKeys) != 0 || len(store.calls) != 0 {
				t.Fatal("validation must run before any store access")
			}
		})
	}
}

func TestPlanWalkVisitsParentsFirst(t *testing.T) {
	menu := []domain.MenuNode{
		{Name: "A", Children: []domain.MenuNode{{Name: "B", Children: []domain.MenuNode{{Name: "C"}}}, {Name: "D"}}},
		{Name: "E"},
	}
	known := map[string]domain.Permission{"B": {ID: "b", Name: "B"}}
	processed := make(map[string]struct{})

	steps := planWalk(menu, nil, known, nil, processed)

	order := make([]string, 0, len(steps))
	for _, step := range steps {
		order = append(order, step.name)
	}
	if got := strings.Join(order, ","); got != "A,B,C,D,E" {
		t.Fatalf("unexpected visit order %s", got)
	}
	if steps[1].action != planReparent || steps[0].action != planCreate {
		t.Fatal("known names reparent, unknown names create")
	}
	if steps[2].parentName == nil || *steps[2].parentName != "B" {
		t.Fatal("C should be planned under B")
	}
	if steps[4].parentName != nil {
		t.Fatal("E should be planned at the root")
	}
	if len(processed) != 5 {
		t.Fatalf("expected 5 processed names, got %d", len(processed))
	}
}
