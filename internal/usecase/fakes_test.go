package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/core/port"
	"github.com/arklim/rbac-auth-service/internal/repository"
)

// memStore backs every in-memory repository used by the usecase tests.
type memStore struct {
	users       map[string]domain.User
	roles       map[string]domain.Role
	permissions map[string]domain.Permission
	userRoles   map[string]map[string]time.Time
	grants      map[string]domain.RolePermission
	tokens      map[string]domain.RefreshToken

	failures map[string]error
	calls    []string
}

func newMemStore() *memStore {
	return &memStore{
		users:       make(map[string]domain.User),
		roles:       make(map[string]domain.Role),
		permissions: make(map[string]domain.Permission),
		userRoles:   make(map[string]map[string]time.Time),
		grants:      make(map[string]domain.RolePermission),
		tokens:      make(map[string]domain.RefreshToken),
		failures:    make(map[string]error),
	}
}

func (s *memStore) record(op string) error {
	s.calls = append(s.calls, op)
	return s.failures[op]
}

func (s *memStore) countCalls(prefix string) int {
	n := 0
	for _, call := range s.calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

func (s *memStore) clone() *memStore {
	c := newMemStore()
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.roles {
		c.roles[k] = v
	}
	for k, v := range s.permissions {
		c.permissions[k] = v
	}
	for k, v := range s.userRoles {
		inner := make(map[string]time.Time, len(v))
		for rk, rv := range v {
			inner[rk] = rv
		}
		c.userRoles[k] = inner
	}
	for k, v := range s.grants {
		c.grants[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	return c
}

func (s *memStore) restore(from *memStore) {
	s.users = from.users
	s.roles = from.roles
	s.permissions = from.permissions
	s.userRoles = from.userRoles
	s.grants = from.grants
	s.tokens = from.tokens
}

func (s *memStore) addUser(user domain.User, roleIDs ...string) {
	s.users[user.ID] = user
	for _, roleID := range roleIDs {
		if s.userRoles[user.ID] == nil {
			s.userRoles[user.ID] = make(map[string]time.Time)
		}
		s.userRoles[user.ID][roleID] = time.Now()
	}
}

func (s *memStore) addRole(id, name string) domain.Role {
	role := domain.Role{ID: id, Name: name}
	s.roles[id] = role
	return role
}

func (s *memStore) addPermission(id, name string, parentID *string) domain.Permission {
	permission := domain.Permission{ID: id, Name: name, Codename: name, ParentID: parentID}
	s.permissions[id] = permission
	return permission
}

func (s *memStore) grant(roleID, permissionID string) {
	id := fmt.Sprintf("%s/%s", roleID, permissionID)
	s.grants[id] = domain.RolePermission{ID: id, RoleID: roleID, PermissionID: permissionID}
}

func (s *memStore) permissionByName(name string) (domain.Permission, bool) {
	for _, permission := range s.permissions {
		if permission.Name == name {
			return permission, true
		}
	}
	return domain.Permission{}, false
}

func (s *memStore) repos() port.TxRepositories {
	return port.TxRepositories{
		Permissions: &memPermissions{s},
		Roles:       &memRoles{s},
		Users:       &memUsers{s},
	}
}

// memTx runs fn against the shared store and restores the snapshot when fn fails.
type memTx struct {
	store    *memStore
	lockKeys []string
}

func (t *memTx) WithinTx(ctx context.Context, lockKey string, fn func(ctx context.Context, repos port.TxRepositories) error) error {
	t.lockKeys = append(t.lockKeys, lockKey)
	snapshot := t.store.clone()
	if err := fn(ctx, t.store.repos()); err != nil {
		t.store.restore(snapshot)
		return err
	}
	return nil
}

type memUsers struct{ s *memStore }

func (r *memUsers) Create(_ context.Context, user domain.User) error {
	if err := r.s.record("users.Create"); err != nil {
		return err
	}
	for _, existing := range r.s.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return repository.ErrConflict
		}
	}
	r.s.users[user.ID] = user
	return nil
}

func (r *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	if err := r.s.record("users.GetByID"); err != nil {
		return nil, err
	}
	if user, ok := r.s.users[id]; ok {
		return &user, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memUsers) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	if err := r.s.record("users.GetByUsername"); err != nil {
		return nil, err
	}
	for _, user := range r.s.users {
		if user.Username == username {
			return &user, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if err := r.s.record("users.GetByEmail"); err != nil {
		return nil, err
	}
	for _, user := range r.s.users {
		if user.Email == email {
			return &user, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUsers) Update(_ context.Context, user domain.User) error {
	if err := r.s.record("users.Update"); err != nil {
		return err
	}
	current, ok := r.s.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = current.PasswordHash
	user.LastLogin = current.LastLogin
	r.s.users[user.ID] = user
	return nil
}

func (r *memUsers) UpdatePassword(_ context.Context, id, hash string) error {
	if err := r.s.record("users.UpdatePassword"); err != nil {
		return err
	}
	user, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = hash
	r.s.users[id] = user
	return nil
}

func (r *memUsers) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	if err := r.s.record("users.TouchLastLogin"); err != nil {
		return err
	}
	user, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.LastLogin = &at
	r.s.users[id] = user
	return nil
}

func (r *memUsers) Delete(_ context.Context, id string) error {
	if err := r.s.record("users.Delete"); err != nil {
		return err
	}
	if _, ok := r.s.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.users, id)
	delete(r.s.userRoles, id)
	return nil
}

func (r *memUsers) List(_ context.Context, filter domain.Filter, page domain.Page) (domain.PageResult[domain.UserWithRoles], error) {
	if err := r.s.record("users.List"); err != nil {
		return domain.PageResult[domain.UserWithRoles]{}, err
	}
	var out []domain.UserWithRoles
	for _, user := range r.s.users {
		held := r.s.userRoles[user.ID]
		matches := true
		for _, roleID := range filter.RoleIDs {
			if _, ok := held[roleID]; !ok {
				matches = false
			}
		}
		if !matches {
			continue
		}
		entry := domain.UserWithRoles{User: user}
		for roleID := range held {
			entry.Roles = append(entry.Roles, r.s.roles[roleID])
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return domain.PageResult[domain.UserWithRoles]{Count: len(out), Results: out}, nil
}

func (r *memUsers) AssignRoles(_ context.Context, userID string, roleIDs []string, at time.Time) error {
	if err := r.s.record("users.AssignRoles"); err != nil {
		return err
	}
	if r.s.userRoles[userID] == nil {
		r.s.userRoles[userID] = make(map[string]time.Time)
	}
	for _, roleID := range roleIDs {
		r.s.userRoles[userID][roleID] = at
	}
	return nil
}

func (r *memUsers) RevokeRoles(_ context.Context, userID string, roleIDs []string) error {
	if err := r.s.record("users.RevokeRoles"); err != nil {
		return err
	}
	for _, roleID := range roleIDs {
		delete(r.s.userRoles[userID], roleID)
	}
	return nil
}

type memRoles struct{ s *memStore }

func (r *memRoles) Create(_ context.Context, role domain.Role) error {
	if err := r.s.record("roles.Create"); err != nil {
		return err
	}
	for _, existing := range r.s.roles {
		if existing.Name == role.Name {
			return repository.ErrConflict
		}
	}
	r.s.roles[role.ID] = role
	return nil
}

func (r *memRoles) GetByID(_ context.Context, id string) (*domain.Role, error) {
	if err := r.s.record("roles.GetByID"); err != nil {
		return nil, err
	}
	if role, ok := r.s.roles[id]; ok {
		return &role, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memRoles) GetByName(_ context.Context, name string) (*domain.Role, error) {
	for _, role := range r.s.roles {
		if role.Name == name {
			return &role, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memRoles) List(_ context.Context, _ domain.Filter, _ domain.Page) (domain.PageResult[domain.Role], error) {
	if err := r.s.record("roles.List"); err != nil {
		return domain.PageResult[domain.Role]{}, err
	}
	roles := r.sorted(func(domain.Role) bool { return true })
	return domain.PageResult[domain.Role]{Count: len(roles), Results: roles}, nil
}

func (r *memRoles) ListByIDs(_ context.Context, ids []string) ([]domain.Role, error) {
	if err := r.s.record("roles.ListByIDs"); err != nil {
		return nil, err
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	return r.sorted(func(role domain.Role) bool {
		_, ok := want[role.ID]
		return ok
	}), nil
}

func (r *memRoles) Update(_ context.Context, role domain.Role) error {
	if err := r.s.record("roles.Update"); err != nil {
		return err
	}
	if _, ok := r.s.roles[role.ID]; !ok {
		return repository.ErrNotFound
	}
	for _, existing := range r.s.roles {
		if existing.ID != role.ID && existing.Name == role.Name {
			return repository.ErrConflict
		}
	}
	r.s.roles[role.ID] = role
	return nil
}

func (r *memRoles) Delete(_ context.Context, id string) error {
	if err := r.s.record("roles.Delete"); err != nil {
		return err
	}
	if _, ok := r.s.roles[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.roles, id)
	for key, grant := range r.s.grants {
		if grant.RoleID == id {
			delete(r.s.grants, key)
		}
	}
	for _, held := range r.s.userRoles {
		delete(held, id)
	}
	return nil
}

func (r *memRoles) ListByUser(_ context.Context, userID string) ([]domain.Role, error) {
	if err := r.s.record("roles.ListByUser"); err != nil {
		return nil, err
	}
	held := r.s.userRoles[userID]
	return r.sorted(func(role domain.Role) bool {
		_, ok := held[role.ID]
		return ok
	}), nil
}

func (r *memRoles) GrantPermission(_ context.Context, grant domain.RolePermission) error {
	if err := r.s.record("roles.GrantPermission"); err != nil {
		return err
	}
	for _, existing := range r.s.grants {
		if existing.RoleID == grant.RoleID && existing.PermissionID == grant.PermissionID {
			return fmt.Errorf("insert role permission: %w", repository.ErrConflict)
		}
	}
	r.s.grants[grant.ID] = grant
	return nil
}

func (r *memRoles) ReplacePermissions(_ context.Context, roleID string, grants []domain.RolePermission) error {
	if err := r.s.record("roles.ReplacePermissions"); err != nil {
		return err
	}
	for key, grant := range r.s.grants {
		if grant.RoleID == roleID {
			delete(r.s.grants, key)
		}
	}
	for _, grant := range grants {
		r.s.grants[grant.ID] = grant
	}
	return nil
}

func (r *memRoles) ListPermissions(_ context.Context, roleID string) ([]domain.RolePermission, error) {
	if err := r.s.record("roles.ListPermissions"); err != nil {
		return nil, err
	}
	var out []domain.RolePermission
	for _, grant := range r.s.grants {
		if grant.RoleID == roleID {
			out = append(out, grant)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PermissionID < out[j].PermissionID })
	return out, nil
}

func (r *memRoles) sorted(keep func(domain.Role) bool) []domain.Role {
	out := []domain.Role{}
	for _, role := range r.s.roles {
		if keep(role) {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

type memPermissions struct{ s *memStore }

func (r *memPermissions) Create(_ context.Context, permission domain.Permission) error {
	if err := r.s.record("permissions.Create"); err != nil {
		return err
	}
	for _, existing := range r.s.permissions {
		if existing.Name == permission.Name || existing.Codename == permission.Codename {
			return repository.ErrConflict
		}
	}
	r.s.permissions[permission.ID] = permission
	return nil
}

func (r *memPermissions) GetByID(_ context.Context, id string) (*domain.Permission, error) {
	if err := r.s.record("permissions.GetByID"); err != nil {
		return nil, err
	}
	if permission, ok := r.s.permissions[id]; ok {
		return &permission, nil
	}
	return nil, repository.ErrNotFound
}

func (r *memPermissions) List(_ context.Context) ([]domain.Permission, error) {
	if err := r.s.record("permissions.List"); err != nil {
		return nil, err
	}
	out := make([]domain.Permission, 0, len(r.s.permissions))
	for _, permission := range r.s.permissions {
		out = append(out, permission)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memPermissions) ListByIDs(_ context.Context, ids []string) ([]domain.Permission, error) {
	if err := r.s.record("permissions.ListByIDs"); err != nil {
		return nil, err
	}
	var out []domain.Permission
	for _, id := range ids {
		if permission, ok := r.s.permissions[id]; ok {
			out = append(out, permission)
		}
	}
	return out, nil
}

func (r *memPermissions) Update(_ context.Context, permission domain.Permission) error {
	if err := r.s.record("permissions.Update"); err != nil {
		return err
	}
	if _, ok := r.s.permissions[permission.ID]; !ok {
		return repository.ErrNotFound
	}
	for _, existing := range r.s.permissions {
		if existing.ID != permission.ID && (existing.Name == permission.Name || existing.Codename == permission.Codename) {
			return repository.ErrConflict
		}
	}
	r.s.permissions[permission.ID] = permission
	return nil
}

func (r *memPermissions) UpdateParent(_ context.Context, id string, parentID *string) error {
	if err := r.s.record("permissions.UpdateParent"); err != nil {
		return err
	}
	permission, ok := r.s.permissions[id]
	if !ok {
		return repository.ErrNotFound
	}
	permission.ParentID = parentID
	r.s.permissions[id] = permission
	return nil
}

func (r *memPermissions) Delete(ctx context.Context, id string) error {
	if _, ok := r.s.permissions[id]; !ok {
		return repository.ErrNotFound
	}
	_, err := r.DeleteByIDs(ctx, []string{id})
	return err
}

func (r *memPermissions) DeleteByIDs(_ context.Context, ids []string) (int, error) {
	if err := r.s.record("permissions.DeleteByIDs"); err != nil {
		return 0, err
	}
	deleted := 0
	for _, id := range ids {
		if _, ok := r.s.permissions[id]; !ok {
			continue
		}
		delete(r.s.permissions, id)
		deleted++
		for key, permission := range r.s.permissions {
			if permission.ParentID != nil && *permission.ParentID == id {
				permission.ParentID = nil
				r.s.permissions[key] = permission
			}
		}
		for key, grant := range r.s.grants {
			if grant.PermissionID == id {
				delete(r.s.grants, key)
			}
		}
	}
	return deleted, nil
}

func (r *memPermissions) ListMenuByUser(_ context.Context, userID string) ([]domain.MenuEntry, error) {
	if err := r.s.record("permissions.ListMenuByUser"); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []domain.MenuEntry
	for roleID := range r.s.userRoles[userID] {
		role := r.s.roles[roleID]
		for _, grant := range r.s.grants {
			if grant.RoleID != roleID {
				continue
			}
			permission := r.s.permissions[grant.PermissionID]
			key := permission.ID + "|" + role.Name
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, domain.MenuEntry{
				PermissionID: permission.ID,
				Name:         permission.Name,
				Codename:     permission.Codename,
				ParentID:     permission.ParentID,
				RoleName:     role.Name,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RoleName != out[j].RoleName {
			return out[i].RoleName < out[j].RoleName
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *memPermissions) ListSummariesByUser(ctx context.Context, userID string) ([]domain.PermissionSummary, error) {
	menu, err := r.ListMenuByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []domain.PermissionSummary
	for _, entry := range menu {
		if _, dup := seen[entry.PermissionID]; dup {
			continue
		}
		seen[entry.PermissionID] = struct{}{}
		out = append(out, domain.PermissionSummary{ID: entry.PermissionID, Name: entry.Name, Codename: entry.Codename})
	}
	return out, nil
}

type memTokens struct{ s *memStore }

func (r *memTokens) CreateRefreshToken(_ context.Context, token domain.RefreshToken) error {
	if err := r.s.record("tokens.Create"); err != nil {
		return err
	}
	r.s.tokens[token.ID] = token
	return nil
}

func (r *memTokens) GetRefreshTokenByHash(_ context.Context, hash string) (*domain.RefreshToken, error) {
	for _, token := range r.s.tokens {
		if token.TokenHash == hash {
			return &token, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memTokens) RevokeRefreshToken(_ context.Context, id, reason string, at time.Time) error {
	if err := r.s.record("tokens.Revoke"); err != nil {
		return err
	}
	token, ok := r.s.tokens[id]
	if !ok || token.RevokedAt != nil {
		return repository.ErrNotFound
	}
	token.RevokedAt = &at
	token.RevokeReason = &reason
	r.s.tokens[id] = token
	return nil
}

func (r *memTokens) RevokeRefreshTokensForUser(_ context.Context, userID, reason string, at time.Time) (int, error) {
	count := 0
	for id, token := range r.s.tokens {
		if token.UserID != userID || token.RevokedAt != nil {
			continue
		}
		token.RevokedAt = &at
		token.RevokeReason = &reason
		r.s.tokens[id] = token
		count++
	}
	return count, nil
}

type memRevocations struct {
	revoked map[string]string
	ttls    map[string]time.Duration
}

func newMemRevocations() *memRevocations {
	return &memRevocations{revoked: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (m *memRevocations) MarkRevoked(_ context.Context, jti, reason string, ttl time.Duration) error {
	m.revoked[jti] = reason
	m.ttls[jti] = ttl
	return nil
}

func (m *memRevocations) IsRevoked(_ context.Context, jti string) (bool, string, error) {
	reason, ok := m.revoked[jti]
	return ok, reason, nil
}

type memCodes struct {
	codes map[string]domain.EmailCode
	ttls  map[string]time.Duration
}

func newMemCodes() *memCodes {
	return &memCodes{codes: make(map[string]domain.EmailCode), ttls: make(map[string]time.Duration)}
}

func (m *memCodes) Save(_ context.Context, code domain.EmailCode, ttl time.Duration) error {
	m.codes[code.Email] = code
	m.ttls[code.Email] = ttl
	return nil
}

func (m *memCodes) Get(_ context.Context, email string) (*domain.EmailCode, error) {
	code, ok := m.codes[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &code, nil
}

func (m *memCodes) Delete(_ context.Context, email string) error {
	delete(m.codes, email)
	return nil
}

type memMailQueue struct {
	sent []port.EmailCodeMessage
	err  error
}

func (m *memMailQueue) EnqueueEmailCode(_ context.Context, msg port.EmailCodeMessage) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

// plainHasher stores sha256 digests so tests avoid argon2 cost.
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	return "sha256$" + hex.EncodeToString(sum[:]), nil
}

func (h plainHasher) Verify(password, encoded string) (bool, error) {
	if !strings.HasPrefix(encoded, "sha256$") {
		return false, fmt.Errorf("unsupported hash")
	}
	expected, _ := h.Hash(password)
	return expected == encoded, nil
}

type stubPolicy struct{ err error }

func (p stubPolicy) Validate(string, domain.PasswordContext) error { return p.err }

type recordingPublisher struct {
	reconciled []domain.PermissionTreeReconciledEvent
	grants     []domain.RolePermissionsChangedEvent
	userRoles  []domain.UserRolesChangedEvent
	logins     []domain.UserLoggedInEvent
}

func (p *recordingPublisher) PublishPermissionTreeReconciled(_ context.Context, event domain.PermissionTreeReconciledEvent) error {
	p.reconciled = append(p.reconciled, event)
	return nil
}

func (p *recordingPublisher) PublishRolePermissionsChanged(_ context.Context, event domain.RolePermissionsChangedEvent) error {
	p.grants = append(p.grants, event)
	return nil
}

func (p *recordingPublisher) PublishUserRolesChanged(_ context.Context, event domain.UserRolesChangedEvent) error {
	p.userRoles = append(p.userRoles, event)
	return nil
}

func (p *recordingPublisher) PublishUserLoggedIn(_ context.Context, event domain.UserLoggedInEvent) error {
	p.logins = append(p.logins, event)
	return nil
}

var (
	_ port.UserRepository       = (*memUsers)(nil)
	_ port.RoleRepository       = (*memRoles)(nil)
	_ port.PermissionRepository = (*memPermissions)(nil)
	_ port.TokenRepository      = (*memTokens)(nil)
	_ port.Transactor           = (*memTx)(nil)
	_ port.TokenRevocationStore = (*memRevocations)(nil)
	_ port.EmailCodeStore       = (*memCodes)(nil)
	_ port.MailQueue            = (*memMailQueue)(nil)
	_ port.EventPublisher       = (*recordingPublisher)(nil)
)
