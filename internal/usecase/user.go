package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/core/port"
	"github.com/arklim/rbac-auth-service/internal/repository"
)

// CreateUserInput carries a new account and the roles to assign. Unknown role ids are ignored.
type CreateUserInput struct {
	Username    string
	Email       string
	Name        *string
	PhoneNumber *string
	Address     *string
	Password    string
	IsActive    bool
	RoleIDs     []string
}

// UpdateUserInput carries profile changes. Nil fields are left untouched; a nil RoleIDs keeps
// the current assignments while an empty slice removes them all.
type UpdateUserInput struct {
	Username    *string
	Email       *string
	Name        *string
	PhoneNumber *string
	Address     *string
	IsActive    *bool
	Password    *string
	RoleIDs     *[]string
}

// UserService administers accounts and their role assignments.
type UserService struct {
	users  port.UserRepository
	tx     port.Transactor
	hasher port.PasswordHasher
	policy port.PasswordPolicyValidator
	events port.EventPublisher
	logger *zap.Logger
	now    func() time.Time
}

// NewUserService constructs a UserService. events may be nil.
func NewUserService(
	users port.UserRepository,
	tx port.Transactor,
	hasher port.PasswordHasher,
	policy port.PasswordPolicyValidator,
	events port.EventPublisher,
	logger *zap.Logger,
) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, tx: tx, hasher: hasher, policy: policy, events: events, logger: logger, now: time.Now}
}

// List returns one page of users with their roles. Users holding every role in filter.RoleIDs match.
func (s *UserService) List(ctx context.Context, filter domain.Filter, page domain.Page) (domain.PageResult[domain.UserWithRoles], error) {
	for _, id := range filter.RoleIDs {
		if !validID(id) {
			return domain.PageResult[domain.UserWithRoles]{Results: []domain.UserWithRoles{}}, nil
		}
	}
	result, err := s.users.List(ctx, filter, page)
	if err != nil {
		return domain.PageResult[domain.UserWithRoles]{}, fmt.Errorf("list users: %w", err)
	}
	if result.Results == nil {
		result.Results = []domain.UserWithRoles{}
	}
	return result, nil
}

func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	id = strings.TrimSpace(id)
	if !validID(id) {
		return nil, ErrUserNotFound
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// Create registers a user and assigns the known roles among input.RoleIDs.
func (s *UserService) Create(ctx context.Context, actorID string, input CreateUserInput) (*domain.User, error) {
	username, email, err := validateIdentity(input.Username, input.Email)
	if err != nil {
		return nil, err
	}

	user := domain.User{
		ID:          uuid.NewString(),
		Username:    username,
		Email:       email,
		Name:        trimmedOrNil(input.Name),
		PhoneNumber: trimmedOrNil(input.PhoneNumber),
		Address:     trimmedOrNil(input.Address),
		IsActive:    input.IsActive,
		DateJoined:  s.now().UTC(),
	}
	if user.PasswordHash, err = s.hashPassword(input.Password, user); err != nil {
		return nil, err
	}

	var added []domain.RoleAssignment
	err = s.tx.WithinTx(ctx, "", func(ctx context.Context, repos port.TxRepositories) error {
		if err := repos.Users.Create(ctx, user); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrDuplicateName
			}
			return fmt.Errorf("create user: %w", err)
		}
		added, _, err = s.syncRoles(ctx, repos, user.ID, uniqueTrimmed(input.RoleIDs), nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishRoleChanges(ctx, actorID, user.ID, added, nil)
	return &user, nil
}

// Update applies profile changes, an optional password change and role-set synchronisation.
func (s *UserService) Update(ctx context.Context, actorID, id string, input UpdateUserInput) (*domain.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	username, email := user.Username, user.Email
	if input.Username != nil {
		username = *input.Username
	}
	if input.Email != nil {
		email = *input.Email
	}
	if user.Username, user.Email, err = validateIdentity(username, email); err != nil {
		return nil, err
	}
	if input.Name != nil {
		user.Name = trimmedOrNil(input.Name)
	}
	if input.PhoneNumber != nil {
		user.PhoneNumber = trimmedOrNil(input.PhoneNumber)
	}
	if input.Address != nil {
		user.Address = trimmedOrNil(input.Address)
	}
	if input.IsActive != nil {
		user.IsActive = *input.IsActive
	}

	var newHash string
	if input.Password != nil {
		if newHash, err = s.hashPassword(*input.Password, *user); err != nil {
			return nil, err
		}
	}

	var added, removed []domain.RoleAssignment
	err = s.tx.WithinTx(ctx, "", func(ctx context.Context, repos port.TxRepositories) error {
		if err := repos.Users.Update(ctx, *user); err != nil {
			switch {
			case errors.Is(err, repository.ErrConflict):
				return ErrDuplicateName
			case errors.Is(err, repository.ErrNotFound):
				return ErrUserNotFound
			}
			return fmt.Errorf("update user: %w", err)
		}
		if newHash != "" {
			if err := repos.Users.UpdatePassword(ctx, user.ID, newHash); err != nil {
				return fmt.Errorf("update password: %w", err)
			}
			user.PasswordHash = newHash
		}
		if input.RoleIDs == nil {
			return nil
		}

		current, err := repos.Roles.ListByUser(ctx, user.ID)
		if err != nil {
			return fmt.Errorf("list user roles: %w", err)
		}
		added, removed, err = s.syncRoles(ctx, repos, user.ID, uniqueTrimmed(*input.RoleIDs), current)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publishRoleChanges(ctx, actorID, user.ID, added, removed)
	return user, nil
}

func (s *UserService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if !validID(id) {
		return ErrUserNotFound
	}
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// syncRoles makes the user's roles equal to the known roles among wanted. Roles in current that
// are not wanted are revoked. It returns the assignments added and removed.
func (s *UserService) syncRoles(ctx context.Context, repos port.TxRepositories, userID string, wanted []string, current []domain.Role) (added, removed []domain.RoleAssignment, err error) {
	candidates := make([]string, 0, len(wanted))
	for _, id := range wanted {
		if validID(id) {
			candidates = append(candidates, id)
		}
	}
	known, err := repos.Roles.ListByIDs(ctx, candidates)
	if err != nil {
		return nil, nil, fmt.Errorf("lookup roles: %w", err)
	}

	keep := make(map[string]struct{}, len(known))
	for _, role := range known {
		keep[role.ID] = struct{}{}
	}
	have := make(map[string]struct{}, len(current))
	for _, role := range current {
		have[role.ID] = struct{}{}
	}

	var revoke []string
	for _, role := range current {
		if _, ok := keep[role.ID]; !ok {
			revoke = append(revoke, role.ID)
			removed = append(removed, domain.RoleAssignment{RoleID: role.ID, RoleName: role.Name})
		}
	}
	if len(revoke) > 0 {
		if err := repos.Users.RevokeRoles(ctx, userID, revoke); err != nil {
			return nil, nil, fmt.Errorf("revoke roles: %w", err)
		}
	}

	var assign []string
	for _, role := range known {
		if _, ok := have[role.ID]; ok {
			continue
		}
		assign = append(assign, role.ID)
		added = append(added, domain.RoleAssignment{RoleID: role.ID, RoleName: role.Name})
	}
	if len(assign) > 0 {
		if err := repos.Users.AssignRoles(ctx, userID, assign, s.now().UTC()); err != nil {
			return nil, nil, fmt.Errorf("assign roles: %w", err)
		}
	}
	return added, removed, nil
}

func (s *UserService) hashPassword(password string, user domain.User) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: password is required", ErrValidation)
	}
	if s.policy != nil {
		pctx := domain.PasswordContext{Username: user.Username, Email: user.Email, Phone: user.PhoneNumber}
		if err := s.policy.Validate(password, pctx); err != nil {
			return "", fmt.Errorf("%w: %v", ErrWeakPassword, err)
		}
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func (s *UserService) publishRoleChanges(ctx context.Context, actorID, userID string, added, removed []domain.RoleAssignment) {
	if s.events == nil || (len(added) == 0 && len(removed) == 0) {
		return
	}
	event := domain.UserRolesChangedEvent{
		EventID:   newEventID(),
		UserID:    userID,
		Added:     added,
		Removed:   removed,
		ChangedBy: actorID,
		ChangedAt: s.now().UTC(),
	}
	if err := s.events.PublishUserRolesChanged(ctx, event); err != nil {
		s.logger.Warn("publish user roles event failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func validateIdentity(rawUsername, rawEmail string) (string, string, error) {
	username := strings.TrimSpace(rawUsername)
	if username == "" {
		return "", "", fmt.Errorf("%w: username is required", ErrValidation)
	}
	email := strings.TrimSpace(rawEmail)
	if email == "" {
		return "", "", fmt.Errorf("%w: email is required", ErrValidation)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", "", fmt.Errorf("%w: email is malformed", ErrValidation)
	}
	return username, email, nil
}
