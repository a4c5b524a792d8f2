package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/core/port"
	"github.com/arklim/rbac-auth-service/internal/infra/config"
	"github.com/arklim/rbac-auth-service/internal/infra/security"
	"github.com/arklim/rbac-auth-service/internal/infra/telemetry"
	"github.com/arklim/rbac-auth-service/internal/repository"
)

const (
	LoginMethodPassword  = "password"
	LoginMethodEmailCode = "email_code"

	refreshTokenBytes = 32
)

// AuthConfig holds the token issuance settings.
type AuthConfig struct {
	Issuer          string
	Audience        []string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// AuthConfigFromSettings maps the jwt config section onto AuthConfig.
func AuthConfigFromSettings(cfg config.JWTSettings) AuthConfig {
	return AuthConfig{
		Issuer:          cfg.Issuer,
		Audience:        cfg.Audience,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
	}
}

// AuthDependencies groups the collaborators of AuthService. Events, Metrics and Logger are optional.
type AuthDependencies struct {
	Users       port.UserRepository
	Tokens      port.TokenRepository
	Revocations port.TokenRevocationStore
	Hasher      port.PasswordHasher
	JWT         *security.JWTManager
	Resolver    *PermissionResolver
	Events      port.EventPublisher
	Metrics     *telemetry.Metrics
	Logger      *zap.Logger
}

// LoginResult is returned by a successful password login.
type LoginResult struct {
	User        domain.User
	Tokens      domain.TokenPair
	Permissions domain.EffectivePermissions
}

// UserInfo is the profile projection served to authenticated clients.
type UserInfo struct {
	RealName string
	Username string
	Email    string
}

// AuthService verifies credentials and issues, rotates and revokes token pairs.
type AuthService struct {
	cfg  AuthConfig
	deps AuthDependencies
	now  func() time.Time

	decoyOnce sync.Once
	decoyHash string
}

// NewAuthService constructs an AuthService.
func NewAuthService(cfg AuthConfig, deps AuthDependencies) *AuthService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &AuthService{cfg: cfg, deps: deps, now: time.Now}
}

// WithClock overrides the time source.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// Login authenticates username and password and issues a token pair with the resolved permissions.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Login")
	defer span.End()

	result, err := s.login(ctx, strings.TrimSpace(username), password)
	s.deps.Metrics.ObserveLogin(LoginMethodPassword, err)
	if err != nil && !errors.Is(err, ErrInvalidCredentials) {
		return nil, recordSpanError(span, err)
	}
	return result, err
}

func (s *AuthService) login(ctx context.Context, username, password string) (*LoginResult, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.deps.Users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.decoyVerify(password)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.deps.Hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.deps.Logger.Warn("stored password hash unreadable", zap.String("user_id", user.ID), zap.Error(err))
		return nil, ErrInvalidCredentials
	}
	if !ok || !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	perms, err := s.deps.Resolver.Resolve(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	pair, err := s.issuePair(ctx, user.ID, perms.RoleNames, nil, now)
	if err != nil {
		return nil, err
	}

	if err := s.deps.Users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	user.LastLogin = &now

	s.publishLogin(ctx, *user, LoginMethodPassword, perms.RoleNames, now)

	return &LoginResult{User: *user, Tokens: pair, Permissions: perms}, nil
}

// decoyVerify runs one verification against a throwaway hash built with the configured hasher, so
// an unknown username costs the same as a wrong password.
func (s *AuthService) decoyVerify(password string) {
	s.decoyOnce.Do(func() {
		hash, err := s.deps.Hasher.Hash(uuid.NewString())
		if err != nil {
			s.deps.Logger.Warn("build decoy password hash", zap.Error(err))
			return
		}
		s.decoyHash = hash
	})
	if s.decoyHash != "" {
		_, _ = s.deps.Hasher.Verify(password, s.decoyHash)
	}
}

// Refresh rotates a refresh token: the presented token is blacklisted and a new pair is issued.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string) (domain.TokenPair, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Refresh")
	defer span.End()

	now := s.now().UTC()
	record, err := s.lookupRefresh(ctx, rawRefresh, now)
	if err != nil {
		return domain.TokenPair{}, err
	}

	// Only one concurrent rotation can revoke the record; the loser sees ErrNotFound.
	if err := s.deps.Tokens.RevokeRefreshToken(ctx, record.ID, domain.RevokeReasonRotated, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidRefreshToken
		}
		return domain.TokenPair{}, recordSpanError(span, fmt.Errorf("revoke refresh token: %w", err))
	}

	user, err := s.deps.Users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.TokenPair{}, ErrInvalidRefreshToken
		}
		return domain.TokenPair{}, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		return domain.TokenPair{}, ErrInvalidRefreshToken
	}

	perms, err := s.deps.Resolver.Resolve(ctx, user.ID)
	if err != nil {
		return domain.TokenPair{}, err
	}

	pair, err := s.issuePair(ctx, user.ID, perms.RoleNames, &record.ID, now)
	if err != nil {
		return domain.TokenPair{}, recordSpanError(span, err)
	}
	span.SetAttributes(attribute.String("user.id", user.ID))
	return pair, nil
}

// Logout blacklists the refresh token and, when present, the access token until it expires.
func (s *AuthService) Logout(ctx context.Context, rawRefresh string, access *security.AccessTokenClaims) error {
	ctx, span := tracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	now := s.now().UTC()
	record, err := s.lookupRefresh(ctx, rawRefresh, now)
	if err != nil {
		return err
	}
	if access != nil && access.UserID != record.UserID {
		return ErrInvalidRefreshToken
	}

	if err := s.deps.Tokens.RevokeRefreshToken(ctx, record.ID, domain.RevokeReasonLogout, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidRefreshToken
		}
		return recordSpanError(span, fmt.Errorf("revoke refresh token: %w", err))
	}

	if access == nil || access.ExpiresAt == nil {
		return nil
	}
	ttl := access.ExpiresAt.Time.Sub(now)
	if ttl <= 0 {
		return nil
	}
	if err := s.deps.Revocations.MarkRevoked(ctx, access.ID, domain.RevokeReasonLogout, ttl); err != nil {
		return recordSpanError(span, fmt.Errorf("revoke access token: %w", err))
	}
	return nil
}

// ParseAccessToken verifies an access token and rejects identifiers revoked at logout.
func (s *AuthService) ParseAccessToken(ctx context.Context, raw string) (*security.AccessTokenClaims, error) {
	claims, err := s.deps.JWT.Parse(strings.TrimSpace(raw), s.cfg.Issuer, s.cfg.Audience)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, ErrExpiredAccessToken
		}
		return nil, ErrInvalidAccessToken
	}

	revoked, _, err := s.deps.Revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("check access token revocation: %w", err)
	}
	if revoked {
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}

// UserInfo returns the profile of the authenticated user.
func (s *AuthService) UserInfo(ctx context.Context, userID string) (UserInfo, error) {
	user, err := s.deps.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return UserInfo{}, ErrUserNotFound
		}
		return UserInfo{}, fmt.Errorf("lookup user: %w", err)
	}
	return UserInfo{RealName: user.DisplayName(), Username: user.Username, Email: user.Email}, nil
}

// RevokeAllSessions blacklists every outstanding refresh token of the user.
func (s *AuthService) RevokeAllSessions(ctx context.Context, userID, reason string) (int, error) {
	count, err := s.deps.Tokens.RevokeRefreshTokensForUser(ctx, userID, reason, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return count, nil
}

func (s *AuthService) lookupRefresh(ctx context.Context, raw string, now time.Time) (*domain.RefreshToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidRefreshToken
	}

	record, err := s.deps.Tokens.GetRefreshTokenByHash(ctx, security.HashToken(raw))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}
	if !record.IsActive(now) {
		return nil, ErrInvalidRefreshToken
	}
	return record, nil
}

func (s *AuthService) issuePair(ctx context.Context, userID string, roles []string, rotatedFrom *string, now time.Time) (domain.TokenPair, error) {
	raw, err := security.GenerateSecureToken(refreshTokenBytes)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("generate refresh token: %w", err)
	}

	record := domain.RefreshToken{
		ID:          uuid.NewString(),
		UserID:      userID,
		TokenHash:   security.HashToken(raw),
		RotatedFrom: rotatedFrom,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.cfg.RefreshTokenTTL),
	}
	if err := s.deps.Tokens.CreateRefreshToken(ctx, record); err != nil {
		return domain.TokenPair{}, fmt.Errorf("persist refresh token: %w", err)
	}

	claims, err := security.NewAccessTokenClaims(security.AccessTokenOptions{
		UserID:    userID,
		Roles:     roles,
		RefreshID: record.ID,
		Issuer:    s.cfg.Issuer,
		Audience:  s.cfg.Audience,
		TTL:       s.cfg.AccessTokenTTL,
		IssuedAt:  now,
	})
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("build access token claims: %w", err)
	}
	access, err := s.deps.JWT.Sign(claims)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	return domain.TokenPair{
		AccessToken:      access,
		RefreshToken:     raw,
		AccessExpiresAt:  claims.ExpiresAt.Time,
		RefreshExpiresAt: record.ExpiresAt,
	}, nil
}

func (s *AuthService) publishLogin(ctx context.Context, user domain.User, method string, roles []string, at time.Time) {
	if s.deps.Events == nil {
		return
	}
	event := domain.UserLoggedInEvent{
		EventID:    uuid.NewString(),
		UserID:     user.ID,
		Username:   user.Username,
		Method:     method,
		RoleNames:  roles,
		LoggedInAt: at,
	}
	if err := s.deps.Events.PublishUserLoggedIn(ctx, event); err != nil {
		s.deps.Logger.Warn("publish login event failed", zap.String("user_id", user.ID), zap.Error(err))
	}
}
