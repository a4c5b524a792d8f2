package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/infra/security"
)

func testUser(id, username string) domain.User {
	hash, _ := plainHasher{}.Hash("correct horse battery")
	return domain.User{
		ID:           id,
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		IsActive:     true,
		DateJoined:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

type authFixture struct {
	store       *memStore
	revocations *memRevocations
	events      *recordingPublisher
	jwt         *security.JWTManager
	service     *AuthService
	now         time.Time
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	provider, err := security.NewEphemeralKeyProvider("test")
	if err != nil {
		t.Fatalf("key provider: %v", err)
	}

	f := &authFixture{
		store:       seedResolverStore(),
		revocations: newMemRevocations(),
		events:      &recordingPublisher{},
		now:         time.Now().UTC().Truncate(time.Second),
	}
	clock := func() time.Time { return f.now }
	f.jwt = security.NewJWTManager(provider).WithClock(clock)

	f.store.addUser(testUser(userAlice, "alice"), roleAdmin, roleEditor)
	inactive := testUser(userBob, "bob")
	inactive.IsActive = false
	f.store.addUser(inactive, roleEditor)

	cfg := AuthConfig{
		Issuer:          "rbac-test",
		Audience:        []string{"rbac-clients"},
		AccessTokenTTL:  15 * time.Second,
		RefreshTokenTTL: 24 * time.Hour,
	}
	f.service = NewAuthService(cfg, AuthDependencies{
		Users:       &memUsers{f.store},
		Tokens:      &memTokens{f.store},
		Revocations: f.revocations,
		Hasher:      plainHasher{},
		JWT:         f.jwt,
		Resolver:    NewPermissionResolver(&memRoles{f.store}, &memPermissions{f.store}),
		Events:      f.events,
	}).WithClock(clock)
	return f
}

func TestLoginIssuesDistinctTokensWithRoleNames(t *testing.T) {
	f := newAuthFixture(t)

	result, err := f.service.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if result.Tokens.AccessToken == "" || result.Tokens.RefreshToken == "" {
		t.Fatal("expected both tokens")
	}
	if result.Tokens.AccessToken == result.Tokens.RefreshToken {
		t.Fatal("access and refresh tokens must differ")
	}
	if got := result.Permissions.RoleNames; len(got) != 2 || got[0] != "admin" || got[1] != "editor" {
		t.Fatalf("unexpected role names %v", got)
	}

	claims, err := f.service.ParseAccessToken(context.Background(), result.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != userAlice {
		t.Fatalf("expected uid %s, got %s", userAlice, claims.UserID)
	}
	if claims.ExpiresAt.Time.Sub(f.now) != 15*time.Second {
		t.Fatalf("expected 15s access lifetime, got %s", claims.ExpiresAt.Time.Sub(f.now))
	}

	if f.store.users[userAlice].LastLogin == nil {
		t.Fatal("last login should be stamped")
	}
	if len(f.events.logins) != 1 || f.events.logins[0].Method != LoginMethodPassword {
		t.Fatalf("expected one password login event, got %#v", f.events.logins)
	}
}

func TestLoginRejectsBadCredentialsUniformly(t *testing.T) {
	f := newAuthFixture(t)

	cases := []struct {
		name     string
		username string
		password string
	}{
		{name: "wrong password", username: "alice", password: "nope"},
		{name: "unknown user", username: "mallory", password: "correct horse battery"},
		{name: "inactive user", username: "bob", password: "correct horse battery"},
		{name: "empty", username: "", password: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := f.service.Login(context.Background(), tc.username, tc.password)
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
			if result != nil {
				t.Fatal("no result expected on failure")
			}
		})
	}
	if len(f.store.tokens) != 0 {
		t.Fatalf("no refresh token should be persisted, got %d", len(f.store.tokens))
	}
}

type countingHasher struct {
	plainHasher
	verifies int
}

func (h *countingHasher) Verify(password, encoded string) (bool, error) {
	h.verifies++
	return h.plainHasher.Verify(password, encoded)
}

func TestLoginVerifiesAHashForUnknownUsers(t *testing.T) {
	f := newAuthFixture(t)
	hasher := &countingHasher{}
	f.service.deps.Hasher = hasher

	for _, username := range []string{"mallory", "alice"} {
		if _, err := f.service.Login(context.Background(), username, "wrong password"); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("%s: expected ErrInvalidCredentials, got %v", username, err)
		}
	}
	if hasher.verifies != 2 {
		t.Fatalf("expected one verification per attempt, got %d", hasher.verifies)
	}

	if _, err := f.service.Login(context.Background(), "mallory", "again"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if hasher.verifies != 3 {
		t.Fatalf("expected the decoy hash to be reused, got %d verifications", hasher.verifies)
	}
}

func TestRefreshRotatesAndBlacklistsPreviousToken(t *testing.T) {
	f := newAuthFixture(t)
	login, err := f.service.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	f.now = f.now.Add(time.Minute)
	pair, err := f.service.Refresh(context.Background(), login.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if pair.RefreshToken == login.Tokens.RefreshToken {
		t.Fatal("refresh token must rotate")
	}

	old, err := (&memTokens{f.store}).GetRefreshTokenByHash(context.Background(), security.HashToken(login.Tokens.RefreshToken))
	if err != nil {
		t.Fatalf("lookup old token: %v", err)
	}
	if !old.IsRevoked() || *old.RevokeReason != domain.RevokeReasonRotated {
		t.Fatalf("old token should be revoked as rotated: %#v", old)
	}

	if _, err := f.service.Refresh(context.Background(), login.Tokens.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("reuse of rotated token should fail, got %v", err)
	}

	fresh, err := (&memTokens{f.store}).GetRefreshTokenByHash(context.Background(), security.HashToken(pair.RefreshToken))
	if err != nil {
		t.Fatalf("lookup new token: %v", err)
	}
	if fresh.RotatedFrom == nil || *fresh.RotatedFrom != old.ID {
		t.Fatalf("new token should reference the rotated record")
	}
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	f := newAuthFixture(t)
	login, err := f.service.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	f.now = f.now.Add(25 * time.Hour)
	if _, err := f.service.Refresh(context.Background(), login.Tokens.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken, got %v", err)
	}
}

func TestLogoutRevokesRefreshAndAccessTokens(t *testing.T) {
	f := newAuthFixture(t)
	login, err := f.service.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	claims, err := f.service.ParseAccessToken(context.Background(), login.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if err := f.service.Logout(context.Background(), login.Tokens.RefreshToken, claims); err != nil {
		t.Fatalf("logout: %v", err)
	}

	if ttl := f.revocations.ttls[claims.ID]; ttl != 15*time.Second {
		t.Fatalf("access token should be denied until expiry, ttl=%s", ttl)
	}
	if _, err := f.service.ParseAccessToken(context.Background(), login.Tokens.AccessToken); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("revoked access token should be rejected, got %v", err)
	}
	if _, err := f.service.Refresh(context.Background(), login.Tokens.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("logged out refresh token should be rejected, got %v", err)
	}
}

func TestParseAccessTokenReportsExpiry(t *testing.T) {
	f := newAuthFixture(t)
	login, err := f.service.Login(context.Background(), "alice", "correct horse battery")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	f.now = f.now.Add(16 * time.Second)
	if _, err := f.service.ParseAccessToken(context.Background(), login.Tokens.AccessToken); !errors.Is(err, ErrExpiredAccessToken) {
		t.Fatalf("expected ErrExpiredAccessToken, got %v", err)
	}
	if _, err := f.service.ParseAccessToken(context.Background(), "garbage"); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("expected ErrInvalidAccessToken, got %v", err)
	}
}

func TestUserInfoFallsBackToUsername(t *testing.T) {
	f := newAuthFixture(t)

	info, err := f.service.UserInfo(context.Background(), userAlice)
	if err != nil {
		t.Fatalf("user info: %v", err)
	}
	if info.RealName != "alice" || info.Email != "alice@example.com" {
		t.Fatalf("unexpected info %#v", info)
	}

	if _, err := f.service.UserInfo(context.Background(), "00000000-0000-0000-0000-000000000404"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
