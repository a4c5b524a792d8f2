package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/infra/security"
	"github.com/arklim/rbac-auth-service/internal/transport/http/middleware"
	"github.com/arklim/rbac-auth-service/internal/usecase"
)

const testUserID = "00000000-0000-0000-0000-000000000001"

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, RegisterValidators())

	router := gin.New()
	router.Use(middleware.EnrichContext())
	return router
}

// fakeAuth stands in for RequireAuth and authenticates every request as testUserID.
func fakeAuth(c *gin.Context) {
	c.Set(middleware.UserIDKey, testUserID)
	c.Set(middleware.ClaimsKey, &security.AccessTokenClaims{UserID: testUserID})
	c.Next()
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

type stubAuth struct {
	loginResult *usecase.LoginResult
	loginErr    error
	pair        domain.TokenPair
	refreshErr  error
	logoutErr   error
	info        usecase.UserInfo
	infoErr     error

	gotUsername string
	gotRefresh  string
	gotClaims   *security.AccessTokenClaims
}

func (s *stubAuth) Login(_ context.Context, username, _ string) (*usecase.LoginResult, error) {
	s.gotUsername = username
	return s.loginResult, s.loginErr
}

func (s *stubAuth) Refresh(_ context.Context, raw string) (domain.TokenPair, error) {
	s.gotRefresh = raw
	return s.pair, s.refreshErr
}

func (s *stubAuth) Logout(_ context.Context, raw string, access *security.AccessTokenClaims) error {
	s.gotRefresh = raw
	s.gotClaims = access
	return s.logoutErr
}

func (s *stubAuth) UserInfo(_ context.Context, _ string) (usecase.UserInfo, error) {
	return s.info, s.infoErr
}

type stubResolver struct {
	perms   domain.EffectivePermissions
	list    []domain.PermissionSummary
	err     error
	gotUser string
}

func (s *stubResolver) Resolve(_ context.Context, userID string) (domain.EffectivePermissions, error) {
	s.gotUser = userID
	return s.perms, s.err
}

func (s *stubResolver) ListPermissions(_ context.Context, userID string) ([]domain.PermissionSummary, error) {
	s.gotUser = userID
	return s.list, s.err
}

type stubReconciler struct {
	err      error
	calls    int
	gotActor string
	gotMenu  []domain.MenuNode
}

func (s *stubReconciler) Reconcile(_ context.Context, actorID string, menu []domain.MenuNode) (domain.ReconcileResult, error) {
	s.calls++
	s.gotActor = actorID
	s.gotMenu = menu
	return domain.ReconcileResult{Created: len(menu)}, s.err
}

type stubGrants struct {
	grant      domain.RolePermission
	grantErr   error
	replaced   []domain.RolePermission
	replaceErr error
	list       []domain.RolePermission

	gotInput usecase.GrantInput
	gotRole  string
	gotIDs   []string
}

func (s *stubGrants) Grant(_ context.Context, _ string, input usecase.GrantInput) (domain.RolePermission, error) {
	s.gotInput = input
	return s.grant, s.grantErr
}

func (s *stubGrants) Replace(_ context.Context, _ string, roleID string, ids []string) ([]domain.RolePermission, error) {
	s.gotRole = roleID
	s.gotIDs = ids
	return s.replaced, s.replaceErr
}

func (s *stubGrants) List(_ context.Context, roleID string) ([]domain.RolePermission, error) {
	s.gotRole = roleID
	return s.list, nil
}

type stubCodes struct {
	result    usecase.CodeRequestResult
	err       error
	user      *domain.User
	changeErr error
	calls     int
}

func (s *stubCodes) RequestCode(_ context.Context, email string) (usecase.CodeRequestResult, error) {
	s.calls++
	s.result.Email = email
	return s.result, s.err
}

func (s *stubCodes) VerifyCode(_ context.Context, _, _ string) (*domain.User, error) {
	s.calls++
	return s.user, s.err
}

func (s *stubCodes) ChangePassword(_ context.Context, _, _, _ string) error {
	s.calls++
	return s.changeErr
}
