package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/arklim/rbac-auth-service/internal/core/domain"
	"github.com/arklim/rbac-auth-service/internal/usecase"
)

func newRolePermissionRouter(t *testing.T, grants *stubGrants) *gin.Engine {
	t.Helper()
	router := newTestRouter(t)
	group := router.Group("/api/v1/rbac/role-permissions")
	group.Use(fakeAuth)
	NewRolePermissionHandler(grants).RegisterRoutes(group)
	return router
}

func TestGrantCreatesRolePermission(t *testing.T) {
	grants := &stubGrants{grant: domain.RolePermission{ID: "rp-1", RoleID: "role-1", PermissionID: "perm-1"}}
	router := newRolePermissionRouter(t, grants)

	rr := doJSON(t, router, http.MethodPost, "/api/v1/rbac/role-permissions",
		map[string]any{"role": "role-1", "permission": "perm-1"})

	require.Equal(t, http.StatusCreated, rr.Code)
	require.JSONEq(t, `{"detail":"Permission successfully added to role."}`, rr.Body.String())
	require.Equal(t, usecase.GrantInput{RoleID: "role-1", PermissionID: "perm-1"}, grants.gotInput)
}

func TestGrantErrorMessages(t *testing.T) {
	cases := []struct {
		err    error
		status int
		detail string
	}{
		{usecase.ErrRoleRequired, http.StatusBadRequest, "Role is required."},
		{usecase.ErrRoleNotFound, http.StatusNotFound, "Role not found."},
		{usecase.ErrInvalidPermission, http.StatusBadRequest, "Invalid permission."},
		{usecase.ErrPermissionAlreadyGranted, http.StatusBadRequest, "Permission already exists for this role."},
		{usecase.ErrSinglePermissionOnly, http.StatusBadRequest, "Please provide only one permission."},
		{usecase.ErrPermissionRequired, http.StatusBadRequest, "At least one permission is required."},
		{errors.New("db down"), http.StatusInternalServerError, "Failed to grant permission."},
	}

	for _, tc := range cases {
		t.Run(tc.detail, func(t *testing.T) {
			router := newRolePermissionRouter(t, &stubGrants{grantErr: tc.err})

			rr := doJSON(t, router, http.MethodPost, "/api/v1/rbac/role-permissions",
				map[string]any{"role": "role-1", "permissions": []string{"a", "b"}})

			require.Equal(t, tc.status, rr.Code)
			require.Equal(t, tc.detail, decodeBody(t, rr)["detail"])
		})
	}
}

func TestReplaceCollectsPermissionIDs(t *testing.T) {
	grants := &stubGrants{replaced: []domain.RolePermission{
		{ID: "rp-1", RoleID: "role-1", PermissionID: "perm-1"},
		{ID: "rp-2", RoleID: "role-1", PermissionID: "perm-2"},
	}}
	router := newRolePermissionRouter(t, grants)

	rr := doJSON(t, router, http.MethodPut, "/api/v1/rbac/role-permissions/role-1", RolePermissionReplaceRequest{
		RoleID:      "role-1",
		Permissions: []PermissionRef{{ID: "perm-1"}, {ID: "perm-2"}},
	})

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "role-1", grants.gotRole)
	require.Equal(t, []string{"perm-1", "perm-2"}, grants.gotIDs)

	body := decodeBody(t, rr)
	require.Equal(t, "Role permissions successfully updated.", body["detail"])
	require.Len(t, body["permissions"], 2)
}

func TestReplaceErrorMessages(t *testing.T) {
	cases := []struct {
		err    error
		status int
		detail string
	}{
		{usecase.ErrRoleRequired, http.StatusBadRequest, "Role is required."},
		{usecase.ErrPermissionRequired, http.StatusBadRequest, "At least one permission is required."},
		{usecase.ErrRoleNotFound, http.StatusNotFound, "Role not found."},
		{usecase.ErrInvalidPermission, http.StatusBadRequest, "One or more permissions are invalid."},
	}

	for _, tc := range cases {
		t.Run(tc.detail, func(t *testing.T) {
			router := newRolePermissionRouter(t, &stubGrants{replaceErr: tc.err})

			rr := doJSON(t, router, http.MethodPut, "/api/v1/rbac/role-permissions/role-1",
				`{"role_id":"role-1","permissions":[{"id":"perm-1"}]}`)

			require.Equal(t, tc.status, rr.Code)
			require.Equal(t, tc.detail, decodeBody(t, rr)["detail"])
		})
	}
}

func TestListRolePermissions(t *testing.T) {
	grants := &stubGrants{list: []domain.RolePermission{{ID: "rp-1", RoleID: "role-1", PermissionID: "perm-1"}}}
	router := newRolePermissionRouter(t, grants)

	rr := doJSON(t, router, http.MethodGet, "/api/v1/rbac/role-permissions/role-1", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "role-1", grants.gotRole)
	require.JSONEq(t, `[{"id":"rp-1","role":"role-1","permission":"perm-1"}]`, rr.Body.String())
}
