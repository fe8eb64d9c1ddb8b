package authz

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orthodesk/orthodesk/internal/metrics"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func setupRouter(t *testing.T, store *fakeStore, m *metrics.Metrics) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	verifier := &fakeVerifier{claims: map[string]Claims{
		"reader":  {UserID: "reader", TenantID: "tenant-1"},
		"portal":  {UserID: "portal-only", TenantID: "tenant-1"},
		"admin":   {UserID: "admin", TenantID: "tenant-1"},
		"ghost":   {UserID: "ghost", TenantID: "tenant-1"},
		"nogrant": {UserID: "nogrant", TenantID: "tenant-1"},
	}}
	mw := NewMiddleware(NewContextBuilder(verifier, store), quietLogger(), m)

	r := gin.New()
	planner := r.Group("/planner")
	planner.Use(mw.Authenticate(), mw.RequireAppAccess(AppPlanner))
	planner.GET("/patients",
		mw.RequirePermission(ActionRead, ResourcePatient),
		mw.RequireClinicScope(ResourcePatient),
		func(c *gin.Context) {
			scope, ok := ScopeFrom(c)
			require.True(t, ok)
			c.JSON(http.StatusOK, gin.H{
				"scope":      scope,
				"can_delete": HasPermission(c, ActionDelete, ResourcePatient),
			})
		})
	planner.DELETE("/patients/:id",
		mw.RequirePermission(ActionDelete, ResourcePatient),
		func(c *gin.Context) { c.Status(http.StatusNoContent) })
	return r
}

func defaultStore() *fakeStore {
	return &fakeStore{principals: map[string]*Principal{
		"reader": dentist("reader", []Grant{
			{ApplicationName: AppPlanner, Role: role("dentist", perm(ActionRead, ResourcePatient))},
		}, "clinic-a"),
		"portal-only": dentist("portal-only", []Grant{
			{ApplicationName: AppPortal, Role: role("boss", perm(ActionManage, ResourceAll))},
		}, "clinic-a"),
		"nogrant": dentist("nogrant", nil, "clinic-a"),
		"admin":   superAdmin("admin", "clinic-a"),
	}}
}

func doRequest(r *gin.Engine, method, path, token, clinic string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if clinic != "" {
		req.Header.Set(HeaderClinicID, clinic)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware_Statuses(t *testing.T) {
	r := setupRouter(t, defaultStore(), nil)

	tests := []struct {
		name   string
		method string
		token  string
		clinic string
		want   int
	}{
		{"no credential", http.MethodGet, "", "clinic-a", http.StatusUnauthorized},
		{"expired credential with valid clinic", http.MethodGet, "expired", "clinic-a", http.StatusUnauthorized},
		{"deleted principal", http.MethodGet, "ghost", "clinic-a", http.StatusUnauthorized},
		{"no grant for planner", http.MethodGet, "nogrant", "clinic-a", http.StatusForbidden},
		{"portal-only grant", http.MethodGet, "portal", "clinic-a", http.StatusForbidden},
		{"reader lists", http.MethodGet, "reader", "clinic-a", http.StatusOK},
		{"reader without clinic", http.MethodGet, "reader", "", http.StatusBadRequest},
		{"reader with foreign clinic", http.MethodGet, "reader", "clinic-t2", http.StatusForbidden},
		{"reader cannot delete", http.MethodDelete, "reader", "clinic-a", http.StatusForbidden},
		{"super-admin deletes", http.MethodDelete, "admin", "clinic-a", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/planner/patients"
			if tt.method == http.MethodDelete {
				path += "/p-1"
			}
			w := doRequest(r, tt.method, path, tt.token, tt.clinic)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestMiddleware_UnknownPrincipalLooksLikeBadCredential(t *testing.T) {
	r := setupRouter(t, defaultStore(), nil)

	ghost := doRequest(r, http.MethodGet, "/planner/patients", "ghost", "clinic-a")
	expired := doRequest(r, http.MethodGet, "/planner/patients", "expired", "clinic-a")

	assert.Equal(t, expired.Code, ghost.Code)
	assert.JSONEq(t, expired.Body.String(), ghost.Body.String())
}

func TestMiddleware_StoreFailureIsInternalError(t *testing.T) {
	store := defaultStore()
	store.err = errors.New("db down")
	r := setupRouter(t, store, nil)

	w := doRequest(r, http.MethodGet, "/planner/patients", "reader", "clinic-a")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMiddleware_ScopeAndInlineHelper(t *testing.T) {
	r := setupRouter(t, defaultStore(), nil)

	w := doRequest(r, http.MethodGet, "/planner/patients", "reader", "clinic-a")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Scope     Scope `json:"scope"`
		CanDelete bool  `json:"can_delete"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, Scope{TenantID: "tenant-1", ClinicID: "clinic-a", OwnerID: "reader"}, body.Scope)
	assert.False(t, body.CanDelete)

	w = doRequest(r, http.MethodGet, "/planner/patients", "admin", "clinic-a")
	require.Equal(t, http.StatusOK, w.Code)
	body.Scope, body.CanDelete = Scope{}, false
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Scope.OwnerID)
	assert.True(t, body.CanDelete)
}

func TestMiddleware_AppGateShortCircuitsPermissionCheck(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	r := setupRouter(t, defaultStore(), m)

	w := doRequest(r, http.MethodGet, "/planner/patients", "portal", "clinic-a")
	require.Equal(t, http.StatusForbidden, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthzDecisionsTotal.WithLabelValues("app", "deny")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.AuthzDecisionsTotal.WithLabelValues("permission", "allow")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.AuthzDecisionsTotal.WithLabelValues("permission", "deny")))
}

func TestMiddleware_GatesWithoutAuthenticate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mw := NewMiddleware(nil, quietLogger(), nil)

	r := gin.New()
	r.GET("/x", mw.RequirePermission(ActionRead, ResourcePatient), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrUnauthenticated, http.StatusUnauthorized},
		{ErrPrincipalNotFound, http.StatusUnauthorized},
		{ErrForbidden, http.StatusForbidden},
		{ErrMissingClinicContext, http.StatusBadRequest},
		{ErrInvalidInput, http.StatusBadRequest},
		{ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", ErrForbidden), http.StatusForbidden},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForError(tt.err))
		})
	}
}
