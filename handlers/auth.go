package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/orthodesk/orthodesk/authz"
	"github.com/orthodesk/orthodesk/db"
	"github.com/orthodesk/orthodesk/services"
)

type AuthHandler struct {
	Service *services.AuthService
}

func NewAuthHandler(service *services.AuthService) *AuthHandler {
	return &AuthHandler{Service: service}
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req db.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.Service.Register(c.Request.Context(), req)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req services.LoginRequest
	if !bindJSON(c, &req) {
		return
	}

	resp, err := h.Service.Login(c.Request.Context(), req)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Logout handles POST /auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	token, err := authz.ExtractBearerToken(c.GetHeader("Authorization"))
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}

	if err := h.Service.Logout(c.Request.Context(), rc, token); err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "logged out"})
}

// Me handles GET /me
func (h *AuthHandler) Me(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	p := rc.Principal()

	apps := []authz.Application{}
	for _, app := range []authz.Application{authz.AppPlanner, authz.AppPortal} {
		if rc.HasAppAccess(app) {
			apps = append(apps, app)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"id":                   p.ID,
		"tenant_id":            p.TenantID,
		"email":                p.Email,
		"is_super_admin":       p.IsSuperAdmin,
		"can_transfer_patient": p.CanTransferPatient,
		"active_clinic_id":     rc.ActiveClinicID(),
		"applications":         apps,
		"grants":               p.Grants,
		"clinics":              p.Clinics,
	})
}

// requestContext fetches the context set by Authenticate, aborting with 401 when absent
func requestContext(c *gin.Context) (authz.RequestContext, bool) {
	rc, ok := authz.RequestContextFrom(c)
	if !ok {
		authz.AbortWithError(c, authz.ErrUnauthenticated)
		return authz.RequestContext{}, false
	}
	return rc, true
}

// pathID returns the named path parameter once it parses as a UUID
func pathID(c *gin.Context, name string) (string, bool) {
	id := c.Param(name)
	if _, err := uuid.Parse(id); err != nil {
		authz.AbortWithError(c, fmt.Errorf("%w: malformed %s", authz.ErrInvalidInput, name))
		return "", false
	}
	return id, true
}

// queryID returns an optional UUID query parameter; empty means absent
func queryID(c *gin.Context, name string) (string, bool) {
	id := c.Query(name)
	if id == "" {
		return "", true
	}
	if _, err := uuid.Parse(id); err != nil {
		authz.AbortWithError(c, fmt.Errorf("%w: malformed %s", authz.ErrInvalidInput, name))
		return "", false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		authz.AbortWithError(c, fmt.Errorf("%w: %v", authz.ErrInvalidInput, err))
		return false
	}
	return true
}
