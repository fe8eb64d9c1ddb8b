package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orthodesk/orthodesk/authz"
	"github.com/orthodesk/orthodesk/db"
	"github.com/orthodesk/orthodesk/services"
)

type UserHandler struct {
	Service *services.UserService
}

func NewUserHandler(service *services.UserService) *UserHandler {
	return &UserHandler{Service: service}
}

// ListUsers handles GET /portal/users
func (h *UserHandler) ListUsers(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	users, err := h.Service.ListUsers(c.Request.Context(), rc)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "total": len(users)})
}

// CreateUser handles POST /portal/users
func (h *UserHandler) CreateUser(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	var req db.CreateUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.Service.CreateUser(c.Request.Context(), rc, req)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// GetUser handles GET /portal/users/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	user, err := h.Service.GetUser(c.Request.Context(), rc, id)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateUser handles PATCH /portal/users/:id
func (h *UserHandler) UpdateUser(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	var req services.UpdateUserFlagsRequest
	if !bindJSON(c, &req) {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Service.UpdateUserFlags(c.Request.Context(), rc, id, req); err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "user updated"})
}

// ProvisionTenant handles POST /portal/tenants
func (h *UserHandler) ProvisionTenant(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	var req db.RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.Service.ProvisionTenant(c.Request.Context(), rc, req)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}
