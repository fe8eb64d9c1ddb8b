package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orthodesk/orthodesk/authz"
	"github.com/orthodesk/orthodesk/db"
	"github.com/orthodesk/orthodesk/services"
)

// RoleHandler exposes the role catalog
type RoleHandler struct {
	Service *services.RoleService
}

func NewRoleHandler(service *services.RoleService) *RoleHandler {
	return &RoleHandler{Service: service}
}

// ListRoles handles GET /portal/roles
func (h *RoleHandler) ListRoles(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	roles, err := h.Service.ListRoles(c.Request.Context(), rc)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

// GetRole handles GET /portal/roles/:id
func (h *RoleHandler) GetRole(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	role, err := h.Service.GetRole(c.Request.Context(), rc, id)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

// CreateRole handles POST /portal/roles
func (h *RoleHandler) CreateRole(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	var req db.CreateRoleRequest
	if !bindJSON(c, &req) {
		return
	}
	role, err := h.Service.CreateRole(c.Request.Context(), rc, req)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, role)
}

// SetRolePermissions handles PUT /portal/roles/:id/permissions
func (h *RoleHandler) SetRolePermissions(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	var req db.SetRolePermissionsRequest
	if !bindJSON(c, &req) {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	role, err := h.Service.SetRolePermissions(c.Request.Context(), rc, id, req)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, role)
}

// DeleteRole handles DELETE /portal/roles/:id
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Service.DeleteRole(c.Request.Context(), rc, id); err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "role deleted"})
}
