package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orthodesk/orthodesk/authz"
)

// ClinicHandler handles clinic, membership and grant administration on the portal
type ClinicHandler struct {
	adminService *authz.AdminService
}

// NewClinicHandler creates a new ClinicHandler
func NewClinicHandler(adminService *authz.AdminService) *ClinicHandler {
	return &ClinicHandler{adminService: adminService}
}

type addMemberInput struct {
	UserID string `json:"user_id" binding:"required,uuid"`
}

// CreateClinic handles POST /portal/clinics
func (h *ClinicHandler) CreateClinic(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	var input authz.CreateClinicInput
	if !bindJSON(c, &input) {
		return
	}

	clinic, err := h.adminService.CreateClinic(c.Request.Context(), rc, input)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, clinic)
}

// ListClinics handles GET /portal/clinics
func (h *ClinicHandler) ListClinics(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}

	clinics, err := h.adminService.ListClinics(c.Request.Context(), rc)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clinics": clinics})
}

// ListClinicMembers handles GET /portal/clinics/:id/members
func (h *ClinicHandler) ListClinicMembers(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	members, err := h.adminService.ListClinicMembers(c.Request.Context(), rc, id)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// AddClinicMember handles POST /portal/clinics/:id/members
func (h *ClinicHandler) AddClinicMember(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	var input addMemberInput
	if !bindJSON(c, &input) {
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.adminService.AddClinicMember(c.Request.Context(), rc, id, input.UserID); err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "member added"})
}

// RemoveClinicMember handles DELETE /portal/clinics/:id/members/:user_id
func (h *ClinicHandler) RemoveClinicMember(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	if err := h.adminService.RemoveClinicMember(c.Request.Context(), rc, id, userID); err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "member removed"})
}

// ListGrants handles GET /portal/users/:id/grants
func (h *ClinicHandler) ListGrants(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	grants, err := h.adminService.ListGrants(c.Request.Context(), rc, id)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"grants": grants})
}

// AssignRole handles PUT /portal/users/:id/grants
func (h *ClinicHandler) AssignRole(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	var input authz.AssignRoleInput
	if !bindJSON(c, &input) {
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.adminService.AssignRole(c.Request.Context(), rc, id, input); err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "role assigned"})
}

// RevokeAppAccess handles DELETE /portal/users/:id/grants/:app
func (h *ClinicHandler) RevokeAppAccess(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	err := h.adminService.RevokeAppAccess(c.Request.Context(), rc, id, authz.Application(c.Param("app")))
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "access revoked"})
}
