package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/orthodesk/orthodesk/authz"
	"github.com/orthodesk/orthodesk/db"
	"github.com/orthodesk/orthodesk/services"
)

// PatientHandler handles patient requests of the planner application
type PatientHandler struct {
	Service *services.PatientService
}

func NewPatientHandler(service *services.PatientService) *PatientHandler {
	return &PatientHandler{Service: service}
}

// ListPatients handles GET /planner/patients
func (h *PatientHandler) ListPatients(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}

	filter := services.ListPatientsFilter{Search: c.Query("q")}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.Query("offset")); err == nil {
		filter.Offset = offset
	}

	patients, err := h.Service.List(c.Request.Context(), rc, filter)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"patients":   patients,
		"total":      len(patients),
		"can_manage": rc.Authorize(authz.ActionManage, authz.ResourcePatient),
	})
}

// GetPatient handles GET /planner/patients/:id
func (h *PatientHandler) GetPatient(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	patient, err := h.Service.Get(c.Request.Context(), rc, id)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, patient)
}

// CreatePatient handles POST /planner/patients
func (h *PatientHandler) CreatePatient(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	var req db.CreatePatientRequest
	if !bindJSON(c, &req) {
		return
	}

	patient, err := h.Service.Create(c.Request.Context(), rc, req)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, patient)
}

// UpdatePatient handles PATCH /planner/patients/:id
func (h *PatientHandler) UpdatePatient(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	var req db.UpdatePatientRequest
	if !bindJSON(c, &req) {
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	patient, err := h.Service.Update(c.Request.Context(), rc, id, req)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, patient)
}

// DeletePatient handles DELETE /planner/patients/:id
func (h *PatientHandler) DeletePatient(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Service.Delete(c.Request.Context(), rc, id); err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "patient deleted"})
}

// TransferPatient handles POST /planner/patients/:id/transfer
func (h *PatientHandler) TransferPatient(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	var req db.TransferPatientRequest
	if !bindJSON(c, &req) {
		return
	}

	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	patient, err := h.Service.Transfer(c.Request.Context(), rc, id, req.NewOwnerID)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, patient)
}
