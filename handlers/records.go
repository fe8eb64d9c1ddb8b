package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orthodesk/orthodesk/authz"
	"github.com/orthodesk/orthodesk/db"
	"github.com/orthodesk/orthodesk/services"
)

// RecordHandler serves plannings, contracts and treatments.
// Listings accept ?patient_id= to narrow to one patient.
type RecordHandler struct {
	Service *services.RecordService
}

func NewRecordHandler(service *services.RecordService) *RecordHandler {
	return &RecordHandler{Service: service}
}

// ListPlannings handles GET /planner/plannings
func (h *RecordHandler) ListPlannings(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	patientID, ok := queryID(c, "patient_id")
	if !ok {
		return
	}
	plannings, err := h.Service.ListPlannings(c.Request.Context(), rc, patientID)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plannings": plannings})
}

// GetPlanning handles GET /planner/plannings/:id
func (h *RecordHandler) GetPlanning(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	planning, err := h.Service.GetPlanning(c.Request.Context(), rc, id)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, planning)
}

// CreatePlanning handles POST /planner/patients/:id/plannings
func (h *RecordHandler) CreatePlanning(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	var req db.CreatePlanningRequest
	if !bindJSON(c, &req) {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	planning, err := h.Service.CreatePlanning(c.Request.Context(), rc, id, req)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, planning)
}

// ListContracts handles GET /planner/contracts
func (h *RecordHandler) ListContracts(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	patientID, ok := queryID(c, "patient_id")
	if !ok {
		return
	}
	contracts, err := h.Service.ListContracts(c.Request.Context(), rc, patientID)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contracts": contracts})
}

// GetContract handles GET /planner/contracts/:id
func (h *RecordHandler) GetContract(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	contract, err := h.Service.GetContract(c.Request.Context(), rc, id)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, contract)
}

// CreateContract handles POST /planner/patients/:id/contracts
func (h *RecordHandler) CreateContract(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	var req db.CreateContractRequest
	if !bindJSON(c, &req) {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	contract, err := h.Service.CreateContract(c.Request.Context(), rc, id, req)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, contract)
}

// ListTreatments handles GET /planner/treatments
func (h *RecordHandler) ListTreatments(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	patientID, ok := queryID(c, "patient_id")
	if !ok {
		return
	}
	treatments, err := h.Service.ListTreatments(c.Request.Context(), rc, patientID)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"treatments": treatments})
}

// GetTreatment handles GET /planner/treatments/:id
func (h *RecordHandler) GetTreatment(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	treatment, err := h.Service.GetTreatment(c.Request.Context(), rc, id)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, treatment)
}

// CreateTreatment handles POST /planner/patients/:id/treatments
func (h *RecordHandler) CreateTreatment(c *gin.Context) {
	rc, ok := requestContext(c)
	if !ok {
		return
	}
	var req db.CreateTreatmentRequest
	if !bindJSON(c, &req) {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	treatment, err := h.Service.CreateTreatment(c.Request.Context(), rc, id, req)
	if err != nil {
		authz.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, treatment)
}
