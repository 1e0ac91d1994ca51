package handlers

import (
	"errors"
	"net/http"

	"sitestock_backend/internal/models"
	"sitestock_backend/internal/services"
	"sitestock_backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AssignmentHandler exposes project material assignments over HTTP.
type AssignmentHandler struct {
	reservations services.ReservationService
}

// NewAssignmentHandler creates a new AssignmentHandler.
func NewAssignmentHandler(reservations services.ReservationService) *AssignmentHandler {
	return &AssignmentHandler{reservations: reservations}
}

// EditQuantityRequest is the body for resizing an assignment.
type EditQuantityRequest struct {
	Quantity decimal.Decimal `json:"quantity" binding:"required"`
}

// respondAssignmentError maps reservation service errors onto HTTP
// statuses. Ledger errors pass through the reservation service unchanged,
// so the ledger cases are handled here too.
func respondAssignmentError(c *gin.Context, context string, err error) {
	switch {
	case errors.Is(err, services.ErrAssignmentNotFound):
		utils.LogError(err, context)
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Assignment not found.", err.Error()))
	case errors.Is(err, services.ErrDuplicateAssignment):
		utils.LogError(err, context)
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeConflict, "Project already has an active assignment for this material.", err.Error()))
	case errors.Is(err, services.ErrInvalidAssignmentState):
		utils.LogError(err, context)
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeInvalidState, "Operation not allowed in the assignment's current status.", err.Error()))
	default:
		respondLedgerError(c, context, err)
	}
}

// CreateAssignment handles reserving material for a project.
func (h *AssignmentHandler) CreateAssignment(c *gin.Context) {
	var req services.AssignToProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationFailed(c, err.Error())
		return
	}
	req.CreatedBy = actorID(c)

	assignment, err := h.reservations.AssignToProject(req)
	if err != nil {
		respondAssignmentError(c, "CreateAssignment: Error from reservations.AssignToProject", err)
		return
	}
	c.JSON(http.StatusCreated, assignment)
}

// GetAssignments handles listing assignments with filters.
func (h *AssignmentHandler) GetAssignments(c *gin.Context) {
	var filters models.AssignmentFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		utils.RespondValidationFailed(c, err.Error())
		return
	}

	assignments, totalCount, err := h.reservations.GetAssignments(filters)
	if err != nil {
		respondAssignmentError(c, "GetAssignments: Error from reservations.GetAssignments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":        assignments,
		"total_count": totalCount,
		"page":        filters.Page,
		"page_size":   filters.PageSize,
	})
}

// GetAssignmentByID handles fetching a single assignment.
func (h *AssignmentHandler) GetAssignmentByID(c *gin.Context) {
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	assignment, err := h.reservations.GetAssignmentByID(id)
	if err != nil {
		respondAssignmentError(c, "GetAssignmentByID: Error from reservations.GetAssignmentByID", err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}

// EditQuantity handles resizing a REQUIRED assignment.
func (h *AssignmentHandler) EditQuantity(c *gin.Context) {
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	var req EditQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationFailed(c, err.Error())
		return
	}

	assignment, err := h.reservations.EditAssignmentQuantity(id, req.Quantity, actorID(c))
	if err != nil {
		respondAssignmentError(c, "EditQuantity: Error from reservations.EditAssignmentQuantity", err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}

// MarkOrdered handles the REQUIRED -> ORDERED transition.
func (h *AssignmentHandler) MarkOrdered(c *gin.Context) {
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	assignment, err := h.reservations.MarkOrdered(id)
	if err != nil {
		respondAssignmentError(c, "MarkOrdered: Error from reservations.MarkOrdered", err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}

// MarkInstalled handles the transition into the terminal INSTALLED status,
// consuming the reserved quantity.
func (h *AssignmentHandler) MarkInstalled(c *gin.Context) {
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	assignment, err := h.reservations.MarkInstalled(id, actorID(c))
	if err != nil {
		respondAssignmentError(c, "MarkInstalled: Error from reservations.MarkInstalled", err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}

// DeleteAssignment handles unreserving: the reservation is released and
// the assignment record removed.
func (h *AssignmentHandler) DeleteAssignment(c *gin.Context) {
	id, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	if err := h.reservations.Unreserve(id, actorID(c)); err != nil {
		respondAssignmentError(c, "DeleteAssignment: Error from reservations.Unreserve", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Assignment unreserved"})
}
