package handlers

import (
	"net/http"

	"sitestock_backend/internal/services"
	"sitestock_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// DispatchHandler exposes dispatch intake over HTTP.
type DispatchHandler struct {
	intake services.DispatchIntakeService
}

// NewDispatchHandler creates a new DispatchHandler.
func NewDispatchHandler(intake services.DispatchIntakeService) *DispatchHandler {
	return &DispatchHandler{intake: intake}
}

// ProcessDelivery handles a confirmed delivery. Lines are independent:
// the response always carries one result per line, and the overall status
// is 200 even when some lines failed to resolve.
func (h *DispatchHandler) ProcessDelivery(c *gin.Context) {
	var confirmation services.DeliveryConfirmation
	if err := c.ShouldBindJSON(&confirmation); err != nil {
		utils.RespondValidationFailed(c, err.Error())
		return
	}
	if len(confirmation.Lines) == 0 {
		utils.RespondValidationFailed(c, "delivery must carry at least one line")
		return
	}
	confirmation.CreatedBy = actorID(c)

	results := h.intake.ProcessDelivery(confirmation)

	booked := 0
	for i := range results {
		if results[i].Transaction != nil {
			booked++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"dispatch_id":  confirmation.DispatchID,
		"lines_total":  len(results),
		"lines_booked": booked,
		"results":      results,
	})
}
