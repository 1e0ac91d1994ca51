package handlers

import (
	"net/http"
	"strconv"

	"sitestock_backend/internal/services"

	"github.com/gin-gonic/gin"
)

// SummaryHandler exposes read-only inventory reports over HTTP.
type SummaryHandler struct {
	summary services.InventorySummaryService
	ledger  services.StockLedgerService
}

// NewSummaryHandler creates a new SummaryHandler.
func NewSummaryHandler(summary services.InventorySummaryService, ledger services.StockLedgerService) *SummaryHandler {
	return &SummaryHandler{summary: summary, ledger: ledger}
}

// GetOverview handles the warehouse-wide stock summary.
func (h *SummaryHandler) GetOverview(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	report, err := h.summary.Overview(page, pageSize)
	if err != nil {
		respondLedgerError(c, "GetOverview: Error from summary.Overview", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// GetMaterialHistory handles the merged transaction/assignment timeline
// for a stock record. The stock row is resolved to its material first.
func (h *SummaryHandler) GetMaterialHistory(c *gin.Context) {
	stockID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	stock, err := h.ledger.GetStockByID(stockID)
	if err != nil {
		respondLedgerError(c, "GetMaterialHistory: Error from ledger.GetStockByID", err)
		return
	}

	report, err := h.summary.MaterialHistory(stock.MaterialID)
	if err != nil {
		respondLedgerError(c, "GetMaterialHistory: Error from summary.MaterialHistory", err)
		return
	}

	// Operators reconcile the stored reserved quantity against the value
	// replayed from the log.
	recomputed, err := h.summary.RecomputeReserved(stock.MaterialID)
	if err != nil {
		respondLedgerError(c, "GetMaterialHistory: Error from summary.RecomputeReserved", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stock":               report.Stock,
		"entries":             report.Entries,
		"recomputed_reserved": recomputed,
	})
}
