package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"sitestock_backend/internal/models"
	"sitestock_backend/internal/services"
	"sitestock_backend/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// StockHandler exposes the stock ledger over HTTP. Routes address stock
// records by stock row ID; the handler resolves the row to its material
// before calling the ledger.
type StockHandler struct {
	ledger services.StockLedgerService
}

// NewStockHandler creates a new StockHandler.
func NewStockHandler(ledger services.StockLedgerService) *StockHandler {
	return &StockHandler{ledger: ledger}
}

// --- Request DTOs ---

// StockQuantityRequest is the body for receive, reserve, release and
// consume operations.
type StockQuantityRequest struct {
	Quantity decimal.Decimal  `json:"quantity" binding:"required"`
	UnitCost *decimal.Decimal `json:"unit_cost,omitempty"` // Receive only
	Notes    *string          `json:"notes,omitempty"`
}

// parsePathID parses an int64 path parameter.
func parsePathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeBadRequest, "Invalid "+name+" parameter", err.Error()))
		return 0, false
	}
	return id, true
}

// actorID pulls the authenticated user's ID out of the request context.
func actorID(c *gin.Context) *int64 {
	raw, exists := c.Get("userID")
	if !exists {
		return nil
	}
	id, ok := raw.(int64)
	if !ok {
		return nil
	}
	return &id
}

// respondLedgerError maps stock ledger service errors onto HTTP statuses.
func respondLedgerError(c *gin.Context, context string, err error) {
	utils.LogError(err, context)
	switch {
	case errors.Is(err, services.ErrInvalidQuantity):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeInvalidQuantity, "Quantity must be positive.", err.Error()))
	case errors.Is(err, services.ErrInvalidUnitCost):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusBadRequest, utils.ErrCodeBadRequest, "Unit cost cannot be negative.", err.Error()))
	case errors.Is(err, services.ErrInsufficientStock):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeInsufficientStock, "Not enough available stock.", err.Error()))
	case errors.Is(err, services.ErrOverRelease):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeOverRelease, "Release exceeds reserved stock.", err.Error()))
	case errors.Is(err, services.ErrInsufficientReservation):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeInsufficientReservation, "Not enough reserved stock.", err.Error()))
	case errors.Is(err, services.ErrHasActiveReservations):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusConflict, utils.ErrCodeHasActiveReservations, "Stock record still has active reservations.", err.Error()))
	case errors.Is(err, services.ErrStockNotFound), errors.Is(err, services.ErrMaterialNotFound):
		utils.RespondWithError(c, utils.NewAPIError(http.StatusNotFound, utils.ErrCodeNotFound, "Stock record not found.", err.Error()))
	default:
		utils.RespondWithError(c, utils.NewAPIError(http.StatusInternalServerError, utils.ErrCodeInternalServerError, "Stock operation failed.", "Internal error"))
	}
}

// resolveMaterialID loads the stock row and returns its material ID.
func (h *StockHandler) resolveMaterialID(c *gin.Context, stockID int64) (int64, bool) {
	stock, err := h.ledger.GetStockByID(stockID)
	if err != nil {
		respondLedgerError(c, "resolveMaterialID: Error from ledger.GetStockByID", err)
		return 0, false
	}
	return stock.MaterialID, true
}

// GetStocks handles listing stock records with pagination.
func (h *StockHandler) GetStocks(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	stocks, totalCount, err := h.ledger.GetStocks(page, pageSize)
	if err != nil {
		respondLedgerError(c, "GetStocks: Error from ledger.GetStocks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":        stocks,
		"total_count": totalCount,
		"page":        page,
		"page_size":   pageSize,
	})
}

// GetStockByID handles fetching a single stock record.
func (h *StockHandler) GetStockByID(c *gin.Context) {
	stockID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	stock, err := h.ledger.GetStockByID(stockID)
	if err != nil {
		respondLedgerError(c, "GetStockByID: Error from ledger.GetStockByID", err)
		return
	}
	c.JSON(http.StatusOK, stock)
}

// ReceiveStock handles booking a receipt into stock.
func (h *StockHandler) ReceiveStock(c *gin.Context) {
	stockID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	var req StockQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationFailed(c, err.Error())
		return
	}

	stock, err := h.ledger.GetStockByID(stockID)
	if err != nil {
		respondLedgerError(c, "ReceiveStock: Error from ledger.GetStockByID", err)
		return
	}
	unitCost := stock.UnitCost
	if req.UnitCost != nil {
		unitCost = *req.UnitCost
	}

	ref := models.TxReference{Type: models.RefTypeManual, CreatedBy: actorID(c), Notes: req.Notes}
	updated, txn, err := h.ledger.Receive(stock.MaterialID, req.Quantity, unitCost, ref)
	if err != nil {
		respondLedgerError(c, "ReceiveStock: Error from ledger.Receive", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stock": updated, "transaction": txn})
}

// ReserveStock handles a manual reservation against available stock.
func (h *StockHandler) ReserveStock(c *gin.Context) {
	h.quantityOp(c, "ReserveStock", h.ledger.Reserve)
}

// ReleaseStock handles returning reserved stock to the available pool.
func (h *StockHandler) ReleaseStock(c *gin.Context) {
	h.quantityOp(c, "ReleaseStock", h.ledger.Release)
}

// ConsumeStock handles consuming reserved stock out of the warehouse.
func (h *StockHandler) ConsumeStock(c *gin.Context) {
	h.quantityOp(c, "ConsumeStock", h.ledger.Consume)
}

func (h *StockHandler) quantityOp(c *gin.Context, name string, op func(int64, decimal.Decimal, models.TxReference) (*models.MaterialStock, *models.StockTransaction, error)) {
	stockID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	var req StockQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationFailed(c, err.Error())
		return
	}

	materialID, ok := h.resolveMaterialID(c, stockID)
	if !ok {
		return
	}

	ref := models.TxReference{Type: models.RefTypeManual, CreatedBy: actorID(c), Notes: req.Notes}
	stock, txn, err := op(materialID, req.Quantity, ref)
	if err != nil {
		respondLedgerError(c, name+": Error from ledger operation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stock": stock, "transaction": txn})
}

// AdjustStock handles a manual stock-take correction.
func (h *StockHandler) AdjustStock(c *gin.Context) {
	stockID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	var req services.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondValidationFailed(c, err.Error())
		return
	}

	materialID, ok := h.resolveMaterialID(c, stockID)
	if !ok {
		return
	}

	ref := models.TxReference{Type: models.RefTypeManual, CreatedBy: actorID(c)}
	stock, txn, err := h.ledger.AdjustStock(materialID, req, ref)
	if err != nil {
		respondLedgerError(c, "AdjustStock: Error from ledger.AdjustStock", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stock": stock, "transaction": txn})
}

// DeleteStock handles removal of a stock record. Pass
// ?purge_transactions=true to also drop its transaction history.
func (h *StockHandler) DeleteStock(c *gin.Context) {
	stockID, ok := parsePathID(c, "id")
	if !ok {
		return
	}
	purge := c.DefaultQuery("purge_transactions", "false") == "true"

	if err := h.ledger.DeleteStock(stockID, purge); err != nil {
		respondLedgerError(c, "DeleteStock: Error from ledger.DeleteStock", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Stock record deleted"})
}

// GetStockTransactions handles listing the transaction log of one stock
// record, with optional type, reference and date filters.
func (h *StockHandler) GetStockTransactions(c *gin.Context) {
	stockID, ok := parsePathID(c, "id")
	if !ok {
		return
	}

	var filters models.StockTransactionFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		utils.RespondValidationFailed(c, err.Error())
		return
	}
	filters.MaterialStockID = &stockID

	transactions, totalCount, err := h.ledger.GetTransactions(filters)
	if err != nil {
		respondLedgerError(c, "GetStockTransactions: Error from ledger.GetTransactions", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data":        transactions,
		"total_count": totalCount,
		"page":        filters.Page,
		"page_size":   filters.PageSize,
	})
}
