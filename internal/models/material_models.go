package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stock transaction types. The transaction log is append-only; rows are
// never updated or deleted once written.
const (
	TxTypeIn         = "IN"
	TxTypeOut        = "OUT"
	TxTypeReserved   = "RESERVED"
	TxTypeUnreserved = "UNRESERVED"
	TxTypeAdjusted   = "ADJUSTED"
)

// Stock transaction reference types: what triggered the entry.
const (
	RefTypeProject  = "PROJECT"
	RefTypeDispatch = "DISPATCH"
	RefTypeManual   = "MANUAL"
)

// Stock status classifications derived from available stock vs thresholds.
const (
	StockStatusLow    = "low"
	StockStatusNormal = "normal"
	StockStatusHigh   = "high"
)

// MaterialCatalog describes a purchasable material type, independent of any
// physical quantity held.
type MaterialCatalog struct {
	ID           int64           `json:"id" db:"id"`
	Name         string          `json:"name" db:"name" binding:"required"`
	MaterialType string          `json:"material_type" db:"material_type" binding:"required"` // e.g., STEEL, CONCRETE, PIPE, FASTENER
	Unit         string          `json:"unit" db:"unit" binding:"required"`                   // e.g., kg, m, pcs
	CostPerUnit  decimal.Decimal `json:"cost_per_unit" db:"cost_per_unit"`
	Description  *string         `json:"description,omitempty" db:"description"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// MaterialStock tracks the physical inventory for one catalog material (1:1).
// AvailableStock and TotalValue are derived (available = current - reserved,
// totalValue = current * unitCost); they are persisted for read efficiency
// but committed only through the stock ledger write path.
type MaterialStock struct {
	ID             int64           `json:"id" db:"id"`
	MaterialID     int64           `json:"material_id" db:"material_id"`
	CurrentStock   decimal.Decimal `json:"current_stock" db:"current_stock"`
	ReservedStock  decimal.Decimal `json:"reserved_stock" db:"reserved_stock"`
	AvailableStock decimal.Decimal `json:"available_stock" db:"available_stock"`
	MinimumStock   decimal.Decimal `json:"minimum_stock" db:"minimum_stock"`
	MaximumStock   decimal.Decimal `json:"maximum_stock" db:"maximum_stock"`
	UnitCost       decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	TotalValue     decimal.Decimal `json:"total_value" db:"total_value"`
	Location       *string         `json:"location,omitempty" db:"location"`
	Supplier       *string         `json:"supplier,omitempty" db:"supplier"`
	Notes          *string         `json:"notes,omitempty" db:"notes"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
	Material       *MaterialCatalog `json:"material,omitempty"` // For joining with MaterialCatalog
}

// Recompute refreshes the derived fields from their sources.
func (s *MaterialStock) Recompute() {
	s.AvailableStock = s.CurrentStock.Sub(s.ReservedStock)
	s.TotalValue = s.CurrentStock.Mul(s.UnitCost)
}

// StockTransaction is one immutable audit record of a stock-quantity change.
// Quantity is positive for all types except ADJUSTED, which stores the
// signed delta of a manual correction.
type StockTransaction struct {
	ID              int64           `json:"id" db:"id"`
	MaterialStockID int64           `json:"material_stock_id" db:"material_stock_id"`
	TxType          string          `json:"tx_type" db:"tx_type"`
	Quantity        decimal.Decimal `json:"quantity" db:"quantity"`
	UnitCost        decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	TotalCost       decimal.Decimal `json:"total_cost" db:"total_cost"`
	ReferenceID     *int64          `json:"reference_id,omitempty" db:"reference_id"`
	ReferenceType   string          `json:"reference_type" db:"reference_type"`
	TransactionDate time.Time       `json:"transaction_date" db:"transaction_date"`
	Notes           *string         `json:"notes,omitempty" db:"notes"`
	CreatedBy       *int64          `json:"created_by,omitempty" db:"created_by"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// TxReference identifies what triggered a ledger entry.
type TxReference struct {
	Type      string // PROJECT, DISPATCH or MANUAL
	ID        *int64
	CreatedBy *int64
	Notes     *string
}

// StockTransactionFilters defines the available filters for querying the
// transaction log.
type StockTransactionFilters struct {
	MaterialStockID *int64  `form:"material_stock_id"`
	TxType          *string `form:"tx_type"`
	ReferenceType   *string `form:"reference_type"`
	ReferenceID     *int64  `form:"reference_id"`
	StartDate       *string `form:"start_date"` // Expected format YYYY-MM-DD
	EndDate         *string `form:"end_date"`
	Page            int     `form:"page"`
	PageSize        int     `form:"page_size"`
}
