package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Assignment lifecycle: REQUIRED <-> (quantity edits, unreserve) -> ORDERED
// (optional, no ledger effect) -> INSTALLED (terminal, triggers consumption).
const (
	AssignmentStatusRequired  = "REQUIRED"
	AssignmentStatusOrdered   = "ORDERED"
	AssignmentStatusInstalled = "INSTALLED"
)

// ProjectMaterialAssignment links a project's demand for a material to the
// stock reservation that backs it. Exactly one active assignment exists per
// (project, material) pair.
type ProjectMaterialAssignment struct {
	ID                int64           `json:"id" db:"id"`
	ProjectID         int64           `json:"project_id" db:"project_id"`
	MaterialCatalogID int64           `json:"material_catalog_id" db:"material_catalog_id"`
	Quantity          decimal.Decimal `json:"quantity" db:"quantity"`
	UnitCost          decimal.Decimal `json:"unit_cost" db:"unit_cost"`
	TotalCost         decimal.Decimal `json:"total_cost" db:"total_cost"`
	Status            string          `json:"status" db:"status"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
	Material          *MaterialCatalog `json:"material,omitempty"` // For joining with MaterialCatalog
}

// AssignmentFilters defines the available filters for querying assignments.
type AssignmentFilters struct {
	ProjectID         *int64  `form:"project_id"`
	MaterialCatalogID *int64  `form:"material_catalog_id"`
	Status            *string `form:"status"`
	Page              int     `form:"page"`
	PageSize          int     `form:"page_size"`
}
