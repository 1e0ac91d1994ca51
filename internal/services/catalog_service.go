package services

import (
	"errors"
	"fmt"

	"sitestock_backend/internal/models"
	"sitestock_backend/internal/repositories"

	"github.com/shopspring/decimal"
)

// --- Custom Service Errors for the Catalog ---
var (
	ErrDuplicateMaterial = errors.New("a catalog material with this name already exists")
	ErrMaterialHasStock  = errors.New("material still has a stock record")
)

// CreateMaterialRequest creates a catalog entry together with its stock
// record. An opening stock quantity, when given, is booked as a MANUAL
// receipt so the ledger starts with a transaction rather than a bare
// balance.
type CreateMaterialRequest struct {
	Name         string           `json:"name" binding:"required"`
	MaterialType string           `json:"material_type" binding:"required"`
	Unit         string           `json:"unit" binding:"required"`
	CostPerUnit  decimal.Decimal  `json:"cost_per_unit"`
	Description  *string          `json:"description,omitempty"`
	MinimumStock decimal.Decimal  `json:"minimum_stock"`
	MaximumStock decimal.Decimal  `json:"maximum_stock"`
	Location     *string          `json:"location,omitempty"`
	Supplier     *string          `json:"supplier,omitempty"`
	Notes        *string          `json:"notes,omitempty"`
	OpeningStock *decimal.Decimal `json:"opening_stock,omitempty"`
	CreatedBy    *int64           `json:"-"`
}

// UpdateMaterialRequest updates the descriptive fields of a catalog entry
// and its stock record. Quantity and cost columns are out of reach here;
// those change only through ledger operations.
type UpdateMaterialRequest struct {
	Name         *string          `json:"name,omitempty"`
	MaterialType *string          `json:"material_type,omitempty"`
	Unit         *string          `json:"unit,omitempty"`
	CostPerUnit  *decimal.Decimal `json:"cost_per_unit,omitempty"`
	Description  *string          `json:"description,omitempty"`
	MinimumStock *decimal.Decimal `json:"minimum_stock,omitempty"`
	MaximumStock *decimal.Decimal `json:"maximum_stock,omitempty"`
	Location     *string          `json:"location,omitempty"`
	Supplier     *string          `json:"supplier,omitempty"`
	Notes        *string          `json:"notes,omitempty"`
}

// --- CatalogService Interface ---
type CatalogService interface {
	CreateMaterial(req CreateMaterialRequest) (*models.MaterialCatalog, *models.MaterialStock, error)
	GetMaterialByID(id int64) (*models.MaterialCatalog, error)
	GetMaterials(materialType *string, page, pageSize int) ([]models.MaterialCatalog, int, error)
	UpdateMaterial(id int64, req UpdateMaterialRequest) (*models.MaterialCatalog, error)
	DeleteMaterial(id int64) error
}

// --- catalogService Implementation ---
type catalogService struct {
	catalogRepo repositories.MaterialCatalogRepository
	stockRepo   repositories.MaterialStockRepository
	ledger      StockLedgerService
	txRunner    repositories.TxRunner
}

// NewCatalogService creates a new instance of CatalogService.
func NewCatalogService(
	catalogRepo repositories.MaterialCatalogRepository,
	stockRepo repositories.MaterialStockRepository,
	ledger StockLedgerService,
	txRunner repositories.TxRunner,
) CatalogService {
	return &catalogService{
		catalogRepo: catalogRepo,
		stockRepo:   stockRepo,
		ledger:      ledger,
		txRunner:    txRunner,
	}
}

// CreateMaterial creates the catalog entry and its 1:1 stock record in one
// transaction. The stock record starts empty with the catalog cost as its
// unit cost; an opening quantity is then received through the ledger.
func (s *catalogService) CreateMaterial(req CreateMaterialRequest) (*models.MaterialCatalog, *models.MaterialStock, error) {
	if req.CostPerUnit.IsNegative() {
		return nil, nil, fmt.Errorf("%w: got %s", ErrInvalidUnitCost, req.CostPerUnit.String())
	}
	if req.OpeningStock != nil && req.OpeningStock.IsNegative() {
		return nil, nil, fmt.Errorf("%w: opening stock %s", ErrInvalidQuantity, req.OpeningStock.String())
	}

	material := &models.MaterialCatalog{
		Name:         req.Name,
		MaterialType: req.MaterialType,
		Unit:         req.Unit,
		CostPerUnit:  req.CostPerUnit,
		Description:  req.Description,
	}
	stock := &models.MaterialStock{
		CurrentStock:  decimal.Zero,
		ReservedStock: decimal.Zero,
		MinimumStock:  req.MinimumStock,
		MaximumStock:  req.MaximumStock,
		UnitCost:      req.CostPerUnit,
		Location:      req.Location,
		Supplier:      req.Supplier,
		Notes:         req.Notes,
	}
	stock.Recompute()

	err := s.txRunner.InTx(func(ex repositories.SQLExecutor) error {
		materialID, err := s.catalogRepo.CreateMaterial(ex, material)
		if err != nil {
			if errors.Is(err, repositories.ErrDuplicateKey) {
				return fmt.Errorf("%w: %q", ErrDuplicateMaterial, req.Name)
			}
			return fmt.Errorf("failed to create catalog material: %w", err)
		}
		material.ID = materialID
		stock.MaterialID = materialID

		stockID, err := s.stockRepo.CreateStock(ex, stock)
		if err != nil {
			return fmt.Errorf("failed to create stock record: %w", err)
		}
		stock.ID = stockID

		if req.OpeningStock != nil && req.OpeningStock.IsPositive() {
			ref := models.TxReference{Type: models.RefTypeManual, CreatedBy: req.CreatedBy}
			updated, _, err := s.ledger.ReceiveTx(ex, materialID, *req.OpeningStock, req.CostPerUnit, ref)
			if err != nil {
				return err
			}
			*stock = *updated
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return material, stock, nil
}

func (s *catalogService) GetMaterialByID(id int64) (*models.MaterialCatalog, error) {
	material, err := s.catalogRepo.GetMaterialByID(id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: ID %d", ErrMaterialNotFound, id)
		}
		return nil, fmt.Errorf("failed to get catalog material: %w", err)
	}
	return material, nil
}

func (s *catalogService) GetMaterials(materialType *string, page, pageSize int) ([]models.MaterialCatalog, int, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	materials, totalCount, err := s.catalogRepo.GetMaterials(materialType, page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get catalog materials: %w", err)
	}
	return materials, totalCount, nil
}

// UpdateMaterial applies the provided fields to the catalog entry and, for
// the threshold and location fields, to its stock record.
func (s *catalogService) UpdateMaterial(id int64, req UpdateMaterialRequest) (*models.MaterialCatalog, error) {
	material, err := s.GetMaterialByID(id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		material.Name = *req.Name
	}
	if req.MaterialType != nil {
		material.MaterialType = *req.MaterialType
	}
	if req.Unit != nil {
		material.Unit = *req.Unit
	}
	if req.CostPerUnit != nil {
		if req.CostPerUnit.IsNegative() {
			return nil, fmt.Errorf("%w: got %s", ErrInvalidUnitCost, req.CostPerUnit.String())
		}
		material.CostPerUnit = *req.CostPerUnit
	}
	if req.Description != nil {
		material.Description = req.Description
	}

	stockTouched := req.MinimumStock != nil || req.MaximumStock != nil ||
		req.Location != nil || req.Supplier != nil || req.Notes != nil

	err = s.txRunner.InTx(func(ex repositories.SQLExecutor) error {
		if err := s.catalogRepo.UpdateMaterial(ex, material); err != nil {
			if errors.Is(err, repositories.ErrDuplicateKey) {
				return fmt.Errorf("%w: %q", ErrDuplicateMaterial, material.Name)
			}
			return fmt.Errorf("failed to update catalog material: %w", err)
		}
		if !stockTouched {
			return nil
		}

		stock, err := s.stockRepo.GetStockByMaterialID(id)
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return fmt.Errorf("%w: material ID %d", ErrStockNotFound, id)
			}
			return fmt.Errorf("failed to get stock record for update: %w", err)
		}
		if req.MinimumStock != nil {
			stock.MinimumStock = *req.MinimumStock
		}
		if req.MaximumStock != nil {
			stock.MaximumStock = *req.MaximumStock
		}
		if req.Location != nil {
			stock.Location = req.Location
		}
		if req.Supplier != nil {
			stock.Supplier = req.Supplier
		}
		if req.Notes != nil {
			stock.Notes = req.Notes
		}
		if err := s.stockRepo.UpdateDescriptiveFields(ex, stock); err != nil {
			return fmt.Errorf("failed to update stock fields: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return material, nil
}

// DeleteMaterial removes a catalog entry. The stock record must be deleted
// first (through the ledger, which enforces the no-active-reservations
// rule).
func (s *catalogService) DeleteMaterial(id int64) error {
	err := s.txRunner.InTx(func(ex repositories.SQLExecutor) error {
		return s.catalogRepo.DeleteMaterial(ex, id)
	})
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: ID %d", ErrMaterialNotFound, id)
		}
		if errors.Is(err, repositories.ErrReferenced) {
			return fmt.Errorf("%w: delete its stock record first", ErrMaterialHasStock)
		}
		return fmt.Errorf("failed to delete catalog material: %w", err)
	}
	return nil
}
