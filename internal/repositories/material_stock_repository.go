package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sitestock_backend/internal/models"

	"github.com/lib/pq"
)

// MaterialStockRepository defines the interface for material stock database
// operations. Quantity columns are written only by the stock ledger service;
// no other component calls UpdateQuantities.
type MaterialStockRepository interface {
	CreateStock(executor SQLExecutor, stock *models.MaterialStock) (int64, error)
	GetStockByID(id int64) (*models.MaterialStock, error)
	GetStockByMaterialID(materialID int64) (*models.MaterialStock, error)
	// GetStockByIDForUpdate locks the row for the duration of the caller's
	// transaction (SELECT ... FOR UPDATE).
	GetStockByIDForUpdate(executor SQLExecutor, id int64) (*models.MaterialStock, error)
	GetStockByMaterialIDForUpdate(executor SQLExecutor, materialID int64) (*models.MaterialStock, error)
	GetStocks(page, pageSize int) ([]models.MaterialStock, int, error) // Joins with material_catalog
	// UpdateQuantities persists the quantity and derived-value columns of a
	// stock row after a ledger mutation.
	UpdateQuantities(executor SQLExecutor, stock *models.MaterialStock) error
	UpdateDescriptiveFields(executor SQLExecutor, stock *models.MaterialStock) error
	DeleteStock(executor SQLExecutor, id int64) error
}

type materialStockRepository struct {
	db *sql.DB
}

// NewMaterialStockRepository creates a new instance of MaterialStockRepository.
func NewMaterialStockRepository(db *sql.DB) MaterialStockRepository {
	return &materialStockRepository{db: db}
}

const materialStockColumns = `id, material_id, current_stock, reserved_stock, available_stock,
	minimum_stock, maximum_stock, unit_cost, total_value, location, supplier, notes, updated_at`

func scanMaterialStock(row scanner, stock *models.MaterialStock) error {
	return row.Scan(
		&stock.ID, &stock.MaterialID, &stock.CurrentStock, &stock.ReservedStock, &stock.AvailableStock,
		&stock.MinimumStock, &stock.MaximumStock, &stock.UnitCost, &stock.TotalValue,
		&stock.Location, &stock.Supplier, &stock.Notes, &stock.UpdatedAt,
	)
}

func (r *materialStockRepository) CreateStock(executor SQLExecutor, stock *models.MaterialStock) (int64, error) {
	query := `INSERT INTO material_stock
	          (material_id, current_stock, reserved_stock, available_stock, minimum_stock, maximum_stock,
	           unit_cost, total_value, location, supplier, notes, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	          RETURNING id`
	err := executor.QueryRow(query,
		stock.MaterialID, stock.CurrentStock, stock.ReservedStock, stock.AvailableStock,
		stock.MinimumStock, stock.MaximumStock, stock.UnitCost, stock.TotalValue,
		stock.Location, stock.Supplier, stock.Notes, time.Now(),
	).Scan(&stock.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return 0, fmt.Errorf("%w: stock record for material ID %d already exists (constraint: %s)", ErrDuplicateKey, stock.MaterialID, pqErr.Constraint)
		}
		return 0, fmt.Errorf("%w: creating material stock: %v", ErrDatabaseError, err)
	}
	return stock.ID, nil
}

func (r *materialStockRepository) GetStockByID(id int64) (*models.MaterialStock, error) {
	stock := &models.MaterialStock{}
	query := `SELECT ` + materialStockColumns + ` FROM material_stock WHERE id = $1`
	err := scanMaterialStock(r.db.QueryRow(query, id), stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting material stock by ID %d: %v", ErrDatabaseError, id, err)
	}
	return stock, nil
}

func (r *materialStockRepository) GetStockByMaterialID(materialID int64) (*models.MaterialStock, error) {
	stock := &models.MaterialStock{}
	query := `SELECT ` + materialStockColumns + ` FROM material_stock WHERE material_id = $1`
	err := scanMaterialStock(r.db.QueryRow(query, materialID), stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting material stock for material ID %d: %v", ErrDatabaseError, materialID, err)
	}
	return stock, nil
}

func (r *materialStockRepository) GetStockByIDForUpdate(executor SQLExecutor, id int64) (*models.MaterialStock, error) {
	stock := &models.MaterialStock{}
	query := `SELECT ` + materialStockColumns + ` FROM material_stock WHERE id = $1 FOR UPDATE`
	err := scanMaterialStock(executor.QueryRow(query, id), stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: locking material stock ID %d: %v", ErrDatabaseError, id, err)
	}
	return stock, nil
}

func (r *materialStockRepository) GetStockByMaterialIDForUpdate(executor SQLExecutor, materialID int64) (*models.MaterialStock, error) {
	stock := &models.MaterialStock{}
	query := `SELECT ` + materialStockColumns + ` FROM material_stock WHERE material_id = $1 FOR UPDATE`
	err := scanMaterialStock(executor.QueryRow(query, materialID), stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: locking material stock for material ID %d: %v", ErrDatabaseError, materialID, err)
	}
	return stock, nil
}

func (r *materialStockRepository) GetStocks(page, pageSize int) ([]models.MaterialStock, int, error) {
	stocks := []models.MaterialStock{}
	totalCount := 0
	query := `SELECT ms.id, ms.material_id, ms.current_stock, ms.reserved_stock, ms.available_stock,
	                 ms.minimum_stock, ms.maximum_stock, ms.unit_cost, ms.total_value,
	                 ms.location, ms.supplier, ms.notes, ms.updated_at,
	                 mc.name, mc.material_type, mc.unit,
	                 COUNT(*) OVER() AS total_count
	          FROM material_stock ms
	          JOIN material_catalog mc ON ms.material_id = mc.id
	          ORDER BY mc.name
	          LIMIT $1 OFFSET $2`
	rows, err := r.db.Query(query, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: getting material stocks: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		var stock models.MaterialStock
		var material models.MaterialCatalog
		if err := rows.Scan(
			&stock.ID, &stock.MaterialID, &stock.CurrentStock, &stock.ReservedStock, &stock.AvailableStock,
			&stock.MinimumStock, &stock.MaximumStock, &stock.UnitCost, &stock.TotalValue,
			&stock.Location, &stock.Supplier, &stock.Notes, &stock.UpdatedAt,
			&material.Name, &material.MaterialType, &material.Unit,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("%w: scanning material stock: %v", ErrDatabaseError, err)
		}
		material.ID = stock.MaterialID
		stock.Material = &material
		stocks = append(stocks, stock)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating material stocks: %v", ErrDatabaseError, err)
	}
	return stocks, totalCount, nil
}

func (r *materialStockRepository) UpdateQuantities(executor SQLExecutor, stock *models.MaterialStock) error {
	query := `UPDATE material_stock SET current_stock = $1, reserved_stock = $2, available_stock = $3,
	          unit_cost = $4, total_value = $5, updated_at = $6 WHERE id = $7`
	stock.UpdatedAt = time.Now()
	result, err := executor.Exec(query,
		stock.CurrentStock, stock.ReservedStock, stock.AvailableStock,
		stock.UnitCost, stock.TotalValue, stock.UpdatedAt, stock.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: updating quantities for material stock ID %d: %v", ErrDatabaseError, stock.ID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *materialStockRepository) UpdateDescriptiveFields(executor SQLExecutor, stock *models.MaterialStock) error {
	query := `UPDATE material_stock SET minimum_stock = $1, maximum_stock = $2, location = $3,
	          supplier = $4, notes = $5, updated_at = $6 WHERE id = $7`
	stock.UpdatedAt = time.Now()
	result, err := executor.Exec(query,
		stock.MinimumStock, stock.MaximumStock, stock.Location,
		stock.Supplier, stock.Notes, stock.UpdatedAt, stock.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: updating material stock ID %d: %v", ErrDatabaseError, stock.ID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *materialStockRepository) DeleteStock(executor SQLExecutor, id int64) error {
	result, err := executor.Exec("DELETE FROM material_stock WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("%w: deleting material stock ID %d: %v", ErrDatabaseError, id, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
