package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"sitestock_backend/internal/models"

	"github.com/lib/pq"
)

// MaterialCatalogRepository defines the interface for material catalog database operations.
type MaterialCatalogRepository interface {
	CreateMaterial(executor SQLExecutor, material *models.MaterialCatalog) (int64, error)
	GetMaterialByID(id int64) (*models.MaterialCatalog, error)
	GetMaterialsByName(name string) ([]models.MaterialCatalog, error)
	GetMaterials(materialType *string, page, pageSize int) ([]models.MaterialCatalog, int, error) // Returns materials, total count, error
	UpdateMaterial(executor SQLExecutor, material *models.MaterialCatalog) error
	DeleteMaterial(executor SQLExecutor, id int64) error
}

type materialCatalogRepository struct {
	db *sql.DB
}

// NewMaterialCatalogRepository creates a new instance of MaterialCatalogRepository.
func NewMaterialCatalogRepository(db *sql.DB) MaterialCatalogRepository {
	return &materialCatalogRepository{db: db}
}

func (r *materialCatalogRepository) CreateMaterial(executor SQLExecutor, material *models.MaterialCatalog) (int64, error) {
	query := `INSERT INTO material_catalog (name, material_type, unit, cost_per_unit, description, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          RETURNING id`
	currentTime := time.Now()
	err := executor.QueryRow(query,
		material.Name, material.MaterialType, material.Unit, material.CostPerUnit,
		material.Description, currentTime, currentTime,
	).Scan(&material.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return 0, fmt.Errorf("%w: material name '%s' already exists (constraint: %s)", ErrDuplicateKey, material.Name, pqErr.Constraint)
		}
		return 0, fmt.Errorf("%w: creating catalog material: %v", ErrDatabaseError, err)
	}
	return material.ID, nil
}

func (r *materialCatalogRepository) GetMaterialByID(id int64) (*models.MaterialCatalog, error) {
	material := &models.MaterialCatalog{}
	query := `SELECT id, name, material_type, unit, cost_per_unit, description, created_at, updated_at
	          FROM material_catalog WHERE id = $1`
	err := r.db.QueryRow(query, id).Scan(
		&material.ID, &material.Name, &material.MaterialType, &material.Unit,
		&material.CostPerUnit, &material.Description, &material.CreatedAt, &material.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting catalog material by ID %d: %v", ErrDatabaseError, id, err)
	}
	return material, nil
}

// GetMaterialsByName returns every catalog entry whose name matches exactly
// (case-insensitive). Used by dispatch intake name-fallback resolution, which
// must see all matches to detect ambiguity.
func (r *materialCatalogRepository) GetMaterialsByName(name string) ([]models.MaterialCatalog, error) {
	materials := []models.MaterialCatalog{}
	query := `SELECT id, name, material_type, unit, cost_per_unit, description, created_at, updated_at
	          FROM material_catalog WHERE LOWER(name) = LOWER($1) ORDER BY id`
	rows, err := r.db.Query(query, name)
	if err != nil {
		return nil, fmt.Errorf("%w: getting catalog materials by name '%s': %v", ErrDatabaseError, name, err)
	}
	defer rows.Close()

	for rows.Next() {
		var material models.MaterialCatalog
		if err := rows.Scan(
			&material.ID, &material.Name, &material.MaterialType, &material.Unit,
			&material.CostPerUnit, &material.Description, &material.CreatedAt, &material.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scanning catalog material: %v", ErrDatabaseError, err)
		}
		materials = append(materials, material)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating catalog materials: %v", ErrDatabaseError, err)
	}
	return materials, nil
}

func (r *materialCatalogRepository) GetMaterials(materialType *string, page, pageSize int) ([]models.MaterialCatalog, int, error) {
	materials := []models.MaterialCatalog{}
	totalCount := 0

	query := `SELECT id, name, material_type, unit, cost_per_unit, description, created_at, updated_at,
	                 COUNT(*) OVER() AS total_count
	          FROM material_catalog`
	var args []interface{}
	if materialType != nil && *materialType != "" {
		query += " WHERE material_type = $1 ORDER BY name LIMIT $2 OFFSET $3"
		args = append(args, *materialType, pageSize, (page-1)*pageSize)
	} else {
		query += " ORDER BY name LIMIT $1 OFFSET $2"
		args = append(args, pageSize, (page-1)*pageSize)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: getting catalog materials: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		var material models.MaterialCatalog
		if err := rows.Scan(
			&material.ID, &material.Name, &material.MaterialType, &material.Unit,
			&material.CostPerUnit, &material.Description, &material.CreatedAt, &material.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("%w: scanning catalog material: %v", ErrDatabaseError, err)
		}
		materials = append(materials, material)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating catalog materials: %v", ErrDatabaseError, err)
	}
	return materials, totalCount, nil
}

func (r *materialCatalogRepository) UpdateMaterial(executor SQLExecutor, material *models.MaterialCatalog) error {
	query := `UPDATE material_catalog SET name = $1, material_type = $2, unit = $3, cost_per_unit = $4,
	          description = $5, updated_at = $6 WHERE id = $7`
	result, err := executor.Exec(query,
		material.Name, material.MaterialType, material.Unit, material.CostPerUnit,
		material.Description, time.Now(), material.ID,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("%w: material name '%s' already exists (constraint: %s)", ErrDuplicateKey, material.Name, pqErr.Constraint)
		}
		return fmt.Errorf("%w: updating catalog material ID %d: %v", ErrDatabaseError, material.ID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *materialCatalogRepository) DeleteMaterial(executor SQLExecutor, id int64) error {
	// A material with a live stock row must not disappear from under it.
	var count int
	checkQuery := "SELECT COUNT(*) FROM material_stock WHERE material_id = $1"
	if err := r.db.QueryRow(checkQuery, id).Scan(&count); err != nil {
		return fmt.Errorf("%w: checking stock references for material ID %d: %v", ErrDatabaseError, id, err)
	}
	if count > 0 {
		return fmt.Errorf("%w: material ID %d still has a stock record", ErrReferenced, id)
	}

	result, err := executor.Exec("DELETE FROM material_catalog WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("%w: deleting catalog material ID %d: %v", ErrDatabaseError, id, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
