package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"sitestock_backend/internal/models"

	"github.com/lib/pq"
)

// AssignmentRepository defines the interface for project material assignment
// database operations.
type AssignmentRepository interface {
	CreateAssignment(executor SQLExecutor, assignment *models.ProjectMaterialAssignment) (int64, error)
	GetAssignmentByID(id int64) (*models.ProjectMaterialAssignment, error)
	// GetAssignmentByIDForUpdate locks the assignment row for the duration
	// of the caller's transaction. Lifecycle transitions check status on
	// this locked copy, never on an earlier unlocked read.
	GetAssignmentByIDForUpdate(executor SQLExecutor, id int64) (*models.ProjectMaterialAssignment, error)
	GetAssignments(filters models.AssignmentFilters) ([]models.ProjectMaterialAssignment, int, error)
	// GetActiveAssignment returns the single non-INSTALLED assignment for a
	// (project, material) pair, if one exists.
	GetActiveAssignment(projectID, materialCatalogID int64) (*models.ProjectMaterialAssignment, error)
	UpdateAssignment(executor SQLExecutor, assignment *models.ProjectMaterialAssignment) error
	DeleteAssignment(executor SQLExecutor, id int64) error
}

type assignmentRepository struct {
	db *sql.DB
}

// NewAssignmentRepository creates a new instance of AssignmentRepository.
func NewAssignmentRepository(db *sql.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

const assignmentColumns = `id, project_id, material_catalog_id, quantity, unit_cost, total_cost, status, created_at, updated_at`

func scanAssignment(row scanner, a *models.ProjectMaterialAssignment) error {
	return row.Scan(
		&a.ID, &a.ProjectID, &a.MaterialCatalogID, &a.Quantity, &a.UnitCost, &a.TotalCost,
		&a.Status, &a.CreatedAt, &a.UpdatedAt,
	)
}

func (r *assignmentRepository) CreateAssignment(executor SQLExecutor, assignment *models.ProjectMaterialAssignment) (int64, error) {
	query := `INSERT INTO project_material_assignments
	          (project_id, material_catalog_id, quantity, unit_cost, total_cost, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          RETURNING id`
	currentTime := time.Now()
	err := executor.QueryRow(query,
		assignment.ProjectID, assignment.MaterialCatalogID, assignment.Quantity,
		assignment.UnitCost, assignment.TotalCost, assignment.Status, currentTime, currentTime,
	).Scan(&assignment.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return 0, fmt.Errorf("%w: active assignment for project %d and material %d already exists (constraint: %s)",
				ErrDuplicateKey, assignment.ProjectID, assignment.MaterialCatalogID, pqErr.Constraint)
		}
		return 0, fmt.Errorf("%w: creating project material assignment: %v", ErrDatabaseError, err)
	}
	return assignment.ID, nil
}

func (r *assignmentRepository) GetAssignmentByID(id int64) (*models.ProjectMaterialAssignment, error) {
	assignment := &models.ProjectMaterialAssignment{}
	query := `SELECT ` + assignmentColumns + ` FROM project_material_assignments WHERE id = $1`
	err := scanAssignment(r.db.QueryRow(query, id), assignment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting assignment by ID %d: %v", ErrDatabaseError, id, err)
	}
	return assignment, nil
}

func (r *assignmentRepository) GetAssignmentByIDForUpdate(executor SQLExecutor, id int64) (*models.ProjectMaterialAssignment, error) {
	assignment := &models.ProjectMaterialAssignment{}
	query := `SELECT ` + assignmentColumns + ` FROM project_material_assignments WHERE id = $1 FOR UPDATE`
	err := scanAssignment(executor.QueryRow(query, id), assignment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: locking assignment ID %d: %v", ErrDatabaseError, id, err)
	}
	return assignment, nil
}

func (r *assignmentRepository) GetAssignments(filters models.AssignmentFilters) ([]models.ProjectMaterialAssignment, int, error) {
	assignments := []models.ProjectMaterialAssignment{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT
	    pma.id, pma.project_id, pma.material_catalog_id, pma.quantity, pma.unit_cost, pma.total_cost,
	    pma.status, pma.created_at, pma.updated_at,
	    mc.name AS material_name, mc.unit AS material_unit,
	    COUNT(*) OVER() AS total_count
	  FROM project_material_assignments pma
	  JOIN material_catalog mc ON pma.material_catalog_id = mc.id`)

	var conditions []string
	var args []interface{}
	argCount := 1

	if filters.ProjectID != nil {
		conditions = append(conditions, fmt.Sprintf("pma.project_id = $%d", argCount))
		args = append(args, *filters.ProjectID)
		argCount++
	}
	if filters.MaterialCatalogID != nil {
		conditions = append(conditions, fmt.Sprintf("pma.material_catalog_id = $%d", argCount))
		args = append(args, *filters.MaterialCatalogID)
		argCount++
	}
	if filters.Status != nil && *filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("pma.status = $%d", argCount))
		args = append(args, *filters.Status)
		argCount++
	}

	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(conditions, " AND "))
	}

	queryBuilder.WriteString(" ORDER BY pma.created_at DESC, pma.id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1))
	args = append(args, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := r.db.Query(queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: getting assignments: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		var assignment models.ProjectMaterialAssignment
		var material models.MaterialCatalog
		if err := rows.Scan(
			&assignment.ID, &assignment.ProjectID, &assignment.MaterialCatalogID,
			&assignment.Quantity, &assignment.UnitCost, &assignment.TotalCost,
			&assignment.Status, &assignment.CreatedAt, &assignment.UpdatedAt,
			&material.Name, &material.Unit,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("%w: scanning assignment: %v", ErrDatabaseError, err)
		}
		material.ID = assignment.MaterialCatalogID
		assignment.Material = &material
		assignments = append(assignments, assignment)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating assignments: %v", ErrDatabaseError, err)
	}
	return assignments, totalCount, nil
}

func (r *assignmentRepository) GetActiveAssignment(projectID, materialCatalogID int64) (*models.ProjectMaterialAssignment, error) {
	assignment := &models.ProjectMaterialAssignment{}
	query := `SELECT ` + assignmentColumns + ` FROM project_material_assignments
	          WHERE project_id = $1 AND material_catalog_id = $2 AND status != $3`
	err := scanAssignment(r.db.QueryRow(query, projectID, materialCatalogID, models.AssignmentStatusInstalled), assignment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: getting active assignment for project %d, material %d: %v",
			ErrDatabaseError, projectID, materialCatalogID, err)
	}
	return assignment, nil
}

func (r *assignmentRepository) UpdateAssignment(executor SQLExecutor, assignment *models.ProjectMaterialAssignment) error {
	query := `UPDATE project_material_assignments
	          SET quantity = $1, unit_cost = $2, total_cost = $3, status = $4, updated_at = $5
	          WHERE id = $6`
	assignment.UpdatedAt = time.Now()
	result, err := executor.Exec(query,
		assignment.Quantity, assignment.UnitCost, assignment.TotalCost,
		assignment.Status, assignment.UpdatedAt, assignment.ID,
	)
	if err != nil {
		return fmt.Errorf("%w: updating assignment ID %d: %v", ErrDatabaseError, assignment.ID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *assignmentRepository) DeleteAssignment(executor SQLExecutor, id int64) error {
	result, err := executor.Exec("DELETE FROM project_material_assignments WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("%w: deleting assignment ID %d: %v", ErrDatabaseError, id, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
