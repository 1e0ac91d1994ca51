package services

import (
	"errors"
	"fmt"

	"sitestock_backend/internal/models"
	"sitestock_backend/internal/repositories"

	"github.com/shopspring/decimal"
)

// --- Custom Service Errors for Reservations ---
var (
	ErrAssignmentNotFound     = errors.New("project material assignment not found")
	ErrDuplicateAssignment    = errors.New("project already has an active assignment for this material")
	ErrInvalidAssignmentState = errors.New("operation not allowed in the assignment's current status")
)

// AssignToProjectRequest is the input for reserving material for a project.
type AssignToProjectRequest struct {
	ProjectID         int64           `json:"project_id" binding:"required"`
	MaterialCatalogID int64           `json:"material_catalog_id" binding:"required"`
	Quantity          decimal.Decimal `json:"quantity" binding:"required"`
	CreatedBy         *int64          `json:"-"`
}

// --- ReservationService Interface ---

// ReservationService manages project material assignments. Every lifecycle
// operation that changes reserved quantities delegates to the stock ledger
// inside a single database transaction, so the assignment record and the
// ledger never drift apart. Ledger precondition failures are returned to the
// caller unchanged.
type ReservationService interface {
	AssignToProject(req AssignToProjectRequest) (*models.ProjectMaterialAssignment, error)
	EditAssignmentQuantity(assignmentID int64, newQuantity decimal.Decimal, actorID *int64) (*models.ProjectMaterialAssignment, error)
	Unreserve(assignmentID int64, actorID *int64) error
	MarkOrdered(assignmentID int64) (*models.ProjectMaterialAssignment, error)
	MarkInstalled(assignmentID int64, actorID *int64) (*models.ProjectMaterialAssignment, error)

	GetAssignmentByID(assignmentID int64) (*models.ProjectMaterialAssignment, error)
	GetAssignments(filters models.AssignmentFilters) ([]models.ProjectMaterialAssignment, int, error)
}

// --- reservationService Implementation ---
type reservationService struct {
	assignmentRepo repositories.AssignmentRepository
	ledger         StockLedgerService
	txRunner       repositories.TxRunner
}

// NewReservationService creates a new instance of ReservationService.
func NewReservationService(
	assignmentRepo repositories.AssignmentRepository,
	ledger StockLedgerService,
	txRunner repositories.TxRunner,
) ReservationService {
	return &reservationService{
		assignmentRepo: assignmentRepo,
		ledger:         ledger,
		txRunner:       txRunner,
	}
}

// AssignToProject reserves stock for a project and records the assignment.
// The reservation snapshots the stock's unit cost at assignment time.
func (s *reservationService) AssignToProject(req AssignToProjectRequest) (*models.ProjectMaterialAssignment, error) {
	if !req.Quantity.IsPositive() {
		return nil, fmt.Errorf("%w: assignment quantity %s", ErrInvalidQuantity, req.Quantity.String())
	}

	existing, err := s.assignmentRepo.GetActiveAssignment(req.ProjectID, req.MaterialCatalogID)
	if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("failed to check for active assignment: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: assignment ID %d", ErrDuplicateAssignment, existing.ID)
	}

	var assignment *models.ProjectMaterialAssignment
	err = s.ledger.WithMaterialLock(req.MaterialCatalogID, func() error {
		return s.txRunner.InTx(func(ex repositories.SQLExecutor) error {
			ref := models.TxReference{Type: models.RefTypeProject, ID: &req.ProjectID, CreatedBy: req.CreatedBy}
			stock, _, err := s.ledger.ReserveTx(ex, req.MaterialCatalogID, req.Quantity, ref)
			if err != nil {
				return err
			}

			assignment = &models.ProjectMaterialAssignment{
				ProjectID:         req.ProjectID,
				MaterialCatalogID: req.MaterialCatalogID,
				Quantity:          req.Quantity,
				UnitCost:          stock.UnitCost,
				TotalCost:         req.Quantity.Mul(stock.UnitCost),
				Status:            models.AssignmentStatusRequired,
			}
			id, err := s.assignmentRepo.CreateAssignment(ex, assignment)
			if err != nil {
				if errors.Is(err, repositories.ErrDuplicateKey) {
					return fmt.Errorf("%w: project ID %d, material ID %d", ErrDuplicateAssignment, req.ProjectID, req.MaterialCatalogID)
				}
				return fmt.Errorf("failed to create assignment: %w", err)
			}
			assignment.ID = id
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

// EditAssignmentQuantity resizes a REQUIRED assignment. An increase reserves
// the difference; a decrease releases it. On an unchanged quantity nothing
// is written. The status guard and the delta are evaluated on the locked
// row, so a transition committed by a concurrent caller cannot slip past
// them.
func (s *reservationService) EditAssignmentQuantity(assignmentID int64, newQuantity decimal.Decimal, actorID *int64) (*models.ProjectMaterialAssignment, error) {
	if !newQuantity.IsPositive() {
		return nil, fmt.Errorf("%w: assignment quantity %s", ErrInvalidQuantity, newQuantity.String())
	}

	// Unlocked read just to learn which material to lock.
	assignment, err := s.GetAssignmentByID(assignmentID)
	if err != nil {
		return nil, err
	}

	err = s.ledger.WithMaterialLock(assignment.MaterialCatalogID, func() error {
		return s.txRunner.InTx(func(ex repositories.SQLExecutor) error {
			locked, err := s.lockAssignment(ex, assignmentID)
			if err != nil {
				return err
			}
			if locked.Status != models.AssignmentStatusRequired {
				return fmt.Errorf("%w: cannot edit quantity in status %s", ErrInvalidAssignmentState, locked.Status)
			}

			delta := newQuantity.Sub(locked.Quantity)
			if delta.IsZero() {
				assignment = locked
				return nil
			}

			ref := models.TxReference{Type: models.RefTypeProject, ID: &locked.ProjectID, CreatedBy: actorID}
			if delta.IsPositive() {
				if _, _, err := s.ledger.ReserveTx(ex, locked.MaterialCatalogID, delta, ref); err != nil {
					return err
				}
			} else {
				if _, _, err := s.ledger.ReleaseTx(ex, locked.MaterialCatalogID, delta.Neg(), ref); err != nil {
					return err
				}
			}

			locked.Quantity = newQuantity
			locked.TotalCost = newQuantity.Mul(locked.UnitCost)
			if err := s.assignmentRepo.UpdateAssignment(ex, locked); err != nil {
				return fmt.Errorf("failed to update assignment quantity: %w", err)
			}
			assignment = locked
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

// Unreserve cancels a REQUIRED assignment, releasing its full reserved
// quantity and removing the assignment record.
func (s *reservationService) Unreserve(assignmentID int64, actorID *int64) error {
	assignment, err := s.GetAssignmentByID(assignmentID)
	if err != nil {
		return err
	}

	return s.ledger.WithMaterialLock(assignment.MaterialCatalogID, func() error {
		return s.txRunner.InTx(func(ex repositories.SQLExecutor) error {
			locked, err := s.lockAssignment(ex, assignmentID)
			if err != nil {
				return err
			}
			if locked.Status != models.AssignmentStatusRequired {
				return fmt.Errorf("%w: cannot unreserve in status %s", ErrInvalidAssignmentState, locked.Status)
			}

			ref := models.TxReference{Type: models.RefTypeProject, ID: &locked.ProjectID, CreatedBy: actorID}
			if _, _, err := s.ledger.ReleaseTx(ex, locked.MaterialCatalogID, locked.Quantity, ref); err != nil {
				return err
			}
			if err := s.assignmentRepo.DeleteAssignment(ex, assignmentID); err != nil {
				return fmt.Errorf("failed to delete assignment: %w", err)
			}
			return nil
		})
	})
}

// MarkOrdered transitions REQUIRED -> ORDERED. A purchase order going out
// changes nothing in the ledger; the reservation simply stops being
// editable.
func (s *reservationService) MarkOrdered(assignmentID int64) (*models.ProjectMaterialAssignment, error) {
	var assignment *models.ProjectMaterialAssignment
	err := s.txRunner.InTx(func(ex repositories.SQLExecutor) error {
		locked, err := s.lockAssignment(ex, assignmentID)
		if err != nil {
			return err
		}
		if locked.Status != models.AssignmentStatusRequired {
			return fmt.Errorf("%w: cannot mark ordered in status %s", ErrInvalidAssignmentState, locked.Status)
		}

		locked.Status = models.AssignmentStatusOrdered
		if err := s.assignmentRepo.UpdateAssignment(ex, locked); err != nil {
			return fmt.Errorf("failed to mark assignment ordered: %w", err)
		}
		assignment = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

// MarkInstalled transitions to the terminal INSTALLED status and consumes
// the reserved quantity from stock. Allowed from REQUIRED or ORDERED. The
// status is re-checked on the locked row so that two racing installs of
// the same assignment cannot both consume.
func (s *reservationService) MarkInstalled(assignmentID int64, actorID *int64) (*models.ProjectMaterialAssignment, error) {
	assignment, err := s.GetAssignmentByID(assignmentID)
	if err != nil {
		return nil, err
	}

	err = s.ledger.WithMaterialLock(assignment.MaterialCatalogID, func() error {
		return s.txRunner.InTx(func(ex repositories.SQLExecutor) error {
			locked, err := s.lockAssignment(ex, assignmentID)
			if err != nil {
				return err
			}
			if locked.Status != models.AssignmentStatusRequired && locked.Status != models.AssignmentStatusOrdered {
				return fmt.Errorf("%w: cannot mark installed in status %s", ErrInvalidAssignmentState, locked.Status)
			}

			ref := models.TxReference{Type: models.RefTypeProject, ID: &locked.ProjectID, CreatedBy: actorID}
			if _, _, err := s.ledger.ConsumeTx(ex, locked.MaterialCatalogID, locked.Quantity, ref); err != nil {
				return err
			}
			locked.Status = models.AssignmentStatusInstalled
			if err := s.assignmentRepo.UpdateAssignment(ex, locked); err != nil {
				return fmt.Errorf("failed to mark assignment installed: %w", err)
			}
			assignment = locked
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return assignment, nil
}

// lockAssignment fetches the assignment row under a row-level lock,
// translating the not-found case into the service error.
func (s *reservationService) lockAssignment(ex repositories.SQLExecutor, assignmentID int64) (*models.ProjectMaterialAssignment, error) {
	assignment, err := s.assignmentRepo.GetAssignmentByIDForUpdate(ex, assignmentID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: ID %d", ErrAssignmentNotFound, assignmentID)
		}
		return nil, fmt.Errorf("failed to lock assignment: %w", err)
	}
	return assignment, nil
}

// --- Reads ---

func (s *reservationService) GetAssignmentByID(assignmentID int64) (*models.ProjectMaterialAssignment, error) {
	assignment, err := s.assignmentRepo.GetAssignmentByID(assignmentID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: ID %d", ErrAssignmentNotFound, assignmentID)
		}
		return nil, fmt.Errorf("failed to get assignment: %w", err)
	}
	return assignment, nil
}

func (s *reservationService) GetAssignments(filters models.AssignmentFilters) ([]models.ProjectMaterialAssignment, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = 20
	}
	assignments, totalCount, err := s.assignmentRepo.GetAssignments(filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get assignments: %w", err)
	}
	return assignments, totalCount, nil
}
