package services

import (
	"errors"
	"testing"

	"sitestock_backend/internal/models"
)

type reservationFixture struct {
	*ledgerFixture
	reservations   ReservationService
	assignmentRepo *fakeAssignmentRepo
}

func newReservationFixture() *reservationFixture {
	lf := newLedgerFixture()
	assignmentRepo := newFakeAssignmentRepo()
	return &reservationFixture{
		ledgerFixture:  lf,
		reservations:   NewReservationService(assignmentRepo, lf.ledger, &fakeTxRunner{}),
		assignmentRepo: assignmentRepo,
	}
}

func (f *reservationFixture) assign(t *testing.T, projectID, materialID int64, quantity string) *models.ProjectMaterialAssignment {
	t.Helper()
	assignment, err := f.reservations.AssignToProject(AssignToProjectRequest{
		ProjectID:         projectID,
		MaterialCatalogID: materialID,
		Quantity:          d(quantity),
	})
	if err != nil {
		t.Fatalf("AssignToProject: %v", err)
	}
	return assignment
}

func TestAssignToProjectReservesStock(t *testing.T) {
	f := newReservationFixture()
	f.seedStock(1, "50", "0", "2.0")

	assignment := f.assign(t, 7, 1, "20")

	if assignment.Status != models.AssignmentStatusRequired {
		t.Errorf("status = %s, want REQUIRED", assignment.Status)
	}
	if !assignment.UnitCost.Equal(d("2.0")) || !assignment.TotalCost.Equal(d("40")) {
		t.Errorf("cost snapshot = %s/%s, want 2.0/40", assignment.UnitCost, assignment.TotalCost)
	}
	assertStock(t, f.mustStock(t, 1), "50", "20", "30", "100")

	// Exactly one RESERVED transaction referencing the project.
	if len(f.txnRepo.transactions) != 1 {
		t.Fatalf("transaction count = %d, want 1", len(f.txnRepo.transactions))
	}
	txn := f.txnRepo.transactions[0]
	if txn.TxType != models.TxTypeReserved || txn.ReferenceType != models.RefTypeProject {
		t.Errorf("transaction = %s/%s, want RESERVED/PROJECT", txn.TxType, txn.ReferenceType)
	}
	if txn.ReferenceID == nil || *txn.ReferenceID != 7 {
		t.Errorf("reference ID = %v, want 7", txn.ReferenceID)
	}
}

func TestAssignToProjectDuplicate(t *testing.T) {
	f := newReservationFixture()
	f.seedStock(1, "50", "0", "2.0")
	f.assign(t, 7, 1, "10")

	_, err := f.reservations.AssignToProject(AssignToProjectRequest{
		ProjectID: 7, MaterialCatalogID: 1, Quantity: d("5"),
	})
	if !errors.Is(err, ErrDuplicateAssignment) {
		t.Fatalf("err = %v, want ErrDuplicateAssignment", err)
	}
	// The duplicate attempt must not have reserved anything.
	assertStock(t, f.mustStock(t, 1), "50", "10", "40", "100")
}

func TestAssignToProjectInsufficientStockLeavesNoAssignment(t *testing.T) {
	f := newReservationFixture()
	f.seedStock(1, "50", "45", "2.0")

	_, err := f.reservations.AssignToProject(AssignToProjectRequest{
		ProjectID: 7, MaterialCatalogID: 1, Quantity: d("10"),
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock passed through unchanged", err)
	}
	if len(f.assignmentRepo.assignments) != 0 {
		t.Errorf("assignment created despite failed reservation")
	}
}

func TestEditAssignmentQuantityIncrease(t *testing.T) {
	f := newReservationFixture()
	f.seedStock(1, "50", "0", "2.0")
	assignment := f.assign(t, 7, 1, "20")

	updated, err := f.reservations.EditAssignmentQuantity(assignment.ID, d("35"), nil)
	if err != nil {
		t.Fatalf("EditAssignmentQuantity: %v", err)
	}
	if !updated.Quantity.Equal(d("35")) || !updated.TotalCost.Equal(d("70")) {
		t.Errorf("quantity/total = %s/%s, want 35/70", updated.Quantity, updated.TotalCost)
	}
	assertStock(t, f.mustStock(t, 1), "50", "35", "15", "100")

	// The delta was reserved, not the full new quantity.
	last := f.txnRepo.transactions[len(f.txnRepo.transactions)-1]
	if last.TxType != models.TxTypeReserved || !last.Quantity.Equal(d("15")) {
		t.Errorf("delta transaction = %s %s, want RESERVED 15", last.TxType, last.Quantity)
	}
}

func TestEditAssignmentQuantityDecrease(t *testing.T) {
	f := newReservationFixture()
	f.seedStock(1, "50", "0", "2.0")
	assignment := f.assign(t, 7, 1, "20")

	_, err := f.reservations.EditAssignmentQuantity(assignment.ID, d("12"), nil)
	if err != nil {
		t.Fatalf("EditAssignmentQuantity: %v", err)
	}
	assertStock(t, f.mustStock(t, 1), "50", "12", "38", "100")

	last := f.txnRepo.transactions[len(f.txnRepo.transactions)-1]
	if last.TxType != models.TxTypeUnreserved || !last.Quantity.Equal(d("8")) {
		t.Errorf("delta transaction = %s %s, want UNRESERVED 8", last.TxType, last.Quantity)
	}
}

func TestEditAssignmentQuantityUnchangedWritesNothing(t *testing.T) {
	f := newReservationFixture()
	f.seedStock(1, "50", "0", "2.0")
	assignment := f.assign(t, 7, 1, "20")
	before := len(f.txnRepo.transactions)

	if _, err := f.reservations.EditAssignmentQuantity(assignment.ID, d("20"), nil); err != nil {
		t.Fatalf("EditAssignmentQuantity: %v", err)
	}
	if len(f.txnRepo.transactions) != before {
		t.Errorf("no-op edit appended a transaction")
	}
}

func TestEditAssignmentQuantityRequiresRequiredStatus(t *testing.T) {
	f := newReservationFixture()
	f.seedStock(1, "50", "0", "2.0")
	assignment := f.assign(t, 7, 1, "20")

	if _, err := f.reservations.MarkOrdered(assignment.ID); err != nil {
		t.Fatalf("MarkOrdered: %v", err)
	}
	_, err := f.reservations.EditAssignmentQuantity(assignment.ID, d("25"), nil)
	if !errors.Is(err, ErrInvalidAssignmentState) {
		t.Fatalf("err = %v, want ErrInvalidAssignmentState", err)
	}
}

func TestUnreserveReleasesAndDeletes(t *testing.T) {
	f := newReservationFixture()
	f.seedStock(1, "50", "0", "2.0")
	assignment := f.assign(t, 7, 1, "20")

	if err := f.reservations.Unreserve(assignment.ID, nil); err != nil {
		t.Fatalf("Unreserve: %v", err)
	}
	assertStock(t, f.mustStock(t, 1), "50", "0", "50", "100")
	if _, err := f.reservations.GetAssignmentByID(assignment.ID); !errors.Is(err, ErrAssignmentNotFound) {
		t.Errorf("assignment still present after unreserve: %v", err)
	}

	last := f.txnRepo.transactions[len(f.txnRepo.transactions)-1]
	if last.TxType != models.TxTypeUnreserved || !last.Quantity.Equal(d("20")) {
		t.Errorf("release transaction = %s %s, want UNRESERVED 20", last.TxType, last.Quantity)
	}
}

func TestMarkOrderedHasNoLedgerEffect(t *testing.T) {
	f := newReservationFixture()
	f.seedStock(1, "50", "0", "2.0")
	assignment := f.assign(t, 7, 1, "20")
	before := len(f.txnRepo.transactions)

	updated, err := f.reservations.MarkOrdered(assignment.ID)
	if err != nil {
		t.Fatalf("MarkOrdered: %v", err)
	}
	if updated.Status != models.AssignmentStatusOrdered {
		t.Errorf("status = %s, want ORDERED", updated.Status)
	}
	if len(f.txnRepo.transactions) != before {
		t.Errorf("ordering appended a transaction")
	}
	assertStock(t, f.mustStock(t, 1), "50", "20", "30", "100")
}

func TestMarkInstalledConsumesReservation(t *testing.T) {
	f := newReservationFixture()
	f.seedStock(1, "50", "0", "2.0")
	assignment := f.assign(t, 7, 1, "20")

	// ORDERED is an optional stop on the way to INSTALLED.
	if _, err := f.reservations.MarkOrdered(assignment.ID); err != nil {
		t.Fatalf("MarkOrdered: %v", err)
	}
	updated, err := f.reservations.MarkInstalled(assignment.ID, nil)
	if err != nil {
		t.Fatalf("MarkInstalled: %v", err)
	}
	if updated.Status != models.AssignmentStatusInstalled {
		t.Errorf("status = %s, want INSTALLED", updated.Status)
	}
	assertStock(t, f.mustStock(t, 1), "30", "0", "30", "60")

	last := f.txnRepo.transactions[len(f.txnRepo.transactions)-1]
	if last.TxType != models.TxTypeOut || last.ReferenceType != models.RefTypeProject {
		t.Errorf("consume transaction = %s/%s, want OUT/PROJECT", last.TxType, last.ReferenceType)
	}
}

func TestMarkInstalledDirectlyFromRequired(t *testing.T) {
	f := newReservationFixture()
	f.seedStock(1, "50", "0", "2.0")
	assignment := f.assign(t, 7, 1, "20")

	if _, err := f.reservations.MarkInstalled(assignment.ID, nil); err != nil {
		t.Fatalf("MarkInstalled from REQUIRED: %v", err)
	}
	assertStock(t, f.mustStock(t, 1), "30", "0", "30", "60")
}

func TestInstalledIsTerminal(t *testing.T) {
	f := newReservationFixture()
	f.seedStock(1, "50", "0", "2.0")
	assignment := f.assign(t, 7, 1, "20")
	if _, err := f.reservations.MarkInstalled(assignment.ID, nil); err != nil {
		t.Fatalf("MarkInstalled: %v", err)
	}

	if _, err := f.reservations.MarkInstalled(assignment.ID, nil); !errors.Is(err, ErrInvalidAssignmentState) {
		t.Errorf("second install: err = %v, want ErrInvalidAssignmentState", err)
	}
	if _, err := f.reservations.MarkOrdered(assignment.ID); !errors.Is(err, ErrInvalidAssignmentState) {
		t.Errorf("order after install: err = %v, want ErrInvalidAssignmentState", err)
	}
	if err := f.reservations.Unreserve(assignment.ID, nil); !errors.Is(err, ErrInvalidAssignmentState) {
		t.Errorf("unreserve after install: err = %v, want ErrInvalidAssignmentState", err)
	}
}

func TestMarkInstalledRechecksStatusUnderLock(t *testing.T) {
	f := newReservationFixture()
	f.seedStock(1, "100", "0", "2.0")
	assignment := f.assign(t, 7, 1, "10")
	f.assign(t, 8, 1, "10")

	// A competing install of the same assignment commits between our
	// unlocked read and the locked one. Losing the race must not consume
	// a second time, or project 8's reservation would be eaten.
	f.assignmentRepo.onLockedRead = func() {
		f.assignmentRepo.onLockedRead = nil
		f.assignmentRepo.assignments[assignment.ID].Status = models.AssignmentStatusInstalled
		projectID := int64(7)
		if _, _, err := f.ledger.ConsumeTx(nil, 1, d("10"), models.TxReference{Type: models.RefTypeProject, ID: &projectID}); err != nil {
			t.Fatalf("competing install: %v", err)
		}
	}

	_, err := f.reservations.MarkInstalled(assignment.ID, nil)
	if !errors.Is(err, ErrInvalidAssignmentState) {
		t.Fatalf("err = %v, want ErrInvalidAssignmentState", err)
	}

	assertStock(t, f.mustStock(t, 1), "90", "10", "80", "180")
	outCount := 0
	for _, txn := range f.txnRepo.transactions {
		if txn.TxType == models.TxTypeOut {
			outCount++
		}
	}
	if outCount != 1 {
		t.Errorf("OUT transaction count = %d, want 1 for a single installed assignment", outCount)
	}
}

func TestEditAssignmentQuantityRechecksStatusUnderLock(t *testing.T) {
	f := newReservationFixture()
	f.seedStock(1, "50", "0", "2.0")
	assignment := f.assign(t, 7, 1, "20")
	before := len(f.txnRepo.transactions)

	// The assignment moves to ORDERED after our unlocked read.
	f.assignmentRepo.onLockedRead = func() {
		f.assignmentRepo.onLockedRead = nil
		f.assignmentRepo.assignments[assignment.ID].Status = models.AssignmentStatusOrdered
	}

	_, err := f.reservations.EditAssignmentQuantity(assignment.ID, d("35"), nil)
	if !errors.Is(err, ErrInvalidAssignmentState) {
		t.Fatalf("err = %v, want ErrInvalidAssignmentState", err)
	}
	assertStock(t, f.mustStock(t, 1), "50", "20", "30", "100")
	if len(f.txnRepo.transactions) != before {
		t.Errorf("failed edit appended a transaction")
	}
}

func TestInstalledPairFreesTheSlot(t *testing.T) {
	f := newReservationFixture()
	f.seedStock(1, "50", "0", "2.0")
	assignment := f.assign(t, 7, 1, "20")
	if _, err := f.reservations.MarkInstalled(assignment.ID, nil); err != nil {
		t.Fatalf("MarkInstalled: %v", err)
	}

	// An installed assignment no longer blocks a new one for the same pair.
	if _, err := f.reservations.AssignToProject(AssignToProjectRequest{
		ProjectID: 7, MaterialCatalogID: 1, Quantity: d("5"),
	}); err != nil {
		t.Fatalf("AssignToProject after install: %v", err)
	}
}
