package services

import (
	"errors"
	"strings"
	"testing"

	"sitestock_backend/internal/models"
)

type ledgerFixture struct {
	ledger    StockLedgerService
	stockRepo *fakeStockRepo
	txnRepo   *fakeTxnRepo
}

func newLedgerFixture() *ledgerFixture {
	stockRepo := newFakeStockRepo()
	txnRepo := newFakeTxnRepo()
	return &ledgerFixture{
		ledger:    NewStockLedgerService(stockRepo, txnRepo, &fakeTxRunner{}),
		stockRepo: stockRepo,
		txnRepo:   txnRepo,
	}
}

// seedStock creates a stock record with the given quantities.
func (f *ledgerFixture) seedStock(materialID int64, current, reserved, unitCost string) *models.MaterialStock {
	return f.stockRepo.add(models.MaterialStock{
		MaterialID:    materialID,
		CurrentStock:  d(current),
		ReservedStock: d(reserved),
		UnitCost:      d(unitCost),
	})
}

func (f *ledgerFixture) mustStock(t *testing.T, materialID int64) *models.MaterialStock {
	t.Helper()
	stock, err := f.stockRepo.GetStockByMaterialID(materialID)
	if err != nil {
		t.Fatalf("stock for material %d not found: %v", materialID, err)
	}
	return stock
}

func assertStock(t *testing.T, stock *models.MaterialStock, current, reserved, available, totalValue string) {
	t.Helper()
	if !stock.CurrentStock.Equal(d(current)) {
		t.Errorf("current stock = %s, want %s", stock.CurrentStock, current)
	}
	if !stock.ReservedStock.Equal(d(reserved)) {
		t.Errorf("reserved stock = %s, want %s", stock.ReservedStock, reserved)
	}
	if !stock.AvailableStock.Equal(d(available)) {
		t.Errorf("available stock = %s, want %s", stock.AvailableStock, available)
	}
	if !stock.TotalValue.Equal(d(totalValue)) {
		t.Errorf("total value = %s, want %s", stock.TotalValue, totalValue)
	}
}

func manualRef() models.TxReference {
	return models.TxReference{Type: models.RefTypeManual}
}

func TestReceiveIncreasesStockAndValue(t *testing.T) {
	f := newLedgerFixture()
	f.seedStock(1, "0", "0", "0")

	stock, txn, err := f.ledger.Receive(1, d("50"), d("2.0"), manualRef())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	assertStock(t, stock, "50", "0", "50", "100")
	if txn.TxType != models.TxTypeIn {
		t.Errorf("tx type = %s, want IN", txn.TxType)
	}
	if !txn.Quantity.Equal(d("50")) || !txn.TotalCost.Equal(d("100")) {
		t.Errorf("transaction quantity/total = %s/%s, want 50/100", txn.Quantity, txn.TotalCost)
	}
}

func TestReceiveWeightedAverageCost(t *testing.T) {
	f := newLedgerFixture()
	f.seedStock(1, "10", "0", "2.0")

	stock, _, err := f.ledger.Receive(1, d("10"), d("4.0"), manualRef())
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if !stock.UnitCost.Equal(d("3")) {
		t.Errorf("unit cost = %s, want 3 (weighted average of 2.0 and 4.0)", stock.UnitCost)
	}
	assertStock(t, stock, "20", "0", "20", "60")
}

func TestReceiveRejectsNonPositiveQuantity(t *testing.T) {
	f := newLedgerFixture()
	f.seedStock(1, "10", "0", "2.0")

	for _, qty := range []string{"0", "-5"} {
		_, _, err := f.ledger.Receive(1, d(qty), d("2.0"), manualRef())
		if !errors.Is(err, ErrInvalidQuantity) {
			t.Errorf("Receive(%s): err = %v, want ErrInvalidQuantity", qty, err)
		}
	}
	// Failed validation leaves no trace.
	if len(f.txnRepo.transactions) != 0 {
		t.Errorf("transactions appended on failed receive: %d", len(f.txnRepo.transactions))
	}
	assertStock(t, f.mustStock(t, 1), "10", "0", "10", "20")
}

func TestReceiveRejectsNegativeUnitCost(t *testing.T) {
	f := newLedgerFixture()
	f.seedStock(1, "10", "0", "2.0")

	_, _, err := f.ledger.Receive(1, d("5"), d("-1"), manualRef())
	if !errors.Is(err, ErrInvalidUnitCost) {
		t.Errorf("err = %v, want ErrInvalidUnitCost", err)
	}
}

func TestReserveMovesAvailableToReserved(t *testing.T) {
	f := newLedgerFixture()
	f.seedStock(1, "50", "0", "2.0")

	stock, txn, err := f.ledger.Reserve(1, d("20"), models.TxReference{Type: models.RefTypeProject})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	// Reserving changes no physical quantity, so total value is unchanged.
	assertStock(t, stock, "50", "20", "30", "100")
	if txn.TxType != models.TxTypeReserved {
		t.Errorf("tx type = %s, want RESERVED", txn.TxType)
	}
}

func TestReserveInsufficientStock(t *testing.T) {
	f := newLedgerFixture()
	f.seedStock(1, "50", "20", "2.0")

	_, _, err := f.ledger.Reserve(1, d("31"), manualRef())
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
	// The message carries the acting quantities.
	if !strings.Contains(err.Error(), "only 30 available, 31 requested") {
		t.Errorf("error message missing quantities: %q", err.Error())
	}
	assertStock(t, f.mustStock(t, 1), "50", "20", "30", "100")
}

func TestReleaseReturnsReservedToAvailable(t *testing.T) {
	f := newLedgerFixture()
	f.seedStock(1, "50", "20", "2.0")

	stock, txn, err := f.ledger.Release(1, d("5"), manualRef())
	if err != nil {
		t.Fatalf("Release: %v", err)
	}
	assertStock(t, stock, "50", "15", "35", "100")
	if txn.TxType != models.TxTypeUnreserved {
		t.Errorf("tx type = %s, want UNRESERVED", txn.TxType)
	}
}

func TestReleaseOverRelease(t *testing.T) {
	f := newLedgerFixture()
	f.seedStock(1, "50", "10", "2.0")

	_, _, err := f.ledger.Release(1, d("11"), manualRef())
	if !errors.Is(err, ErrOverRelease) {
		t.Fatalf("err = %v, want ErrOverRelease", err)
	}
	if !strings.Contains(err.Error(), "only 10 reserved, 11 requested") {
		t.Errorf("error message missing quantities: %q", err.Error())
	}
}

func TestConsumeReducesCurrentAndReserved(t *testing.T) {
	f := newLedgerFixture()
	f.seedStock(1, "50", "20", "2.0")

	stock, txn, err := f.ledger.Consume(1, d("20"), models.TxReference{Type: models.RefTypeProject})
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	assertStock(t, stock, "30", "0", "30", "60")
	if txn.TxType != models.TxTypeOut {
		t.Errorf("tx type = %s, want OUT", txn.TxType)
	}
}

func TestConsumeInsufficientReservation(t *testing.T) {
	f := newLedgerFixture()
	f.seedStock(1, "50", "10", "2.0")

	_, _, err := f.ledger.Consume(1, d("20"), manualRef())
	if !errors.Is(err, ErrInsufficientReservation) {
		t.Fatalf("err = %v, want ErrInsufficientReservation", err)
	}
	if !strings.Contains(err.Error(), "only 10 reserved, 20 requested") {
		t.Errorf("error message missing quantities: %q", err.Error())
	}
	assertStock(t, f.mustStock(t, 1), "50", "10", "40", "100")
}

func TestAdjustStockRecordsSignedDelta(t *testing.T) {
	f := newLedgerFixture()
	f.seedStock(1, "50", "10", "2.0")

	stock, txn, err := f.ledger.AdjustStock(1, AdjustStockRequest{NewCurrentStock: dp("45")}, manualRef())
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	assertStock(t, stock, "45", "10", "35", "90")
	if txn.TxType != models.TxTypeAdjusted {
		t.Errorf("tx type = %s, want ADJUSTED", txn.TxType)
	}
	if !txn.Quantity.Equal(d("-5")) {
		t.Errorf("adjusted delta = %s, want -5", txn.Quantity)
	}
}

func TestAdjustStockBelowReservedFails(t *testing.T) {
	f := newLedgerFixture()
	f.seedStock(1, "50", "10", "2.0")

	_, _, err := f.ledger.AdjustStock(1, AdjustStockRequest{NewCurrentStock: dp("9")}, manualRef())
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}
}

func TestAdjustStockNoChangeAppendsNothing(t *testing.T) {
	f := newLedgerFixture()
	f.seedStock(1, "50", "10", "2.0")

	_, txn, err := f.ledger.AdjustStock(1, AdjustStockRequest{NewCurrentStock: dp("50")}, manualRef())
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	if txn != nil {
		t.Errorf("expected no transaction for a no-op adjustment, got %+v", txn)
	}
	if len(f.txnRepo.transactions) != 0 {
		t.Errorf("transactions appended: %d", len(f.txnRepo.transactions))
	}
}

func TestAdjustStockUpdatesUnitCost(t *testing.T) {
	f := newLedgerFixture()
	f.seedStock(1, "50", "0", "2.0")

	cost := d("2.5")
	stock, _, err := f.ledger.AdjustStock(1, AdjustStockRequest{NewCurrentStock: dp("50"), UnitCost: &cost}, manualRef())
	if err != nil {
		t.Fatalf("AdjustStock: %v", err)
	}
	assertStock(t, stock, "50", "0", "50", "125")
}

func TestAdjustStockWithoutTargetIsRejected(t *testing.T) {
	f := newLedgerFixture()
	f.seedStock(1, "50", "10", "2.0")

	// An omitted target must not read as "adjust to zero".
	_, _, err := f.ledger.AdjustStock(1, AdjustStockRequest{}, manualRef())
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("err = %v, want ErrInvalidQuantity", err)
	}
	assertStock(t, f.mustStock(t, 1), "50", "10", "40", "100")
	if len(f.txnRepo.transactions) != 0 {
		t.Errorf("failed adjustment appended %d transactions", len(f.txnRepo.transactions))
	}
}

func TestDeleteStockBlockedByActiveReservations(t *testing.T) {
	f := newLedgerFixture()
	seeded := f.seedStock(1, "50", "10", "2.0")

	err := f.ledger.DeleteStock(seeded.ID, false)
	if !errors.Is(err, ErrHasActiveReservations) {
		t.Fatalf("err = %v, want ErrHasActiveReservations", err)
	}
	if _, err := f.stockRepo.GetStockByID(seeded.ID); err != nil {
		t.Errorf("stock record deleted despite active reservations")
	}
}

func TestDeleteStockPurgesTransactionsWhenAsked(t *testing.T) {
	f := newLedgerFixture()
	seeded := f.seedStock(1, "0", "0", "0")
	if _, _, err := f.ledger.Receive(1, d("10"), d("1"), manualRef()); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	if err := f.ledger.DeleteStock(seeded.ID, true); err != nil {
		t.Fatalf("DeleteStock: %v", err)
	}
	if len(f.txnRepo.transactions) != 0 {
		t.Errorf("transactions left behind after purge: %d", len(f.txnRepo.transactions))
	}
}

func TestDeleteStockKeepsHistoryByDefault(t *testing.T) {
	f := newLedgerFixture()
	seeded := f.seedStock(1, "0", "0", "0")
	if _, _, err := f.ledger.Receive(1, d("10"), d("1"), manualRef()); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	if err := f.ledger.DeleteStock(seeded.ID, false); err != nil {
		t.Fatalf("DeleteStock: %v", err)
	}
	if len(f.txnRepo.transactions) != 1 {
		t.Errorf("expected history to survive, have %d transactions", len(f.txnRepo.transactions))
	}
}

func TestUnknownMaterialReturnsStockNotFound(t *testing.T) {
	f := newLedgerFixture()

	_, _, err := f.ledger.Receive(99, d("1"), d("1"), manualRef())
	if !errors.Is(err, ErrStockNotFound) {
		t.Errorf("err = %v, want ErrStockNotFound", err)
	}
}

// Every successful mutation appends exactly one transaction, and the
// derived fields stay consistent after each step.
func TestMutationSequenceKeepsInvariants(t *testing.T) {
	f := newLedgerFixture()
	f.seedStock(1, "0", "0", "0")

	steps := []struct {
		name string
		op   func() error
	}{
		{"receive 100 @1.5", func() error { _, _, err := f.ledger.Receive(1, d("100"), d("1.5"), manualRef()); return err }},
		{"reserve 40", func() error { _, _, err := f.ledger.Reserve(1, d("40"), manualRef()); return err }},
		{"release 10", func() error { _, _, err := f.ledger.Release(1, d("10"), manualRef()); return err }},
		{"consume 30", func() error { _, _, err := f.ledger.Consume(1, d("30"), manualRef()); return err }},
		{"adjust to 75", func() error {
			_, _, err := f.ledger.AdjustStock(1, AdjustStockRequest{NewCurrentStock: dp("75")}, manualRef())
			return err
		}},
	}

	for i, step := range steps {
		if err := step.op(); err != nil {
			t.Fatalf("step %q: %v", step.name, err)
		}
		if len(f.txnRepo.transactions) != i+1 {
			t.Fatalf("step %q: transaction count = %d, want %d", step.name, len(f.txnRepo.transactions), i+1)
		}
		stock := f.mustStock(t, 1)
		if stock.AvailableStock.IsNegative() || stock.ReservedStock.IsNegative() || stock.CurrentStock.IsNegative() {
			t.Fatalf("step %q: negative quantity in %+v", step.name, stock)
		}
		if !stock.AvailableStock.Equal(stock.CurrentStock.Sub(stock.ReservedStock)) {
			t.Fatalf("step %q: available != current - reserved", step.name)
		}
		if !stock.TotalValue.Equal(stock.CurrentStock.Mul(stock.UnitCost)) {
			t.Fatalf("step %q: total value != current * unit cost", step.name)
		}
	}

	assertStock(t, f.mustStock(t, 1), "75", "0", "75", "112.5")
}

func TestGetTransactionsFiltersByType(t *testing.T) {
	f := newLedgerFixture()
	f.seedStock(1, "0", "0", "0")
	if _, _, err := f.ledger.Receive(1, d("10"), d("1"), manualRef()); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if _, _, err := f.ledger.Reserve(1, d("4"), manualRef()); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	txType := models.TxTypeReserved
	transactions, total, err := f.ledger.GetTransactions(models.StockTransactionFilters{TxType: &txType})
	if err != nil {
		t.Fatalf("GetTransactions: %v", err)
	}
	if total != 1 || len(transactions) != 1 {
		t.Fatalf("filtered count = %d/%d, want 1/1", len(transactions), total)
	}
	if !transactions[0].Quantity.Equal(d("4")) {
		t.Errorf("filtered quantity = %s, want 4", transactions[0].Quantity)
	}
}
