package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"sitestock_backend/internal/models"
	"sitestock_backend/internal/repositories"

	"github.com/shopspring/decimal"
)

// --- Custom Service Errors for the Stock Ledger ---
var (
	ErrInvalidQuantity         = errors.New("quantity must be positive")
	ErrInvalidUnitCost         = errors.New("unit cost cannot be negative")
	ErrInsufficientStock       = errors.New("insufficient available stock")
	ErrOverRelease             = errors.New("release exceeds reserved stock")
	ErrInsufficientReservation = errors.New("insufficient reserved stock")
	ErrHasActiveReservations   = errors.New("stock record has active reservations")
	ErrStockNotFound           = errors.New("material stock record not found")
	ErrMaterialNotFound        = errors.New("catalog material not found")
)

// AdjustStockRequest is the input for a manual stock correction. The target
// quantity is a pointer so a body that simply omits it is rejected instead
// of being read as an adjustment to zero.
type AdjustStockRequest struct {
	NewCurrentStock *decimal.Decimal `json:"new_current_stock" binding:"required"`
	UnitCost        *decimal.Decimal `json:"unit_cost,omitempty"`
	Notes           *string          `json:"notes,omitempty"`
}

// --- StockLedgerService Interface ---

// StockLedgerService is the only component permitted to mutate the quantity
// columns of material_stock and the sole writer of stock_transactions. All
// validation happens before any write: a failed precondition leaves state
// unchanged and appends nothing.
//
// The Tx-scoped variants work within a caller-provided executor so that
// ReservationService and CatalogService can keep a ledger mutation atomic
// with their own record changes. Callers of the Tx variants must hold the
// material lock (WithMaterialLock) for the duration of their transaction.
type StockLedgerService interface {
	Receive(materialID int64, quantity, unitCost decimal.Decimal, ref models.TxReference) (*models.MaterialStock, *models.StockTransaction, error)
	Reserve(materialID int64, quantity decimal.Decimal, ref models.TxReference) (*models.MaterialStock, *models.StockTransaction, error)
	Release(materialID int64, quantity decimal.Decimal, ref models.TxReference) (*models.MaterialStock, *models.StockTransaction, error)
	Consume(materialID int64, quantity decimal.Decimal, ref models.TxReference) (*models.MaterialStock, *models.StockTransaction, error)
	AdjustStock(materialID int64, req AdjustStockRequest, ref models.TxReference) (*models.MaterialStock, *models.StockTransaction, error)
	DeleteStock(stockID int64, purgeTransactions bool) error

	GetStockByID(stockID int64) (*models.MaterialStock, error)
	GetStockByMaterialID(materialID int64) (*models.MaterialStock, error)
	GetStocks(page, pageSize int) ([]models.MaterialStock, int, error)
	GetTransactions(filters models.StockTransactionFilters) ([]models.StockTransaction, int, error)

	ReceiveTx(ex repositories.SQLExecutor, materialID int64, quantity, unitCost decimal.Decimal, ref models.TxReference) (*models.MaterialStock, *models.StockTransaction, error)
	ReserveTx(ex repositories.SQLExecutor, materialID int64, quantity decimal.Decimal, ref models.TxReference) (*models.MaterialStock, *models.StockTransaction, error)
	ReleaseTx(ex repositories.SQLExecutor, materialID int64, quantity decimal.Decimal, ref models.TxReference) (*models.MaterialStock, *models.StockTransaction, error)
	ConsumeTx(ex repositories.SQLExecutor, materialID int64, quantity decimal.Decimal, ref models.TxReference) (*models.MaterialStock, *models.StockTransaction, error)

	// WithMaterialLock serializes fn against every other mutation of the
	// same material.
	WithMaterialLock(materialID int64, fn func() error) error
}

// --- stockLedgerService Implementation ---
type stockLedgerService struct {
	stockRepo repositories.MaterialStockRepository
	txnRepo   repositories.StockTransactionRepository
	txRunner  repositories.TxRunner
	locks     sync.Map // materialID -> *sync.Mutex
}

// NewStockLedgerService creates a new instance of StockLedgerService.
func NewStockLedgerService(
	stockRepo repositories.MaterialStockRepository,
	txnRepo repositories.StockTransactionRepository,
	txRunner repositories.TxRunner,
) StockLedgerService {
	return &stockLedgerService{
		stockRepo: stockRepo,
		txnRepo:   txnRepo,
		txRunner:  txRunner,
	}
}

// WithMaterialLock runs fn under the per-material mutex. Every mutating
// operation on a stock row goes through here, so the read-modify-write of
// the quantity columns plus the paired transaction append is serialized
// per material even before the database row lock is taken.
func (s *stockLedgerService) WithMaterialLock(materialID int64, fn func() error) error {
	m, _ := s.locks.LoadOrStore(materialID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()
	return fn()
}

// --- Standalone operations (manage their own transactions) ---

func (s *stockLedgerService) Receive(materialID int64, quantity, unitCost decimal.Decimal, ref models.TxReference) (*models.MaterialStock, *models.StockTransaction, error) {
	return s.mutate(materialID, func(ex repositories.SQLExecutor) (*models.MaterialStock, *models.StockTransaction, error) {
		return s.ReceiveTx(ex, materialID, quantity, unitCost, ref)
	})
}

func (s *stockLedgerService) Reserve(materialID int64, quantity decimal.Decimal, ref models.TxReference) (*models.MaterialStock, *models.StockTransaction, error) {
	return s.mutate(materialID, func(ex repositories.SQLExecutor) (*models.MaterialStock, *models.StockTransaction, error) {
		return s.ReserveTx(ex, materialID, quantity, ref)
	})
}

func (s *stockLedgerService) Release(materialID int64, quantity decimal.Decimal, ref models.TxReference) (*models.MaterialStock, *models.StockTransaction, error) {
	return s.mutate(materialID, func(ex repositories.SQLExecutor) (*models.MaterialStock, *models.StockTransaction, error) {
		return s.ReleaseTx(ex, materialID, quantity, ref)
	})
}

func (s *stockLedgerService) Consume(materialID int64, quantity decimal.Decimal, ref models.TxReference) (*models.MaterialStock, *models.StockTransaction, error) {
	return s.mutate(materialID, func(ex repositories.SQLExecutor) (*models.MaterialStock, *models.StockTransaction, error) {
		return s.ConsumeTx(ex, materialID, quantity, ref)
	})
}

func (s *stockLedgerService) AdjustStock(materialID int64, req AdjustStockRequest, ref models.TxReference) (*models.MaterialStock, *models.StockTransaction, error) {
	return s.mutate(materialID, func(ex repositories.SQLExecutor) (*models.MaterialStock, *models.StockTransaction, error) {
		return s.adjustTx(ex, materialID, req, ref)
	})
}

// mutate wraps a tx-scoped mutation in the material lock and a database
// transaction.
func (s *stockLedgerService) mutate(materialID int64, fn func(ex repositories.SQLExecutor) (*models.MaterialStock, *models.StockTransaction, error)) (*models.MaterialStock, *models.StockTransaction, error) {
	var stock *models.MaterialStock
	var txn *models.StockTransaction
	err := s.WithMaterialLock(materialID, func() error {
		return s.txRunner.InTx(func(ex repositories.SQLExecutor) error {
			var innerErr error
			stock, txn, innerErr = fn(ex)
			return innerErr
		})
	})
	if err != nil {
		return nil, nil, err
	}
	return stock, txn, nil
}

func (s *stockLedgerService) DeleteStock(stockID int64, purgeTransactions bool) error {
	existing, err := s.stockRepo.GetStockByID(stockID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrStockNotFound
		}
		return fmt.Errorf("failed to fetch stock record for deletion: %w", err)
	}

	return s.WithMaterialLock(existing.MaterialID, func() error {
		return s.txRunner.InTx(func(ex repositories.SQLExecutor) error {
			stock, err := s.stockRepo.GetStockByIDForUpdate(ex, stockID)
			if err != nil {
				if errors.Is(err, repositories.ErrNotFound) {
					return ErrStockNotFound
				}
				return fmt.Errorf("failed to lock stock record for deletion: %w", err)
			}
			if stock.ReservedStock.IsPositive() {
				return fmt.Errorf("%w: %s still reserved for projects", ErrHasActiveReservations, stock.ReservedStock.String())
			}
			// Historical transactions stay behind as orphaned audit records
			// unless the caller explicitly purges them.
			if purgeTransactions {
				if _, err := s.txnRepo.PurgeByStockID(ex, stockID); err != nil {
					return fmt.Errorf("failed to purge transactions for stock ID %d: %w", stockID, err)
				}
			}
			if err := s.stockRepo.DeleteStock(ex, stockID); err != nil {
				return fmt.Errorf("failed to delete stock record: %w", err)
			}
			return nil
		})
	})
}

// --- Reads ---

func (s *stockLedgerService) GetStockByID(stockID int64) (*models.MaterialStock, error) {
	stock, err := s.stockRepo.GetStockByID(stockID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrStockNotFound
		}
		return nil, fmt.Errorf("failed to get stock by ID: %w", err)
	}
	return stock, nil
}

func (s *stockLedgerService) GetStockByMaterialID(materialID int64) (*models.MaterialStock, error) {
	stock, err := s.stockRepo.GetStockByMaterialID(materialID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrStockNotFound
		}
		return nil, fmt.Errorf("failed to get stock for material: %w", err)
	}
	return stock, nil
}

func (s *stockLedgerService) GetStocks(page, pageSize int) ([]models.MaterialStock, int, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	stocks, totalCount, err := s.stockRepo.GetStocks(page, pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get stocks: %w", err)
	}
	return stocks, totalCount, nil
}

func (s *stockLedgerService) GetTransactions(filters models.StockTransactionFilters) ([]models.StockTransaction, int, error) {
	if filters.Page <= 0 {
		filters.Page = 1
	}
	if filters.PageSize <= 0 {
		filters.PageSize = 20
	}
	transactions, totalCount, err := s.txnRepo.GetTransactions(filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get stock transactions: %w", err)
	}
	return transactions, totalCount, nil
}

// --- TX-scoped operations ---

func (s *stockLedgerService) ReceiveTx(ex repositories.SQLExecutor, materialID int64, quantity, unitCost decimal.Decimal, ref models.TxReference) (*models.MaterialStock, *models.StockTransaction, error) {
	if !quantity.IsPositive() {
		return nil, nil, fmt.Errorf("%w: received quantity %s", ErrInvalidQuantity, quantity.String())
	}
	if unitCost.IsNegative() {
		return nil, nil, fmt.Errorf("%w: got %s", ErrInvalidUnitCost, unitCost.String())
	}

	stock, err := s.lockStock(ex, materialID)
	if err != nil {
		return nil, nil, err
	}

	// Weighted average cost across receipts:
	// new_cost = (old_qty*old_cost + qty*unit_cost) / (old_qty + qty)
	newQty := stock.CurrentStock.Add(quantity)
	if newQty.IsZero() {
		stock.UnitCost = unitCost
	} else {
		stock.UnitCost = stock.CurrentStock.Mul(stock.UnitCost).Add(quantity.Mul(unitCost)).Div(newQty)
	}
	stock.CurrentStock = newQty
	stock.Recompute()

	txn := &models.StockTransaction{
		MaterialStockID: stock.ID,
		TxType:          models.TxTypeIn,
		Quantity:        quantity,
		UnitCost:        unitCost,
		TotalCost:       quantity.Mul(unitCost),
	}
	if err := s.writeMutation(ex, stock, txn, ref); err != nil {
		return nil, nil, err
	}
	return stock, txn, nil
}

func (s *stockLedgerService) ReserveTx(ex repositories.SQLExecutor, materialID int64, quantity decimal.Decimal, ref models.TxReference) (*models.MaterialStock, *models.StockTransaction, error) {
	if !quantity.IsPositive() {
		return nil, nil, fmt.Errorf("%w: reserve quantity %s", ErrInvalidQuantity, quantity.String())
	}

	stock, err := s.lockStock(ex, materialID)
	if err != nil {
		return nil, nil, err
	}
	if quantity.GreaterThan(stock.AvailableStock) {
		return nil, nil, fmt.Errorf("%w: only %s available, %s requested",
			ErrInsufficientStock, stock.AvailableStock.String(), quantity.String())
	}

	stock.ReservedStock = stock.ReservedStock.Add(quantity)
	stock.Recompute()

	txn := &models.StockTransaction{
		MaterialStockID: stock.ID,
		TxType:          models.TxTypeReserved,
		Quantity:        quantity,
		UnitCost:        stock.UnitCost,
		TotalCost:       quantity.Mul(stock.UnitCost),
	}
	if err := s.writeMutation(ex, stock, txn, ref); err != nil {
		return nil, nil, err
	}
	return stock, txn, nil
}

func (s *stockLedgerService) ReleaseTx(ex repositories.SQLExecutor, materialID int64, quantity decimal.Decimal, ref models.TxReference) (*models.MaterialStock, *models.StockTransaction, error) {
	if !quantity.IsPositive() {
		return nil, nil, fmt.Errorf("%w: release quantity %s", ErrInvalidQuantity, quantity.String())
	}

	stock, err := s.lockStock(ex, materialID)
	if err != nil {
		return nil, nil, err
	}
	if quantity.GreaterThan(stock.ReservedStock) {
		return nil, nil, fmt.Errorf("%w: only %s reserved, %s requested",
			ErrOverRelease, stock.ReservedStock.String(), quantity.String())
	}

	stock.ReservedStock = stock.ReservedStock.Sub(quantity)
	stock.Recompute()

	txn := &models.StockTransaction{
		MaterialStockID: stock.ID,
		TxType:          models.TxTypeUnreserved,
		Quantity:        quantity,
		UnitCost:        stock.UnitCost,
		TotalCost:       quantity.Mul(stock.UnitCost),
	}
	if err := s.writeMutation(ex, stock, txn, ref); err != nil {
		return nil, nil, err
	}
	return stock, txn, nil
}

func (s *stockLedgerService) ConsumeTx(ex repositories.SQLExecutor, materialID int64, quantity decimal.Decimal, ref models.TxReference) (*models.MaterialStock, *models.StockTransaction, error) {
	if !quantity.IsPositive() {
		return nil, nil, fmt.Errorf("%w: consume quantity %s", ErrInvalidQuantity, quantity.String())
	}

	stock, err := s.lockStock(ex, materialID)
	if err != nil {
		return nil, nil, err
	}
	if quantity.GreaterThan(stock.ReservedStock) {
		return nil, nil, fmt.Errorf("%w: only %s reserved, %s requested",
			ErrInsufficientReservation, stock.ReservedStock.String(), quantity.String())
	}

	stock.ReservedStock = stock.ReservedStock.Sub(quantity)
	stock.CurrentStock = stock.CurrentStock.Sub(quantity)
	stock.Recompute()

	txn := &models.StockTransaction{
		MaterialStockID: stock.ID,
		TxType:          models.TxTypeOut,
		Quantity:        quantity,
		UnitCost:        stock.UnitCost,
		TotalCost:       quantity.Mul(stock.UnitCost),
	}
	if err := s.writeMutation(ex, stock, txn, ref); err != nil {
		return nil, nil, err
	}
	return stock, txn, nil
}

func (s *stockLedgerService) adjustTx(ex repositories.SQLExecutor, materialID int64, req AdjustStockRequest, ref models.TxReference) (*models.MaterialStock, *models.StockTransaction, error) {
	if req.NewCurrentStock == nil {
		return nil, nil, fmt.Errorf("%w: new current stock is required", ErrInvalidQuantity)
	}
	newCurrent := *req.NewCurrentStock
	if newCurrent.IsNegative() {
		return nil, nil, fmt.Errorf("%w: adjusted stock %s", ErrInvalidQuantity, newCurrent.String())
	}

	stock, err := s.lockStock(ex, materialID)
	if err != nil {
		return nil, nil, err
	}
	if newCurrent.LessThan(stock.ReservedStock) {
		return nil, nil, fmt.Errorf("%w: %s reserved, adjustment to %s would drive available below zero",
			ErrInsufficientStock, stock.ReservedStock.String(), newCurrent.String())
	}

	delta := newCurrent.Sub(stock.CurrentStock)
	if delta.IsZero() && req.UnitCost == nil {
		// Nothing changed; no transaction is appended.
		return stock, nil, nil
	}

	stock.CurrentStock = newCurrent
	if req.UnitCost != nil {
		if req.UnitCost.IsNegative() {
			return nil, nil, fmt.Errorf("%w: got %s", ErrInvalidUnitCost, req.UnitCost.String())
		}
		stock.UnitCost = *req.UnitCost
	}
	stock.Recompute()

	// ADJUSTED entries store the signed delta of the correction.
	txn := &models.StockTransaction{
		MaterialStockID: stock.ID,
		TxType:          models.TxTypeAdjusted,
		Quantity:        delta,
		UnitCost:        stock.UnitCost,
		TotalCost:       delta.Mul(stock.UnitCost),
		Notes:           req.Notes,
	}
	if err := s.writeMutation(ex, stock, txn, ref); err != nil {
		return nil, nil, err
	}
	return stock, txn, nil
}

// lockStock fetches the stock row for a material under a row-level lock,
// translating the not-found case into the service error.
func (s *stockLedgerService) lockStock(ex repositories.SQLExecutor, materialID int64) (*models.MaterialStock, error) {
	stock, err := s.stockRepo.GetStockByMaterialIDForUpdate(ex, materialID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: material ID %d", ErrStockNotFound, materialID)
		}
		return nil, fmt.Errorf("failed to lock stock row: %w", err)
	}
	return stock, nil
}

// writeMutation persists the updated quantities and appends the paired
// transaction. The two writes share the caller's executor so they commit
// or fail together.
func (s *stockLedgerService) writeMutation(ex repositories.SQLExecutor, stock *models.MaterialStock, txn *models.StockTransaction, ref models.TxReference) error {
	if err := s.stockRepo.UpdateQuantities(ex, stock); err != nil {
		return fmt.Errorf("failed to update stock quantities: %w", err)
	}
	txn.ReferenceType = ref.Type
	txn.ReferenceID = ref.ID
	txn.CreatedBy = ref.CreatedBy
	if txn.Notes == nil {
		txn.Notes = ref.Notes
	}
	txn.TransactionDate = time.Now()
	if _, err := s.txnRepo.CreateTransaction(ex, txn); err != nil {
		return fmt.Errorf("failed to append stock transaction: %w", err)
	}
	return nil
}
