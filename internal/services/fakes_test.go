package services

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"sitestock_backend/internal/models"
	"sitestock_backend/internal/repositories"

	"github.com/shopspring/decimal"
)

// In-memory fakes for the repository layer. Services only see the
// repository interfaces and the TxRunner, so the whole write path can be
// exercised without a database.

type fakeTxRunner struct {
	calls int
}

func (r *fakeTxRunner) InTx(fn func(ex repositories.SQLExecutor) error) error {
	r.calls++
	return fn(nil)
}

// --- fakeStockRepo ---

type fakeStockRepo struct {
	stocks map[int64]*models.MaterialStock
	nextID int64
}

func newFakeStockRepo() *fakeStockRepo {
	return &fakeStockRepo{stocks: make(map[int64]*models.MaterialStock), nextID: 1}
}

func (r *fakeStockRepo) add(stock models.MaterialStock) *models.MaterialStock {
	stock.ID = r.nextID
	r.nextID++
	stock.Recompute()
	copied := stock
	r.stocks[stock.ID] = &copied
	return &copied
}

func (r *fakeStockRepo) CreateStock(_ repositories.SQLExecutor, stock *models.MaterialStock) (int64, error) {
	for _, existing := range r.stocks {
		if existing.MaterialID == stock.MaterialID {
			return 0, fmt.Errorf("%w: stock for material %d", repositories.ErrDuplicateKey, stock.MaterialID)
		}
	}
	created := r.add(*stock)
	return created.ID, nil
}

func (r *fakeStockRepo) GetStockByID(id int64) (*models.MaterialStock, error) {
	stock, ok := r.stocks[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *stock
	return &copied, nil
}

func (r *fakeStockRepo) GetStockByMaterialID(materialID int64) (*models.MaterialStock, error) {
	for _, stock := range r.stocks {
		if stock.MaterialID == materialID {
			copied := *stock
			return &copied, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeStockRepo) GetStockByIDForUpdate(_ repositories.SQLExecutor, id int64) (*models.MaterialStock, error) {
	return r.GetStockByID(id)
}

func (r *fakeStockRepo) GetStockByMaterialIDForUpdate(_ repositories.SQLExecutor, materialID int64) (*models.MaterialStock, error) {
	return r.GetStockByMaterialID(materialID)
}

func (r *fakeStockRepo) GetStocks(page, pageSize int) ([]models.MaterialStock, int, error) {
	ids := make([]int64, 0, len(r.stocks))
	for id := range r.stocks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	all := make([]models.MaterialStock, 0, len(ids))
	for _, id := range ids {
		all = append(all, *r.stocks[id])
	}
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []models.MaterialStock{}, len(all), nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (r *fakeStockRepo) UpdateQuantities(_ repositories.SQLExecutor, stock *models.MaterialStock) error {
	existing, ok := r.stocks[stock.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	existing.CurrentStock = stock.CurrentStock
	existing.ReservedStock = stock.ReservedStock
	existing.AvailableStock = stock.AvailableStock
	existing.UnitCost = stock.UnitCost
	existing.TotalValue = stock.TotalValue
	existing.UpdatedAt = time.Now()
	return nil
}

func (r *fakeStockRepo) UpdateDescriptiveFields(_ repositories.SQLExecutor, stock *models.MaterialStock) error {
	existing, ok := r.stocks[stock.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	existing.MinimumStock = stock.MinimumStock
	existing.MaximumStock = stock.MaximumStock
	existing.Location = stock.Location
	existing.Supplier = stock.Supplier
	existing.Notes = stock.Notes
	existing.UpdatedAt = time.Now()
	return nil
}

func (r *fakeStockRepo) DeleteStock(_ repositories.SQLExecutor, id int64) error {
	if _, ok := r.stocks[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.stocks, id)
	return nil
}

// --- fakeTxnRepo ---

type fakeTxnRepo struct {
	transactions []models.StockTransaction
	nextID       int64
}

func newFakeTxnRepo() *fakeTxnRepo {
	return &fakeTxnRepo{nextID: 1}
}

func (r *fakeTxnRepo) CreateTransaction(_ repositories.SQLExecutor, txn *models.StockTransaction) (int64, error) {
	txn.ID = r.nextID
	r.nextID++
	if txn.TransactionDate.IsZero() {
		txn.TransactionDate = time.Now()
	}
	txn.CreatedAt = time.Now()
	r.transactions = append(r.transactions, *txn)
	return txn.ID, nil
}

func (r *fakeTxnRepo) GetTransactions(filters models.StockTransactionFilters) ([]models.StockTransaction, int, error) {
	matched := make([]models.StockTransaction, 0)
	for _, txn := range r.transactions {
		if filters.MaterialStockID != nil && txn.MaterialStockID != *filters.MaterialStockID {
			continue
		}
		if filters.TxType != nil && txn.TxType != *filters.TxType {
			continue
		}
		if filters.ReferenceType != nil && txn.ReferenceType != *filters.ReferenceType {
			continue
		}
		if filters.ReferenceID != nil && (txn.ReferenceID == nil || *txn.ReferenceID != *filters.ReferenceID) {
			continue
		}
		matched = append(matched, txn)
	}
	return matched, len(matched), nil
}

func (r *fakeTxnRepo) GetTransactionsByStockID(stockID int64) ([]models.StockTransaction, error) {
	matched := make([]models.StockTransaction, 0)
	for _, txn := range r.transactions {
		if txn.MaterialStockID == stockID {
			matched = append(matched, txn)
		}
	}
	return matched, nil
}

func (r *fakeTxnRepo) PurgeByStockID(_ repositories.SQLExecutor, stockID int64) (int64, error) {
	kept := r.transactions[:0]
	var purged int64
	for _, txn := range r.transactions {
		if txn.MaterialStockID == stockID {
			purged++
			continue
		}
		kept = append(kept, txn)
	}
	r.transactions = kept
	return purged, nil
}

// --- fakeAssignmentRepo ---

type fakeAssignmentRepo struct {
	assignments map[int64]*models.ProjectMaterialAssignment
	nextID      int64

	// onLockedRead, when set, runs before GetAssignmentByIDForUpdate
	// returns. Tests use it to commit a competing transition between a
	// service's unlocked read and its locked one.
	onLockedRead func()
}

func newFakeAssignmentRepo() *fakeAssignmentRepo {
	return &fakeAssignmentRepo{assignments: make(map[int64]*models.ProjectMaterialAssignment), nextID: 1}
}

func (r *fakeAssignmentRepo) CreateAssignment(_ repositories.SQLExecutor, assignment *models.ProjectMaterialAssignment) (int64, error) {
	for _, existing := range r.assignments {
		if existing.ProjectID == assignment.ProjectID &&
			existing.MaterialCatalogID == assignment.MaterialCatalogID &&
			existing.Status != models.AssignmentStatusInstalled {
			return 0, repositories.ErrDuplicateKey
		}
	}
	assignment.ID = r.nextID
	r.nextID++
	assignment.CreatedAt = time.Now()
	assignment.UpdatedAt = assignment.CreatedAt
	copied := *assignment
	r.assignments[assignment.ID] = &copied
	return assignment.ID, nil
}

func (r *fakeAssignmentRepo) GetAssignmentByID(id int64) (*models.ProjectMaterialAssignment, error) {
	assignment, ok := r.assignments[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *assignment
	return &copied, nil
}

func (r *fakeAssignmentRepo) GetAssignmentByIDForUpdate(_ repositories.SQLExecutor, id int64) (*models.ProjectMaterialAssignment, error) {
	if r.onLockedRead != nil {
		r.onLockedRead()
	}
	return r.GetAssignmentByID(id)
}

func (r *fakeAssignmentRepo) GetAssignments(filters models.AssignmentFilters) ([]models.ProjectMaterialAssignment, int, error) {
	ids := make([]int64, 0, len(r.assignments))
	for id := range r.assignments {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	matched := make([]models.ProjectMaterialAssignment, 0)
	for _, id := range ids {
		a := r.assignments[id]
		if filters.ProjectID != nil && a.ProjectID != *filters.ProjectID {
			continue
		}
		if filters.MaterialCatalogID != nil && a.MaterialCatalogID != *filters.MaterialCatalogID {
			continue
		}
		if filters.Status != nil && a.Status != *filters.Status {
			continue
		}
		matched = append(matched, *a)
	}
	return matched, len(matched), nil
}

func (r *fakeAssignmentRepo) GetActiveAssignment(projectID, materialCatalogID int64) (*models.ProjectMaterialAssignment, error) {
	for _, a := range r.assignments {
		if a.ProjectID == projectID && a.MaterialCatalogID == materialCatalogID &&
			a.Status != models.AssignmentStatusInstalled {
			copied := *a
			return &copied, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *fakeAssignmentRepo) UpdateAssignment(_ repositories.SQLExecutor, assignment *models.ProjectMaterialAssignment) error {
	existing, ok := r.assignments[assignment.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	existing.Quantity = assignment.Quantity
	existing.UnitCost = assignment.UnitCost
	existing.TotalCost = assignment.TotalCost
	existing.Status = assignment.Status
	existing.UpdatedAt = time.Now()
	return nil
}

func (r *fakeAssignmentRepo) DeleteAssignment(_ repositories.SQLExecutor, id int64) error {
	if _, ok := r.assignments[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(r.assignments, id)
	return nil
}

// --- fakeCatalogRepo ---

type fakeCatalogRepo struct {
	materials map[int64]*models.MaterialCatalog
	stockRepo *fakeStockRepo // for the delete-with-stock guard
	nextID    int64
}

func newFakeCatalogRepo(stockRepo *fakeStockRepo) *fakeCatalogRepo {
	return &fakeCatalogRepo{materials: make(map[int64]*models.MaterialCatalog), stockRepo: stockRepo, nextID: 1}
}

func (r *fakeCatalogRepo) CreateMaterial(_ repositories.SQLExecutor, material *models.MaterialCatalog) (int64, error) {
	// The unique constraint on name is case-sensitive; only lookups by
	// name fold case. That is what makes ambiguous name matches possible.
	for _, existing := range r.materials {
		if existing.Name == material.Name {
			return 0, repositories.ErrDuplicateKey
		}
	}
	material.ID = r.nextID
	r.nextID++
	material.CreatedAt = time.Now()
	material.UpdatedAt = material.CreatedAt
	copied := *material
	r.materials[material.ID] = &copied
	return material.ID, nil
}

func (r *fakeCatalogRepo) GetMaterialByID(id int64) (*models.MaterialCatalog, error) {
	material, ok := r.materials[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *material
	return &copied, nil
}

func (r *fakeCatalogRepo) GetMaterialsByName(name string) ([]models.MaterialCatalog, error) {
	ids := make([]int64, 0, len(r.materials))
	for id := range r.materials {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	matched := make([]models.MaterialCatalog, 0)
	for _, id := range ids {
		if strings.EqualFold(r.materials[id].Name, name) {
			matched = append(matched, *r.materials[id])
		}
	}
	return matched, nil
}

func (r *fakeCatalogRepo) GetMaterials(materialType *string, page, pageSize int) ([]models.MaterialCatalog, int, error) {
	ids := make([]int64, 0, len(r.materials))
	for id := range r.materials {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	matched := make([]models.MaterialCatalog, 0)
	for _, id := range ids {
		if materialType != nil && r.materials[id].MaterialType != *materialType {
			continue
		}
		matched = append(matched, *r.materials[id])
	}
	return matched, len(matched), nil
}

func (r *fakeCatalogRepo) UpdateMaterial(_ repositories.SQLExecutor, material *models.MaterialCatalog) error {
	existing, ok := r.materials[material.ID]
	if !ok {
		return repositories.ErrNotFound
	}
	*existing = *material
	existing.UpdatedAt = time.Now()
	return nil
}

func (r *fakeCatalogRepo) DeleteMaterial(_ repositories.SQLExecutor, id int64) error {
	if _, ok := r.materials[id]; !ok {
		return repositories.ErrNotFound
	}
	if r.stockRepo != nil {
		if _, err := r.stockRepo.GetStockByMaterialID(id); err == nil {
			return repositories.ErrReferenced
		}
	}
	delete(r.materials, id)
	return nil
}

// d parses a decimal literal for test expectations.
func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// dp is d for pointer fields.
func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}
