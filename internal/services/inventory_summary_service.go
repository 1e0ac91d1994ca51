package services

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"sitestock_backend/internal/models"
	"sitestock_backend/internal/repositories"

	"github.com/shopspring/decimal"
)

// History entry kinds.
const (
	HistoryKindTransaction = "TRANSACTION"
	HistoryKindAssignment  = "ASSIGNMENT"
)

// StockStatusReport pairs a stock record with its derived status.
type StockStatusReport struct {
	Stock  models.MaterialStock `json:"stock"`
	Status string               `json:"status"`
}

// OverviewReport is the warehouse-wide stock summary for one page of
// records.
type OverviewReport struct {
	Items      []StockStatusReport `json:"items"`
	TotalCount int                 `json:"total_count"`
	TotalValue decimal.Decimal     `json:"total_value"`
	LowCount   int                 `json:"low_count"`
	HighCount  int                 `json:"high_count"`
}

// HistoryEntry is one event in a material's merged timeline: either a
// ledger transaction or a project assignment.
type HistoryEntry struct {
	Kind        string                            `json:"kind"`
	OccurredAt  time.Time                         `json:"occurred_at"`
	Transaction *models.StockTransaction          `json:"transaction,omitempty"`
	Assignment  *models.ProjectMaterialAssignment `json:"assignment,omitempty"`
}

// MaterialHistoryReport bundles a material's stock record with its full
// event timeline.
type MaterialHistoryReport struct {
	Stock   *models.MaterialStock `json:"stock"`
	Entries []HistoryEntry        `json:"entries"`
}

// StockStatus classifies available stock against the record's thresholds:
// low when available <= minimum, high when a maximum is set and available
// >= maximum, normal otherwise.
func StockStatus(stock *models.MaterialStock) string {
	if stock.AvailableStock.LessThanOrEqual(stock.MinimumStock) {
		return models.StockStatusLow
	}
	if stock.MaximumStock.IsPositive() && stock.AvailableStock.GreaterThanOrEqual(stock.MaximumStock) {
		return models.StockStatusHigh
	}
	return models.StockStatusNormal
}

// --- InventorySummaryService Interface ---

// InventorySummaryService serves read-only reports over the ledger. It
// never writes: even RecomputeReserved only reports the replayed value so
// an operator can compare it against the stored one.
type InventorySummaryService interface {
	Overview(page, pageSize int) (*OverviewReport, error)
	MaterialHistory(materialID int64) (*MaterialHistoryReport, error)
	RecomputeReserved(materialID int64) (decimal.Decimal, error)
}

// --- inventorySummaryService Implementation ---
type inventorySummaryService struct {
	stockRepo      repositories.MaterialStockRepository
	txnRepo        repositories.StockTransactionRepository
	assignmentRepo repositories.AssignmentRepository
}

// NewInventorySummaryService creates a new instance of
// InventorySummaryService.
func NewInventorySummaryService(
	stockRepo repositories.MaterialStockRepository,
	txnRepo repositories.StockTransactionRepository,
	assignmentRepo repositories.AssignmentRepository,
) InventorySummaryService {
	return &inventorySummaryService{
		stockRepo:      stockRepo,
		txnRepo:        txnRepo,
		assignmentRepo: assignmentRepo,
	}
}

// Overview returns one page of stock records with statuses, plus aggregates
// over that page.
func (s *inventorySummaryService) Overview(page, pageSize int) (*OverviewReport, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	stocks, totalCount, err := s.stockRepo.GetStocks(page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get stocks for overview: %w", err)
	}

	report := &OverviewReport{
		Items:      make([]StockStatusReport, 0, len(stocks)),
		TotalCount: totalCount,
		TotalValue: decimal.Zero,
	}
	for i := range stocks {
		status := StockStatus(&stocks[i])
		switch status {
		case models.StockStatusLow:
			report.LowCount++
		case models.StockStatusHigh:
			report.HighCount++
		}
		report.TotalValue = report.TotalValue.Add(stocks[i].TotalValue)
		report.Items = append(report.Items, StockStatusReport{Stock: stocks[i], Status: status})
	}
	return report, nil
}

// MaterialHistory merges a material's ledger transactions and project
// assignments into one chronological timeline.
func (s *inventorySummaryService) MaterialHistory(materialID int64) (*MaterialHistoryReport, error) {
	stock, err := s.stockRepo.GetStockByMaterialID(materialID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: material ID %d", ErrStockNotFound, materialID)
		}
		return nil, fmt.Errorf("failed to get stock for history: %w", err)
	}

	transactions, err := s.txnRepo.GetTransactionsByStockID(stock.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions for history: %w", err)
	}

	assignments, _, err := s.assignmentRepo.GetAssignments(models.AssignmentFilters{
		MaterialCatalogID: &materialID,
		Page:              1,
		PageSize:          1000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get assignments for history: %w", err)
	}

	entries := make([]HistoryEntry, 0, len(transactions)+len(assignments))
	for i := range transactions {
		entries = append(entries, HistoryEntry{
			Kind:        HistoryKindTransaction,
			OccurredAt:  transactions[i].TransactionDate,
			Transaction: &transactions[i],
		})
	}
	for i := range assignments {
		entries = append(entries, HistoryEntry{
			Kind:       HistoryKindAssignment,
			OccurredAt: assignments[i].CreatedAt,
			Assignment: &assignments[i],
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].OccurredAt.Before(entries[j].OccurredAt)
	})

	return &MaterialHistoryReport{Stock: stock, Entries: entries}, nil
}

// RecomputeReserved replays the transaction log and returns what the
// reserved quantity should be: reservations minus releases minus
// project-referenced consumption (installing an assignment consumes its
// reservation without an UNRESERVED entry).
func (s *inventorySummaryService) RecomputeReserved(materialID int64) (decimal.Decimal, error) {
	stock, err := s.stockRepo.GetStockByMaterialID(materialID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return decimal.Zero, fmt.Errorf("%w: material ID %d", ErrStockNotFound, materialID)
		}
		return decimal.Zero, fmt.Errorf("failed to get stock for recomputation: %w", err)
	}

	transactions, err := s.txnRepo.GetTransactionsByStockID(stock.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get transactions for recomputation: %w", err)
	}

	reserved := decimal.Zero
	for i := range transactions {
		txn := &transactions[i]
		switch txn.TxType {
		case models.TxTypeReserved:
			reserved = reserved.Add(txn.Quantity)
		case models.TxTypeUnreserved:
			reserved = reserved.Sub(txn.Quantity)
		case models.TxTypeOut:
			if txn.ReferenceType == models.RefTypeProject {
				reserved = reserved.Sub(txn.Quantity)
			}
		}
	}
	return reserved, nil
}
