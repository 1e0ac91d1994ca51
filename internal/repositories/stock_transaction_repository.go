package repositories

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"sitestock_backend/internal/models"
)

// StockTransactionRepository defines the interface for the append-only stock
// transaction log. There are no update or delete methods for individual rows:
// transactions are immutable audit records. PurgeByStockID exists solely for
// the explicit purge option when a stock row is removed.
type StockTransactionRepository interface {
	CreateTransaction(executor SQLExecutor, txn *models.StockTransaction) (int64, error)
	GetTransactions(filters models.StockTransactionFilters) ([]models.StockTransaction, int, error)
	GetTransactionsByStockID(stockID int64) ([]models.StockTransaction, error)
	PurgeByStockID(executor SQLExecutor, stockID int64) (int64, error)
}

type stockTransactionRepository struct {
	db *sql.DB
}

// NewStockTransactionRepository creates a new instance of StockTransactionRepository.
func NewStockTransactionRepository(db *sql.DB) StockTransactionRepository {
	return &stockTransactionRepository{db: db}
}

func (r *stockTransactionRepository) CreateTransaction(executor SQLExecutor, txn *models.StockTransaction) (int64, error) {
	query := `INSERT INTO stock_transactions
	          (material_stock_id, tx_type, quantity, unit_cost, total_cost, reference_id, reference_type,
	           transaction_date, notes, created_by, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	          RETURNING id`
	currentTime := time.Now()
	if txn.TransactionDate.IsZero() { // Default transaction_date to current time if not provided
		txn.TransactionDate = currentTime
	}
	txn.CreatedAt = currentTime

	var referenceID sql.NullInt64
	if txn.ReferenceID != nil {
		referenceID = sql.NullInt64{Int64: *txn.ReferenceID, Valid: true}
	}
	var createdBy sql.NullInt64
	if txn.CreatedBy != nil {
		createdBy = sql.NullInt64{Int64: *txn.CreatedBy, Valid: true}
	}

	err := executor.QueryRow(query,
		txn.MaterialStockID, txn.TxType, txn.Quantity, txn.UnitCost, txn.TotalCost,
		referenceID, txn.ReferenceType, txn.TransactionDate, txn.Notes, createdBy, txn.CreatedAt,
	).Scan(&txn.ID)
	if err != nil {
		return 0, fmt.Errorf("%w: creating stock transaction: %v", ErrDatabaseError, err)
	}
	return txn.ID, nil
}

func (r *stockTransactionRepository) GetTransactions(filters models.StockTransactionFilters) ([]models.StockTransaction, int, error) {
	transactions := []models.StockTransaction{}
	totalCount := 0

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT
	    id, material_stock_id, tx_type, quantity, unit_cost, total_cost,
	    reference_id, reference_type, transaction_date, notes, created_by, created_at,
	    COUNT(*) OVER() AS total_count
	  FROM stock_transactions`)

	var conditions []string
	var args []interface{}
	argCount := 1

	if filters.MaterialStockID != nil {
		conditions = append(conditions, fmt.Sprintf("material_stock_id = $%d", argCount))
		args = append(args, *filters.MaterialStockID)
		argCount++
	}
	if filters.TxType != nil && *filters.TxType != "" {
		conditions = append(conditions, fmt.Sprintf("tx_type = $%d", argCount))
		args = append(args, *filters.TxType)
		argCount++
	}
	if filters.ReferenceType != nil && *filters.ReferenceType != "" {
		conditions = append(conditions, fmt.Sprintf("reference_type = $%d", argCount))
		args = append(args, *filters.ReferenceType)
		argCount++
	}
	if filters.ReferenceID != nil {
		conditions = append(conditions, fmt.Sprintf("reference_id = $%d", argCount))
		args = append(args, *filters.ReferenceID)
		argCount++
	}
	if filters.StartDate != nil && *filters.StartDate != "" {
		if startDate, err := time.Parse("2006-01-02", *filters.StartDate); err == nil {
			conditions = append(conditions, fmt.Sprintf("transaction_date >= $%d", argCount))
			args = append(args, startDate)
			argCount++
		}
	}
	if filters.EndDate != nil && *filters.EndDate != "" {
		if endDate, err := time.Parse("2006-01-02", *filters.EndDate); err == nil {
			conditions = append(conditions, fmt.Sprintf("transaction_date <= $%d", argCount))
			args = append(args, endDate.AddDate(0, 0, 1).Add(-time.Nanosecond)) // End of day
			argCount++
		}
	}

	if len(conditions) > 0 {
		queryBuilder.WriteString(" WHERE ")
		queryBuilder.WriteString(strings.Join(conditions, " AND "))
	}

	queryBuilder.WriteString(" ORDER BY transaction_date DESC, id DESC")
	queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1))
	args = append(args, filters.PageSize, (filters.Page-1)*filters.PageSize)

	rows, err := r.db.Query(queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: getting stock transactions: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		txn, err := scanStockTransaction(rows, &totalCount)
		if err != nil {
			return nil, 0, err
		}
		transactions = append(transactions, *txn)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating stock transactions: %v", ErrDatabaseError, err)
	}
	return transactions, totalCount, nil
}

func (r *stockTransactionRepository) GetTransactionsByStockID(stockID int64) ([]models.StockTransaction, error) {
	transactions := []models.StockTransaction{}
	query := `SELECT id, material_stock_id, tx_type, quantity, unit_cost, total_cost,
	                 reference_id, reference_type, transaction_date, notes, created_by, created_at,
	                 0 AS total_count
	          FROM stock_transactions
	          WHERE material_stock_id = $1
	          ORDER BY transaction_date ASC, id ASC`
	rows, err := r.db.Query(query, stockID)
	if err != nil {
		return nil, fmt.Errorf("%w: getting stock transactions for stock ID %d: %v", ErrDatabaseError, stockID, err)
	}
	defer rows.Close()

	var discard int
	for rows.Next() {
		txn, err := scanStockTransaction(rows, &discard)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *txn)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating stock transactions: %v", ErrDatabaseError, err)
	}
	return transactions, nil
}

// PurgeByStockID removes the transaction history of a stock row. Only the
// explicit purge path of stock deletion may call this; by default orphaned
// transactions are kept as audit records.
func (r *stockTransactionRepository) PurgeByStockID(executor SQLExecutor, stockID int64) (int64, error) {
	result, err := executor.Exec("DELETE FROM stock_transactions WHERE material_stock_id = $1", stockID)
	if err != nil {
		return 0, fmt.Errorf("%w: purging stock transactions for stock ID %d: %v", ErrDatabaseError, stockID, err)
	}
	purged, _ := result.RowsAffected()
	return purged, nil
}

func scanStockTransaction(row scanner, totalCount *int) (*models.StockTransaction, error) {
	var txn models.StockTransaction
	var referenceID, createdBy sql.NullInt64
	if err := row.Scan(
		&txn.ID, &txn.MaterialStockID, &txn.TxType, &txn.Quantity, &txn.UnitCost, &txn.TotalCost,
		&referenceID, &txn.ReferenceType, &txn.TransactionDate, &txn.Notes, &createdBy, &txn.CreatedAt,
		totalCount,
	); err != nil {
		return nil, fmt.Errorf("%w: scanning stock transaction: %v", ErrDatabaseError, err)
	}
	if referenceID.Valid {
		txn.ReferenceID = &referenceID.Int64
	}
	if createdBy.Valid {
		txn.CreatedBy = &createdBy.Int64
	}
	return &txn, nil
}
