package services

import (
	"errors"
	"fmt"
	"strings"

	"sitestock_backend/internal/models"
	"sitestock_backend/internal/repositories"

	"github.com/shopspring/decimal"
)

// Resolution outcomes for a delivery line.
const (
	ResolutionMatched   = "MATCHED"
	ResolutionAmbiguous = "AMBIGUOUS"
	ResolutionNotFound  = "NOT_FOUND"
)

// MaterialResolution is the result of identifying which inventory record a
// delivery line refers to.
type MaterialResolution struct {
	Outcome    string `json:"outcome"`
	MaterialID int64  `json:"material_id,omitempty"`
	StockID    int64  `json:"stock_id,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// DeliveryLine is one material line of a confirmed dispatch.
type DeliveryLine struct {
	MaterialCatalogID *int64          `json:"material_catalog_id,omitempty"`
	MaterialName      string          `json:"material_name,omitempty"`
	Quantity          decimal.Decimal `json:"quantity"`
}

// DeliveryConfirmation is the payload posted when a dispatch arrives on
// site.
type DeliveryConfirmation struct {
	DispatchID int64          `json:"dispatch_id" binding:"required"`
	Lines      []DeliveryLine `json:"lines" binding:"required"`
	CreatedBy  *int64         `json:"-"`
}

// DeliveryLineResult reports what happened to one line of a delivery.
// Lines are processed independently: a failed line never blocks the rest.
type DeliveryLineResult struct {
	Line        DeliveryLine             `json:"line"`
	Resolution  MaterialResolution       `json:"resolution"`
	Stock       *models.MaterialStock    `json:"stock,omitempty"`
	Transaction *models.StockTransaction `json:"transaction,omitempty"`
	Error       string                   `json:"error,omitempty"`
}

// DispatchIntakeConfig controls material resolution behavior.
type DispatchIntakeConfig struct {
	// NameFallback enables resolving lines by material name when no catalog
	// ID is supplied. Off by default: name matching is inherently fuzzy and
	// sites with disciplined catalogs should not pay for it.
	NameFallback bool
}

// --- DispatchIntakeService Interface ---

// DispatchIntakeService books confirmed deliveries into stock. It holds no
// state of its own; every accepted line becomes a Receive on the ledger
// with a DISPATCH reference, valued at the stock's current unit cost.
type DispatchIntakeService interface {
	ResolveMaterial(line DeliveryLine) MaterialResolution
	ProcessDelivery(confirmation DeliveryConfirmation) []DeliveryLineResult
}

// --- dispatchIntakeService Implementation ---
type dispatchIntakeService struct {
	catalogRepo repositories.MaterialCatalogRepository
	stockRepo   repositories.MaterialStockRepository
	ledger      StockLedgerService
	config      DispatchIntakeConfig
}

// NewDispatchIntakeService creates a new instance of DispatchIntakeService.
func NewDispatchIntakeService(
	catalogRepo repositories.MaterialCatalogRepository,
	stockRepo repositories.MaterialStockRepository,
	ledger StockLedgerService,
	config DispatchIntakeConfig,
) DispatchIntakeService {
	return &dispatchIntakeService{
		catalogRepo: catalogRepo,
		stockRepo:   stockRepo,
		ledger:      ledger,
		config:      config,
	}
}

// ResolveMaterial maps a delivery line to a stock record. A supplied catalog
// ID always wins; the name fallback only runs when no ID is given and the
// service was configured with NameFallback.
func (s *dispatchIntakeService) ResolveMaterial(line DeliveryLine) MaterialResolution {
	if line.MaterialCatalogID != nil {
		return s.resolveByID(*line.MaterialCatalogID)
	}

	name := strings.TrimSpace(line.MaterialName)
	if name == "" {
		return MaterialResolution{Outcome: ResolutionNotFound, Detail: "line carries neither a catalog ID nor a material name"}
	}
	if !s.config.NameFallback {
		return MaterialResolution{Outcome: ResolutionNotFound, Detail: "no catalog ID supplied and name fallback is disabled"}
	}

	matches, err := s.catalogRepo.GetMaterialsByName(name)
	if err != nil {
		return MaterialResolution{Outcome: ResolutionNotFound, Detail: fmt.Sprintf("name lookup failed: %v", err)}
	}
	switch len(matches) {
	case 0:
		return MaterialResolution{Outcome: ResolutionNotFound, Detail: fmt.Sprintf("no catalog material named %q", name)}
	case 1:
		return s.resolveByID(matches[0].ID)
	default:
		return MaterialResolution{Outcome: ResolutionAmbiguous, Detail: fmt.Sprintf("%d catalog materials named %q", len(matches), name)}
	}
}

func (s *dispatchIntakeService) resolveByID(materialID int64) MaterialResolution {
	stock, err := s.stockRepo.GetStockByMaterialID(materialID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return MaterialResolution{Outcome: ResolutionNotFound, MaterialID: materialID, Detail: fmt.Sprintf("no stock record for material ID %d", materialID)}
		}
		return MaterialResolution{Outcome: ResolutionNotFound, MaterialID: materialID, Detail: fmt.Sprintf("stock lookup failed: %v", err)}
	}
	return MaterialResolution{Outcome: ResolutionMatched, MaterialID: materialID, StockID: stock.ID}
}

// ProcessDelivery books each resolvable line of a confirmed delivery into
// stock. One result is returned per line, in input order; unresolved or
// rejected lines carry the reason and leave stock untouched.
func (s *dispatchIntakeService) ProcessDelivery(confirmation DeliveryConfirmation) []DeliveryLineResult {
	results := make([]DeliveryLineResult, 0, len(confirmation.Lines))
	for _, line := range confirmation.Lines {
		result := DeliveryLineResult{Line: line}

		result.Resolution = s.ResolveMaterial(line)
		if result.Resolution.Outcome != ResolutionMatched {
			results = append(results, result)
			continue
		}

		stock, err := s.stockRepo.GetStockByMaterialID(result.Resolution.MaterialID)
		if err != nil {
			result.Error = fmt.Sprintf("failed to read stock record: %v", err)
			results = append(results, result)
			continue
		}

		ref := models.TxReference{
			Type:      models.RefTypeDispatch,
			ID:        &confirmation.DispatchID,
			CreatedBy: confirmation.CreatedBy,
		}
		updated, txn, err := s.ledger.Receive(result.Resolution.MaterialID, line.Quantity, stock.UnitCost, ref)
		if err != nil {
			result.Error = err.Error()
			results = append(results, result)
			continue
		}

		result.Stock = updated
		result.Transaction = txn
		results = append(results, result)
	}
	return results
}
