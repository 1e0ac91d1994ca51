package router

import (
	"database/sql"

	"sitestock_backend/internal/handlers"
	"sitestock_backend/internal/middleware"
	"sitestock_backend/internal/repositories"
	"sitestock_backend/internal/services"
	"sitestock_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// Setup initializes the routing for the application.
func Setup(engine *gin.Engine, db *sql.DB) {
	// Initialize Repositories
	txRunner := repositories.NewTxRunner(db)
	authRepo := repositories.NewAuthRepository(db)
	catalogRepo := repositories.NewMaterialCatalogRepository(db)
	stockRepo := repositories.NewMaterialStockRepository(db)
	txnRepo := repositories.NewStockTransactionRepository(db)
	assignmentRepo := repositories.NewAssignmentRepository(db)

	// Initialize Services
	intakeConfig := services.DispatchIntakeConfig{
		NameFallback: utils.Getenv("DISPATCH_NAME_FALLBACK", "false") == "true",
	}

	authService := services.NewAuthService(authRepo, txRunner)
	ledgerService := services.NewStockLedgerService(stockRepo, txnRepo, txRunner)
	catalogService := services.NewCatalogService(catalogRepo, stockRepo, ledgerService, txRunner)
	reservationService := services.NewReservationService(assignmentRepo, ledgerService, txRunner)
	intakeService := services.NewDispatchIntakeService(catalogRepo, stockRepo, ledgerService, intakeConfig)
	summaryService := services.NewInventorySummaryService(stockRepo, txnRepo, assignmentRepo)

	// Initialize Handlers
	authHandler := handlers.NewAuthHandler(authService)
	catalogHandler := handlers.NewCatalogHandler(catalogService)
	stockHandler := handlers.NewStockHandler(ledgerService)
	assignmentHandler := handlers.NewAssignmentHandler(reservationService)
	dispatchHandler := handlers.NewDispatchHandler(intakeService)
	summaryHandler := handlers.NewSummaryHandler(summaryService, ledgerService)

	apiV1 := engine.Group("/api/v1")

	SetupAuthRoutes(apiV1, authHandler)

	authenticated := apiV1.Group("")
	authenticated.Use(middleware.AuthMiddleware())
	{
		SetupCatalogRoutes(authenticated, catalogHandler)
		SetupStockRoutes(authenticated, stockHandler, summaryHandler)
		SetupAssignmentRoutes(authenticated, assignmentHandler)
		SetupDispatchRoutes(authenticated, dispatchHandler)
	}
}
