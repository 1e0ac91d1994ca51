package router

import (
	"sitestock_backend/internal/handlers"
	"sitestock_backend/internal/middleware"
	"sitestock_backend/internal/models"

	"github.com/gin-gonic/gin"
)

// SetupAuthRoutes sets up the authentication routes.
func SetupAuthRoutes(apiGroup *gin.RouterGroup, authHandler *handlers.AuthHandler) {
	authRoutes := apiGroup.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.RegisterUser)
		authRoutes.POST("/login", authHandler.LoginUser)
		authRoutes.POST("/refresh-token", authHandler.RefreshToken)

		authRequiredRoutes := authRoutes.Group("")
		authRequiredRoutes.Use(middleware.AuthMiddleware())
		{
			authRequiredRoutes.GET("/me", authHandler.GetCurrentUser)
		}
	}
}

// SetupCatalogRoutes sets up the material catalog routes. Catalog writes
// are restricted to Admin and Storekeeper; reads allow every role.
func SetupCatalogRoutes(authenticatedGroup *gin.RouterGroup, catalogHandler *handlers.CatalogHandler) {
	materialRoutes := authenticatedGroup.Group("/materials")
	{
		materialRoutes.GET("", catalogHandler.GetMaterials)
		materialRoutes.GET("/:id", catalogHandler.GetMaterialByID)

		writes := materialRoutes.Group("")
		writes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin, models.RoleStorekeeper))
		{
			writes.POST("", catalogHandler.CreateMaterial)
			writes.PUT("/:id", catalogHandler.UpdateMaterial)
			writes.DELETE("/:id", catalogHandler.DeleteMaterial)
		}
	}
}

// SetupStockRoutes sets up the stock ledger and summary routes. Ledger
// mutations require Admin or Storekeeper.
func SetupStockRoutes(authenticatedGroup *gin.RouterGroup, stockHandler *handlers.StockHandler, summaryHandler *handlers.SummaryHandler) {
	stockRoutes := authenticatedGroup.Group("/stock")
	{
		stockRoutes.GET("", stockHandler.GetStocks)
		stockRoutes.GET("/summary", summaryHandler.GetOverview)
		stockRoutes.GET("/:id", stockHandler.GetStockByID)
		stockRoutes.GET("/:id/transactions", stockHandler.GetStockTransactions)
		stockRoutes.GET("/:id/history", summaryHandler.GetMaterialHistory)

		writes := stockRoutes.Group("")
		writes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin, models.RoleStorekeeper))
		{
			writes.POST("/:id/receive", stockHandler.ReceiveStock)
			writes.POST("/:id/reserve", stockHandler.ReserveStock)
			writes.POST("/:id/release", stockHandler.ReleaseStock)
			writes.POST("/:id/consume", stockHandler.ConsumeStock)
			writes.POST("/:id/adjust", stockHandler.AdjustStock)
			writes.DELETE("/:id", stockHandler.DeleteStock)
		}
	}
}

// SetupAssignmentRoutes sets up the project assignment routes. Site
// managers drive the reservation lifecycle alongside Admin and
// Storekeeper.
func SetupAssignmentRoutes(authenticatedGroup *gin.RouterGroup, assignmentHandler *handlers.AssignmentHandler) {
	assignmentRoutes := authenticatedGroup.Group("/assignments")
	{
		assignmentRoutes.GET("", assignmentHandler.GetAssignments)
		assignmentRoutes.GET("/:id", assignmentHandler.GetAssignmentByID)

		writes := assignmentRoutes.Group("")
		writes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin, models.RoleSiteManager, models.RoleStorekeeper))
		{
			writes.POST("", assignmentHandler.CreateAssignment)
			writes.PATCH("/:id/quantity", assignmentHandler.EditQuantity)
			writes.PATCH("/:id/ordered", assignmentHandler.MarkOrdered)
			writes.PATCH("/:id/installed", assignmentHandler.MarkInstalled)
			writes.DELETE("/:id", assignmentHandler.DeleteAssignment)
		}
	}
}

// SetupDispatchRoutes sets up the dispatch intake routes.
func SetupDispatchRoutes(authenticatedGroup *gin.RouterGroup, dispatchHandler *handlers.DispatchHandler) {
	dispatchRoutes := authenticatedGroup.Group("/dispatches")
	dispatchRoutes.Use(middleware.RoleAuthMiddleware(models.RoleAdmin, models.RoleStorekeeper))
	{
		dispatchRoutes.POST("/delivery", dispatchHandler.ProcessDelivery)
	}
}
