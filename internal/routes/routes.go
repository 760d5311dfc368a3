package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"rental-receivables-recon/internal/config"
	handler "rental-receivables-recon/internal/handlers"
	"rental-receivables-recon/internal/importer"
	"rental-receivables-recon/internal/repository"
	service "rental-receivables-recon/internal/services/reconciliation"
)

// Dependencies is what the HTTP surface is built from.
type Dependencies struct {
	DB      *gorm.DB
	Config  *config.Config
	Service *service.ReconciliationService
	Logger  *zap.Logger
}

func RegisterRoutes(r *gin.Engine, deps Dependencies) {
	stagingRepo := repository.NewStagedPaymentRepository(deps.DB)
	batchRepo := repository.NewUploadBatchRepository(deps.DB)
	clientRepo := repository.NewClientRepository(deps.DB)
	receivableRepo := repository.NewReceivableRepository(deps.DB, deps.Config.Recon.Tolerance)

	reconHandler := handler.NewReconciliationHandler(
		deps.Service,
		importer.New(batchRepo, deps.Logger),
		stagingRepo,
		batchRepo,
		deps.Logger,
	)
	ledgerHandler := handler.NewLedgerHandler(clientRepo, receivableRepo)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Upload batch routes
	uploads := api.Group("/uploads")
	uploads.POST("", reconHandler.Upload)
	uploads.GET("/:batchId", reconHandler.GetBatch)
	uploads.DELETE("/:batchId", reconHandler.DeleteBatch)
	uploads.GET("/:batchId/payments", reconHandler.ListPayments)

	// Reconciliation run routes
	recon := api.Group("/reconciliation")
	recon.POST("/:batchId/run", reconHandler.Run)
	recon.GET("/:batchId/status", reconHandler.Status)
	recon.POST("/:batchId/reset", reconHandler.Reset)
	recon.POST("/:batchId/reclaim", reconHandler.Reclaim)

	// Ledger routes
	api.POST("/clients", ledgerHandler.CreateClient)
	api.POST("/receivables", ledgerHandler.CreateReceivable)
}
