package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"rental-receivables-recon/internal/importer"
	"rental-receivables-recon/internal/models"
	"rental-receivables-recon/internal/repository"
	service "rental-receivables-recon/internal/services/reconciliation"
)

const maxUploadBytes = 32 << 20

type ReconciliationHandler struct {
	service  *service.ReconciliationService
	importer *importer.Importer
	staging  *repository.StagedPaymentRepository
	batches  *repository.UploadBatchRepository
	log      *zap.Logger
}

func NewReconciliationHandler(
	s *service.ReconciliationService,
	imp *importer.Importer,
	staging *repository.StagedPaymentRepository,
	batches *repository.UploadBatchRepository,
	log *zap.Logger,
) *ReconciliationHandler {
	return &ReconciliationHandler{service: s, importer: imp, staging: staging, batches: batches, log: log}
}

func batchParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("batchId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid batch ID"})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps service and repository errors to HTTP codes.
func (h *ReconciliationHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrBatchNotFound), errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
	case errors.Is(err, service.ErrRunInProgress), errors.Is(err, repository.ErrDuplicateUpload):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, importer.ErrEmptyFile),
		errors.Is(err, importer.ErrMissingColumn),
		errors.Is(err, importer.ErrUnsupported):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// Upload stages a CSV or XLSX payment export as a new batch.
func (h *ReconciliationHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read file"})
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	batch, err := h.importer.Import(c.Request.Context(), header.Filename, data)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"batch_id":      batch.ID.String(),
		"total_records": batch.TotalRecords,
		"total_amount":  batch.TotalAmount.StringFixed(2),
		"status":        batch.Status,
	})
}

func (h *ReconciliationHandler) GetBatch(c *gin.Context) {
	batchID, ok := batchParam(c)
	if !ok {
		return
	}
	batch, err := h.batches.Get(c.Request.Context(), batchID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

// DeleteBatch removes a batch and its staged payments.
func (h *ReconciliationHandler) DeleteBatch(c *gin.Context) {
	batchID, ok := batchParam(c)
	if !ok {
		return
	}
	if err := h.batches.Delete(c.Request.Context(), batchID); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "batch deleted"})
}

func (h *ReconciliationHandler) ListPayments(c *gin.Context) {
	batchID, ok := batchParam(c)
	if !ok {
		return
	}

	status := c.Query("status")
	if status != "" && status != "all" {
		if _, valid := models.ParseProcessingStatus(status); !valid {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	items, nextCursor, hasMore, err := h.staging.List(c.Request.Context(), batchID, status, c.Query("cursor"), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":       items,
		"next_cursor": nextCursor,
		"has_more":    hasMore,
	})
}

// Run triggers reconciliation of the batch's PENDING rows in the background.
func (h *ReconciliationHandler) Run(c *gin.Context) {
	batchID, ok := batchParam(c)
	if !ok {
		return
	}

	ticket, err := h.service.Start(c.Request.Context(), batchID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if ticket.NothingToProcess {
		c.JSON(http.StatusOK, gin.H{
			"batch_id": batchID.String(),
			"status":   "nothing_to_process",
			"count":    0,
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"batch_id": batchID.String(),
		"run_id":   ticket.RunID.String(),
		"status":   "processing",
		"count":    ticket.Count,
	})
}

func (h *ReconciliationHandler) Status(c *gin.Context) {
	batchID, ok := batchParam(c)
	if !ok {
		return
	}
	report, err := h.service.Status(c.Request.Context(), batchID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Reset is the operator retry: terminal rows of the given statuses go back to PENDING.
func (h *ReconciliationHandler) Reset(c *gin.Context) {
	batchID, ok := batchParam(c)
	if !ok {
		return
	}

	var payload struct {
		Statuses []string `json:"statuses"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil || len(payload.Statuses) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "statuses required"})
		return
	}
	statuses := make([]models.ProcessingStatus, 0, len(payload.Statuses))
	for _, raw := range payload.Statuses {
		st, valid := models.ParseProcessingStatus(raw)
		if !valid {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status " + raw})
			return
		}
		statuses = append(statuses, st)
	}

	n, err := h.service.Reset(c.Request.Context(), batchID, statuses)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rows reset", "rows": n})
}

// Reclaim releases rows of the batch stuck in PROCESSING past their lease.
func (h *ReconciliationHandler) Reclaim(c *gin.Context) {
	batchID, ok := batchParam(c)
	if !ok {
		return
	}
	if _, err := h.batches.Get(c.Request.Context(), batchID); err != nil {
		h.respondError(c, err)
		return
	}
	n, err := h.service.Reclaim(c.Request.Context(), &batchID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "expired claims released", "rows": n})
}
