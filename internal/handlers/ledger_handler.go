package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"rental-receivables-recon/internal/models"
	"rental-receivables-recon/internal/repository"
)

// LedgerHandler maintains the clients and receivables that payments are
// reconciled against.
type LedgerHandler struct {
	clients     *repository.ClientRepository
	receivables *repository.ReceivableRepository
}

func NewLedgerHandler(clients *repository.ClientRepository, receivables *repository.ReceivableRepository) *LedgerHandler {
	return &LedgerHandler{clients: clients, receivables: receivables}
}

func (h *LedgerHandler) CreateClient(c *gin.Context) {
	var payload struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	payload.Code = strings.TrimSpace(payload.Code)
	payload.Name = strings.TrimSpace(payload.Name)
	if payload.Code == "" || payload.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code and name are required"})
		return
	}

	client := models.Client{Code: payload.Code, Name: payload.Name}
	if err := h.clients.Create(c.Request.Context(), &client); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "client created", "client": client})
}

func (h *LedgerHandler) CreateReceivable(c *gin.Context) {
	var payload struct {
		ClientID    string          `json:"client_id"`
		ContractRef string          `json:"contract_ref"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		DueDate     string          `json:"due_date"` // "yyyy-mm-dd" or "dd-mm-yyyy"
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	clientID, err := uuid.Parse(payload.ClientID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client ID"})
		return
	}
	if !payload.Amount.IsPositive() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be positive"})
		return
	}
	dueDate, ok := parseDueDate(payload.DueDate)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid due date format, expected yyyy-mm-dd or dd-mm-yyyy"})
		return
	}

	rec := models.Receivable{
		ClientID:    clientID,
		ContractRef: payload.ContractRef,
		Description: payload.Description,
		Amount:      payload.Amount.Round(2),
		DueDate:     dueDate,
	}
	if err := h.receivables.Create(c.Request.Context(), &rec); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "receivable created", "receivable": rec})
}

func parseDueDate(raw string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", "02-01-2006"} {
		if t, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
