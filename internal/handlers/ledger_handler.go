package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"qa-escrow/internal/auth"
	"qa-escrow/internal/blockchain"
	"qa-escrow/internal/models"
	"qa-escrow/internal/services"
	"qa-escrow/internal/utils"
)

// LedgerHandler exposes owner operations and ledger-wide state
type LedgerHandler struct {
	ledger    *services.LedgerService
	custodian blockchain.Custodian
}

func NewLedgerHandler(ledger *services.LedgerService, custodian blockchain.Custodian) *LedgerHandler {
	return &LedgerHandler{
		ledger:    ledger,
		custodian: custodian,
	}
}

// Pause stops new questions and answers
// POST /api/ledger/pause
func (h *LedgerHandler) Pause(c *gin.Context) {
	h.ownerAction(c, h.ledger.PauseContract)
}

// Unpause resumes new questions and answers
// POST /api/ledger/unpause
func (h *LedgerHandler) Unpause(c *gin.Context) {
	h.ownerAction(c, h.ledger.UnpauseContract)
}

// TransferOwnership hands the owner role to another wallet
// POST /api/ledger/ownership
func (h *LedgerHandler) TransferOwnership(c *gin.Context) {
	caller, exists := auth.GetWalletAddress(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req models.TransferOwnershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ledger.TransferOwnership(c.Request.Context(), caller, req.NewOwner); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"owner": req.NewOwner})
}

// GetOwner returns the current owner
// GET /api/ledger/owner
func (h *LedgerHandler) GetOwner(c *gin.Context) {
	owner, err := h.ledger.GetOwner(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"owner": owner})
}

// GetPaused returns the pause flag
// GET /api/ledger/paused
func (h *LedgerHandler) GetPaused(c *gin.Context) {
	paused, err := h.ledger.IsPaused(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": paused})
}

// GetStats returns totals and the pause flag
// GET /api/ledger/stats
func (h *LedgerHandler) GetStats(c *gin.Context) {
	stats, err := h.ledger.GetContractStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total_questions": stats.TotalQuestions,
		"total_answers":   stats.TotalAnswers,
		"paused":          stats.Paused,
		"min_deposit":     h.ledger.MinDeposit(),
		"min_deposit_sol": utils.LamportsToSOL(h.ledger.MinDeposit()).String(),
		"current_time":    h.ledger.Now(),
	})
}

// GetTotals returns the question and answer counters
// GET /api/ledger/totals
func (h *LedgerHandler) GetTotals(c *gin.Context) {
	ctx := c.Request.Context()

	questions, err := h.ledger.GetTotalQuestions(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	answers, err := h.ledger.GetTotalAnswers(ctx)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_questions": questions,
		"total_answers":   answers,
	})
}

// GetUnsettledPayouts lists closed questions whose transfer is not confirmed
// GET /api/ledger/payouts/unsettled
func (h *LedgerHandler) GetUnsettledPayouts(c *gin.Context) {
	questions, err := h.ledger.GetUnsettledPayouts(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"questions": models.NewQuestionResponses(questions, h.ledger.Now()),
		"count":     len(questions),
	})
}

// GetCustody reports custody connectivity and escrow balance
// GET /api/ledger/custody
func (h *LedgerHandler) GetCustody(c *gin.Context) {
	c.JSON(http.StatusOK, h.custodian.Diagnostics(c.Request.Context()))
}

func (h *LedgerHandler) ownerAction(c *gin.Context, action func(ctx context.Context, caller string) error) {
	caller, exists := auth.GetWalletAddress(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := action(c.Request.Context(), caller); err != nil {
		respondError(c, err)
		return
	}

	paused, err := h.ledger.IsPaused(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": paused})
}
