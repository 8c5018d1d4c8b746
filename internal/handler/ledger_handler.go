package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/JoelVR17/Trustless-Work-Test/internal/escrow"
	"github.com/JoelVR17/Trustless-Work-Test/internal/token"
)

type LedgerHandler struct {
	ledger token.Ledger
	logger *zap.Logger
	now    func() time.Time
}

func NewLedgerHandler(ledger token.Ledger, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, logger: logger, now: time.Now}
}

// GetBalance handles GET /ledger/balances/:addr
func (h *LedgerHandler) GetBalance(c *gin.Context) {
	addr := escrow.Address(c.Param("addr"))
	balance, err := h.ledger.Balance(c.Request.Context(), addr)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr, "balance": balance})
}

type approveRequest struct {
	Spender          string `json:"spender" binding:"required"`
	Amount           uint64 `json:"amount"`
	ExpiresInSeconds int64  `json:"expires_in_seconds"`
}

// Approve handles POST /ledger/approve. The caller is the owner.
func (h *LedgerHandler) Approve(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}

	owner := Caller(c)
	expiresAt := h.now().Add(time.Duration(req.ExpiresInSeconds) * time.Second)
	if err := h.ledger.Approve(c.Request.Context(), owner, escrow.Address(req.Spender), req.Amount, expiresAt); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"owner":      owner,
		"spender":    req.Spender,
		"amount":     req.Amount,
		"expires_at": expiresAt.UTC(),
	})
}

type mintRequest struct {
	To     string `json:"to" binding:"required"`
	Amount uint64 `json:"amount" binding:"required,gt=0"`
}

// Mint handles POST /ledger/mint; the router guards it with ledger:mint.
func (h *LedgerHandler) Mint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	if err := h.ledger.Mint(c.Request.Context(), escrow.Address(req.To), req.Amount); err != nil {
		respondError(c, h.logger, err)
		return
	}
	h.logger.Info("Minted tokens",
		zap.String("to", req.To),
		zap.Uint64("amount", req.Amount),
		zap.String("by", Caller(c).String()),
	)
	c.JSON(http.StatusOK, gin.H{"to": req.To, "amount": req.Amount})
}
