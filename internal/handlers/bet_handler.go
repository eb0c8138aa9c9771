package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"parimutuel-market/internal/auth"
	"parimutuel-market/internal/models"
	"parimutuel-market/internal/services"
	"parimutuel-market/internal/streak"
)

type BetHandler struct {
	ledger *services.LedgerService
	log    *logrus.Logger
}

func NewBetHandler(ledger *services.LedgerService, log *logrus.Logger) *BetHandler {
	return &BetHandler{ledger: ledger, log: log}
}

// PlaceBet stakes on one outcome for the authenticated bettor
// POST /api/markets/:id/bets
func (h *BetHandler) PlaceBet(c *gin.Context) {
	bettorID, exists := auth.GetBettorID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}
	marketID, valid := uuidParam(c, "id")
	if !valid {
		return
	}

	var req models.PlaceBetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	outcomeID, err := uuid.Parse(req.OutcomeID)
	if err != nil {
		badRequest(c, "invalid outcome_id")
		return
	}

	result, err := h.ledger.PlaceBet(c.Request.Context(), marketID, outcomeID, bettorID, req.Stake)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	ok(c, http.StatusCreated, result)
}

// ListMarketBets returns bets on a market, newest first
// GET /api/markets/:id/bets
func (h *BetHandler) ListMarketBets(c *gin.Context) {
	marketID, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	limit, offset := pagination(c)
	bets, err := h.ledger.ListMarketBets(c.Request.Context(), marketID, limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": bets, "count": len(bets)})
}

// ListMyBets returns the authenticated bettor's bets
// GET /api/me/bets
func (h *BetHandler) ListMyBets(c *gin.Context) {
	bettorID, exists := auth.GetBettorID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}
	limit, offset := pagination(c)
	bets, err := h.ledger.ListBettorBets(c.Request.Context(), bettorID, limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": bets, "count": len(bets)})
}

// GetStreak returns a bettor's win streak
// GET /api/streaks/:bettor_id
func (h *BetHandler) GetStreak(c *gin.Context) {
	h.streak(c, c.Param("bettor_id"))
}

// GetMyStreak returns the authenticated bettor's win streak
// GET /api/me/streak
func (h *BetHandler) GetMyStreak(c *gin.Context) {
	bettorID, exists := auth.GetBettorID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "unauthorized"})
		return
	}
	h.streak(c, bettorID)
}

// GetStreakTiers returns the payout multiplier table
// GET /api/streak-tiers
func (h *BetHandler) GetStreakTiers(c *gin.Context) {
	ok(c, http.StatusOK, streak.Tiers())
}

func (h *BetHandler) streak(c *gin.Context, bettorID string) {
	view, err := h.ledger.GetStreak(c.Request.Context(), bettorID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, view)
}
