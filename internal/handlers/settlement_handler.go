package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"parimutuel-market/internal/models"
	"parimutuel-market/internal/services"
)

type SettlementHandler struct {
	settlement *services.SettlementService
	log        *logrus.Logger
}

func NewSettlementHandler(settlement *services.SettlementService, log *logrus.Logger) *SettlementHandler {
	return &SettlementHandler{settlement: settlement, log: log}
}

// Resolve settles a closed market on the winning outcome (admin only)
// POST /api/admin/markets/:id/resolve
func (h *SettlementHandler) Resolve(c *gin.Context) {
	marketID, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	var req models.ResolveMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	winningID, err := uuid.Parse(req.WinningOutcomeID)
	if err != nil {
		badRequest(c, "invalid winning_outcome_id")
		return
	}

	// settlement is not interrupted by a client going away
	report, err := h.settlement.Resolve(context.WithoutCancel(c.Request.Context()), marketID, winningID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, report)
}

// GetSettlement returns the settlement of a resolved market
// GET /api/markets/:id/settlement
func (h *SettlementHandler) GetSettlement(c *gin.Context) {
	marketID, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	report, err := h.settlement.GetSettlement(c.Request.Context(), marketID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, report)
}
