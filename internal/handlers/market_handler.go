package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"parimutuel-market/internal/models"
	"parimutuel-market/internal/services"
)

type MarketHandler struct {
	ledger    *services.LedgerService
	consensus *services.ConsensusService
	snapshots *services.SnapshotService
	log       *logrus.Logger
}

func NewMarketHandler(
	ledger *services.LedgerService,
	consensus *services.ConsensusService,
	snapshots *services.SnapshotService,
	log *logrus.Logger,
) *MarketHandler {
	return &MarketHandler{
		ledger:    ledger,
		consensus: consensus,
		snapshots: snapshots,
		log:       log,
	}
}

// ListMarkets returns markets newest first
// GET /api/markets?status=OPEN&limit=&offset=
func (h *MarketHandler) ListMarkets(c *gin.Context) {
	status := models.MarketStatus(strings.ToUpper(c.Query("status")))
	switch status {
	case "", models.MarketStatusOpen, models.MarketStatusClosed, models.MarketStatusResolved:
	default:
		badRequest(c, "invalid status")
		return
	}

	limit, offset := pagination(c)
	markets, err := h.ledger.ListMarkets(c.Request.Context(), status, limit, offset)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    markets,
		"count":   len(markets),
	})
}

// CreateMarket publishes a market (admin only)
// POST /api/admin/markets
func (h *MarketHandler) CreateMarket(c *gin.Context) {
	var req models.CreateMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	market, err := h.ledger.CreateMarket(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	ok(c, http.StatusCreated, market)
}

// GetMarket returns one market with its outcomes
// GET /api/markets/:id
func (h *MarketHandler) GetMarket(c *gin.Context) {
	id, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	market, err := h.ledger.GetMarket(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, market)
}

// GetOdds returns live pricing
// GET /api/markets/:id/odds
func (h *MarketHandler) GetOdds(c *gin.Context) {
	id, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	view, err := h.ledger.GetOdds(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, view)
}

// Quote prices a hypothetical bet
// GET /api/markets/:id/quote?outcome_id=&stake=
func (h *MarketHandler) Quote(c *gin.Context) {
	id, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	outcomeID, err := uuid.Parse(c.Query("outcome_id"))
	if err != nil {
		badRequest(c, "invalid outcome_id")
		return
	}
	stake, err := decimal.NewFromString(c.Query("stake"))
	if err != nil {
		badRequest(c, "invalid stake")
		return
	}

	quote, err := h.ledger.Quote(c.Request.Context(), id, outcomeID, stake)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, quote)
}

// GetConsensus returns the crowd view
// GET /api/markets/:id/consensus
func (h *MarketHandler) GetConsensus(c *gin.Context) {
	id, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	result, err := h.consensus.Consensus(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, result)
}

// GetHistory returns recorded odds snapshots
// GET /api/markets/:id/history?since=RFC3339&limit=
func (h *MarketHandler) GetHistory(c *gin.Context) {
	id, valid := uuidParam(c, "id")
	if !valid {
		return
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			badRequest(c, "since must be RFC3339")
			return
		}
		since = t.UTC()
	}
	limit, _ := pagination(c)

	history, err := h.snapshots.History(c.Request.Context(), id, since, limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    history,
		"count":   len(history),
	})
}

// CloseMarket stops betting on a market (admin only)
// POST /api/admin/markets/:id/close
func (h *MarketHandler) CloseMarket(c *gin.Context) {
	id, valid := uuidParam(c, "id")
	if !valid {
		return
	}
	if err := h.ledger.CloseMarket(c.Request.Context(), id); err != nil {
		respondError(c, h.log, err)
		return
	}
	market, err := h.ledger.GetMarket(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	ok(c, http.StatusOK, market)
}
