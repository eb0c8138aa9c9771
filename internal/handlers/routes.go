package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"parimutuel-market/internal/auth"
)

// Handlers groups every HTTP handler of the API
type Handlers struct {
	Markets    *MarketHandler
	Bets       *BetHandler
	Settlement *SettlementHandler
}

// RegisterRoutes mounts the public, bettor and admin routes on r
func RegisterRoutes(r *gin.Engine, h Handlers, tokens *auth.TokenManager, log *logrus.Logger) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.GET("/markets", h.Markets.ListMarkets)
		api.GET("/markets/:id", h.Markets.GetMarket)
		api.GET("/markets/:id/odds", h.Markets.GetOdds)
		api.GET("/markets/:id/quote", h.Markets.Quote)
		api.GET("/markets/:id/consensus", h.Markets.GetConsensus)
		api.GET("/markets/:id/history", h.Markets.GetHistory)
		api.GET("/markets/:id/bets", h.Bets.ListMarketBets)
		api.GET("/markets/:id/settlement", h.Settlement.GetSettlement)
		api.GET("/streaks/:bettor_id", h.Bets.GetStreak)
		api.GET("/streak-tiers", h.Bets.GetStreakTiers)
	}

	bettor := api.Group("")
	bettor.Use(tokens.Middleware(log))
	{
		bettor.POST("/markets/:id/bets", h.Bets.PlaceBet)
		bettor.GET("/me/bets", h.Bets.ListMyBets)
		bettor.GET("/me/streak", h.Bets.GetMyStreak)
	}

	admin := api.Group("/admin")
	admin.Use(tokens.Middleware(log), auth.AdminOnly())
	{
		admin.POST("/markets", h.Markets.CreateMarket)
		admin.POST("/markets/:id/close", h.Markets.CloseMarket)
		admin.POST("/markets/:id/resolve", h.Settlement.Resolve)
	}
}
