package server

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tradebot/riskcore/internal/domain"
)

type tradeRecordRequest struct {
	Symbol     string    `json:"symbol" binding:"required"`
	PnL        float64   `json:"pnl"`
	PnLPercent float64   `json:"pnl_percent"`
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
}

// handleTradeRecord 记录一笔平仓交易。交易库喂给凯利仓位的历史样本
// 和风控闸门的当日/本周聚合，盈亏同时回灌熔断器的当日 PnL。
func (s *Server) handleTradeRecord(c *gin.Context) {
	if s.deps.Trades == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade store unavailable"})
		return
	}
	var req tradeRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.ClosedAt.IsZero() {
		req.ClosedAt = time.Now()
	}
	if req.OpenedAt.IsZero() {
		req.OpenedAt = req.ClosedAt
	}

	id, err := s.deps.Trades.Append(c.Request.Context(), domain.TradeRecord{
		Symbol:     req.Symbol,
		PnL:        req.PnL,
		PnLPercent: req.PnLPercent,
		OpenedAt:   req.OpenedAt,
		ClosedAt:   req.ClosedAt,
	})
	if err != nil {
		log.Warnf("trade record failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trade record failed"})
		return
	}
	s.breaker().AddPnLCents(int64(math.Round(req.PnL * 100)))

	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (s *Server) handleTradesRecent(c *gin.Context) {
	if s.deps.Trades == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "trade store unavailable"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	trades, err := s.deps.Trades.Recent(c.Request.Context(), limit)
	if err != nil {
		log.Warnf("trade history load failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trade history unavailable"})
		return
	}
	if trades == nil {
		trades = []domain.TradeRecord{}
	}
	c.JSON(http.StatusOK, trades)
}
