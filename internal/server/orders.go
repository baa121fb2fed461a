package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/tradebot/riskcore/internal/domain"
	"github.com/tradebot/riskcore/internal/execution"
	"github.com/tradebot/riskcore/internal/store"
)

type submitOrderRequest struct {
	Symbol      string                `json:"symbol" binding:"required"`
	Side        domain.OrderSide      `json:"side" binding:"required"`
	Amount      float64               `json:"amount" binding:"required,gt=0"`
	Type        domain.OrderType      `json:"type"`
	Price       float64               `json:"price"`
	TimeInForce domain.TimeInForce    `json:"time_in_force"`
	Algorithm   domain.Algorithm      `json:"algorithm"` // 空则按流动性占比自动选择
	Market      domain.MarketSnapshot `json:"market"`
}

func (s *Server) handleOrderSubmit(c *gin.Context) {
	var req submitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Type == "" {
		req.Type = domain.OrderTypeMarket
	}
	if req.TimeInForce == "" {
		req.TimeInForce = domain.TimeInForceGTC
	}

	order := &domain.Order{
		Symbol:      req.Symbol,
		Side:        req.Side,
		Amount:      req.Amount,
		Type:        req.Type,
		Price:       req.Price,
		TimeInForce: req.TimeInForce,
	}

	// 执行 goroutine 必须活过本次请求：挂到进程级上下文上，
	// 请求上下文在响应写完后就会被取消。
	id, err := s.deps.Execution.Submit(s.baseCtx, order, req.Algorithm, req.Market)
	if err != nil {
		if errors.Is(err, execution.ErrDuplicateSubmit) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		badRequest(c, err.Error())
		return
	}

	snapshot, ok := s.deps.Execution.OrderStatus(id)
	if !ok && s.deps.Archive != nil {
		// 立即执行的小订单可能已经归档出内存注册表
		if archived, err := s.deps.Archive.Get(id); err == nil {
			snapshot = archived
		}
	}
	c.JSON(http.StatusCreated, gin.H{"order_id": id, "order": snapshot})
}

func (s *Server) handleOrdersActive(c *gin.Context) {
	active := s.deps.Execution.ActiveOrders()
	if active == nil {
		active = []domain.Order{}
	}
	c.JSON(http.StatusOK, active)
}

func (s *Server) handleOrderGet(c *gin.Context) {
	orderID := c.Param("orderID")

	if order, ok := s.deps.Execution.OrderStatus(orderID); ok {
		c.JSON(http.StatusOK, order)
		return
	}
	if s.deps.Archive != nil {
		order, err := s.deps.Archive.Get(orderID)
		if err == nil {
			c.JSON(http.StatusOK, order)
			return
		}
		if !errors.Is(err, store.ErrOrderNotFound) {
			log.WithField("order_id", orderID).Warnf("archive lookup failed: %v", err)
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
}

func (s *Server) handleOrderCancel(c *gin.Context) {
	orderID := c.Param("orderID")

	if s.deps.Execution.Cancel(orderID) {
		c.JSON(http.StatusOK, gin.H{"cancelled": true})
		return
	}
	if order, ok := s.deps.Execution.OrderStatus(orderID); ok {
		c.JSON(http.StatusConflict, gin.H{
			"error":  "order not cancellable",
			"status": order.Status,
		})
		return
	}
	if s.deps.Archive != nil {
		if order, err := s.deps.Archive.Get(orderID); err == nil {
			c.JSON(http.StatusConflict, gin.H{
				"error":  "order not cancellable",
				"status": order.Status,
			})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
}

func (s *Server) handleExecutionStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Execution.Stats())
}
