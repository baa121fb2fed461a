package server

import (
	"hash/fnv"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/tradebot/riskcore/internal/domain"
	"github.com/tradebot/riskcore/internal/metrics"
	"github.com/tradebot/riskcore/internal/riskgate"
)

type varRequest struct {
	Positions    []domain.Position    `json:"positions" binding:"required"`
	PriceHistory map[string][]float64 `json:"price_history"`
	Method       domain.VaRMethod     `json:"method"`
}

func (s *Server) handleVaR(c *gin.Context) {
	var req varRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Method == "" {
		req.Method = domain.VaRMethodHistorical
	}

	metrics.VaRQueries.Add(1)

	// 同一请求体短期内直接复用结果
	key := bodyHash(c)
	if result, ok := s.varCache.Get(key); ok {
		c.JSON(http.StatusOK, result)
		return
	}

	result, err := s.deps.Portfolio.ComputeVaR(req.Positions, req.PriceHistory, req.Method)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	s.varCache.Set(key, result, 0)
	c.JSON(http.StatusOK, result)
}

// bodyHash 请求体指纹（ShouldBindBodyWith 已缓存原始字节）。
func bodyHash(c *gin.Context) uint64 {
	h := fnv.New64a()
	if raw, ok := c.Get(gin.BodyBytesKey); ok {
		if b, ok := raw.([]byte); ok {
			_, _ = h.Write(b)
		}
	}
	return h.Sum64()
}

type stressRequest struct {
	Positions []domain.Position       `json:"positions" binding:"required"`
	Scenarios []domain.StressScenario `json:"scenarios"`
}

// defaultScenarios 未给出场景时的标准冲击：全部持仓统一 -5%/-10%/-20%。
func defaultScenarios(positions []domain.Position) []domain.StressScenario {
	shocks := []float64{-0.05, -0.10, -0.20}
	out := make([]domain.StressScenario, 0, len(shocks))
	for _, shock := range shocks {
		scenario := domain.StressScenario{}
		for _, p := range positions {
			scenario[p.Symbol] = shock
		}
		out = append(out, scenario)
	}
	return out
}

func (s *Server) handleStress(c *gin.Context) {
	var req stressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if len(req.Scenarios) == 0 {
		req.Scenarios = defaultScenarios(req.Positions)
	}
	c.JSON(http.StatusOK, s.deps.Portfolio.StressTest(req.Positions, req.Scenarios))
}

type decompositionRequest struct {
	Positions    []domain.Position    `json:"positions" binding:"required"`
	PriceHistory map[string][]float64 `json:"price_history"`
}

func (s *Server) handleDecomposition(c *gin.Context) {
	var req decompositionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	result, err := s.deps.Portfolio.Decompose(req.Positions, req.PriceHistory)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, result)
}

type kellyRequest struct {
	Capital    float64                 `json:"capital" binding:"required,gt=0"`
	Symbol     string                  `json:"symbol"` // 空则使用全部历史
	Limit      int                     `json:"limit"`  // 最近 N 笔，默认 200
	Conditions domain.MarketConditions `json:"conditions"`
	Trades     []domain.TradeRecord    `json:"trades"` // 可选：直接提供历史，优先于存储
}

func (s *Server) handleKelly(c *gin.Context) {
	var req kellyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	trades := req.Trades
	if len(trades) == 0 && s.deps.Trades != nil {
		var err error
		if req.Symbol != "" {
			trades, err = s.deps.Trades.BySymbol(c.Request.Context(), req.Symbol)
		} else {
			limit := req.Limit
			if limit <= 0 {
				limit = 200
			}
			trades, err = s.deps.Trades.Recent(c.Request.Context(), limit)
		}
		if err != nil {
			log.Warnf("kelly: trade history load failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "trade history unavailable"})
			return
		}
	}

	c.JSON(http.StatusOK, s.deps.Sizing.Recommend(req.Capital, trades, req.Conditions))
}

type riskCheckRequest struct {
	Trade     riskgate.ProposedTrade `json:"trade" binding:"required"`
	Positions []domain.Position      `json:"positions"`
	Account   *domain.AccountState   `json:"account"`
	Capital   float64                `json:"capital"`
}

// handleRiskCheck 风控检查。未提供账户状态时从交易存储聚合当日/本周
// 盈亏和交易次数。限额不通过返回 200 + canTrade=false，不是错误。
func (s *Server) handleRiskCheck(c *gin.Context) {
	var req riskCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	var account domain.AccountState
	if req.Account != nil {
		account = *req.Account
	} else {
		account = domain.AccountState{Capital: req.Capital}
		if s.deps.Trades != nil {
			ctx := c.Request.Context()
			now := time.Now()
			if pnl, err := s.deps.Trades.DailyPnL(ctx, now); err == nil {
				account.DailyPnL = pnl
			}
			if pnl, err := s.deps.Trades.WeeklyPnL(ctx, now); err == nil {
				account.WeeklyPnL = pnl
			}
			if n, err := s.deps.Trades.TradesToday(ctx, now); err == nil {
				account.TradesToday = n
			}
		}
	}

	c.JSON(http.StatusOK, s.deps.Gate.Evaluate(req.Trade, req.Positions, account))
}

type assessmentRequest struct {
	Positions []domain.Position     `json:"positions"`
	Market    domain.MarketSnapshot `json:"market"`
	Volume    float64               `json:"volume"`
	Leverage  float64               `json:"leverage"`
}

// handleAssessment 组合风险评估报告：波动率/流动性/集中度/杠杆的
// 加权档位评分，用于预警面板，不参与交易放行。
func (s *Server) handleAssessment(c *gin.Context) {
	var req assessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, riskgate.Assess(req.Positions, req.Market, req.Volume, req.Leverage))
}

// breaker 返回闸门上的熔断器，未配置时为 nil（方法对 nil 接收者安全）。
func (s *Server) breaker() *riskgate.CircuitBreaker {
	if s.deps.Gate == nil {
		return nil
	}
	return s.deps.Gate.Breaker()
}

// handleHalt 人工熔断：立即阻断所有后续风控放行。
func (s *Server) handleHalt(c *gin.Context) {
	breaker := s.breaker()
	if breaker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "circuit breaker not configured"})
		return
	}
	breaker.Halt()
	log.Warn("circuit breaker halted by operator")
	c.JSON(http.StatusOK, gin.H{"halted": true})
}

// handleResume 人工恢复熔断器，清空连续错误计数。
func (s *Server) handleResume(c *gin.Context) {
	breaker := s.breaker()
	if breaker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "circuit breaker not configured"})
		return
	}
	breaker.Resume()
	log.Info("circuit breaker resumed by operator")
	c.JSON(http.StatusOK, gin.H{"halted": false})
}
