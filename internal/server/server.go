package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tradebot/riskcore/internal/domain"
	"github.com/tradebot/riskcore/internal/execution"
	"github.com/tradebot/riskcore/internal/portfolio"
	"github.com/tradebot/riskcore/internal/riskgate"
	"github.com/tradebot/riskcore/internal/sizing"
	"github.com/tradebot/riskcore/internal/store"
	"github.com/tradebot/riskcore/pkg/cache"
	"github.com/tradebot/riskcore/pkg/ratelimit"
)

var log = logrus.WithField("component", "server")

// Deps 服务依赖。Trades/Archive 可为 nil（对应功能降级）。
type Deps struct {
	Portfolio *portfolio.Engine
	Sizing    *sizing.Calculator
	Execution *execution.Engine
	Gate      *riskgate.Gate
	Trades    *store.TradeStore
	Archive   *store.OrderArchive
}

// Server HTTP API。只做参数绑定和依赖组合，领域逻辑全部在引擎里。
// VaR 查询按请求体缓存几秒（蒙特卡洛开销大，且结果对同一输入确定），
// 整个 /api 组走令牌桶限流。
type Server struct {
	deps     Deps
	baseCtx  context.Context
	varCache *cache.InMemoryCache[uint64, domain.VaRResult]
	limiter  ratelimit.RateLimiter
}

// New 创建服务。ctx 是进程级上下文：订单执行 goroutine 的生命周期
// 挂在它上面而不是单次请求上，请求返回后执行继续，ctx 取消时停止。
func New(ctx context.Context, deps Deps) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Server{
		deps:     deps,
		baseCtx:  ctx,
		varCache: cache.NewInMemoryCache[uint64, domain.VaRResult](5 * time.Second),
		limiter:  ratelimit.NewTokenBucket(200, 100, time.Second),
	}
}

// Router 构建路由。
func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	api := r.Group("/api")
	api.Use(s.rateLimit)

	orders := api.Group("/orders")
	orders.POST("", s.handleOrderSubmit)
	orders.GET("", s.handleOrdersActive)
	orders.GET("/:orderID", s.handleOrderGet)
	orders.DELETE("/:orderID", s.handleOrderCancel)

	risk := api.Group("/risk")
	risk.POST("/var", s.handleVaR)
	risk.POST("/stress", s.handleStress)
	risk.POST("/decomposition", s.handleDecomposition)
	risk.POST("/check", s.handleRiskCheck)
	risk.POST("/assessment", s.handleAssessment)

	trades := api.Group("/trades")
	trades.POST("", s.handleTradeRecord)
	trades.GET("", s.handleTradesRecent)

	admin := api.Group("/admin")
	admin.POST("/halt", s.handleHalt)
	admin.POST("/resume", s.handleResume)

	api.POST("/position/kelly", s.handleKelly)
	api.GET("/stats/execution", s.handleExecutionStats)

	return r
}

func (s *Server) rateLimit(c *gin.Context) {
	if !s.limiter.Allow() {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}
	c.Next()
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
