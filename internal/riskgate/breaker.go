package riskgate

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ErrBreakerOpen 熔断器已打开，禁止继续交易。
var ErrBreakerOpen = fmt.Errorf("circuit breaker open")

// BreakerConfig 熔断配置。阈值 <= 0 表示关闭对应限制。
type BreakerConfig struct {
	// MaxConsecutiveErrors 连续执行失败上限。
	MaxConsecutiveErrors int64
	// DailyLossLimitCents 当日最大亏损（分）。达到即熔断。
	DailyLossLimitCents int64
}

// CircuitBreaker 交易熔断器。热路径全部走原子变量，
// 闸门每次 Evaluate 都会调用 Allow，不能加锁。
// 当日 PnL 由上层在确认平仓处通过 AddPnLCents 回灌。
type CircuitBreaker struct {
	halted atomic.Bool

	consecutiveErrors atomic.Int64
	dailyPnlCents     atomic.Int64
	dayKey            atomic.Int64 // YYYYMMDD

	maxConsecutiveErrors atomic.Int64
	dailyLossLimitCents  atomic.Int64
}

// NewCircuitBreaker 创建熔断器。
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	cb := &CircuitBreaker{}
	cb.SetConfig(cfg)
	return cb
}

// SetConfig 运行时更新阈值。
func (cb *CircuitBreaker) SetConfig(cfg BreakerConfig) {
	if cb == nil {
		return
	}
	cb.maxConsecutiveErrors.Store(cfg.MaxConsecutiveErrors)
	cb.dailyLossLimitCents.Store(cfg.DailyLossLimitCents)
}

// Halt 手动熔断（人工介入或检测到严重异常）。
func (cb *CircuitBreaker) Halt() {
	if cb == nil {
		return
	}
	cb.halted.Store(true)
}

// Resume 手动恢复，同时清空连续错误计数。
func (cb *CircuitBreaker) Resume() {
	if cb == nil {
		return
	}
	cb.halted.Store(false)
	cb.consecutiveErrors.Store(0)
}

// Allow 检查是否允许交易；熔断时返回 ErrBreakerOpen。
func (cb *CircuitBreaker) Allow() error {
	if cb == nil {
		return nil
	}
	if cb.halted.Load() {
		return ErrBreakerOpen
	}

	if maxErr := cb.maxConsecutiveErrors.Load(); maxErr > 0 && cb.consecutiveErrors.Load() >= maxErr {
		cb.halted.Store(true)
		return ErrBreakerOpen
	}

	if limit := cb.dailyLossLimitCents.Load(); limit > 0 {
		cb.rollDay()
		if cb.dailyPnlCents.Load() <= -limit {
			cb.halted.Store(true)
			return ErrBreakerOpen
		}
	}
	return nil
}

// OnSuccess 关键执行成功后清空连续错误计数。
func (cb *CircuitBreaker) OnSuccess() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Store(0)
}

// OnError 关键执行失败后累计连续错误。
func (cb *CircuitBreaker) OnError() {
	if cb == nil {
		return
	}
	cb.consecutiveErrors.Add(1)
}

// AddPnLCents 增量更新当日 PnL（分），负数为亏损。
func (cb *CircuitBreaker) AddPnLCents(delta int64) {
	if cb == nil {
		return
	}
	cb.rollDay()
	cb.dailyPnlCents.Add(delta)
}

// rollDay 跨天时清零当日 PnL。本地时间即可，风控用途不要求跨时区精确。
func (cb *CircuitBreaker) rollDay() {
	now := time.Now()
	key := int64(now.Year()*10000 + int(now.Month())*100 + now.Day())
	prev := cb.dayKey.Load()
	if prev == key {
		return
	}
	if cb.dayKey.CompareAndSwap(prev, key) {
		cb.dailyPnlCents.Store(0)
	}
}
