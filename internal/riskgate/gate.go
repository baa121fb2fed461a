package riskgate

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tradebot/riskcore/internal/domain"
	"github.com/tradebot/riskcore/internal/metrics"
)

var log = logrus.WithField("component", "riskgate")

// Config 风控闸门限额。
type Config struct {
	MaxPositionConcentration float64 // 单笔仓位占资金比例上限
	MaxLeverage              float64 // 杠杆上限
	DailyLossRatio           float64 // 日亏损比例，达到即禁止开仓
	DailyLossWarnRatio       float64 // 日亏损预警比例
	WeeklyLossRatio          float64 // 周亏损比例，达到即禁止开仓（强制减仓）
	WeeklyLossWarnRatio      float64 // 周亏损预警比例（策略审查）
	MonthlyLossRatio         float64 // 月亏损红线，达到即全面停止
	MonthlyLossWarnRatio     float64 // 月亏损熔断预警比例
	MaxTradesPerDay          int     // 日交易次数上限
	TradesWarnThreshold      int     // 交易次数预警阈值
}

// DefaultConfig 默认限额。
func DefaultConfig() Config {
	return Config{
		MaxPositionConcentration: 0.3,
		MaxLeverage:              5,
		DailyLossRatio:           0.10,
		DailyLossWarnRatio:       0.07,
		WeeklyLossRatio:          0.20,
		WeeklyLossWarnRatio:      0.15,
		MonthlyLossRatio:         0.40,
		MonthlyLossWarnRatio:     0.30,
		MaxTradesPerDay:          10,
		TradesWarnThreshold:      8,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxPositionConcentration <= 0 {
		c.MaxPositionConcentration = d.MaxPositionConcentration
	}
	if c.MaxLeverage <= 0 {
		c.MaxLeverage = d.MaxLeverage
	}
	if c.DailyLossRatio <= 0 {
		c.DailyLossRatio = d.DailyLossRatio
	}
	if c.DailyLossWarnRatio <= 0 {
		c.DailyLossWarnRatio = d.DailyLossWarnRatio
	}
	if c.WeeklyLossRatio <= 0 {
		c.WeeklyLossRatio = d.WeeklyLossRatio
	}
	if c.WeeklyLossWarnRatio <= 0 {
		c.WeeklyLossWarnRatio = d.WeeklyLossWarnRatio
	}
	if c.MonthlyLossRatio <= 0 {
		c.MonthlyLossRatio = d.MonthlyLossRatio
	}
	if c.MonthlyLossWarnRatio <= 0 {
		c.MonthlyLossWarnRatio = d.MonthlyLossWarnRatio
	}
	if c.MaxTradesPerDay <= 0 {
		c.MaxTradesPerDay = d.MaxTradesPerDay
	}
	if c.TradesWarnThreshold <= 0 {
		c.TradesWarnThreshold = d.TradesWarnThreshold
	}
	return c
}

// ProposedTrade 待检查的开仓意向。
type ProposedTrade struct {
	Symbol   string  `json:"symbol"`
	Amount   float64 `json:"amount"`
	Price    float64 `json:"price"`
	Leverage float64 `json:"leverage"`
}

// Value 仓位名义价值。
func (p ProposedTrade) Value() float64 { return p.Amount * p.Price }

// CheckResult 单项检查结果。
type CheckResult struct {
	Passed bool    `json:"passed"`
	Value  float64 `json:"value,omitempty"`
	Limit  float64 `json:"limit,omitempty"`
	Detail string  `json:"detail,omitempty"`
}

// RiskLevel 综合风险等级。
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "LOW"
	RiskLevelMedium RiskLevel = "MEDIUM"
	RiskLevelHigh   RiskLevel = "HIGH"
)

// Decision 风控决策。限额不通过不产生 error：结果通过字段表达，
// 调用方拿到完整判定而不是一个被吞掉细节的错误。
type Decision struct {
	Timestamp    time.Time              `json:"timestamp"`
	CanTrade     bool                   `json:"can_trade"`
	RiskScore    int                    `json:"risk_score"` // 0-100，越高越安全
	RiskLevel    RiskLevel              `json:"risk_level"`
	Checks       map[string]CheckResult `json:"checks"`
	Warnings     []string               `json:"warnings"`
	Restrictions []string               `json:"restrictions"`
}

// Gate 风控闸门。所有检查全部执行完才返回，不短路，
// 保证 Decision.Checks 完整。本身无可变状态（熔断器除外），并发安全。
type Gate struct {
	cfg     Config
	breaker *CircuitBreaker
	clock   func() time.Time
}

// NewGate 创建闸门。breaker 可为 nil（不启用手动/连续错误熔断）。
func NewGate(cfg Config, breaker *CircuitBreaker) *Gate {
	return &Gate{cfg: cfg.withDefaults(), breaker: breaker, clock: time.Now}
}

// Breaker 返回闸门使用的熔断器（可能为 nil）。
func (g *Gate) Breaker() *CircuitBreaker { return g.breaker }

// Evaluate 综合风控检查。每项检查独立运行并记录，最终汇总 CanTrade、
// 0-100 风险评分（通过日限额 / 集中度≤0.2 / 杠杆≤3 / VaR 余量各 25 分）
// 和风险等级。
func (g *Gate) Evaluate(proposed ProposedTrade, positions []domain.Position, account domain.AccountState) Decision {
	metrics.RiskChecks.Add(1)

	d := Decision{
		Timestamp:    g.clock(),
		CanTrade:     true,
		Checks:       make(map[string]CheckResult),
		Warnings:     []string{},
		Restrictions: []string{},
	}

	block := func(restriction string) {
		d.CanTrade = false
		d.Restrictions = append(d.Restrictions, restriction)
	}

	// 熔断器
	if g.breaker != nil {
		if err := g.breaker.Allow(); err != nil {
			block("circuit breaker open")
			d.Checks["circuit_breaker"] = CheckResult{Passed: false, Detail: err.Error()}
		} else {
			d.Checks["circuit_breaker"] = CheckResult{Passed: true}
		}
	}

	// 日限额：亏损比例 + 交易次数
	dailyOK := true
	if account.Capital > 0 && account.DailyPnL < 0 {
		ratio := -account.DailyPnL / account.Capital
		check := CheckResult{Passed: true, Value: ratio, Limit: g.cfg.DailyLossRatio}
		if ratio >= g.cfg.DailyLossRatio {
			dailyOK = false
			check.Passed = false
			check.Detail = "daily loss limit reached"
			block(fmt.Sprintf("daily loss %.1f%% reached limit, trading halted", ratio*100))
		} else if ratio >= g.cfg.DailyLossWarnRatio {
			d.Warnings = append(d.Warnings, fmt.Sprintf("daily loss %.1f%% approaching limit", ratio*100))
		}
		d.Checks["daily_loss"] = check
	} else {
		d.Checks["daily_loss"] = CheckResult{Passed: true, Limit: g.cfg.DailyLossRatio}
	}

	if account.TradesToday >= g.cfg.MaxTradesPerDay {
		dailyOK = false
		block(fmt.Sprintf("daily trade count limit reached (%d)", g.cfg.MaxTradesPerDay))
		d.Checks["trade_count"] = CheckResult{
			Passed: false,
			Value:  float64(account.TradesToday),
			Limit:  float64(g.cfg.MaxTradesPerDay),
		}
	} else {
		if account.TradesToday >= g.cfg.TradesWarnThreshold {
			d.Warnings = append(d.Warnings, fmt.Sprintf("approaching daily trade limit: %d/%d",
				account.TradesToday, g.cfg.MaxTradesPerDay))
		}
		d.Checks["trade_count"] = CheckResult{
			Passed: true,
			Value:  float64(account.TradesToday),
			Limit:  float64(g.cfg.MaxTradesPerDay),
		}
	}

	// 周/月限额
	if account.Capital > 0 && account.WeeklyPnL < 0 {
		ratio := -account.WeeklyPnL / account.Capital
		check := CheckResult{Passed: true, Value: ratio, Limit: g.cfg.WeeklyLossRatio}
		if ratio >= g.cfg.WeeklyLossRatio {
			check.Passed = false
			check.Detail = "weekly loss forces position reduction"
			block(fmt.Sprintf("weekly loss %.1f%% reached limit, reduce positions", ratio*100))
		} else if ratio >= g.cfg.WeeklyLossWarnRatio {
			d.Warnings = append(d.Warnings, "weekly loss triggers strategy review")
		}
		d.Checks["weekly_loss"] = check
	} else {
		d.Checks["weekly_loss"] = CheckResult{Passed: true, Limit: g.cfg.WeeklyLossRatio}
	}

	if account.Capital > 0 && account.MonthlyPnL < 0 {
		ratio := -account.MonthlyPnL / account.Capital
		check := CheckResult{Passed: true, Value: ratio, Limit: g.cfg.MonthlyLossRatio}
		if ratio >= g.cfg.MonthlyLossRatio {
			check.Passed = false
			check.Detail = "monthly loss red line"
			block(fmt.Sprintf("monthly loss %.1f%% reached absolute stop", ratio*100))
		} else if ratio >= g.cfg.MonthlyLossWarnRatio {
			d.Warnings = append(d.Warnings, fmt.Sprintf("monthly loss %.1f%% triggers circuit breaker review", ratio*100))
		}
		d.Checks["monthly_loss"] = check
	} else {
		d.Checks["monthly_loss"] = CheckResult{Passed: true, Limit: g.cfg.MonthlyLossRatio}
	}

	// 仓位集中度
	var concentration float64
	if proposed.Value() > 0 && account.Capital > 0 {
		concentration = proposed.Value() / account.Capital
		check := CheckResult{Passed: true, Value: concentration, Limit: g.cfg.MaxPositionConcentration}
		if concentration > g.cfg.MaxPositionConcentration {
			check.Passed = false
			block(fmt.Sprintf("position concentration %.1f%% exceeds limit", concentration*100))
		}
		d.Checks["concentration"] = check
	} else {
		d.Checks["concentration"] = CheckResult{Passed: true, Limit: g.cfg.MaxPositionConcentration}
	}

	// 杠杆
	leverage := proposed.Leverage
	if leverage <= 0 {
		leverage = 1
	}
	levCheck := CheckResult{Passed: true, Value: leverage, Limit: g.cfg.MaxLeverage}
	if leverage > g.cfg.MaxLeverage {
		levCheck.Passed = false
		block(fmt.Sprintf("leverage %.1fx exceeds limit %.0fx", leverage, g.cfg.MaxLeverage))
	}
	d.Checks["leverage"] = levCheck

	// VaR 预算（预算未配置时不启用）
	varHeadroom := true
	if account.VaRBudget > 0 {
		remaining := account.VaRRemaining()
		check := CheckResult{Passed: true, Value: remaining, Limit: account.VaRBudget}
		if remaining <= 0 {
			varHeadroom = false
			check.Passed = false
			block("var budget exhausted")
		}
		d.Checks["var_budget"] = check
	} else {
		d.Checks["var_budget"] = CheckResult{Passed: true}
	}

	// 组合层面的集中度/杠杆预警（不影响 CanTrade）
	if hhi := PortfolioHHI(positions); ConcentrationScore(hhi) >= 7 {
		d.Warnings = append(d.Warnings, fmt.Sprintf("portfolio concentration high (hhi %.2f)", hhi))
	}
	if LeverageScore(leverage) >= 7 {
		d.Warnings = append(d.Warnings, fmt.Sprintf("leverage %.1fx in high risk band", leverage))
	}

	// 综合评分
	score := 0
	if dailyOK {
		score += 25
	}
	if concentration <= 0.2 {
		score += 25
	}
	if leverage <= 3 {
		score += 25
	}
	if varHeadroom {
		score += 25
	}
	d.RiskScore = score
	switch {
	case score >= 75:
		d.RiskLevel = RiskLevelLow
	case score >= 50:
		d.RiskLevel = RiskLevelMedium
	default:
		d.RiskLevel = RiskLevelHigh
	}

	if !d.CanTrade {
		metrics.RiskBlocked.Add(1)
		log.WithFields(logrus.Fields{
			"symbol":       proposed.Symbol,
			"restrictions": d.Restrictions,
			"risk_score":   d.RiskScore,
		}).Warn("trade blocked")
	}
	return d
}
