package sizing

import (
	"math/rand"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tradebot/riskcore/internal/domain"
)

var log = logrus.WithField("component", "sizing")

// Config 凯利计算参数。构造后不再修改。
type Config struct {
	MaxFraction   float64 // 凯利比例上限（通常取 1/4 凯利）
	MinFraction   float64 // 凯利比例下限
	RuinThreshold float64 // 破产线：相对初始资金的比例
	MaxRiskOfRuin float64 // 可接受的最大破产概率
	GridSteps     int     // 蒙特卡洛候选比例网格数
	Simulations   int     // 每个候选比例的模拟路径数
	RiskPerTrade  float64 // 单笔最大风险（资金比例）
}

// DefaultConfig 返回默认参数。
func DefaultConfig() Config {
	return Config{
		MaxFraction:   0.25,
		MinFraction:   0.01,
		RuinThreshold: 0.5,
		MaxRiskOfRuin: 0.05,
		GridSteps:     50,
		Simulations:   1000,
		RiskPerTrade:  0.02,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxFraction <= 0 {
		c.MaxFraction = d.MaxFraction
	}
	if c.MinFraction <= 0 {
		c.MinFraction = d.MinFraction
	}
	if c.RuinThreshold <= 0 {
		c.RuinThreshold = d.RuinThreshold
	}
	if c.MaxRiskOfRuin <= 0 {
		c.MaxRiskOfRuin = d.MaxRiskOfRuin
	}
	if c.GridSteps <= 0 {
		c.GridSteps = d.GridSteps
	}
	if c.Simulations <= 0 {
		c.Simulations = d.Simulations
	}
	if c.RiskPerTrade <= 0 {
		c.RiskPerTrade = d.RiskPerTrade
	}
	return c
}

// Calculator 凯利公式仓位计算器。并发安全：随机数源由互斥锁保护，
// 其余方法均为纯函数。
type Calculator struct {
	cfg Config

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewCalculator 创建计算器。rng 为 nil 时使用固定种子，方便复现。
func NewCalculator(cfg Config, rng *rand.Rand) *Calculator {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Calculator{cfg: cfg.withDefaults(), rng: rng}
}

// Fraction 基础凯利公式 f = p - q/b。无效输入返回 0 而不是报错，
// 结果裁剪到 [0, MaxFraction]。
func (c *Calculator) Fraction(winRate, winLossRatio float64) float64 {
	if winRate <= 0 || winRate >= 1 {
		log.Warnf("invalid win rate: %v", winRate)
		return 0
	}
	if winLossRatio <= 0 {
		log.Warnf("invalid win/loss ratio: %v", winLossRatio)
		return 0
	}

	f := winRate - (1-winRate)/winLossRatio
	if f < 0 {
		return 0
	}
	if f > c.cfg.MaxFraction {
		return c.cfg.MaxFraction
	}
	return f
}

// PositionSize 仓位大小。Actual 同时受 MaxAllowed 和本金上限约束。
type PositionSize struct {
	Recommended float64 `json:"recommended"`
	MaxAllowed  float64 `json:"max_allowed"`
	Actual      float64 `json:"actual"`
	Percent     float64 `json:"percent"`
}

// PositionSize 按凯利比例换算实际仓位。单笔风险上限按 33% 止损折算，
// 即允许仓位为 capital × riskPerTrade × 3。
func (c *Calculator) PositionSize(capital, fraction float64) PositionSize {
	if capital <= 0 || fraction <= 0 {
		return PositionSize{}
	}

	recommended := capital * fraction
	maxAllowed := capital * c.cfg.RiskPerTrade * 3

	actual := recommended
	if actual > maxAllowed {
		actual = maxAllowed
	}
	if actual > capital {
		actual = capital
	}

	return PositionSize{
		Recommended: recommended,
		MaxAllowed:  maxAllowed,
		Actual:      actual,
		Percent:     actual / capital,
	}
}

// DynamicAdjustment 确定性阻尼系数，范围 [0.1, 1.5]。
// 回撤和波动率越高系数越小；市场状态按固定倍数调整。
func (c *Calculator) DynamicAdjustment(drawdown, volatility float64, regime domain.MarketRegime) float64 {
	adj := 1.0

	switch {
	case drawdown > 0.20:
		adj *= 0.3
	case drawdown > 0.10:
		adj *= 0.5
	case drawdown > 0.05:
		adj *= 0.75
	}

	switch {
	case volatility > 0.30:
		adj *= 0.5
	case volatility > 0.20:
		adj *= 0.75
	case volatility < 0.10:
		adj *= 1.25
	}

	switch regime {
	case domain.RegimeTrending:
		adj *= 1.2
	case domain.RegimeRanging:
		adj *= 0.8
	case domain.RegimeVolatile:
		adj *= 0.5
	case domain.RegimeUncertain:
		adj *= 0.6
	}

	if adj < 0.1 {
		adj = 0.1
	}
	if adj > 1.5 {
		adj = 1.5
	}
	return adj
}

// Recommend 综合仓位建议：基础凯利 + 蒙特卡洛寻优 + 动态阻尼，
// 最后折算成实际仓位。每次调用独立计算，不保留内部状态。
func (c *Calculator) Recommend(capital float64, trades []domain.TradeRecord, cond domain.MarketConditions) domain.KellyRecommendation {
	stats := ComputeTradeStats(trades)

	base := c.Fraction(stats.WinRate, stats.WinLossRatio())
	optimal, riskOfRuin := c.OptimalFraction(trades)

	adjustment := c.DynamicAdjustment(cond.Drawdown, cond.Volatility, cond.Regime)
	damped := optimal * adjustment
	if damped > c.cfg.MaxFraction {
		damped = c.cfg.MaxFraction
	}

	pos := c.PositionSize(capital, damped)

	log.Debugf("recommend: base=%.4f optimal=%.4f adjustment=%.2f damped=%.4f",
		base, optimal, adjustment, damped)

	return domain.KellyRecommendation{
		KellyFraction:       base,
		DampedFraction:      damped,
		RecommendedPosition: pos.Recommended,
		ActualPosition:      pos.Actual,
		RiskOfRuin:          riskOfRuin,
		SimulatedOptimal:    optimal,
		AdjustmentFactor:    adjustment,
		Confidence:          c.confidence(stats, damped),
		SampleSize:          len(trades),
	}
}

// confidence 置信度分档：样本不足直接 LOW。
func (c *Calculator) confidence(stats TradeStats, kelly float64) domain.Confidence {
	if stats.Count < 20 {
		return domain.ConfidenceLow
	}
	if stats.SharpeRatio > 1.5 && stats.WinRate > 0.55 && kelly > 0.05 {
		return domain.ConfidenceHigh
	}
	if stats.SharpeRatio > 1.0 && stats.WinRate > 0.50 {
		return domain.ConfidenceMedium
	}
	return domain.ConfidenceLow
}
