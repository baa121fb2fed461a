package portfolio

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tradebot/riskcore/internal/domain"
	"github.com/tradebot/riskcore/pkg/riskmath"
)

var log = logrus.WithField("component", "portfolio")

// Config 组合风险引擎配置。构造后不可变。
type Config struct {
	Confidences   []float64 // 默认 [0.90, 0.95, 0.99]
	HorizonDays   int       // 默认 1
	MCSimulations int       // 蒙特卡洛模拟次数，默认 10000
	FallbackVol   float64   // 数据不足时假设的日波动率，默认 0.02
	MinSamples    int       // 最少样本数，默认 riskmath.MinSamples
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		Confidences:   []float64{0.90, 0.95, 0.99},
		HorizonDays:   1,
		MCSimulations: 10000,
		FallbackVol:   0.02,
		MinSamples:    riskmath.MinSamples,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if len(c.Confidences) == 0 {
		c.Confidences = d.Confidences
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = d.HorizonDays
	}
	if c.MCSimulations <= 0 {
		c.MCSimulations = d.MCSimulations
	}
	if c.FallbackVol <= 0 {
		c.FallbackVol = d.FallbackVol
	}
	if c.MinSamples <= 0 {
		c.MinSamples = d.MinSamples
	}
	return c
}

// Engine 组合风险引擎。对外方法只读共享数据，可被多个调用方并发使用；
// 蒙特卡洛的随机源内部加锁。
type Engine struct {
	cfg Config

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewEngine 创建组合风险引擎。rng 为空时使用固定种子（调用方注入可复现/真实随机源）。
func NewEngine(cfg Config, rng *rand.Rand) *Engine {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Engine{cfg: cfg.withDefaults(), rng: rng}
}

// ComputeVaR 计算组合 VaR。
//
// 流程：价格史 -> 各 symbol 收益率 -> 杠杆加权组合收益率（截断到最短序列）
// -> 按 method 计算各置信度 VaR + CVaR95/99 -> 乘以组合总价值换算为货币。
//
// 空持仓返回零结果（method=none）；组合收益率样本 < MinSamples 时
// 返回保守估算（method=estimated），不报错。
func (e *Engine) ComputeVaR(positions []domain.Position, priceHistory map[string][]float64, method domain.VaRMethod) (domain.VaRResult, error) {
	if len(positions) == 0 {
		return emptyResult(e.cfg.HorizonDays), nil
	}
	switch method {
	case domain.VaRMethodHistorical, domain.VaRMethodParametric, domain.VaRMethodMonteCarlo:
	default:
		return domain.VaRResult{}, fmt.Errorf("unknown var method: %q", method)
	}

	portfolioReturns := e.portfolioReturns(positions, priceHistory)
	totalValue := domain.TotalNotional(positions)

	if len(portfolioReturns) < e.cfg.MinSamples {
		log.Warnf("insufficient history (%d < %d), falling back to analytic estimate",
			len(portfolioReturns), e.cfg.MinSamples)
		return e.estimate(totalValue), nil
	}

	h := float64(e.cfg.HorizonDays)
	levels := make(map[float64]float64, len(e.cfg.Confidences))
	for _, conf := range e.cfg.Confidences {
		var v float64
		switch method {
		case domain.VaRMethodHistorical:
			v = riskmath.HistoricalVaR(portfolioReturns, conf, h)
		case domain.VaRMethodParametric:
			v = riskmath.ParametricVaR(portfolioReturns, conf, h)
		case domain.VaRMethodMonteCarlo:
			v = e.monteCarlo(portfolioReturns, conf, h)
		}
		levels[conf] = v * totalValue
	}

	cvar95 := riskmath.ConditionalVaR(portfolioReturns, 0.95) * totalValue
	cvar99 := riskmath.ConditionalVaR(portfolioReturns, 0.99) * totalValue

	return domain.VaRResult{
		VaR95:            levels[0.95],
		VaR99:            levels[0.99],
		CVaR95:           cvar95,
		CVaR99:           cvar99,
		Method:           method,
		TimeHorizonDays:  e.cfg.HorizonDays,
		ConfidenceLevels: levels,
		TotalValue:       totalValue,
	}, nil
}

func (e *Engine) monteCarlo(returns []float64, conf, horizon float64) float64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return riskmath.MonteCarloVaR(e.rng, returns, conf, horizon, e.cfg.MCSimulations)
}

// StressTest 对持仓施加各场景的价格冲击，返回每个场景的绝对/百分比损失。
// 空头持仓对冲击取反。
func (e *Engine) StressTest(positions []domain.Position, scenarios []domain.StressScenario) []domain.StressResult {
	totalValue := domain.TotalNotional(positions)
	results := make([]domain.StressResult, 0, len(scenarios))

	for i, scenario := range scenarios {
		var totalLoss float64
		for _, pos := range positions {
			shock, ok := scenario[pos.Symbol]
			if !ok {
				continue
			}
			loss := pos.MarketValue() * shock
			if pos.Direction == domain.DirectionShort {
				loss = -loss
			}
			totalLoss += loss
		}

		absLoss := abs(totalLoss)
		var pct float64
		if totalValue > 0 {
			pct = absLoss / totalValue
		}
		results = append(results, domain.StressResult{
			Scenario:    fmt.Sprintf("scenario_%d", i+1),
			Loss:        absLoss,
			LossPercent: pct,
			Shocks:      scenario,
		})
	}
	return results
}

// Decompose 风险分解：逐个剔除持仓重算 VaR，差值即该持仓的边际贡献；
// 另附 symbol 收益率相关性矩阵。某 symbol 价格史缺失只会把它排除出
// 相关性矩阵，不会中断整体计算。
func (e *Engine) Decompose(positions []domain.Position, priceHistory map[string][]float64) (domain.RiskDecomposition, error) {
	total, err := e.ComputeVaR(positions, priceHistory, domain.VaRMethodHistorical)
	if err != nil {
		return domain.RiskDecomposition{}, err
	}

	contributions := make([]domain.RiskContribution, 0, len(positions))
	for _, pos := range positions {
		others := make([]domain.Position, 0, len(positions)-1)
		for _, p := range positions {
			if p.Symbol != pos.Symbol {
				others = append(others, p)
			}
		}

		var contribution float64
		if len(others) > 0 {
			without, err := e.ComputeVaR(others, priceHistory, domain.VaRMethodHistorical)
			if err != nil {
				return domain.RiskDecomposition{}, err
			}
			contribution = total.VaR95 - without.VaR95
		} else {
			contribution = total.VaR95
		}

		var pct float64
		if total.VaR95 > 0 {
			pct = contribution / total.VaR95
		}
		contributions = append(contributions, domain.RiskContribution{
			Symbol:        pos.Symbol,
			Absolute:      contribution,
			Percentage:    pct,
			PositionValue: pos.NotionalValue(),
		})
	}

	return domain.RiskDecomposition{
		TotalVaR:      total.VaR95,
		Contributions: contributions,
		Correlations:  CorrelationMatrix(priceHistory),
	}, nil
}

// MarginalVaR 新增一个持仓对组合 95% VaR 的影响。
func (e *Engine) MarginalVaR(positions []domain.Position, priceHistory map[string][]float64, candidate domain.Position) (float64, error) {
	current, err := e.ComputeVaR(positions, priceHistory, domain.VaRMethodHistorical)
	if err != nil {
		return 0, err
	}
	with, err := e.ComputeVaR(append(append([]domain.Position(nil), positions...), candidate), priceHistory, domain.VaRMethodHistorical)
	if err != nil {
		return 0, err
	}
	return with.VaR95 - current.VaR95, nil
}

// IncrementalVaR 仓位数量变化（symbol -> 数量增量）对组合 95% VaR 的影响。
func (e *Engine) IncrementalVaR(positions []domain.Position, priceHistory map[string][]float64, changes map[string]float64) (float64, error) {
	current, err := e.ComputeVaR(positions, priceHistory, domain.VaRMethodHistorical)
	if err != nil {
		return 0, err
	}

	updated := make([]domain.Position, len(positions))
	for i, pos := range positions {
		pos.Quantity += changes[pos.Symbol]
		updated[i] = pos
	}
	next, err := e.ComputeVaR(updated, priceHistory, domain.VaRMethodHistorical)
	if err != nil {
		return 0, err
	}
	return next.VaR95 - current.VaR95, nil
}

// CorrelationMatrix symbol 两两收益率相关性。收益率序列不足 2 个点的 symbol 被排除。
func CorrelationMatrix(priceHistory map[string][]float64) map[string]map[string]float64 {
	returns := make(map[string][]float64, len(priceHistory))
	symbols := make([]string, 0, len(priceHistory))
	for symbol, prices := range priceHistory {
		r := riskmath.ReturnsFromPrices(prices)
		if len(r) < 2 {
			continue
		}
		returns[symbol] = r
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	matrix := make(map[string]map[string]float64, len(symbols))
	for _, a := range symbols {
		row := make(map[string]float64, len(symbols))
		for _, b := range symbols {
			if a == b {
				row[b] = 1
				continue
			}
			row[b] = riskmath.Correlation(returns[a], returns[b])
		}
		matrix[a] = row
	}
	return matrix
}

// portfolioReturns 组合收益率：各 symbol 收益率按 (持仓价值/总价值)×杠杆 加权求和，
// 截断到最短序列。
func (e *Engine) portfolioReturns(positions []domain.Position, priceHistory map[string][]float64) []float64 {
	if len(priceHistory) == 0 {
		return nil
	}

	returns := make(map[string][]float64, len(priceHistory))
	minLen := -1
	for symbol, prices := range priceHistory {
		r := riskmath.ReturnsFromPrices(prices)
		if len(r) == 0 {
			continue
		}
		returns[symbol] = r
		if minLen < 0 || len(r) < minLen {
			minLen = len(r)
		}
	}
	if len(returns) == 0 || minLen <= 0 {
		return nil
	}

	totalValue := domain.TotalNotional(positions)
	if totalValue <= 0 {
		return nil
	}

	portfolio := make([]float64, minLen)
	for _, pos := range positions {
		r, ok := returns[pos.Symbol]
		if !ok {
			continue
		}
		lev := pos.Leverage
		if lev <= 0 {
			lev = 1
		}
		weight := pos.NotionalValue() / totalValue * lev
		for i := 0; i < minLen; i++ {
			portfolio[i] += weight * r[i]
		}
	}
	return portfolio
}

// estimate 数据不足时的保守估算：假设 FallbackVol 日波动率，
// 正态 z 值 1.65/2.33（CVaR 取 2.06/2.67）。
func (e *Engine) estimate(totalValue float64) domain.VaRResult {
	vol := e.cfg.FallbackVol
	return domain.VaRResult{
		VaR95:           totalValue * vol * 1.65,
		VaR99:           totalValue * vol * 2.33,
		CVaR95:          totalValue * vol * 2.06,
		CVaR99:          totalValue * vol * 2.67,
		Method:          domain.VaRMethodEstimated,
		TimeHorizonDays: e.cfg.HorizonDays,
		ConfidenceLevels: map[float64]float64{
			0.95: totalValue * vol * 1.65,
			0.99: totalValue * vol * 2.33,
		},
		TotalValue: totalValue,
	}
}

func emptyResult(horizonDays int) domain.VaRResult {
	return domain.VaRResult{
		Method:          domain.VaRMethodNone,
		TimeHorizonDays: horizonDays,
		ConfidenceLevels: map[float64]float64{
			0.95: 0,
			0.99: 0,
		},
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
