package sizing

import (
	"sort"

	"github.com/tradebot/riskcore/internal/domain"
)

// minTradesForSimulation 低于该样本数不做自助法模拟。
const minTradesForSimulation = 10

// OptimalFraction 蒙特卡洛寻优：在 [MinFraction, MaxFraction] 网格上，
// 对每个候选比例以有放回抽样重建收益序列并复利推演，选出破产概率
// 不超过 MaxRiskOfRuin 且终值中位数最大的比例，再按交易统计质量缩放。
// 没有候选满足破产约束时退回破产概率最小的那个。
// 返回 (最优比例, 该比例的破产概率)。样本不足时返回基础凯利，破产概率记 1。
func (c *Calculator) OptimalFraction(trades []domain.TradeRecord) (float64, float64) {
	stats := ComputeTradeStats(trades)
	base := c.Fraction(stats.WinRate, stats.WinLossRatio())

	if len(trades) < minTradesForSimulation {
		log.Warnf("only %d trades, skipping simulation", len(trades))
		return base, 1.0
	}

	returns := make([]float64, len(trades))
	for i, t := range trades {
		returns[i] = t.PnLPercent
	}

	type candidate struct {
		fraction   float64
		median     float64
		riskOfRuin float64
	}

	steps := c.cfg.GridSteps
	span := c.cfg.MaxFraction - c.cfg.MinFraction
	candidates := make([]candidate, 0, steps)

	c.rngMu.Lock()
	for i := 0; i < steps; i++ {
		f := c.cfg.MinFraction
		if steps > 1 {
			f += span * float64(i) / float64(steps-1)
		}

		terminals := make([]float64, c.cfg.Simulations)
		ruined := 0
		for s := 0; s < c.cfg.Simulations; s++ {
			equity := 1.0
			for range returns {
				r := returns[c.rng.Intn(len(returns))]
				equity *= 1 + f*r
				if equity <= c.cfg.RuinThreshold {
					equity = 0
					ruined++
					break
				}
			}
			terminals[s] = equity
		}

		sort.Float64s(terminals)
		candidates = append(candidates, candidate{
			fraction:   f,
			median:     terminals[len(terminals)/2],
			riskOfRuin: float64(ruined) / float64(c.cfg.Simulations),
		})
	}
	c.rngMu.Unlock()

	best := candidate{fraction: -1}
	for _, cand := range candidates {
		if cand.riskOfRuin > c.cfg.MaxRiskOfRuin {
			continue
		}
		if best.fraction < 0 || cand.median > best.median {
			best = cand
		}
	}
	if best.fraction < 0 {
		// 全部超出破产约束，取破产概率最小的。
		best = candidates[0]
		for _, cand := range candidates[1:] {
			if cand.riskOfRuin < best.riskOfRuin {
				best = cand
			}
		}
	}

	return c.adjustForStats(best.fraction, stats), best.riskOfRuin
}
