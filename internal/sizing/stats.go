package sizing

import (
	"math"

	"github.com/tradebot/riskcore/internal/domain"
	"github.com/tradebot/riskcore/pkg/riskmath"
)

// TradeStats 历史交易的统计摘要。
type TradeStats struct {
	WinRate     float64 `json:"win_rate"`
	AvgWin      float64 `json:"avg_win"`
	AvgLoss     float64 `json:"avg_loss"` // 负数
	SharpeRatio float64 `json:"sharpe_ratio"`
	MaxDrawdown float64 `json:"max_drawdown"`
	Count       int     `json:"count"`
}

// WinLossRatio 盈亏比 |avgWin/avgLoss|。无亏损样本时返回 0。
func (s TradeStats) WinLossRatio() float64 {
	if s.AvgLoss == 0 {
		return 0
	}
	return math.Abs(s.AvgWin / s.AvgLoss)
}

// ComputeTradeStats 从平仓记录计算统计摘要。夏普按日收益年化（×√252），
// 最大回撤基于 pnl_percent 复利曲线。
func ComputeTradeStats(trades []domain.TradeRecord) TradeStats {
	if len(trades) == 0 {
		return TradeStats{}
	}

	var wins, losses []float64
	returns := make([]float64, 0, len(trades))
	for _, t := range trades {
		if t.PnL > 0 {
			wins = append(wins, t.PnL)
		} else if t.PnL < 0 {
			losses = append(losses, t.PnL)
		}
		returns = append(returns, t.PnLPercent)
	}

	stats := TradeStats{
		WinRate: float64(len(wins)) / float64(len(trades)),
		AvgWin:  riskmath.Mean(wins),
		AvgLoss: riskmath.Mean(losses),
		Count:   len(trades),
	}

	if sd := riskmath.StdDev(returns); sd > 0 {
		stats.SharpeRatio = riskmath.Mean(returns) / sd * math.Sqrt(252)
	}
	stats.MaxDrawdown = maxDrawdown(returns)
	return stats
}

// maxDrawdown 复利权益曲线的最大回撤（正数小数）。
func maxDrawdown(returns []float64) float64 {
	equity := 1.0
	peak := 1.0
	var worst float64
	for _, r := range returns {
		equity *= 1 + r
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// adjustForStats 按统计质量缩放基础凯利：夏普低、回撤大、样本少都会
// 压缩比例，结果裁剪到 [MinFraction, MaxFraction]。
func (c *Calculator) adjustForStats(base float64, stats TradeStats) float64 {
	adjusted := base

	switch {
	case stats.SharpeRatio < 0.5:
		adjusted *= 0.5
	case stats.SharpeRatio < 1.0:
		adjusted *= 0.75
	case stats.SharpeRatio > 2.0:
		adjusted *= 1.25
	}

	switch {
	case stats.MaxDrawdown > 0.30:
		adjusted *= 0.3
	case stats.MaxDrawdown > 0.20:
		adjusted *= 0.5
	case stats.MaxDrawdown > 0.10:
		adjusted *= 0.75
	}

	switch {
	case stats.Count < 30:
		adjusted *= 0.5
	case stats.Count < 50:
		adjusted *= 0.75
	case stats.Count > 100:
		adjusted *= 1.1
	}

	if adjusted < c.cfg.MinFraction {
		adjusted = c.cfg.MinFraction
	}
	if adjusted > c.cfg.MaxFraction {
		adjusted = c.cfg.MaxFraction
	}
	return adjusted
}
