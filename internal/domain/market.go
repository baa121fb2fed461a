package domain

// Trend 市场趋势强度（来自上游行情采集方的快照）。
type Trend string

const (
	TrendNeutral Trend = "neutral"
	TrendWeak    Trend = "weak"
	TrendStrong  Trend = "strong"
)

// MarketSnapshot 下单时刻的市场快照。
// 由上游数据采集方提供，核心只在生成执行计划时读取一次。
type MarketSnapshot struct {
	Liquidity     float64   `json:"liquidity"`      // 可用流动性（名义额）
	Volatility    float64   `json:"volatility"`     // 日波动率（小数）
	Spread        float64   `json:"spread"`         // 买卖价差（小数）
	Trend         Trend     `json:"trend"`          // 趋势强度
	VolumeProfile []float64 `json:"volume_profile"` // VWAP 用的历史成交量分布（可选）
}

// Normalize 填充缺省值：流动性/波动率缺失时使用保守假设。
func (m MarketSnapshot) Normalize() MarketSnapshot {
	if m.Liquidity <= 0 {
		m.Liquidity = 1_000_000
	}
	if m.Volatility <= 0 {
		m.Volatility = 0.01
	}
	if m.Spread <= 0 {
		m.Spread = 0.001
	}
	if m.Trend == "" {
		m.Trend = TrendNeutral
	}
	return m
}
