package domain

// MarketRegime 市场状态（趋势/震荡/剧烈波动/不确定），
// 用于仓位的确定性阻尼调整。
type MarketRegime string

const (
	RegimeTrending  MarketRegime = "trending"
	RegimeRanging   MarketRegime = "ranging"
	RegimeVolatile  MarketRegime = "volatile"
	RegimeUncertain MarketRegime = "uncertain"
)

// Confidence 建议置信度档位。
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// MarketConditions 仓位动态调整的输入。
type MarketConditions struct {
	Drawdown   float64      `json:"drawdown"`   // 当前回撤（小数）
	Volatility float64      `json:"volatility"` // 市场波动率（小数）
	Regime     MarketRegime `json:"regime"`
}

// KellyRecommendation 仓位建议。按需计算，计算完即快照。
type KellyRecommendation struct {
	KellyFraction       float64    `json:"kelly_fraction"`       // 基础凯利比例
	DampedFraction      float64    `json:"damped_fraction"`      // 动态阻尼后的比例
	RecommendedPosition float64    `json:"recommended_position"` // capital × dampedFraction
	ActualPosition      float64    `json:"actual_position"`      // 风险上限裁剪后（≤ capital）
	RiskOfRuin          float64    `json:"risk_of_ruin"`         // 模拟破产概率
	SimulatedOptimal    float64    `json:"simulated_optimal"`    // 蒙特卡洛最优比例
	AdjustmentFactor    float64    `json:"adjustment_factor"`    // 阻尼系数
	Confidence          Confidence `json:"confidence"`           // 建议置信度
	SampleSize          int        `json:"sample_size"`          // 使用的历史交易数
}
