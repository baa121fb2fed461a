package riskgate

import "github.com/tradebot/riskcore/internal/domain"

// 组件风险评分：0-10 分的确定性档位查表，分数越高风险越大。
// 与闸门的 0-100 安全评分方向相反，仅用于预警和评估报告。

// VolatilityScore 波动率风险档位（年化波动率）。
func VolatilityScore(volatility float64) float64 {
	switch {
	case volatility < 0.2:
		return 2
	case volatility < 0.5:
		return 5
	case volatility < 1.0:
		return 7
	default:
		return 9
	}
}

// LiquidityScore 流动性风险档位。depth 为订单簿深度比例（0-1），
// volume 为日成交额。
func LiquidityScore(depth, volume float64) float64 {
	switch {
	case volume > 1_000_000 && depth > 0.8:
		return 2
	case volume > 500_000 && depth > 0.5:
		return 5
	case volume > 100_000 && depth > 0.3:
		return 7
	default:
		return 9
	}
}

// PortfolioHHI 持仓集中度 HHI 指数（价值占比平方和），空组合为 0。
func PortfolioHHI(positions []domain.Position) float64 {
	total := domain.TotalNotional(positions)
	if total <= 0 {
		return 0
	}
	var hhi float64
	for _, p := range positions {
		w := p.NotionalValue() / total
		hhi += w * w
	}
	return hhi
}

// ConcentrationScore 集中度风险档位（HHI）。
func ConcentrationScore(hhi float64) float64 {
	if hhi <= 0 {
		return 0
	}
	switch {
	case hhi < 0.15:
		return 3
	case hhi < 0.25:
		return 5
	case hhi < 0.35:
		return 7
	default:
		return 9
	}
}

// LeverageScore 杠杆风险档位。
func LeverageScore(leverage float64) float64 {
	switch {
	case leverage <= 1:
		return 1
	case leverage <= 3:
		return 3
	case leverage <= 5:
		return 5
	case leverage <= 10:
		return 7
	default:
		return 10
	}
}

// ScoreLevel 组件评分的风险等级。
func ScoreLevel(score float64) string {
	switch {
	case score < 3:
		return "LOW"
	case score < 6:
		return "MEDIUM"
	case score < 8:
		return "HIGH"
	default:
		return "CRITICAL"
	}
}

// Assessment 组合风险评估报告。
type Assessment struct {
	Score      float64            `json:"score"` // 0-10 加权
	Level      string             `json:"level"`
	Components map[string]float64 `json:"components"`
}

// Assess 市场 + 持仓的加权风险评估：
// 波动率 0.3、流动性 0.25、集中度 0.25、杠杆 0.2。
func Assess(positions []domain.Position, snapshot domain.MarketSnapshot, volume, leverage float64) Assessment {
	snapshot = snapshot.Normalize()

	vol := VolatilityScore(snapshot.Volatility)
	// 深度按 1M 名义额归一化到 0-1。
	liq := LiquidityScore(min1(snapshot.Liquidity/1_000_000), volume)
	conc := ConcentrationScore(PortfolioHHI(positions))
	lev := LeverageScore(leverage)

	score := vol*0.3 + liq*0.25 + conc*0.25 + lev*0.2
	return Assessment{
		Score: score,
		Level: ScoreLevel(score),
		Components: map[string]float64{
			"volatility":    vol,
			"liquidity":     liq,
			"concentration": conc,
			"leverage":      lev,
		},
	}
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
