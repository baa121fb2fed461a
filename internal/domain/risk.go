package domain

// VaRMethod VaR 计算方法标签。"estimated" 表示历史数据不足时的保守估算，
// 调用方据此区分结果置信度；"none" 表示空组合。
type VaRMethod string

const (
	VaRMethodHistorical VaRMethod = "historical"
	VaRMethodParametric VaRMethod = "parametric"
	VaRMethodMonteCarlo VaRMethod = "monte_carlo"
	VaRMethodEstimated  VaRMethod = "estimated"
	VaRMethodNone       VaRMethod = "none"
)

// VaRResult 组合 VaR 计算结果（货币单位）。每次查询新建，不复用不修改。
type VaRResult struct {
	VaR95            float64             `json:"var_95"`
	VaR99            float64             `json:"var_99"`
	CVaR95           float64             `json:"cvar_95"`
	CVaR99           float64             `json:"cvar_99"`
	Method           VaRMethod           `json:"method"`
	TimeHorizonDays  int                 `json:"time_horizon_days"`
	ConfidenceLevels map[float64]float64 `json:"confidence_levels"` // 置信度 -> VaR
	TotalValue       float64             `json:"total_value"`
}

// StressScenario 压力场景：各 symbol 的价格冲击（小数，-0.20 表示跌 20%）。
type StressScenario map[string]float64

// StressResult 单个压力场景的损失。
type StressResult struct {
	Scenario    string         `json:"scenario"`
	Loss        float64        `json:"loss"`
	LossPercent float64        `json:"loss_percent"`
	Shocks      StressScenario `json:"shocks"`
}

// RiskContribution 单个持仓对组合 VaR 的边际贡献（去掉该持仓后的 VaR 差值）。
type RiskContribution struct {
	Symbol        string  `json:"symbol"`
	Absolute      float64 `json:"absolute_contribution"`
	Percentage    float64 `json:"percentage_contribution"`
	PositionValue float64 `json:"position_value"`
}

// RiskDecomposition 风险分解结果。
type RiskDecomposition struct {
	TotalVaR      float64                       `json:"total_var"`
	Contributions []RiskContribution            `json:"contributions"`
	Correlations  map[string]map[string]float64 `json:"correlation_matrix"`
}
