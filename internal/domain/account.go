package domain

// AccountState 账户状态（由调用方/资金管理侧维护，风控闸门只读）。
type AccountState struct {
	Capital     float64 `json:"capital"`      // 当前资金
	DailyPnL    float64 `json:"daily_pnl"`    // 当日盈亏（亏损为负）
	WeeklyPnL   float64 `json:"weekly_pnl"`   // 本周盈亏
	MonthlyPnL  float64 `json:"monthly_pnl"`  // 本月盈亏
	TradesToday int     `json:"trades_today"` // 当日已交易次数
	VaRBudget   float64 `json:"var_budget"`   // 允许占用的 VaR 预算（货币）
	VaRUsed     float64 `json:"var_used"`     // 已占用 VaR
}

// VaRRemaining 剩余 VaR 预算（预算未配置时返回 0，表示不启用该检查）。
func (a AccountState) VaRRemaining() float64 {
	if a.VaRBudget <= 0 {
		return 0
	}
	r := a.VaRBudget - a.VaRUsed
	if r < 0 {
		return 0
	}
	return r
}
