package domain

import "time"

// TradeRecord 已平仓交易记录，凯利引擎和资金限额检查的输入。
type TradeRecord struct {
	ID         int64     `json:"id,omitempty"`
	Symbol     string    `json:"symbol"`
	PnL        float64   `json:"pnl"`         // 绝对盈亏（货币）
	PnLPercent float64   `json:"pnl_percent"` // 相对账户的盈亏比例
	OpenedAt   time.Time `json:"opened_at"`
	ClosedAt   time.Time `json:"closed_at"`
}
