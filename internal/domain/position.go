package domain

// Direction 持仓方向
type Direction string

const (
	DirectionLong  Direction = "long"  // 多头
	DirectionShort Direction = "short" // 空头
)

// Position 持仓信息（由调用方持有，核心只读）
type Position struct {
	Symbol       string    `json:"symbol"`
	Quantity     float64   `json:"quantity"`
	EntryPrice   float64   `json:"entry_price"`
	CurrentPrice float64   `json:"current_price"`
	Leverage     float64   `json:"leverage"`
	Direction    Direction `json:"direction"`
}

// MarketValue 持仓名义价值（数量 × 现价 × 杠杆），不带方向符号。
func (p Position) MarketValue() float64 {
	lev := p.Leverage
	if lev <= 0 {
		lev = 1
	}
	return p.Quantity * p.CurrentPrice * lev
}

// SignedValue 带方向符号的持仓价值：空头为负。
func (p Position) SignedValue() float64 {
	v := p.MarketValue()
	if p.Direction == DirectionShort {
		return -v
	}
	return v
}

// NotionalValue 不含杠杆的持仓价值（数量 × 现价），用于组合权重计算。
func (p Position) NotionalValue() float64 {
	return p.Quantity * p.CurrentPrice
}

// TotalNotional 组合不含杠杆的总价值。
func TotalNotional(positions []Position) float64 {
	var total float64
	for _, p := range positions {
		total += p.NotionalValue()
	}
	return total
}
