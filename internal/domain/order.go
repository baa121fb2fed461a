package domain

import "time"

// OrderSide 订单方向
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderType 订单类型
type OrderType string

const (
	OrderTypeMarket       OrderType = "market"
	OrderTypeLimit        OrderType = "limit"
	OrderTypeStop         OrderType = "stop"
	OrderTypeStopLimit    OrderType = "stop_limit"
	OrderTypeTrailingStop OrderType = "trailing_stop"
)

// OrderStatus 订单状态机：
//
//	pending -> submitted -> partial <-> (继续成交) -> filled
//	                    \-> cancelled / rejected / expired
//
// filled/cancelled/rejected/expired 为终态，订单到达终态后从活动注册表移除，
// 只归档不复活。
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusSubmitted OrderStatus = "submitted"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusExpired   OrderStatus = "expired"
)

// IsTerminal 是否为终态。
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}

// CanCancel 该状态下是否接受取消（仅 submitted/partial）。
func (s OrderStatus) CanCancel() bool {
	return s == OrderStatusSubmitted || s == OrderStatusPartial
}

// TimeInForce 有效期类型
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceFOK TimeInForce = "FOK"
)

// Order 订单。提交后执行引擎独占拥有：
// Status / FilledAmount / AveragePrice / UpdatedAt 只由引擎写入，
// 外部通过快照读取。
type Order struct {
	OrderID     string      `json:"order_id"`
	Symbol      string      `json:"symbol"`
	Side        OrderSide   `json:"side"`
	Amount      float64     `json:"amount"`
	Type        OrderType   `json:"type"`
	Price       float64     `json:"price,omitempty"`
	StopPrice   float64     `json:"stop_price,omitempty"`
	TimeInForce TimeInForce `json:"time_in_force"`

	Status       OrderStatus `json:"status"`
	FilledAmount float64     `json:"filled_amount"`
	AveragePrice float64     `json:"average_price"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// FillRatio 已成交比例（0 当 Amount 非法）。
func (o *Order) FillRatio() float64 {
	if o == nil || o.Amount <= 0 {
		return 0
	}
	return o.FilledAmount / o.Amount
}
