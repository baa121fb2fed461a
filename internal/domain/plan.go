package domain

import "time"

// Algorithm 执行算法
type Algorithm string

const (
	AlgoImmediate Algorithm = "immediate" // 小单立即执行
	AlgoTWAP      Algorithm = "twap"      // 时间加权
	AlgoVWAP      Algorithm = "vwap"      // 成交量加权
	AlgoIceberg   Algorithm = "iceberg"   // 冰山
	AlgoAdaptive  Algorithm = "adaptive"  // 超大单自适应
)

// Urgency 执行紧急程度，决定滑点模型的乘数。
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// SlicePriority 分片优先级（仅用于报告/排序提示，不影响顺序执行）。
type SlicePriority string

const (
	PriorityLow    SlicePriority = "low"
	PriorityMedium SlicePriority = "medium"
	PriorityHigh   SlicePriority = "high"
)

// Slice 单个执行分片。StartOffset/EndOffset 相对计划起点。
type Slice struct {
	Index       int           `json:"index"`
	Amount      float64       `json:"amount"`
	StartOffset time.Duration `json:"start_offset"`
	EndOffset   time.Duration `json:"end_offset"`
	Priority    SlicePriority `json:"priority"`
	Visible     bool          `json:"visible,omitempty"` // 冰山：仅首片可见
}

// ExecutionPlan 执行计划。提交时由订单 + 市场快照一次性生成，之后只读；
// 需要重排时生成新计划而不是修改旧计划。
type ExecutionPlan struct {
	Algorithm     Algorithm     `json:"algorithm"`
	TotalAmount   float64       `json:"total_amount"`
	Slices        []Slice       `json:"slices"`
	TimeWindow    time.Duration `json:"time_window"`
	Urgency       Urgency       `json:"urgency"`
	MaxSlippage   float64       `json:"max_slippage"`
	EstimatedCost float64       `json:"estimated_cost"`
}

// SliceTotal 分片数量合计（校验 sum(slices) == total 用）。
func (p *ExecutionPlan) SliceTotal() float64 {
	var sum float64
	for _, s := range p.Slices {
		sum += s.Amount
	}
	return sum
}
