package execution

import (
	"math"
	"math/rand"
	"time"

	"github.com/tradebot/riskcore/internal/domain"
)

// Limits 执行限制。
type Limits struct {
	MaxOrderSize float64 // 最大单笔订单
	MaxSlippage  float64 // 最大滑点
	MinSliceSize float64 // 最小分片大小（VWAP 丢弃更小的片）
	MaxSlices    int     // 最大分片数
}

// DefaultLimits 默认执行限制。
func DefaultLimits() Limits {
	return Limits{
		MaxOrderSize: 100000,
		MaxSlippage:  0.01,
		MinSliceSize: 100,
		MaxSlices:    100,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxOrderSize <= 0 {
		l.MaxOrderSize = d.MaxOrderSize
	}
	if l.MaxSlippage <= 0 {
		l.MaxSlippage = d.MaxSlippage
	}
	if l.MinSliceSize <= 0 {
		l.MinSliceSize = d.MinSliceSize
	}
	if l.MaxSlices <= 0 {
		l.MaxSlices = d.MaxSlices
	}
	return l
}

// Planner 执行计划生成器。全部方法为纯函数（Adaptive 的随机
// 权重由调用方传入的 rng 决定），不持有可变状态。
type Planner struct {
	limits   Limits
	slippage SlippageModel
}

// NewPlanner 创建计划生成器。
func NewPlanner(limits Limits, slippage SlippageModel) *Planner {
	return &Planner{limits: limits.withDefaults(), slippage: slippage.withDefaults()}
}

// Immediate 单片立即执行（订单小于流动性 1% 时使用）。
func (p *Planner) Immediate(total float64) []domain.Slice {
	return []domain.Slice{{
		Index:    0,
		Amount:   total,
		Priority: domain.PriorityHigh,
	}}
}

// TWAP 时间加权：等量分片均匀铺满执行窗口，片数不超过 MaxSlices。
// 末片吸收浮点误差，保证 sum == total。
func (p *Planner) TWAP(total float64, duration time.Duration, intervals int) []domain.Slice {
	if intervals < 1 {
		intervals = 1
	}
	if intervals > p.limits.MaxSlices {
		intervals = p.limits.MaxSlices
	}

	sliceAmount := total / float64(intervals)
	sliceDuration := duration / time.Duration(intervals)

	slices := make([]domain.Slice, intervals)
	var allocated float64
	for i := range slices {
		amount := sliceAmount
		if i == intervals-1 {
			amount = total - allocated
		}
		allocated += amount
		slices[i] = domain.Slice{
			Index:       i,
			Amount:      amount,
			StartOffset: time.Duration(i) * sliceDuration,
			EndOffset:   time.Duration(i+1) * sliceDuration,
			Priority:    domain.PriorityMedium,
		}
	}
	return slices
}

// VWAP 成交量加权：按归一化成交量分布切片，低于 MinSliceSize 的片丢弃。
// 没有成交量数据时退化为 1 小时 TWAP。
func (p *Planner) VWAP(total float64, volumeProfile []float64) []domain.Slice {
	var totalVolume float64
	for _, v := range volumeProfile {
		if v > 0 {
			totalVolume += v
		}
	}
	if totalVolume <= 0 {
		return p.TWAP(total, time.Hour, 10)
	}

	slices := make([]domain.Slice, 0, len(volumeProfile))
	for i, v := range volumeProfile {
		if v <= 0 {
			continue
		}
		weight := v / totalVolume
		amount := total * weight
		if amount < p.limits.MinSliceSize {
			continue
		}
		priority := domain.PriorityMedium
		if weight > 0.1 {
			priority = domain.PriorityHigh
		}
		slices = append(slices, domain.Slice{
			Index:    i,
			Amount:   amount,
			Priority: priority,
		})
	}
	if len(slices) == 0 {
		return p.TWAP(total, time.Hour, 10)
	}
	return slices
}

// Iceberg 冰山：按可见比例切成等量片，仅首片可见。
func (p *Planner) Iceberg(total, visibleFraction float64) []domain.Slice {
	if visibleFraction <= 0 || visibleFraction > 1 {
		visibleFraction = 0.1
	}
	visible := total * visibleFraction

	slices := make([]domain.Slice, 0, int(1/visibleFraction)+1)
	remaining := total
	for i := 0; remaining > 0 && len(slices) < p.limits.MaxSlices; i++ {
		amount := visible
		if amount > remaining {
			amount = remaining
		}
		slices = append(slices, domain.Slice{
			Index:    i,
			Amount:   amount,
			Visible:  i == 0,
			Priority: domain.PriorityLow,
		})
		remaining -= amount
	}
	return slices
}

// Adaptive 自适应：波动越高片越多越小；权重取 |N(0.5, 0.15)| 归一化，
// 前几片优先级高。
func (p *Planner) Adaptive(total float64, snapshot domain.MarketSnapshot, rng *rand.Rand) []domain.Slice {
	snapshot = snapshot.Normalize()

	var numSlices int
	if snapshot.Volatility > 0.03 {
		numSlices = int(total / (snapshot.Liquidity * 0.001))
		if numSlices > 50 {
			numSlices = 50
		}
	} else {
		numSlices = int(total / (snapshot.Liquidity * 0.005))
		if numSlices > 20 {
			numSlices = 20
		}
	}
	if numSlices < 5 {
		numSlices = 5
	}

	weights := make([]float64, numSlices)
	var sum float64
	for i := range weights {
		weights[i] = math.Abs(rng.NormFloat64()*0.15 + 0.5)
		sum += weights[i]
	}

	slices := make([]domain.Slice, numSlices)
	var allocated float64
	for i := range slices {
		amount := total * weights[i] / sum
		if i == numSlices-1 {
			amount = total - allocated
		}
		allocated += amount
		priority := domain.PriorityMedium
		if i < 3 {
			priority = domain.PriorityHigh
		}
		slices[i] = domain.Slice{
			Index:    i,
			Amount:   amount,
			Priority: priority,
		}
	}
	return slices
}

// SelectAlgorithm 按订单量相对流动性的占比选算法，返回算法和执行窗口。
func (p *Planner) SelectAlgorithm(amount float64, snapshot domain.MarketSnapshot) (domain.Algorithm, time.Duration) {
	snapshot = snapshot.Normalize()
	switch {
	case amount < snapshot.Liquidity*0.01:
		return domain.AlgoImmediate, time.Second
	case amount < snapshot.Liquidity*0.05:
		return domain.AlgoTWAP, 5 * time.Minute
	case amount < snapshot.Liquidity*0.20:
		if snapshot.Volatility < 0.02 {
			return domain.AlgoVWAP, 30 * time.Minute
		}
		return domain.AlgoIceberg, 30 * time.Minute
	default:
		return domain.AlgoAdaptive, time.Hour
	}
}

// UrgencyFor 从波动率和趋势推紧急程度。
func UrgencyFor(snapshot domain.MarketSnapshot) domain.Urgency {
	snapshot = snapshot.Normalize()
	if snapshot.Volatility > 0.03 || snapshot.Trend == domain.TrendStrong {
		return domain.UrgencyHigh
	}
	if snapshot.Volatility > 0.015 {
		return domain.UrgencyMedium
	}
	return domain.UrgencyLow
}

// BuildPlan 为订单生成执行计划。algo 为空时按市场条件自动选择。
// 生成后计划只读。
func (p *Planner) BuildPlan(order *domain.Order, algo domain.Algorithm, snapshot domain.MarketSnapshot, rng *rand.Rand) domain.ExecutionPlan {
	snapshot = snapshot.Normalize()

	selected, window := p.SelectAlgorithm(order.Amount, snapshot)
	if algo != "" {
		selected = algo
		switch algo {
		case domain.AlgoImmediate:
			window = time.Second
		case domain.AlgoTWAP:
			window = 5 * time.Minute
		case domain.AlgoVWAP, domain.AlgoIceberg:
			window = 30 * time.Minute
		case domain.AlgoAdaptive:
			window = time.Hour
		}
	}

	var slices []domain.Slice
	switch selected {
	case domain.AlgoTWAP:
		slices = p.TWAP(order.Amount, window, 10)
	case domain.AlgoVWAP:
		slices = p.VWAP(order.Amount, snapshot.VolumeProfile)
	case domain.AlgoIceberg:
		slices = p.Iceberg(order.Amount, 0.1)
	case domain.AlgoAdaptive:
		slices = p.Adaptive(order.Amount, snapshot, rng)
	default:
		selected = domain.AlgoImmediate
		slices = p.Immediate(order.Amount)
	}
	spreadOffsets(slices, window)

	urgency := UrgencyFor(snapshot)
	estimated := p.EstimateSlippage(order.Amount, snapshot.Liquidity, urgency)

	maxSlippage := estimated * 2
	if maxSlippage > p.limits.MaxSlippage {
		maxSlippage = p.limits.MaxSlippage
	}

	return domain.ExecutionPlan{
		Algorithm:     selected,
		TotalAmount:   order.Amount,
		Slices:        slices,
		TimeWindow:    window,
		Urgency:       urgency,
		MaxSlippage:   maxSlippage,
		EstimatedCost: order.Amount * order.Price * (estimated + snapshot.Spread),
	}
}

// spreadOffsets 给没有时间信息的分片均匀分配窗口内的起止偏移。
func spreadOffsets(slices []domain.Slice, window time.Duration) {
	n := len(slices)
	if n == 0 {
		return
	}
	for i := range slices {
		if slices[i].EndOffset > 0 {
			continue
		}
		slices[i].StartOffset = window * time.Duration(i) / time.Duration(n)
		slices[i].EndOffset = window * time.Duration(i+1) / time.Duration(n)
	}
}
