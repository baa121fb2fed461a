package execution

import (
	"sync"
	"time"

	"github.com/tradebot/riskcore/internal/metrics"
)

// ExecutionStats 执行统计快照。
type ExecutionStats struct {
	TotalOrders     int64         `json:"total_orders"`
	FilledOrders    int64         `json:"filled_orders"`
	CancelledOrders int64         `json:"cancelled_orders"`
	RejectedOrders  int64         `json:"rejected_orders"`
	ActiveOrders    int           `json:"active_orders"`
	FillRate        float64       `json:"fill_rate"`
	AverageSlippage float64       `json:"average_slippage"`
	TotalSlippage   float64       `json:"total_slippage"`
	AverageFillTime time.Duration `json:"average_fill_time"`
}

// stats 内部可变统计，互斥锁保护。平均成交耗时用 0.9/0.1 指数平滑。
type stats struct {
	mu sync.Mutex

	totalOrders     int64
	filledOrders    int64
	cancelledOrders int64
	rejectedOrders  int64
	totalSlippage   float64
	avgFillTime     time.Duration
}

func (s *stats) orderSubmitted() {
	s.mu.Lock()
	s.totalOrders++
	s.mu.Unlock()
	metrics.OrdersSubmitted.Add(1)
}

func (s *stats) orderRejected() {
	s.mu.Lock()
	s.rejectedOrders++
	s.mu.Unlock()
	metrics.OrdersRejected.Add(1)
}

func (s *stats) orderCancelled() {
	s.mu.Lock()
	s.cancelledOrders++
	s.mu.Unlock()
	metrics.OrdersCancelled.Add(1)
}

func (s *stats) orderFilled(elapsed time.Duration) {
	s.mu.Lock()
	s.filledOrders++
	if s.avgFillTime == 0 {
		s.avgFillTime = elapsed
	} else {
		s.avgFillTime = time.Duration(float64(s.avgFillTime)*0.9 + float64(elapsed)*0.1)
	}
	s.mu.Unlock()
	metrics.OrdersFilled.Add(1)
}

func (s *stats) addSlippage(v float64) {
	if v < 0 {
		v = -v
	}
	s.mu.Lock()
	s.totalSlippage += v
	s.mu.Unlock()
}

func (s *stats) snapshot(active int) ExecutionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := ExecutionStats{
		TotalOrders:     s.totalOrders,
		FilledOrders:    s.filledOrders,
		CancelledOrders: s.cancelledOrders,
		RejectedOrders:  s.rejectedOrders,
		ActiveOrders:    active,
		TotalSlippage:   s.totalSlippage,
		AverageFillTime: s.avgFillTime,
	}
	if s.totalOrders > 0 {
		out.FillRate = float64(s.filledOrders) / float64(s.totalOrders)
	}
	if s.filledOrders > 0 {
		out.AverageSlippage = s.totalSlippage / float64(s.filledOrders)
	}
	return out
}
