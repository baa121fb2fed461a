package execution

import "github.com/tradebot/riskcore/internal/domain"

// SlippageModel 滑点模型：基础滑点 + 冲击成本，按紧急程度加权。
type SlippageModel struct {
	Base   float64 // 基础滑点
	Impact float64 // 冲击成本系数（× 订单量/流动性）
}

// DefaultSlippageModel 默认滑点模型（基础 0.05%，冲击系数 0.01%）。
func DefaultSlippageModel() SlippageModel {
	return SlippageModel{Base: 0.0005, Impact: 0.0001}
}

func (m SlippageModel) withDefaults() SlippageModel {
	d := DefaultSlippageModel()
	if m.Base <= 0 {
		m.Base = d.Base
	}
	if m.Impact <= 0 {
		m.Impact = d.Impact
	}
	return m
}

func urgencyMultiplier(u domain.Urgency) float64 {
	switch u {
	case domain.UrgencyLow:
		return 0.5
	case domain.UrgencyHigh:
		return 2.0
	default:
		return 1.0
	}
}

// EstimateSlippage 预估滑点：(base + impact × amount/liquidity) × 紧急系数，
// 上限 MaxSlippage。流动性非正时直接返回上限。
func (p *Planner) EstimateSlippage(amount, liquidity float64, urgency domain.Urgency) float64 {
	if liquidity <= 0 {
		return p.limits.MaxSlippage
	}
	s := (p.slippage.Base + p.slippage.Impact*amount/liquidity) * urgencyMultiplier(urgency)
	if s > p.limits.MaxSlippage {
		s = p.limits.MaxSlippage
	}
	return s
}
