package riskmath

import (
	"math"
	"math/rand"
	"sort"
)

// MinSamples 计算 VaR 所需的最少历史样本数。
// 样本不足时各方法降级返回 0，由上层决定是否使用保守估算。
const MinSamples = 30

// HistoricalVaR 历史模拟法 VaR。
//
// 把收益率按 sqrt(horizonDays) 缩放后取 (1-confidence) 分位数的绝对值。
// 样本不足 MinSamples 时返回 0（不报错，交给调用方降级处理）。
func HistoricalVaR(returns []float64, confidence float64, horizonDays float64) float64 {
	if len(returns) < MinSamples {
		return 0
	}
	scale := math.Sqrt(horizonDays)
	scaled := make([]float64, len(returns))
	for i, r := range returns {
		scaled[i] = r * scale
	}
	return math.Abs(Quantile(scaled, 1-confidence))
}

// ParametricVaR 参数法（方差-协方差法）VaR，假设收益率服从正态分布。
//
//	VaR = |-(mean*h + z*std*sqrt(h))|，z = 逆正态 CDF 在 (1-confidence) 处的取值。
func ParametricVaR(returns []float64, confidence float64, horizonDays float64) float64 {
	if len(returns) < MinSamples {
		return 0
	}
	mean := Mean(returns)
	std := StdDev(returns)
	z := NormPPF(1 - confidence)
	v := -(mean*horizonDays + z*std*math.Sqrt(horizonDays))
	return math.Abs(v)
}

// MonteCarloVaR 蒙特卡洛模拟法 VaR。
//
// 从 Normal(mean*h, std*sqrt(h)) 抽取 simulations 个样本，取经验分位数。
// rng 由调用方注入，保证测试可复现。
func MonteCarloVaR(rng *rand.Rand, returns []float64, confidence float64, horizonDays float64, simulations int) float64 {
	if len(returns) < MinSamples || simulations <= 0 {
		return 0
	}
	mean := Mean(returns)
	std := StdDev(returns)

	simMean := mean * horizonDays
	simStd := std * math.Sqrt(horizonDays)

	simulated := make([]float64, simulations)
	for i := range simulated {
		simulated[i] = simMean + rng.NormFloat64()*simStd
	}
	return math.Abs(Quantile(simulated, 1-confidence))
}

// ConditionalVaR 条件 VaR（CVaR / Expected Shortfall）：
// 低于 VaR 阈值的收益率均值的绝对值；尾部无样本时取阈值本身。
func ConditionalVaR(returns []float64, confidence float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	threshold := Quantile(returns, 1-confidence)

	var sum float64
	var n int
	for _, r := range returns {
		if r <= threshold {
			sum += r
			n++
		}
	}
	if n == 0 {
		return math.Abs(threshold)
	}
	return math.Abs(sum / float64(n))
}

// Quantile 线性插值分位数（与 numpy.percentile 的默认行为一致）。
// p 取值 [0,1]。输入不会被修改。
func Quantile(xs []float64, p float64) float64 {
	n := len(xs)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, xs)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}
	rank := p * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Mean 算术平均。空切片返回 0。
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// StdDev 总体标准差（除以 N，而非 N-1）。
func StdDev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := Mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)))
}

// NormPPF 标准正态分布的逆 CDF（percent point function）。
// 利用恒等式 ppf(p) = sqrt(2) * erfinv(2p - 1)。
func NormPPF(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}
	return math.Sqrt2 * math.Erfinv(2*p-1)
}

// ReturnsFromPrices 由价格序列计算逐期简单收益率：(p[i+1]-p[i])/p[i]。
// 长度不足 2 时返回 nil；前价为 0 的区间被跳过（避免除零）。
func ReturnsFromPrices(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	return returns
}

// Correlation 皮尔逊相关系数。长度不一致时按较短的截断；
// 任一侧方差为 0 时返回 0。
func Correlation(xs, ys []float64) float64 {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	if n < 2 {
		return 0
	}
	xs, ys = xs[:n], ys[:n]

	mx, my := Mean(xs), Mean(ys)
	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx := xs[i] - mx
		dy := ys[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0
	}
	return sxy / math.Sqrt(sxx*syy)
}
