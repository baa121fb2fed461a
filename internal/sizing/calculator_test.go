package sizing

import (
	"math/rand"
	"testing"
	"time"

	"github.com/tradebot/riskcore/internal/domain"
)

func newTestCalculator(cfg Config) *Calculator {
	return NewCalculator(cfg, rand.New(rand.NewSource(42)))
}

func TestFraction(t *testing.T) {
	c := newTestCalculator(Config{})

	cases := []struct {
		winRate, ratio, want float64
	}{
		{0.60, 1.5, 0.25},            // 原始凯利 0.333，裁剪到上限
		{0.52, 1.5, 0.52 - 0.48/1.5}, // 0.2，在上限内不裁剪
		{0.50, 1.0, 0},               // 赔率 1:1 胜率一半，没有优势
		{0.30, 1.0, 0},               // 负期望裁剪到 0
		{0.90, 10.0, 0.25},           // 裁剪到上限
		{0, 1.5, 0},
		{1.0, 1.5, 0},
		{-0.1, 1.5, 0},
		{0.6, 0, 0},
		{0.6, -2, 0},
	}
	for _, tc := range cases {
		got := c.Fraction(tc.winRate, tc.ratio)
		if diff := got - tc.want; diff > 1e-12 || diff < -1e-12 {
			t.Fatalf("Fraction(%v, %v) = %v, want %v", tc.winRate, tc.ratio, got, tc.want)
		}
		if got < 0 || got > 0.25 {
			t.Fatalf("Fraction(%v, %v) = %v out of [0, 0.25]", tc.winRate, tc.ratio, got)
		}
	}
}

func TestPositionSize(t *testing.T) {
	c := newTestCalculator(Config{})

	// 0.25 凯利超过风险上限 0.02×3，裁剪到 6%。
	pos := c.PositionSize(100000, 0.25)
	if pos.Recommended != 25000 {
		t.Fatalf("recommended = %v, want 25000", pos.Recommended)
	}
	if pos.MaxAllowed != 6000 {
		t.Fatalf("maxAllowed = %v, want 6000", pos.MaxAllowed)
	}
	if pos.Actual != 6000 {
		t.Fatalf("actual = %v, want 6000", pos.Actual)
	}
	if pos.Percent != 0.06 {
		t.Fatalf("percent = %v, want 0.06", pos.Percent)
	}

	// 小比例不触发上限。
	pos = c.PositionSize(100000, 0.01)
	if pos.Actual != 1000 {
		t.Fatalf("actual = %v, want 1000", pos.Actual)
	}

	// 无效输入。
	if pos = c.PositionSize(0, 0.1); pos.Actual != 0 {
		t.Fatalf("zero capital: actual = %v", pos.Actual)
	}
	if pos = c.PositionSize(100000, 0); pos.Actual != 0 {
		t.Fatalf("zero fraction: actual = %v", pos.Actual)
	}
}

func TestDynamicAdjustment(t *testing.T) {
	c := newTestCalculator(Config{})

	cases := []struct {
		name       string
		drawdown   float64
		volatility float64
		regime     domain.MarketRegime
		want       float64
	}{
		{"calm trending", 0.0, 0.15, domain.RegimeTrending, 1.2},
		{"low vol trending", 0.0, 0.05, domain.RegimeTrending, 1.25 * 1.2},
		{"deep drawdown", 0.25, 0.15, domain.RegimeRanging, 0.3 * 0.8},
		{"everything bad", 0.25, 0.35, domain.RegimeVolatile, 0.1}, // 0.3*0.5*0.5 裁剪到下限
		{"mild drawdown", 0.07, 0.15, domain.RegimeUncertain, 0.75 * 0.6},
		{"mid drawdown", 0.15, 0.15, domain.RegimeTrending, 0.5 * 1.2},
	}
	for _, tc := range cases {
		got := c.DynamicAdjustment(tc.drawdown, tc.volatility, tc.regime)
		if diff := got - tc.want; diff > 1e-12 || diff < -1e-12 {
			t.Fatalf("%s: adjustment = %v, want %v", tc.name, got, tc.want)
		}
		if got < 0.1 || got > 1.5 {
			t.Fatalf("%s: adjustment %v out of [0.1, 1.5]", tc.name, got)
		}
	}
}

func syntheticTrades(n int, winRate, win, loss float64) []domain.TradeRecord {
	trades := make([]domain.TradeRecord, n)
	wins := int(float64(n) * winRate)
	now := time.Now()
	for i := range trades {
		pnl := loss
		if i < wins {
			pnl = win
		}
		trades[i] = domain.TradeRecord{
			Symbol:     "BTC",
			PnL:        pnl * 100000,
			PnLPercent: pnl,
			OpenedAt:   now.Add(-time.Duration(n-i) * time.Hour),
			ClosedAt:   now.Add(-time.Duration(n-i-1) * time.Hour),
		}
	}
	return trades
}

func TestComputeTradeStats(t *testing.T) {
	trades := syntheticTrades(100, 0.6, 0.01, -0.005)
	stats := ComputeTradeStats(trades)

	if stats.Count != 100 {
		t.Fatalf("count = %d", stats.Count)
	}
	if diff := stats.WinRate - 0.6; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("winRate = %v, want 0.6", stats.WinRate)
	}
	if diff := stats.AvgWin - 1000; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("avgWin = %v, want 1000", stats.AvgWin)
	}
	if diff := stats.AvgLoss - (-500); diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("avgLoss = %v, want -500", stats.AvgLoss)
	}
	if diff := stats.WinLossRatio() - 2.0; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("winLossRatio = %v, want 2", stats.WinLossRatio())
	}
	if stats.MaxDrawdown <= 0 {
		t.Fatalf("maxDrawdown = %v, want > 0", stats.MaxDrawdown)
	}
}

func TestComputeTradeStats_Empty(t *testing.T) {
	stats := ComputeTradeStats(nil)
	if stats.Count != 0 || stats.WinRate != 0 || stats.SharpeRatio != 0 {
		t.Fatalf("empty stats = %+v", stats)
	}
}

func TestOptimalFraction_InsufficientTrades(t *testing.T) {
	c := newTestCalculator(Config{})
	trades := syntheticTrades(5, 0.6, 0.01, -0.005)

	got, ruin := c.OptimalFraction(trades)
	want := c.Fraction(0.6, 2.0)
	if diff := got - want; diff > 1e-12 || diff < -1e-12 {
		t.Fatalf("optimal = %v, want basic kelly %v", got, want)
	}
	if ruin != 1.0 {
		t.Fatalf("riskOfRuin = %v, want 1.0", ruin)
	}
}

func TestOptimalFraction_Bounds(t *testing.T) {
	c := newTestCalculator(Config{Simulations: 200})
	trades := syntheticTrades(60, 0.6, 0.01, -0.005)

	got, ruin := c.OptimalFraction(trades)
	if got < 0.01 || got > 0.25 {
		t.Fatalf("optimal = %v out of [0.01, 0.25]", got)
	}
	if ruin < 0 || ruin > 0.05 {
		t.Fatalf("riskOfRuin = %v, want within accepted cap", ruin)
	}
}

func TestOptimalFraction_Deterministic(t *testing.T) {
	trades := syntheticTrades(40, 0.55, 0.012, -0.008)

	a, _ := newTestCalculator(Config{Simulations: 100}).OptimalFraction(trades)
	b, _ := newTestCalculator(Config{Simulations: 100}).OptimalFraction(trades)
	if a != b {
		t.Fatalf("same seed gave different optima: %v vs %v", a, b)
	}
}

func TestRecommend(t *testing.T) {
	c := newTestCalculator(Config{Simulations: 200})
	trades := syntheticTrades(120, 0.6, 0.012, -0.006)

	rec := c.Recommend(100000, trades, domain.MarketConditions{
		Drawdown:   0.03,
		Volatility: 0.15,
		Regime:     domain.RegimeTrending,
	})

	if rec.SampleSize != 120 {
		t.Fatalf("sampleSize = %d", rec.SampleSize)
	}
	if rec.KellyFraction <= 0 || rec.KellyFraction > 0.25 {
		t.Fatalf("kellyFraction = %v", rec.KellyFraction)
	}
	if rec.DampedFraction <= 0 || rec.DampedFraction > 0.25 {
		t.Fatalf("dampedFraction = %v", rec.DampedFraction)
	}
	if rec.AdjustmentFactor != 1.2 {
		t.Fatalf("adjustmentFactor = %v, want 1.2", rec.AdjustmentFactor)
	}
	if rec.ActualPosition > 100000 || rec.ActualPosition <= 0 {
		t.Fatalf("actualPosition = %v", rec.ActualPosition)
	}
	if rec.ActualPosition > rec.RecommendedPosition+1e-9 {
		t.Fatalf("actual %v exceeds recommended %v", rec.ActualPosition, rec.RecommendedPosition)
	}
	if rec.Confidence == "" {
		t.Fatalf("confidence empty")
	}
}

func TestRecommend_NoHistory(t *testing.T) {
	c := newTestCalculator(Config{})
	rec := c.Recommend(100000, nil, domain.MarketConditions{Regime: domain.RegimeUncertain})

	if rec.Confidence != domain.ConfidenceLow {
		t.Fatalf("confidence = %v, want LOW", rec.Confidence)
	}
	if rec.RiskOfRuin != 1.0 {
		t.Fatalf("riskOfRuin = %v, want 1.0", rec.RiskOfRuin)
	}
	if rec.ActualPosition != 0 {
		t.Fatalf("actualPosition = %v, want 0", rec.ActualPosition)
	}
	if rec.SampleSize != 0 {
		t.Fatalf("sampleSize = %d", rec.SampleSize)
	}
}
