package riskmath

import (
	"math"
	"math/rand"
	"testing"
)

// fixedNormalSample draws a reproducible normal(mu, sigma) sample.
func fixedNormalSample(seed int64, n int, mu, sigma float64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = mu + rng.NormFloat64()*sigma
	}
	return xs
}

func TestHistoricalVaR_InsufficientSamples(t *testing.T) {
	returns := []float64{0.01, -0.02, 0.005}
	if v := HistoricalVaR(returns, 0.95, 1); v != 0 {
		t.Fatalf("expected 0 for insufficient samples, got %v", v)
	}
}

func TestVaROrdering(t *testing.T) {
	returns := fixedNormalSample(7, 500, 0.0, 0.02)

	var95 := HistoricalVaR(returns, 0.95, 1)
	var99 := HistoricalVaR(returns, 0.99, 1)
	if var95 < 0 || var99 < 0 {
		t.Fatalf("VaR must be non-negative: var95=%v var99=%v", var95, var99)
	}
	if var99 < var95 {
		t.Fatalf("var99 (%v) must be >= var95 (%v)", var99, var95)
	}

	cvar95 := ConditionalVaR(returns, 0.95)
	cvar99 := ConditionalVaR(returns, 0.99)
	if cvar95 < var95 {
		t.Fatalf("cvar95 (%v) must be >= var95 (%v)", cvar95, var95)
	}
	if cvar99 < var99 {
		t.Fatalf("cvar99 (%v) must be >= var99 (%v)", cvar99, var99)
	}
}

func TestHistoricalVsMonteCarlo(t *testing.T) {
	// On a large normal sample both methods should agree within ~10%.
	returns := fixedNormalSample(42, 5000, 0.0, 0.02)
	rng := rand.New(rand.NewSource(99))

	hist := HistoricalVaR(returns, 0.95, 1)
	mc := MonteCarloVaR(rng, returns, 0.95, 1, 10000)

	if hist <= 0 || mc <= 0 {
		t.Fatalf("expected positive VaRs, hist=%v mc=%v", hist, mc)
	}
	diff := math.Abs(hist-mc) / hist
	if diff > 0.10 {
		t.Fatalf("historical (%v) and monte carlo (%v) differ by %.1f%%", hist, mc, diff*100)
	}
}

func TestParametricVaR(t *testing.T) {
	// For N(0, sigma), 95% one-day parametric VaR ~= 1.645*sigma.
	sigma := 0.02
	returns := fixedNormalSample(11, 10000, 0.0, sigma)

	v := ParametricVaR(returns, 0.95, 1)
	want := 1.6449 * sigma
	if math.Abs(v-want)/want > 0.05 {
		t.Fatalf("parametric VaR %v, want ~%v", v, want)
	}
}

func TestParametricVaR_HorizonScaling(t *testing.T) {
	returns := fixedNormalSample(3, 1000, 0.0, 0.015)
	v1 := ParametricVaR(returns, 0.99, 1)
	v4 := ParametricVaR(returns, 0.99, 4)
	// Zero-mean case scales with sqrt(h); sample mean is near zero so
	// allow a small tolerance around the factor 2.
	ratio := v4 / v1
	if ratio < 1.8 || ratio > 2.2 {
		t.Fatalf("4-day/1-day VaR ratio got=%v want ~2", ratio)
	}
}

func TestConditionalVaR_NoTail(t *testing.T) {
	// All returns identical: the tail collapses to the threshold itself.
	returns := make([]float64, 50)
	for i := range returns {
		returns[i] = -0.01
	}
	if v := ConditionalVaR(returns, 0.95); math.Abs(v-0.01) > 1e-12 {
		t.Fatalf("expected threshold 0.01, got %v", v)
	}
}

func TestQuantile(t *testing.T) {
	xs := []float64{4, 1, 3, 2}
	cases := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{1, 4},
		{0.5, 2.5},
		{0.25, 1.75},
	}
	for _, c := range cases {
		if got := Quantile(xs, c.p); math.Abs(got-c.want) > 1e-12 {
			t.Fatalf("Quantile(%v) got=%v want=%v", c.p, got, c.want)
		}
	}
	// Input must not be reordered.
	if xs[0] != 4 {
		t.Fatalf("Quantile must not mutate input, got %v", xs)
	}
}

func TestNormPPF(t *testing.T) {
	cases := []struct {
		p    float64
		want float64
	}{
		{0.5, 0},
		{0.05, -1.6449},
		{0.01, -2.3263},
		{0.975, 1.9600},
	}
	for _, c := range cases {
		if got := NormPPF(c.p); math.Abs(got-c.want) > 1e-3 {
			t.Fatalf("NormPPF(%v) got=%v want=%v", c.p, got, c.want)
		}
	}
}

func TestReturnsFromPrices(t *testing.T) {
	prices := []float64{100, 110, 99}
	returns := ReturnsFromPrices(prices)
	if len(returns) != 2 {
		t.Fatalf("expected 2 returns, got %d", len(returns))
	}
	if math.Abs(returns[0]-0.1) > 1e-12 {
		t.Fatalf("first return got=%v want=0.1", returns[0])
	}
	if math.Abs(returns[1]-(-0.1)) > 1e-12 {
		t.Fatalf("second return got=%v want=-0.1", returns[1])
	}
	if ReturnsFromPrices([]float64{100}) != nil {
		t.Fatal("single price must yield nil returns")
	}
}

func TestCorrelation(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5}
	ys := []float64{2, 4, 6, 8, 10}
	if c := Correlation(xs, ys); math.Abs(c-1) > 1e-12 {
		t.Fatalf("perfectly correlated series got=%v", c)
	}
	inv := []float64{10, 8, 6, 4, 2}
	if c := Correlation(xs, inv); math.Abs(c+1) > 1e-12 {
		t.Fatalf("perfectly anti-correlated series got=%v", c)
	}
	flat := []float64{3, 3, 3, 3, 3}
	if c := Correlation(xs, flat); c != 0 {
		t.Fatalf("zero-variance series must give 0, got %v", c)
	}
}
