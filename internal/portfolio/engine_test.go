package portfolio

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradebot/riskcore/internal/domain"
)

func testPositions() []domain.Position {
	return []domain.Position{
		{Symbol: "BTC", Quantity: 1, EntryPrice: 50000, CurrentPrice: 51000, Leverage: 2, Direction: domain.DirectionLong},
		{Symbol: "ETH", Quantity: 10, EntryPrice: 3000, CurrentPrice: 3100, Leverage: 1.5, Direction: domain.DirectionLong},
	}
}

func testPriceHistory(seed int64, n int) map[string][]float64 {
	rng := rand.New(rand.NewSource(seed))
	btc := make([]float64, n)
	eth := make([]float64, n)
	btcPrice, ethPrice := 50000.0, 3000.0
	for i := 0; i < n; i++ {
		btcPrice *= 1 + rng.NormFloat64()*0.02
		ethPrice *= 1 + rng.NormFloat64()*0.025
		btc[i] = btcPrice
		eth[i] = ethPrice
	}
	return map[string][]float64{"BTC": btc, "ETH": eth}
}

func newTestEngine() *Engine {
	return NewEngine(DefaultConfig(), rand.New(rand.NewSource(42)))
}

func TestComputeVaR_EmptyPositions(t *testing.T) {
	e := newTestEngine()
	res, err := e.ComputeVaR(nil, nil, domain.VaRMethodHistorical)
	require.NoError(t, err)
	assert.Equal(t, domain.VaRMethodNone, res.Method)
	assert.Zero(t, res.VaR95)
	assert.Zero(t, res.VaR99)
}

func TestComputeVaR_Historical(t *testing.T) {
	e := newTestEngine()
	positions := testPositions()
	history := testPriceHistory(7, 200)

	res, err := e.ComputeVaR(positions, history, domain.VaRMethodHistorical)
	require.NoError(t, err)

	assert.Equal(t, domain.VaRMethodHistorical, res.Method)
	assert.Greater(t, res.VaR95, 0.0)
	assert.GreaterOrEqual(t, res.VaR99, res.VaR95)
	assert.GreaterOrEqual(t, res.CVaR95, res.VaR95)
	assert.GreaterOrEqual(t, res.CVaR99, res.VaR99)
	assert.InDelta(t, 1*51000+10*3100, res.TotalValue, 1e-9)
}

func TestComputeVaR_UnknownMethod(t *testing.T) {
	e := newTestEngine()
	_, err := e.ComputeVaR(testPositions(), testPriceHistory(7, 200), domain.VaRMethod("bogus"))
	require.Error(t, err)
}

func TestComputeVaR_InsufficientHistory(t *testing.T) {
	e := newTestEngine()
	positions := testPositions()
	history := testPriceHistory(7, 10) // below min samples

	res, err := e.ComputeVaR(positions, history, domain.VaRMethodHistorical)
	require.NoError(t, err)

	assert.Equal(t, domain.VaRMethodEstimated, res.Method)
	// 2% vol fallback with z=1.65 / 2.33
	total := res.TotalValue
	assert.InDelta(t, total*0.02*1.65, res.VaR95, 1e-9)
	assert.InDelta(t, total*0.02*2.33, res.VaR99, 1e-9)
}

func TestComputeVaR_MethodsAgreeRoughly(t *testing.T) {
	e := newTestEngine()
	positions := testPositions()
	history := testPriceHistory(21, 2000)

	hist, err := e.ComputeVaR(positions, history, domain.VaRMethodHistorical)
	require.NoError(t, err)
	mc, err := e.ComputeVaR(positions, history, domain.VaRMethodMonteCarlo)
	require.NoError(t, err)

	require.Greater(t, hist.VaR95, 0.0)
	diff := math.Abs(hist.VaR95-mc.VaR95) / hist.VaR95
	assert.Less(t, diff, 0.15, "historical %.2f vs monte carlo %.2f", hist.VaR95, mc.VaR95)
}

func TestStressTest(t *testing.T) {
	e := newTestEngine()
	positions := []domain.Position{
		{Symbol: "BTC", Quantity: 1, CurrentPrice: 50000, Leverage: 1, Direction: domain.DirectionLong},
	}
	results := e.StressTest(positions, []domain.StressScenario{{"BTC": -0.20}})
	require.Len(t, results, 1)
	assert.InDelta(t, 10000, results[0].Loss, 1e-9)
	assert.InDelta(t, 0.20, results[0].LossPercent, 1e-9)
}

func TestStressTest_ShortInvertsSign(t *testing.T) {
	e := newTestEngine()
	long := []domain.Position{{Symbol: "BTC", Quantity: 1, CurrentPrice: 50000, Leverage: 1, Direction: domain.DirectionLong}}
	short := []domain.Position{{Symbol: "BTC", Quantity: 1, CurrentPrice: 50000, Leverage: 1, Direction: domain.DirectionShort}}

	down := []domain.StressScenario{{"BTC": -0.10}}
	lres := e.StressTest(long, down)
	sres := e.StressTest(short, down)

	// Same magnitude either way (loss for the long, gain magnitude for the short).
	assert.InDelta(t, lres[0].Loss, sres[0].Loss, 1e-9)
}

func TestStressTest_UnknownSymbolIgnored(t *testing.T) {
	e := newTestEngine()
	positions := testPositions()
	results := e.StressTest(positions, []domain.StressScenario{{"SOL": -0.50}})
	require.Len(t, results, 1)
	assert.Zero(t, results[0].Loss)
}

func TestDecompose(t *testing.T) {
	e := newTestEngine()
	positions := testPositions()
	history := testPriceHistory(9, 300)

	dec, err := e.Decompose(positions, history)
	require.NoError(t, err)

	require.Len(t, dec.Contributions, 2)
	assert.Greater(t, dec.TotalVaR, 0.0)

	// Correlation matrix covers both symbols, diagonal is 1.
	require.Contains(t, dec.Correlations, "BTC")
	require.Contains(t, dec.Correlations, "ETH")
	assert.Equal(t, 1.0, dec.Correlations["BTC"]["BTC"])
	assert.InDelta(t, dec.Correlations["BTC"]["ETH"], dec.Correlations["ETH"]["BTC"], 1e-12)
}

func TestDecompose_MissingHistoryNonFatal(t *testing.T) {
	e := newTestEngine()
	positions := testPositions()
	history := testPriceHistory(9, 300)
	delete(history, "ETH")

	dec, err := e.Decompose(positions, history)
	require.NoError(t, err)
	assert.NotContains(t, dec.Correlations, "ETH")
	require.Len(t, dec.Contributions, 2)
}

func TestMarginalVaR(t *testing.T) {
	e := newTestEngine()
	positions := testPositions()
	history := testPriceHistory(9, 300)

	candidate := domain.Position{Symbol: "BTC", Quantity: 2, CurrentPrice: 51000, Leverage: 1, Direction: domain.DirectionLong}
	marginal, err := e.MarginalVaR(positions, history, candidate)
	require.NoError(t, err)
	// Adding exposure to an existing symbol must not reduce risk.
	assert.GreaterOrEqual(t, marginal, 0.0)
}
