package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func liquidSnapshot(returns []float64, symbols ...string) *MarketSnapshot {
	snap := &MarketSnapshot{
		Returns:        returns,
		Betas:          map[string]float64{},
		AverageVolumes: map[string]float64{},
	}
	for _, s := range symbols {
		snap.Betas[s] = 1
		snap.AverageVolumes[s] = 10_000_000
	}
	return snap
}

func newPreTrade() *PreTradeRiskEvaluator {
	return NewPreTradeRiskEvaluator(NewRiskMetricsCalculator(DefaultRiskFreeRate), 0)
}

func TestPreTradeRiskEvaluator_Evaluate(t *testing.T) {
	returns := normalReturns(11, 250, 0.0002, 0.012)

	t.Run("small order is approved", func(t *testing.T) {
		p := newPortfolio(1_000_000, pos("AAPL", 100, 150))
		o := &Order{ID: "o-1", Symbol: "AAPL", Side: SideBuy, Quantity: 10, Price: 150}

		res := newPreTrade().Evaluate(o, p, liquidSnapshot(returns, "AAPL"))
		assert.True(t, res.Approved)
		assert.Zero(t, res.RiskScore)
		assert.Empty(t, res.Alerts)
		assert.Nil(t, res.Adjustments)
	})

	t.Run("concentrated buy is flagged with reduced quantity", func(t *testing.T) {
		p := newPortfolio(1_000_000, pos("AAPL", 600, 150))
		o := &Order{ID: "o-2", Symbol: "AAPL", Side: SideBuy, Quantity: 100, Price: 150, StrategyID: "momentum"}

		res := newPreTrade().Evaluate(o, p, liquidSnapshot(returns, "AAPL"))
		require.Len(t, res.Alerts, 1)
		alert := res.Alerts[0]
		assert.Equal(t, MetricConcentration, alert.Metric)
		assert.Equal(t, RiskLevelMedium, alert.Level)
		assert.Equal(t, "o-2", alert.OrderID)
		assert.Equal(t, "momentum", alert.StrategyID)
		assert.Equal(t, 20, res.RiskScore)
		assert.True(t, res.Approved)

		require.NotNil(t, res.Adjustments)
		require.NotNil(t, res.Adjustments.ReducedQuantity)
		assert.Equal(t, 70.0, *res.Adjustments.ReducedQuantity)
		assert.Nil(t, res.Adjustments.Split)
		assert.Nil(t, res.Adjustments.Hedge)
	})

	t.Run("large buy raises var and concentration", func(t *testing.T) {
		p := newPortfolio(100000, pos("AAPL", 100, 150))
		o := &Order{Symbol: "MSFT", Side: SideBuy, Quantity: 100, Price: 300}

		res := newPreTrade().Evaluate(o, p, liquidSnapshot(returns, "AAPL", "MSFT"))
		byMetric := alertsByMetric(res.Alerts)
		require.Contains(t, byMetric, MetricVaR)
		require.Contains(t, byMetric, MetricConcentration)
		assert.Equal(t, RiskLevelHigh, byMetric[MetricVaR].Level)
		assert.Equal(t, 50, res.RiskScore)
		assert.False(t, res.Approved)

		require.NotNil(t, res.Adjustments)
		assert.Equal(t, 70.0, *res.Adjustments.ReducedQuantity)
		require.NotNil(t, res.Adjustments.Hedge)
		assert.Equal(t, "PROTECTIVE_PUT", res.Adjustments.Hedge.Instrument)
		assert.Equal(t, 0.5, res.Adjustments.Hedge.HedgeRatio)
	})

	t.Run("short sale breaches leverage limit", func(t *testing.T) {
		p := newPortfolio(100000, pos("AAPL", 1000, 100))
		p.Limits = &RiskLimits{MaxLeverage: Float(1.5)}
		o := &Order{Symbol: "TSLA", Side: SideSell, Quantity: 500, Price: 100}

		res := newPreTrade().Evaluate(o, p, liquidSnapshot(returns, "AAPL", "TSLA"))
		byMetric := alertsByMetric(res.Alerts)
		require.Contains(t, byMetric, MetricLeverage)
		assert.Equal(t, RiskLevelHigh, byMetric[MetricLeverage].Level)
		assert.InDelta(t, 3.0, byMetric[MetricLeverage].CurrentValue, 1e-9)
		assert.Equal(t, 1.5, byMetric[MetricLeverage].Threshold)
		assert.NotContains(t, byMetric, MetricVaR, "selling shrinks valued book")
		assert.Equal(t, 60, res.RiskScore)
		assert.False(t, res.Approved)
	})

	t.Run("illiquid order gets twap split", func(t *testing.T) {
		p := newPortfolio(10_000_000, pos("AAPL", 100, 150))
		snap := liquidSnapshot(returns, "AAPL")
		snap.AverageVolumes["XYZ"] = 100000
		o := &Order{Symbol: "XYZ", Side: SideBuy, Quantity: 50000, Price: 1}

		res := newPreTrade().Evaluate(o, p, snap)
		require.Len(t, res.Alerts, 1)
		assert.Equal(t, MetricLiquidity, res.Alerts[0].Metric)
		assert.Equal(t, 15, res.RiskScore)
		assert.True(t, res.Approved)
		require.NotNil(t, res.Adjustments.Split)
		assert.Equal(t, 5, res.Adjustments.Split.ChildOrders)
		assert.Equal(t, "TWAP", res.Adjustments.Split.Strategy)
		assert.Equal(t, 30*time.Minute, res.Adjustments.Split.Window)
	})

	t.Run("caller portfolio is not mutated", func(t *testing.T) {
		p := newPortfolio(100000, pos("AAPL", 100, 150))
		p.Limits = &RiskLimits{MaxBeta: Float(1.2)}
		before := p.Clone()

		newPreTrade().Evaluate(&Order{Symbol: "AAPL", Side: SideBuy, Quantity: 500, Price: 150}, p, liquidSnapshot(returns, "AAPL"))
		newPreTrade().Evaluate(&Order{Symbol: "NEW", Side: SideSell, Quantity: 50, Price: 10}, p, liquidSnapshot(returns, "AAPL"))
		assert.Equal(t, before, p)
	})
}

func TestOrderLiquidityScore(t *testing.T) {
	cases := []struct {
		qty, adv, want float64
	}{
		{5, 1000, 1.0},
		{10, 1000, 0.8},
		{60, 1000, 0.6},
		{150, 1000, 0.4},
		{200, 1000, 0.2},
		{100, 0, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, OrderLiquidityScore(tc.qty, tc.adv), "qty=%v adv=%v", tc.qty, tc.adv)
	}
}

func TestLeverageLimit(t *testing.T) {
	assert.Equal(t, 2.0, LeverageLimit(nil))
	assert.Equal(t, 1.5, LeverageLimit(&RiskLimits{MaxBeta: Float(1.5)}))
	assert.Equal(t, 3.0, LeverageLimit(&RiskLimits{MaxBeta: Float(1.5), MaxLeverage: Float(3)}))
	assert.Equal(t, 2.0, LeverageLimit(&RiskLimits{MaxVar95: Float(100)}))
}

func TestOrder_Validate(t *testing.T) {
	assert.NoError(t, (&Order{Symbol: "AAPL", Side: SideBuy, Quantity: 1, Price: 1}).Validate())

	bad := []*Order{
		{Side: SideBuy, Quantity: 1, Price: 1},
		{Symbol: "AAPL", Side: "HOLD", Quantity: 1, Price: 1},
		{Symbol: "AAPL", Side: SideSell, Quantity: 0, Price: 1},
		{Symbol: "AAPL", Side: SideSell, Quantity: 1, Price: -2},
	}
	for _, o := range bad {
		err := o.Validate()
		assert.True(t, errors.Is(err, ErrInvalidOrder), "%+v", o)
	}
}

func TestPortfolio_ApplyOrder(t *testing.T) {
	p := newPortfolio(100000, pos("AAPL", 100, 150))
	sim := p.Clone()
	sim.ApplyOrder(&Order{Symbol: "AAPL", Side: SideBuy, Quantity: 100, Price: 170})

	got, ok := sim.Position("AAPL")
	require.True(t, ok)
	assert.Equal(t, 200.0, got.Quantity)
	assert.InDelta(t, 160, got.AverageCost, 1e-9)
	assert.Equal(t, 117000.0, sim.TotalValue)
	assert.Equal(t, 85000.0-17000, sim.CashBalance)

	sim.ApplyOrder(&Order{Symbol: "TSLA", Side: SideSell, Quantity: 10, Price: 200})
	short, ok := sim.Position("TSLA")
	require.True(t, ok)
	assert.Equal(t, -10.0, short.Quantity)
	assert.Equal(t, -2000.0, short.MarketValue)

	orig, _ := p.Position("AAPL")
	assert.Equal(t, 100.0, orig.Quantity)
	_, ok = p.Position("TSLA")
	assert.False(t, ok)
}
