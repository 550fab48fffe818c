package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func alertsByMetric(alerts []*RiskAlert) map[MetricType]*RiskAlert {
	out := make(map[MetricType]*RiskAlert, len(alerts))
	for _, a := range alerts {
		out[a.Metric] = a
	}
	return out
}

func TestRiskLimitEvaluator_CheckLimits(t *testing.T) {
	e := NewRiskLimitEvaluator()

	t.Run("each breached limit raises one alert", func(t *testing.T) {
		p := newPortfolio(100000, pos("AAPL", 100, 150))
		p.Limits = &RiskLimits{
			MaxVar95:       Float(5000),
			MaxDrawdown:    Float(0.25),
			MaxVolatility:  Float(0.30),
			MinSharpeRatio: Float(0.5),
		}
		m := RiskMetrics{VaR95: 6000, CurrentDrawdown: 0.30, Volatility: 0.40, SharpeRatio: 0.2, Beta: 1}

		alerts := e.CheckLimits(p, m)
		require.Len(t, alerts, 4)
		byMetric := alertsByMetric(alerts)
		assert.Equal(t, RiskLevelHigh, byMetric[MetricVaR].Level)
		assert.Equal(t, RiskLevelCritical, byMetric[MetricDrawdown].Level)
		assert.Equal(t, RiskLevelMedium, byMetric[MetricVolatility].Level)
		assert.Equal(t, RiskLevelLow, byMetric[MetricSharpe].Level)

		ids := map[string]bool{}
		for _, a := range alerts {
			assert.True(t, strings.HasPrefix(a.ID, "RA"), a.ID)
			assert.False(t, ids[a.ID], "alert id reused")
			ids[a.ID] = true
			assert.Equal(t, "pf-1", a.PortfolioID)
			assert.NotEmpty(t, a.RecommendedAction)
			assert.False(t, a.Resolved)
		}
		assert.Equal(t, 6000.0, byMetric[MetricVaR].CurrentValue)
		assert.Equal(t, 5000.0, byMetric[MetricVaR].Threshold)
		assert.Equal(t, "Reduce portfolio leverage and consider hedging strategies", byMetric[MetricVaR].RecommendedAction)
		assert.Equal(t, RiskLevelCritical, e.OverallLevel(alerts))
	})

	t.Run("limits within bounds", func(t *testing.T) {
		p := newPortfolio(100000, pos("AAPL", 100, 150))
		p.Limits = &RiskLimits{MaxVar95: Float(5000), MinSharpeRatio: Float(0.5)}
		assert.Empty(t, e.CheckLimits(p, RiskMetrics{VaR95: 5000, SharpeRatio: 0.5}))
	})

	t.Run("no limits configured", func(t *testing.T) {
		p := newPortfolio(100000, pos("AAPL", 100, 150))
		assert.Empty(t, e.CheckLimits(p, RiskMetrics{VaR95: 1e9, CurrentDrawdown: 0.9}))
	})

	t.Run("beta leverage and single position", func(t *testing.T) {
		p := newPortfolio(100000, pos("AAPL", 250, 100), pos("MSFT", 100, 100))
		p.Limits = &RiskLimits{MaxBeta: Float(1.5), MaxLeverage: Float(2), MaxSinglePosition: Float(0.20)}
		alerts := e.CheckLimits(p, RiskMetrics{Beta: 1.8, Leverage: 2.5})

		require.Len(t, alerts, 3)
		byMetric := alertsByMetric(alerts)
		assert.Equal(t, RiskLevelMedium, byMetric[MetricBeta].Level)
		assert.Equal(t, RiskLevelHigh, byMetric[MetricLeverage].Level)
		assert.Equal(t, RiskLevelMedium, byMetric[MetricConcentration].Level)
		assert.Contains(t, byMetric[MetricConcentration].Message, "AAPL")
	})
}

func TestRiskLimitEvaluator_OverallLevel(t *testing.T) {
	e := NewRiskLimitEvaluator()
	levels := func(ls ...RiskLevel) []*RiskAlert {
		out := make([]*RiskAlert, len(ls))
		for i, l := range ls {
			out[i] = &RiskAlert{Level: l}
		}
		return out
	}

	cases := []struct {
		name   string
		alerts []*RiskAlert
		want   RiskLevel
	}{
		{"none", nil, RiskLevelLow},
		{"only low", levels(RiskLevelLow, RiskLevelLow), RiskLevelLow},
		{"two medium", levels(RiskLevelMedium, RiskLevelMedium), RiskLevelLow},
		{"three medium", levels(RiskLevelMedium, RiskLevelMedium, RiskLevelMedium), RiskLevelMedium},
		{"one high", levels(RiskLevelHigh), RiskLevelMedium},
		{"two high", levels(RiskLevelHigh, RiskLevelHigh), RiskLevelHigh},
		{"critical wins", levels(RiskLevelLow, RiskLevelCritical), RiskLevelCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, e.OverallLevel(tc.alerts))
		})
	}
}

func TestRiskLimitEvaluator_Recommendations(t *testing.T) {
	e := NewRiskLimitEvaluator()

	healthy := RiskMetrics{ConcentrationScore: 0.2, SharpeRatio: 1.2, CurrentDrawdown: 0.05, LiquidityScore: 0.9, Leverage: 1}
	assert.Empty(t, e.Recommendations(healthy))

	stressed := RiskMetrics{ConcentrationScore: 0.8, SharpeRatio: 0.1, CurrentDrawdown: 0.2, LiquidityScore: 0.3, Leverage: 3}
	recs := e.Recommendations(stressed)
	assert.Len(t, recs, 5)
}

func TestRequiresAction(t *testing.T) {
	assert.False(t, RequiresAction([]*RiskAlert{{Level: RiskLevelLow}, {Level: RiskLevelMedium}}))
	assert.True(t, RequiresAction([]*RiskAlert{{Level: RiskLevelHigh}}))
	assert.True(t, RequiresAction([]*RiskAlert{{Level: RiskLevelCritical}}))
	assert.False(t, RequiresAction(nil))
}
