package domain

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonteCarloSimulator_Simulate(t *testing.T) {
	calc := NewRiskMetricsCalculator(DefaultRiskFreeRate)
	ctx := context.Background()

	t.Run("zero volatility keeps initial value", func(t *testing.T) {
		sim := NewMonteCarloSimulator(calc, 42, 4)
		res, err := sim.Simulate(ctx, 100000, constantReturns(60, 0), 500, 30)
		require.NoError(t, err)

		for _, p := range MonteCarloPercentiles {
			assert.Equal(t, 100000.0, res.Percentiles[p], "p%d", p)
		}
		assert.Equal(t, 100000.0, res.ExpectedValue)
		assert.Zero(t, res.Probabilities["profit"])
		assert.Zero(t, res.Probabilities["loss"])
		assert.False(t, res.Partial)
	})

	t.Run("distribution shape", func(t *testing.T) {
		sim := NewMonteCarloSimulator(calc, 7, 0)
		returns := normalReturns(1, 250, 0.0004, 0.01)
		res, err := sim.Simulate(ctx, 100000, returns, 2000, 60)
		require.NoError(t, err)

		assert.Equal(t, 2000, res.PathsCompleted)
		assert.Equal(t, 60, res.Horizon)
		assert.Len(t, res.Simulations, 100)
		assert.True(t, slices.IsSorted(res.Simulations))
		assert.InDelta(t, 1.0, res.Probabilities["profit"]+res.Probabilities["loss"], 1e-9)

		for i := 1; i < len(MonteCarloPercentiles); i++ {
			lo, hi := MonteCarloPercentiles[i-1], MonteCarloPercentiles[i]
			assert.LessOrEqual(t, res.Percentiles[lo], res.Percentiles[hi])
		}
		assert.LessOrEqual(t, res.Probabilities["loss_20pct"], res.Probabilities["loss_10pct"])
		assert.LessOrEqual(t, res.Probabilities["gain_20pct"], res.Probabilities["gain_10pct"])
		assert.LessOrEqual(t, res.Probabilities["loss_10pct"], res.Probabilities["loss"])
	})

	t.Run("seeded runs are reproducible across worker counts", func(t *testing.T) {
		returns := normalReturns(2, 120, 0.0002, 0.015)
		a, err := NewMonteCarloSimulator(calc, 99, 1).Simulate(ctx, 50000, returns, 1000, 20)
		require.NoError(t, err)
		b, err := NewMonteCarloSimulator(calc, 99, 8).Simulate(ctx, 50000, returns, 1000, 20)
		require.NoError(t, err)

		assert.Equal(t, a.Percentiles, b.Percentiles)
		assert.Equal(t, a.Simulations, b.Simulations)
		assert.Equal(t, a.Probabilities, b.Probabilities)
		assert.InDelta(t, a.ExpectedValue, b.ExpectedValue, 1e-6)

		c, err := NewMonteCarloSimulator(calc, 100, 8).Simulate(ctx, 50000, returns, 1000, 20)
		require.NoError(t, err)
		assert.NotEqual(t, a.Simulations, c.Simulations)
	})

	t.Run("defaults", func(t *testing.T) {
		res, err := NewMonteCarloSimulator(calc, 1, 0).Simulate(ctx, 1000, nil, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, DefaultSimulations, res.PathsRequested)
		assert.Equal(t, DefaultHorizon, res.Horizon)
	})

	t.Run("cancelled before start", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		res, err := NewMonteCarloSimulator(calc, 1, 2).Simulate(cctx, 1000, nil, 100, 10)
		assert.Nil(t, res)
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("deadline mid run returns partial", func(t *testing.T) {
		// 第 41 次检查时到期，单 worker 下恰好完成 40 条路径
		dctx := &expiringCtx{Context: ctx, allow: 40}
		returns := normalReturns(3, 120, 0.0002, 0.015)
		res, err := NewMonteCarloSimulator(calc, 1, 1).Simulate(dctx, 1000, returns, 100, 10)
		require.NoError(t, err)
		assert.True(t, res.Partial)
		assert.Equal(t, 100, res.PathsRequested)
		assert.Equal(t, 40, res.PathsCompleted)
		assert.Len(t, res.Simulations, 40)
		assert.InDelta(t, 1.0, res.Probabilities["profit"]+res.Probabilities["loss"], 1e-9)
	})

	t.Run("explosive growth is capped", func(t *testing.T) {
		res, err := NewMonteCarloSimulator(calc, 1, 4).Simulate(ctx, 100000, []float64{0.4, 0.4, 0.4}, 1000, 2520)
		require.NoError(t, err)
		ceiling := 100000 * maxGrowthMultiple
		assert.Equal(t, 1000, res.CappedPaths)
		assert.False(t, math.IsInf(res.ExpectedValue, 0))
		assert.InDelta(t, ceiling, res.ExpectedValue, 1)
		for _, v := range res.Percentiles {
			assert.False(t, math.IsInf(v, 0) || math.IsNaN(v))
		}
		assert.Equal(t, 1.0, res.Probabilities["gain_20pct"])
	})
}

// expiringCtx 在 Err 被调用 allow 次后报告超时
type expiringCtx struct {
	context.Context
	allow int64
	calls atomic.Int64
}

func (c *expiringCtx) Err() error {
	if c.calls.Add(1) > c.allow {
		return context.DeadlineExceeded
	}
	return nil
}

func TestMergeSorted(t *testing.T) {
	got := mergeSorted([][]float64{{1, 4, 9}, {2, 3}, {}, {0, 10}})
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 9, 10}, got)
	assert.Nil(t, mergeSorted(nil))
}
