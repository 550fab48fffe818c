package domain

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/stat"
)

const (
	// TradingDaysPerYear 年化使用的交易日数
	TradingDaysPerYear = 252
	// DefaultRiskFreeRate 默认年化无风险利率
	DefaultRiskFreeRate = 0.06

	minBetaObservations = 20
	flatEpsilon         = 1e-12 // 低于该标准差视为无波动
	liquidityADVShare   = 0.1 // 单日可成交量占日均成交量比例
	liquidityHorizon    = 10  // 超过该天数视为完全不流动
)

// RiskMetricsCalculator 组合风险指标计算器，纯函数，无 I/O
type RiskMetricsCalculator struct {
	riskFreeRate float64
}

// NewRiskMetricsCalculator 创建计算器，riskFreeRate 为年化无风险利率
func NewRiskMetricsCalculator(riskFreeRate float64) *RiskMetricsCalculator {
	if !isFinite(riskFreeRate) {
		riskFreeRate = DefaultRiskFreeRate
	}
	return &RiskMetricsCalculator{riskFreeRate: riskFreeRate}
}

// Calculate 计算组合的完整风险指标
func (c *RiskMetricsCalculator) Calculate(p *Portfolio, snap *MarketSnapshot) RiskMetrics {
	var returns, bench []float64
	if snap != nil {
		returns = snap.Returns
		bench = snap.BenchmarkReturns
	}
	if p.BenchmarkSymbol == "" {
		bench = nil
	}

	current, maxDD := c.Drawdown(p.NAVHistory)

	return RiskMetrics{
		VaR95:              c.VaR(returns, 0.95, p.TotalValue),
		VaR99:              c.VaR(returns, 0.99, p.TotalValue),
		CVaR:               c.CVaR(returns, 0.95, p.TotalValue),
		SharpeRatio:        c.SharpeRatio(returns),
		Volatility:         c.Volatility(returns),
		MaxDrawdown:        maxDD,
		CurrentDrawdown:    current,
		Beta:               c.Beta(returns, bench),
		Leverage:           c.Leverage(p),
		LiquidityScore:     c.LiquidityScore(p, snap),
		ConcentrationScore: c.ConcentrationScore(p),
	}
}

// varIndex floor((1-c)*n)，截断到 [0, n-1]
func varIndex(n int, confidence float64) int {
	idx := int(math.Floor((1 - confidence) * float64(n)))
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return idx
}

func sortedCopy(returns []float64) []float64 {
	sorted := make([]float64, 0, len(returns))
	for _, r := range returns {
		if isFinite(r) {
			sorted = append(sorted, r)
		}
	}
	slices.Sort(sorted)
	return sorted
}

// VaR 历史模拟法风险价值，以金额表示
func (c *RiskMetricsCalculator) VaR(returns []float64, confidence, portfolioValue float64) float64 {
	sorted := sortedCopy(returns)
	if len(sorted) == 0 {
		return 0
	}
	idx := varIndex(len(sorted), confidence)
	return finiteOr(-sorted[idx]*portfolioValue, 0)
}

// CVaR 条件风险价值：分位点及以下收益的均值
func (c *RiskMetricsCalculator) CVaR(returns []float64, confidence, portfolioValue float64) float64 {
	sorted := sortedCopy(returns)
	if len(sorted) == 0 {
		return 0
	}
	idx := varIndex(len(sorted), confidence)
	tail := stat.Mean(sorted[:idx+1], nil)
	return finiteOr(-tail*portfolioValue, 0)
}

// SharpeRatio 日频夏普比率
func (c *RiskMetricsCalculator) SharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	sd := stat.StdDev(returns, nil)
	if !(sd > flatEpsilon) || !isFinite(sd) {
		return 0
	}
	mean := stat.Mean(returns, nil)
	return finiteOr((mean-c.riskFreeRate/TradingDaysPerYear)/sd, 0)
}

// Volatility 年化波动率 (样本标准差)
func (c *RiskMetricsCalculator) Volatility(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	sd := stat.StdDev(returns, nil)
	if !(sd > flatEpsilon) {
		return 0
	}
	return finiteOr(sd*math.Sqrt(TradingDaysPerYear), 0)
}

// Drawdown 基于净值序列计算当前回撤与最大回撤
func (c *RiskMetricsCalculator) Drawdown(nav []NAVPoint) (current, maxDD float64) {
	if len(nav) < 2 {
		return 0, 0
	}
	peak := nav[0].Value
	for _, pt := range nav {
		if pt.Value > peak {
			peak = pt.Value
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - pt.Value) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}
	if peak > 0 {
		current = (peak - nav[len(nav)-1].Value) / peak
	}
	return finiteOr(current, 0), finiteOr(maxDD, 0)
}

// Beta 组合相对基准的 beta，数据不足时返回 1
func (c *RiskMetricsCalculator) Beta(returns, benchmark []float64) float64 {
	if len(benchmark) == 0 || len(returns) != len(benchmark) || len(returns) < minBetaObservations {
		return 1
	}
	variance := stat.Variance(benchmark, nil)
	if !(variance > flatEpsilon*flatEpsilon) || !isFinite(variance) {
		return 1
	}
	return finiteOr(stat.Covariance(returns, benchmark, nil)/variance, 1)
}

// Leverage 总敞口 / 组合总值
func (c *RiskMetricsCalculator) Leverage(p *Portfolio) float64 {
	if p.TotalValue <= 0 {
		return 0
	}
	return finiteOr(p.GrossExposure()/p.TotalValue, 0)
}

// LiquidityScore 按持仓权重加权的流动性评分
func (c *RiskMetricsCalculator) LiquidityScore(p *Portfolio, snap *MarketSnapshot) float64 {
	if len(p.Positions) == 0 {
		return 1
	}
	var weighted, weights float64
	for _, pos := range p.Positions {
		w := math.Abs(pos.MarketValue)
		if p.TotalValue > 0 {
			w /= p.TotalValue
		}
		weighted += w * positionLiquidity(pos.Quantity, snap.AverageVolume(pos.Symbol))
		weights += w
	}
	if weights == 0 {
		return 1
	}
	return clamp01(finiteOr(weighted/weights, 0))
}

// positionLiquidity 单一持仓的变现评分
func positionLiquidity(quantity, adv float64) float64 {
	if adv <= 0 {
		return 0
	}
	days := math.Abs(quantity) / (adv * liquidityADVShare)
	return math.Max(0, 1-days/liquidityHorizon)
}

// ConcentrationScore 归一化 HHI
func (c *RiskMetricsCalculator) ConcentrationScore(p *Portfolio) float64 {
	n := len(p.Positions)
	switch {
	case n == 0:
		return 0
	case n == 1:
		return 1
	}
	gross := p.GrossExposure()
	if gross == 0 {
		return 0
	}
	var hhi float64
	for _, pos := range p.Positions {
		w := math.Abs(pos.MarketValue) / gross
		hhi += w * w
	}
	inv := 1 / float64(n)
	return clamp01(finiteOr((hhi-inv)/(1-inv), 0))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteOr(v, fallback float64) float64 {
	if isFinite(v) {
		return v
	}
	return fallback
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
