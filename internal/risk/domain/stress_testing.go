package domain

import (
	"math"
	"slices"
	"strings"
	"time"
)

const (
	maxWorstPositions      = 10
	stressHedgingThreshold = 0.15

	BreachMaxVar95    = "max_var_95"
	BreachMaxDrawdown = "max_drawdown"
)

// StressTestScenario 压力测试场景
type StressTestScenario struct {
	Name                 string  `json:"name"`
	Description          string  `json:"description"`
	MarketShock          float64 `json:"market_shock"`          // 如 -0.20 表示市场下跌 20%
	VolatilityMultiplier float64 `json:"volatility_multiplier"` // 波动放大倍数
	CorrelationIncrease  float64 `json:"correlation_increase"`
	LiquidityReduction   float64 `json:"liquidity_reduction"` // 成交量萎缩比例 (0~1)
}

// PositionLoss 压力情景下单一持仓的损失
type PositionLoss struct {
	Symbol      string  `json:"symbol"`
	MarketValue float64 `json:"market_value"`
	Shock       float64 `json:"shock"`
	Loss        float64 `json:"loss"`
}

// StressTestResult 压力测试报告
type StressTestResult struct {
	Scenario               StressTestScenario `json:"scenario"`
	BaseValue              float64            `json:"base_value"`
	StressedValue          float64            `json:"stressed_value"`
	Loss                   float64            `json:"loss"`
	LossPercent            float64            `json:"loss_percent"`
	StressedVaR95          float64            `json:"stressed_var_95"`
	StressedVaR99          float64            `json:"stressed_var_99"`
	StressedLiquidityScore float64            `json:"stressed_liquidity_score"`
	WorstPositions         []PositionLoss     `json:"worst_positions"`
	BreachedLimits         []string           `json:"breached_limits"`
	Recommendations        []string           `json:"recommendations"`
	Timestamp              time.Time          `json:"timestamp"`
}

// StressTestEngine 压力测试引擎
type StressTestEngine struct {
	calc      *RiskMetricsCalculator
	scenarios map[string]StressTestScenario
	now       func() time.Time
}

// NewStressTestEngine 创建压力测试引擎并加载内置场景
func NewStressTestEngine(calc *RiskMetricsCalculator) *StressTestEngine {
	e := &StressTestEngine{
		calc:      calc,
		scenarios: make(map[string]StressTestScenario),
		now:       time.Now,
	}
	e.initDefaultScenarios()
	return e
}

func (e *StressTestEngine) initDefaultScenarios() {
	// 市场急跌
	e.scenarios["MARKET_CRASH"] = StressTestScenario{
		Name:                 "MARKET_CRASH",
		Description:          "Market Crash -20%",
		MarketShock:          -0.20,
		VolatilityMultiplier: 2.0,
		CorrelationIncrease:  0.3,
		LiquidityReduction:   0.5,
	}
	// 全球金融危机
	e.scenarios["GFC"] = StressTestScenario{
		Name:                 "GFC",
		Description:          "Global financial crisis, market wide crash with extreme volatility",
		MarketShock:          -0.40,
		VolatilityMultiplier: 3.0,
		CorrelationIncrease:  0.5,
		LiquidityReduction:   0.7,
	}
	// 闪崩
	e.scenarios["FLASH_CRASH"] = StressTestScenario{
		Name:                 "FLASH_CRASH",
		Description:          "Sudden index drop within minutes",
		MarketShock:          -0.15,
		VolatilityMultiplier: 2.5,
		LiquidityReduction:   0.8,
	}
	e.scenarios["COVID_LIQUIDITY_GAP"] = StressTestScenario{
		Name:                 "COVID_LIQUIDITY_GAP",
		Description:          "Pandemic sell-off with liquidity gap",
		MarketShock:          -0.30,
		VolatilityMultiplier: 2.5,
		CorrelationIncrease:  0.4,
		LiquidityReduction:   0.6,
	}
	e.scenarios["RATE_SHOCK"] = StressTestScenario{
		Name:                 "RATE_SHOCK",
		Description:          "Sharp rise in rates, moderate equity drawdown",
		MarketShock:          -0.10,
		VolatilityMultiplier: 1.5,
		CorrelationIncrease:  0.2,
		LiquidityReduction:   0.2,
	}
}

// Scenario 按名称查找场景，大小写不敏感
func (e *StressTestEngine) Scenario(name string) (StressTestScenario, bool) {
	s, ok := e.scenarios[strings.ToUpper(strings.TrimSpace(name))]
	return s, ok
}

// Scenarios 返回按名称排序的内置场景
func (e *StressTestEngine) Scenarios() []StressTestScenario {
	out := make([]StressTestScenario, 0, len(e.scenarios))
	for _, s := range e.scenarios {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b StressTestScenario) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Run 在组合上执行场景，传入的组合不会被修改
func (e *StressTestEngine) Run(p *Portfolio, snap *MarketSnapshot, s StressTestScenario) *StressTestResult {
	shock := finiteOr(s.MarketShock, 0)
	volMult := finiteOr(s.VolatilityMultiplier, 0)

	res := &StressTestResult{
		Scenario:       s,
		BaseValue:      p.TotalValue,
		WorstPositions: []PositionLoss{},
		BreachedLimits: []string{},
		Timestamp:      e.now(),
	}

	var totalLoss float64
	for _, pos := range p.Positions {
		posShock := shock * snap.Beta(pos.Symbol) * volMult
		loss := finiteOr(-(pos.MarketValue * posShock), 0)
		totalLoss += loss
		if loss > 0 {
			res.WorstPositions = append(res.WorstPositions, PositionLoss{
				Symbol:      pos.Symbol,
				MarketValue: pos.MarketValue,
				Shock:       posShock,
				Loss:        loss,
			})
		}
	}
	slices.SortStableFunc(res.WorstPositions, func(a, b PositionLoss) int {
		switch {
		case a.Loss > b.Loss:
			return -1
		case a.Loss < b.Loss:
			return 1
		}
		return 0
	})
	if len(res.WorstPositions) > maxWorstPositions {
		res.WorstPositions = res.WorstPositions[:maxWorstPositions]
	}

	res.StressedValue = p.TotalValue - totalLoss
	res.Loss = totalLoss
	if p.TotalValue != 0 {
		res.LossPercent = finiteOr(totalLoss/p.TotalValue*100, 0)
	}

	// 压力收益序列：放大波动并叠加冲击的日均摊
	var returns []float64
	if snap != nil {
		returns = make([]float64, len(snap.Returns))
		for i, r := range snap.Returns {
			returns[i] = r*volMult + shock/TradingDaysPerYear
		}
	}
	res.StressedVaR95 = e.calc.VaR(returns, 0.95, res.StressedValue)
	res.StressedVaR99 = e.calc.VaR(returns, 0.99, res.StressedValue)
	res.StressedLiquidityScore = e.stressedLiquidity(p, snap, s.LiquidityReduction)

	if l := p.Limits; l != nil {
		if l.MaxVar95 != nil && res.StressedVaR95 > *l.MaxVar95 {
			res.BreachedLimits = append(res.BreachedLimits, BreachMaxVar95)
		}
		if l.MaxDrawdown != nil && p.TotalValue > 0 && totalLoss/p.TotalValue > *l.MaxDrawdown {
			res.BreachedLimits = append(res.BreachedLimits, BreachMaxDrawdown)
		}
	}
	res.Recommendations = stressRecommendations(s, res)
	return res
}

// stressedLiquidity 成交量按场景萎缩后的流动性评分
func (e *StressTestEngine) stressedLiquidity(p *Portfolio, snap *MarketSnapshot, reduction float64) float64 {
	factor := 1 - clamp01(finiteOr(reduction, 0))
	stressed := &MarketSnapshot{AverageVolumes: make(map[string]float64, len(p.Positions))}
	for _, pos := range p.Positions {
		stressed.AverageVolumes[pos.Symbol] = snap.AverageVolume(pos.Symbol) * factor
	}
	return e.calc.LiquidityScore(p, stressed)
}

func stressRecommendations(s StressTestScenario, res *StressTestResult) []string {
	var recs []string
	if res.BaseValue > 0 && math.Abs(res.Loss/res.BaseValue) > stressHedgingThreshold {
		recs = append(recs,
			"Consider implementing hedging strategies",
			"Reduce position concentration",
		)
	}
	if s.MarketShock < 0 {
		recs = append(recs,
			"Increase allocation to defensive sectors",
			"Consider safe-haven assets",
		)
	}
	if len(res.BreachedLimits) > 0 {
		recs = append(recs, "Stressed risk breaches limits: "+strings.Join(res.BreachedLimits, ", "))
	}
	return recs
}
