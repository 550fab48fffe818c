package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// 事前风控评分规则
const (
	preTradeVaRIncreaseLimit  = 0.10 // VaR95 相对增幅
	preTradeMaxPositionWeight = 10.0 // 单一持仓权重 (%)
	preTradeDefaultLeverage   = 2.0
	preTradeMinLiquidity      = 0.5
	preTradeRejectScore       = 50

	scoreVaRIncrease   = 30
	scoreConcentration = 20
	scoreLeverage      = 40
	scoreLiquidity     = 15

	adjustQuantityFactor = 0.7
	adjustChildOrders    = 5
	adjustHedgeRatio     = 0.5
)

// Order 待评估订单
type Order struct {
	ID         string    `json:"id,omitempty"`
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	StrategyID string    `json:"strategy_id,omitempty"`
}

// Validate 校验订单基本字段
func (o *Order) Validate() error {
	var problems []string
	if strings.TrimSpace(o.Symbol) == "" {
		problems = append(problems, "symbol is required")
	}
	if !o.Side.Valid() {
		problems = append(problems, fmt.Sprintf("unknown side %q", o.Side))
	}
	if !(o.Quantity > 0) || !isFinite(o.Quantity) {
		problems = append(problems, "quantity must be positive")
	}
	if !(o.Price > 0) || !isFinite(o.Price) {
		problems = append(problems, "price must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOrder, strings.Join(problems, ", "))
	}
	return nil
}

// SplitPlan 拆单执行计划
type SplitPlan struct {
	ChildOrders int           `json:"child_orders"`
	Strategy    string        `json:"strategy"`
	Window      time.Duration `json:"window"`
}

// HedgePlan 对冲建议
type HedgePlan struct {
	Instrument string  `json:"instrument"`
	HedgeRatio float64 `json:"hedge_ratio"`
}

// OrderAdjustments 订单调整建议
type OrderAdjustments struct {
	ReducedQuantity *float64   `json:"reduced_quantity,omitempty"`
	Split           *SplitPlan `json:"split,omitempty"`
	Hedge           *HedgePlan `json:"hedge,omitempty"`
	Notes           []string   `json:"notes,omitempty"`
}

// OrderRiskResult 事前风控结果
type OrderRiskResult struct {
	Approved    bool              `json:"approved"`
	RiskScore   int               `json:"risk_score"`
	Alerts      []*RiskAlert      `json:"alerts"`
	Adjustments *OrderAdjustments `json:"adjustments,omitempty"`
}

// PreTradeRiskEvaluator 事前风控：在组合副本上模拟成交并打分
type PreTradeRiskEvaluator struct {
	calc       *RiskMetricsCalculator
	twapWindow time.Duration
	now        func() time.Time
}

// NewPreTradeRiskEvaluator 创建事前风控评估器
func NewPreTradeRiskEvaluator(calc *RiskMetricsCalculator, twapWindow time.Duration) *PreTradeRiskEvaluator {
	if twapWindow <= 0 {
		twapWindow = 30 * time.Minute
	}
	return &PreTradeRiskEvaluator{calc: calc, twapWindow: twapWindow, now: time.Now}
}

// Evaluate 评估订单。传入的组合不会被修改，snap 需已包含订单标的的数据
func (e *PreTradeRiskEvaluator) Evaluate(o *Order, p *Portfolio, snap *MarketSnapshot) *OrderRiskResult {
	ts := e.now()
	current := e.calc.Calculate(p, snap)

	sim := p.Clone()
	sim.ApplyOrder(o)
	simulated := e.calc.Calculate(sim, snap)

	var (
		alerts []*RiskAlert
		score  int
		flags  struct{ varUp, concentrated, illiquid bool }
	)
	add := func(a *RiskAlert, points int) {
		a.PortfolioID = p.ID
		a.OrderID = o.ID
		a.StrategyID = o.StrategyID
		alerts = append(alerts, a)
		score += points
	}

	// 1. VaR 增幅
	if current.VaR95 > 0 {
		increase := (simulated.VaR95 - current.VaR95) / current.VaR95
		if isFinite(increase) && increase > preTradeVaRIncreaseLimit {
			flags.varUp = true
			add(newAlert(RiskLevelHigh, MetricVaR,
				fmt.Sprintf("order increases VaR95 by %.1f%%", increase*100),
				simulated.VaR95, current.VaR95*(1+preTradeVaRIncreaseLimit), ts), scoreVaRIncrease)
		}
	}

	// 2. 集中度
	if pos, ok := sim.Position(o.Symbol); ok {
		weight := math.Abs(pos.Weight)
		if isFinite(weight) && weight > preTradeMaxPositionWeight {
			flags.concentrated = true
			add(newAlert(RiskLevelMedium, MetricConcentration,
				fmt.Sprintf("resulting %s weight %.2f%% exceeds %.0f%%", o.Symbol, weight, preTradeMaxPositionWeight),
				weight, preTradeMaxPositionWeight, ts), scoreConcentration)
		}
	}

	// 3. 杠杆
	leverageLimit := LeverageLimit(p.Limits)
	if simulated.Leverage > leverageLimit {
		add(newAlert(RiskLevelHigh, MetricLeverage,
			fmt.Sprintf("resulting leverage %.2fx exceeds %.2fx", simulated.Leverage, leverageLimit),
			simulated.Leverage, leverageLimit, ts), scoreLeverage)
	}

	// 4. 订单流动性
	liquidity := OrderLiquidityScore(o.Quantity, snap.AverageVolume(o.Symbol))
	if liquidity < preTradeMinLiquidity {
		flags.illiquid = true
		add(newAlert(RiskLevelMedium, MetricLiquidity,
			fmt.Sprintf("order size is large relative to %s average volume", o.Symbol),
			liquidity, preTradeMinLiquidity, ts), scoreLiquidity)
	}

	approved := score < preTradeRejectScore
	for _, a := range alerts {
		if a.Level == RiskLevelCritical {
			approved = false
		}
	}

	res := &OrderRiskResult{Approved: approved, RiskScore: score, Alerts: alerts}
	if flags.varUp || flags.concentrated || flags.illiquid {
		res.Adjustments = e.adjustments(o, flags.varUp, flags.concentrated, flags.illiquid)
	}
	return res
}

func (e *PreTradeRiskEvaluator) adjustments(o *Order, varUp, concentrated, illiquid bool) *OrderAdjustments {
	adj := &OrderAdjustments{}
	if concentrated {
		q := math.Floor(o.Quantity * adjustQuantityFactor)
		adj.ReducedQuantity = &q
		adj.Notes = append(adj.Notes, fmt.Sprintf("reduce quantity to %.0f", q))
	}
	if illiquid {
		adj.Split = &SplitPlan{ChildOrders: adjustChildOrders, Strategy: "TWAP", Window: e.twapWindow}
		adj.Notes = append(adj.Notes, fmt.Sprintf("split into %d child orders using TWAP", adjustChildOrders))
	}
	if varUp {
		adj.Hedge = &HedgePlan{Instrument: "PROTECTIVE_PUT", HedgeRatio: adjustHedgeRatio}
		adj.Notes = append(adj.Notes, "hedge with protective options")
	}
	return adj
}

// LeverageLimit 杠杆上限：MaxLeverage 优先，其次 MaxBeta，默认 2
func LeverageLimit(l *RiskLimits) float64 {
	if l != nil {
		if l.MaxLeverage != nil && *l.MaxLeverage > 0 {
			return *l.MaxLeverage
		}
		if l.MaxBeta != nil && *l.MaxBeta > 0 {
			return *l.MaxBeta
		}
	}
	return preTradeDefaultLeverage
}

// OrderLiquidityScore 按订单数量占日均成交量比例分档
func OrderLiquidityScore(quantity, adv float64) float64 {
	if adv <= 0 || !isFinite(adv) {
		return 0
	}
	ratio := quantity / adv
	switch {
	case ratio < 0.01:
		return 1.0
	case ratio < 0.05:
		return 0.8
	case ratio < 0.10:
		return 0.6
	case ratio < 0.20:
		return 0.4
	default:
		return 0.2
	}
}
