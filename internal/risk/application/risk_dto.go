package application

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/portfoliorisk/internal/risk/domain"
)

// OrderRequest 事前风控请求 DTO，金额与数量以十进制字符串传输
type OrderRequest struct {
	OrderID    string `json:"order_id"`
	Symbol     string `json:"symbol" binding:"required"`
	Side       string `json:"side" binding:"required"`
	Quantity   string `json:"quantity" binding:"required"`
	Price      string `json:"price" binding:"required"`
	StrategyID string `json:"strategy_id"`
}

// ToOrder 解析为领域订单
func (r *OrderRequest) ToOrder() (*domain.Order, error) {
	qty, err := decimal.NewFromString(r.Quantity)
	if err != nil {
		return nil, fmt.Errorf("%w: quantity %q", domain.ErrInvalidOrder, r.Quantity)
	}
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return nil, fmt.Errorf("%w: price %q", domain.ErrInvalidOrder, r.Price)
	}
	o := &domain.Order{
		ID:         r.OrderID,
		Symbol:     strings.ToUpper(strings.TrimSpace(r.Symbol)),
		Side:       domain.OrderSide(strings.ToUpper(r.Side)),
		Quantity:   qty.InexactFloat64(),
		Price:      price.InexactFloat64(),
		StrategyID: r.StrategyID,
	}
	return o, o.Validate()
}

// StressScenarioRequest 自定义压力场景请求 DTO
type StressScenarioRequest struct {
	Name                 string   `json:"name" binding:"required"`
	Description          string   `json:"description"`
	MarketShock          float64  `json:"market_shock"`
	VolatilityMultiplier *float64 `json:"volatility_multiplier"`
	CorrelationIncrease  float64  `json:"correlation_increase"`
	LiquidityReduction   float64  `json:"liquidity_reduction"`
}

// ToScenario 转换为领域场景，未给出波动率倍数时按 1 处理
func (r *StressScenarioRequest) ToScenario() domain.StressTestScenario {
	volMultiplier := 1.0
	if r.VolatilityMultiplier != nil {
		volMultiplier = *r.VolatilityMultiplier
	}
	return domain.StressTestScenario{
		Name:                 r.Name,
		Description:          r.Description,
		MarketShock:          r.MarketShock,
		VolatilityMultiplier: volMultiplier,
		CorrelationIncrease:  r.CorrelationIncrease,
		LiquidityReduction:   r.LiquidityReduction,
	}
}

// MonteCarloRequest 蒙特卡洛请求 DTO
type MonteCarloRequest struct {
	Simulations int `json:"simulations"`
	Horizon     int `json:"horizon"`
}

// RiskMetricsDTO 风险指标 DTO
type RiskMetricsDTO struct {
	VaR95              string  `json:"var_95"`
	VaR99              string  `json:"var_99"`
	CVaR               string  `json:"cvar"`
	SharpeRatio        float64 `json:"sharpe_ratio"`
	Volatility         float64 `json:"volatility"`
	MaxDrawdown        float64 `json:"max_drawdown"`
	CurrentDrawdown    float64 `json:"current_drawdown"`
	Beta               float64 `json:"beta"`
	Leverage           float64 `json:"leverage"`
	LiquidityScore     float64 `json:"liquidity_score"`
	ConcentrationScore float64 `json:"concentration_score"`
}

// RiskAlertDTO 风险告警 DTO
type RiskAlertDTO struct {
	ID                string  `json:"id"`
	Level             string  `json:"level"`
	Metric            string  `json:"metric"`
	Message           string  `json:"message"`
	CurrentValue      float64 `json:"current_value"`
	Threshold         float64 `json:"threshold"`
	Timestamp         int64   `json:"timestamp"`
	PortfolioID       string  `json:"portfolio_id,omitempty"`
	OrderID           string  `json:"order_id,omitempty"`
	StrategyID        string  `json:"strategy_id,omitempty"`
	Resolved          bool    `json:"resolved"`
	RecommendedAction string  `json:"recommended_action"`
}

// RiskAssessmentDTO 组合风险评估 DTO
type RiskAssessmentDTO struct {
	PortfolioID      string          `json:"portfolio_id"`
	OverallRiskLevel string          `json:"overall_risk_level"`
	Metrics          RiskMetricsDTO  `json:"metrics"`
	Alerts           []*RiskAlertDTO `json:"alerts"`
	Recommendations  []string        `json:"recommendations"`
	RequiresAction   bool            `json:"requires_action"`
	Timestamp        int64           `json:"timestamp"`
}

// OrderAdjustmentsDTO 订单调整建议 DTO
type OrderAdjustmentsDTO struct {
	ReducedQuantity string   `json:"reduced_quantity,omitempty"`
	ChildOrders     int      `json:"child_orders,omitempty"`
	SplitStrategy   string   `json:"split_strategy,omitempty"`
	SplitWindowSecs int64    `json:"split_window_secs,omitempty"`
	HedgeInstrument string   `json:"hedge_instrument,omitempty"`
	HedgeRatio      float64  `json:"hedge_ratio,omitempty"`
	Notes           []string `json:"notes,omitempty"`
}

// OrderRiskDTO 事前风控结果 DTO
type OrderRiskDTO struct {
	Approved    bool                 `json:"approved"`
	RiskScore   int                  `json:"risk_score"`
	Alerts      []*RiskAlertDTO      `json:"alerts"`
	Adjustments *OrderAdjustmentsDTO `json:"adjustments,omitempty"`
}

// PositionLossDTO 持仓压力损失 DTO
type PositionLossDTO struct {
	Symbol      string  `json:"symbol"`
	MarketValue string  `json:"market_value"`
	Shock       float64 `json:"shock"`
	Loss        string  `json:"loss"`
}

// StressTestResultDTO 压力测试结果 DTO
type StressTestResultDTO struct {
	Scenario               domain.StressTestScenario `json:"scenario"`
	BaseValue              string                    `json:"base_value"`
	StressedValue          string                    `json:"stressed_value"`
	Loss                   string                    `json:"loss"`
	LossPercent            float64                   `json:"loss_percent"`
	StressedVaR95          string                    `json:"stressed_var_95"`
	StressedVaR99          string                    `json:"stressed_var_99"`
	StressedLiquidityScore float64                   `json:"stressed_liquidity_score"`
	WorstPositions         []PositionLossDTO         `json:"worst_positions"`
	BreachedLimits         []string                  `json:"breached_limits"`
	Recommendations        []string                  `json:"recommendations"`
	Timestamp              int64                     `json:"timestamp"`
}

// MonteCarloResultDTO 蒙特卡洛结果 DTO
type MonteCarloResultDTO struct {
	InitialValue   string             `json:"initial_value"`
	Horizon        int                `json:"horizon"`
	PathsRequested int                `json:"paths_requested"`
	PathsCompleted int                `json:"paths_completed"`
	Partial        bool               `json:"partial"`
	CappedPaths    int                `json:"capped_paths"`
	ExpectedValue  string             `json:"expected_value"`
	Percentiles    map[string]string  `json:"percentiles"`
	Probabilities  map[string]float64 `json:"probabilities"`
	Simulations    []string           `json:"simulations"`
	DurationMs     int64              `json:"duration_ms"`
}

// money 保留两位小数；decimal 不能表示 NaN/Inf，此时返回空串
func money(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ""
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

// ToRiskAlertDTO 告警转 DTO
func ToRiskAlertDTO(a *domain.RiskAlert) *RiskAlertDTO {
	return &RiskAlertDTO{
		ID:                a.ID,
		Level:             string(a.Level),
		Metric:            string(a.Metric),
		Message:           a.Message,
		CurrentValue:      a.CurrentValue,
		Threshold:         a.Threshold,
		Timestamp:         a.Timestamp.Unix(),
		PortfolioID:       a.PortfolioID,
		OrderID:           a.OrderID,
		StrategyID:        a.StrategyID,
		Resolved:          a.Resolved,
		RecommendedAction: a.RecommendedAction,
	}
}

func toAlertDTOs(alerts []*domain.RiskAlert) []*RiskAlertDTO {
	out := make([]*RiskAlertDTO, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, ToRiskAlertDTO(a))
	}
	return out
}

// ToRiskAssessmentDTO 评估结果转 DTO
func ToRiskAssessmentDTO(a *domain.RiskAssessment) *RiskAssessmentDTO {
	m := a.Metrics
	return &RiskAssessmentDTO{
		PortfolioID:      a.PortfolioID,
		OverallRiskLevel: string(a.OverallRiskLevel),
		Metrics: RiskMetricsDTO{
			VaR95:              money(m.VaR95),
			VaR99:              money(m.VaR99),
			CVaR:               money(m.CVaR),
			SharpeRatio:        m.SharpeRatio,
			Volatility:         m.Volatility,
			MaxDrawdown:        m.MaxDrawdown,
			CurrentDrawdown:    m.CurrentDrawdown,
			Beta:               m.Beta,
			Leverage:           m.Leverage,
			LiquidityScore:     m.LiquidityScore,
			ConcentrationScore: m.ConcentrationScore,
		},
		Alerts:          toAlertDTOs(a.Alerts),
		Recommendations: a.Recommendations,
		RequiresAction:  a.RequiresAction,
		Timestamp:       a.Timestamp.Unix(),
	}
}

// ToOrderRiskDTO 事前风控结果转 DTO
func ToOrderRiskDTO(r *domain.OrderRiskResult) *OrderRiskDTO {
	dto := &OrderRiskDTO{
		Approved:  r.Approved,
		RiskScore: r.RiskScore,
		Alerts:    toAlertDTOs(r.Alerts),
	}
	if adj := r.Adjustments; adj != nil {
		a := &OrderAdjustmentsDTO{Notes: adj.Notes}
		if adj.ReducedQuantity != nil {
			a.ReducedQuantity = decimal.NewFromFloat(*adj.ReducedQuantity).String()
		}
		if adj.Split != nil {
			a.ChildOrders = adj.Split.ChildOrders
			a.SplitStrategy = adj.Split.Strategy
			a.SplitWindowSecs = int64(adj.Split.Window.Seconds())
		}
		if adj.Hedge != nil {
			a.HedgeInstrument = adj.Hedge.Instrument
			a.HedgeRatio = adj.Hedge.HedgeRatio
		}
		dto.Adjustments = a
	}
	return dto
}

// ToStressTestResultDTO 压力测试结果转 DTO
func ToStressTestResultDTO(r *domain.StressTestResult) *StressTestResultDTO {
	worst := make([]PositionLossDTO, 0, len(r.WorstPositions))
	for _, w := range r.WorstPositions {
		worst = append(worst, PositionLossDTO{
			Symbol:      w.Symbol,
			MarketValue: money(w.MarketValue),
			Shock:       w.Shock,
			Loss:        money(w.Loss),
		})
	}
	return &StressTestResultDTO{
		Scenario:               r.Scenario,
		BaseValue:              money(r.BaseValue),
		StressedValue:          money(r.StressedValue),
		Loss:                   money(r.Loss),
		LossPercent:            r.LossPercent,
		StressedVaR95:          money(r.StressedVaR95),
		StressedVaR99:          money(r.StressedVaR99),
		StressedLiquidityScore: r.StressedLiquidityScore,
		WorstPositions:         worst,
		BreachedLimits:         r.BreachedLimits,
		Recommendations:        r.Recommendations,
		Timestamp:              r.Timestamp.Unix(),
	}
}

// ToMonteCarloResultDTO 蒙特卡洛结果转 DTO
func ToMonteCarloResultDTO(r *domain.MonteCarloResult) *MonteCarloResultDTO {
	pct := make(map[string]string, len(r.Percentiles))
	for p, v := range r.Percentiles {
		pct[fmt.Sprintf("p%d", p)] = money(v)
	}
	sims := make([]string, 0, len(r.Simulations))
	for _, v := range r.Simulations {
		sims = append(sims, money(v))
	}
	return &MonteCarloResultDTO{
		InitialValue:   money(r.InitialValue),
		Horizon:        r.Horizon,
		PathsRequested: r.PathsRequested,
		PathsCompleted: r.PathsCompleted,
		Partial:        r.Partial,
		CappedPaths:    r.CappedPaths,
		ExpectedValue:  money(r.ExpectedValue),
		Percentiles:    pct,
		Probabilities:  r.Probabilities,
		Simulations:    sims,
		DurationMs:     r.Duration.Milliseconds(),
	}
}
