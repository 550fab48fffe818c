package domain

import (
	"fmt"
	"math"
	"time"

	"github.com/wyfcoding/pkg/idgen"
)

// 建议阈值
const (
	recConcentrationThreshold = 0.7
	recSharpeThreshold        = 0.5
	recDrawdownThreshold      = 0.15
	recLiquidityThreshold     = 0.5
	recLeverageThreshold      = 2.0
)

// RiskLimitEvaluator 将风险指标与限额比较，生成告警、总体等级与建议
type RiskLimitEvaluator struct {
	now func() time.Time
}

// NewRiskLimitEvaluator 创建限额评估器
func NewRiskLimitEvaluator() *RiskLimitEvaluator {
	return &RiskLimitEvaluator{now: time.Now}
}

// newAlertID 生成告警 ID，格式为 "RA" + 雪花 ID
func newAlertID() string {
	return fmt.Sprintf("RA%d", idgen.GenID())
}

// newAlert 构造告警并填充建议处置
func newAlert(level RiskLevel, metric MetricType, msg string, current, threshold float64, ts time.Time) *RiskAlert {
	return &RiskAlert{
		ID:                newAlertID(),
		Level:             level,
		Metric:            metric,
		Message:           msg,
		CurrentValue:      current,
		Threshold:         threshold,
		Timestamp:         ts,
		RecommendedAction: metric.RecommendedAction(),
	}
}

// CheckLimits 每个被突破的限额生成一条告警
func (e *RiskLimitEvaluator) CheckLimits(p *Portfolio, m RiskMetrics) []*RiskAlert {
	limits := p.Limits
	if limits == nil {
		return nil
	}
	ts := e.now()
	var alerts []*RiskAlert

	if l := limits.MaxVar95; l != nil && m.VaR95 > *l {
		alerts = append(alerts, newAlert(RiskLevelHigh, MetricVaR,
			fmt.Sprintf("VaR95 %.2f exceeds limit %.2f", m.VaR95, *l), m.VaR95, *l, ts))
	}
	if l := limits.MaxDrawdown; l != nil && m.CurrentDrawdown > *l {
		alerts = append(alerts, newAlert(RiskLevelCritical, MetricDrawdown,
			fmt.Sprintf("current drawdown %.2f%% exceeds limit %.2f%%", m.CurrentDrawdown*100, *l*100), m.CurrentDrawdown, *l, ts))
	}
	if l := limits.MaxVolatility; l != nil && m.Volatility > *l {
		alerts = append(alerts, newAlert(RiskLevelMedium, MetricVolatility,
			fmt.Sprintf("volatility %.2f%% exceeds limit %.2f%%", m.Volatility*100, *l*100), m.Volatility, *l, ts))
	}
	if l := limits.MinSharpeRatio; l != nil && m.SharpeRatio < *l {
		alerts = append(alerts, newAlert(RiskLevelLow, MetricSharpe,
			fmt.Sprintf("sharpe ratio %.2f below minimum %.2f", m.SharpeRatio, *l), m.SharpeRatio, *l, ts))
	}
	if l := limits.MaxBeta; l != nil && m.Beta > *l {
		alerts = append(alerts, newAlert(RiskLevelMedium, MetricBeta,
			fmt.Sprintf("beta %.2f exceeds limit %.2f", m.Beta, *l), m.Beta, *l, ts))
	}
	if l := limits.MaxLeverage; l != nil && m.Leverage > *l {
		alerts = append(alerts, newAlert(RiskLevelHigh, MetricLeverage,
			fmt.Sprintf("leverage %.2fx exceeds limit %.2fx", m.Leverage, *l), m.Leverage, *l, ts))
	}
	if l := limits.MaxSinglePosition; l != nil && p.TotalValue > 0 {
		for _, pos := range p.Positions {
			w := math.Abs(pos.MarketValue) / p.TotalValue
			if w > *l {
				alert := newAlert(RiskLevelMedium, MetricConcentration,
					fmt.Sprintf("position %s weight %.2f%% exceeds limit %.2f%%", pos.Symbol, w*100, *l*100), w, *l, ts)
				alerts = append(alerts, alert)
			}
		}
	}

	for _, a := range alerts {
		a.PortfolioID = p.ID
	}
	return alerts
}

// OverallLevel 根据告警等级分布归并总体风险等级
func (e *RiskLimitEvaluator) OverallLevel(alerts []*RiskAlert) RiskLevel {
	var high, medium int
	for _, a := range alerts {
		switch a.Level {
		case RiskLevelCritical:
			return RiskLevelCritical
		case RiskLevelHigh:
			high++
		case RiskLevelMedium:
			medium++
		case RiskLevelLow:
		}
	}
	switch {
	case high >= 2:
		return RiskLevelHigh
	case high >= 1 || medium >= 3:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// Recommendations 基于指标阈值给出建议，与告警相互独立
func (e *RiskLimitEvaluator) Recommendations(m RiskMetrics) []string {
	var recs []string
	if m.ConcentrationScore > recConcentrationThreshold {
		recs = append(recs, "Consider diversifying portfolio to reduce concentration risk")
	}
	if m.SharpeRatio < recSharpeThreshold {
		recs = append(recs, "Review strategy performance; risk-adjusted returns are below target")
	}
	if m.CurrentDrawdown > recDrawdownThreshold {
		recs = append(recs, "Consider reducing position sizes to limit further drawdown")
	}
	if m.LiquidityScore < recLiquidityThreshold {
		recs = append(recs, "Increase allocation to more liquid assets")
	}
	if m.Leverage > recLeverageThreshold {
		recs = append(recs, "Reduce gross exposure; leverage is above 2x")
	}
	return recs
}

// RequiresAction 存在 HIGH 或 CRITICAL 告警
func RequiresAction(alerts []*RiskAlert) bool {
	for _, a := range alerts {
		if a.Level.Rank() >= RiskLevelHigh.Rank() {
			return true
		}
	}
	return false
}
