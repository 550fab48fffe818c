// Package domain 组合风险评估与事前风控的领域模型、风险计算引擎与协作者接口
package domain

import (
	"errors"
	"time"
)

var (
	// ErrPortfolioNotFound 组合不存在
	ErrPortfolioNotFound = errors.New("portfolio not found")
	// ErrInvalidOrder 订单参数非法
	ErrInvalidOrder = errors.New("invalid order")
	// ErrScenarioNotFound 压力场景不存在
	ErrScenarioNotFound = errors.New("stress scenario not found")
	// ErrAlertNotFound 告警不存在或已过期
	ErrAlertNotFound = errors.New("risk alert not found")
)

// RiskLevel 风险等级
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

// Rank 返回等级的序数，用于比较严重程度
func (l RiskLevel) Rank() int {
	switch l {
	case RiskLevelLow:
		return 0
	case RiskLevelMedium:
		return 1
	case RiskLevelHigh:
		return 2
	case RiskLevelCritical:
		return 3
	}
	return -1
}

// MetricType 触发告警的风险指标
type MetricType string

const (
	MetricVaR           MetricType = "VAR"
	MetricDrawdown      MetricType = "DRAWDOWN"
	MetricVolatility    MetricType = "VOLATILITY"
	MetricSharpe        MetricType = "SHARPE"
	MetricBeta          MetricType = "BETA"
	MetricLeverage      MetricType = "LEVERAGE"
	MetricConcentration MetricType = "CONCENTRATION"
	MetricLiquidity     MetricType = "LIQUIDITY"
)

// RecommendedAction 指标突破后的建议处置
func (m MetricType) RecommendedAction() string {
	switch m {
	case MetricVaR:
		return "Reduce portfolio leverage and consider hedging strategies"
	case MetricDrawdown:
		return "Review stop-loss levels and cut losing positions"
	case MetricVolatility:
		return "Reduce exposure to high-volatility instruments"
	case MetricSharpe:
		return "Review strategy performance and risk-adjusted returns"
	case MetricBeta:
		return "Reduce market exposure or hedge with index instruments"
	case MetricLeverage:
		return "Deleverage by closing or reducing gross positions"
	case MetricConcentration:
		return "Rebalance portfolio to reduce position size"
	case MetricLiquidity:
		return "Scale into illiquid names over multiple sessions"
	}
	return "Review position and risk limits"
}

// RiskMetrics 组合风险指标快照，所有字段保证为有限值
type RiskMetrics struct {
	VaR95              float64 `json:"var_95"`
	VaR99              float64 `json:"var_99"`
	CVaR               float64 `json:"cvar"`
	SharpeRatio        float64 `json:"sharpe_ratio"`
	Volatility         float64 `json:"volatility"`
	MaxDrawdown        float64 `json:"max_drawdown"`
	CurrentDrawdown    float64 `json:"current_drawdown"`
	Beta               float64 `json:"beta"`
	Leverage           float64 `json:"leverage"`
	LiquidityScore     float64 `json:"liquidity_score"`
	ConcentrationScore float64 `json:"concentration_score"`
}

// RiskAlert 风险告警
type RiskAlert struct {
	ID                string     `json:"id"`
	Level             RiskLevel  `json:"level"`
	Metric            MetricType `json:"metric"`
	Message           string     `json:"message"`
	CurrentValue      float64    `json:"current_value"`
	Threshold         float64    `json:"threshold"`
	Timestamp         time.Time  `json:"timestamp"`
	PortfolioID       string     `json:"portfolio_id,omitempty"`
	OrderID           string     `json:"order_id,omitempty"`
	StrategyID        string     `json:"strategy_id,omitempty"`
	Resolved          bool       `json:"resolved"`
	RecommendedAction string     `json:"recommended_action"`
}

// RiskAssessment 组合风险评估结果
type RiskAssessment struct {
	PortfolioID      string       `json:"portfolio_id"`
	Timestamp        time.Time    `json:"timestamp"`
	OverallRiskLevel RiskLevel    `json:"overall_risk_level"`
	Metrics          RiskMetrics  `json:"metrics"`
	Alerts           []*RiskAlert `json:"alerts"`
	Recommendations  []string     `json:"recommendations"`
	RequiresAction   bool         `json:"requires_action"`
}

// CriticalAlerts 返回评估中等级为 CRITICAL 的告警
func (a *RiskAssessment) CriticalAlerts() []*RiskAlert {
	var out []*RiskAlert
	for _, alert := range a.Alerts {
		if alert.Level == RiskLevelCritical {
			out = append(out, alert)
		}
	}
	return out
}
