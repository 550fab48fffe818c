package domain

import (
	"math"
	"time"
)

// OrderSide 买卖方向
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Valid 是否为已知方向
func (s OrderSide) Valid() bool {
	switch s {
	case SideBuy, SideSell:
		return true
	}
	return false
}

// Position 组合中的单个持仓，数量为负表示空头
type Position struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	AverageCost  float64 `json:"average_cost"`
	CurrentPrice float64 `json:"current_price"`
	MarketValue  float64 `json:"market_value"`
	Weight       float64 `json:"weight"` // 占组合总值百分比
	Currency     string  `json:"currency"`
}

// RiskLimits 组合风险限额，nil 字段表示不设限
type RiskLimits struct {
	MaxVar95          *float64 `json:"max_var_95,omitempty"`
	MaxDrawdown       *float64 `json:"max_drawdown,omitempty"`
	MaxVolatility     *float64 `json:"max_volatility,omitempty"`
	MinSharpeRatio    *float64 `json:"min_sharpe_ratio,omitempty"`
	MaxBeta           *float64 `json:"max_beta,omitempty"`
	MaxLeverage       *float64 `json:"max_leverage,omitempty"`
	MaxSinglePosition *float64 `json:"max_single_position,omitempty"` // 单一持仓占比上限 (0~1)
}

// Clone 深拷贝限额
func (l *RiskLimits) Clone() *RiskLimits {
	if l == nil {
		return nil
	}
	return &RiskLimits{
		MaxVar95:          clonePtr(l.MaxVar95),
		MaxDrawdown:       clonePtr(l.MaxDrawdown),
		MaxVolatility:     clonePtr(l.MaxVolatility),
		MinSharpeRatio:    clonePtr(l.MinSharpeRatio),
		MaxBeta:           clonePtr(l.MaxBeta),
		MaxLeverage:       clonePtr(l.MaxLeverage),
		MaxSinglePosition: clonePtr(l.MaxSinglePosition),
	}
}

func clonePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Float 构造限额字段的便捷函数
func Float(v float64) *float64 { return &v }

// NAVPoint 净值序列上的一个点
type NAVPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Portfolio 组合快照
type Portfolio struct {
	ID              string      `json:"id"`
	TotalValue      float64     `json:"total_value"`
	CashBalance     float64     `json:"cash_balance"`
	Positions       []Position  `json:"positions"`
	BenchmarkSymbol string      `json:"benchmark_symbol,omitempty"`
	Limits          *RiskLimits `json:"limits,omitempty"`
	NAVHistory      []NAVPoint  `json:"nav_history,omitempty"`
}

// Clone 深拷贝组合，模拟计算只在副本上进行
func (p *Portfolio) Clone() *Portfolio {
	c := &Portfolio{
		ID:              p.ID,
		TotalValue:      p.TotalValue,
		CashBalance:     p.CashBalance,
		BenchmarkSymbol: p.BenchmarkSymbol,
		Limits:          p.Limits.Clone(),
	}
	if p.Positions != nil {
		c.Positions = make([]Position, len(p.Positions))
		copy(c.Positions, p.Positions)
	}
	if p.NAVHistory != nil {
		c.NAVHistory = make([]NAVPoint, len(p.NAVHistory))
		copy(c.NAVHistory, p.NAVHistory)
	}
	return c
}

// Position 按标的查找持仓
func (p *Portfolio) Position(symbol string) (*Position, bool) {
	for i := range p.Positions {
		if p.Positions[i].Symbol == symbol {
			return &p.Positions[i], true
		}
	}
	return nil, false
}

// GrossExposure 持仓市值绝对值之和
func (p *Portfolio) GrossExposure() float64 {
	var gross float64
	for _, pos := range p.Positions {
		gross += math.Abs(pos.MarketValue)
	}
	return gross
}

// Revalidate 重新计算持仓市值与权重，并返回总值与 现金+市值 之间的偏差
func (p *Portfolio) Revalidate() float64 {
	var sum float64
	for i := range p.Positions {
		pos := &p.Positions[i]
		pos.MarketValue = pos.Quantity * pos.CurrentPrice
		sum += pos.MarketValue
	}
	p.reweight()
	return p.TotalValue - (p.CashBalance + sum)
}

func (p *Portfolio) reweight() {
	for i := range p.Positions {
		pos := &p.Positions[i]
		if p.TotalValue != 0 {
			pos.Weight = pos.MarketValue / p.TotalValue * 100
		} else {
			pos.Weight = 0
		}
	}
}

// ApplyOrder 将订单作用于组合 (应在 Clone 后的副本上调用)
// 买入: 总值增加名义金额，现金减少名义金额；卖出相反
func (p *Portfolio) ApplyOrder(o *Order) {
	notional := o.Quantity * o.Price
	qty := o.Quantity
	if o.Side == SideSell {
		notional = -notional
		qty = -qty
	}

	p.TotalValue += notional
	p.CashBalance -= notional

	pos, ok := p.Position(o.Symbol)
	if !ok {
		p.Positions = append(p.Positions, Position{
			Symbol:       o.Symbol,
			Quantity:     qty,
			AverageCost:  o.Price,
			CurrentPrice: o.Price,
		})
		pos = &p.Positions[len(p.Positions)-1]
	} else {
		// 同向加仓更新均价
		if pos.Quantity*qty > 0 {
			total := pos.Quantity + qty
			pos.AverageCost = (pos.AverageCost*pos.Quantity + o.Price*qty) / total
		}
		pos.Quantity += qty
		if pos.CurrentPrice == 0 {
			pos.CurrentPrice = o.Price
		}
	}
	pos.MarketValue = pos.Quantity * pos.CurrentPrice
	p.reweight()
}
