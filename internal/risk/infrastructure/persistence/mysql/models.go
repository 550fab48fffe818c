package mysql

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/portfoliorisk/internal/risk/domain"
)

// PortfolioModel MySQL 组合表映射，限额列为空表示不设限
type PortfolioModel struct {
	ID              string          `gorm:"primaryKey;type:varchar(36);column:id"`
	TotalValue      decimal.Decimal `gorm:"column:total_value;type:decimal(24,8);not null"`
	CashBalance     decimal.Decimal `gorm:"column:cash_balance;type:decimal(24,8);not null"`
	BenchmarkSymbol string          `gorm:"column:benchmark_symbol;type:varchar(20)"`

	MaxVar95          decimal.NullDecimal `gorm:"column:max_var_95;type:decimal(24,8)"`
	MaxDrawdown       decimal.NullDecimal `gorm:"column:max_drawdown;type:decimal(10,6)"`
	MaxVolatility     decimal.NullDecimal `gorm:"column:max_volatility;type:decimal(10,6)"`
	MinSharpeRatio    decimal.NullDecimal `gorm:"column:min_sharpe_ratio;type:decimal(10,6)"`
	MaxBeta           decimal.NullDecimal `gorm:"column:max_beta;type:decimal(10,6)"`
	MaxLeverage       decimal.NullDecimal `gorm:"column:max_leverage;type:decimal(10,6)"`
	MaxSinglePosition decimal.NullDecimal `gorm:"column:max_single_position;type:decimal(10,6)"`

	Positions  []PositionModel `gorm:"foreignKey:PortfolioID;references:ID"`
	NAVHistory []NAVPointModel `gorm:"foreignKey:PortfolioID;references:ID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (PortfolioModel) TableName() string { return "risk_portfolios" }

// PositionModel MySQL 持仓表映射
type PositionModel struct {
	ID           uint            `gorm:"primaryKey;autoIncrement"`
	PortfolioID  string          `gorm:"column:portfolio_id;type:varchar(36);uniqueIndex:uk_portfolio_symbol;not null"`
	Symbol       string          `gorm:"column:symbol;type:varchar(20);uniqueIndex:uk_portfolio_symbol;not null"`
	Quantity     decimal.Decimal `gorm:"column:quantity;type:decimal(24,8);not null"`
	AverageCost  decimal.Decimal `gorm:"column:average_cost;type:decimal(24,8);not null"`
	CurrentPrice decimal.Decimal `gorm:"column:current_price;type:decimal(24,8);not null"`
	Currency     string          `gorm:"column:currency;type:varchar(8)"`
}

func (PositionModel) TableName() string { return "risk_positions" }

// NAVPointModel MySQL 组合净值表映射
type NAVPointModel struct {
	ID          uint            `gorm:"primaryKey;autoIncrement"`
	PortfolioID string          `gorm:"column:portfolio_id;type:varchar(36);index:idx_nav_portfolio_time;not null"`
	At          time.Time       `gorm:"column:at;index:idx_nav_portfolio_time;not null"`
	Value       decimal.Decimal `gorm:"column:value;type:decimal(24,8);not null"`
}

func (NAVPointModel) TableName() string { return "risk_nav_points" }

// PortfolioReturnModel MySQL 组合日收益率表映射
type PortfolioReturnModel struct {
	PortfolioID string    `gorm:"primaryKey;column:portfolio_id;type:varchar(36)"`
	TradeDate   time.Time `gorm:"primaryKey;column:trade_date"`
	Return      float64   `gorm:"column:daily_return;not null"`
}

func (PortfolioReturnModel) TableName() string { return "risk_portfolio_returns" }

// BenchmarkReturnModel MySQL 基准日收益率表映射
type BenchmarkReturnModel struct {
	Symbol    string    `gorm:"primaryKey;column:symbol;type:varchar(20)"`
	TradeDate time.Time `gorm:"primaryKey;column:trade_date"`
	Return    float64   `gorm:"column:daily_return;not null"`
}

func (BenchmarkReturnModel) TableName() string { return "risk_benchmark_returns" }

// InstrumentStatsModel MySQL 标的统计表映射
type InstrumentStatsModel struct {
	Symbol        string          `gorm:"primaryKey;column:symbol;type:varchar(20)"`
	Beta          decimal.Decimal `gorm:"column:beta;type:decimal(10,6);not null"`
	AverageVolume decimal.Decimal `gorm:"column:average_volume;type:decimal(24,4);not null"`
	UpdatedAt     time.Time
}

func (InstrumentStatsModel) TableName() string { return "risk_instrument_stats" }

// Models 需要迁移的全部表
func Models() []any {
	return []any{
		&PortfolioModel{},
		&PositionModel{},
		&NAVPointModel{},
		&PortfolioReturnModel{},
		&BenchmarkReturnModel{},
		&InstrumentStatsModel{},
	}
}

// --- mapping helpers ---

func nullDecimal(v *float64) decimal.NullDecimal {
	if v == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*v))
}

func floatPtr(v decimal.NullDecimal) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Decimal.InexactFloat64()
	return &f
}

func toPortfolioModel(p *domain.Portfolio) *PortfolioModel {
	if p == nil {
		return nil
	}
	m := &PortfolioModel{
		ID:              p.ID,
		TotalValue:      decimal.NewFromFloat(p.TotalValue),
		CashBalance:     decimal.NewFromFloat(p.CashBalance),
		BenchmarkSymbol: p.BenchmarkSymbol,
	}
	if l := p.Limits; l != nil {
		m.MaxVar95 = nullDecimal(l.MaxVar95)
		m.MaxDrawdown = nullDecimal(l.MaxDrawdown)
		m.MaxVolatility = nullDecimal(l.MaxVolatility)
		m.MinSharpeRatio = nullDecimal(l.MinSharpeRatio)
		m.MaxBeta = nullDecimal(l.MaxBeta)
		m.MaxLeverage = nullDecimal(l.MaxLeverage)
		m.MaxSinglePosition = nullDecimal(l.MaxSinglePosition)
	}
	for _, pos := range p.Positions {
		m.Positions = append(m.Positions, PositionModel{
			PortfolioID:  p.ID,
			Symbol:       pos.Symbol,
			Quantity:     decimal.NewFromFloat(pos.Quantity),
			AverageCost:  decimal.NewFromFloat(pos.AverageCost),
			CurrentPrice: decimal.NewFromFloat(pos.CurrentPrice),
			Currency:     pos.Currency,
		})
	}
	for _, pt := range p.NAVHistory {
		m.NAVHistory = append(m.NAVHistory, NAVPointModel{
			PortfolioID: p.ID,
			At:          pt.Time,
			Value:       decimal.NewFromFloat(pt.Value),
		})
	}
	return m
}

// toPortfolio 转换为领域组合，持仓市值与权重按当前价重新计算
func toPortfolio(m *PortfolioModel) *domain.Portfolio {
	if m == nil {
		return nil
	}
	p := &domain.Portfolio{
		ID:              m.ID,
		TotalValue:      m.TotalValue.InexactFloat64(),
		CashBalance:     m.CashBalance.InexactFloat64(),
		BenchmarkSymbol: m.BenchmarkSymbol,
		Positions:       make([]domain.Position, 0, len(m.Positions)),
	}
	limits := &domain.RiskLimits{
		MaxVar95:          floatPtr(m.MaxVar95),
		MaxDrawdown:       floatPtr(m.MaxDrawdown),
		MaxVolatility:     floatPtr(m.MaxVolatility),
		MinSharpeRatio:    floatPtr(m.MinSharpeRatio),
		MaxBeta:           floatPtr(m.MaxBeta),
		MaxLeverage:       floatPtr(m.MaxLeverage),
		MaxSinglePosition: floatPtr(m.MaxSinglePosition),
	}
	if *limits != (domain.RiskLimits{}) {
		p.Limits = limits
	}
	for _, pm := range m.Positions {
		p.Positions = append(p.Positions, domain.Position{
			Symbol:       pm.Symbol,
			Quantity:     pm.Quantity.InexactFloat64(),
			AverageCost:  pm.AverageCost.InexactFloat64(),
			CurrentPrice: pm.CurrentPrice.InexactFloat64(),
			Currency:     pm.Currency,
		})
	}
	for _, nm := range m.NAVHistory {
		p.NAVHistory = append(p.NAVHistory, domain.NAVPoint{Time: nm.At, Value: nm.Value.InexactFloat64()})
	}
	p.Revalidate()
	return p
}
