package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// defaultLookback 收益率序列默认回看交易日数
const defaultLookback = 252

// MarketStatsRepository 基于 GORM 的市场统计数据源
type MarketStatsRepository struct {
	db       *gorm.DB
	lookback int
}

// NewMarketStatsRepository 创建市场统计数据源，lookback <= 0 时取一年交易日
func NewMarketStatsRepository(db *gorm.DB, lookback int) *MarketStatsRepository {
	if lookback <= 0 {
		lookback = defaultLookback
	}
	return &MarketStatsRepository{db: db, lookback: lookback}
}

// GetReturns 组合最近 lookback 个交易日收益率，按日期升序
func (r *MarketStatsRepository) GetReturns(ctx context.Context, portfolioID string) ([]float64, error) {
	var rows []PortfolioReturnModel
	err := r.db.WithContext(ctx).
		Where("portfolio_id = ?", portfolioID).
		Order("trade_date DESC").
		Limit(r.lookback).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = row.Return
	}
	return out, nil
}

// GetBenchmarkReturns 基准最近 lookback 个交易日收益率，按日期升序
func (r *MarketStatsRepository) GetBenchmarkReturns(ctx context.Context, symbol string) ([]float64, error) {
	var rows []BenchmarkReturnModel
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("trade_date DESC").
		Limit(r.lookback).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = row.Return
	}
	return out, nil
}

// GetAverageVolume 标的日均成交量，无记录时返回 0
func (r *MarketStatsRepository) GetAverageVolume(ctx context.Context, symbol string) (float64, error) {
	stats, err := r.instrument(ctx, symbol)
	if err != nil || stats == nil {
		return 0, err
	}
	return stats.AverageVolume.InexactFloat64(), nil
}

// GetBeta 标的 beta，无记录时返回 1
func (r *MarketStatsRepository) GetBeta(ctx context.Context, symbol string) (float64, error) {
	stats, err := r.instrument(ctx, symbol)
	if err != nil {
		return 0, err
	}
	if stats == nil {
		return 1, nil
	}
	return stats.Beta.InexactFloat64(), nil
}

func (r *MarketStatsRepository) instrument(ctx context.Context, symbol string) (*InstrumentStatsModel, error) {
	var model InstrumentStatsModel
	err := r.db.WithContext(ctx).Where("symbol = ?", symbol).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &model, nil
}

// UpsertInstrumentStats 写入或更新标的 beta 与日均成交量
func (r *MarketStatsRepository) UpsertInstrumentStats(ctx context.Context, symbol string, beta, averageVolume float64) error {
	model := &InstrumentStatsModel{
		Symbol:        symbol,
		Beta:          decimal.NewFromFloat(beta),
		AverageVolume: decimal.NewFromFloat(averageVolume),
		UpdatedAt:     time.Now(),
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"beta", "average_volume", "updated_at"}),
	}).Create(model).Error
}

// AppendPortfolioReturn 记录组合某日收益率，同日重复写入覆盖旧值
func (r *MarketStatsRepository) AppendPortfolioReturn(ctx context.Context, portfolioID string, day time.Time, ret float64) error {
	model := &PortfolioReturnModel{PortfolioID: portfolioID, TradeDate: truncateDay(day), Return: ret}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "portfolio_id"}, {Name: "trade_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"daily_return"}),
	}).Create(model).Error
}

// AppendBenchmarkReturn 记录基准某日收益率
func (r *MarketStatsRepository) AppendBenchmarkReturn(ctx context.Context, symbol string, day time.Time, ret float64) error {
	model := &BenchmarkReturnModel{Symbol: symbol, TradeDate: truncateDay(day), Return: ret}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "trade_date"}},
		DoUpdates: clause.AssignmentColumns([]string{"daily_return"}),
	}).Create(model).Error
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
