package domain

import "context"

// PortfolioRepository 组合查询接口
type PortfolioRepository interface {
	// GetPortfolio 组合不存在时返回 ErrPortfolioNotFound
	GetPortfolio(ctx context.Context, portfolioID string) (*Portfolio, error)
}

// MarketStatsProvider 市场统计数据接口
type MarketStatsProvider interface {
	// GetReturns 组合日收益率序列 (按时间升序)
	GetReturns(ctx context.Context, portfolioID string) ([]float64, error)
	// GetBenchmarkReturns 基准日收益率序列 (按时间升序)
	GetBenchmarkReturns(ctx context.Context, benchmarkSymbol string) ([]float64, error)
	// GetAverageVolume 标的日均成交量
	GetAverageVolume(ctx context.Context, symbol string) (float64, error)
	// GetBeta 标的相对市场的 beta
	GetBeta(ctx context.Context, symbol string) (float64, error)
}

// MarketSnapshot 一次评估所需的全部市场数据，在计算开始前一次性拉取
type MarketSnapshot struct {
	Returns          []float64
	BenchmarkReturns []float64
	Betas            map[string]float64
	AverageVolumes   map[string]float64
}

// Beta 标的 beta，缺失时返回 1
func (s *MarketSnapshot) Beta(symbol string) float64 {
	if s == nil {
		return 1
	}
	if b, ok := s.Betas[symbol]; ok && isFinite(b) {
		return b
	}
	return 1
}

// AverageVolume 标的日均成交量，缺失时返回 0
func (s *MarketSnapshot) AverageVolume(symbol string) float64 {
	if s == nil {
		return 0
	}
	if v, ok := s.AverageVolumes[symbol]; ok && isFinite(v) {
		return v
	}
	return 0
}

// FetchSnapshot 拉取组合与额外标的所需的市场数据
func FetchSnapshot(ctx context.Context, provider MarketStatsProvider, p *Portfolio, extraSymbols ...string) (*MarketSnapshot, error) {
	snap := &MarketSnapshot{
		Betas:          make(map[string]float64),
		AverageVolumes: make(map[string]float64),
	}

	returns, err := provider.GetReturns(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	snap.Returns = returns

	if p.BenchmarkSymbol != "" {
		bench, err := provider.GetBenchmarkReturns(ctx, p.BenchmarkSymbol)
		if err != nil {
			return nil, err
		}
		snap.BenchmarkReturns = bench
	}

	symbols := make([]string, 0, len(p.Positions)+len(extraSymbols))
	for _, pos := range p.Positions {
		symbols = append(symbols, pos.Symbol)
	}
	symbols = append(symbols, extraSymbols...)

	for _, symbol := range symbols {
		if _, seen := snap.Betas[symbol]; seen {
			continue
		}
		beta, err := provider.GetBeta(ctx, symbol)
		if err != nil {
			return nil, err
		}
		volume, err := provider.GetAverageVolume(ctx, symbol)
		if err != nil {
			return nil, err
		}
		snap.Betas[symbol] = beta
		snap.AverageVolumes[symbol] = volume
	}
	return snap, nil
}
