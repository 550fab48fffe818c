// Package application 组合风险评估服务的用例编排、DTO 与指标上报
package application

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/portfoliorisk/internal/risk/domain"
)

// Config 风险服务参数
type Config struct {
	RiskFreeRate      float64 // 年化，零值即 0%
	MonteCarloPaths   int
	MonteCarloHorizon int
	MonteCarloTimeout time.Duration
	MonteCarloWorkers int
	Seed              uint64
	TWAPWindow        time.Duration
}

// MetricsRecorder 业务指标上报
type MetricsRecorder interface {
	ObserveAssessment(level string)
	ObserveOrderCheck(approved bool)
	ObserveStressTest(scenario string)
	ObserveMonteCarlo(d time.Duration, partial bool)
	ObserveCriticalAlert()
}

type nopRecorder struct{}

func (nopRecorder) ObserveAssessment(string) {}
func (nopRecorder) ObserveOrderCheck(bool) {}
func (nopRecorder) ObserveStressTest(string) {}
func (nopRecorder) ObserveMonteCarlo(time.Duration, bool) {}
func (nopRecorder) ObserveCriticalAlert() {}

// RiskService 组合风险评估编排服务
// 拉取组合与市场数据后交给领域计算引擎，计算过程中不再发生 I/O
type RiskService struct {
	portfolios domain.PortfolioRepository
	stats      domain.MarketStatsProvider
	publisher  domain.EventPublisher
	alerts     *domain.CriticalAlertTable
	recorder   MetricsRecorder

	calc       *domain.RiskMetricsCalculator
	limits     *domain.RiskLimitEvaluator
	preTrade   *domain.PreTradeRiskEvaluator
	stress     *domain.StressTestEngine
	monteCarlo *domain.MonteCarloSimulator

	cfg Config
}

// NewRiskService 创建风险服务，recorder 可为 nil
func NewRiskService(
	portfolios domain.PortfolioRepository,
	stats domain.MarketStatsProvider,
	publisher domain.EventPublisher,
	alerts *domain.CriticalAlertTable,
	recorder MetricsRecorder,
	cfg Config,
) *RiskService {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	calc := domain.NewRiskMetricsCalculator(cfg.RiskFreeRate)
	return &RiskService{
		portfolios: portfolios,
		stats:      stats,
		publisher:  publisher,
		alerts:     alerts,
		recorder:   recorder,
		calc:       calc,
		limits:     domain.NewRiskLimitEvaluator(),
		preTrade:   domain.NewPreTradeRiskEvaluator(calc, cfg.TWAPWindow),
		stress:     domain.NewStressTestEngine(calc),
		monteCarlo: domain.NewMonteCarloSimulator(calc, cfg.Seed, cfg.MonteCarloWorkers),
		cfg:        cfg,
	}
}

// loadPortfolio 读取组合，ErrPortfolioNotFound 原样向上传递
func (s *RiskService) loadPortfolio(ctx context.Context, portfolioID string) (*domain.Portfolio, error) {
	p, err := s.portfolios.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("load portfolio %s: %w", portfolioID, err)
	}
	if drift := p.Clone().Revalidate(); math.Abs(drift) > 0.01 {
		logging.Warn(ctx, "portfolio value drift", "portfolio_id", portfolioID, "drift", drift)
	}
	return p, nil
}

func (s *RiskService) snapshot(ctx context.Context, p *domain.Portfolio, extra ...string) (*domain.MarketSnapshot, error) {
	snap, err := domain.FetchSnapshot(ctx, s.stats, p, extra...)
	if err != nil {
		return nil, fmt.Errorf("fetch market stats for %s: %w", p.ID, err)
	}
	return snap, nil
}

// AssessPortfolioRisk 组合风险评估
// 用例流程：
// 1. 读取组合与市场数据
// 2. 计算风险指标
// 3. 检查限额，生成告警与总体等级
// 4. 严重告警写入告警表
// 5. 发布评估完成事件
func (s *RiskService) AssessPortfolioRisk(ctx context.Context, portfolioID string) (*domain.RiskAssessment, error) {
	defer logging.LogDuration(ctx, "portfolio risk assessment", "portfolio_id", portfolioID)()

	p, err := s.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx, p)
	if err != nil {
		return nil, err
	}

	metrics := s.calc.Calculate(p, snap)
	alerts := s.limits.CheckLimits(p, metrics)
	if alerts == nil {
		alerts = []*domain.RiskAlert{}
	}
	assessment := &domain.RiskAssessment{
		PortfolioID:      p.ID,
		Timestamp:        time.Now(),
		OverallRiskLevel: s.limits.OverallLevel(alerts),
		Metrics:          metrics,
		Alerts:           alerts,
		Recommendations:  s.limits.Recommendations(metrics),
		RequiresAction:   domain.RequiresAction(alerts),
	}
	if assessment.Recommendations == nil {
		assessment.Recommendations = []string{}
	}

	s.retainCritical(ctx, assessment.Alerts)
	s.recorder.ObserveAssessment(string(assessment.OverallRiskLevel))

	if s.publisher != nil {
		event := domain.NewRiskAssessmentCompletedEvent(assessment)
		if err := s.publisher.PublishAssessmentCompleted(ctx, event); err != nil {
			logging.Error(ctx, "failed to publish assessment event", "portfolio_id", p.ID, "error", err)
		}
	}
	return assessment, nil
}

// AssessOrderRisk 事前风控：在组合副本上模拟订单并给出审批结果
func (s *RiskService) AssessOrderRisk(ctx context.Context, order *domain.Order, portfolioID string) (*domain.OrderRiskResult, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	p, err := s.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx, p, order.Symbol)
	if err != nil {
		return nil, err
	}

	res := s.preTrade.Evaluate(order, p, snap)
	s.retainCritical(ctx, res.Alerts)
	s.recorder.ObserveOrderCheck(res.Approved)

	logging.Info(ctx, "order risk evaluated",
		"portfolio_id", portfolioID,
		"symbol", order.Symbol,
		"side", order.Side,
		"approved", res.Approved,
		"risk_score", res.RiskScore,
	)
	return res, nil
}

// RunStressTest 在组合上执行给定压力场景
func (s *RiskService) RunStressTest(ctx context.Context, portfolioID string, scenario domain.StressTestScenario) (*domain.StressTestResult, error) {
	p, err := s.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	snap, err := s.snapshot(ctx, p)
	if err != nil {
		return nil, err
	}
	res := s.stress.Run(p, snap, scenario)
	s.recorder.ObserveStressTest(scenario.Name)
	return res, nil
}

// RunNamedStressTest 执行内置压力场景
func (s *RiskService) RunNamedStressTest(ctx context.Context, portfolioID, name string) (*domain.StressTestResult, error) {
	scenario, ok := s.stress.Scenario(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrScenarioNotFound, name)
	}
	return s.RunStressTest(ctx, portfolioID, scenario)
}

// ListScenarios 内置压力场景列表
func (s *RiskService) ListScenarios() []domain.StressTestScenario {
	return s.stress.Scenarios()
}

// RunMonteCarloSimulation 组合终值蒙特卡洛模拟，simulations/horizon 为 0 时使用配置默认值
func (s *RiskService) RunMonteCarloSimulation(ctx context.Context, portfolioID string, simulations, horizon int) (*domain.MonteCarloResult, error) {
	if simulations <= 0 {
		simulations = s.cfg.MonteCarloPaths
	}
	if horizon <= 0 {
		horizon = s.cfg.MonteCarloHorizon
	}

	p, err := s.loadPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	returns, err := s.stats.GetReturns(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch returns for %s: %w", p.ID, err)
	}

	if s.cfg.MonteCarloTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.MonteCarloTimeout)
		defer cancel()
	}

	res, err := s.monteCarlo.Simulate(ctx, p.TotalValue, returns, simulations, horizon)
	if err != nil {
		return nil, fmt.Errorf("monte carlo for %s: %w", p.ID, err)
	}
	if res.Partial {
		logging.Warn(ctx, "monte carlo interrupted, returning partial estimate",
			"portfolio_id", p.ID,
			"paths_completed", res.PathsCompleted,
			"paths_requested", res.PathsRequested,
		)
	}
	s.recorder.ObserveMonteCarlo(res.Duration, res.Partial)
	return res, nil
}

// GetCriticalAlert 按 ID 查询保留中的严重告警
func (s *RiskService) GetCriticalAlert(ctx context.Context, alertID string) (*domain.RiskAlert, error) {
	if s.alerts == nil {
		return nil, domain.ErrAlertNotFound
	}
	alert, err := s.alerts.Get(alertID)
	if err != nil {
		return nil, fmt.Errorf("get alert %s: %w", alertID, err)
	}
	return alert, nil
}

// retainCritical 严重告警写入告警表，失败只记录日志
func (s *RiskService) retainCritical(ctx context.Context, alerts []*domain.RiskAlert) {
	if s.alerts == nil {
		return
	}
	for _, a := range alerts {
		if a.Level != domain.RiskLevelCritical {
			continue
		}
		if err := s.alerts.Put(a); err != nil {
			logging.Error(ctx, "failed to retain critical alert", "alert_id", a.ID, "error", err)
			continue
		}
		s.recorder.ObserveCriticalAlert()
		logging.Warn(ctx, "critical risk alert", "alert_id", a.ID, "metric", a.Metric, "portfolio_id", a.PortfolioID, "message", a.Message)
	}
}
