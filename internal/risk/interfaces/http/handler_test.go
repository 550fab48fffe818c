package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/portfoliorisk/internal/risk/application"
	"github.com/wyfcoding/portfoliorisk/internal/risk/domain"
)

type memPortfolios map[string]*domain.Portfolio

func (m memPortfolios) GetPortfolio(_ context.Context, id string) (*domain.Portfolio, error) {
	if p, ok := m[id]; ok {
		return p, nil
	}
	return nil, domain.ErrPortfolioNotFound
}

type flatStats struct{}

func (flatStats) GetReturns(context.Context, string) ([]float64, error) {
	out := make([]float64, 100)
	for i := range out {
		if i%2 == 0 {
			out[i] = 0.01
		} else {
			out[i] = -0.008
		}
	}
	return out, nil
}
func (flatStats) GetBenchmarkReturns(context.Context, string) ([]float64, error) { return nil, nil }
func (flatStats) GetAverageVolume(context.Context, string) (float64, error)     { return 1e7, nil }
func (flatStats) GetBeta(context.Context, string) (float64, error)              { return 1, nil }

type envelope struct {
	Code   int             `json:"code"`
	Msg    string          `json:"msg"`
	Detail string          `json:"detail"`
	Data   json.RawMessage `json:"data"`
}

func newRouter(t *testing.T, limit gin.HandlerFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	p := &domain.Portfolio{
		ID:          "pf-1",
		TotalValue:  100000,
		CashBalance: 70000,
		Positions:   []domain.Position{{Symbol: "AAPL", Quantity: 200, CurrentPrice: 150, AverageCost: 150}},
		Limits:      &domain.RiskLimits{MaxDrawdown: domain.Float(0.1)},
		NAVHistory: []domain.NAVPoint{
			{Time: time.Now().Add(-time.Hour), Value: 100},
			{Time: time.Now(), Value: 80},
		},
	}
	p.Revalidate()

	table, err := domain.NewCriticalAlertTable(context.Background(), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = table.Close() })

	svc := application.NewRiskService(memPortfolios{"pf-1": p}, flatStats{}, nil, table, nil, application.Config{
		MonteCarloPaths:   200,
		MonteCarloHorizon: 5,
		MonteCarloWorkers: 2,
		Seed:              1,
	})
	r := gin.New()
	NewRiskHandler(svc, limit).RegisterRoutes(&r.RouterGroup)
	return r
}

func do(r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestRiskHandler_Assessment(t *testing.T) {
	r := newRouter(t, nil)

	t.Run("ok", func(t *testing.T) {
		w, env := do(r, http.MethodPost, "/api/v1/risk/portfolios/pf-1/assessment", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0, env.Code)
		assert.Equal(t, "success", env.Msg)

		var dto application.RiskAssessmentDTO
		require.NoError(t, json.Unmarshal(env.Data, &dto))
		assert.Equal(t, "pf-1", dto.PortfolioID)
		assert.Equal(t, "CRITICAL", dto.OverallRiskLevel)
		require.NotEmpty(t, dto.Alerts)

		// 严重告警可通过告警接口查询
		w, env = do(r, http.MethodGet, "/api/v1/risk/alerts/"+dto.Alerts[0].ID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var alert application.RiskAlertDTO
		require.NoError(t, json.Unmarshal(env.Data, &alert))
		assert.Equal(t, "DRAWDOWN", alert.Metric)
	})

	t.Run("not found", func(t *testing.T) {
		w, env := do(r, http.MethodPost, "/api/v1/risk/portfolios/nope/assessment", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, http.StatusNotFound, env.Code)
		assert.Equal(t, "Failed to assess portfolio risk", env.Msg)
		assert.Equal(t, domain.ErrPortfolioNotFound.Error(), env.Detail)
	})

	t.Run("unknown alert", func(t *testing.T) {
		w, _ := do(r, http.MethodGet, "/api/v1/risk/alerts/unknown", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRiskHandler_AssessOrder(t *testing.T) {
	r := newRouter(t, nil)
	path := "/api/v1/risk/portfolios/pf-1/orders/assessment"

	t.Run("ok", func(t *testing.T) {
		w, env := do(r, http.MethodPost, path, map[string]string{
			"symbol": "msft", "side": "buy", "quantity": "10", "price": "300.50",
		})
		require.Equal(t, http.StatusOK, w.Code)
		var dto application.OrderRiskDTO
		require.NoError(t, json.Unmarshal(env.Data, &dto))
		assert.True(t, dto.Approved)
	})

	t.Run("bad decimal", func(t *testing.T) {
		w, _ := do(r, http.MethodPost, path, map[string]string{
			"symbol": "MSFT", "side": "BUY", "quantity": "ten", "price": "300",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid side", func(t *testing.T) {
		w, _ := do(r, http.MethodPost, path, map[string]string{
			"symbol": "MSFT", "side": "HOLD", "quantity": "1", "price": "300",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing field", func(t *testing.T) {
		w, _ := do(r, http.MethodPost, path, map[string]string{"symbol": "MSFT"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestRiskHandler_StressTests(t *testing.T) {
	r := newRouter(t, nil)

	w, env := do(r, http.MethodPost, "/api/v1/risk/portfolios/pf-1/stress-tests/GFC", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var dto application.StressTestResultDTO
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.Equal(t, "GFC", dto.Scenario.Name)

	w, _ = do(r, http.MethodPost, "/api/v1/risk/portfolios/pf-1/stress-tests/NOPE", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = do(r, http.MethodPost, "/api/v1/risk/portfolios/pf-1/stress-tests", map[string]any{
		"name": "MILD", "market_shock": -0.1, "volatility_multiplier": 1,
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.Equal(t, "3000.00", dto.Loss)

	// 省略 volatility_multiplier 时按 1 计算，不会得到零损失
	w, env = do(r, http.MethodPost, "/api/v1/risk/portfolios/pf-1/stress-tests", map[string]any{
		"name": "MILD", "market_shock": -0.1,
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &dto))
	assert.Equal(t, "3000.00", dto.Loss)
	assert.Equal(t, 1.0, dto.Scenario.VolatilityMultiplier)

	w, env = do(r, http.MethodGet, "/api/v1/risk/scenarios", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var scenarios []domain.StressTestScenario
	require.NoError(t, json.Unmarshal(env.Data, &scenarios))
	assert.Len(t, scenarios, 5)
}

func TestRiskHandler_MonteCarlo(t *testing.T) {
	path := "/api/v1/risk/portfolios/pf-1/monte-carlo"

	t.Run("defaults", func(t *testing.T) {
		r := newRouter(t, nil)
		w, env := do(r, http.MethodPost, path, nil)
		require.Equal(t, http.StatusOK, w.Code)
		var dto application.MonteCarloResultDTO
		require.NoError(t, json.Unmarshal(env.Data, &dto))
		assert.Equal(t, 200, dto.PathsCompleted)
		assert.Contains(t, dto.Percentiles, "p50")
	})

	t.Run("chunked body is bound", func(t *testing.T) {
		r := newRouter(t, nil)
		req := httptest.NewRequest(http.MethodPost, path, io.NopCloser(strings.NewReader(`{"simulations":300,"horizon":5}`)))
		req.ContentLength = -1
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var env envelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		var dto application.MonteCarloResultDTO
		require.NoError(t, json.Unmarshal(env.Data, &dto))
		assert.Equal(t, 300, dto.PathsRequested)
		assert.Equal(t, 5, dto.Horizon)
	})

	t.Run("empty chunked body uses defaults", func(t *testing.T) {
		r := newRouter(t, nil)
		req := httptest.NewRequest(http.MethodPost, path, io.NopCloser(strings.NewReader("")))
		req.ContentLength = -1
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		r := newRouter(t, nil)
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{"simulations":`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("out of range", func(t *testing.T) {
		r := newRouter(t, nil)
		w, _ := do(r, http.MethodPost, path, map[string]int{"simulations": maxSimulations + 1})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("limiter applies only to monte carlo", func(t *testing.T) {
		deny := func(c *gin.Context) { c.AbortWithStatus(http.StatusTooManyRequests) }
		r := newRouter(t, deny)
		w, _ := do(r, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)

		w, _ = do(r, http.MethodGet, "/api/v1/risk/scenarios", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
