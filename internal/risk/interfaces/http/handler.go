package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/response"
	"github.com/wyfcoding/portfoliorisk/internal/risk/application"
	"github.com/wyfcoding/portfoliorisk/internal/risk/domain"
)

// 单次蒙特卡洛请求上限
const (
	maxSimulations = 100000
	maxHorizon     = 2520
)

// RiskHandler 负责处理与组合风险相关的 HTTP 请求
type RiskHandler struct {
	svc *application.RiskService
	// 蒙特卡洛接口的限流中间件，可为 nil
	monteCarloLimit gin.HandlerFunc
}

// NewRiskHandler 创建 HTTP 处理器
func NewRiskHandler(svc *application.RiskService, monteCarloLimit gin.HandlerFunc) *RiskHandler {
	return &RiskHandler{svc: svc, monteCarloLimit: monteCarloLimit}
}

// RegisterRoutes 注册路由
func (h *RiskHandler) RegisterRoutes(router *gin.RouterGroup) {
	api := router.Group("/api/v1/risk")
	{
		api.POST("/portfolios/:id/assessment", h.AssessPortfolio)
		api.POST("/portfolios/:id/orders/assessment", h.AssessOrder)
		api.POST("/portfolios/:id/stress-tests", h.RunStressTest)
		api.POST("/portfolios/:id/stress-tests/:scenario", h.RunNamedStressTest)
		api.GET("/scenarios", h.ListScenarios)
		api.GET("/alerts/:id", h.GetAlert)

		mc := []gin.HandlerFunc{h.RunMonteCarlo}
		if h.monteCarloLimit != nil {
			mc = append([]gin.HandlerFunc{h.monteCarloLimit}, mc...)
		}
		api.POST("/portfolios/:id/monte-carlo", mc...)
	}
}

// AssessPortfolio 组合风险评估
func (h *RiskHandler) AssessPortfolio(c *gin.Context) {
	a, err := h.svc.AssessPortfolioRisk(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to assess portfolio risk", err)
		return
	}
	response.Success(c, application.ToRiskAssessmentDTO(a))
}

// AssessOrder 事前风控
func (h *RiskHandler) AssessOrder(c *gin.Context) {
	var req application.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	order, err := req.ToOrder()
	if err != nil {
		h.fail(c, "Invalid order", err)
		return
	}

	res, err := h.svc.AssessOrderRisk(c.Request.Context(), order, c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to assess order risk", err)
		return
	}
	response.Success(c, application.ToOrderRiskDTO(res))
}

// RunStressTest 执行自定义压力场景
func (h *RiskHandler) RunStressTest(c *gin.Context) {
	var req application.StressScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	res, err := h.svc.RunStressTest(c.Request.Context(), c.Param("id"), req.ToScenario())
	if err != nil {
		h.fail(c, "Failed to run stress test", err)
		return
	}
	response.Success(c, application.ToStressTestResultDTO(res))
}

// RunNamedStressTest 执行内置压力场景
func (h *RiskHandler) RunNamedStressTest(c *gin.Context) {
	res, err := h.svc.RunNamedStressTest(c.Request.Context(), c.Param("id"), c.Param("scenario"))
	if err != nil {
		h.fail(c, "Failed to run stress test", err)
		return
	}
	response.Success(c, application.ToStressTestResultDTO(res))
}

// ListScenarios 内置压力场景
func (h *RiskHandler) ListScenarios(c *gin.Context) {
	response.Success(c, h.svc.ListScenarios())
}

// RunMonteCarlo 蒙特卡洛模拟，请求体可省略
func (h *RiskHandler) RunMonteCarlo(c *gin.Context) {
	var req application.MonteCarloRequest
	// chunked 请求的 ContentLength 为 -1，空 body 解码得到 io.EOF
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
			return
		}
	}
	if req.Simulations < 0 || req.Simulations > maxSimulations || req.Horizon < 0 || req.Horizon > maxHorizon {
		response.ErrorWithStatus(c, http.StatusBadRequest, "simulations or horizon out of range", "")
		return
	}

	res, err := h.svc.RunMonteCarloSimulation(c.Request.Context(), c.Param("id"), req.Simulations, req.Horizon)
	if err != nil {
		h.fail(c, "Failed to run monte carlo simulation", err)
		return
	}
	response.Success(c, application.ToMonteCarloResultDTO(res))
}

// GetAlert 查询严重告警
func (h *RiskHandler) GetAlert(c *gin.Context) {
	alert, err := h.svc.GetCriticalAlert(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to get alert", err)
		return
	}
	response.Success(c, application.ToRiskAlertDTO(alert))
}

// fail 按错误类型映射 HTTP 状态码
func (h *RiskHandler) fail(c *gin.Context, msg string, err error) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, domain.ErrPortfolioNotFound),
		errors.Is(err, domain.ErrScenarioNotFound),
		errors.Is(err, domain.ErrAlertNotFound):
		response.ErrorWithStatus(c, http.StatusNotFound, msg, err.Error())
	case errors.Is(err, domain.ErrInvalidOrder):
		response.ErrorWithStatus(c, http.StatusBadRequest, msg, err.Error())
	default:
		logging.Error(ctx, msg, "path", c.FullPath(), "error", err)
		response.ErrorWithStatus(c, http.StatusInternalServerError, msg, "")
	}
}
