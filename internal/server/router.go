package httpserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/azhengyongqin/cardflow/internal/healthcheck"
	"github.com/azhengyongqin/cardflow/internal/middleware"
	"github.com/azhengyongqin/cardflow/internal/repository"
	"github.com/azhengyongqin/cardflow/internal/server/handler"
	"github.com/azhengyongqin/cardflow/internal/workflow"
)

type Deps struct {
	// CardRepo 卡片仓储
	CardRepo repository.CardRepository

	// Manager 工作流管理器（启动/查询/重试）
	Manager *workflow.Manager

	// HealthChecker 健康检查器
	HealthChecker *healthcheck.HealthChecker
}

// NewRouter 提供 Gin HTTP API
// @title Cardflow API
// @version 1.0.0
// @description 卡片采集与异步富化流水线 API
// @BasePath /api/v1
// @schemes http https
func NewRouter(deps Deps) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	// 全局中间件
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.PrometheusMiddleware())
	r.Use(middleware.PayloadSizeLimit(middleware.MaxPayloadSize))
	r.Use(middleware.CORSMiddleware())

	// 创建各个 handler 实例
	healthHandler := handler.NewHealthHandler(deps.HealthChecker)
	cardHandler := handler.NewCardHandler(deps.CardRepo, deps.Manager)
	workflowHandler := handler.NewWorkflowHandler(deps.Manager)

	// 健康检查路由
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	// Prometheus metrics 端点
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger API 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	{
		// Card 相关路由
		api.POST("/cards", cardHandler.CreateCard)
		api.GET("/cards", cardHandler.ListCards)
		api.GET("/cards/:card_id", middleware.ValidateCardIDParam(), cardHandler.GetCard)

		// Workflow 相关路由
		api.POST("/workflows/:kind", workflowHandler.StartWorkflow)
		api.GET("/workflows/runs/:workflow_id", middleware.ValidateWorkflowIDParam(), workflowHandler.GetRun)

		// 管理端路由
		api.POST("/admin/cards/:card_id/retry", middleware.ValidateCardIDParam(), workflowHandler.RetryCard)
	}

	return r
}
