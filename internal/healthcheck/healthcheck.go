package healthcheck

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthChecker 健康检查器。就绪检查覆盖流水线的硬依赖：
// 卡片库（PostgreSQL）、工作流队列（Redis）、截图/渲染服务（可选）。
type HealthChecker struct {
	pgPool          *pgxpool.Pool
	asynqClient     *asynq.Client
	redisAddr       string
	browserEndpoint string

	httpClient *http.Client
}

// NewHealthChecker 创建健康检查器。browserEndpoint 为空时跳过渲染服务探测
// （未配置截图依赖的部署不因此不就绪）。
func NewHealthChecker(pgPool *pgxpool.Pool, asynqClient *asynq.Client, redisAddr, browserEndpoint string) *HealthChecker {
	return &HealthChecker{
		pgPool:          pgPool,
		asynqClient:     asynqClient,
		redisAddr:       redisAddr,
		browserEndpoint: browserEndpoint,
		httpClient:      &http.Client{Timeout: 2 * time.Second},
	}
}

// CheckResult 健康检查结果
type CheckResult struct {
	Status  string            `json:"status"` // "ok" or "error"
	Checks  map[string]string `json:"checks"`
	Version string            `json:"version,omitempty"`
}

// LivenessCheck 存活检查（快速返回，不检查依赖）
func (h *HealthChecker) LivenessCheck() CheckResult {
	return CheckResult{
		Status: "ok",
		Checks: map[string]string{
			"service": "running",
		},
	}
}

// ReadinessCheck 就绪检查（检查所有依赖）
func (h *HealthChecker) ReadinessCheck(ctx context.Context) CheckResult {
	result := CheckResult{
		Checks: make(map[string]string),
	}

	// 卡片库连接
	if h.pgPool != nil {
		if err := h.checkPostgres(ctx); err != nil {
			result.Checks["postgres"] = "error: " + err.Error()
			result.Status = "error"
		} else {
			result.Checks["postgres"] = "ok"
		}
	}

	// 工作流队列连接（通过 Asynq）
	if h.asynqClient != nil {
		if err := h.checkRedis(ctx); err != nil {
			result.Checks["redis"] = "error: " + err.Error()
			result.Status = "error"
		} else {
			result.Checks["redis"] = "ok"
		}
	}

	// 截图/渲染服务可达性
	if h.browserEndpoint != "" {
		if err := h.checkBrowser(ctx); err != nil {
			result.Checks["browser"] = "error: " + err.Error()
			result.Status = "error"
		} else {
			result.Checks["browser"] = "ok"
		}
	}

	if result.Status == "" {
		result.Status = "ok"
	}

	return result
}

// checkPostgres 检查 PostgreSQL 连接
func (h *HealthChecker) checkPostgres(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return h.pgPool.Ping(ctx)
}

// checkRedis 检查 Redis 连接（通过 Asynq Inspector）
func (h *HealthChecker) checkRedis(ctx context.Context) error {
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: h.redisAddr})
	defer inspector.Close()

	_, err := inspector.Queues()
	return err
}

// checkBrowser 探测渲染服务可达性。只看服务是否在响应，
// 不消耗渲染额度，5xx 才算不健康。
func (h *HealthChecker) checkBrowser(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, h.browserEndpoint, nil)
	if err != nil {
		return err
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("render service status %d", resp.StatusCode)
	}
	return nil
}
