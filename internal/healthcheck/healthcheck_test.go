package healthcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHealthChecker_LivenessCheck(t *testing.T) {
	// Liveness check 不依赖外部服务，应该总是成功
	hc := &HealthChecker{}

	result := hc.LivenessCheck()

	assert.Equal(t, "ok", result.Status)
	assert.Contains(t, result.Checks, "service")
	assert.Equal(t, "running", result.Checks["service"])
}

// ReadinessCheck 需要真实的 PostgreSQL 和 Redis 连接，
// 这里只验证没有依赖注入时的降级行为
func TestHealthChecker_ReadinessCheck_NoDeps(t *testing.T) {
	hc := &HealthChecker{}

	result := hc.ReadinessCheck(context.Background())

	assert.Equal(t, "ok", result.Status, "没有注入依赖时不应报错")
	assert.NotNil(t, result.Checks)
}

func TestHealthChecker_ReadinessCheck_Browser(t *testing.T) {
	t.Run("渲染服务可达", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		hc := NewHealthChecker(nil, nil, "", srv.URL)
		result := hc.ReadinessCheck(context.Background())

		assert.Equal(t, "ok", result.Status)
		assert.Equal(t, "ok", result.Checks["browser"])
	})

	t.Run("渲染服务 5xx 算不健康", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		hc := NewHealthChecker(nil, nil, "", srv.URL)
		result := hc.ReadinessCheck(context.Background())

		assert.Equal(t, "error", result.Status)
		assert.Contains(t, result.Checks["browser"], "error")
	})

	t.Run("渲染服务连不上算不健康", func(t *testing.T) {
		hc := NewHealthChecker(nil, nil, "", "http://127.0.0.1:1")
		hc.httpClient.Timeout = 200 * time.Millisecond
		result := hc.ReadinessCheck(context.Background())

		assert.Equal(t, "error", result.Status)
	})

	t.Run("未配置渲染服务时跳过探测", func(t *testing.T) {
		hc := NewHealthChecker(nil, nil, "", "")
		result := hc.ReadinessCheck(context.Background())

		assert.Equal(t, "ok", result.Status)
		assert.NotContains(t, result.Checks, "browser")
	})
}
