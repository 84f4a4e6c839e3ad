package workflow

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/azhengyongqin/cardflow/internal/logger"
	"github.com/azhengyongqin/cardflow/internal/pipeline"
	asynqx "github.com/azhengyongqin/cardflow/internal/queue"
)

// Worker 工作流消费端：asynq server + 按任务类型注册的 handler
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewWorker(redisAddr string, concurrency int, mgr *Manager) *Worker {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				asynqx.QueueDefault: 10,
			},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(asynqx.TypeCardProcessing, mgr.handleWorkflowTask)
	mux.HandleFunc(asynqx.TypeLinkEnrichment, mgr.handleWorkflowTask)
	mux.HandleFunc(asynqx.TypeAIBackfill, mgr.handleWorkflowTask)
	mux.HandleFunc(asynqx.TypeCardCleanup, mgr.handleWorkflowTask)
	// 截图单独处理：跨投递携带重试计数
	mux.HandleFunc(asynqx.TypeScreenshot, mgr.handleScreenshotTask)

	return &Worker{server: server, mux: mux}
}

// Run 阻塞运行，直到 Shutdown
func (w *Worker) Run() error {
	return w.server.Run(w.mux)
}

func (w *Worker) Shutdown() {
	w.server.Shutdown()
}

// handleWorkflowTask 通用工作流 handler：补建运行记录 → 执行 → 落结果。
// 任务以 MaxRetry=0 投递，执行错误只记录归档，不做 asynq 层重试。
func (m *Manager) handleWorkflowTask(ctx context.Context, t *asynq.Task) error {
	payload, err := asynqx.ParseWorkflowPayload(t)
	if err != nil {
		logger.Error().Str("task_type", t.Type()).Err(err).Msg("解析工作流载荷失败")
		return err
	}

	log := logger.WithWorkflowID(payload.WorkflowID)

	if err := m.EnsureRun(ctx, payload.WorkflowID, t.Type(), payload.CardID); err != nil {
		log.Error().Err(err).Msg("补建运行记录失败")
		return err
	}

	if _, err := m.Execute(ctx, t.Type(), payload.WorkflowID, payload.CardID); err != nil {
		log.Error().Str("task_type", t.Type()).Err(err).Msg("工作流执行失败")
		return err
	}
	return nil
}

// handleScreenshotTask 截图工作流 handler：一次投递执行一次尝试，
// 可重试失败按错误类型的固定延迟重新投递自己（计数随载荷携带），
// 终态（成功或预算耗尽）才关闭运行记录。
func (m *Manager) handleScreenshotTask(ctx context.Context, t *asynq.Task) error {
	payload, err := asynqx.ParseWorkflowPayload(t)
	if err != nil {
		return err
	}

	log := logger.WithWorkflowID(payload.WorkflowID)

	if err := m.EnsureRun(ctx, payload.WorkflowID, t.Type(), payload.CardID); err != nil {
		return err
	}
	if err := m.runs.MarkRunning(ctx, payload.WorkflowID); err != nil {
		log.Warn().Err(err).Msg("标记运行中失败")
	}

	counters := pipeline.RetryCounters{
		RateLimit: payload.RateLimitRetries,
		HTTP:      payload.HTTPRetries,
	}

	result, done, retryIn, next, err := m.pipe.ScreenshotStep(ctx, payload.CardID, counters)
	if err != nil {
		m.finishRun(ctx, t.Type(), payload.WorkflowID, nil, err)
		return err
	}

	if !done {
		reenqueue := asynqx.WorkflowPayload{
			WorkflowID:       payload.WorkflowID,
			CardID:           payload.CardID,
			RateLimitRetries: next.RateLimit,
			HTTPRetries:      next.HTTP,
		}
		if err := m.client.Enqueue(ctx, asynqx.TypeScreenshot, reenqueue, retryIn); err != nil {
			m.finishRun(ctx, t.Type(), payload.WorkflowID, nil, err)
			return err
		}
		return nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		m.finishRun(ctx, t.Type(), payload.WorkflowID, nil, err)
		return err
	}
	m.finishRun(ctx, t.Type(), payload.WorkflowID, raw, nil)
	return nil
}
