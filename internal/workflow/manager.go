package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/azhengyongqin/cardflow/internal/logger"
	"github.com/azhengyongqin/cardflow/internal/metrics"
	"github.com/azhengyongqin/cardflow/internal/pipeline"
	asynqx "github.com/azhengyongqin/cardflow/internal/queue"
	"github.com/azhengyongqin/cardflow/internal/repository"
)

// Kinds 全部可启动的工作流类型
var Kinds = []string{
	asynqx.TypeCardProcessing,
	asynqx.TypeLinkEnrichment,
	asynqx.TypeScreenshot,
	asynqx.TypeAIBackfill,
	asynqx.TypeCardCleanup,
}

// KindValid 校验工作流类型
func KindValid(kind string) bool {
	for _, k := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// kindSlugs API 路径里用的短名 → 任务类型（任务类型带冒号，不适合进 URL）
var kindSlugs = map[string]string{
	"card_processing": asynqx.TypeCardProcessing,
	"link_enrichment": asynqx.TypeLinkEnrichment,
	"screenshot":      asynqx.TypeScreenshot,
	"ai_backfill":     asynqx.TypeAIBackfill,
	"card_cleanup":    asynqx.TypeCardCleanup,
}

// KindFromSlug 短名解析为任务类型
func KindFromSlug(slug string) (string, bool) {
	kind, ok := kindSlugs[slug]
	return kind, ok
}

// StartOutcome 启动结果：异步只有 WorkflowID，同步附带完整结果
type StartOutcome struct {
	WorkflowID string          `json:"workflow_id"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// RetryOutcome 管理端单卡重试的结果。卡片不存在不是错误，
// 用 reason 表达。
type RetryOutcome struct {
	RequestedAt int64  `json:"requestedAt"`
	Success     bool   `json:"success"`
	Reason      string `json:"reason,omitempty"`
}

// Manager 工作流管理器：启动（同步/异步）、执行、运行记录生命周期。
// 每次启动都落一条 WorkflowRun，workflow_id 即运行记录 ID。
type Manager struct {
	client pipeline.Enqueuer
	runs   repository.WorkflowRunRepository
	cards  repository.CardRepository
	pipe   *pipeline.Pipeline

	now func() time.Time
}

func NewManager(client pipeline.Enqueuer, runs repository.WorkflowRunRepository, cards repository.CardRepository, pipe *pipeline.Pipeline) *Manager {
	return &Manager{
		client: client,
		runs:   runs,
		cards:  cards,
		pipe:   pipe,
		now:    time.Now,
	}
}

// Start 启动一个工作流。startAsync=true 入队后立刻返回 workflow_id；
// false 则内联执行完整个工作流并返回结果。两条路径共用同一条运行记录。
func (m *Manager) Start(ctx context.Context, kind, cardID string, startAsync bool) (StartOutcome, error) {
	if !KindValid(kind) {
		return StartOutcome{}, fmt.Errorf("未知的工作流类型 %s", kind)
	}

	runID := asynqx.NewWorkflowID()
	if _, err := m.runs.CreateRun(ctx, runID, kind, cardID); err != nil {
		return StartOutcome{}, fmt.Errorf("创建运行记录: %w", err)
	}

	if startAsync {
		metrics.RecordWorkflowStarted(kind, "async")
		payload := asynqx.WorkflowPayload{WorkflowID: runID, CardID: cardID}
		if err := m.client.Enqueue(ctx, kind, payload, 0); err != nil {
			if markErr := m.runs.MarkFailed(ctx, runID, err.Error()); markErr != nil {
				logger.WithWorkflowID(runID).Error().Err(markErr).Msg("标记运行失败出错")
			}
			return StartOutcome{}, err
		}
		return StartOutcome{WorkflowID: runID}, nil
	}

	metrics.RecordWorkflowStarted(kind, "sync")
	result, err := m.Execute(ctx, kind, runID, cardID)
	if err != nil {
		return StartOutcome{}, err
	}
	return StartOutcome{WorkflowID: runID, Result: result}, nil
}

// Execute 执行一个工作流并维护运行记录状态。
// 异步 handler 和同步启动路径都走这里（截图的跨投递重试除外，见 handler）。
func (m *Manager) Execute(ctx context.Context, kind, runID, cardID string) (json.RawMessage, error) {
	if err := m.runs.MarkRunning(ctx, runID); err != nil {
		logger.WithWorkflowID(runID).Warn().Err(err).Msg("标记运行中失败")
	}

	var (
		result any
		err    error
	)
	switch kind {
	case asynqx.TypeCardProcessing:
		result, err = m.pipe.ProcessCard(ctx, runID, cardID)
	case asynqx.TypeLinkEnrichment:
		result, err = m.pipe.RunLinkEnrichment(ctx, runID, cardID)
	case asynqx.TypeScreenshot:
		result, err = m.pipe.CaptureScreenshot(ctx, cardID)
	case asynqx.TypeAIBackfill:
		result, err = m.pipe.RunBackfill(ctx)
	case asynqx.TypeCardCleanup:
		result, err = m.pipe.RunCleanup(ctx)
	default:
		err = fmt.Errorf("未知的工作流类型 %s", kind)
	}

	if err != nil {
		m.finishRun(ctx, kind, runID, nil, err)
		return nil, err
	}

	raw, marshalErr := json.Marshal(result)
	if marshalErr != nil {
		m.finishRun(ctx, kind, runID, nil, marshalErr)
		return nil, marshalErr
	}
	m.finishRun(ctx, kind, runID, raw, nil)
	return raw, nil
}

// EnsureRun 运行记录存在性兜底：补数批量入队的任务在投递侧生成了
// workflow_id，handler 侧第一次见到时补建记录。
func (m *Manager) EnsureRun(ctx context.Context, runID, kind, cardID string) error {
	_, err := m.runs.GetRun(ctx, runID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	_, err = m.runs.CreateRun(ctx, runID, kind, cardID)
	return err
}

// GetRun 查询运行记录（管理端检查用）
func (m *Manager) GetRun(ctx context.Context, runID string) (*repository.WorkflowRun, error) {
	return m.runs.GetRun(ctx, runID)
}

// RetryCardEnrichment 管理端单卡重试：卡片存在则重新入队处理工作流；
// 不存在返回 not_found 结果而非错误。
func (m *Manager) RetryCardEnrichment(ctx context.Context, cardID string) (RetryOutcome, error) {
	requestedAt := m.now().UnixMilli()

	_, err := m.cards.GetCard(ctx, cardID)
	if errors.Is(err, repository.ErrNotFound) {
		return RetryOutcome{RequestedAt: requestedAt, Success: false, Reason: "not_found"}, nil
	}
	if err != nil {
		return RetryOutcome{}, err
	}

	if _, err := m.Start(ctx, asynqx.TypeCardProcessing, cardID, true); err != nil {
		return RetryOutcome{}, err
	}
	return RetryOutcome{RequestedAt: requestedAt, Success: true}, nil
}

func (m *Manager) finishRun(ctx context.Context, kind, runID string, result json.RawMessage, runErr error) {
	if runErr != nil {
		metrics.RecordWorkflowCompleted(kind, "fail")
		if err := m.runs.MarkFailed(ctx, runID, runErr.Error()); err != nil {
			logger.WithWorkflowID(runID).Error().Err(err).Msg("标记运行失败出错")
		}
		return
	}
	metrics.RecordWorkflowCompleted(kind, "success")
	if err := m.runs.MarkCompleted(ctx, runID, result); err != nil {
		logger.WithWorkflowID(runID).Error().Err(err).Msg("标记运行完成出错")
	}
}
