package asynqx

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// 工作流任务类型。每个类型对应一个可独立触发的流程入口，
// 便于在面板上按工作流筛选。
const (
	TypeCardProcessing = "workflow:card_processing"
	TypeLinkEnrichment = "workflow:link_enrichment"
	TypeScreenshot     = "workflow:screenshot"
	TypeAIBackfill     = "workflow:ai_backfill"
	TypeCardCleanup    = "workflow:card_cleanup"
)

// QueueDefault 所有工作流共用一个队列；按需要可拆分权重
const QueueDefault = "workflows"

// NewWorkflowID 生成一个随机 workflow_id（每次入队得到一个唯一 ID）。
// 说明：使用 16 字节随机数编码为 hex（32 字符）。
func NewWorkflowID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// WorkflowPayload 工作流任务的统一载荷
type WorkflowPayload struct {
	WorkflowID string `json:"workflow_id"`
	CardID     string `json:"card_id,omitempty"`
	// RetryCount 截图子工作流的跨投递重试计数（rate_limit / http_error 各自独立）
	RateLimitRetries int `json:"rate_limit_retries,omitempty"`
	HTTPRetries      int `json:"http_retries,omitempty"`
}

// NewWorkflowTask 构造一个工作流任务
func NewWorkflowTask(taskType string, p WorkflowPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, b), nil
}

// ParseWorkflowPayload 解析工作流任务载荷
func ParseWorkflowPayload(t *asynq.Task) (WorkflowPayload, error) {
	var p WorkflowPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return WorkflowPayload{}, err
	}
	return p, nil
}

type EnqueueParams struct {
	TaskKey        string
	Queue          string
	MaxRetry       int32
	TimeoutSeconds int32
	Delay          time.Duration
	RunAt          time.Time
}

func EnqueueOptions(p EnqueueParams) []asynq.Option {
	var opts []asynq.Option

	if p.Queue != "" {
		opts = append(opts, asynq.Queue(p.Queue))
	}
	if p.MaxRetry >= 0 {
		opts = append(opts, asynq.MaxRetry(int(p.MaxRetry)))
	}
	if p.TimeoutSeconds > 0 {
		opts = append(opts, asynq.Timeout(time.Duration(p.TimeoutSeconds)*time.Second))
	}
	if p.Delay > 0 {
		opts = append(opts, asynq.ProcessIn(p.Delay))
	}
	if !p.RunAt.IsZero() {
		opts = append(opts, asynq.ProcessAt(p.RunAt))
	}

	// 幂等：同一个 task_key 24h 内只允许一次（避免误触发重复入队）
	if p.TaskKey != "" {
		opts = append(opts, asynq.Unique(24*time.Hour))
	}

	return opts
}
