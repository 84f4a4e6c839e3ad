package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/azhengyongqin/cardflow/internal/ai"
	"github.com/azhengyongqin/cardflow/internal/blob"
	"github.com/azhengyongqin/cardflow/internal/browser"
	"github.com/azhengyongqin/cardflow/internal/config"
	"github.com/azhengyongqin/cardflow/internal/linkmeta"
	asynqx "github.com/azhengyongqin/cardflow/internal/queue"
	"github.com/azhengyongqin/cardflow/internal/repository"
)

// Enqueuer 工作流入队能力。清理的自续期、补数的逐卡入队、
// 截图重试的延迟再投递都经过这里。
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, payload asynqx.WorkflowPayload, delay time.Duration) error
}

// LinkFetcher 页面抓取能力（linkmeta.Fetcher 的可替换抽象）
type LinkFetcher interface {
	Fetch(ctx context.Context, pageURL string) (linkmeta.FetchResult, error)
}

// Cache 链接预览缓存能力
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

// SleepFunc 同步执行路径上的等待；测试中替换掉避免真实延时
type SleepFunc func(ctx context.Context, d time.Duration) error

// Deps 流水线依赖
type Deps struct {
	Cards    repository.CardRepository
	Runs     repository.WorkflowRunRepository
	Blobs    blob.Store
	Browser  browser.Renderer
	AI       ai.Inference
	Fetcher  LinkFetcher
	Cache    Cache
	Enqueuer Enqueuer
	Config   config.PipelineConfig

	// Now / Sleep 可注入，零值使用真实时钟
	Now   func() time.Time
	Sleep SleepFunc
}

// Pipeline 卡片富化流水线：四个阶段 runner + 截图重试子工作流 +
// 补数/清理批处理的执行体。所有入口由 workflow.Manager 或 asynq handler 调用。
type Pipeline struct {
	cards    repository.CardRepository
	runs     repository.WorkflowRunRepository
	blobs    blob.Store
	browser  browser.Renderer
	ai       ai.Inference
	fetcher  LinkFetcher
	cache    Cache
	enqueuer Enqueuer
	cfg      config.PipelineConfig

	now   func() time.Time
	sleep SleepFunc
}

func New(deps Deps) *Pipeline {
	p := &Pipeline{
		cards:    deps.Cards,
		runs:     deps.Runs,
		blobs:    deps.Blobs,
		browser:  deps.Browser,
		ai:       deps.AI,
		fetcher:  deps.Fetcher,
		cache:    deps.Cache,
		enqueuer: deps.Enqueuer,
		cfg:      deps.Config,
		now:      deps.Now,
		sleep:    deps.Sleep,
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.sleep == nil {
		p.sleep = func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		}
	}
	return p
}

func (p *Pipeline) nowMillis() int64 {
	return p.now().UnixMilli()
}

// stepOnce 按 step 名缓存结果：重入/恢复的运行拿到缓存直接返回，
// 不重复执行带副作用的步骤。runID 为空（无持久化运行记录）时直接执行。
func (p *Pipeline) stepOnce(ctx context.Context, runID, stepName string, fn func() (json.RawMessage, error)) (json.RawMessage, error) {
	if runID == "" || p.runs == nil {
		return fn()
	}

	if cached, ok, err := p.runs.GetStepResult(ctx, runID, stepName); err == nil && ok {
		return cached, nil
	}

	result, err := fn()
	if err != nil {
		return nil, err
	}
	if saveErr := p.runs.SaveStepResult(ctx, runID, stepName, result); saveErr != nil {
		// 缓存失败不影响本次结果，只是失去重入幂等性
		return result, nil
	}
	return result, nil
}
