package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/azhengyongqin/cardflow/internal/logger"
	"github.com/azhengyongqin/cardflow/internal/model"
	"github.com/azhengyongqin/cardflow/internal/repository"
)

// ProcessResult 一次卡片处理工作流的汇总结果。
// Success 表示运行没有遇到不可恢复错误，与单个阶段成败无关。
type ProcessResult struct {
	CardID  string        `json:"cardId"`
	Success bool          `json:"success"`
	Stages  []StageResult `json:"stages"`
}

// LinkEnrichmentResult 链接富化工作流的结果
type LinkEnrichmentResult struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	ImageURL   string  `json:"imageUrl,omitempty"`
	FactsCount int     `json:"factsCount"`
}

// ProcessCard 卡片处理编排器：classify 永远最先执行，
// 之后按卡片类型并发运行互不相关的阶段（链接卡 metadata ∥ categorize，
// 图片/视频/文档卡 metadata ∥ renderables）。每个阶段只写自己的状态键，
// 阶段失败被记录但不中断运行；只有"卡片不存在"会上抛。
func (p *Pipeline) ProcessCard(ctx context.Context, runID, cardID string) (ProcessResult, error) {
	card, err := p.cards.GetCard(ctx, cardID)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("加载卡片 %s: %w", cardID, err)
	}

	result := ProcessResult{CardID: cardID, Success: true}

	// 分类先行：后续阶段依赖确认过的类型
	prevType := card.Type
	result.Stages = append(result.Stages,
		p.runStageStep(ctx, runID, card, model.StageClassify, p.classifyStage))

	// 分类改写了类型：建卡时按旧类型标记为 completed 的阶段要按新类型
	// 重新打开，否则纯 URL 文本卡升级成链接卡后永远不会被归类
	if card.Type != prevType {
		p.reopenStagesForType(ctx, card)
	}

	plan := model.StagePlanFor(card.Type)

	var (
		mu      sync.Mutex
		g, gctx = errgroup.WithContext(ctx)
	)
	collect := func(r StageResult) {
		mu.Lock()
		result.Stages = append(result.Stages, r)
		mu.Unlock()
	}

	if plan.Metadata {
		g.Go(func() error {
			collect(p.runStageStep(gctx, runID, card, model.StageMetadata, p.metadataStage))
			return nil
		})
	}
	if plan.Categorize {
		g.Go(func() error {
			collect(p.runStageStep(gctx, runID, card, model.StageCategorize, p.categorizeStage))
			return nil
		})
	}
	if plan.Renderables {
		g.Go(func() error {
			collect(p.runStageStep(gctx, runID, card, model.StageRenderables, p.renderablesStage))
			return nil
		})
	}
	// 图片卡顺带提取主色：不算作阶段，失败只告警
	if card.Type == model.CardTypeImage {
		g.Go(func() error {
			if err := p.extractPalette(gctx, card); err != nil {
				logger.WithCardID(card.CardID).Warn().Err(err).Msg("提取主色失败")
			}
			return nil
		})
	}
	_ = g.Wait()

	return result, nil
}

// reopenStagesForType 类型变更后的计划修正：新类型需要、但当前被标记为
// completed 的阶段重置为 pending。重置失败只告警，阶段这一轮不会执行，
// 下次重试还有机会。
func (p *Pipeline) reopenStagesForType(ctx context.Context, card *repository.Card) {
	plan := model.StagePlanFor(card.Type)
	for _, entry := range []struct {
		key    model.StageKey
		needed bool
	}{
		{model.StageMetadata, plan.Metadata},
		{model.StageCategorize, plan.Categorize},
		{model.StageRenderables, plan.Renderables},
	} {
		if !entry.needed {
			continue
		}
		current, ok := card.ProcessingStatus[entry.key]
		if !ok || current.Status != model.StageCompletedState {
			continue
		}
		if err := p.cards.UpdateStageStatus(ctx, card.CardID, entry.key, model.StagePending()); err != nil {
			logger.WithCardID(card.CardID).Warn().
				Str("stage", string(entry.key)).
				Err(err).
				Msg("重置阶段状态失败")
			continue
		}
		card.ProcessingStatus = model.WithStageStatus(card.ProcessingStatus, entry.key, model.StagePending())
	}
}

// RunLinkEnrichment 独立的链接富化工作流：只跑 metadata ∥ categorize，
// 返回类目与预览图摘要。
func (p *Pipeline) RunLinkEnrichment(ctx context.Context, runID, cardID string) (LinkEnrichmentResult, error) {
	card, err := p.cards.GetCard(ctx, cardID)
	if err != nil {
		return LinkEnrichmentResult{}, fmt.Errorf("加载卡片 %s: %w", cardID, err)
	}
	if card.Type != model.CardTypeLink {
		return LinkEnrichmentResult{}, fmt.Errorf("卡片 %s 不是链接卡", cardID)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p.runStageStep(gctx, runID, card, model.StageMetadata, p.metadataStage)
		return nil
	})
	g.Go(func() error {
		p.runStageStep(gctx, runID, card, model.StageCategorize, p.categorizeStage)
		return nil
	})
	_ = g.Wait()

	// 阶段直接改了内存里的 card，重新读一份保证返回的是落库后的值
	fresh, err := p.cards.GetCard(ctx, cardID)
	if err != nil {
		return LinkEnrichmentResult{}, err
	}

	result := LinkEnrichmentResult{
		Category:   fresh.Category,
		FactsCount: len(fresh.CategoryFacts),
	}
	if fresh.CategoryConfidence != nil {
		result.Confidence = *fresh.CategoryConfidence
	}
	if fresh.LinkPreview != nil {
		result.ImageURL = fresh.LinkPreview.ImageURL
	}
	return result, nil
}

// runStageStep 阶段执行叠加 run 级的 step 结果缓存：
// 同一 runID 的重入投递拿到缓存结果，不重复执行阶段。
func (p *Pipeline) runStageStep(ctx context.Context, runID string, card *repository.Card, key model.StageKey,
	fn func(ctx context.Context, card *repository.Card) (stageOutcome, error)) StageResult {

	raw, err := p.stepOnce(ctx, runID, "stage:"+string(key), func() (json.RawMessage, error) {
		r := p.runStage(ctx, card, key, fn)
		return json.Marshal(r)
	})
	if err != nil {
		return StageResult{Stage: key, State: "failed", Error: err.Error()}
	}

	var result StageResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return StageResult{Stage: key, State: "failed", Error: err.Error()}
	}
	return result
}
