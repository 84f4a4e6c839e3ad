package pipeline

import (
	"context"
	"fmt"

	"github.com/azhengyongqin/cardflow/internal/logger"
	"github.com/azhengyongqin/cardflow/internal/metrics"
	asynqx "github.com/azhengyongqin/cardflow/internal/queue"
	"github.com/azhengyongqin/cardflow/internal/repository"
)

// CleanupResult 清理批处理结果
type CleanupResult struct {
	CleanedCount int  `json:"cleanedCount"`
	HasMore      bool `json:"hasMore"`
}

// RunCleanup 物理清理软删除超过保留期的卡片：删 blob（best-effort）、
// 删记录。批次打满（hasMore）时自己重新入队继续，单次调用成本有界。
func (p *Pipeline) RunCleanup(ctx context.Context) (CleanupResult, error) {
	cutoff := p.now().Add(-p.cfg.CleanupRetention)

	cards, err := p.cards.ListCardsPendingCleanup(ctx, cutoff, p.cfg.CleanupBatchSize)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("查询待清理卡片: %w", err)
	}

	result := CleanupResult{}
	for _, card := range cards {
		// 再核对一次资格，查询和删除之间卡片可能被恢复
		if !card.IsDeleted || card.DeletedAt == nil || !card.DeletedAt.Before(cutoff) {
			continue
		}

		p.deleteCardBlobs(ctx, &card)

		if err := p.cards.DeleteCard(ctx, card.CardID); err != nil {
			logger.WithCardID(card.CardID).Error().Err(err).Msg("删除卡片记录失败")
			metrics.RecordCleanupCard("delete_failed")
			continue
		}
		metrics.RecordCleanupCard("cleaned")
		result.CleanedCount++
	}

	result.HasMore = len(cards) == p.cfg.CleanupBatchSize
	if result.HasMore && p.enqueuer != nil {
		payload := asynqx.WorkflowPayload{WorkflowID: asynqx.NewWorkflowID()}
		if err := p.enqueuer.Enqueue(ctx, asynqx.TypeCardCleanup, payload, 0); err != nil {
			logger.Error().Err(err).Msg("清理续期入队失败")
		}
	}

	logger.Info().
		Int("cleaned", result.CleanedCount).
		Bool("has_more", result.HasMore).
		Msg("清理批次完成")
	return result, nil
}

// deleteCardBlobs 删除卡片的文件/缩略图/截图对象。
// 删除失败记结构化日志（资源类型 + ID），不阻塞记录删除。
func (p *Pipeline) deleteCardBlobs(ctx context.Context, card *repository.Card) {
	if p.blobs == nil {
		return
	}

	blobs := []struct {
		kind string
		id   string
	}{
		{"file", card.FileID},
		{"thumbnail", card.ThumbnailID},
		{"screenshot", card.ScreenshotID},
	}
	if card.LinkPreview != nil {
		blobs = append(blobs, struct {
			kind string
			id   string
		}{"og_image", card.LinkPreview.ImageStorageID})
	}

	for _, b := range blobs {
		if b.id == "" {
			continue
		}
		if err := p.blobs.Delete(ctx, b.id); err != nil {
			logger.WithCardID(card.CardID).Warn().
				Str("resource", b.kind).
				Str("storage_id", b.id).
				Err(err).
				Msg("删除对象失败")
		}
	}
}
