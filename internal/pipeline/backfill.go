package pipeline

import (
	"context"
	"fmt"

	"github.com/azhengyongqin/cardflow/internal/logger"
	"github.com/azhengyongqin/cardflow/internal/metrics"
	asynqx "github.com/azhengyongqin/cardflow/internal/queue"
)

// BackfillResult AI 补数批处理结果
type BackfillResult struct {
	EnqueuedCount int      `json:"enqueuedCount"`
	FailedCardIDs []string `json:"failedCardIds"`
}

// RunBackfill 扫描缺少 AI 元数据的卡片（有界批量），逐张重新入队
// 处理工作流。单张入队失败只记录并收集，不中断批次。
func (p *Pipeline) RunBackfill(ctx context.Context) (BackfillResult, error) {
	if p.enqueuer == nil {
		return BackfillResult{}, fmt.Errorf("enqueuer 未配置")
	}

	cards, err := p.cards.ListCardsMissingAI(ctx, p.cfg.BackfillBatchSize)
	if err != nil {
		return BackfillResult{}, fmt.Errorf("查询待补数卡片: %w", err)
	}

	result := BackfillResult{FailedCardIDs: []string{}}
	for _, card := range cards {
		payload := asynqx.WorkflowPayload{
			WorkflowID: asynqx.NewWorkflowID(),
			CardID:     card.CardID,
		}
		if err := p.enqueuer.Enqueue(ctx, asynqx.TypeCardProcessing, payload, 0); err != nil {
			logger.WithCardID(card.CardID).Warn().Err(err).Msg("补数入队失败")
			metrics.RecordBackfillCard("enqueue_failed")
			result.FailedCardIDs = append(result.FailedCardIDs, card.CardID)
			continue
		}
		metrics.RecordBackfillCard("enqueued")
		result.EnqueuedCount++
	}

	logger.Info().
		Int("enqueued", result.EnqueuedCount).
		Int("failed", len(result.FailedCardIDs)).
		Msg("AI 补数批次完成")
	return result, nil
}
