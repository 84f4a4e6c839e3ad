package pipeline

import (
	"context"
	"time"

	"github.com/azhengyongqin/cardflow/internal/logger"
	"github.com/azhengyongqin/cardflow/internal/metrics"
	"github.com/azhengyongqin/cardflow/internal/model"
	"github.com/azhengyongqin/cardflow/internal/repository"
)

// StageResult 单阶段执行结果（编排器收集，不向上抛错）
type StageResult struct {
	Stage      model.StageKey `json:"stage"`
	State      string         `json:"state"` // completed / failed / skipped
	Confidence float64        `json:"confidence,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// stageOutcome 阶段执行体的返回值
type stageOutcome struct {
	// Confidence 0 表示未打分，completed 时默认 1.0
	Confidence float64
}

// runStage 阶段 runner 的公共骨架：
//  1. 已 completed 直接跳过（幂等，单阶段可独立重跑）
//  2. 标记 in_progress（保留上次尝试的 startedAt/confidence）
//  3. 执行阶段逻辑
//  4. 把 completed/failed 合并回 ProcessingStatus，失败记录错误消息
//
// 阶段失败永远不上抛，编排器继续执行兄弟/后续阶段。
func (p *Pipeline) runStage(ctx context.Context, card *repository.Card, key model.StageKey,
	fn func(ctx context.Context, card *repository.Card) (stageOutcome, error)) StageResult {

	log := logger.WithCardID(card.CardID).With().Str("stage", string(key)).Logger()

	var prev *model.StageStatus
	if current, ok := card.ProcessingStatus[key]; ok {
		if current.Status == model.StageCompletedState {
			log.Debug().Msg("阶段已完成，跳过")
			return StageResult{Stage: key, State: "skipped"}
		}
		prev = &current
	}

	if err := p.cards.UpdateStageStatus(ctx, card.CardID, key, model.StageInProgress(p.nowMillis(), prev)); err != nil {
		log.Warn().Err(err).Msg("标记 in_progress 失败")
	}

	start := time.Now()
	outcome, err := fn(ctx, card)
	elapsed := time.Since(start)

	if err != nil {
		if updateErr := p.cards.UpdateStageStatus(ctx, card.CardID, key, model.StageFailed(p.nowMillis(), err.Error(), prev)); updateErr != nil {
			log.Error().Err(updateErr).Msg("写入 failed 状态失败")
		}
		metrics.RecordStage(string(key), "failed", elapsed.Seconds())
		log.Warn().
			Dur("duration(ms)", elapsed).
			Err(err).
			Msg("阶段执行失败")
		return StageResult{Stage: key, State: "failed", Error: err.Error()}
	}

	confidence := outcome.Confidence
	if confidence == 0 {
		confidence = 1.0
	}
	if updateErr := p.cards.UpdateStageStatus(ctx, card.CardID, key, model.StageCompletedWith(p.nowMillis(), confidence)); updateErr != nil {
		log.Error().Err(updateErr).Msg("写入 completed 状态失败")
	}
	metrics.RecordStage(string(key), "completed", elapsed.Seconds())
	log.Info().
		Dur("duration(ms)", elapsed).
		Float64("confidence", confidence).
		Msg("阶段完成")
	return StageResult{Stage: key, State: "completed", Confidence: confidence}
}
