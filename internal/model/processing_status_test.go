package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildInitialProcessingStatus_AllKeysPresent(t *testing.T) {
	now := int64(1_700_000_000_000)

	for _, ct := range AllCardTypes {
		t.Run(string(ct), func(t *testing.T) {
			status := BuildInitialProcessingStatus(InitialStatusParams{
				Now:      now,
				CardType: ct,
			})

			// 四个阶段键必须全部存在
			require.Len(t, status, 4, "每种类型都应有全部阶段键")
			for _, key := range AllStageKeys {
				_, ok := status[key]
				assert.True(t, ok, "缺少阶段键 %s", key)
			}

			// 不适用的阶段应直接标记 completed 而不是缺失或 pending
			if !ShouldRunRenderablesStage(ct) {
				assert.Equal(t, StageCompletedState, status[StageRenderables].Status)
				assert.Equal(t, now, status[StageRenderables].CompletedAt)
			} else {
				assert.Equal(t, StagePendingState, status[StageRenderables].Status)
			}
			if !ShouldRunCategorizeStage(ct) {
				assert.Equal(t, StageCompletedState, status[StageCategorize].Status)
			} else {
				assert.Equal(t, StagePendingState, status[StageCategorize].Status)
			}
		})
	}
}

func TestBuildInitialProcessingStatus_Overrides(t *testing.T) {
	now := int64(1000)
	no := false
	yes := true

	t.Run("metadata override", func(t *testing.T) {
		status := BuildInitialProcessingStatus(InitialStatusParams{
			Now:                 now,
			CardType:            CardTypeText,
			MetadataStageNeeded: &no,
		})
		assert.Equal(t, StageCompletedState, status[StageMetadata].Status)
	})

	t.Run("categorize override forces pending", func(t *testing.T) {
		status := BuildInitialProcessingStatus(InitialStatusParams{
			Now:                now,
			CardType:           CardTypeText,
			CategorizeOverride: &yes,
		})
		assert.Equal(t, StagePendingState, status[StageCategorize].Status)
	})

	t.Run("renderables override forces completed", func(t *testing.T) {
		status := BuildInitialProcessingStatus(InitialStatusParams{
			Now:                 now,
			CardType:            CardTypeImage,
			RenderablesOverride: &no,
		})
		assert.Equal(t, StageCompletedState, status[StageRenderables].Status)
	})

	t.Run("classification status passthrough", func(t *testing.T) {
		cs := StageCompletedWith(now, 0.9)
		status := BuildInitialProcessingStatus(InitialStatusParams{
			Now:                  now,
			CardType:             CardTypeImage,
			ClassificationStatus: &cs,
		})
		assert.Equal(t, StageCompletedState, status[StageClassify].Status)
		require.NotNil(t, status[StageClassify].Confidence)
		assert.Equal(t, 0.9, *status[StageClassify].Confidence)
	})
}

func TestStageTransitions_PreservePrevious(t *testing.T) {
	conf := 0.8
	prev := StageStatus{
		Status:     StageInProgressState,
		StartedAt:  500,
		Confidence: &conf,
	}

	t.Run("failed preserves startedAt and confidence", func(t *testing.T) {
		failed := StageFailed(9999, "boom", &prev)
		assert.Equal(t, StageFailedState, failed.Status)
		assert.Equal(t, int64(500), failed.StartedAt, "重试不应丢失最初的尝试时间")
		assert.Equal(t, int64(9999), failed.CompletedAt)
		require.NotNil(t, failed.Confidence)
		assert.Equal(t, 0.8, *failed.Confidence)
		assert.Equal(t, "boom", failed.Error)
	})

	t.Run("failed without previous stamps now", func(t *testing.T) {
		failed := StageFailed(42, "x", nil)
		assert.Equal(t, int64(42), failed.StartedAt)
		assert.Equal(t, int64(42), failed.CompletedAt)
		assert.Nil(t, failed.Confidence)
	})

	t.Run("in_progress preserves previous startedAt", func(t *testing.T) {
		ip := StageInProgress(9999, &prev)
		assert.Equal(t, StageInProgressState, ip.Status)
		assert.Equal(t, int64(500), ip.StartedAt)
		require.NotNil(t, ip.Confidence)
		assert.Equal(t, 0.8, *ip.Confidence)
	})

	t.Run("completed always stamps fresh completedAt", func(t *testing.T) {
		done := StageCompleted(777)
		assert.Equal(t, int64(777), done.CompletedAt)
		require.NotNil(t, done.Confidence)
		assert.Equal(t, 1.0, *done.Confidence, "未打分时默认 1.0")
	})
}

func TestWithStageStatus(t *testing.T) {
	s := StagePending()

	t.Run("nil current", func(t *testing.T) {
		out := WithStageStatus(nil, StageClassify, s)
		require.Len(t, out, 1)
		assert.Equal(t, s, out[StageClassify])
	})

	t.Run("never removes existing keys", func(t *testing.T) {
		first := WithStageStatus(nil, StageClassify, s)
		second := WithStageStatus(first, StageMetadata, StageCompleted(1))
		assert.Len(t, second, 2)
		assert.Contains(t, second, StageClassify)
		assert.Contains(t, second, StageMetadata)
	})

	t.Run("does not mutate input", func(t *testing.T) {
		current := ProcessingStatus{StageClassify: StagePending()}
		_ = WithStageStatus(current, StageClassify, StageCompleted(1))
		assert.Equal(t, StagePendingState, current[StageClassify].Status, "输入不应被修改")
	})
}

func TestIsSVG(t *testing.T) {
	assert.True(t, IsSVG("image/svg+xml", ""))
	assert.True(t, IsSVG("", "logo.svg"))
	assert.True(t, IsSVG("", "logo.SVGZ"))
	assert.True(t, IsSVG("", "logo.svg?v=2"))
	assert.False(t, IsSVG("image/png", "photo.png"))
	assert.False(t, IsSVG("", "vector.svg.png"))
}

func TestStagePlanFor_UnknownType(t *testing.T) {
	plan := StagePlanFor(CardType("bogus"))
	assert.True(t, plan.Classify)
	assert.True(t, plan.Metadata)
	assert.False(t, plan.Renderables)
	assert.False(t, plan.Categorize)
}
