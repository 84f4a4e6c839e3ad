package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/cardflow/internal/config"
	"github.com/azhengyongqin/cardflow/internal/model"
	"github.com/azhengyongqin/cardflow/internal/pipeline"
	asynqx "github.com/azhengyongqin/cardflow/internal/queue"
	"github.com/azhengyongqin/cardflow/internal/repository"
)

type enqueueCall struct {
	TaskType string
	Payload  asynqx.WorkflowPayload
	Delay    time.Duration
}

type stubEnqueuer struct {
	calls []enqueueCall
	fail  bool
}

func (e *stubEnqueuer) Enqueue(_ context.Context, taskType string, p asynqx.WorkflowPayload, delay time.Duration) error {
	if e.fail {
		return errors.New("redis 不可用")
	}
	e.calls = append(e.calls, enqueueCall{TaskType: taskType, Payload: p, Delay: delay})
	return nil
}

type stubRuns struct {
	runs  map[string]*repository.WorkflowRun
	steps map[string]json.RawMessage
}

func newStubRuns() *stubRuns {
	return &stubRuns{runs: map[string]*repository.WorkflowRun{}, steps: map[string]json.RawMessage{}}
}

func (r *stubRuns) CreateRun(_ context.Context, runID, kind, cardID string) (repository.WorkflowRun, error) {
	run := repository.WorkflowRun{RunID: runID, Kind: kind, CardID: cardID, Attempt: 1, Status: repository.RunStatusPending}
	r.runs[runID] = &run
	return run, nil
}

func (r *stubRuns) GetRun(_ context.Context, runID string) (*repository.WorkflowRun, error) {
	run, ok := r.runs[runID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *run
	return &copied, nil
}

func (r *stubRuns) MarkRunning(_ context.Context, runID string) error {
	r.runs[runID].Status = repository.RunStatusRunning
	return nil
}

func (r *stubRuns) MarkCompleted(_ context.Context, runID string, result json.RawMessage) error {
	r.runs[runID].Status = repository.RunStatusSuccess
	r.runs[runID].Result = result
	return nil
}

func (r *stubRuns) MarkFailed(_ context.Context, runID string, lastError string) error {
	r.runs[runID].Status = repository.RunStatusFail
	r.runs[runID].LastError = lastError
	return nil
}

func (r *stubRuns) GetStepResult(_ context.Context, runID, stepName string) (json.RawMessage, bool, error) {
	v, ok := r.steps[runID+"/"+stepName]
	return v, ok, nil
}

func (r *stubRuns) SaveStepResult(_ context.Context, runID, stepName string, result json.RawMessage) error {
	r.steps[runID+"/"+stepName] = result
	return nil
}

// stubCards 只支撑 Manager 测试需要的路径
type stubCards struct {
	cards map[string]*repository.Card
}

func newStubCards(cards ...*repository.Card) *stubCards {
	s := &stubCards{cards: map[string]*repository.Card{}}
	for _, c := range cards {
		s.cards[c.CardID] = c
	}
	return s
}

func (s *stubCards) CreateCard(_ context.Context, card repository.Card) (repository.Card, error) {
	s.cards[card.CardID] = &card
	return card, nil
}

func (s *stubCards) GetCard(_ context.Context, cardID string) (*repository.Card, error) {
	c, ok := s.cards[cardID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (s *stubCards) UpdateStageStatus(_ context.Context, cardID string, stage model.StageKey, status model.StageStatus) error {
	c, ok := s.cards[cardID]
	if !ok {
		return repository.ErrNotFound
	}
	if c.ProcessingStatus == nil {
		c.ProcessingStatus = model.ProcessingStatus{}
	}
	c.ProcessingStatus[stage] = status
	return nil
}

func (s *stubCards) SaveClassification(_ context.Context, cardID string, cardType model.CardType, normalizedContent, promotedURL string) error {
	s.cards[cardID].Type = cardType
	if normalizedContent != "" {
		s.cards[cardID].Content = normalizedContent
	}
	if promotedURL != "" {
		s.cards[cardID].URL = promotedURL
	}
	return nil
}

func (s *stubCards) SaveTranscript(_ context.Context, cardID string, transcript string) error {
	s.cards[cardID].AITranscript = transcript
	return nil
}

func (s *stubCards) SaveColors(_ context.Context, cardID string, colors []string) error {
	s.cards[cardID].Colors = colors
	return nil
}

func (s *stubCards) SaveLinkPreview(_ context.Context, cardID string, preview repository.LinkPreview) error {
	s.cards[cardID].LinkPreview = &preview
	return nil
}

func (s *stubCards) SaveAIMetadata(_ context.Context, cardID string, summary string, tags []string) error {
	s.cards[cardID].AISummary = summary
	s.cards[cardID].AITags = tags
	return nil
}

func (s *stubCards) SaveCategorization(_ context.Context, cardID string, category string, confidence float64, facts []repository.CategoryFact) error {
	s.cards[cardID].Category = category
	s.cards[cardID].CategoryConfidence = &confidence
	s.cards[cardID].CategoryFacts = facts
	return nil
}

func (s *stubCards) SaveThumbnail(_ context.Context, cardID string, thumbnailID string) error {
	s.cards[cardID].ThumbnailID = thumbnailID
	return nil
}

func (s *stubCards) SaveScreenshot(_ context.Context, cardID string, screenshotID string) error {
	s.cards[cardID].ScreenshotID = screenshotID
	return nil
}

func (s *stubCards) ListCards(_ context.Context, _ repository.ListCardsFilter) ([]repository.Card, error) {
	return nil, nil
}

func (s *stubCards) CountCards(_ context.Context, _ repository.ListCardsFilter) (int, error) {
	return 0, nil
}

func (s *stubCards) ListCardsMissingAI(_ context.Context, _ int) ([]repository.Card, error) {
	return nil, nil
}

func (s *stubCards) ListCardsPendingCleanup(_ context.Context, _ time.Time, _ int) ([]repository.Card, error) {
	return nil, nil
}

func (s *stubCards) DeleteCard(_ context.Context, cardID string) error {
	delete(s.cards, cardID)
	return nil
}

func newTestManager(cards *stubCards) (*Manager, *stubEnqueuer, *stubRuns) {
	enq := &stubEnqueuer{}
	runs := newStubRuns()
	pipe := pipeline.New(pipeline.Deps{
		Cards:    cards,
		Runs:     runs,
		Enqueuer: enq,
		Config: config.PipelineConfig{
			BackfillBatchSize: 50,
			CleanupBatchSize:  10,
			CleanupRetention:  30 * 24 * time.Hour,
		},
	})
	return NewManager(enq, runs, cards, pipe), enq, runs
}

func TestKindFromSlug(t *testing.T) {
	cases := []struct {
		slug string
		want string
		ok   bool
	}{
		{"card_processing", asynqx.TypeCardProcessing, true},
		{"link_enrichment", asynqx.TypeLinkEnrichment, true},
		{"screenshot", asynqx.TypeScreenshot, true},
		{"ai_backfill", asynqx.TypeAIBackfill, true},
		{"card_cleanup", asynqx.TypeCardCleanup, true},
		{"unknown", "", false},
	}
	for _, tc := range cases {
		kind, ok := KindFromSlug(tc.slug)
		assert.Equal(t, tc.ok, ok, tc.slug)
		assert.Equal(t, tc.want, kind, tc.slug)
	}
}

func TestManagerStart(t *testing.T) {
	ctx := context.Background()

	t.Run("异步启动：落运行记录并入队", func(t *testing.T) {
		mgr, enq, runs := newTestManager(newStubCards())

		outcome, err := mgr.Start(ctx, asynqx.TypeAIBackfill, "", true)
		require.NoError(t, err)
		assert.NotEmpty(t, outcome.WorkflowID)
		assert.Nil(t, outcome.Result, "异步启动不带结果")

		require.Len(t, enq.calls, 1)
		assert.Equal(t, asynqx.TypeAIBackfill, enq.calls[0].TaskType)
		assert.Equal(t, outcome.WorkflowID, enq.calls[0].Payload.WorkflowID)

		run, err := runs.GetRun(ctx, outcome.WorkflowID)
		require.NoError(t, err)
		assert.Equal(t, repository.RunStatusPending, run.Status)
	})

	t.Run("异步启动入队失败：运行记录标记失败", func(t *testing.T) {
		mgr, enq, runs := newTestManager(newStubCards())
		enq.fail = true

		_, err := mgr.Start(ctx, asynqx.TypeAIBackfill, "", true)
		require.Error(t, err)

		require.Len(t, runs.runs, 1)
		for _, run := range runs.runs {
			assert.Equal(t, repository.RunStatusFail, run.Status)
		}
	})

	t.Run("同步启动：执行完返回结果并关闭运行记录", func(t *testing.T) {
		mgr, _, runs := newTestManager(newStubCards())

		outcome, err := mgr.Start(ctx, asynqx.TypeCardCleanup, "", false)
		require.NoError(t, err)
		require.NotNil(t, outcome.Result)

		var result pipeline.CleanupResult
		require.NoError(t, json.Unmarshal(outcome.Result, &result))
		assert.Equal(t, 0, result.CleanedCount)
		assert.False(t, result.HasMore)

		run, err := runs.GetRun(ctx, outcome.WorkflowID)
		require.NoError(t, err)
		assert.Equal(t, repository.RunStatusSuccess, run.Status)
		assert.JSONEq(t, string(outcome.Result), string(run.Result))
	})

	t.Run("同步启动执行失败：运行记录标记失败", func(t *testing.T) {
		mgr, _, runs := newTestManager(newStubCards())

		_, err := mgr.Start(ctx, asynqx.TypeCardProcessing, "missing", false)
		require.Error(t, err)
		assert.ErrorIs(t, err, repository.ErrNotFound)

		require.Len(t, runs.runs, 1)
		for _, run := range runs.runs {
			assert.Equal(t, repository.RunStatusFail, run.Status)
			assert.NotEmpty(t, run.LastError)
		}
	})

	t.Run("未知类型直接报错", func(t *testing.T) {
		mgr, enq, _ := newTestManager(newStubCards())

		_, err := mgr.Start(ctx, "workflow:bogus", "", true)
		require.Error(t, err)
		assert.Empty(t, enq.calls)
	})
}

func TestEnsureRun(t *testing.T) {
	ctx := context.Background()

	t.Run("不存在时补建", func(t *testing.T) {
		mgr, _, runs := newTestManager(newStubCards())

		require.NoError(t, mgr.EnsureRun(ctx, "run-1", asynqx.TypeCardProcessing, "c1"))
		run, err := runs.GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, asynqx.TypeCardProcessing, run.Kind)
	})

	t.Run("已存在时不重建", func(t *testing.T) {
		mgr, _, runs := newTestManager(newStubCards())
		_, err := runs.CreateRun(ctx, "run-1", asynqx.TypeScreenshot, "c1")
		require.NoError(t, err)
		require.NoError(t, runs.MarkRunning(ctx, "run-1"))

		require.NoError(t, mgr.EnsureRun(ctx, "run-1", asynqx.TypeScreenshot, "c1"))
		run, err := runs.GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, repository.RunStatusRunning, run.Status, "已有记录不应被覆盖")
	})
}

func TestRetryCardEnrichment(t *testing.T) {
	ctx := context.Background()

	t.Run("卡片不存在：not_found 结果而非错误", func(t *testing.T) {
		mgr, enq, _ := newTestManager(newStubCards())

		outcome, err := mgr.RetryCardEnrichment(ctx, "missing")
		require.NoError(t, err, "不存在走结果分支")
		assert.False(t, outcome.Success)
		assert.Equal(t, "not_found", outcome.Reason)
		assert.Greater(t, outcome.RequestedAt, int64(0))
		assert.Empty(t, enq.calls, "不应入队任何任务")
	})

	t.Run("卡片存在：重新入队处理工作流", func(t *testing.T) {
		card := &repository.Card{CardID: "c1", Type: model.CardTypeText, Content: "内容"}
		mgr, enq, _ := newTestManager(newStubCards(card))

		outcome, err := mgr.RetryCardEnrichment(ctx, "c1")
		require.NoError(t, err)
		assert.True(t, outcome.Success)
		assert.Empty(t, outcome.Reason)

		require.Len(t, enq.calls, 1)
		assert.Equal(t, asynqx.TypeCardProcessing, enq.calls[0].TaskType)
		assert.Equal(t, "c1", enq.calls[0].Payload.CardID)
	})
}
