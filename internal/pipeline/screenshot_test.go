package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/cardflow/internal/model"
	"github.com/azhengyongqin/cardflow/internal/repository"
)

func linkCard(cardID string) *repository.Card {
	return &repository.Card{
		CardID: cardID,
		Type:   model.CardTypeLink,
		URL:    "https://example.com/page",
	}
}

func TestCaptureScreenshot(t *testing.T) {
	ctx := context.Background()

	t.Run("首次成功，无任何延迟", func(t *testing.T) {
		cards := newFakeCardRepo(linkCard("c1"))
		p, _, renderer, sleeper := newTestPipeline(cards)

		result, err := p.CaptureScreenshot(ctx, "c1")
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.NotEmpty(t, result.ScreenshotID)
		assert.Equal(t, 1, renderer.attempts, "应该只尝试一次")
		assert.Empty(t, sleeper.delays, "首次尝试不带延迟")

		saved, _ := cards.GetCard(ctx, "c1")
		assert.Equal(t, result.ScreenshotID, saved.ScreenshotID)
	})

	t.Run("连续 4 次限流后终止，共 4 次尝试", func(t *testing.T) {
		cards := newFakeCardRepo(linkCard("c1"))
		p, _, renderer, sleeper := newTestPipeline(cards)
		renderer.script = []error{rateLimitErr(), rateLimitErr(), rateLimitErr(), rateLimitErr()}

		result, err := p.CaptureScreenshot(ctx, "c1")
		require.NoError(t, err, "预算耗尽不是错误，要走返回值分支")
		assert.False(t, result.Success)
		assert.Equal(t, "rate_limit", result.ErrorType)
		assert.Equal(t, 4, renderer.attempts, "3 次重试预算 = 总共 4 次尝试")
		assert.Equal(t, []time.Duration{15 * time.Second, 15 * time.Second, 15 * time.Second}, sleeper.delays,
			"第 3 次重试之后不应再安排尝试")
	})

	t.Run("一次 http_error 后成功，共 2 次尝试", func(t *testing.T) {
		cards := newFakeCardRepo(linkCard("c1"))
		p, _, renderer, sleeper := newTestPipeline(cards)
		renderer.script = []error{httpErr()}

		result, err := p.CaptureScreenshot(ctx, "c1")
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, 2, renderer.attempts)
		assert.Equal(t, []time.Duration{5 * time.Second}, sleeper.delays, "第 2 次尝试前等 5000ms")
	})

	t.Run("两次 http_error 耗尽预算", func(t *testing.T) {
		cards := newFakeCardRepo(linkCard("c1"))
		p, _, renderer, _ := newTestPipeline(cards)
		renderer.script = []error{httpErr(), httpErr()}

		result, err := p.CaptureScreenshot(ctx, "c1")
		require.NoError(t, err)
		assert.False(t, result.Success)
		assert.Equal(t, "http_error", result.ErrorType)
		assert.Equal(t, 2, renderer.attempts, "http_error 只有 1 次重试预算")
	})

	t.Run("两类错误计数互相独立", func(t *testing.T) {
		cards := newFakeCardRepo(linkCard("c1"))
		p, _, renderer, sleeper := newTestPipeline(cards)
		// 限流 → http_error → 成功：两类各用掉 1 次预算
		renderer.script = []error{rateLimitErr(), httpErr()}

		result, err := p.CaptureScreenshot(ctx, "c1")
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, 3, renderer.attempts)
		assert.Equal(t, []time.Duration{15 * time.Second, 5 * time.Second}, sleeper.delays)
	})

	t.Run("不可分类的错误按致命处理直接上抛", func(t *testing.T) {
		cards := newFakeCardRepo(linkCard("c1"))
		p, _, renderer, _ := newTestPipeline(cards)
		renderer.script = []error{errors.New("connection reset")}

		_, err := p.CaptureScreenshot(ctx, "c1")
		require.Error(t, err)
		assert.Equal(t, 1, renderer.attempts, "致命错误不重试")
	})

	t.Run("卡片不存在是致命错误", func(t *testing.T) {
		p, _, _, _ := newTestPipeline(newFakeCardRepo())

		_, err := p.CaptureScreenshot(ctx, "missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("截图已存在时幂等成功", func(t *testing.T) {
		card := linkCard("c1")
		card.ScreenshotID = "blob-existing"
		cards := newFakeCardRepo(card)
		p, _, renderer, _ := newTestPipeline(cards)

		result, err := p.CaptureScreenshot(ctx, "c1")
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, "blob-existing", result.ScreenshotID)
		assert.Equal(t, 0, renderer.attempts, "不应发起新的渲染")
	})
}

func TestScreenshotStep_AsyncCounters(t *testing.T) {
	ctx := context.Background()

	t.Run("重试计数跨投递递增", func(t *testing.T) {
		cards := newFakeCardRepo(linkCard("c1"))
		p, _, renderer, _ := newTestPipeline(cards)
		renderer.script = []error{rateLimitErr()}

		_, done, retryIn, next, err := p.ScreenshotStep(ctx, "c1", RetryCounters{})
		require.NoError(t, err)
		assert.False(t, done)
		assert.Equal(t, 15*time.Second, retryIn)
		assert.Equal(t, RetryCounters{RateLimit: 1}, next)
	})

	t.Run("携带满计数的投递直接终止", func(t *testing.T) {
		cards := newFakeCardRepo(linkCard("c1"))
		p, _, renderer, _ := newTestPipeline(cards)
		renderer.script = []error{rateLimitErr()}

		result, done, _, _, err := p.ScreenshotStep(ctx, "c1", RetryCounters{RateLimit: 3})
		require.NoError(t, err)
		assert.True(t, done)
		assert.False(t, result.Success)
		assert.Equal(t, "rate_limit", result.ErrorType)
	})
}
