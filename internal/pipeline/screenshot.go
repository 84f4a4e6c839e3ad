package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/azhengyongqin/cardflow/internal/browser"
	"github.com/azhengyongqin/cardflow/internal/logger"
	"github.com/azhengyongqin/cardflow/internal/metrics"
	"github.com/azhengyongqin/cardflow/internal/repository"
)

// retryPolicy 单个错误类型的重试预算
type retryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// 两类可重试错误各自独立的预算：
// 限流退让要久一点，普通 HTTP 错误快速重试一次就放弃。
var retryPolicies = map[browser.ErrorKind]retryPolicy{
	browser.KindRateLimit: {MaxRetries: 3, Delay: 15 * time.Second},
	browser.KindHTTPError: {MaxRetries: 1, Delay: 5 * time.Second},
}

// RetryCounters 跨尝试携带的重试计数。两个计数互相独立，
// 一次运行可以只耗尽其中一类的预算。
type RetryCounters struct {
	RateLimit int `json:"rate_limit"`
	HTTP      int `json:"http"`
}

func (c RetryCounters) used(kind browser.ErrorKind) int {
	if kind == browser.KindRateLimit {
		return c.RateLimit
	}
	return c.HTTP
}

func (c RetryCounters) bump(kind browser.ErrorKind) RetryCounters {
	if kind == browser.KindRateLimit {
		c.RateLimit++
	} else {
		c.HTTP++
	}
	return c
}

// ScreenshotResult 截图子工作流的终态结果。
// 预算耗尽不抛错，Success=false + ErrorType 让调用方分支处理。
type ScreenshotResult struct {
	Success      bool   `json:"success"`
	ErrorType    string `json:"errorType,omitempty"`
	ScreenshotID string `json:"screenshotId,omitempty"`
}

// ScreenshotStep 执行一次截图尝试。返回值三选一：
//   - done=true：拿到终态结果（成功，或预算耗尽的失败）
//   - done=false：可重试，retryIn 为该错误类型的固定延迟，counters 已递增
//   - err != nil：致命错误（卡片不存在、不可分类的错误），调用方上抛
//
// 异步模式下调用方按 retryIn 延迟再投递，同步模式下原地等待后重入。
func (p *Pipeline) ScreenshotStep(ctx context.Context, cardID string, counters RetryCounters) (result ScreenshotResult, done bool, retryIn time.Duration, next RetryCounters, err error) {
	card, err := p.cards.GetCard(ctx, cardID)
	if err != nil {
		return ScreenshotResult{}, false, 0, counters, err
	}

	// 截图已存在：幂等成功
	if card.ScreenshotID != "" {
		return ScreenshotResult{Success: true, ScreenshotID: card.ScreenshotID}, true, 0, counters, nil
	}
	if card.URL == "" {
		return ScreenshotResult{}, false, 0, counters, fmt.Errorf("卡片 %s 没有可截图的 URL", cardID)
	}

	screenshotID, attemptErr := p.screenshotAttempt(ctx, card)
	if attemptErr == nil {
		return ScreenshotResult{Success: true, ScreenshotID: screenshotID}, true, 0, counters, nil
	}

	re, retryable := browser.AsRetryable(attemptErr)
	if !retryable {
		// 不可分类的错误按致命处理，直接上抛
		return ScreenshotResult{}, false, 0, counters, attemptErr
	}

	policy := retryPolicies[re.Kind]
	if counters.used(re.Kind) >= policy.MaxRetries {
		logger.WithCardID(cardID).Warn().
			Str("error_type", string(re.Kind)).
			Int("rate_limit_retries", counters.RateLimit).
			Int("http_retries", counters.HTTP).
			Msg("截图重试预算耗尽")
		return ScreenshotResult{Success: false, ErrorType: string(re.Kind)}, true, 0, counters, nil
	}

	next = counters.bump(re.Kind)
	metrics.RecordScreenshotRetry(string(re.Kind))
	logger.WithCardID(cardID).Info().
		Str("error_type", string(re.Kind)).
		Dur("duration(ms)", policy.Delay).
		Int("rate_limit_retries", next.RateLimit).
		Int("http_retries", next.HTTP).
		Msg("截图失败，安排重试")
	return ScreenshotResult{}, false, policy.Delay, next, nil
}

// CaptureScreenshot 同步执行整个截图子工作流（首次尝试无延迟，
// 之后按错误类型的固定延迟原地等待）。
func (p *Pipeline) CaptureScreenshot(ctx context.Context, cardID string) (ScreenshotResult, error) {
	counters := RetryCounters{}
	for {
		result, done, retryIn, next, err := p.ScreenshotStep(ctx, cardID, counters)
		if err != nil {
			return ScreenshotResult{}, err
		}
		if done {
			return result, nil
		}
		counters = next
		if err := p.sleep(ctx, retryIn); err != nil {
			return ScreenshotResult{}, err
		}
	}
}

// screenshotAttempt 单次截图：渲染 → 写对象存储 → 记到卡片上
func (p *Pipeline) screenshotAttempt(ctx context.Context, card *repository.Card) (string, error) {
	if p.blobs == nil || p.browser == nil {
		return "", fmt.Errorf("截图依赖未配置")
	}

	data, mime, err := p.browser.Screenshot(ctx, card.URL)
	if err != nil {
		return "", err
	}

	screenshotID, err := p.blobs.Put(ctx, data, mime)
	if err != nil {
		return "", fmt.Errorf("写入截图: %w", err)
	}

	if err := p.cards.SaveScreenshot(ctx, card.CardID, screenshotID); err != nil {
		return "", err
	}
	card.ScreenshotID = screenshotID
	return screenshotID, nil
}
