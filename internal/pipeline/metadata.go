package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/azhengyongqin/cardflow/internal/cache"
	"github.com/azhengyongqin/cardflow/internal/linkmeta"
	"github.com/azhengyongqin/cardflow/internal/logger"
	"github.com/azhengyongqin/cardflow/internal/model"
	"github.com/azhengyongqin/cardflow/internal/repository"
)

// 页面抓取结果缓存 24 小时：同一链接被多张卡收藏时不重复抓
const pageCacheTTL = 24 * time.Hour

// metadataStage 元数据阶段：
// 链接卡 → 抓取并保存链接预览（含 best-effort 的 OG 图片落库）；
// 其余类型 → 对文本内容生成 AI 摘要和标签。
func (p *Pipeline) metadataStage(ctx context.Context, card *repository.Card) (stageOutcome, error) {
	if card.Type == model.CardTypeLink {
		return p.linkMetadata(ctx, card)
	}
	return p.aiMetadata(ctx, card)
}

func (p *Pipeline) linkMetadata(ctx context.Context, card *repository.Card) (stageOutcome, error) {
	if card.URL == "" {
		return stageOutcome{}, fmt.Errorf("链接卡缺少 URL")
	}
	// 预览已成功抓取：阶段可安全重跑
	if card.HasLinkPreview() {
		return stageOutcome{}, nil
	}

	page, err := p.fetchPage(ctx, card.URL)
	if err != nil {
		// 抓取失败也要把失败状态写进预览字段，管理面能看到原因
		preview := repository.LinkPreview{
			Status:       repository.LinkPreviewError,
			ErrorMessage: err.Error(),
		}
		if saveErr := p.cards.SaveLinkPreview(ctx, card.CardID, preview); saveErr != nil {
			logger.WithCardID(card.CardID).Error().Err(saveErr).Msg("保存预览失败状态失败")
		}
		return stageOutcome{}, err
	}

	preview := repository.LinkPreview{
		Title:        page.Preview.Title,
		Description:  page.Preview.Description,
		ImageURL:     page.Preview.ImageURL,
		FaviconURL:   page.Preview.Favicon,
		SiteName:     page.Preview.SiteName,
		Author:       page.Preview.Author,
		Publisher:    page.Preview.Publisher,
		PublishedAt:  page.Preview.PublishedAt,
		CanonicalURL: page.Preview.CanonicalURL,
		FinalURL:     page.FinalURL,
		Status:       repository.LinkPreviewSuccess,
	}

	// OG 图片落到自己的对象存储，避免热链失效；失败不影响阶段结果
	if preview.ImageURL != "" && p.blobs != nil {
		if storageID, err := p.storeRemoteImage(ctx, preview.ImageURL); err != nil {
			logger.WithCardID(card.CardID).Warn().
				Str("resource", "og_image").
				Str("image_url", preview.ImageURL).
				Err(err).
				Msg("OG 图片落库失败")
		} else {
			preview.ImageStorageID = storageID
		}
	}

	if err := p.cards.SaveLinkPreview(ctx, card.CardID, preview); err != nil {
		return stageOutcome{}, err
	}
	card.LinkPreview = &preview

	return stageOutcome{}, nil
}

// AI 元数据的来源置信度：文本/引用直接分析原文最高，
// 音频经过转写、文档经过文件名拼接，折扣一档。
const (
	aiConfidenceText    = 0.95
	aiConfidencePalette = 0.9
	aiConfidenceAudio   = 0.85
)

func (p *Pipeline) aiMetadata(ctx context.Context, card *repository.Card) (stageOutcome, error) {
	if card.HasAIMetadata() {
		return stageOutcome{}, nil
	}
	if p.ai == nil {
		return stageOutcome{}, fmt.Errorf("ai 客户端未配置")
	}

	text, confidence := p.analysisText(ctx, card)
	if text == "" {
		// 没有文本可总结（纯文件卡），视作完成
		return stageOutcome{}, nil
	}

	summary, err := p.ai.Summarize(ctx, text)
	if err != nil {
		return stageOutcome{}, fmt.Errorf("生成摘要: %w", err)
	}

	tags, err := p.ai.SuggestTags(ctx, text)
	if err != nil {
		return stageOutcome{}, fmt.Errorf("生成标签: %w", err)
	}

	if err := p.cards.SaveAIMetadata(ctx, card.CardID, summary, tags); err != nil {
		return stageOutcome{}, err
	}
	card.AISummary = summary
	card.AITags = tags

	return stageOutcome{Confidence: confidence}, nil
}

// analysisText 按卡片类型决定交给 AI 分析的文本及来源置信度。
// 音频卡优先转写；调色板卡把颜色列表拼进上下文。
func (p *Pipeline) analysisText(ctx context.Context, card *repository.Card) (string, float64) {
	text := strings.TrimSpace(card.Content)
	if text == "" {
		text = strings.TrimSpace(card.Notes)
	}

	switch card.Type {
	case model.CardTypeAudio:
		if transcript := p.audioTranscript(ctx, card); transcript != "" {
			return transcript, aiConfidenceAudio
		}
	case model.CardTypePalette:
		if len(card.Colors) > 0 {
			text = strings.TrimSpace("Colors: " + strings.Join(card.Colors, ", ") + "\n" + text)
		}
		return text, aiConfidencePalette
	}

	return text, aiConfidenceText
}

// audioTranscript 取音频文件并转写。转写是增强路径：
// 取文件失败或转写失败都只告警，调用方退回已有文本。
func (p *Pipeline) audioTranscript(ctx context.Context, card *repository.Card) string {
	if card.AITranscript != "" {
		return card.AITranscript
	}
	if card.FileID == "" || p.blobs == nil {
		return ""
	}

	data, mime, err := p.blobs.Get(ctx, card.FileID)
	if err != nil {
		logger.WithCardID(card.CardID).Warn().Err(err).Msg("读取音频失败")
		return ""
	}
	if card.MimeType != "" {
		mime = card.MimeType
	}

	transcript, err := p.ai.Transcribe(ctx, data, mime)
	if err != nil || transcript == "" {
		logger.WithCardID(card.CardID).Warn().Err(err).Msg("音频转写失败")
		return ""
	}

	if err := p.cards.SaveTranscript(ctx, card.CardID, transcript); err != nil {
		logger.WithCardID(card.CardID).Warn().Err(err).Msg("保存转写文本失败")
	}
	card.AITranscript = transcript
	return transcript
}

// fetchPage 抓取页面，按规范化 URL 走 Redis 缓存
func (p *Pipeline) fetchPage(ctx context.Context, pageURL string) (linkmeta.FetchResult, error) {
	if p.fetcher == nil {
		return linkmeta.FetchResult{}, fmt.Errorf("fetcher 未配置")
	}

	key := cache.CacheKey("linkpreview", linkmeta.NormalizeURL(pageURL))

	if p.cache != nil {
		var cached linkmeta.FetchResult
		if err := p.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	result, err := p.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return linkmeta.FetchResult{}, err
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, key, result, pageCacheTTL); err != nil {
			logger.Warn().Str("url", pageURL).Err(err).Msg("写入页面缓存失败")
		}
	}
	return result, nil
}

// storeRemoteImage 下载远端图片并写入对象存储
func (p *Pipeline) storeRemoteImage(ctx context.Context, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("下载图片: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("下载图片: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("读取图片: %w", err)
	}

	mime := strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0])
	if mime == "" {
		mime = "image/jpeg"
	}
	return p.blobs.Put(ctx, data, mime)
}
