package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"

	"github.com/disintegration/imaging"

	"github.com/azhengyongqin/cardflow/internal/logger"
	"github.com/azhengyongqin/cardflow/internal/model"
	"github.com/azhengyongqin/cardflow/internal/repository"
)

// thumbnailMaxEdge 缩略图最长边
const thumbnailMaxEdge = 512

// renderablesStage 生成视觉渲染物（缩略图）。只对 image/video/document
// 生效；SVG 和非 PDF 文档走无栅格路径（直接完成，不出缩略图）。
// 整个阶段 best-effort：失败记 failed，卡片照常可用。
func (p *Pipeline) renderablesStage(ctx context.Context, card *repository.Card) (stageOutcome, error) {
	// 缩略图已存在：可安全重跑
	if card.ThumbnailID != "" {
		return stageOutcome{}, nil
	}

	switch card.Type {
	case model.CardTypeImage:
		return p.imageThumbnail(ctx, card)
	case model.CardTypeVideo:
		return p.videoThumbnail(ctx, card)
	case model.CardTypeDocument:
		return p.documentThumbnail(ctx, card)
	default:
		return stageOutcome{}, fmt.Errorf("renderables 不适用于类型 %s", card.Type)
	}
}

func (p *Pipeline) imageThumbnail(ctx context.Context, card *repository.Card) (stageOutcome, error) {
	// SVG 是矢量图，前端直接渲染原文件，不出栅格缩略图
	if model.IsSVG(card.MimeType, card.FileName) {
		logger.WithCardID(card.CardID).Debug().Msg("SVG 图片跳过栅格缩略图")
		return stageOutcome{}, nil
	}
	if card.FileID == "" {
		return stageOutcome{}, fmt.Errorf("图片卡缺少文件")
	}
	if p.blobs == nil {
		return stageOutcome{}, fmt.Errorf("对象存储未配置")
	}

	data, _, err := p.blobs.Get(ctx, card.FileID)
	if err != nil {
		return stageOutcome{}, fmt.Errorf("读取原图: %w", err)
	}

	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return stageOutcome{}, fmt.Errorf("解码图片: %w", err)
	}

	thumb := imaging.Fit(src, thumbnailMaxEdge, thumbnailMaxEdge, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 85}); err != nil {
		return stageOutcome{}, fmt.Errorf("编码缩略图: %w", err)
	}

	return p.saveThumbnail(ctx, card, buf.Bytes(), "image/jpeg")
}

func (p *Pipeline) videoThumbnail(ctx context.Context, card *repository.Card) (stageOutcome, error) {
	if card.FileID == "" {
		return stageOutcome{}, fmt.Errorf("视频卡缺少文件")
	}
	if p.blobs == nil {
		return stageOutcome{}, fmt.Errorf("对象存储未配置")
	}
	if p.browser == nil {
		return stageOutcome{}, fmt.Errorf("浏览器渲染服务未配置")
	}

	fileURL, err := p.blobs.GetURL(ctx, card.FileID)
	if err != nil {
		return stageOutcome{}, fmt.Errorf("生成文件链接: %w", err)
	}

	frame, mime, err := p.browser.CaptureVideoFrame(ctx, fileURL)
	if err != nil {
		return stageOutcome{}, fmt.Errorf("抓取视频帧: %w", err)
	}

	return p.saveThumbnail(ctx, card, frame, mime)
}

func (p *Pipeline) documentThumbnail(ctx context.Context, card *repository.Card) (stageOutcome, error) {
	// 文档只对 PDF 出缩略图，其他格式直接完成
	if !model.IsPDF(card.MimeType) {
		logger.WithCardID(card.CardID).Debug().
			Str("mime_type", card.MimeType).
			Msg("非 PDF 文档跳过缩略图")
		return stageOutcome{}, nil
	}
	if card.FileID == "" {
		return stageOutcome{}, fmt.Errorf("文档卡缺少文件")
	}
	if p.blobs == nil {
		return stageOutcome{}, fmt.Errorf("对象存储未配置")
	}
	if p.browser == nil {
		return stageOutcome{}, fmt.Errorf("浏览器渲染服务未配置")
	}

	fileURL, err := p.blobs.GetURL(ctx, card.FileID)
	if err != nil {
		return stageOutcome{}, fmt.Errorf("生成文件链接: %w", err)
	}

	page, mime, err := p.browser.RenderPDFFirstPage(ctx, fileURL)
	if err != nil {
		return stageOutcome{}, fmt.Errorf("渲染 PDF 首页: %w", err)
	}

	return p.saveThumbnail(ctx, card, page, mime)
}

func (p *Pipeline) saveThumbnail(ctx context.Context, card *repository.Card, data []byte, mime string) (stageOutcome, error) {
	thumbnailID, err := p.blobs.Put(ctx, data, mime)
	if err != nil {
		return stageOutcome{}, fmt.Errorf("写入缩略图: %w", err)
	}
	if err := p.cards.SaveThumbnail(ctx, card.CardID, thumbnailID); err != nil {
		return stageOutcome{}, err
	}
	card.ThumbnailID = thumbnailID
	return stageOutcome{}, nil
}
