package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/azhengyongqin/cardflow/internal/model"
	"github.com/azhengyongqin/cardflow/internal/repository"
)

// 主色提取参数：等步长采样约 4000 个像素，通道量化到 16 一档，
// 频次排序取前 5 个颜色。尺寸太小的图不具代表性，直接跳过。
const (
	paletteMaxColors    = 5
	paletteSampleTarget = 4000
	paletteChannelStep  = 16
	paletteMinDimension = 12
	paletteAlphaMin     = 16
)

// extractPalette 提取图片卡的主色列表，与流水线各阶段并行运行。
// 已有颜色结果时跳过重算；整体 best-effort，失败由调用方告警。
func (p *Pipeline) extractPalette(ctx context.Context, card *repository.Card) error {
	if card.Type != model.CardTypeImage || card.FileID == "" {
		return nil
	}
	if len(card.Colors) > 0 {
		return nil
	}
	// SVG 没有栅格像素可采样
	if model.IsSVG(card.MimeType, card.FileName) {
		return nil
	}
	if p.blobs == nil {
		return fmt.Errorf("对象存储未配置")
	}

	data, _, err := p.blobs.Get(ctx, card.FileID)
	if err != nil {
		return fmt.Errorf("读取原图: %w", err)
	}

	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("解码图片: %w", err)
	}

	colors := computePaletteColors(src)
	if len(colors) == 0 {
		return nil
	}

	if err := p.cards.SaveColors(ctx, card.CardID, colors); err != nil {
		return err
	}
	card.Colors = colors
	return nil
}

// computePaletteColors 等步长采样 + 通道量化 + 频次排序。
// 近透明像素不参与统计；同频颜色按 hex 字典序保证结果稳定。
func computePaletteColors(src image.Image) []string {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w < paletteMinDimension || h < paletteMinDimension {
		return nil
	}

	pixelCount := w * h
	stride := pixelCount / paletteSampleTarget
	if stride < 1 {
		stride = 1
	}

	counts := map[string]int{}
	for i := 0; i < pixelCount; i += stride {
		x := bounds.Min.X + i%w
		y := bounds.Min.Y + i/w
		r, g, b, a := src.At(x, y).RGBA()
		if a>>8 < paletteAlphaMin {
			continue
		}
		hex := rgbToHex(quantizeChannel(int(r>>8)), quantizeChannel(int(g>>8)), quantizeChannel(int(b>>8)))
		counts[hex]++
	}

	if len(counts) == 0 {
		// 整张图近乎透明：退化为左上角像素的颜色
		r, g, b, _ := src.At(bounds.Min.X, bounds.Min.Y).RGBA()
		return []string{rgbToHex(int(r>>8), int(g>>8), int(b>>8))}
	}

	type colorCount struct {
		hex   string
		count int
	}
	ranked := make([]colorCount, 0, len(counts))
	for hex, n := range counts {
		ranked = append(ranked, colorCount{hex, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].hex < ranked[j].hex
	})
	if len(ranked) > paletteMaxColors {
		ranked = ranked[:paletteMaxColors]
	}

	out := make([]string, len(ranked))
	for i, c := range ranked {
		out[i] = c.hex
	}
	return out
}

// quantizeChannel 通道值归到最近的 16 档
func quantizeChannel(v int) int {
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	bucket := (v + paletteChannelStep/2) / paletteChannelStep * paletteChannelStep
	if bucket > 255 {
		bucket = 255
	}
	return bucket
}

func rgbToHex(r, g, b int) string {
	return fmt.Sprintf("#%02X%02X%02X", r, g, b)
}
