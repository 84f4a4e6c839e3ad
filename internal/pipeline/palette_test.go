package pipeline

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/azhengyongqin/cardflow/internal/model"
	"github.com/azhengyongqin/cardflow/internal/repository"
)

func solidImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestComputePaletteColors(t *testing.T) {
	t.Run("纯色图出单一颜色", func(t *testing.T) {
		colors := computePaletteColors(solidImage(16, 16, color.NRGBA{R: 255, A: 255}))
		assert.Equal(t, []string{"#FF0000"}, colors)
	})

	t.Run("按频次排序", func(t *testing.T) {
		// 3/4 红、1/4 蓝
		img := solidImage(16, 16, color.NRGBA{R: 255, A: 255})
		for y := 0; y < 16; y++ {
			for x := 0; x < 4; x++ {
				img.SetNRGBA(x, y, color.NRGBA{B: 255, A: 255})
			}
		}
		colors := computePaletteColors(img)
		require.Len(t, colors, 2)
		assert.Equal(t, "#FF0000", colors[0], "占比最高的颜色排第一")
		assert.Equal(t, "#0000FF", colors[1])
	})

	t.Run("最多取五个颜色", func(t *testing.T) {
		// 每行一个量化后互不相同的颜色
		img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				img.SetNRGBA(x, y, color.NRGBA{R: uint8(y * 16), A: 255})
			}
		}
		colors := computePaletteColors(img)
		assert.Len(t, colors, paletteMaxColors)
	})

	t.Run("太小的图不出结果", func(t *testing.T) {
		colors := computePaletteColors(solidImage(8, 8, color.NRGBA{R: 255, A: 255}))
		assert.Nil(t, colors)
	})

	t.Run("近透明像素不参与统计", func(t *testing.T) {
		img := solidImage(16, 16, color.NRGBA{R: 255, A: 255})
		for y := 0; y < 16; y++ {
			for x := 8; x < 16; x++ {
				img.SetNRGBA(x, y, color.NRGBA{G: 255, A: 0})
			}
		}
		colors := computePaletteColors(img)
		assert.Equal(t, []string{"#FF0000"}, colors, "透明的绿色区域要被忽略")
	})

	t.Run("全透明退化为首像素颜色", func(t *testing.T) {
		colors := computePaletteColors(solidImage(16, 16, color.NRGBA{R: 128, G: 64, B: 32, A: 0}))
		assert.Len(t, colors, 1)
	})
}

func TestExtractPalette(t *testing.T) {
	ctx := context.Background()

	t.Run("图片卡落库颜色列表", func(t *testing.T) {
		card := &repository.Card{
			CardID:           "c1",
			Type:             model.CardTypeImage,
			FileID:           "file-1",
			MimeType:         "image/png",
			ProcessingStatus: initialStatus(model.CardTypeImage),
		}
		cards := newFakeCardRepo(card)
		p, blobs, _, _ := newTestPipeline(cards)
		blobs.objects["file-1"] = pngBytes(t, solidImage(16, 16, color.NRGBA{R: 255, A: 255}))

		got, _ := cards.GetCard(ctx, "c1")
		require.NoError(t, p.extractPalette(ctx, got))

		saved, _ := cards.GetCard(ctx, "c1")
		assert.Equal(t, []string{"#FF0000"}, saved.Colors)
	})

	t.Run("已有颜色不重算", func(t *testing.T) {
		card := &repository.Card{
			CardID: "c1",
			Type:   model.CardTypeImage,
			FileID: "file-missing",
			Colors: []string{"#123456"},
		}
		cards := newFakeCardRepo(card)
		p, _, _, _ := newTestPipeline(cards)

		got, _ := cards.GetCard(ctx, "c1")
		require.NoError(t, p.extractPalette(ctx, got), "不应去读不存在的文件")

		saved, _ := cards.GetCard(ctx, "c1")
		assert.Equal(t, []string{"#123456"}, saved.Colors)
	})

	t.Run("SVG 跳过", func(t *testing.T) {
		card := &repository.Card{
			CardID:   "c1",
			Type:     model.CardTypeImage,
			FileID:   "file-1",
			FileName: "logo.svg",
			MimeType: "image/svg+xml",
		}
		cards := newFakeCardRepo(card)
		p, _, _, _ := newTestPipeline(cards)

		got, _ := cards.GetCard(ctx, "c1")
		require.NoError(t, p.extractPalette(ctx, got))

		saved, _ := cards.GetCard(ctx, "c1")
		assert.Empty(t, saved.Colors)
	})

	t.Run("处理工作流顺带提取主色", func(t *testing.T) {
		card := &repository.Card{
			CardID:           "c1",
			Type:             model.CardTypeImage,
			FileID:           "file-1",
			MimeType:         "image/png",
			ProcessingStatus: initialStatus(model.CardTypeImage),
		}
		cards := newFakeCardRepo(card)
		p, blobs, _, _ := newTestPipeline(cards)
		blobs.objects["file-1"] = pngBytes(t, solidImage(16, 16, color.NRGBA{B: 255, A: 255}))

		_, err := p.ProcessCard(ctx, "", "c1")
		require.NoError(t, err)

		saved, _ := cards.GetCard(ctx, "c1")
		assert.Equal(t, []string{"#0000FF"}, saved.Colors)
	})
}
