package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/azhengyongqin/cardflow/internal/model"
	"github.com/azhengyongqin/cardflow/internal/repository"
)

func TestClassifyContent(t *testing.T) {
	t.Run("已知类型直接高置信度确认", func(t *testing.T) {
		c := classifyContent(&repository.Card{CardID: "c1", Type: model.CardTypeImage})
		assert.Equal(t, model.CardTypeImage, c.Type)
		assert.Equal(t, confidenceStrong, c.Confidence)
	})

	t.Run("mime 推导类型", func(t *testing.T) {
		cases := []struct {
			mime string
			want model.CardType
		}{
			{"image/png", model.CardTypeImage},
			{"video/mp4", model.CardTypeVideo},
			{"audio/mpeg", model.CardTypeAudio},
			{"application/pdf", model.CardTypeDocument},
			{"application/pdf; charset=binary", model.CardTypeDocument},
		}
		for _, tc := range cases {
			c := classifyContent(&repository.Card{Type: model.CardTypeText, MimeType: tc.mime})
			assert.Equal(t, tc.want, c.Type, tc.mime)
			assert.Equal(t, confidenceStrong, c.Confidence, tc.mime)
		}
	})

	t.Run("调色板内容", func(t *testing.T) {
		c := classifyContent(&repository.Card{Type: model.CardTypeText, Content: "#FF5733 #33FF57 #3357FF"})
		assert.Equal(t, model.CardTypePalette, c.Type)
		assert.Equal(t, confidencePalette, c.Confidence)
	})

	t.Run("单个色值不算调色板", func(t *testing.T) {
		c := classifyContent(&repository.Card{Type: model.CardTypeText, Content: "#FF5733"})
		assert.Equal(t, model.CardTypeText, c.Type)
	})

	t.Run("弯引号包裹的内容识别为引用并归一化", func(t *testing.T) {
		c := classifyContent(&repository.Card{Type: model.CardTypeText, Content: "“简单比复杂难”"})
		assert.Equal(t, model.CardTypeQuote, c.Type)
		assert.Equal(t, confidenceMedium, c.Confidence)
		assert.Equal(t, "简单比复杂难", c.NormalizedContent, "弯引号和外层引号都要去掉")
	})

	t.Run("裸链接内容识别为链接并提升 URL", func(t *testing.T) {
		c := classifyContent(&repository.Card{Type: model.CardTypeText, Content: "https://example.com/post"})
		assert.Equal(t, model.CardTypeLink, c.Type)
		assert.Equal(t, confidenceMedium, c.Confidence)
		assert.Equal(t, "https://example.com/post", c.PromotedURL)
	})

	t.Run("普通文本兜底", func(t *testing.T) {
		c := classifyContent(&repository.Card{Type: model.CardTypeText, Content: "随手记的一段笔记"})
		assert.Equal(t, model.CardTypeText, c.Type)
		assert.Equal(t, confidenceDefault, c.Confidence)
	})
}

func TestNormalizeQuote(t *testing.T) {
	t.Run("直引号", func(t *testing.T) {
		got, ok := normalizeQuote(`"hello world"`)
		assert.True(t, ok)
		assert.Equal(t, "hello world", got)
	})

	t.Run("未包裹的内容不是引用", func(t *testing.T) {
		_, ok := normalizeQuote("plain text")
		assert.False(t, ok)
	})

	t.Run("空引号不是引用", func(t *testing.T) {
		_, ok := normalizeQuote(`""`)
		assert.False(t, ok)
	})
}
