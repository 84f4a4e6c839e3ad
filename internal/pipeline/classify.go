package pipeline

import (
	"context"
	"regexp"
	"strings"

	"github.com/azhengyongqin/cardflow/internal/model"
	"github.com/azhengyongqin/cardflow/internal/repository"
)

// 分类置信度分层：强信号（mime/已知类型）、中等（内容形状）、
// 调色板特例、兜底。
const (
	confidenceStrong  = 0.97
	confidenceMedium  = 0.9
	confidencePalette = 0.88
	confidenceDefault = 0.7
)

// classification 分类结果。NormalizedContent 非空时分类阶段会回写内容
// （例如去掉弯引号后的引用文本）；PromotedURL 非空时内容是裸 URL，
// 要提升到卡片的 URL 字段。
type classification struct {
	Type              model.CardType
	Confidence        float64
	NormalizedContent string
	PromotedURL       string
}

// classifyStage 确认/重推卡片的语义类型。
// 多数卡片创建时类型就已确定，直接以强置信度确认；
// 只有 text 卡需要从内容形状重推（调色板、引用、裸链接）。
func (p *Pipeline) classifyStage(ctx context.Context, card *repository.Card) (stageOutcome, error) {
	c := classifyContent(card)

	if c.Type != card.Type || c.NormalizedContent != "" || c.PromotedURL != "" {
		content := c.NormalizedContent
		if content == "" {
			content = card.Content
		}
		if err := p.cards.SaveClassification(ctx, card.CardID, c.Type, content, c.PromotedURL); err != nil {
			return stageOutcome{}, err
		}
		card.Type = c.Type
		if c.NormalizedContent != "" {
			card.Content = c.NormalizedContent
		}
		if c.PromotedURL != "" {
			card.URL = c.PromotedURL
		}
	}

	return stageOutcome{Confidence: c.Confidence}, nil
}

func classifyContent(card *repository.Card) classification {
	// 具体类型在创建时已定，确认即可
	if card.Type.Valid() && card.Type != model.CardTypeText {
		return classification{Type: card.Type, Confidence: confidenceStrong}
	}

	if t, ok := typeFromMime(card.MimeType); ok {
		return classification{Type: t, Confidence: confidenceStrong}
	}

	if card.URL != "" {
		return classification{Type: model.CardTypeLink, Confidence: confidenceStrong}
	}

	content := strings.TrimSpace(card.Content)

	if isPaletteContent(content) {
		return classification{Type: model.CardTypePalette, Confidence: confidencePalette}
	}

	if normalized, ok := normalizeQuote(content); ok {
		return classification{
			Type:              model.CardTypeQuote,
			Confidence:        confidenceMedium,
			NormalizedContent: normalized,
		}
	}

	if isBareURL(content) {
		return classification{
			Type:        model.CardTypeLink,
			Confidence:  confidenceMedium,
			PromotedURL: content,
		}
	}

	return classification{Type: model.CardTypeText, Confidence: confidenceDefault}
}

func typeFromMime(mimeType string) (model.CardType, bool) {
	mt := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
	switch {
	case mt == "":
		return "", false
	case strings.HasPrefix(mt, "image/"):
		return model.CardTypeImage, true
	case strings.HasPrefix(mt, "video/"):
		return model.CardTypeVideo, true
	case strings.HasPrefix(mt, "audio/"):
		return model.CardTypeAudio, true
	case model.IsPDF(mt),
		strings.HasPrefix(mt, "application/msword"),
		strings.HasPrefix(mt, "application/vnd.openxmlformats-officedocument"),
		mt == "text/markdown":
		return model.CardTypeDocument, true
	default:
		return "", false
	}
}

var hexColorRe = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)

// isPaletteContent 内容是两个以上十六进制色值的列表
func isPaletteContent(content string) bool {
	fields := strings.FieldsFunc(content, func(r rune) bool {
		return r == ',' || r == '\n' || r == ' ' || r == '\t'
	})
	if len(fields) < 2 {
		return false
	}
	for _, f := range fields {
		if !hexColorRe.MatchString(f) {
			return false
		}
	}
	return true
}

var quoteReplacer = strings.NewReplacer(
	"“", `"`, // 左弯双引号
	"”", `"`, // 右弯双引号
	"‘", "'", // 左弯单引号
	"’", "'", // 右弯单引号
)

// normalizeQuote 内容被引号包裹视作引用：弯引号转直引号，去掉外层引号和空白
func normalizeQuote(content string) (string, bool) {
	s := strings.TrimSpace(quoteReplacer.Replace(content))
	if len(s) < 2 {
		return "", false
	}
	if (strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`)) ||
		(strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'")) {
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if inner == "" {
			return "", false
		}
		return inner, true
	}
	return "", false
}

func isBareURL(content string) bool {
	if strings.ContainsAny(content, " \n\t") {
		return false
	}
	return strings.HasPrefix(content, "http://") || strings.HasPrefix(content, "https://")
}
