package model

import "strings"

// CardType 卡片语义类型（闭合枚举）。
// 新增类型时只需要扩展这里和 StagePlanFor 的表，不要在各处散落 if/switch。
type CardType string

const (
	CardTypeText     CardType = "text"
	CardTypeLink     CardType = "link"
	CardTypeImage    CardType = "image"
	CardTypeVideo    CardType = "video"
	CardTypeAudio    CardType = "audio"
	CardTypeDocument CardType = "document"
	CardTypePalette  CardType = "palette"
	CardTypeQuote    CardType = "quote"
)

// AllCardTypes 全部合法类型（用于校验和测试遍历）
var AllCardTypes = []CardType{
	CardTypeText,
	CardTypeLink,
	CardTypeImage,
	CardTypeVideo,
	CardTypeAudio,
	CardTypeDocument,
	CardTypePalette,
	CardTypeQuote,
}

func (t CardType) Valid() bool {
	switch t {
	case CardTypeText, CardTypeLink, CardTypeImage, CardTypeVideo,
		CardTypeAudio, CardTypeDocument, CardTypePalette, CardTypeQuote:
		return true
	default:
		return false
	}
}

// IsSVG 判断是否为 SVG 图片：SVG 走单独的非栅格缩略图路径。
// 依据 mime type 或 .svg/.svgz 扩展名判断。
func IsSVG(mimeType, fileName string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if mt == "image/svg+xml" || strings.HasPrefix(mt, "image/svg") {
		return true
	}
	name := strings.ToLower(fileName)
	// 去掉 query/fragment 后再看扩展名
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return strings.HasSuffix(name, ".svg") || strings.HasSuffix(name, ".svgz")
}

// IsPDF 文档类卡片只有 PDF 会生成缩略图
func IsPDF(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	return mt == "application/pdf" || strings.HasPrefix(mt, "application/pdf;")
}
