package linkmeta

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Preview 从页面 HTML 提取出的链接元数据
type Preview struct {
	Title        string `json:"title,omitempty"`
	Description  string `json:"description,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	Favicon      string `json:"favicon,omitempty"`
	SiteName     string `json:"site_name,omitempty"`
	Author       string `json:"author,omitempty"`
	Publisher    string `json:"publisher,omitempty"`
	PublishedAt  string `json:"published_at,omitempty"`
	CanonicalURL string `json:"canonical_url,omitempty"`
}

// 字段截断上限，防止恶意页面把 jsonb 撑爆
const (
	maxTitleLen = 512
	maxDescLen  = 2048
	maxFieldLen = 256
)

// ParsePreview 解析页面 HTML 提取链接预览。
// 取值优先级：Open Graph → Twitter Card → 普通 HTML 标签。
// 相对地址（图片、favicon、canonical）按 baseURL 解析为绝对地址。
func ParsePreview(baseURL, html string) (Preview, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Preview{}, fmt.Errorf("parse html: %w", err)
	}

	p := Preview{
		Title: firstNonEmpty(
			metaProperty(doc, "og:title"),
			metaName(doc, "twitter:title"),
			strings.TrimSpace(doc.Find("title").First().Text()),
		),
		Description: firstNonEmpty(
			metaProperty(doc, "og:description"),
			metaName(doc, "twitter:description"),
			metaName(doc, "description"),
		),
		ImageURL: firstNonEmpty(
			metaProperty(doc, "og:image"),
			metaProperty(doc, "og:image:url"),
			metaName(doc, "twitter:image"),
			metaName(doc, "twitter:image:src"),
		),
		SiteName: firstNonEmpty(
			metaProperty(doc, "og:site_name"),
			metaName(doc, "application-name"),
		),
		Author: firstNonEmpty(
			metaName(doc, "author"),
			metaProperty(doc, "article:author"),
		),
		Publisher: metaProperty(doc, "article:publisher"),
		PublishedAt: firstNonEmpty(
			metaProperty(doc, "article:published_time"),
			metaName(doc, "date"),
		),
		Favicon:      findFavicon(doc),
		CanonicalURL: linkHref(doc, "canonical"),
	}

	p.Title = clip(p.Title, maxTitleLen)
	p.Description = clip(p.Description, maxDescLen)
	p.SiteName = clip(p.SiteName, maxFieldLen)
	p.Author = clip(p.Author, maxFieldLen)
	p.Publisher = clip(p.Publisher, maxFieldLen)
	p.PublishedAt = clip(p.PublishedAt, maxFieldLen)

	p.ImageURL = ResolveURL(baseURL, p.ImageURL)
	p.Favicon = ResolveURL(baseURL, p.Favicon)
	p.CanonicalURL = ResolveURL(baseURL, p.CanonicalURL)

	return p, nil
}

// MetaValues 提取页面全部 meta 标签为 选择器 → 内容 的原始映射，
// 供来源类目 provider 做站点特定的解析。同名取第一个。
func MetaValues(html string) map[string]string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	out := map[string]string{}
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok || strings.TrimSpace(content) == "" {
			return
		}
		key, _ := s.Attr("property")
		if key == "" {
			key, _ = s.Attr("name")
		}
		if key == "" {
			return
		}
		if _, exists := out[key]; !exists {
			out[key] = clip(strings.TrimSpace(content), maxDescLen)
		}
	})
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		if _, exists := out["title"]; !exists {
			out["title"] = clip(title, maxTitleLen)
		}
	}
	return out
}

func metaProperty(doc *goquery.Document, property string) string {
	sel := fmt.Sprintf(`meta[property=%q]`, property)
	content, _ := doc.Find(sel).First().Attr("content")
	return strings.TrimSpace(content)
}

func metaName(doc *goquery.Document, name string) string {
	sel := fmt.Sprintf(`meta[name=%q]`, name)
	content, _ := doc.Find(sel).First().Attr("content")
	return strings.TrimSpace(content)
}

func linkHref(doc *goquery.Document, rel string) string {
	sel := fmt.Sprintf(`link[rel=%q]`, rel)
	href, _ := doc.Find(sel).First().Attr("href")
	return strings.TrimSpace(href)
}

// findFavicon rel 属性写法五花八门（icon / shortcut icon / apple-touch-icon），按序兜底
func findFavicon(doc *goquery.Document) string {
	for _, rel := range []string{"icon", "shortcut icon", "apple-touch-icon"} {
		if href := linkHref(doc, rel); href != "" {
			return href
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// 按 rune 截断，避免切到多字节字符中间
	runes := []rune(s)
	for len(string(runes)) > max {
		runes = runes[:len(runes)-1]
	}
	return string(runes)
}
