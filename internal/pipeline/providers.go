package pipeline

import (
	"strings"

	"github.com/azhengyongqin/cardflow/internal/linkmeta"
	"github.com/azhengyongqin/cardflow/internal/repository"
)

// CategoryResult 来源类目解析结果
type CategoryResult struct {
	Category   string
	Confidence float64
	Facts      []repository.CategoryFact
}

// Provider 站点族专属的类目解析器：把原始 meta 映射解析成
// 归一化的 {category, confidence, facts}。
type Provider interface {
	Name() string
	Match(host string) bool
	Extract(host string, meta map[string]string, preview linkmeta.Preview) CategoryResult
}

// domainCategories 确定性的 域名 → 类目 规则表。
// 没有专属 provider 的域名由 generic 按这张表给类目。
var domainCategories = map[string]string{
	"github.com":      "software",
	"gitlab.com":      "software",
	"bitbucket.org":   "software",
	"dribbble.com":    "design_portfolio",
	"behance.net":     "design_portfolio",
	"goodreads.com":   "book",
	"imdb.com":        "movie",
	"rottentomatoes.com": "movie",
	"amazon.com":      "product",
	"amazon.co.uk":    "product",
	"amazon.de":       "product",
	"etsy.com":        "product",
	"youtube.com":     "video",
	"youtu.be":        "video",
	"vimeo.com":       "video",
	"medium.com":      "article",
	"substack.com":    "article",
	"spotify.com":     "music",
	"soundcloud.com":  "music",
	"bandcamp.com":    "music",
}

// providers 匹配顺序固定：专属 provider 在前，generic 永远兜底
var providers = []Provider{
	&dribbbleProvider{},
	&githubProvider{},
	&goodreadsProvider{},
	&genericProvider{},
}

func providerFor(host string) Provider {
	for _, p := range providers {
		if p.Match(host) {
			return p
		}
	}
	return &genericProvider{}
}

// hostMatches 域名后缀匹配，带标签边界（gist.github.com 匹配 github.com，
// notgithub.com 不匹配）
func hostMatches(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func fact(facts []repository.CategoryFact, label, value string) []repository.CategoryFact {
	if value == "" {
		return facts
	}
	return append(facts, repository.CategoryFact{Label: label, Value: value})
}

// dribbbleProvider 设计作品集站点
type dribbbleProvider struct{}

func (*dribbbleProvider) Name() string { return "dribbble" }

func (*dribbbleProvider) Match(host string) bool {
	return hostMatches(host, "dribbble.com") || hostMatches(host, "behance.net")
}

func (*dribbbleProvider) Extract(host string, meta map[string]string, preview linkmeta.Preview) CategoryResult {
	var facts []repository.CategoryFact
	facts = fact(facts, "shot", preview.Title)
	facts = fact(facts, "designer", firstMeta(meta, "twitter:creator", "author"))
	facts = fact(facts, "likes", firstMeta(meta, "twitter:data1"))

	return CategoryResult{
		Category:   "design_portfolio",
		Confidence: 0.9,
		Facts:      facts,
	}
}

// githubProvider 代码托管站点
type githubProvider struct{}

func (*githubProvider) Name() string { return "github" }

func (*githubProvider) Match(host string) bool {
	return hostMatches(host, "github.com") || hostMatches(host, "gitlab.com")
}

func (*githubProvider) Extract(host string, meta map[string]string, preview linkmeta.Preview) CategoryResult {
	var facts []repository.CategoryFact
	facts = fact(facts, "repository", preview.Title)
	facts = fact(facts, "description", preview.Description)

	return CategoryResult{
		Category:   "software",
		Confidence: 0.9,
		Facts:      facts,
	}
}

// goodreadsProvider 书目站点
type goodreadsProvider struct{}

func (*goodreadsProvider) Name() string { return "goodreads" }

func (*goodreadsProvider) Match(host string) bool {
	return hostMatches(host, "goodreads.com")
}

func (*goodreadsProvider) Extract(host string, meta map[string]string, preview linkmeta.Preview) CategoryResult {
	var facts []repository.CategoryFact
	facts = fact(facts, "title", preview.Title)
	facts = fact(facts, "author", firstMeta(meta, "books:author", "author"))
	facts = fact(facts, "isbn", firstMeta(meta, "books:isbn"))
	facts = fact(facts, "rating", firstMeta(meta, "books:rating:value"))

	return CategoryResult{
		Category:   "book",
		Confidence: 0.9,
		Facts:      facts,
	}
}

// genericProvider 未知站点兜底：按规则表给类目，再按 og:type 细化，
// 都没有就是普通 website，默认置信度。
type genericProvider struct{}

func (*genericProvider) Name() string { return "generic" }

func (*genericProvider) Match(string) bool { return true }

func (*genericProvider) Extract(host string, meta map[string]string, preview linkmeta.Preview) CategoryResult {
	result := CategoryResult{
		Category:   "website",
		Confidence: defaultCategoryConfidence,
	}

	if cat, ok := categoryForHost(host); ok {
		result.Category = cat
	} else if cat, ok := categoryFromTableByMeta(meta); ok {
		result.Category = cat
	} else {
		switch firstMeta(meta, "og:type") {
		case "article":
			result.Category = "article"
		case "video", "video.movie", "video.other":
			result.Category = "video"
		case "product":
			result.Category = "product"
		case "book":
			result.Category = "book"
		case "music.song", "music.album":
			result.Category = "music"
		}
	}

	result.Facts = fact(result.Facts, "site", preview.SiteName)
	return result
}

// categoryFromTableByMeta og:url 的域名若命中规则表也采用（抓取端可能
// 只有重定向前的地址）
func categoryFromTableByMeta(meta map[string]string) (string, bool) {
	ogURL := firstMeta(meta, "og:url")
	if ogURL == "" {
		return "", false
	}
	host := hostOf(ogURL)
	for domain, cat := range domainCategories {
		if hostMatches(host, domain) {
			return cat, true
		}
	}
	return "", false
}

// categoryForHost 规则表直查（categorize 阶段对 final URL 的域名做主判定）
func categoryForHost(host string) (string, bool) {
	for domain, cat := range domainCategories {
		if hostMatches(host, domain) {
			return cat, true
		}
	}
	return "", false
}

func firstMeta(meta map[string]string, keys ...string) string {
	for _, k := range keys {
		if v, ok := meta[k]; ok && v != "" {
			return v
		}
	}
	return ""
}
