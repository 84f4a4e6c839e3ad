package linkmeta

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// FetchResult 抓取结果：最终地址（跟随重定向后）、解析出的预览、
// 以及原始 meta 映射（来源类目 provider 消费）
type FetchResult struct {
	FinalURL string            `json:"final_url"`
	Preview  Preview           `json:"preview"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// Fetcher 抓取页面 HTML 并解析链接预览
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
}

const (
	defaultUserAgent = "Mozilla/5.0 (compatible; cardflow/1.0; +https://github.com/azhengyongqin/cardflow)"
	maxBodyBytes     = 5 << 20
)

func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Fetcher{
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  defaultUserAgent,
	}
}

// Fetch 抓取并解析页面。非 2xx、非 HTML 响应都作为错误返回，
// 由 metadata 阶段决定把失败记录到预览状态上。
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return FetchResult{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return FetchResult{}, fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	finalURL := pageURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return FetchResult{FinalURL: finalURL}, fmt.Errorf("fetch %s: status %d", pageURL, resp.StatusCode)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if contentType != "" && !strings.Contains(contentType, "html") {
		return FetchResult{FinalURL: finalURL}, fmt.Errorf("fetch %s: unexpected content type %s", pageURL, contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return FetchResult{FinalURL: finalURL}, fmt.Errorf("read body: %w", err)
	}

	html := string(body)
	preview, err := ParsePreview(finalURL, html)
	if err != nil {
		return FetchResult{FinalURL: finalURL}, err
	}
	return FetchResult{FinalURL: finalURL, Preview: preview, Meta: MetaValues(html)}, nil
}
