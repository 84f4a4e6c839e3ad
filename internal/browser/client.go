package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/azhengyongqin/cardflow/internal/config"
	"github.com/azhengyongqin/cardflow/internal/logger"
)

// Client 远程无头浏览器渲染服务客户端。
// 服务暴露两类接口：一步到位的 /screenshot，和会话式的
// /sessions（create → execute → screenshot → delete），后者用于 PDF 首页渲染。
type Client struct {
	endpoint   string
	apiToken   string
	httpClient *http.Client
}

// Renderer 流水线消费的渲染能力
type Renderer interface {
	Screenshot(ctx context.Context, pageURL string) ([]byte, string, error)
	RenderPDFFirstPage(ctx context.Context, fileURL string) ([]byte, string, error)
	CaptureVideoFrame(ctx context.Context, fileURL string) ([]byte, string, error)
}

var _ Renderer = (*Client)(nil)

func NewClient(cfg config.BrowserConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		apiToken: cfg.APIToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type screenshotRequest struct {
	URL      string             `json:"url"`
	GotoOpts map[string]any     `json:"gotoOptions,omitempty"`
	Viewport map[string]int     `json:"viewport,omitempty"`
	Options  *screenshotOptions `json:"screenshotOptions,omitempty"`
}

type screenshotOptions struct {
	Type    string `json:"type"`
	Quality int    `json:"quality,omitempty"`
}

type screenshotResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Screenshot string `json:"screenshot"`
		Type       string `json:"type"`
	} `json:"result"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Screenshot 渲染页面并截图。返回图片字节与 mime type。
// 429 → rate_limit，其余非 2xx → http_error；传输层错误（超时等）按致命处理。
func (c *Client) Screenshot(ctx context.Context, pageURL string) ([]byte, string, error) {
	if c.endpoint == "" {
		return nil, "", fmt.Errorf("browser endpoint 未配置")
	}

	body, err := json.Marshal(screenshotRequest{
		URL: pageURL,
		GotoOpts: map[string]any{
			"waitUntil": "networkidle0",
			"timeout":   30_000,
		},
		Viewport: map[string]int{"width": 1280, "height": 720},
		Options:  &screenshotOptions{Type: "jpeg", Quality: 80},
	})
	if err != nil {
		return nil, "", fmt.Errorf("marshal screenshot request: %w", err)
	}

	resp, err := c.post(ctx, c.endpoint+"/screenshot", body)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readErrorDetail(resp.Body)
		return nil, "", classifyStatus(resp.StatusCode, detail)
	}

	// 服务可能直接回图片字节，也可能回 JSON 包 base64
	if strings.Contains(contentType, "application/json") {
		var payload screenshotResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, "", fmt.Errorf("decode screenshot response: %w", err)
		}
		if !payload.Success || payload.Result.Screenshot == "" {
			msgs := make([]string, 0, len(payload.Errors))
			for _, e := range payload.Errors {
				if e.Message != "" {
					msgs = append(msgs, e.Message)
				}
			}
			return nil, "", fmt.Errorf("screenshot 响应缺少图片数据: %s", strings.Join(msgs, "; "))
		}
		raw, err := base64.StdEncoding.DecodeString(payload.Result.Screenshot)
		if err != nil {
			return nil, "", fmt.Errorf("decode screenshot base64: %w", err)
		}
		mime := payload.Result.Type
		if mime == "" {
			mime = "image/jpeg"
		}
		return raw, mime, nil
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 20<<20))
	if err != nil {
		return nil, "", fmt.Errorf("read screenshot body: %w", err)
	}
	mime := "image/jpeg"
	if contentType != "" {
		mime = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	return raw, mime, nil
}

type sessionResponse struct {
	SessionID string `json:"session_id"`
}

// RenderPDFFirstPage 通过会话渲染 PDF 首页并截取画布。
// 会话销毁是 best-effort：销毁失败只记录结构化日志，不上抛。
func (c *Client) RenderPDFFirstPage(ctx context.Context, fileURL string) ([]byte, string, error) {
	// 在会话里加载 pdf.js 渲染首页到 canvas
	script := fmt.Sprintf(`
		const pdf = await pdfjsLib.getDocument(%q).promise;
		const page = await pdf.getPage(1);
		const viewport = page.getViewport({ scale: 1.5 });
		const canvas = document.createElement('canvas');
		canvas.width = viewport.width;
		canvas.height = viewport.height;
		document.body.appendChild(canvas);
		await page.render({ canvasContext: canvas.getContext('2d'), viewport }).promise;
		return canvas.toDataURL('image/png');
	`, fileURL)
	return c.executeCanvasScript(ctx, script)
}

// CaptureVideoFrame 通过会话抓取视频首秒的一帧作为缩略图
func (c *Client) CaptureVideoFrame(ctx context.Context, fileURL string) ([]byte, string, error) {
	script := fmt.Sprintf(`
		const video = document.createElement('video');
		video.crossOrigin = 'anonymous';
		video.muted = true;
		video.src = %q;
		await new Promise((resolve, reject) => {
			video.onloadeddata = resolve;
			video.onerror = () => reject(new Error('video load failed'));
		});
		video.currentTime = Math.min(1, video.duration / 2);
		await new Promise((resolve) => { video.onseeked = resolve; });
		const canvas = document.createElement('canvas');
		canvas.width = video.videoWidth;
		canvas.height = video.videoHeight;
		canvas.getContext('2d').drawImage(video, 0, 0);
		return canvas.toDataURL('image/png');
	`, fileURL)
	return c.executeCanvasScript(ctx, script)
}

// executeCanvasScript 会话式执行脚本，脚本需返回 data URL 形式的画布内容
func (c *Client) executeCanvasScript(ctx context.Context, script string) ([]byte, string, error) {
	if c.endpoint == "" {
		return nil, "", fmt.Errorf("browser endpoint 未配置")
	}

	sessionID, err := c.createSession(ctx)
	if err != nil {
		return nil, "", err
	}
	defer c.deleteSession(sessionID)

	body, err := json.Marshal(map[string]string{"code": script})
	if err != nil {
		return nil, "", fmt.Errorf("marshal execute request: %w", err)
	}

	resp, err := c.post(ctx, fmt.Sprintf("%s/sessions/%s/execute", c.endpoint, sessionID), body)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readErrorDetail(resp.Body)
		return nil, "", classifyStatus(resp.StatusCode, detail)
	}

	var result struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, "", fmt.Errorf("decode execute response: %w", err)
	}

	// value 是 data URL（data:image/png;base64,...）
	const prefix = "base64,"
	idx := strings.Index(result.Value, prefix)
	if idx < 0 {
		return nil, "", fmt.Errorf("渲染结果不是 data URL")
	}
	raw, err := base64.StdEncoding.DecodeString(result.Value[idx+len(prefix):])
	if err != nil {
		return nil, "", fmt.Errorf("decode canvas base64: %w", err)
	}
	return raw, "image/png", nil
}

func (c *Client) createSession(ctx context.Context) (string, error) {
	body := []byte(`{"stealth":true}`)
	resp, err := c.post(ctx, c.endpoint+"/sessions", body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readErrorDetail(resp.Body)
		return "", classifyStatus(resp.StatusCode, detail)
	}

	var payload sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode session response: %w", err)
	}
	if payload.SessionID == "" {
		return "", fmt.Errorf("session 响应缺少 session_id")
	}
	return payload.SessionID, nil
}

// deleteSession 会话销毁失败不影响调用方，但要留下结构化日志便于排查泄漏
func (c *Client) deleteSession(sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/sessions/%s", c.endpoint, sessionID), nil)
	if err != nil {
		return
	}
	c.auth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warn().
			Str("resource", "browser_session").
			Str("session_id", sessionID).
			Err(err).
			Msg("销毁浏览器会话失败")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		logger.Warn().
			Str("resource", "browser_session").
			Str("session_id", sessionID).
			Int("status", resp.StatusCode).
			Msg("销毁浏览器会话返回非 2xx")
	}
}

func (c *Client) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("browser request: %w", err)
	}
	return resp, nil
}

func (c *Client) auth(req *http.Request) {
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
}

func readErrorDetail(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 2048))
	if err != nil {
		return "<unavailable>"
	}
	detail := strings.TrimSpace(string(raw))
	if detail == "" {
		return "<empty>"
	}
	return detail
}
