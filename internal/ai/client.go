package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/azhengyongqin/cardflow/internal/config"
)

// Inference 文本摘要/打标/音频转写能力（流水线 metadata 阶段的协作方）
type Inference interface {
	Summarize(ctx context.Context, text string) (string, error)
	SuggestTags(ctx context.Context, text string) ([]string, error)
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// Client OpenAI 兼容接口的推理客户端
type Client struct {
	endpoint           string
	model              string
	apiKey             string
	transcribeEndpoint string
	transcribeModel    string
	httpClient         *http.Client
}

var _ Inference = (*Client)(nil)

func NewClient(cfg config.AIConfig) *Client {
	return &Client{
		endpoint:           cfg.Endpoint,
		model:              cfg.Model,
		apiKey:             cfg.APIKey,
		transcribeEndpoint: cfg.TranscribeEndpoint,
		transcribeModel:    cfg.TranscribeModel,
		httpClient: &http.Client{
			// 转写上传整个音频文件，超时要比 chat 宽
			Timeout: 120 * time.Second,
		},
	}
}

const (
	summarizeSystemPrompt = "You summarize saved content into one or two sentences. Reply with the summary only."
	tagsSystemPrompt      = "You suggest 3-8 short lowercase tags for saved content. Reply with a JSON array of strings only."
)

// Summarize 生成一两句话的摘要
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	out, err := c.chat(ctx, summarizeSystemPrompt, text)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// SuggestTags 生成标签；模型偶尔不回 JSON 时退化为按行/逗号切分
func (c *Client) SuggestTags(ctx context.Context, text string) ([]string, error) {
	out, err := c.chat(ctx, tagsSystemPrompt, text)
	if err != nil {
		return nil, err
	}

	trimmed := strings.TrimSpace(out)
	var tags []string
	if err := json.Unmarshal([]byte(trimmed), &tags); err == nil {
		return normalizeTags(tags), nil
	}

	fields := strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == ',' || r == '\n'
	})
	return normalizeTags(fields), nil
}

// Transcribe 音频转写（multipart 上传到 OpenAI 兼容的 transcriptions 接口）
func (c *Client) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if c.apiKey == "" || c.transcribeEndpoint == "" || c.transcribeModel == "" {
		return "", fmt.Errorf("ai transcribe misconfigured")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("model", c.transcribeModel); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	// 接口按文件名后缀识别格式，必须给一个匹配 mime 的名字
	part, err := mw.CreateFormFile("file", "audio."+audioExt(mimeType))
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.transcribeEndpoint, &body)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcribe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("transcribe error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode transcribe response: %w", err)
	}
	return strings.TrimSpace(parsed.Text), nil
}

// audioExt 按 mime 推一个合理的文件后缀，识别不了按 mp3 处理
func audioExt(mimeType string) string {
	mt := strings.ToLower(mimeType)
	switch {
	case strings.Contains(mt, "ogg"), strings.Contains(mt, "oga"):
		return "ogg"
	case strings.Contains(mt, "mp3"), strings.Contains(mt, "mpeg"), strings.Contains(mt, "mpga"):
		return "mp3"
	case strings.Contains(mt, "wav"):
		return "wav"
	case strings.Contains(mt, "m4a"):
		return "m4a"
	case strings.Contains(mt, "webm"):
		return "webm"
	default:
		return "mp3"
	}
}

func normalizeTags(in []string) []string {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, t := range in {
		tag := strings.ToLower(strings.Trim(strings.TrimSpace(t), `"'`))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

func (c *Client) chat(ctx context.Context, systemPrompt, userContent string) (string, error) {
	if c.apiKey == "" || c.endpoint == "" || c.model == "" {
		return "", fmt.Errorf("ai client misconfigured")
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userContent},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("ai error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("ai 响应没有 choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
