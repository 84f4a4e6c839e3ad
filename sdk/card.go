package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// CreateCardRequest 创建卡片请求
type CreateCardRequest struct {
	OwnerID        string   `json:"owner_id,omitempty"`
	Type           string   `json:"type,omitempty"`
	URL            string   `json:"url,omitempty"`
	Content        string   `json:"content,omitempty"`
	Notes          string   `json:"notes,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	FileID         string   `json:"file_id,omitempty"`
	FileName       string   `json:"file_name,omitempty"`
	MimeType       string   `json:"mime_type,omitempty"`
	SkipProcessing bool     `json:"skip_processing,omitempty"`
}

// CreateCardResponse 创建卡片响应
type CreateCardResponse struct {
	CardID     string `json:"card_id"`
	Type       string `json:"type"`
	WorkflowID string `json:"workflow_id,omitempty"`
}

// CreateCard 创建卡片（默认自动触发处理工作流）
func (c *Client) CreateCard(ctx context.Context, req CreateCardRequest) (*CreateCardResponse, error) {
	var result CreateCardResponse
	if err := c.doJSON(ctx, http.MethodPost, c.BaseURL+"/api/v1/cards", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetCard 获取卡片详情（原始 JSON，由调用方按需解析）
func (c *Client) GetCard(ctx context.Context, cardID string) (json.RawMessage, error) {
	var result struct {
		Card json.RawMessage `json:"card"`
	}
	u := fmt.Sprintf("%s/api/v1/cards/%s", c.BaseURL, url.PathEscape(cardID))
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &result); err != nil {
		return nil, err
	}
	return result.Card, nil
}

// ListCards 查询卡片列表
func (c *Client) ListCards(ctx context.Context, ownerID, cardType string, limit, offset int) (json.RawMessage, int, error) {
	q := url.Values{}
	if ownerID != "" {
		q.Set("owner_id", ownerID)
	}
	if cardType != "" {
		q.Set("type", cardType)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	var result struct {
		Items json.RawMessage `json:"items"`
		Total int             `json:"total"`
	}
	u := c.BaseURL + "/api/v1/cards"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &result); err != nil {
		return nil, 0, err
	}
	return result.Items, result.Total, nil
}
