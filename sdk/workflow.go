package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// StartWorkflowRequest 启动工作流请求
type StartWorkflowRequest struct {
	CardID     string `json:"card_id,omitempty"`
	StartAsync *bool  `json:"start_async,omitempty"`
}

// StartWorkflowResponse 启动工作流响应
type StartWorkflowResponse struct {
	WorkflowID string          `json:"workflow_id"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// WorkflowRun 运行记录
type WorkflowRun struct {
	RunID     string          `json:"run_id"`
	Kind      string          `json:"kind"`
	CardID    string          `json:"card_id,omitempty"`
	Attempt   int             `json:"attempt"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	LastError string          `json:"last_error,omitempty"`
}

// RetryCardResponse 单卡重试响应
type RetryCardResponse struct {
	RequestedAt int64  `json:"requestedAt"`
	Success     bool   `json:"success"`
	Reason      string `json:"reason,omitempty"`
}

// StartWorkflow 启动指定类型的工作流。
// kind 取短名：card_processing、link_enrichment、screenshot、ai_backfill、card_cleanup。
func (c *Client) StartWorkflow(ctx context.Context, kind string, req StartWorkflowRequest) (*StartWorkflowResponse, error) {
	var result StartWorkflowResponse
	u := fmt.Sprintf("%s/api/v1/workflows/%s", c.BaseURL, url.PathEscape(kind))
	if err := c.doJSON(ctx, http.MethodPost, u, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetRun 查询运行记录
func (c *Client) GetRun(ctx context.Context, workflowID string) (*WorkflowRun, error) {
	var result struct {
		Run WorkflowRun `json:"run"`
	}
	u := fmt.Sprintf("%s/api/v1/workflows/runs/%s", c.BaseURL, url.PathEscape(workflowID))
	if err := c.doJSON(ctx, http.MethodGet, u, nil, &result); err != nil {
		return nil, err
	}
	return &result.Run, nil
}

// RetryCard 管理端单卡重试
func (c *Client) RetryCard(ctx context.Context, cardID string) (*RetryCardResponse, error) {
	var result RetryCardResponse
	u := fmt.Sprintf("%s/api/v1/admin/cards/%s/retry", c.BaseURL, url.PathEscape(cardID))
	if err := c.doJSON(ctx, http.MethodPost, u, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
