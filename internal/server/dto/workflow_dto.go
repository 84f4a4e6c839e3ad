package dto

import "encoding/json"

// StartWorkflowRequest 启动工作流请求。card_id 对批量工作流
// （ai_backfill / card_cleanup）可省略。
type StartWorkflowRequest struct {
	CardID string `json:"card_id" example:"card-550e8400e29b41d4"`
	// StartAsync 不填默认异步；false 则内联执行并在响应里带上结果
	StartAsync *bool `json:"start_async"`
}

// StartWorkflowResponse 启动工作流响应
type StartWorkflowResponse struct {
	WorkflowID string          `json:"workflow_id" example:"550e8400e29b41d4a716446655440000"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// WorkflowRunResponse 运行记录详情响应
type WorkflowRunResponse struct {
	Run interface{} `json:"run"`
}

// RetryCardResponse 管理端单卡重试响应
type RetryCardResponse struct {
	RequestedAt int64  `json:"requestedAt" example:"1756339200000"`
	Success     bool   `json:"success" example:"true"`
	Reason      string `json:"reason,omitempty" example:"not_found"`
}
