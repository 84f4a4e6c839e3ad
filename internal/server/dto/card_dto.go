package dto

// CreateCardRequest 创建卡片请求。type 不填时按 text 处理，
// 分类阶段会基于内容修正。
type CreateCardRequest struct {
	OwnerID  string   `json:"owner_id" example:"user-123"`
	Type     string   `json:"type" example:"link"`
	URL      string   `json:"url" example:"https://github.com/owner/repo"`
	Content  string   `json:"content"`
	Notes    string   `json:"notes"`
	Tags     []string `json:"tags"`
	FileID   string   `json:"file_id"`
	FileName string   `json:"file_name" example:"photo.jpg"`
	MimeType string   `json:"mime_type" example:"image/jpeg"`
	// SkipProcessing 只建卡不触发富化（调试/导入用）
	SkipProcessing bool `json:"skip_processing"`
}

// CreateCardResponse 创建卡片响应
type CreateCardResponse struct {
	CardID string `json:"card_id" example:"card-550e8400e29b41d4"`
	Type   string `json:"type" example:"link"`
	// WorkflowID 自动触发的处理工作流 ID（skip_processing 时为空）
	WorkflowID string `json:"workflow_id,omitempty"`
}

// CardListRequest 卡片列表查询请求
type CardListRequest struct {
	OwnerID string `form:"owner_id" example:"user-123"`
	Type    string `form:"type" example:"link"`
	Limit   int    `form:"limit" example:"20"`
	Offset  int    `form:"offset" example:"0"`
}

// CardListResponse 卡片列表响应
type CardListResponse struct {
	Items interface{} `json:"items"`
	Total int         `json:"total"`
}

// CardResponse 卡片详情响应
type CardResponse struct {
	Card interface{} `json:"card"`
}
