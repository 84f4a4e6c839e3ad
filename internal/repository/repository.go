package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/azhengyongqin/cardflow/internal/model"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

// LinkPreviewStatus 链接预览抓取状态
const (
	LinkPreviewPending = "pending"
	LinkPreviewSuccess = "success"
	LinkPreviewError   = "error"
)

// LinkPreview 链接预览元数据（抓取 + 解析后的归一化结果）
type LinkPreview struct {
	Title          string `json:"title,omitempty"`
	Description    string `json:"description,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	ImageStorageID string `json:"image_storage_id,omitempty"`
	FaviconURL     string `json:"favicon_url,omitempty"`
	SiteName       string `json:"site_name,omitempty"`
	Author         string `json:"author,omitempty"`
	Publisher      string `json:"publisher,omitempty"`
	PublishedAt    string `json:"published_at,omitempty"`
	CanonicalURL   string `json:"canonical_url,omitempty"`
	FinalURL       string `json:"final_url,omitempty"`
	Status         string `json:"status,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
}

// CategoryFact 来源类目的结构化事实（如评分、作者、星标数）
type CategoryFact struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Card 卡片实体。ProcessingStatus 字段由流水线独占写入。
type Card struct {
	CardID             string                 `json:"card_id"`
	OwnerID            string                 `json:"owner_id,omitempty"`
	Type               model.CardType         `json:"type"`
	URL                string                 `json:"url,omitempty"`
	Content            string                 `json:"content,omitempty"`
	Notes              string                 `json:"notes,omitempty"`
	Tags               []string               `json:"tags,omitempty"`
	FileID             string                 `json:"file_id,omitempty"`
	FileName           string                 `json:"file_name,omitempty"`
	MimeType           string                 `json:"mime_type,omitempty"`
	ThumbnailID        string                 `json:"thumbnail_id,omitempty"`
	ScreenshotID       string                 `json:"screenshot_id,omitempty"`
	LinkPreview        *LinkPreview           `json:"link_preview,omitempty"`
	Colors             []string               `json:"colors,omitempty"`
	AISummary          string                 `json:"ai_summary,omitempty"`
	AITags             []string               `json:"ai_tags,omitempty"`
	AITranscript       string                 `json:"ai_transcript,omitempty"`
	Category           string                 `json:"category,omitempty"`
	CategoryConfidence *float64               `json:"category_confidence,omitempty"`
	CategoryFacts      []CategoryFact         `json:"category_facts,omitempty"`
	ProcessingStatus   model.ProcessingStatus `json:"processing_status,omitempty"`
	IsDeleted          bool                   `json:"is_deleted"`
	DeletedAt          *time.Time             `json:"deleted_at,omitempty"`
	CreatedAt          time.Time              `json:"created_at"`
	UpdatedAt          time.Time              `json:"updated_at"`
}

// HasLinkPreview 链接预览是否已成功抓取（阶段可安全跳过的依据之一）
func (c *Card) HasLinkPreview() bool {
	return c.LinkPreview != nil && c.LinkPreview.Status == LinkPreviewSuccess
}

// HasAIMetadata 是否已有 AI 元数据
func (c *Card) HasAIMetadata() bool {
	return c.AISummary != "" || len(c.AITags) > 0
}

// ListCardsFilter 卡片列表查询过滤条件
type ListCardsFilter struct {
	OwnerID   string
	Type      string
	IsDeleted *bool
	Limit     int
	Offset    int
}

// CardRepository 卡片仓储接口。
// 流水线对 ProcessingStatus 的所有写入都必须经过 UpdateStageStatus，
// 每次只合并一个阶段键，保证并发阶段互不覆盖。
type CardRepository interface {
	// CreateCard 创建卡片（含初始 ProcessingStatus）
	CreateCard(ctx context.Context, card Card) (Card, error)

	// GetCard 根据 card_id 获取卡片；不存在返回 ErrNotFound
	GetCard(ctx context.Context, cardID string) (*Card, error)

	// UpdateStageStatus 合并单个阶段的状态（行级读改写，只替换该键）
	UpdateStageStatus(ctx context.Context, cardID string, stage model.StageKey, status model.StageStatus) error

	// SaveClassification 保存分类结果（类型确认/修正 + 归一化内容）。
	// promotedURL 非空时把裸 URL 内容提升为卡片的 URL 字段（纯 URL 文本卡
	// 升级为链接卡时后续阶段依赖它）。
	SaveClassification(ctx context.Context, cardID string, cardType model.CardType, normalizedContent, promotedURL string) error

	// SaveLinkPreview 保存链接预览元数据
	SaveLinkPreview(ctx context.Context, cardID string, preview LinkPreview) error

	// SaveAIMetadata 保存 AI 摘要和标签
	SaveAIMetadata(ctx context.Context, cardID string, summary string, tags []string) error

	// SaveTranscript 保存音频转写文本
	SaveTranscript(ctx context.Context, cardID string, transcript string) error

	// SaveColors 保存调色板颜色（大写 #RRGGBB 列表）
	SaveColors(ctx context.Context, cardID string, colors []string) error

	// SaveCategorization 保存来源类目结果
	SaveCategorization(ctx context.Context, cardID string, category string, confidence float64, facts []CategoryFact) error

	// SaveThumbnail 保存缩略图 blob ID
	SaveThumbnail(ctx context.Context, cardID string, thumbnailID string) error

	// SaveScreenshot 保存截图 blob ID
	SaveScreenshot(ctx context.Context, cardID string, screenshotID string) error

	// ListCards 查询卡片列表（支持分页和过滤）
	ListCards(ctx context.Context, filter ListCardsFilter) ([]Card, error)

	// CountCards 统计卡片总数
	CountCards(ctx context.Context, filter ListCardsFilter) (int, error)

	// ListCardsMissingAI 查询缺少 AI 元数据的卡片（有界采样，用于补数）
	ListCardsMissingAI(ctx context.Context, limit int) ([]Card, error)

	// ListCardsPendingCleanup 查询软删除超过保留期的卡片
	ListCardsPendingCleanup(ctx context.Context, olderThan time.Time, limit int) ([]Card, error)

	// DeleteCard 物理删除卡片记录
	DeleteCard(ctx context.Context, cardID string) error
}

// 工作流运行状态
const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFail    = "fail"
)

// WorkflowRun 一次工作流运行的持久化记录。
// 以 (kind, card_id, attempt) 唯一标识；step 结果按名字缓存，
// 恢复/重入的运行天然幂等，不依赖外部平台的 step 记忆。
type WorkflowRun struct {
	RunID     string          `json:"run_id"`
	Kind      string          `json:"kind"`
	CardID    string          `json:"card_id,omitempty"`
	Attempt   int             `json:"attempt"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// WorkflowRunRepository 工作流运行仓储接口
type WorkflowRunRepository interface {
	// CreateRun 新建一次运行；attempt 自动取同 (kind, card_id) 的下一个序号
	CreateRun(ctx context.Context, runID, kind, cardID string) (WorkflowRun, error)

	// GetRun 查询运行记录；不存在返回 ErrNotFound
	GetRun(ctx context.Context, runID string) (*WorkflowRun, error)

	// MarkRunning 标记开始执行
	MarkRunning(ctx context.Context, runID string) error

	// MarkCompleted 标记成功并记录结果
	MarkCompleted(ctx context.Context, runID string, result json.RawMessage) error

	// MarkFailed 标记失败并记录错误
	MarkFailed(ctx context.Context, runID string, lastError string) error

	// GetStepResult 取某个 step 的缓存结果；没有则 ok=false
	GetStepResult(ctx context.Context, runID, stepName string) (json.RawMessage, bool, error)

	// SaveStepResult 缓存 step 结果（同名覆盖）
	SaveStepResult(ctx context.Context, runID, stepName string, result json.RawMessage) error
}
