package repository

import (
	"encoding/json"
	"time"

	"github.com/azhengyongqin/cardflow/internal/model"
)

// CardModel GORM 模型 - 对应 card 表
type CardModel struct {
	ID                 int64           `gorm:"primaryKey;autoIncrement;column:id"`
	CardID             string          `gorm:"column:card_id;uniqueIndex;type:text;not null"`
	OwnerID            *string         `gorm:"column:owner_id;type:text;index:idx_card_owner_created_at"`
	Type               string          `gorm:"column:type;type:text;not null;index:idx_card_type"`
	URL                *string         `gorm:"column:url;type:text"`
	Content            *string         `gorm:"column:content;type:text"`
	Notes              *string         `gorm:"column:notes;type:text"`
	Tags               json.RawMessage `gorm:"column:tags;type:jsonb"`
	FileID             *string         `gorm:"column:file_id;type:text"`
	FileName           *string         `gorm:"column:file_name;type:text"`
	MimeType           *string         `gorm:"column:mime_type;type:text"`
	ThumbnailID        *string         `gorm:"column:thumbnail_id;type:text"`
	ScreenshotID       *string         `gorm:"column:screenshot_id;type:text"`
	LinkPreview        json.RawMessage `gorm:"column:link_preview;type:jsonb"`
	Colors             json.RawMessage `gorm:"column:colors;type:jsonb"`
	AISummary          *string         `gorm:"column:ai_summary;type:text"`
	AITags             json.RawMessage `gorm:"column:ai_tags;type:jsonb"`
	AITranscript       *string         `gorm:"column:ai_transcript;type:text"`
	Category           *string         `gorm:"column:category;type:text"`
	CategoryConfidence *float64        `gorm:"column:category_confidence"`
	CategoryFacts      json.RawMessage `gorm:"column:category_facts;type:jsonb"`
	ProcessingStatus   json.RawMessage `gorm:"column:processing_status;type:jsonb"`
	IsDeleted          bool            `gorm:"column:is_deleted;default:false;index:idx_card_deleted_at"`
	DeletedAt          *time.Time      `gorm:"column:deleted_at;index:idx_card_deleted_at"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime;index:idx_card_owner_created_at,sort:desc"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName 指定表名
func (CardModel) TableName() string { return "card" }

// ToCard 转换为 Card 实体
func (m *CardModel) ToCard() Card {
	c := Card{
		CardID:             m.CardID,
		Type:               model.CardType(m.Type),
		CategoryConfidence: m.CategoryConfidence,
		IsDeleted:          m.IsDeleted,
		DeletedAt:          m.DeletedAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
	if m.OwnerID != nil {
		c.OwnerID = *m.OwnerID
	}
	if m.URL != nil {
		c.URL = *m.URL
	}
	if m.Content != nil {
		c.Content = *m.Content
	}
	if m.Notes != nil {
		c.Notes = *m.Notes
	}
	if m.FileID != nil {
		c.FileID = *m.FileID
	}
	if m.FileName != nil {
		c.FileName = *m.FileName
	}
	if m.MimeType != nil {
		c.MimeType = *m.MimeType
	}
	if m.ThumbnailID != nil {
		c.ThumbnailID = *m.ThumbnailID
	}
	if m.ScreenshotID != nil {
		c.ScreenshotID = *m.ScreenshotID
	}
	if m.AISummary != nil {
		c.AISummary = *m.AISummary
	}
	if m.AITranscript != nil {
		c.AITranscript = *m.AITranscript
	}
	if m.Category != nil {
		c.Category = *m.Category
	}
	// 解析 jsonb 列；脏数据按空值处理，不让单条坏记录拖垮整个查询
	if len(m.Tags) > 0 {
		_ = json.Unmarshal(m.Tags, &c.Tags)
	}
	if len(m.Colors) > 0 {
		_ = json.Unmarshal(m.Colors, &c.Colors)
	}
	if len(m.AITags) > 0 {
		_ = json.Unmarshal(m.AITags, &c.AITags)
	}
	if len(m.CategoryFacts) > 0 {
		_ = json.Unmarshal(m.CategoryFacts, &c.CategoryFacts)
	}
	if len(m.LinkPreview) > 0 {
		var lp LinkPreview
		if err := json.Unmarshal(m.LinkPreview, &lp); err == nil {
			c.LinkPreview = &lp
		}
	}
	if len(m.ProcessingStatus) > 0 {
		_ = json.Unmarshal(m.ProcessingStatus, &c.ProcessingStatus)
	}
	return c
}

// CardToModel 从 Card 实体创建模型
func CardToModel(c Card) CardModel {
	m := CardModel{
		CardID:             c.CardID,
		Type:               string(c.Type),
		CategoryConfidence: c.CategoryConfidence,
		IsDeleted:          c.IsDeleted,
		DeletedAt:          c.DeletedAt,
		CreatedAt:          c.CreatedAt,
		UpdatedAt:          c.UpdatedAt,
	}
	if c.OwnerID != "" {
		m.OwnerID = &c.OwnerID
	}
	if c.URL != "" {
		m.URL = &c.URL
	}
	if c.Content != "" {
		m.Content = &c.Content
	}
	if c.Notes != "" {
		m.Notes = &c.Notes
	}
	if c.FileID != "" {
		m.FileID = &c.FileID
	}
	if c.FileName != "" {
		m.FileName = &c.FileName
	}
	if c.MimeType != "" {
		m.MimeType = &c.MimeType
	}
	if c.ThumbnailID != "" {
		m.ThumbnailID = &c.ThumbnailID
	}
	if c.ScreenshotID != "" {
		m.ScreenshotID = &c.ScreenshotID
	}
	if c.AISummary != "" {
		m.AISummary = &c.AISummary
	}
	if c.AITranscript != "" {
		m.AITranscript = &c.AITranscript
	}
	if c.Category != "" {
		m.Category = &c.Category
	}
	if len(c.Tags) > 0 {
		m.Tags, _ = json.Marshal(c.Tags)
	}
	if len(c.Colors) > 0 {
		m.Colors, _ = json.Marshal(c.Colors)
	}
	if len(c.AITags) > 0 {
		m.AITags, _ = json.Marshal(c.AITags)
	}
	if len(c.CategoryFacts) > 0 {
		m.CategoryFacts, _ = json.Marshal(c.CategoryFacts)
	}
	if c.LinkPreview != nil {
		m.LinkPreview, _ = json.Marshal(c.LinkPreview)
	}
	if len(c.ProcessingStatus) > 0 {
		m.ProcessingStatus, _ = json.Marshal(c.ProcessingStatus)
	} else {
		m.ProcessingStatus = []byte("{}")
	}
	return m
}

// WorkflowRunModel GORM 模型 - 对应 workflow_run 表
type WorkflowRunModel struct {
	ID        int64           `gorm:"primaryKey;autoIncrement;column:id"`
	RunID     string          `gorm:"column:run_id;uniqueIndex;type:text;not null"`
	Kind      string          `gorm:"column:kind;type:text;not null;index:idx_run_kind_card,priority:1"`
	CardID    *string         `gorm:"column:card_id;type:text;index:idx_run_kind_card,priority:2"`
	Attempt   int             `gorm:"column:attempt;not null;default:1"`
	Status    string          `gorm:"column:status;type:text;not null;index:idx_run_status"`
	Result    json.RawMessage `gorm:"column:result;type:jsonb"`
	LastError *string         `gorm:"column:last_error;type:text"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName 指定表名
func (WorkflowRunModel) TableName() string { return "workflow_run" }

// ToRun 转换为 WorkflowRun 实体
func (m *WorkflowRunModel) ToRun() WorkflowRun {
	r := WorkflowRun{
		RunID:     m.RunID,
		Kind:      m.Kind,
		Attempt:   m.Attempt,
		Status:    m.Status,
		Result:    m.Result,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.CardID != nil {
		r.CardID = *m.CardID
	}
	if m.LastError != nil {
		r.LastError = *m.LastError
	}
	return r
}

// WorkflowStepModel GORM 模型 - 对应 workflow_step 表（step 结果缓存）
type WorkflowStepModel struct {
	ID        int64           `gorm:"primaryKey;autoIncrement;column:id"`
	RunID     string          `gorm:"column:run_id;type:text;not null;uniqueIndex:idx_step_run_name,priority:1"`
	StepName  string          `gorm:"column:step_name;type:text;not null;uniqueIndex:idx_step_run_name,priority:2"`
	Result    json.RawMessage `gorm:"column:result;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName 指定表名
func (WorkflowStepModel) TableName() string { return "workflow_step" }
