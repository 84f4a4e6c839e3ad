package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/azhengyongqin/cardflow/internal/model"
)

// CardRepo CardRepository 的 GORM 实现
type CardRepo struct {
	db *gorm.DB
}

var _ CardRepository = (*CardRepo)(nil)

func NewCardRepo(db *gorm.DB) *CardRepo {
	return &CardRepo{db: db}
}

func (r *CardRepo) CreateCard(ctx context.Context, card Card) (Card, error) {
	if card.CardID == "" {
		return Card{}, errors.New("card_id 不能为空")
	}
	if !card.Type.Valid() {
		return Card{}, fmt.Errorf("无效的卡片类型: %s", card.Type)
	}

	m := CardToModel(card)
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return Card{}, err
	}
	return m.ToCard(), nil
}

func (r *CardRepo) GetCard(ctx context.Context, cardID string) (*Card, error) {
	var m CardModel
	err := r.db.WithContext(ctx).Where("card_id = ?", cardID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	c := m.ToCard()
	return &c, nil
}

// UpdateStageStatus 单键合并写入。
// 在事务里对行加锁后读改写，保证并发的不同阶段不会互相丢键；
// 同一阶段键的并发写采用 last-write-wins（见 DESIGN.md 的决策记录）。
func (r *CardRepo) UpdateStageStatus(ctx context.Context, cardID string, stage model.StageKey, status model.StageStatus) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m CardModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("card_id = ?", cardID).
			First(&m).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var current model.ProcessingStatus
		if len(m.ProcessingStatus) > 0 {
			_ = json.Unmarshal(m.ProcessingStatus, &current)
		}
		merged := model.WithStageStatus(current, stage, status)
		raw, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("marshal processing status: %w", err)
		}

		return tx.Model(&CardModel{}).
			Where("card_id = ?", cardID).
			Updates(map[string]any{
				"processing_status": raw,
				"updated_at":        time.Now(),
			}).Error
	})
}

func (r *CardRepo) SaveClassification(ctx context.Context, cardID string, cardType model.CardType, normalizedContent, promotedURL string) error {
	updates := map[string]any{
		"type":       string(cardType),
		"updated_at": time.Now(),
	}
	if normalizedContent != "" {
		updates["content"] = normalizedContent
	}
	if promotedURL != "" {
		updates["url"] = promotedURL
	}
	return r.updateByCardID(ctx, cardID, updates)
}

func (r *CardRepo) SaveLinkPreview(ctx context.Context, cardID string, preview LinkPreview) error {
	raw, err := json.Marshal(preview)
	if err != nil {
		return fmt.Errorf("marshal link preview: %w", err)
	}
	return r.updateByCardID(ctx, cardID, map[string]any{
		"link_preview": raw,
		"updated_at":   time.Now(),
	})
}

func (r *CardRepo) SaveAIMetadata(ctx context.Context, cardID string, summary string, tags []string) error {
	rawTags, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal ai tags: %w", err)
	}
	return r.updateByCardID(ctx, cardID, map[string]any{
		"ai_summary": summary,
		"ai_tags":    rawTags,
		"updated_at": time.Now(),
	})
}

func (r *CardRepo) SaveTranscript(ctx context.Context, cardID string, transcript string) error {
	return r.updateByCardID(ctx, cardID, map[string]any{
		"ai_transcript": transcript,
		"updated_at":    time.Now(),
	})
}

func (r *CardRepo) SaveColors(ctx context.Context, cardID string, colors []string) error {
	raw, err := json.Marshal(colors)
	if err != nil {
		return fmt.Errorf("marshal colors: %w", err)
	}
	return r.updateByCardID(ctx, cardID, map[string]any{
		"colors":     raw,
		"updated_at": time.Now(),
	})
}

func (r *CardRepo) SaveCategorization(ctx context.Context, cardID string, category string, confidence float64, facts []CategoryFact) error {
	rawFacts, err := json.Marshal(facts)
	if err != nil {
		return fmt.Errorf("marshal category facts: %w", err)
	}
	return r.updateByCardID(ctx, cardID, map[string]any{
		"category":            category,
		"category_confidence": confidence,
		"category_facts":      rawFacts,
		"updated_at":          time.Now(),
	})
}

func (r *CardRepo) SaveThumbnail(ctx context.Context, cardID string, thumbnailID string) error {
	return r.updateByCardID(ctx, cardID, map[string]any{
		"thumbnail_id": thumbnailID,
		"updated_at":   time.Now(),
	})
}

func (r *CardRepo) SaveScreenshot(ctx context.Context, cardID string, screenshotID string) error {
	return r.updateByCardID(ctx, cardID, map[string]any{
		"screenshot_id": screenshotID,
		"updated_at":    time.Now(),
	})
}

func (r *CardRepo) ListCards(ctx context.Context, f ListCardsFilter) ([]Card, error) {
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	q := r.db.WithContext(ctx).Model(&CardModel{})
	q = applyCardFilter(q, f)

	var models []CardModel
	if err := q.Order("created_at desc").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		return nil, err
	}

	out := make([]Card, 0, len(models))
	for i := range models {
		out = append(out, models[i].ToCard())
	}
	return out, nil
}

func (r *CardRepo) CountCards(ctx context.Context, f ListCardsFilter) (int, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&CardModel{})
	q = applyCardFilter(q, f)
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func applyCardFilter(q *gorm.DB, f ListCardsFilter) *gorm.DB {
	if f.OwnerID != "" {
		q = q.Where("owner_id = ?", f.OwnerID)
	}
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.IsDeleted != nil {
		q = q.Where("is_deleted = ?", *f.IsDeleted)
	}
	return q
}

// ListCardsMissingAI 缺少 AI 元数据的未删除卡片（补数用的有界采样）
func (r *CardRepo) ListCardsMissingAI(ctx context.Context, limit int) ([]Card, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var models []CardModel
	err := r.db.WithContext(ctx).
		Where("is_deleted = false").
		Where("(ai_summary is null or ai_summary = '')").
		Where("(ai_tags is null or ai_tags = 'null'::jsonb or ai_tags = '[]'::jsonb)").
		Order("created_at asc").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	out := make([]Card, 0, len(models))
	for i := range models {
		out = append(out, models[i].ToCard())
	}
	return out, nil
}

// ListCardsPendingCleanup 软删除且超过保留期的卡片
func (r *CardRepo) ListCardsPendingCleanup(ctx context.Context, olderThan time.Time, limit int) ([]Card, error) {
	if limit <= 0 || limit > 200 {
		limit = 10
	}

	var models []CardModel
	err := r.db.WithContext(ctx).
		Where("is_deleted = true").
		Where("deleted_at is not null").
		Where("deleted_at < ?", olderThan).
		Order("deleted_at asc").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	out := make([]Card, 0, len(models))
	for i := range models {
		out = append(out, models[i].ToCard())
	}
	return out, nil
}

func (r *CardRepo) DeleteCard(ctx context.Context, cardID string) error {
	res := r.db.WithContext(ctx).Where("card_id = ?", cardID).Delete(&CardModel{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CardRepo) updateByCardID(ctx context.Context, cardID string, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&CardModel{}).
		Where("card_id = ?", cardID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
