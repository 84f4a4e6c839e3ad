package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RunRepo WorkflowRunRepository 的 GORM 实现
type RunRepo struct {
	db *gorm.DB
}

var _ WorkflowRunRepository = (*RunRepo)(nil)

func NewRunRepo(db *gorm.DB) *RunRepo {
	return &RunRepo{db: db}
}

func (r *RunRepo) CreateRun(ctx context.Context, runID, kind, cardID string) (WorkflowRun, error) {
	if runID == "" {
		return WorkflowRun{}, errors.New("run_id 不能为空")
	}
	if kind == "" {
		return WorkflowRun{}, errors.New("kind 不能为空")
	}

	m := WorkflowRunModel{
		RunID:   runID,
		Kind:    kind,
		Attempt: 1,
		Status:  RunStatusPending,
	}
	if cardID != "" {
		m.CardID = &cardID
	}

	// attempt = 同 (kind, card_id) 的历史次数 + 1
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		q := tx.Model(&WorkflowRunModel{}).Where("kind = ?", kind)
		if cardID != "" {
			q = q.Where("card_id = ?", cardID)
		} else {
			q = q.Where("card_id is null")
		}
		if err := q.Count(&count).Error; err != nil {
			return err
		}
		m.Attempt = int(count) + 1
		return tx.Create(&m).Error
	})
	if err != nil {
		return WorkflowRun{}, err
	}
	return m.ToRun(), nil
}

func (r *RunRepo) GetRun(ctx context.Context, runID string) (*WorkflowRun, error) {
	var m WorkflowRunModel
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	run := m.ToRun()
	return &run, nil
}

func (r *RunRepo) MarkRunning(ctx context.Context, runID string) error {
	return r.updateRun(ctx, runID, map[string]any{
		"status":     RunStatusRunning,
		"updated_at": time.Now(),
	})
}

func (r *RunRepo) MarkCompleted(ctx context.Context, runID string, result json.RawMessage) error {
	return r.updateRun(ctx, runID, map[string]any{
		"status":     RunStatusSuccess,
		"result":     result,
		"updated_at": time.Now(),
	})
}

func (r *RunRepo) MarkFailed(ctx context.Context, runID string, lastError string) error {
	return r.updateRun(ctx, runID, map[string]any{
		"status":     RunStatusFail,
		"last_error": lastError,
		"updated_at": time.Now(),
	})
}

func (r *RunRepo) GetStepResult(ctx context.Context, runID, stepName string) (json.RawMessage, bool, error) {
	var m WorkflowStepModel
	err := r.db.WithContext(ctx).
		Where("run_id = ? and step_name = ?", runID, stepName).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return m.Result, true, nil
}

func (r *RunRepo) SaveStepResult(ctx context.Context, runID, stepName string, result json.RawMessage) error {
	m := WorkflowStepModel{
		RunID:    runID,
		StepName: stepName,
		Result:   result,
	}
	// 同名 step 覆盖（恢复的运行会重写同一条）
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "run_id"}, {Name: "step_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"result", "updated_at"}),
	}).Create(&m).Error
}

func (r *RunRepo) updateRun(ctx context.Context, runID string, updates map[string]any) error {
	res := r.db.WithContext(ctx).Model(&WorkflowRunModel{}).
		Where("run_id = ?", runID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
