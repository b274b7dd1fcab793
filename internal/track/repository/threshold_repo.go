package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/nimo-track/internal/track/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ThresholdRepository 阈值与系统设置仓库
type ThresholdRepository struct {
	db *gorm.DB
}

func NewThresholdRepository(db *gorm.DB) *ThresholdRepository {
	return &ThresholdRepository{db: db}
}

// FindByStage 查询阶段阈值配置，无配置返回 ErrNotFound（调用方回退默认值）
func (r *ThresholdRepository) FindByStage(ctx context.Context, stage string) (*entity.StageThreshold, error) {
	var t entity.StageThreshold
	err := r.db.WithContext(ctx).Where("stage = ?", stage).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindAll 查询全部阈值配置
func (r *ThresholdRepository) FindAll(ctx context.Context) ([]entity.StageThreshold, error) {
	var items []entity.StageThreshold
	err := r.db.WithContext(ctx).Find(&items).Error
	return items, err
}

// Upsert 事务内按阶段写入阈值配置
func (r *ThresholdRepository) Upsert(ctx context.Context, tx *gorm.DB, t *entity.StageThreshold) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	t.UpdatedAt = time.Now()
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stage"}},
		DoUpdates: clause.AssignmentColumns([]string{"warning_days", "critical_days", "description", "updated_by", "updated_at"}),
	}).Create(t).Error
}

// GetSetting 读取系统设置，缺失返回 ErrNotFound
func (r *ThresholdRepository) GetSetting(ctx context.Context, key string) (string, error) {
	var s entity.SystemSetting
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return s.Value, nil
}

// SetSetting 事务内写入系统设置
func (r *ThresholdRepository) SetSetting(ctx context.Context, tx *gorm.DB, key, value, updatedBy string) error {
	s := &entity.SystemSetting{
		Key:       key,
		Value:     value,
		UpdatedBy: updatedBy,
		UpdatedAt: time.Now(),
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_by", "updated_at"}),
	}).Create(s).Error
}
