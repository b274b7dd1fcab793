package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-track/internal/track/entity"
	"gorm.io/gorm"
)

// StatusEventRepository 阶段事件仓库。事件只追加，仓库不提供更新/删除。
type StatusEventRepository struct {
	db *gorm.DB
}

func NewStatusEventRepository(db *gorm.DB) *StatusEventRepository {
	return &StatusEventRepository{db: db}
}

// Create 事务内追加阶段事件
func (r *StatusEventRepository) Create(ctx context.Context, tx *gorm.DB, event *entity.StatusEvent) error {
	if event.ID == "" {
		event.ID = NewID()
	}
	return tx.WithContext(ctx).Create(event).Error
}

// FindByOrderID 查询订单下全部事件（含行项事件），新→旧
func (r *StatusEventRepository) FindByOrderID(ctx context.Context, orderID string) ([]entity.StatusEvent, error) {
	var events []entity.StatusEvent
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&events).Error
	return events, err
}

// FindLatestForStage 实体在指定阶段的最新一条事件，用于推导在段停留时长。
// 无匹配事件返回 ErrNotFound（调用方按惯例降级为normal）。
func (r *StatusEventRepository) FindLatestForStage(ctx context.Context, entityType, entityID, stage string) (*entity.StatusEvent, error) {
	var event entity.StatusEvent
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ? AND stage = ?", entityType, entityID, stage).
		Order("created_at DESC").
		First(&event).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}
