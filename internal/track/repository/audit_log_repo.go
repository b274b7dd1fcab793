package repository

import (
	"context"

	"github.com/bitfantasy/nimo-track/internal/track/entity"
	"gorm.io/gorm"
)

// AuditLogRepository 审计日志仓库。日志只追加，仓库不提供更新/删除。
type AuditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Create 事务内追加审计日志。与触发它的业务变更同事务提交，
// 存储不可用时整体回滚，不允许只落一半。
func (r *AuditLogRepository) Create(ctx context.Context, tx *gorm.DB, log *entity.AuditLog) error {
	if log.ID == "" {
		log.ID = NewID()
	}
	return tx.WithContext(ctx).Create(log).Error
}

// FindByEntity 查询实体相关日志：entity_id 或 parent_entity_id 命中均算，
// 订单页因此能同时看到订单自身与其下行项/测量的全部变更。新→旧。
func (r *AuditLogRepository) FindByEntity(ctx context.Context, entityID string, page, pageSize int) ([]entity.AuditLog, int64, error) {
	var items []entity.AuditLog
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.AuditLog{}).
		Where("entity_id = ? OR parent_entity_id = ?", entityID, entityID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}

// FindAll 管理端全量日志查询
func (r *AuditLogRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.AuditLog, int64, error) {
	var items []entity.AuditLog
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.AuditLog{})
	if v := filters["entity_type"]; v != "" {
		query = query.Where("entity_type = ?", v)
	}
	if v := filters["action"]; v != "" {
		query = query.Where("action = ?", v)
	}
	if v := filters["user_id"]; v != "" {
		query = query.Where("user_id = ?", v)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&items).Error

	return items, total, err
}
