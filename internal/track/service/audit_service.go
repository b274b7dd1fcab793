package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bitfantasy/nimo-track/internal/track/entity"
	"github.com/bitfantasy/nimo-track/internal/track/repository"
	"gorm.io/gorm"
)

// AuditService 审计服务。所有变更类操作在自身事务内调用 Record，
// 保证业务变更与审计记录同生共死。
type AuditService struct {
	auditRepo *repository.AuditLogRepository
}

func NewAuditService(auditRepo *repository.AuditLogRepository) *AuditService {
	return &AuditService{auditRepo: auditRepo}
}

// Record 事务内追加一条审计日志
func (s *AuditService) Record(ctx context.Context, tx *gorm.DB, entityType, entityID, parentEntityID, action string, changes entity.FieldChanges, metadata interface{}, actor Actor) error {
	log := &entity.AuditLog{
		EntityType:     entityType,
		EntityID:       entityID,
		ParentEntityID: parentEntityID,
		Action:         action,
		Changes:        changes,
		Metadata:       entity.MetadataFrom(metadata),
		UserID:         actor.ID,
		UserName:       actor.Name,
		CreatedAt:      time.Now(),
	}
	if err := s.auditRepo.Create(ctx, tx, log); err != nil {
		return fmt.Errorf("append audit log: %w", err)
	}
	return nil
}

// History 查询实体审计历史（entity_id 或 parent_entity_id 命中），新→旧。
// 历史记录的metadata可能是早期写入的异常JSON，读取失败降级为空对象而非整查失败。
func (s *AuditService) History(ctx context.Context, entityID string, page, pageSize int) ([]entity.AuditLog, int64, error) {
	logs, total, err := s.auditRepo.FindByEntity(ctx, entityID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	for i := range logs {
		if logs[i].Metadata == nil {
			logs[i].Metadata = entity.JSONB{}
		}
	}
	return logs, total, nil
}

// List 管理端全量日志查询
func (s *AuditService) List(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.AuditLog, int64, error) {
	return s.auditRepo.FindAll(ctx, page, pageSize, filters)
}

// DiffField 比较单个字段，有实际变化时返回变更记录。
// 序列化后相等的字段不产生记录，避免审计噪音。
func DiffField(field string, oldValue, newValue interface{}) (entity.FieldChange, bool) {
	o := entity.AuditValue(oldValue)
	n := entity.AuditValue(newValue)
	if o == n {
		return entity.FieldChange{}, false
	}
	return entity.FieldChange{Field: field, OldValue: o, NewValue: n}, true
}
