package service

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/nimo-track/internal/track/entity"
	"github.com/bitfantasy/nimo-track/internal/track/repository"
	"gorm.io/gorm"
)

// StageService 阶段推进服务。阶段推进不受订单锁定影响：
// 锁只冻结字段编辑，设备照常在产线上流转。
type StageService struct {
	orderRepo *repository.OrderRepository
	eventRepo *repository.StatusEventRepository
	audit     *AuditService
	db        *gorm.DB
}

func NewStageService(orderRepo *repository.OrderRepository, eventRepo *repository.StatusEventRepository, audit *AuditService, db *gorm.DB) *StageService {
	return &StageService{orderRepo: orderRepo, eventRepo: eventRepo, audit: audit, db: db}
}

// StageChangeRequest 阶段变更请求
type StageChangeRequest struct {
	Stage         string `json:"stage" binding:"required"`
	Note          string `json:"note"`
	FastForward   bool   `json:"fast_forward"`   // 允许跨多个阶段前进
	AllowBackward bool   `json:"allow_backward"` // 显式授权回退（修正误操作）
}

// checkTransition 校验 current → next，返回回退标记。
// 同阶段为幂等空操作（合法），回退必须显式授权。
func checkTransition(current, next string, req *StageChangeRequest) (backward bool, err error) {
	ci := entity.StageIndexOf(current)
	ni := entity.StageIndexOf(next)
	if ci < 0 {
		// 未知的当前状态不可信，不允许据此推进
		return false, policyErr("current stage %q is not a pipeline stage", current)
	}
	if ni < ci {
		if !req.AllowBackward {
			return false, policyErr("illegal transition %s → %s: moving backward requires explicit authorization", current, next)
		}
		return true, nil
	}
	if !entity.CanAdvance(current, next, req.FastForward) {
		return false, policyErr("illegal transition %s → %s: only the next stage is allowed without fast-forward", current, next)
	}
	return false, nil
}

// AdvanceOrderStage 推进订单阶段
func (s *StageService) AdvanceOrderStage(ctx context.Context, orderID string, req *StageChangeRequest, actor Actor) (*entity.Order, error) {
	next, ok := entity.NormalizeStage(req.Stage)
	if !ok {
		return nil, validationErr("unknown stage %q", req.Stage)
	}

	var result *entity.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.LockByID(ctx, tx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundErr("order %s not found", orderID)
		}
		if err != nil {
			return err
		}

		if order.CurrentStage == next {
			// 幂等写，不追加事件
			result = order
			return nil
		}

		backward, err := checkTransition(order.CurrentStage, next, req)
		if err != nil {
			return err
		}

		from := order.CurrentStage
		order.CurrentStage = next
		order.UpdatedAt = time.Now()
		if err := s.orderRepo.Save(ctx, tx, order); err != nil {
			return err
		}

		note := req.Note
		if backward {
			note = correctionNote(note, from, next)
		}
		if err := s.eventRepo.Create(ctx, tx, &entity.StatusEvent{
			EntityType: entity.EntityTypeOrder,
			EntityID:   order.ID,
			OrderID:    order.ID,
			Stage:      next,
			Note:       note,
			UserID:     actor.ID,
			UserName:   actor.Name,
			CreatedAt:  time.Now(),
		}); err != nil {
			return err
		}

		change, _ := DiffField("current_stage", from, next)
		if err := s.audit.Record(ctx, tx, entity.EntityTypeOrder, order.ID, "", entity.ActionStageChange,
			entity.FieldChanges{change},
			entity.StageMetadata{FromStage: from, ToStage: next, FastForward: req.FastForward, Backward: backward, Note: req.Note},
			actor); err != nil {
			return err
		}

		result = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AdvanceItemStage 推进行项阶段。比较基线取行项有效阶段：
// 行项覆盖 → 父订单阶段 → 管线首阶段。
func (s *StageService) AdvanceItemStage(ctx context.Context, orderID, itemID string, req *StageChangeRequest, actor Actor) (*entity.OrderItem, error) {
	next, ok := entity.NormalizeStage(req.Stage)
	if !ok {
		return nil, validationErr("unknown stage %q", req.Stage)
	}

	var result *entity.OrderItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.LockByID(ctx, tx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundErr("order %s not found", orderID)
		}
		if err != nil {
			return err
		}
		item, err := s.orderRepo.LockItemByID(ctx, tx, orderID, itemID)
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundErr("item %s not found in order %s", itemID, orderID)
		}
		if err != nil {
			return err
		}

		current := entity.EffectiveStage(item, order)
		if current == next && item.CurrentStage != nil {
			result = item
			return nil
		}

		backward, err := checkTransition(current, next, req)
		if err != nil {
			return err
		}

		item.CurrentStage = &next
		item.UpdatedAt = time.Now()
		if err := s.orderRepo.SaveItem(ctx, tx, item); err != nil {
			return err
		}

		note := req.Note
		if backward {
			note = correctionNote(note, current, next)
		}
		if err := s.eventRepo.Create(ctx, tx, &entity.StatusEvent{
			EntityType: entity.EntityTypeItem,
			EntityID:   item.ID,
			OrderID:    order.ID,
			Stage:      next,
			Note:       note,
			UserID:     actor.ID,
			UserName:   actor.Name,
			CreatedAt:  time.Now(),
		}); err != nil {
			return err
		}

		change, _ := DiffField("current_stage", current, next)
		if err := s.audit.Record(ctx, tx, entity.EntityTypeItem, item.ID, order.ID, entity.ActionStageChange,
			entity.FieldChanges{change},
			entity.StageMetadata{FromStage: current, ToStage: next, FastForward: req.FastForward, Backward: backward, Note: req.Note},
			actor); err != nil {
			return err
		}

		result = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// OrderEvents 订单阶段时间线（含行项事件），新→旧
func (s *StageService) OrderEvents(ctx context.Context, orderID string) ([]entity.StatusEvent, error) {
	if _, err := s.orderRepo.FindByID(ctx, orderID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundErr("order %s not found", orderID)
		}
		return nil, err
	}
	return s.eventRepo.FindByOrderID(ctx, orderID)
}

// correctionNote 回退事件强制标注修正说明
func correctionNote(note, from, to string) string {
	prefix := "[correction] reverted " + from + " → " + to
	if note == "" {
		return prefix
	}
	return prefix + ": " + note
}
