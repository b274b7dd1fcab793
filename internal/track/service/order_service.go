package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-track/internal/track/entity"
	"github.com/bitfantasy/nimo-track/internal/track/repository"
	"gorm.io/gorm"
)

// OrderService 订单服务：创建/删除、锁定/解锁、字段编辑门禁
type OrderService struct {
	orderRepo   *repository.OrderRepository
	accountRepo *repository.AccountRepository
	eventRepo   *repository.StatusEventRepository
	audit       *AuditService
	risk        *RiskService
	db          *gorm.DB
}

func NewOrderService(
	orderRepo *repository.OrderRepository,
	accountRepo *repository.AccountRepository,
	eventRepo *repository.StatusEventRepository,
	audit *AuditService,
	risk *RiskService,
	db *gorm.DB,
) *OrderService {
	return &OrderService{
		orderRepo:   orderRepo,
		accountRepo: accountRepo,
		eventRepo:   eventRepo,
		audit:       audit,
		risk:        risk,
		db:          db,
	}
}

// === 字段编辑门禁 ===
//
// 字段分三档：
//   tierFree  — 锁定状态下仍可编辑（测量字段、客户资料链接）
//   tierAdmin — 锁定状态下仍可编辑，但仅限管理员（采购价格/备注/下单标记）
//   tierCore  — 锁定状态下禁止编辑，尝试编辑整个请求被拒并记入审计

type fieldTier int

const (
	tierFree fieldTier = iota
	tierAdmin
	tierCore
)

var orderFieldTiers = map[string]fieldTier{
	"po_label":           tierCore,
	"salesperson":        tierCore,
	"notes":              tierCore,
	"account_id":         tierCore,
	"carrier":            tierCore,
	"tracking_no":        tierCore,
	"destination":        tierCore,
	"estimated_delivery": tierCore,
	"document_url":       tierFree,
}

var itemFieldTiers = map[string]fieldTier{
	"product_name":      tierCore,
	"product_code":      tierCore,
	"quantity":          tierCore,
	"serial_number":     tierCore,
	"model_number":      tierCore,
	"voltage":           tierCore,
	"notes":             tierCore,
	"height":            tierFree,
	"width":             tierFree,
	"length":            tierFree,
	"weight":            tierFree,
	"dimension_unit":    tierFree,
	"weight_unit":       tierFree,
	"is_ordered":        tierAdmin,
	"procurement_price": tierAdmin,
	"procurement_notes": tierAdmin,
}

// gateFields 对请求字段做门禁裁决。锁定状态下只要出现核心字段，
// 整个请求拒绝（不部分应用）；管理员档字段需要管理员角色。
func gateFields(fields map[string]interface{}, tiers map[string]fieldTier, locked bool, actor Actor) (blocked, adminDenied []string, err error) {
	unknown := make([]string, 0)
	for name := range fields {
		tier, ok := tiers[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		if locked && tier == tierCore {
			blocked = append(blocked, name)
		}
		if tier == tierAdmin && !actor.IsAdmin() {
			adminDenied = append(adminDenied, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, nil, validationErr("unknown or non-editable fields: %s", strings.Join(unknown, ", "))
	}
	sort.Strings(blocked)
	sort.Strings(adminDenied)
	return blocked, adminDenied, nil
}

// EditOrderFields 编辑订单字段，返回实际发生变更的字段
func (s *OrderService) EditOrderFields(ctx context.Context, orderID string, fields map[string]interface{}, actor Actor) (*entity.Order, []string, error) {
	var result *entity.Order
	var changed []string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.LockByID(ctx, tx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundErr("order %s not found", orderID)
		}
		if err != nil {
			return err
		}

		blocked, adminDenied, err := gateFields(fields, orderFieldTiers, order.IsLocked, actor)
		if err != nil {
			return err
		}
		if len(blocked) > 0 {
			// 拒绝本身也是审计事件：策略错误会让外层事务回滚，
			// 拒绝记录必须留存，走独立连接直接提交
			if err := s.audit.Record(ctx, s.db, entity.EntityTypeOrder, order.ID, "", entity.ActionEditBlocked,
				nil, entity.BlockedMetadata{RequestedFields: blocked, Reason: "order is locked"}, actor); err != nil {
				return err
			}
			return policyErr("order is locked: fields %s cannot be edited", strings.Join(blocked, ", "))
		}
		if len(adminDenied) > 0 {
			return policyErr("fields %s require the %s role", strings.Join(adminDenied, ", "), AdminRole)
		}

		changes, err := s.applyOrderFields(ctx, order, fields)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			result = order
			return nil
		}

		order.UpdatedAt = time.Now()
		if err := s.orderRepo.Save(ctx, tx, order); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, entity.EntityTypeOrder, order.ID, "", entity.ActionUpdate, changes, nil, actor); err != nil {
			return err
		}

		for _, c := range changes {
			changed = append(changed, c.Field)
		}
		result = order
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return result, changed, nil
}

func (s *OrderService) applyOrderFields(ctx context.Context, order *entity.Order, fields map[string]interface{}) (entity.FieldChanges, error) {
	var changes entity.FieldChanges

	setString := func(name string, dst *string) error {
		v, ok := fields[name]
		if !ok {
			return nil
		}
		nv, ok := v.(string)
		if !ok && v != nil {
			return validationErr("field %s must be a string", name)
		}
		if c, dirty := DiffField(name, *dst, nv); dirty {
			changes = append(changes, c)
			*dst = nv
		}
		return nil
	}

	if v, ok := fields["account_id"]; ok {
		nv, _ := v.(string)
		if nv == "" {
			return nil, validationErr("account_id cannot be empty")
		}
		if _, err := s.accountRepo.FindByID(ctx, nv); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, notFoundErr("account %s not found", nv)
			}
			return nil, err
		}
		if c, dirty := DiffField("account_id", order.AccountID, nv); dirty {
			changes = append(changes, c)
			order.AccountID = nv
		}
	}

	for name, dst := range map[string]*string{
		"po_label":     &order.POLabel,
		"salesperson":  &order.Salesperson,
		"notes":        &order.Notes,
		"carrier":      &order.Carrier,
		"tracking_no":  &order.TrackingNo,
		"destination":  &order.Destination,
		"document_url": &order.DocumentURL,
	} {
		if err := setString(name, dst); err != nil {
			return nil, err
		}
	}

	if v, ok := fields["estimated_delivery"]; ok {
		nv, err := parseDatePtr(v)
		if err != nil {
			return nil, validationErr("estimated_delivery: %v", err)
		}
		if c, dirty := DiffField("estimated_delivery", order.EstimatedDelivery, nv); dirty {
			changes = append(changes, c)
			order.EstimatedDelivery = nv
		}
	}

	return changes, nil
}

// EditItemFields 编辑行项字段，返回实际发生变更的字段。
// 门禁依据父订单的锁定状态，审计记录挂父订单ID用于订单维度聚合。
func (s *OrderService) EditItemFields(ctx context.Context, orderID, itemID string, fields map[string]interface{}, actor Actor) (*entity.OrderItem, []string, error) {
	var result *entity.OrderItem
	var changed []string

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

		blocked, adminDenied, err := gateFields(fields, itemFieldTiers, order.IsLocked, actor)
		if err != nil {
			return err
		}
		if len(blocked) > 0 {
			// 拒绝记录独立提交，回滚不影响
			if err := s.audit.Record(ctx, s.db, entity.EntityTypeItem, item.ID, order.ID, entity.ActionEditBlocked,
				nil, entity.BlockedMetadata{RequestedFields: blocked, Reason: "parent order is locked"}, actor); err != nil {
				return err
			}
			return policyErr("order is locked: fields %s cannot be edited", strings.Join(blocked, ", "))
		}
		if len(adminDenied) > 0 {
			return policyErr("fields %s require the %s role", strings.Join(adminDenied, ", "), AdminRole)
		}

		changes, err := applyItemFields(item, fields)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			result = item
			return nil
		}

		item.UpdatedAt = time.Now()
		if err := s.orderRepo.SaveItem(ctx, tx, item); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, entity.EntityTypeItem, item.ID, order.ID, entity.ActionUpdate, changes, nil, actor); err != nil {
			return err
		}

		for _, c := range changes {
			changed = append(changed, c.Field)
		}
		result = item
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return result, changed, nil
}

func applyItemFields(item *entity.OrderItem, fields map[string]interface{}) (entity.FieldChanges, error) {
	var changes entity.FieldChanges

	setString := func(name string, dst *string) error {
		v, ok := fields[name]
		if !ok {
			return nil
		}
		nv, ok := v.(string)
		if !ok && v != nil {
			return validationErr("field %s must be a string", name)
		}
		if c, dirty := DiffField(name, *dst, nv); dirty {
			changes = append(changes, c)
			*dst = nv
		}
		return nil
	}
	setFloatPtr := func(name string, dst **float64) error {
		v, ok := fields[name]
		if !ok {
			return nil
		}
		nv, err := parseFloatPtr(v)
		if err != nil {
			return validationErr("field %s must be a number", name)
		}
		if c, dirty := DiffField(name, *dst, nv); dirty {
			changes = append(changes, c)
			*dst = nv
		}
		return nil
	}

	for name, dst := range map[string]*string{
		"product_name":      &item.ProductName,
		"product_code":      &item.ProductCode,
		"serial_number":     &item.SerialNumber,
		"model_number":      &item.ModelNumber,
		"voltage":           &item.Voltage,
		"notes":             &item.Notes,
		"dimension_unit":    &item.DimensionUnit,
		"weight_unit":       &item.WeightUnit,
		"procurement_notes": &item.ProcurementNotes,
	} {
		if err := setString(name, dst); err != nil {
			return nil, err
		}
	}
	for name, dst := range map[string]**float64{
		"height":            &item.Height,
		"width":             &item.Width,
		"length":            &item.Length,
		"weight":            &item.Weight,
		"procurement_price": &item.ProcurementPrice,
	} {
		if err := setFloatPtr(name, dst); err != nil {
			return nil, err
		}
	}

	if v, ok := fields["quantity"]; ok {
		f, ok := v.(float64)
		if !ok {
			return nil, validationErr("quantity must be a number")
		}
		nv := int(f)
		if nv <= 0 {
			return nil, validationErr("quantity must be greater than zero")
		}
		if c, dirty := DiffField("quantity", item.Quantity, nv); dirty {
			changes = append(changes, c)
			item.Quantity = nv
		}
	}

	if v, ok := fields["is_ordered"]; ok {
		nv, ok := v.(bool)
		if !ok {
			return nil, validationErr("is_ordered must be a boolean")
		}
		if c, dirty := DiffField("is_ordered", item.IsOrdered, nv); dirty {
			changes = append(changes, c)
			item.IsOrdered = nv
		}
	}

	if item.ProductName == "" {
		return nil, validationErr("product_name cannot be empty")
	}

	return changes, nil
}

// === 锁定/解锁 ===

// LockOrder 锁定订单。任何已认证员工均可锁定；重复锁定拒绝且不改动锁信息。
func (s *OrderService) LockOrder(ctx context.Context, orderID, reason string, actor Actor) (*entity.Order, error) {
	var result *entity.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.LockByID(ctx, tx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundErr("order %s not found", orderID)
		}
		if err != nil {
			return err
		}
		if order.IsLocked {
			return conflictErr("order %s is already locked by %s", orderID, order.LockedBy)
		}

		now := time.Now()
		order.IsLocked = true
		order.LockedAt = &now
		order.LockedBy = actor.Name
		order.UpdatedAt = now
		if err := s.orderRepo.Save(ctx, tx, order); err != nil {
			return err
		}

		if err := s.audit.Record(ctx, tx, entity.EntityTypeOrder, order.ID, "", entity.ActionLock,
			nil, entity.LockMetadata{Reason: reason}, actor); err != nil {
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

// UnlockOrder 解锁订单。仅管理员，且必须给出不少于10个字符的理由。
func (s *OrderService) UnlockOrder(ctx context.Context, orderID, reason string, actor Actor) (*entity.Order, error) {
	if !actor.IsAdmin() {
		return nil, policyErr("unlocking an order requires the %s role", AdminRole)
	}
	if len(strings.TrimSpace(reason)) < 10 {
		return nil, validationErr("unlock reason must be at least 10 characters")
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
		if !order.IsLocked {
			return conflictErr("order %s is not locked", orderID)
		}

		order.IsLocked = false
		order.LockedAt = nil
		order.LockedBy = ""
		order.UpdatedAt = time.Now()
		if err := s.orderRepo.Save(ctx, tx, order); err != nil {
			return err
		}

		if err := s.audit.Record(ctx, tx, entity.EntityTypeOrder, order.ID, "", entity.ActionUnlock,
			nil, entity.LockMetadata{Reason: reason}, actor); err != nil {
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

// === 创建/查询/删除 ===

// CreateItemRequest 创建行项请求
type CreateItemRequest struct {
	ProductName  string   `json:"product_name" binding:"required"`
	ProductCode  string   `json:"product_code"`
	Quantity     int      `json:"quantity"`
	SerialNumber string   `json:"serial_number"`
	ModelNumber  string   `json:"model_number"`
	Voltage      string   `json:"voltage"`
	Notes        string   `json:"notes"`
	Height       *float64 `json:"height"`
	Width        *float64 `json:"width"`
	Length       *float64 `json:"length"`
	Weight       *float64 `json:"weight"`
}

// CreateOrderRequest 创建订单请求
type CreateOrderRequest struct {
	AccountID   string              `json:"account_id" binding:"required"`
	POLabel     string              `json:"po_label"`
	Salesperson string              `json:"salesperson"`
	Notes       string              `json:"notes"`
	Items       []CreateItemRequest `json:"items"`
}

// CreateOrder 创建订单：初始阶段为管线首阶段，同时落初始阶段事件，
// 预计交付日期按阈值注册表推算。
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest, actor Actor) (*entity.Order, error) {
	if _, err := s.accountRepo.FindByID(ctx, req.AccountID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundErr("account %s not found", req.AccountID)
		}
		return nil, err
	}
	for _, it := range req.Items {
		if it.Quantity < 0 {
			return nil, validationErr("item %q: quantity cannot be negative", it.ProductName)
		}
	}

	now := time.Now()
	eta := s.risk.EstimateDelivery(ctx, now)
	order := &entity.Order{
		AccountID:         req.AccountID,
		POLabel:           req.POLabel,
		Salesperson:       req.Salesperson,
		Notes:             req.Notes,
		CurrentStage:      entity.FirstStage(),
		EstimatedDelivery: &eta,
		CreatedBy:         actor.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, it := range req.Items {
		qty := it.Quantity
		if qty == 0 {
			qty = 1
		}
		order.Items = append(order.Items, entity.OrderItem{
			ProductName:   it.ProductName,
			ProductCode:   it.ProductCode,
			Quantity:      qty,
			SerialNumber:  it.SerialNumber,
			ModelNumber:   it.ModelNumber,
			Voltage:       it.Voltage,
			Notes:         it.Notes,
			Height:        it.Height,
			Width:         it.Width,
			Length:        it.Length,
			Weight:        it.Weight,
			DimensionUnit: "cm",
			WeightUnit:    "kg",
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		if err := s.eventRepo.Create(ctx, tx, &entity.StatusEvent{
			EntityType: entity.EntityTypeOrder,
			EntityID:   order.ID,
			OrderID:    order.ID,
			Stage:      order.CurrentStage,
			Note:       "order created",
			UserID:     actor.ID,
			UserName:   actor.Name,
			CreatedAt:  now,
		}); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, entity.EntityTypeOrder, order.ID, "", entity.ActionCreate, nil, nil, actor); err != nil {
			return err
		}
		for i := range order.Items {
			if err := s.audit.Record(ctx, tx, entity.EntityTypeItem, order.Items[i].ID, order.ID, entity.ActionCreate, nil, nil, actor); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// AddItem 向订单追加行项。锁定状态下禁止（核心结构变更），尝试入审计。
func (s *OrderService) AddItem(ctx context.Context, orderID string, req *CreateItemRequest, actor Actor) (*entity.OrderItem, error) {
	if req.Quantity < 0 {
		return nil, validationErr("quantity cannot be negative")
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
		if order.IsLocked {
			// 拒绝记录独立提交，回滚不影响
			if err := s.audit.Record(ctx, s.db, entity.EntityTypeOrder, order.ID, "", entity.ActionEditBlocked,
				nil, entity.BlockedMetadata{Reason: "item creation attempted while order is locked"}, actor); err != nil {
				return err
			}
			return policyErr("order %s is locked: items cannot be added", orderID)
		}

		now := time.Now()
		qty := req.Quantity
		if qty == 0 {
			qty = 1
		}
		item := &entity.OrderItem{
			OrderID:       order.ID,
			ProductName:   req.ProductName,
			ProductCode:   req.ProductCode,
			Quantity:      qty,
			SerialNumber:  req.SerialNumber,
			ModelNumber:   req.ModelNumber,
			Voltage:       req.Voltage,
			Notes:         req.Notes,
			Height:        req.Height,
			Width:         req.Width,
			Length:        req.Length,
			Weight:        req.Weight,
			DimensionUnit: "cm",
			WeightUnit:    "kg",
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.orderRepo.CreateItem(ctx, tx, item); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, entity.EntityTypeItem, item.ID, order.ID, entity.ActionCreate, nil, nil, actor); err != nil {
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

// DeleteOrder 删除订单。锁定状态下禁止删除，尝试本身入审计。
func (s *OrderService) DeleteOrder(ctx context.Context, orderID string, actor Actor) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.LockByID(ctx, tx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundErr("order %s not found", orderID)
		}
		if err != nil {
			return err
		}
		if order.IsLocked {
			// 拒绝记录独立提交，回滚不影响
			if err := s.audit.Record(ctx, s.db, entity.EntityTypeOrder, order.ID, "", entity.ActionDeleteBlocked,
				nil, entity.BlockedMetadata{Reason: "delete attempted while order is locked"}, actor); err != nil {
				return err
			}
			return policyErr("order %s is locked and cannot be deleted", orderID)
		}
		if err := s.orderRepo.Delete(ctx, tx, order.ID); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, entity.EntityTypeOrder, order.ID, "", entity.ActionDelete, nil, nil, actor)
	})
}

// DeleteItem 删除行项。父订单锁定时禁止，尝试入审计。
func (s *OrderService) DeleteItem(ctx context.Context, orderID, itemID string, actor Actor) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
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
		if order.IsLocked {
			// 拒绝记录独立提交，回滚不影响
			if err := s.audit.Record(ctx, s.db, entity.EntityTypeItem, item.ID, order.ID, entity.ActionDeleteBlocked,
				nil, entity.BlockedMetadata{Reason: "delete attempted while parent order is locked"}, actor); err != nil {
				return err
			}
			return policyErr("order %s is locked: items cannot be deleted", orderID)
		}
		if err := s.orderRepo.DeleteItem(ctx, tx, item.ID); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, entity.EntityTypeItem, item.ID, order.ID, entity.ActionDelete, nil, nil, actor)
	})
}

// ArchiveItem 归档行项。归档属于永久可编辑档，锁定状态下照常允许。
func (s *OrderService) ArchiveItem(ctx context.Context, orderID, itemID string, actor Actor) (*entity.OrderItem, error) {
	return s.setItemArchived(ctx, orderID, itemID, true, actor)
}

// RestoreItem 恢复已归档行项
func (s *OrderService) RestoreItem(ctx context.Context, orderID, itemID string, actor Actor) (*entity.OrderItem, error) {
	return s.setItemArchived(ctx, orderID, itemID, false, actor)
}

func (s *OrderService) setItemArchived(ctx context.Context, orderID, itemID string, archived bool, actor Actor) (*entity.OrderItem, error) {
	var result *entity.OrderItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.orderRepo.LockItemByID(ctx, tx, orderID, itemID)
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundErr("item %s not found in order %s", itemID, orderID)
		}
		if err != nil {
			return err
		}
		if item.IsArchived() == archived {
			result = item
			return nil
		}

		old := item.ArchivedAt
		action := entity.ActionRestore
		if archived {
			now := time.Now()
			item.ArchivedAt = &now
			action = entity.ActionArchive
		} else {
			item.ArchivedAt = nil
		}
		item.UpdatedAt = time.Now()
		if err := s.orderRepo.SaveItem(ctx, tx, item); err != nil {
			return err
		}

		change, _ := DiffField("archived_at", old, item.ArchivedAt)
		if err := s.audit.Record(ctx, tx, entity.EntityTypeItem, item.ID, orderID, action,
			entity.FieldChanges{change}, nil, actor); err != nil {
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

// === 查询 ===

// OrderDetail 订单详情：订单+行项+事件+风险评估
type OrderDetail struct {
	Order    *entity.Order        `json:"order"`
	Events   []entity.StatusEvent `json:"events"`
	Risk     *RiskInfo            `json:"risk"`
	ItemRisk map[string]*RiskInfo `json:"item_risk"`
}

// GetOrder 获取订单详情
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*OrderDetail, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundErr("order %s not found", orderID)
	}
	if err != nil {
		return nil, err
	}

	events, err := s.eventRepo.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	detail := &OrderDetail{
		Order:    order,
		Events:   events,
		ItemRisk: make(map[string]*RiskInfo, len(order.Items)),
	}
	detail.Risk = s.risk.AssessOrder(ctx, order)
	for i := range order.Items {
		item := &order.Items[i]
		detail.ItemRisk[item.ID] = s.risk.AssessItem(ctx, item, order)
	}
	return detail, nil
}

// ListOrders 分页查询订单
func (s *OrderService) ListOrders(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Order, int64, error) {
	if v := filters["stage"]; v != "" {
		stage, ok := entity.NormalizeStage(v)
		if !ok {
			return nil, 0, validationErr("unknown stage %q", v)
		}
		filters["stage"] = stage
	}
	return s.orderRepo.FindAll(ctx, page, pageSize, filters)
}

// === 解析辅助 ===

func parseFloatPtr(v interface{}) (*float64, error) {
	if v == nil {
		return nil, nil
	}
	f, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("not a number: %v", v)
	}
	return &f, nil
}

func parseDatePtr(v interface{}) (*time.Time, error) {
	if v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("not a date string: %v", v)
	}
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return &t, nil
}
