package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-track/internal/track/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepository 订单仓库（含行项）
type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// DB 返回底层句柄，供服务层开事务
func (r *OrderRepository) DB() *gorm.DB {
	return r.db
}

// Create 创建订单（含行项）
func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *entity.Order) error {
	if order.ID == "" {
		order.ID = NewID()
	}
	for i := range order.Items {
		if order.Items[i].ID == "" {
			order.Items[i].ID = NewID()
		}
		order.Items[i].OrderID = order.ID
	}
	return tx.WithContext(ctx).Create(order).Error
}

// FindByID 按ID查询订单，预加载行项
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	var order entity.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Where("id = ?", id).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// LockByID 事务内行锁读取订单。锁定标志与当前阶段是唯一被并发争用的
// 共享状态，所有先检查后写入的路径必须走这里。
func (r *OrderRepository) LockByID(ctx context.Context, tx *gorm.DB, id string) (*entity.Order, error) {
	var order entity.Order
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// LockItemByID 事务内行锁读取行项，校验归属订单
func (r *OrderRepository) LockItemByID(ctx context.Context, tx *gorm.DB, orderID, itemID string) (*entity.OrderItem, error) {
	var item entity.OrderItem
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND order_id = ?", itemID, orderID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindItemByID 查询行项，校验归属订单
func (r *OrderRepository) FindItemByID(ctx context.Context, orderID, itemID string) (*entity.OrderItem, error) {
	var item entity.OrderItem
	err := r.db.WithContext(ctx).
		Where("id = ? AND order_id = ?", itemID, orderID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// FindAll 分页查询订单
func (r *OrderRepository) FindAll(ctx context.Context, page, pageSize int, filters map[string]string) ([]entity.Order, int64, error) {
	var orders []entity.Order
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Order{})
	if v := filters["account_id"]; v != "" {
		query = query.Where("account_id = ?", v)
	}
	if v := filters["stage"]; v != "" {
		query = query.Where("current_stage = ?", v)
	}
	if v := filters["locked"]; v != "" {
		query = query.Where("is_locked = ?", v == "true")
	}
	if v := filters["salesperson"]; v != "" {
		query = query.Where("salesperson = ?", v)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.
		Preload("Items").
		Order("created_at DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&orders).Error

	return orders, total, err
}

// FindActive 查询未完结订单（风险扫描用），排除给定的终态阶段
func (r *OrderRepository) FindActive(ctx context.Context, excludeStages []string) ([]entity.Order, error) {
	var orders []entity.Order
	err := r.db.WithContext(ctx).
		Where("current_stage NOT IN ?", excludeStages).
		Find(&orders).Error
	return orders, err
}

// FindByAccountID 查询账户全部订单（客户只读链接用）
func (r *OrderRepository) FindByAccountID(ctx context.Context, accountID string) ([]entity.Order, error) {
	var orders []entity.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Where("archived_at IS NULL").Order("created_at ASC")
		}).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Find(&orders).Error
	return orders, err
}

// Save 事务内保存订单
func (r *OrderRepository) Save(ctx context.Context, tx *gorm.DB, order *entity.Order) error {
	return tx.WithContext(ctx).Save(order).Error
}

// SaveItem 事务内保存行项
func (r *OrderRepository) SaveItem(ctx context.Context, tx *gorm.DB, item *entity.OrderItem) error {
	return tx.WithContext(ctx).Save(item).Error
}

// CreateItem 事务内创建行项
func (r *OrderRepository) CreateItem(ctx context.Context, tx *gorm.DB, item *entity.OrderItem) error {
	if item.ID == "" {
		item.ID = NewID()
	}
	return tx.WithContext(ctx).Create(item).Error
}

// Delete 事务内删除订单及其行项
func (r *OrderRepository) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	if err := tx.WithContext(ctx).Where("order_id = ?", id).Delete(&entity.OrderItem{}).Error; err != nil {
		return err
	}
	return tx.WithContext(ctx).Where("id = ?", id).Delete(&entity.Order{}).Error
}

// DeleteItem 事务内删除行项
func (r *OrderRepository) DeleteItem(ctx context.Context, tx *gorm.DB, itemID string) error {
	return tx.WithContext(ctx).Where("id = ?", itemID).Delete(&entity.OrderItem{}).Error
}
