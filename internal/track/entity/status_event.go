package entity

import "time"

// StatusEvent 实体类型
const (
	EntityTypeOrder     = "order"
	EntityTypeItem      = "item"
	EntityTypeAccount   = "account"
	EntityTypeThreshold = "threshold"
	EntityTypeSetting   = "setting"
)

// StatusEvent 阶段事件：实体E在时间T到达阶段S。只追加，永不更新或删除。
// 实体在当前阶段的停留时长由其当前阶段最新一条事件推导。
type StatusEvent struct {
	ID         string `json:"id" gorm:"primaryKey;size:32"`
	EntityType string `json:"entity_type" gorm:"size:20;not null;index:idx_status_entity"` // order/item
	EntityID   string `json:"entity_id" gorm:"size:32;not null;index:idx_status_entity"`
	OrderID    string `json:"order_id" gorm:"size:32;not null;index"` // 归属订单，行项事件也挂在订单下

	Stage string `json:"stage" gorm:"size:32;not null"`
	Note  string `json:"note" gorm:"type:text"`

	UserID    string    `json:"user_id" gorm:"size:32"`
	UserName  string    `json:"user_name" gorm:"size:100"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`
}

func (StatusEvent) TableName() string {
	return "track_status_events"
}
