package entity

import "time"

// Order 设备订单（聚合根）
type Order struct {
	ID        string `json:"id" gorm:"primaryKey;size:32"`
	AccountID string `json:"account_id" gorm:"size:32;not null;index"`

	// 订单信息
	POLabel     string `json:"po_label" gorm:"size:100"` // 采购单/下单日期标签
	Salesperson string `json:"salesperson" gorm:"size:100"`
	Notes       string `json:"notes" gorm:"type:text"`

	// 管线状态
	CurrentStage string `json:"current_stage" gorm:"size:32;not null;index"`

	// 锁定状态：锁定后核心字段禁止编辑，阶段推进不受影响
	IsLocked bool       `json:"is_locked" gorm:"not null;default:false"`
	LockedAt *time.Time `json:"locked_at"`
	LockedBy string     `json:"locked_by" gorm:"size:100"`

	// 物流
	Carrier     string `json:"carrier" gorm:"size:100"`
	TrackingNo  string `json:"tracking_no" gorm:"size:100"`
	Destination string `json:"destination" gorm:"size:200"`

	// 交付
	EstimatedDelivery *time.Time `json:"estimated_delivery"`
	DocumentURL       string     `json:"document_url" gorm:"size:512"` // 客户资料链接

	// 管理
	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// 关联
	Items []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string {
	return "track_orders"
}

// OrderItem 订单行项（单台设备/部件）
type OrderItem struct {
	ID      string `json:"id" gorm:"primaryKey;size:32"`
	OrderID string `json:"order_id" gorm:"size:32;not null;index"`

	// 设备信息
	ProductName  string `json:"product_name" gorm:"size:200;not null"`
	ProductCode  string `json:"product_code" gorm:"size:64"`
	Quantity     int    `json:"quantity" gorm:"not null;default:1"`
	SerialNumber string `json:"serial_number" gorm:"size:100"`
	ModelNumber  string `json:"model_number" gorm:"size:100"`
	Voltage      string `json:"voltage" gorm:"size:32"`
	Notes        string `json:"notes" gorm:"type:text"`

	// 测量字段（锁定状态下仍可编辑）
	Height        *float64 `json:"height" gorm:"type:decimal(10,2)"`
	Width         *float64 `json:"width" gorm:"type:decimal(10,2)"`
	Length        *float64 `json:"length" gorm:"type:decimal(10,2)"`
	Weight        *float64 `json:"weight" gorm:"type:decimal(10,2)"`
	DimensionUnit string   `json:"dimension_unit" gorm:"size:16;default:cm"`
	WeightUnit    string   `json:"weight_unit" gorm:"size:16;default:kg"`

	// 阶段覆盖：为空时跟随父订单阶段
	CurrentStage *string `json:"current_stage" gorm:"size:32"`

	// 采购（仅管理员可编辑）
	IsOrdered        bool     `json:"is_ordered" gorm:"not null;default:false"`
	ProcurementPrice *float64 `json:"procurement_price" gorm:"type:decimal(12,2)"`
	ProcurementNotes string   `json:"procurement_notes" gorm:"type:text"`

	// 归档（软删除语义，锁定状态下仍可归档/恢复）
	ArchivedAt *time.Time `json:"archived_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (OrderItem) TableName() string {
	return "track_order_items"
}

// IsArchived 行项是否已归档
func (i *OrderItem) IsArchived() bool {
	return i.ArchivedAt != nil
}
