package entity

import "time"

// Account 客户账户
type Account struct {
	ID           string `json:"id" gorm:"primaryKey;size:32"`
	Name         string `json:"name" gorm:"size:200;not null"`
	ContactName  string `json:"contact_name" gorm:"size:100"`
	ContactEmail string `json:"contact_email" gorm:"size:200"`
	Phone        string `json:"phone" gorm:"size:32"`

	// ShareToken 客户只读链接令牌，凭令牌无需登录查看本账户订单进度
	ShareToken string `json:"share_token" gorm:"size:64;uniqueIndex;not null"`

	CreatedBy string    `json:"created_by" gorm:"size:32"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Orders []Order `json:"orders,omitempty" gorm:"foreignKey:AccountID"`
}

func (Account) TableName() string {
	return "track_accounts"
}
