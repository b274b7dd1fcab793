package repository

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
)

// NewID 生成32位实体ID（去连字符UUID）
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// Repositories 仓库集合
type Repositories struct {
	Account     *AccountRepository
	Order       *OrderRepository
	StatusEvent *StatusEventRepository
	AuditLog    *AuditLogRepository
	Threshold   *ThresholdRepository
}

// NewRepositories 创建仓库集合
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Account:     NewAccountRepository(db),
		Order:       NewOrderRepository(db),
		StatusEvent: NewStatusEventRepository(db),
		AuditLog:    NewAuditLogRepository(db),
		Threshold:   NewThresholdRepository(db),
	}
}
