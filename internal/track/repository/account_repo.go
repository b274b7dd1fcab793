package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/nimo-track/internal/track/entity"
	"gorm.io/gorm"
)

// AccountRepository 客户账户仓库
type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create 事务内创建账户
func (r *AccountRepository) Create(ctx context.Context, tx *gorm.DB, account *entity.Account) error {
	if account.ID == "" {
		account.ID = NewID()
	}
	return tx.WithContext(ctx).Create(account).Error
}

// FindByID 按ID查询账户
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*entity.Account, error) {
	var account entity.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// FindByShareToken 按客户只读令牌查询账户
func (r *AccountRepository) FindByShareToken(ctx context.Context, token string) (*entity.Account, error) {
	var account entity.Account
	err := r.db.WithContext(ctx).Where("share_token = ?", token).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// FindAll 分页查询账户
func (r *AccountRepository) FindAll(ctx context.Context, page, pageSize int, search string) ([]entity.Account, int64, error) {
	var items []entity.Account
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.Account{})
	if search != "" {
		query = query.Where("name ILIKE ? OR contact_name ILIKE ?", "%"+search+"%", "%"+search+"%")
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

// Update 更新账户
func (r *AccountRepository) Update(ctx context.Context, account *entity.Account) error {
	return r.db.WithContext(ctx).Save(account).Error
}
