package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bitfantasy/nimo-track/internal/track/entity"
	"github.com/bitfantasy/nimo-track/internal/track/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AccountService 客户账户服务。账户持有只读分享令牌，
// 客户凭令牌无需登录查看本账户全部订单的进度。
type AccountService struct {
	accountRepo *repository.AccountRepository
	orderRepo   *repository.OrderRepository
	audit       *AuditService
	risk        *RiskService
	db          *gorm.DB
}

func NewAccountService(accountRepo *repository.AccountRepository, orderRepo *repository.OrderRepository, audit *AuditService, risk *RiskService, db *gorm.DB) *AccountService {
	return &AccountService{accountRepo: accountRepo, orderRepo: orderRepo, audit: audit, risk: risk, db: db}
}

func newShareToken() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// CreateAccountRequest 创建账户请求
type CreateAccountRequest struct {
	Name         string `json:"name" binding:"required"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	Phone        string `json:"phone"`
}

// CreateAccount 创建账户，自动生成分享令牌
func (s *AccountService) CreateAccount(ctx context.Context, req *CreateAccountRequest, actor Actor) (*entity.Account, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, validationErr("account name cannot be empty")
	}

	now := time.Now()
	account := &entity.Account{
		Name:         req.Name,
		ContactName:  req.ContactName,
		ContactEmail: req.ContactEmail,
		Phone:        req.Phone,
		ShareToken:   newShareToken(),
		CreatedBy:    actor.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.accountRepo.Create(ctx, tx, account); err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, entity.EntityTypeAccount, account.ID, "", entity.ActionCreate, nil, nil, actor)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// GetAccount 查询账户
func (s *AccountService) GetAccount(ctx context.Context, id string) (*entity.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundErr("account %s not found", id)
	}
	return account, err
}

// ListAccounts 分页查询账户
func (s *AccountService) ListAccounts(ctx context.Context, page, pageSize int, search string) ([]entity.Account, int64, error) {
	return s.accountRepo.FindAll(ctx, page, pageSize, search)
}

// UpdateAccount 更新账户基本信息，字段变更入审计
func (s *AccountService) UpdateAccount(ctx context.Context, id string, req *CreateAccountRequest, actor Actor) (*entity.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundErr("account %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, validationErr("account name cannot be empty")
	}

	var changes entity.FieldChanges
	for _, f := range []struct {
		name string
		dst  *string
		next string
	}{
		{"name", &account.Name, req.Name},
		{"contact_name", &account.ContactName, req.ContactName},
		{"contact_email", &account.ContactEmail, req.ContactEmail},
		{"phone", &account.Phone, req.Phone},
	} {
		if c, dirty := DiffField(f.name, *f.dst, f.next); dirty {
			changes = append(changes, c)
			*f.dst = f.next
		}
	}
	if len(changes) == 0 {
		return account, nil
	}

	account.UpdatedAt = time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Save(account).Error; err != nil {
			return err
		}
		return s.audit.Record(ctx, tx, entity.EntityTypeAccount, account.ID, "", entity.ActionUpdate, changes, nil, actor)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// RotateShareToken 轮换分享令牌，旧链接立即失效
func (s *AccountService) RotateShareToken(ctx context.Context, id string, actor Actor) (*entity.Account, error) {
	account, err := s.accountRepo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundErr("account %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	account.ShareToken = newShareToken()
	account.UpdatedAt = time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Save(account).Error; err != nil {
			return err
		}
		// 令牌值不写入审计，只记录轮换动作本身
		return s.audit.Record(ctx, tx, entity.EntityTypeAccount, account.ID, "", entity.ActionUpdate,
			entity.FieldChanges{{Field: "share_token", OldValue: "rotated", NewValue: "rotated"}}, nil, actor)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// === 客户只读视图 ===
//
// 分享链接面向客户，只暴露进度相关字段；
// 采购价格、内部备注、锁定信息一律不出现在视图里。

// ShareItemView 客户视图的行项
type ShareItemView struct {
	ProductName  string     `json:"product_name"`
	ProductCode  string     `json:"product_code,omitempty"`
	Quantity     int        `json:"quantity"`
	SerialNumber string     `json:"serial_number,omitempty"`
	ModelNumber  string     `json:"model_number,omitempty"`
	CurrentStage string     `json:"current_stage"`
	RiskLevel    string     `json:"risk_level"`
	TrackedSince *time.Time `json:"tracked_since,omitempty"`
}

// ShareOrderView 客户视图的订单
type ShareOrderView struct {
	POLabel           string          `json:"po_label"`
	CurrentStage      string          `json:"current_stage"`
	RiskLevel         string          `json:"risk_level"`
	Carrier           string          `json:"carrier,omitempty"`
	TrackingNo        string          `json:"tracking_no,omitempty"`
	Destination       string          `json:"destination,omitempty"`
	EstimatedDelivery *time.Time      `json:"estimated_delivery,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	Items             []ShareItemView `json:"items"`
}

// ShareView 分享链接解析结果
type ShareView struct {
	AccountName string           `json:"account_name"`
	Stages      []string         `json:"stages"`
	Orders      []ShareOrderView `json:"orders"`
}

// ResolveShareToken 按令牌解析客户只读视图
func (s *AccountService) ResolveShareToken(ctx context.Context, token string) (*ShareView, error) {
	account, err := s.accountRepo.FindByShareToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, notFoundErr("share link not found")
	}
	if err != nil {
		return nil, err
	}

	orders, err := s.orderRepo.FindByAccountID(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	view := &ShareView{
		AccountName: account.Name,
		Stages:      entity.Stages,
		Orders:      make([]ShareOrderView, 0, len(orders)),
	}
	for i := range orders {
		order := &orders[i]
		ov := ShareOrderView{
			POLabel:           order.POLabel,
			CurrentStage:      order.CurrentStage,
			RiskLevel:         s.risk.AssessOrder(ctx, order).Level,
			Carrier:           order.Carrier,
			TrackingNo:        order.TrackingNo,
			Destination:       order.Destination,
			EstimatedDelivery: order.EstimatedDelivery,
			CreatedAt:         order.CreatedAt,
			Items:             make([]ShareItemView, 0, len(order.Items)),
		}
		for j := range order.Items {
			item := &order.Items[j]
			risk := s.risk.AssessItem(ctx, item, order)
			ov.Items = append(ov.Items, ShareItemView{
				ProductName:  item.ProductName,
				ProductCode:  item.ProductCode,
				Quantity:     item.Quantity,
				SerialNumber: item.SerialNumber,
				ModelNumber:  item.ModelNumber,
				CurrentStage: entity.EffectiveStage(item, order),
				RiskLevel:    risk.Level,
				TrackedSince: risk.TrackedSince,
			})
		}
		view.Orders = append(view.Orders, ov)
	}
	return view, nil
}
