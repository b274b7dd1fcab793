package service

import (
	"github.com/bitfantasy/nimo-track/internal/config"
	"github.com/bitfantasy/nimo-track/internal/track/repository"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Actor 已认证操作人（来自JWT）
type Actor struct {
	ID    string
	Name  string
	Roles []string
}

// AdminRole 管理员角色，解锁订单、采购字段、阈值配置需要该角色
const AdminRole = "track_admin"

// IsAdmin 是否为管理员
func (a Actor) IsAdmin() bool {
	for _, r := range a.Roles {
		if r == AdminRole {
			return true
		}
	}
	return false
}

// Services 服务集合
type Services struct {
	Account  *AccountService
	Order    *OrderService
	Stage    *StageService
	Risk     *RiskService
	Audit    *AuditService
	Document *DocumentService
}

// NewServices 创建服务集合
func NewServices(repos *repository.Repositories, db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Services {
	// 初始化MinIO客户端（未配置时文档上传功能不可用，其余功能正常）
	var minioClient *minio.Client
	if cfg.MinIO.Endpoint != "" {
		var err error
		minioClient, err = minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			minioClient = nil
		}
	}

	auditSvc := NewAuditService(repos.AuditLog)
	riskSvc := NewRiskService(repos.Threshold, repos.StatusEvent, repos.Order, rdb, db, auditSvc)
	orderSvc := NewOrderService(repos.Order, repos.Account, repos.StatusEvent, auditSvc, riskSvc, db)
	stageSvc := NewStageService(repos.Order, repos.StatusEvent, auditSvc, db)

	return &Services{
		Account:  NewAccountService(repos.Account, repos.Order, auditSvc, riskSvc, db),
		Order:    orderSvc,
		Stage:    stageSvc,
		Risk:     riskSvc,
		Audit:    auditSvc,
		Document: NewDocumentService(repos.Order, auditSvc, minioClient, cfg.MinIO.Bucket, db),
	}
}
