package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/bitfantasy/nimo-track/internal/track/entity"
	"github.com/bitfantasy/nimo-track/internal/track/repository"
	"github.com/minio/minio-go/v7"
	"gorm.io/gorm"
)

// DocumentService 订单文档服务：客户资料（合同扫描件、装箱单等）存对象存储，
// 订单上只保留对象键。文档链接属于永久可编辑档，锁定不影响。
type DocumentService struct {
	orderRepo *repository.OrderRepository
	audit     *AuditService
	client    *minio.Client
	bucket    string
	db        *gorm.DB
}

func NewDocumentService(orderRepo *repository.OrderRepository, audit *AuditService, client *minio.Client, bucket string, db *gorm.DB) *DocumentService {
	return &DocumentService{orderRepo: orderRepo, audit: audit, client: client, bucket: bucket, db: db}
}

// Upload 上传订单文档并更新订单的文档键
func (s *DocumentService) Upload(ctx context.Context, orderID, fileName string, size int64, reader io.Reader, contentType string, actor Actor) (*entity.Order, error) {
	if s.client == nil {
		return nil, policyErr("document storage is not configured")
	}
	if fileName == "" {
		return nil, validationErr("file name cannot be empty")
	}

	objectKey := fmt.Sprintf("orders/%s/%d_%s", orderID, time.Now().UnixNano(), path.Base(fileName))

	var result *entity.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.LockByID(ctx, tx, orderID)
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundErr("order %s not found", orderID)
		}
		if err != nil {
			return err
		}

		if _, err := s.client.PutObject(ctx, s.bucket, objectKey, reader, size, minio.PutObjectOptions{
			ContentType: contentType,
		}); err != nil {
			return fmt.Errorf("upload document: %w", err)
		}

		change, _ := DiffField("document_url", order.DocumentURL, objectKey)
		order.DocumentURL = objectKey
		order.UpdatedAt = time.Now()
		if err := s.orderRepo.Save(ctx, tx, order); err != nil {
			return err
		}
		if err := s.audit.Record(ctx, tx, entity.EntityTypeOrder, order.ID, "", entity.ActionUpdate,
			entity.FieldChanges{change}, nil, actor); err != nil {
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

// Download 下载订单当前文档
func (s *DocumentService) Download(ctx context.Context, orderID string) (io.ReadCloser, string, error) {
	if s.client == nil {
		return nil, "", policyErr("document storage is not configured")
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, "", notFoundErr("order %s not found", orderID)
	}
	if err != nil {
		return nil, "", err
	}
	if order.DocumentURL == "" {
		return nil, "", notFoundErr("order %s has no document", orderID)
	}

	obj, err := s.client.GetObject(ctx, s.bucket, order.DocumentURL, minio.GetObjectOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("fetch document: %w", err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, "", notFoundErr("document %s not found in storage", order.DocumentURL)
	}
	return obj, path.Base(order.DocumentURL), nil
}
