package handler

import (
	"github.com/bitfantasy/nimo-track/internal/track/service"
	"github.com/gin-gonic/gin"
)

// AuditHandler 审计日志处理器
type AuditHandler struct {
	svc *service.AuditService
}

func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// History 实体审计历史。订单ID会同时命中行项的记录（父ID聚合），
// 即一次查询拿到订单及其全部行项的完整变更时间线。
// GET /api/v1/audit/:entityId
func (h *AuditHandler) History(c *gin.Context) {
	page, pageSize := GetPagination(c)
	logs, total, err := h.svc.History(c.Request.Context(), c.Param("entityId"), page, pageSize)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ListResponse{
		Items: logs,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages(total, pageSize),
		},
	})
}

// List 管理端全量日志查询
// GET /api/v1/audit
func (h *AuditHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"entity_type": c.Query("entity_type"),
		"action":      c.Query("action"),
		"user_id":     c.Query("user_id"),
	}

	logs, total, err := h.svc.List(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ListResponse{
		Items: logs,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages(total, pageSize),
		},
	})
}
