package handler

import (
	"github.com/bitfantasy/nimo-track/internal/track/service"
	"github.com/gin-gonic/gin"
)

// OrderHandler 订单处理器
type OrderHandler struct {
	svc *service.OrderService
}

func NewOrderHandler(svc *service.OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

// Create 创建订单
// POST /api/v1/orders
func (h *OrderHandler) Create(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	order, err := h.svc.CreateOrder(c.Request.Context(), &req, GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, order)
}

// List 分页查询订单
// GET /api/v1/orders
func (h *OrderHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filters := map[string]string{
		"account_id":  c.Query("account_id"),
		"stage":       c.Query("stage"),
		"locked":      c.Query("locked"),
		"salesperson": c.Query("salesperson"),
	}

	orders, total, err := h.svc.ListOrders(c.Request.Context(), page, pageSize, filters)
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ListResponse{
		Items: orders,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages(total, pageSize),
		},
	})
}

// Get 订单详情（含行项、阶段事件、风险评估）
// GET /api/v1/orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	detail, err := h.svc.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, detail)
}

// Update 编辑订单字段（锁定门禁在服务层裁决）
// PATCH /api/v1/orders/:id
func (h *OrderHandler) Update(c *gin.Context) {
	var fields map[string]interface{}
	if err := c.ShouldBindJSON(&fields); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	if len(fields) == 0 {
		BadRequest(c, "No fields to update")
		return
	}

	order, changed, err := h.svc.EditOrderFields(c.Request.Context(), c.Param("id"), fields, GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"order": order, "changed_fields": changed})
}

// Delete 删除订单
// DELETE /api/v1/orders/:id
func (h *OrderHandler) Delete(c *gin.Context) {
	if err := h.svc.DeleteOrder(c.Request.Context(), c.Param("id"), GetActor(c)); err != nil {
		HandleError(c, err)
		return
	}
	Success(c, nil)
}

type lockRequest struct {
	Reason string `json:"reason"`
}

// Lock 锁定订单
// POST /api/v1/orders/:id/lock
func (h *OrderHandler) Lock(c *gin.Context) {
	var req lockRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	order, err := h.svc.LockOrder(c.Request.Context(), c.Param("id"), req.Reason, GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, order)
}

// Unlock 解锁订单（仅管理员，必须给出理由）
// POST /api/v1/orders/:id/unlock
func (h *OrderHandler) Unlock(c *gin.Context) {
	var req lockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	order, err := h.svc.UnlockOrder(c.Request.Context(), c.Param("id"), req.Reason, GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, order)
}

// AddItem 追加行项
// POST /api/v1/orders/:id/items
func (h *OrderHandler) AddItem(c *gin.Context) {
	var req service.CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	item, err := h.svc.AddItem(c.Request.Context(), c.Param("id"), &req, GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, item)
}

// UpdateItem 编辑行项字段
// PATCH /api/v1/orders/:id/items/:itemId
func (h *OrderHandler) UpdateItem(c *gin.Context) {
	var fields map[string]interface{}
	if err := c.ShouldBindJSON(&fields); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}
	if len(fields) == 0 {
		BadRequest(c, "No fields to update")
		return
	}

	item, changed, err := h.svc.EditItemFields(c.Request.Context(), c.Param("id"), c.Param("itemId"), fields, GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, gin.H{"item": item, "changed_fields": changed})
}

// DeleteItem 删除行项
// DELETE /api/v1/orders/:id/items/:itemId
func (h *OrderHandler) DeleteItem(c *gin.Context) {
	if err := h.svc.DeleteItem(c.Request.Context(), c.Param("id"), c.Param("itemId"), GetActor(c)); err != nil {
		HandleError(c, err)
		return
	}
	Success(c, nil)
}

// ArchiveItem 归档行项
// POST /api/v1/orders/:id/items/:itemId/archive
func (h *OrderHandler) ArchiveItem(c *gin.Context) {
	item, err := h.svc.ArchiveItem(c.Request.Context(), c.Param("id"), c.Param("itemId"), GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, item)
}

// RestoreItem 恢复行项
// POST /api/v1/orders/:id/items/:itemId/restore
func (h *OrderHandler) RestoreItem(c *gin.Context) {
	item, err := h.svc.RestoreItem(c.Request.Context(), c.Param("id"), c.Param("itemId"), GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, item)
}

// ImportItems Excel批量导入行项
// POST /api/v1/orders/:id/items/import
func (h *OrderHandler) ImportItems(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "Missing upload file")
		return
	}
	src, err := file.Open()
	if err != nil {
		BadRequest(c, "Cannot open upload file: "+err.Error())
		return
	}
	defer src.Close()

	items, err := h.svc.ImportItems(c.Request.Context(), c.Param("id"), file.Filename, src, GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, gin.H{"imported": len(items), "items": items})
}

// ItemTemplate 下载行项导入模板
// GET /api/v1/items/template
func (h *OrderHandler) ItemTemplate(c *gin.Context) {
	f, err := service.BuildItemTemplate()
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", `attachment; filename="item_import_template.xlsx"`)
	if err := f.Write(c.Writer); err != nil {
		InternalError(c, err.Error())
	}
}
