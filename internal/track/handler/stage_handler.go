package handler

import (
	"github.com/bitfantasy/nimo-track/internal/track/entity"
	"github.com/bitfantasy/nimo-track/internal/track/service"
	"github.com/gin-gonic/gin"
)

// StageHandler 阶段推进处理器
type StageHandler struct {
	svc *service.StageService
}

func NewStageHandler(svc *service.StageService) *StageHandler {
	return &StageHandler{svc: svc}
}

// ListStages 管线阶段定义（顺序即管线顺序）
// GET /api/v1/stages
func (h *StageHandler) ListStages(c *gin.Context) {
	Success(c, entity.Stages)
}

// OrderEvents 订单阶段时间线
// GET /api/v1/orders/:id/events
func (h *StageHandler) OrderEvents(c *gin.Context) {
	events, err := h.svc.OrderEvents(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, events)
}

// AdvanceOrder 推进订单阶段
// POST /api/v1/orders/:id/stage
func (h *StageHandler) AdvanceOrder(c *gin.Context) {
	var req service.StageChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	order, err := h.svc.AdvanceOrderStage(c.Request.Context(), c.Param("id"), &req, GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, order)
}

// AdvanceItem 推进行项阶段
// POST /api/v1/orders/:id/items/:itemId/stage
func (h *StageHandler) AdvanceItem(c *gin.Context) {
	var req service.StageChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	item, err := h.svc.AdvanceItemStage(c.Request.Context(), c.Param("id"), c.Param("itemId"), &req, GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, item)
}
