package handler

import (
	"github.com/bitfantasy/nimo-track/internal/track/service"
	"github.com/gin-gonic/gin"
)

// ShareHandler 客户只读链接处理器。该入口无需认证，
// 令牌本身即凭证，视图只含进度字段。
type ShareHandler struct {
	svc *service.AccountService
}

func NewShareHandler(svc *service.AccountService) *ShareHandler {
	return &ShareHandler{svc: svc}
}

// Resolve 按令牌解析客户视图
// GET /api/v1/share/:token
func (h *ShareHandler) Resolve(c *gin.Context) {
	view, err := h.svc.ResolveShareToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, view)
}
