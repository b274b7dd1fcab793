package handler

import (
	"github.com/bitfantasy/nimo-track/internal/track/service"
	"github.com/gin-gonic/gin"
)

// ConfigHandler 风险阈值与季节性缓冲配置处理器
type ConfigHandler struct {
	svc *service.RiskService
}

func NewConfigHandler(svc *service.RiskService) *ConfigHandler {
	return &ConfigHandler{svc: svc}
}

// ListThresholds 全部阶段的生效阈值
// GET /api/v1/config/thresholds
func (h *ConfigHandler) ListThresholds(c *gin.Context) {
	views, err := h.svc.ListThresholds(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, views)
}

type thresholdRequest struct {
	WarningDays  int    `json:"warning_days" binding:"required"`
	CriticalDays int    `json:"critical_days" binding:"required"`
	Description  string `json:"description"`
}

// UpdateThreshold 更新阶段阈值（仅管理员）
// PUT /api/v1/config/thresholds/:stage
func (h *ConfigHandler) UpdateThreshold(c *gin.Context) {
	var req thresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	t, err := h.svc.UpdateThreshold(c.Request.Context(), c.Param("stage"), req.WarningDays, req.CriticalDays, req.Description, GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, t)
}

// GetSeason 季节性缓冲配置
// GET /api/v1/config/season
func (h *ConfigHandler) GetSeason(c *gin.Context) {
	Success(c, h.svc.GetSeason(c.Request.Context()))
}

// UpdateSeason 更新季节性缓冲配置（仅管理员）
// PUT /api/v1/config/season
func (h *ConfigHandler) UpdateSeason(c *gin.Context) {
	var req service.SeasonConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	if err := h.svc.UpdateSeason(c.Request.Context(), &req, GetActor(c)); err != nil {
		HandleError(c, err)
		return
	}
	Success(c, &req)
}

// AtRisk 风险看板：warning/critical订单，critical在前
// GET /api/v1/risk/orders
func (h *ConfigHandler) AtRisk(c *gin.Context) {
	rows, err := h.svc.ListAtRisk(c.Request.Context())
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, rows)
}
