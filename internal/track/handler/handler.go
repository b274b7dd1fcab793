package handler

import (
	"strconv"

	"github.com/bitfantasy/nimo-track/internal/track/service"
	"github.com/gin-gonic/gin"
)

// Handlers 订单追踪处理器集合
type Handlers struct {
	Account  *AccountHandler
	Order    *OrderHandler
	Stage    *StageHandler
	Audit    *AuditHandler
	Config   *ConfigHandler
	Share    *ShareHandler
	Document *DocumentHandler
}

// NewHandlers 创建处理器集合
func NewHandlers(services *service.Services) *Handlers {
	return &Handlers{
		Account:  NewAccountHandler(services.Account),
		Order:    NewOrderHandler(services.Order),
		Stage:    NewStageHandler(services.Stage),
		Audit:    NewAuditHandler(services.Audit),
		Config:   NewConfigHandler(services.Risk),
		Share:    NewShareHandler(services.Account),
		Document: NewDocumentHandler(services.Document),
	}
}

// === 响应辅助函数 ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type ListResponse struct {
	Items      interface{} `json:"items"`
	Pagination *Pagination `json:"pagination"`
}

type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

func Success(c *gin.Context, data interface{}) {
	c.JSON(200, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Created(c *gin.Context, data interface{}) {
	c.JSON(201, Response{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

func Error(c *gin.Context, code int, message string) {
	statusCode := code / 100
	if statusCode < 100 || statusCode > 599 {
		statusCode = 500
	}
	c.JSON(statusCode, Response{
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, 40000, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func Forbidden(c *gin.Context, message string) {
	Error(c, 40300, message)
}

func Conflict(c *gin.Context, message string) {
	Error(c, 40900, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// HandleError 业务错误映射为HTTP响应。
// validation→400，policy→403，not found→404，conflict→409，其余→500。
func HandleError(c *gin.Context, err error) {
	if e := service.AsError(err); e != nil {
		switch e.Kind {
		case service.KindValidation:
			BadRequest(c, e.Message)
		case service.KindPolicy:
			Forbidden(c, e.Message)
		case service.KindNotFound:
			NotFound(c, e.Message)
		case service.KindConflict:
			Conflict(c, e.Message)
		default:
			InternalError(c, e.Message)
		}
		return
	}
	InternalError(c, err.Error())
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetActor 从认证上下文提取操作人
func GetActor(c *gin.Context) service.Actor {
	actor := service.Actor{ID: GetUserID(c)}
	if name, ok := c.Get("user_name"); ok {
		actor.Name, _ = name.(string)
	}
	if roles, ok := c.Get("roles"); ok {
		actor.Roles, _ = roles.([]string)
	}
	return actor
}

func GetPagination(c *gin.Context) (page, pageSize int) {
	page = 1
	pageSize = 20

	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}

	if ps := c.Query("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	return page, pageSize
}

func totalPages(total int64, pageSize int) int {
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
