package handler

import (
	"github.com/bitfantasy/nimo-track/internal/track/service"
	"github.com/gin-gonic/gin"
)

// AccountHandler 客户账户处理器
type AccountHandler struct {
	svc *service.AccountService
}

func NewAccountHandler(svc *service.AccountService) *AccountHandler {
	return &AccountHandler{svc: svc}
}

// Create 创建账户
// POST /api/v1/accounts
func (h *AccountHandler) Create(c *gin.Context) {
	var req service.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	account, err := h.svc.CreateAccount(c.Request.Context(), &req, GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Created(c, account)
}

// List 分页查询账户
// GET /api/v1/accounts
func (h *AccountHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	accounts, total, err := h.svc.ListAccounts(c.Request.Context(), page, pageSize, c.Query("search"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, ListResponse{
		Items: accounts,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages(total, pageSize),
		},
	})
}

// Get 账户详情
// GET /api/v1/accounts/:id
func (h *AccountHandler) Get(c *gin.Context) {
	account, err := h.svc.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, account)
}

// Update 更新账户基本信息
// PUT /api/v1/accounts/:id
func (h *AccountHandler) Update(c *gin.Context) {
	var req service.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request: "+err.Error())
		return
	}

	account, err := h.svc.UpdateAccount(c.Request.Context(), c.Param("id"), &req, GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, account)
}

// RotateToken 轮换分享令牌，旧链接立即失效
// POST /api/v1/accounts/:id/rotate-token
func (h *AccountHandler) RotateToken(c *gin.Context) {
	account, err := h.svc.RotateShareToken(c.Request.Context(), c.Param("id"), GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, account)
}
