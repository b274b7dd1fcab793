package handler

import (
	"io"

	"github.com/bitfantasy/nimo-track/internal/track/service"
	"github.com/gin-gonic/gin"
)

// DocumentHandler 订单文档处理器
type DocumentHandler struct {
	svc *service.DocumentService
}

func NewDocumentHandler(svc *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// Upload 上传订单文档
// POST /api/v1/orders/:id/document
func (h *DocumentHandler) Upload(c *gin.Context) {
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

	contentType := file.Header.Get("Content-Type")
	order, err := h.svc.Upload(c.Request.Context(), c.Param("id"), file.Filename, file.Size, src, contentType, GetActor(c))
	if err != nil {
		HandleError(c, err)
		return
	}
	Success(c, order)
}

// Download 下载订单当前文档
// GET /api/v1/orders/:id/document
func (h *DocumentHandler) Download(c *gin.Context) {
	reader, name, err := h.svc.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleError(c, err)
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Header("Content-Type", "application/octet-stream")
	if _, err := io.Copy(c.Writer, reader); err != nil {
		// 响应已开始写出，只能中断
		c.Abort()
	}
}
