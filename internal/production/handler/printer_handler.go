package handler

import (
	"github.com/bitfantasy/printops/internal/production/service"
	"github.com/gin-gonic/gin"
)

// PrinterHandler 打印机健康上报
type PrinterHandler struct {
	svc *service.IngestService
}

func NewPrinterHandler(svc *service.IngestService) *PrinterHandler {
	return &PrinterHandler{svc: svc}
}

// ListPrinters 打印机列表
// GET /api/v1/production/printers
func (h *PrinterHandler) ListPrinters(c *gin.Context) {
	items, err := h.svc.ListPrinters(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// ReportHealth 上报打印机状态
// PUT /api/v1/production/printers/:id/health
func (h *PrinterHandler) ReportHealth(c *gin.Context) {
	var req service.PrinterHealthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	p, err := h.svc.ReportPrinterHealth(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, p)
}
