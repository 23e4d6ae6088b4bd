package handler

import (
	"net/http"

	"github.com/bitfantasy/printops/internal/production/repository"
	"github.com/bitfantasy/printops/internal/production/service"
	"github.com/gin-gonic/gin"
)

// ReportHandler Excel 导出
type ReportHandler struct {
	svc *service.ReportService
}

func NewReportHandler(svc *service.ReportService) *ReportHandler {
	return &ReportHandler{svc: svc}
}

// ExportQueue GET /api/v1/production/reports/queue.xlsx?status=&priority=
func (h *ReportHandler) ExportQueue(c *gin.Context) {
	filter, err := service.ParseQueueFilter(c.Query("status"), c.Query("priority"))
	if err != nil {
		fail(c, err)
		return
	}

	report, err := h.svc.ExportQueue(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	writeReport(c, report)
}

// ExportUsage GET /api/v1/production/reports/usage.xlsx?filament_id=&order_id=&limit=
func (h *ReportHandler) ExportUsage(c *gin.Context) {
	report, err := h.svc.ExportUsage(c.Request.Context(), repository.UsageListParams{
		FilamentID: c.Query("filament_id"),
		OrderID:    c.Query("order_id"),
		Limit:      queryInt(c, "limit", 0),
	})
	if err != nil {
		fail(c, err)
		return
	}
	writeReport(c, report)
}

func writeReport(c *gin.Context, r *service.Report) {
	c.Header("Content-Disposition", "attachment; filename=\""+r.Filename+"\"")
	c.Header("Content-Transfer-Encoding", "binary")
	if r.ArchivePath != "" {
		c.Header("X-Archive-Path", r.ArchivePath)
	}
	c.Data(http.StatusOK, r.ContentType, r.Data)
}
