package handler

import (
	"strconv"

	"github.com/bitfantasy/printops/internal/production/service"
	"github.com/gin-gonic/gin"
)

// AlertHandler 库存与打印机告警
type AlertHandler struct {
	svc *service.AlertService
}

func NewAlertHandler(svc *service.AlertService) *AlertHandler {
	return &AlertHandler{svc: svc}
}

// GetSettings 告警渠道配置
// GET /api/v1/production/alerts/settings
func (h *AlertHandler) GetSettings(c *gin.Context) {
	settings, err := h.svc.GetSettings(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, settings)
}

// UpdateSettings 更新告警渠道，未提供的字段保持不变
// PUT /api/v1/production/alerts/settings
func (h *AlertHandler) UpdateSettings(c *gin.Context) {
	var req service.UpdateAlertSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	settings, err := h.svc.UpdateSettings(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, settings)
}

// Preview 当前会触发的告警内容，不发送
// GET /api/v1/production/alerts/preview
func (h *AlertHandler) Preview(c *gin.Context) {
	payload, err := h.svc.Preview(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, payload)
}

// Trigger 手动触发告警，默认忽略冷却
// POST /api/v1/production/alerts/trigger?force=false
func (h *AlertHandler) Trigger(c *gin.Context) {
	force := true
	if v := c.Query("force"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			force = b
		}
	}

	res, err := h.svc.Trigger(c.Request.Context(), force)
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, res)
}

// ListDeliveries 投递记录
// GET /api/v1/production/alerts/deliveries?limit=20
func (h *AlertHandler) ListDeliveries(c *gin.Context) {
	items, err := h.svc.ListDeliveries(c.Request.Context(), queryInt(c, "limit", 20))
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}
