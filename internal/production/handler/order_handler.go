package handler

import (
	"github.com/bitfantasy/printops/internal/production/service"
	"github.com/gin-gonic/gin"
)

// OrderHandler 订单生产状态
type OrderHandler struct {
	svc    *service.OrderService
	ingest *service.IngestService
}

func NewOrderHandler(svc *service.OrderService, ingest *service.IngestService) *OrderHandler {
	return &OrderHandler{svc: svc, ingest: ingest}
}

// SyncOrders 市场订单同步
// POST /api/v1/production/orders/sync
func (h *OrderHandler) SyncOrders(c *gin.Context) {
	var req service.SyncBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.ingest.UpsertBatch(c.Request.Context(), req.Orders)
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, result)
}

// GetOrder 订单详情
// GET /api/v1/production/orders/:id
func (h *OrderHandler) GetOrder(c *gin.Context) {
	order, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, order)
}

// UpdateStatus 状态迁移，同状态时只更新备注
// POST /api/v1/production/orders/:id/status
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req service.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.svc.Transition(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, order)
}

// UpdatePriority 设置优先级，或按 delta 调整
// PUT /api/v1/production/orders/:id/priority
func (h *OrderHandler) UpdatePriority(c *gin.Context) {
	var req service.SetPriorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.svc.ApplyPriority(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, order)
}

// UpdatePrintTime 设置预计打印时长（分钟）
// PUT /api/v1/production/orders/:id/print-time
func (h *OrderHandler) UpdatePrintTime(c *gin.Context) {
	var req service.SetEstimatedTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	order, err := h.svc.SetEstimatedTime(c.Request.Context(), c.Param("id"), *req.Minutes)
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, order)
}
