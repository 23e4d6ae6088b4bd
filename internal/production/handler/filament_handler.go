package handler

import (
	"strconv"

	"github.com/bitfantasy/printops/internal/production/repository"
	"github.com/bitfantasy/printops/internal/production/service"
	"github.com/gin-gonic/gin"
)

// FilamentHandler 耗材库存
type FilamentHandler struct {
	svc *service.InventoryService
}

func NewFilamentHandler(svc *service.InventoryService) *FilamentHandler {
	return &FilamentHandler{svc: svc}
}

// ListFilaments 耗材列表
// GET /api/v1/production/filaments?low_stock=true
func (h *FilamentHandler) ListFilaments(c *gin.Context) {
	lowStock, _ := strconv.ParseBool(c.Query("low_stock"))
	items, err := h.svc.List(c.Request.Context(), repository.FilamentListParams{LowStock: lowStock})
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// CreateFilament 入库
// POST /api/v1/production/filaments
func (h *FilamentHandler) CreateFilament(c *gin.Context) {
	var req service.CreateFilamentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	f, err := h.svc.Create(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	Created(c, f)
}

// GetFilament 耗材详情
// GET /api/v1/production/filaments/:id
func (h *FilamentHandler) GetFilament(c *gin.Context) {
	f, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, f)
}

// RecordUsage 记录消耗
// POST /api/v1/production/filaments/:id/usage
func (h *FilamentHandler) RecordUsage(c *gin.Context) {
	var req service.RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}
	req.FilamentID = c.Param("id")

	result, err := h.svc.RecordUsage(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	Created(c, result)
}

// ListUsage 单个耗材的消耗流水
// GET /api/v1/production/filaments/:id/usage?limit=50
func (h *FilamentHandler) ListUsage(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.svc.Get(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}

	items, err := h.svc.ListUsage(c.Request.Context(), repository.UsageListParams{
		FilamentID: id,
		Limit:      queryInt(c, "limit", 50),
	})
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// ListAllUsage 消耗流水，可按订单过滤
// GET /api/v1/production/usage?order_id=xxx&limit=50
func (h *FilamentHandler) ListAllUsage(c *gin.Context) {
	items, err := h.svc.ListUsage(c.Request.Context(), repository.UsageListParams{
		OrderID: c.Query("order_id"),
		Limit:   queryInt(c, "limit", 50),
	})
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, gin.H{"items": items})
}

// AdjustStock 盘点调整
// POST /api/v1/production/filaments/:id/adjust
func (h *FilamentHandler) AdjustStock(c *gin.Context) {
	var req service.AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	f, err := h.svc.AdjustStock(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, f)
}
