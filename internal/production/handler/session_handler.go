package handler

import (
	"github.com/bitfantasy/printops/internal/production/service"
	"github.com/gin-gonic/gin"
)

// SessionHandler 打印批次
type SessionHandler struct {
	svc *service.SessionService
}

func NewSessionHandler(svc *service.SessionService) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// ListSessions 批次列表
// GET /api/v1/production/sessions?status=ACTIVE
func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions, err := h.svc.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, gin.H{"items": sessions})
}

// CreateSession 创建批次
// POST /api/v1/production/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req service.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "参数错误: "+err.Error())
		return
	}

	detail, err := h.svc.Create(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	Created(c, detail)
}

// GetSession 批次详情（含成员订单）
// GET /api/v1/production/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	detail, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, detail)
}

// RecomputeSession 重新汇总
// POST /api/v1/production/sessions/:id/recompute
func (h *SessionHandler) RecomputeSession(c *gin.Context) {
	detail, err := h.svc.Recompute(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, detail)
}

// DeleteSession 删除未开始的批次
// DELETE /api/v1/production/sessions/:id
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	Success(c, nil)
}
