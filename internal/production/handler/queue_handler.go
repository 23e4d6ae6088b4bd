package handler

import (
	"github.com/bitfantasy/printops/internal/production/service"
	"github.com/gin-gonic/gin"
)

// QueueHandler 生产队列
type QueueHandler struct {
	svc *service.QueueService
}

func NewQueueHandler(svc *service.QueueService) *QueueHandler {
	return &QueueHandler{svc: svc}
}

// GetQueue 队列及汇总
// GET /api/v1/production/queue?status=QUEUED&priority=1
func (h *QueueHandler) GetQueue(c *gin.Context) {
	filter, err := service.ParseQueueFilter(c.Query("status"), c.Query("priority"))
	if err != nil {
		fail(c, err)
		return
	}

	view, err := h.svc.Snapshot(c.Request.Context(), filter)
	if err != nil {
		fail(c, err)
		return
	}
	Success(c, view)
}
