package handler

import (
	"strconv"

	"github.com/bitfantasy/printops/internal/middleware"
	"github.com/bitfantasy/printops/internal/production/service"
	"github.com/bitfantasy/printops/internal/production/sse"
	"github.com/gin-gonic/gin"
)

// Handlers 生产处理器集合
type Handlers struct {
	Queue    *QueueHandler
	Order    *OrderHandler
	Session  *SessionHandler
	Filament *FilamentHandler
	Printer  *PrinterHandler
	Alert    *AlertHandler
	Report   *ReportHandler
	SSE      *SSEHandler
}

// NewHandlers 创建生产处理器集合
func NewHandlers(svc *service.Services, hub *sse.Hub) *Handlers {
	return &Handlers{
		Queue:    NewQueueHandler(svc.Queue),
		Order:    NewOrderHandler(svc.Orders, svc.Ingest),
		Session:  NewSessionHandler(svc.Sessions),
		Filament: NewFilamentHandler(svc.Inventory),
		Printer:  NewPrinterHandler(svc.Ingest),
		Alert:    NewAlertHandler(svc.Alerts),
		Report:   NewReportHandler(svc.Reports),
		SSE:      NewSSEHandler(hub),
	}
}

// RegisterRoutes 挂载 /production 路由，调用方负责鉴权中间件
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup) {
	prod := api.Group("/production")
	{
		prod.GET("/queue", h.Queue.GetQueue)

		prod.POST("/orders/sync", middleware.RequirePermission(PermSync), h.Order.SyncOrders)
		prod.GET("/orders/:id", h.Order.GetOrder)
		prod.POST("/orders/:id/status", h.Order.UpdateStatus)
		prod.PUT("/orders/:id/priority", h.Order.UpdatePriority)
		prod.PUT("/orders/:id/print-time", h.Order.UpdatePrintTime)

		prod.GET("/sessions", h.Session.ListSessions)
		prod.POST("/sessions", h.Session.CreateSession)
		prod.GET("/sessions/:id", h.Session.GetSession)
		prod.POST("/sessions/:id/recompute", h.Session.RecomputeSession)
		prod.DELETE("/sessions/:id", h.Session.DeleteSession)

		prod.GET("/filaments", h.Filament.ListFilaments)
		prod.POST("/filaments", h.Filament.CreateFilament)
		prod.GET("/filaments/:id", h.Filament.GetFilament)
		prod.POST("/filaments/:id/usage", h.Filament.RecordUsage)
		prod.GET("/filaments/:id/usage", h.Filament.ListUsage)
		prod.POST("/filaments/:id/adjust", h.Filament.AdjustStock)
		prod.GET("/usage", h.Filament.ListAllUsage)

		prod.GET("/printers", h.Printer.ListPrinters)
		prod.PUT("/printers/:id/health", middleware.RequirePermission(PermSync), h.Printer.ReportHealth)

		alerts := prod.Group("/alerts")
		{
			alerts.GET("/settings", h.Alert.GetSettings)
			alerts.PUT("/settings", middleware.RequireRole(RoleManager), h.Alert.UpdateSettings)
			alerts.GET("/preview", h.Alert.Preview)
			alerts.POST("/trigger", h.Alert.Trigger)
			alerts.GET("/deliveries", h.Alert.ListDeliveries)
		}

		prod.GET("/reports/queue.xlsx", h.Report.ExportQueue)
		prod.GET("/reports/usage.xlsx", h.Report.ExportUsage)

		prod.GET("/events", h.SSE.Stream)
	}
}

// 权限与角色
const (
	PermSync    = "production:sync"
	RoleManager = "production_manager"
)

// === 响应辅助函数 ===

type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
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
	Error(c, service.CodeBadRequest, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, 40400, message)
}

func InternalError(c *gin.Context, message string) {
	Error(c, 50000, message)
}

// fail 按业务错误映射响应码
func fail(c *gin.Context, err error) {
	Error(c, service.ErrorCode(err), err.Error())
}

func GetUserID(c *gin.Context) string {
	userID, _ := c.Get("user_id")
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// queryInt 读取整数查询参数，缺省或非法时返回 def
func queryInt(c *gin.Context, key string, def int) int {
	if v := c.Query(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
