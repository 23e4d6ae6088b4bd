package events

import (
	"context"
	"errors"
	"time"
)

// 生产事件类型
const (
	OrderSynced          = "order.synced"
	OrderStatusChanged   = "order.status_changed"
	OrderPriorityChanged = "order.priority_changed"
	OrderEstimateChanged = "order.estimate_changed"
	FilamentCreated      = "filament.created"
	FilamentUsage        = "filament.usage_recorded"
	FilamentAdjusted     = "filament.adjusted"
	FilamentLowStock     = "filament.low_stock"
	SessionCreated       = "session.created"
	SessionUpdated       = "session.updated"
	SessionDeleted       = "session.deleted"
	PrinterHealth        = "printer.health"
	AlertTriggered       = "alert.triggered"
)

// Event 已提交的生产变更
type Event struct {
	Type     string    `json:"type"`
	EntityID string    `json:"entity_id"`
	Data     any       `json:"data,omitempty"`
	At       time.Time `json:"at"`
}

// Publisher 事件发布。只在事务提交后调用
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Fanout 依次发布到多个 Publisher，返回合并后的错误
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, events ...Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
