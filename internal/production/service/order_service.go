package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bitfantasy/printops/internal/production/entity"
	"github.com/bitfantasy/printops/internal/production/repository"
	"github.com/bitfantasy/printops/internal/shared/events"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderService 订单生产状态
type OrderService struct {
	*base
	inventory *InventoryService
}

// TransitionRequest 状态变更。Consumption 只允许在进入 PRINTED 时携带
type TransitionRequest struct {
	Status          string              `json:"status" binding:"required"`
	Notes           *string             `json:"notes"`
	ActualPrintTime *int                `json:"actual_print_time"`
	Consumption     *ConsumptionRequest `json:"consumption"`
}

type ConsumptionRequest struct {
	FilamentID  string          `json:"filament_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Description *string         `json:"description"`
}

// SetPriorityRequest Priority 为绝对值，Delta 为相对调整，二选一
type SetPriorityRequest struct {
	Priority *int `json:"priority"`
	Delta    *int `json:"delta"`
}

type SetEstimatedTimeRequest struct {
	Minutes *int `json:"minutes" binding:"required"`
}

// StatusChange order.status_changed 事件内容
type StatusChange struct {
	From  string        `json:"from"`
	To    string        `json:"to"`
	Order *entity.Order `json:"order"`
}

func (s *OrderService) Get(ctx context.Context, id string) (*entity.Order, error) {
	o, err := s.store.Orders().FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	return o, nil
}

// Transition 按生命周期图变更状态。同状态请求只在备注变化时作为备注更新，无其他副作用
func (s *OrderService) Transition(ctx context.Context, id string, req *TransitionRequest) (*entity.Order, error) {
	if !entity.ValidStatus(req.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, req.Status)
	}
	if req.ActualPrintTime != nil && *req.ActualPrintTime < 0 {
		return nil, fmt.Errorf("%w: actual print time must not be negative", ErrInvalidAmount)
	}
	if req.Consumption != nil && req.Status != entity.StatusPrinted {
		return nil, fmt.Errorf("%w: filament consumption is recorded when entering %s", ErrInvalidTransition, entity.StatusPrinted)
	}

	var (
		order   *entity.Order
		from    string
		session *entity.PrintSession
		touched bool
		usage   *UsageResult
		wasLow  bool
	)
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		order, err = tx.Orders().FindByID(ctx, id)
		if err != nil {
			return notFound(err, "order", id)
		}
		from = order.ProductionStatus

		if from == req.Status {
			if req.Notes == nil || sameNotes(order.PrintNotes, req.Notes) {
				return fmt.Errorf("%w: order %s is already %s", ErrInvalidTransition, id, from)
			}
			order.PrintNotes = req.Notes
			return tx.Orders().Update(ctx, order)
		}
		if !entity.CanTransition(from, req.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, req.Status)
		}
		if err := s.checkRetry(ctx, tx, order, req.Status); err != nil {
			return err
		}

		if req.Consumption != nil {
			usage, wasLow, err = s.inventory.consume(ctx, tx, req.Consumption.FilamentID, req.Consumption.Amount, order, req.Consumption.Description)
			if err != nil {
				return err
			}
		}

		order.Advance(req.Status, s.now(), req.ActualPrintTime)
		if req.Notes != nil {
			order.PrintNotes = req.Notes
		}
		if err := tx.Orders().Update(ctx, order); err != nil {
			return fmt.Errorf("更新订单状态失败: %w", err)
		}

		session, touched, err = s.recomputeFor(ctx, tx, order)
		return err
	})
	if err != nil {
		s.logger.Warn("order transition rejected",
			zap.String("order_id", id),
			zap.String("to", req.Status),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("order status changed",
		zap.String("order_id", order.ID),
		zap.String("from", from),
		zap.String("to", order.ProductionStatus),
		zap.Int("failures", order.PrintFailuresCount),
	)
	evs := []events.Event{s.event(events.OrderStatusChanged, order.ID, StatusChange{From: from, To: order.ProductionStatus, Order: order})}
	if usage != nil {
		evs = append(evs, s.inventory.usageEvents(usage, wasLow)...)
	}
	if touched {
		evs = append(evs, s.event(events.SessionUpdated, session.ID, session))
	}
	s.publish(ctx, evs...)
	return order, nil
}

// checkRetry terminal 策略下失败订单已计入完成的批次，不能再重打
func (s *OrderService) checkRetry(ctx context.Context, tx repository.Store, order *entity.Order, to string) error {
	if s.policy != entity.FailedIsTerminal || order.ProductionStatus != entity.StatusFailed ||
		to != entity.StatusPrinting || order.PrintSessionID == nil {
		return nil
	}
	sess, err := tx.Sessions().FindByID(ctx, *order.PrintSessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	members, err := tx.Orders().FindBySessionID(ctx, sess.ID)
	if err != nil {
		return err
	}
	sess.Rollup(members, s.policy, s.now())
	if sess.Status == entity.SessionCompleted {
		return fmt.Errorf("%w: order %s failed in completed session %s", ErrInvalidTransition, order.ID, sess.ID)
	}
	return nil
}

func sameNotes(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// SetPriority 超出 [1,5] 的值静默截断
func (s *OrderService) SetPriority(ctx context.Context, id string, priority int) (*entity.Order, error) {
	return s.updatePriority(ctx, id, func(int) int { return priority })
}

// NudgePriority 相对调整优先级，结果截断到 [1,5]
func (s *OrderService) NudgePriority(ctx context.Context, id string, delta int) (*entity.Order, error) {
	return s.updatePriority(ctx, id, func(cur int) int { return cur + delta })
}

// ApplyPriority 按请求选择绝对或相对调整
func (s *OrderService) ApplyPriority(ctx context.Context, id string, req *SetPriorityRequest) (*entity.Order, error) {
	switch {
	case req.Priority != nil:
		return s.SetPriority(ctx, id, *req.Priority)
	case req.Delta != nil:
		return s.NudgePriority(ctx, id, *req.Delta)
	}
	return nil, fmt.Errorf("%w: priority or delta is required", ErrInvalidPriority)
}

func (s *OrderService) updatePriority(ctx context.Context, id string, next func(cur int) int) (*entity.Order, error) {
	var order *entity.Order
	var before int
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		order, err = tx.Orders().FindByID(ctx, id)
		if err != nil {
			return notFound(err, "order", id)
		}
		before = order.Priority
		order.Priority = entity.ClampPriority(next(order.Priority))
		return tx.Orders().Update(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	if order.Priority != before {
		s.logger.Info("order priority changed",
			zap.String("order_id", order.ID),
			zap.Int("from", before),
			zap.Int("to", order.Priority),
		)
		s.publish(ctx, s.event(events.OrderPriorityChanged, order.ID, order))
	}
	return order, nil
}

// SetEstimatedTime 设置预计打印时长（分钟），并重算所属批次
func (s *OrderService) SetEstimatedTime(ctx context.Context, id string, minutes int) (*entity.Order, error) {
	if minutes < 0 {
		return nil, fmt.Errorf("%w: estimated print time must not be negative", ErrInvalidAmount)
	}

	var order *entity.Order
	var session *entity.PrintSession
	var touched bool
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		order, err = tx.Orders().FindByID(ctx, id)
		if err != nil {
			return notFound(err, "order", id)
		}
		m := minutes
		order.EstimatedPrintTime = &m
		if err := tx.Orders().Update(ctx, order); err != nil {
			return err
		}
		session, touched, err = s.recomputeFor(ctx, tx, order)
		return err
	})
	if err != nil {
		return nil, err
	}

	evs := []events.Event{s.event(events.OrderEstimateChanged, order.ID, order)}
	if touched {
		evs = append(evs, s.event(events.SessionUpdated, session.ID, session))
	}
	s.publish(ctx, evs...)
	return order, nil
}
