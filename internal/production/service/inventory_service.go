package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bitfantasy/printops/internal/production/entity"
	"github.com/bitfantasy/printops/internal/production/repository"
	"github.com/bitfantasy/printops/internal/shared/events"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InventoryService 耗材库存与消耗流水
type InventoryService struct {
	*base
}

type CreateFilamentRequest struct {
	Material          string           `json:"material" binding:"required"`
	Color             string           `json:"color" binding:"required"`
	Unit              string           `json:"unit"`
	InitialAmount     decimal.Decimal  `json:"initial_amount"`
	CurrentAmount     *decimal.Decimal `json:"current_amount"`
	CostPerGram       *decimal.Decimal `json:"cost_per_gram"`
	LowStockThreshold decimal.Decimal  `json:"low_stock_threshold"`
}

// RecordUsageRequest 一次耗材消耗
type RecordUsageRequest struct {
	FilamentID  string          `json:"-"`
	Amount      decimal.Decimal `json:"amount"`
	OrderID     *string         `json:"order_id"`
	Description *string         `json:"description"`
}

// AdjustStockRequest 补货或盘点修正，正数增加，负数减少
type AdjustStockRequest struct {
	Delta  decimal.Decimal `json:"delta"`
	Reason string          `json:"reason"`
}

// UsageResult 消耗后的流水和库存快照
type UsageResult struct {
	Usage    *entity.FilamentUsage `json:"usage"`
	Filament *entity.Filament      `json:"filament"`
}

func (s *InventoryService) Create(ctx context.Context, req *CreateFilamentRequest) (*entity.Filament, error) {
	if req.InitialAmount.IsNegative() || req.LowStockThreshold.IsNegative() {
		return nil, fmt.Errorf("%w: amounts must not be negative", ErrInvalidAmount)
	}
	current := req.InitialAmount
	if req.CurrentAmount != nil {
		current = *req.CurrentAmount
	}
	if current.IsNegative() {
		return nil, fmt.Errorf("%w: current amount must not be negative", ErrInvalidAmount)
	}
	unit := strings.TrimSpace(req.Unit)
	if unit == "" {
		unit = "g"
	}

	f := &entity.Filament{
		ID:                uuid.New().String(),
		Material:          strings.TrimSpace(req.Material),
		Color:             strings.TrimSpace(req.Color),
		Unit:              unit,
		InitialAmount:     req.InitialAmount,
		CurrentAmount:     current,
		LowStockThreshold: req.LowStockThreshold,
	}
	if req.CostPerGram != nil {
		f.CostPerGram = decimal.NewNullDecimal(*req.CostPerGram)
	}
	f.Refresh()

	if err := s.store.Filaments().Create(ctx, f); err != nil {
		return nil, fmt.Errorf("创建耗材失败: %w", err)
	}
	s.logger.Info("filament created",
		zap.String("filament_id", f.ID),
		zap.String("material", f.Material),
		zap.String("color", f.Color),
	)
	s.publish(ctx, s.event(events.FilamentCreated, f.ID, f))
	return f, nil
}

func (s *InventoryService) Get(ctx context.Context, id string) (*entity.Filament, error) {
	f, err := s.store.Filaments().FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "filament", id)
	}
	return f, nil
}

func (s *InventoryService) List(ctx context.Context, params repository.FilamentListParams) ([]entity.Filament, error) {
	return s.store.Filaments().List(ctx, params)
}

func (s *InventoryService) ListUsage(ctx context.Context, params repository.UsageListParams) ([]entity.FilamentUsage, error) {
	return s.store.Filaments().ListUsage(ctx, params)
}

// IsLowStock 纯读取，无副作用
func (s *InventoryService) IsLowStock(ctx context.Context, id string) (bool, error) {
	f, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	return f.CurrentAmount.LessThanOrEqual(f.LowStockThreshold), nil
}

// RecordUsage 记录一次消耗：扣减库存、追加流水、累计到订单，全部在一个事务内完成
func (s *InventoryService) RecordUsage(ctx context.Context, req *RecordUsageRequest) (*UsageResult, error) {
	var result *UsageResult
	var wasLow bool
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var order *entity.Order
		if req.OrderID != nil && *req.OrderID != "" {
			o, err := tx.Orders().FindByID(ctx, *req.OrderID)
			if err != nil {
				return notFound(err, "order", *req.OrderID)
			}
			order = o
		}

		var err error
		result, wasLow, err = s.consume(ctx, tx, req.FilamentID, req.Amount, order, req.Description)
		if err != nil {
			return err
		}
		if order != nil {
			if err := tx.Orders().Update(ctx, order); err != nil {
				return fmt.Errorf("更新订单耗材用量失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Warn("record filament usage rejected",
			zap.String("filament_id", req.FilamentID),
			zap.String("amount", req.Amount.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.publish(ctx, s.usageEvents(result, wasLow)...)
	return result, nil
}

// consume 在给定事务内扣减库存并追加流水。order 非空时累计用量到订单，
// 订单由调用方保存。
func (s *InventoryService) consume(ctx context.Context, tx repository.Store, filamentID string, amount decimal.Decimal, order *entity.Order, description *string) (*UsageResult, bool, error) {
	if !amount.IsPositive() {
		return nil, false, fmt.Errorf("%w: usage amount must be greater than 0", ErrInvalidAmount)
	}
	f, err := tx.Filaments().FindByID(ctx, filamentID)
	if err != nil {
		return nil, false, notFound(err, "filament", filamentID)
	}
	remaining := f.CurrentAmount.Sub(amount)
	if remaining.IsNegative() {
		return nil, false, fmt.Errorf("%w: filament %s has %s%s, need %s%s",
			ErrInsufficientStock, f.ID, f.CurrentAmount, f.Unit, amount, f.Unit)
	}

	wasLow := f.IsLowStock
	f.CurrentAmount = remaining
	f.Refresh()
	if err := tx.Filaments().Update(ctx, f); err != nil {
		return nil, false, fmt.Errorf("更新耗材库存失败: %w", err)
	}

	usage := &entity.FilamentUsage{
		ID:          uuid.New().String(),
		FilamentID:  f.ID,
		AmountUsed:  amount,
		Description: description,
		CreatedAt:   s.now(),
	}
	if order != nil {
		orderID := order.ID
		usage.OrderID = &orderID
		order.AddFilament(amount)
	}
	if err := tx.Filaments().AppendUsage(ctx, usage); err != nil {
		return nil, false, fmt.Errorf("写入消耗流水失败: %w", err)
	}

	s.logger.Info("filament consumed",
		zap.String("filament_id", f.ID),
		zap.String("amount", amount.String()),
		zap.String("current_amount", f.CurrentAmount.String()),
		zap.Bool("low_stock", f.IsLowStock),
	)
	return &UsageResult{Usage: usage, Filament: f}, wasLow, nil
}

func (s *InventoryService) usageEvents(r *UsageResult, wasLow bool) []events.Event {
	evs := []events.Event{s.event(events.FilamentUsage, r.Filament.ID, r.Usage)}
	if r.Filament.IsLowStock && !wasLow {
		evs = append(evs, s.event(events.FilamentLowStock, r.Filament.ID, r.Filament))
	}
	return evs
}

// AdjustStock 直接修正库存，不产生消耗流水
func (s *InventoryService) AdjustStock(ctx context.Context, id string, req *AdjustStockRequest) (*entity.Filament, error) {
	if req.Delta.IsZero() {
		return nil, fmt.Errorf("%w: adjustment must not be zero", ErrInvalidAmount)
	}

	var f *entity.Filament
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		var err error
		f, err = tx.Filaments().FindByID(ctx, id)
		if err != nil {
			return notFound(err, "filament", id)
		}
		next := f.CurrentAmount.Add(req.Delta)
		if next.IsNegative() {
			return fmt.Errorf("%w: adjustment would leave %s%s", ErrInsufficientStock, next, f.Unit)
		}
		f.CurrentAmount = next
		f.Refresh()
		return tx.Filaments().Update(ctx, f)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("filament stock adjusted",
		zap.String("filament_id", f.ID),
		zap.String("delta", req.Delta.String()),
		zap.String("reason", req.Reason),
	)
	s.publish(ctx, s.event(events.FilamentAdjusted, f.ID, f))
	return f, nil
}
