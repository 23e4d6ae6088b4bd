package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/printops/internal/production/entity"
	"github.com/bitfantasy/printops/internal/production/repository"
	"github.com/bitfantasy/printops/internal/shared/events"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// IngestService 市场订单同步与打印机状态上报
type IngestService struct {
	*base
}

// SyncOrderRequest 市场侧订单字段，不包含任何生产字段
type SyncOrderRequest struct {
	MarketplaceOrderID string          `json:"marketplace_order_id" binding:"required"`
	ShopID             string          `json:"shop_id"`
	BuyerName          string          `json:"buyer_name"`
	BuyerEmail         string          `json:"buyer_email"`
	Status             string          `json:"status"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	Currency           string          `json:"currency"`
}

type SyncBatchRequest struct {
	Orders []SyncOrderRequest `json:"orders" binding:"required,dive"`
}

type SyncResult struct {
	Created int            `json:"created"`
	Updated int            `json:"updated"`
	Orders  []entity.Order `json:"orders"`
}

type PrinterHealthRequest struct {
	Name   string `json:"name"`
	Status string `json:"status" binding:"required,oneof=idle printing paused error offline maintenance"`
}

// Upsert 按市场订单号写入。新订单进入 QUEUED；已有订单只更新市场字段
func (s *IngestService) Upsert(ctx context.Context, req *SyncOrderRequest) (*entity.Order, bool, error) {
	mpID := strings.TrimSpace(req.MarketplaceOrderID)
	if mpID == "" {
		return nil, false, fmt.Errorf("%w: marketplace_order_id", ErrMissingField)
	}

	var order *entity.Order
	var created bool
	// 并发创建同一订单时，唯一索引冲突后重试一次走更新分支
	for attempt := 0; attempt < 2; attempt++ {
		err := s.store.Transaction(ctx, func(tx repository.Store) error {
			now := s.now()
			existing, err := tx.Orders().FindByMarketplaceID(ctx, mpID)
			switch {
			case errors.Is(err, repository.ErrNotFound):
				order = &entity.Order{
					ID:                 uuid.New().String(),
					MarketplaceOrderID: mpID,
					ProductionStatus:   entity.StatusQueued,
					Priority:           s.defaultPriority,
					TotalFilamentUsed:  decimal.Zero,
					CreatedAt:          now,
				}
				applyMarketplace(order, req, now)
				created = true
				return tx.Orders().Create(ctx, order)
			case err != nil:
				return err
			}
			order = existing
			applyMarketplace(order, req, now)
			created = false
			return tx.Orders().Update(ctx, order)
		})
		if errors.Is(err, repository.ErrDuplicate) && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("同步订单 %s 失败: %w", mpID, err)
		}
		break
	}

	s.logger.Info("order synced",
		zap.String("order_id", order.ID),
		zap.String("marketplace_order_id", mpID),
		zap.Bool("created", created),
	)
	s.publish(ctx, s.event(events.OrderSynced, order.ID, order))
	return order, created, nil
}

func applyMarketplace(o *entity.Order, req *SyncOrderRequest, now time.Time) {
	o.ShopID = req.ShopID
	o.BuyerName = req.BuyerName
	o.BuyerEmail = req.BuyerEmail
	o.MarketplaceStatus = req.Status
	o.TotalAmount = req.TotalAmount
	o.Currency = req.Currency
	synced := now
	o.SyncedAt = &synced
}

// UpsertBatch 逐条同步，遇到错误立即返回已处理的结果
func (s *IngestService) UpsertBatch(ctx context.Context, reqs []SyncOrderRequest) (*SyncResult, error) {
	res := &SyncResult{Orders: make([]entity.Order, 0, len(reqs))}
	for i := range reqs {
		o, created, err := s.Upsert(ctx, &reqs[i])
		if err != nil {
			return res, err
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
		res.Orders = append(res.Orders, *o)
	}
	return res, nil
}

// ReportPrinterHealth 更新打印机健康快照
func (s *IngestService) ReportPrinterHealth(ctx context.Context, id string, req *PrinterHealthRequest) (*entity.Printer, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &NotFoundError{Kind: "printer", ID: id}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = id
	}
	now := s.now()
	p := &entity.Printer{
		ID:         id,
		Name:       name,
		Status:     req.Status,
		LastSeenAt: &now,
	}
	if err := s.store.Printers().Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("更新打印机状态失败: %w", err)
	}
	if p.HasIssue() {
		s.logger.Warn("printer reported issue", zap.String("printer_id", p.ID), zap.String("status", p.Status))
	}
	s.publish(ctx, s.event(events.PrinterHealth, p.ID, p))
	return p, nil
}

// ListPrinters 所有已上报的打印机
func (s *IngestService) ListPrinters(ctx context.Context) ([]entity.Printer, error) {
	return s.store.Printers().List(ctx)
}

// HandleOrderMessage 消费 orders 主题的一条消息。无法解析的消息记录后丢弃，不阻塞后续消息
func (s *IngestService) HandleOrderMessage(ctx context.Context, key, value []byte) error {
	var req SyncOrderRequest
	if err := json.Unmarshal(value, &req); err != nil {
		s.logger.Warn("drop malformed order message", zap.ByteString("key", key), zap.Error(err))
		return nil
	}
	if strings.TrimSpace(req.MarketplaceOrderID) == "" {
		req.MarketplaceOrderID = string(key)
	}
	_, _, err := s.Upsert(ctx, &req)
	return err
}
