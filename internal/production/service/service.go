package service

import (
	"context"
	"errors"
	"time"

	"github.com/bitfantasy/printops/internal/config"
	"github.com/bitfantasy/printops/internal/production/entity"
	"github.com/bitfantasy/printops/internal/production/repository"
	"github.com/bitfantasy/printops/internal/shared/events"
	"github.com/bitfantasy/printops/internal/shared/notify"
	"go.uber.org/zap"
)

// Notifier 告警投递
type Notifier interface {
	Trigger(ctx context.Context, p notify.Payload, s notify.Settings) (*notify.Result, error)
}

// Throttle 告警冷却。Allow 在 ttl 内对同一 key 只返回一次 true
type Throttle interface {
	Allow(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Release 归还 Allow 占用的冷却，投递失败后下一轮可以重发
	Release(ctx context.Context, key string) error
}

// ReportArchive 报表归档
type ReportArchive interface {
	Put(ctx context.Context, objectName string, data []byte, contentType string) (string, error)
}

// Deps 外部协作者，均可为 nil
type Deps struct {
	Publisher events.Publisher
	Notifier  Notifier
	Throttle  Throttle
	Archive   ReportArchive
	Now       func() time.Time
}

// Services 服务集合
type Services struct {
	Inventory *InventoryService
	Orders    *OrderService
	Sessions  *SessionService
	Queue     *QueueService
	Alerts    *AlertService
	Ingest    *IngestService
	Reports   *ReportService
}

// NewServices 创建服务集合
func NewServices(store repository.Store, deps Deps, cfg *config.Config, logger *zap.Logger) *Services {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	b := &base{
		store:           store,
		logger:          logger,
		now:             now,
		publisher:       deps.Publisher,
		policy:          entity.ParseFailedPolicy(cfg.Production.SessionFailedPolicy),
		defaultPriority: entity.ClampPriority(cfg.Production.DefaultPriority),
	}
	if cfg.Production.DefaultPriority == 0 {
		b.defaultPriority = entity.DefaultPriority
	}

	inventory := &InventoryService{base: b}
	queue := &QueueService{base: b}
	return &Services{
		Inventory: inventory,
		Orders:    &OrderService{base: b, inventory: inventory},
		Sessions:  &SessionService{base: b},
		Queue:     queue,
		Alerts:    NewAlertService(b, deps.Notifier, deps.Throttle, cfg),
		Ingest:    &IngestService{base: b},
		Reports:   &ReportService{base: b, queue: queue, archive: deps.Archive},
	}
}

// base 各服务共用的存储、日志与事件发布
type base struct {
	store           repository.Store
	logger          *zap.Logger
	now             func() time.Time
	publisher       events.Publisher
	policy          entity.FailedPolicy
	defaultPriority int
}

func (b *base) event(typ, entityID string, data any) events.Event {
	return events.Event{Type: typ, EntityID: entityID, Data: data, At: b.now()}
}

// publish 事务提交后发布事件，失败只记录日志
func (b *base) publish(ctx context.Context, evs ...events.Event) {
	if b.publisher == nil || len(evs) == 0 {
		return
	}
	if err := b.publisher.Publish(ctx, evs...); err != nil {
		b.logger.Warn("publish production events failed", zap.Int("count", len(evs)), zap.Error(err))
	}
}

// recomputeSession 在事务内按成员订单重算批次汇总，有变化时写回
func (b *base) recomputeSession(ctx context.Context, tx repository.Store, sessionID string) (*entity.PrintSession, bool, error) {
	sess, err := tx.Sessions().FindByID(ctx, sessionID)
	if err != nil {
		return nil, false, notFound(err, "print session", sessionID)
	}
	members, err := tx.Orders().FindBySessionID(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	changed := sess.Rollup(members, b.policy, b.now())
	if changed {
		if err := tx.Sessions().Update(ctx, sess); err != nil {
			return nil, false, err
		}
	}
	return sess, changed, nil
}

// recomputeFor 订单所属批次的汇总，订单未分配批次时什么都不做
func (b *base) recomputeFor(ctx context.Context, tx repository.Store, o *entity.Order) (*entity.PrintSession, bool, error) {
	if o.PrintSessionID == nil {
		return nil, false, nil
	}
	sess, changed, err := b.recomputeSession(ctx, tx, *o.PrintSessionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			b.logger.Warn("order references missing print session",
				zap.String("order_id", o.ID), zap.String("session_id", *o.PrintSessionID))
			return nil, false, nil
		}
		return nil, false, err
	}
	return sess, changed, nil
}
