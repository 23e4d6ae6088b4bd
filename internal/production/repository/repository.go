package repository

import (
	"context"
	"errors"

	"github.com/bitfantasy/printops/internal/production/entity"
)

// 错误定义
var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
)

// Store 生产数据存储。Transaction 内的回调拿到的是事务内的 Store，
// 回调返回错误时所有写入回滚。
type Store interface {
	Orders() OrderRepository
	Filaments() FilamentRepository
	Sessions() SessionRepository
	Printers() PrinterRepository
	Alerts() AlertRepository
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

// OrderQuery 队列查询条件，零值表示不限制
type OrderQuery struct {
	Status   string
	Priority int
}

type OrderRepository interface {
	FindByID(ctx context.Context, id string) (*entity.Order, error)
	FindByMarketplaceID(ctx context.Context, marketplaceOrderID string) (*entity.Order, error)
	// FindByStatusAndPriority returns matches ordered by priority, then ingestion time.
	FindByStatusAndPriority(ctx context.Context, q OrderQuery) ([]entity.Order, error)
	FindBySessionID(ctx context.Context, sessionID string) ([]entity.Order, error)
	Create(ctx context.Context, order *entity.Order) error
	Update(ctx context.Context, order *entity.Order) error
}

type FilamentListParams struct {
	LowStock bool
}

type UsageListParams struct {
	FilamentID string
	OrderID    string
	Limit      int
}

type FilamentRepository interface {
	FindByID(ctx context.Context, id string) (*entity.Filament, error)
	Create(ctx context.Context, f *entity.Filament) error
	Update(ctx context.Context, f *entity.Filament) error
	List(ctx context.Context, params FilamentListParams) ([]entity.Filament, error)
	AppendUsage(ctx context.Context, usage *entity.FilamentUsage) error
	ListUsage(ctx context.Context, params UsageListParams) ([]entity.FilamentUsage, error)
}

type SessionRepository interface {
	FindByID(ctx context.Context, id string) (*entity.PrintSession, error)
	Create(ctx context.Context, s *entity.PrintSession) error
	Update(ctx context.Context, s *entity.PrintSession) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, status string) ([]entity.PrintSession, error)
}

type PrinterRepository interface {
	FindByID(ctx context.Context, id string) (*entity.Printer, error)
	Upsert(ctx context.Context, p *entity.Printer) error
	List(ctx context.Context) ([]entity.Printer, error)
}

type AlertRepository interface {
	GetSettings(ctx context.Context) (*entity.AlertSettings, error)
	SaveSettings(ctx context.Context, s *entity.AlertSettings) error
	CreateDelivery(ctx context.Context, d *entity.AlertDelivery) error
	ListDeliveries(ctx context.Context, limit int) ([]entity.AlertDelivery, error)
}
