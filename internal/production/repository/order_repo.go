package repository

import (
	"context"

	"github.com/bitfantasy/printops/internal/production/entity"
	"gorm.io/gorm"
)

const queueOrdering = "priority ASC, created_at ASC, marketplace_order_id ASC, id ASC"

type orderRepo struct {
	db   *gorm.DB
	lock bool
}

// FindByID 根据ID查找订单
func (r *orderRepo) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	var order entity.Order
	err := forUpdate(r.db.WithContext(ctx), r.lock).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

// FindByMarketplaceID 根据市场订单号查找
func (r *orderRepo) FindByMarketplaceID(ctx context.Context, marketplaceOrderID string) (*entity.Order, error) {
	var order entity.Order
	err := forUpdate(r.db.WithContext(ctx), r.lock).
		Where("marketplace_order_id = ?", marketplaceOrderID).
		First(&order).Error
	if err != nil {
		return nil, translate(err)
	}
	return &order, nil
}

func (r *orderRepo) FindByStatusAndPriority(ctx context.Context, q OrderQuery) ([]entity.Order, error) {
	query := r.db.WithContext(ctx).Model(&entity.Order{})
	if q.Status != "" {
		query = query.Where("production_status = ?", q.Status)
	}
	if q.Priority != 0 {
		query = query.Where("priority = ?", q.Priority)
	}
	var orders []entity.Order
	err := query.Order(queueOrdering).Find(&orders).Error
	return orders, err
}

// FindBySessionID 查找批次成员。成员行不加锁，批次行锁已串行化重算
func (r *orderRepo) FindBySessionID(ctx context.Context, sessionID string) ([]entity.Order, error) {
	var orders []entity.Order
	err := r.db.WithContext(ctx).
		Where("print_session_id = ?", sessionID).
		Order(queueOrdering).
		Find(&orders).Error
	return orders, err
}

func (r *orderRepo) Create(ctx context.Context, order *entity.Order) error {
	return translate(r.db.WithContext(ctx).Create(order).Error)
}

func (r *orderRepo) Update(ctx context.Context, order *entity.Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}
