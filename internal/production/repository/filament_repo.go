package repository

import (
	"context"

	"github.com/bitfantasy/printops/internal/production/entity"
	"gorm.io/gorm"
)

type filamentRepo struct {
	db   *gorm.DB
	lock bool
}

func (r *filamentRepo) FindByID(ctx context.Context, id string) (*entity.Filament, error) {
	var f entity.Filament
	err := forUpdate(r.db.WithContext(ctx), r.lock).
		Where("id = ?", id).
		First(&f).Error
	if err != nil {
		return nil, translate(err)
	}
	return &f, nil
}

func (r *filamentRepo) Create(ctx context.Context, f *entity.Filament) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *filamentRepo) Update(ctx context.Context, f *entity.Filament) error {
	return r.db.WithContext(ctx).Save(f).Error
}

func (r *filamentRepo) List(ctx context.Context, params FilamentListParams) ([]entity.Filament, error) {
	query := r.db.WithContext(ctx).Model(&entity.Filament{})
	if params.LowStock {
		query = query.Where("current_amount <= low_stock_threshold")
	}
	var items []entity.Filament
	err := query.Order("material ASC, color ASC, id ASC").Find(&items).Error
	return items, err
}

// AppendUsage 追加消耗流水
func (r *filamentRepo) AppendUsage(ctx context.Context, usage *entity.FilamentUsage) error {
	return r.db.WithContext(ctx).Create(usage).Error
}

func (r *filamentRepo) ListUsage(ctx context.Context, params UsageListParams) ([]entity.FilamentUsage, error) {
	query := r.db.WithContext(ctx).Model(&entity.FilamentUsage{})
	if params.FilamentID != "" {
		query = query.Where("filament_id = ?", params.FilamentID)
	}
	if params.OrderID != "" {
		query = query.Where("order_id = ?", params.OrderID)
	}
	if params.Limit > 0 {
		query = query.Limit(params.Limit)
	}
	var usages []entity.FilamentUsage
	err := query.Order("created_at DESC, id DESC").Find(&usages).Error
	return usages, err
}
