package repository

import (
	"context"

	"github.com/bitfantasy/printops/internal/production/entity"
	"gorm.io/gorm"
)

type alertRepo struct {
	db *gorm.DB
}

func (r *alertRepo) GetSettings(ctx context.Context) (*entity.AlertSettings, error) {
	var s entity.AlertSettings
	err := r.db.WithContext(ctx).Where("id = ?", entity.DefaultAlertSettingsID).First(&s).Error
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *alertRepo) SaveSettings(ctx context.Context, s *entity.AlertSettings) error {
	s.ID = entity.DefaultAlertSettingsID
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *alertRepo) CreateDelivery(ctx context.Context, d *entity.AlertDelivery) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *alertRepo) ListDeliveries(ctx context.Context, limit int) ([]entity.AlertDelivery, error) {
	if limit <= 0 {
		limit = 20
	}
	var items []entity.AlertDelivery
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&items).Error
	return items, err
}
