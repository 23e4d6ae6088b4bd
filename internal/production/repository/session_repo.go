package repository

import (
	"context"

	"github.com/bitfantasy/printops/internal/production/entity"
	"gorm.io/gorm"
)

type sessionRepo struct {
	db   *gorm.DB
	lock bool
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*entity.PrintSession, error) {
	var s entity.PrintSession
	err := forUpdate(r.db.WithContext(ctx), r.lock).
		Where("id = ?", id).
		First(&s).Error
	if err != nil {
		return nil, translate(err)
	}
	return &s, nil
}

func (r *sessionRepo) Create(ctx context.Context, s *entity.PrintSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *sessionRepo) Update(ctx context.Context, s *entity.PrintSession) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *sessionRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&entity.PrintSession{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sessionRepo) List(ctx context.Context, status string) ([]entity.PrintSession, error) {
	query := r.db.WithContext(ctx).Model(&entity.PrintSession{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var sessions []entity.PrintSession
	err := query.Order("created_at DESC, id DESC").Find(&sessions).Error
	return sessions, err
}
