package repository

import (
	"context"

	"github.com/bitfantasy/printops/internal/production/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type printerRepo struct {
	db *gorm.DB
}

func (r *printerRepo) FindByID(ctx context.Context, id string) (*entity.Printer, error) {
	var p entity.Printer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

// Upsert 更新或创建打印机健康记录
func (r *printerRepo) Upsert(ctx context.Context, p *entity.Printer) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "status", "last_seen_at", "updated_at"}),
	}).Create(p).Error
}

func (r *printerRepo) List(ctx context.Context) ([]entity.Printer, error) {
	var printers []entity.Printer
	err := r.db.WithContext(ctx).Order("name ASC, id ASC").Find(&printers).Error
	return printers, err
}
