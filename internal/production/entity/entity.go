package entity

import "gorm.io/gorm"

// AutoMigrate 自动迁移所有生产表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		// 订单与批次
		&Order{},
		&PrintSession{},

		// 耗材
		&Filament{},
		&FilamentUsage{},

		// 设备与告警
		&Printer{},
		&AlertSettings{},
		&AlertDelivery{},
	)
}
