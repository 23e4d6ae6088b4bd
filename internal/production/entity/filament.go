package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func init() {
	// 耗材数量以数字输出，与控制台约定一致
	decimal.MarshalJSONWithoutQuotes = true
}

// Filament 耗材库存
type Filament struct {
	ID                string              `json:"id" gorm:"primaryKey;type:uuid"`
	Material          string              `json:"material" gorm:"size:32;not null"`
	Color             string              `json:"color" gorm:"size:64;not null"`
	Unit              string              `json:"unit" gorm:"size:16;not null;default:g"`
	InitialAmount     decimal.Decimal     `json:"initial_amount" gorm:"type:decimal(12,2);not null"`
	CurrentAmount     decimal.Decimal     `json:"current_amount" gorm:"type:decimal(12,2);not null"`
	UsedAmount        decimal.Decimal     `json:"used_amount" gorm:"type:decimal(12,2);not null;default:0"`
	CostPerGram       decimal.NullDecimal `json:"cost_per_gram" gorm:"type:decimal(12,4)"`
	LowStockThreshold decimal.Decimal     `json:"low_stock_threshold" gorm:"type:decimal(12,2);not null;default:0"`
	IsLowStock        bool                `json:"is_low_stock" gorm:"not null;default:false;index"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

func (Filament) TableName() string {
	return "production_filaments"
}

// Refresh recomputes the derived columns from the stored amounts.
// Equal-to-threshold counts as low.
func (f *Filament) Refresh() {
	used := f.InitialAmount.Sub(f.CurrentAmount)
	if used.IsNegative() {
		used = decimal.Zero
	}
	f.UsedAmount = used
	f.IsLowStock = f.CurrentAmount.LessThanOrEqual(f.LowStockThreshold)
}

// BeforeSave keeps the derived columns in step with every write.
func (f *Filament) BeforeSave(tx *gorm.DB) error {
	f.Refresh()
	return nil
}

// FilamentUsage 耗材消耗流水（只追加，不修改）
type FilamentUsage struct {
	ID          string          `json:"id" gorm:"primaryKey;type:uuid"`
	FilamentID  string          `json:"filament_id" gorm:"type:uuid;not null;index"`
	OrderID     *string         `json:"order_id" gorm:"type:uuid;index"`
	AmountUsed  decimal.Decimal `json:"amount_used" gorm:"type:decimal(12,2);not null"`
	Description *string         `json:"description" gorm:"type:text"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (FilamentUsage) TableName() string {
	return "production_filament_usages"
}
