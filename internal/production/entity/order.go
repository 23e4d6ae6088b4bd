package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductionStatus 生产状态
const (
	StatusQueued   = "QUEUED"
	StatusPrinting = "PRINTING"
	StatusPrinted  = "PRINTED"
	StatusShipped  = "SHIPPED"
	StatusFailed   = "FAILED"
)

// Priority 1=最紧急 .. 5=积压
const (
	PriorityUrgent  = 1
	PriorityHigh    = 2
	PriorityMedium  = 3
	PriorityLow     = 4
	PriorityBacklog = 5

	DefaultPriority = PriorityMedium
)

// 允许的状态迁移
var transitions = map[string][]string{
	StatusQueued:   {StatusPrinting, StatusFailed},
	StatusPrinting: {StatusPrinted, StatusFailed},
	StatusPrinted:  {StatusShipped},
	StatusFailed:   {StatusPrinting},
}

// Statuses returns every production status in lifecycle order.
func Statuses() []string {
	return []string{StatusQueued, StatusPrinting, StatusPrinted, StatusShipped, StatusFailed}
}

// ValidStatus reports whether s is a known production status.
func ValidStatus(s string) bool {
	switch s {
	case StatusQueued, StatusPrinting, StatusPrinted, StatusShipped, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle graph has an edge from -> to.
func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ClampPriority 将优先级限制在 [1,5]
func ClampPriority(p int) int {
	if p < PriorityUrgent {
		return PriorityUrgent
	}
	if p > PriorityBacklog {
		return PriorityBacklog
	}
	return p
}

// Order 订单的生产视图。市场字段由同步写入，生产字段只由本服务修改。
type Order struct {
	ID                 string          `json:"id" gorm:"primaryKey;type:uuid"`
	MarketplaceOrderID string          `json:"marketplace_order_id" gorm:"size:64;not null;uniqueIndex"`
	ShopID             string          `json:"shop_id" gorm:"size:64;index"`
	BuyerName          string          `json:"buyer_name" gorm:"size:128"`
	BuyerEmail         string          `json:"buyer_email" gorm:"size:128"`
	MarketplaceStatus  string          `json:"status" gorm:"size:32"`
	TotalAmount        decimal.Decimal `json:"total_amount" gorm:"type:decimal(12,2);default:0"`
	Currency           string          `json:"currency" gorm:"size:8"`

	ProductionStatus   string          `json:"production_status" gorm:"size:16;not null;default:QUEUED;index:idx_order_queue,priority:1"`
	Priority           int             `json:"priority" gorm:"not null;default:3;index:idx_order_queue,priority:2"`
	PrintSessionID     *string         `json:"print_session_id" gorm:"type:uuid;index"`
	EstimatedPrintTime *int            `json:"estimated_print_time"`
	ActualPrintTime    *int            `json:"actual_print_time"`
	PrintStartedAt     *time.Time      `json:"print_started_at"`
	PrintCompletedAt   *time.Time      `json:"print_completed_at"`
	PrintFailuresCount int             `json:"print_failures_count" gorm:"not null;default:0"`
	PrintNotes         *string         `json:"print_notes" gorm:"type:text"`
	FilamentAssigned   bool            `json:"filament_assigned" gorm:"not null;default:false"`
	TotalFilamentUsed  decimal.Decimal `json:"total_filament_used" gorm:"type:decimal(12,2);not null;default:0"`

	SyncedAt  *time.Time `json:"synced_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (Order) TableName() string {
	return "production_orders"
}

// Advance applies the lifecycle side effects of entering status `to`.
// The caller has already checked CanTransition. actual, when non-nil, is an
// operator-supplied print time that wins over the computed one.
func (o *Order) Advance(to string, now time.Time, actual *int) {
	switch to {
	case StatusPrinting:
		if o.PrintStartedAt == nil {
			started := now
			o.PrintStartedAt = &started
		}
	case StatusPrinted:
		completed := now
		o.PrintCompletedAt = &completed
		if actual != nil {
			minutes := *actual
			o.ActualPrintTime = &minutes
		} else if o.ActualPrintTime == nil && o.PrintStartedAt != nil {
			minutes := int(now.Sub(*o.PrintStartedAt).Minutes())
			if minutes < 0 {
				minutes = 0
			}
			o.ActualPrintTime = &minutes
		}
	case StatusFailed:
		o.PrintFailuresCount++
	}
	o.ProductionStatus = to
}

// AddFilament 累计耗材用量
func (o *Order) AddFilament(amount decimal.Decimal) {
	o.TotalFilamentUsed = o.TotalFilamentUsed.Add(amount)
	o.FilamentAssigned = true
}
