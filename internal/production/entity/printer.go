package entity

import "time"

// PrinterStatus 打印机健康状态
const (
	PrinterIdle        = "idle"
	PrinterPrinting    = "printing"
	PrinterPaused      = "paused"
	PrinterError       = "error"
	PrinterOffline     = "offline"
	PrinterMaintenance = "maintenance"
)

// Printer 打印机健康快照，由外部状态上报写入
type Printer struct {
	ID         string     `json:"id" gorm:"primaryKey;size:64"`
	Name       string     `json:"name" gorm:"size:128;not null"`
	Status     string     `json:"status" gorm:"size:16;not null;default:idle"`
	LastSeenAt *time.Time `json:"last_seen_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Printer) TableName() string {
	return "production_printers"
}

// HasIssue reports whether the printer needs operator attention.
func (p *Printer) HasIssue() bool {
	return p.Status == PrinterError || p.Status == PrinterOffline
}
