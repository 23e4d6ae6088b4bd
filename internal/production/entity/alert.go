package entity

import (
	"time"

	"gorm.io/datatypes"
)

// DefaultAlertSettingsID 单店铺部署只有一行告警设置
const DefaultAlertSettingsID = "default"

// AlertSettings 告警通知设置
type AlertSettings struct {
	ID                string    `json:"id" gorm:"primaryKey;size:32"`
	SlackWebhookURL   *string   `json:"slack_webhook_url" gorm:"size:512"`
	DiscordWebhookURL *string   `json:"discord_webhook_url" gorm:"size:512"`
	EmailEnabled      bool      `json:"email_enabled" gorm:"not null;default:false"`
	EmailTo           *string   `json:"email_to" gorm:"size:256"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (AlertSettings) TableName() string {
	return "production_alert_settings"
}

// AlertDelivery 告警发送记录
type AlertDelivery struct {
	ID                string         `json:"id" gorm:"primaryKey;type:uuid"`
	Sent              bool           `json:"sent" gorm:"not null"`
	Channels          datatypes.JSON `json:"channels" gorm:"type:jsonb"`
	LowStockCount     int            `json:"low_stock_count" gorm:"not null;default:0"`
	PrinterIssueCount int            `json:"printer_issue_count" gorm:"not null;default:0"`
	Error             string         `json:"error" gorm:"type:text"`
	CreatedAt         time.Time      `json:"created_at"`
}

func (AlertDelivery) TableName() string {
	return "production_alert_deliveries"
}
