package notify

import "github.com/shopspring/decimal"

// 通道名称
const (
	ChannelSlack   = "slack"
	ChannelDiscord = "discord"
	ChannelEmail   = "email"
)

// LowStockItem 低库存耗材
type LowStockItem struct {
	FilamentID    string          `json:"filament_id"`
	Material      string          `json:"material"`
	Color         string          `json:"color"`
	CurrentAmount decimal.Decimal `json:"current_amount"`
	Unit          string          `json:"unit"`
	Threshold     decimal.Decimal `json:"threshold"`
}

// PrinterIssue 需要处理的打印机
type PrinterIssue struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Payload 一次评估的告警内容
type Payload struct {
	LowStock      []LowStockItem `json:"low_stock"`
	PrinterIssues []PrinterIssue `json:"printer_issues"`
}

func (p Payload) Empty() bool {
	return len(p.LowStock) == 0 && len(p.PrinterIssues) == 0
}

// Settings 投递目标
type Settings struct {
	SlackWebhookURL   string
	DiscordWebhookURL string
	EmailEnabled      bool
	EmailTo           string
}

// Result 投递结果。Channels 只包含成功的通道
type Result struct {
	Sent              bool     `json:"sent"`
	Channels          []string `json:"channels"`
	LowStockCount     int      `json:"low_stock_count"`
	PrinterIssueCount int      `json:"printer_issue_count"`
	Suppressed        bool     `json:"suppressed,omitempty"`
	Errors            []string `json:"errors,omitempty"`
}
