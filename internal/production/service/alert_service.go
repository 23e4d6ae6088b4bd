package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/bitfantasy/printops/internal/config"
	"github.com/bitfantasy/printops/internal/production/entity"
	"github.com/bitfantasy/printops/internal/production/repository"
	"github.com/bitfantasy/printops/internal/shared/events"
	"github.com/bitfantasy/printops/internal/shared/notify"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// AlertService 低库存与打印机告警
type AlertService struct {
	*base
	notifier Notifier
	throttle Throttle
	cooldown time.Duration
	defaults entity.AlertSettings
}

func NewAlertService(b *base, notifier Notifier, throttle Throttle, cfg *config.Config) *AlertService {
	return &AlertService{
		base:     b,
		notifier: notifier,
		throttle: throttle,
		cooldown: cfg.Production.AlertCooldown,
		defaults: entity.AlertSettings{
			ID:                entity.DefaultAlertSettingsID,
			SlackWebhookURL:   optional(cfg.Notify.SlackWebhookURL),
			DiscordWebhookURL: optional(cfg.Notify.DiscordWebhookURL),
			EmailEnabled:      cfg.Notify.EmailEnabled,
			EmailTo:           optional(cfg.Notify.EmailTo),
		},
	}
}

// UpdateAlertSettingsRequest 空字符串表示清除
type UpdateAlertSettingsRequest struct {
	SlackWebhookURL   *string `json:"slack_webhook_url"`
	DiscordWebhookURL *string `json:"discord_webhook_url"`
	EmailEnabled      *bool   `json:"email_enabled"`
	EmailTo           *string `json:"email_to"`
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func validWebhook(raw *string) error {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	u, err := url.Parse(strings.TrimSpace(*raw))
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("%w: invalid webhook url %q", ErrInvalidSettings, *raw)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// EvaluateLowStock 列出所有低库存耗材，不发送任何通知
func (s *AlertService) EvaluateLowStock(ctx context.Context) ([]notify.LowStockItem, error) {
	filaments, err := s.store.Filaments().List(ctx, repository.FilamentListParams{LowStock: true})
	if err != nil {
		return nil, err
	}
	items := make([]notify.LowStockItem, 0, len(filaments))
	for _, f := range filaments {
		if !f.CurrentAmount.LessThanOrEqual(f.LowStockThreshold) {
			continue
		}
		items = append(items, notify.LowStockItem{
			FilamentID:    f.ID,
			Material:      f.Material,
			Color:         f.Color,
			CurrentAmount: f.CurrentAmount,
			Unit:          f.Unit,
			Threshold:     f.LowStockThreshold,
		})
	}
	return items, nil
}

// EvaluatePrinters 列出处于 error/offline 的打印机
func (s *AlertService) EvaluatePrinters(ctx context.Context) ([]notify.PrinterIssue, error) {
	printers, err := s.store.Printers().List(ctx)
	if err != nil {
		return nil, err
	}
	issues := make([]notify.PrinterIssue, 0)
	for i := range printers {
		if printers[i].HasIssue() {
			issues = append(issues, notify.PrinterIssue{ID: printers[i].ID, Name: printers[i].Name, Status: printers[i].Status})
		}
	}
	return issues, nil
}

// Preview 当前会发送的告警内容
func (s *AlertService) Preview(ctx context.Context) (*notify.Payload, error) {
	low, err := s.EvaluateLowStock(ctx)
	if err != nil {
		return nil, err
	}
	issues, err := s.EvaluatePrinters(ctx)
	if err != nil {
		return nil, err
	}
	return &notify.Payload{LowStock: low, PrinterIssues: issues}, nil
}

// GetSettings 未保存过时返回配置文件中的初始值
func (s *AlertService) GetSettings(ctx context.Context) (*entity.AlertSettings, error) {
	settings, err := s.store.Alerts().GetSettings(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		d := s.defaults
		return &d, nil
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *AlertService) UpdateSettings(ctx context.Context, req *UpdateAlertSettingsRequest) (*entity.AlertSettings, error) {
	for _, u := range []*string{req.SlackWebhookURL, req.DiscordWebhookURL} {
		if err := validWebhook(u); err != nil {
			return nil, err
		}
	}

	var settings *entity.AlertSettings
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		current, err := tx.Alerts().GetSettings(ctx)
		if errors.Is(err, repository.ErrNotFound) {
			d := s.defaults
			current = &d
		} else if err != nil {
			return err
		}
		if req.SlackWebhookURL != nil {
			current.SlackWebhookURL = optional(*req.SlackWebhookURL)
		}
		if req.DiscordWebhookURL != nil {
			current.DiscordWebhookURL = optional(*req.DiscordWebhookURL)
		}
		if req.EmailEnabled != nil {
			current.EmailEnabled = *req.EmailEnabled
		}
		if req.EmailTo != nil {
			current.EmailTo = optional(*req.EmailTo)
		}
		settings = current
		return tx.Alerts().SaveSettings(ctx, current)
	})
	if err != nil {
		return nil, fmt.Errorf("保存告警设置失败: %w", err)
	}
	s.logger.Info("alert settings updated",
		zap.Bool("slack", settings.SlackWebhookURL != nil),
		zap.Bool("discord", settings.DiscordWebhookURL != nil),
		zap.Bool("email", settings.EmailEnabled),
	)
	return settings, nil
}

// Trigger 评估并投递告警。无内容时不发送；force=false 时同样的内容在冷却期内只发送一次
func (s *AlertService) Trigger(ctx context.Context, force bool) (*notify.Result, error) {
	payload, err := s.Preview(ctx)
	if err != nil {
		return nil, err
	}
	res := &notify.Result{
		Channels:          []string{},
		LowStockCount:     len(payload.LowStock),
		PrinterIssueCount: len(payload.PrinterIssues),
	}
	if payload.Empty() {
		return res, nil
	}

	var held string
	if !force && s.throttle != nil && s.cooldown > 0 {
		key := fingerprint(payload)
		ok, err := s.throttle.Allow(ctx, key, s.cooldown)
		switch {
		case err != nil:
			s.logger.Warn("alert throttle unavailable, sending anyway", zap.Error(err))
		case !ok:
			res.Suppressed = true
			return res, nil
		default:
			held = key
		}
	}

	settings, err := s.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if s.notifier != nil {
		sent, sendErr := s.notifier.Trigger(ctx, *payload, notify.Settings{
			SlackWebhookURL:   deref(settings.SlackWebhookURL),
			DiscordWebhookURL: deref(settings.DiscordWebhookURL),
			EmailEnabled:      settings.EmailEnabled,
			EmailTo:           deref(settings.EmailTo),
		})
		if sent != nil {
			res = sent
		}
		if sendErr != nil {
			if sent == nil {
				res.Errors = append(res.Errors, sendErr.Error())
			}
			s.logger.Warn("alert delivery failed", zap.Error(sendErr))
		}
	}
	if held != "" && !res.Sent {
		if err := s.throttle.Release(ctx, held); err != nil {
			s.logger.Warn("release alert cooldown failed", zap.Error(err))
		}
	}

	s.recordDelivery(ctx, res)
	s.logger.Info("alert triggered",
		zap.Bool("sent", res.Sent),
		zap.Strings("channels", res.Channels),
		zap.Int("low_stock_count", res.LowStockCount),
		zap.Int("printer_issue_count", res.PrinterIssueCount),
	)
	s.publish(ctx, s.event(events.AlertTriggered, entity.DefaultAlertSettingsID, res))
	return res, nil
}

func (s *AlertService) recordDelivery(ctx context.Context, res *notify.Result) {
	channels, _ := json.Marshal(res.Channels)
	d := &entity.AlertDelivery{
		ID:                uuid.New().String(),
		Sent:              res.Sent,
		Channels:          datatypes.JSON(channels),
		LowStockCount:     res.LowStockCount,
		PrinterIssueCount: res.PrinterIssueCount,
		Error:             strings.Join(res.Errors, "; "),
		CreatedAt:         s.now(),
	}
	if err := s.store.Alerts().CreateDelivery(ctx, d); err != nil {
		s.logger.Warn("record alert delivery failed", zap.Error(err))
	}
}

// ListDeliveries 最近的投递记录
func (s *AlertService) ListDeliveries(ctx context.Context, limit int) ([]entity.AlertDelivery, error) {
	return s.store.Alerts().ListDeliveries(ctx, limit)
}

// fingerprint 告警内容的指纹，内容变化时冷却重新计算
func fingerprint(p *notify.Payload) string {
	keys := make([]string, 0, len(p.LowStock)+len(p.PrinterIssues))
	for _, f := range p.LowStock {
		keys = append(keys, "f:"+f.FilamentID)
	}
	for _, pr := range p.PrinterIssues {
		keys = append(keys, "p:"+pr.ID+":"+pr.Status)
	}
	sort.Strings(keys)
	sum := sha1.Sum([]byte(strings.Join(keys, ",")))
	return hex.EncodeToString(sum[:])
}

// Run 周期性评估告警，受冷却限制。阻塞直到 ctx 取消
func (s *AlertService) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.logger.Info("alert worker started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("alert worker stopped")
			return
		case <-ticker.C:
			if _, err := s.Trigger(ctx, false); err != nil && ctx.Err() == nil {
				s.logger.Error("periodic alert evaluation failed", zap.Error(err))
			}
		}
	}
}
