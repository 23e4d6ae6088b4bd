package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bitfantasy/printops/internal/production/entity"
	"github.com/bitfantasy/printops/internal/shared/events"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateLowStockBoundary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	below := f.filament(t, 40, 50)
	equal := f.filament(t, 50, 50)
	f.filament(t, 51, 50)

	items, err := f.svc.Alerts.EvaluateLowStock(ctx)
	require.NoError(t, err)
	ids := map[string]bool{}
	for _, it := range items {
		ids[it.FilamentID] = true
		assert.Equal(t, "g", it.Unit)
		assert.True(t, it.Threshold.Equal(decimal.NewFromInt(50)))
	}
	assert.Equal(t, map[string]bool{below.ID: true, equal.ID: true}, ids)
	assert.Zero(t, f.notifier.calls, "evaluation never sends")
}

func TestPreviewIncludesPrinterIssues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.Ingest.ReportPrinterHealth(ctx, "p1", &PrinterHealthRequest{Name: "MK4-01", Status: entity.PrinterError})
	require.NoError(t, err)
	_, err = f.svc.Ingest.ReportPrinterHealth(ctx, "p2", &PrinterHealthRequest{Status: entity.PrinterPrinting})
	require.NoError(t, err)

	p, err := f.svc.Alerts.Preview(ctx)
	require.NoError(t, err)
	assert.Empty(t, p.LowStock)
	require.Len(t, p.PrinterIssues, 1)
	assert.Equal(t, "MK4-01", p.PrinterIssues[0].Name)
}

func TestTriggerNothingToReport(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Alerts.Trigger(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Empty(t, res.Channels)
	assert.Zero(t, f.notifier.calls)
}

func TestTriggerRespectsCooldown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.filament(t, 10, 50)

	res, err := f.svc.Alerts.Trigger(ctx, false)
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Equal(t, 1, res.LowStockCount)
	assert.Equal(t, "https://hooks.slack.test/default", f.notifier.settings.SlackWebhookURL)

	res, err = f.svc.Alerts.Trigger(ctx, false)
	require.NoError(t, err)
	assert.True(t, res.Suppressed)
	assert.Equal(t, 1, f.notifier.calls)

	// 手动触发不受冷却限制
	_, err = f.svc.Alerts.Trigger(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.notifier.calls)

	f.clock.Advance(61 * time.Minute)
	_, err = f.svc.Alerts.Trigger(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 3, f.notifier.calls)

	deliveries, err := f.svc.Alerts.ListDeliveries(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, deliveries, 3)
	assert.Contains(t, f.pub.types(), events.AlertTriggered)
}

func TestTriggerRecordsDeliveryFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.filament(t, 10, 50)
	f.notifier.err = errors.New("all channels failed")

	res, err := f.svc.Alerts.Trigger(ctx, true)
	require.NoError(t, err)
	assert.False(t, res.Sent)
	require.NotEmpty(t, res.Errors)

	deliveries, err := f.svc.Alerts.ListDeliveries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.False(t, deliveries[0].Sent)
	assert.Contains(t, deliveries[0].Error, "all channels failed")
}

func TestTriggerReportsChannelErrorsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.filament(t, 10, 50)
	f.notifier.err = errors.New("slack: 503 Service Unavailable")

	res, err := f.svc.Alerts.Trigger(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"slack: 503 Service Unavailable"}, res.Errors)

	deliveries, err := f.svc.Alerts.ListDeliveries(ctx, 1)
	require.NoError(t, err)
	require.Len(t, deliveries, 1)
	assert.Equal(t, "slack: 503 Service Unavailable", deliveries[0].Error)
}

func TestTriggerFailedDeliveryKeepsCooldownOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.filament(t, 10, 50)
	f.notifier.err = errors.New("slack down")

	res, err := f.svc.Alerts.Trigger(ctx, false)
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.False(t, res.Suppressed)

	// 通道恢复后下一轮立即重发，不必等待冷却结束
	f.notifier.err = nil
	f.clock.Advance(time.Minute)
	res, err = f.svc.Alerts.Trigger(ctx, false)
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.False(t, res.Suppressed)
	assert.Equal(t, 2, f.notifier.calls)

	res, err = f.svc.Alerts.Trigger(ctx, false)
	require.NoError(t, err)
	assert.True(t, res.Suppressed)
	assert.Equal(t, 2, f.notifier.calls)
}

func TestMemoryThrottleRelease(t *testing.T) {
	ctx := context.Background()
	th := NewMemoryThrottle()

	ok, err := th.Allow(ctx, "k", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = th.Allow(ctx, "k", time.Hour)
	assert.False(t, ok)

	require.NoError(t, th.Release(ctx, "k"))
	ok, _ = th.Allow(ctx, "k", time.Hour)
	assert.True(t, ok)
}

func TestAlertSettings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	got, err := f.svc.Alerts.GetSettings(ctx)
	require.NoError(t, err)
	require.NotNil(t, got.SlackWebhookURL)
	assert.False(t, got.EmailEnabled)

	enabled := true
	updated, err := f.svc.Alerts.UpdateSettings(ctx, &UpdateAlertSettingsRequest{
		SlackWebhookURL:   strp(""),
		DiscordWebhookURL: strp("https://discord.test/api/webhooks/1"),
		EmailEnabled:      &enabled,
		EmailTo:           strp("ops@example.com"),
	})
	require.NoError(t, err)
	assert.Nil(t, updated.SlackWebhookURL)
	assert.Equal(t, "https://discord.test/api/webhooks/1", *updated.DiscordWebhookURL)

	got, err = f.svc.Alerts.GetSettings(ctx)
	require.NoError(t, err)
	assert.True(t, got.EmailEnabled)
	assert.Equal(t, "ops@example.com", *got.EmailTo)

	_, err = f.svc.Alerts.UpdateSettings(ctx, &UpdateAlertSettingsRequest{SlackWebhookURL: strp("not a url")})
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestRunSendsOncePerCooldown(t *testing.T) {
	f := newFixture(t)
	f.filament(t, 50, 100)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	f.svc.Alerts.Run(ctx, 5*time.Millisecond)

	assert.Equal(t, 1, f.notifier.calls)
	deliveries, err := f.svc.Alerts.ListDeliveries(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, deliveries, 1)
}
