package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bitfantasy/printops/internal/config"
	"github.com/bitfantasy/printops/internal/production/entity"
	"github.com/bitfantasy/printops/internal/production/repository"
	"github.com/bitfantasy/printops/internal/shared/events"
	"github.com/bitfantasy/printops/internal/shared/notify"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evs ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fakeNotifier struct {
	calls    int
	payload  notify.Payload
	settings notify.Settings
	err      error
}

func (n *fakeNotifier) Trigger(ctx context.Context, p notify.Payload, s notify.Settings) (*notify.Result, error) {
	n.calls++
	n.payload, n.settings = p, s
	res := &notify.Result{
		Channels:          []string{},
		LowStockCount:     len(p.LowStock),
		PrinterIssueCount: len(p.PrinterIssues),
	}
	if n.err != nil {
		res.Errors = append(res.Errors, n.err.Error())
		return res, n.err
	}
	if s.SlackWebhookURL != "" {
		res.Channels = append(res.Channels, notify.ChannelSlack)
	}
	res.Sent = len(res.Channels) > 0
	return res, nil
}

type fixture struct {
	store    *repository.MemoryStore
	svc      *Services
	clock    *clock
	pub      *recordingPublisher
	notifier *fakeNotifier
	throttle *MemoryThrottle
	cfg      *config.Config
}

func testConfig(policy string) *config.Config {
	return &config.Config{
		Production: config.ProductionConfig{
			SessionFailedPolicy: policy,
			DefaultPriority:     3,
			AlertCooldown:       time.Hour,
		},
		Notify: config.NotifyConfig{SlackWebhookURL: "https://hooks.slack.test/default"},
	}
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithPolicy(t, "retry")
}

func newFixtureWithPolicy(t *testing.T, policy string) *fixture {
	t.Helper()
	f := &fixture{
		store:    repository.NewMemoryStore(),
		clock:    &clock{t: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)},
		pub:      &recordingPublisher{},
		notifier: &fakeNotifier{},
		throttle: NewMemoryThrottle(),
		cfg:      testConfig(policy),
	}
	f.throttle.now = f.clock.Now
	f.svc = NewServices(f.store, Deps{
		Publisher: f.pub,
		Notifier:  f.notifier,
		Throttle:  f.throttle,
		Now:       f.clock.Now,
	}, f.cfg, zaptest.NewLogger(t))
	return f
}

func (f *fixture) order(t *testing.T, mpID string, est *int) *entity.Order {
	t.Helper()
	o, _, err := f.svc.Ingest.Upsert(context.Background(), &SyncOrderRequest{MarketplaceOrderID: mpID, BuyerName: "buyer " + mpID})
	require.NoError(t, err)
	if est != nil {
		o, err = f.svc.Orders.SetEstimatedTime(context.Background(), o.ID, *est)
		require.NoError(t, err)
	}
	f.clock.Advance(time.Second)
	return o
}

func (f *fixture) filament(t *testing.T, current, threshold int64) *entity.Filament {
	t.Helper()
	cur := decimal.NewFromInt(current)
	fl, err := f.svc.Inventory.Create(context.Background(), &CreateFilamentRequest{
		Material:          "PLA",
		Color:             "Black",
		InitialAmount:     decimal.NewFromInt(1000),
		CurrentAmount:     &cur,
		LowStockThreshold: decimal.NewFromInt(threshold),
	})
	require.NoError(t, err)
	return fl
}

func (f *fixture) transition(t *testing.T, id, status string) *entity.Order {
	t.Helper()
	o, err := f.svc.Orders.Transition(context.Background(), id, &TransitionRequest{Status: status})
	require.NoError(t, err)
	return o
}

func intp(v int) *int { return &v }

func strp(s string) *string { return &s }
